package txbuilder

import (
	"encoding/binary"
	"errors"
	"fmt"

	sdkcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/associated_token_account"
	"github.com/blocto/solana-go-sdk/program/compute_budget"
	sdktoken "github.com/blocto/solana-go-sdk/program/token"
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/runtime"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

// DefaultComputeUnitLimit swap 路由可能很长，直接申请单笔交易上限
const DefaultComputeUnitLimit uint32 = 1_400_000

func flashSwapInstruction(programID, borrower, authority types.Pubkey, disc uint64) sdktypes.Instruction {
	data := make([]byte, consts.DiscriminatorLen)
	binary.BigEndian.PutUint64(data, disc)
	return sdktypes.Instruction{
		ProgramID: sdkcommon.PublicKey(programID),
		Accounts: []sdktypes.AccountMeta{
			{PubKey: sdkcommon.PublicKey(borrower), IsSigner: true, IsWritable: true},
			{PubKey: sdkcommon.PublicKey(authority), IsSigner: false, IsWritable: true},
			{PubKey: sdkcommon.PublicKey(consts.SysvarInstructions), IsSigner: false, IsWritable: false},
			{PubKey: sdkcommon.PublicKey(consts.SystemProgram), IsSigner: false, IsWritable: false},
		},
		Data: data,
	}
}

// BorrowInstruction 构造 borrow 指令
func BorrowInstruction(programID, borrower, authority types.Pubkey) sdktypes.Instruction {
	return flashSwapInstruction(programID, borrower, authority, consts.BorrowDiscriminator)
}

// RepayInstruction 构造 repay 指令
func RepayInstruction(programID, borrower, authority types.Pubkey) sdktypes.Instruction {
	return flashSwapInstruction(programID, borrower, authority, consts.RepayDiscriminator)
}

// WSOLAccount 返回 owner 的 wSOL 关联 token 账户
func WSOLAccount(owner types.Pubkey) (types.Pubkey, error) {
	ata, _, err := sdkcommon.FindAssociatedTokenAddress(sdkcommon.PublicKey(owner), sdkcommon.PublicKey(consts.WSOLMint))
	if err != nil {
		return types.Pubkey{}, fmt.Errorf("find wsol ata: %w", err)
	}
	return types.Pubkey(ata), nil
}

// FlashSwapPlan 描述一笔 "借 SOL -> swap 成 SOL -> 还 SOL" 的交易
type FlashSwapPlan struct {
	ProgramID        types.Pubkey
	Authority        types.Pubkey
	Borrower         types.Pubkey
	SwapInstructions []sdktypes.Instruction // swap 前置指令 + swap 指令，输出到 borrower 的 wSOL 账户
	ComputeUnitLimit uint32                 // 0 使用默认值
}

// BuildFlashSwap 按顺序生成交易指令：
//
//	compute budget -> borrow -> 创建 wSOL ATA（幂等）-> swap -> 关闭 wSOL ATA -> repay
//
// borrow 借出的 lamports 用来支付 wSOL ATA 的租金，关闭 ATA 时租金连同换得的 SOL
// 一起回到 borrower，再由 repay 归还。
func BuildFlashSwap(plan FlashSwapPlan) ([]sdktypes.Instruction, error) {
	if len(plan.SwapInstructions) == 0 {
		return nil, errors.New("no swap instructions")
	}
	if plan.Borrower.IsZero() || plan.Authority.IsZero() {
		return nil, errors.New("borrower and authority are required")
	}
	limit := plan.ComputeUnitLimit
	if limit == 0 {
		limit = DefaultComputeUnitLimit
	}

	wsolAccount, err := WSOLAccount(plan.Borrower)
	if err != nil {
		return nil, err
	}
	borrower := sdkcommon.PublicKey(plan.Borrower)

	ixs := make([]sdktypes.Instruction, 0, len(plan.SwapInstructions)+5)
	ixs = append(ixs,
		compute_budget.SetComputeUnitLimit(compute_budget.SetComputeUnitLimitParam{Units: limit}),
		BorrowInstruction(plan.ProgramID, plan.Borrower, plan.Authority),
		associated_token_account.CreateIdempotent(associated_token_account.CreateIdempotentParam{
			Funder:                 borrower,
			Owner:                  borrower,
			Mint:                   sdkcommon.PublicKey(consts.WSOLMint),
			AssociatedTokenAccount: sdkcommon.PublicKey(wsolAccount),
		}),
	)
	ixs = append(ixs, plan.SwapInstructions...)
	ixs = append(ixs,
		sdktoken.CloseAccount(sdktoken.CloseAccountParam{
			Account: sdkcommon.PublicKey(wsolAccount),
			Auth:    borrower,
			To:      borrower,
		}),
		RepayInstruction(plan.ProgramID, plan.Borrower, plan.Authority),
	)
	return ixs, nil
}

// BuildTransaction 编译并签名交易。提供 lookup table 时生成 v0 消息
func BuildTransaction(
	payer sdktypes.Account,
	recentBlockhash string,
	ixs []sdktypes.Instruction,
	lookupTables []sdktypes.AddressLookupTableAccount,
) (sdktypes.Transaction, error) {
	msg := sdktypes.NewMessage(sdktypes.NewMessageParam{
		FeePayer:                   payer.PublicKey,
		RecentBlockhash:            recentBlockhash,
		Instructions:               ixs,
		AddressLookupTableAccounts: lookupTables,
	})
	tx, err := sdktypes.NewTransaction(sdktypes.NewTransactionParam{
		Message: msg,
		Signers: []sdktypes.Account{payer},
	})
	if err != nil {
		return sdktypes.Transaction{}, fmt.Errorf("new transaction: %w", err)
	}
	return tx, nil
}

// Preflight 在本地模拟器中预演客户端交易：flash swap 程序按真实逻辑执行，
// 其余外部程序视为无副作用。escrow 预置一笔借款额度
func Preflight(program *flashloan.Program, signers []types.Pubkey, ixs []sdktypes.Instruction) (*runtime.Receipt, error) {
	exec := runtime.NewExecutor(runtime.NewLedger())
	exec.Register(program.ID(), runtime.FlashSwapHandler(program))
	for _, ix := range ixs {
		id := types.Pubkey(ix.ProgramID)
		if id == program.ID() || id == consts.SystemProgram {
			continue
		}
		exec.Register(id, runtime.Noop)
	}
	exec.Airdrop(program.Authority().Address(), program.LoanAmount())

	receipt, err := exec.Execute(&runtime.Transaction{
		Signers:      signers,
		Instructions: sysvar.FromSDKList(ixs),
	})
	if err != nil {
		return receipt, err
	}
	if change := receipt.BalanceChange(program.Authority().Address()); change != 0 {
		return receipt, fmt.Errorf("escrow balance changed by %d", change)
	}
	return receipt, nil
}
