package flashloan

import (
	"encoding/binary"
	"fmt"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

// Program 是 flash swap 程序本体：一对 borrow / repay 入口。
//
// borrow 从 escrow authority 借出一笔固定金额（一个 token 账户的免租最低余额），
// 前提是同一笔交易后续存在合法的 repay；repay 把同样金额还回 authority。
// 程序本身无状态，所有判断都基于 instructions sysvar 中的交易指令列表。
type Program struct {
	id        types.Pubkey
	authority EscrowAuthority
	amount    uint64
}

func NewProgram(programID types.Pubkey, authority EscrowAuthority, rent Rent) *Program {
	return &Program{
		id:        programID,
		authority: authority,
		amount:    rent.MinimumBalance(consts.TokenAccountSize),
	}
}

func (p *Program) ID() types.Pubkey {
	return p.id
}

func (p *Program) Authority() EscrowAuthority {
	return p.authority
}

// LoanAmount 每次 borrow / repay 转移的 lamports
func (p *Program) LoanAmount() uint64 {
	return p.amount
}

// Process 根据 data 前 8 字节分发到 borrow / repay
func (p *Program) Process(ctx *Context, data []byte) error {
	if len(data) < consts.DiscriminatorLen {
		return ErrInstructionFallbackNotFound
	}
	switch binary.BigEndian.Uint64(data[:consts.DiscriminatorLen]) {
	case consts.BorrowDiscriminator:
		return p.Borrow(ctx)
	case consts.RepayDiscriminator:
		return p.Repay(ctx)
	default:
		return ErrInstructionFallbackNotFound
	}
}

// Borrow 入口：
//  1. 账户约束校验
//  2. 必须为主指令（禁止 CPI 调用）
//  3. 向后扫描配对的 repay
//  4. authority -> borrower 代签转账
func (p *Program) Borrow(ctx *Context) error {
	ctx.log("Instruction: Borrow")

	ixs, err := p.checkAccounts(&ctx.Accounts)
	if err != nil {
		return err
	}

	current, err := CheckTopLevel(ixs, p.id)
	if err != nil {
		return err
	}

	result := ScanForRepay(ixs, p.id, p.authority.Address(), current+1)
	if !result.Satisfied() {
		return result.Err()
	}
	ctx.log(fmt.Sprintf("Found repay at instruction %d", result.Index))

	return ctx.System.TransferSigned(
		p.authority.Address(),
		ctx.Accounts.Borrower.Key,
		p.amount,
		p.authority.signerSeeds(),
	)
}

// Repay 入口：必须为主指令，然后 borrower -> authority 转账。
// repay 不向前检查是否存在 borrow，单独的 repay 等同于一次转账。
func (p *Program) Repay(ctx *Context) error {
	ctx.log("Instruction: Repay")

	ixs, err := p.checkAccounts(&ctx.Accounts)
	if err != nil {
		return err
	}

	if _, err = CheckTopLevel(ixs, p.id); err != nil {
		return err
	}

	return ctx.System.Transfer(
		ctx.Accounts.Borrower.Key,
		p.authority.Address(),
		p.amount,
	)
}

// checkAccounts 校验账户约束，通过后返回 instructions sysvar 的访问器
func (p *Program) checkAccounts(accs *Accounts) (*sysvar.Accessor, error) {
	if !accs.Borrower.IsSigner {
		return nil, ErrAccountNotSigner
	}
	// borrower 只有 Signer 约束，不要求可写
	if !accs.ProgramAuthority.IsWritable {
		return nil, ErrConstraintMut
	}
	if accs.ProgramAuthority.Key != p.authority.Address() {
		return nil, ErrConstraintSeeds
	}
	if accs.Instructions.Key != consts.SysvarInstructions {
		return nil, ErrAddressMismatch
	}
	if accs.SystemProgram.Key != consts.SystemProgram {
		return nil, ErrInvalidProgramID
	}
	return sysvar.NewAccessor(accs.Instructions.Data), nil
}

// AccountsFromInfos 按固定布局把指令账户列表映射为 Accounts
func AccountsFromInfos(infos []AccountInfo) (Accounts, error) {
	if len(infos) < consts.FlashSwapAccountCount {
		return Accounts{}, ErrAccountNotEnoughKeys
	}
	return Accounts{
		Borrower:         infos[consts.AccountBorrower],
		ProgramAuthority: infos[consts.AccountProgramAuthority],
		Instructions:     infos[consts.AccountInstructions],
		SystemProgram:    infos[consts.AccountSystemProgram],
	}, nil
}
