package runtime

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"

	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

// MaxInvokeDepth 指令调用栈最大深度（主指令为 1）
const MaxInvokeDepth = 4

// InvokeContext 是某一层指令执行时的上下文。
// CPI 调用共享同一份 instructions sysvar，current index 保持为外层主指令序号。
type InvokeContext struct {
	exec       *Executor
	programID  types.Pubkey
	signers    map[types.Pubkey]bool
	depth      int
	sysvarData []byte
	logs       *[]string
}

func (ic *InvokeContext) ProgramID() types.Pubkey {
	return ic.programID
}

func (ic *InvokeContext) Depth() int {
	return ic.depth
}

// IsSigner 当前指令是否拥有该账户的签名权限
func (ic *InvokeContext) IsSigner(key types.Pubkey) bool {
	return ic.signers[key]
}

// InstructionsSysvar 返回当前交易的 instructions sysvar 数据
func (ic *InvokeContext) InstructionsSysvar() []byte {
	return ic.sysvarData
}

// Log 写入程序日志
func (ic *InvokeContext) Log(msg string) {
	*ic.logs = append(*ic.logs, "Program log: "+msg)
}

// Transfer 通过 CPI 调用 System Program 转账，from 必须是当前指令的 signer
func (ic *InvokeContext) Transfer(from, to types.Pubkey, lamports uint64) error {
	return ic.Invoke(systemTransfer(from, to, lamports))
}

// TransferSigned 通过 CPI 调用 System Program 转账，由当前程序以 PDA seeds 为 from 代签
func (ic *InvokeContext) TransferSigned(from, to types.Pubkey, lamports uint64, signerSeeds [][]byte) error {
	return ic.Invoke(systemTransfer(from, to, lamports), signerSeeds)
}

// Invoke 跨程序调用。被调指令中的 signer 账户必须已是当前指令的 signer，
// 或者是当前程序用 signerSeeds 派生出的 PDA。
func (ic *InvokeContext) Invoke(ix sysvar.Instruction, signerSeeds ...[][]byte) error {
	if ic.depth+1 > MaxInvokeDepth {
		return ErrCallDepth
	}

	pdaSigners := make(map[types.Pubkey]bool, len(signerSeeds))
	for _, seeds := range signerSeeds {
		addr, err := common.CreateProgramAddress(seeds, common.PublicKey(ic.programID))
		if err != nil {
			continue
		}
		pdaSigners[types.Pubkey(addr)] = true
	}

	signers := make(map[types.Pubkey]bool)
	for _, acc := range ix.Accounts {
		if !acc.IsSigner {
			continue
		}
		if !ic.signers[acc.Pubkey] && !pdaSigners[acc.Pubkey] {
			return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, acc.Pubkey)
		}
		signers[acc.Pubkey] = true
	}

	child := &InvokeContext{
		exec:       ic.exec,
		programID:  ix.ProgramID,
		signers:    signers,
		depth:      ic.depth + 1,
		sysvarData: ic.sysvarData,
		logs:       ic.logs,
	}
	return child.run(&ix)
}

func (ic *InvokeContext) run(ix *sysvar.Instruction) error {
	*ic.logs = append(*ic.logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, ic.depth))

	h, ok := ic.exec.handlers[ix.ProgramID]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnsupportedProgramID, ix.ProgramID)
		*ic.logs = append(*ic.logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}

	if err := h.Process(ic, ix); err != nil {
		*ic.logs = append(*ic.logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
		return err
	}
	*ic.logs = append(*ic.logs, fmt.Sprintf("Program %s success", ix.ProgramID))
	return nil
}

// systemTransfer 用 SDK 构造 System Program 转账指令
func systemTransfer(from, to types.Pubkey, lamports uint64) sysvar.Instruction {
	return sysvar.FromSDK(system.Transfer(system.TransferParam{
		From:   common.PublicKey(from),
		To:     common.PublicKey(to),
		Amount: lamports,
	}))
}

// transferSystemOwned 是 System Program 转账的执行体
func (ic *InvokeContext) transferSystemOwned(from, to types.Pubkey, lamports uint64) error {
	if !ic.signers[from] {
		return fmt.Errorf("%w: %s", ErrMissingRequiredSignature, from)
	}
	return ic.exec.ledger.Transfer(from, to, lamports)
}
