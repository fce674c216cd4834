package flashloan

import (
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

// Introspector 提供对当前交易主指令列表的只读访问。
// InstructionAt 越界时应返回 sysvar.ErrInstructionNotPresent。
type Introspector interface {
	CurrentIndex() (int, error)
	InstructionAt(index int) (*sysvar.Instruction, error)
}

// SystemTransferer 是宿主提供的 SOL 转账能力。
//   - Transfer：普通转账，from 必须是当前指令的 signer
//   - TransferSigned：由程序以 PDA seeds 代签的转账
//
// 余额不足时两者都返回 InsufficientFunds 类错误。
type SystemTransferer interface {
	Transfer(from, to types.Pubkey, lamports uint64) error
	TransferSigned(from, to types.Pubkey, lamports uint64, signerSeeds [][]byte) error
}

// AccountInfo 表示传入指令的一个账户
type AccountInfo struct {
	Key        types.Pubkey
	IsSigner   bool
	IsWritable bool
	Data       []byte
}

// Accounts 是 borrow / repay 共用的账户结构
type Accounts struct {
	Borrower         AccountInfo
	ProgramAuthority AccountInfo
	Instructions     AccountInfo
	SystemProgram    AccountInfo
}

// Context 是一次入口调用的执行上下文
type Context struct {
	Accounts Accounts
	System   SystemTransferer
	Log      func(msg string) // 可选，程序日志输出
}

func (ctx *Context) log(msg string) {
	if ctx.Log != nil {
		ctx.Log(msg)
	}
}
