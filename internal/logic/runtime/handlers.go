package runtime

import (
	"encoding/binary"
	"fmt"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/sysvar"
)

// System Program 指令类型（u32 小端）
const systemInstructionTransfer uint32 = 2

// processSystem 只支持 Transfer：data = u32(2) | u64(lamports)，accounts = [from(signer), to]
func processSystem(ic *InvokeContext, ix *sysvar.Instruction) error {
	if len(ix.Data) < 4 {
		return ErrInvalidInstructionData
	}
	switch binary.LittleEndian.Uint32(ix.Data[:4]) {
	case systemInstructionTransfer:
		if len(ix.Data) != 12 {
			return ErrInvalidInstructionData
		}
		if len(ix.Accounts) < 2 {
			return ErrNotEnoughAccountKeys
		}
		lamports := binary.LittleEndian.Uint64(ix.Data[4:12])
		return ic.transferSystemOwned(ix.Accounts[0].Pubkey, ix.Accounts[1].Pubkey, lamports)
	default:
		return fmt.Errorf("%w: unsupported system instruction", ErrInvalidInstructionData)
	}
}

// Noop 不透明的外部程序（例如 swap），执行即成功
var Noop = HandlerFunc(func(ic *InvokeContext, ix *sysvar.Instruction) error {
	return nil
})

// Proxy 把自己收到的指令原样转发给 accounts[0] 指定的程序（CPI），
// accounts[1:] 作为被调指令的账户列表。用于模拟被其他程序间接调用。
var Proxy = HandlerFunc(func(ic *InvokeContext, ix *sysvar.Instruction) error {
	if len(ix.Accounts) < 1 {
		return ErrNotEnoughAccountKeys
	}
	return ic.Invoke(sysvar.Instruction{
		ProgramID: ix.Accounts[0].Pubkey,
		Accounts:  ix.Accounts[1:],
		Data:      ix.Data,
	})
})

// FlashSwapHandler 把 flashloan.Program 接入执行器
func FlashSwapHandler(program *flashloan.Program) Handler {
	return HandlerFunc(func(ic *InvokeContext, ix *sysvar.Instruction) error {
		infos := make([]flashloan.AccountInfo, 0, len(ix.Accounts))
		for _, acc := range ix.Accounts {
			info := flashloan.AccountInfo{
				Key:        acc.Pubkey,
				IsSigner:   ic.IsSigner(acc.Pubkey),
				IsWritable: acc.IsWritable,
			}
			if acc.Pubkey == consts.SysvarInstructions {
				info.Data = ic.InstructionsSysvar()
			}
			infos = append(infos, info)
		}

		accounts, err := flashloan.AccountsFromInfos(infos)
		if err != nil {
			return err
		}
		return program.Process(&flashloan.Context{
			Accounts: accounts,
			System:   ic,
			Log:      ic.Log,
		}, ix.Data)
	})
}
