package flashloan

import (
	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/types"
)

// ScanState 表示 repay 扫描状态机的状态
type ScanState uint8

const (
	ScanScanning ScanState = iota
	ScanSatisfied
	ScanRejected
)

func (s ScanState) String() string {
	switch s {
	case ScanScanning:
		return "scanning"
	case ScanSatisfied:
		return "satisfied"
	case ScanRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ScanResult 是扫描的终态。
//   - Satisfied：Index 为匹配到的 repay 指令序号
//   - Rejected：Index 为触发拒绝的指令序号（MissingRepay 时为越界序号），Reason 为具体错误
type ScanResult struct {
	State  ScanState
	Index  int
	Reason Error
}

func (r ScanResult) Satisfied() bool {
	return r.State == ScanSatisfied
}

// Err 返回拒绝原因，Satisfied 时为 nil
func (r ScanResult) Err() error {
	if r.State == ScanSatisfied {
		return nil
	}
	return r.Reason
}

func rejected(index int, reason Error) ScanResult {
	return ScanResult{State: ScanRejected, Index: index, Reason: reason}
}

// ScanForRepay 从 start 开始向后单次扫描主指令列表，寻找与 borrow 配对的 repay。
//
// 规则：
//  1. 取不到指令（越界或数据损坏）：MissingRepay
//  2. 其他程序的指令（如 swap）：跳过
//  3. 本程序的指令必须被识别：
//     - repay：authority 账户（位置 1）必须等于 escrow authority，否则 IncorrectProgramAuthority
//     - borrow：CannotBorrowBeforeRepay，借款不允许嵌套
//     - 其他 / discriminator 不足 8 字节：UnknownInstruction
//
// 纯函数，无副作用；只返回第一个符合条件的 repay。
func ScanForRepay(ixs Introspector, programID, authority types.Pubkey, start int) ScanResult {
	for index := start; ; index++ {
		ix, err := ixs.InstructionAt(index)
		if err != nil {
			return rejected(index, ErrMissingRepay)
		}

		if ix.ProgramID != programID {
			continue
		}

		disc, ok := ix.Discriminator()
		if !ok {
			return rejected(index, ErrUnknownInstruction)
		}

		switch disc {
		case consts.RepayDiscriminator:
			acc, ok := ix.AccountAt(consts.AccountProgramAuthority)
			if !ok || acc.Pubkey != authority {
				return rejected(index, ErrIncorrectProgramAuthority)
			}
			return ScanResult{State: ScanSatisfied, Index: index}
		case consts.BorrowDiscriminator:
			return rejected(index, ErrCannotBorrowBeforeRepay)
		default:
			return rejected(index, ErrUnknownInstruction)
		}
	}
}
