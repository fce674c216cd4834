package flashloan

import (
	"fmt"

	"flash-swap-sol/internal/types"
)

// CheckTopLevel 确认当前指令是交易中的主指令，而不是经由其他程序 CPI 调用进来的。
//
// CPI 调用时 instructions sysvar 中记录的当前指令仍是外层主指令，
// 其 program id 是发起调用的程序，因此与本程序 id 不一致。
// 返回当前主指令序号。
func CheckTopLevel(ixs Introspector, programID types.Pubkey) (int, error) {
	current, err := ixs.CurrentIndex()
	if err != nil {
		return 0, fmt.Errorf("load current index: %w", err)
	}
	ix, err := ixs.InstructionAt(current)
	if err != nil {
		return 0, fmt.Errorf("load current instruction %d: %w", current, err)
	}
	if ix.ProgramID != programID {
		return 0, ErrProgramMismatch
	}
	return current, nil
}
