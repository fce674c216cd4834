package flashloan

import (
	"testing"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/sysvar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanForRepay(t *testing.T) {
	authority := testKey(2)
	wrong := testKey(3)

	tests := []struct {
		name   string
		ixs    []sysvar.Instruction
		start  int
		state  ScanState
		index  int
		reason Error
	}{
		{
			name:  "repay right after borrow",
			ixs:   []sysvar.Instruction{borrowIx(authority), repayIx(authority)},
			start: 1,
			state: ScanSatisfied,
			index: 1,
		},
		{
			name:  "foreign instructions are skipped",
			ixs:   []sysvar.Instruction{borrowIx(authority), swapIx(), swapIx(), swapIx(), repayIx(authority)},
			start: 1,
			state: ScanSatisfied,
			index: 4,
		},
		{
			name:   "borrow alone",
			ixs:    []sysvar.Instruction{borrowIx(authority)},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrMissingRepay,
		},
		{
			name:   "only foreign instructions after borrow",
			ixs:    []sysvar.Instruction{borrowIx(authority), swapIx(), swapIx()},
			start:  1,
			state:  ScanRejected,
			index:  3,
			reason: ErrMissingRepay,
		},
		{
			name:   "repay to wrong authority",
			ixs:    []sysvar.Instruction{borrowIx(authority), repayIx(wrong)},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrIncorrectProgramAuthority,
		},
		{
			name:   "nested borrow",
			ixs:    []sysvar.Instruction{borrowIx(authority), borrowIx(authority), repayIx(authority)},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrCannotBorrowBeforeRepay,
		},
		{
			name: "unknown discriminator",
			ixs: []sysvar.Instruction{
				borrowIx(authority),
				{ProgramID: consts.FlashSwapProgram, Data: discriminator(0x0102030405060708)},
				repayIx(authority),
			},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrUnknownInstruction,
		},
		{
			name: "short data",
			ixs: []sysvar.Instruction{
				borrowIx(authority),
				{ProgramID: consts.FlashSwapProgram, Data: []byte{0xea, 0x67}},
				repayIx(authority),
			},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrUnknownInstruction,
		},
		{
			name: "repay without authority account",
			ixs: []sysvar.Instruction{
				borrowIx(authority),
				{ProgramID: consts.FlashSwapProgram, Data: discriminator(consts.RepayDiscriminator)},
			},
			start:  1,
			state:  ScanRejected,
			index:  1,
			reason: ErrIncorrectProgramAuthority,
		},
		{
			name:  "first repay wins",
			ixs:   []sysvar.Instruction{borrowIx(authority), repayIx(authority), repayIx(wrong)},
			start: 1,
			state: ScanSatisfied,
			index: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ScanForRepay(&listIntrospector{ixs: tt.ixs}, consts.FlashSwapProgram, authority, tt.start)
			assert.Equal(t, tt.state, result.State)
			assert.Equal(t, tt.index, result.Index)
			if tt.state == ScanSatisfied {
				assert.True(t, result.Satisfied())
				assert.NoError(t, result.Err())
			} else {
				assert.Equal(t, tt.reason, result.Reason)
				assert.ErrorIs(t, result.Err(), tt.reason)
			}
		})
	}
}

func TestScanForRepaySequentialPairs(t *testing.T) {
	authority := testKey(2)
	intro := &listIntrospector{ixs: []sysvar.Instruction{
		borrowIx(authority), swapIx(), repayIx(authority),
		borrowIx(authority), swapIx(), repayIx(authority),
	}}

	first := ScanForRepay(intro, consts.FlashSwapProgram, authority, 1)
	require.True(t, first.Satisfied())
	assert.Equal(t, 2, first.Index)

	// 第二个 borrow 的扫描从其自身之后开始，匹配第二个 repay
	second := ScanForRepay(intro, consts.FlashSwapProgram, authority, 4)
	require.True(t, second.Satisfied())
	assert.Equal(t, 5, second.Index)
}

func TestScanForRepayOverEncodedSysvar(t *testing.T) {
	authority := testKey(2)
	data, err := sysvar.Encode([]sysvar.Instruction{borrowIx(authority), swapIx(), repayIx(authority)})
	require.NoError(t, err)

	result := ScanForRepay(sysvar.NewAccessor(data), consts.FlashSwapProgram, authority, 1)
	assert.Equal(t, ScanSatisfied, result.State)
	assert.Equal(t, 2, result.Index)

	// 损坏的数据不会 panic，按 MissingRepay 处理
	result = ScanForRepay(sysvar.NewAccessor(data[:10]), consts.FlashSwapProgram, authority, 1)
	assert.Equal(t, ErrMissingRepay, result.Reason)
}

func TestCheckTopLevel(t *testing.T) {
	authority := testKey(2)
	ixs := []sysvar.Instruction{swapIx(), borrowIx(authority), repayIx(authority)}

	current, err := CheckTopLevel(&listIntrospector{current: 1, ixs: ixs}, consts.FlashSwapProgram)
	require.NoError(t, err)
	assert.Equal(t, 1, current)

	// 当前主指令属于其他程序：说明本程序是被 CPI 调用的
	_, err = CheckTopLevel(&listIntrospector{current: 0, ixs: ixs}, consts.FlashSwapProgram)
	assert.ErrorIs(t, err, ErrProgramMismatch)

	_, err = CheckTopLevel(&listIntrospector{current: 5, ixs: ixs}, consts.FlashSwapProgram)
	assert.ErrorIs(t, err, sysvar.ErrInstructionNotPresent)
}

func TestScanStateString(t *testing.T) {
	assert.Equal(t, "scanning", ScanScanning.String())
	assert.Equal(t, "satisfied", ScanSatisfied.String())
	assert.Equal(t, "rejected", ScanRejected.String())
}

func TestScanForRepayLongInstructionList(t *testing.T) {
	authority := testKey(2)

	ixs := []sysvar.Instruction{borrowIx(authority)}
	for i := 0; i < 1000; i++ {
		ixs = append(ixs, sysvar.Instruction{ProgramID: testSwapper})
	}
	ixs = append(ixs, repayIx(authority))

	data, err := sysvar.Encode(ixs)
	require.NoError(t, err)
	result := ScanForRepay(sysvar.NewAccessor(data), consts.FlashSwapProgram, authority, 1)
	require.True(t, result.Satisfied())
	assert.Equal(t, 1001, result.Index)

	// 偏移表放不下的列表在编码阶段被拒绝
	long := []sysvar.Instruction{borrowIx(authority)}
	for i := 0; i < 1000; i++ {
		long = append(long, swapIx())
	}
	long = append(long, repayIx(authority))
	_, err = sysvar.Encode(long)
	assert.ErrorIs(t, err, sysvar.ErrDataTooLarge)
}
