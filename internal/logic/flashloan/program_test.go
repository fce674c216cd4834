package flashloan

import (
	"errors"
	"testing"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/sysvar"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowScenarios(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()
	wrong := testKey(3)

	tests := []struct {
		name    string
		ixs     []sysvar.Instruction
		current int
		wantErr error
	}{
		{
			name: "borrow swap repay",
			ixs:  []sysvar.Instruction{borrowIx(escrow), swapIx(), repayIx(escrow)},
		},
		{
			name:    "repay to wrong account",
			ixs:     []sysvar.Instruction{borrowIx(escrow), repayIx(wrong)},
			wantErr: ErrIncorrectProgramAuthority,
		},
		{
			name:    "borrow borrow repay",
			ixs:     []sysvar.Instruction{borrowIx(escrow), borrowIx(escrow), repayIx(escrow)},
			wantErr: ErrCannotBorrowBeforeRepay,
		},
		{
			name:    "borrow alone",
			ixs:     []sysvar.Instruction{borrowIx(escrow)},
			wantErr: ErrMissingRepay,
		},
		{
			name:    "borrow not at current index",
			ixs:     []sysvar.Instruction{swapIx(), borrowIx(escrow), repayIx(escrow)},
			current: 0,
			wantErr: ErrProgramMismatch,
		},
		{
			name:    "borrow after compute budget",
			ixs:     []sysvar.Instruction{swapIx(), borrowIx(escrow), swapIx(), repayIx(escrow)},
			current: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, system := newTestContext(t, escrow, tt.ixs, tt.current)
			err := program.Borrow(ctx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, system.calls)
				return
			}
			require.NoError(t, err)
			require.Len(t, system.calls, 1)
			call := system.calls[0]
			assert.True(t, call.Signed)
			assert.Equal(t, escrow, call.From)
			assert.Equal(t, testBorrower, call.To)
			assert.Equal(t, uint64(2_039_280), call.Amount)
			assert.Equal(t, [][]byte{[]byte(consts.AuthoritySeed), {authority.Bump()}}, call.Seeds)
		})
	}
}

func TestRepay(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()

	ixs := []sysvar.Instruction{borrowIx(escrow), swapIx(), repayIx(escrow)}
	ctx, system := newTestContext(t, escrow, ixs, 2)
	require.NoError(t, program.Repay(ctx))
	require.Len(t, system.calls, 1)
	assert.Equal(t, transferCall{From: testBorrower, To: escrow, Amount: program.LoanAmount()}, system.calls[0])

	// repay 不做向前检查，单独出现也只是一次转账
	ctx, system = newTestContext(t, escrow, []sysvar.Instruction{repayIx(escrow)}, 0)
	require.NoError(t, program.Repay(ctx))
	assert.Len(t, system.calls, 1)

	// 当前主指令不是本程序
	ctx, system = newTestContext(t, escrow, []sysvar.Instruction{swapIx(), repayIx(escrow)}, 0)
	assert.ErrorIs(t, program.Repay(ctx), ErrProgramMismatch)
	assert.Empty(t, system.calls)
}

func TestTransferErrorPropagates(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()

	insufficient := errors.New("insufficient funds")
	ctx, system := newTestContext(t, escrow, []sysvar.Instruction{borrowIx(escrow), repayIx(escrow)}, 0)
	system.err = insufficient
	assert.Equal(t, insufficient, program.Borrow(ctx))
}

func TestAccountConstraints(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()
	ixs := []sysvar.Instruction{borrowIx(escrow), repayIx(escrow)}

	tests := []struct {
		name    string
		mutate  func(accs *Accounts)
		wantErr error
	}{
		{"borrower not signer", func(a *Accounts) { a.Borrower.IsSigner = false }, ErrAccountNotSigner},
		{"authority not writable", func(a *Accounts) { a.ProgramAuthority.IsWritable = false }, ErrConstraintMut},
		{"wrong authority", func(a *Accounts) { a.ProgramAuthority.Key = testKey(4) }, ErrConstraintSeeds},
		{"fake instructions sysvar", func(a *Accounts) { a.Instructions.Key = testKey(5) }, ErrAddressMismatch},
		{"wrong system program", func(a *Accounts) { a.SystemProgram.Key = testKey(6) }, ErrInvalidProgramID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, system := newTestContext(t, escrow, ixs, 0)
			tt.mutate(&ctx.Accounts)
			assert.ErrorIs(t, program.Borrow(ctx), tt.wantErr)
			assert.ErrorIs(t, program.Repay(ctx), tt.wantErr)
			assert.Empty(t, system.calls)
		})
	}
}

func TestBorrowerWritableNotRequired(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()

	ctx, system := newTestContext(t, escrow, []sysvar.Instruction{borrowIx(escrow), repayIx(escrow)}, 0)
	ctx.Accounts.Borrower.IsWritable = false
	require.NoError(t, program.Borrow(ctx))
	assert.Len(t, system.calls, 1)
}

func TestProcess(t *testing.T) {
	authority := testAuthority(t)
	program := NewProgram(consts.FlashSwapProgram, authority, DefaultRent)
	escrow := authority.Address()
	ixs := []sysvar.Instruction{borrowIx(escrow), repayIx(escrow)}

	var logs []string
	ctx, system := newTestContext(t, escrow, ixs, 0)
	ctx.Log = func(msg string) { logs = append(logs, msg) }
	require.NoError(t, program.Process(ctx, discriminator(consts.BorrowDiscriminator)))
	assert.Equal(t, []string{"Instruction: Borrow", "Found repay at instruction 1"}, logs)
	assert.Len(t, system.calls, 1)

	ctx, _ = newTestContext(t, escrow, ixs, 1)
	require.NoError(t, program.Process(ctx, discriminator(consts.RepayDiscriminator)))

	assert.ErrorIs(t, program.Process(ctx, []byte{1, 2}), ErrInstructionFallbackNotFound)
	assert.ErrorIs(t, program.Process(ctx, discriminator(42)), ErrInstructionFallbackNotFound)
}

func TestAccountsFromInfos(t *testing.T) {
	_, err := AccountsFromInfos(make([]AccountInfo, 3))
	assert.ErrorIs(t, err, ErrAccountNotEnoughKeys)

	infos := []AccountInfo{{Key: testKey(1)}, {Key: testKey(2)}, {Key: testKey(3)}, {Key: testKey(4)}, {Key: testKey(5)}}
	accs, err := AccountsFromInfos(infos)
	require.NoError(t, err)
	assert.Equal(t, testKey(1), accs.Borrower.Key)
	assert.Equal(t, testKey(2), accs.ProgramAuthority.Key)
	assert.Equal(t, testKey(3), accs.Instructions.Key)
	assert.Equal(t, testKey(4), accs.SystemProgram.Key)
}
