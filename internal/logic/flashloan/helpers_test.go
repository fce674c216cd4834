package flashloan

import (
	"encoding/binary"
	"testing"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"

	"github.com/stretchr/testify/require"
)

func testKey(b byte) types.Pubkey {
	var p types.Pubkey
	p[0] = b
	p[31] = b
	return p
}

var (
	testBorrower = testKey(1)
	testSwapper  = testKey(7)
)

func discriminator(v uint64) []byte {
	data := make([]byte, consts.DiscriminatorLen)
	binary.BigEndian.PutUint64(data, v)
	return data
}

func flashIx(disc uint64, authority types.Pubkey) sysvar.Instruction {
	return sysvar.Instruction{
		ProgramID: consts.FlashSwapProgram,
		Accounts: []sysvar.AccountMeta{
			{Pubkey: testBorrower, IsSigner: true, IsWritable: true},
			{Pubkey: authority, IsWritable: true},
			{Pubkey: consts.SysvarInstructions},
			{Pubkey: consts.SystemProgram},
		},
		Data: discriminator(disc),
	}
}

func borrowIx(authority types.Pubkey) sysvar.Instruction {
	return flashIx(consts.BorrowDiscriminator, authority)
}

func repayIx(authority types.Pubkey) sysvar.Instruction {
	return flashIx(consts.RepayDiscriminator, authority)
}

func swapIx() sysvar.Instruction {
	return sysvar.Instruction{
		ProgramID: testSwapper,
		Accounts:  []sysvar.AccountMeta{{Pubkey: testBorrower, IsSigner: true, IsWritable: true}},
		Data:      []byte{0xde, 0xad},
	}
}

// listIntrospector 直接基于内存列表的 Introspector
type listIntrospector struct {
	current int
	ixs     []sysvar.Instruction
}

func (l *listIntrospector) CurrentIndex() (int, error) {
	return l.current, nil
}

func (l *listIntrospector) InstructionAt(index int) (*sysvar.Instruction, error) {
	if index < 0 || index >= len(l.ixs) {
		return nil, sysvar.ErrInstructionNotPresent
	}
	return &l.ixs[index], nil
}

type transferCall struct {
	From, To types.Pubkey
	Amount   uint64
	Seeds    [][]byte
	Signed   bool
}

// recordingSystem 记录转账调用，err 非空时所有转账都失败
type recordingSystem struct {
	calls []transferCall
	err   error
}

func (s *recordingSystem) Transfer(from, to types.Pubkey, lamports uint64) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, transferCall{From: from, To: to, Amount: lamports})
	return nil
}

func (s *recordingSystem) TransferSigned(from, to types.Pubkey, lamports uint64, seeds [][]byte) error {
	if s.err != nil {
		return s.err
	}
	s.calls = append(s.calls, transferCall{From: from, To: to, Amount: lamports, Seeds: seeds, Signed: true})
	return nil
}

func testAuthority(t *testing.T) EscrowAuthority {
	t.Helper()
	authority, err := FindEscrowAuthority(consts.FlashSwapProgram)
	require.NoError(t, err)
	return authority
}

// newTestContext 构造执行第 current 条指令时的上下文
func newTestContext(t *testing.T, authority types.Pubkey, ixs []sysvar.Instruction, current int) (*Context, *recordingSystem) {
	t.Helper()
	data, err := sysvar.Encode(ixs)
	require.NoError(t, err)
	require.NoError(t, sysvar.StoreCurrentIndex(data, uint16(current)))

	system := &recordingSystem{}
	ctx := &Context{
		Accounts: Accounts{
			Borrower:         AccountInfo{Key: testBorrower, IsSigner: true, IsWritable: true},
			ProgramAuthority: AccountInfo{Key: authority, IsWritable: true},
			Instructions:     AccountInfo{Key: consts.SysvarInstructions, Data: data},
			SystemProgram:    AccountInfo{Key: consts.SystemProgram},
		},
		System: system,
	}
	return ctx, system
}
