package scenario

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/runtime"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

const (
	BorrowerName = "borrower"
	EscrowName   = "escrow"
	SwapName     = "swap"
	ProxyName    = "proxy"
	ProgramName  = "program"
)

// Result 场景执行结果
type Result struct {
	Receipt  *runtime.Receipt
	Err      error
	Accounts map[string]types.Pubkey
}

// ErrorName 返回错误的短名称，用于和 Expectation.Error 比较
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	var flashErr flashloan.Error
	if errors.As(err, &flashErr) {
		return flashErr.Name()
	}
	for _, e := range []struct {
		err  error
		name string
	}{
		{runtime.ErrInsufficientFunds, "InsufficientFunds"},
		{runtime.ErrArithmeticOverflow, "ArithmeticOverflow"},
		{runtime.ErrMissingRequiredSignature, "MissingRequiredSignature"},
		{runtime.ErrUnsupportedProgramID, "UnsupportedProgramId"},
		{runtime.ErrCallDepth, "CallDepth"},
		{runtime.ErrTooManyInstructions, "TooManyInstructions"},
		{runtime.ErrTransactionTooLarge, "TransactionTooLarge"},
		{runtime.ErrInvalidInstructionData, "InvalidInstructionData"},
		{runtime.ErrNotEnoughAccountKeys, "NotEnoughAccountKeys"},
	} {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return err.Error()
}

// DeriveAddress 由名字派生确定性的测试地址
func DeriveAddress(name string) types.Pubkey {
	return types.Pubkey(sha256.Sum256([]byte("flash-swap-scenario:" + name)))
}

type runner struct {
	program  *flashloan.Program
	accounts map[string]types.Pubkey
}

// Run 在一个全新的模拟器中执行场景
func (s *Scenario) Run(programID types.Pubkey) (*Result, error) {
	authority, err := flashloan.FindEscrowAuthority(programID)
	if err != nil {
		return nil, err
	}
	r := &runner{
		program:  flashloan.NewProgram(programID, authority, flashloan.DefaultRent),
		accounts: make(map[string]types.Pubkey),
	}

	exec := runtime.NewExecutor(runtime.NewLedger())
	exec.Register(programID, runtime.FlashSwapHandler(r.program))
	exec.Register(consts.JupiterV6Program, runtime.Noop)
	exec.Register(DeriveAddress(ProxyName), runtime.Proxy)

	r.accounts[ProgramName] = programID
	r.accounts[EscrowName] = authority.Address()
	r.accounts[SwapName] = consts.JupiterV6Program
	r.accounts[ProxyName] = DeriveAddress(ProxyName)
	exec.Airdrop(authority.Address(), s.EscrowLamports)

	var signers []types.Pubkey
	declaredBorrower := false
	for _, acc := range s.Accounts {
		key := DeriveAddress(acc.Name)
		if acc.Address != "" {
			if key, err = types.TryPubkeyFromBase58(acc.Address); err != nil {
				return nil, fmt.Errorf("account %s: %w", acc.Name, err)
			}
		}
		r.accounts[acc.Name] = key
		exec.Airdrop(key, acc.Lamports)
		if acc.Signer {
			signers = append(signers, key)
		}
		if acc.Name == BorrowerName {
			declaredBorrower = true
		}
	}
	if !declaredBorrower {
		key := DeriveAddress(BorrowerName)
		r.accounts[BorrowerName] = key
		signers = append(signers, key)
	}

	ixs := make([]sysvar.Instruction, 0, len(s.Instructions))
	for i := range s.Instructions {
		ix, err := r.build(&s.Instructions[i])
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		ixs = append(ixs, ix)
	}

	receipt, execErr := exec.Execute(&runtime.Transaction{Signers: signers, Instructions: ixs})
	return &Result{Receipt: receipt, Err: execErr, Accounts: r.accounts}, nil
}

func (r *runner) resolve(name, fallback string) (types.Pubkey, error) {
	if name == "" {
		name = fallback
	}
	if key, ok := r.accounts[name]; ok {
		return key, nil
	}
	if key, err := types.TryPubkeyFromBase58(name); err == nil {
		return key, nil
	}
	key := DeriveAddress(name)
	r.accounts[name] = key
	return key, nil
}

func (r *runner) build(spec *InstructionSpec) (sysvar.Instruction, error) {
	switch spec.Kind {
	case "borrow", "repay":
		borrower, _ := r.resolve(spec.Borrower, BorrowerName)
		authority, _ := r.resolve(spec.Authority, EscrowName)
		disc := consts.BorrowDiscriminator
		if spec.Kind == "repay" {
			disc = consts.RepayDiscriminator
		}
		data := make([]byte, consts.DiscriminatorLen)
		binary.BigEndian.PutUint64(data, disc)
		return sysvar.Instruction{
			ProgramID: r.program.ID(),
			Accounts: []sysvar.AccountMeta{
				{Pubkey: borrower, IsSigner: true, IsWritable: true},
				{Pubkey: authority, IsWritable: true},
				{Pubkey: consts.SysvarInstructions},
				{Pubkey: consts.SystemProgram},
			},
			Data: data,
		}, nil

	case "swap":
		borrower, _ := r.resolve(spec.Borrower, BorrowerName)
		return sysvar.Instruction{
			ProgramID: consts.JupiterV6Program,
			Accounts:  []sysvar.AccountMeta{{Pubkey: borrower, IsSigner: true, IsWritable: true}},
		}, nil

	case "transfer":
		from, _ := r.resolve(spec.From, BorrowerName)
		to, _ := r.resolve(spec.To, EscrowName)
		data := make([]byte, 12)
		binary.LittleEndian.PutUint32(data, 2)
		binary.LittleEndian.PutUint64(data[4:], spec.Lamports)
		return sysvar.Instruction{
			ProgramID: consts.SystemProgram,
			Accounts: []sysvar.AccountMeta{
				{Pubkey: from, IsSigner: true, IsWritable: true},
				{Pubkey: to, IsWritable: true},
			},
			Data: data,
		}, nil

	case "proxy":
		if spec.Inner == nil {
			return sysvar.Instruction{}, errors.New("proxy needs an inner instruction")
		}
		inner, err := r.build(spec.Inner)
		if err != nil {
			return sysvar.Instruction{}, err
		}
		accounts := append([]sysvar.AccountMeta{{Pubkey: inner.ProgramID}}, inner.Accounts...)
		return sysvar.Instruction{ProgramID: r.accounts[ProxyName], Accounts: accounts, Data: inner.Data}, nil

	case "raw":
		program, _ := r.resolve(spec.Program, ProgramName)
		data, err := spec.data()
		if err != nil {
			return sysvar.Instruction{}, err
		}
		return sysvar.Instruction{ProgramID: program, Data: data}, nil

	default:
		return sysvar.Instruction{}, fmt.Errorf("unknown instruction kind %q", spec.Kind)
	}
}

// Check 对比执行结果与预期，不符时返回描述性错误
func (s *Scenario) Check(res *Result) error {
	gotName := ErrorName(res.Err)
	if gotName != s.Expect.Error {
		return fmt.Errorf("scenario %q: expected error %q, got %q (%v)", s.Name, s.Expect.Error, gotName, res.Err)
	}
	if res.Err != nil {
		var txErr *runtime.TxError
		if errors.As(res.Err, &txErr) && txErr.Index != s.Expect.Index {
			return fmt.Errorf("scenario %q: expected failure at instruction %d, got %d", s.Name, s.Expect.Index, txErr.Index)
		}
	}
	for _, name := range s.Expect.NetZero {
		key, ok := res.Accounts[name]
		if !ok {
			return fmt.Errorf("scenario %q: unknown account %q", s.Name, name)
		}
		if change := res.Receipt.BalanceChange(key); change != 0 {
			return fmt.Errorf("scenario %q: account %s balance changed by %d", s.Name, name, change)
		}
	}
	return nil
}
