package runtime

import (
	"errors"
	"fmt"

	"flash-swap-sol/internal/types"
)

var (
	ErrInsufficientFunds        = errors.New("insufficient funds for transfer")
	ErrArithmeticOverflow       = errors.New("arithmetic overflow")
	ErrMissingRequiredSignature = errors.New("missing required signature for instruction")
	ErrUnsupportedProgramID     = errors.New("unsupported program id")
	ErrCallDepth                = errors.New("cross-program invocation call depth too deep")
	ErrTooManyInstructions      = errors.New("too many instructions in transaction")
	ErrTransactionTooLarge      = errors.New("transaction too large")
	ErrInvalidInstructionData   = errors.New("invalid instruction data")
	ErrNotEnoughAccountKeys     = errors.New("insufficient account keys for instruction")
)

// TxError 交易在第 Index 条主指令失败，整笔交易已回滚
type TxError struct {
	Index     int
	ProgramID types.Pubkey
	Err       error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("instruction %d (program %s) failed: %v", e.Index, e.ProgramID, e.Err)
}

func (e *TxError) Unwrap() error {
	return e.Err
}
