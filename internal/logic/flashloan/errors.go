package flashloan

import "fmt"

// Error 是 flash swap 程序返回的错误码，编号沿用 Anchor 约定：
//   - 6000 起为程序自定义错误
//   - 100~3999 为账户约束 / 指令分发等框架错误
//
// 所有错误都是终止性的，出错即整笔交易回滚，不做重试。
type Error uint32

const (
	ErrAddressMismatch Error = iota + 6000
	ErrProgramMismatch
	ErrMissingRepay
	ErrIncorrectOwner // 保留编号，当前不会返回
	ErrIncorrectProgramAuthority
	ErrCannotBorrowBeforeRepay
	ErrUnknownInstruction
)

const (
	ErrInstructionFallbackNotFound Error = 101
	ErrConstraintMut               Error = 2000
	ErrConstraintSeeds             Error = 2006
	ErrAccountNotEnoughKeys        Error = 3005
	ErrInvalidProgramID            Error = 3008
	ErrAccountNotSigner            Error = 3010
)

var errorNames = map[Error]string{
	ErrAddressMismatch:             "AddressMismatch",
	ErrProgramMismatch:             "ProgramMismatch",
	ErrMissingRepay:                "MissingRepay",
	ErrIncorrectOwner:              "IncorrectOwner",
	ErrIncorrectProgramAuthority:   "IncorrectProgramAuthority",
	ErrCannotBorrowBeforeRepay:     "CannotBorrowBeforeRepay",
	ErrUnknownInstruction:          "UnknownInstruction",
	ErrInstructionFallbackNotFound: "InstructionFallbackNotFound",
	ErrConstraintMut:               "ConstraintMut",
	ErrConstraintSeeds:             "ConstraintSeeds",
	ErrAccountNotEnoughKeys:        "AccountNotEnoughKeys",
	ErrInvalidProgramID:            "InvalidProgramId",
	ErrAccountNotSigner:            "AccountNotSigner",
}

var errorMessages = map[Error]string{
	ErrAddressMismatch:             "Address Mismatch",
	ErrProgramMismatch:             "Program Mismatch",
	ErrMissingRepay:                "Missing Repay",
	ErrIncorrectOwner:              "Incorrect Owner",
	ErrIncorrectProgramAuthority:   "Incorrect Program Authority",
	ErrCannotBorrowBeforeRepay:     "Cannot Borrow Before Repay",
	ErrUnknownInstruction:          "Unknown Instruction",
	ErrInstructionFallbackNotFound: "Fallback functions are not supported",
	ErrConstraintMut:               "A mut constraint was violated",
	ErrConstraintSeeds:             "A seeds constraint was violated",
	ErrAccountNotEnoughKeys:        "Not enough account keys given to the instruction",
	ErrInvalidProgramID:            "Program ID was not as expected",
	ErrAccountNotSigner:            "The given account did not sign",
}

func (e Error) Code() uint32 {
	return uint32(e)
}

// Name 返回错误名（用于日志与审计记录）
func (e Error) Name() string {
	if name, ok := errorNames[e]; ok {
		return name
	}
	return fmt.Sprintf("Custom(%d)", uint32(e))
}

func (e Error) Error() string {
	msg, ok := errorMessages[e]
	if !ok {
		msg = "unknown error"
	}
	return fmt.Sprintf("%s: %s (%d)", e.Name(), msg, uint32(e))
}
