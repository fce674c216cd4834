package audit

import (
	"github.com/near/borsh-go"

	"flash-swap-sol/internal/types"
)

// Verdict 表示审计结论
type Verdict uint8

const (
	// VerdictConsistent 链上结果与本地规则判定一致
	VerdictConsistent Verdict = iota
	// VerdictViolation 链上成功执行，但违反了借还不变量
	VerdictViolation
)

func (v Verdict) String() string {
	switch v {
	case VerdictConsistent:
		return "consistent"
	case VerdictViolation:
		return "violation"
	default:
		return "unknown"
	}
}

// NoRepay 表示未找到配对的 repay
const NoRepay int32 = -1

// Loan 记录交易中的一次 borrow 及其判定结果
type Loan struct {
	BorrowIndex uint16       // 所属主指令序号
	RepayIndex  int32        // 配对的 repay 主指令序号，NoRepay 表示不存在
	Borrower    types.Pubkey // 账户位置 0
	Indirect    bool         // 经由 CPI 调用（inner 指令）
	Reason      uint32       // 本地规则给出的错误码，0 表示通过
}

// Record 是一笔触达 flash swap 程序的交易的审计结果，以 borsh 编码写入 Kafka
type Record struct {
	Slot        uint64
	BlockTime   int64
	TxIndex     uint32
	Signature   []byte
	Failed      bool  // 链上执行失败
	EscrowDelta int64 // escrow authority 的 lamports 净变化
	Repays      uint16
	Loans       []Loan
	Verdict     Verdict
	Reason      uint32 // 第一个被拒绝的错误码，0 表示本地规则认为可以成功
}

// Violation 是否为违反不变量的记录
func (r *Record) Violation() bool {
	return r.Verdict == VerdictViolation
}

func (r *Record) Encode() ([]byte, error) {
	return borsh.Serialize(*r)
}

func DecodeRecord(data []byte) (*Record, error) {
	var r Record
	if err := borsh.Deserialize(&r, data); err != nil {
		return nil, err
	}
	return &r, nil
}
