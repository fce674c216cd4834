package core

import (
	"flash-swap-sol/internal/types"
)

// TxContext 表示交易所属区块的上下文信息
type TxContext struct {
	BlockTime   int64      // 区块时间戳（Unix 秒）
	Slot        uint64     // 当前 Slot
	ParentSlot  uint64     // 父 Slot（用于检测跳过的 slot）
	BlockHeight uint64     // 区块高度
	BlockHash   types.Hash // 区块哈希
}

// AccountKey 是指令中引用的账户及其在消息中的权限。
// 权限由 message header 与 Address Lookup Table 的 writable/readonly 分区推导。
type AccountKey struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// AdaptedInstruction 表示一条主指令或 inner 指令。
// 所有指令已按执行顺序展平，IxIndex 为所属主指令序号，InnerIndex 为 0 表示主指令本身。
type AdaptedInstruction struct {
	IxIndex    uint16
	InnerIndex uint16
	ProgramID  types.Pubkey
	Accounts   []AccountKey
	Data       []byte
}

// IsTopLevel 是否为主指令（出现在 instructions sysvar 中）
func (ix *AdaptedInstruction) IsTopLevel() bool {
	return ix.InnerIndex == 0
}

// SolBalance 记录某账户在交易执行前后的 lamports
type SolBalance struct {
	PreBalance  uint64
	PostBalance uint64
	Account     types.Pubkey
}

// Delta 返回余额净变化（post - pre）
func (b *SolBalance) Delta() int64 {
	return int64(b.PostBalance) - int64(b.PreBalance)
}

// AdaptedTx 表示已解析的链上交易，是审计流程的输入结构体。
type AdaptedTx struct {
	TxCtx     *TxContext
	TxIndex   uint32
	Signature []byte   // 交易签名（64 字节原始数据）
	Signers   [][]byte // 交易签名者列表
	Failed    bool     // 链上执行失败（meta.err 非空），状态已整体回滚

	// Instructions 为展平后的全部指令（主指令 + inner 指令）
	Instructions []*AdaptedInstruction

	LogMessages []string

	// SolBalances 记录交易涉及账户的 lamports 快照
	SolBalances map[types.Pubkey]*SolBalance
}

// TopLevel 返回主指令列表，顺序即主指令序号
func (tx *AdaptedTx) TopLevel() []*AdaptedInstruction {
	out := make([]*AdaptedInstruction, 0, len(tx.Instructions))
	for _, ix := range tx.Instructions {
		if ix.IsTopLevel() {
			out = append(out, ix)
		}
	}
	return out
}

// TouchesProgram 判断交易中是否有任意指令（含 inner）调用了 programID
func (tx *AdaptedTx) TouchesProgram(programID types.Pubkey) bool {
	for _, ix := range tx.Instructions {
		if ix.ProgramID == programID {
			return true
		}
	}
	return false
}

// SolDelta 返回账户余额净变化，交易未涉及该账户时返回 0
func (tx *AdaptedTx) SolDelta(account types.Pubkey) int64 {
	if b, ok := tx.SolBalances[account]; ok {
		return b.Delta()
	}
	return 0
}
