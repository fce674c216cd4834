package runtime

import (
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
)

// Transaction 待执行的交易：签名者集合 + 有序主指令列表
type Transaction struct {
	Signers      []types.Pubkey
	Instructions []sysvar.Instruction
}

// Receipt 交易执行结果，失败时同样返回（含日志与回滚后的余额）
type Receipt struct {
	Logs         []string
	PreBalances  map[types.Pubkey]uint64
	PostBalances map[types.Pubkey]uint64
}

// BalanceChange 返回某账户在交易前后的余额变化
func (r *Receipt) BalanceChange(key types.Pubkey) int64 {
	return int64(r.PostBalances[key]) - int64(r.PreBalances[key])
}

// touchedAccounts 收集交易引用的所有账户（去重，保持首次出现顺序）
func (tx *Transaction) touchedAccounts() []types.Pubkey {
	seen := make(map[types.Pubkey]struct{})
	keys := make([]types.Pubkey, 0, 8)
	add := func(k types.Pubkey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, s := range tx.Signers {
		add(s)
	}
	for i := range tx.Instructions {
		for _, acc := range tx.Instructions[i].Accounts {
			add(acc.Pubkey)
		}
	}
	return keys
}

// serializedSize 按 legacy 消息格式计算交易序列化后的字节数：
// 签名 + header + 账户表 + recent blockhash + 指令（账户以 u8 序号引用）
func (tx *Transaction) serializedSize() int {
	keys := make(map[types.Pubkey]struct{})
	for _, k := range tx.touchedAccounts() {
		keys[k] = struct{}{}
	}
	for i := range tx.Instructions {
		keys[tx.Instructions[i].ProgramID] = struct{}{}
	}

	size := shortVecLen(len(tx.Signers)) + 64*len(tx.Signers)
	size += 3 + shortVecLen(len(keys)) + 32*len(keys) + 32
	size += shortVecLen(len(tx.Instructions))
	for i := range tx.Instructions {
		ix := &tx.Instructions[i]
		size += 1 + shortVecLen(len(ix.Accounts)) + len(ix.Accounts) + shortVecLen(len(ix.Data)) + len(ix.Data)
	}
	return size
}

// shortVecLen compact-u16 长度前缀占用的字节数
func shortVecLen(n int) int {
	switch {
	case n < 0x80:
		return 1
	case n < 0x4000:
		return 2
	default:
		return 3
	}
}
