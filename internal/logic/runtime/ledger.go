package runtime

import (
	"fmt"

	"flash-swap-sol/internal/types"
)

// Ledger 维护账户 lamports 余额。非并发安全，由 Executor 串行访问。
type Ledger struct {
	balances map[types.Pubkey]uint64
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[types.Pubkey]uint64)}
}

func (l *Ledger) Balance(key types.Pubkey) uint64 {
	return l.balances[key]
}

// SetBalance 直接设置余额（用于初始化 / 空投）
func (l *Ledger) SetBalance(key types.Pubkey, lamports uint64) {
	if lamports == 0 {
		delete(l.balances, key)
		return
	}
	l.balances[key] = lamports
}

// Transfer 从 from 转 lamports 到 to，不做签名校验
func (l *Ledger) Transfer(from, to types.Pubkey, lamports uint64) error {
	fromBalance := l.balances[from]
	if fromBalance < lamports {
		return fmt.Errorf("%w: %s has %d, need %d", ErrInsufficientFunds, from, fromBalance, lamports)
	}
	if from == to {
		return nil
	}
	toBalance := l.balances[to]
	if toBalance+lamports < toBalance {
		return ErrArithmeticOverflow
	}
	l.SetBalance(from, fromBalance-lamports)
	l.SetBalance(to, toBalance+lamports)
	return nil
}

// Snapshot 复制当前全部余额
func (l *Ledger) Snapshot() map[types.Pubkey]uint64 {
	snap := make(map[types.Pubkey]uint64, len(l.balances))
	for k, v := range l.balances {
		snap[k] = v
	}
	return snap
}

// Restore 回滚到 Snapshot 时的状态
func (l *Ledger) Restore(snap map[types.Pubkey]uint64) {
	l.balances = make(map[types.Pubkey]uint64, len(snap))
	for k, v := range snap {
		l.balances[k] = v
	}
}
