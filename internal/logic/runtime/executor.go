package runtime

import (
	"fmt"
	"sync"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/pkg/logger"
)

// Handler 是程序的执行入口
type Handler interface {
	Process(ic *InvokeContext, ix *sysvar.Instruction) error
}

// HandlerFunc 适配普通函数为 Handler
type HandlerFunc func(ic *InvokeContext, ix *sysvar.Instruction) error

func (f HandlerFunc) Process(ic *InvokeContext, ix *sysvar.Instruction) error {
	return f(ic, ix)
}

// Executor 按顺序执行交易中的主指令，任一指令失败则整笔交易回滚。
// 同一 Executor 上的交易串行执行。
type Executor struct {
	mu       sync.Mutex
	ledger   *Ledger
	handlers map[types.Pubkey]Handler
}

// NewExecutor 创建执行器，默认注册 System Program
func NewExecutor(ledger *Ledger) *Executor {
	e := &Executor{
		ledger:   ledger,
		handlers: make(map[types.Pubkey]Handler),
	}
	e.handlers[consts.SystemProgram] = HandlerFunc(processSystem)
	return e
}

// Register 注册（或覆盖）某程序的 Handler
func (e *Executor) Register(programID types.Pubkey, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[programID] = h
}

// Balance 读取账户余额
func (e *Executor) Balance(key types.Pubkey) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(key)
}

// Airdrop 直接给账户加 lamports（测试与场景初始化使用）
func (e *Executor) Airdrop(key types.Pubkey, lamports uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ledger.SetBalance(key, e.ledger.Balance(key)+lamports)
}

// Execute 原子执行一笔交易。
// 失败时余额回滚到执行前，返回 *TxError；Receipt 在两种情况下都非空。
func (e *Executor) Execute(tx *Transaction) (*Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	touched := tx.touchedAccounts()
	receipt := &Receipt{PreBalances: e.balancesOf(touched)}
	defer func() {
		receipt.PostBalances = e.balancesOf(touched)
	}()

	if len(tx.Instructions) > consts.MaxTxInstructions {
		return receipt, &TxError{Index: consts.MaxTxInstructions, Err: ErrTooManyInstructions}
	}
	if size := tx.serializedSize(); size > consts.MaxTxSize {
		return receipt, &TxError{Err: fmt.Errorf("%w: %d > %d bytes", ErrTransactionTooLarge, size, consts.MaxTxSize)}
	}

	signers := make(map[types.Pubkey]bool, len(tx.Signers))
	for _, s := range tx.Signers {
		signers[s] = true
	}
	for i := range tx.Instructions {
		for _, acc := range tx.Instructions[i].Accounts {
			if acc.IsSigner && !signers[acc.Pubkey] {
				return receipt, &TxError{
					Index:     i,
					ProgramID: tx.Instructions[i].ProgramID,
					Err:       fmt.Errorf("%w: %s", ErrMissingRequiredSignature, acc.Pubkey),
				}
			}
		}
	}

	sysvarData, err := sysvar.Encode(tx.Instructions)
	if err != nil {
		return receipt, &TxError{Err: err}
	}

	snapshot := e.ledger.Snapshot()
	for i := range tx.Instructions {
		ix := &tx.Instructions[i]
		if err = sysvar.StoreCurrentIndex(sysvarData, uint16(i)); err != nil {
			e.ledger.Restore(snapshot)
			return receipt, &TxError{Index: i, ProgramID: ix.ProgramID, Err: err}
		}

		ic := &InvokeContext{
			exec:       e,
			programID:  ix.ProgramID,
			signers:    instructionSigners(ix),
			depth:      1,
			sysvarData: sysvarData,
			logs:       &receipt.Logs,
		}
		if err = ic.run(ix); err != nil {
			e.ledger.Restore(snapshot)
			logger.Debugf("[runtime:Execute] 交易回滚, index=%d, program=%s, err=%v", i, ix.ProgramID, err)
			return receipt, &TxError{Index: i, ProgramID: ix.ProgramID, Err: err}
		}
	}
	return receipt, nil
}

func (e *Executor) balancesOf(keys []types.Pubkey) map[types.Pubkey]uint64 {
	m := make(map[types.Pubkey]uint64, len(keys))
	for _, k := range keys {
		m[k] = e.ledger.Balance(k)
	}
	return m
}

func instructionSigners(ix *sysvar.Instruction) map[types.Pubkey]bool {
	signers := make(map[types.Pubkey]bool)
	for _, acc := range ix.Accounts {
		if acc.IsSigner {
			signers[acc.Pubkey] = true
		}
	}
	return signers
}
