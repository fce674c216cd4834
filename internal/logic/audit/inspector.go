package audit

import (
	"errors"
	"fmt"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/core"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/sysvar"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/pkg/logger"
)

// Inspector 用本地的 guard / scanner 规则复核链上观测到的 flash swap 交易
type Inspector struct {
	programID types.Pubkey
	authority types.Pubkey
}

func NewInspector(programID, authority types.Pubkey) *Inspector {
	return &Inspector{programID: programID, authority: authority}
}

func (in *Inspector) ProgramID() types.Pubkey {
	return in.programID
}

func toSysvar(ixs []*core.AdaptedInstruction) []sysvar.Instruction {
	out := make([]sysvar.Instruction, 0, len(ixs))
	for _, ix := range ixs {
		accounts := make([]sysvar.AccountMeta, 0, len(ix.Accounts))
		for _, acc := range ix.Accounts {
			accounts = append(accounts, sysvar.AccountMeta{
				Pubkey:     acc.Pubkey,
				IsSigner:   acc.IsSigner,
				IsWritable: acc.IsWritable,
			})
		}
		out = append(out, sysvar.Instruction{ProgramID: ix.ProgramID, Accounts: accounts, Data: ix.Data})
	}
	return out
}

func discriminatorOf(data []byte) (uint64, bool) {
	ix := sysvar.Instruction{Data: data}
	return ix.Discriminator()
}

func reasonCode(err error) uint32 {
	var fe flashloan.Error
	if errors.As(err, &fe) {
		return fe.Code()
	}
	return 0
}

// InspectTx 复核一笔交易，未触达 flash swap 程序时返回 nil。
//
// 规则：
//   - 每条主指令 borrow 按运行时看到的 instructions sysvar 重新执行 guard 与 repay 扫描
//   - inner 指令中的 borrow / repay 属于 CPI 调用，guard 会以 ProgramMismatch 拒绝
//   - 链上成功但本地判定失败，或 escrow 净减少，判定为违规
func (in *Inspector) InspectTx(tx *core.AdaptedTx) (*Record, error) {
	if !tx.TouchesProgram(in.programID) {
		return nil, nil
	}

	record := &Record{
		TxIndex:     tx.TxIndex,
		Signature:   tx.Signature,
		Failed:      tx.Failed,
		EscrowDelta: tx.SolDelta(in.authority),
	}
	if tx.TxCtx != nil {
		record.Slot = tx.TxCtx.Slot
		record.BlockTime = tx.TxCtx.BlockTime
	}

	top := tx.TopLevel()
	data, err := sysvar.Encode(toSysvar(top))
	if err != nil {
		return nil, fmt.Errorf("encode instructions sysvar: %w", err)
	}
	accessor := sysvar.NewAccessor(data)
	if n, err := accessor.Len(); err != nil || n != len(top) {
		return nil, fmt.Errorf("instructions sysvar holds %d of %d instructions: %v", n, len(top), err)
	}

	for _, ix := range tx.Instructions {
		if ix.ProgramID != in.programID {
			continue
		}
		disc, ok := discriminatorOf(ix.Data)
		if !ok {
			continue
		}
		switch disc {
		case consts.RepayDiscriminator:
			record.Repays++
			if !ix.IsTopLevel() {
				record.reject(flashloan.ErrProgramMismatch)
			}
		case consts.BorrowDiscriminator:
			loan, err := in.inspectBorrow(data, accessor, ix)
			if err != nil {
				return nil, err
			}
			record.Loans = append(record.Loans, loan)
			if loan.Reason != 0 {
				record.reject(flashloan.Error(loan.Reason))
			}
		}
	}

	if !record.Failed && (record.Reason != 0 || record.EscrowDelta < 0) {
		record.Verdict = VerdictViolation
		logger.Errorf("[audit] 违规交易: slot=%d, txIndex=%d, reason=%d, escrowDelta=%d",
			record.Slot, record.TxIndex, record.Reason, record.EscrowDelta)
	}
	return record, nil
}

func (r *Record) reject(reason flashloan.Error) {
	if r.Reason == 0 {
		r.Reason = reason.Code()
	}
}

// inspectBorrow 将 current index 设为 borrow 所属主指令后执行 guard 与扫描。
// inner 指令的 current index 仍指向外层主指令，与运行时一致。
func (in *Inspector) inspectBorrow(data []byte, accessor *sysvar.Accessor, ix *core.AdaptedInstruction) (Loan, error) {
	loan := Loan{BorrowIndex: ix.IxIndex, RepayIndex: NoRepay, Indirect: !ix.IsTopLevel()}
	if len(ix.Accounts) > consts.AccountBorrower {
		loan.Borrower = ix.Accounts[consts.AccountBorrower].Pubkey
	}

	if err := sysvar.StoreCurrentIndex(data, ix.IxIndex); err != nil {
		return loan, fmt.Errorf("store current index %d: %w", ix.IxIndex, err)
	}

	current, err := flashloan.CheckTopLevel(accessor, in.programID)
	if err != nil {
		loan.Reason = reasonCode(err)
		if loan.Reason == 0 {
			return loan, fmt.Errorf("check top level at %d: %w", ix.IxIndex, err)
		}
		return loan, nil
	}

	res := flashloan.ScanForRepay(accessor, in.programID, in.authority, current+1)
	if res.Satisfied() {
		loan.RepayIndex = int32(res.Index)
	} else {
		loan.Reason = res.Reason.Code()
	}
	return loan, nil
}
