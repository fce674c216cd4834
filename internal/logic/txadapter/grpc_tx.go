package txadapter

import (
	"fmt"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"

	"flash-swap-sol/internal/logic/core"
	"flash-swap-sol/internal/types"
)

// buildFullAccountKeys 构造交易中完整的账户列表并标注权限。
// 顺序：message.accountKeys，Address Lookup Table 的 writable 部分，readonly 部分。
//
// 静态账户的权限由 message header 决定：
//   - 前 NumRequiredSignatures 个为 signer，其中末尾 NumReadonlySignedAccounts 个只读
//   - 其余为非 signer，末尾 NumReadonlyUnsignedAccounts 个只读
func buildFullAccountKeys(
	header *pb.MessageHeader,
	accountKeys, loadedWritable, loadedReadonly [][]byte,
) ([]core.AccountKey, error) {
	total := len(accountKeys) + len(loadedWritable) + len(loadedReadonly)
	keys := make([]core.AccountKey, total)

	numSigners := int(header.GetNumRequiredSignatures())
	numReadonlySigned := int(header.GetNumReadonlySignedAccounts())
	numReadonlyUnsigned := int(header.GetNumReadonlyUnsignedAccounts())
	if numSigners > len(accountKeys) || numReadonlySigned > numSigners ||
		numReadonlyUnsigned > len(accountKeys)-numSigners {
		return nil, fmt.Errorf("invalid message header: signers=%d readonlySigned=%d readonlyUnsigned=%d keys=%d",
			numSigners, numReadonlySigned, numReadonlyUnsigned, len(accountKeys))
	}

	i := 0
	for _, b := range accountKeys {
		if len(b) != 32 {
			return nil, fmt.Errorf("invalid pubkey in accountKeys at index %d", i)
		}
		copy(keys[i].Pubkey[:], b)
		if i < numSigners {
			keys[i].IsSigner = true
			keys[i].IsWritable = i < numSigners-numReadonlySigned
		} else {
			keys[i].IsWritable = i < len(accountKeys)-numReadonlyUnsigned
		}
		i++
	}

	for _, b := range loadedWritable {
		if len(b) != 32 {
			return nil, fmt.Errorf("invalid pubkey in loadedWritable at index %d", i)
		}
		copy(keys[i].Pubkey[:], b)
		keys[i].IsWritable = true
		i++
	}

	for _, b := range loadedReadonly {
		if len(b) != 32 {
			return nil, fmt.Errorf("invalid pubkey in loadedReadonly at index %d", i)
		}
		copy(keys[i].Pubkey[:], b)
		i++
	}
	return keys, nil
}

func resolveAccounts(indexes []byte, keys []core.AccountKey) ([]core.AccountKey, error) {
	accounts := make([]core.AccountKey, 0, len(indexes))
	for _, idx := range indexes {
		if int(idx) >= len(keys) {
			return nil, fmt.Errorf("account index %d out of range (%d keys)", idx, len(keys))
		}
		accounts = append(accounts, keys[idx])
	}
	return accounts, nil
}

func resolveProgram(index uint32, keys []core.AccountKey) (types.Pubkey, error) {
	if int(index) >= len(keys) {
		return types.Pubkey{}, fmt.Errorf("program index %d out of range (%d keys)", index, len(keys))
	}
	return keys[index].Pubkey, nil
}

// buildAdaptedInstructions 扁平化主指令与 inner 指令。
// InnerIndex：0 表示主指令，1 及以上表示该主指令下的第 N 条 inner 指令。
func buildAdaptedInstructions(
	tx *pb.SubscribeUpdateTransactionInfo,
	keys []core.AccountKey,
) ([]*core.AdaptedInstruction, error) {
	rawInstructions := tx.Transaction.Message.Instructions
	rawInners := tx.Meta.InnerInstructions

	instructions := make([]*core.AdaptedInstruction, 0, max(len(rawInstructions)*2, 16))
	innerIndex := 0

	for i, inst := range rawInstructions {
		programID, err := resolveProgram(inst.ProgramIdIndex, keys)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		accounts, err := resolveAccounts(inst.Accounts, keys)
		if err != nil {
			return nil, fmt.Errorf("instruction %d: %w", i, err)
		}
		instructions = append(instructions, &core.AdaptedInstruction{
			IxIndex:   uint16(i),
			ProgramID: programID,
			Accounts:  accounts,
			Data:      inst.Data,
		})

		// inner 列表按主指令序号递增排列，顺序匹配即可
		if innerIndex < len(rawInners) && int(rawInners[innerIndex].Index) == i {
			for j, inner := range rawInners[innerIndex].Instructions {
				innerProgram, err := resolveProgram(inner.ProgramIdIndex, keys)
				if err != nil {
					return nil, fmt.Errorf("instruction %d.%d: %w", i, j+1, err)
				}
				innerAccounts, err := resolveAccounts(inner.Accounts, keys)
				if err != nil {
					return nil, fmt.Errorf("instruction %d.%d: %w", i, j+1, err)
				}
				instructions = append(instructions, &core.AdaptedInstruction{
					IxIndex:    uint16(i),
					InnerIndex: uint16(j + 1),
					ProgramID:  innerProgram,
					Accounts:   innerAccounts,
					Data:       inner.Data,
				})
			}
			innerIndex++
		}
	}
	return instructions, nil
}

// buildSolBalances 按 accountKeys 顺序配对 meta 中的 pre/post lamports
func buildSolBalances(meta *pb.TransactionStatusMeta, keys []core.AccountKey) map[types.Pubkey]*core.SolBalance {
	n := min(len(keys), len(meta.PreBalances), len(meta.PostBalances))
	balances := make(map[types.Pubkey]*core.SolBalance, n)
	for i := 0; i < n; i++ {
		balances[keys[i].Pubkey] = &core.SolBalance{
			Account:     keys[i].Pubkey,
			PreBalance:  meta.PreBalances[i],
			PostBalance: meta.PostBalances[i],
		}
	}
	return balances
}

// AdaptGrpcTx 将 gRPC 推送的交易解析为内部 AdaptedTx 结构：
//  1. 构建 accountKeys（含 Address Lookup）与权限；
//  2. 构建指令（主 + inner）；
//  3. 构建 SOL 余额快照。
//
// 如 panic 会被 recover 并转成 error。
func AdaptGrpcTx(txCtx *core.TxContext, tx *pb.SubscribeUpdateTransactionInfo) (_ *core.AdaptedTx, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("AdaptGrpcTx panic: %v", r)
		}
	}()

	if tx.Transaction == nil || tx.Transaction.Message == nil || tx.Meta == nil {
		return nil, fmt.Errorf("invalid transaction: missing message or meta")
	}
	msg := tx.Transaction.Message

	keys, err := buildFullAccountKeys(
		msg.Header,
		msg.AccountKeys,
		tx.Meta.LoadedWritableAddresses,
		tx.Meta.LoadedReadonlyAddresses,
	)
	if err != nil {
		return nil, fmt.Errorf("buildFullAccountKeys error: %w", err)
	}

	if len(tx.Transaction.Signatures) == 0 || len(keys) == 0 {
		return nil, fmt.Errorf("invalid transaction: missing signature or accountKeys")
	}

	signerCount := int(msg.Header.GetNumRequiredSignatures())
	if signerCount == 0 {
		return nil, fmt.Errorf("invalid signer count: %d", signerCount)
	}

	instructions, err := buildAdaptedInstructions(tx, keys)
	if err != nil {
		return nil, fmt.Errorf("buildAdaptedInstructions error: %w", err)
	}

	signers := make([][]byte, signerCount)
	for i := 0; i < signerCount; i++ {
		signers[i] = keys[i].Pubkey[:]
	}

	return &core.AdaptedTx{
		TxCtx:        txCtx,
		TxIndex:      uint32(tx.Index),
		Signature:    tx.Transaction.Signatures[0],
		Signers:      signers,
		Failed:       tx.Meta.Err != nil,
		Instructions: instructions,
		LogMessages:  tx.Meta.LogMessages,
		SolBalances:  buildSolBalances(tx.Meta, keys),
	}, nil
}
