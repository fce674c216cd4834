package sysvar

import (
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"flash-swap-sol/internal/types"
)

// FromSDK 将 SDK 指令转换为 sysvar 中的指令记录
func FromSDK(ix sdktypes.Instruction) Instruction {
	accounts := make([]AccountMeta, 0, len(ix.Accounts))
	for _, acc := range ix.Accounts {
		accounts = append(accounts, AccountMeta{
			Pubkey:     types.Pubkey(acc.PubKey),
			IsSigner:   acc.IsSigner,
			IsWritable: acc.IsWritable,
		})
	}
	return Instruction{
		ProgramID: types.Pubkey(ix.ProgramID),
		Accounts:  accounts,
		Data:      ix.Data,
	}
}

// FromSDKList 批量转换
func FromSDKList(ixs []sdktypes.Instruction) []Instruction {
	out := make([]Instruction, 0, len(ixs))
	for _, ix := range ixs {
		out = append(out, FromSDK(ix))
	}
	return out
}
