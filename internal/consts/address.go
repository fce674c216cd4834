package consts

import "flash-swap-sol/internal/types"

// Base58 地址常量（可读性高，适合配置与日志使用）
const (
	//  Programs
	SystemProgramStr          = "11111111111111111111111111111111"
	TokenProgramStr           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramStr = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramIdStr = "ComputeBudget111111111111111111111111111111"
	JupiterV6ProgramStr       = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"

	// Sysvars
	SysvarInstructionsStr = "Sysvar1nstructions1111111111111111111111111"
	SysvarRentStr         = "SysvarRent111111111111111111111111111111111"

	// Mints
	WSOLMintStr = "So11111111111111111111111111111111111111112"
	USDCMintStr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

	// Flash swap
	FlashSwapProgramStr = "JUPLdTqUdKztWJ1isGMV92W2QvmEmzs9WTJjhZe4QdJ"
)

var (
	// Programs
	SystemProgram          = types.PubkeyFromBase58(SystemProgramStr)
	TokenProgram           = types.PubkeyFromBase58(TokenProgramStr)
	AssociatedTokenProgram = types.PubkeyFromBase58(AssociatedTokenProgramStr)
	ComputeBudgetProgram   = types.PubkeyFromBase58(ComputeBudgetProgramIdStr)
	JupiterV6Program       = types.PubkeyFromBase58(JupiterV6ProgramStr)

	// Sysvars
	SysvarInstructions = types.PubkeyFromBase58(SysvarInstructionsStr)
	SysvarRent         = types.PubkeyFromBase58(SysvarRentStr)

	// Mints
	WSOLMint = types.PubkeyFromBase58(WSOLMintStr)
	USDCMint = types.PubkeyFromBase58(USDCMintStr)

	FlashSwapProgram = types.PubkeyFromBase58(FlashSwapProgramStr)
)
