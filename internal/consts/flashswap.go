package consts

// AuthoritySeed 是 escrow authority PDA 的固定 seed
const AuthoritySeed = "authority"

// Anchor 指令 discriminator：sha256("global:<name>")[:8]，按大端读成 uint64 便于 switch
const (
	BorrowDiscriminator uint64 = 0xe4fd83cacf745912
	RepayDiscriminator  uint64 = 0xea674352d0eadba6
)

// DiscriminatorLen 指令 data 前 8 字节为方法 ID
const DiscriminatorLen = 8

// Borrow / Repay 指令账户布局（两者相同）：
//  0. borrower          [signer]
//  1. program authority [writable]
//  2. instructions sysvar
//  3. system program
const (
	AccountBorrower = iota
	AccountProgramAuthority
	AccountInstructions
	AccountSystemProgram

	FlashSwapAccountCount
)

const (
	// TokenAccountSize SPL Token 账户数据长度，借出金额 = 该大小的免租最低余额
	TokenAccountSize = 165

	// MaxTxInstructions 单笔交易内指令数上限（模拟器使用）
	MaxTxInstructions = 64

	// MaxTxSize 序列化后的交易字节数上限（packet data size）
	MaxTxSize = 1232
)
