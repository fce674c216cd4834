package flashloan

import (
	"fmt"

	"github.com/blocto/solana-go-sdk/common"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/types"
)

// EscrowAuthority 是程序托管资金的 PDA，seeds = ["authority", bump]。
// 它没有私钥，只能由程序通过 seeds 代签转出 lamports。
type EscrowAuthority struct {
	address types.Pubkey
	bump    uint8
}

// FindEscrowAuthority 搜索 canonical bump（从 255 递减第一个落在曲线外的值）
func FindEscrowAuthority(programID types.Pubkey) (EscrowAuthority, error) {
	addr, bump, err := common.FindProgramAddress(
		[][]byte{[]byte(consts.AuthoritySeed)},
		common.PublicKey(programID),
	)
	if err != nil {
		return EscrowAuthority{}, fmt.Errorf("find escrow authority: %w", err)
	}
	return EscrowAuthority{address: types.Pubkey(addr), bump: bump}, nil
}

// NewEscrowAuthority 用宿主给定的 bump 直接派生地址，不重新搜索 bump。
// bump 对应的点若在曲线上则返回错误。
func NewEscrowAuthority(programID types.Pubkey, bump uint8) (EscrowAuthority, error) {
	addr, err := common.CreateProgramAddress(
		[][]byte{[]byte(consts.AuthoritySeed), {bump}},
		common.PublicKey(programID),
	)
	if err != nil {
		return EscrowAuthority{}, fmt.Errorf("create escrow authority (bump=%d): %w", bump, err)
	}
	return EscrowAuthority{address: types.Pubkey(addr), bump: bump}, nil
}

func (a EscrowAuthority) Address() types.Pubkey {
	return a.address
}

func (a EscrowAuthority) Bump() uint8 {
	return a.bump
}

// signerSeeds 返回代签所需的完整 seeds（含 bump），仅供 borrow 路径使用
func (a EscrowAuthority) signerSeeds() [][]byte {
	return [][]byte{[]byte(consts.AuthoritySeed), {a.bump}}
}
