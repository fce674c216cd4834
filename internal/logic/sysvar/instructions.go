package sysvar

import (
	"encoding/binary"
	"errors"
	"fmt"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/types"
)

// Instructions sysvar 的序列化布局（小端序）：
//
//	u16                     指令数量 N
//	u16 * N                 每条指令相对 data 起点的偏移
//	每条指令：
//	  u16                   账户数量 M
//	  (u8 flags, [32]byte) * M   flags: bit0=signer, bit1=writable
//	  [32]byte              program id
//	  u16                   data 长度
//	  []byte                data
//	u16                     当前执行的主指令序号（由运行时在每条主指令前写入）
const (
	flagSigner   = 1 << 0
	flagWritable = 1 << 1

	currentIndexLen = 2
)

var (
	// ErrInstructionNotPresent 表示请求的序号超出指令列表（"没有更多指令"）
	ErrInstructionNotPresent = errors.New("instruction not present")
	// ErrInvalidData 表示 sysvar 数据结构不完整或被篡改
	ErrInvalidData = errors.New("invalid instructions sysvar data")
	// ErrDataTooLarge 表示某条指令的起始偏移超出 u16 范围
	ErrDataTooLarge = errors.New("instructions sysvar too large")
)

// AccountMeta 表示指令中引用的一个账户及其权限标记
type AccountMeta struct {
	Pubkey     types.Pubkey
	IsSigner   bool
	IsWritable bool
}

// Instruction 表示交易中的一条主指令（只读元数据）
type Instruction struct {
	ProgramID types.Pubkey
	Accounts  []AccountMeta
	Data      []byte
}

// Discriminator 返回 data 前 8 字节（大端 uint64），长度不足时 ok=false
func (ix *Instruction) Discriminator() (uint64, bool) {
	if len(ix.Data) < consts.DiscriminatorLen {
		return 0, false
	}
	return binary.BigEndian.Uint64(ix.Data[:consts.DiscriminatorLen]), true
}

// AccountAt 返回第 i 个账户，越界时 ok=false
func (ix *Instruction) AccountAt(i int) (AccountMeta, bool) {
	if i < 0 || i >= len(ix.Accounts) {
		return AccountMeta{}, false
	}
	return ix.Accounts[i], true
}

// Encode 将主指令列表序列化为 instructions sysvar 数据，末尾预留 current index（初始为 0）
func Encode(instrs []Instruction) ([]byte, error) {
	if len(instrs) > 0xFFFF {
		return nil, fmt.Errorf("too many instructions: %d", len(instrs))
	}

	// 预计算总长度，一次性分配。偏移表是 u16，每条指令的起始位置都必须能被表示
	size := 2 + 2*len(instrs)
	for i := range instrs {
		if len(instrs[i].Accounts) > 0xFFFF || len(instrs[i].Data) > 0xFFFF {
			return nil, fmt.Errorf("instruction %d too large", i)
		}
		if size > 0xFFFF {
			return nil, fmt.Errorf("%w: instruction %d starts at %d", ErrDataTooLarge, i, size)
		}
		size += 2 + 33*len(instrs[i].Accounts) + 32 + 2 + len(instrs[i].Data)
	}
	size += currentIndexLen

	data := make([]byte, size)
	binary.LittleEndian.PutUint16(data[0:], uint16(len(instrs)))

	offset := 2 + 2*len(instrs)
	for i := range instrs {
		ix := &instrs[i]
		binary.LittleEndian.PutUint16(data[2+2*i:], uint16(offset))

		binary.LittleEndian.PutUint16(data[offset:], uint16(len(ix.Accounts)))
		offset += 2
		for _, acc := range ix.Accounts {
			var flags byte
			if acc.IsSigner {
				flags |= flagSigner
			}
			if acc.IsWritable {
				flags |= flagWritable
			}
			data[offset] = flags
			copy(data[offset+1:], acc.Pubkey[:])
			offset += 33
		}
		copy(data[offset:], ix.ProgramID[:])
		offset += 32
		binary.LittleEndian.PutUint16(data[offset:], uint16(len(ix.Data)))
		offset += 2
		copy(data[offset:], ix.Data)
		offset += len(ix.Data)
	}
	return data, nil
}

// StoreCurrentIndex 写入当前执行的主指令序号
func StoreCurrentIndex(data []byte, index uint16) error {
	if len(data) < currentIndexLen {
		return ErrInvalidData
	}
	binary.LittleEndian.PutUint16(data[len(data)-currentIndexLen:], index)
	return nil
}

// LoadCurrentIndex 读取当前执行的主指令序号
func LoadCurrentIndex(data []byte) (uint16, error) {
	if len(data) < currentIndexLen {
		return 0, ErrInvalidData
	}
	return binary.LittleEndian.Uint16(data[len(data)-currentIndexLen:]), nil
}

// LoadInstructionAt 反序列化第 index 条主指令。
// index 超出范围返回 ErrInstructionNotPresent；数据损坏返回 ErrInvalidData，不会 panic。
func LoadInstructionAt(data []byte, index int) (*Instruction, error) {
	r := reader{data: data}
	count, err := r.u16()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= int(count) {
		return nil, ErrInstructionNotPresent
	}

	r.pos = 2 + 2*index
	offset, err := r.u16()
	if err != nil {
		return nil, err
	}
	r.pos = int(offset)

	numAccounts, err := r.u16()
	if err != nil {
		return nil, err
	}
	ix := &Instruction{Accounts: make([]AccountMeta, 0, numAccounts)}
	for i := 0; i < int(numAccounts); i++ {
		flags, err := r.u8()
		if err != nil {
			return nil, err
		}
		key, err := r.bytes(32)
		if err != nil {
			return nil, err
		}
		meta := AccountMeta{
			IsSigner:   flags&flagSigner != 0,
			IsWritable: flags&flagWritable != 0,
		}
		copy(meta.Pubkey[:], key)
		ix.Accounts = append(ix.Accounts, meta)
	}

	programID, err := r.bytes(32)
	if err != nil {
		return nil, err
	}
	copy(ix.ProgramID[:], programID)

	dataLen, err := r.u16()
	if err != nil {
		return nil, err
	}
	payload, err := r.bytes(int(dataLen))
	if err != nil {
		return nil, err
	}
	ix.Data = append([]byte(nil), payload...)
	return ix, nil
}

// reader 带边界检查的顺序读取器
type reader struct {
	data []byte
	pos  int
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos < 0 || r.pos+n > len(r.data) {
		return nil, ErrInvalidData
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}
