package utils

// PartitionHashBytes 从 byte slice 中选取 4 字节构造 uint32 并模 mod，用于分区选择。
// 非加密哈希，输入为签名或公钥这类均匀分布的数据。
func PartitionHashBytes(b []byte, mod uint32) uint32 {
	if len(b) < 28 || mod <= 1 {
		return 0
	}

	switch mod {
	case 2, 4, 8, 16:
		return uint32(b[27]) & (mod - 1) // 低位掩码替代取模
	}

	hash := uint32(b[7])<<24 | uint32(b[15])<<16 | uint32(b[19])<<8 | uint32(b[27])
	return hash % mod
}

// CalcCapPerPartition 根据总量和分区数，计算每个分区的预估初始容量，带一定冗余。
func CalcCapPerPartition(total, partitions, minCap int) int {
	if partitions <= 1 {
		return max(total, minCap)
	}
	if partitions < 5 {
		return max(total/2, minCap)
	}
	return max(total*3/partitions, minCap)
}
