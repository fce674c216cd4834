package flashloan

// Rent 描述免租计算参数
type Rent struct {
	LamportsPerByteYear uint64
	ExemptionThreshold  float64
}

// 每个账户固定计入的元数据开销
const accountStorageOverhead = 128

var DefaultRent = Rent{
	LamportsPerByteYear: 3480,
	ExemptionThreshold:  2.0,
}

// MinimumBalance 返回 dataLen 字节账户的免租最低余额
func (r Rent) MinimumBalance(dataLen uint64) uint64 {
	bytes := accountStorageOverhead + dataLen
	return uint64(float64(bytes*r.LamportsPerByteYear) * r.ExemptionThreshold)
}
