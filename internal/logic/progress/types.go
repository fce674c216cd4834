package progress

// SlotStatus 表示 slot 的处理状态（Redis 与 DB 统一编码）
type SlotStatus int

const (
	SlotUnknown   SlotStatus = 0 // Redis 不存在
	SlotProcessed SlotStatus = 1 // 已审计并写入 Kafka
	SlotInvalid   SlotStatus = 2 // 区块结构错误、跳过
	SlotPending   SlotStatus = 3 // 处理中（仅 Redis 用）
	SlotMissing   SlotStatus = 4 // 缺口检测发现未收到的 slot，需要补审
)

func (s SlotStatus) String() string {
	switch s {
	case SlotProcessed:
		return "processed"
	case SlotInvalid:
		return "invalid"
	case SlotPending:
		return "pending"
	case SlotMissing:
		return "missing"
	default:
		return "unknown"
	}
}

// Done 表示该 slot 不需要再处理
func (s SlotStatus) Done() bool {
	return s == SlotProcessed || s == SlotInvalid
}

// Source 表示进度来源模块
const (
	SourceUnknown int16 = 0
	SourceGrpc    int16 = 1
	SourceRpc     int16 = 2 // 缺口检测（RPC getBlocks）
)

func SourceName(src int16) string {
	switch src {
	case SourceGrpc:
		return "grpc"
	case SourceRpc:
		return "rpc"
	default:
		return "unknown"
	}
}

// SlotRecord 表示一条待写入 DB 的 slot 记录
type SlotRecord struct {
	Slot       uint64
	Source     int16
	BlockTime  int64 // Unix 秒
	Status     SlotStatus
	Audited    int // 本 slot 审计的交易数
	Violations int // 违规交易数
}
