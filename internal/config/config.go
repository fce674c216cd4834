package config

import (
	"fmt"

	"flash-swap-sol/internal/logic/dispatcher"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/mq"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/pkg/logger"
)

type LogConfig struct {
	Format   string `json:"format,default=console"` // 日志格式，支持 "console" 或 "json"
	LogDir   string `json:"log_dir,optional"`       // 日志目录，为空时只输出到 stdout
	Level    string `json:"level,default=info"`     // 日志级别：debug / info / warn / error
	Compress bool   `json:"compress,optional"`      // 是否压缩旧日志文件
}

func (c *LogConfig) ToLogOption() logger.LogOption {
	return logger.LogOption{
		Format:   c.Format,
		LogDir:   c.LogDir,
		Level:    c.Level,
		Compress: c.Compress,
	}
}

// FlashSwapConfig 描述被调用 / 被审计的 flash swap 程序
type FlashSwapConfig struct {
	ProgramID string `json:"program_id,default=JUPLdTqUdKztWJ1isGMV92W2QvmEmzs9WTJjhZe4QdJ"`
	// AuthorityBump 为 -1 时搜索 canonical bump，否则按给定 bump 派生
	AuthorityBump int `json:"authority_bump,default=-1"`
}

// Resolve 解析程序 id 并派生 escrow authority
func (c *FlashSwapConfig) Resolve() (types.Pubkey, flashloan.EscrowAuthority, error) {
	programID, err := types.TryPubkeyFromBase58(c.ProgramID)
	if err != nil {
		return types.Pubkey{}, flashloan.EscrowAuthority{}, fmt.Errorf("invalid program_id %q: %w", c.ProgramID, err)
	}

	var authority flashloan.EscrowAuthority
	switch {
	case c.AuthorityBump < 0:
		authority, err = flashloan.FindEscrowAuthority(programID)
	case c.AuthorityBump > 255:
		err = fmt.Errorf("authority_bump out of range: %d", c.AuthorityBump)
	default:
		authority, err = flashloan.NewEscrowAuthority(programID, uint8(c.AuthorityBump))
	}
	if err != nil {
		return types.Pubkey{}, flashloan.EscrowAuthority{}, err
	}
	return programID, authority, nil
}

// KafkaProducerConfig 表示 Kafka 生产者相关配置
type KafkaProducerConfig struct {
	Brokers   string `json:"brokers"`                   // Kafka broker 地址，多个用英文逗号分隔
	BatchSize int    `json:"batch_size,default=32768"`  // 批处理大小（字节）
	LingerMs  int    `json:"linger_ms,default=5"`       // 批处理最大延迟（毫秒）
	ClientID  string `json:"client_id,optional"`

	Topics struct {
		Audit string `json:"audit,default=flash-swap-audit"` // 全部审计记录
		Alert string `json:"alert,optional"`                 // 违规记录，为空时不单独发送
	} `json:"topics"`

	Partitions struct {
		Audit int `json:"audit,default=4"`
		Alert int `json:"alert,default=1"`
	} `json:"partitions"`
}

func (c *KafkaProducerConfig) ToKafkaOption() mq.KafkaProducerOption {
	topics := []mq.TopicSpec{{Topic: c.Topics.Audit, Partitions: c.Partitions.Audit}}
	if c.Topics.Alert != "" {
		topics = append(topics, mq.TopicSpec{Topic: c.Topics.Alert, Partitions: c.Partitions.Alert})
	}
	return mq.KafkaProducerOption{
		Brokers:   c.Brokers,
		BatchSize: c.BatchSize,
		LingerMs:  c.LingerMs,
		ClientID:  c.ClientID,
		Topics:    topics,
	}
}

func (c *KafkaProducerConfig) AuditTopic() dispatcher.TopicConfig {
	return dispatcher.TopicConfig{Topic: c.Topics.Audit, Partitions: c.Partitions.Audit}
}

func (c *KafkaProducerConfig) AlertTopic() dispatcher.TopicConfig {
	return dispatcher.TopicConfig{Topic: c.Topics.Alert, Partitions: c.Partitions.Alert}
}

// TimeConfig 表示各种超时配置（单位：毫秒）
type TimeConfig struct {
	SlotDispatchTimeoutMs int `json:"slot_dispatch_timeout_ms,default=3000"` // 每个 slot 的处理最大耗时（Kafka + Redis）
	EventSendTimeoutMs    int `json:"event_send_timeout_ms,default=2000"`    // 单条消息发送并等待 ack 的超时
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password,optional"`
	DB       int    `json:"db,optional"`
}

// ProgressConfig 表示审计进度管理配置
type ProgressConfig struct {
	RecentThresholdSec int `json:"recent_threshold_sec,default=60"` // 判定为“近期 block”的时间阈值（秒）
	FlushIntervalSec   int `json:"flush_interval_sec,default=5"`    // 进度批量落库间隔
	GCIntervalMin      int `json:"gc_interval_min,default=60"`      // 历史进度清理间隔
}

// SlotCheckConfig 表示缺口检测配置（通过 RPC getBlocks 校验跳过的 slot）
type SlotCheckConfig struct {
	RpcEndpoint string `json:"rpc_endpoint,optional"` // 为空时不启用
	IntervalSec int    `json:"interval_sec,default=30"`
	Lookback    int    `json:"lookback,default=2000"` // 每轮最多回看的 slot 数
}

// GrpcConfig 表示 Geyser gRPC 客户端连接配置
type GrpcConfig struct {
	Endpoint string `json:"endpoint"`          // gRPC 服务端地址
	XToken   string `json:"x_token,optional"` // x-token 认证

	// 应用级心跳
	StreamPingIntervalSec int `json:"stream_ping_interval_sec,default=10"`

	// gRPC Keepalive
	KeepalivePingIntervalSec int `json:"keepalive_ping_interval_sec,default=30"`
	KeepalivePingTimeoutSec  int `json:"keepalive_ping_timeout_sec,default=10"`

	// 窗口大小调优（大区块推送）
	InitialWindowSize     int `json:"initial_window_size,default=1073741824"`
	InitialConnWindowSize int `json:"initial_conn_window_size,default=1073741824"`

	// 消息体大小限制
	MaxCallSendMsgSize int `json:"max_call_send_msg_size,default=67108864"`
	MaxCallRecvMsgSize int `json:"max_call_recv_msg_size,default=67108864"`

	// 超时与重连策略
	ReconnectIntervalSec int `json:"reconnect_interval_sec,default=3"`
	ConnectTimeoutSec    int `json:"connect_timeout_sec,default=10"`
	SendTimeoutSec       int `json:"send_timeout_sec,default=5"`
	BlockRecvTimeoutSec  int `json:"block_recv_timeout_sec,default=30"` // 超过该时间未收到 block 则重连
	MaxLatencyWarnMs     int `json:"max_latency_warn_ms,default=3000"`  // 区块延迟告警阈值
}

// MonitorConfig 是审计监控服务的主配置
type MonitorConfig struct {
	LogConf           LogConfig           `json:"logger"`
	FlashSwap         FlashSwapConfig     `json:"flash_swap"`
	KafkaProducerConf KafkaProducerConfig `json:"kafka_producer"`
	TimeConf          TimeConfig          `json:"time_conf"`
	Redis             RedisConfig         `json:"redis"`
	PostgresDSN       string              `json:"postgres_dsn"`
	ProgressConf      ProgressConfig      `json:"progress"`
	SlotCheck         SlotCheckConfig     `json:"slot_check,optional"`
	Grpc              GrpcConfig          `json:"grpc"`
	BlockChanSize     int                 `json:"block_chan_size,default=200"`
}

// JupiterConfig 表示 Jupiter 报价与路由服务配置
type JupiterConfig struct {
	BaseUrl     string `json:"base_url,default=https://quote-api.jup.ag/v6/"`
	SlippageBps int    `json:"slippage_bps,default=50"`
	TimeoutSec  int    `json:"timeout_sec,default=10"`
}

// ClientConfig 是 flashswap 命令行客户端配置
type ClientConfig struct {
	LogConf          LogConfig       `json:"logger"`
	FlashSwap        FlashSwapConfig `json:"flash_swap"`
	RpcEndpoint      string          `json:"rpc_endpoint,default=https://api.mainnet-beta.solana.com"`
	KeypairEnv       string          `json:"keypair_env,default=FLASH_SWAP_KEYPAIR"` // base58 私钥所在环境变量
	Jupiter          JupiterConfig   `json:"jupiter"`
	ComputeUnitLimit uint32          `json:"compute_unit_limit,default=1400000"`
	FundEscrow       uint64          `json:"fund_escrow,optional"` // 大于 0 时先向 escrow 转入该数量 lamports
}
