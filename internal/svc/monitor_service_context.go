package svc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/redis/go-redis/v9"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/internal/logic/audit"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/progress"
	"flash-swap-sol/internal/mq"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/pkg/logger"
)

// MonitorServiceContext 包含审计监控服务的共享资源
type MonitorServiceContext struct {
	Config          config.MonitorConfig
	ProgramID       types.Pubkey
	Authority       flashloan.EscrowAuthority
	Inspector       *audit.Inspector
	Producer        *kafka.Producer
	Redis           *redis.Client
	DB              *sql.DB
	ProgressManager *progress.ProgressManager
}

// NewMonitorServiceContext 初始化 Kafka、Redis、PostgreSQL 与进度管理器
func NewMonitorServiceContext(c config.MonitorConfig) (*MonitorServiceContext, error) {
	programID, authority, err := c.FlashSwap.Resolve()
	if err != nil {
		return nil, err
	}

	sc := &MonitorServiceContext{
		Config:    c,
		ProgramID: programID,
		Authority: authority,
		Inspector: audit.NewInspector(programID, authority.Address()),
	}

	// 1. Kafka 生产者
	sc.Producer, err = mq.NewKafkaProducer(c.KafkaProducerConf.ToKafkaOption())
	if err != nil {
		logger.Errorf("Kafka producer 初始化失败: %v", err)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 2. Redis（slot 状态判重）
	sc.Redis = redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
	})
	if err := sc.Redis.Ping(ctx).Err(); err != nil {
		sc.Close()
		return nil, fmt.Errorf("redis ping %s: %w", c.Redis.Addr, err)
	}

	// 3. PostgreSQL（slot 进度落库）
	sc.DB, err = progress.OpenPostgres(ctx, c.PostgresDSN)
	if err != nil {
		sc.Close()
		return nil, err
	}
	dbStore := progress.NewDBProgressStore(sc.DB)
	if err := dbStore.EnsureSchema(ctx); err != nil {
		sc.Close()
		return nil, err
	}

	// 4. 进度管理器（Redis + DB + 缓冲）
	sc.ProgressManager = progress.NewProgressManager(
		progress.NewRedisProgressStore(sc.Redis),
		dbStore,
		c.ProgressConf.RecentThresholdSec,
	)

	logger.Infof("监控服务上下文初始化完成: program=%s, authority=%s (bump=%d)",
		programID, authority.Address(), authority.Bump())
	return sc, nil
}

// Close 关闭服务上下文中的资源
func (sc *MonitorServiceContext) Close() {
	if sc.Producer != nil {
		remaining := sc.Producer.Flush(5000)
		if remaining > 0 {
			logger.Warnf("Kafka producer 关闭时仍有 %d 条消息未送达", remaining)
		}
		sc.Producer.Close()
	}
	if sc.Redis != nil {
		_ = sc.Redis.Close()
	}
	if sc.DB != nil {
		_ = sc.DB.Close()
	}
}
