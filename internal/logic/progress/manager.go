package progress

import (
	"context"
	"time"

	"flash-swap-sol/pkg/logger"
)

// StatusStore 是高频判重存储（Redis）
type StatusStore interface {
	GetSlotStatus(ctx context.Context, slot uint64) (SlotStatus, error)
	MarkSlotStatus(ctx context.Context, slot uint64, status SlotStatus) error
}

// SlotStore 是持久化存储（Postgres）
type SlotStore interface {
	CheckSlotExists(ctx context.Context, slot uint64) (bool, error)
	BatchUpsertSlots(ctx context.Context, slots []*SlotRecord) error
	DeleteOldSlots(ctx context.Context) error
}

// ProgressManager 统一封装 Redis + DB + 缓冲区，控制 slot 判重与写入
type ProgressManager struct {
	redis           StatusStore
	db              SlotStore
	buffer          *slotBuffer
	recentThreshold time.Duration
	now             func() time.Time
}

func NewProgressManager(redis StatusStore, db SlotStore, recentThresholdSec int) *ProgressManager {
	return &ProgressManager{
		redis:           redis,
		db:              db,
		buffer:          newSlotBuffer(),
		recentThreshold: time.Duration(recentThresholdSec) * time.Second,
		now:             time.Now,
	}
}

// ShouldProcessSlot 判断 slot 是否需要审计：
//   - 近期 block 直接处理（实时推送几乎不会重复）
//   - 旧 block（重连回放）先查 Redis，再 fallback 到 DB
func (pm *ProgressManager) ShouldProcessSlot(ctx context.Context, slot uint64, blockTime int64) (bool, error) {
	if pm.now().Sub(time.Unix(blockTime, 0)) <= pm.recentThreshold {
		return true, nil
	}

	status, err := pm.redis.GetSlotStatus(ctx, slot)
	if err != nil {
		return false, err
	}
	if status.Done() {
		return false, nil
	}

	exists, err := pm.db.CheckSlotExists(ctx, slot)
	if err != nil {
		return false, err
	}
	if exists {
		if err := pm.redis.MarkSlotStatus(ctx, slot, SlotProcessed); err != nil {
			logger.Warnf("[progress] 回填 Redis 失败: slot=%d, err=%v", slot, err)
		}
		return false, nil
	}
	return true, nil
}

// MarkSlotStatus 更新 Redis 状态并放入缓冲区，等待批量写入 DB
func (pm *ProgressManager) MarkSlotStatus(ctx context.Context, record *SlotRecord) error {
	switch record.Status {
	case SlotProcessed, SlotInvalid, SlotMissing:
	default:
		return nil // Unknown / Pending 不落库
	}

	if err := pm.redis.MarkSlotStatus(ctx, record.Slot, record.Status); err != nil {
		return err
	}
	pm.buffer.Add(record)
	return nil
}

// Flush 立即将缓冲区写入 DB，失败的记录放回缓冲区
func (pm *ProgressManager) Flush(ctx context.Context) error {
	flushed := pm.buffer.Flush()
	if len(flushed) == 0 {
		return nil
	}
	if err := pm.db.BatchUpsertSlots(ctx, flushed); err != nil {
		pm.buffer.Requeue(flushed)
		return err
	}
	logger.Debugf("[progress] flushed %d slot records", len(flushed))
	return nil
}

// Pending 返回缓冲区中尚未落库的记录数
func (pm *ProgressManager) Pending() int {
	return pm.buffer.Len()
}

// StartFlushLoop 定时 flush，ctx 取消时做最后一次 flush 后返回
func (pm *ProgressManager) StartFlushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := pm.Flush(final); err != nil {
				logger.Errorf("[progress] final flush failed: pending=%d, err=%v", pm.Pending(), err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := pm.Flush(ctx); err != nil {
				logger.Errorf("[progress] flush failed: pending=%d, err=%v", pm.Pending(), err)
			}
		}
	}
}

// StartGCLoop 定时清理历史 slot 记录
func (pm *ProgressManager) StartGCLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := pm.db.DeleteOldSlots(ctx); err != nil {
				logger.Errorf("[progress] GC failed: %v", err)
			}
		}
	}
}
