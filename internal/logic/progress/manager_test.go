package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStatusStore struct {
	mu       sync.Mutex
	statuses map[uint64]SlotStatus
}

func newMemoryStatusStore() *memoryStatusStore {
	return &memoryStatusStore{statuses: make(map[uint64]SlotStatus)}
}

func (m *memoryStatusStore) GetSlotStatus(_ context.Context, slot uint64) (SlotStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statuses[slot], nil
}

func (m *memoryStatusStore) MarkSlotStatus(_ context.Context, slot uint64, status SlotStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[slot] = status
	return nil
}

type memorySlotStore struct {
	rows    map[uint64]*SlotRecord
	failErr error
	gcRuns  int
}

func newMemorySlotStore() *memorySlotStore {
	return &memorySlotStore{rows: make(map[uint64]*SlotRecord)}
}

func (m *memorySlotStore) CheckSlotExists(_ context.Context, slot uint64) (bool, error) {
	r, ok := m.rows[slot]
	return ok && r.Status.Done(), nil
}

func (m *memorySlotStore) BatchUpsertSlots(_ context.Context, slots []*SlotRecord) error {
	if m.failErr != nil {
		return m.failErr
	}
	for _, s := range slots {
		m.rows[s.Slot] = s
	}
	return nil
}

func (m *memorySlotStore) DeleteOldSlots(context.Context) error {
	m.gcRuns++
	return nil
}

func newTestManager() (*ProgressManager, *memoryStatusStore, *memorySlotStore) {
	redis, db := newMemoryStatusStore(), newMemorySlotStore()
	pm := NewProgressManager(redis, db, 60)
	pm.now = func() time.Time { return time.Unix(10_000, 0) }
	return pm, redis, db
}

func TestShouldProcessSlot(t *testing.T) {
	ctx := context.Background()
	pm, redis, db := newTestManager()

	// 近期 block 不查存储
	redis.statuses[1] = SlotProcessed
	ok, err := pm.ShouldProcessSlot(ctx, 1, 9_990)
	require.NoError(t, err)
	assert.True(t, ok)

	// 旧 block：Redis 命中
	ok, err = pm.ShouldProcessSlot(ctx, 1, 100)
	require.NoError(t, err)
	assert.False(t, ok)

	// 旧 block：Redis 未命中，DB 命中后回填 Redis
	db.rows[2] = &SlotRecord{Slot: 2, Status: SlotProcessed}
	ok, err = pm.ShouldProcessSlot(ctx, 2, 100)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SlotProcessed, redis.statuses[2])

	// 旧 block：缺口 slot 需要补审
	redis.statuses[3] = SlotMissing
	ok, err = pm.ShouldProcessSlot(ctx, 3, 100)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestMarkSlotStatusAndFlush(t *testing.T) {
	ctx := context.Background()
	pm, redis, db := newTestManager()

	require.NoError(t, pm.MarkSlotStatus(ctx, &SlotRecord{Slot: 5, Status: SlotProcessed, Audited: 3, Violations: 1}))
	require.NoError(t, pm.MarkSlotStatus(ctx, &SlotRecord{Slot: 6, Status: SlotPending}))
	require.NoError(t, pm.MarkSlotStatus(ctx, &SlotRecord{Slot: 7, Status: SlotMissing, Source: SourceRpc}))

	assert.Equal(t, SlotProcessed, redis.statuses[5])
	assert.Equal(t, SlotUnknown, redis.statuses[6])
	assert.Equal(t, 2, pm.Pending())

	db.failErr = errors.New("db down")
	assert.Error(t, pm.Flush(ctx))
	assert.Equal(t, 2, pm.Pending(), "失败的记录放回缓冲区")

	db.failErr = nil
	require.NoError(t, pm.Flush(ctx))
	assert.Equal(t, 0, pm.Pending())
	require.Contains(t, db.rows, uint64(5))
	assert.Equal(t, 1, db.rows[5].Violations)
	assert.Equal(t, SlotMissing, db.rows[7].Status)
}

func TestFlushLoopFinalFlush(t *testing.T) {
	pm, _, db := newTestManager()
	require.NoError(t, pm.MarkSlotStatus(context.Background(), &SlotRecord{Slot: 8, Status: SlotInvalid}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		pm.StartFlushLoop(ctx, time.Hour)
		close(done)
	}()
	cancel()
	<-done

	assert.Contains(t, db.rows, uint64(8))
}

func TestSlotBuffer(t *testing.T) {
	b := newSlotBuffer()
	b.Add(&SlotRecord{Slot: 1})
	b.Add(&SlotRecord{Slot: 2})
	assert.Equal(t, 2, b.Len())

	flushed := b.Flush()
	require.Len(t, flushed, 2)
	assert.Equal(t, 0, b.Len())

	b.Add(&SlotRecord{Slot: 3})
	b.Requeue(flushed)
	all := b.Flush()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(1), all[0].Slot)
	assert.Equal(t, uint64(3), all[2].Slot)
}

func TestBuildUpsert(t *testing.T) {
	query, args := buildUpsert([]*SlotRecord{
		{Slot: 10, Source: SourceGrpc, BlockTime: 1, Status: SlotProcessed, Audited: 2},
		{Slot: 11, Source: SourceRpc, BlockTime: 2, Status: SlotMissing},
	})
	assert.Contains(t, query, "($1,$2,$3,$4,$5,$6,CURRENT_TIMESTAMP),($7,$8,$9,$10,$11,$12,CURRENT_TIMESTAMP)")
	assert.Contains(t, query, "ON CONFLICT (slot) DO UPDATE")
	require.Len(t, args, 12)
	assert.Equal(t, int64(10), args[0])
	assert.Equal(t, int(SlotMissing), args[9])
}

func TestSlotStatusString(t *testing.T) {
	assert.Equal(t, "missing", SlotMissing.String())
	assert.Equal(t, "unknown", SlotUnknown.String())
	assert.True(t, SlotInvalid.Done())
	assert.False(t, SlotMissing.Done())
	assert.Equal(t, "rpc", SourceName(SourceRpc))
}
