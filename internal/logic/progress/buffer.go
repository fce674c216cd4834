package progress

import (
	"sync"
)

// slotBuffer 暂存待批量写入 DB 的 slot 记录
type slotBuffer struct {
	mu     sync.Mutex
	buffer []*SlotRecord
}

func newSlotBuffer() *slotBuffer {
	return &slotBuffer{}
}

func (b *slotBuffer) Add(record *SlotRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(b.buffer, record)
}

// Flush 取出全部记录并清空
func (b *slotBuffer) Flush() []*SlotRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	flushed := b.buffer
	b.buffer = nil
	return flushed
}

// Requeue 将写入失败的记录放回队首，下一轮重试
func (b *slotBuffer) Requeue(records []*SlotRecord) {
	if len(records) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buffer = append(records, b.buffer...)
}

func (b *slotBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buffer)
}
