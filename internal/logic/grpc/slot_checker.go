package grpc

import (
	"context"
	"sort"
	"time"

	"github.com/blocto/solana-go-sdk/rpc"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/pkg/logger"
)

// SlotRange 是一段待核对的 slot 闭区间 [From, To]
type SlotRange struct {
	From     uint64
	To       uint64
	SubmitAt time.Time
}

// BlockLister 返回区间内实际产出区块的 slot 列表（RPC getBlocks）
type BlockLister interface {
	GetBlocks(ctx context.Context, from, to uint64) ([]uint64, error)
}

type rpcBlockLister struct {
	client rpc.RpcClient
}

func (l rpcBlockLister) GetBlocks(ctx context.Context, from, to uint64) ([]uint64, error) {
	resp, err := l.client.GetBlocks(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

const (
	maxRangeSize     = 10000 // 单次 getBlocks 的最大区间
	maxPendingRanges = 200
)

// SlotChecker 核对 gRPC 推送中跳过的 slot：
// 跳过的 slot 若在 RPC 上有区块，说明该区块漏收，需要补审。
type SlotChecker struct {
	lister    BlockLister
	rangeCh   chan SlotRange
	onMissing func(slot uint64)
	delay     time.Duration // 提交后等待多久再核对，保证 RPC 侧区块已确认
	interval  time.Duration
	lookback  uint64
	ctx       context.Context
	cancel    context.CancelFunc
}

func NewSlotChecker(cfg config.SlotCheckConfig, onMissing func(slot uint64)) *SlotChecker {
	return newSlotChecker(rpcBlockLister{client: rpc.NewRpcClient(cfg.RpcEndpoint)}, cfg, onMissing)
}

func newSlotChecker(lister BlockLister, cfg config.SlotCheckConfig, onMissing func(slot uint64)) *SlotChecker {
	ctx, cancel := context.WithCancel(context.Background())
	return &SlotChecker{
		lister:    lister,
		rangeCh:   make(chan SlotRange, 300),
		onMissing: onMissing,
		delay:     time.Duration(cfg.IntervalSec) * time.Second,
		interval:  max(time.Duration(cfg.IntervalSec)*time.Second/3, time.Second),
		lookback:  uint64(max(cfg.Lookback, 1)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *SlotChecker) Start() {
	s.run()
}

func (s *SlotChecker) Stop() {
	s.cancel()
}

// Submit 提交一段跳过的 slot，超过 lookback 时只保留最近的部分
func (s *SlotChecker) Submit(from, to uint64) {
	if from > to {
		logger.Warnf("[SlotChecker] invalid slot range: from (%d) > to (%d)", from, to)
		return
	}
	if to-from+1 > s.lookback {
		logger.Warnf("[SlotChecker] range [%d, %d] exceeds lookback %d, truncated", from, to, s.lookback)
		from = to - s.lookback + 1
	}

	select {
	case s.rangeCh <- SlotRange{From: from, To: to, SubmitAt: time.Now()}:
	default:
		logger.Warnf("[SlotChecker] slot range channel full, dropped: [%d, %d]", from, to)
	}
}

func (s *SlotChecker) run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var ranges []SlotRange
	for {
		select {
		case <-s.ctx.Done():
			logger.Infof("[SlotChecker] stopped")
			return

		case r := <-s.rangeCh:
			if len(ranges) >= maxPendingRanges {
				logger.Warnf("[SlotChecker] too many pending ranges (%d), drop [%d, %d]", len(ranges), r.From, r.To)
				continue
			}
			ranges = append(ranges, r)

		case now := <-ticker.C:
			var ready, pending []SlotRange
			for _, r := range ranges {
				if now.Sub(r.SubmitAt) >= s.delay {
					ready = append(ready, r)
				} else {
					pending = append(pending, r)
				}
			}
			ranges = pending
			if len(ready) > 0 {
				// 串行执行，防止 goroutine 累积
				s.checkSlotRanges(ready)
			}
		}
	}
}

// checkSlotRanges 查询 RPC 并返回漏收的 slot（升序）
func (s *SlotChecker) checkSlotRanges(ranges []SlotRange) []uint64 {
	submitted := make(map[uint64]struct{})
	for _, r := range ranges {
		for slot := r.From; slot <= r.To; slot++ {
			submitted[slot] = struct{}{}
		}
	}

	var missing []uint64
	for _, r := range mergeRanges(ranges) {
		if s.ctx.Err() != nil {
			return missing
		}

		blocks, err := s.getBlocksWithRetry(r.From, r.To, 3)
		if err != nil {
			logger.Warnf("[SlotChecker] getBlocks [%d, %d] failed after retries: %v", r.From, r.To, err)
			continue
		}
		for _, slot := range blocks {
			if _, ok := submitted[slot]; ok {
				missing = append(missing, slot)
			}
		}
	}

	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	for _, slot := range missing {
		logger.Errorf("[SlotChecker] slot %d 有区块但未收到，疑似漏扫", slot)
		if s.onMissing != nil {
			s.onMissing(slot)
		}
	}
	return missing
}

func (s *SlotChecker) getBlocksWithRetry(from, to uint64, maxRetries int) (_ []uint64, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("[SlotChecker] panic during getBlocks: %v", r)
			err = context.Canceled
		}
	}()

	delay := 300 * time.Millisecond
	for attempt := 1; ; attempt++ {
		ctx, cancel := context.WithTimeout(s.ctx, 6*time.Second)
		blocks, err := s.lister.GetBlocks(ctx, from, to)
		cancel()
		if err == nil {
			return blocks, nil
		}
		if attempt >= maxRetries || s.ctx.Err() != nil {
			return nil, err
		}
		time.Sleep(delay)
	}
}

// mergeRanges 拆分并合并 SlotRange，使每段长度不超过 maxRangeSize，且尽可能合并相邻段。
// 合并后的段可能覆盖原区间之间的空隙，调用方需按原区间过滤结果。
func mergeRanges(ranges []SlotRange) []SlotRange {
	if len(ranges) == 0 {
		return nil
	}

	// 拆分
	split := make([]SlotRange, 0, len(ranges))
	for _, r := range ranges {
		for from := r.From; ; {
			maxTo := from + maxRangeSize - 1
			if r.To <= maxTo {
				split = append(split, SlotRange{From: from, To: r.To, SubmitAt: r.SubmitAt})
				break
			}
			split = append(split, SlotRange{From: from, To: maxTo, SubmitAt: r.SubmitAt})
			from = maxTo + 1
		}
	}

	sort.Slice(split, func(i, j int) bool {
		if split[i].From == split[j].From {
			return split[i].To < split[j].To
		}
		return split[i].From < split[j].From
	})

	// 合并
	merged := make([]SlotRange, 1, len(split))
	merged[0] = split[0]
	for _, r := range split[1:] {
		last := &merged[len(merged)-1]
		if r.To <= last.To {
			continue // 被完全覆盖
		}
		maxTo := last.From + maxRangeSize - 1
		if r.To <= maxTo {
			last.To = r.To
			continue
		}
		from := max(r.From, last.To+1)
		if last.To < maxTo && r.From <= maxTo {
			last.To = maxTo
			from = maxTo + 1
		}
		merged = append(merged, SlotRange{From: from, To: r.To, SubmitAt: r.SubmitAt})
	}
	return merged
}
