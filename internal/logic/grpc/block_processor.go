package grpc

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/logx"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/audit"
	"flash-swap-sol/internal/logic/core"
	"flash-swap-sol/internal/logic/dispatcher"
	"flash-swap-sol/internal/logic/progress"
	"flash-swap-sol/internal/logic/txadapter"
	"flash-swap-sol/internal/mq"
	"flash-swap-sol/internal/svc"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/internal/utils"
)

type sendFunc func(ctx context.Context, jobs []*mq.KafkaJob) ([]*mq.KafkaJob, []mq.KafkaSendResult)

type BlockProcessor struct {
	sc          *svc.MonitorServiceContext
	blockChan   <-chan *pb.SubscribeUpdateBlock
	slotChecker *SlotChecker // 可为 nil
	lastSlot    uint64
	send        sendFunc
	ctx         context.Context
	cancel      func(err error)
	logx.Logger
}

func NewBlockProcessor(sc *svc.MonitorServiceContext, blockChan <-chan *pb.SubscribeUpdateBlock, slotChecker *SlotChecker) *BlockProcessor {
	ctx, cancel := context.WithCancelCause(context.Background())
	p := &BlockProcessor{
		sc:          sc,
		blockChan:   blockChan,
		slotChecker: slotChecker,
		Logger:      logx.WithContext(ctx).WithFields(logx.Field("service", "block_processor")),
		ctx:         ctx,
		cancel:      cancel,
	}
	p.send = func(ctx context.Context, jobs []*mq.KafkaJob) ([]*mq.KafkaJob, []mq.KafkaSendResult) {
		timeout := time.Duration(sc.Config.TimeConf.EventSendTimeoutMs) * time.Millisecond
		return mq.SendKafkaJobs(ctx, sc.Producer, jobs, timeout)
	}
	return p
}

func (p *BlockProcessor) Start() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case block := <-p.blockChan:
			p.procBlock(block)
			if len(p.blockChan) > 10 {
				p.Debugf("block chan len:%v", len(p.blockChan))
			}
		}
	}
}

func (p *BlockProcessor) Stop() {
	p.cancel(errors.New("service stop"))
}

func (p *BlockProcessor) procBlock(block *pb.SubscribeUpdateBlock) {
	startTime := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.Errorf("区块处理 panic: slot=%d, err=%v, stack=%s", block.Slot, r, debug.Stack())
		}
	}()

	txCtx := buildTxContext(block)
	p.observeSlot(block.Slot)

	ctx, cancel := context.WithTimeout(p.ctx, time.Duration(p.sc.Config.TimeConf.SlotDispatchTimeoutMs)*time.Millisecond)
	defer cancel()

	pm := p.sc.ProgressManager
	if pm != nil {
		should, err := pm.ShouldProcessSlot(ctx, block.Slot, txCtx.BlockTime)
		if err != nil {
			p.Errorf("判重失败，继续处理: slot=%d, err=%v", block.Slot, err)
		} else if !should {
			p.Debugf("slot %d 已处理，跳过", block.Slot)
			return
		}
	}

	records := p.auditBlock(txCtx, block)

	violations := 0
	for _, r := range records {
		if r.Violation() {
			violations++
		}
	}

	status := progress.SlotProcessed
	jobs, err := dispatcher.BuildAuditKafkaJobs(block.Slot, records,
		p.sc.Config.KafkaProducerConf.AuditTopic(), p.sc.Config.KafkaProducerConf.AlertTopic())
	if err != nil {
		p.Errorf("构建 Kafka 消息失败: slot=%d, err=%v", block.Slot, err)
		status = progress.SlotInvalid
	} else if len(jobs) > 0 {
		_, failed := p.send(ctx, jobs)
		if len(failed) > 0 {
			// 不标记进度，回放时重新处理
			p.Errorf("Kafka 发送失败: slot=%d, failed=%d/%d", block.Slot, len(failed), len(jobs))
			return
		}
	}

	if pm != nil {
		err := pm.MarkSlotStatus(ctx, &progress.SlotRecord{
			Slot:       block.Slot,
			Source:     progress.SourceGrpc,
			BlockTime:  txCtx.BlockTime,
			Status:     status,
			Audited:    len(records),
			Violations: violations,
		})
		if err != nil {
			p.Errorf("标记进度失败: slot=%d, err=%v", block.Slot, err)
		}
	}

	p.Infof("区块处理完成: slot=%d, txs=%d, audited=%d, violations=%d, 耗时=%v",
		block.Slot, len(block.Transactions), len(records), violations, time.Since(startTime))
}

// auditBlock 并发适配并审计区块中的交易，返回触达 flash swap 程序的审计记录（按交易序号）
func (p *BlockProcessor) auditBlock(txCtx *core.TxContext, block *pb.SubscribeUpdateBlock) []*audit.Record {
	validTxs := make([]*pb.SubscribeUpdateTransactionInfo, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if IsValidGrpcTx(tx) {
			validTxs = append(validTxs, tx)
		}
	}

	results := utils.ParallelMap(validTxs, consts.CpuCount+2,
		func(tx *pb.SubscribeUpdateTransactionInfo) *audit.Record {
			return p.auditTx(txCtx, tx)
		})

	records := make([]*audit.Record, 0, len(results))
	for _, r := range results {
		if r != nil {
			records = append(records, r)
		}
	}
	return records
}

func (p *BlockProcessor) auditTx(txCtx *core.TxContext, tx *pb.SubscribeUpdateTransactionInfo) *audit.Record {
	adaptedTx, err := txadapter.AdaptGrpcTx(txCtx, tx)
	if err != nil {
		p.Errorf("交易解析失败: slot=%d, txIndex=%d, err=%v", txCtx.Slot, tx.Index, err)
		return nil
	}
	record, err := p.sc.Inspector.InspectTx(adaptedTx)
	if err != nil {
		p.Errorf("交易审计失败: slot=%d, txIndex=%d, err=%v", txCtx.Slot, tx.Index, err)
		return nil
	}
	return record
}

// observeSlot 记录最新 slot，发现跳号时提交缺口核对
func (p *BlockProcessor) observeSlot(slot uint64) {
	if p.lastSlot != 0 && slot > p.lastSlot+1 && p.slotChecker != nil {
		p.slotChecker.Submit(p.lastSlot+1, slot-1)
	}
	if slot > p.lastSlot {
		p.lastSlot = slot
	}
}

func buildTxContext(block *pb.SubscribeUpdateBlock) *core.TxContext {
	// blockHash 解析失败只打日志，使用零值
	blockHash, err := types.HashFromBase58(block.Blockhash)
	if err != nil {
		logx.Errorf("[严重] BlockHash 无法解析，将使用零值：slot=%d, blockhash=%s, err=%v",
			block.Slot, block.Blockhash, err)
	}

	txCtx := &core.TxContext{
		Slot:       block.Slot,
		BlockHash:  blockHash,
		ParentSlot: block.ParentSlot,
	}
	if block.BlockTime != nil {
		txCtx.BlockTime = block.BlockTime.Timestamp
	}
	if block.BlockHeight != nil {
		txCtx.BlockHeight = block.BlockHeight.BlockHeight
	}
	return txCtx
}

// IsValidGrpcTx 过滤结构不完整的交易与投票交易；执行失败的交易保留，用于核对拒绝原因
func IsValidGrpcTx(tx *pb.SubscribeUpdateTransactionInfo) bool {
	if tx == nil ||
		tx.Transaction == nil ||
		tx.Transaction.Message == nil ||
		len(tx.Transaction.Signatures) == 0 ||
		len(tx.Transaction.Signatures[0]) != 64 ||
		tx.IsVote ||
		tx.Meta == nil {
		return false
	}
	return true
}
