package grpc

import (
	"context"
	"encoding/binary"
	"testing"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/audit"
	"flash-swap-sol/internal/logic/dispatcher"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/mq"
	"flash-swap-sol/internal/svc"
)

func newTestServiceContext(t *testing.T) *svc.MonitorServiceContext {
	authority, err := flashloan.FindEscrowAuthority(consts.FlashSwapProgram)
	require.NoError(t, err)

	var c config.MonitorConfig
	c.TimeConf.SlotDispatchTimeoutMs = 1000
	c.TimeConf.EventSendTimeoutMs = 500
	c.KafkaProducerConf.Topics.Audit = "audit"
	c.KafkaProducerConf.Partitions.Audit = 1
	c.KafkaProducerConf.Topics.Alert = "alert"
	c.KafkaProducerConf.Partitions.Alert = 1

	return &svc.MonitorServiceContext{
		Config:    c,
		ProgramID: consts.FlashSwapProgram,
		Authority: authority,
		Inspector: audit.NewInspector(consts.FlashSwapProgram, authority.Address()),
	}
}

// flashTx 构造只含一条 flash swap 主指令的交易
// 账户：0 borrower(signer,w) 1 authority(w) 2 sysvar 3 system 4 program
func flashTx(sc *svc.MonitorServiceContext, index uint64, disc uint64) *pb.SubscribeUpdateTransactionInfo {
	borrower := make([]byte, 32)
	borrower[0] = byte(index + 1)
	authority := sc.Authority.Address()
	data := make([]byte, 8)
	binary.BigEndian.PutUint64(data, disc)

	return &pb.SubscribeUpdateTransactionInfo{
		Index: index,
		Transaction: &pb.Transaction{
			Signatures: [][]byte{make([]byte, 64)},
			Message: &pb.Message{
				Header: &pb.MessageHeader{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 3},
				AccountKeys: [][]byte{
					borrower, authority[:],
					consts.SysvarInstructions[:], consts.SystemProgram[:], consts.FlashSwapProgram[:],
				},
				Instructions: []*pb.CompiledInstruction{
					{ProgramIdIndex: 4, Accounts: []byte{0, 1, 2, 3}, Data: data},
				},
			},
		},
		Meta: &pb.TransactionStatusMeta{
			PreBalances:  []uint64{0, 10_000_000, 1, 1, 1},
			PostBalances: []uint64{2_039_280, 10_000_000 - 2_039_280, 1, 1, 1},
		},
	}
}

func TestProcBlock(t *testing.T) {
	sc := newTestServiceContext(t)
	p := NewBlockProcessor(sc, make(chan *pb.SubscribeUpdateBlock), nil)
	defer p.Stop()

	var sent []*mq.KafkaJob
	p.send = func(_ context.Context, jobs []*mq.KafkaJob) ([]*mq.KafkaJob, []mq.KafkaSendResult) {
		sent = append(sent, jobs...)
		return jobs, nil
	}

	vote := flashTx(sc, 1, consts.BorrowDiscriminator)
	vote.IsVote = true
	block := &pb.SubscribeUpdateBlock{
		Slot:      77,
		Blockhash: "11111111111111111111111111111111",
		BlockTime: &pb.UnixTimestamp{Timestamp: 1_700_000_000},
		Transactions: []*pb.SubscribeUpdateTransactionInfo{
			flashTx(sc, 0, consts.BorrowDiscriminator), // 成功的 borrow 没有 repay：违规
			vote,
		},
	}
	p.procBlock(block)

	require.Len(t, sent, 2)
	topics := map[string]*dispatcher.AuditBatch{}
	for _, job := range sent {
		batch, err := dispatcher.DecodeBatch(job.Value)
		require.NoError(t, err)
		topics[job.Topic] = batch
	}
	require.Contains(t, topics, "audit")
	require.Contains(t, topics, "alert")

	records := topics["audit"].Records
	require.Len(t, records, 1)
	assert.Equal(t, uint64(77), records[0].Slot)
	assert.Equal(t, flashloan.ErrMissingRepay.Code(), records[0].Reason)
	assert.Equal(t, int64(-2_039_280), records[0].EscrowDelta)
	assert.True(t, records[0].Violation())
}

func TestAuditBlock_SkipsUnrelated(t *testing.T) {
	sc := newTestServiceContext(t)
	p := NewBlockProcessor(sc, nil, nil)
	defer p.Stop()

	tx := flashTx(sc, 0, consts.RepayDiscriminator)
	tx.Transaction.Message.AccountKeys[4] = make([]byte, 32) // 程序换成其他地址
	records := p.auditBlock(buildTxContext(&pb.SubscribeUpdateBlock{Slot: 1}), &pb.SubscribeUpdateBlock{
		Slot:         1,
		Transactions: []*pb.SubscribeUpdateTransactionInfo{tx, nil},
	})
	assert.Empty(t, records)
}

func TestObserveSlot(t *testing.T) {
	checker := newSlotChecker(&fakeLister{}, config.SlotCheckConfig{IntervalSec: 30, Lookback: 100}, nil)
	defer checker.Stop()
	p := NewBlockProcessor(newTestServiceContext(t), nil, checker)
	defer p.Stop()

	p.observeSlot(100)
	p.observeSlot(101)
	assert.Empty(t, checker.rangeCh)

	p.observeSlot(105)
	r := <-checker.rangeCh
	assert.Equal(t, uint64(102), r.From)
	assert.Equal(t, uint64(104), r.To)

	p.observeSlot(103) // 乱序到达不回退
	assert.Equal(t, uint64(105), p.lastSlot)
	assert.Empty(t, checker.rangeCh)
}

func TestIsValidGrpcTx(t *testing.T) {
	sc := newTestServiceContext(t)
	assert.True(t, IsValidGrpcTx(flashTx(sc, 0, consts.BorrowDiscriminator)))

	failed := flashTx(sc, 0, consts.BorrowDiscriminator)
	failed.Meta.Err = &pb.TransactionError{Err: []byte{1}}
	assert.True(t, IsValidGrpcTx(failed), "失败交易保留用于审计")

	vote := flashTx(sc, 0, consts.BorrowDiscriminator)
	vote.IsVote = true
	assert.False(t, IsValidGrpcTx(vote))

	badSig := flashTx(sc, 0, consts.BorrowDiscriminator)
	badSig.Transaction.Signatures[0] = []byte{1}
	assert.False(t, IsValidGrpcTx(badSig))

	assert.False(t, IsValidGrpcTx(nil))
	assert.False(t, IsValidGrpcTx(&pb.SubscribeUpdateTransactionInfo{}))
}
