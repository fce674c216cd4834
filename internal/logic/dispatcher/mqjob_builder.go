package dispatcher

import (
	"fmt"

	"github.com/near/borsh-go"

	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/audit"
	"flash-swap-sol/internal/mq"
	"flash-swap-sol/internal/utils"
)

const batchVersion uint8 = 1

// AuditBatch 是单个分区内一个 slot 的审计记录集合，borsh 编码后作为 Kafka 消息体
type AuditBatch struct {
	Version uint8
	ChainID uint32
	Slot    uint64
	Records []audit.Record
}

func DecodeBatch(data []byte) (*AuditBatch, error) {
	var batch AuditBatch
	if err := borsh.Deserialize(&batch, data); err != nil {
		return nil, err
	}
	return &batch, nil
}

// TopicConfig 描述一类记录的目标 topic 与分区数
type TopicConfig struct {
	Topic      string
	Partitions int
}

// BuildAuditKafkaJobs 构建一个 slot 的全部 KafkaJob：
//   - 所有记录按签名分区写入 auditTopic
//   - 违规记录额外写入 alertTopic（Topic 为空时跳过）
//
// 构建后的 []*mq.KafkaJob 可直接传入 mq.SendKafkaJobs 发送。
func BuildAuditKafkaJobs(slot uint64, records []*audit.Record, auditTopic, alertTopic TopicConfig) ([]*mq.KafkaJob, error) {
	if len(records) == 0 {
		return nil, nil
	}

	jobs, err := buildJobs(slot, records, auditTopic)
	if err != nil {
		return nil, err
	}

	if alertTopic.Topic == "" {
		return jobs, nil
	}
	violations := make([]*audit.Record, 0, len(records))
	for _, r := range records {
		if r.Violation() {
			violations = append(violations, r)
		}
	}
	alertJobs, err := buildJobs(slot, violations, alertTopic)
	if err != nil {
		return nil, err
	}
	return append(jobs, alertJobs...), nil
}

func buildJobs(slot uint64, records []*audit.Record, topic TopicConfig) ([]*mq.KafkaJob, error) {
	if len(records) == 0 {
		return nil, nil
	}
	partitions := max(topic.Partitions, 1)

	buckets := make([][]audit.Record, partitions)
	capacity := utils.CalcCapPerPartition(len(records), partitions, 4)
	for i := range buckets {
		buckets[i] = make([]audit.Record, 0, capacity)
	}
	for _, r := range records {
		pid := utils.PartitionHashBytes(r.Signature, uint32(partitions))
		buckets[pid] = append(buckets[pid], *r)
	}

	jobs := make([]*mq.KafkaJob, 0, partitions)
	for pid, list := range buckets {
		if len(list) == 0 {
			continue
		}
		value, err := borsh.Serialize(AuditBatch{
			Version: batchVersion,
			ChainID: consts.ChainIDSolana,
			Slot:    slot,
			Records: list,
		})
		if err != nil {
			return nil, fmt.Errorf("encode audit batch (slot=%d, partition=%d): %w", slot, pid, err)
		}
		jobs = append(jobs, &mq.KafkaJob{
			Topic:     topic.Topic,
			Partition: int32(pid),
			Key:       list[0].Signature,
			Value:     value,
		})
	}
	return jobs, nil
}
