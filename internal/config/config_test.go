package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/core/conf"

	"flash-swap-sol/internal/consts"
)

func TestFlashSwapConfigResolve(t *testing.T) {
	c := FlashSwapConfig{ProgramID: consts.FlashSwapProgramStr, AuthorityBump: -1}
	programID, authority, err := c.Resolve()
	require.NoError(t, err)
	assert.Equal(t, consts.FlashSwapProgram, programID)
	assert.Equal(t, uint8(254), authority.Bump())
	assert.Equal(t, "36ruqG5gYCyszymi4VaU6GmQzjJXGQoXXiVUnRXwFdoF", authority.Address().String())

	c.AuthorityBump = 251
	_, authority, err = c.Resolve()
	require.NoError(t, err)
	assert.Equal(t, "6yrrHuPD5F6GwambUfC4dZmWYt1bmu6uiqF71NM6e8te", authority.Address().String())

	c.AuthorityBump = 253 // 落在曲线上
	_, _, err = c.Resolve()
	assert.Error(t, err)

	c.AuthorityBump = 300
	_, _, err = c.Resolve()
	assert.Error(t, err)

	c = FlashSwapConfig{ProgramID: "not-base58!", AuthorityBump: -1}
	_, _, err = c.Resolve()
	assert.Error(t, err)
}

func TestKafkaProducerConfigToKafkaOption(t *testing.T) {
	var c KafkaProducerConfig
	c.Brokers = "127.0.0.1:9092"
	c.Topics.Audit = "audit"
	c.Partitions.Audit = 4

	opt := c.ToKafkaOption()
	require.Len(t, opt.Topics, 1)
	assert.Equal(t, "audit", opt.Topics[0].Topic)

	c.Topics.Alert = "alert"
	c.Partitions.Alert = 1
	opt = c.ToKafkaOption()
	require.Len(t, opt.Topics, 2)
	assert.Equal(t, 1, c.AlertTopic().Partitions)
	assert.Equal(t, 4, c.AuditTopic().Partitions)
}

func TestLoadMonitorConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
logger:
  level: debug
flash_swap:
  authority_bump: -1
time_conf:
  event_send_timeout_ms: 1500
progress:
  flush_interval_sec: 2
kafka_producer:
  brokers: 127.0.0.1:9092
  topics:
    audit: audit
  partitions:
    audit: 2
redis:
  addr: 127.0.0.1:6379
postgres_dsn: postgres://localhost/flash
grpc:
  endpoint: geyser.example.com:443
`), 0o644))

	var c MonitorConfig
	require.NoError(t, conf.Load(path, &c))
	assert.Equal(t, "debug", c.LogConf.Level)
	assert.Equal(t, "console", c.LogConf.Format)
	assert.Equal(t, consts.FlashSwapProgramStr, c.FlashSwap.ProgramID)
	assert.Equal(t, -1, c.FlashSwap.AuthorityBump)
	assert.Equal(t, 2, c.KafkaProducerConf.Partitions.Audit)
	assert.Equal(t, 60, c.ProgressConf.RecentThresholdSec)
	assert.Equal(t, 2, c.ProgressConf.FlushIntervalSec)
	assert.Equal(t, 1500, c.TimeConf.EventSendTimeoutMs)
	assert.Equal(t, 3000, c.TimeConf.SlotDispatchTimeoutMs)
	assert.Equal(t, 30, c.Grpc.BlockRecvTimeoutSec)
	assert.Equal(t, 200, c.BlockChanSize)
	assert.Empty(t, c.SlotCheck.RpcEndpoint)
}
