package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/logx"
	zerosvc "github.com/zeromicro/go-zero/core/service"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/internal/logic/grpc"
	"flash-swap-sol/internal/logic/progress"
	"flash-swap-sol/internal/svc"
	"flash-swap-sol/pkg/logger"
)

var configFile = flag.String("f", "etc/monitor.yaml", "the config file")

// progressService 将进度管理器的后台循环包装为 go-zero Service
type progressService struct {
	pm     *progress.ProgressManager
	flush  time.Duration
	gc     time.Duration
	ctx    context.Context
	cancel context.CancelFunc
}

func newProgressService(pm *progress.ProgressManager, c config.ProgressConfig) *progressService {
	ctx, cancel := context.WithCancel(context.Background())
	return &progressService{
		pm:     pm,
		flush:  time.Duration(c.FlushIntervalSec) * time.Second,
		gc:     time.Duration(c.GCIntervalMin) * time.Minute,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *progressService) Start() {
	go s.pm.StartGCLoop(s.ctx, s.gc)
	s.pm.StartFlushLoop(s.ctx, s.flush)
}

func (s *progressService) Stop() {
	s.cancel()
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			logx.Errorf("panic: %+v\nstack: %s", r, debug.Stack())
		}
	}()

	flag.Parse()

	var c config.MonitorConfig
	conf.MustLoad(*configFile, &c)

	logger.Init(c.LogConf.ToLogOption())
	defer logger.Sync()

	serviceContext, err := svc.NewMonitorServiceContext(c)
	if err != nil {
		logx.Errorf("service context init failed: %v", err)
		os.Exit(1)
	}
	defer serviceContext.Close()

	sg := zerosvc.NewServiceGroup()
	sg.Add(newProgressService(serviceContext.ProgressManager, c.ProgressConf))

	// 缺口检测：漏收的 slot 标记为 missing，回放时重新审计
	var slotChecker *grpc.SlotChecker
	if c.SlotCheck.RpcEndpoint != "" {
		slotChecker = grpc.NewSlotChecker(c.SlotCheck, func(slot uint64) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			err := serviceContext.ProgressManager.MarkSlotStatus(ctx, &progress.SlotRecord{
				Slot:   slot,
				Source: progress.SourceRpc,
				Status: progress.SlotMissing,
			})
			if err != nil {
				logx.Errorf("mark missing slot %d failed: %v", slot, err)
			}
		})
		sg.Add(slotChecker)
	}

	blockChan := make(chan *pb.SubscribeUpdateBlock, c.BlockChanSize)
	sg.Add(grpc.NewBlockProcessor(serviceContext, blockChan, slotChecker))

	streamService, err := grpc.NewGrpcStreamManager(c.Grpc, []string{serviceContext.ProgramID.String()}, blockChan)
	if err != nil {
		logx.Errorf("grpc stream init failed: %v", err)
		os.Exit(1)
	}
	sg.Add(streamService)

	logx.Infof("Starting flash swap audit monitor, program=%s", serviceContext.ProgramID)

	go sg.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logx.Info("Shutting down services...")
	sg.Stop()
}
