package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zeromicro/go-zero/core/conf"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/pkg/logger"
)

const usage = `usage: flashswap [-f etc/flashswap.yaml] <command> [flags]

commands:
  simulate  在本地模拟器中执行场景文件
  swap      构造 USDC -> SOL 的 flash swap 交易，RPC 模拟后发送
`

var configFile = flag.String("f", "etc/flashswap.yaml", "the config file")

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	var c config.ClientConfig
	conf.MustLoad(*configFile, &c)

	logger.Init(c.LogConf.ToLogOption())
	defer logger.Sync()

	var err error
	switch cmd, args := flag.Arg(0), flag.Args()[1:]; cmd {
	case "simulate":
		err = runSimulate(c, args)
	case "swap":
		err = runSwap(c, args)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Errorf("%s failed: %v", flag.Arg(0), err)
		os.Exit(1)
	}
}
