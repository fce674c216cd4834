package main

import (
	"errors"
	"flag"
	"fmt"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/internal/logic/runtime"
	"flash-swap-sol/internal/logic/scenario"
)

// runSimulate 执行场景文件（或目录），打印程序日志和余额变化
func runSimulate(c config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	dir := fs.String("dir", "", "run every *.yaml scenario in the directory")
	if err := fs.Parse(args); err != nil {
		return err
	}

	programID, _, err := c.FlashSwap.Resolve()
	if err != nil {
		return err
	}

	var scenarios []*scenario.Scenario
	switch {
	case *dir != "":
		if scenarios, err = scenario.LoadDir(*dir); err != nil {
			return err
		}
	case fs.NArg() > 0:
		for _, path := range fs.Args() {
			s, err := scenario.Load(path)
			if err != nil {
				return err
			}
			scenarios = append(scenarios, s)
		}
	default:
		return errors.New("no scenario given")
	}

	failed := 0
	for _, s := range scenarios {
		res, err := s.Run(programID)
		if err != nil {
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		printResult(s.Name, res)
		if err = s.Check(res); err != nil {
			fmt.Printf("  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Println("  PASS")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(scenarios))
	}
	return nil
}

func printResult(name string, res *scenario.Result) {
	fmt.Printf("== %s\n", name)
	for _, line := range res.Receipt.Logs {
		fmt.Printf("  %s\n", line)
	}
	if res.Err != nil {
		var txErr *runtime.TxError
		if errors.As(res.Err, &txErr) {
			fmt.Printf("  error at instruction %d: %s\n", txErr.Index, scenario.ErrorName(res.Err))
		} else {
			fmt.Printf("  error: %v\n", res.Err)
		}
	}
	for _, acc := range []string{scenario.BorrowerName, scenario.EscrowName} {
		if key, ok := res.Accounts[acc]; ok {
			fmt.Printf("  %-8s %s %+d\n", acc, key, res.Receipt.BalanceChange(key))
		}
	}
}
