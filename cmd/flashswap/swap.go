package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/blocto/solana-go-sdk/client"
	sdkcommon "github.com/blocto/solana-go-sdk/common"
	"github.com/blocto/solana-go-sdk/program/system"
	sdktypes "github.com/blocto/solana-go-sdk/types"

	"flash-swap-sol/internal/config"
	"flash-swap-sol/internal/consts"
	"flash-swap-sol/internal/logic/flashloan"
	"flash-swap-sol/internal/logic/jupiter"
	"flash-swap-sol/internal/logic/txbuilder"
	"flash-swap-sol/internal/types"
	"flash-swap-sol/pkg/logger"
)

// Jupiter 路由账户上限，保证 legacy 交易不超过大小限制
const maxRouteAccounts = 32

// runSwap 借出 wSOL ATA 租金，把 USDC 换成 SOL 后归还
func runSwap(c config.ClientConfig, args []string) error {
	fs := flag.NewFlagSet("swap", flag.ExitOnError)
	amount := fs.Uint64("amount", 1_000_000, "USDC amount in base units")
	dryRun := fs.Bool("dry-run", false, "simulate only, do not send")
	if err := fs.Parse(args); err != nil {
		return err
	}

	payer, err := sdktypes.AccountFromBase58(os.Getenv(c.KeypairEnv))
	if err != nil {
		return fmt.Errorf("load keypair from $%s: %w", c.KeypairEnv, err)
	}
	borrower := types.Pubkey(payer.PublicKey)

	programID, authority, err := c.FlashSwap.Resolve()
	if err != nil {
		return err
	}
	program := flashloan.NewProgram(programID, authority, flashloan.DefaultRent)

	ctx := context.Background()
	rpcClient := client.NewClient(c.RpcEndpoint)

	if c.FundEscrow > 0 {
		if err = fundEscrow(ctx, rpcClient, payer, authority.Address(), c.FundEscrow); err != nil {
			return err
		}
	}

	wsolAccount, err := txbuilder.WSOLAccount(borrower)
	if err != nil {
		return err
	}

	jup := jupiter.NewClient(c.Jupiter.BaseUrl, &http.Client{Timeout: time.Duration(c.Jupiter.TimeoutSec) * time.Second})
	quote, err := jup.GetQuote(ctx, jupiter.QuoteParams{
		InputMint:   consts.USDCMint,
		OutputMint:  consts.WSOLMint,
		Amount:      *amount,
		SlippageBps: uint32(c.Jupiter.SlippageBps),
		MaxAccounts: maxRouteAccounts,
	})
	if err != nil {
		return err
	}
	logger.Infof("quote: in=%d USDC out=%d lamports min_out=%d", quote.InAmount, quote.OutAmount, quote.OtherAmountThreshold)

	swapIxs, err := jup.GetSwapInstructions(ctx, jupiter.SwapRequest{
		Quote:                   quote,
		User:                    borrower,
		DestinationTokenAccount: wsolAccount,
	})
	if err != nil {
		return err
	}

	ixs, err := txbuilder.BuildFlashSwap(txbuilder.FlashSwapPlan{
		ProgramID:        programID,
		Authority:        authority.Address(),
		Borrower:         borrower,
		SwapInstructions: append(swapIxs.SetupInstructions, swapIxs.SwapInstruction),
		ComputeUnitLimit: c.ComputeUnitLimit,
	})
	if err != nil {
		return err
	}

	// 本地预演：borrow 能找到 repay，escrow 余额不变
	if _, err = txbuilder.Preflight(program, []types.Pubkey{borrower}, ixs); err != nil {
		return fmt.Errorf("local preflight: %w", err)
	}

	tx, err := signTransaction(ctx, rpcClient, payer, ixs)
	if err != nil {
		return err
	}

	sim, err := rpcClient.SimulateTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("simulate transaction: %w", err)
	}
	for _, line := range sim.Logs {
		fmt.Println(line)
	}
	if sim.Err != nil {
		return fmt.Errorf("simulation failed: %v", sim.Err)
	}
	if *dryRun {
		return nil
	}

	sig, err := rpcClient.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("send transaction: %w", err)
	}
	logger.Infof("flash swap sent: %s", sig)
	fmt.Println(sig)
	return nil
}

// fundEscrow 向 escrow authority 转入 lamports，程序本身不持有任何资金来源
func fundEscrow(ctx context.Context, rpcClient *client.Client, payer sdktypes.Account, escrow types.Pubkey, lamports uint64) error {
	tx, err := signTransaction(ctx, rpcClient, payer, []sdktypes.Instruction{
		system.Transfer(system.TransferParam{
			From:   payer.PublicKey,
			To:     sdkcommon.PublicKey(escrow),
			Amount: lamports,
		}),
	})
	if err != nil {
		return err
	}
	sig, err := rpcClient.SendTransaction(ctx, tx)
	if err != nil {
		return fmt.Errorf("fund escrow: %w", err)
	}
	logger.Infof("escrow %s funded with %d lamports: %s", escrow, lamports, sig)
	return nil
}

func signTransaction(ctx context.Context, rpcClient *client.Client, payer sdktypes.Account, ixs []sdktypes.Instruction) (sdktypes.Transaction, error) {
	latest, err := rpcClient.GetLatestBlockhash(ctx)
	if err != nil {
		return sdktypes.Transaction{}, fmt.Errorf("get latest blockhash: %w", err)
	}
	if latest.Blockhash == "" {
		return sdktypes.Transaction{}, errors.New("empty blockhash")
	}
	return txbuilder.BuildTransaction(payer, latest.Blockhash, ixs, nil)
}
