package main

import (
	"context"
	"fmt"
	"io"

	"github.com/brojonat/walletscope/service/ethereum"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func scanCommand() *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan the most recent blocks for transactions touching an address",
		ArgsUsage: "ADDRESS",
		Description: `Reads the newest blocks straight from an Ethereum node and prints every
transaction sent from or to ADDRESS. This is a bounded scan, not a history:
anything older than the window is not found.

Example:
  walletscope --rpc-url https://eth.example/KEY scan 0xabc... --window 20`,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "window",
				Usage: "Number of blocks to scan back from the head",
				Value: wallet.DefaultRecentBlockWindow,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)
			if !common.IsHexAddress(address) {
				return fmt.Errorf("invalid address: %s", address)
			}

			rpcURL := c.String("rpc-url")
			if rpcURL == "" {
				return fmt.Errorf("rpc-url is required (set ETH_RPC_URL env var or use --rpc-url)")
			}

			ethClient, err := ethereum.Dial(c.Context, rpcURL)
			if err != nil {
				return err
			}
			defer ethClient.Close()

			logger := cliLogger(c)
			chain := ethereum.NewChainReader(ethClient, "cli", nil, logger)
			fetcher := wallet.NewFetcher(chain, c.Int("window"), nil, logger)

			return runScan(c.Context, c.App.Writer, fetcher, address, c.Bool("json"))
		},
	}
}

type scanResult struct {
	Address      string            `json:"address"`
	HeadBlock    uint64            `json:"headBlock"`
	Warning      string            `json:"warning,omitempty"`
	Transactions []wallet.TxRecord `json:"transactions"`
}

func runScan(ctx context.Context, w io.Writer, fetcher *wallet.Fetcher, address string, jsonOutput bool) error {
	activity := fetcher.Recent(ctx, address)

	if jsonOutput {
		return printJSON(w, scanResult{
			Address:      address,
			HeadBlock:    activity.HeadBlock,
			Warning:      activity.Warning,
			Transactions: activity.Transactions,
		})
	}

	if activity.Warning != "" {
		fmt.Fprintf(w, "⚠️  %s\n\n", activity.Warning)
	} else {
		fmt.Fprintf(w, "Head block: %d\n\n", activity.HeadBlock)
	}
	return printTransactions(w, activity.Transactions, false)
}
