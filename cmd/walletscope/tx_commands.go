package main

import (
	"encoding/json"
	"fmt"

	"github.com/brojonat/walletscope/client"
	"github.com/brojonat/walletscope/service/wallet"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

func txCommands() *cli.Command {
	return &cli.Command{
		Name:    "tx",
		Aliases: []string{"txns", "transactions"},
		Usage:   "Transaction commands",
		Subcommands: []*cli.Command{
			txListCommand(),
		},
	}
}

func txListCommand() *cli.Command {
	return &cli.Command{
		Name:      "list",
		Aliases:   []string{"ls"},
		Usage:     "List transactions for an address through the server's proxy",
		ArgsUsage: "ADDRESS",
		Description: `Fetches transactions from /api/transactions, newest first.

Each --jq filter is evaluated against a transaction's JSON form and must yield a
truthy value for the transaction to be printed.

Example:
  walletscope tx list 0xabc... --chain-id 11155111 --jq '.valueEther != "0.0"'`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "chain-id",
				Usage: "Decimal chain id",
				Value: "1",
			},
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter that must evaluate truthy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("address is required")
			}
			address := c.Args().Get(0)

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger(c))
			txns, err := cl.Transactions(c.Context, address, c.String("chain-id"))
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			txns, err = filterTransactions(txns, filters)
			if err != nil {
				return err
			}
			return printTransactions(c.App.Writer, txns, c.Bool("json"))
		},
	}
}

func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return codes, nil
}

// filterTransactions keeps the transactions every filter accepts. A filter
// that yields no value or an error rejects the transaction.
func filterTransactions(txns []wallet.TxRecord, filters []*gojq.Code) ([]wallet.TxRecord, error) {
	if len(filters) == 0 {
		return txns, nil
	}

	out := make([]wallet.TxRecord, 0, len(txns))
	for _, tx := range txns {
		// gojq works on plain JSON values, so round-trip through encoding/json.
		data, err := json.Marshal(tx)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal transaction: %w", err)
		}
		var doc interface{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal transaction: %w", err)
		}

		if matchesAll(doc, filters) {
			out = append(out, tx)
		}
	}
	return out, nil
}

func matchesAll(doc interface{}, filters []*gojq.Code) bool {
	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

// isTruthy follows jq: only false and null are falsy.
func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}
