package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/brojonat/walletscope/service/wallet"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printSession(w io.Writer, sess wallet.Session, jsonOutput bool) error {
	if jsonOutput {
		return printJSON(w, sess)
	}

	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "Wallet Session")
	fmt.Fprintln(w, rule)
	if !sess.Connected() {
		fmt.Fprintln(w, "Status:   disconnected")
		return nil
	}
	fmt.Fprintf(w, "Address:  %s\n", sess.Address)
	if sess.ChainID != "" {
		fmt.Fprintf(w, "Chain ID: %s\n", sess.ChainID)
	}
	fmt.Fprintf(w, "Balance:  %s ETH\n", sess.Balance)
	if sess.Degraded {
		fmt.Fprintln(w, "Status:   degraded (balance unavailable)")
	}
	if sess.Warning != "" {
		fmt.Fprintf(w, "Warning:  %s\n", sess.Warning)
	}
	fmt.Fprintln(w)
	return printTransactions(w, sess.Transactions, false)
}

func printTransactions(w io.Writer, txns []wallet.TxRecord, jsonOutput bool) error {
	if jsonOutput {
		if txns == nil {
			txns = []wallet.TxRecord{}
		}
		return printJSON(w, txns)
	}

	if len(txns) == 0 {
		fmt.Fprintln(w, "No transactions found")
		return nil
	}

	fmt.Fprintf(w, "%-12s %-20s %-14s %-14s %s\n", "BLOCK", "VALUE (ETH)", "FROM", "TO", "HASH")
	for _, tx := range txns {
		block := "-"
		if tx.BlockNumber != 0 {
			block = fmt.Sprintf("%d", tx.BlockNumber)
		}
		to := "(create)"
		if tx.To != nil {
			to = shorten(*tx.To)
		}
		fmt.Fprintf(w, "%-12s %-20s %-14s %-14s %s\n", block, tx.ValueEther, shorten(tx.From), to, tx.Hash)
	}
	fmt.Fprintf(w, "\n%d transaction(s)\n", len(txns))
	return nil
}

// shorten abbreviates a hex address as 0x1234…abcd.
func shorten(addr string) string {
	if len(addr) <= 12 || !strings.HasPrefix(addr, "0x") {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-4:]
}
