// Command analyzer prints performance statistics from the trade ledger:
// win rate, expectancy, fee drag and a per-exit-reason breakdown.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/avbdev/crypto_scalper/internal/domain"
	"github.com/avbdev/crypto_scalper/internal/infrastructure/storage"
)

type reasonStats struct {
	count  int
	wins   int
	pnl    float64
	pnlPct float64
}

func main() {
	dbPath := flag.String("db", "scalper.db", "path to the sqlite trade ledger")
	limit := flag.Int("limit", 1000, "max trades to analyze, newest first")
	flag.Parse()

	store, err := storage.NewSQLiteStore(*dbPath)
	if err != nil {
		fmt.Printf("Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	trades, err := store.ListTrades(context.Background(), *limit)
	if err != nil {
		fmt.Printf("Error listing trades: %v\n", err)
		os.Exit(1)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return
	}

	var wins, losses int
	var totalPnL, totalFees, winSum, lossSum float64
	var totalHold time.Duration
	byReason := make(map[domain.ExitReason]*reasonStats)

	for _, t := range trades {
		totalPnL += t.RealizedPnL
		totalFees += t.EntryFee + t.ExitFee
		totalHold += t.ClosedAt.Sub(t.OpenedAt)
		if t.RealizedPnL > 0 {
			wins++
			winSum += t.RealizedPnL
		} else {
			losses++
			lossSum += -t.RealizedPnL
		}
		rs := byReason[t.ExitReason]
		if rs == nil {
			rs = &reasonStats{}
			byReason[t.ExitReason] = rs
		}
		rs.count++
		if t.RealizedPnL > 0 {
			rs.wins++
		}
		rs.pnl += t.RealizedPnL
		rs.pnlPct += t.RealizedPnLPct
	}

	n := len(trades)
	fmt.Printf("Trades analyzed:   %d\n", n)
	fmt.Printf("Win rate:          %.1f%% (%d/%d)\n", float64(wins)/float64(n)*100, wins, n)
	fmt.Printf("Net PnL:           %.4f\n", totalPnL)
	fmt.Printf("Total fees paid:   %.4f\n", totalFees)
	fmt.Printf("Expectancy/trade:  %.4f\n", totalPnL/float64(n))
	if wins > 0 && losses > 0 {
		avgWin := winSum / float64(wins)
		avgLoss := lossSum / float64(losses)
		fmt.Printf("Avg win/loss:      %.4f / %.4f (ratio %.2f)\n", avgWin, avgLoss, avgWin/avgLoss)
	}
	fmt.Printf("Avg hold time:     %s\n", (totalHold / time.Duration(n)).Round(time.Second))

	fmt.Println("\nBy exit reason:")
	reasons := make([]domain.ExitReason, 0, len(byReason))
	for r := range byReason {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool { return byReason[reasons[i]].count > byReason[reasons[j]].count })
	for _, r := range reasons {
		rs := byReason[r]
		fmt.Printf("  %-20s %4d trades, %5.1f%% wins, pnl %.4f, avg %.3f%%\n",
			r, rs.count, float64(rs.wins)/float64(rs.count)*100, rs.pnl, rs.pnlPct/float64(rs.count))
	}
}
