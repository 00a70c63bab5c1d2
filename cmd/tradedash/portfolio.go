package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func newPortfolioCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "Show portfolio value, allocation, metrics and recent trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := e.authenticate(); err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := e.api.Portfolio(ctx)
			if err != nil {
				return err
			}
			m, err := e.api.Metrics(ctx)
			if err != nil {
				return err
			}
			recent, err := e.api.RecentTrades(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Total value: $%.2f\n", p.TotalValue)
			fmt.Fprintf(out, "Trades: %d  Win rate: %.1f%%  Avg return: %.2f  Profit: %.2f\n\n",
				m.TotalTrades, m.WinRate, m.AverageReturn, m.TotalProfit)

			w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ASSET\tVALUE\tSHARE")
			for _, a := range p.Assets {
				fmt.Fprintf(w, "%s\t%.2f\t%.1f%%\n", a.Symbol, a.Value, a.Percentage)
			}
			w.Flush()

			if len(recent) == 0 {
				return nil
			}
			fmt.Fprintln(out)
			w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tAMOUNT\tPRICE\tSTATUS\tTIME")
			for _, t := range recent {
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%.4f\t%s\t%s\n",
					t.ID, t.Symbol, t.Side, t.Amount, t.Price, t.Status, formatTime(t.Timestamp.Time))
			}
			return w.Flush()
		},
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
