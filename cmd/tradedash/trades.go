package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mbocsi/tradedash/api"
	"github.com/spf13/cobra"
)

func newTradesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Manage scheduled trades",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			_, err := e.authenticate()
			return err
		},
	}
	cmd.AddCommand(
		newTradesListCmd(e),
		newTradesCreateCmd(e),
		newTradesCancelCmd(e),
		newTradesDeleteCmd(e),
		newTradesHistoryCmd(e),
	)
	return cmd
}

func newTradesListCmd(e *env) *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scheduled trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := e.api.ScheduledTrades(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tPAIR\tAMOUNT\tBUY\tSELL\tSTATUS")
			for _, t := range trades {
				if status != "" && t.Status != status {
					continue
				}
				fmt.Fprintf(w, "%d\t%s\t%g\t%s\t%s\t%s\n",
					t.ID, t.TradingPair, t.Amount, formatTime(t.BuyTime.Time), formatTime(t.SellTime.Time), t.Status)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only show trades with this status")
	return cmd
}

// parseWhen accepts an absolute timestamp or a duration relative to now.
func parseWhen(s string, now time.Time) (api.Time, error) {
	if d, err := time.ParseDuration(strings.TrimPrefix(s, "+")); err == nil {
		return api.Time{Time: now.Add(d).UTC().Truncate(time.Second)}, nil
	}
	t, err := api.ParseTime(s)
	if err != nil {
		return api.Time{}, fmt.Errorf("%q is neither a timestamp nor a duration", s)
	}
	return t, nil
}

func newTradesCreateCmd(e *env) *cobra.Command {
	var pair, buy, sell string
	var amount float64

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Schedule a buy and a later sell",
		Example: `  tradedash trades create --pair BTC/USDT --amount 0.01 --buy +10m --sell +2h
  tradedash trades create --pair ETH/USDT --amount 1 --buy 2025-01-02T09:00:00Z --sell 2025-01-02T17:00:00Z`,
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			buyAt, err := parseWhen(buy, now)
			if err != nil {
				return fmt.Errorf("--buy: %w", err)
			}
			sellAt, err := parseWhen(sell, now)
			if err != nil {
				return fmt.Errorf("--sell: %w", err)
			}

			t, err := e.api.CreateScheduledTrade(cmd.Context(), api.ScheduledTradeCreate{
				TradingPair: pair,
				Amount:      amount,
				BuyTime:     buyAt,
				SellTime:    sellAt,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled trade %d: %g %s, buy %s, sell %s (%s)\n",
				t.ID, t.Amount, t.TradingPair, formatTime(t.BuyTime.Time), formatTime(t.SellTime.Time), t.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&pair, "pair", "", "Trading pair, e.g. BTC/USDT")
	cmd.Flags().Float64Var(&amount, "amount", 0, "Amount to trade")
	cmd.Flags().StringVar(&buy, "buy", "", "Buy time (timestamp or +duration)")
	cmd.Flags().StringVar(&sell, "sell", "", "Sell time (timestamp or +duration)")
	cmd.MarkFlagRequired("pair")
	cmd.MarkFlagRequired("amount")
	cmd.MarkFlagRequired("buy")
	cmd.MarkFlagRequired("sell")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid trade id %q", s)
	}
	return id, nil
}

func newTradesCancelCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Mark a scheduled trade as cancelled",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			status := api.StatusCancelled
			t, err := e.api.UpdateScheduledTrade(cmd.Context(), id, api.ScheduledTradeUpdate{Status: &status})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trade %d is now %s\n", t.ID, t.Status)
			return nil
		},
	}
}

func newTradesDeleteCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a scheduled trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.api.DeleteScheduledTrade(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted trade %d\n", id)
			return nil
		},
	}
}

func newTradesHistoryCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List executed orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			execs, err := e.api.TradeHistory(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tTRADE\tORDER\tSIDE\tAMOUNT\tPRICE\tSTATUS\tEXECUTED")
			for _, x := range execs {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%g\t%.4f\t%s\t%s\n",
					x.ID, x.ScheduledTradeID, x.OrderID, x.Side, x.Amount, x.Price, x.Status, formatTime(x.ExecutedAt.Time))
			}
			return w.Flush()
		},
	}
}
