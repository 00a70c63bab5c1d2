package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newMarketCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Browse market data",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			_, err := e.authenticate()
			return err
		},
	}

	pairs := &cobra.Command{
		Use:   "pairs",
		Short: "List active trading pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := e.api.TradingPairs(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(list, "\n"))
			return nil
		},
	}

	summary := &cobra.Command{
		Use:   "summary <symbol>",
		Short: "24h summary for a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.api.MarketSummary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s last=%.4f high=%.4f low=%.4f volume=%.2f\n", s.Symbol, s.LastPrice, s.High24h, s.Low24h, s.Volume24h)
			if s.Bid != nil && s.Ask != nil {
				fmt.Fprintf(out, "bid=%.4f ask=%.4f spread=%.4f\n", *s.Bid, *s.Ask, *s.Ask-*s.Bid)
			}
			return nil
		},
	}

	var timeframe string
	var limit int
	candles := &cobra.Command{
		Use:   "candles <symbol>",
		Short: "OHLCV candles for a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := e.api.OHLCV(cmd.Context(), args[0], timeframe, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
			for _, c := range rows {
				fmt.Fprintf(w, "%s\t%.4f\t%.4f\t%.4f\t%.4f\t%.2f\n", formatTime(c.Time()), c.Open(), c.High(), c.Low(), c.Close(), c.Volume())
			}
			return w.Flush()
		},
	}
	candles.Flags().StringVar(&timeframe, "timeframe", "1h", "Candle timeframe")
	candles.Flags().IntVar(&limit, "limit", 24, "Number of candles")

	var depth int
	book := &cobra.Command{
		Use:   "book <symbol>",
		Short: "Order book for a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ob, err := e.api.OrderBook(cmd.Context(), args[0], depth)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "BID\tSIZE\tASK\tSIZE")
			for i := 0; i < max(len(ob.Bids), len(ob.Asks)); i++ {
				var bid, ask [2]float64
				if i < len(ob.Bids) {
					bid = ob.Bids[i]
				}
				if i < len(ob.Asks) {
					ask = ob.Asks[i]
				}
				fmt.Fprintf(w, "%.4f\t%g\t%.4f\t%g\n", bid[0], bid[1], ask[0], ask[1])
			}
			return w.Flush()
		},
	}
	book.Flags().IntVar(&depth, "depth", 10, "Levels per side")

	cmd.AddCommand(pairs, summary, candles, book)
	return cmd
}
