package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/mbocsi/tradedash/auth"
	"github.com/mbocsi/tradedash/client"
	"github.com/mbocsi/tradedash/proto"
	"github.com/spf13/cobra"
)

func newTailCmd(e *env) *cobra.Command {
	var raw bool
	var send []string

	cmd := &cobra.Command{
		Use:   "tail <stream>",
		Short: "Print messages from a live stream until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, ok := e.cfg.Stream(args[0])
			if !ok {
				names := make([]string, 0, len(e.cfg.Streams))
				for _, s := range e.cfg.Streams {
					names = append(names, s.Name)
				}
				return fmt.Errorf("unknown stream %q (configured: %s)", args[0], strings.Join(names, ", "))
			}

			token, err := e.store.Load()
			if err != nil && !errors.Is(err, auth.ErrNoToken) {
				return err
			}
			u, err := auth.StreamURL(sc.URL, token)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			msgs := make(chan proto.Message, 64)
			c := client.NewStreamClient(u,
				client.WithName(sc.Name),
				client.WithPolicy(e.cfg.Reconnect.Policy()),
				client.WithLogger(e.log),
			)
			c.OnMessage(func(m proto.Message) {
				select {
				case msgs <- m:
				default:
					e.log.Warn("Output falling behind, dropping message", "type", m.Type)
				}
			})
			c.OnStateChange(func(s client.State) {
				if s == client.StateOpen {
					for _, payload := range send {
						c.SendMessage(payload)
					}
				}
			})
			c.Connect()
			defer c.Close()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case m := <-msgs:
					printMessage(out, m, raw)
				}
			}
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print frames as received instead of formatted")
	cmd.Flags().StringArrayVar(&send, "send", nil, "Frame to send every time the stream opens (repeatable)")
	return cmd
}

func printMessage(w io.Writer, m proto.Message, raw bool) {
	if !raw {
		switch m.Type {
		case proto.TypeMarketData:
			if md, err := proto.AsMarketData(m); err == nil {
				fmt.Fprintf(w, "%-12s price=%.4f high=%.4f low=%.4f vol=%.2f %s\n",
					md.Symbol, md.Data.Price, md.Data.High, md.Data.Low, md.Data.Volume, md.Data.Timestamp)
				return
			}
		case proto.TypeTradeUpdate:
			if tu, err := proto.AsTradeUpdate(m); err == nil {
				line := fmt.Sprintf("trade %s status=%s", tu.TradeID, tu.Status)
				if tu.Price != nil {
					line += fmt.Sprintf(" price=%.4f", *tu.Price)
				}
				if tu.ExecutedAt != nil {
					line += " at=" + *tu.ExecutedAt
				}
				fmt.Fprintln(w, line)
				return
			}
		}
	}
	b, _ := m.MarshalJSON()
	fmt.Fprintln(w, string(b))
}
