package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/mbocsi/tradedash/api"
	"github.com/spf13/cobra"
)

func newStrategiesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strategies",
		Short: "List, create and subscribe to strategies",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			_, err := e.authenticate()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			all, err := e.api.Strategies(ctx)
			if err != nil {
				return err
			}
			mine, err := e.api.MyStrategies(ctx)
			if err != nil {
				return err
			}
			return printStrategies(cmd, all, mine)
		},
	}

	var description string
	create := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := e.api.CreateStrategy(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created strategy %d %s\n", s.ID, s.Name)
			return nil
		},
	}
	create.Flags().StringVarP(&description, "description", "d", "", "Strategy description")

	subscribe := &cobra.Command{
		Use:   "subscribe <id>",
		Short: "Subscribe to a strategy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid strategy id %q", args[0])
			}
			if err := e.api.SubscribeStrategy(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Subscribed to strategy %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(create, subscribe)
	return cmd
}

func printStrategies(cmd *cobra.Command, all, mine []api.Strategy) error {
	subscribed := make(map[int64]bool, len(mine))
	for _, s := range mine {
		subscribed[s.ID] = true
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSUBSCRIBED\tDESCRIPTION")
	for _, s := range all {
		mark := ""
		if subscribed[s.ID] {
			mark = "yes"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", s.ID, s.Name, mark, s.Description)
	}
	return w.Flush()
}
