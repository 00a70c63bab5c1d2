package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mbocsi/tradedash/api"
	"github.com/mbocsi/tradedash/auth"
	"github.com/mbocsi/tradedash/config"
	"github.com/mbocsi/tradedash/logging"
	"github.com/spf13/cobra"
)

// env is the state every subcommand shares, built once in PersistentPreRunE.
type env struct {
	cfg   *config.Config
	log   *slog.Logger
	store *auth.Store
	api   *api.Client
}

type rootFlags struct {
	configPath string
	apiURL     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	e := &env{}

	root := &cobra.Command{
		Use:           "tradedash",
		Short:         "Terminal and local web dashboard for the trading API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.init(flags, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", os.Getenv("TRADEDASH_CONFIG"), "Path to YAML config file")
	root.PersistentFlags().StringVar(&flags.apiURL, "api", "", "Override api.base_url")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override log.level (debug, info, warn, error)")

	root.AddCommand(
		newLoginCmd(e),
		newLogoutCmd(e),
		newWhoamiCmd(e),
		newServeCmd(e),
		newTailCmd(e),
		newPortfolioCmd(e),
		newTradesCmd(e),
		newMarketCmd(e),
		newStrategiesCmd(e),
	)
	return root
}

func (e *env) init(flags rootFlags, logOut io.Writer) error {
	cfg, err := config.LoadWith(flags.configPath, config.Overrides{
		APIBaseURL: flags.apiURL,
		LogLevel:   flags.logLevel,
	})
	if err != nil {
		return err
	}

	// logs always go to stderr so stdout stays clean for output and MCP stdio
	e.cfg = cfg
	e.log = logging.Setup(cfg.Log.Level, cfg.Log.Format, logOut)
	e.store = auth.NewStore(cfg.Auth.TokenFile, cfg.Auth.TokenEnv)
	e.api = api.NewClient(cfg.API.BaseURL, api.WithTimeout(cfg.API.Timeout), api.WithLogger(e.log))
	return nil
}

// authenticate loads the saved token into the API client.
func (e *env) authenticate() (string, error) {
	token, err := e.store.Load()
	if err != nil {
		return "", fmt.Errorf("%w; run `tradedash login` first", err)
	}
	e.api.SetToken(token)
	return token, nil
}
