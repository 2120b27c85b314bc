package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"hoist/internal/config"
)

// commandContext carries lazily resolved configuration and the API client
// shared by all subcommands.
type commandContext struct {
	configPath string
	serverAddr string
	token      string

	once sync.Once
	cfg  *config.Config
	err  error
}

func (ctx *commandContext) loadConfig() (*config.Config, error) {
	ctx.once.Do(func() {
		ctx.cfg, _, _, ctx.err = config.Load(ctx.configPath)
	})
	return ctx.cfg, ctx.err
}

// client builds the API client from flags, environment, and config, in that
// order of precedence.
func (ctx *commandContext) client() (*apiClient, error) {
	server := strings.TrimSpace(ctx.serverAddr)
	token := strings.TrimSpace(ctx.token)
	if token == "" {
		token = strings.TrimSpace(os.Getenv("HOIST_API_TOKEN"))
	}

	if server == "" || token == "" {
		cfg, err := ctx.loadConfig()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		if server == "" {
			server = cfg.Paths.APIBind
		}
		if token == "" {
			token = cfg.Paths.APIToken
		}
	}
	if server == "" {
		return nil, fmt.Errorf("no API address configured; pass --server or set paths.api_bind")
	}
	if !strings.Contains(server, "://") {
		server = "http://" + server
	}
	return newAPIClient(server, token), nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "hoist",
		Short:         "Manage the hoist download daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&ctx.configPath, "config", "", "path to config.toml")
	root.PersistentFlags().StringVar(&ctx.serverAddr, "server", "", "daemon API address (host:port or URL)")
	root.PersistentFlags().StringVar(&ctx.token, "token", "", "API bearer token")

	root.AddCommand(newStatusCommand(ctx))
	root.AddCommand(newListCommand(ctx))
	root.AddCommand(newAddCommand(ctx))
	root.AddCommand(newRemoveCommand(ctx))
	root.AddCommand(newFlagsCommand(ctx))
	root.AddCommand(newFilesCommand(ctx))
	root.AddCommand(newNotifyTestCommand(ctx))
	root.AddCommand(newConfigCommand(ctx))

	return root
}
