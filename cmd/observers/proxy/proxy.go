// Package proxycmder provides the recording proxy command.
package proxycmder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cfahlgren1/observers/pkg/config"
	"github.com/cfahlgren1/observers/pkg/logger"
	"github.com/cfahlgren1/observers/pkg/store/local"
	"github.com/cfahlgren1/observers/proxy"
	"github.com/cfahlgren1/observers/proxy/header"
)

type proxyCommander struct {
	flags struct {
		listen     string
		upstream   string
		provider   string
		clientName string
		backend    string
		sqlitePath string
		postgres   string
		logFile    string
		tags       []string
	}

	v      *viper.Viper
	debug  bool
	logger *slog.Logger
}

var proxyFlags = []string{
	config.FlagListen,
	config.FlagUpstream,
	config.FlagProvider,
	config.FlagClientName,
	config.FlagBackend,
	config.FlagSQLite,
	config.FlagPostgres,
}

const proxyLongDesc string = `Run the recording proxy.

The proxy forwards every request unchanged to the configured upstream and
turns each chat call into an observation record stored in the local record
store (table <client>_records). Streaming responses are passed through as
they arrive and recorded once the stream ends.

Supported provider types: openai, anthropic, ollama. Requests to
/providers/{name}/... are parsed as that provider and routed to its
default upstream.

Clients may set the ` + header.ClientNameHeader + ` header to pick the record table
and ` + header.TagsHeader + ` (comma separated) to tag a single call.`

const proxyShortDesc string = "Run the recording LLM proxy"

func NewProxyCmd() *cobra.Command {
	cmder := &proxyCommander{}

	cmd := &cobra.Command{
		Use:   "proxy",
		Short: proxyShortDesc,
		Long:  proxyLongDesc,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, proxyFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagUpstream, &cmder.flags.upstream)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.flags.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagClientName, &cmder.flags.clientName)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.flags.backend)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	cmd.Flags().StringSliceVar(&cmder.flags.tags, "tag", nil, "Tag stamped on every record (repeatable)")
	cmd.Flags().StringVar(&cmder.flags.logFile, "log-file", "", "Also write JSON logs to this file")

	return cmd
}

func (c *proxyCommander) run(ctx context.Context) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.flags.logFile != "" {
		f, err := os.OpenFile(c.flags.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		defer f.Close()
		c.logger = logger.Multi(c.logger, logger.New(
			logger.WithWriter(f),
			logger.WithJSON(true),
			logger.WithDebug(c.debug),
			logger.WithSource(c.debug),
		))
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := local.Open(ctx, local.Config{
		Backend:     c.v.GetString("storage.backend"),
		SQLitePath:  c.v.GetString("storage.sqlite_path"),
		PostgresDSN: c.v.GetString("storage.postgres_dsn"),
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.logger.Info("using record store",
		"backend", c.v.GetString("storage.backend"),
		"sqlite_path", c.v.GetString("storage.sqlite_path"),
	)

	p, err := proxy.New(proxy.Config{
		ListenAddr:   c.v.GetString("proxy.listen"),
		UpstreamURL:  c.v.GetString("proxy.upstream"),
		ProviderType: c.v.GetString("proxy.provider"),
		ClientName:   c.v.GetString("proxy.client_name"),
		Tags:         c.flags.tags,
	}, s, c.logger)
	if err != nil {
		s.Close()
		return fmt.Errorf("creating proxy: %w", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run() }()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		c.logger.Info("shutting down proxy")
	}

	// Close drains queued records and closes the store.
	if closeErr := p.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
