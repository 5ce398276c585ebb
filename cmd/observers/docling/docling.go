// Package doclingcmder provides the document conversion command.
package doclingcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cfahlgren1/observers/pkg/cliui"
	"github.com/cfahlgren1/observers/pkg/config"
	"github.com/cfahlgren1/observers/pkg/logger"
	"github.com/cfahlgren1/observers/pkg/observer"
	"github.com/cfahlgren1/observers/pkg/observer/docling"
	"github.com/cfahlgren1/observers/pkg/store/local"
)

// APIKeyEnv names the environment variable holding the docling-serve API key.
const APIKeyEnv = "DOCLING_API_KEY"

type doclingCommander struct {
	flags struct {
		target     string
		backend    string
		sqlitePath string
		postgres   string
		media      []string
		tags       []string
		pageRange  []int
	}

	v      *viper.Viper
	debug  bool
	logger *slog.Logger
}

var doclingFlags = []string{
	config.FlagDocling,
	config.FlagBackend,
	config.FlagSQLite,
	config.FlagPostgres,
}

const doclingLongDesc string = `Convert documents with docling-serve and record every item.

Each argument is a local file (uploaded) or an http(s) URL (fetched by the
server). Every text, picture and table item of the converted document is
stored as one row of the docling_records table in the local record store.
Pictures and tables carry a PNG crop of their region.

The API key, if the server requires one, is read from ` + APIKeyEnv + `.`

const doclingShortDesc string = "Convert documents and record their items"

func NewDoclingCmd() *cobra.Command {
	cmder := &doclingCommander{}

	cmd := &cobra.Command{
		Use:   "docling <file-or-url>...",
		Short: doclingShortDesc,
		Long:  doclingLongDesc,
		Args:  cobra.MinimumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, doclingFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagDocling, &cmder.flags.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.flags.backend)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	cmd.Flags().StringSliceVar(&cmder.flags.media, "media", nil,
		"Item kinds to record: "+strings.Join(docling.MediaTypes, ", ")+" (default all)")
	cmd.Flags().StringSliceVar(&cmder.flags.tags, "tag", nil, "Tag stamped on every record (repeatable)")
	cmd.Flags().IntSliceVar(&cmder.flags.pageRange, "pages", nil, "First and last page to convert, e.g. --pages 1,3")

	return cmd
}

func (c *doclingCommander) run(ctx context.Context, out io.Writer, args []string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	if len(c.flags.pageRange) != 0 && len(c.flags.pageRange) != 2 {
		return fmt.Errorf("--pages takes a first and last page, got %v", c.flags.pageRange)
	}

	s, err := local.Open(ctx, local.Config{
		Backend:     c.v.GetString("storage.backend"),
		SQLitePath:  c.v.GetString("storage.sqlite_path"),
		PostgresDSN: c.v.GetString("storage.postgres_dsn"),
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}

	target := c.v.GetString("docling.target")
	client := docling.NewClient(target, os.Getenv(APIKeyEnv))
	obs, err := docling.Wrap(client, c.flags.media,
		observer.WithStore(s),
		observer.WithTags(c.flags.tags...),
		observer.WithLogger(c.logger),
	)
	if err != nil {
		s.Close()
		return err
	}
	defer obs.Close()

	c.logger.Debug("converting documents", "target", target, "count", len(args))

	opts := docling.Options{PageRange: c.flags.pageRange}
	failed := 0
	for _, arg := range args {
		var pages int
		err := cliui.Step(out, "Converting "+arg, func() error {
			doc, err := c.convert(ctx, obs, arg, opts)
			if err != nil {
				return err
			}
			pages = len(doc.PageNumbers())
			return nil
		})
		if err != nil {
			failed++
			c.logger.Error("conversion failed", "source", arg, "error", err)
			continue
		}
		c.logger.Debug("recorded document", "source", arg, "pages", pages)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed to convert", failed, len(args))
	}
	return nil
}

func (c *doclingCommander) convert(ctx context.Context, obs *docling.Observer, arg string, opts docling.Options) (*docling.Document, error) {
	if isURL(arg) {
		return obs.Convert(ctx, []docling.Source{docling.URLSource(arg)}, opts)
	}

	f, err := os.Open(arg)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return obs.ConvertFile(ctx, filepath.Base(arg), f, opts)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
