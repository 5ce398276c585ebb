// Package pushcmder provides the command that ships locally recorded rows
// to a remote backend.
package pushcmder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cfahlgren1/observers/pkg/cliui"
	"github.com/cfahlgren1/observers/pkg/config"
	"github.com/cfahlgren1/observers/pkg/dotdir"
	"github.com/cfahlgren1/observers/pkg/logger"
	"github.com/cfahlgren1/observers/pkg/store"
	"github.com/cfahlgren1/observers/pkg/store/argilla"
	"github.com/cfahlgren1/observers/pkg/store/datasets"
	"github.com/cfahlgren1/observers/pkg/store/kafka"
	"github.com/cfahlgren1/observers/pkg/store/local"
	"github.com/cfahlgren1/observers/pkg/store/opentelemetry"
	"github.com/cfahlgren1/observers/pkg/utils"
)

// Remote backends.
const (
	BackendDatasets      = "datasets"
	BackendArgilla       = "argilla"
	BackendKafka         = "kafka"
	BackendOpenTelemetry = "opentelemetry"
)

// Backends lists the remote backends push accepts.
var Backends = []string{BackendDatasets, BackendArgilla, BackendKafka, BackendOpenTelemetry}

type pushCommander struct {
	flags struct {
		backend    string
		sqlitePath string
		postgres   string
		org        string
		repo       string
		every      uint
		private    bool
		squash     bool
		argillaURL string
		workspace  string
		dataset    string
		brokers    []string
		topic      string
		endpoint   string
		insecure   bool
	}

	v         *viper.Viper
	configDir string
	debug     bool
	logger    *slog.Logger
}

var pushFlags = []string{
	config.FlagBackend,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagDatasetsOrg,
	config.FlagDatasetsRep,
	config.FlagDatasetsEvr,
	config.FlagKafkaTopic,
}

const pushLongDesc string = `Push unsynced records to a remote backend.

Every row of the local record store that has not been pushed yet is sent to
the chosen backend, then marked synced. Rows are only marked once the remote
store has flushed without error, so a failed push can simply be retried.

Backends:
  datasets        Commit JSON Lines files to a dataset hub repository (HF_TOKEN)
  argilla         Create annotation records in Argilla (ARGILLA_API_URL, ARGILLA_API_KEY)
  kafka           Publish a RecordAdded event per record
  opentelemetry   Export one span per record over OTLP gRPC

With a table argument only that table is pushed.`

const pushShortDesc string = "Push unsynced records to a remote backend"

func NewPushCmd() *cobra.Command {
	cmder := &pushCommander{}

	cmd := &cobra.Command{
		Use:       "push <backend> [table]",
		Short:     pushShortDesc,
		Long:      pushLongDesc,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: Backends,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, pushFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			var tables []string
			if len(args) == 2 {
				tables = []string{args[1]}
			}
			return cmder.run(cmd.Context(), cmd.OutOrStdout(), args[0], tables)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.flags.backend)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	config.AddStringFlag(cmd, config.Flags, config.FlagDatasetsOrg, &cmder.flags.org)
	config.AddStringFlag(cmd, config.Flags, config.FlagDatasetsRep, &cmder.flags.repo)
	config.AddUintFlag(cmd, config.Flags, config.FlagDatasetsEvr, &cmder.flags.every)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.flags.topic)
	cmd.Flags().BoolVar(&cmder.flags.private, "private", false, "Create private dataset hub repositories")
	cmd.Flags().BoolVar(&cmder.flags.squash, "squash", false, "Squash dataset hub history after pushing")
	cmd.Flags().StringVar(&cmder.flags.argillaURL, "argilla-url", "", "Argilla API URL (default $ARGILLA_API_URL)")
	cmd.Flags().StringVar(&cmder.flags.workspace, "workspace", "", "Argilla workspace (default the user's first workspace)")
	cmd.Flags().StringVar(&cmder.flags.dataset, "dataset", "", "Argilla dataset name (default the table name)")
	cmd.Flags().StringSliceVar(&cmder.flags.brokers, "brokers", nil, "Kafka broker addresses")
	cmd.Flags().StringVar(&cmder.flags.endpoint, "otlp-endpoint", "", "OTLP gRPC endpoint (default from OTEL_EXPORTER_OTLP_ENDPOINT)")
	cmd.Flags().BoolVar(&cmder.flags.insecure, "insecure", false, "Disable TLS for the OTLP endpoint")

	return cmd
}

func (c *pushCommander) run(ctx context.Context, out io.Writer, backend string, tables []string) error {
	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))

	if !lo.Contains(Backends, backend) {
		return fmt.Errorf("unknown backend %q (valid: %s)", backend, strings.Join(Backends, ", "))
	}

	src, err := local.Open(ctx, local.Config{
		Backend:     c.v.GetString("storage.backend"),
		SQLitePath:  c.v.GetString("storage.sqlite_path"),
		PostgresDSN: c.v.GetString("storage.postgres_dsn"),
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	var counts map[string]int
	err = cliui.Step(out, "Pushing records to "+backend, func() error {
		dst, err := c.remote(ctx, backend)
		if err != nil {
			return err
		}
		counts, err = Push(ctx, src, dst, tables, c.logger)
		return err
	})
	if len(counts) > 0 {
		if saveErr := c.savePushState(backend, counts); saveErr != nil {
			c.logger.Warn("could not save push state", "error", saveErr)
		}
		printCounts(out, counts)
	}
	return err
}

// remote connects to the chosen backend.
func (c *pushCommander) remote(ctx context.Context, backend string) (store.Store, error) {
	switch backend {
	case BackendDatasets:
		return datasets.Connect(ctx, datasets.Config{
			Org:           c.v.GetString("datasets.org"),
			Repo:          c.v.GetString("datasets.repo"),
			Every:         c.v.GetInt("datasets.every"),
			Private:       c.flags.private || c.v.GetBool("datasets.private"),
			SquashHistory: c.flags.squash,
			Logger:        c.logger,
		})

	case BackendArgilla:
		return argilla.Connect(ctx, argilla.Config{
			APIURL:        lo.CoalesceOrEmpty(c.flags.argillaURL, c.v.GetString("argilla.api_url")),
			DatasetName:   c.flags.dataset,
			WorkspaceName: lo.CoalesceOrEmpty(c.flags.workspace, c.v.GetString("argilla.workspace")),
			Logger:        c.logger,
		})

	case BackendKafka:
		brokers := c.flags.brokers
		if len(brokers) == 0 {
			brokers = splitList(c.v.GetStringSlice("kafka.brokers"))
		}
		return kafka.NewStore(kafka.Config{
			Brokers: brokers,
			Topic:   c.v.GetString("kafka.topic"),
			Logger:  c.logger,
		})

	default:
		return opentelemetry.Connect(ctx, opentelemetry.Config{
			ServiceVersion: utils.Version,
			Endpoint:       lo.CoalesceOrEmpty(c.flags.endpoint, c.v.GetString("telemetry.endpoint")),
			Insecure:       c.flags.insecure || c.v.GetBool("telemetry.insecure"),
			Logger:         c.logger,
		})
	}
}

func (c *pushCommander) savePushState(backend string, counts map[string]int) error {
	m := dotdir.NewManager()
	state, err := m.LoadPushState(c.configDir)
	if err != nil {
		return err
	}
	now := time.Now()
	for table, n := range counts {
		state.Record(table, backend, n, now)
	}
	return m.SavePushState(state, c.configDir)
}

func printCounts(w io.Writer, counts map[string]int) {
	tables := lo.Keys(counts)
	sort.Strings(tables)

	rows := lo.Map(tables, func(t string, _ int) []string {
		return []string{t, strconv.Itoa(counts[t])}
	})
	cliui.Table(w, []string{"TABLE", "PUSHED"}, rows)
}

// splitList accepts both list values and comma separated strings, as set
// through OBSERVERS_KAFKA_BROKERS.
func splitList(values []string) []string {
	return lo.Compact(lo.FlatMap(values, func(v string, _ int) []string {
		return lo.Map(strings.Split(v, ","), func(s string, _ int) string { return strings.TrimSpace(s) })
	}))
}
