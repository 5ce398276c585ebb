// Package recordscmder provides the command listing locally stored records.
package recordscmder

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cfahlgren1/observers/pkg/cliui"
	"github.com/cfahlgren1/observers/pkg/config"
	"github.com/cfahlgren1/observers/pkg/logger"
	"github.com/cfahlgren1/observers/pkg/record"
	"github.com/cfahlgren1/observers/pkg/store/local"
	"github.com/cfahlgren1/observers/pkg/store/sqldriver"
	"github.com/cfahlgren1/observers/pkg/utils"
)

const previewLen = 60

type recordsCommander struct {
	flags struct {
		backend    string
		sqlitePath string
		postgres   string
		limit      uint
		unsynced   bool
	}

	v     *viper.Viper
	debug bool
}

var recordsFlags = []string{
	config.FlagBackend,
	config.FlagSQLite,
	config.FlagPostgres,
}

const recordsLongDesc string = `List local record tables and their rows.

Without arguments, prints every record table with its row count and the
number of rows not yet pushed. With a table name, prints the newest rows
of that table.`

const recordsShortDesc string = "List locally stored records"

func NewRecordsCmd() *cobra.Command {
	cmder := &recordsCommander{}

	cmd := &cobra.Command{
		Use:   "records [table]",
		Short: recordsShortDesc,
		Long:  recordsLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, recordsFlags)
			cmder.v = v
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			d, err := cmder.open(cmd.Context())
			if err != nil {
				return err
			}
			defer d.Close()

			if len(args) == 0 {
				return cmder.listTables(cmd.Context(), cmd.OutOrStdout(), d)
			}
			return cmder.listRows(cmd.Context(), cmd.OutOrStdout(), d, args[0])
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagBackend, &cmder.flags.backend)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.flags.postgres)
	cmd.Flags().UintVarP(&cmder.flags.limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	cmd.Flags().BoolVar(&cmder.flags.unsynced, "unsynced", false, "Only show rows not yet pushed")

	return cmd
}

func (c *recordsCommander) open(ctx context.Context) (*sqldriver.Driver, error) {
	return local.Open(ctx, local.Config{
		Backend:     c.v.GetString("storage.backend"),
		SQLitePath:  c.v.GetString("storage.sqlite_path"),
		PostgresDSN: c.v.GetString("storage.postgres_dsn"),
		Logger:      logger.New(logger.WithDebug(c.debug), logger.WithPretty(true)),
	})
}

func (c *recordsCommander) listTables(ctx context.Context, w io.Writer, d *sqldriver.Driver) error {
	tables, err := d.Tables(ctx)
	if err != nil {
		return err
	}
	if len(tables) == 0 {
		fmt.Fprintln(w, cliui.DimStyle.Render("No records yet."))
		return nil
	}

	rows := make([][]string, 0, len(tables))
	for _, table := range tables {
		all, err := d.List(ctx, table, 0)
		if err != nil {
			return err
		}
		pending, err := d.Unsynced(ctx, table, 0)
		if err != nil {
			return err
		}
		rows = append(rows, []string{table, strconv.Itoa(len(all)), strconv.Itoa(len(pending))})
	}

	cliui.Table(w, []string{"TABLE", "RECORDS", "UNSYNCED"}, rows)
	return nil
}

func (c *recordsCommander) listRows(ctx context.Context, w io.Writer, d *sqldriver.Driver, table string) error {
	limit := uint64(c.flags.limit)

	var (
		list []sqldriver.Row
		err  error
	)
	if c.flags.unsynced {
		list, err = d.Unsynced(ctx, table, limit)
	} else {
		list, err = d.List(ctx, table, limit)
	}
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(list))
	for _, row := range list {
		rec, err := record.FromRow(table, row)
		if err != nil {
			return err
		}
		rows = append(rows, summarize(rec))
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, cliui.DimStyle.Render("No records in "+table+"."))
		return nil
	}
	cliui.Table(w, []string{"ID", "WHEN", "KIND", "PREVIEW", "DETAIL"}, rows)
	return nil
}

// summarize renders one table row for rec.
func summarize(rec record.Record) []string {
	switch r := rec.(type) {
	case *record.ChatCompletion:
		when := ""
		if !r.Timestamp.IsZero() {
			when = r.Timestamp.Local().Format("2006-01-02 15:04:05")
		}
		preview := r.AssistantMessage
		detail := fmt.Sprintf("%d tokens", r.TotalTokens)
		if r.Error != "" {
			preview = r.Error
			detail = cliui.FailMark + " " + record.FinishReasonError
		}
		return []string{r.ID, when, r.Model, utils.Truncate(utils.OneLine(preview), previewLen), detail}

	case *record.Docling:
		preview := r.Text
		if r.Error != "" {
			preview = r.Error
		}
		return []string{r.ID, "page " + strconv.Itoa(r.PageNo), r.Label, utils.Truncate(utils.OneLine(preview), previewLen), r.Filename}

	default:
		return []string{rec.RecordID(), "", rec.TableName(), "", ""}
	}
}
