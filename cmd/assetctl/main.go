package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/odyssey-erp/assettrack/cmd/assetctl/ops"
	"github.com/odyssey-erp/assettrack/internal/app"
	"github.com/odyssey-erp/assettrack/internal/assets"
	"github.com/odyssey-erp/assettrack/internal/platform/db"
	"github.com/odyssey-erp/assettrack/internal/procurement"
	"github.com/odyssey-erp/assettrack/internal/shared"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("load .env", slog.Any("error", err))
	}
	if err := newApp().Run(os.Args); err != nil {
		slog.Default().Error("assetctl", slog.Any("error", err))
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "assetctl",
		Usage: "Operate purchase order and asset documents from the command line",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log output format (json or pretty)",
				Value:   "pretty",
				EnvVars: []string{"LOG_FORMAT"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "scan-pdf",
				Usage:     "Parse a purchase order PDF and print the draft",
				ArgsUsage: "<file.pdf>",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(c *cli.Context) error {
					docs := ops.NewDocumentsCLI(nil, nil)
					return exit(docs.ScanCommand(c.Context, c.Args().First(), output(c)))
				},
			},
			{
				Name:      "check-po",
				Usage:     "Validate a purchase order workbook without importing it",
				ArgsUsage: "<file.xlsx>",
				Flags:     []cli.Flag{jsonFlag()},
				Action: func(c *cli.Context) error {
					docs := ops.NewDocumentsCLI(nil, nil)
					return exit(docs.CheckCommand(c.Context, c.Args().First(), output(c)))
				},
			},
			{
				Name:      "import-po",
				Usage:     "Import a purchase order workbook",
				ArgsUsage: "<file.xlsx>",
				Flags:     []cli.Flag{dbURLFlag(), jsonFlag()},
				Action: withDocuments(func(c *cli.Context, docs *ops.DocumentsCLI) int {
					return docs.ImportOrdersCommand(c.Context, c.Args().First(), output(c))
				}),
			},
			{
				Name:      "import-assets",
				Usage:     "Import an asset workbook",
				ArgsUsage: "<file.xlsx>",
				Flags:     []cli.Flag{dbURLFlag(), jsonFlag()},
				Action: withDocuments(func(c *cli.Context, docs *ops.DocumentsCLI) int {
					return docs.ImportAssetsCommand(c.Context, c.Args().First(), output(c))
				}),
			},
			{
				Name:  "export-po",
				Usage: "Export purchase orders to an xlsx workbook",
				Flags: []cli.Flag{
					dbURLFlag(),
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Destination file", Value: "purchase-orders.xlsx"},
					&cli.StringFlag{Name: "status", Usage: "Only orders with this status"},
					&cli.StringFlag{Name: "search", Usage: "Match PO number or vendor"},
				},
				Action: withDocuments(func(c *cli.Context, docs *ops.DocumentsCLI) int {
					filters := procurement.ListFilters{
						Status: procurement.POStatus(c.String("status")),
						Search: c.String("search"),
					}
					return docs.ExportCommand(c.Context, c.String("out"), filters, output(c))
				}),
			},
			jobsCommand(),
		},
	}
}

func jobsCommand() *cli.Command {
	redisFlag := &cli.StringFlag{
		Name:    "redis-addr",
		Usage:   "Redis address used by the job queue",
		Value:   "127.0.0.1:6379",
		EnvVars: []string{"REDIS_ADDR"},
	}
	retentionFlag := &cli.DurationFlag{
		Name:    "retention",
		Usage:   "Idempotency key retention for manual cleanup runs",
		Value:   7 * 24 * time.Hour,
		EnvVars: []string{"IDEMPOTENCY_RETENTION"},
	}
	withJobs := func(fn func(c *cli.Context, jobsCLI *ops.JobsCLI) error) cli.ActionFunc {
		return func(c *cli.Context) error {
			jobsCLI, err := ops.NewJobsCLI(c.String("redis-addr"), c.Duration("retention"))
			if err != nil {
				return err
			}
			defer jobsCLI.Close()
			return fn(c, jobsCLI)
		}
	}
	return &cli.Command{
		Name:  "jobs",
		Usage: "Inspect and trigger background jobs",
		Flags: []cli.Flag{redisFlag, retentionFlag},
		Subcommands: []*cli.Command{
			{
				Name:      "trigger",
				Usage:     "Enqueue a job by task type",
				ArgsUsage: "<task-type> [workbook path]",
				Action: withJobs(func(c *cli.Context, jobsCLI *ops.JobsCLI) error {
					info, err := jobsCLI.Trigger(c.Context, c.Args().Get(0), c.Args().Get(1))
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.App.Writer, "enqueued %s as %s\n", info.Type, info.ID)
					return nil
				}),
			},
			{
				Name:  "stats",
				Usage: "Show default queue counters",
				Action: withJobs(func(c *cli.Context, jobsCLI *ops.JobsCLI) error {
					stats, err := jobsCLI.InspectQueue(c.Context)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(c.App.Writer, "queue %s: pending=%d active=%d scheduled=%d retry=%d archived=%d\n",
						stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
					return nil
				}),
			},
			{
				Name:  "archived",
				Usage: "List tasks that exhausted their retries",
				Flags: []cli.Flag{&cli.IntFlag{Name: "size", Value: 10}},
				Action: withJobs(func(c *cli.Context, jobsCLI *ops.JobsCLI) error {
					tasks, err := jobsCLI.ListArchived(c.Context, c.Int("size"))
					if err != nil {
						return err
					}
					for _, t := range tasks {
						_, _ = fmt.Fprintf(c.App.Writer, "%s %s %s\n", t.ID, t.Type, t.LastErr)
					}
					return nil
				}),
			},
		},
	}
}

func withDocuments(fn func(c *cli.Context, docs *ops.DocumentsCLI) int) cli.ActionFunc {
	return func(c *cli.Context) error {
		logger := app.NewLogger(&app.Config{LogFormat: c.String("log-format")})
		pool, err := db.New(c.Context, c.String("db-url"))
		if err != nil {
			return err
		}
		defer pool.Close()

		service := procurement.NewService(procurement.NewRepository(pool), shared.NewAuditLogger(pool), nil, logger, 0)
		assetRepo := assets.NewRepository(pool)
		docs := ops.NewDocumentsCLI(service, assets.NewImporter(assetRepo, assetRepo, logger))
		return exit(fn(c, docs))
	}
}

func dbURLFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "db-url",
		Usage:    "PostgreSQL connection string",
		Required: true,
		EnvVars:  []string{"PG_DSN"},
	}
}

func jsonFlag() *cli.BoolFlag {
	return &cli.BoolFlag{Name: "json", Usage: "Print machine readable output"}
}

func output(c *cli.Context) ops.Output {
	return ops.Output{JSONOutput: c.Bool("json"), Stdout: c.App.Writer, Stderr: c.App.ErrWriter}
}

func exit(code int) error {
	if code == 0 {
		return nil
	}
	return cli.Exit("", code)
}
