package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/di"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/metrics"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/config"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/logger"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/pkg/telemetry"
)

// app carries the state shared by every command of one invocation
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// persistent flags
	configPath       string
	format           string
	outputDir        string
	registrationType string
	paymentStatus    string

	// run flags
	dryRun         bool
	force          bool
	registrationID string
	correctTickets bool

	cfg       *config.Config
	log       *logger.Logger
	container *di.Container
	// connect builds the container from configuration; tests preset
	// container instead
	connect func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*di.Container, error)

	command string
	started time.Time
}

func newApp(in io.Reader, out, errOut io.Writer) *app {
	return &app{
		in:      in,
		out:     out,
		errOut:  errOut,
		connect: di.Build,
	}
}

// execute runs the CLI and returns the process exit code
func (a *app) execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.rootCmd()
	root.SetArgs(args)
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	err := root.ExecuteContext(ctx)
	a.finish(err)
	if err != nil {
		fmt.Fprintln(a.errOut, "Error:", err)
		return 1
	}
	return 0
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile LodgeTix registrations against event tickets and packages",
		Long: `reconcile normalizes registration documents to the canonical ticket shape,
resolves every ticket against eventTickets and packages, and writes the
corrections back one document at a time. Without a subcommand it runs the
full pipeline.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "env file to load instead of .env")
	pf.StringVar(&a.format, "format", "text", "output format: text, json, csv or xlsx")
	pf.StringVarP(&a.outputDir, "output", "o", "", "write the report into this directory instead of stdout")
	pf.StringVar(&a.registrationType, "registration-type", "", "only registrations of this type")
	pf.StringVar(&a.paymentStatus, "payment-status", "", "only registrations with this payment status")

	run := a.runCmd()
	root.RunE = run.RunE
	a.runFlags(root)

	root.AddCommand(
		run,
		a.duplicatesCmd(),
		a.discrepanciesCmd(),
		a.reportCmd(),
		a.ticketCountsCmd(),
		a.verifyPaymentsCmd(),
		a.auditSourceCmd(),
		a.matchPaymentsCmd(),
	)
	return root
}

// setup loads configuration and connects once per invocation
func (a *app) setup(cmd *cobra.Command, args []string) error {
	a.command = cmd.Name()
	a.started = time.Now()
	ctx := cmd.Context()

	if _, err := parseOutputFormat(a.format); err != nil {
		return err
	}

	if a.cfg == nil {
		var err error
		if a.configPath != "" {
			a.cfg, err = config.LoadWithPath(a.configPath)
		} else {
			a.cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	if a.log == nil {
		if err := logger.Init(&logger.Config{
			Level:       a.cfg.App.Environment,
			ServiceName: a.cfg.App.Name,
			Development: a.cfg.IsDevelopment(),
		}); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		a.log = logger.Get()
	}

	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        a.cfg.OTel.Enabled,
		ServiceName:    a.cfg.OTel.ServiceName,
		ServiceVersion: a.cfg.App.Version,
		Environment:    a.cfg.App.Environment,
		CollectorAddr:  a.cfg.OTel.CollectorAddr,
		SampleRatio:    a.cfg.OTel.SampleRatio,
	}); err != nil {
		a.log.Warn("Tracing disabled", zap.Error(err))
	}

	if a.cfg.Metrics.Enabled {
		if err := metrics.Init(); err != nil {
			return fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	if a.container == nil {
		c, err := a.connect(ctx, a.cfg, a.log)
		if err != nil {
			return err
		}
		a.container = c
	}
	return nil
}

// finish records the run, pushes metrics and closes connections. It runs
// after failures too.
func (a *app) finish(err error) {
	if a.started.IsZero() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	metrics.RecordRun(a.command, a.started)
	if a.cfg != nil && a.cfg.Metrics.Enabled {
		if perr := metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName); perr != nil {
			a.log.Warn("Failed to push metrics", zap.Error(perr))
		}
	}

	if err != nil {
		a.log.Error("Command failed", zap.String("command", a.command), zap.Error(err))
	} else {
		a.log.Info("Command finished", zap.String("command", a.command), zap.Duration("duration", time.Since(a.started)))
	}

	if a.container != nil {
		a.container.Close(ctx)
	}
	if terr := telemetry.Shutdown(ctx); terr != nil {
		a.log.Warn("Failed to flush traces", zap.Error(terr))
	}
	logger.Sync()
}

// filter builds the registrations query from the persistent flags
func (a *app) filter() bson.M {
	filter := bson.M{}
	if a.registrationType != "" {
		filter["registrationType"] = a.registrationType
	}
	if a.paymentStatus != "" {
		filter["paymentStatus"] = a.paymentStatus
	}
	return filter
}
