package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/api"
	"github.com/snarg/transcribe-etl/internal/config"
	"github.com/snarg/transcribe-etl/internal/database"
	"github.com/snarg/transcribe-etl/internal/etl"
	"github.com/snarg/transcribe-etl/internal/ingest"
	"github.com/snarg/transcribe-etl/internal/load"
	"github.com/snarg/transcribe-etl/internal/metrics"
	"github.com/snarg/transcribe-etl/internal/mqttclient"
	"github.com/snarg/transcribe-etl/internal/stage"
	"github.com/snarg/transcribe-etl/internal/storage"
	"github.com/snarg/transcribe-etl/internal/transcript"
)

var version = "dev"

const usage = `usage: transcribe-etl [run|serve|parse] [flags] [files...]

  run    stage the source container, transform every export and load the artifacts (default)
  serve  run the HTTP API and, when INBOX_DIR is set, watch it for new exports
  parse  print the groups of the given export files as JSON
`

func main() {
	cmd, args := "run", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "run", "serve":
		err = runService(cmd, args)
	case "parse":
		err = runParse(args, os.Stdout)
	case "help":
		fmt.Fprint(os.Stdout, usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		os.Exit(1)
	}
}

func newFlagSet(name string, ov *config.Overrides) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage+"\nflags:\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&ov.EnvFile, "env-file", "", "path to .env file (default .env)")
	fs.StringVar(&ov.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&ov.HTTPAddr, "http-addr", "", "HTTP listen address")
	fs.StringVar(&ov.DatabaseURL, "database-url", "", "PostgreSQL connection URL")
	fs.StringVar(&ov.SourceDir, "source-dir", "", "directory holding the source containers")
	fs.StringVar(&ov.OutputDir, "output-dir", "", "directory artifacts are written to")
	fs.StringVar(&ov.InboxDir, "inbox-dir", "", "directory watched for new exports (serve)")
	return fs
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}

// runParse decodes export files without touching any store and prints their
// groups. With -text it prints one utterance per line instead.
func runParse(args []string, out io.Writer) error {
	var ov config.Overrides
	fs := newFlagSet("parse", &ov)
	text := fs.Bool("text", false, "print utterances as text instead of JSON")
	fs.Parse(args)

	log := newLogger(ov.LogLevel).Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if fs.NArg() == 0 {
		log.Error().Msg("parse needs at least one export file")
		return errors.New("no input")
	}

	var failed bool
	var groups []transcript.Group
	for _, path := range fs.Args() {
		res, err := transcript.ParseFile(path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("parse failed")
			failed = true
			continue
		}
		if res.Dangling {
			log.Warn().Str("path", path).Msg("document ended with an unresolved continuation")
		}
		groups = append(groups, res.Groups...)
	}

	if *text {
		for _, g := range groups {
			fmt.Fprintln(out, g.File)
			for _, u := range g.Utterances {
				fmt.Fprintf(out, "  %s - %s  %s %s\n",
					transcript.FormatTimestamp(u.Start), transcript.FormatTimestamp(u.End), u.SpeakerTag, u.Text)
			}
		}
	} else {
		if groups == nil {
			groups = []transcript.Group{}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(groups); err != nil {
			return err
		}
	}

	if failed {
		return errors.New("one or more files failed to parse")
	}
	return nil
}

func runService(cmd string, args []string) error {
	startTime := time.Now()

	var ov config.Overrides
	fs := newFlagSet(cmd, &ov)
	fs.Parse(args)

	cfg, err := config.Load(ov)
	if err != nil {
		early := zerolog.New(os.Stderr).With().Timestamp().Logger()
		early.Error().Err(err).Msg("failed to load config")
		return err
	}

	log := newLogger(cfg.LogLevel)
	log.Info().Str("version", version).Str("command", cmd).Msg("transcribe-etl starting")

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("startup failed")
		return err
	}
	defer a.close()

	if cmd == "run" {
		return a.runOnce(ctx)
	}
	return a.serve(ctx, startTime)
}

// app holds the wired dependencies shared by run and serve.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	db       *database.DB
	mqtt     *mqttclient.Client
	runner   *etl.Runner
	pruner   *storage.StagePruner
	services []storage.BackgroundService
}

func setup(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// Database (optional)
	var lookup load.MetadataLookup
	var dumper stage.TableDumper
	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.db = db
		db.QAReportTable = cfg.QAReportTable
		if err := db.Migrate(ctx); err != nil {
			var me *database.MigrationError
			if errors.As(err, &me) {
				fmt.Fprintln(os.Stderr, me.Error())
			}
			return nil, err
		}
		lookup, dumper = db, db
	} else {
		log.Warn().Msg("DATABASE_URL not set, metadata lookup and export ledger disabled")
	}

	source, err := storage.NewSourceStore(cfg.S3, cfg.SourceBucket, cfg.SourceDir, log)
	if err != nil {
		return nil, err
	}
	artifacts, services, err := storage.NewArtifactStore(cfg.S3, cfg.OutputDir, log)
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		s.Start()
	}
	a.services = services
	log.Info().Str("type", artifacts.Type()).Str("output_dir", cfg.OutputDir).Msg("artifact store ready")

	// MQTT (optional)
	var notifier etl.Notifier
	if cfg.MQTTBrokerURL != "" {
		mqtt, err := mqttclient.Connect(mqttclient.Options{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
			Topic:     cfg.MQTTTopic,
			Username:  cfg.MQTTUsername,
			Password:  cfg.MQTTPassword,
			Log:       log,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mqtt: %w", err)
		}
		a.mqtt = mqtt
		notifier = mqtt
	}

	loader := load.NewLoader(artifacts, lookup, log)
	a.runner = etl.NewRunner(etl.Options{
		Container:     cfg.ContainerName,
		FileType:      cfg.FileType,
		StageDir:      cfg.StageDir,
		QAReportTable: cfg.QAReportTable,
		FailFast:      cfg.FailFast,
	}, source, dumper, loader, notifier, log)
	a.pruner = storage.NewStagePruner(cfg.StageDir, cfg.StageRetention, log)

	ok = true
	return a, nil
}

func (a *app) runOnce(ctx context.Context) error {
	a.pruner.RunOnce()
	report, err := a.runner.Run(ctx)
	if err != nil {
		a.log.Error().Err(err).Msg("run failed")
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", report.Failed, report.Files)
	}
	return nil
}

func (a *app) serve(ctx context.Context, startTime time.Time) error {
	a.pruner.Start()
	defer a.pruner.Stop()

	opts := api.ServerOptions{
		Config:    a.cfg,
		Pipeline:  a.runner,
		Version:   version,
		StartTime: startTime,
		Log:       a.log,
	}
	var pool metrics.PoolStats
	if a.db != nil {
		opts.DB = a.db
		pool = a.db
	}
	if a.mqtt != nil {
		opts.MQTT = a.mqtt
	}

	// Inbox watcher (optional)
	var watcherStats metrics.WatcherStats
	if a.cfg.InboxDir != "" {
		var ledger ingest.Ledger
		if a.db != nil {
			ledger = a.db
		}
		fw := ingest.NewFileWatcher(a.runner, ledger, ingest.WatcherOptions{
			Dir:      a.cfg.InboxDir,
			FileType: a.cfg.FileType,
			Workers:  a.cfg.WatchWorkers,
			Backfill: true,
		}, a.log)
		if err := fw.Start(ctx); err != nil {
			a.log.Error().Err(err).Msg("failed to start file watcher")
			return err
		}
		defer fw.Stop()
		opts.Watcher = fw
		watcherStats = fw
	}
	prometheus.MustRegister(metrics.NewCollector(pool, watcherStats))

	srv := api.NewServer(opts)

	// Start HTTP server in background
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	// Wait for shutdown signal or server error
	var serveErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		if serveErr != nil {
			a.log.Error().Err(serveErr).Msg("http server error")
		}
	}

	// Graceful shutdown with 10s timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown error")
	}
	return serveErr
}

func (a *app) close() {
	// Stop in reverse start order; the uploader drains its queue on Stop.
	for i := len(a.services) - 1; i >= 0; i-- {
		a.services[i].Stop()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	a.log.Info().Msg("transcribe-etl stopped")
}
