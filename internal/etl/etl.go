// Package etl wires staging, the transcript transform and the load step into
// one pipeline run.
package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/transcribe-etl/internal/load"
	"github.com/snarg/transcribe-etl/internal/metrics"
	"github.com/snarg/transcribe-etl/internal/stage"
	"github.com/snarg/transcribe-etl/internal/storage"
	"github.com/snarg/transcribe-etl/internal/transcript"
)

// Notifier publishes a message for each loaded group.
type Notifier interface {
	Publish(subtopic string, v any) error
}

// Options controls what a run stages and how it reacts to bad documents.
type Options struct {
	Container string
	FileType  string
	StageDir  string

	// QAReportTable is dumped into the staging directory when a table
	// dumper is configured.
	QAReportTable string

	// FailFast aborts the run on the first document that fails to parse.
	FailFast bool
}

// Runner executes the extract, transform and load steps.
type Runner struct {
	opts     Options
	source   storage.Store
	dumper   stage.TableDumper
	loader   *load.Loader
	notifier Notifier
	log      zerolog.Logger
}

// NewRunner creates a runner. dumper and notifier may be nil.
func NewRunner(opts Options, source storage.Store, dumper stage.TableDumper, loader *load.Loader, notifier Notifier, log zerolog.Logger) *Runner {
	return &Runner{
		opts:     opts,
		source:   source,
		dumper:   dumper,
		loader:   loader,
		notifier: notifier,
		log:      log.With().Str("component", "etl").Logger(),
	}
}

// Report summarises a run.
type Report struct {
	ExecutionID string        `json:"execution_id"`
	StageDir    string        `json:"stage_dir"`
	Files       int           `json:"files"`
	Failed      int           `json:"failed"`
	Groups      int           `json:"groups"`
	Utterances  int           `json:"utterances"`
	Artifacts   int           `json:"artifacts"`
	Duration    time.Duration `json:"duration"`
}

// FileReport summarises one processed document.
type FileReport struct {
	Path       string          `json:"path"`
	Blocks     int             `json:"blocks"`
	Groups     int             `json:"groups"`
	Utterances int             `json:"utterances"`
	Dangling   bool            `json:"dangling"`
	Artifacts  []load.Artifact `json:"artifacts"`
}

// Run stages the source container, then transforms and loads every staged
// document. Documents that fail are counted and skipped unless FailFast is
// set, in which case the first failure ends the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	syncer := stage.NewSynchronizer(r.source, r.opts.StageDir, start, r.log)
	report := &Report{
		ExecutionID: syncer.ExecutionID().String(),
		StageDir:    syncer.Dir(),
	}
	log := r.log.With().Str("execution_id", report.ExecutionID).Logger()

	if r.dumper != nil && r.opts.QAReportTable != "" {
		if _, err := syncer.SyncTable(ctx, r.dumper, r.opts.QAReportTable, r.opts.QAReportTable); err != nil {
			return report, fmt.Errorf("stage %s: %w", r.opts.QAReportTable, err)
		}
	}

	files, err := syncer.SyncFiles(ctx, r.opts.Container, r.opts.FileType)
	if err != nil {
		return report, fmt.Errorf("stage %s: %w", r.opts.Container, err)
	}
	report.Files = len(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		fr, err := r.ProcessFile(ctx, path)
		if fr != nil {
			report.Groups += fr.Groups
			report.Utterances += fr.Utterances
			report.Artifacts += len(fr.Artifacts)
		}
		if err != nil {
			report.Failed++
			log.Error().Err(err).Str("path", path).Msg("document failed")
			if r.opts.FailFast {
				return report, err
			}
		}
	}

	report.Duration = time.Since(start)
	log.Info().
		Int("files", report.Files).
		Int("failed", report.Failed).
		Int("groups", report.Groups).
		Int("utterances", report.Utterances).
		Int("artifacts", report.Artifacts).
		Dur("duration", report.Duration).
		Msg("run complete")
	return report, nil
}

// ProcessFile transforms and loads a single export document. A partially
// loaded document returns its report together with the load error.
func (r *Runner) ProcessFile(ctx context.Context, path string) (*FileReport, error) {
	res, err := transcript.ParseFile(path)
	if err != nil {
		var fe *transcript.FormatError
		if errors.As(err, &fe) {
			metrics.DocumentsParsedTotal.WithLabelValues("format_error").Inc()
		} else {
			metrics.DocumentsParsedTotal.WithLabelValues("io_error").Inc()
		}
		return nil, err
	}
	metrics.DocumentsParsedTotal.WithLabelValues("ok").Inc()
	metrics.BlocksExtractedTotal.Add(float64(res.Blocks))
	metrics.UtterancesEmittedTotal.Add(float64(res.Utterances))

	fr := &FileReport{
		Path:       path,
		Blocks:     res.Blocks,
		Groups:     len(res.Groups),
		Utterances: res.Utterances,
		Dangling:   res.Dangling,
	}
	if res.Dangling {
		metrics.DanglingContinuationsTotal.Inc()
		r.log.Warn().Str("path", path).Msg("document ended with an unresolved continuation")
	}

	arts, loadErr := r.loader.Load(ctx, res.Groups)
	fr.Artifacts = arts
	r.notify(arts)

	r.log.Info().
		Str("path", path).
		Int("blocks", fr.Blocks).
		Int("groups", fr.Groups).
		Int("utterances", fr.Utterances).
		Int("artifacts", len(arts)).
		Msg("document processed")

	if loadErr != nil {
		return fr, fmt.Errorf("%s: %w", path, loadErr)
	}
	return fr, nil
}

func (r *Runner) notify(arts []load.Artifact) {
	if r.notifier == nil {
		return
	}
	for _, a := range arts {
		if err := r.notifier.Publish(a.PackageDate, a); err != nil {
			metrics.NotificationsPublishedTotal.WithLabelValues("error").Inc()
			r.log.Warn().Err(err).Str("file", a.File).Msg("notification publish failed")
			continue
		}
		metrics.NotificationsPublishedTotal.WithLabelValues("ok").Inc()
	}
}
