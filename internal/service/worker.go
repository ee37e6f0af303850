package service

import (
	"bytes"
	"cmp"
	"context"
	"sync"
	"time"

	"github.com/bundlesmith/bundlesmith/internal/builder"
	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/database"
	"github.com/bundlesmith/bundlesmith/internal/loaders"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/metrics"
	"github.com/bundlesmith/bundlesmith/internal/progress"
	"github.com/bundlesmith/bundlesmith/internal/storage"
)

var (
	defaultInterval = 30 * time.Second
	errorInterval   = 30 * time.Second
)

// PipelineWorker runs one pipeline: it builds the artifact from the
// pipeline's sources with the effective rule set, uploads the result to the
// configured storage and records the outcome in the build history.
type PipelineWorker struct {
	pipelineConfig *config.Pipeline
	packRules      config.Rules
	rules          config.Rules
	sources        []*builder.Source
	registry       *loaders.Registry
	storage        storage.ObjectStorage
	db             *database.Database
	changed        chan struct{}
	done           chan struct{}
	singleShot     bool
	log            *logging.Logger
	bar            *progress.Bar
	interval       time.Duration

	mu     sync.Mutex
	status Status
}

func NewPipelineWorker(p *config.Pipeline, logger *logging.Logger, bar *progress.Bar) *PipelineWorker {
	return &PipelineWorker{
		pipelineConfig: p,
		registry:       loaders.NewRegistry(),
		log:            logger,
		bar:            bar,
		changed:        make(chan struct{}), done: make(chan struct{}),
		interval: defaultInterval,
		status:   Status{Pipeline: p.Name},
	}
}

func (w *PipelineWorker) WithSources(sources []*builder.Source) *PipelineWorker {
	w.sources = sources
	return w
}

// WithRules sets the effective rule set: the pipeline's own (augmented)
// rules followed by rule pack contributions.
func (w *PipelineWorker) WithRules(rules, packRules config.Rules) *PipelineWorker {
	w.packRules = packRules
	w.rules = append(append(config.Rules{}, rules...), packRules...)
	return w
}

func (w *PipelineWorker) WithLoaders(registry *loaders.Registry) *PipelineWorker {
	w.registry = registry
	return w
}

func (w *PipelineWorker) WithStorage(storage storage.ObjectStorage) *PipelineWorker {
	w.storage = storage
	return w
}

func (w *PipelineWorker) WithDatabase(db *database.Database) *PipelineWorker {
	w.db = db
	return w
}

func (w *PipelineWorker) WithSingleShot(singleShot bool) *PipelineWorker {
	w.singleShot = singleShot
	return w
}

func (w *PipelineWorker) WithInterval(d config.Duration) *PipelineWorker {
	w.interval = cmp.Or(time.Duration(d), defaultInterval)
	return w
}

func (w *PipelineWorker) Done() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

func (w *PipelineWorker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// UpdateConfig requests the worker's removal from the pool if the pipeline
// or its rule pack contributions changed. It reports whether the worker is
// draining and needs a replacement.
func (w *PipelineWorker) UpdateConfig(p *config.Pipeline, packRules config.Rules) bool {
	if p == nil || !w.pipelineConfig.Equal(p) || !w.packRules.Equal(packRules) {
		w.changeConfiguration()
	}
	return w.configurationChanged()
}

// Execute runs one build iteration: construct the artifact, push it to
// storage, record history, and return the next deadline.
func (w *PipelineWorker) Execute(ctx context.Context) time.Time {
	startTime := time.Now() // Used for timing metric and history

	defer w.bar.Add(1)

	// If a configuration change was requested, signal this worker being done
	// and request removal from the pool.
	if w.configurationChanged() {
		return w.die()
	}

	buffer := bytes.NewBuffer(nil)

	result, err := builder.New().
		WithPipeline(w.pipelineConfig.Name).
		WithSources(w.sources).
		WithRules(w.rules).
		WithLoaders(w.registry).
		WithExcluded(w.pipelineConfig.ExcludedFiles).
		WithOutput(buffer).
		Build(ctx)
	if err != nil {
		w.log.Warnf("failed to build pipeline %q: %v", w.pipelineConfig.Name, err)
		return w.report(ctx, BuildStateBuildFailed, "", startTime, err)
	}

	if w.storage != nil {
		if err := w.storage.Upload(ctx, bytes.NewReader(buffer.Bytes())); err != nil {
			w.log.Warnf("failed to store artifact for pipeline %q: %v", w.pipelineConfig.Name, err)
			return w.report(ctx, BuildStatePushFailed, result.Revision, startTime, err)
		}

		w.log.Debugf("Pipeline %q built and stored, %d files, revision %.12s.", w.pipelineConfig.Name, result.FileCount, result.Revision)
		return w.report(ctx, BuildStateSuccess, result.Revision, startTime, nil)
	}

	w.log.Debugf("Pipeline %q built, %d files, revision %.12s.", w.pipelineConfig.Name, result.FileCount, result.Revision)
	return w.report(ctx, BuildStateSuccess, result.Revision, startTime, nil)
}

func (w *PipelineWorker) report(ctx context.Context, state BuildState, revision string, startTime time.Time, err error) time.Time {
	interval := w.interval

	w.mu.Lock()
	w.status.State = state
	w.status.Revision = revision
	w.status.LastBuilt = startTime
	w.status.Message = ""
	if err != nil {
		interval = errorInterval // faster retry on error
		w.status.Message = err.Error()
	}
	message := w.status.Message
	w.mu.Unlock()

	if state == BuildStateSuccess {
		metrics.PipelineBuildSucceeded(w.pipelineConfig.Name, startTime)
	} else {
		metrics.PipelineBuildFailed(w.pipelineConfig.Name, state.String())
	}

	if w.db != nil {
		if err := w.db.InsertBuild(ctx, database.Build{
			Pipeline:   w.pipelineConfig.Name,
			Revision:   revision,
			State:      state.String(),
			Message:    message,
			StartedAt:  startTime.UnixMilli(),
			DurationMS: time.Since(startTime).Milliseconds(),
		}); err != nil {
			w.log.Warnf("failed to record build of pipeline %q: %v", w.pipelineConfig.Name, err)
		}
	}

	if w.singleShot {
		return w.die()
	}

	return time.Now().Add(interval)
}

func (w *PipelineWorker) changeConfiguration() {
	select {
	case <-w.changed:
	default:
		close(w.changed)
	}
}

func (w *PipelineWorker) configurationChanged() bool {
	select {
	case <-w.changed:
		return true
	default:
		return false
	}
}

func (w *PipelineWorker) die() time.Time {
	close(w.done)

	var zero time.Time
	return zero
}
