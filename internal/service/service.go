package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bundlesmith/bundlesmith/internal/augment"
	"github.com/bundlesmith/bundlesmith/internal/builder"
	"github.com/bundlesmith/bundlesmith/internal/config"
	"github.com/bundlesmith/bundlesmith/internal/database"
	"github.com/bundlesmith/bundlesmith/internal/loaders"
	"github.com/bundlesmith/bundlesmith/internal/logging"
	"github.com/bundlesmith/bundlesmith/internal/pool"
	"github.com/bundlesmith/bundlesmith/internal/progress"
	"github.com/bundlesmith/bundlesmith/internal/resolve"
	"github.com/bundlesmith/bundlesmith/internal/storage"
)

const defaultWorkers = 4

// Service runs every configured pipeline on its interval with a worker pool.
type Service struct {
	config     *config.Root
	db         *database.Database
	log        *logging.Logger
	bar        *progress.Bar
	registry   *loaders.Registry
	resolver   resolve.Resolver
	pool       *pool.Pool
	singleShot bool

	mu      sync.Mutex
	workers map[string]*PipelineWorker
}

func New() *Service {
	return &Service{
		registry: loaders.NewRegistry(),
		workers:  map[string]*PipelineWorker{},
		log:      logging.NewLogger(logging.Config{}),
	}
}

func (s *Service) WithConfig(root *config.Root) *Service {
	s.config = root
	return s
}

func (s *Service) WithLogger(log *logging.Logger) *Service {
	s.log = log
	return s
}

func (s *Service) WithDatabase(db *database.Database) *Service {
	s.db = db
	return s
}

func (s *Service) WithProgress(bar *progress.Bar) *Service {
	s.bar = bar
	return s
}

func (s *Service) WithLoaders(registry *loaders.Registry) *Service {
	s.registry = registry
	return s
}

// WithResolver overrides the package resolver built from configuration.
func (s *Service) WithResolver(r resolve.Resolver) *Service {
	s.resolver = r
	return s
}

// WithSingleShot makes every worker run exactly one build iteration.
func (s *Service) WithSingleShot(singleShot bool) *Service {
	s.singleShot = singleShot
	return s
}

// Run spawns one worker per pipeline and blocks until the context is
// canceled, or, in single-shot mode, until all workers are done.
func (s *Service) Run(ctx context.Context) error {
	if err := s.init(); err != nil {
		return err
	}

	workers := defaultWorkers
	if s.config.Service != nil && s.config.Service.Workers > 0 {
		workers = s.config.Service.Workers
	}
	s.pool = pool.New(workers)

	if err := s.launchWorkers(); err != nil {
		return err
	}

	if !s.singleShot {
		<-ctx.Done()
		return ctx.Err()
	}

	return s.waitForDone(ctx)
}

func (s *Service) init() error {
	if s.config == nil {
		return fmt.Errorf("service has no configuration")
	}

	if s.resolver == nil {
		var moduleDirs []string
		cacheSize := 0
		if s.config.Resolver != nil {
			moduleDirs = s.config.Resolver.ModuleDirs
			cacheSize = s.config.Resolver.CacheSize
		}

		s.resolver = resolve.NewDirResolver(moduleDirs...)
		if cacheSize > 0 {
			cached, err := resolve.NewCached(s.resolver, cacheSize)
			if err != nil {
				return err
			}
			s.resolver = cached
		}
	}

	return nil
}

func (s *Service) launchWorkers() error {
	for _, p := range s.config.SortedPipelines() {
		worker, err := s.makeWorker(p)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.workers[p.Name] = worker
		s.mu.Unlock()

		s.pool.Add(p.Name, worker.Execute)
	}
	return nil
}

// makeWorker assembles a worker from the pipeline configuration: the
// dependency augmenters run against a copy of the pipeline (so reloading the
// same configuration appends rules once per worker, not once per reload),
// entry directories mount at the artifact root, and resolved packages mount
// under their install paths.
func (s *Service) makeWorker(p *config.Pipeline) (*PipelineWorker, error) {
	augmented := *p
	augmented.Rules = append(config.Rules{}, p.Rules...)

	if _, err := augment.Dependencies(s.resolver, p.Dependencies)(&augmented); err != nil {
		return nil, fmt.Errorf("failed to augment pipeline %q: %w", p.Name, err)
	}

	var sources []*builder.Source

	entries := builder.NewSource(p.Name)
	for _, e := range p.Entries {
		if err := entries.AddDir(builder.Dir{
			Path:          e.Path,
			IncludedFiles: e.IncludedFiles,
			ExcludedFiles: e.ExcludedFiles,
		}); err != nil {
			return nil, fmt.Errorf("failed to add entry %q to pipeline %q: %w", e.Path, p.Name, err)
		}
	}
	sources = append(sources, entries)

	for _, d := range p.Dependencies {
		installed, err := s.resolver.Resolve(d.Package)
		if err != nil {
			return nil, err
		}

		src := builder.NewSource(installed.Name).WithMount(installed.Dir)
		if err := src.AddDir(builder.Dir{Path: installed.Dir}); err != nil {
			return nil, fmt.Errorf("failed to add package %q to pipeline %q: %w", d.Package, p.Name, err)
		}
		sources = append(sources, src)
	}

	store, err := storage.New(p.Output)
	if err != nil {
		return nil, err
	}

	return NewPipelineWorker(p, s.log, s.bar).
		WithSources(sources).
		WithRules(augmented.Rules, s.config.PackRulesFor(p)).
		WithLoaders(s.registry).
		WithStorage(store).
		WithDatabase(s.db).
		WithSingleShot(s.singleShot).
		WithInterval(p.Interval), nil
}

// Reconfigure applies a new configuration. Workers whose pipeline changed or
// disappeared are marked to drain out of the pool; changed and added
// pipelines get replacement workers right away, so a pipeline never stops
// building across a reload.
func (s *Service) Reconfigure(root *config.Root) error {
	s.mu.Lock()
	if s.pool == nil {
		s.mu.Unlock()
		return fmt.Errorf("service is not running")
	}

	s.config = root
	for name, worker := range s.workers {
		p := root.Pipelines[name]
		var packRules config.Rules
		if p != nil {
			packRules = root.PackRulesFor(p)
		}
		if worker.UpdateConfig(p, packRules) {
			// The marked worker dies on its next run; the pool tolerates a
			// replacement registering under the same name meanwhile.
			delete(s.workers, name)
		}
	}
	s.mu.Unlock()

	for _, p := range root.SortedPipelines() {
		s.mu.Lock()
		_, ok := s.workers[p.Name]
		s.mu.Unlock()
		if ok {
			continue
		}

		worker, err := s.makeWorker(p)
		if err != nil {
			return err
		}

		s.mu.Lock()
		s.workers[p.Name] = worker
		s.mu.Unlock()

		s.pool.Add(p.Name, worker.Execute)
	}

	return nil
}

// Trigger schedules an immediate build of the named pipeline.
func (s *Service) Trigger(name string) error {
	s.mu.Lock()
	_, ok := s.workers[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("no pipeline named %q", name)
	}

	return s.pool.Trigger(name)
}

// Statuses reports the last build outcome of every worker, sorted by
// pipeline name.
func (s *Service) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]Status, 0, len(s.workers))
	for _, p := range s.config.SortedPipelines() {
		if w, ok := s.workers[p.Name]; ok {
			statuses = append(statuses, w.Status())
		}
	}
	return statuses
}

// Status reports the last build outcome of the named pipeline.
func (s *Service) Status(name string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.workers[name]
	if !ok {
		return Status{}, false
	}
	return w.Status(), true
}

func (s *Service) waitForDone(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.mu.Lock()
	for _, w := range s.workers {
		g.Go(func() error {
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for !w.Done() {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-ticker.C:
				}
			}
			return nil
		})
	}
	s.mu.Unlock()

	return g.Wait()
}
