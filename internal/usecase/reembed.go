package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"storefront/config"
	"storefront/internal/adapter/embedding"
	"storefront/internal/domain"
	"storefront/internal/logger"
	"storefront/internal/port"
)

const (
	ReembedSequential = "sequential"
	ReembedParallel   = "parallel"
)

// ReembedOptions controls one bulk re-embedding run. Zero values fall back to
// configuration. A nil Delay uses the configured delay; a zero Delay disables
// pausing.
type ReembedOptions struct {
	Model     string
	Mode      string
	BatchSize int
	Delay     *time.Duration
	Reset     bool

	// OnItem is called once per attempted product, from any goroutine.
	OnItem func(id int64, err error)
}

// ReembedReport summarizes a run.
type ReembedReport struct {
	Model     string
	Total     int
	Skipped   int
	Processed int
	Failed    int
	Duration  time.Duration
}

// ReembedService regenerates the vectors of every product for one model
// profile. Progress is checkpointed after each product so an interrupted run
// resumes where it stopped.
type ReembedService struct {
	repo     port.ProductRepository
	models   port.ModelCatalog
	progress port.ProgressStore
	retrier  *embedding.Retrier
	cfg      config.ReembedConfig
	log      *logger.Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewReembedService(
	repo port.ProductRepository,
	models port.ModelCatalog,
	progress port.ProgressStore,
	retrier *embedding.Retrier,
	cfg config.ReembedConfig,
	log *logger.Logger,
) *ReembedService {
	if log == nil {
		log = logger.Discard()
	}
	return &ReembedService{
		repo:     repo,
		models:   models,
		progress: progress,
		retrier:  retrier,
		cfg:      cfg,
		log:      log.WithComponent("reembed"),
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Run re-embeds every product not yet recorded in the model's checkpoint.
// Per-product failures are logged and counted; the product stays out of the
// checkpoint and is retried on the next run.
func (s *ReembedService) Run(ctx context.Context, opts ReembedOptions) (ReembedReport, error) {
	start := s.now()
	opts = s.withDefaults(opts)

	profile, err := s.models.Profile(opts.Model)
	if err != nil {
		return ReembedReport{}, domain.NewInputError("reembed", err)
	}
	report := ReembedReport{Model: profile.Name}

	if opts.Reset {
		if err := s.progress.Reset(profile.Name); err != nil {
			return report, fmt.Errorf("reset checkpoint: %w", err)
		}
		s.log.Info("checkpoint cleared", logger.F("model", profile.Name))
	}

	cp, err := s.progress.Load(profile.Name)
	if err != nil {
		return report, fmt.Errorf("load checkpoint: %w", err)
	}

	products, err := s.repo.List(ctx, 0)
	if err != nil {
		return report, domain.NewRepositoryFailure("list products", err)
	}
	report.Total = len(products)

	done := cp.Done()
	pending := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if done[p.ID] {
			report.Skipped++
			continue
		}
		pending = append(pending, p)
	}

	batches := (len(pending) + opts.BatchSize - 1) / opts.BatchSize
	s.log.Info("reembed started",
		logger.F("model", profile.Name), logger.F("index", profile.Index), logger.F("namespace", profile.Namespace),
		logger.F("mode", opts.Mode), logger.F("pending", len(pending)), logger.F("already_done", report.Skipped),
		logger.F("batches", batches))

	run := &reembedRun{svc: s, profile: profile, opts: opts, cp: cp, report: &report}

	for b := 0; b < batches; b++ {
		if err := ctx.Err(); err != nil {
			return run.finish(start), err
		}

		lo := b * opts.BatchSize
		hi := min(lo+opts.BatchSize, len(pending))
		batch := pending[lo:hi]
		run.batch = cp.LastBatchIndex + b
		run.lastBatch = b == batches-1

		s.log.Debug("processing batch", logger.F("batch", b+1), logger.F("of", batches), logger.Count(len(batch)))

		if opts.Mode == ReembedParallel {
			err = run.parallel(ctx, batch)
		} else {
			err = run.sequential(ctx, batch)
		}
		if err != nil {
			return run.finish(start), err
		}

		if b < batches-1 && opts.Mode == ReembedParallel {
			if err := run.pause(ctx); err != nil {
				return run.finish(start), err
			}
		}
	}

	report = run.finish(start)
	s.log.Info("reembed finished",
		logger.F("model", report.Model), logger.F("processed", report.Processed),
		logger.F("failed", report.Failed), logger.F("skipped", report.Skipped), logger.Duration(report.Duration))
	return report, nil
}

func (s *ReembedService) withDefaults(opts ReembedOptions) ReembedOptions {
	if opts.Mode == "" {
		opts.Mode = s.cfg.Mode
	}
	if opts.Mode == "" {
		opts.Mode = ReembedSequential
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.cfg.BatchSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 1
	}
	if opts.Delay == nil {
		delay := s.cfg.Delay
		opts.Delay = &delay
	}
	return opts
}

// reembedRun holds the mutable state of one Run.
type reembedRun struct {
	svc       *ReembedService
	profile   port.ModelProfile
	opts      ReembedOptions
	batch     int
	lastBatch bool

	mu     sync.Mutex
	cp     domain.Progress
	report *ReembedReport
}

func (r *reembedRun) sequential(ctx context.Context, batch []domain.Product) error {
	for i, p := range batch {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.item(ctx, p)
		if r.lastBatch && i == len(batch)-1 {
			break
		}
		if err := r.pause(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *reembedRun) pause(ctx context.Context) error {
	if *r.opts.Delay <= 0 {
		return nil
	}
	return r.svc.sleep(ctx, *r.opts.Delay)
}

func (r *reembedRun) parallel(ctx context.Context, batch []domain.Product) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.BatchSize)
	for _, p := range batch {
		g.Go(func() error {
			r.item(gctx, p)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// item embeds and upserts one product, then records it in the checkpoint.
func (r *reembedRun) item(ctx context.Context, p domain.Product) {
	s := r.svc
	err := s.reembedOne(ctx, r.profile, p)

	r.mu.Lock()
	if err != nil {
		r.report.Failed++
	} else {
		r.report.Processed++
		r.cp.ProcessedIDs = append(r.cp.ProcessedIDs, p.ID)
		r.cp.LastBatchIndex = r.batch
		r.cp.Timestamp = s.now().UTC()
		if serr := s.progress.Save(r.profile.Name, r.cp); serr != nil {
			s.log.Warn("failed to save checkpoint", logger.F("model", r.profile.Name), logger.Err(serr))
		}
	}
	processed := len(r.cp.ProcessedIDs)
	r.mu.Unlock()

	if err != nil {
		s.log.Error("product reembed failed", logger.F("id", p.ID), logger.Err(err))
	} else {
		s.log.Debug("product reembedded", logger.F("id", p.ID), logger.F("progress", fmt.Sprintf("%d/%d", processed, r.report.Total)))
	}
	if r.opts.OnItem != nil {
		r.opts.OnItem(p.ID, err)
	}
}

func (r *reembedRun) finish(start time.Time) ReembedReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	report := *r.report
	report.Duration = r.svc.now().Sub(start)
	return report
}

func (s *ReembedService) reembedOne(ctx context.Context, profile port.ModelProfile, p domain.Product) error {
	var vector []float32
	err := s.retrier.Do(ctx, "embed product", func(ctx context.Context) error {
		v, err := profile.Embedder.Embed(ctx, p.EmbeddingText())
		vector = v
		return err
	})
	if err != nil {
		return domain.NewProviderFailure("embed product", profile.Name, err)
	}

	record := port.VectorRecord{ID: p.VectorID(), Values: vector, Metadata: p.VectorMetadata()}
	err = s.retrier.Do(ctx, "upsert vector", func(ctx context.Context) error {
		return profile.Vectors.Upsert(ctx, []port.VectorRecord{record})
	})
	if err != nil {
		return domain.NewIndexServiceFailure("upsert vector", profile.Index, profile.Namespace, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
