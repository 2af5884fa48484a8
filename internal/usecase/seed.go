package usecase

import (
	"context"
	"fmt"

	"storefront/internal/adapter/dataset"
	"storefront/internal/domain"
	"storefront/internal/logger"
)

// SeedOptions controls a dataset import.
type SeedOptions struct {
	// Limit stops after this many products are created. Zero means no limit.
	Limit int

	// DryRun parses and validates rows without writing anything.
	DryRun bool

	OnRow func(path string, row dataset.Row, err error)
}

// SeedReport summarizes an import.
type SeedReport struct {
	Files      int
	Rows       int
	Created    int
	NoImages   int
	Invalid    int
	SyncFailed int
}

// SeedService imports product CSV files through the product service, so
// seeded products are embedded and indexed like any other write.
type SeedService struct {
	walker   *dataset.Walker
	products *ProductService
	log      *logger.Logger
}

func NewSeedService(walker *dataset.Walker, products *ProductService, log *logger.Logger) *SeedService {
	if log == nil {
		log = logger.Discard()
	}
	return &SeedService{
		walker:   walker,
		products: products,
		log:      log.WithComponent("seed"),
	}
}

// Seed imports every dataset file under root. Rows without images are
// skipped. Rows that fail to parse are logged and skipped. A product whose
// vectors could not be written is kept and counted.
func (s *SeedService) Seed(ctx context.Context, root string, opts SeedOptions) (SeedReport, error) {
	var report SeedReport

	files, err := s.walker.Walk(root)
	if err != nil {
		return report, fmt.Errorf("find dataset files: %w", err)
	}
	report.Files = len(files)
	s.log.Info("seeding", logger.F("root", root), logger.F("files", len(files)), logger.F("dry_run", opts.DryRun))

	for _, path := range files {
		rows, err := dataset.ReadFile(path)
		if err != nil {
			return report, fmt.Errorf("read %s: %w", path, err)
		}
		s.log.Debug("dataset file", logger.F("path", path), logger.F("rows", len(rows)))

		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			if opts.Limit > 0 && report.Created >= opts.Limit {
				return report, nil
			}
			report.Rows++

			err := s.row(ctx, row, opts.DryRun, &report)
			if domain.IsKind(err, domain.KindRepository) {
				return report, err
			}
			if err != nil {
				s.log.Warn("row skipped", logger.F("path", path), logger.F("line", row.Line), logger.Err(err))
			}
			if opts.OnRow != nil {
				opts.OnRow(path, row, err)
			}
		}
	}

	s.log.Info("seed finished",
		logger.F("created", report.Created), logger.F("no_images", report.NoImages),
		logger.F("invalid", report.Invalid), logger.F("sync_failed", report.SyncFailed))
	return report, nil
}

func (s *SeedService) row(ctx context.Context, row dataset.Row, dryRun bool, report *SeedReport) error {
	if !row.HasImages() {
		report.NoImages++
		return nil
	}

	p, err := row.Product()
	if err != nil {
		report.Invalid++
		return err
	}
	if dryRun {
		report.Created++
		return nil
	}

	created, err := s.products.Create(ctx, p)
	switch {
	case err == nil:
		report.Created++
		return nil
	case domain.IsKind(err, domain.KindSync):
		report.Created++
		report.SyncFailed++
		s.log.Warn("product stored without vectors", logger.F("id", created.ID), logger.Err(err))
		return nil
	case domain.IsKind(err, domain.KindInput):
		report.Invalid++
		return err
	default:
		return err
	}
}
