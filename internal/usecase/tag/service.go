package tag

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/domain"
)

// Service handles tag ingestion: single adds, bulk CSV imports and cleanup.
type Service struct {
	store    TagStore
	embed    Embedder
	logger   *zap.Logger
	throttle time.Duration
}

// New creates a tag ingestion service.
func New(store TagStore, embed Embedder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, embed: embed, logger: logger}
}

// WithThrottle sets a pause between consecutive remote calls during bulk
// import, to stay under embedding API rate limits.
func (s *Service) WithThrottle(d time.Duration) *Service {
	s.throttle = d
	return s
}

// Add embeds the tag's combined text and inserts the row.
func (s *Service) Add(ctx context.Context, name, description string, keywords []string) (domain.Tag, error) {
	if name == "" {
		return domain.Tag{}, fmt.Errorf("%w: tag name is required", domain.ErrValidation)
	}

	tag := domain.Tag{Name: name, Description: description, Keywords: keywords}

	result, err := s.embed.Embed(ctx, tag.EmbeddingText())
	if err != nil {
		return domain.Tag{}, fmt.Errorf("vectorize tag: %w", err)
	}
	tag.Embedding = result.Embedding

	id, err := s.store.Insert(ctx, tag)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	tag.ID = id

	s.logger.Info("tag added",
		zap.Int64("id", id),
		zap.String("name", name),
		zap.Int("keywords", len(keywords)),
	)
	return tag, nil
}

// ImportReport summarizes a bulk CSV import.
type ImportReport struct {
	Total    int
	Imported int
	Skipped  int
	Failed   int
}

// ImportCSV reads an extraction results CSV and imports each usable row.
// Rows carrying an extraction error or no title are skipped when skipErrors
// is true. Per-row import failures are counted, logged and do not abort the
// run; an unreadable file does.
func (s *Service) ImportCSV(ctx context.Context, path string, skipErrors bool) (ImportReport, error) {
	records, err := readTagRecords(path)
	if err != nil {
		return ImportReport{}, err
	}

	report := ImportReport{Total: len(records)}

	for i, rec := range records {
		if rec.Err != "" && skipErrors {
			s.logger.Warn("skipping row with extraction error",
				zap.String("file", rec.FilePath), zap.String("error", rec.Err))
			report.Skipped++
			continue
		}
		if rec.Title == "" {
			s.logger.Warn("skipping row without title", zap.String("file", rec.FilePath))
			report.Skipped++
			continue
		}

		if err := s.pause(ctx, i); err != nil {
			return report, err
		}

		if _, err := s.Add(ctx, rec.Title, "", rec.Keywords); err != nil {
			s.logger.Error("import row failed",
				zap.String("file", rec.FilePath),
				zap.String("title", rec.Title),
				zap.Error(err),
			)
			report.Failed++
			continue
		}
		report.Imported++
	}

	s.logger.Info("import finished",
		zap.Int("total", report.Total),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// Clear deletes every tag row and returns the deleted count.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear tags: %w", err)
	}
	s.logger.Info("tag store cleared", zap.Int64("deleted", n))
	return n, nil
}

// Count returns the number of stored tags.
func (s *Service) Count(ctx context.Context) (int64, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return n, nil
}

// pause sleeps between rows (not before the first), honoring cancellation.
func (s *Service) pause(ctx context.Context, row int) error {
	if s.throttle <= 0 || row == 0 {
		return nil
	}
	timer := time.NewTimer(s.throttle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
