package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/domain"
)

// Result is the extraction outcome for a single document. A failed file
// carries its error here instead of aborting the whole run.
type Result struct {
	FilePath string
	Title    string
	Keywords []string
	Err      error
}

// Service walks PDF documents, pulls text from their first pages and asks a
// language model for a title and keyword tags.
type Service struct {
	extractor domain.TagExtractor
	logger    *zap.Logger
	maxPages  int
	throttle  time.Duration

	// readText is swappable in tests.
	readText func(path string, maxPages int) (string, error)
}

// New creates an extraction service. maxPages bounds how many pages of each
// PDF are read; values below one fall back to 2.
func New(extractor domain.TagExtractor, maxPages int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages < 1 {
		maxPages = 2
	}
	return &Service{
		extractor: extractor,
		logger:    logger,
		maxPages:  maxPages,
		readText:  readPDFText,
	}
}

// WithThrottle sets a pause between consecutive model calls.
func (s *Service) WithThrottle(d time.Duration) *Service {
	s.throttle = d
	return s
}

// ProcessFile extracts the title and keywords of one PDF.
func (s *Service) ProcessFile(ctx context.Context, path string) Result {
	res := Result{FilePath: path}

	text, err := s.readText(path, s.maxPages)
	if err != nil {
		res.Err = fmt.Errorf("read document: %w", err)
		return res
	}

	extraction, err := s.extractor.ExtractTags(ctx, text)
	if err != nil {
		res.Err = fmt.Errorf("extract tags: %w", err)
		return res
	}

	res.Title = extraction.Title
	res.Keywords = extraction.Keywords
	return res
}

// ProcessDirectory extracts tags from up to maxFiles PDFs under dir,
// recursively, in deterministic path order. maxFiles <= 0 means no cap.
// Per-file failures are recorded in the corresponding Result; only a broken
// directory walk or context cancellation aborts the run.
func (s *Service) ProcessDirectory(ctx context.Context, dir string, maxFiles int) ([]Result, error) {
	paths, err := listPDFs(dir)
	if err != nil {
		return nil, err
	}
	if maxFiles > 0 && len(paths) > maxFiles {
		paths = paths[:maxFiles]
	}

	results := make([]Result, 0, len(paths))
	for i, path := range paths {
		if err := s.pause(ctx, i); err != nil {
			return results, err
		}

		res := s.ProcessFile(ctx, path)
		if res.Err != nil {
			s.logger.Error("extraction failed", zap.String("file", path), zap.Error(res.Err))
		} else {
			s.logger.Info("extracted",
				zap.String("file", path),
				zap.String("title", res.Title),
				zap.Int("keywords", len(res.Keywords)),
			)
		}
		results = append(results, res)
	}
	return results, nil
}

func listPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *Service) pause(ctx context.Context, i int) error {
	if s.throttle <= 0 || i == 0 {
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
