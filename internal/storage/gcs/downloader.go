package gcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
	"github.com/viant/afs/storage"
	"github.com/viant/afs/url"
	"go.uber.org/zap"

	_ "github.com/viant/afsc/gs"
)

// Service is the storage listing and download surface the downloader needs.
type Service interface {
	List(ctx context.Context, location string, options ...storage.Option) ([]storage.Object, error)
	Download(ctx context.Context, object storage.Object, options ...storage.Option) ([]byte, error)
}

// Report holds per-kind download counts for one run.
type Report struct {
	Downloaded map[string]int
	Skipped    int
}

// Downloader mirrors PDF documents from a bucket into a local directory,
// grouping them by the first path segment under the listing root.
type Downloader struct {
	fs     Service
	logger *zap.Logger
}

// New creates a Downloader backed by the default AFS service, which resolves
// gs:// URLs through the registered Google Storage scheme.
func New(logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{fs: afs.New(), logger: logger}
}

// NewWithService creates a Downloader over a custom storage service.
func NewWithService(fs Service, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{fs: fs, logger: logger}
}

// Download walks baseURL recursively and saves every PDF under
// destDir/<kind>/, where kind is the object's first path segment below the
// root. Files sitting directly under the root land in "unsorted". Objects
// already present locally with the same size are skipped.
func (d *Downloader) Download(ctx context.Context, baseURL, destDir string) (Report, error) {
	report := Report{Downloaded: make(map[string]int)}
	if err := d.walk(ctx, baseURL, baseURL, destDir, &report); err != nil {
		return report, err
	}

	total := 0
	for _, n := range report.Downloaded {
		total += n
	}
	d.logger.Info("download finished",
		zap.String("source", baseURL),
		zap.Int("downloaded", total),
		zap.Int("skipped", report.Skipped),
		zap.Int("kinds", len(report.Downloaded)),
	)
	return report, nil
}

func (d *Downloader) walk(ctx context.Context, baseURL, location string, destDir string, report *Report) error {
	objects, err := d.fs.List(ctx, location)
	if err != nil {
		return fmt.Errorf("list %s: %w", location, err)
	}

	for _, object := range objects {
		if object.IsDir() {
			if url.Equals(object.URL(), location) {
				continue
			}
			if err := d.walk(ctx, baseURL, url.Join(location, object.Name()), destDir, report); err != nil {
				return err
			}
			continue
		}
		if !strings.EqualFold(filepath.Ext(object.Name()), ".pdf") {
			continue
		}
		if err := d.fetch(ctx, baseURL, object, destDir, report); err != nil {
			return err
		}
	}
	return nil
}

func (d *Downloader) fetch(ctx context.Context, baseURL string, object storage.Object, destDir string, report *Report) error {
	kind := documentKind(baseURL, object.URL())
	localPath := filepath.Join(destDir, kind, object.Name())

	if info, err := os.Stat(localPath); err == nil && info.Size() == object.Size() {
		d.logger.Debug("already downloaded", zap.String("file", localPath))
		report.Skipped++
		return nil
	}

	data, err := d.fs.Download(ctx, object)
	if err != nil {
		return fmt.Errorf("download %s: %w", object.URL(), err)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(localPath), err)
	}
	if err := os.WriteFile(localPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", localPath, err)
	}

	d.logger.Info("downloaded",
		zap.String("file", object.Name()),
		zap.String("kind", kind),
		zap.Int64("size", object.Size()),
	)
	report.Downloaded[kind]++
	return nil
}

// documentKind derives the grouping directory from the object's path
// relative to the listing root.
func documentKind(baseURL, objectURL string) string {
	base := strings.Trim(url.Path(baseURL), "/")
	path := strings.Trim(url.Path(objectURL), "/")

	rel := strings.TrimPrefix(path, base)
	rel = strings.Trim(rel, "/")
	if i := strings.Index(rel, "/"); i > 0 {
		return rel[:i]
	}
	return "unsorted"
}
