package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gosexpert/tagvec/internal/domain"
)

type mockExtractor struct {
	texts []string
	fn    func(text string) (domain.TagExtraction, error)
}

func (m *mockExtractor) ExtractTags(_ context.Context, text string) (domain.TagExtraction, error) {
	m.texts = append(m.texts, text)
	if m.fn != nil {
		return m.fn(text)
	}
	return domain.TagExtraction{Title: "Договор аренды", Keywords: []string{"аренда", "срок"}}, nil
}

func fixtureDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newTestService(extractor domain.TagExtractor) *Service {
	svc := New(extractor, 2, nil)
	svc.readText = func(path string, _ int) (string, error) {
		return "текст из " + filepath.Base(path), nil
	}
	return svc
}

func TestProcessFile(t *testing.T) {
	ext := &mockExtractor{}
	svc := newTestService(ext)

	res := svc.ProcessFile(context.Background(), "docs/a.pdf")
	if res.Err != nil {
		t.Fatalf("ProcessFile: %v", res.Err)
	}
	if res.Title != "Договор аренды" || len(res.Keywords) != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if len(ext.texts) != 1 || !strings.Contains(ext.texts[0], "a.pdf") {
		t.Errorf("extractor got texts %v", ext.texts)
	}
}

func TestProcessFile_UnreadableDocument(t *testing.T) {
	ext := &mockExtractor{}
	svc := New(ext, 2, nil)
	svc.readText = func(string, int) (string, error) {
		return "", errors.New("pdf has no extractable text")
	}

	res := svc.ProcessFile(context.Background(), "docs/a.pdf")
	if res.Err == nil {
		t.Fatal("expected error for unreadable document")
	}
	if len(ext.texts) != 0 {
		t.Errorf("extractor called %d times, want 0", len(ext.texts))
	}
}

func TestProcessDirectory_WalksRecursivelyAndCaps(t *testing.T) {
	dir := fixtureDir(t, "a.pdf", "sub/b.pdf", "c.PDF", "notes.txt", "d.pdf")
	svc := newTestService(&mockExtractor{})

	results, err := svc.ProcessDirectory(context.Background(), dir, 3)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (capped)", len(results))
	}
	for _, r := range results {
		if strings.HasSuffix(r.FilePath, ".txt") {
			t.Errorf("non-pdf file processed: %s", r.FilePath)
		}
	}
}

func TestProcessDirectory_ContinuesPastFailures(t *testing.T) {
	dir := fixtureDir(t, "a.pdf", "b.pdf")
	ext := &mockExtractor{fn: func(text string) (domain.TagExtraction, error) {
		if strings.Contains(text, "a.pdf") {
			return domain.TagExtraction{}, domain.ErrEmbedding
		}
		return domain.TagExtraction{Title: "Акт"}, nil
	}}
	svc := newTestService(ext)

	results, err := svc.ProcessDirectory(context.Background(), dir, 0)
	if err != nil {
		t.Fatalf("ProcessDirectory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Err == nil {
		t.Error("first result should carry the extraction error")
	}
	if results[1].Err != nil || results[1].Title != "Акт" {
		t.Errorf("second result = %+v, want successful extraction", results[1])
	}
}

func TestWriteCSV_RoundTripsImporterFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	results := []Result{
		{FilePath: "a.pdf", Title: "Договор", Keywords: []string{"аренда", "срок"}},
		{FilePath: "b.pdf", Err: errors.New("pdf has no extractable text")},
	}
	if err := WriteCSV(path, results); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	if !strings.HasPrefix(got, "file_path,title,keywords,error\n") {
		t.Errorf("missing header: %q", got)
	}
	if !strings.Contains(got, "\"аренда, срок\"") {
		t.Errorf("keywords not comma-joined: %q", got)
	}
	if !strings.Contains(got, "pdf has no extractable text") {
		t.Errorf("error column missing: %q", got)
	}
}
