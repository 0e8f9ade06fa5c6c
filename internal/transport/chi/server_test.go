package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gosexpert/tagvec/internal/domain"
	healthuc "github.com/gosexpert/tagvec/internal/usecase/health"
	searchuc "github.com/gosexpert/tagvec/internal/usecase/search"
)

type mockStore struct {
	matches []domain.Match
	err     error
	topK    int
}

func (m *mockStore) SearchNearest(_ context.Context, _ []float32, topK int) ([]domain.Match, error) {
	m.topK = topK
	if m.err != nil {
		return nil, m.err
	}
	if topK < len(m.matches) {
		return m.matches[:topK], nil
	}
	return m.matches, nil
}

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2}}, nil
}

type okPinger struct{}

func (okPinger) Ping(_ context.Context) error { return nil }

func newTestRouter(store *mockStore, embed *mockEmbedder) http.Handler {
	search := searchuc.New(store, embed, nil)
	health := healthuc.New(okPinger{}, nil, nil)
	srv := NewServer(search, health, nil)

	r := chi.NewRouter()
	srv.Routes(r)
	return r
}

func doGet(t *testing.T, h http.Handler, url string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearch_OK(t *testing.T) {
	store := &mockStore{matches: []domain.Match{
		{TagID: 1, TagName: "Договор аренды", Score: 0.91},
		{TagID: 2, TagName: "Акт приемки", Score: 0.42},
		{TagID: 3, TagName: "Справка", Score: 0.12},
	}}
	h := newTestRouter(store, &mockEmbedder{})

	rec := doGet(t, h, "/v1/search?q=аренда+помещения")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != "аренда помещения" {
		t.Errorf("query = %q", resp.Query)
	}
	// Default threshold 0.3 drops the 0.12 hit.
	if len(resp.Matches) != 2 {
		t.Fatalf("got %d matches, want 2: %+v", len(resp.Matches), resp.Matches)
	}
	if resp.Matches[0].TagName != "Договор аренды" {
		t.Errorf("first match = %+v", resp.Matches[0])
	}
	if store.topK != 5 {
		t.Errorf("store queried with top_k %d, want default 5", store.topK)
	}
}

func TestSearch_ExplicitParams(t *testing.T) {
	store := &mockStore{matches: []domain.Match{
		{TagID: 1, TagName: "a", Score: 0.9},
		{TagID: 2, TagName: "b", Score: 0.6},
	}}
	h := newTestRouter(store, &mockEmbedder{})

	rec := doGet(t, h, "/v1/search?q=x&top_k=1&threshold=0.7")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp searchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Score != 0.9 {
		t.Errorf("matches = %+v", resp.Matches)
	}
	if store.topK != 1 {
		t.Errorf("store queried with top_k %d, want 1", store.topK)
	}
}

func TestSearch_ValidationErrors(t *testing.T) {
	store := &mockStore{}
	h := newTestRouter(store, &mockEmbedder{})

	cases := []struct {
		name string
		url  string
	}{
		{"empty query", "/v1/search"},
		{"bad top_k", "/v1/search?q=x&top_k=abc"},
		{"zero top_k", "/v1/search?q=x&top_k=0"},
		{"bad threshold", "/v1/search?q=x&threshold=high"},
		{"threshold out of range", "/v1/search?q=x&threshold=1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doGet(t, h, tc.url)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
	if store.topK != 0 {
		t.Error("store must not be queried for invalid requests")
	}
}

func TestSearch_EmbeddingFailureMapsToBadGateway(t *testing.T) {
	h := newTestRouter(&mockStore{}, &mockEmbedder{err: domain.ErrEmbedding})

	rec := doGet(t, h, "/v1/search?q=x")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Code != "embedding_provider_error" {
		t.Errorf("code = %q", resp.Code)
	}
}

func TestSearch_StoreFailureMapsToServiceUnavailable(t *testing.T) {
	h := newTestRouter(&mockStore{err: domain.ErrStore}, &mockEmbedder{})

	rec := doGet(t, h, "/v1/search?q=x")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := newTestRouter(&mockStore{}, &mockEmbedder{})

	rec := doGet(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Status string                          `json:"status"`
		Checks map[string]healthuc.CheckResult `json:"checks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != healthuc.CheckOK {
		t.Errorf("resp = %+v", resp)
	}
}

func TestBearerAuth(t *testing.T) {
	h := newTestRouter(&mockStore{matches: []domain.Match{{TagID: 1, TagName: "a", Score: 0.9}}}, &mockEmbedder{})
	protected := BearerAuthMiddleware([]string{"secret"})(h)

	rec := doGet(t, protected, "/v1/search?q=x")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v1/search?q=x", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	protected.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	rec = doGet(t, protected, "/healthz")
	if rec.Code != http.StatusOK {
		t.Errorf("healthz should be exempt: status = %d", rec.Code)
	}
}
