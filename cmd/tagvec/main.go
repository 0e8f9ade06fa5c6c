// tagvec maintains a vector index of document tags: it downloads documents,
// extracts title and keyword tags with an LLM, embeds them into Postgres and
// answers similarity search queries over the result, from the command line or
// over HTTP.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/gosexpert/tagvec/internal/cache"
	"github.com/gosexpert/tagvec/internal/config"
	"github.com/gosexpert/tagvec/internal/domain"
	"github.com/gosexpert/tagvec/internal/domain/query"
	logpkg "github.com/gosexpert/tagvec/internal/logger"
	"github.com/gosexpert/tagvec/internal/metrics"
	"github.com/gosexpert/tagvec/internal/repository/embcache"
	"github.com/gosexpert/tagvec/internal/repository/postgres"
	"github.com/gosexpert/tagvec/internal/storage/gcs"
	chiTransport "github.com/gosexpert/tagvec/internal/transport/chi"
	openaiTransport "github.com/gosexpert/tagvec/internal/transport/openai"
	extractuc "github.com/gosexpert/tagvec/internal/usecase/extract"
	healthuc "github.com/gosexpert/tagvec/internal/usecase/health"
	searchuc "github.com/gosexpert/tagvec/internal/usecase/search"
	taguc "github.com/gosexpert/tagvec/internal/usecase/tag"
	"github.com/gosexpert/tagvec/internal/version"
)

const usage = `tagvec — vector search over document tags

Usage:
  tagvec <command> [flags]

Commands:
  serve      run the HTTP search API
  search     find tags similar to a query
  add        embed and store a single tag
  import     bulk import tags from an extraction CSV
  extract    extract titles and keywords from PDFs into a CSV
  download   mirror PDF documents from a bucket
  clear      delete all stored tags

Run "tagvec <command> -h" for command flags.
`

func main() {
	// Local overrides, e.g. OPENAI_API_KEY. Missing file is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	env := config.GetEnv()
	cfg, err := config.Load(env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to create logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	a := &app{cfg: cfg, env: env, logger: logger}

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "serve":
		err = a.serve(args)
	case "search":
		err = a.search(args)
	case "add":
		err = a.add(args)
	case "import":
		err = a.importCSV(args)
	case "extract":
		err = a.extract(args)
	case "download":
		err = a.download(args)
	case "clear":
		err = a.clear(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

type app struct {
	cfg    config.Config
	env    string
	logger *zap.Logger
}

// openStore connects to Postgres, waits for readiness and ensures the schema.
func (a *app) openStore(ctx context.Context) (*postgres.Store, error) {
	store, err := postgres.NewStore(postgres.Config{
		DSN:        a.cfg.Database.DSN,
		Dimensions: a.cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(a.cfg.Database.ReadinessTimeout) * time.Second
	if err := store.WaitForReady(ctx, timeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// openCache connects to the optional Redis embedding cache. Returns nil when
// no cache is configured.
func (a *app) openCache() *cache.Redis {
	if len(a.cfg.Cache.Addrs) == 0 {
		return nil
	}
	c, err := cache.New(cache.Config{
		Addrs:    a.cfg.Cache.Addrs,
		Username: a.cfg.Cache.Username,
		Password: a.cfg.Cache.Password,
		DB:       a.cfg.Cache.DB,
	})
	if err != nil {
		a.logger.Warn("embedding cache unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return c
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func (a *app) buildEmbedder(instruction string, c *cache.Redis) domain.Embedder {
	base := openaiTransport.NewEmbedder(&openaiTransport.Config{
		APIKey:     a.cfg.Embedding.APIKey,
		BaseURL:    a.cfg.Embedding.BaseURL,
		Model:      a.cfg.Embedding.Model,
		Dimensions: a.cfg.Embedding.Dimensions,
		Provider:   a.cfg.Embedding.Provider,
		Logger:     a.logger,
	})

	var embedder domain.Embedder = base
	if c != nil {
		embedder = embcache.New(base, c, metrics.EmbeddingCacheTotal, a.logger)
	}

	// Instruction prefix outermost so the cache key includes it.
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func (a *app) throttle() time.Duration {
	return time.Duration(a.cfg.Extraction.ThrottleMs) * time.Millisecond
}

func (a *app) serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	port := fs.Int("port", a.cfg.HTTP.Port, "HTTP port")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.logger.Info("starting tagvec API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", a.env),
		zap.Int("http_port", *port),
	)

	ctx := context.Background()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.RegisterEmbeddingMetrics()

	c := a.openCache()
	if c != nil {
		defer c.Close()
	}

	queryEmbedder := a.buildEmbedder(a.cfg.Embedding.QueryInstruction, c)

	searchSvc := searchuc.New(store, queryEmbedder, a.logger)

	var embChecker healthuc.EmbeddingChecker
	if hc, ok := queryEmbedder.(domain.HealthChecker); ok {
		embChecker = hc
	}
	var cachePinger healthuc.CachePinger
	if c != nil {
		cachePinger = c
	}
	healthSvc := healthuc.New(store, embChecker, cachePinger)

	server := chiTransport.NewServer(searchSvc, healthSvc, a.logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(a.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(a.logger))
	r.Use(chiTransport.BearerAuthMiddleware(a.cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", *port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		a.logger.Info("starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	a.logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(),
		time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("error during shutdown", zap.Error(err))
	}
	a.logger.Info("server stopped gracefully")
	return nil
}

func (a *app) search(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.Int("top-k", query.DefaultTopK, "maximum number of matches")
	threshold := fs.Float64("threshold", query.DefaultThreshold, "minimum similarity score")
	asJSON := fs.Bool("json", false, "print matches as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	text := strings.Join(fs.Args(), " ")

	q, err := query.New(text, *topK, *threshold)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.RegisterEmbeddingMetrics()
	c := a.openCache()
	if c != nil {
		defer c.Close()
	}

	embedder := a.buildEmbedder(a.cfg.Embedding.QueryInstruction, c)
	svc := searchuc.New(store, embedder, a.logger)

	matches, err := svc.Search(ctx, q)
	if err != nil {
		return err
	}
	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(matchesJSON(matches))
	}
	if len(matches) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, m := range matches {
		fmt.Printf("%.4f\t%d\t%s\n", m.Score, m.TagID, m.TagName)
	}
	return nil
}

type matchJSON struct {
	TagID   int64   `json:"tag_id"`
	TagName string  `json:"tag_name"`
	Score   float64 `json:"score"`
}

func matchesJSON(matches []domain.Match) []matchJSON {
	out := make([]matchJSON, len(matches))
	for i, m := range matches {
		out[i] = matchJSON{TagID: m.TagID, TagName: m.TagName, Score: m.Score}
	}
	return out
}

func (a *app) add(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	name := fs.String("name", "", "tag name")
	description := fs.String("description", "", "tag description")
	keywords := fs.String("keywords", "", "comma separated keywords")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.RegisterEmbeddingMetrics()
	c := a.openCache()
	if c != nil {
		defer c.Close()
	}

	embedder := a.buildEmbedder(a.cfg.Embedding.DocumentInstruction, c)
	svc := taguc.New(store, embedder, a.logger)

	var kw []string
	for _, k := range strings.Split(*keywords, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kw = append(kw, k)
		}
	}

	tag, err := svc.Add(ctx, *name, *description, kw)
	if err != nil {
		return err
	}
	fmt.Printf("added tag %d: %s\n", tag.ID, tag.Name)
	return nil
}

func (a *app) importCSV(args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	input := fs.String("input", "", "extraction results CSV")
	includeErrors := fs.Bool("include-errors", false, "import rows that carry an extraction error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *input == "" {
		return fmt.Errorf("%w: -input is required", domain.ErrValidation)
	}

	ctx := context.Background()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	metrics.RegisterEmbeddingMetrics()
	c := a.openCache()
	if c != nil {
		defer c.Close()
	}

	embedder := a.buildEmbedder(a.cfg.Embedding.DocumentInstruction, c)
	svc := taguc.New(store, embedder, a.logger).WithThrottle(a.throttle())

	report, err := svc.ImportCSV(ctx, *input, !*includeErrors)
	if err != nil {
		return err
	}
	fmt.Printf("imported %d of %d rows (%d skipped, %d failed)\n",
		report.Imported, report.Total, report.Skipped, report.Failed)

	total, err := svc.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("store now holds %d tags\n", total)
	return nil
}

func (a *app) extract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	dir := fs.String("input-dir", a.cfg.Storage.DestDir, "directory with PDF documents")
	out := fs.String("output", "", "output CSV path")
	maxFiles := fs.Int("max-files", 0, "process at most this many files (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		if err := os.MkdirAll("results", 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
		*out = fmt.Sprintf("results/document_tags_%s.csv", time.Now().Format("20060102_150405"))
	}

	metrics.RegisterEmbeddingMetrics()

	extractor := openaiTransport.NewExtractor(&openaiTransport.ExtractorConfig{
		APIKey:      a.cfg.Embedding.APIKey,
		BaseURL:     a.cfg.Embedding.BaseURL,
		Model:       a.cfg.Extraction.Model,
		Temperature: a.cfg.Extraction.Temperature,
		Logger:      a.logger,
	})
	svc := extractuc.New(extractor, a.cfg.Extraction.MaxPages, a.logger).
		WithThrottle(a.throttle())

	results, err := svc.ProcessDirectory(context.Background(), *dir, *maxFiles)
	if err != nil {
		return err
	}
	if err := extractuc.WriteCSV(*out, results); err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	fmt.Printf("processed %d documents (%d failed), results in %s\n", len(results), failed, *out)
	return nil
}

func (a *app) download(args []string) error {
	fs := flag.NewFlagSet("download", flag.ExitOnError)
	bucket := fs.String("bucket", a.cfg.Storage.Bucket, "source bucket name")
	prefix := fs.String("prefix", a.cfg.Storage.Prefix, "object prefix inside the bucket")
	dest := fs.String("dest", a.cfg.Storage.DestDir, "local destination directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *bucket == "" {
		return fmt.Errorf("%w: -bucket is required", domain.ErrValidation)
	}

	baseURL := "gs://" + *bucket
	if *prefix != "" {
		baseURL += "/" + strings.Trim(*prefix, "/")
	}

	d := gcs.New(a.logger)
	report, err := d.Download(context.Background(), baseURL, *dest)
	if err != nil {
		return err
	}
	for kind, n := range report.Downloaded {
		fmt.Printf("%s: %d files\n", kind, n)
	}
	fmt.Printf("skipped %d already downloaded files\n", report.Skipped)
	return nil
}

func (a *app) clear(args []string) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	confirm := fs.Bool("confirm", false, "skip the confirmation prompt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	svc := taguc.New(store, nil, a.logger)

	count, err := svc.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("tag store is already empty")
		return nil
	}

	if !*confirm {
		fmt.Printf("delete all %d tags? type yes to confirm: ", count)
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if strings.TrimSpace(line) != "yes" {
			fmt.Println("aborted")
			return nil
		}
	}

	deleted, err := svc.Clear(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d tags\n", deleted)
	return nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
