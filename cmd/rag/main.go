package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"minirag/internal/chunker"
	"minirag/internal/config"
	"minirag/internal/domain"
	apphttp "minirag/internal/http"
	"minirag/internal/logging"
	"minirag/internal/provider"
	"minirag/internal/service"
	"minirag/internal/template"
	"minirag/internal/tui"
)

const usage = `Usage:
  rag [--config=config.yaml] serve
  rag [--config=config.yaml] chat --project ID [--limit N]
  rag [--config=config.yaml] index --project ID [--reset] file1.txt [file2.txt ...]`

type app struct {
	cfg    *config.AppConfig
	logger *slog.Logger
	store  domain.VectorStore
	nlp    *service.NLPService
}

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/rag/config.yaml if not provided)")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfgPath, args[0], args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rag:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, cmd string, args []string) error {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Keep the chat screen quiet.
	level := cfg.Log.Level
	if cmd == "chat" {
		level = "warn"
	}
	logger := logging.New(level, os.Stderr)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Disconnect(); err != nil {
			logger.Error("disconnect vector store", "error", err)
		}
	}()

	switch cmd {
	case "serve":
		return a.serve(ctx)
	case "chat":
		return a.chat(args)
	case "index":
		return a.index(ctx, args)
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}
}

func newApp(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*app, error) {
	llms := provider.NewLLMFactory(cfg, logger)
	generation, err := llms.Generation(ctx)
	if err != nil {
		return nil, fmt.Errorf("generation client: %w", err)
	}
	embedding, err := llms.Embedding(ctx)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	store, err := provider.NewVectorStoreFactory(cfg, logger).Create(cfg.VectorDB.Backend)
	if err != nil {
		return nil, fmt.Errorf("vector store: %w", err)
	}
	if err := store.Connect(ctx); err != nil {
		_ = store.Disconnect()
		return nil, fmt.Errorf("connect vector store: %w", err)
	}

	templates, err := template.NewParser(cfg.Templates.PrimaryLang, cfg.Templates.DefaultLang)
	if err != nil {
		_ = store.Disconnect()
		return nil, fmt.Errorf("templates: %w", err)
	}
	nlp, err := service.NewNLPService(store, generation, embedding, templates, logger)
	if err != nil {
		_ = store.Disconnect()
		return nil, err
	}
	logger.Info("ready",
		"app", cfg.App.Name,
		"version", cfg.App.Version,
		"generation", generation.ModelInfo().Provider,
		"embedding", embedding.ModelInfo().Provider,
		"vector_db", cfg.VectorDB.Backend,
	)
	return &app{cfg: cfg, logger: logger, store: store, nlp: nlp}, nil
}

func (a *app) serve(ctx context.Context) error {
	timeout := time.Duration(a.cfg.Server.RequestTimeout) * time.Second
	h := apphttp.NewHandler(a.nlp, timeout, a.logger)
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           apphttp.NewRouter(h, a.logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("API listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *app) chat(args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	projectID := fs.String("project", "", "Project whose collection answers questions")
	limit := fs.Int("limit", service.DefaultSearchLimit, "Documents retrieved per question")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" {
		return errors.New("chat: --project is required")
	}

	timeout := time.Duration(a.cfg.Server.RequestTimeout) * time.Second
	m := tui.New(a.nlp, domain.Project{ProjectID: *projectID}, *limit, timeout)
	_, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	return err
}

func (a *app) index(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("index", flag.ContinueOnError)
	projectID := fs.String("project", "", "Project to index into")
	reset := fs.Bool("reset", false, "Recreate the collection before inserting")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *projectID == "" || fs.NArg() == 0 {
		return errors.New("index: --project and at least one file are required")
	}

	files := a.cfg.Files
	loader := &service.FileLoader{
		Chunker:      chunker.NewSentenceChunker(files.DefaultChunkSize, files.ChunkOverlap),
		AllowedTypes: files.AllowedTypes,
		MaxSizeBytes: int64(files.MaxSizeMB) << 20,
	}
	chunks, ids, err := loader.Load(fs.Args())
	if err != nil {
		return err
	}

	project := domain.Project{ProjectID: *projectID}
	if err := a.nlp.IndexIntoVectorDB(ctx, project, chunks, ids, *reset); err != nil {
		return err
	}
	info, err := a.nlp.GetVectorDBCollectionInfo(ctx, project)
	if err != nil {
		return err
	}
	fmt.Printf("Indexed %d chunks into %s (%d points)\n", len(chunks), info.Name, info.PointsCount)
	return nil
}
