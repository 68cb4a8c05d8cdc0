package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"exam-practice-service/internal/adapter"
	"exam-practice-service/internal/app"
	"exam-practice-service/internal/backend"
	"exam-practice-service/internal/cache"
	"exam-practice-service/internal/config"
	"exam-practice-service/internal/domain"
	"exam-practice-service/internal/history"
	"exam-practice-service/internal/infra/memory"
	pgstore "exam-practice-service/internal/infra/postgres"
	"exam-practice-service/internal/scheduler"
	transport "exam-practice-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the practice server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		// The service runs fully self-contained on the demo paper set; a
		// missing config just means no backend, redis, or postgres.
		log.Printf("config %s not loaded (%v), using defaults", path, err)
		return config.Config{}
	}
	return cfg
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg := loadConfig(configPath)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	paperTTL := config.TTLDuration(cfg.Cache.PaperTTL, cache.DefaultPaperTTL)
	questionTTL := config.TTLDuration(cfg.Cache.QuestionTTL, cache.DefaultQuestionTTL)
	sweepEvery := config.TTLDuration(cfg.Cache.SweepEvery, time.Hour)

	var papers cache.PaperCache = cache.NewMemoryPaperCache(paperTTL)
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		papers = cache.NewRedisPaperCache(client, paperTTL)
	}
	questions := cache.NewQuestionCache(questionTTL)

	demoSet := memory.NewDemoPaperSet()
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loaded, err := pgstore.NewPaperStore(pool).LoadSet(ctx)
		if err != nil {
			return err
		}
		demoSet = loaded
	}

	historyPath := cfg.History.Path
	if historyPath == "" {
		historyPath = "exam-history.db"
	}
	store, err := history.Open(historyPath)
	if err != nil {
		return err
	}
	defer store.Close()

	var apiClient *backend.Client
	if cfg.Backend.BaseURL != "" {
		token := cfg.Backend.Token
		if token == "" {
			token = os.Getenv("EXAM_API_TOKEN")
		}
		apiClient = backend.NewClient(backend.Config{
			BaseURL: cfg.Backend.BaseURL,
			Tokens:  backend.StaticToken(token),
		})
	}

	providers := make(map[domain.Subject]app.PaperProvider)
	for _, subject := range domain.Subjects() {
		if apiClient != nil {
			providers[subject] = adapter.New(apiClient, adapter.StrategyFor(subject), papers, questions)
		} else {
			providers[subject] = demoSet.View(subject)
		}
	}

	var summaries app.SummaryClient
	var remote app.RemoteSession
	if apiClient != nil {
		summaries = apiClient
		remote = apiClient
	}
	recon := app.NewReconciler(demoSet, summaries, store)
	manager := app.NewManager(providers, remote, recon)

	janitor := scheduler.NewJanitor(questions, sweepEvery)
	janitor.Start()
	defer janitor.Stop()

	wsHandler := transport.NewWSHandler(manager)
	restHandler := transport.NewRESTHandler(manager, store)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws/session", wsHandler.ServeWS)
	restHandler.Register(mux)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting exam practice service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
