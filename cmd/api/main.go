package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/zhouzirui/z-arena/backend/internal/config"
	"github.com/zhouzirui/z-arena/backend/internal/handler"
	"github.com/zhouzirui/z-arena/backend/internal/model/persona"
	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
	"github.com/zhouzirui/z-arena/backend/internal/service/chat"
	"github.com/zhouzirui/z-arena/backend/internal/service/debate"
	"github.com/zhouzirui/z-arena/backend/internal/service/events"
	"github.com/zhouzirui/z-arena/backend/internal/store"
	"github.com/zhouzirui/z-arena/backend/internal/store/postgres"
	"github.com/zhouzirui/z-arena/backend/internal/store/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	personas := persona.Seed()
	if cfg.PersonasFile != "" {
		personas, err = persona.LoadFile(cfg.PersonasFile, personas)
		if err != nil {
			log.Fatalf("failed to load personas: %v", err)
		}
		log.Printf("loaded personas from %s", cfg.PersonasFile)
	}
	personaStore := persona.NewMemoryStore(personas)

	st, err := openStore(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer st.Close()

	publisher := openPublisher(cfg.Events)
	defer publisher.Close()

	aiService := ai.NewService(cfg.Providers, ai.NewHTTPClient(cfg.Relay.UpstreamHeaderTimeout))
	history := debate.NewHistoryBuilder(personaStore, cfg.Relay.HistoryLimit)
	debateService := debate.NewService(st, aiService, history, publisher, cfg.Relay)
	chatService := chat.NewService(st)

	router := handler.NewRouter(personaStore, chatService, debateService, aiService)

	startServer(ctx, cfg.Server, router)
}

func openStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Driver() {
	case config.StorageDriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		st, err := postgres.New(connectCtx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		log.Println("conversation storage: postgres")
		return st, nil
	case config.StorageDriverSQLite:
		st, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		log.Printf("conversation storage: sqlite (%s)", cfg.SQLitePath)
		return st, nil
	default:
		log.Println("conversation storage: in-memory, history is lost on restart")
		return store.NewMemoryStore(), nil
	}
}

func openPublisher(cfg config.EventsConfig) events.Publisher {
	if !cfg.Enabled() {
		log.Println("NATS_URL 未配置，跳过回合事件发布")
		return events.NoopPublisher{}
	}
	pub, err := events.NewNATSPublisher(cfg.NATSURL, cfg.NATSToken, cfg.Subject)
	if err != nil {
		log.Printf("warning: failed to connect to NATS: %v", err)
		log.Println("continuing without turn events")
		return events.NoopPublisher{}
	}
	return pub
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Z Arena debate relay listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
