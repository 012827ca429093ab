package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lexgraph/legal-assistant-api/internal/auth"
	"github.com/lexgraph/legal-assistant-api/internal/config"
	"github.com/lexgraph/legal-assistant-api/internal/embedding"
	"github.com/lexgraph/legal-assistant-api/internal/events"
	"github.com/lexgraph/legal-assistant-api/internal/graph"
	"github.com/lexgraph/legal-assistant-api/internal/handler"
	"github.com/lexgraph/legal-assistant-api/internal/llm"
	"github.com/lexgraph/legal-assistant-api/internal/middleware"
	"github.com/lexgraph/legal-assistant-api/internal/service"
	"github.com/lexgraph/legal-assistant-api/internal/store"
	"github.com/lexgraph/legal-assistant-api/pkg/logger"
	"github.com/lexgraph/legal-assistant-api/pkg/tracing"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetGlobal(log)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "legal-assistant-api", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	graphClient, err := graph.NewClient(ctx, graph.Config{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	})
	if err != nil {
		log.Fatal("failed to connect to graph store", zap.Error(err))
	}
	defer graphClient.Close(context.Background())
	articleStore := graph.NewArticleStore(graphClient)

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open relational store", zap.Error(err))
	}
	defer store.Close(db)
	users := store.NewUserRepo(db)
	conversations := store.NewConversationRepo(db)

	embedder, err := embedding.NewProvider(ctx, cfg.EmbeddingProvider, embeddingKey(cfg), cfg.EmbeddingModel)
	if err != nil {
		log.Fatal("failed to initialize embedding provider", zap.Error(err))
	}

	llmClient, err := llm.NewClient(llmProvider(cfg), llmKey(cfg))
	if err != nil {
		log.Fatal("failed to initialize LLM client", zap.Error(err))
	}

	// Usage events are best-effort: without a NATS URL the publisher no-ops.
	var natsClient *events.Client
	if cfg.NATSURL != "" {
		natsClient, err = events.Connect(events.Config{URL: cfg.NATSURL, Token: cfg.NATSToken}, log)
		if err != nil {
			log.Warn("failed to connect to NATS, usage events disabled", zap.Error(err))
			natsClient = nil
		} else {
			defer natsClient.Close()
		}
	}
	publisher := events.NewPublisher(natsClient)
	if err := publisher.EnsureStream(ctx); err != nil {
		log.Warn("failed to ensure usage stream", zap.Error(err))
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.JWTExpiration)

	articleSvc := service.NewArticleService(articleStore, log)
	searchSvc := service.NewSearchService(articleStore, embedder, publisher, log, cfg.DefaultIndexName, cfg.CollaboratorTimeout)
	chatSvc := service.NewChatService(articleStore, embedder, llmClient, conversations, log, cfg.ChatModel, cfg.DefaultIndexName, cfg.CollaboratorTimeout)

	articleHandler := handler.NewArticleHandler(articleSvc, log)
	searchHandler := handler.NewSearchHandler(searchSvc, log)
	chatHandler := handler.NewChatHandler(chatSvc, conversations, users, publisher, log, cfg.RequireAuth)
	authHandler := handler.NewAuthHandler(users, issuer, log)
	healthHandler := handler.NewHealthHandler(graphClient, db, natsClient, log)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Logging(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	requireAuth := middleware.Auth(issuer)
	// One shared limiter; registered after auth wherever auth runs so the
	// key is the authenticated user, not the client address.
	rateLimit := middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(rateLimit)
			r.Get("/article/{node_id}", articleHandler.GetArticle)
			r.Get("/article/{node_id}/versions", articleHandler.GetArticleVersions)
			r.Post("/search/semantic", searchHandler.SemanticSearch)
			r.Post("/auth/login", authHandler.Login)
		})

		r.With(requireAuth, rateLimit).Get("/auth/me", authHandler.Me)

		r.Group(func(r chi.Router) {
			if cfg.RequireAuth {
				r.Use(requireAuth)
			}
			r.Use(rateLimit)
			r.Post("/chat", chatHandler.Chat)
			r.Get("/chat/{conversation_id}", chatHandler.GetConversation)
			r.Delete("/chat/{conversation_id}", chatHandler.DeleteConversation)
			r.Post("/chat/{conversation_id}/clear", chatHandler.ClearConversation)
			r.Get("/conversations", chatHandler.ListConversations)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
	}

	go func() {
		log.Info("starting server",
			zap.String("port", cfg.ServerPort),
			zap.Bool("require_auth", cfg.RequireAuth),
			zap.String("embedding_provider", embedder.Name()),
			zap.String("llm_provider", llmClient.Name()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	}
	log.Info("server stopped")
}

func llmProvider(cfg *config.Config) llm.Provider {
	if cfg.AnthropicAPIKey == "" && cfg.OpenAIAPIKey != "" {
		return llm.ProviderOpenAI
	}
	return llm.ProviderAnthropic
}

func llmKey(cfg *config.Config) string {
	if llmProvider(cfg) == llm.ProviderOpenAI {
		return cfg.OpenAIAPIKey
	}
	return cfg.AnthropicAPIKey
}

func embeddingKey(cfg *config.Config) string {
	if cfg.EmbeddingProvider == "openai" {
		return cfg.OpenAIAPIKey
	}
	return cfg.GeminiAPIKey
}
