package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bobarin/iris/internal/api"
	"github.com/bobarin/iris/internal/config"
	"github.com/bobarin/iris/internal/media"
	"github.com/bobarin/iris/internal/services"
	"github.com/bobarin/iris/internal/store"
	"github.com/bobarin/iris/internal/worker"
)

func main() {
	log.Println("Starting Iris API...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// ctx is canceled on SIGINT/SIGTERM; running segment loops observe
	// it at their next segment boundary.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Job store
	jobStore, closeStore, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	defer closeStore()
	log.Printf("Job store: %s", cfg.StoreBackend)

	// Media workspace and ffmpeg engine
	ws, err := media.NewWorkspace(cfg.MediaDir)
	if err != nil {
		log.Fatalf("Failed to create media workspace: %v", err)
	}
	engine := media.NewEngine(ws, cfg.FFmpegPath, cfg.FFprobePath)
	log.Printf("Media workspace: %s", ws.Root())

	// Speech synthesis
	var speech services.SpeechProvider
	switch cfg.TTSProvider {
	case "google":
		speech = services.NewGoogleTTSService(cfg.GoogleTTSKey)
		log.Println("TTS provider: Google Cloud (Chirp3 HD)")
	case "cartesia":
		speech = services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
		log.Printf("TTS provider: Cartesia (voice: %s)", cfg.CartesiaVoiceID)
	}
	synthesizer := services.NewSynthesizer(speech, ws, engine,
		time.Duration(cfg.TTSTimeoutSeconds)*time.Second)

	// Renderer clients, one per visual category
	renderers := services.NewRenderers(
		cfg.AnimationServiceURL, cfg.DiagramServiceURL, cfg.SimulationServiceURL,
		time.Duration(cfg.PreviewTimeoutSeconds)*time.Second,
		time.Duration(cfg.RenderTimeoutSeconds)*time.Second,
	)

	// Segment planner
	var planner services.Planner
	switch cfg.PlannerProvider {
	case "gemini":
		planner = services.NewGeminiPlanner(cfg.GeminiKey, cfg.GeminiModel)
		log.Printf("Planner provider: Gemini (model: %s)", cfg.GeminiModel)
	case "openai":
		planner = services.NewOpenAIPlanner(cfg.OpenAIKey, cfg.OpenAIModel)
		log.Printf("Planner provider: OpenAI (model: %s)", cfg.OpenAIModel)
	}

	// State machine
	processor := worker.NewProcessor(synthesizer, renderers, engine, cfg.MaxConcurrentRenders)
	machine := worker.NewMachine(ctx, jobStore, processor)

	// HTTP surface
	handler := api.NewHandler(machine, planner)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server exited")
}

// newStore builds the configured persistence backend. The returned
// closer is a no-op for the in-memory store.
func newStore(cfg *config.Config) (store.JobStore, func(), error) {
	switch cfg.StoreBackend {
	case "redis":
		s, err := store.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s), nil
	case "postgres":
		s, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s), nil
	default:
		return store.NewMemoryStore(), func() {}, nil
	}
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.Printf("Warning: failed to close job store: %v", err)
		}
	}
}
