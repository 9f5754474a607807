package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Job store: "memory", "redis" or "postgres"
	StoreBackend string
	RedisURL     string
	DatabaseURL  string

	// Media workspace (shared volume with the renderer services)
	MediaDir    string
	FFmpegPath  string
	FFprobePath string

	// Renderer services, one per visual category
	AnimationServiceURL  string
	DiagramServiceURL    string
	SimulationServiceURL string

	// External call ceilings, seconds
	PreviewTimeoutSeconds int
	RenderTimeoutSeconds  int
	TTSTimeoutSeconds     int

	// Render concurrency across all jobs
	MaxConcurrentRenders int

	// Planner: "gemini" (preferred) or "openai"
	PlannerProvider string
	GeminiKey       string
	GeminiModel     string
	OpenAIKey       string
	OpenAIModel     string

	// TTS: "google" (preferred) or "cartesia"
	TTSProvider     string
	GoogleTTSKey    string
	CartesiaKey     string
	CartesiaURL     string
	CartesiaVoiceID string
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:            getEnv("API_PORT", "8080"),
		BackendAPIKey:      getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", ""),

		StoreBackend: getEnv("STORE_BACKEND", "memory"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),

		MediaDir:    getEnv("MEDIA_DIR", "/media"),
		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		AnimationServiceURL:  getEnv("ANIMATION_SERVICE_URL", "http://localhost:8001"),
		DiagramServiceURL:    getEnv("DIAGRAM_SERVICE_URL", "http://localhost:8002"),
		SimulationServiceURL: getEnv("SIMULATION_SERVICE_URL", "http://localhost:8003"),

		PreviewTimeoutSeconds: getEnvInt("PREVIEW_TIMEOUT_SECONDS", 120),
		RenderTimeoutSeconds:  getEnvInt("RENDER_TIMEOUT_SECONDS", 600),
		TTSTimeoutSeconds:     getEnvInt("TTS_TIMEOUT_SECONDS", 90),
		MaxConcurrentRenders:  getEnvInt("MAX_CONCURRENT_RENDERS", 2),

		PlannerProvider: getEnv("PLANNER_PROVIDER", "gemini"),
		GeminiKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:     getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),

		TTSProvider:     getEnv("TTS_PROVIDER", "google"),
		GoogleTTSKey:    getEnv("GOOGLE_TTS_API_KEY", ""),
		CartesiaKey:     getEnv("CARTESIA_API_KEY", ""),
		CartesiaURL:     getEnv("CARTESIA_API_URL", "https://api.cartesia.ai"),
		CartesiaVoiceID: getEnv("CARTESIA_VOICE_ID", ""),
	}

	// Validate required fields
	switch cfg.StoreBackend {
	case "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when STORE_BACKEND=redis")
		}
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when STORE_BACKEND=postgres")
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q (want memory, redis or postgres)", cfg.StoreBackend)
	}

	switch cfg.PlannerProvider {
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when PLANNER_PROVIDER=gemini")
		}
	case "openai":
		if cfg.OpenAIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when PLANNER_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unknown PLANNER_PROVIDER %q (want gemini or openai)", cfg.PlannerProvider)
	}

	switch cfg.TTSProvider {
	case "google":
		if cfg.GoogleTTSKey == "" {
			return nil, fmt.Errorf("GOOGLE_TTS_API_KEY is required when TTS_PROVIDER=google")
		}
	case "cartesia":
		if cfg.CartesiaKey == "" {
			return nil, fmt.Errorf("CARTESIA_API_KEY is required when TTS_PROVIDER=cartesia")
		}
	default:
		return nil, fmt.Errorf("unknown TTS_PROVIDER %q (want google or cartesia)", cfg.TTSProvider)
	}

	if cfg.MaxConcurrentRenders < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT_RENDERS must be at least 1")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
