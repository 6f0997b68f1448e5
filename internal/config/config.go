package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`

	// Groq (OpenAI-compatible) completion service.
	GroqAPIKey  string `env:"GROQ_API_KEY,required"`
	GroqBaseURL string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai/v1"`
	DeepModel   string `env:"LLM_DEEP_MODEL" envDefault:"llama-3.3-70b-versatile"`
	FastModel   string `env:"LLM_FAST_MODEL" envDefault:"llama-3.1-8b-instant"`
	VisionModel string `env:"LLM_VISION_MODEL" envDefault:"llama-3.2-11b-vision-preview"`

	// Requests-per-minute budgets per tier, sized below the provider's
	// published free-tier limits.
	DeepModelRPM   int `env:"LLM_DEEP_RPM" envDefault:"15"`
	FastModelRPM   int `env:"LLM_FAST_RPM" envDefault:"30"`
	VisionModelRPM int `env:"LLM_VISION_RPM" envDefault:"15"`

	// Embeddings for the semantic index (OpenAI).
	EmbeddingAPIKey string `env:"EMBEDDING_API_KEY"`
	EmbeddingModel  string `env:"EMBEDDING_MODEL" envDefault:"text-embedding-3-small"`

	// Telegram userbot credentials (my.telegram.org).
	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	// Notification bot (optional).
	BotToken    string `env:"BOT_TOKEN"`
	AdminChatID int64  `env:"ADMIN_CHAT_ID"`

	// Channel scanning.
	ScanInterval        time.Duration `env:"SCAN_INTERVAL" envDefault:"12h"`
	ScanMessageLimit    int           `env:"SCAN_MESSAGE_LIMIT" envDefault:"200"`
	ScanFetchBatch      int           `env:"SCAN_FETCH_BATCH" envDefault:"50"`
	ScanItemConcurrency int           `env:"SCAN_ITEM_CONCURRENCY" envDefault:"2"`
	DownloadDir         string        `env:"DOWNLOAD_DIR" envDefault:"./data/uploads_channels"`
	UploadDir           string        `env:"UPLOAD_DIR" envDefault:"./data/uploads"`
	ImageDir            string        `env:"IMAGE_DIR" envDefault:"./data/extracted_images"`

	// External bibliographic sources.
	PubMedBaseURL   string        `env:"PUBMED_BASE_URL" envDefault:"https://eutils.ncbi.nlm.nih.gov/entrez/eutils"`
	CrossrefBaseURL string        `env:"CROSSREF_BASE_URL" envDefault:"https://api.crossref.org"`
	MetadataTimeout time.Duration `env:"METADATA_TIMEOUT" envDefault:"15s"`

	// HTTP API + health.
	APIPort    int `env:"API_PORT" envDefault:"8005"`
	HealthPort int `env:"HEALTH_PORT" envDefault:"8080"`

	// Alerting threshold for practice-changing papers.
	AlertQualityScore float64 `env:"ALERT_QUALITY_SCORE" envDefault:"9.0"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
