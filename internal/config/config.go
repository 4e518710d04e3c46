package config

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Keepalive is the configuration for the keep-alive batch job.
type Keepalive struct {
	// Targets
	TargetURLs []string `env:"KEEPALIVE_URLS,required" envSeparator:","`

	// Mailbox receiving the verification emails
	EmailAddress  string `env:"MAILBOX_ADDRESS,required"`
	EmailPassword string `env:"MAILBOX_PASSWORD,required"`
	IMAPHost      string `env:"IMAP_HOST"` // resolved from the address domain when empty
	IMAPPort      int    `env:"IMAP_PORT" envDefault:"993"`
	IMAPLogin     string `env:"IMAP_LOGIN"` // explicit login name, tried before the address

	// Secondary identity provider (GitHub)
	GithubUsername string `env:"GITHUB_USERNAME"`
	GithubPassword string `env:"GITHUB_PASSWORD"`

	// Timing
	IMAPDialTimeout  time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	CodeWait         time.Duration `env:"CODE_WAIT" envDefault:"90s"`
	CodePollInterval time.Duration `env:"CODE_POLL_INTERVAL" envDefault:"7s"`
	ProbeTimeout     time.Duration `env:"PROBE_TIMEOUT" envDefault:"5s"`
	StepTimeout      time.Duration `env:"STEP_TIMEOUT" envDefault:"10s"`
	RedirectTimeout  time.Duration `env:"REDIRECT_TIMEOUT" envDefault:"4s"`
	FinalTimeout     time.Duration `env:"FINAL_TIMEOUT" envDefault:"60s"`

	// Browser
	Headless      bool   `env:"HEADLESS" envDefault:"true"`
	ScreenshotDir string `env:"SCREENSHOT_DIR" envDefault:"."`

	// Ledger of consumed verification emails
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/docsbot.db"`

	// Failure notifications (optional)
	TelegramToken  string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID int64  `env:"TELEGRAM_CHAT_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// IMAPServer returns host:port when IMAP_HOST is set, empty otherwise.
func (c *Keepalive) IMAPServer() string {
	if c.IMAPHost == "" {
		return ""
	}
	return net.JoinHostPort(c.IMAPHost, strconv.Itoa(c.IMAPPort))
}

// TelegramEnabled returns true if failure notifications are configured
func (c *Keepalive) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Chat is the configuration for the chat web service.
type Chat struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`

	// Hosted LLM + embeddings
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbedModel    string `env:"EMBED_MODEL" envDefault:"text-embedding-3-small"`
	ChatModel     string `env:"CHAT_MODEL" envDefault:"gpt-4o-mini"`

	// Hosted vector store
	PineconeAPIKey    string `env:"PINECONE_API_KEY,required"`
	PineconeIndexHost string `env:"PINECONE_INDEX_HOST,required"` // https://<index>-<project>.svc.<region>.pinecone.io
	PineconeNamespace string `env:"PINECONE_NAMESPACE" envDefault:"demo-html"`
	TopK              int    `env:"RETRIEVAL_TOP_K" envDefault:"3"`

	// Focus rules and reference links, JSON file (optional)
	RulesPath string `env:"CHAT_RULES_PATH"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// Ingest is the configuration for the document ingestion job.
type Ingest struct {
	DocsDir string `env:"INGEST_DOCS_DIR,required"`

	ChunkSize    int `env:"INGEST_CHUNK_SIZE" envDefault:"500"`
	ChunkOverlap int `env:"INGEST_CHUNK_OVERLAP" envDefault:"50"`

	// Hosted embedding service
	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	EmbedModel    string `env:"EMBED_MODEL" envDefault:"text-embedding-3-small"`

	// Hosted vector store
	PineconeAPIKey    string `env:"PINECONE_API_KEY,required"`
	PineconeIndexHost string `env:"PINECONE_INDEX_HOST,required"`
	PineconeNamespace string `env:"PINECONE_NAMESPACE" envDefault:"demo-html"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// LoadKeepalive loads the keep-alive configuration from the
// environment, reading .env first if present.
func LoadKeepalive() (*Keepalive, error) {
	_ = godotenv.Load()

	cfg := &Keepalive{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.TargetURLs) == 0 {
		return nil, fmt.Errorf("KEEPALIVE_URLS must list at least one URL")
	}
	return cfg, nil
}

// LoadIngest loads the ingestion job configuration from the environment
func LoadIngest() (*Ingest, error) {
	_ = godotenv.Load()

	cfg := &Ingest{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("INGEST_CHUNK_SIZE must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("INGEST_CHUNK_OVERLAP must be in [0, chunk size), got %d", cfg.ChunkOverlap)
	}
	return cfg, nil
}

// LoadChat loads the chat service configuration from the environment
func LoadChat() (*Chat, error) {
	_ = godotenv.Load()

	cfg := &Chat{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.TopK <= 0 {
		return nil, fmt.Errorf("RETRIEVAL_TOP_K must be positive, got %d", cfg.TopK)
	}
	return cfg, nil
}
