package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	arkembedding "github.com/cloudwego/eino-ext/components/embedding/ark"
	arkmodel "github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
)

// Config aggregates every setting the service needs.
type Config struct {
	Server   ServerConfig
	Twilio   TwilioConfig
	AI       AIConfig
	Storage  StorageConfig
	Ingest   IngestConfig
	Answer   AnswerConfig
	Delivery DeliveryConfig
}

// Load reads configuration from environment variables. Missing required
// credentials are reported as errors; the caller aborts before serving.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	twilio, err := loadTwilioConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	ingest, err := loadIngestConfig()
	if err != nil {
		return nil, err
	}

	answer, err := loadAnswerConfig()
	if err != nil {
		return nil, err
	}

	delivery, err := loadDeliveryConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		Twilio:   twilio,
		AI:       ai,
		Storage:  loadStorageConfig(),
		Ingest:   ingest,
		Answer:   answer,
		Delivery: delivery,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// Allow ":8080" or "127.0.0.1:8080" to be passed directly.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// TwilioConfig holds the messaging transport credentials.
type TwilioConfig struct {
	AccountSID      string
	AuthToken       string
	WhatsAppNumber  string
	DownloadTimeout time.Duration
}

// BareNumber returns the service's own number without the whatsapp: prefix,
// used to recognize self-messages on the webhook.
func (c TwilioConfig) BareNumber() string {
	return strings.TrimPrefix(c.WhatsAppNumber, "whatsapp:")
}

func loadTwilioConfig() (TwilioConfig, error) {
	cfg := TwilioConfig{
		AccountSID:     strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		AuthToken:      strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		WhatsAppNumber: strings.TrimSpace(os.Getenv("TWILIO_WHATSAPP_NUMBER")),
	}

	var missing []string
	if cfg.AccountSID == "" {
		missing = append(missing, "TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		missing = append(missing, "TWILIO_AUTH_TOKEN")
	}
	if cfg.WhatsAppNumber == "" {
		missing = append(missing, "TWILIO_WHATSAPP_NUMBER")
	}
	if len(missing) > 0 {
		return TwilioConfig{}, fmt.Errorf("missing required Twilio configuration: %s", strings.Join(missing, ", "))
	}

	timeout, err := parseDurationSecsEnv("DOWNLOAD_TIMEOUT_SECS", 60*time.Second)
	if err != nil {
		return TwilioConfig{}, err
	}
	cfg.DownloadTimeout = timeout

	return cfg, nil
}

// AIConfig describes the Ark chat and embedding models.
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	ChatModel      string
	EmbeddingModel string
	BaseURL        string
	Region         string
	Temperature    *float64
	MaxTokens      *int
}

// Enabled reports whether the required model credentials are present.
func (c AIConfig) Enabled() bool {
	return c.ChatModel != "" && c.EmbeddingModel != "" &&
		(c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel creates the Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &arkmodel.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.ChatModel,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return arkmodel.NewChatModel(ctx, cfg)
}

// NewEmbedder creates the Ark embedding model from the configuration.
func (c AIConfig) NewEmbedder(ctx context.Context) (embedding.Embedder, error) {
	cfg := &arkembedding.EmbeddingConfig{
		BaseURL:   c.BaseURL,
		Region:    c.Region,
		APIKey:    c.APIKey,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Model:     c.EmbeddingModel,
	}

	return arkembedding.NewEmbedder(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	cfg := AIConfig{
		APIKey:         strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		ChatModel:      strings.TrimSpace(os.Getenv("ARK_CHAT_MODEL")),
		EmbeddingModel: strings.TrimSpace(os.Getenv("ARK_EMBEDDING_MODEL")),
		BaseURL:        getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:         getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:    temperature,
		MaxTokens:      maxTokens,
	}

	if !cfg.Enabled() {
		return AIConfig{}, fmt.Errorf("missing required Ark configuration: provide ARK_CHAT_MODEL, ARK_EMBEDDING_MODEL and ARK_API_KEY (or the AK/SK pair)")
	}

	return cfg, nil
}

// StorageConfig describes where sessions, indices and temp downloads live.
type StorageConfig struct {
	DataDir     string
	SessionFile string
	IndexDir    string
	TempDir     string
}

func loadStorageConfig() StorageConfig {
	dataDir := getEnvOrDefault("DATA_DIR", "data")
	return StorageConfig{
		DataDir:     dataDir,
		SessionFile: filepath.Join(dataDir, "sessions.json"),
		IndexDir:    filepath.Join(dataDir, "indices"),
		TempDir:     filepath.Join(dataDir, "tmp"),
	}
}

// EnsureDirs provisions the storage directories at startup.
func (c StorageConfig) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.IndexDir, c.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// IngestConfig bounds the chunking and the ingestion call.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	Timeout      time.Duration
}

func loadIngestConfig() (IngestConfig, error) {
	size, err := parseIntEnv("CHUNK_SIZE", 1000)
	if err != nil {
		return IngestConfig{}, err
	}

	overlap, err := parseIntEnv("CHUNK_OVERLAP", 150)
	if err != nil {
		return IngestConfig{}, err
	}

	timeout, err := parseDurationSecsEnv("INGEST_TIMEOUT_SECS", 120*time.Second)
	if err != nil {
		return IngestConfig{}, err
	}

	return IngestConfig{ChunkSize: size, ChunkOverlap: overlap, Timeout: timeout}, nil
}

// AnswerConfig bounds retrieval and generation.
type AnswerConfig struct {
	TopK    int
	Timeout time.Duration
}

func loadAnswerConfig() (AnswerConfig, error) {
	topK, err := parseIntEnv("ANSWER_TOP_K", 3)
	if err != nil {
		return AnswerConfig{}, err
	}

	timeout, err := parseDurationSecsEnv("GENERATE_TIMEOUT_SECS", 60*time.Second)
	if err != nil {
		return AnswerConfig{}, err
	}

	return AnswerConfig{TopK: topK, Timeout: timeout}, nil
}

// DeliveryConfig bounds outbound message size and pacing.
type DeliveryConfig struct {
	MaxMessageLength int
	PartDelay        time.Duration
}

func loadDeliveryConfig() (DeliveryConfig, error) {
	maxLen, err := parseIntEnv("MESSAGE_MAX_LENGTH", 1550)
	if err != nil {
		return DeliveryConfig{}, err
	}

	delayMs, err := parseIntEnv("MESSAGE_PART_DELAY_MS", 1200)
	if err != nil {
		return DeliveryConfig{}, err
	}

	return DeliveryConfig{
		MaxMessageLength: maxLen,
		PartDelay:        time.Duration(delayMs) * time.Millisecond,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDurationSecsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	secs, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if secs == nil {
		return defaultValue, nil
	}
	if *secs <= 0 {
		return 0, fmt.Errorf("invalid %s value %d: must be positive", key, *secs)
	}
	return time.Duration(*secs) * time.Second, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
