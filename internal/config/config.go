package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone = "UTC"
	defaultEnvFile  = ".env"

	configPathEnv        = "SAFEMAP_CONFIG"
	databaseDriverEnv    = "DATABASE_DRIVER"
	databaseDSNEnv       = "DATABASE_DSN"
	newsAPIKeyEnv        = "NEWS_API_KEY"
	openAIAPIKeyEnv      = "OPENAI_API_KEY"
	embeddingProviderEnv = "EMBEDDING_PROVIDER"
	redisAddrEnv         = "REDIS_ADDR"
	telegramTokenEnv     = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv    = "TELEGRAM_CHAT_ID"
	logLevelEnv          = "LOG_LEVEL"
	httpAddressEnv       = "HTTP_ADDRESS"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Embedding providers.
const (
	ProviderHashing = "hashing"
	ProviderML      = "ml"
	ProviderOpenAI  = "openai"
)

// Embedding cache backends.
const (
	CacheNone   = "none"
	CacheRedis  = "redis"
	CacheBadger = "badger"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database      DatabaseConfig     `yaml:"database"`
	HTTP          HTTPConfig         `yaml:"http"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Embedding     EmbeddingConfig    `yaml:"embedding"`
	NewsAPI       NewsAPIConfig      `yaml:"newsapi"`
	Notifications NotificationConfig `yaml:"notifications"`
	Logging       LoggingConfig      `yaml:"logging"`
	Sites         []SiteConfig       `yaml:"sites"`
}

// DatabaseConfig selects the incident store. For sqlite the DSN is a file path or ":memory:".
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Address         string        `yaml:"address"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// SchedulerConfig defines when the pipeline should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	RunOnStart     bool           `yaml:"runOnStart"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// PipelineConfig tunes the batch pipeline.
type PipelineConfig struct {
	LookbackDays int       `yaml:"lookbackDays"`
	ANN          ANNConfig `yaml:"ann"`
}

// ANNConfig switches candidate pair generation to an HNSW graph.
// M is the graph degree and EfSearch the search candidate list size.
type ANNConfig struct {
	Enabled   bool `yaml:"enabled"`
	Neighbors int  `yaml:"neighbors"`
	M         int  `yaml:"m"`
	EfSearch  int  `yaml:"efSearch"`
}

// EmbeddingConfig picks the text embedder and its cache.
type EmbeddingConfig struct {
	Provider  string       `yaml:"provider"`
	Dimension int          `yaml:"dimension"`
	ML        MLConfig     `yaml:"ml"`
	OpenAI    OpenAIConfig `yaml:"openai"`
	Cache     CacheConfig  `yaml:"cache"`
}

// MLConfig describes the sentence-transformers sidecar.
type MLConfig struct {
	Endpoint          string        `yaml:"endpoint"`
	APIKey            string        `yaml:"apiKey"`
	Model             string        `yaml:"model"`
	BatchSize         int           `yaml:"batchSize"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout"`
}

// OpenAIConfig defines how to contact an OpenAI-compatible embeddings API.
type OpenAIConfig struct {
	APIKey     string `yaml:"apiKey"`
	BaseURL    string `yaml:"baseUrl"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// CacheConfig selects where embeddings are memoised.
type CacheConfig struct {
	Backend    string      `yaml:"backend"`
	Redis      RedisConfig `yaml:"redis"`
	BadgerPath string      `yaml:"badgerPath"`
}

// RedisConfig holds Redis connection details for the embedding cache.
type RedisConfig struct {
	Address  string        `yaml:"address"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// NewsAPIConfig holds credentials and defaults for the NewsAPI scanner.
// UserLat and UserLon are attached to every fetched article when set.
type NewsAPIConfig struct {
	APIKey            string   `yaml:"apiKey"`
	BaseURL           string   `yaml:"baseUrl"`
	RequestsPerSecond float64  `yaml:"requestsPerSecond"`
	UserLat           *float64 `yaml:"userLat"`
	UserLon           *float64 `yaml:"userLon"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	APIBase  string `yaml:"apiBase"`
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// Enabled reports whether digests can be delivered.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// LoggingConfig selects level and output format (text or json).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SiteConfig describes a single source with its scanner strategy.
type SiteConfig struct {
	Name       string            `yaml:"name"`
	Scanner    string            `yaml:"scanner"`
	Categories []CategoryConfig  `yaml:"categories"`
	Options    map[string]string `yaml:"options"`
}

// CategoryConfig holds a concrete endpoint to read: a feed URL or a CSV path.
type CategoryConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// Load reads .env, the YAML file named by SAFEMAP_CONFIG (if set) and applies environment overrides.
func Load() (Config, error) {
	return LoadFrom("")
}

// LoadFrom is Load with an explicit YAML path; an empty path falls back to SAFEMAP_CONFIG.
func LoadFrom(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	return load(path, defaultEnvFile)
}

func load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
		// SAFEMAP_CONFIG may come from .env itself.
		if path == "" {
			path = os.Getenv(configPathEnv)
		}
	}

	cfg := defaultConfig()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.bindTimezone(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(newsAPIKeyEnv); v != "" {
		c.NewsAPI.APIKey = v
	}
	if v := os.Getenv(openAIAPIKeyEnv); v != "" {
		c.Embedding.OpenAI.APIKey = v
	}
	if v := os.Getenv(embeddingProviderEnv); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv(redisAddrEnv); v != "" {
		c.Embedding.Cache.Redis.Address = v
		if c.Embedding.Cache.Backend == "" || c.Embedding.Cache.Backend == CacheNone {
			c.Embedding.Cache.Backend = CacheRedis
		}
	}
	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(httpAddressEnv); v != "" {
		c.HTTP.Address = v
	}
}

func (c *Config) bindTimezone() error {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("scheduler timezone %q: %w", tz, err)
	}
	c.Scheduler.location = loc
	return nil
}

// Validate rejects settings the application cannot start with.
func (c Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q: want %s or %s", c.Database.Driver, DriverSQLite, DriverPostgres))
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}

	switch c.Embedding.Provider {
	case ProviderHashing:
	case ProviderML:
		if c.Embedding.ML.Endpoint == "" {
			errs = append(errs, errors.New("embedding.ml.endpoint is required for the ml provider"))
		}
	case ProviderOpenAI:
		if c.Embedding.OpenAI.APIKey == "" {
			errs = append(errs, errors.New("embedding.openai.apiKey is required for the openai provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.provider %q is unknown", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 {
		errs = append(errs, errors.New("embedding.dimension must not be negative"))
	}

	switch c.Embedding.Cache.Backend {
	case "", CacheNone:
	case CacheRedis:
		if c.Embedding.Cache.Redis.Address == "" {
			errs = append(errs, errors.New("embedding.cache.redis.address is required for the redis cache"))
		}
	case CacheBadger:
		if c.Embedding.Cache.BadgerPath == "" {
			errs = append(errs, errors.New("embedding.cache.badgerPath is required for the badger cache"))
		}
	default:
		errs = append(errs, fmt.Errorf("embedding.cache.backend %q is unknown", c.Embedding.Cache.Backend))
	}

	if c.Pipeline.LookbackDays <= 0 {
		errs = append(errs, errors.New("pipeline.lookbackDays must be positive"))
	}
	if ann := c.Pipeline.ANN; ann.Neighbors < 0 || ann.M < 0 || ann.EfSearch < 0 {
		errs = append(errs, errors.New("pipeline.ann: neighbors, m and efSearch must not be negative"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q: want text or json", c.Logging.Format))
	}

	for i, site := range c.Sites {
		if site.Name == "" || site.Scanner == "" {
			errs = append(errs, fmt.Errorf("sites[%d]: name and scanner are required", i))
		}
	}

	return errors.Join(errs...)
}

// Option returns a site option or def when it is absent.
func (s SiteConfig) Option(key, def string) string {
	if v, ok := s.Options[key]; ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

// IntOption parses a numeric site option, falling back to def.
func (s SiteConfig) IntOption(key string, def int) int {
	v, err := strconv.Atoi(s.Option(key, ""))
	if err != nil {
		return def
	}
	return v
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Database: DatabaseConfig{Driver: DriverSQLite, DSN: "safemap.db"},
		HTTP: HTTPConfig{
			Address:         ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * *", Timezone: defaultTimezone, location: tz},
		Pipeline: PipelineConfig{
			LookbackDays: 30,
			ANN:          ANNConfig{Enabled: false, Neighbors: 16, M: 16, EfSearch: 20},
		},
		Embedding: EmbeddingConfig{
			Provider:  ProviderHashing,
			Dimension: 384,
			ML: MLConfig{
				Endpoint:          "http://localhost:8001",
				Model:             "all-MiniLM-L6-v2",
				BatchSize:         64,
				RequestsPerSecond: 5,
				Timeout:           30 * time.Second,
			},
			Cache: CacheConfig{
				Backend: CacheNone,
				Redis:   RedisConfig{TTL: 30 * 24 * time.Hour},
			},
		},
		NewsAPI: NewsAPIConfig{
			BaseURL:           "https://newsapi.org",
			RequestsPerSecond: 1,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Sites: []SiteConfig{
			{
				Name:    "newsapi-india",
				Scanner: "newsapi",
				Options: map[string]string{"country": "in", "language": "en", "pages": "5"},
			},
		},
	}
}
