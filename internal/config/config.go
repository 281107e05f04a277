package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Preprocess PreprocessConfig `mapstructure:"preprocess"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Evaluate   EvaluateConfig   `mapstructure:"evaluate"`
	Jobs       JobsConfig       `mapstructure:"jobs"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"`
	DSN             string `mapstructure:"dsn"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

type StorageConfig struct {
	Backend string   `mapstructure:"backend"`
	Local   LocalFS  `mapstructure:"local"`
	S3      S3Config `mapstructure:"s3"`
}

type LocalFS struct {
	Root string `mapstructure:"root"`
}

type S3Config struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	Bucket       string `mapstructure:"bucket"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

type LLMConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	DefaultModel   string        `mapstructure:"default_model"`
	VisionModel    string        `mapstructure:"vision_model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
}

type PreprocessConfig struct {
	Workers          int           `mapstructure:"workers"`
	ProgressInterval time.Duration `mapstructure:"progress_interval"`
	WatcherInterval  time.Duration `mapstructure:"watcher_interval"`
	PDFTimeout       time.Duration `mapstructure:"pdf_timeout"`
	MaxTableRows     int           `mapstructure:"max_table_rows"`
}

type ExtractConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	CancelInterval    time.Duration `mapstructure:"cancel_interval"`
}

type EvaluateConfig struct {
	Workers        int     `mapstructure:"workers"`
	FuzzyThreshold int     `mapstructure:"fuzzy_threshold"`
	NumericEpsilon float64 `mapstructure:"numeric_epsilon"`
}

type JobsConfig struct {
	Workers       int           `mapstructure:"workers"`
	MaxRetries    int           `mapstructure:"max_retries"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StallAfter    time.Duration `mapstructure:"stall_after"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	// Set config file path
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/structex.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local.root", "./data/blobs")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.bucket", "structex")
	v.SetDefault("storage.s3.use_path_style", true)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.default_model", "gpt-4o-mini")
	v.SetDefault("llm.vision_model", "gpt-4o-mini")
	v.SetDefault("llm.request_timeout", 120*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("preprocess.workers", 5)
	v.SetDefault("preprocess.progress_interval", 3*time.Second)
	v.SetDefault("preprocess.watcher_interval", time.Second)
	v.SetDefault("preprocess.pdf_timeout", 60*time.Second)
	v.SetDefault("preprocess.max_table_rows", 10000)
	v.SetDefault("extract.heartbeat_interval", 5*time.Second)
	v.SetDefault("extract.cancel_interval", time.Second)
	v.SetDefault("evaluate.workers", 5)
	v.SetDefault("evaluate.fuzzy_threshold", 85)
	v.SetDefault("evaluate.numeric_epsilon", 0.001)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("jobs.sweep_interval", 5*time.Minute)
	v.SetDefault("jobs.stall_after", 30*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("storage.s3.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.s3.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.s3.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.s3.bucket", "S3_BUCKET")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.default_model", "LLM_MODEL")
	v.BindEnv("llm.vision_model", "VISION_MODEL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
