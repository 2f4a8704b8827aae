package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the application's configuration model.
// It is passed explicitly to every component; nothing reads it from globals.
type Config struct {
	Paths   PathsConfig   `yaml:"paths"`
	Weather WeatherConfig `yaml:"weather"`
	Storage StorageConfig `yaml:"storage"`
	Model   ModelConfig   `yaml:"model"`
	Trainer TrainerConfig `yaml:"trainer"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type PathsConfig struct {
	// Corpus root holding pos/ and neg/. If empty, read from env DATA_DIRECTORY
	DataDir string `yaml:"dataDir"`
	// Directory holding types_mapping.json and tags_mapping.json. Env INFO_DIRECTORY
	InfoDir string `yaml:"infoDir"`
	// Tensor cache directory; defaults to <dataDir>/data
	CacheDir string `yaml:"cacheDir"`
}

type WeatherConfig struct {
	// If empty, read from env WEATHER_API_KEY
	APIKey      string  `yaml:"apiKey"`
	BaseURL     string  `yaml:"baseURL"`
	TimeoutSec  int     `yaml:"timeoutSec"`
	RPS         float64 `yaml:"rps"`
	Burst       int     `yaml:"burst"`
	MaxAttempts int     `yaml:"maxAttempts"`
	BackoffMS   int     `yaml:"backoffMs"`
	// Forecasts kept in memory per location
	CacheSize   int `yaml:"cacheSize"`
	CacheTTLMin int `yaml:"cacheTtlMin"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath"`
}

type ModelConfig struct {
	EmbedDim    int     `yaml:"embedDim"`
	Aggregation string  `yaml:"aggregation"` // "sum" or "mean"
	UseTags     bool    `yaml:"useTags"`
	ConvFilters int     `yaml:"convFilters"`
	ConvKernel  int     `yaml:"convKernel"`
	WeatherOut  int     `yaml:"weatherOut"`
	Hidden      []int   `yaml:"hidden"`
	Dropout     float64 `yaml:"dropout"`
	L2          float64 `yaml:"l2"`
	LeakySlope  float64 `yaml:"leakySlope"`
	Seed        int64   `yaml:"seed"`
	// Name under which checkpoints are registered in the store
	Name string `yaml:"name"`
}

type TrainerConfig struct {
	// External trainer executable fed with JSONL samples
	BinaryPath   string  `yaml:"binaryPath"`
	OutPath      string  `yaml:"outPath"`
	Epochs       int     `yaml:"epochs"`
	BatchSize    int     `yaml:"batchSize"`
	LearningRate float64 `yaml:"learningRate"`
	ValSplit     float64 `yaml:"valSplit"`
	Patience     int     `yaml:"patience"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns a sensible default configuration.
func Default() Config {
	return Config{
		Paths: PathsConfig{DataDir: "./data", InfoDir: "./info"},
		Weather: WeatherConfig{
			BaseURL:     "http://api.weatherapi.com/v1",
			TimeoutSec:  15,
			RPS:         2,
			Burst:       10,
			MaxAttempts: 5,
			BackoffMS:   500,
			CacheSize:   256,
			CacheTTLMin: 30,
		},
		Storage: StorageConfig{DBPath: "./outfitcast.db"},
		Model: ModelConfig{
			EmbedDim:    64,
			Aggregation: "sum",
			ConvFilters: 32,
			ConvKernel:  3,
			WeatherOut:  32,
			Hidden:      []int{128, 64, 32},
			Dropout:     0.5,
			L2:          0.01,
			LeakySlope:  0.2,
			Seed:        1,
			Name:        "outfit-weather",
		},
		Trainer: TrainerConfig{
			OutPath:      "./checkpoint.json",
			Epochs:       10,
			BatchSize:    32,
			LearningRate: 1e-4,
			ValSplit:     0.2,
			Patience:     3,
		},
	}
}

// CacheDir returns the tensor cache directory.
func (c Config) CacheDir() string {
	if c.Paths.CacheDir != "" {
		return c.Paths.CacheDir
	}
	return filepath.Join(c.Paths.DataDir, "data")
}

// TypesMappingPath is the type name -> id file.
func (c Config) TypesMappingPath() string {
	return filepath.Join(c.Paths.InfoDir, "types_mapping.json")
}

// TagsMappingPath is the tag name -> id file.
func (c Config) TagsMappingPath() string {
	return filepath.Join(c.Paths.InfoDir, "tags_mapping.json")
}

// ResolveEnv fills in config fields from environment variables if not set.
// A .env file in the working directory is honoured.
func (c *Config) ResolveEnv() {
	_ = godotenv.Load()
	if v := os.Getenv("DATA_DIRECTORY"); v != "" && (c.Paths.DataDir == "" || c.Paths.DataDir == Default().Paths.DataDir) {
		c.Paths.DataDir = v
	}
	if v := os.Getenv("INFO_DIRECTORY"); v != "" && (c.Paths.InfoDir == "" || c.Paths.InfoDir == Default().Paths.InfoDir) {
		c.Paths.InfoDir = v
	}
	if c.Weather.APIKey == "" {
		c.Weather.APIKey = os.Getenv("WEATHER_API_KEY")
	}
	if v := os.Getenv("OUTFITCAST_DB"); v != "" && (c.Storage.DBPath == "" || c.Storage.DBPath == Default().Storage.DBPath) {
		c.Storage.DBPath = v
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = os.Getenv("METRICS_ADDR")
	}
	if v := os.Getenv("WEATHER_API_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.Weather.RPS = f
		}
	}
}

// Validate rejects configurations that would fail later at construction time.
func (c Config) Validate() error {
	switch c.Model.Aggregation {
	case "sum", "mean":
	default:
		return fmt.Errorf("model.aggregation %q: must be sum or mean", c.Model.Aggregation)
	}
	if c.Model.EmbedDim <= 0 || c.Model.WeatherOut <= 0 || c.Model.ConvFilters <= 0 {
		return errors.New("model dimensions must be positive")
	}
	if c.Model.ConvKernel <= 0 || c.Model.ConvKernel > 24 {
		return fmt.Errorf("model.convKernel %d: must be in [1,24]", c.Model.ConvKernel)
	}
	if c.Model.Dropout < 0 || c.Model.Dropout >= 1 {
		return fmt.Errorf("model.dropout %v: must be in [0,1)", c.Model.Dropout)
	}
	return nil
}

// Load reads YAML config from path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	cfg.ResolveEnv()
	return cfg, cfg.Validate()
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
