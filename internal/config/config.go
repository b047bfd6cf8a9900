package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	NATS        NATSConfig        `yaml:"nats"`
	MinIO       MinIOConfig       `yaml:"minio"`
	Storage     StorageConfig     `yaml:"storage"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Enrollment  EnrollmentConfig  `yaml:"enrollment"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	APIKey         string   `yaml:"api_key"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxFrameBytes  int64    `yaml:"max_frame_bytes"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// NATSConfig configures the recognition report channel. An empty URL disables
// the queue; reports are then handed to the broadcast bus in-process.
type NATSConfig struct {
	URL      string `yaml:"url"`
	Consumer string `yaml:"consumer"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Prefix    string `yaml:"prefix"`
}

const (
	StorageFilesystem = "filesystem"
	StorageMinIO      = "minio"
)

type StorageConfig struct {
	Backend   string `yaml:"backend"`
	ImageDir  string `yaml:"image_dir"`
	URLPrefix string `yaml:"url_prefix"`
}

type RecognitionConfig struct {
	BaseURL       string        `yaml:"base_url"`
	RecognizePath string        `yaml:"recognize_path"`
	VectorizePath string        `yaml:"vectorize_path"`
	Timeout       time.Duration `yaml:"timeout"`
	VectorDim     int           `yaml:"vector_dim"`
	// InsecureSkipVerify accepts any backend certificate. Only for backends on a
	// trusted private segment.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

type EnrollmentConfig struct {
	BulkConcurrency int `yaml:"bulk_concurrency"`
}

// DefaultsConfig seeds the system_config row the first time it is read.
type DefaultsConfig struct {
	AdminPassword       string   `yaml:"admin_password"`
	WarningDelaySeconds int      `yaml:"warning_delay_seconds"`
	RequiredEquipment   []string `yaml:"required_equipment"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the services cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageFilesystem:
	case StorageMinIO:
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			return fmt.Errorf("storage backend minio requires minio.endpoint and minio.bucket")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Recognition.BaseURL == "" {
		return fmt.Errorf("recognition.base_url is required")
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxFrameBytes == 0 {
		cfg.Server.MaxFrameBytes = 8 << 20
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 20
	}
	if cfg.NATS.Consumer == "" {
		cfg.NATS.Consumer = "api-recognitions"
	}
	if cfg.MinIO.Prefix == "" {
		cfg.MinIO.Prefix = "workers/"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageFilesystem
	}
	if cfg.Storage.ImageDir == "" {
		cfg.Storage.ImageDir = "images"
	}
	if cfg.Storage.URLPrefix == "" {
		cfg.Storage.URLPrefix = "/images"
	}
	if cfg.Recognition.RecognizePath == "" {
		cfg.Recognition.RecognizePath = "/recognize_worker"
	}
	if cfg.Recognition.VectorizePath == "" {
		cfg.Recognition.VectorizePath = "/vectorize"
	}
	if cfg.Recognition.Timeout == 0 {
		cfg.Recognition.Timeout = 5 * time.Second
	}
	if cfg.Recognition.VectorDim == 0 {
		cfg.Recognition.VectorDim = 512
	}
	if cfg.Enrollment.BulkConcurrency == 0 {
		cfg.Enrollment.BulkConcurrency = 4
	}
	if cfg.Defaults.AdminPassword == "" {
		cfg.Defaults.AdminPassword = "1234"
	}
	if cfg.Defaults.WarningDelaySeconds == 0 {
		cfg.Defaults.WarningDelaySeconds = 10
	}
	if len(cfg.Defaults.RequiredEquipment) == 0 {
		cfg.Defaults.RequiredEquipment = []string{"helmet", "safety_shoes"}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SAFETY_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SAFETY_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("SAFETY_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v := os.Getenv("SAFETY_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("SAFETY_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("SAFETY_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("SAFETY_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("SAFETY_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("SAFETY_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("SAFETY_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
	}
	if v := os.Getenv("SAFETY_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("SAFETY_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("SAFETY_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("SAFETY_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("SAFETY_IMAGE_DIR"); v != "" {
		cfg.Storage.ImageDir = v
	}
	if v := os.Getenv("SAFETY_RECOGNITION_URL"); v != "" {
		cfg.Recognition.BaseURL = v
	}
	if v := os.Getenv("SAFETY_RECOGNITION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Recognition.Timeout = d
		}
	}
	if v := os.Getenv("SAFETY_RECOGNITION_INSECURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Recognition.InsecureSkipVerify = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
