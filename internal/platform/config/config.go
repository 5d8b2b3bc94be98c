package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Minio     MinioConfig     `yaml:"minio"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Billing   BillingConfig   `yaml:"billing"`
	Log       LogConfig       `yaml:"log"`
	Signature SignatureConfig `yaml:"signature"`
}

type ServerConfig struct {
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// DSN vacío = stores en memoria.
	DSN string `yaml:"dsn"`
}

type MinioConfig struct {
	// Endpoint vacío = artefactos en memoria.
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type RedisConfig struct {
	URL string        `yaml:"url"`
	TTL time.Duration `yaml:"ttl"`
}

type AuthConfig struct {
	// JWTSecret vacío = modo dev (X-Debug-User-ID).
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
}

type BillingConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	App    string `yaml:"app"`
}

type SignatureConfig struct {
	MinInkCoverage float64 `yaml:"min_ink_coverage"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Port: 8080, ShutdownTimeout: 10 * time.Second},
		Minio:     MinioConfig{Bucket: "contracts"},
		Redis:     RedisConfig{TTL: time.Hour},
		Billing:   BillingConfig{Timeout: 5 * time.Second},
		Log:       LogConfig{Level: "info", Format: "text", App: "isp-contracts"},
		Signature: SignatureConfig{MinInkCoverage: 0.001},
	}
}

// Load aplica defaults -> archivo YAML (opcional) -> variables de entorno.
func Load(path string) (Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}

	str("DB_DSN", &cfg.Database.DSN)
	str("MINIO_ENDPOINT", &cfg.Minio.Endpoint)
	str("MINIO_ACCESS_KEY", &cfg.Minio.AccessKey)
	str("MINIO_SECRET_KEY", &cfg.Minio.SecretKey)
	str("MINIO_BUCKET", &cfg.Minio.Bucket)
	str("REDIS_URL", &cfg.Redis.URL)
	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("BILLING_BASE_URL", &cfg.Billing.BaseURL)
	str("BILLING_TOKEN", &cfg.Billing.Token)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	str("APP_NAME", &cfg.Log.App)

	if v := strings.TrimSpace(getenv("PORT")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := strings.TrimSpace(getenv("MINIO_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: MINIO_USE_SSL: %w", err)
		}
		cfg.Minio.UseSSL = b
	}
	if v := strings.TrimSpace(getenv("SIGNATURE_MIN_INK_COVERAGE")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: SIGNATURE_MIN_INK_COVERAGE: %w", err)
		}
		cfg.Signature.MinInkCoverage = f
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port out of range: %d", c.Server.Port))
	}
	if c.Minio.Endpoint != "" && (c.Minio.AccessKey == "" || c.Minio.SecretKey == "" || c.Minio.Bucket == "") {
		errs = append(errs, errors.New("minio: access_key, secret_key and bucket are required with endpoint"))
	}
	if c.Signature.MinInkCoverage < 0 || c.Signature.MinInkCoverage >= 1 {
		errs = append(errs, fmt.Errorf("signature.min_ink_coverage must be in [0,1): %v", c.Signature.MinInkCoverage))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
