package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"caredocs/pkg/domain"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Secrets are
// expected via environment overrides in real deployments.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	RenderEndpoint string `yaml:"renderEndpoint"`
	RenderAPIKey   string `yaml:"renderApiKey"`

	StorageEndpoint      string `yaml:"storageEndpoint"`
	StorageAccessKey     string `yaml:"storageAccessKey"`
	StorageSecretKey     string `yaml:"storageSecretKey"`
	StorageBucket        string `yaml:"storageBucket"`
	StorageUseSSL        bool   `yaml:"storageUseSSL"`
	StoragePublicBaseURL string `yaml:"storagePublicBaseURL"`

	// Vendor template ids, one per supported document subtype.
	CertificateTemplates map[string]string `yaml:"certificateTemplates"`
	ReferralTemplates    map[string]string `yaml:"referralTemplates"`

	TemporaryURLPatterns []string `yaml:"temporaryUrlPatterns"`

	GenerateRateLimitPerMinute int `yaml:"generateRateLimitPerMinute"`

	ClinicName    string `yaml:"clinicName"`
	ClinicPhone   string `yaml:"clinicPhone"`
	ClinicEmail   string `yaml:"clinicEmail"`
	ClinicAddress string `yaml:"clinicAddress"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CAREDOCS_RENDER_API_KEY"); v != "" {
		cfg.RenderAPIKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAREDOCS_RENDER_ENDPOINT"); v != "" {
		cfg.RenderEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAREDOCS_STORAGE_ACCESS_KEY"); v != "" {
		cfg.StorageAccessKey = v
	}
	if v := os.Getenv("CAREDOCS_STORAGE_SECRET_KEY"); v != "" {
		cfg.StorageSecretKey = v
	}
	if v := os.Getenv("CAREDOCS_STORAGE_PUBLIC_BASE_URL"); v != "" {
		cfg.StoragePublicBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("CAREDOCS_GENERATE_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GenerateRateLimitPerMinute = n
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for distributed rate limiting")
	}
	if cfg.RenderEndpoint == "" {
		return errors.New("config: renderEndpoint is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.RenderAPIKey) == "" {
		return errors.New("config: renderApiKey is required (set CAREDOCS_RENDER_API_KEY)")
	}
	if cfg.StorageEndpoint == "" || cfg.StorageBucket == "" {
		return errors.New("config: storageEndpoint and storageBucket are required")
	}
	if strings.TrimSpace(cfg.StoragePublicBaseURL) == "" {
		return errors.New("config: storagePublicBaseURL is required")
	}
	if cfg.GenerateRateLimitPerMinute < 0 {
		return errors.New("config: generateRateLimitPerMinute must be >= 0")
	}
	// A subtype this deployment claims to support without a template id is
	// discovered here, not on first use.
	templates := cfg.Templates()
	for _, sub := range domain.Subtypes() {
		if strings.TrimSpace(templates[sub]) == "" {
			return fmt.Errorf("config: missing template id for subtype %q", sub)
		}
	}
	return nil
}

// Templates flattens the per-family template maps into the subtype-keyed map
// the generator consumes.
func (c FileConfig) Templates() map[domain.DocumentSubtype]string {
	out := make(map[domain.DocumentSubtype]string, len(c.CertificateTemplates)+len(c.ReferralTemplates))
	for k, v := range c.CertificateTemplates {
		out[domain.DocumentSubtype(k)] = v
	}
	for k, v := range c.ReferralTemplates {
		out[domain.DocumentSubtype(k)] = v
	}
	return out
}
