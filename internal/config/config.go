package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	Database   DatabaseConfig
	Storage    StorageConfig
	Gemini     GeminiConfig
	OpenAI     OpenAIConfig
	Suggestion SuggestionConfig
	Web        WebConfig
	Log        LogConfig
	Prices     PricesConfig
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the registered face HNSW index (optional)
	DisableHNSW   bool   // Serve registered face lookups from PostgreSQL only
}

// StorageConfig describes the S3 compatible bucket holding captured face images.
type StorageConfig struct {
	Endpoint  string // e.g. http://127.0.0.1:9000 for MinIO, empty for AWS
	Region    string // defaults to us-east-1
	AccessKey string
	SecretKey string
	Bucket    string // defaults to face-images
	PublicURL string // base URL objects are publicly served from (e.g. https://cdn.example.com)
}

// Enabled reports whether image uploads are configured.
func (c *StorageConfig) Enabled() bool {
	return c.Endpoint != "" || c.AccessKey != ""
}

// ObjectURL returns the public URL of an object key in the configured bucket.
// Falls back to path-style endpoint URLs when no public URL is set.
func (c *StorageConfig) ObjectURL(key string) string {
	base := c.PublicURL
	if base == "" {
		base = c.Endpoint
	}
	return strings.TrimSuffix(base, "/") + "/" + c.Bucket + "/" + key
}

type GeminiConfig struct {
	APIKey string
}

// GetAPIKey returns the API key, falling back to the file named by GEMINI_API_KEY_FILE.
func (c *GeminiConfig) GetAPIKey() string {
	if c.APIKey != "" {
		return c.APIKey
	}
	return readSecretFile(os.Getenv("GEMINI_API_KEY_FILE"))
}

type OpenAIConfig struct {
	Token string
}

// GetToken returns the token, falling back to the file named by OPENAI_TOKEN_FILE.
func (c *OpenAIConfig) GetToken() string {
	if c.Token != "" {
		return c.Token
	}
	return readSecretFile(os.Getenv("OPENAI_TOKEN_FILE"))
}

// SuggestionConfig selects the provider generating suggested actions for observed users.
type SuggestionConfig struct {
	Provider string // "gemini" (default), "openai" or "none"
}

type WebConfig struct {
	Host           string
	Port           int
	AdminToken     string   // bearer token for administrative routes, empty disables the check
	AllowedOrigins []string // browser origins allowed by CORS besides localhost
}

type LogConfig struct {
	Level string // debug, info (default), warn or error
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envBool reads an environment variable as a boolean, returning false when unset or invalid.
func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && b
}

// envString returns the env var or the default when it is unset or empty.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma-separated env var, dropping blank entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func readSecretFile(path string) string {
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
			DisableHNSW:   envBool("HNSW_DISABLED"),
		},
		Storage: StorageConfig{
			Endpoint:  os.Getenv("S3_ENDPOINT"),
			Region:    envString("S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("S3_ACCESS_KEY"),
			SecretKey: os.Getenv("S3_SECRET_KEY"),
			Bucket:    envString("S3_BUCKET", "face-images"),
			PublicURL: os.Getenv("S3_PUBLIC_URL"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Suggestion: SuggestionConfig{
			Provider: strings.ToLower(envString("SUGGESTION_PROVIDER", "gemini")),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AdminToken:     os.Getenv("WEB_ADMIN_TOKEN"),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Log: LogConfig{
			Level: envString("LOG_LEVEL", "info"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, zero pricing if unknown
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	return ModelPricing{}
}
