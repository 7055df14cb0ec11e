package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetModelPricing_KnownModel(t *testing.T) {
	cfg := Load() // Load actual config with embedded prices

	pricing := cfg.GetModelPricing("gpt-4.1-mini")

	if pricing.Input != 0.40 {
		t.Errorf("expected input price 0.40, got %f", pricing.Input)
	}

	if pricing.Output != 1.60 {
		t.Errorf("expected output price 1.60, got %f", pricing.Output)
	}
}

func TestGetModelPricing_GeminiModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("gemini-2.5-flash")

	if pricing.Input != 0.30 {
		t.Errorf("expected gemini input 0.30, got %f", pricing.Input)
	}

	if pricing.Output != 2.50 {
		t.Errorf("expected gemini output 2.50, got %f", pricing.Output)
	}
}

func TestGetModelPricing_UnknownModel(t *testing.T) {
	cfg := Load()

	pricing := cfg.GetModelPricing("unknown-model-xyz")

	if pricing.Input != 0 || pricing.Output != 0 {
		t.Errorf("expected zero pricing for unknown model, got input=%f output=%f",
			pricing.Input, pricing.Output)
	}
}

func TestLoad_DatabaseDefaults(t *testing.T) {
	os.Unsetenv("DATABASE_MAX_OPEN_CONNS")
	os.Unsetenv("DATABASE_MAX_IDLE_CONNS")
	os.Unsetenv("HNSW_DISABLED")

	cfg := Load()

	if cfg.Database.MaxOpenConns != 25 {
		t.Errorf("expected default max open conns 25, got %d", cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns != 5 {
		t.Errorf("expected default max idle conns 5, got %d", cfg.Database.MaxIdleConns)
	}
	if cfg.Database.DisableHNSW {
		t.Error("expected HNSW to be enabled by default")
	}
}

func TestLoad_InvalidConnCounts(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"non-numeric", "invalid"},
		{"negative", "-100"},
		{"zero", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATABASE_MAX_OPEN_CONNS", tt.value)

			cfg := Load()

			if cfg.Database.MaxOpenConns != 25 {
				t.Errorf("expected default 25 for %q, got %d", tt.value, cfg.Database.MaxOpenConns)
			}
		})
	}
}

func TestLoad_StorageConfig(t *testing.T) {
	t.Setenv("S3_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("S3_ACCESS_KEY", "minio")
	t.Setenv("S3_SECRET_KEY", "minio123")
	t.Setenv("S3_BUCKET", "captures")
	t.Setenv("S3_REGION", "")

	cfg := Load()

	if cfg.Storage.Endpoint != "http://127.0.0.1:9000" {
		t.Errorf("expected endpoint 'http://127.0.0.1:9000', got '%s'", cfg.Storage.Endpoint)
	}
	if cfg.Storage.Bucket != "captures" {
		t.Errorf("expected bucket 'captures', got '%s'", cfg.Storage.Bucket)
	}
	if cfg.Storage.Region != "us-east-1" {
		t.Errorf("expected default region 'us-east-1', got '%s'", cfg.Storage.Region)
	}
	if !cfg.Storage.Enabled() {
		t.Error("expected storage to be enabled")
	}
}

func TestStorageConfig_ObjectURL(t *testing.T) {
	tests := []struct {
		name string
		cfg  StorageConfig
		want string
	}{
		{
			name: "endpoint path style",
			cfg:  StorageConfig{Endpoint: "http://127.0.0.1:9000/", Bucket: "face-images"},
			want: "http://127.0.0.1:9000/face-images/abc.jpeg",
		},
		{
			name: "public url wins",
			cfg:  StorageConfig{Endpoint: "http://minio:9000", PublicURL: "https://cdn.example.com", Bucket: "face-images"},
			want: "https://cdn.example.com/face-images/abc.jpeg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.ObjectURL("abc.jpeg"); got != tt.want {
				t.Errorf("ObjectURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad_OpenAIConfig(t *testing.T) {
	t.Setenv("OPENAI_TOKEN", "sk-test-token-123")

	cfg := Load()

	if cfg.OpenAI.GetToken() != "sk-test-token-123" {
		t.Errorf("expected OpenAI token 'sk-test-token-123', got '%s'", cfg.OpenAI.GetToken())
	}
}

func TestLoad_GeminiConfig(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "gemini-api-key-456")

	cfg := Load()

	if cfg.Gemini.GetAPIKey() != "gemini-api-key-456" {
		t.Errorf("expected Gemini API key 'gemini-api-key-456', got '%s'", cfg.Gemini.GetAPIKey())
	}
}

func TestGeminiConfig_APIKeyFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gemini")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("failed to write secret: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY_FILE", path)

	cfg := Load()

	if cfg.Gemini.GetAPIKey() != "from-file" {
		t.Errorf("expected key from file 'from-file', got '%s'", cfg.Gemini.GetAPIKey())
	}
}

func TestLoad_SuggestionProvider(t *testing.T) {
	t.Setenv("SUGGESTION_PROVIDER", "OpenAI")

	cfg := Load()

	if cfg.Suggestion.Provider != "openai" {
		t.Errorf("expected provider 'openai', got '%s'", cfg.Suggestion.Provider)
	}
}

func TestLoad_WebDefaults(t *testing.T) {
	os.Unsetenv("WEB_HOST")
	os.Unsetenv("WEB_PORT")

	cfg := Load()

	if cfg.Web.Host != "0.0.0.0" {
		t.Errorf("expected default host '0.0.0.0', got '%s'", cfg.Web.Host)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_AdminTokenAndLogLevel(t *testing.T) {
	t.Setenv("WEB_ADMIN_TOKEN", "s3cret")
	t.Setenv("LOG_LEVEL", "debug")

	cfg := Load()

	if cfg.Web.AdminToken != "s3cret" {
		t.Errorf("expected admin token 's3cret', got '%s'", cfg.Web.AdminToken)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Log.Level)
	}
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://kiosk.example.com, ,https://admin.example.com")

	origins := Load().Web.AllowedOrigins

	if len(origins) != 2 || origins[0] != "https://kiosk.example.com" || origins[1] != "https://admin.example.com" {
		t.Errorf("unexpected origins %v", origins)
	}
}

func TestLoad_LogLevelDefault(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")

	if level := Load().Log.Level; level != "info" {
		t.Errorf("expected default log level 'info', got '%s'", level)
	}
}

func TestLoad_PricesLoaded(t *testing.T) {
	cfg := Load()

	expectedModels := []string{"gpt-4.1-mini", "gemini-2.5-flash"}
	for _, model := range expectedModels {
		if _, ok := cfg.Prices.Models[model]; !ok {
			t.Errorf("expected model '%s' to be in prices", model)
		}
	}
}
