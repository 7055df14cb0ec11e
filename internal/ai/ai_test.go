package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/face-access/internal/config"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodeJPEG(img image.Image) []byte {
	var buf bytes.Buffer
	jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}

func decodedSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return img.Bounds().Dx(), img.Bounds().Dy()
}

// --- ResizeImage tests ---

func TestResizeImage(t *testing.T) {
	tests := []struct {
		name          string
		data          []byte
		maxSize       int
		width, height int
	}{
		{"small image unchanged", encodeJPEG(createTestImage(100, 80, color.White)), 512, 100, 80},
		{"landscape", encodeJPEG(createTestImage(1024, 512, color.White)), 512, 512, 256},
		{"portrait", encodeJPEG(createTestImage(300, 600, color.Black)), 300, 150, 300},
		{"png converted to jpeg", encodePNG(createTestImage(40, 40, color.White)), 512, 40, 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resized, err := ResizeImage(tt.data, tt.maxSize)
			require.NoError(t, err)
			w, h := decodedSize(t, resized)
			assert.Equal(t, tt.width, w)
			assert.Equal(t, tt.height, h)
		})
	}
}

func TestResizeImage_InvalidData(t *testing.T) {
	_, err := ResizeImage([]byte("not an image"), 100)
	assert.Error(t, err)
}

func TestPrepareImage_FallsBackToOriginal(t *testing.T) {
	raw := []byte("opaque capture")
	assert.Equal(t, raw, prepareImage(raw, 100))
}

// --- DecodeImageData tests ---

func TestDecodeImageData(t *testing.T) {
	payload := []byte{0xff, 0xd8, 0xff, 0xe0, 0x01}
	encoded := base64.StdEncoding.EncodeToString(payload)

	tests := []struct {
		name  string
		input string
	}{
		{"plain base64", encoded},
		{"data url", "data:image/jpeg;base64," + encoded},
		{"png data url", "data:image/png;base64," + encoded},
		{"unpadded", strings.TrimRight(encoded, "=")},
		{"surrounding whitespace", "  " + encoded + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := DecodeImageData(tt.input)
			require.NoError(t, err)
			assert.Equal(t, payload, data)
		})
	}
}

func TestDecodeImageData_Invalid(t *testing.T) {
	for _, input := range []string{"", "data:image/jpeg;base64,", "data:image/jpeg", "!!!not base64!!!"} {
		_, err := DecodeImageData(input)
		assert.ErrorIs(t, err, ErrInvalidImageData, "input %q", input)
	}
}

// --- Prompt tests ---

func TestBuildPrompt_New(t *testing.T) {
	prompt, err := BuildPrompt(SuggestionContext{Type: ContextNew})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt, "A new observed user has been detected."))
	assert.Contains(t, prompt, "max 15 words")
	assert.Contains(t, prompt, "'Categorize as visitor'")
}

func TestBuildPrompt_Existing(t *testing.T) {
	expires := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	prompt, err := BuildPrompt(SuggestionContext{
		Type:      ContextExisting,
		UserID:    "o-1",
		Status:    "active_temporal",
		ExpiresAt: &expires,
		Zones:     []string{"Lobby", "Lab"},
	})
	require.NoError(t, err)

	assert.Contains(t, prompt, "An existing observed user (ID: o-1) has been detected.")
	assert.Contains(t, prompt, "Their current status is 'active_temporal'.")
	assert.Contains(t, prompt, "set to expire on '2024-05-02T10:00:00Z'")
	assert.Contains(t, prompt, "previously accessed zones: Lobby, Lab.")
	assert.Contains(t, prompt, "max 20 words")
}

func TestBuildPrompt_ExistingDefaults(t *testing.T) {
	prompt, err := BuildPrompt(SuggestionContext{Type: ContextExisting})
	require.NoError(t, err)

	assert.Contains(t, prompt, "(ID: N/A)")
	assert.Contains(t, prompt, "status is 'unknown'")
	assert.Contains(t, prompt, "expire on 'N/A'")
	assert.Contains(t, prompt, "accessed zones: None.")
}

func TestRenderPrompt_ExecuteError(t *testing.T) {
	tmpl := template.Must(template.New("broken").Parse("User {{.Missing}}"))

	_, err := renderPrompt(tmpl, struct{ ID string }{ID: "o-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render broken prompt")
}

func TestCleanSuggestion(t *testing.T) {
	assert.Equal(t, "Monitor closely", cleanSuggestion("  \"Monitor closely\"\n"))
	assert.Equal(t, "", cleanSuggestion("  "))
}

// --- Usage tests ---

func TestUsageTracker(t *testing.T) {
	tracker := usageTracker{pricing: RequestPricing{Input: 1.0, Output: 2.0}}
	tracker.track(500_000, 250_000)
	tracker.track(500_000, 250_000)

	usage := tracker.GetUsage()
	assert.Equal(t, 1_000_000, usage.InputTokens)
	assert.Equal(t, 500_000, usage.OutputTokens)
	assert.InDelta(t, 2.0, usage.TotalCost, 1e-9)

	tracker.ResetUsage()
	assert.Equal(t, Usage{}, tracker.GetUsage())
}

// --- Provider tests ---

func TestOpenAIProvider_Suggest(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4.1-mini",
			"choices": [{
				"index": 0,
				"message": {"role": "assistant", "content": "\"Review for permanent access\""},
				"finish_reason": "stop"
			}],
			"usage": {"prompt_tokens": 1000, "completion_tokens": 10, "total_tokens": 1010}
		}`)
	}))
	defer server.Close()

	p := NewOpenAIProvider("test-key", RequestPricing{Input: 0.4, Output: 1.6},
		option.WithBaseURL(server.URL), option.WithMaxRetries(0))

	got, err := p.Suggest(context.Background(), encodeJPEG(createTestImage(10, 10, color.White)),
		SuggestionContext{Type: ContextNew})
	require.NoError(t, err)
	assert.Equal(t, "Review for permanent access", got)
	assert.Equal(t, "gpt-4.1-mini", body["model"])
	assert.Equal(t, 1000, p.GetUsage().InputTokens)
	assert.Equal(t, 10, p.GetUsage().OutputTokens)
}

func TestOpenAIProvider_NoImage(t *testing.T) {
	p := NewOpenAIProvider("test-key", RequestPricing{}, option.WithBaseURL("http://127.0.0.1:1"))
	got, err := p.Suggest(context.Background(), nil, SuggestionContext{Type: ContextNew})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGeminiProvider_Suggest(t *testing.T) {
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Monitor closely for unusual activity\n"}]}}],
			"usageMetadata": {"promptTokenCount": 300, "candidatesTokenCount": 6, "totalTokenCount": 306}
		}`)
	}))
	defer server.Close()

	p, err := NewGeminiProvider(context.Background(), "test-key", RequestPricing{Input: 0.3, Output: 2.5}, server.URL)
	require.NoError(t, err)

	got, err := p.Suggest(context.Background(), []byte("raw capture"), SuggestionContext{Type: ContextExisting, UserID: "o-1"})
	require.NoError(t, err)
	assert.Equal(t, "Monitor closely for unusual activity", got)
	assert.Contains(t, path, "gemini-2.5-flash:generateContent")
	assert.Equal(t, 300, p.GetUsage().InputTokens)
}

// --- Factory tests ---

func TestNewSuggester(t *testing.T) {
	t.Setenv("GEMINI_API_KEY_FILE", "")
	t.Setenv("OPENAI_TOKEN_FILE", "")

	cfg := &config.Config{Suggestion: config.SuggestionConfig{Provider: "none"}}
	s, err := NewSuggester(context.Background(), cfg)
	require.NoError(t, err)
	assert.Nil(t, s)

	cfg.Suggestion.Provider = "gemini"
	_, err = NewSuggester(context.Background(), cfg)
	assert.ErrorContains(t, err, "GEMINI_API_KEY")

	cfg.Suggestion.Provider = "openai"
	_, err = NewSuggester(context.Background(), cfg)
	assert.ErrorContains(t, err, "OPENAI_TOKEN")

	cfg.OpenAI.Token = "sk-test"
	s, err = NewSuggester(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "gpt-4.1-mini", s.Name())

	cfg.Suggestion.Provider = "llama"
	_, err = NewSuggester(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown suggestion provider")
}
