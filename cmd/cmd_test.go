package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/database/mock"
	"github.com/kozaktomas/face-access/internal/faces"
)

func embeddingLine(userID string, axis int) string {
	parts := make([]string, 128)
	for i := range parts {
		parts[i] = "0"
	}
	parts[axis] = "1"
	return `{"userId":"` + userID + `","faceEmbedding":[` + strings.Join(parts, ",") + `]}`
}

func TestReadEnrollRequests(t *testing.T) {
	input := embeddingLine("u1", 0) + "\n\n" + embeddingLine("u2", 1) + "\n"

	requests, err := readEnrollRequests(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(requests))
	}
	if requests[1].UserID != "u2" || len(requests[1].FaceEmbedding) != 128 {
		t.Errorf("unexpected request %+v", requests[1].UserID)
	}
}

func TestReadEnrollRequests_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"invalid json", "{nope", "line 1"},
		{"missing user", embeddingLine("u1", 0) + "\n" + `{"faceEmbedding":[]}`, "line 2: missing userId"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := readEnrollRequests(strings.NewReader(tc.input))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEnrollAll(t *testing.T) {
	faceStore := mock.NewMockFaceStore()
	users := mock.NewMockUserStore()
	for _, id := range []string{"u1", "u2", "u3"} {
		users.AddUser(database.RegisteredUser{ID: id})
	}
	svc := faces.NewService(faceStore, users, mock.NewMockObservedStore(), nil, nil)

	requests, err := readEnrollRequests(strings.NewReader(strings.Join([]string{
		embeddingLine("u1", 0),
		embeddingLine("u2", 0), // same face as u1
		embeddingLine("u3", 1),
		embeddingLine("ghost", 2),
		embeddingLine("u3", 1),
	}, "\n")))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := enrollAll(context.Background(), svc, requests, nil)

	if result.Enrolled != 3 || result.Replaced != 1 {
		t.Errorf("expected 3 enrolled with 1 replaced, got %d/%d", result.Enrolled, result.Replaced)
	}
	if result.Duplicates != 1 || result.Errors != 1 || result.Success {
		t.Errorf("unexpected failure counts %+v", result)
	}
	if len(result.Failures) != 2 {
		t.Errorf("expected 2 failure lines, got %v", result.Failures)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m5s"},
		{2*time.Hour + 7*time.Minute, "2h7m"},
	}
	for _, tc := range tests {
		if got := formatDuration(tc.d); got != tc.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestResolveServeHostPort(t *testing.T) {
	newCmd := func() *cobra.Command {
		c := &cobra.Command{}
		c.Flags().Int("port", 0, "")
		c.Flags().String("host", "", "")
		return c
	}

	t.Run("env config kept without flags", func(t *testing.T) {
		cfg := &config.Config{Web: config.WebConfig{Host: "0.0.0.0", Port: 8080}}
		resolveServeHostPort(newCmd(), cfg)
		if cfg.Web.Host != "0.0.0.0" || cfg.Web.Port != 8080 {
			t.Errorf("unexpected web config %+v", cfg.Web)
		}
	})

	t.Run("flags win", func(t *testing.T) {
		c := newCmd()
		if err := c.Flags().Set("port", "9090"); err != nil {
			t.Fatal(err)
		}
		if err := c.Flags().Set("host", "127.0.0.1"); err != nil {
			t.Fatal(err)
		}
		cfg := &config.Config{Web: config.WebConfig{Host: "0.0.0.0", Port: 8080}}
		resolveServeHostPort(c, cfg)
		if cfg.Web.Host != "127.0.0.1" || cfg.Web.Port != 9090 {
			t.Errorf("unexpected web config %+v", cfg.Web)
		}
	})
}
