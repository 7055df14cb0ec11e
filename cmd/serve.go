package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/ai"
	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/database"
	"github.com/kozaktomas/face-access/internal/database/postgres"
	"github.com/kozaktomas/face-access/internal/faces"
	"github.com/kozaktomas/face-access/internal/observed"
	"github.com/kozaktomas/face-access/internal/storage"
	"github.com/kozaktomas/face-access/internal/validation"
	"github.com/kozaktomas/face-access/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Access API server.
The server validates face captures from kiosks and exposes the administrative
endpoints for observed users, enrollment and the audit log.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// initFaceHNSW builds or loads the registered face HNSW index for fast matching.
func initFaceHNSW(ctx context.Context, faceRepo *postgres.FaceRepository, indexPath string) {
	if indexPath != "" {
		fmt.Printf("Loading face HNSW index from %s...\n", indexPath)
	} else {
		fmt.Printf("Building in-memory HNSW index for face matching...\n")
	}
	if err := faceRepo.EnableHNSW(ctx, indexPath); err != nil {
		fmt.Printf("Warning: Failed to build face HNSW index: %v\n", err)
		fmt.Printf("Face matching will use PostgreSQL queries (slower)\n")
	} else if indexPath != "" {
		fmt.Printf("Face HNSW index ready with %d faces (persisted to %s)\n", faceRepo.HNSWCount(), indexPath)
	} else {
		fmt.Printf("Face HNSW index built with %d faces (in-memory only)\n", faceRepo.HNSWCount())
	}
}

// resolveServeHostPort applies the --host and --port flags over the environment config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

// newImageUploader returns nil when no bucket is configured so captures are skipped.
func newImageUploader(ctx context.Context, cfg *config.Config) (*storage.S3Uploader, error) {
	if !cfg.Storage.Enabled() {
		fmt.Println("Image storage disabled (S3_ENDPOINT / S3_ACCESS_KEY not set)")
		return nil, nil
	}
	uploader, err := storage.NewS3Uploader(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing image storage: %w", err)
	}
	fmt.Printf("Image storage enabled (bucket %s)\n", cfg.Storage.Bucket)
	return uploader, nil
}

// saveHNSWIndex saves the face HNSW index to disk during shutdown.
func saveHNSWIndex(rebuilder database.HNSWRebuilder) {
	if rebuilder == nil || !rebuilder.IsHNSWEnabled() {
		return
	}
	if err := rebuilder.SaveHNSWIndex(); err != nil {
		fmt.Printf("Warning: failed to save face HNSW index: %v\n", err)
	} else {
		fmt.Println("Face HNSW index saved to disk")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)
	log := newLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Printf("Connecting to PostgreSQL database...\n")
	stores, statuses, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Pool.Close()

	var faceIndex database.HNSWRebuilder
	if !cfg.Database.DisableHNSW {
		initFaceHNSW(ctx, stores.Faces, cfg.Database.HNSWIndexPath)
		faceIndex = stores.Faces
	}

	s3Uploader, err := newImageUploader(ctx, cfg)
	if err != nil {
		return err
	}
	// Keep the interfaces nil rather than holding a typed nil pointer.
	var validationUploader validation.ImageUploader
	var facesUploader faces.ImageUploader
	if s3Uploader != nil {
		validationUploader = s3Uploader
		facesUploader = s3Uploader
	}

	suggester, err := ai.NewSuggester(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing suggestion provider: %w", err)
	}
	if suggester == nil {
		fmt.Println("Suggestions disabled")
	} else {
		fmt.Printf("Suggestions enabled (%s)\n", suggester.Name())
	}

	validator, err := validation.NewService(validation.Deps{
		Faces:     stores.Faces,
		Users:     stores.Users,
		Observed:  stores.Observed,
		Catalog:   stores.Catalog,
		Logs:      stores.Logs,
		Statuses:  statuses,
		Uploader:  validationUploader,
		Suggester: suggester,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, web.Services{
		Validator: validator,
		Observed:  observed.NewManager(stores.Observed, stores.Catalog, statuses, log),
		Faces:     faces.NewService(stores.Faces, stores.Users, stores.Observed, facesUploader, log),
		FaceIndex: faceIndex,
		Catalog:   stores.Catalog,
		Users:     stores.Users,
		Logs:      stores.Logs,
		DB:        stores.Pool,
	}, log)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex(faceIndex)

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	if cfg.Web.AdminToken == "" {
		fmt.Println("Warning: WEB_ADMIN_TOKEN is not set, administrative routes are open")
	}
	fmt.Printf("Starting Face Access API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
