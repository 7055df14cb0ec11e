package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/faces"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Registered face commands",
}

var facesEnrollCmd = &cobra.Command{
	Use:   "enroll <file>",
	Short: "Enroll registered faces from a JSON lines file",
	Long: `Enroll registered user faces in bulk. Each line of the input file is a JSON
object {"userId": "...", "faceEmbedding": [128 numbers]}. Use "-" to read stdin.

Faces too close to another user's face are rejected as duplicates. Existing
faces of the same user are replaced.

Examples:
  # Enroll faces exported by the capture client
  face-access faces enroll faces.jsonl

  # JSON summary
  face-access faces enroll faces.jsonl --json`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesEnroll,
}

var facesReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the registered face HNSW index",
	Long: `Build the in-memory HNSW index from PostgreSQL and persist it to
HNSW_INDEX_PATH so the next server start can load it instead of rebuilding.
A saved index that still matches the face table is reused.`,
	RunE: runFacesReindex,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesEnrollCmd)
	facesCmd.AddCommand(facesReindexCmd)

	facesEnrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// EnrollFacesResult summarizes a bulk enrollment
type EnrollFacesResult struct {
	Success       bool     `json:"success"`
	Enrolled      int      `json:"enrolled"`
	Replaced      int      `json:"replaced"`
	Duplicates    int      `json:"duplicates"`
	Errors        int      `json:"errors"`
	Failures      []string `json:"failures,omitempty"`
	DurationMs    int64    `json:"duration_ms"`
	DurationHuman string   `json:"duration_human,omitempty"`
}

// readEnrollRequests parses one enrollment request per non-empty line.
func readEnrollRequests(r io.Reader) ([]faces.EnrollRequest, error) {
	var requests []faces.EnrollRequest
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var req faces.EnrollRequest
		if err := json.Unmarshal([]byte(text), &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if req.UserID == "" {
			return nil, fmt.Errorf("line %d: missing userId", line)
		}
		requests = append(requests, req)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	return requests, nil
}

// enrollAll enrolls requests one by one, collecting outcomes instead of stopping on errors.
func enrollAll(ctx context.Context, svc *faces.Service, requests []faces.EnrollRequest, bar *progressbar.ProgressBar) EnrollFacesResult {
	var result EnrollFacesResult
	for _, req := range requests {
		res, err := svc.Enroll(ctx, req)
		switch {
		case errors.Is(err, faces.ErrDuplicateFace):
			result.Duplicates++
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", req.UserID, err))
		case err != nil:
			result.Errors++
			result.Failures = append(result.Failures, fmt.Sprintf("%s: %v", req.UserID, err))
		default:
			result.Enrolled++
			if res.Replaced {
				result.Replaced++
			}
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	result.Success = result.Errors == 0
	return result
}

func runFacesEnroll(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	in := os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		in = f
	}
	requests, err := readEnrollRequests(in)
	if err != nil {
		return err
	}
	if len(requests) == 0 {
		if jsonOutput {
			return outputJSON(EnrollFacesResult{Success: true})
		}
		fmt.Println("No faces to enroll.")
		return nil
	}

	stores, _, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Pool.Close()

	svc := faces.NewService(stores.Faces, stores.Users, stores.Observed, nil, newLogger(cfg))

	var bar *progressbar.ProgressBar
	if !jsonOutput {
		fmt.Printf("Enrolling %d faces\n\n", len(requests))
		bar = progressbar.NewOptions(len(requests),
			progressbar.OptionSetDescription("Enrolling faces"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("faces"),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionFullWidth(),
		)
	}

	result := enrollAll(ctx, svc, requests, bar)
	duration := time.Since(startTime)
	result.DurationMs = duration.Milliseconds()

	if jsonOutput {
		return outputJSON(result)
	}
	fmt.Println()

	result.DurationHuman = formatDuration(duration)
	fmt.Println("\nEnrollment complete!")
	fmt.Printf("  Enrolled:   %d (%d replaced)\n", result.Enrolled, result.Replaced)
	if result.Duplicates > 0 {
		fmt.Printf("  Duplicates: %d\n", result.Duplicates)
	}
	if result.Errors > 0 {
		fmt.Printf("  Errors:     %d\n", result.Errors)
	}
	for _, f := range result.Failures {
		fmt.Printf("    - %s\n", f)
	}
	fmt.Printf("  Duration:   %s\n", result.DurationHuman)
	fmt.Println("\nRun 'face-access faces reindex' or restart the server to refresh the face index.")
	return nil
}

func runFacesReindex(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()
	startTime := time.Now()

	stores, _, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Pool.Close()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Rebuilding face index"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bar.Add(1)
			}
		}
	}()

	err = stores.Faces.EnableHNSW(ctx, cfg.Database.HNSWIndexPath)
	close(done)
	bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("rebuilding face index: %w", err)
	}

	fmt.Printf("Face index rebuilt with %d faces in %s\n", stores.Faces.HNSWCount(), formatDuration(time.Since(startTime)))
	if cfg.Database.HNSWIndexPath != "" {
		fmt.Printf("  Saved to: %s\n", cfg.Database.HNSWIndexPath)
	} else {
		fmt.Println("  HNSW_INDEX_PATH is not set, the index was not persisted")
	}
	return nil
}
