package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/constants"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent validation attempts",
	RunE:  runLogs,
}

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().Int("limit", constants.DefaultHandlerPageSize, "Number of entries to show")
	logsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runLogs(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()

	stores, _, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Pool.Close()

	entries, err := stores.Logs.ListValidationLogs(ctx, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}
	if jsonOutput {
		return outputJSON(entries)
	}

	if len(entries) == 0 {
		fmt.Println("No validation attempts logged.")
		return nil
	}
	for _, e := range entries {
		subject := "-"
		switch {
		case e.UserID != nil:
			subject = *e.UserID
		case e.ObservedUserID != nil:
			subject = *e.ObservedUserID
		}
		zone := "-"
		if e.RequestedZoneID != nil {
			zone = *e.RequestedZoneID
		}
		fmt.Printf("%s  %-13s  %-12s  %-36s  zone: %s\n",
			e.CreatedAt.Local().Format(time.DateTime), e.Decision, e.UserType, subject, zone)
		fmt.Printf("    %s (%s)\n", e.Reason, e.MatchStatus)
	}
	return nil
}
