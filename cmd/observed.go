package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-access/internal/config"
	"github.com/kozaktomas/face-access/internal/observed"
)

var observedCmd = &cobra.Command{
	Use:   "observed",
	Short: "Observed user commands",
}

var observedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List observed users",
	Long: `List observed users, most recently seen first, with the dashboard counts.

Filters: pendingReview, highRisk, activeTemporal, expired.

Examples:
  face-access observed list --filter highRisk
  face-access observed list --search lobby --page 2 --json`,
	RunE: runObservedList,
}

var observedBlockCmd = &cobra.Command{
	Use:   "block <id>",
	Short: "Block an observed user",
	Args:  cobra.ExactArgs(1),
	RunE:  runObservedAction(observed.ActionBlock),
}

var observedExtendCmd = &cobra.Command{
	Use:   "extend <id>",
	Short: "Extend an observed user's temporary access by 24 hours",
	Args:  cobra.ExactArgs(1),
	RunE:  runObservedAction(observed.ActionExtend),
}

var observedDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an observed user",
	Args:  cobra.ExactArgs(1),
	RunE:  runObservedDelete,
}

func init() {
	rootCmd.AddCommand(observedCmd)
	observedCmd.AddCommand(observedListCmd)
	observedCmd.AddCommand(observedBlockCmd)
	observedCmd.AddCommand(observedExtendCmd)
	observedCmd.AddCommand(observedDeleteCmd)

	observedListCmd.Flags().Int("page", 1, "Page number")
	observedListCmd.Flags().Int("page-size", 10, "Users per page")
	observedListCmd.Flags().String("search", "", "Search ID, AI action, status and zone names")
	observedListCmd.Flags().String("filter", "", "Dashboard filter")
	observedListCmd.Flags().Bool("json", false, "Output as JSON")
}

// newObservedManager opens the stores and builds the observed user manager.
func newObservedManager(ctx context.Context, cfg *config.Config) (*observed.Manager, func(), error) {
	stores, statuses, err := openStores(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	manager := observed.NewManager(stores.Observed, stores.Catalog, statuses, newLogger(cfg))
	return manager, func() { stores.Pool.Close() }, nil
}

func runObservedList(cmd *cobra.Command, args []string) error {
	jsonOutput := mustGetBool(cmd, "json")
	ctx := context.Background()
	cfg := config.Load()

	manager, closeStores, err := newObservedManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	result, err := manager.List(ctx, observed.ListQuery{
		Page:       mustGetInt(cmd, "page"),
		PageSize:   mustGetInt(cmd, "page-size"),
		SearchTerm: mustGetString(cmd, "search"),
		FilterType: mustGetString(cmd, "filter"),
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return outputJSON(result)
	}

	fmt.Printf("Observed users: %d total, %d pending review, %d high risk, %d active, %d expired\n\n",
		result.AbsoluteTotalCount, result.PendingReviewCount, result.HighRiskCount,
		result.ActiveTemporalCount, result.ExpiredCount)
	if len(result.Users) == 0 {
		fmt.Println("No observed users found.")
		return nil
	}
	for _, u := range result.Users {
		alert := ""
		if u.AlertTriggered {
			alert = "  [ALERT]"
		}
		zones := make([]string, 0, len(u.AccessedZones))
		for _, z := range u.AccessedZones {
			zones = append(zones, z.Name)
		}
		fmt.Printf("%s  %-16s  accesses: %-4d  last seen: %s  expires: %s%s\n",
			u.ID, u.Status.Name, u.TempAccesses,
			u.LastSeen.Local().Format(time.DateTime), u.ExpiresAt.Local().Format(time.DateTime), alert)
		if len(zones) > 0 {
			fmt.Printf("    zones: %s\n", strings.Join(zones, ", "))
		}
		if u.AIAction != nil {
			fmt.Printf("    suggestion: %s\n", *u.AIAction)
		}
	}
	fmt.Printf("\nShowing %d of %d matching users\n", len(result.Users), result.TotalCount)
	return nil
}

func runObservedAction(action observed.Action) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		cfg := config.Load()

		manager, closeStores, err := newObservedManager(ctx, cfg)
		if err != nil {
			return err
		}
		defer closeStores()

		msg, err := manager.Apply(ctx, args[0], action)
		if err != nil {
			return err
		}
		fmt.Println(msg)
		return nil
	}
}

func runObservedDelete(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	cfg := config.Load()

	manager, closeStores, err := newObservedManager(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStores()

	if err := manager.Delete(ctx, args[0]); err != nil {
		return err
	}
	fmt.Printf("Observed user %s deleted successfully.\n", args[0])
	return nil
}
