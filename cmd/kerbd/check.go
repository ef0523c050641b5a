package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/kerbside-labs/kerbd/internal/config"
	"github.com/kerbside-labs/kerbd/internal/ledger"
	"github.com/kerbside-labs/kerbd/internal/policy"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/segments"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkAt         string
	checkPermitKind string
	checkPermitZone string
	checkVehicleID  string
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check rule decisions interactively",
	Long:  `Check what parking decisions Kerbd would make for a segment or vehicle.`,
}

var checkSegmentCmd = &cobra.Command{
	Use:   "segment [flags] SEGMENT_ID",
	Short: "Check a segment's parking evaluation",
	Long:  `Evaluate a street segment at a given instant and show the resulting classification.`,
	Example: `  kerbd -c config.yaml check segment seg-123
  kerbd check segment --at 2026-08-29T14:30:00Z --permit zone_resident --zone Z-04 --vehicle AB-123-CD seg-123`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckSegment,
}

var checkBudgetCmd = &cobra.Command{
	Use:   "budget [flags] VEHICLE_ID",
	Short: "Check a vehicle's remaining daily free minutes",
	Example: `  kerbd check budget AB-123-CD
  kerbd check budget --at 2026-08-29T07:30:00Z AB-123-CD`,
	Args: cobra.ExactArgs(1),
	RunE: runCheckBudget,
}

func init() {
	// Segment check flags
	checkSegmentCmd.Flags().StringVar(&checkAt, "at", "", "Instant to evaluate (RFC 3339) - defaults to now")
	checkSegmentCmd.Flags().StringVar(&checkPermitKind, "permit", "", "Permit kind (zone_resident, disability)")
	checkSegmentCmd.Flags().StringVar(&checkPermitZone, "zone", "", "Permit home zone code")
	checkSegmentCmd.Flags().StringVar(&checkVehicleID, "vehicle", "", "Vehicle identifier (required for budget-based decisions)")

	// Budget check flags
	checkBudgetCmd.Flags().StringVar(&checkAt, "at", "", "Instant to check (RFC 3339) - defaults to now")

	// Add subcommands
	checkCmd.AddCommand(checkSegmentCmd)
	checkCmd.AddCommand(checkBudgetCmd)
	rootCmd.AddCommand(checkCmd)
}

func runCheckSegment(cmd *cobra.Command, args []string) error {
	segmentID := args[0]

	at, err := parseCheckInstant(checkAt)
	if err != nil {
		return err
	}

	permit := policy.PermitContext{
		Kind:      policy.PermitNone,
		ZoneCode:  checkPermitZone,
		VehicleID: checkVehicleID,
	}
	if checkPermitKind != "" {
		permit.Kind = policy.PermitKind(checkPermitKind)
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	loc, err := time.LoadLocation(cfg.Rules.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	provider := segments.NewProvider(store.Segments(), segments.Config{
		CacheSize: cfg.Segments.CacheSize,
		CacheTTL:  parseDuration(cfg.Segments.CacheTTL, 5*time.Minute),
	}, logger)

	resolver := rules.NewResolver(rules.Config{
		Location:      loc,
		DefaultStatus: rules.Status(cfg.Rules.DefaultStatus),
		HorizonDays:   cfg.Rules.HorizonDays,
	})

	budgetLedger := ledger.New(store.Ledger(), ledger.Config{
		CapMinutes: cfg.Budget.DailyCapMinutes,
		AnchorHour: cfg.Budget.AnchorHour,
		Location:   loc,
	}, logger)

	evaluator := policy.NewEvaluator(resolver, provider, budgetLedger, policy.Config{
		MinParking: parseDuration(cfg.Rules.MinParking, 10*time.Minute),
	}, logger)

	ev, err := evaluator.EvaluateSegment(context.Background(), segmentID, at, permit)
	if err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}

	printEvaluation(segmentID, at, permit, ev)

	return nil
}

func runCheckBudget(cmd *cobra.Command, args []string) error {
	vehicleID := args[0]

	at, err := parseCheckInstant(checkAt)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	loc, err := time.LoadLocation(cfg.Rules.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone: %w", err)
	}

	budgetLedger := ledger.New(store.Ledger(), ledger.Config{
		CapMinutes: cfg.Budget.DailyCapMinutes,
		AnchorHour: cfg.Budget.AnchorHour,
		Location:   loc,
	}, logger)

	remaining, err := budgetLedger.Remaining(context.Background(), vehicleID, at)
	if err != nil {
		return fmt.Errorf("budget lookup failed: %w", err)
	}

	printBudget(vehicleID, at, remaining, cfg.Budget.DailyCapMinutes)

	return nil
}

// printEvaluation prints the segment check result with colors
func printEvaluation(segmentID string, at time.Time, permit policy.PermitContext, ev *policy.Evaluation) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	if at.IsZero() {
		at = time.Now()
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SEGMENT EVALUATION")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Segment:    %s\n", segmentID)
	fmt.Printf("Instant:    %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	if permit.Kind != policy.PermitNone {
		fmt.Printf("Permit:     %s", permit.Kind)
		if permit.ZoneCode != "" {
			fmt.Printf(" (zone %s)", permit.ZoneCode)
		}
		fmt.Println()
	} else {
		fmt.Printf("Permit:     (none)\n")
	}
	if permit.VehicleID != "" {
		fmt.Printf("Vehicle:    %s\n", permit.VehicleID)
	}
	fmt.Println()

	cyan.Print("Decision:   ")
	switch ev.Group {
	case policy.GroupFree:
		green.Println("FREE")
		fmt.Println("            → Parking is allowed at no cost")
	case policy.GroupPaid:
		yellow.Println("PAID")
		fmt.Println("            → Parking is allowed against the tariff")
	case policy.GroupLimited:
		yellow.Println("LIMITED")
		fmt.Println("            → Parking is allowed but a boundary is close")
	case policy.GroupRestricted:
		red.Println("RESTRICTED")
		fmt.Println("            → Parking is not allowed at this instant")
	default:
		fmt.Printf("%s\n", ev.Group)
	}

	if ev.Reason != "" {
		fmt.Printf("Reason:     %s\n", ev.Reason)
	}

	fmt.Printf("Pay Now:    %t\n", ev.PayNow)
	fmt.Printf("Pay Later:  %t\n", ev.PayLater)

	if ev.FreeBudgetRemaining != nil {
		fmt.Printf("Budget:     %d free minutes remaining\n", *ev.FreeBudgetRemaining)
	}

	if !ev.NextChange.IsZero() {
		fmt.Printf("Changes At: %s\n", ev.NextChange.Format("2006-01-02 15:04"))
	}
	if !ev.AvailableFrom.IsZero() {
		fmt.Printf("Available:  from %s\n", ev.AvailableFrom.Format("2006-01-02 15:04"))
	}
	if !ev.AvailableUntil.IsZero() {
		fmt.Printf("            until %s\n", ev.AvailableUntil.Format("2006-01-02 15:04"))
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printBudget prints the budget check result with colors
func printBudget(vehicleID string, at time.Time, remaining, capMinutes int) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("DAILY BUDGET CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Vehicle:    %s\n", vehicleID)
	fmt.Printf("Instant:    %s (%s)\n", at.Format("2006-01-02 15:04"), at.Weekday())
	fmt.Println()

	cyan.Print("Remaining:  ")
	if remaining > 0 {
		green.Printf("%d of %d free minutes\n", remaining, capMinutes)
	} else {
		red.Printf("0 of %d free minutes\n", capMinutes)
		fmt.Println("            → Budget exhausted until the next accounting day")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// parseCheckInstant parses the --at flag, zero when unset
func parseCheckInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	at, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --at instant (want RFC 3339): %w", err)
	}
	return at, nil
}
