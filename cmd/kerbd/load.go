package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/kerbside-labs/kerbd/internal/config"
	"github.com/kerbside-labs/kerbd/internal/rules"
	"github.com/kerbside-labs/kerbd/internal/storage"
	"github.com/spf13/cobra"
)

// rulesFile is the on-disk shape consumed by `kerbd load`.
type rulesFile struct {
	Segments []segmentEntry            `json:"segments"`
	Tariffs  map[string][]rules.Window `json:"tariffs"`
}

type segmentEntry struct {
	storage.SegmentRecord
	Overrides []rules.Window `json:"overrides,omitempty"`
}

var loadCmd = &cobra.Command{
	Use:   "load [flags] FILE",
	Short: "Load segments and rule windows into storage",
	Long: `Load a JSON rules file into the configured storage backend. Every
window is validated before anything is written, so a malformed file
leaves storage untouched.`,
	Example: `  kerbd -c config.yaml load rules.json`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var file rulesFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	// Validate everything up front
	for _, seg := range file.Segments {
		if seg.ID == "" {
			return fmt.Errorf("segment with empty id")
		}
		if err := rules.ValidateAll(seg.Overrides); err != nil {
			return fmt.Errorf("segment %s: %w", seg.ID, err)
		}
	}
	for class, windows := range file.Tariffs {
		if class == "" {
			return fmt.Errorf("tariff class with empty name")
		}
		if err := rules.ValidateAll(windows); err != nil {
			return fmt.Errorf("tariff %s: %w", class, err)
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	segStore := store.Segments()
	now := time.Now()

	var segCount, windowCount int
	for _, seg := range file.Segments {
		rec := seg.SegmentRecord
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if err := segStore.Put(ctx, rec); err != nil {
			return fmt.Errorf("failed to store segment %s: %w", seg.ID, err)
		}
		segCount++

		for _, w := range seg.Overrides {
			if err := segStore.PutOverride(ctx, seg.ID, w); err != nil {
				return fmt.Errorf("failed to store override %d on segment %s: %w", w.ID, seg.ID, err)
			}
			windowCount++
		}
	}

	for class, windows := range file.Tariffs {
		for _, w := range windows {
			if err := segStore.PutTariffWindow(ctx, class, w); err != nil {
				return fmt.Errorf("failed to store tariff window %d in class %s: %w", w.ID, class, err)
			}
			windowCount++
		}
	}

	green := color.New(color.FgGreen, color.Bold)
	green.Printf("Loaded %d segments and %d windows\n", segCount, windowCount)

	return nil
}
