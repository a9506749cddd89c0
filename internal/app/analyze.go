package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Analyze runs a single analysis cycle and prints its outcome as JSON.
func (a *App) Analyze(ctx context.Context) error {
	installation, err := a.loadInstallation()
	if err != nil {
		return err
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier(installation)
	runner, err := a.newRunner(installation, store, asNotifier(notifier))
	if err != nil {
		return err
	}

	result, err := runner.RunCycle(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	summary := map[string]any{
		"started_at": result.StartedAt,
		"status":     result.Status,
		"stats":      result.Record,
		"deviations": result.Deviations,
		"actions":    result.Actions,
	}
	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encode analysis result: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(encoded))
	return nil
}
