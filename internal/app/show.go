package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"home-autopilot/internal/storage"
)

// Show prints recent analysis runs, or recent actions with --actions.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show runs")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Actions {
		return showActions(ctx, store, opts.Limit)
	}
	return showRuns(ctx, store, opts.Limit)
}

func showRuns(ctx context.Context, store *storage.Store, limit int) error {
	runs, err := store.ListRecentRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tHouse W\tPV W\tGrid W\tSoC %\tBattery\tDeviations\tActions\tStatus\tError")

	for _, run := range runs {
		errMsg := ""
		if run.Error != nil {
			errMsg = sanitizeInline(*run.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			run.StartedAt.UTC().Format(time.RFC3339),
			formatValue(run.HouseConsumption, 0),
			formatValue(run.PVPower, 0),
			formatValue(run.GridPower, 0),
			formatValue(run.BatterySoc, 1),
			run.BatteryState,
			run.DeviationCount,
			run.ActionCount,
			run.Status,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func showActions(ctx context.Context, store *storage.Store, limit int) error {
	actions, err := store.ListRecentActions(ctx, limit)
	if err != nil {
		return err
	}
	if len(actions) == 0 {
		fmt.Fprintln(os.Stdout, "no actions found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Created (UTC)\tPriority\tStatus\tTitle\tReason")

	for _, action := range actions {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\n",
			action.CreatedAt.UTC().Format(time.RFC3339),
			action.Priority,
			action.Status,
			sanitizeInline(action.Title),
			sanitizeInline(action.Reason),
		)
	}

	writer.Flush()
	return nil
}

func formatValue(v *float64, precision int) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', precision, 64)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
