package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"home-autopilot/internal/app"
)

var (
	showLimit   int
	showActions bool
)

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display recent analysis runs or proposed actions",
	RunE: func(cmd *cobra.Command, args []string) error {
		if showLimit <= 0 {
			return fmt.Errorf("--limit must be greater than zero")
		}

		opts := app.ShowOptions{
			Limit:   showLimit,
			Actions: showActions,
		}

		return getApp().Show(cmd.Context(), opts)
	},
}

func init() {
	showCmd.Flags().IntVar(&showLimit, "limit", 20, "Number of entries to display")
	showCmd.Flags().BoolVar(&showActions, "actions", false, "Show proposed actions instead of runs")
}
