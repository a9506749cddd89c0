package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"home-autopilot/internal/app"
)

var (
	simulateHouse float64
	simulatePV    float64
	simulateSoc   float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Feed synthetic readings through the rule set",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateHouse < 0 || simulateSoc < 0 || simulateSoc > 100 {
			return errors.New("--house must be >= 0 and --soc within [0, 100]")
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			HouseConsumption: simulateHouse,
			PVPower:          simulatePV,
			BatterySoc:       simulateSoc,
		})
	},
}

func init() {
	simulateCmd.Flags().Float64Var(&simulateHouse, "house", 3500, "Simulated house consumption in W")
	simulateCmd.Flags().Float64Var(&simulatePV, "pv", 0, "Simulated PV power in W")
	simulateCmd.Flags().Float64Var(&simulateSoc, "soc", 15, "Simulated battery state of charge in %")
}
