package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/Iron-Ham/allocpacer/internal/config"
	"github.com/Iron-Ham/allocpacer/internal/errors"
	"github.com/Iron-Ham/allocpacer/internal/pacer"
	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Compute the pacing budget for one phase",
	Long: `Compute the allowance, tax rate and budget the pacer would install for a
phase, given heap figures in megabytes. Nothing is run.

Slack percentages come from the configuration.`,
	Example: `  allocpacer plan --phase mark --used-mb 90 --free-mb 10
  allocpacer plan --phase evacuation --cset-mb 1 --free-mb 10
  allocpacer plan --phase idle --capacity-mb 1024`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

var (
	planPhase      string
	planUsedMB     uint64
	planFreeMB     uint64
	planCsetMB     uint64
	planCapacityMB uint64
)

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().StringVarP(&planPhase, "phase", "p", pacer.PhaseMark.String(),
		"phase: "+strings.Join(phaseNames(), ", "))
	planCmd.Flags().Uint64Var(&planUsedMB, "used-mb", 0, "used heap in megabytes")
	planCmd.Flags().Uint64Var(&planFreeMB, "free-mb", 0, "free heap in megabytes")
	planCmd.Flags().Uint64Var(&planCsetMB, "cset-mb", 0, "live bytes in the collection set, in megabytes")
	planCmd.Flags().Uint64Var(&planCapacityMB, "capacity-mb", 0, "heap capacity in megabytes (idle only)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	pc := cfg.Pacing.ToPacer()

	const mb = 1 << 20
	used, free, cset := planUsedMB*mb, planFreeMB*mb, planCsetMB*mb

	var plan pacer.Plan
	switch planPhase {
	case pacer.PhaseIdle.String():
		capacity := planCapacityMB * mb
		if capacity == 0 {
			capacity = cfg.Heap.CapacityBytes()
		}
		plan = pacer.IdlePlan(capacity, pc.IdleSlackPercent)
	case pacer.PhaseMark.String():
		if err := needFree(free); err != nil {
			return err
		}
		plan = pacer.MarkPlan(used, free, pc.CycleSlackPercent)
	case pacer.PhaseEvacuation.String():
		if err := needFree(free); err != nil {
			return err
		}
		plan = pacer.EvacuationPlan(cset, free, pc.CycleSlackPercent)
	case pacer.PhaseUpdateReferences.String():
		if err := needFree(free); err != nil {
			return err
		}
		plan = pacer.UpdateReferencesPlan(used, free, pc.CycleSlackPercent)
	default:
		return fmt.Errorf("unknown phase %q: valid phases are %s", planPhase, strings.Join(phaseNames(), ", "))
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Phase:\t%s\n", plan.Phase)
	fmt.Fprintf(tw, "Work:\t%.1f MB\n", float64(plan.Work)/mb)
	fmt.Fprintf(tw, "Non-taxable:\t%.1f MB\n", float64(plan.NonTaxable)/mb)
	if plan.Phase != pacer.PhaseIdle {
		fmt.Fprintf(tw, "Taxable:\t%.1f MB\n", float64(plan.Taxable)/mb)
	}
	fmt.Fprintf(tw, "Tax rate:\t%.2f\n", plan.TaxRate)
	fmt.Fprintf(tw, "Budget:\t%d words\n", plan.BudgetWords)
	return tw.Flush()
}

// needFree rejects inputs that would leave nothing to tax. The plan
// functions panic on those.
func needFree(free uint64) error {
	if free == 0 {
		return errors.NewValidationError("must be positive for an active phase").WithField("free-mb").WithValue(free)
	}
	return nil
}

func phaseNames() []string {
	return []string{
		pacer.PhaseIdle.String(),
		pacer.PhaseMark.String(),
		pacer.PhaseEvacuation.String(),
		pacer.PhaseUpdateReferences.String(),
	}
}
