package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Inspect and step through work units",
}

var unitListCmd = &cobra.Command{
	Use:   "list [pipeline-id]",
	Short: "List a pipeline's work units",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnitList,
}

var unitRunCmd = &cobra.Command{
	Use:   "run [pipeline-id] [unit-id]",
	Short: "Execute exactly one pending unit",
	Long: `Runs a single unit and stops, regardless of how much work
remains. Useful for stepping through an implementation under close
supervision instead of letting the run continue unit by unit.`,
	Args: cobra.ExactArgs(2),
	RunE: runUnitRun,
}

func init() {
	unitCmd.AddCommand(unitListCmd)
	unitCmd.AddCommand(unitRunCmd)
}

func runUnitList(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := parseID(args[0], "pipeline")
	if err != nil {
		return err
	}

	units, err := s.ListUnits(id)
	if err != nil {
		return err
	}
	if len(units) == 0 {
		fmt.Printf("No units on pipeline #%d yet.\n", id)
		return nil
	}

	fmt.Printf("Units for pipeline #%d:\n\n", id)
	for _, u := range units {
		c := colorWhite
		switch u.State {
		case "completed", "committed":
			c = colorGreen
		case "executing":
			c = colorBlue
		case "escalation_needed", "failed":
			c = colorRed
		}
		phase := ""
		if u.Phase != "" {
			phase = fmt.Sprintf(" %s(phase %s)%s", colorDim, u.Phase, colorReset)
		}
		fmt.Printf("  %s#%d%s %-18s %s%s\n", colorYellow, u.ID, colorReset,
			c+string(u.State)+colorReset, u.Title, phase)
	}
	return nil
}

func runUnitRun(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	pid, err := parseID(args[0], "pipeline")
	if err != nil {
		return err
	}
	uid, err := parseID(args[1], "unit")
	if err != nil {
		return err
	}

	e, err := buildEngine(s)
	if err != nil {
		return err
	}

	status, err := e.RunSingleUnit(context.Background(), pid, uid)
	if err != nil {
		return err
	}
	printStatus(pid, status)
	return nil
}
