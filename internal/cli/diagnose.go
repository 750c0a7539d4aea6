package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var diagnoseCmd = &cobra.Command{
	Use:   "diagnose [pipeline-id]",
	Short: "Audit a pipeline's recorded state against reality",
	Long: `Checks that accepted documents exist on disk, that no unit is
stuck mid-execution, and that the pipeline's state is internally
consistent. Reports findings without changing anything.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiagnose,
}

var resyncCmd = &cobra.Command{
	Use:   "resync [pipeline-id]",
	Short: "Repair interrupted pipeline state",
	Long:  "Returns units stuck in executing (from an interrupted run) to the pending queue.",
	Args:  cobra.ExactArgs(1),
	RunE:  runResync,
}

func runDiagnose(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := parseID(args[0], "pipeline")
	if err != nil {
		return err
	}

	e, err := buildEngine(s)
	if err != nil {
		return err
	}

	findings, err := e.Diagnose(id)
	if err != nil {
		return err
	}

	if len(findings) == 0 {
		fmt.Printf("%s✓ Pipeline #%d is consistent.%s\n", colorGreen, id, colorReset)
		return nil
	}

	for _, f := range findings {
		c := colorYellow
		if f.Severity == "error" {
			c = colorRed
		}
		fmt.Printf("  %s%-8s%s %s\n", c, f.Severity, colorReset, f.Message)
	}
	fmt.Printf("\nRepair stuck units with: %ssteward resync %d%s\n", colorCyan, id, colorReset)
	return nil
}

func runResync(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := parseID(args[0], "pipeline")
	if err != nil {
		return err
	}

	e, err := buildEngine(s)
	if err != nil {
		return err
	}

	n, err := e.Resync(id)
	if err != nil {
		return err
	}

	if n == 0 {
		fmt.Printf("Nothing to repair on pipeline #%d.\n", id)
		return nil
	}
	fmt.Printf("Reset %d unit(s) to pending on pipeline #%d.\n", n, id)
	fmt.Printf("Continue with: %ssteward run %d%s\n", colorCyan, id, colorReset)
	return nil
}
