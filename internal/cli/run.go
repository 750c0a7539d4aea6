package cli

import (
	"context"
	"fmt"

	"github.com/imkarma/steward/internal/pipeline"
	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [pipeline-id]",
	Short: "Advance a pipeline as far as it can go",
	Long: `Runs the pipeline until it reaches a stop: an approval point, an
open escalation, a block, or completion. Safe to re-run at any time —
the pipeline resumes from its recorded state.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
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

	status, err := e.Run(context.Background(), id)
	if err != nil {
		return fmt.Errorf("run pipeline #%d: %w", id, err)
	}

	printStatus(id, status)
	return nil
}

// printStatus renders a run outcome with the next command to issue.
func printStatus(id int64, status *pipeline.Status) {
	c := stateColor(status.State)
	fmt.Printf("\nPipeline %s#%d%s: %s%s%s\n", colorYellow, id, colorReset, c+colorBold, status.State, colorReset)
	if status.Message != "" {
		fmt.Printf("  %s\n", status.Message)
	}

	switch status.State {
	case store.StateAwaitingApproval:
		fmt.Printf("\nReview and approve, then re-run:\n")
		fmt.Printf("  %ssteward approve %d && steward run %d%s\n", colorCyan, id, id, colorReset)
	case store.StateEscalated:
		fmt.Printf("\nResolve the escalation(s), then re-run:\n")
		fmt.Printf("  %ssteward status && steward resolve <escalation-id> \"decision\"%s\n", colorCyan, colorReset)
	case store.StateBlocked:
		fmt.Printf("\nUnblock with:\n")
		fmt.Printf("  %ssteward answer %d \"your answer\"%s\n", colorCyan, id, colorReset)
	case store.StateCompleted:
		fmt.Printf("\nReview the branch, then:\n")
		fmt.Printf("  %ssteward accept %d%s  (merge)  or  %ssteward reject %d%s  (discard)\n",
			colorCyan, id, colorReset, colorCyan, id, colorReset)
	}
}
