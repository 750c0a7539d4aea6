package cli

import (
	"fmt"

	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Quick status overview",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	pipelines, err := s.ListPipelines("")
	if err != nil {
		return err
	}

	if len(pipelines) == 0 {
		fmt.Printf("No pipelines. Run: %ssteward submit \"description\"%s\n", colorCyan, colorReset)
		return nil
	}

	counts := map[store.PipelineState]int{}
	var waiting, blocked []store.Pipeline

	for _, p := range pipelines {
		counts[p.State]++
		switch p.State {
		case store.StateAwaitingApproval:
			waiting = append(waiting, p)
		case store.StateBlocked:
			blocked = append(blocked, p)
		}
	}

	fmt.Printf("%sPipelines: %d total%s\n", colorBold, len(pipelines), colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "awaiting approval:", colorMagenta, counts[store.StateAwaitingApproval], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "document phase:", colorBlue, counts[store.StateDocumentPhase], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "implementation:", colorBlue, counts[store.StateImplementation], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "escalated:", colorYellow, counts[store.StateEscalated], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "blocked:", colorRed, counts[store.StateBlocked], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "completed:", colorGreen, counts[store.StateCompleted], colorReset)
	fmt.Printf("  %-20s %s%d%s\n", "failed:", colorRed, counts[store.StateFailed], colorReset)

	if len(waiting) > 0 {
		fmt.Printf("\n%s◉  Waiting for your approval:%s\n", colorMagenta+colorBold, colorReset)
		for _, p := range waiting {
			fmt.Printf("  %s#%d%s %s at %s%s%s\n", colorYellow, p.ID, colorReset,
				truncate(p.Title, 40), colorMagenta, p.PendingStop, colorReset)
			fmt.Printf("       → %ssteward approve %d && steward run %d%s\n", colorCyan, p.ID, p.ID, colorReset)
		}
	}

	if len(blocked) > 0 {
		fmt.Printf("\n%s⚠  Blocked (need your input):%s\n", colorRed+colorBold, colorReset)
		for _, p := range blocked {
			fmt.Printf("  %s#%d%s: %s\n", colorYellow, p.ID, colorReset, p.BlockedReason)
			fmt.Printf("       → %ssteward answer %d \"your answer\"%s\n", colorCyan, p.ID, colorReset)
		}
	}

	open, err := s.ListOpenEscalations(0)
	if err != nil {
		return err
	}
	if len(open) > 0 {
		fmt.Printf("\n%s⚠  Open escalations:%s\n", colorYellow+colorBold, colorReset)
		for _, esc := range open {
			fmt.Printf("  %s#%d%s [%s/%s] pipeline #%d: %s\n", colorYellow, esc.ID, colorReset,
				esc.Kind, esc.Severity, esc.PipelineID, truncate(esc.Context, 60))
			fmt.Printf("       → %ssteward resolve %d \"decision\"%s\n", colorCyan, esc.ID, colorReset)
		}
	}

	return nil
}
