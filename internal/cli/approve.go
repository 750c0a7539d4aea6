package cli

import (
	"fmt"

	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve [pipeline-id]",
	Short: "Approve the pipeline's current stop point",
	Long: `Records your sign-off at the stop point the pipeline is parked at.
Approvals are point-specific: approving the classification does not
approve any document, and vice versa.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

var approveNote string

func init() {
	approveCmd.Flags().StringVarP(&approveNote, "note", "n", "", "Optional note recorded with the approval")
}

func runApprove(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := parseID(args[0], "pipeline")
	if err != nil {
		return err
	}

	p, err := s.GetPipeline(id)
	if err != nil {
		return fmt.Errorf("pipeline #%d not found", id)
	}
	if p.State != store.StateAwaitingApproval || p.PendingStop == "" {
		return fmt.Errorf("pipeline #%d is not waiting for approval (state: %s)", id, p.State)
	}

	if err := s.AddApproval(id, p.PendingStop, approveNote); err != nil {
		return err
	}

	fmt.Printf("Approved %s%s%s on pipeline #%d\n", colorGreen, p.PendingStop, colorReset, id)
	fmt.Printf("Continue with: %ssteward run %d%s\n", colorCyan, id, colorReset)
	return nil
}
