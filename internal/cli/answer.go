package cli

import (
	"fmt"
	"strings"

	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

var answerCmd = &cobra.Command{
	Use:   "answer [pipeline-id] [answer]",
	Short: "Answer a blocked pipeline",
	Long: `Unblocks a pipeline by providing the requested information. The
pipeline returns to the phase it was blocked in.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAnswer,
}

func runAnswer(cmd *cobra.Command, args []string) error {
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
	if p.State != store.StateBlocked {
		return fmt.Errorf("pipeline #%d is not blocked (state: %s)", id, p.State)
	}

	// Return to the phase the block interrupted: document work when
	// unaccepted documents remain, implementation otherwise.
	next := store.StateImplementation
	artifacts, err := s.ListArtifacts(id)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		if a.State != "approved" && a.State != "approved_with_conditions" {
			next = store.StateDocumentPhase
			break
		}
	}

	answer := strings.Join(args[1:], " ")
	if err := s.UnblockPipeline(id, next, answer); err != nil {
		return err
	}

	fmt.Printf("Unblocked pipeline #%d\n", id)
	fmt.Printf("  Question was: %s\n", p.BlockedReason)
	fmt.Printf("  Your answer:  %s\n", answer)
	fmt.Printf("Continue with: %ssteward run %d%s\n", colorCyan, id, colorReset)
	return nil
}
