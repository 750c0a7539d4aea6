package cli

import (
	"fmt"
	"os"

	"github.com/imkarma/steward/internal/git"
	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

var acceptCmd = &cobra.Command{
	Use:   "accept [pipeline-id]",
	Short: "Merge a completed pipeline's branch",
	Long: `Merges the pipeline's safety branch into the base branch and
deletes it. Only completed pipelines can be accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: runAccept,
}

var rejectCmd = &cobra.Command{
	Use:   "reject [pipeline-id]",
	Short: "Discard a pipeline's branch",
	Long:  "Deletes the pipeline's safety branch without merging. The work is gone.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReject,
}

func runAccept(cmd *cobra.Command, args []string) error {
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
	if p.State != store.StateCompleted {
		return fmt.Errorf("pipeline #%d is not completed (state: %s)", id, p.State)
	}
	if p.GitBranch == "" {
		return fmt.Errorf("pipeline #%d has no safety branch to merge", id)
	}

	workDir, _ := os.Getwd()
	g := git.New(workDir)

	base, err := g.BaseBranch()
	if err != nil {
		return err
	}
	if err := g.MergeBranch(base, p.GitBranch); err != nil {
		return fmt.Errorf("merge %s: %w", p.GitBranch, err)
	}
	if err := g.DeleteBranch(p.GitBranch, false); err != nil {
		fmt.Printf("Warning: could not delete branch %s: %v\n", p.GitBranch, err)
	}

	s.AddEvent(id, "user", "accepted", fmt.Sprintf("merged %s into %s", p.GitBranch, base))
	fmt.Printf("%s✓ Merged%s %s into %s\n", colorGreen+colorBold, colorReset, p.GitBranch, base)
	return nil
}

func runReject(cmd *cobra.Command, args []string) error {
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
	if p.GitBranch == "" {
		return fmt.Errorf("pipeline #%d has no safety branch to discard", id)
	}

	workDir, _ := os.Getwd()
	g := git.New(workDir)

	base, err := g.BaseBranch()
	if err != nil {
		return err
	}
	if err := g.RejectBranch(base, p.GitBranch); err != nil {
		return fmt.Errorf("discard %s: %w", p.GitBranch, err)
	}

	if err := s.UpdatePipelineState(id, store.StateFailed); err != nil {
		return err
	}
	s.AddEvent(id, "user", "rejected", fmt.Sprintf("discarded branch %s", p.GitBranch))
	fmt.Printf("%s✗ Discarded%s branch %s. Pipeline #%d marked failed.\n", colorRed+colorBold, colorReset, p.GitBranch, id)
	return nil
}
