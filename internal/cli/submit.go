package cli

import (
	"fmt"
	"strings"

	"github.com/imkarma/steward/internal/classify"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit [title]",
	Short: "Submit a work request",
	Long: `Creates a pipeline for a work request and classifies it.
The pipeline parks at the classification stop until you approve it.

Affected files and trigger conditions are structured input — the
classifier never guesses them from the title.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

var (
	submitDesc     string
	submitType     string
	submitFiles    []string
	submitTriggers []string
)

func init() {
	submitCmd.Flags().StringVarP(&submitDesc, "desc", "d", "", "Longer description of the request")
	submitCmd.Flags().StringVarP(&submitType, "type", "t", "", "Task type: feature, fix, refactor, chore")
	submitCmd.Flags().StringSliceVarP(&submitFiles, "files", "f", nil, "Affected files (comma-separated)")
	submitCmd.Flags().StringSliceVar(&submitTriggers, "trigger", nil,
		"Trigger conditions: data_flow, contract_change, architecture, external_dependency, ui_interaction")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	e, err := buildEngine(s)
	if err != nil {
		return err
	}

	var triggers []classify.Trigger
	for _, t := range submitTriggers {
		tr := classify.Trigger(t)
		if !classify.ValidTrigger(tr) {
			return fmt.Errorf("unknown trigger %q", t)
		}
		triggers = append(triggers, tr)
	}

	p, c, err := e.Submit(classify.Request{
		Title:         strings.Join(args, " "),
		Description:   submitDesc,
		TaskType:      submitType,
		AffectedFiles: submitFiles,
		Triggers:      triggers,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created pipeline %s#%d%s: %s\n", colorYellow, p.ID, colorReset, p.Title)
	fmt.Printf("  Scale:      %s (%s)\n", c.Scale, c.Confidence)
	if len(c.RequiredArtifacts) > 0 {
		docs := make([]string, len(c.RequiredArtifacts))
		for i, t := range c.RequiredArtifacts {
			docs[i] = string(t)
		}
		fmt.Printf("  Documents:  %s\n", strings.Join(docs, ", "))
	} else {
		fmt.Printf("  Documents:  none (straight to implementation)\n")
	}
	if len(c.ScopeDependencies) > 0 {
		fmt.Printf("\n%sScale is provisional.%s Open questions:\n", colorYellow, colorReset)
		for _, q := range c.ScopeDependencies {
			fmt.Printf("  • %s\n", q)
		}
	}

	fmt.Printf("\nApprove the classification to proceed:\n")
	fmt.Printf("  %ssteward approve %d && steward run %d%s\n", colorCyan, p.ID, p.ID, colorReset)
	return nil
}
