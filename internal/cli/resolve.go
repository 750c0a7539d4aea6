package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [escalation-id] [resolution]",
	Short: "Resolve an open escalation",
	Long: `Records your decision on an escalated conflict. Once every
escalation on a pipeline is resolved, the next run resumes the
paused units.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runResolve,
}

func runResolve(cmd *cobra.Command, args []string) error {
	s, err := mustStore()
	if err != nil {
		return err
	}
	defer s.Close()

	id, err := parseID(args[0], "escalation")
	if err != nil {
		return err
	}

	resolution := strings.Join(args[1:], " ")
	if err := s.ResolveEscalation(id, resolution); err != nil {
		return err
	}

	fmt.Printf("Resolved escalation %s#%d%s\n", colorYellow, id, colorReset)
	fmt.Printf("  Decision: %s\n", resolution)
	fmt.Printf("Resume with: %ssteward run <pipeline-id>%s\n", colorCyan, colorReset)
	return nil
}
