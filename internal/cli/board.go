package cli

import (
	"fmt"
	"strings"

	"github.com/imkarma/steward/internal/store"
	"github.com/spf13/cobra"
)

// ANSI color codes.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorDim     = "\033[2m"
	colorRed     = "\033[31m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorBlue    = "\033[34m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorWhite   = "\033[37m"
)

// stateColor maps a pipeline state to its display color.
func stateColor(state store.PipelineState) string {
	switch state {
	case store.StateCompleted:
		return colorGreen
	case store.StateBlocked, store.StateFailed:
		return colorRed
	case store.StateEscalated:
		return colorYellow
	case store.StateAwaitingApproval:
		return colorMagenta
	case store.StateImplementation, store.StateDocumentPhase:
		return colorBlue
	default:
		return colorWhite
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the pipeline board",
	RunE:  runBoard,
}

func runBoard(cmd *cobra.Command, args []string) error {
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
		fmt.Printf("%sBoard is empty.%s Submit a request: %ssteward submit \"description\"%s\n",
			colorDim, colorReset, colorCyan, colorReset)
		return nil
	}

	// Group pipelines by state.
	columns := map[store.PipelineState][]store.Pipeline{}
	for _, p := range pipelines {
		columns[p.State] = append(columns[p.State], p)
	}

	type col struct {
		state store.PipelineState
		label string
		color string
	}
	order := []col{
		{store.StateAwaitingApproval, "APPROVAL", colorMagenta},
		{store.StateDocumentPhase, "DOCUMENTS", colorBlue},
		{store.StateImplementation, "IMPLEMENTING", colorBlue},
		{store.StateEscalated, "ESCALATED", colorYellow},
		{store.StateBlocked, "BLOCKED", colorRed},
		{store.StateCompleted, "DONE", colorGreen},
	}

	// Print header.
	colWidth := 22
	headerLine := ""
	sepLine := ""
	for _, c := range order {
		count := len(columns[c.state])
		header := fmt.Sprintf(" %s%s%s (%d)", c.color+colorBold, c.label, colorReset, count)
		// padRight needs visible length, not byte length (ANSI codes add bytes).
		visibleLen := len(fmt.Sprintf(" %s (%d)", c.label, count))
		padding := colWidth - visibleLen
		if padding < 0 {
			padding = 0
		}
		headerLine += header + strings.Repeat(" ", padding)
		sepLine += strings.Repeat("─", colWidth)
	}
	fmt.Println(headerLine)
	fmt.Println(colorDim + sepLine + colorReset)

	// Find max rows.
	maxRows := 0
	for _, c := range order {
		if len(columns[c.state]) > maxRows {
			maxRows = len(columns[c.state])
		}
	}

	// Print rows.
	for i := 0; i < maxRows; i++ {
		line := ""
		for _, c := range order {
			ps := columns[c.state]
			if i < len(ps) {
				p := ps[i]
				idStr := fmt.Sprintf("#%d", p.ID)
				titleStr := truncate(p.Title, colWidth-len(idStr)-3)
				card := fmt.Sprintf(" %s%s%s %s", colorYellow, idStr, colorReset, titleStr)
				visibleLen := len(fmt.Sprintf(" %s %s", idStr, titleStr))
				padding := colWidth - visibleLen
				if padding < 0 {
					padding = 0
				}
				line += card + strings.Repeat(" ", padding)
			} else {
				line += strings.Repeat(" ", colWidth)
			}
		}
		fmt.Println(line)

		// Detail line: stop point, blocked reason, or branch.
		detailLine := ""
		for _, c := range order {
			ps := columns[c.state]
			if i < len(ps) {
				p := ps[i]
				detail := ""
				visibleDetail := ""
				switch {
				case p.State == store.StateAwaitingApproval && p.PendingStop != "":
					stop := truncate(p.PendingStop, colWidth-7)
					detail = fmt.Sprintf("    %s◉ %s%s", colorMagenta, stop, colorReset)
					visibleDetail = fmt.Sprintf("    ◉ %s", stop)
				case p.State == store.StateBlocked && p.BlockedReason != "":
					reason := truncate(p.BlockedReason, colWidth-7)
					detail = fmt.Sprintf("    %s⚠ %s%s", colorRed, reason, colorReset)
					visibleDetail = fmt.Sprintf("    ⚠ %s", reason)
				case p.GitBranch != "":
					branch := truncate(p.GitBranch, colWidth-7)
					detail = fmt.Sprintf("    %s[%s]%s", colorCyan, branch, colorReset)
					visibleDetail = fmt.Sprintf("    [%s]", branch)
				}
				padding := colWidth - len(visibleDetail)
				if padding < 0 {
					padding = 0
				}
				detailLine += detail + strings.Repeat(" ", padding)
			} else {
				detailLine += strings.Repeat(" ", colWidth)
			}
		}
		fmt.Println(detailLine)
		fmt.Println() // spacing between cards
	}

	// Summary line.
	total := len(pipelines)
	doneCount := len(columns[store.StateCompleted])
	active := len(columns[store.StateDocumentPhase]) + len(columns[store.StateImplementation])
	waiting := len(columns[store.StateAwaitingApproval])

	fmt.Printf("%s%d pipelines%s", colorBold, total, colorReset)
	if doneCount > 0 {
		fmt.Printf("  %s✓ %d done%s", colorGreen, doneCount, colorReset)
	}
	if active > 0 {
		fmt.Printf("  %s● %d active%s", colorBlue, active, colorReset)
	}
	if waiting > 0 {
		fmt.Printf("  %s◉ %d awaiting approval%s", colorMagenta, waiting, colorReset)
	}
	fmt.Println()

	return nil
}
