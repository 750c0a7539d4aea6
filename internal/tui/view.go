package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/imkarma/steward/internal/store"
)

// --- Color palette ---
var (
	clrSubtle    = lipgloss.AdaptiveColor{Light: "#555555", Dark: "#666666"}
	clrHighlight = lipgloss.AdaptiveColor{Light: "#0F766E", Dark: "#2DD4BF"}
	clrGreen     = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}
	clrYellow    = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#F59E0B"}
	clrRed       = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	clrBlue      = lipgloss.AdaptiveColor{Light: "#1D4ED8", Dark: "#60A5FA"}
	clrCyan      = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#22D3EE"}
	clrDim       = lipgloss.AdaptiveColor{Light: "#999999", Dark: "#555555"}
)

// --- Styles ---
var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	dimStyle   = lipgloss.NewStyle().Foreground(clrDim)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrSubtle).
			Padding(0, 1).
			Width(42).
			Height(9)

	cardSelectedStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrHighlight).
				Padding(0, 1).
				Width(42).
				Height(9).
				Bold(true)

	cardAttentionStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(clrRed).
				Padding(0, 1).
				Width(42).
				Height(9)

	cardDoneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrGreen).
			Padding(0, 1).
			Width(42).
			Height(9)

	popupStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(clrHighlight).
			Padding(1, 2).
			Width(60)

	statusStyle = lipgloss.NewStyle().Foreground(clrGreen).Bold(true)
	errorStyle  = lipgloss.NewStyle().Foreground(clrRed).Bold(true)

	footerKeyStyle  = lipgloss.NewStyle().Bold(true).Foreground(clrHighlight)
	footerDescStyle = lipgloss.NewStyle().Foreground(clrSubtle)
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.screen {
	case screenGrid:
		content = m.viewGrid()
	case screenDetail:
		content = m.viewDetail()
	case screenHistory:
		content = m.viewHistory()
	}

	if m.popup != popupNone {
		content = m.overlayPopup(content)
	}
	return content
}

// --- Grid view ---

func (m Model) viewGrid() string {
	var b strings.Builder

	header := titleStyle.Render("steward board")
	header += dimStyle.Render(fmt.Sprintf(" — %d pipelines", len(m.cards)))

	rightHelp := footerKeyStyle.Render("R") + footerDescStyle.Render(" refresh  ") +
		footerKeyStyle.Render("q") + footerDescStyle.Render(" quit")

	headerLine := header
	if m.width > 0 {
		pad := m.width - lipgloss.Width(header) - lipgloss.Width(rightHelp)
		if pad > 0 {
			headerLine = header + strings.Repeat(" ", pad) + rightHelp
		}
	}
	b.WriteString(headerLine + "\n\n")

	if len(m.cards) == 0 {
		b.WriteString(dimStyle.Render("  No pipelines yet. Submit one: steward submit \"description\"\n"))
		return b.String()
	}

	cols := m.gridCols
	if cols < 1 {
		cols = 2
	}
	cardWidth := 42
	if m.width > 0 {
		cardWidth = (m.width - (cols + 1)) / cols
		if cardWidth < 30 {
			cardWidth = 30
		}
		if cardWidth > 50 {
			cardWidth = 50
		}
	}

	for i := 0; i < len(m.cards); i += cols {
		var row []string
		for j := 0; j < cols && i+j < len(m.cards); j++ {
			idx := i + j
			row = append(row, m.renderCard(&m.cards[idx], idx == m.cursor, cardWidth))
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, row...))
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		if strings.HasPrefix(strings.ToLower(m.statusMsg), "error") {
			b.WriteString(errorStyle.Render("  " + m.statusMsg))
		} else {
			b.WriteString(statusStyle.Render("  " + m.statusMsg))
		}
	}

	b.WriteString("\n")
	b.WriteString(m.gridFooter())
	return b.String()
}

func (m Model) renderCard(card *pipelineCard, selected bool, width int) string {
	var content strings.Builder
	p := card.Pipeline

	idStr := lipgloss.NewStyle().Foreground(clrCyan).Render(fmt.Sprintf("#%d", p.ID))
	content.WriteString(idStr + "  " + stateStyle(p.State).Render(string(p.State)) + "\n")
	content.WriteString(lipgloss.NewStyle().Bold(true).Render(truncate(p.Title, width-6)) + "\n")

	// Document progress.
	if len(card.Artifacts) > 0 {
		accepted := 0
		for _, a := range card.Artifacts {
			if a.State == "approved" || a.State == "approved_with_conditions" {
				accepted++
			}
		}
		content.WriteString(dimStyle.Render(fmt.Sprintf("docs %d/%d", accepted, len(card.Artifacts))) + "\n")
	} else {
		content.WriteString(dimStyle.Render("no documents") + "\n")
	}

	// Unit progress.
	if len(card.Units) > 0 {
		done := 0
		for _, u := range card.Units {
			if u.State == store.UnitCompleted {
				done++
			}
		}
		content.WriteString(dimStyle.Render(fmt.Sprintf("units %d/%d", done, len(card.Units))) + "\n")
	} else {
		content.WriteString("\n")
	}

	// Attention line.
	switch {
	case p.State == store.StateAwaitingApproval:
		content.WriteString(lipgloss.NewStyle().Foreground(clrYellow).Render("◉ "+p.PendingStop) + "\n")
	case len(card.Escalations) > 0:
		content.WriteString(lipgloss.NewStyle().Foreground(clrRed).Render(
			fmt.Sprintf("⚠ %d escalation(s)", len(card.Escalations))) + "\n")
	case p.State == store.StateBlocked:
		content.WriteString(lipgloss.NewStyle().Foreground(clrRed).Render("⚠ "+truncate(p.BlockedReason, width-6)) + "\n")
	default:
		content.WriteString("\n")
	}

	style := cardStyle
	switch {
	case selected:
		style = cardSelectedStyle
	case len(card.Escalations) > 0 || p.State == store.StateBlocked:
		style = cardAttentionStyle
	case p.State == store.StateCompleted:
		style = cardDoneStyle
	}
	return style.Width(width).Render(content.String())
}

func (m Model) gridFooter() string {
	keys := []struct{ key, desc string }{
		{"↑↓←→", "move"},
		{"enter", "open"},
		{"y", "approve"},
		{"r", "resolve"},
		{"a", "answer"},
		{"H", "history"},
	}
	var parts []string
	for _, k := range keys {
		parts = append(parts, footerKeyStyle.Render(k.key)+footerDescStyle.Render(" "+k.desc))
	}
	return "  " + strings.Join(parts, "   ")
}

// --- Detail view ---

func (m Model) viewDetail() string {
	if m.detail == nil {
		return ""
	}
	p := m.detail.Pipeline

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Pipeline #%d", p.ID)) + "  " +
		stateStyle(p.State).Render(string(p.State)) + "\n")
	b.WriteString(lipgloss.NewStyle().Bold(true).Render(p.Title) + "\n")
	if p.Description != "" {
		b.WriteString(dimStyle.Render(p.Description) + "\n")
	}
	if p.GitBranch != "" {
		b.WriteString(dimStyle.Render("branch: "+p.GitBranch) + "\n")
	}
	b.WriteString("\n")

	if len(m.detail.Artifacts) > 0 {
		b.WriteString(titleStyle.Render("Documents") + "\n")
		for _, a := range m.detail.Artifacts {
			marker := "○"
			style := dimStyle
			switch a.State {
			case "approved", "approved_with_conditions":
				marker = "●"
				style = lipgloss.NewStyle().Foreground(clrGreen)
			case "rejected", "needs_revision":
				marker = "✗"
				style = lipgloss.NewStyle().Foreground(clrRed)
			}
			b.WriteString(fmt.Sprintf("  %s %-10s %s\n", style.Render(marker), a.Type, dimStyle.Render(a.State)))
		}
		b.WriteString("\n")
	}

	if len(m.detail.Units) > 0 {
		b.WriteString(titleStyle.Render("Units") + "\n")
		for i, u := range m.detail.Units {
			cursor := "  "
			if i == m.rowCursor {
				cursor = footerKeyStyle.Render("> ")
			}
			style := dimStyle
			switch u.State {
			case store.UnitCompleted, store.UnitCommitted:
				style = lipgloss.NewStyle().Foreground(clrGreen)
			case store.UnitExecuting:
				style = lipgloss.NewStyle().Foreground(clrBlue)
			case store.UnitEscalationNeeded, store.UnitFailed:
				style = lipgloss.NewStyle().Foreground(clrRed)
			}
			b.WriteString(fmt.Sprintf("%s%-18s %s\n", cursor, style.Render(string(u.State)), u.Title))
		}
		b.WriteString("\n")
	}

	if len(m.detail.Escalations) > 0 {
		b.WriteString(errorStyle.Render("Open escalations") + "\n")
		for _, esc := range m.detail.Escalations {
			b.WriteString(fmt.Sprintf("  #%d [%s/%s] %s\n", esc.ID, esc.Kind, esc.Severity, esc.Context))
		}
		b.WriteString("\n")
	}

	if m.statusMsg != "" {
		b.WriteString(statusStyle.Render("  "+m.statusMsg) + "\n")
	}

	b.WriteString(dimStyle.Render("  y approve   r resolve   a answer   H history   esc back") + "\n")
	return b.String()
}

// --- History view ---

func (m Model) viewHistory() string {
	var b strings.Builder
	id := int64(0)
	if m.detail != nil {
		id = m.detail.Pipeline.ID
	}
	b.WriteString(titleStyle.Render(fmt.Sprintf("History — pipeline #%d", id)) + "\n\n")
	b.WriteString(m.historyViewport.View() + "\n")
	b.WriteString(dimStyle.Render("  ↑↓ scroll   esc back") + "\n")
	return b.String()
}

// --- Popups ---

func (m Model) overlayPopup(background string) string {
	var title, body string

	switch m.popup {
	case popupConfirmApprove:
		title = "Approve stop point"
		body = fmt.Sprintf("Approve pipeline #%d at its current stop?\n\n", m.popupTargetID) +
			footerKeyStyle.Render("y") + footerDescStyle.Render(" approve   ") +
			footerKeyStyle.Render("n") + footerDescStyle.Render(" cancel")
	case popupResolve:
		title = "Resolve escalation"
		body = m.textInput.View() + "\n\n" +
			footerKeyStyle.Render("enter") + footerDescStyle.Render(" resolve   ") +
			footerKeyStyle.Render("esc") + footerDescStyle.Render(" cancel")
	case popupAnswer:
		title = "Answer blocker"
		body = m.textInput.View() + "\n\n" +
			footerKeyStyle.Render("enter") + footerDescStyle.Render(" answer   ") +
			footerKeyStyle.Render("esc") + footerDescStyle.Render(" cancel")
	default:
		return background
	}

	popup := popupStyle.Render(titleStyle.Render(title) + "\n\n" + body)
	if m.width > 0 && m.height > 0 {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, popup)
	}
	return popup
}

// --- Helpers ---

func stateStyle(s store.PipelineState) lipgloss.Style {
	switch s {
	case store.StateCompleted:
		return lipgloss.NewStyle().Foreground(clrGreen)
	case store.StateBlocked, store.StateFailed:
		return lipgloss.NewStyle().Foreground(clrRed)
	case store.StateEscalated:
		return lipgloss.NewStyle().Foreground(clrYellow)
	case store.StateAwaitingApproval:
		return lipgloss.NewStyle().Foreground(clrYellow)
	case store.StateImplementation, store.StateDocumentPhase:
		return lipgloss.NewStyle().Foreground(clrBlue)
	default:
		return dimStyle
	}
}

func truncate(s string, maxLen int) string {
	if maxLen < 1 {
		return s
	}
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
