package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/steward/internal/store"
)

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.popup != popupNone {
			return m.handlePopupKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.gridCols = m.width / 46
		if m.gridCols < 1 {
			m.gridCols = 1
		}
		if m.gridCols > 4 {
			m.gridCols = 4
		}
		vw := m.width - 4
		vh := m.height - 6
		if vw < 20 {
			vw = 20
		}
		if vh < 6 {
			vh = 6
		}
		m.historyViewport.Width = vw
		m.historyViewport.Height = vh
		return m, nil

	case cardsLoadedMsg:
		if msg.err != nil {
			m.setStatus("Failed to load pipelines: " + msg.err.Error())
			m.refreshing = false
			return m, nil
		}
		m.cards = msg.cards
		m.clampCursor()
		// Keep the open detail in sync with the refreshed data.
		if m.screen == screenDetail && m.detail != nil {
			for i := range m.cards {
				if m.cards[i].Pipeline.ID == m.detail.Pipeline.ID {
					m.detail = &m.cards[i]
					break
				}
			}
		}
		m.refreshing = false
		return m, nil

	case historyLoadedMsg:
		m.historyContent = msg.content
		m.historyViewport.SetContent(msg.content)
		m.historyViewport.GotoTop()
		m.screen = screenHistory
		return m, nil

	case actionDoneMsg:
		if msg.err != nil {
			m.setStatus("Error: " + msg.err.Error())
		} else if msg.status != "" {
			m.setStatus(msg.status)
		}
		return m, m.loadCards()

	case tickMsg:
		var cmds []tea.Cmd
		cmds = append(cmds, tickCmd())
		if m.statusMsg != "" && time.Since(m.statusTime) > 5*time.Second {
			m.statusMsg = ""
		}
		if !m.refreshing {
			m.refreshing = true
			cmds = append(cmds, m.loadCards())
		}
		return m, tea.Batch(cmds...)
	}

	if m.screen == screenHistory {
		var cmd tea.Cmd
		m.historyViewport, cmd = m.historyViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		if m.screen == screenGrid {
			m.quitting = true
			return m, tea.Quit
		}
		return m.goBack()

	case "esc":
		return m.goBack()
	}

	switch m.screen {
	case screenGrid:
		return m.handleGridKey(msg)
	case screenDetail:
		return m.handleDetailKey(msg)
	case screenHistory:
		return m.handleHistoryKey(msg)
	}

	return m, nil
}

func (m Model) goBack() (tea.Model, tea.Cmd) {
	switch m.screen {
	case screenDetail:
		m.screen = screenGrid
		m.detail = nil
		return m, m.loadCards()
	case screenHistory:
		if m.detail != nil {
			m.screen = screenDetail
		} else {
			m.screen = screenGrid
		}
		return m, nil
	default:
		return m, nil
	}
}

// --- Grid screen keys ---

func (m Model) handleGridKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "j", "down":
		m.cursor += m.gridCols
		m.clampCursor()
	case "k", "up":
		m.cursor -= m.gridCols
		m.clampCursor()
	case "h", "left":
		m.cursor--
		m.clampCursor()
	case "l", "right":
		m.cursor++
		m.clampCursor()

	case "enter", " ":
		if c := m.selectedCard(); c != nil {
			m.detail = c
			m.rowCursor = 0
			m.screen = screenDetail
			return m, nil
		}

	// Approve the pending stop.
	case "y":
		if c := m.selectedCard(); c != nil && c.Pipeline.State == store.StateAwaitingApproval {
			m.popupTargetID = c.Pipeline.ID
			m.popup = popupConfirmApprove
			return m, nil
		}

	// Resolve the first open escalation.
	case "r":
		if c := m.selectedCard(); c != nil && len(c.Escalations) > 0 {
			m.popupTargetID = c.Escalations[0].ID
			m.popup = popupResolve
			m.textInput.Reset()
			m.textInput.Placeholder = "Your decision..."
			m.textInput.Focus()
			return m, textinput.Blink
		}

	// Answer a blocked pipeline.
	case "a":
		if c := m.selectedCard(); c != nil && c.Pipeline.State == store.StateBlocked {
			m.popupTargetID = c.Pipeline.ID
			m.popup = popupAnswer
			m.textInput.Reset()
			m.textInput.Placeholder = "Your answer..."
			m.textInput.Focus()
			return m, textinput.Blink
		}

	// History.
	case "H":
		if c := m.selectedCard(); c != nil {
			m.detail = c
			return m, m.loadHistory(c.Pipeline.ID)
		}

	case "R":
		return m, m.loadCards()
	}

	return m, nil
}

// --- Detail screen keys ---

func (m Model) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.detail == nil {
		m.screen = screenGrid
		return m, nil
	}

	switch msg.String() {
	case "j", "down":
		m.rowCursor++
		if max := len(m.detail.Units) - 1; m.rowCursor > max {
			m.rowCursor = max
		}
		if m.rowCursor < 0 {
			m.rowCursor = 0
		}
	case "k", "up":
		m.rowCursor--
		if m.rowCursor < 0 {
			m.rowCursor = 0
		}

	case "y":
		if m.detail.Pipeline.State == store.StateAwaitingApproval {
			m.popupTargetID = m.detail.Pipeline.ID
			m.popup = popupConfirmApprove
			return m, nil
		}

	case "r":
		if len(m.detail.Escalations) > 0 {
			m.popupTargetID = m.detail.Escalations[0].ID
			m.popup = popupResolve
			m.textInput.Reset()
			m.textInput.Placeholder = "Your decision..."
			m.textInput.Focus()
			return m, textinput.Blink
		}

	case "a":
		if m.detail.Pipeline.State == store.StateBlocked {
			m.popupTargetID = m.detail.Pipeline.ID
			m.popup = popupAnswer
			m.textInput.Reset()
			m.textInput.Placeholder = "Your answer..."
			m.textInput.Focus()
			return m, textinput.Blink
		}

	case "H":
		return m, m.loadHistory(m.detail.Pipeline.ID)

	case "backspace":
		return m.goBack()
	}

	return m, nil
}

// --- History screen keys ---

func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "backspace":
		return m.goBack()
	}

	var cmd tea.Cmd
	m.historyViewport, cmd = m.historyViewport.Update(msg)
	return m, cmd
}

// --- Popup keys ---

func (m Model) handlePopupKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.popup {
	case popupConfirmApprove:
		return m.handleApprovePopup(msg)
	case popupResolve:
		return m.handleResolvePopup(msg)
	case popupAnswer:
		return m.handleAnswerPopup(msg)
	}
	return m, nil
}

func (m Model) handleApprovePopup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "enter":
		m.popup = popupNone
		return m, m.doApprove(m.popupTargetID)
	case "n", "esc":
		m.popup = popupNone
		return m, nil
	}
	return m, nil
}

func (m Model) handleResolvePopup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = popupNone
		return m, nil
	case "enter":
		decision := m.textInput.Value()
		if decision == "" {
			m.setStatus("Decision cannot be empty")
			return m, nil
		}
		m.popup = popupNone
		return m, m.doResolve(m.popupTargetID, decision)
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

func (m Model) handleAnswerPopup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.popup = popupNone
		return m, nil
	case "enter":
		answer := m.textInput.Value()
		if answer == "" {
			m.setStatus("Answer cannot be empty")
			return m, nil
		}
		m.popup = popupNone
		return m, m.doAnswer(m.popupTargetID, answer)
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// --- Actions ---

func (m Model) doApprove(pipelineID int64) tea.Cmd {
	return func() tea.Msg {
		p, err := m.store.GetPipeline(pipelineID)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		if p.State != store.StateAwaitingApproval || p.PendingStop == "" {
			return actionDoneMsg{status: "Pipeline is no longer waiting for approval"}
		}
		if err := m.store.AddApproval(pipelineID, p.PendingStop, ""); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Approved " + p.PendingStop + " — run: steward run " + strconv.FormatInt(pipelineID, 10)}
	}
}

func (m Model) doResolve(escalationID int64, decision string) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.ResolveEscalation(escalationID, decision); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Resolved escalation #" + strconv.FormatInt(escalationID, 10)}
	}
}

func (m Model) doAnswer(pipelineID int64, answer string) tea.Cmd {
	return func() tea.Msg {
		// Return to the phase the block interrupted.
		next := store.StateImplementation
		artifacts, _ := m.store.ListArtifacts(pipelineID)
		for _, a := range artifacts {
			if a.State != "approved" && a.State != "approved_with_conditions" {
				next = store.StateDocumentPhase
				break
			}
		}
		if err := m.store.UnblockPipeline(pipelineID, next, answer); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Unblocked pipeline #" + strconv.FormatInt(pipelineID, 10)}
	}
}
