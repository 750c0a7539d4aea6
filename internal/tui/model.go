// Package tui is the interactive dashboard: pipeline cards with stop
// points, escalations, and approval actions, without leaving the
// terminal.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/imkarma/steward/internal/store"
)

// screen identifies which view is active.
type screen int

const (
	screenGrid    screen = iota // pipeline cards (main)
	screenDetail                // one pipeline: documents, units, escalations
	screenHistory               // scrollable event log
)

// popup identifies the active modal, if any.
type popup int

const (
	popupNone popup = iota
	popupConfirmApprove
	popupResolve
	popupAnswer
)

// pipelineCard bundles everything the dashboard shows for one pipeline.
type pipelineCard struct {
	Pipeline    store.Pipeline
	Artifacts   []store.Artifact
	Units       []store.TaskUnit
	Escalations []store.Escalation
}

// Model is the top-level bubbletea model.
type Model struct {
	store   *store.Store
	workDir string
	width   int
	height  int

	screen screen
	popup  popup

	// Grid state.
	cards    []pipelineCard
	cursor   int
	gridCols int

	// Detail state.
	detail    *pipelineCard
	rowCursor int

	// History viewport.
	historyViewport viewport.Model
	historyContent  string

	// Popup state.
	textInput     textinput.Model
	popupTargetID int64 // pipeline or escalation ID, per popup kind

	statusMsg  string
	statusTime time.Time
	refreshing bool
	quitting   bool
}

// New creates the dashboard model.
func New(s *store.Store, workDir string) Model {
	ti := textinput.New()
	ti.CharLimit = 500
	ti.Width = 50

	return Model{
		store:           s,
		workDir:         workDir,
		screen:          screenGrid,
		gridCols:        2,
		textInput:       ti,
		historyViewport: viewport.New(80, 20),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadCards(), tickCmd())
}

// --- Messages ---

type cardsLoadedMsg struct {
	cards []pipelineCard
	err   error
}

type historyLoadedMsg struct {
	content string
}

type actionDoneMsg struct {
	status string
	err    error
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) loadCards() tea.Cmd {
	return func() tea.Msg {
		pipelines, err := m.store.ListPipelines("")
		if err != nil {
			return cardsLoadedMsg{err: err}
		}

		cards := make([]pipelineCard, 0, len(pipelines))
		for _, p := range pipelines {
			card := pipelineCard{Pipeline: p}
			card.Artifacts, _ = m.store.ListArtifacts(p.ID)
			card.Units, _ = m.store.ListUnits(p.ID)
			card.Escalations, _ = m.store.ListOpenEscalations(p.ID)
			cards = append(cards, card)
		}
		return cardsLoadedMsg{cards: cards}
	}
}

func (m Model) loadHistory(pipelineID int64) tea.Cmd {
	return func() tea.Msg {
		events, err := m.store.GetEvents(pipelineID)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		content := ""
		for _, e := range events {
			actor := ""
			if e.Actor != "" {
				actor = "[" + e.Actor + "] "
			}
			content += e.Timestamp.Format("2006-01-02 15:04:05") + "  " + actor + e.Type + "  " + e.Content + "\n"
		}
		if content == "" {
			content = "No events yet."
		}
		return historyLoadedMsg{content: content}
	}
}

func (m *Model) setStatus(msg string) {
	m.statusMsg = msg
	m.statusTime = time.Now()
}

func (m *Model) clampCursor() {
	if m.cursor < 0 {
		m.cursor = 0
	}
	if m.cursor >= len(m.cards) {
		m.cursor = len(m.cards) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *Model) selectedCard() *pipelineCard {
	if m.cursor >= 0 && m.cursor < len(m.cards) {
		return &m.cards[m.cursor]
	}
	return nil
}
