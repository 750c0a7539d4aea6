package dispatch

import (
	"fmt"
	"os"
	"strings"
)

// Context assembles the full prompt a worker reads before starting a
// step. Think of it as the work ticket: role, objective, the governing
// documents, and the step's response contract.
//
// Upstream documents are attached explicitly. For creation-class steps
// a missing upstream is fatal — authoring against absent inputs
// produces confidently wrong documents. Analysis-class steps instead
// skip the attachment and record the gap so the reply can weigh it.
type Context struct {
	role      string
	objective string
	sections  []section
	gaps      []string
}

type section struct {
	title string
	body  string
}

// NewContext starts a context for a worker acting in the given role.
func NewContext(role, objective string) *Context {
	return &Context{role: role, objective: objective}
}

// AddSection appends a titled block of context.
func (c *Context) AddSection(title, body string) {
	if strings.TrimSpace(body) == "" {
		return
	}
	c.sections = append(c.sections, section{title: title, body: body})
}

// AttachFile attaches a file's contents as a section. When required is
// set, a missing or unreadable file is an error; otherwise the gap is
// recorded and rendering continues without it.
func (c *Context) AttachFile(title, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if required {
			return fmt.Errorf("required input %s: %w", path, err)
		}
		c.gaps = append(c.gaps, fmt.Sprintf("%s (%s) was not available", title, path))
		return nil
	}
	c.AddSection(title, string(data))
	return nil
}

// Note records a free-form annotation surfaced in the rendered prompt.
func (c *Context) Note(note string) {
	c.gaps = append(c.gaps, note)
}

// Render produces the final prompt text.
func (c *Context) Render() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Role: %s\n\n", c.role))
	sb.WriteString("## Objective\n")
	sb.WriteString(c.objective)
	sb.WriteString("\n")

	for _, s := range c.sections {
		sb.WriteString(fmt.Sprintf("\n## %s\n", s.title))
		sb.WriteString(strings.TrimRight(s.body, "\n"))
		sb.WriteString("\n")
	}

	if len(c.gaps) > 0 {
		sb.WriteString("\n## Missing Context\n")
		sb.WriteString("The following inputs were unavailable; account for the gap:\n")
		for _, g := range c.gaps {
			sb.WriteString("- " + g + "\n")
		}
	}

	sb.WriteString("\n" + responseContract)
	return sb.String()
}

// responseContract tells the worker how to reply. Every step uses the
// same envelope; the step's kind decides which fields are mandatory.
const responseContract = `## Response Format
Reply with a single JSON object:

{
  "status": "ok" | "escalation" | "blocked",
  "summary": "one-paragraph summary of what you did",
  "document": "full markdown document (author/revise steps)",
  "review": {"scores": {"consistency": 0, "completeness": 0, "compliance": 0, "feasibility": 0}, "issues": [{"severity": "critical|major|minor", "description": "..."}]},
  "units": [{"title": "...", "description": "...", "phase": "1"}],
  "verification": {"passed": true, "details": "..."},
  "escalation": {"kind": "...", "context": "...", "suggested_options": ["..."]},
  "blocked_reason": "why you cannot proceed"
}

Populate only the fields your step calls for. Never invent scores or
verdicts; if you cannot decide, escalate.`
