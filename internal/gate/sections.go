package gate

import "strings"

// MissingSections returns the mandatory sections that are absent or
// empty in a markdown document. A section is any heading line; its body
// runs until the next heading. Matching is case-insensitive.
func MissingSections(mandatory []string, doc string) []string {
	bodies := sectionBodies(doc)

	var missing []string
	for _, want := range mandatory {
		body, ok := bodies[strings.ToLower(want)]
		if !ok || strings.TrimSpace(body) == "" {
			missing = append(missing, want)
		}
	}
	return missing
}

// sectionBodies maps lowercased heading titles to their body text.
func sectionBodies(doc string) map[string]string {
	bodies := map[string]string{}

	var current string
	var body strings.Builder

	flush := func() {
		if current != "" {
			bodies[current] = body.String()
		}
		body.Reset()
	}

	for _, line := range strings.Split(doc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			flush()
			current = strings.ToLower(strings.TrimSpace(strings.TrimLeft(trimmed, "#")))
			continue
		}
		if current != "" {
			body.WriteString(line)
			body.WriteString("\n")
		}
	}
	flush()

	return bodies
}
