// Package promptdoc parses markdown documents with YAML frontmatter and
// implements the shell/argument/template substitution rules used to expand
// commands and skills into prompts.
package promptdoc

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed frontmatter document.
type Document struct {
	Frontmatter map[string]any
	Body        string
}

// Parse splits doc into its YAML frontmatter and body. A document that does
// not begin with a "---" line (after leading whitespace is trimmed) has no
// frontmatter at all, and Frontmatter is nil. A document that begins with
// "---" but never finds a closing "---" line is an error.
func Parse(doc string) (*Document, error) {
	trimmed := strings.TrimLeft(doc, "\n\r\t ")
	if !strings.HasPrefix(trimmed, "---") {
		return &Document{Body: doc}, nil
	}

	// The opening delimiter must be alone on its line.
	afterOpen := trimmed[3:]
	if nl := strings.IndexByte(afterOpen, '\n'); nl >= 0 {
		firstLine := strings.TrimRight(afterOpen[:nl], "\r")
		if strings.TrimSpace(firstLine) != "" {
			// Not a bare "---" line — treat the whole document as body.
			return &Document{Body: doc}, nil
		}
		afterOpen = afterOpen[nl+1:]
	} else {
		return nil, fmt.Errorf("promptdoc: missing frontmatter closing delimiter")
	}

	lines := strings.Split(afterOpen, "\n")
	closeIdx := -1
	for i, line := range lines {
		if strings.TrimSpace(strings.TrimRight(line, "\r")) == "---" {
			closeIdx = i
			break
		}
	}
	if closeIdx < 0 {
		return nil, fmt.Errorf("promptdoc: missing frontmatter closing delimiter")
	}

	yamlBlock := strings.Join(lines[:closeIdx], "\n")
	body := strings.Join(lines[closeIdx+1:], "\n")
	body = strings.TrimPrefix(body, "\n")

	fm := map[string]any{}
	if strings.TrimSpace(yamlBlock) != "" {
		if err := yaml.Unmarshal([]byte(yamlBlock), &fm); err != nil {
			return nil, fmt.Errorf("promptdoc: invalid frontmatter: %w", err)
		}
	}

	return &Document{Frontmatter: fm, Body: body}, nil
}

// Serialize re-renders a frontmatter map + body into the same "---\n...\n---\n"
// shape Parse accepts, used by the frontmatter round-trip tests.
func Serialize(fm map[string]any, body string) (string, error) {
	if len(fm) == 0 {
		return body, nil
	}
	yamlBytes, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("promptdoc: marshal frontmatter: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("---\n")
	sb.Write(yamlBytes)
	sb.WriteString("---\n")
	sb.WriteString(body)
	return sb.String(), nil
}
