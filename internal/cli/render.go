package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/kumarabd/ingestion-plane/miner/pkg/trie"
)

var (
	styleID       = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Faint(true) // cyan
	styleCount    = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Bold(true) // yellow
	styleTemplate = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	styleVariable = lipgloss.NewStyle().Foreground(lipgloss.Color("205")) // pink
	styleSummary  = lipgloss.NewStyle().Faint(true)
)

// Renderer writes the exported templates
type Renderer interface {
	Render(entries []trie.Entry, lines int) error
}

// newRenderer returns the renderer for format
func newRenderer(format string, w io.Writer, placeholder string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &TextRenderer{w: w, placeholder: placeholder}, nil
	case "json":
		return &JSONRenderer{enc: json.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want text or json)", format)
	}
}

// TextRenderer prints one styled row per template
type TextRenderer struct {
	w           io.Writer
	placeholder string
}

func (r *TextRenderer) Render(entries []trie.Entry, lines int) error {
	width := 1
	for _, e := range entries {
		if n := len(fmt.Sprint(e.Occurrences())); n > width {
			width = n
		}
	}

	for _, e := range entries {
		count := styleCount.Render(fmt.Sprintf("%*d", width, e.Occurrences()))
		row := fmt.Sprintf("%s %s %s", styleID.Render(e.ID), count, r.highlight(e.Template))
		if _, err := fmt.Fprintln(r.w, row); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(r.w, styleSummary.Render(fmt.Sprintf("%d templates, %d lines", len(entries), lines)))
	return err
}

func (r *TextRenderer) highlight(template string) string {
	parts := strings.Split(template, r.placeholder)
	for i := range parts {
		parts[i] = styleTemplate.Render(parts[i])
	}
	return strings.Join(parts, styleVariable.Render(r.placeholder))
}

// JSONRenderer prints each template as a single JSON object per line
type JSONRenderer struct {
	enc *json.Encoder
}

type jsonEntry struct {
	ID          string `json:"id"`
	Template    string `json:"template"`
	Occurrences int    `json:"occurrences"`
	LineIDs     []int  `json:"line_ids"`
}

func (r *JSONRenderer) Render(entries []trie.Entry, _ int) error {
	for _, e := range entries {
		if err := r.enc.Encode(jsonEntry{
			ID:          e.ID,
			Template:    e.Template,
			Occurrences: e.Occurrences(),
			LineIDs:     e.LineIDs,
		}); err != nil {
			return err
		}
	}
	return nil
}
