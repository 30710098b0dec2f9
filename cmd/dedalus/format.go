package main

import (
	"errors"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
	"github.com/mattn/go-runewidth"
	"github.com/mdwillman/dedalus/pkg/runner"
)

// mdRenderer renders markdown to terminal-formatted output.
var mdRenderer *glamour.TermRenderer

func initMarkdownRenderer(width int) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
}

// renderMarkdown converts markdown text to terminal-formatted output.
// Falls back to the raw text if no renderer is available.
func renderMarkdown(text string) string {
	if mdRenderer == nil {
		return text
	}

	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}

	return strings.TrimRight(out, "\n")
}

// renderFinal formats the answer for printing after the TUI exits. Streamed
// runs already showed the full text delta by delta, so they render nothing.
func renderFinal(req runner.Request, result *runner.Result) string {
	if req.Stream {
		return ""
	}

	return renderMarkdown(result.FinalOutput)
}

// truncate shortens s to at most width display cells, appending "…" if
// truncated. Newlines are replaced with spaces for single-line display.
func truncate(s string, width int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if runewidth.StringWidth(s) <= width {
		return s
	}

	return runewidth.Truncate(s, width, "…")
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	return nil
}
