package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
	"github.com/Xueheng-Li/cc-log-page/internal/parser"
)

// Renderer writes parsed records to an output stream.
type Renderer interface {
	Render(rec model.Record) error
}

// ---------------------------------------------------------------------------
// Text Renderer (colorized terminal output)
// ---------------------------------------------------------------------------

var (
	styleUser      = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)  // blue
	styleAssistant = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)  // green
	styleSystem    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))            // gray
	styleTool      = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))            // yellow
	styleError     = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true) // red bold
	styleSession   = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Faint(true)
)

// TextRenderer prints records to the terminal with kind-based colors.
type TextRenderer struct {
	w io.Writer
}

// NewTextRenderer returns a Renderer that writes colorized text to stdout.
func NewTextRenderer() *TextRenderer {
	return &TextRenderer{w: os.Stdout}
}

func (r *TextRenderer) Render(rec model.Record) error {
	tag := styleKindTag(rec)
	sess := styleSession.Render(shortID(rec.SessionID))
	ts := ""
	if !rec.Timestamp.IsZero() {
		ts = rec.Timestamp.Format("15:04:05")
	}

	preview := strings.ReplaceAll(parser.Preview(rec, 200), "\n", " ")
	line := fmt.Sprintf("%s %s %s %s", ts, tag, sess, preview)
	_, err := fmt.Fprintln(r.w, line)
	return err
}

func styleKindTag(rec model.Record) string {
	padded := fmt.Sprintf("%-11s", rec.Kind)
	switch rec.Kind {
	case model.KindUser:
		return styleUser.Render(padded)
	case model.KindAssistant:
		return styleAssistant.Render(padded)
	case model.KindToolUse:
		return styleTool.Render(padded)
	case model.KindToolResult:
		if hasErrorBlock(rec) {
			return styleError.Render(padded)
		}
		return styleTool.Render(padded)
	default:
		return styleSystem.Render(padded)
	}
}

func hasErrorBlock(rec model.Record) bool {
	for _, blk := range rec.Content {
		if blk.Type == model.BlockToolResult && blk.IsError {
			return true
		}
	}
	return false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// ---------------------------------------------------------------------------
// JSON Renderer (structured output for piping)
// ---------------------------------------------------------------------------

// JSONRenderer prints each record as a single JSON object per line.
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer returns a Renderer that writes JSON lines to stdout.
func NewJSONRenderer() *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(os.Stdout)}
}

func (r *JSONRenderer) Render(rec model.Record) error {
	return r.enc.Encode(rec)
}
