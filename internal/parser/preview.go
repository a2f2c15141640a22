package parser

import (
	"regexp"
	"strings"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

var (
	commandMsgRe  = regexp.MustCompile(`(?s)<command-message>.*?</command-message>`)
	commandNameRe = regexp.MustCompile(`(?s)<command-name>.*?</command-name>`)
	commandArgsRe = regexp.MustCompile(`</?command-args>`)
)

// Preview extracts a short display preview from a record, stripping the CLI's
// command wrapper tags and capping the length.
func Preview(r model.Record, maxLen int) string {
	text := commandMsgRe.ReplaceAllString(r.Text, "")
	text = commandNameRe.ReplaceAllString(text, "")
	text = commandArgsRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) > maxLen {
		return string(runes[:maxLen]) + "..."
	}
	return text
}
