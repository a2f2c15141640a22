// Package export renders a parsed session as a standalone document.
package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

const (
	maxResultChars   = 5000
	maxThinkingChars = 3000
	maxInputChars    = 3000
)

// Markdown renders a session and its records as readable Markdown, one
// section per message in file order. Tool result records are shown inline
// under the tool use that produced them and skipped as standalone sections.
func Markdown(sess model.Session, project model.Project, records []model.Record) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session: %s\n", sess.ID)
	if sess.Slug != "" {
		fmt.Fprintf(&b, "**Slug**: %s\n", sess.Slug)
	}
	fmt.Fprintf(&b, "**Project**: %s\n", project.ShortName)
	fmt.Fprintf(&b, "**Date**: %s ~ %s (%s)\n",
		fmtTime(sess.StartTime), fmtTime(sess.EndTime), fmtDuration(sess.Duration()))
	if sess.Model != "" {
		fmt.Fprintf(&b, "**Model**: %s\n", sess.Model)
	}
	if sess.Version != "" {
		fmt.Fprintf(&b, "**Version**: %s\n", sess.Version)
	}
	if sess.CWD != "" {
		fmt.Fprintf(&b, "**Working Directory**: %s\n", sess.CWD)
	}
	if sess.GitBranch != "" {
		fmt.Fprintf(&b, "**Git Branch**: %s\n", sess.GitBranch)
	}
	b.WriteString("\n---\n\n")

	for i := range records {
		rec := &records[i]
		ts := ""
		if !rec.Timestamp.IsZero() {
			ts = rec.Timestamp.Format("15:04:05")
		}

		switch rec.Kind {
		case model.KindUser:
			if rec.IsMeta {
				continue
			}
			fmt.Fprintf(&b, "## User %s\n\n", ts)
			writeBlocks(&b, rec.Content, rec.Text)

		case model.KindAssistant, model.KindToolUse:
			tag := ""
			if rec.Model != "" && rec.Model != "<synthetic>" {
				tag = " [" + rec.Model + "]"
			}
			fmt.Fprintf(&b, "## Assistant%s %s\n\n", tag, ts)
			writeBlocks(&b, rec.Content, rec.Text)

		case model.KindToolResult:
			// Rendered inline with the preceding tool use.
			continue

		case model.KindSystem, model.KindSummary:
			fmt.Fprintf(&b, "> **System** %s: %s\n\n", ts, rec.Text)

		default:
			continue
		}

		b.WriteString("---\n\n")
	}

	return b.String()
}

func writeBlocks(b *strings.Builder, blocks []model.ContentBlock, fallback string) {
	if len(blocks) == 0 {
		if fallback != "" {
			b.WriteString(fallback)
			b.WriteString("\n")
		}
		b.WriteString("\n")
		return
	}
	for _, blk := range blocks {
		switch blk.Type {
		case model.BlockText:
			b.WriteString(blk.Text)
			b.WriteString("\n")

		case model.BlockThinking:
			b.WriteString("<details><summary>Thinking</summary>\n\n")
			b.WriteString(truncate(blk.Text, maxThinkingChars))
			b.WriteString("\n\n</details>\n")

		case model.BlockToolUse:
			fmt.Fprintf(b, "### Tool: %s\n", blk.ToolName)
			fmt.Fprintf(b, "```%s\n", toolLang(blk.ToolName))
			b.WriteString(formatToolInput(blk.ToolName, blk.ToolInput))
			b.WriteString("\n```\n")

		case model.BlockToolResult:
			id := blk.ToolUseID
			if len(id) > 12 {
				id = id[:12] + "..."
			}
			fmt.Fprintf(b, "### Tool Result (`%s`)\n", id)
			if blk.IsError {
				b.WriteString("**Error:**\n")
			}
			b.WriteString("```\n")
			b.WriteString(truncate(blk.Text, maxResultChars))
			b.WriteString("\n```\n")
		}
	}
	b.WriteString("\n")
}

// toolLang picks a fenced code block language for a tool's input.
func toolLang(name string) string {
	switch name {
	case "Bash":
		return "bash"
	case "Read", "Write", "Edit", "Glob", "Grep":
		return ""
	}
	return "json"
}

// formatToolInput renders the well-known tools compactly and everything
// else as indented JSON.
func formatToolInput(name string, input map[string]any) string {
	str := func(key string) string {
		s, _ := input[key].(string)
		return s
	}
	switch name {
	case "Bash":
		if desc := str("description"); desc != "" {
			return "# " + desc + "\n" + str("command")
		}
		return str("command")
	case "Read":
		out := str("file_path")
		if off, ok := input["offset"]; ok {
			out += fmt.Sprintf(" (offset=%v", off)
			if lim, ok := input["limit"]; ok {
				out += fmt.Sprintf(", limit=%v", lim)
			}
			out += ")"
		}
		return out
	case "Write":
		return "# Write to: " + str("file_path") + "\n" + truncate(str("content"), 2000)
	case "Edit":
		return "# Edit: " + str("file_path") +
			"\n- old: " + truncate(str("old_string"), 500) +
			"\n+ new: " + truncate(str("new_string"), 500)
	case "Glob":
		if p := str("pattern"); p != "" {
			return p
		}
	case "Grep":
		parts := []string{"pattern: " + str("pattern")}
		if p := str("path"); p != "" {
			parts = append(parts, "path: "+p)
		}
		if g := str("glob"); g != "" {
			parts = append(parts, "glob: "+g)
		}
		return strings.Join(parts, "\n")
	}
	raw, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", input)
	}
	return truncate(string(raw), maxInputChars)
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "N/A"
	}
	return t.Format("2006-01-02 15:04:05")
}

func fmtDuration(d time.Duration) string {
	if d <= 0 {
		return "0s"
	}
	return d.Round(time.Second).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
