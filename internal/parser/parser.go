package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

// ErrMalformed marks a line that could not be parsed into a Record.
// Callers are expected to count and skip, never abort the file.
var ErrMalformed = errors.New("malformed record")

// Parser converts one JSONL line into a typed Record.
// It is safe for concurrent use; the malformed counter is atomic.
type Parser struct {
	malformed atomic.Int64
}

func New() *Parser { return &Parser{} }

// Malformed returns the number of lines rejected so far.
func (p *Parser) Malformed() int64 { return p.malformed.Load() }

// rawLine mirrors the wire shape of one log line. Message-level fields live
// under "message"; session-level fields ride along on every line.
type rawLine struct {
	Type        string          `json:"type"`
	UUID        string          `json:"uuid"`
	ParentUUID  string          `json:"parentUuid"`
	SessionID   string          `json:"sessionId"`
	Timestamp   json.RawMessage `json:"timestamp"`
	Message     *rawMessage     `json:"message"`
	Content     string          `json:"content"` // system lines carry content at the top level
	Subtype     string          `json:"subtype"`
	Summary     string          `json:"summary"`
	CWD         string          `json:"cwd"`
	Version     string          `json:"version"`
	GitBranch   string          `json:"gitBranch"`
	Slug        string          `json:"slug"`
	IsMeta      bool            `json:"isMeta"`
	IsSidechain bool            `json:"isSidechain"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

// Parse converts a single line into a Record. ordinal is the line's position
// within its file. A line that is not a JSON object fails with ErrMalformed;
// everything else is extracted best-effort and never fails.
func (p *Parser) Parse(line string, ordinal int) (model.Record, error) {
	line = strings.TrimPrefix(strings.TrimSpace(line), "\ufeff")
	if line == "" {
		p.malformed.Add(1)
		return model.Record{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	var raw rawLine
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		p.malformed.Add(1)
		return model.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	rec := model.Record{
		UUID:        raw.UUID,
		ParentUUID:  raw.ParentUUID,
		SessionID:   raw.SessionID,
		Ordinal:     ordinal,
		Timestamp:   parseTimestamp(raw.Timestamp),
		Version:     raw.Version,
		CWD:         raw.CWD,
		GitBranch:   raw.GitBranch,
		Slug:        raw.Slug,
		IsMeta:      raw.IsMeta,
		IsSidechain: raw.IsSidechain,
	}
	if rec.UUID == "" {
		// Every record needs a stable anchor for navigation and search.
		rec.UUID = uuid.NewString()
	}

	rec.Kind = classify(raw)

	switch rec.Kind {
	case model.KindSystem:
		text := raw.Content
		if raw.Subtype != "" && text != "" {
			text = "[" + raw.Subtype + "] " + text
		} else if raw.Subtype != "" {
			text = "[" + raw.Subtype + "]"
		}
		rec.Role = "system"
		if text != "" {
			rec.Content = []model.ContentBlock{{Type: model.BlockText, Text: text}}
		}
	case model.KindSummary:
		if raw.Summary != "" {
			rec.Content = []model.ContentBlock{{Type: model.BlockText, Text: raw.Summary}}
		}
	default:
		if raw.Message != nil {
			rec.Role = raw.Message.Role
			rec.Content = normalizeContent(raw.Message.Content)
			if m := raw.Message.Model; m != "" && m != "<synthetic>" {
				rec.Model = m
			}
		}
	}
	if rec.Role == "" {
		rec.Role = string(rec.Kind)
	}

	// A user record whose content carries a tool_result block is a tool
	// result, not a human turn.
	if rec.Kind == model.KindUser {
		for _, b := range rec.Content {
			if b.Type == model.BlockToolResult {
				rec.Kind = model.KindToolResult
				break
			}
		}
	}

	rec.Text = blocksToText(rec.Content)
	return rec, nil
}

// classify picks the record kind from the explicit type field, falling back
// to the message role when the field is absent or unrecognized.
func classify(raw rawLine) model.RecordKind {
	switch raw.Type {
	case "user":
		return model.KindUser
	case "assistant":
		return model.KindAssistant
	case "system":
		return model.KindSystem
	case "tool_use":
		return model.KindToolUse
	case "tool_result":
		return model.KindToolResult
	case "progress", "file-history-snapshot", "queue-operation":
		return model.KindProgress
	case "summary":
		return model.KindSummary
	}

	role := ""
	if raw.Message != nil {
		role = raw.Message.Role
	}
	switch role {
	case "user":
		return model.KindUser
	case "assistant":
		return model.KindAssistant
	default:
		return model.KindSystem
	}
}

// normalizeContent turns the content field (a literal string or an ordered
// block list) into typed blocks. Unknown block types are dropped.
func normalizeContent(raw json.RawMessage) []model.ContentBlock {
	if len(raw) == 0 {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []model.ContentBlock{{Type: model.BlockText, Text: s}}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}

	blocks := make([]model.ContentBlock, 0, len(items))
	for _, item := range items {
		if err := json.Unmarshal(item, &s); err == nil {
			blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: s})
			continue
		}

		var b struct {
			Type      string          `json:"type"`
			Text      string          `json:"text"`
			Thinking  string          `json:"thinking"`
			ID        string          `json:"id"`
			Name      string          `json:"name"`
			Input     map[string]any  `json:"input"`
			ToolUseID string          `json:"tool_use_id"`
			Content   json.RawMessage `json:"content"`
			IsError   bool            `json:"is_error"`
		}
		if err := json.Unmarshal(item, &b); err != nil {
			continue
		}

		switch b.Type {
		case "text":
			blocks = append(blocks, model.ContentBlock{Type: model.BlockText, Text: b.Text})
		case "thinking":
			text := b.Thinking
			if text == "" {
				text = b.Text
			}
			blocks = append(blocks, model.ContentBlock{Type: model.BlockThinking, Text: text})
		case "tool_use":
			blocks = append(blocks, model.ContentBlock{
				Type:      model.BlockToolUse,
				ToolUseID: b.ID,
				ToolName:  b.Name,
				ToolInput: b.Input,
			})
		case "tool_result":
			blocks = append(blocks, model.ContentBlock{
				Type:      model.BlockToolResult,
				ToolUseID: b.ToolUseID,
				Text:      flattenResult(b.Content),
				IsError:   b.IsError,
			})
		}
	}
	return blocks
}

// flattenResult extracts plain text from a tool_result content value, which
// may be a string or a nested block list.
func flattenResult(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Text != "" {
			parts = append(parts, it.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// blocksToText builds the plain-text projection used for search: text blocks
// only, in order, joined by newlines.
func blocksToText(blocks []model.ContentBlock) string {
	var parts []string
	for _, b := range blocks {
		if b.Type == model.BlockText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseTimestamp accepts RFC3339 strings and unix seconds/milliseconds.
// Anything unparsable yields a zero time rather than an error.
func parseTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
		return time.Time{}
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		// Millisecond timestamps are far past any plausible second count.
		if n > 1e12 {
			return time.UnixMilli(int64(n)).UTC()
		}
		return time.Unix(int64(n), 0).UTC()
	}
	return time.Time{}
}
