package model

import "time"

// RecordKind identifies the shape of one parsed log record.
type RecordKind string

const (
	KindUser       RecordKind = "user"
	KindAssistant  RecordKind = "assistant"
	KindSystem     RecordKind = "system"
	KindToolUse    RecordKind = "tool_use"
	KindToolResult RecordKind = "tool_result"
	KindProgress   RecordKind = "progress"
	KindSummary    RecordKind = "summary"
)

// BlockType identifies one content block inside an assistant or user record.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockThinking   BlockType = "thinking"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ContentBlock is one element of a record's ordered content list.
// Only the fields relevant to the block's Type are populated.
type ContentBlock struct {
	Type      BlockType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	ToolInput map[string]any `json:"tool_input,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
}

// Record is a single parsed log entry.
type Record struct {
	UUID       string         `json:"uuid"`
	ParentUUID string         `json:"parent_uuid,omitempty"`
	SessionID  string         `json:"session_id"`
	Kind       RecordKind     `json:"kind"`
	Role       string         `json:"role,omitempty"`
	Ordinal    int            `json:"ordinal"` // line position within the file
	Timestamp  time.Time      `json:"timestamp,omitempty"`
	Content    []ContentBlock `json:"content,omitempty"`
	Text       string         `json:"text"` // plain-text projection of text blocks

	// Session-level fields carried on individual lines.
	Model     string `json:"model,omitempty"`
	Version   string `json:"version,omitempty"`
	CWD       string `json:"cwd,omitempty"`
	GitBranch string `json:"git_branch,omitempty"`
	Slug      string `json:"slug,omitempty"`

	IsMeta      bool `json:"is_meta,omitempty"`
	IsSidechain bool `json:"is_sidechain,omitempty"`
}
