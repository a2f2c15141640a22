package output

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/Xueheng-Li/cc-log-page/internal/model"
)

func TestJSONRenderer(t *testing.T) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	renderer := &JSONRenderer{enc: enc}

	rec := model.Record{
		UUID:      "u-1",
		SessionID: "sess-1",
		Kind:      model.KindUser,
		Role:      "user",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Text:      "hello there",
	}

	if err := renderer.Render(rec); err != nil {
		t.Fatal(err)
	}

	var got model.Record
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON output: %v\nraw: %s", err, buf.String())
	}

	if got.Kind != model.KindUser {
		t.Errorf("expected kind user, got %s", got.Kind)
	}
	if got.Text != "hello there" {
		t.Errorf("expected text 'hello there', got %q", got.Text)
	}
	if got.SessionID != "sess-1" {
		t.Errorf("expected session sess-1, got %q", got.SessionID)
	}
}

func TestTextRendererOneLinePerRecord(t *testing.T) {
	var buf bytes.Buffer
	renderer := &TextRenderer{w: &buf}

	rec := model.Record{
		UUID:      "u-1",
		SessionID: "0195c2aa-long-session-id",
		Kind:      model.KindAssistant,
		Timestamp: time.Date(2026, 3, 1, 12, 0, 5, 0, time.UTC),
		Text:      "first line\nsecond line",
	}
	if err := renderer.Render(rec); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	if bytes.Count(buf.Bytes(), []byte("\n")) != 1 {
		t.Errorf("expected single output line, got %q", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte("12:00:05")) {
		t.Errorf("missing timestamp in %q", out)
	}
	if !bytes.Contains(buf.Bytes(), []byte("0195c2aa")) {
		t.Errorf("missing shortened session id in %q", out)
	}
}
