// Package search holds a derived full-text index over per-record text
// projections. Matching is case-insensitive substring containment; no
// stemming. Documents reference store entities by identifier only, so the
// index can be rebuilt independently of the session store.
package search

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// Document is the per-record text projection plus the identifiers needed
// to jump back to the source record.
type Document struct {
	RecordID  string    `json:"record_id"`
	SessionID string    `json:"session_id"`
	ProjectID string    `json:"project_id"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Text      string    `json:"text"`
}

// Result is one ranked search hit.
type Result struct {
	RecordID   string    `json:"record_id"`
	SessionID  string    `json:"session_id"`
	ProjectID  string    `json:"project_id"`
	Role       string    `json:"role"`
	Timestamp  time.Time `json:"timestamp,omitempty"`
	Snippet    string    `json:"snippet"`
	MatchCount int       `json:"match_count"`
	Phrase     bool      `json:"phrase_match"`
}

// Highlight markers wrapped around every match occurrence inside a snippet.
// They are chosen so HTML escaping cannot produce them from user content.
const (
	HighlightStart = "<<hl>>"
	HighlightEnd   = "<</hl>>"
)

const checkEvery = 256 // docs scanned between context checks

type entry struct {
	Document
	lower string

	// toOrig maps byte offsets in lower back to byte offsets in Text.
	// nil when the two strings are byte-aligned, which is the common case;
	// lowercasing can change rune widths (U+0130, U+212A) and misalign them.
	toOrig []int
}

func (e *entry) orig(i int) int {
	if e.toOrig == nil {
		return i
	}
	return e.toOrig[i]
}

// lowerOffsets lowercases text and, when any rune's encoded size changed,
// also returns the offset map needed to slice the original string.
func lowerOffsets(text string) (string, []int) {
	lower := strings.ToLower(text)
	if lower == text {
		return lower, nil
	}
	aligned := true
	offsets := make([]int, 0, len(lower)+1)
	for i, r := range text {
		lr := unicode.ToLower(r)
		n := utf8.RuneLen(lr)
		if n != utf8.RuneLen(r) {
			aligned = false
		}
		for j := 0; j < n; j++ {
			offsets = append(offsets, i)
		}
	}
	if aligned {
		return lower, nil
	}
	offsets = append(offsets, len(text))
	return lower, offsets
}

// Index is safe for one writer and many concurrent readers.
type Index struct {
	mu           sync.RWMutex
	entries      []entry
	byRecord     map[string]int
	snippetChars int
}

// New creates an index with the given snippet window size in runes.
func New(snippetChars int) *Index {
	if snippetChars <= 0 {
		snippetChars = 150
	}
	return &Index{
		byRecord:     make(map[string]int),
		snippetChars: snippetChars,
	}
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// Add inserts a document, replacing any previous one with the same record id.
func (x *Index) Add(doc Document) {
	lower, toOrig := lowerOffsets(doc.Text)
	e := entry{Document: doc, lower: lower, toOrig: toOrig}
	x.mu.Lock()
	defer x.mu.Unlock()
	if i, ok := x.byRecord[doc.RecordID]; ok {
		x.entries[i] = e
		return
	}
	x.byRecord[doc.RecordID] = len(x.entries)
	x.entries = append(x.entries, e)
}

// Search scans the index for documents containing every phrase and token of
// the query. Results are ranked: whole-query contiguous matches first, then
// all-token matches; ties by match count, then descending timestamp.
// projectID and role filters are optional ("" disables them).
func (x *Index) Search(ctx context.Context, query, projectID, role string, limit int) ([]Result, error) {
	phrases, tokens := parseQuery(query)
	if len(phrases) == 0 && len(tokens) == 0 {
		return nil, nil
	}
	terms := append(append([]string{}, phrases...), tokens...)
	whole := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(query, `"`, "")))
	if limit <= 0 {
		limit = 50
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var results []Result
	for i := range x.entries {
		if i%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := &x.entries[i]
		if projectID != "" && e.ProjectID != projectID {
			continue
		}
		if role != "" && e.Role != role {
			continue
		}
		if !containsAll(e.lower, phrases) || !containsAll(e.lower, tokens) {
			continue
		}

		matches := 0
		for _, term := range terms {
			matches += strings.Count(e.lower, term)
		}
		results = append(results, Result{
			RecordID:   e.RecordID,
			SessionID:  e.SessionID,
			ProjectID:  e.ProjectID,
			Role:       e.Role,
			Timestamp:  e.Timestamp,
			Snippet:    x.snippet(e, terms),
			MatchCount: matches,
			Phrase:     whole != "" && strings.Contains(e.lower, whole),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Phrase != b.Phrase {
			return a.Phrase
		}
		return a.Timestamp.After(b.Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// parseQuery splits a query into quoted phrases and bare tokens, lowercased.
// Tokens break on whitespace and punctuation so latin and CJK queries both
// reduce to substring probes.
func parseQuery(query string) (phrases, tokens []string) {
	var rest strings.Builder
	inQuote := false
	var quoted strings.Builder
	for _, r := range query {
		if r == '"' {
			if inQuote {
				if p := strings.TrimSpace(quoted.String()); p != "" {
					phrases = append(phrases, strings.ToLower(p))
				}
				quoted.Reset()
			}
			inQuote = !inQuote
			continue
		}
		if inQuote {
			quoted.WriteRune(r)
		} else {
			rest.WriteRune(r)
		}
	}
	// An unterminated quote is treated as plain text.
	if inQuote {
		rest.WriteString(quoted.String())
	}

	for _, tok := range strings.FieldsFunc(rest.String(), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}) {
		tokens = append(tokens, strings.ToLower(tok))
	}
	return phrases, tokens
}

func containsAll(text string, terms []string) bool {
	for _, t := range terms {
		if !strings.Contains(text, t) {
			return false
		}
	}
	return true
}

// span is a byte range inside the original text.
type span struct{ start, end int }

// snippet returns a bounded window centered on the first match, with every
// match occurrence fully inside the window wrapped in highlight markers.
// Markers are never split by the truncation boundary: spans that would
// straddle it are left unhighlighted out of the window entirely.
// All offsets are found in the lowered form and mapped back to the original
// text right before slicing; the two strings need not be byte-aligned.
func (x *Index) snippet(e *entry, terms []string) string {
	lower := e.lower
	first := len(lower)
	firstLen := 0
	for _, term := range terms {
		if pos := strings.Index(lower, term); pos >= 0 && pos < first {
			first = pos
			firstLen = len(term)
		}
	}
	if first == len(lower) {
		return truncateRunes(e.Text, x.snippetChars)
	}

	// Window boundaries in bytes of the lowered form, centered on the first
	// match, aligned to rune boundaries.
	half := x.snippetChars / 2
	start := byteOffsetBack(lower, first, half)
	end := byteOffsetForward(lower, first+firstLen, half)

	spans := collectSpans(lower, terms, start, end)

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	pos := start
	for _, sp := range spans {
		b.WriteString(e.Text[e.orig(pos):e.orig(sp.start)])
		b.WriteString(HighlightStart)
		b.WriteString(e.Text[e.orig(sp.start):e.orig(sp.end)])
		b.WriteString(HighlightEnd)
		pos = sp.end
	}
	b.WriteString(e.Text[e.orig(pos):e.orig(end)])
	if end < len(lower) {
		b.WriteString("...")
	}
	return b.String()
}

// collectSpans finds all term occurrences fully inside [start, end),
// merged so markers never nest or overlap.
func collectSpans(lower string, terms []string, start, end int) []span {
	var spans []span
	for _, term := range terms {
		for pos := start; pos < end; {
			idx := strings.Index(lower[pos:end], term)
			if idx < 0 {
				break
			}
			s := pos + idx
			spans = append(spans, span{s, s + len(term)})
			pos = s + len(term)
		}
	}
	if len(spans) == 0 {
		return nil
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}
	return merged
}

// byteOffsetBack walks up to n runes backwards from byte offset pos.
func byteOffsetBack(text string, pos, n int) int {
	for i := 0; i < n && pos > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:pos])
		pos -= size
	}
	return pos
}

// byteOffsetForward walks up to n runes forward from byte offset pos.
func byteOffsetForward(text string, pos, n int) int {
	for i := 0; i < n && pos < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[pos:])
		pos += size
	}
	return pos
}

func truncateRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
