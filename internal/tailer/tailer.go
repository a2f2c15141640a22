// Package tailer reads newly appended bytes from session files. Each file
// is tracked by its last-read offset so a modification costs only the new
// tail, never a full reparse. Only whole lines are handed over; a trailing
// partial line is buffered until the next read.
package tailer

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
)

// Line is one complete log line with its position in the file.
type Line struct {
	Text    string
	Ordinal int
}

// Batch is the result of one tail read: the complete non-blank lines that
// appeared since the previous read, plus the bytes consumed by all complete
// lines (blank ones included).
type Batch struct {
	Path  string
	Lines []Line
	Bytes int64
}

type trackedFile struct {
	offset int64
	buf    []byte // trailing partial line carried to the next read
	lineNo int    // complete lines consumed so far
}

// Tailer tracks per-file read offsets. Offsets live only in memory; the
// whole tree is re-read on process start.
type Tailer struct {
	mu    sync.Mutex
	files map[string]*trackedFile
}

func New() *Tailer {
	return &Tailer{files: make(map[string]*trackedFile)}
}

// ReadNew reads from the file's last offset to EOF and returns the complete
// lines found. A file that has disappeared is a benign end-of-stream, not an
// error. Permission and read errors are returned for the caller to log; the
// offset is left unchanged so the read is retried on the next event.
func (t *Tailer) ReadNew(path string) (Batch, error) {
	t.mu.Lock()
	tf, ok := t.files[path]
	if !ok {
		tf = &trackedFile{}
		t.files[path] = tf
	}
	t.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Batch{Path: path}, nil
		}
		return Batch{Path: path}, err
	}
	defer f.Close()

	if _, err := f.Seek(tf.offset, io.SeekStart); err != nil {
		return Batch{Path: path}, err
	}
	data, err := io.ReadAll(f)
	if err != nil && len(data) == 0 {
		return Batch{Path: path}, err
	}
	tf.offset += int64(len(data))

	combined := tf.buf
	if len(combined) > 0 {
		combined = append(append([]byte{}, combined...), data...)
	} else {
		combined = data
	}

	batch := Batch{Path: path}
	consumed := 0
	for {
		idx := bytes.IndexByte(combined[consumed:], '\n')
		if idx < 0 {
			break
		}
		raw := combined[consumed : consumed+idx]
		consumed += idx + 1

		if text := strings.TrimSpace(string(raw)); text != "" {
			batch.Lines = append(batch.Lines, Line{Text: text, Ordinal: tf.lineNo})
		}
		tf.lineNo++
	}
	tf.buf = append(tf.buf[:0:0], combined[consumed:]...)
	batch.Bytes = int64(consumed)

	return batch, nil
}

// Offset returns the tracked read position for a file, for diagnostics.
func (t *Tailer) Offset(path string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tf, ok := t.files[path]; ok {
		return tf.offset
	}
	return 0
}

// Forget drops the tracking state for a removed file.
func (t *Tailer) Forget(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.files, path)
}
