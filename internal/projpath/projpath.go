// Package projpath decodes project directory names back into filesystem
// paths. The CLI encodes a project's absolute path by replacing every path
// separator with '-', which collides with hyphens that appear inside real
// segment names; decoding is disambiguated by probing the filesystem.
package projpath

import (
	"os"
	"path/filepath"
	"strings"
)

// Decoder resolves encoded names against a filesystem root.
// The zero value is not usable; construct with New.
type Decoder struct {
	root string
}

// New returns a Decoder that resolves paths beneath root.
// Production use passes "/"; tests pass a temp directory.
func New(root string) *Decoder {
	if root == "" {
		root = "/"
	}
	return &Decoder{root: root}
}

// Decode maps an encoded directory name to its best-guess filesystem path.
// The second return value reports whether the result was verified to exist
// on disk. Decoding is greedy and local: at each position the longest
// hyphen-joined candidate that exists is committed, without backtracking,
// so decoding the same name against an unchanged filesystem is idempotent.
func (d *Decoder) Decode(name string) (string, bool) {
	stripped := strings.TrimLeft(name, "-")
	if stripped == "" {
		return d.root, true
	}

	parts := strings.Split(stripped, "-")
	path := d.root
	i := 0
	for i < len(parts) {
		// An empty part comes from a consecutive hyphen: the next segment
		// is a hidden dot-prefixed directory.
		if parts[i] == "" {
			i++
			if i >= len(parts) {
				break
			}
			j, candidate := d.longestMatch(path, parts, i, ".")
			if j > i {
				path = filepath.Join(path, candidate)
				i = j
			} else {
				path = filepath.Join(path, "."+strings.Join(parts[i:], "-"))
				i = len(parts)
			}
			continue
		}

		j, candidate := d.longestMatch(path, parts, i, "")
		if j > i {
			path = filepath.Join(path, candidate)
			i = j
			continue
		}

		if isDir(path) {
			// The parent exists but no child matches: the remaining parts
			// form a single hyphenated leaf (possibly deleted since).
			path = filepath.Join(path, strings.Join(parts[i:], "-"))
			i = len(parts)
		} else {
			// Nothing to verify against; descend one part at a time, which
			// degenerates to the naive separator substitution.
			path = filepath.Join(path, parts[i])
			i++
		}
	}

	return path, exists(path)
}

// longestMatch finds the largest j such that prefix+parts[i:j] joined with
// hyphens exists under dir. Returns (i, "") when nothing matches.
func (d *Decoder) longestMatch(dir string, parts []string, i int, prefix string) (int, string) {
	for j := len(parts); j > i; j-- {
		candidate := prefix + strings.Join(parts[i:j], "-")
		if exists(filepath.Join(dir, candidate)) {
			return j, candidate
		}
	}
	return i, ""
}

// ShortName returns the last path component for display.
func ShortName(path string) string {
	base := filepath.Base(path)
	if base == "." || base == string(filepath.Separator) {
		return "/"
	}
	return base
}

// Encode is the forward transformation, useful for tests and tooling.
func Encode(path string) string {
	return strings.ReplaceAll(path, "/", "-")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
