// Package session folds decoded agent events into the state a chat client
// shows: the transcript, the generated files and the preview URL.
package session

import (
	"path"
	"sort"
	"strings"
)

// ArtifactSet maps generated file paths to their contents. Keys are unique;
// the order of first insertion is kept so callers can pick a default file.
type ArtifactSet struct {
	order []string
	files map[string]string
}

// NewArtifactSet returns an empty set.
func NewArtifactSet() *ArtifactSet {
	return &ArtifactSet{files: map[string]string{}}
}

// NormalizePath converts backslashes to forward slashes and drops empty and
// "." segments, the same normalisation the file tree applies.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	kept := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		kept = append(kept, part)
	}
	return strings.Join(kept, "/")
}

// Put stores content under p. Overwriting an existing path keeps its position.
func (a *ArtifactSet) Put(p, content string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	if _, ok := a.files[p]; !ok {
		a.order = append(a.order, p)
	}
	a.files[p] = content
	return p
}

// Get returns the content stored under p.
func (a *ArtifactSet) Get(p string) (string, bool) {
	content, ok := a.files[NormalizePath(p)]
	return content, ok
}

// Has reports whether p is present.
func (a *ArtifactSet) Has(p string) bool {
	_, ok := a.Get(p)
	return ok
}

// Len returns the number of files.
func (a *ArtifactSet) Len() int {
	return len(a.order)
}

// Paths returns the paths in insertion order.
func (a *ArtifactSet) Paths() []string {
	out := make([]string, len(a.order))
	copy(out, a.order)
	return out
}

// First returns the first path inserted, if any.
func (a *ArtifactSet) First() (string, bool) {
	if len(a.order) == 0 {
		return "", false
	}
	return a.order[0], true
}

// Snapshot copies the set into a plain map.
func (a *ArtifactSet) Snapshot() map[string]string {
	out := make(map[string]string, len(a.files))
	for k, v := range a.files {
		out[k] = v
	}
	return out
}

// Merge folds a full listing (e.g. from the session files endpoint) into the
// set. New paths are appended in sorted order so the result is deterministic.
func (a *ArtifactSet) Merge(files map[string]string) {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a.Put(k, files[k])
	}
}

var codeExtensions = []string{".jsx", ".js", ".html", ".css"}

// IsCodeFile reports whether p is a file the browser preview can run.
func IsCodeFile(p string) bool {
	if path.Base(p) == "package.json" {
		return true
	}
	ext := path.Ext(p)
	for _, e := range codeExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// CodeFiles returns the previewable subset of the set, in insertion order.
func (a *ArtifactSet) CodeFiles() []string {
	var out []string
	for _, p := range a.order {
		if IsCodeFile(p) {
			out = append(out, p)
		}
	}
	return out
}
