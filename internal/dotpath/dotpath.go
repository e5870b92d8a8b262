// Package dotpath implements helpers over dot-delimited logical paths ("fnames").
package dotpath

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Sep is the logical path separator.
const Sep = "."

// Ext is the note file extension stripped before deriving titles.
const Ext = ".md"

// Split returns the segments of fname. The empty path has no segments.
func Split(fname string) []string {
	if fname == "" {
		return nil
	}
	return strings.Split(fname, Sep)
}

// Join joins segments with the separator, skipping empty ones.
func Join(segs ...string) string {
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, Sep)
}

// Depth returns the number of segments in fname.
func Depth(fname string) int {
	if fname == "" {
		return 0
	}
	return strings.Count(fname, Sep) + 1
}

// Basename returns the last segment of fname.
func Basename(fname string) string {
	if i := strings.LastIndex(fname, Sep); i >= 0 {
		return fname[i+1:]
	}
	return fname
}

// Dirname returns fname without its last segment ("" for single-segment paths).
func Dirname(fname string) string {
	if i := strings.LastIndex(fname, Sep); i >= 0 {
		return fname[:i]
	}
	return ""
}

// Prefix returns the first depth segments of fname. A depth past the end
// returns fname unchanged; depth <= 0 returns "".
func Prefix(fname string, depth int) string {
	if depth <= 0 {
		return ""
	}
	segs := Split(fname)
	if depth >= len(segs) {
		return fname
	}
	return strings.Join(segs[:depth], Sep)
}

// Domain returns the first segment of fname.
func Domain(fname string) string {
	return Prefix(fname, 1)
}

// IsAncestor reports whether ancestor is a strict segment-wise prefix of fname.
// The empty path is an ancestor of every non-empty path.
func IsAncestor(ancestor, fname string) bool {
	if fname == "" || ancestor == fname {
		return false
	}
	if ancestor == "" {
		return true
	}
	return strings.HasPrefix(fname, ancestor+Sep)
}

// Between returns the segments of fname that follow ancestor. ok is false when
// ancestor is not a strict prefix of fname.
func Between(ancestor, fname string) (segs []string, ok bool) {
	if !IsAncestor(ancestor, fname) {
		return nil, false
	}
	if ancestor == "" {
		return Split(fname), true
	}
	return Split(fname[len(ancestor)+len(Sep):]), true
}

// ToPattern rewrites dot separators as path separators.
func ToPattern(fname string) string {
	return strings.ReplaceAll(fname, Sep, "/")
}

// DefaultTitle derives a title from the last segment of fname, with the note
// extension stripped and the first letter upper-cased.
func DefaultTitle(fname string) string {
	return capitalize(Basename(strings.TrimSuffix(fname, Ext)))
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
