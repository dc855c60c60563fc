package qa

import "strings"

// sanitizer cleans streamed deltas for untrusted embedders. It is stateful
// because a "**" marker or a run of spaces can be split across two deltas.
type sanitizer struct {
	pendingStar bool
	lastSpace   bool
}

func (s *sanitizer) Push(chunk string) string {
	var b strings.Builder
	b.Grow(len(chunk))
	for _, r := range chunk {
		if s.pendingStar {
			s.pendingStar = false
			if r == '*' {
				continue
			}
			s.write(&b, '*')
		}
		if r == '*' {
			s.pendingStar = true
			continue
		}
		if r == '\t' || r == '\r' {
			r = ' '
		}
		s.write(&b, r)
	}
	return b.String()
}

// Flush returns what is still held back at end of stream.
func (s *sanitizer) Flush() string {
	if s.pendingStar {
		s.pendingStar = false
		return "*"
	}
	return ""
}

func (s *sanitizer) write(b *strings.Builder, r rune) {
	if r == ' ' {
		if s.lastSpace {
			return
		}
		s.lastSpace = true
	} else {
		s.lastSpace = false
	}
	b.WriteRune(r)
}

// Sanitize applies the widget cleanup to a complete string.
func Sanitize(text string) string {
	var s sanitizer
	return s.Push(text) + s.Flush()
}
