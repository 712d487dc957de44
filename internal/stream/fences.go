package stream

import (
	"strings"
	"unicode"
)

const fence = "```"

// SegmentKind distinguishes prose from fenced code.
type SegmentKind int

const (
	SegmentText SegmentKind = iota
	SegmentCode
)

func (k SegmentKind) String() string {
	if k == SegmentCode {
		return "code"
	}
	return "text"
}

// Segment is one piece of a completed message.
type Segment struct {
	Kind SegmentKind
	Text string
	// Lang is the optional language hint of a code segment.
	Lang string
}

// ParseFences splits text on ``` pairs, matching each opening fence with the
// nearest closing one. Prose is kept verbatim and code is trimmed. An
// unclosed fence is left as prose.
func ParseFences(text string) []Segment {
	var out []Segment
	rest := text
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			break
		}
		closeAt := strings.Index(rest[open+len(fence):], fence)
		if closeAt < 0 {
			break
		}
		if open > 0 {
			out = append(out, Segment{Kind: SegmentText, Text: rest[:open]})
		}
		body := rest[open+len(fence) : open+len(fence)+closeAt]
		out = append(out, codeSegment(body))
		rest = rest[open+len(fence)+closeAt+len(fence):]
	}
	if rest != "" {
		out = append(out, Segment{Kind: SegmentText, Text: rest})
	}
	return out
}

// Structured reports whether segs contain any code.
func Structured(segs []Segment) bool {
	for _, s := range segs {
		if s.Kind == SegmentCode {
			return true
		}
	}
	return false
}

func codeSegment(body string) Segment {
	first, after, multiline := strings.Cut(body, "\n")
	if multiline && isLangHint(first) {
		return Segment{Kind: SegmentCode, Text: strings.TrimSpace(after), Lang: strings.TrimSpace(first)}
	}
	return Segment{Kind: SegmentCode, Text: strings.TrimSpace(body)}
}

func isLangHint(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("+-#._", r) {
			return false
		}
	}
	return true
}
