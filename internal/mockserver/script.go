package mockserver

import (
	"fmt"
	"strings"
	"sync"
)

var defaultReplies = []string{
	"Sure. Here is a quick sketch:\n```go\nfmt.Println(%q)\n```\nLet me know if that helps.",
	"Noted: %q. Nothing else to add right now.",
	"I looked at %q and it seems fine.",
}

// script produces canned, deterministic responses.
type script struct {
	mu      sync.Mutex
	replies []string
	turn    int
}

func newScript(replies []string) *script {
	if len(replies) == 0 {
		replies = defaultReplies
	}
	return &script{replies: replies}
}

// reply returns the next response split into streaming chunks.
func (s *script) reply(message string) []string {
	s.mu.Lock()
	tmpl := s.replies[s.turn%len(s.replies)]
	s.turn++
	s.mu.Unlock()

	text := tmpl
	if strings.Contains(tmpl, "%") {
		text = fmt.Sprintf(tmpl, message)
	}
	return chunk(text)
}

func (s *script) analysis(project string, size int) string {
	if project == "" {
		project = "default"
	}
	return fmt.Sprintf("Screenshot for %s received (%d KB of image data).", project, size/1024)
}

// chunk splits text after each space so that concatenating the pieces
// yields text again.
func chunk(text string) []string {
	var out []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:i+1])
		text = text[i+1:]
	}
	return out
}
