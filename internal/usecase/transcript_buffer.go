package usecase

import (
	"strings"

	"pickasso/internal/domain"
)

// transcriptBuffer holds the authoritative text of the current recognition
// session. Later events replace earlier ones; they are never merged.
type transcriptBuffer struct {
	session  uint64
	sequence int
	seen     bool
	text     string
}

func newTranscriptBuffer(session uint64) transcriptBuffer {
	return transcriptBuffer{session: session}
}

// accept returns the updated buffer, or false for an event that belongs to
// another session or arrives behind one already observed.
func (b transcriptBuffer) accept(session uint64, event domain.TranscriptEvent) (transcriptBuffer, bool) {
	if session != b.session {
		return b, false
	}
	if b.seen && event.Sequence < b.sequence {
		return b, false
	}
	b.sequence = event.Sequence
	b.seen = true
	b.text = strings.TrimSpace(event.Text)
	return b, true
}

func (b transcriptBuffer) clear() transcriptBuffer {
	b.text = ""
	return b
}
