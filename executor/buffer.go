package executor

import (
	"bytes"
	"unicode/utf8"
)

// cappedBuffer keeps at most limit bytes and silently drops the rest so a
// chatty subprocess cannot grow memory without bound.
type cappedBuffer struct {
	buf     bytes.Buffer
	limit   int
	dropped int64
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

// Write never fails; the subprocess must not see EPIPE because of the cap.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	switch {
	case room <= 0:
		b.dropped += int64(len(p))
	case len(p) > room:
		b.buf.Write(p[:room])
		b.dropped += int64(len(p) - room)
	default:
		b.buf.Write(p)
	}
	return len(p), nil
}

func (b *cappedBuffer) Truncated() bool {
	return b.dropped > 0
}

func (b *cappedBuffer) String() string {
	if b.dropped > 0 {
		// the cut may have landed inside a multi-byte rune
		return string(trimPartialRune(b.buf.Bytes()))
	}
	return b.buf.String()
}

// trimPartialRune drops an incomplete rune at the end of p. Earlier bytes are
// left alone, valid or not.
func trimPartialRune(p []byte) []byte {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(p[i]) {
			continue
		}
		if !utf8.FullRune(p[i:]) {
			return p[:i]
		}
		return p
	}
	return p
}
