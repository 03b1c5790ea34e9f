package bridge

import (
	"strings"
	"unicode/utf8"
)

// utf8Decoder converts a byte stream into text chunks without splitting a
// multi-byte character across two chunks. Bytes that form an incomplete
// character at the end of an input are held back and prepended to the next
// input. The zero value is ready for use.
type utf8Decoder struct {
	pending []byte
}

// Decode consumes p and returns the longest decodable prefix of the pending
// bytes plus p. The returned string may be empty when p holds only the start
// of a multi-byte character.
func (d *utf8Decoder) Decode(p []byte) string {
	if len(p) == 0 {
		return ""
	}

	data := p
	if len(d.pending) > 0 {
		data = append(d.pending, p...)
		d.pending = nil
	}

	cut := len(data)
	for cut > 0 && len(data)-cut < utf8.UTFMax {
		b := data[cut-1]
		if utf8.RuneStart(b) {
			if b < utf8.RuneSelf {
				// ASCII, complete on its own.
				break
			}
			if r, size := utf8.DecodeRune(data[cut-1:]); r != utf8.RuneError || size > 1 {
				// The trailing character decodes fully.
				cut = len(data)
			} else {
				// Lead byte of a character whose tail has not arrived yet.
				cut--
			}
			break
		}
		cut--
	}

	if cut < len(data) {
		d.pending = append([]byte(nil), data[cut:]...)
	}
	return toValid(data[:cut])
}

// Flush returns any held-back bytes decoded with replacement characters.
// Called once the stream ends; a truncated trailing character is surfaced
// rather than silently dropped.
func (d *utf8Decoder) Flush() string {
	if len(d.pending) == 0 {
		return ""
	}
	rest := toValid(d.pending)
	d.pending = nil
	return rest
}

func toValid(data []byte) string {
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}
