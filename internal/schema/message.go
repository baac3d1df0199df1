package schema

import (
	"strings"

	"github.com/crystaldolphin/outpipe/internal/shared/stringutils"
)

// Message is the ordered, mutable segment list of one outbound reply.
// An empty message means delivery is suppressed.
type Message struct {
	Segments []Segment
}

// NewMessage builds a Message from segs.
func NewMessage(segs ...Segment) *Message {
	return &Message{Segments: segs}
}

// NewTextMessage builds a single-Text message.
func NewTextMessage(s string) *Message {
	return NewMessage(NewText(s))
}

func (m *Message) Len() int      { return len(m.Segments) }
func (m *Message) IsEmpty() bool { return len(m.Segments) == 0 }

// PlainText concatenates the content of every Text segment.
func (m *Message) PlainText() string {
	var sb strings.Builder
	for _, seg := range m.Segments {
		if t, ok := seg.(*Text); ok {
			sb.WriteString(t.Content)
		}
	}
	return sb.String()
}

// Insert places segs before index i.
func (m *Message) Insert(i int, segs ...Segment) {
	if i < 0 {
		i = 0
	}
	if i > len(m.Segments) {
		i = len(m.Segments)
	}
	out := make([]Segment, 0, len(m.Segments)+len(segs))
	out = append(out, m.Segments[:i]...)
	out = append(out, segs...)
	out = append(out, m.Segments[i:]...)
	m.Segments = out
}

// RemoveAt deletes the segment at index i.
func (m *Message) RemoveAt(i int) {
	if i < 0 || i >= len(m.Segments) {
		return
	}
	m.Segments = append(m.Segments[:i:i], m.Segments[i+1:]...)
}

// Replace swaps the whole segment list.
func (m *Message) Replace(segs ...Segment) {
	m.Segments = segs
}

// Clear empties the message.
func (m *Message) Clear() {
	m.Segments = nil
}

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
	return &Message{Segments: cloneSegments(m.Segments)}
}

// Last returns the final segment or nil.
func (m *Message) Last() Segment {
	if len(m.Segments) == 0 {
		return nil
	}
	return m.Segments[len(m.Segments)-1]
}

// OnlyKinds reports whether every segment is one of kinds.
func (m *Message) OnlyKinds(kinds ...SegmentKind) bool {
	for _, seg := range m.Segments {
		ok := false
		for _, k := range kinds {
			if seg.Kind() == k {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// HasKind reports whether any segment is of kind k.
func (m *Message) HasKind(k SegmentKind) bool {
	for _, seg := range m.Segments {
		if seg.Kind() == k {
			return true
		}
	}
	return false
}

// FirstText returns the index of the first Text segment, or -1.
func (m *Message) FirstText() int {
	for i, seg := range m.Segments {
		if _, ok := seg.(*Text); ok {
			return i
		}
	}
	return -1
}

// Preview returns a short snippet of the plain text for logging.
func (m *Message) Preview() string {
	return stringutils.Truncate(m.PlainText(), 40)
}
