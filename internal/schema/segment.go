package schema

// SegmentKind identifies the concrete type of a Segment.
type SegmentKind string

const (
	KindText     SegmentKind = "text"
	KindMention  SegmentKind = "mention"
	KindImage    SegmentKind = "image"
	KindFace     SegmentKind = "face"
	KindQuoteRef SegmentKind = "quote"
	KindAudio    SegmentKind = "audio"
	KindForward  SegmentKind = "forward"
)

// ZeroWidthSpace is inserted around text to stop clients from merging
// adjacent bubbles or auto-linking across a seam.
const ZeroWidthSpace = "\u200b"

// Segment is one typed unit of an outbound message.
// The set of implementations is closed: only the types in this file satisfy it.
type Segment interface {
	Kind() SegmentKind
	segment()
}

// Text is a run of plain text.
type Text struct {
	Content string
}

// Mention is a structured "@" of a user.
type Mention struct {
	UserID string
}

// Image references a picture by URL or local path.
// Summary is the outer text some clients show in notifications (QQ "外显").
type Image struct {
	Ref     string
	Summary string
}

// Face is a platform emoji/sticker id.
type Face struct {
	ID string
}

// QuoteRef quotes (replies to) an earlier message.
type QuoteRef struct {
	MessageID string
}

// Audio references a voice clip by URL or local path.
type Audio struct {
	Ref string
}

// ForwardNode is one entry in a grouped forward.
type ForwardNode struct {
	UserID  string
	Name    string
	Content []Segment
}

// ForwardGroup bundles content into a collapsible forwarded-message card.
type ForwardGroup struct {
	Nodes []ForwardNode
}

func (*Text) Kind() SegmentKind         { return KindText }
func (*Mention) Kind() SegmentKind      { return KindMention }
func (*Image) Kind() SegmentKind        { return KindImage }
func (*Face) Kind() SegmentKind         { return KindFace }
func (*QuoteRef) Kind() SegmentKind     { return KindQuoteRef }
func (*Audio) Kind() SegmentKind        { return KindAudio }
func (*ForwardGroup) Kind() SegmentKind { return KindForward }

func (*Text) segment()         {}
func (*Mention) segment()      {}
func (*Image) segment()        {}
func (*Face) segment()         {}
func (*QuoteRef) segment()     {}
func (*Audio) segment()        {}
func (*ForwardGroup) segment() {}

// NewText returns a Text segment.
func NewText(s string) *Text { return &Text{Content: s} }

// NewMention returns a Mention segment.
func NewMention(userID string) *Mention { return &Mention{UserID: userID} }

// CloneSegment returns a deep copy of seg.
func CloneSegment(seg Segment) Segment {
	switch s := seg.(type) {
	case *Text:
		c := *s
		return &c
	case *Mention:
		c := *s
		return &c
	case *Image:
		c := *s
		return &c
	case *Face:
		c := *s
		return &c
	case *QuoteRef:
		c := *s
		return &c
	case *Audio:
		c := *s
		return &c
	case *ForwardGroup:
		nodes := make([]ForwardNode, len(s.Nodes))
		for i, n := range s.Nodes {
			nodes[i] = ForwardNode{UserID: n.UserID, Name: n.Name, Content: cloneSegments(n.Content)}
		}
		return &ForwardGroup{Nodes: nodes}
	}
	return seg
}

func cloneSegments(segs []Segment) []Segment {
	out := make([]Segment, len(segs))
	for i, s := range segs {
		out[i] = CloneSegment(s)
	}
	return out
}
