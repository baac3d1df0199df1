package channels

import (
	"strings"

	"github.com/crystaldolphin/outpipe/internal/schema"
)

// flattenText renders the text-like segments of segs for platforms without
// native segments. Media, faces and quotes are left to the caller.
func flattenText(segs []schema.Segment, mention func(userID string) string) string {
	var sb strings.Builder
	for _, seg := range segs {
		switch v := seg.(type) {
		case *schema.Text:
			sb.WriteString(v.Content)
		case *schema.Mention:
			sb.WriteString(mention(v.UserID))
		case *schema.ForwardGroup:
			for i, n := range v.Nodes {
				if i > 0 || sb.Len() > 0 {
					sb.WriteString("\n")
				}
				if n.Name != "" {
					sb.WriteString(n.Name + ": ")
				}
				sb.WriteString(flattenText(n.Content, mention))
			}
		}
	}
	return sb.String()
}

// attachments returns image and audio segments in order, including those
// nested in forward nodes.
func attachments(segs []schema.Segment) []schema.Segment {
	var out []schema.Segment
	for _, seg := range segs {
		switch v := seg.(type) {
		case *schema.Image, *schema.Audio:
			out = append(out, seg)
		case *schema.ForwardGroup:
			for _, n := range v.Nodes {
				out = append(out, attachments(n.Content)...)
			}
		}
	}
	return out
}

// quotedID returns the first quoted message id, or "".
func quotedID(segs []schema.Segment) string {
	for _, seg := range segs {
		if q, ok := seg.(*schema.QuoteRef); ok {
			return q.MessageID
		}
	}
	return ""
}

func stripZeroWidth(s string) string {
	return strings.ReplaceAll(s, schema.ZeroWidthSpace, "")
}

// describe renders one segment for a terminal.
func describe(seg schema.Segment) string {
	switch v := seg.(type) {
	case *schema.Text:
		return stripZeroWidth(v.Content)
	case *schema.Mention:
		return "@" + v.UserID + " "
	case *schema.Image:
		if v.Summary != "" {
			return "[image " + v.Ref + " | " + v.Summary + "]"
		}
		return "[image " + v.Ref + "]"
	case *schema.Face:
		return "[face " + v.ID + "]"
	case *schema.QuoteRef:
		return "[reply #" + v.MessageID + "] "
	case *schema.Audio:
		return "[voice " + v.Ref + "]"
	case *schema.ForwardGroup:
		var sb strings.Builder
		sb.WriteString("[forward]")
		for _, n := range v.Nodes {
			sb.WriteString("\n  " + n.Name + ": ")
			for _, c := range n.Content {
				sb.WriteString(describe(c))
			}
		}
		return sb.String()
	}
	return ""
}
