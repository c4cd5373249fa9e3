package protocol

import (
	"strings"
)

// Reply is one server to client message. It may carry a chat line, a
// snapshot, both or neither.
//
// Known limitation: markers are not escaped, so chat text containing
// "chat:" or "pos:" splits the reply in the wrong place. Fixing that needs
// a framing change on both ends.
type Reply struct {
	Chat    string
	HasChat bool
	Pos     string
	HasPos  bool
}

func PosReply(s Snapshot) Reply {
	return Reply{Pos: EncodeSnapshot(s), HasPos: true}
}

// WithChat returns a copy of r carrying line.
func (r Reply) WithChat(line string) Reply {
	r.Chat = line
	r.HasChat = true
	return r
}

func (r Reply) String() string {
	sb := strings.Builder{}
	if r.HasChat {
		sb.WriteString(ChatMarker)
		sb.WriteString(r.Chat)
	}
	if r.HasPos {
		sb.WriteString(PosMarker)
		sb.WriteString(r.Pos)
	}
	return sb.String()
}

// Snapshot decodes the pos segment. A reply without one yields
// ErrMalformedSnapshot as well; check HasPos first when that matters.
func (r Reply) Snapshot() (Snapshot, error) {
	return DecodeSnapshot(r.Pos)
}

// ParseReply extracts the chat and pos segments independently. Each
// segment starts after the first occurrence of its marker and ends at the
// next occurrence of either marker.
func ParseReply(text string) Reply {
	r := Reply{}
	r.Chat, r.HasChat = segment(text, ChatMarker)
	r.Pos, r.HasPos = segment(text, PosMarker)
	r.Pos = strings.TrimSpace(r.Pos)
	return r
}

func segment(text, marker string) (string, bool) {
	_, rest, ok := strings.Cut(text, marker)
	if !ok {
		return "", false
	}
	end := len(rest)
	for _, m := range [...]string{ChatMarker, PosMarker} {
		if i := strings.Index(rest, m); i >= 0 && i < end {
			end = i
		}
	}
	return rest[:end], true
}
