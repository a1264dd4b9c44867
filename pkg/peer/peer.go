// Package peer converts between Telegram's bare peer ids and the signed
// "marked" ids used on the wire by bot-style clients, where channels live
// below -10^12 and basic groups are negated.
package peer

type Kind int

const (
	KindUser Kind = iota
	KindChat
	KindChannel
)

func (k Kind) String() string {
	switch k {
	case KindChat:
		return "chat"
	case KindChannel:
		return "channel"
	default:
		return "user"
	}
}

const channelOffset int64 = 1_000_000_000_000

// MarkChannel returns the marked form of a bare channel id.
func MarkChannel(id int64) int64 {
	return -(channelOffset + id)
}

// MarkChat returns the marked form of a bare basic-group id.
func MarkChat(id int64) int64 {
	return -id
}

// Resolve decodes a marked id into its bare id and peer kind.
// Non-negative ids are users.
func Resolve(marked int64) (int64, Kind) {
	switch {
	case marked >= 0:
		return marked, KindUser
	case marked > -channelOffset:
		return -marked, KindChat
	default:
		return -marked - channelOffset, KindChannel
	}
}

// ChannelID returns the bare channel id for a marked id. Ids that are not
// channel ids are returned decoded as-is so lookups simply miss.
func ChannelID(marked int64) int64 {
	id, _ := Resolve(marked)
	return id
}
