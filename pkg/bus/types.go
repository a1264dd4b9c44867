package bus

import "time"

// InboundMessage is a post received from the source platform.
type InboundMessage struct {
	ChatID    int64     `json:"chat_id"` // marked id, see package peer
	MessageID int       `json:"message_id"`
	Text      string    `json:"text"`
	Date      time.Time `json:"date"`
}
