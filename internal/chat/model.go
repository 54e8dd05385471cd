package chat

import (
	"encoding/json"
	"time"
)

// ---------------------------------------------
// 🗄️ Database & API Models
// ---------------------------------------------

// Message is a persisted direct message. Usernames are denormalized for the wire.
type Message struct {
	ID               int64     `json:"id"`
	SenderID         int64     `json:"-"`
	ReceiverID       int64     `json:"-"`
	Content          string    `json:"content"`
	SenderUsername   string    `json:"sender_username"`
	ReceiverUsername string    `json:"receiver_username"`
	CreatedAt        time.Time `json:"created_at"`
}

// ConversationHistory is the body of both the conversation_history event and
// GET /conversations/{username}.
type ConversationHistory struct {
	Messages []Message `json:"messages"`
}

// ---------------------------------------------
// ⚡ Realtime Events
// ---------------------------------------------

const (
	EventSendMessage         = "send_message"
	EventGetConversation     = "get_conversation"
	EventNewMessage          = "new_message"
	EventConversationHistory = "conversation_history"
	EventError               = "error"
)

// Envelope is the frame format in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// SendMessageRequest is the send_message payload. Message is a pointer so an absent
// field can be told apart from an empty message.
type SendMessageRequest struct {
	ReceiverUsername string  `json:"receiver_username"`
	Message          *string `json:"message"`
}

// GetConversationRequest is the get_conversation payload.
type GetConversationRequest struct {
	Username string `json:"username"`
}

type ErrorEvent struct {
	Message string `json:"message"`
}

func encodeEvent(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
