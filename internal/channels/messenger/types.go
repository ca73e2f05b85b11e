package messenger

import "time"

// WebhookEvent is the top-level structure of a page webhook delivery.
type WebhookEvent struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry groups the messaging events delivered for one page.
type Entry struct {
	ID        string      `json:"id"`
	Time      int64       `json:"time"`
	Messaging []Messaging `json:"messaging"`
}

// Messaging is a single messaging event.
type Messaging struct {
	Sender    Participant `json:"sender"`
	Recipient Participant `json:"recipient"`
	Timestamp int64       `json:"timestamp"`
	Message   *Message    `json:"message,omitempty"`
	Postback  *Postback   `json:"postback,omitempty"`
}

// Participant identifies a page or a page-scoped user.
type Participant struct {
	ID string `json:"id"`
}

// Message contains the message content.
type Message struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo,omitempty"`
}

// Postback represents a button tap. The relay does not answer postbacks.
type Postback struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// SenderActionTypingOn shows the typing indicator to the recipient.
const SenderActionTypingOn = "typing_on"

// SendRequest is the payload posted to /me/messages. Exactly one of Message
// and SenderAction is set.
type SendRequest struct {
	Recipient    Participant  `json:"recipient"`
	Message      *SendMessage `json:"message,omitempty"`
	SenderAction string       `json:"sender_action,omitempty"`
}

// SendMessage is the content of an outbound message.
type SendMessage struct {
	Text string `json:"text"`
}

// SendResponse is the Graph API reply to a send call.
type SendResponse struct {
	RecipientID string     `json:"recipient_id"`
	MessageID   string     `json:"message_id"`
	Error       *SendError `json:"error,omitempty"`
}

// SendError is the Graph API error object.
type SendError struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      int    `json:"code"`
	FBTraceID string `json:"fbtrace_id"`
}

// UserProfile is the public profile of a page-scoped user.
type UserProfile struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Email string     `json:"email"`
	Error *SendError `json:"error,omitempty"`
}

// InboundMessage is one validated text message taken from a webhook delivery.
type InboundMessage struct {
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Text        string    `json:"text"`
	MessageID   string    `json:"mid,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}
