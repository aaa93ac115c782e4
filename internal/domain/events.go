package domain

import "time"

// Real-time event names. Clients subscribe to these exact strings.
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventNewMessage     = "newMessage"
	EventMessageRequest = "messageRequest"
	EventMessagesSeen   = "messagesSeen"
	EventMessageUpdated = "messageUpdated"
)

// Event is a named payload pushed to a live connection.
type Event struct {
	Name    string
	Payload any
}

// EventSink delivers events to a user if they are reachable. Delivery is
// best effort: the durable write has already happened when Notify is called.
type EventSink interface {
	Notify(userID string, ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(userID string, ev Event)

func (f SinkFunc) Notify(userID string, ev Event) { f(userID, ev) }

// MessageRequest is what the receiver of a first-contact message sees instead
// of the message itself. The pending-requests listing uses the same shape.
type MessageRequest struct {
	MessageID        string    `json:"messageId"`
	SenderID         string    `json:"senderId"`
	SenderName       string    `json:"senderName"`
	SenderProfilePic string    `json:"senderProfilePic"`
	Message          string    `json:"message"`
	CreatedAt        time.Time `json:"createdAt"`
}

// MessagesSeen tells a sender that the other side read the conversation.
type MessagesSeen struct {
	SeenBy string `json:"seenBy"`
}

func NewMessageEvent(m *Message) Event {
	return Event{Name: EventNewMessage, Payload: m}
}

func MessageUpdatedEvent(m *Message) Event {
	return Event{Name: EventMessageUpdated, Payload: m}
}

func MessageRequestEvent(r MessageRequest) Event {
	return Event{Name: EventMessageRequest, Payload: r}
}

func MessagesSeenEvent(readerID string) Event {
	return Event{Name: EventMessagesSeen, Payload: MessagesSeen{SeenBy: readerID}}
}

func OnlineUsersEvent(userIDs []string) Event {
	if userIDs == nil {
		userIDs = []string{}
	}
	return Event{Name: EventOnlineUsers, Payload: userIDs}
}

// Fanout delivers every event to each sink in order.
type Fanout []EventSink

func (f Fanout) Notify(userID string, ev Event) {
	for _, s := range f {
		if s != nil {
			s.Notify(userID, ev)
		}
	}
}
