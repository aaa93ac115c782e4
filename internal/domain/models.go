package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultProfilePic is assigned to users that sign up without an avatar.
const DefaultProfilePic = "https://img.daisyui.com/images/stock/photo-1534528741775-53994a69daeb.jpg"

// User represents an application user.
type User struct {
	ID             string    `db:"id" json:"_id"`
	Fullname       string    `db:"fullname" json:"fullname"`
	Email          string    `db:"email" json:"email"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	ProfilePic     string    `db:"profile_pic" json:"profilePic"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// Conversation is the unordered pair of users that exchanged messages.
// Members are kept normalised so that Members[0] < Members[1].
type Conversation struct {
	ID        string    `db:"id" json:"_id"`
	Members   [2]string `json:"members"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// MemberPair returns the normalised member pair for two user ids.
func MemberPair(a, b string) [2]string {
	if strings.Compare(a, b) > 0 {
		return [2]string{b, a}
	}
	return [2]string{a, b}
}

// Other returns the member that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.Members[0] == userID {
		return c.Members[1]
	}
	return c.Members[0]
}

// MessageType discriminates the payload variant carried by a Message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
	TypePoll     MessageType = "poll"
)

// Valid reports whether t is a known message type.
func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeDocument, TypeLocation, TypeContact, TypePoll:
		return true
	}
	return false
}

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusSeen      MessageStatus = "seen"
)

func (s MessageStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent, StatusDelivered:
		return 1
	case StatusSeen:
		return 2
	}
	return -1
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvance reports whether a message may move from s to next.
// Status never regresses: pending -> sent/delivered, sent/delivered -> seen.
func (s MessageStatus) CanAdvance(next MessageStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusSent || next == StatusDelivered
	case StatusSent:
		return next == StatusDelivered || next == StatusSeen
	case StatusDelivered:
		return next == StatusSeen
	}
	return false
}

// Payload is the type specific part of a Message. Exactly one variant is set
// for every non-text message; text messages carry none.
type Payload interface {
	payloadType() MessageType
}

// AttachmentKind classifies an uploaded file.
type AttachmentKind string

const (
	KindImage    AttachmentKind = "image"
	KindVideo    AttachmentKind = "video"
	KindDocument AttachmentKind = "document"
)

// Valid reports whether k is a known attachment kind.
func (k AttachmentKind) Valid() bool {
	return k == KindImage || k == KindVideo || k == KindDocument
}

// KindForMime derives the attachment kind from a mime type: video/* is a video,
// everything else is a document.
func KindForMime(mime string) AttachmentKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "video/") {
		return KindVideo
	}
	return KindDocument
}

// Attachment describes an uploaded file.
type Attachment struct {
	Kind     AttachmentKind `json:"kind"`
	URL      string         `json:"url"`
	Name     string         `json:"name"`
	MimeType string         `json:"mimeType"`
	Size     int64          `json:"size"`
}

func (a *Attachment) payloadType() MessageType { return MessageType(a.Kind) }

// Location is a shared map pin.
type Location struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Label string  `json:"label,omitempty"`
}

func (*Location) payloadType() MessageType { return TypeLocation }

// Contact is a shared contact card.
type Contact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email,omitempty"`
}

func (*Contact) payloadType() MessageType { return TypeContact }

// Message represents a single direct message.
type Message struct {
	ID             string
	SenderID       string
	ReceiverID     string
	ConversationID string
	Type           MessageType
	Body           string
	Content        Payload
	Status         MessageStatus
	DeletedBy      []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewMessage builds a message and checks that the payload variant matches the type.
func NewMessage(id, senderID, receiverID string, t MessageType, body string, content Payload, status MessageStatus, now time.Time) (*Message, error) {
	if !t.Valid() {
		return nil, Invalid("unknown message type %q", t)
	}
	if !status.Valid() {
		return nil, Invalid("unknown message status %q", status)
	}
	if t == TypeText {
		if content != nil {
			return nil, Invalid("text message must not carry a payload")
		}
		if strings.TrimSpace(body) == "" {
			return nil, Invalid("message is required")
		}
	} else {
		if content == nil {
			return nil, Invalid("%s message requires a payload", t)
		}
		if content.payloadType() != t {
			return nil, Invalid("payload %s does not match message type %s", content.payloadType(), t)
		}
	}
	return &Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Type:       t,
		Body:       body,
		Content:    content,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Involves reports whether userID is the sender or receiver.
func (m *Message) Involves(userID string) bool {
	return m.SenderID == userID || m.ReceiverID == userID
}

// Counterpart returns the participant that is not userID.
func (m *Message) Counterpart(userID string) string {
	if m.SenderID == userID {
		return m.ReceiverID
	}
	return m.SenderID
}

// Attachment returns the attachment payload, if any.
func (m *Message) Attachment() *Attachment {
	a, _ := m.Content.(*Attachment)
	return a
}

// Location returns the location payload, if any.
func (m *Message) Location() *Location {
	l, _ := m.Content.(*Location)
	return l
}

// Contact returns the contact payload, if any.
func (m *Message) Contact() *Contact {
	c, _ := m.Content.(*Contact)
	return c
}

// Poll returns the poll payload, if any.
func (m *Message) Poll() *Poll {
	p, _ := m.Content.(*Poll)
	return p
}

// messageJSON is the wire shape clients already understand.
type messageJSON struct {
	ID             string        `json:"_id"`
	SenderID       string        `json:"senderId"`
	ReceiverID     string        `json:"receiverId"`
	ConversationID string        `json:"conversationId,omitempty"`
	Type           MessageType   `json:"type"`
	Body           string        `json:"message"`
	ImageURL       string        `json:"imageUrl,omitempty"`
	Attachments    []Attachment  `json:"attachments"`
	Location       *Location     `json:"location,omitempty"`
	Contact        *Contact      `json:"contact,omitempty"`
	Poll           *Poll         `json:"poll,omitempty"`
	Status         MessageStatus `json:"status"`
	DeletedBy      []string      `json:"deletedBy"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

func (m *Message) MarshalJSON() ([]byte, error) {
	out := messageJSON{
		ID:             m.ID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		ConversationID: m.ConversationID,
		Type:           m.Type,
		Body:           m.Body,
		Attachments:    []Attachment{},
		Status:         m.Status,
		DeletedBy:      m.DeletedBy,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if out.DeletedBy == nil {
		out.DeletedBy = []string{}
	}
	switch c := m.Content.(type) {
	case *Attachment:
		out.Attachments = append(out.Attachments, *c)
		if c.Kind == KindImage {
			out.ImageURL = c.URL
		}
	case *Location:
		out.Location = c
	case *Contact:
		out.Contact = c
	case *Poll:
		out.Poll = c
	}
	return json.Marshal(out)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var in messageJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*m = Message{
		ID:             in.ID,
		SenderID:       in.SenderID,
		ReceiverID:     in.ReceiverID,
		ConversationID: in.ConversationID,
		Type:           in.Type,
		Body:           in.Body,
		Status:         in.Status,
		DeletedBy:      in.DeletedBy,
		CreatedAt:      in.CreatedAt,
		UpdatedAt:      in.UpdatedAt,
	}
	switch in.Type {
	case TypeImage, TypeVideo, TypeDocument:
		if len(in.Attachments) > 0 {
			a := in.Attachments[0]
			m.Content = &a
		}
	case TypeLocation:
		if in.Location != nil {
			m.Content = in.Location
		}
	case TypeContact:
		if in.Contact != nil {
			m.Content = in.Contact
		}
	case TypePoll:
		if in.Poll != nil {
			m.Content = in.Poll
		}
	}
	return nil
}

// EncodePayload serialises a payload for storage. Text messages encode to nil.
func EncodePayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	return json.Marshal(p)
}

// DecodePayload restores the payload variant for the given message type.
func DecodePayload(t MessageType, raw []byte) (Payload, error) {
	if len(raw) == 0 {
		if t == TypeText {
			return nil, nil
		}
		return nil, fmt.Errorf("missing payload for %s message", t)
	}
	var p Payload
	switch t {
	case TypeText:
		return nil, nil
	case TypeImage, TypeVideo, TypeDocument:
		p = &Attachment{}
	case TypeLocation:
		p = &Location{}
	case TypeContact:
		p = &Contact{}
	case TypePoll:
		p = &Poll{}
	default:
		return nil, fmt.Errorf("unknown message type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return p, nil
}
