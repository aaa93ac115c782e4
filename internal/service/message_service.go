package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"directchat/internal/domain"
	"directchat/internal/metrics"
)

// MessageService runs the admission workflow and the delivery state machine
// on top of the store, and pushes the resulting events to an EventSink.
//
// A first text message between two users who have never exchanged anything is
// held as pending until the receiver accepts or rejects it. Every other send
// goes straight to sent.
type MessageService struct {
	users    domain.UserRepository
	convs    domain.ConversationRepository
	messages domain.MessageRepository
	sink     domain.EventSink
	log      *slog.Logger

	now   func() time.Time
	newID func() string
}

// Option customises a MessageService.
type Option func(*MessageService)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *MessageService) { s.now = now }
}

// WithIDGenerator replaces the uuid generator used for messages and poll options.
func WithIDGenerator(newID func() string) Option {
	return func(s *MessageService) { s.newID = newID }
}

func NewMessageService(
	users domain.UserRepository,
	convs domain.ConversationRepository,
	messages domain.MessageRepository,
	sink domain.EventSink,
	log *slog.Logger,
	opts ...Option,
) *MessageService {
	s := &MessageService{
		users:    users,
		convs:    convs,
		messages: messages,
		sink:     sink,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AttachmentInput describes an uploaded file. Kind overrides the type derived
// from MimeType when set.
type AttachmentInput struct {
	Kind     domain.AttachmentKind
	URL      string
	Name     string
	MimeType string
	Size     int64
}

// SendText sends a text message. The first message between two users is
// admitted as pending and announced to the receiver as a message request.
func (s *MessageService) SendText(ctx context.Context, senderID, receiverID, body string) (*domain.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return nil, domain.Invalid("message is required")
	}
	sender, err := s.checkParties(ctx, senderID, receiverID)
	if err != nil {
		return nil, err
	}

	// Not serialised with the insert: two simultaneous first messages can
	// both be admitted as pending.
	exists, err := s.messages.ExistsBetween(ctx, senderID, receiverID)
	if err != nil {
		return nil, domain.Internal("find message between", err)
	}
	firstContact := !exists

	status := domain.StatusSent
	if firstContact {
		status = domain.StatusPending
	}
	m, err := domain.NewMessage(s.newID(), senderID, receiverID, domain.TypeText, body, nil, status, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, m); err != nil {
		return nil, err
	}

	s.sink.Notify(senderID, domain.NewMessageEvent(m))
	if firstContact {
		metrics.AdmissionDecisions.WithLabelValues("requested").Inc()
		s.sink.Notify(receiverID, domain.MessageRequestEvent(requestFor(m, sender)))
	} else {
		s.sink.Notify(receiverID, domain.NewMessageEvent(m))
	}
	return m, nil
}

// SendAttachment sends an image, video or document. Attachments skip the
// admission gate.
func (s *MessageService) SendAttachment(ctx context.Context, senderID, receiverID, caption string, in AttachmentInput) (*domain.Message, error) {
	if strings.TrimSpace(in.URL) == "" {
		return nil, domain.Invalid("attachment url is required")
	}
	kind := in.Kind
	if kind == "" {
		kind = domain.KindForMime(in.MimeType)
	} else if !kind.Valid() {
		return nil, domain.Invalid("unknown attachment kind %q", kind)
	}
	att := &domain.Attachment{
		Kind:     kind,
		URL:      strings.TrimSpace(in.URL),
		Name:     in.Name,
		MimeType: in.MimeType,
		Size:     in.Size,
	}
	return s.sendStructured(ctx, senderID, receiverID, domain.MessageType(kind), strings.TrimSpace(caption), att)
}

func (s *MessageService) SendLocation(ctx context.Context, senderID, receiverID string, lat, lng float64, label string) (*domain.Message, error) {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return nil, domain.Invalid("lat must be a number between -90 and 90")
	}
	if math.IsNaN(lng) || math.IsInf(lng, 0) || lng < -180 || lng > 180 {
		return nil, domain.Invalid("lng must be a number between -180 and 180")
	}
	loc := &domain.Location{Lat: lat, Lng: lng, Label: strings.TrimSpace(label)}
	return s.sendStructured(ctx, senderID, receiverID, domain.TypeLocation, "", loc)
}

func (s *MessageService) SendContact(ctx context.Context, senderID, receiverID string, c domain.Contact) (*domain.Message, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Email = strings.TrimSpace(c.Email)
	if c.Name == "" || c.Phone == "" {
		return nil, domain.Invalid("contact name and phone are required")
	}
	return s.sendStructured(ctx, senderID, receiverID, domain.TypeContact, "", &c)
}

func (s *MessageService) SendPoll(ctx context.Context, senderID, receiverID, question string, options []string, allowMultiple bool) (*domain.Message, error) {
	poll, err := domain.NewPoll(question, options, allowMultiple, s.newID)
	if err != nil {
		return nil, err
	}
	return s.sendStructured(ctx, senderID, receiverID, domain.TypePoll, "", poll)
}

// sendStructured persists a non-text message as sent and announces it to
// both participants.
func (s *MessageService) sendStructured(ctx context.Context, senderID, receiverID string, t domain.MessageType, body string, content domain.Payload) (*domain.Message, error) {
	if _, err := s.checkParties(ctx, senderID, receiverID); err != nil {
		return nil, err
	}
	m, err := domain.NewMessage(s.newID(), senderID, receiverID, t, body, content, domain.StatusSent, s.now())
	if err != nil {
		return nil, err
	}
	if err := s.persist(ctx, m); err != nil {
		return nil, err
	}
	s.sink.Notify(senderID, domain.NewMessageEvent(m))
	s.sink.Notify(receiverID, domain.NewMessageEvent(m))
	return m, nil
}

// Vote toggles voterID's vote on optionID and tells the other participant.
func (s *MessageService) Vote(ctx context.Context, messageID, voterID, optionID string) (*domain.Message, error) {
	var rejected error
	m, err := s.messages.MutatePoll(ctx, messageID, func(m *domain.Message) error {
		switch {
		case !m.Involves(voterID):
			rejected = fmt.Errorf("%w: not a participant of this poll", domain.ErrForbidden)
		case m.Type != domain.TypePoll || m.Poll() == nil:
			rejected = fmt.Errorf("%w: message is not a poll", domain.ErrInvalidState)
		default:
			if err := m.Poll().Toggle(voterID, optionID); err != nil {
				rejected = fmt.Errorf("%w: unknown poll option", err)
			}
		}
		return rejected
	})
	if rejected != nil {
		return nil, rejected
	}
	if err != nil {
		return nil, domain.Internal("vote", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
	}

	s.sink.Notify(m.Counterpart(voterID), domain.MessageUpdatedEvent(m))
	return m, nil
}

// ListPendingRequests returns the message requests waiting for userID, newest first.
func (s *MessageService) ListPendingRequests(ctx context.Context, userID string) ([]domain.MessageRequest, error) {
	pending, err := s.messages.ListPendingFor(ctx, userID)
	if err != nil {
		return nil, domain.Internal("list pending", err)
	}

	senders := make(map[string]*domain.User)
	out := make([]domain.MessageRequest, 0, len(pending))
	for _, m := range pending {
		sender, ok := senders[m.SenderID]
		if !ok {
			sender, err = s.users.GetByID(ctx, m.SenderID)
			if err != nil {
				return nil, domain.Internal("get sender", err)
			}
			senders[m.SenderID] = sender
		}
		out = append(out, requestFor(m, sender))
	}
	return out, nil
}

// AcceptPending admits a pending message. It moves to delivered exactly once.
func (s *MessageService) AcceptPending(ctx context.Context, messageID, callerID string) (*domain.Message, error) {
	m, err := s.loadPendingFor(ctx, messageID, callerID)
	if err != nil {
		return nil, err
	}

	ok, err := s.messages.TransitionStatus(ctx, m.ID, domain.StatusPending, domain.StatusDelivered)
	if err != nil {
		return nil, domain.Internal("accept pending", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: message is no longer pending", domain.ErrInvalidState)
	}
	m.Status = domain.StatusDelivered
	m.UpdatedAt = s.now()
	metrics.AdmissionDecisions.WithLabelValues("accepted").Inc()

	s.sink.Notify(callerID, domain.NewMessageEvent(m))
	return m, nil
}

// RejectPending deletes a pending message. Its conversation ref is left
// behind and pruned later.
func (s *MessageService) RejectPending(ctx context.Context, messageID, callerID string) error {
	m, err := s.loadPendingFor(ctx, messageID, callerID)
	if err != nil {
		return err
	}

	ok, err := s.messages.DeleteIfStatus(ctx, m.ID, domain.StatusPending)
	if err != nil {
		return domain.Internal("reject pending", err)
	}
	if !ok {
		return fmt.Errorf("%w: message is no longer pending", domain.ErrInvalidState)
	}
	metrics.AdmissionDecisions.WithLabelValues("rejected").Inc()
	return nil
}

func (s *MessageService) loadPendingFor(ctx context.Context, messageID, callerID string) (*domain.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, domain.Internal("get message", err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: message", domain.ErrNotFound)
	}
	if m.ReceiverID != callerID {
		return nil, fmt.Errorf("%w: only the receiver can answer a message request", domain.ErrForbidden)
	}
	if m.Status != domain.StatusPending {
		return nil, fmt.Errorf("%w: message is %s, not pending", domain.ErrInvalidState, m.Status)
	}
	return m, nil
}

// CheckSend reports whether senderID may send to receiverID right now. Upload
// routes call it before accepting a file.
func (s *MessageService) CheckSend(ctx context.Context, senderID, receiverID string) error {
	_, err := s.checkParties(ctx, senderID, receiverID)
	return err
}

// checkParties validates a send between two distinct, existing users that
// have not blocked each other, and returns the sender.
func (s *MessageService) checkParties(ctx context.Context, senderID, receiverID string) (*domain.User, error) {
	if senderID == receiverID {
		return nil, domain.Invalid("cannot send a message to yourself")
	}
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, domain.Internal("get sender", err)
	}
	if sender == nil {
		return nil, fmt.Errorf("%w: sender", domain.ErrNotFound)
	}
	receiver, err := s.users.GetByID(ctx, receiverID)
	if err != nil {
		return nil, domain.Internal("get receiver", err)
	}
	if receiver == nil {
		return nil, fmt.Errorf("%w: receiver", domain.ErrNotFound)
	}

	blocked, err := s.users.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return nil, domain.Internal("check block", err)
	}
	if blocked {
		return nil, fmt.Errorf("%w: you have blocked this user", domain.ErrForbidden)
	}
	blocked, err = s.users.IsBlocked(ctx, receiverID, senderID)
	if err != nil {
		return nil, domain.Internal("check block", err)
	}
	if blocked {
		return nil, fmt.Errorf("%w: you are blocked by this user", domain.ErrForbidden)
	}
	return sender, nil
}

func (s *MessageService) persist(ctx context.Context, m *domain.Message) error {
	if _, err := s.messages.CreateInConversation(ctx, m); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			s.log.Warn("send aborted", "sender", m.SenderID, "err", err)
		}
		return domain.Internal("create message", err)
	}
	metrics.MessagesCreated.WithLabelValues(string(m.Type), string(m.Status)).Inc()
	s.log.Debug("message stored", "id", m.ID, "type", m.Type, "status", m.Status)
	return nil
}

func requestFor(m *domain.Message, sender *domain.User) domain.MessageRequest {
	r := domain.MessageRequest{
		MessageID: m.ID,
		SenderID:  m.SenderID,
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
	}
	if sender != nil {
		r.SenderName = sender.Fullname
		r.SenderProfilePic = sender.ProfilePic
	}
	return r
}
