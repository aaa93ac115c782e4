// Package natsbus mirrors emitted real-time events onto NATS so other
// processes can observe them.
package natsbus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"directchat/internal/domain"
	"directchat/internal/metrics"
)

// Publisher is the part of *nats.Conn the tap needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Envelope is the body of every mirrored event.
type Envelope struct {
	UserID string    `json:"userId"`
	Event  string    `json:"event"`
	Data   any       `json:"data"`
	At     time.Time `json:"at"`
}

// Tap is a domain.EventSink publishing each event on <prefix>.<userId>.<event>.
type Tap struct {
	pub    Publisher
	prefix string
	log    *slog.Logger
	now    func() time.Time
}

var _ domain.EventSink = (*Tap)(nil)

func NewTap(pub Publisher, prefix string, log *slog.Logger) *Tap {
	if prefix == "" {
		prefix = "directchat.events"
	}
	return &Tap{pub: pub, prefix: prefix, log: log, now: time.Now}
}

// Subject returns the subject an event for userID is published on.
func (t *Tap) Subject(userID, event string) string {
	return fmt.Sprintf("%s.%s.%s", t.prefix, token(userID), token(event))
}

// Notify never blocks on the network; nats.Conn buffers publishes and
// failures are only logged.
func (t *Tap) Notify(userID string, ev domain.Event) {
	data, err := json.Marshal(Envelope{UserID: userID, Event: ev.Name, Data: ev.Payload, At: t.now().UTC()})
	if err != nil {
		t.log.Error("encode nats event", "event", ev.Name, "err", err)
		return
	}
	if err := t.pub.Publish(t.Subject(userID, ev.Name), data); err != nil {
		metrics.EventsEmitted.WithLabelValues(ev.Name, metrics.OutcomeDropped).Inc()
		t.log.Warn("nats publish failed", "event", ev.Name, "user", userID, "err", err)
	}
}

var subjectReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return subjectReplacer.Replace(s)
}

// Connect dials url with reconnect handling that reports through log.
func Connect(url, name string, log *slog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return nc, nil
}
