package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorsAreExported(t *testing.T) {
	MessagesCreated.WithLabelValues("text", "pending").Inc()
	EventsEmitted.WithLabelValues("newMessage", OutcomeOffline).Inc()
	OnlineUsers.Set(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `directchat_messages_created_total{status="pending",type="text"}`)
	assert.Contains(t, string(body), `directchat_events_emitted_total{event="newMessage",outcome="offline"}`)
	assert.Contains(t, string(body), "directchat_online_users 3")
}
