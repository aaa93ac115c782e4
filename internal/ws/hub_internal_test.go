package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
	"directchat/internal/logger"
)

// offlineClient has no socket; tests must never push it past its buffer.
func offlineClient(userID string, buffer int) *Client {
	return &Client{
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
		log:    logger.Discard(),
	}
}

func lastOnlineFrame(t *testing.T, c *Client) []string {
	t.Helper()
	var last []byte
	for {
		select {
		case f := <-c.send:
			last = f
			continue
		default:
		}
		break
	}
	require.NotNil(t, last)
	var fr struct {
		Event string   `json:"event"`
		Data  []string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(last, &fr))
	require.Equal(t, domain.EventOnlineUsers, fr.Event)
	return fr.Data
}

func TestConcurrentPresenceChangesEndOnCurrentSnapshot(t *testing.T) {
	const workers, rounds = 16, 50
	hub := NewHub(logger.Discard(), time.Minute, 0)

	observer := offlineClient("observer", 4*workers*rounds+8)
	hub.Attach(observer)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				c := offlineClient(fmt.Sprintf("user-%02d", w), 4*workers*rounds+8)
				hub.Attach(c)
				if r < rounds-1 || w%2 == 0 {
					hub.Detach(c)
				}
			}
		}(w)
	}
	wg.Wait()

	online := hub.Online()
	assert.Len(t, online, 1+workers/2)
	assert.Equal(t, online, lastOnlineFrame(t, observer))
}

func TestNotifyClosedClientCountsAsOffline(t *testing.T) {
	var buf bytes.Buffer
	hub := NewHub(slog.New(slog.NewTextHandler(&buf, nil)), time.Minute, 0)

	c := offlineClient("alice", 1)
	hub.Attach(c)
	<-c.send
	c.once.Do(func() { close(c.done) })

	hub.Notify("alice", domain.MessagesSeenEvent("bob"))
	assert.Empty(t, c.send)
	assert.NotContains(t, buf.String(), "dropping slow client")
	assert.True(t, hub.IsOnline("alice"), "only Detach removes a connection")
}
