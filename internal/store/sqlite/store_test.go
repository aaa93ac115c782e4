package sqlite_test

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
	"directchat/internal/security"
	"directchat/internal/store/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUser(t *testing.T, users *sqlite.UserRepo, name string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:             uuid.NewString(),
		Fullname:       name,
		Email:          name + "@example.com",
		HashedPassword: "x",
		CreatedAt:      time.Now(),
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func textMessage(t *testing.T, from, to string, body string, status domain.MessageStatus, at time.Time) *domain.Message {
	t.Helper()
	m, err := domain.NewMessage(uuid.NewString(), from, to, domain.TypeText, body, nil, status, at)
	require.NoError(t, err)
	return m
}

func TestUserRepo(t *testing.T) {
	ctx := context.Background()
	users := sqlite.NewUserRepo(openTestDB(t))

	alice := seedUser(t, users, "alice")
	bob := seedUser(t, users, "bob")

	got, err := users.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, alice.ID, got.ID)

	missing, err := users.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := &domain.User{ID: uuid.NewString(), Fullname: "a2", Email: alice.Email, HashedPassword: "x", CreatedAt: time.Now()}
	assert.ErrorIs(t, users.Create(ctx, dup), domain.ErrConflict)

	others, err := users.ListExcept(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, others, 1)
	assert.Equal(t, bob.ID, others[0].ID)

	require.NoError(t, users.Block(ctx, alice.ID, bob.ID))
	require.NoError(t, users.Block(ctx, alice.ID, bob.ID))
	blocked, err := users.IsBlocked(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, blocked)
	reverse, err := users.IsBlocked(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, reverse)

	ids, err := users.ListBlocked(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{bob.ID}, ids)

	require.NoError(t, users.Unblock(ctx, alice.ID, bob.ID))
	blocked, err = users.IsBlocked(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestCreateInConversationReusesPair(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")

	exists, err := msgs.ExistsBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.False(t, exists)

	now := time.Now()
	m1 := textMessage(t, a.ID, b.ID, "hi", domain.StatusPending, now)
	c1, err := msgs.CreateInConversation(ctx, m1)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, m1.ConversationID)

	m2 := textMessage(t, b.ID, a.ID, "hey", domain.StatusSent, now.Add(time.Second))
	c2, err := msgs.CreateInConversation(ctx, m2)
	require.NoError(t, err)
	assert.Equal(t, c1.ID, c2.ID)
	assert.Equal(t, domain.MemberPair(a.ID, b.ID), c2.Members)

	found, err := convs.FindByMembers(ctx, b.ID, a.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, c1.ID, found.ID)

	exists, err = msgs.ExistsBetween(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	latest, err := msgs.LatestBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, m2.ID, latest.ID)
}

func TestListForConversationFilters(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	now := time.Now()

	req := textMessage(t, a.ID, b.ID, "request", domain.StatusPending, now)
	conv, err := msgs.CreateInConversation(ctx, req)
	require.NoError(t, err)
	reply := textMessage(t, a.ID, b.ID, "second", domain.StatusSent, now.Add(time.Second))
	_, err = msgs.CreateInConversation(ctx, reply)
	require.NoError(t, err)

	// The receiver does not see the pending request in the feed; the sender does.
	forB, err := msgs.ListForConversation(ctx, conv.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, reply.ID, forB[0].ID)

	forA, err := msgs.ListForConversation(ctx, conv.ID, a.ID)
	require.NoError(t, err)
	require.Len(t, forA, 2)
	assert.Equal(t, req.ID, forA[0].ID)
	assert.Equal(t, reply.ID, forA[1].ID)

	require.NoError(t, msgs.HideForUser(ctx, conv.ID, a.ID))
	require.NoError(t, msgs.HideForUser(ctx, conv.ID, a.ID))
	forA, err = msgs.ListForConversation(ctx, conv.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, forA)

	forB, err = msgs.ListForConversation(ctx, conv.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, forB, 1)
	assert.Equal(t, []string{a.ID}, forB[0].DeletedBy)
}

func TestLatestBetweenIsViewerScoped(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	now := time.Now()

	req := textMessage(t, a.ID, b.ID, "unsolicited", domain.StatusPending, now)
	conv, err := msgs.CreateInConversation(ctx, req)
	require.NoError(t, err)

	latest, err := msgs.LatestBetween(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "a pending request is not the receiver's latest message")

	latest, err = msgs.LatestBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, req.ID, latest.ID)

	require.NoError(t, msgs.HideForUser(ctx, conv.ID, a.ID))
	latest, err = msgs.LatestBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "cleared messages are not previewed")

	reply := textMessage(t, b.ID, a.ID, "after clear", domain.StatusSent, now.Add(time.Second))
	_, err = msgs.CreateInConversation(ctx, reply)
	require.NoError(t, err)
	latest, err = msgs.LatestBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, reply.ID, latest.ID)
}

func TestStatusTransitionsAreConditional(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	m := textMessage(t, a.ID, b.ID, "hi", domain.StatusPending, time.Now())
	_, err := msgs.CreateInConversation(ctx, m)
	require.NoError(t, err)

	pending, err := msgs.ListPendingFor(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	ok, err := msgs.TransitionStatus(ctx, m.ID, domain.StatusPending, domain.StatusDelivered)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = msgs.TransitionStatus(ctx, m.ID, domain.StatusPending, domain.StatusDelivered)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = msgs.DeleteIfStatus(ctx, m.ID, domain.StatusPending)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := msgs.MarkSeen(ctx, m.ConversationID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = msgs.MarkSeen(ctx, m.ConversationID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSeen, got.Status)
}

func TestRejectLeavesDanglingRefUntilPruned(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	convs := sqlite.NewConversationRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	m := textMessage(t, a.ID, b.ID, "hi", domain.StatusPending, time.Now())
	conv, err := msgs.CreateInConversation(ctx, m)
	require.NoError(t, err)

	ok, err := msgs.DeleteIfStatus(ctx, m.ID, domain.StatusPending)
	require.NoError(t, err)
	assert.True(t, ok)

	gone, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	list, err := msgs.ListForConversation(ctx, conv.ID, a.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	pruned, err := convs.PruneDanglingRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	pruned, err = convs.PruneDanglingRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pruned)
}

func TestMutatePollPersistsVotes(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	msgs := sqlite.NewMessageRepo(db, nil)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	poll, err := domain.NewPoll("Lunch?", []string{"Pizza", "Sushi"}, false, uuid.NewString)
	require.NoError(t, err)
	m, err := domain.NewMessage(uuid.NewString(), a.ID, b.ID, domain.TypePoll, "", poll, domain.StatusSent, time.Now())
	require.NoError(t, err)
	_, err = msgs.CreateInConversation(ctx, m)
	require.NoError(t, err)

	pizza := poll.Options[0].ID
	updated, err := msgs.MutatePoll(ctx, m.ID, func(m *domain.Message) error {
		return m.Poll().Toggle(b.ID, pizza)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, updated.Poll().Options[0].Votes)

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Poll().Options[0].Votes)

	// A failing mutation leaves the row untouched.
	_, err = msgs.MutatePoll(ctx, m.ID, func(m *domain.Message) error {
		return m.Poll().Toggle(b.ID, "missing")
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	got, err = msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{b.ID}, got.Poll().Options[0].Votes)

	none, err := msgs.MutatePoll(ctx, "missing", func(*domain.Message) error { return nil })
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestBodiesAreEncryptedAtRest(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := sqlite.NewUserRepo(db)
	enc, err := security.NewEncryptor([]byte("test-key"), nil)
	require.NoError(t, err)
	msgs := sqlite.NewMessageRepo(db, enc)

	a := seedUser(t, users, "a")
	b := seedUser(t, users, "b")
	m := textMessage(t, a.ID, b.ID, "secret words", domain.StatusSent, time.Now())
	_, err = msgs.CreateInConversation(ctx, m)
	require.NoError(t, err)

	var raw string
	require.NoError(t, db.QueryRow(`SELECT body FROM messages WHERE id = ?`, m.ID).Scan(&raw))
	assert.NotEqual(t, "secret words", raw)

	got, err := msgs.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "secret words", got.Body)
}
