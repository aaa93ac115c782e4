package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
	"directchat/internal/service"
)

func TestListContactsOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	me := f.user(t, "me")
	f.user(t, "zed")
	f.user(t, "amy")
	bob := f.user(t, "bob")
	cat := f.user(t, "cat")

	_, err := f.svc.SendText(ctx, me, bob, "first")
	require.NoError(t, err)
	_, err = f.svc.SendPoll(ctx, cat, me, "Lunch?", []string{"Pizza", "Sushi"}, false)
	require.NoError(t, err)

	users := service.NewUserService(f.users, f.msgs)
	contacts, err := users.ListContacts(ctx, me)
	require.NoError(t, err)

	var order []string
	for _, c := range contacts {
		order = append(order, c.ID)
	}
	assert.Equal(t, []string{"cat", "bob", "amy", "zed"}, order)
	assert.Equal(t, "Poll: Lunch?", contacts[0].LastMessage)
	assert.Equal(t, "first", contacts[1].LastMessage)
	assert.Nil(t, contacts[2].LastMessageTime)

	raw, err := json.Marshal(contacts[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"_id":"bob"`)
	assert.Contains(t, string(raw), `"lastMessage":"first"`)
	assert.NotContains(t, string(raw), "hashed")
}

func TestBlockList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, b := f.user(t, "a"), f.user(t, "b")
	users := service.NewUserService(f.users, f.msgs)

	assert.ErrorIs(t, users.Block(ctx, a, a), domain.ErrValidation)
	assert.ErrorIs(t, users.Block(ctx, a, "ghost"), domain.ErrNotFound)

	require.NoError(t, users.Block(ctx, a, b))
	require.NoError(t, users.Block(ctx, a, b))
	blocked, err := users.ListBlocked(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, blocked)

	_, err = f.svc.SendText(ctx, b, a, "hi")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, users.Unblock(ctx, a, b))
	blocked, err = users.ListBlocked(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, blocked)
}

func TestContactPreviewRespectsViewer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	ann, bob := f.user(t, "ann"), f.user(t, "bob")
	users := service.NewUserService(f.users, f.msgs)

	_, err := f.svc.SendText(ctx, ann, bob, "unsolicited secret")
	require.NoError(t, err)

	contacts, err := users.ListContacts(ctx, bob)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Empty(t, contacts[0].LastMessage)
	assert.Nil(t, contacts[0].LastMessageTime)

	contacts, err = users.ListContacts(ctx, ann)
	require.NoError(t, err)
	assert.Equal(t, "unsolicited secret", contacts[0].LastMessage)

	require.NoError(t, f.svc.ClearForCaller(ctx, ann, bob))
	contacts, err = users.ListContacts(ctx, ann)
	require.NoError(t, err)
	assert.Empty(t, contacts[0].LastMessage)
}
