package domain_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"directchat/internal/domain"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("opt-%d", n)
	}
}

func TestNewPoll(t *testing.T) {
	t.Run("TrimsAndDeduplicates", func(t *testing.T) {
		p, err := domain.NewPoll("  Lunch? ", []string{" Pizza", "Sushi ", "Pizza", "", "   "}, false, seqIDs())
		require.NoError(t, err)
		assert.Equal(t, "Lunch?", p.Question)
		require.Len(t, p.Options, 2)
		assert.Equal(t, "Pizza", p.Options[0].Text)
		assert.Equal(t, "Sushi", p.Options[1].Text)
		assert.NotNil(t, p.Options[0].Votes)
	})

	t.Run("TruncatesAtTen", func(t *testing.T) {
		texts := make([]string, 14)
		for i := range texts {
			texts[i] = fmt.Sprintf("choice %d", i)
		}
		p, err := domain.NewPoll("Pick", texts, true, seqIDs())
		require.NoError(t, err)
		assert.Len(t, p.Options, domain.MaxPollOptions)
		assert.Equal(t, "choice 9", p.Options[9].Text)
	})

	t.Run("RequiresQuestion", func(t *testing.T) {
		_, err := domain.NewPoll("  ", []string{"a", "b"}, false, seqIDs())
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("RequiresTwoDistinctOptions", func(t *testing.T) {
		_, err := domain.NewPoll("Q", []string{"same", " same "}, false, seqIDs())
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestPollToggleSingleSelect(t *testing.T) {
	p, err := domain.NewPoll("Lunch?", []string{"Pizza", "Sushi"}, false, seqIDs())
	require.NoError(t, err)
	pizza, sushi := p.Options[0].ID, p.Options[1].ID

	require.NoError(t, p.Toggle("u2", pizza))
	assert.Equal(t, []string{"u2"}, p.Option(pizza).Votes)

	require.NoError(t, p.Toggle("u2", sushi))
	assert.Empty(t, p.Option(pizza).Votes)
	assert.Equal(t, []string{"u2"}, p.Option(sushi).Votes)
	assert.Equal(t, []string{sushi}, p.VotesOf("u2"))

	require.NoError(t, p.Toggle("u2", sushi))
	assert.Empty(t, p.Option(sushi).Votes)
	assert.Empty(t, p.VotesOf("u2"))
}

func TestPollToggleKeepsOtherVoters(t *testing.T) {
	p, err := domain.NewPoll("Lunch?", []string{"Pizza", "Sushi"}, false, seqIDs())
	require.NoError(t, err)
	pizza, sushi := p.Options[0].ID, p.Options[1].ID

	require.NoError(t, p.Toggle("u1", pizza))
	require.NoError(t, p.Toggle("u2", pizza))
	require.NoError(t, p.Toggle("u2", sushi))

	assert.Equal(t, []string{"u1"}, p.Option(pizza).Votes)
	assert.Equal(t, []string{"u2"}, p.Option(sushi).Votes)
}

func TestPollToggleMultiSelect(t *testing.T) {
	p, err := domain.NewPoll("Snacks", []string{"Chips", "Fruit", "Nuts"}, true, seqIDs())
	require.NoError(t, err)
	x, y := p.Options[0].ID, p.Options[1].ID

	require.NoError(t, p.Toggle("u1", y))
	require.NoError(t, p.Toggle("u1", x))
	assert.ElementsMatch(t, []string{x, y}, p.VotesOf("u1"))

	require.NoError(t, p.Toggle("u1", x))
	assert.Empty(t, p.Option(x).Votes)
	assert.Equal(t, []string{"u1"}, p.Option(y).Votes)
}

func TestPollToggleUnknownOption(t *testing.T) {
	p, err := domain.NewPoll("Q", []string{"a", "b"}, false, seqIDs())
	require.NoError(t, err)

	err = p.Toggle("u1", "nope")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}
