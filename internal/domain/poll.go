package domain

import (
	"slices"
	"strings"
)

const (
	MinPollOptions = 2
	MaxPollOptions = 10
)

// PollOption is one choice of a poll and the users that picked it.
type PollOption struct {
	ID    string   `json:"id"`
	Text  string   `json:"text"`
	Votes []string `json:"votes"`
}

// Poll is the payload of a poll message.
type Poll struct {
	Question      string       `json:"question"`
	AllowMultiple bool         `json:"allowMultiple"`
	Options       []PollOption `json:"options"`
}

func (*Poll) payloadType() MessageType { return TypePoll }

// NewPoll validates and normalises a poll. Option texts are trimmed, empty
// and duplicate texts are dropped and the list is cut at MaxPollOptions.
func NewPoll(question string, texts []string, allowMultiple bool, newID func() string) (*Poll, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, Invalid("poll question is required")
	}

	seen := make(map[string]struct{}, len(texts))
	options := make([]PollOption, 0, MaxPollOptions)
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		options = append(options, PollOption{ID: newID(), Text: t, Votes: []string{}})
		if len(options) == MaxPollOptions {
			break
		}
	}
	if len(options) < MinPollOptions {
		return nil, Invalid("poll requires at least %d distinct options", MinPollOptions)
	}

	return &Poll{Question: question, AllowMultiple: allowMultiple, Options: options}, nil
}

// Option returns the option with the given id.
func (p *Poll) Option(id string) *PollOption {
	for i := range p.Options {
		if p.Options[i].ID == id {
			return &p.Options[i]
		}
	}
	return nil
}

// Toggle applies a vote by voterID on optionID.
//
// Single-select: the voter is removed from every option and put back on the
// target only if they were not already there, so clicking the current choice
// clears the vote and clicking another option moves it.
// Multi-select: only the target option is toggled.
func (p *Poll) Toggle(voterID, optionID string) error {
	target := p.Option(optionID)
	if target == nil {
		return ErrInvalidState
	}
	wasThere := slices.Contains(target.Votes, voterID)

	if p.AllowMultiple {
		if wasThere {
			target.Votes = removeVoter(target.Votes, voterID)
		} else {
			target.Votes = append(target.Votes, voterID)
		}
		return nil
	}

	for i := range p.Options {
		p.Options[i].Votes = removeVoter(p.Options[i].Votes, voterID)
	}
	if !wasThere {
		target.Votes = append(target.Votes, voterID)
	}
	return nil
}

// VotesOf returns the ids of the options voterID currently picks.
func (p *Poll) VotesOf(voterID string) []string {
	var ids []string
	for _, o := range p.Options {
		if slices.Contains(o.Votes, voterID) {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

func removeVoter(votes []string, voterID string) []string {
	out := votes[:0]
	for _, v := range votes {
		if v != voterID {
			out = append(out, v)
		}
	}
	if out == nil {
		return []string{}
	}
	return out
}
