package autoreply

import (
	"context"
	"log/slog"
	"shop-chat/domain"
	"shop-chat/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func newReplier(t *testing.T) *KeywordReplier {
	rules, err := DefaultRules()
	require.NoError(t, err)
	replier, err := NewKeywordReplier(slog.Default(), rules)
	require.NoError(t, err)
	return replier
}

func customerText(content string) domain.Message {
	return domain.Message{
		ConversationID: "conv-1",
		SenderRole:     domain.RoleCustomer,
		Type:           domain.MessageText,
		Content:        content,
	}
}

func TestKeywordReplier_Reply(t *testing.T) {
	replier := newReplier(t)

	tests := []struct {
		name     string
		content  string
		wantRule string
		wantLang string
		wantOK   bool
	}{
		{"english greeting", "Hello there", "greeting", "en", true},
		{"french keyword with accent", "Où en est ma livraison ?", "shipping", "fr", true},
		{"keyword inside another word is ignored", "this is nothing", "", "", false},
		{"multi word keyword", "Can you send me the TRACKING number?", "shipping", "en", true},
		{"no keyword", "What colours do you have?", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			reply, ok := replier.Reply(context.Background(), customerText(tt.content))
			req.Equal(tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			req.Equal(tt.wantRule, reply.Rule)
			req.Equal(tt.wantLang, reply.Language)
			req.NotEmpty(reply.Content)
		})
	}
}

func TestKeywordReplier_Ignores_Staff_And_Media(t *testing.T) {
	req := require.New(t)
	replier := newReplier(t)

	staff := customerText("hello")
	staff.SenderRole = domain.RoleStaff
	_, ok := replier.Reply(context.Background(), staff)
	req.False(ok)

	media := customerText("hello")
	media.Type = domain.MessageImage
	_, ok = replier.Reply(context.Background(), media)
	req.False(ok)
}

func TestNewKeywordReplier_Requires_Keywords(t *testing.T) {
	req := require.New(t)
	_, err := NewKeywordReplier(slog.Default(), []Rule{{Name: "empty"}})
	req.ErrorIs(err, errors.ErrEmptyRules)
}
