package runtime

import (
	"context"
	"fmt"
	"shop-chat/domain"
	"shop-chat/domain/event"
	"shop-chat/errors"
	"shop-chat/mocks"
	"shop-chat/protocol"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// Scenario A: a customer message reaches the staff of the shop and is acknowledged.
func TestRouter_Customer_Message_Reaches_Staff(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	staffConn := f.connectStaff("s1", "staff-1")
	customerConn, success := f.connectCustomer("c1", "u1")

	msg, err := f.router.Send(ctx, "c1", protocol.SendMessagePayload{Content: "Hello", ClientMsgID: "local-1"})
	req.NoError(err)
	req.Equal(domain.Delivered, msg.DeliveryState)

	acks := customerConn.SentOfType(protocol.MessageSent)
	req.Len(acks, 1)
	ack := bind[protocol.MessageSentPayload](t, acks[0])
	req.Equal(msg.ID.String(), ack.ID)
	req.Equal(success.ConversationID, ack.ConversationID)
	req.Equal("local-1", ack.ClientMsgID)
	req.False(ack.Timestamp.IsZero())

	pushed := staffConn.SentOfType(protocol.NewUserMessage)
	req.Len(pushed, 1)
	payload := bind[protocol.NewUserMessagePayload](t, pushed[0])
	req.Equal(f.shop.ID, payload.ShopID)
	req.Equal("u1", payload.UserID)
	req.Equal("Hello", payload.Message)
	req.Equal(domain.MessageText, payload.Type)

	// The customer does not get its own message pushed back
	req.Empty(customerConn.SentOfType(protocol.NewUserMessage))

	stored, err := f.messages.Get(ctx, success.ConversationID, msg.Seq)
	req.NoError(err)
	req.Equal(domain.Delivered, stored.DeliveryState)
}

// Scenario B: a staff reply is pushed to the live customer, or stored as queued.
func TestRouter_Staff_Reply(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.connectStaff("s1", "staff-1")
	customerConn, success := f.connectCustomer("c1", "u1")

	msg, err := f.router.Send(ctx, "s1", protocol.SendMessagePayload{ConversationID: success.ConversationID, Content: "Hi, how can I help?"})
	req.NoError(err)
	req.Equal(domain.Delivered, msg.DeliveryState)

	pushed := customerConn.SentOfType(protocol.StaffMessage)
	req.Len(pushed, 1)
	payload := bind[protocol.StaffMessagePayload](t, pushed[0])
	req.Equal("Hi, how can I help?", payload.Content)
	req.Equal("staff-1", payload.StaffID)

	// When the customer is gone
	f.registry.Evict("c1", "test")
	offline, err := f.router.Send(ctx, "s1", protocol.SendMessagePayload{ConversationID: success.ConversationID, Content: "Still there?"})
	req.NoError(err)
	req.Equal(domain.Queued, offline.DeliveryState)

	// Then the reply is found by a history pull after reconnecting
	f.connectCustomer("c2", "u1")
	identity := domain.Identity{ShopID: f.shop.ID, UserID: "u1", Role: domain.RoleCustomer}
	history, _, err := f.router.History(ctx, identity, success.ConversationID, msg.Seq, "", 0)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(offline.ID, history[0].ID)
	req.Equal("Still there?", history[0].Content)
	req.Equal(domain.Queued, history[0].DeliveryState)
}

func TestRouter_Reply_From_Http(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	customerConn, success := f.connectCustomer("c1", "u1")
	staff := domain.Identity{ShopID: f.shop.ID, UserID: "staff-1", Role: domain.RoleStaff}

	msg, err := f.router.Reply(ctx, staff, success.ConversationID, protocol.SendMessagePayload{Content: "From the console"})
	req.NoError(err)
	req.Equal(domain.Delivered, msg.DeliveryState)
	req.Len(customerConn.SentOfType(protocol.StaffMessage), 1)

	// Customers cannot use the staff entry point
	customer := domain.Identity{ShopID: f.shop.ID, UserID: "u1", Role: domain.RoleCustomer}
	_, err = f.router.Reply(ctx, customer, success.ConversationID, protocol.SendMessagePayload{Content: "x"})
	req.ErrorIs(err, errors.ErrAuthentication)

	// Another shop's staff does not see the conversation
	stranger := domain.Identity{ShopID: "other-shop", UserID: "staff-2", Role: domain.RoleStaff}
	_, err = f.router.Reply(ctx, stranger, success.ConversationID, protocol.SendMessagePayload{Content: "x"})
	req.ErrorIs(err, errors.ErrConversationNotFound)
}

func TestRouter_Rejects_Invalid_Messages(t *testing.T) {
	tests := []struct {
		name    string
		payload protocol.SendMessagePayload
		target  error
	}{
		{name: "empty", payload: protocol.SendMessagePayload{Content: "   "}, target: errors.ErrEmptyContent},
		{name: "too long", payload: protocol.SendMessagePayload{Content: strings.Repeat("a", testMaxContentLength+1)}, target: errors.ErrContentTooLong},
		{name: "unknown type", payload: protocol.SendMessagePayload{Type: "video", Content: "x"}, target: errors.ErrInvalidMessageType},
		{name: "media without store", payload: protocol.SendMessagePayload{Type: domain.MessageFile, Content: "ref"}, target: errors.ErrMediaNotFound},
		{name: "foreign conversation", payload: protocol.SendMessagePayload{ConversationID: "other", Content: "x"}, target: errors.ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			f := newFixture(t)
			conn, _ := f.connectCustomer("c1", "u1")

			_, err := f.router.Send(context.Background(), "c1", tt.payload)
			req.ErrorIs(err, tt.target)
			req.Empty(conn.SentOfType(protocol.MessageSent))
		})
	}
}

func TestRouter_Requires_Authentication(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	f.open("c1")

	_, err := f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "Hello"})
	req.ErrorIs(err, errors.ErrNotAuthenticated)
	req.Equal(errors.CodeAuthentication, errors.CodeOf(err))
}

func TestRouter_Staff_Must_Name_An_Active_Conversation(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.connectStaff("s1", "staff-1")
	_, success := f.connectCustomer("c1", "u1")

	_, err := f.router.Send(ctx, "s1", protocol.SendMessagePayload{Content: "Hello"})
	req.ErrorIs(err, errors.ErrConversationNotFound)

	_, err = f.conversations.SetStatus(ctx, success.ConversationID, domain.ConversationClosed)
	req.NoError(err)
	_, err = f.router.Send(ctx, "s1", protocol.SendMessagePayload{ConversationID: success.ConversationID, Content: "Hello"})
	req.ErrorIs(err, errors.ErrConversationNotActive)
}

type mediaResolver map[string]domain.Media

func (m mediaResolver) Resolve(ref string) (domain.Media, error) {
	media, ok := m[ref]
	if !ok {
		return domain.Media{}, errors.ErrMediaNotFound
	}
	return media, nil
}

func TestRouter_Media_Messages(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	f.router.media = mediaResolver{
		"photo.png": {Ref: "photo.png", MimeType: "image/png"},
		"doc.pdf":   {Ref: "doc.pdf", MimeType: "application/pdf"},
	}
	staffConn := f.connectStaff("s1", "staff-1")
	f.connectCustomer("c1", "u1")

	image := protocol.SendMultimediaPayload{Type: domain.MessageImage, MediaRef: "photo.png"}
	msg, err := f.router.Send(ctx, "c1", image.ToSend())
	req.NoError(err)
	req.Equal(domain.MessageImage, msg.Type)
	req.Equal("photo.png", msg.Content)
	req.Len(staffConn.SentOfType(protocol.NewUserMessage), 1)

	file := protocol.SendMultimediaPayload{Type: domain.MessageFile, MediaRef: "doc.pdf"}
	_, err = f.router.Send(ctx, "c1", file.ToSend())
	req.NoError(err)

	// A pdf is not an image
	wrong := protocol.SendMultimediaPayload{Type: domain.MessageImage, MediaRef: "doc.pdf"}
	_, err = f.router.Send(ctx, "c1", wrong.ToSend())
	req.ErrorIs(err, errors.ErrInvalidMedia)

	unknown := protocol.SendMultimediaPayload{Type: domain.MessageFile, MediaRef: "nope"}
	_, err = f.router.Send(ctx, "c1", unknown.ToSend())
	req.ErrorIs(err, errors.ErrNotFound)
}

// A failing store aborts the send only: no ack, no push, the socket stays open.
func TestRouter_Persistence_Failure(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	staffConn := f.connectStaff("s1", "staff-1")
	customerConn, _ := f.connectCustomer("c1", "u1")

	repository := mocks.NewMockIMessageRepository(ctrl)
	repository.EXPECT().
		Append(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("disk full")).
		Times(1)
	fanout := NewFanout(f.log, f.registry, repository, f.telemetry, time.Second)
	router := NewRouter(f.log, f.registry, f.conversations, repository, fanout, nil, f.telemetry, testMaxContentLength, time.Second)

	_, err := router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "Hello"})
	req.ErrorIs(err, errors.ErrInternal)
	req.Equal(errors.CodeInternal, errors.CodeOf(err))
	req.NotContains(errors.PublicMessage(err), "disk full")

	req.Empty(customerConn.SentOfType(protocol.MessageSent))
	req.Empty(staffConn.SentOfType(protocol.NewUserMessage))
	closed, _ := customerConn.Closed()
	req.False(closed)
	_, ok := f.registry.Get("c1")
	req.True(ok)
}

// A message accepted for persistence survives the sender going away.
func TestRouter_Sender_Cancellation_Does_Not_Abort_Persistence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	staffConn := f.connectStaff("s1", "staff-1")
	_, success := f.connectCustomer("c1", "u1")

	ctx, cancel := context.WithCancel(context.Background())
	msg, err := f.router.Send(ctx, "c1", protocol.SendMessagePayload{Content: "Hello"})
	cancel()
	req.NoError(err)

	stored, err := f.messages.Get(context.Background(), success.ConversationID, msg.Seq)
	req.NoError(err)
	req.Equal("Hello", stored.Content)
	req.Len(staffConn.SentOfType(protocol.NewUserMessage), 1)
}

// Staff writing concurrently into one conversation: the customer sees store order.
func TestRouter_Fanout_Follows_Store_Order(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	customerConn, success := f.connectCustomer("c1", "u1")
	f.connectStaff("s1", "staff-1")
	f.connectStaff("s2", "staff-2")

	const perStaff = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perStaff)
	for _, staffConn := range []string{"s1", "s2"} {
		wg.Add(1)
		go func(connID string) {
			defer wg.Done()
			for i := 0; i < perStaff; i++ {
				_, err := f.router.Send(context.Background(), connID, protocol.SendMessagePayload{
					ConversationID: success.ConversationID,
					Content:        fmt.Sprintf("%s-%d", connID, i),
				})
				errs <- err
			}
		}(staffConn)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	pushed := customerConn.SentOfType(protocol.StaffMessage)
	req.Len(pushed, 2*perStaff)
	var last uint64
	for _, env := range pushed {
		payload := bind[protocol.StaffMessagePayload](t, env)
		req.Greater(payload.Seq, last)
		last = payload.Seq
	}
}

// A dead staff socket is evicted and does not fail the customer's send.
func TestRouter_Dead_Recipient_Is_Evicted(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	dead := f.connectStaff("s1", "staff-1")
	alive := f.connectStaff("s2", "staff-2")
	customerConn, _ := f.connectCustomer("c1", "u1")
	dead.FailWith(errors.ErrConnectionClosed)
	f.drain()

	msg, err := f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "Hello"})
	req.NoError(err)
	req.Equal(domain.Delivered, msg.DeliveryState)
	req.Len(customerConn.SentOfType(protocol.MessageSent), 1)
	req.Len(alive.SentOfType(protocol.NewUserMessage), 1)

	req.ElementsMatch([]string{"s2", "c1"}, f.registry.LookupTenant(f.shop.ID))
	closed, reason := dead.Closed()
	req.True(closed)
	req.Equal(domain.ReasonWriteFailed, reason)

	types := eventTypes(f.drain())
	req.Contains(types, event.ConnectionEvictedType)
	req.Contains(types, event.DeliveryCompletedType)
}

func TestRouter_Typing_Is_Forwarded_Not_Stored(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	staffConn := f.connectStaff("s1", "staff-1")
	_, success := f.connectCustomer("c1", "u1")

	req.NoError(f.router.Typing(ctx, "c1", protocol.TypingPayload{IsTyping: true}))

	pushed := staffConn.SentOfType(protocol.Typing)
	req.Len(pushed, 1)
	payload := bind[protocol.TypingPayload](t, pushed[0])
	req.Equal(success.ConversationID, payload.ConversationID)
	req.Equal("u1", payload.UserID)
	req.True(payload.IsTyping)

	history, err := f.messages.History(ctx, success.ConversationID, 0, 10)
	req.NoError(err)
	req.Empty(history)
}

type wordCensor struct{ word string }

func (c wordCensor) Censor(original string) (string, []string) {
	if !strings.Contains(original, c.word) {
		return original, nil
	}
	return strings.ReplaceAll(original, c.word, strings.Repeat("*", len(c.word))), []string{c.word}
}

func TestRouter_Censors_Text_Before_Storing(t *testing.T) {
	req := require.New(t)
	f := newFixture(t, WithCensor(wordCensor{word: "darn"}))
	staffConn := f.connectStaff("s1", "staff-1")
	f.connectCustomer("c1", "u1")
	f.drain()

	msg, err := f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "darn parcel"})
	req.NoError(err)
	req.Equal("**** parcel", msg.Content)

	payload := bind[protocol.NewUserMessagePayload](t, staffConn.SentOfType(protocol.NewUserMessage)[0])
	req.Equal("**** parcel", payload.Message)
	req.Contains(eventTypes(f.drain()), event.CensorshipHit)
}

func TestRouter_Hands_Customer_Messages_To_Auto_Reply(t *testing.T) {
	req := require.New(t)
	ch := make(chan domain.Message, 1)
	f := newFixture(t, WithAutoReply(ch))
	_, success := f.connectCustomer("c1", "u1")
	f.connectStaff("s1", "staff-1")

	msg, err := f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "hello"})
	req.NoError(err)
	req.Equal(msg.ID, (<-ch).ID)

	// Staff messages are never answered automatically
	_, err = f.router.Send(context.Background(), "s1", protocol.SendMessagePayload{ConversationID: success.ConversationID, Content: "hello"})
	req.NoError(err)
	req.Empty(ch)

	// A full channel never blocks a send
	_, err = f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "one"})
	req.NoError(err)
	_, err = f.router.Send(context.Background(), "c1", protocol.SendMessagePayload{Content: "two"})
	req.NoError(err)
	req.Len(ch, 1)
}

func TestRouter_PostAutoReply(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	customerConn, success := f.connectCustomer("c1", "u1")

	msg, err := f.router.PostAutoReply(context.Background(), success.ConversationID, "We ship in 48h")
	req.NoError(err)
	req.Equal(domain.RoleStaff, msg.SenderRole)
	req.Equal(AutoReplySenderID, msg.SenderID)

	payload := bind[protocol.StaffMessagePayload](t, customerConn.SentOfType(protocol.StaffMessage)[0])
	req.Equal("We ship in 48h", payload.Content)
	req.Equal(AutoReplySenderID, payload.StaffID)
}

func TestRouter_History(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	f := newFixture(t)
	_, success := f.connectCustomer("c1", "u1")

	var sent []domain.Message
	for i := 0; i < 5; i++ {
		msg, err := f.router.Send(ctx, "c1", protocol.SendMessagePayload{Content: fmt.Sprintf("m%d", i)})
		req.NoError(err)
		sent = append(sent, msg)
	}
	customer := domain.Identity{ShopID: f.shop.ID, UserID: "u1", Role: domain.RoleCustomer}
	staff := domain.Identity{ShopID: f.shop.ID, UserID: "staff-1", Role: domain.RoleStaff}

	// After an id
	history, cursor, err := f.router.History(ctx, customer, success.ConversationID, 0, sent[1].ID.String(), 10)
	req.NoError(err)
	req.Equal(sent[1].Seq, cursor)
	req.Len(history, 3)
	req.Equal("m2", history[0].Content)
	req.Equal("m4", history[2].Content)

	// After a seq, limited
	history, cursor, err = f.router.History(ctx, staff, success.ConversationID, sent[0].Seq, "", 2)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal("m1", history[0].Content)
	req.Equal(sent[0].Seq, cursor)

	// Another customer cannot read it
	other := domain.Identity{ShopID: f.shop.ID, UserID: "u2", Role: domain.RoleCustomer}
	_, _, err = f.router.History(ctx, other, success.ConversationID, 0, "", 10)
	req.ErrorIs(err, errors.ErrConversationNotFound)

	_, _, err = f.router.History(ctx, customer, success.ConversationID, 0, "not-a-uuid", 10)
	req.ErrorIs(err, errors.ErrValidation)
}

func eventTypes(events []event.Event) []event.Type {
	types := make([]event.Type, 0, len(events))
	for _, evt := range events {
		types = append(types, evt.Type)
	}
	return types
}
