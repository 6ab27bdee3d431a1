package storage

import (
	"context"
	"fmt"
	"log/slog"
	"shop-chat/domain"
	"shop-chat/errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

func newMessageRepository(t *testing.T, limit *int) *MessageRepository {
	db := newTestDB(t)
	repository := NewMessageRepository(db, slog.Default(), limit)
	t.Cleanup(func() { _ = repository.Close() })
	return repository
}

func customerMessage(conversationID, content string) domain.Message {
	return domain.Message{
		ConversationID: conversationID,
		ShopID:         "shop-1",
		SenderID:       "u1",
		SenderRole:     domain.RoleCustomer,
		Type:           domain.MessageText,
		Content:        content,
	}
}

func Test_Append_Assigns_Id_Seq_And_Timestamp(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	// When appending two messages to the same conversation
	first, err := repository.Append(ctx, customerMessage("conv-1", "hello"))
	req.NoError(err)
	second, err := repository.Append(ctx, customerMessage("conv-1", "anyone?"))
	req.NoError(err)

	// Then ids, timestamps and increasing positions are assigned
	req.NotEqual(uuid.Nil, first.ID)
	req.False(first.CreatedAt.IsZero())
	req.Equal(domain.Persisted, first.DeliveryState)
	req.Equal(uint64(1), first.Seq)
	req.Equal(uint64(2), second.Seq)

	// And another conversation has its own sequence
	other, err := repository.Append(ctx, customerMessage("conv-2", "hi"))
	req.NoError(err)
	req.Equal(uint64(1), other.Seq)
}

func Test_History_Returns_Messages_After_Cursor_In_Order(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	for i := 0; i < 5; i++ {
		_, err := repository.Append(ctx, customerMessage("conv-1", fmt.Sprintf("m%d", i)))
		req.NoError(err)
	}

	// When pulling after position 2
	messages, err := repository.History(ctx, "conv-1", 2, 0)
	req.NoError(err)

	// Then only later messages come back, oldest first
	req.Equal([]string{"m2", "m3", "m4"}, lo.Map(messages, func(m domain.Message, _ int) string { return m.Content }))
	req.Equal([]uint64{3, 4, 5}, lo.Map(messages, func(m domain.Message, _ int) uint64 { return m.Seq }))

	// And a limit truncates the page
	messages, err = repository.History(ctx, "conv-1", 0, 2)
	req.NoError(err)
	req.Len(messages, 2)
	req.Equal(uint64(1), messages[0].Seq)
}

func Test_History_Does_Not_Leak_Other_Conversations(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	_, err := repository.Append(ctx, customerMessage("conv-1", "mine"))
	req.NoError(err)
	_, err = repository.Append(ctx, customerMessage("conv-10", "not mine"))
	req.NoError(err)

	messages, err := repository.History(ctx, "conv-1", 0, 0)
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal("mine", messages[0].Content)
}

func Test_Concurrent_Appends_Get_Distinct_Positions(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repository.Append(ctx, customerMessage("conv-1", fmt.Sprintf("m%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	messages, err := repository.History(ctx, "conv-1", 0, 100)
	req.NoError(err)
	req.Len(messages, 50)
	seqs := lo.Map(messages, func(m domain.Message, _ int) uint64 { return m.Seq })
	req.Len(lo.Uniq(seqs), 50)
	for i := 1; i < len(seqs); i++ {
		req.Greater(seqs[i], seqs[i-1])
	}
}

func Test_Leased_Sequences_Are_Bounded(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)
	repository.maxSequences = 2

	for _, conversationID := range []string{"conv-a", "conv-b", "conv-c"} {
		_, err := repository.Append(ctx, customerMessage(conversationID, "hi"))
		req.NoError(err)
	}
	req.Len(repository.sequences, 2)
	req.NotContains(repository.sequences, "conv-a")

	// A released conversation keeps counting from where it stopped
	msg, err := repository.Append(ctx, customerMessage("conv-a", "again"))
	req.NoError(err)
	req.Equal(uint64(2), msg.Seq)
	req.Len(repository.sequences, 2)

	history, err := repository.History(ctx, "conv-a", 0, 10)
	req.NoError(err)
	req.Equal([]uint64{1, 2}, lo.Map(history, func(m domain.Message, _ int) uint64 { return m.Seq }))
}

func Test_Latest_Paginates_Backwards(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	limit := 2
	repository := newMessageRepository(t, &limit)

	for i := 0; i < 5; i++ {
		_, err := repository.Append(ctx, customerMessage("conv-1", fmt.Sprintf("m%d", i)))
		req.NoError(err)
	}

	// When reading the newest page
	page, cursor, err := repository.Latest(ctx, "conv-1", nil)
	req.NoError(err)
	req.Equal([]string{"m4", "m3"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))
	req.NotNil(cursor)

	// Then the cursor continues with older messages
	page, cursor, err = repository.Latest(ctx, "conv-1", cursor)
	req.NoError(err)
	req.Equal([]string{"m2", "m1"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))

	page, _, err = repository.Latest(ctx, "conv-1", cursor)
	req.NoError(err)
	req.Equal([]string{"m0"}, lo.Map(page, func(m domain.Message, _ int) string { return m.Content }))
}

func Test_UpdateDeliveryState_And_Locate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	msg, err := repository.Append(ctx, customerMessage("conv-1", "hello"))
	req.NoError(err)

	// When the fan-out reports a delivery
	req.NoError(repository.UpdateDeliveryState(ctx, msg.ConversationID, msg.Seq, domain.Delivered))

	// Then the message can be found by id with its new state
	conversationID, seq, err := repository.Locate(ctx, msg.ID)
	req.NoError(err)
	req.Equal("conv-1", conversationID)
	req.Equal(msg.Seq, seq)

	stored, err := repository.Get(ctx, conversationID, seq)
	req.NoError(err)
	req.Equal(domain.Delivered, stored.DeliveryState)
	req.Equal(msg.CreatedAt, stored.CreatedAt)
}

func Test_Unknown_Message_Is_Not_Found(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := newMessageRepository(t, nil)

	_, _, err := repository.Locate(ctx, uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)

	err = repository.UpdateDeliveryState(ctx, "conv-1", 42, domain.Queued)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Append_Refuses_Cancelled_Context(t *testing.T) {
	req := require.New(t)
	repository := newMessageRepository(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := repository.Append(ctx, customerMessage("conv-1", "late"))
	req.ErrorIs(err, errors.ErrInternal)
}
