package search

import (
	"context"
	"fmt"
	"log/slog"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/errors"

	"github.com/blugelabs/bluge"
)

const (
	fieldID             = "_id"
	fieldContent        = "content"
	fieldShopID         = "shop_id"
	fieldConversationID = "conversation_id"
	fieldSeq            = "seq"
	defaultLimit        = 20
)

// MessageIndex is a full-text index of text messages, partitioned by shop at query time.
type MessageIndex struct {
	log    *slog.Logger
	writer *bluge.Writer
}

func NewMessageIndex(log *slog.Logger, writer *bluge.Writer) *MessageIndex {
	return &MessageIndex{log: log, writer: writer}
}

// Index adds or replaces the document of a message. Media references are not indexed.
func (i *MessageIndex) Index(msg domain.Message) error {
	if msg.Type != domain.MessageText {
		return nil
	}
	doc := bluge.NewDocument(msg.ID.String()).
		AddField(bluge.NewTextField(fieldContent, msg.Content)).
		AddField(bluge.NewKeywordField(fieldShopID, msg.ShopID).StoreValue()).
		AddField(bluge.NewKeywordField(fieldConversationID, msg.ConversationID).StoreValue()).
		AddField(bluge.NewNumericField(fieldSeq, float64(msg.Seq)).StoreValue())
	if err := i.writer.Update(doc.ID(), doc); err != nil {
		return fmt.Errorf("%w: index message: %v", errors.ErrInternal, err)
	}
	return nil
}

// Search runs a match query over message content, restricted to one shop.
func (i *MessageIndex) Search(ctx context.Context, shopID, query string, limit int) ([]contract.SearchHit, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", errors.ErrValidation)
	}
	if limit <= 0 || limit > 100 {
		limit = defaultLimit
	}
	reader, err := i.writer.Reader()
	if err != nil {
		return nil, fmt.Errorf("%w: open reader: %v", errors.ErrInternal, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			i.log.Warn("Unable to close search reader", "error", err)
		}
	}()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(query).SetField(fieldContent)).
		AddMust(bluge.NewTermQuery(shopID).SetField(fieldShopID))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, q))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %v", errors.ErrInternal, err)
	}

	hits := make([]contract.SearchHit, 0)
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := contract.SearchHit{Score: match.Score}
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.MessageID = string(value)
			case fieldConversationID:
				hit.ConversationID = string(value)
			case fieldSeq:
				if seq, decodeErr := bluge.DecodeNumericFloat64(value); decodeErr == nil {
					hit.Seq = uint64(seq)
				}
			}
			return true
		})
		if visitErr != nil {
			return nil, fmt.Errorf("%w: read hit: %v", errors.ErrInternal, visitErr)
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: iterate hits: %v", errors.ErrInternal, err)
	}
	return hits, nil
}
