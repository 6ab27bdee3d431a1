package api

import (
	"fmt"
	"net/http"
	"shop-chat/auth"
	"shop-chat/contract"
	"shop-chat/domain"
	"shop-chat/errors"
	"shop-chat/protocol"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type loginResponse struct {
	Token     string `json:"token"`
	StaffID   string `json:"staffId"`
	ShopID    string `json:"shopId"`
	ExpiresAt string `json:"expiresAt"`
}

type replyRequest struct {
	Type    domain.MessageType `json:"type"`
	Content string             `json:"content" binding:"required"`
}

type statusRequest struct {
	Status domain.ConversationStatus `json:"status" binding:"required"`
}

type conversationResponse struct {
	ID             string                    `json:"id"`
	ShopID         string                    `json:"shopId"`
	CustomerID     string                    `json:"customerId"`
	Status         domain.ConversationStatus `json:"status"`
	CreatedAt      string                    `json:"createdAt"`
	LastActivityAt string                    `json:"lastActivityAt"`
}

type mediaResponse struct {
	Ref      string `json:"ref"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type searchHitResponse struct {
	MessageID      string  `json:"messageId"`
	ConversationID string  `json:"conversationId"`
	Seq            uint64  `json:"seq"`
	Score          float64 `json:"score"`
}

type statsResponse struct {
	Connections    int     `json:"connections"`
	Authenticated  int     `json:"authenticated"`
	Persisted      uint64  `json:"persisted"`
	Delivered      uint64  `json:"delivered"`
	Queued         uint64  `json:"queued"`
	Evicted        uint64  `json:"evicted"`
	WorkerRestarts uint64  `json:"workerRestarts"`
	CensoredWords  uint64  `json:"censoredWords"`
	ProcessRSS     uint64  `json:"processRss"`
	ProcessCPU     float64 `json:"processCpu"`
	ProcessStatus  string  `json:"processStatus,omitempty"`
	SampledAt      string  `json:"sampledAt"`
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// fail writes the error body shared by every route.
func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(errors.HTTPStatus(err), gin.H{
		"code":  errors.CodeOf(err),
		"error": errors.PublicMessage(err),
	})
}

func identity(c *gin.Context) (domain.Identity, bool) {
	id, ok := auth.IdentityFrom(c)
	if !ok {
		fail(c, errors.ErrNotAuthenticated)
	}
	return id, ok
}

func (s *Server) login(c *gin.Context) {
	var body loginRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}
	login, err := s.auth.Login(body.Email, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, loginResponse{
		Token:     login.Token,
		StaffID:   login.StaffID,
		ShopID:    login.ShopID,
		ExpiresAt: login.ExpiresAt.UTC().Format(timeLayout),
	})
}

func (s *Server) logout(c *gin.Context) {
	token, found := bearer(c)
	if !found {
		fail(c, errors.ErrNotAuthenticated)
		return
	}
	if err := s.auth.Logout(token); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) conversations(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	conversations, err := s.chat.Conversations(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(conversations, func(conv domain.Conversation, _ int) conversationResponse {
		return toConversationResponse(conv)
	}))
}

func (s *Server) reply(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var body replyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}
	msg, err := s.chat.Reply(c.Request.Context(), id, c.Param("id"), protocol.SendMessagePayload{
		ConversationID: c.Param("id"),
		Type:           body.Type,
		Content:        body.Content,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, protocol.ToNewMessage(msg))
}

func (s *Server) history(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	afterSeq, err := queryUint(c, "afterSeq")
	if err != nil {
		fail(c, err)
		return
	}
	limit, err := queryUint(c, "limit")
	if err != nil {
		fail(c, err)
		return
	}
	messages, err := s.chat.History(c.Request.Context(), id, c.Param("id"), afterSeq, c.Query("afterId"), int(limit))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) protocol.NewMessagePayload {
		return protocol.ToNewMessage(m)
	}))
}

func (s *Server) setStatus(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}
	conversation, err := s.chat.SetStatus(c.Request.Context(), id, c.Param("id"), body.Status)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toConversationResponse(conversation))
}

func (s *Server) upload(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}
	if s.maxUploadSize > 0 {
		// multipart overhead on top of the file itself
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadSize+1<<20)
	}
	header, err := c.FormFile("file")
	if err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrValidation, err))
		return
	}
	file, err := header.Open()
	if err != nil {
		fail(c, fmt.Errorf("%w: %v", errors.ErrInternal, err))
		return
	}
	defer func() { _ = file.Close() }()

	media, err := s.chat.Upload(header.Filename, file)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, mediaResponse{Ref: media.Ref, Name: media.Name, MimeType: media.MimeType, Size: media.Size})
}

func (s *Server) search(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}
	query := c.Query("q")
	if query == "" {
		fail(c, fmt.Errorf("%w: q is required", errors.ErrValidation))
		return
	}
	limit, err := queryUint(c, "limit")
	if err != nil {
		fail(c, err)
		return
	}
	hits, err := s.chat.Search(c.Request.Context(), id, query, int(limit))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, lo.Map(hits, func(h contract.SearchHit, _ int) searchHitResponse {
		return searchHitResponse{MessageID: h.MessageID, ConversationID: h.ConversationID, Seq: h.Seq, Score: h.Score}
	}))
}

func (s *Server) stats(c *gin.Context) {
	if _, ok := identity(c); !ok {
		return
	}
	st := s.chat.Stats()
	c.JSON(http.StatusOK, statsResponse{
		Connections:    st.Connections,
		Authenticated:  st.Authenticated,
		Persisted:      st.Persisted,
		Delivered:      st.Delivered,
		Queued:         st.Queued,
		Evicted:        st.Evicted,
		WorkerRestarts: st.WorkerRestarts,
		CensoredWords:  st.CensoredWords,
		ProcessRSS:     st.ProcessRSS,
		ProcessCPU:     st.ProcessCPU,
		ProcessStatus:  st.ProcessStatus,
		SampledAt:      st.SampledAt.UTC().Format(timeLayout),
	})
}

func toConversationResponse(conv domain.Conversation) conversationResponse {
	return conversationResponse{
		ID:             conv.ID,
		ShopID:         conv.ShopID,
		CustomerID:     conv.CustomerID,
		Status:         conv.Status,
		CreatedAt:      conv.CreatedAt.UTC().Format(timeLayout),
		LastActivityAt: conv.LastActivityAt.UTC().Format(timeLayout),
	}
}

func queryUint(c *gin.Context, name string) (uint64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a positive integer", errors.ErrValidation, name)
	}
	return value, nil
}

func bearer(c *gin.Context) (string, bool) {
	token, found := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	return token, found && token != ""
}
