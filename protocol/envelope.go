// Package protocol defines the JSON frames exchanged over the chat socket.
// Every frame is an Envelope whose Type selects the shape of Payload.
package protocol

import (
	"encoding/json"
	"fmt"
	"shop-chat/errors"

	"github.com/go-playground/validator/v10"
)

type Type string

const (
	Auth                  Type = "auth"
	AuthSuccess           Type = "auth_success"
	SendMessage           Type = "send_message"
	SendMultimediaMessage Type = "send_multimedia_message"
	MessageSent           Type = "message_sent"
	NewMessage            Type = "new_message"
	NewUserMessage        Type = "new_user_message"
	StaffMessage          Type = "staff_message"
	Typing                Type = "typing"
	Ping                  Type = "ping"
	Pong                  Type = "pong"
	ConnectionEstablished Type = "connection_established"
	Error                 Type = "error"
	History               Type = "history"
	HistoryEnd            Type = "history_end"
)

var validate = validator.New()

type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses a raw frame. It only checks the envelope itself,
// payloads are checked by Bind once the handler is known.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", errors.ErrMalformedEnvelope, err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", errors.ErrMalformedEnvelope)
	}
	return env, nil
}

// Bind decodes the payload into v and runs its validation tags.
func (e Envelope) Bind(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: missing payload for %s", errors.ErrValidation, e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrValidation, err)
	}
	return nil
}

func New(t Type, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: t}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: encode %s: %v", errors.ErrInternal, t, err)
	}
	return Envelope{Type: t, Payload: raw}, nil
}

func Encode(e Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// NewError builds the error frame for err. Internal details never leave the server.
func NewError(err error, requestType Type) Envelope {
	env, encErr := New(Error, ErrorPayload{
		Code:        errors.CodeOf(err),
		Message:     errors.PublicMessage(err),
		RequestType: requestType,
	})
	if encErr != nil {
		return Envelope{Type: Error}
	}
	return env
}
