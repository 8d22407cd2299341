// Package message defines the stored message record and the inbound webhook
// payload it is decoded from.
package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxTextLength is the maximum length of Text in characters (code points).
const MaxTextLength = 4096

// Message is a stored inbound message. Records are immutable once inserted.
type Message struct {
	ID         string
	From       string
	To         string
	Timestamp  string
	Text       *string
	ReceivedAt string
}

// Payload is the JSON body accepted on the webhook endpoint.
type Payload struct {
	MessageID *string `json:"message_id"`
	From      *string `json:"from"`
	To        *string `json:"to"`
	Timestamp *string `json:"ts"`
	Text      *string `json:"text,omitempty"`
}

// ErrMalformed marks a body that is not a JSON object at all.
var ErrMalformed = errors.New("malformed JSON body")

// ValidationError describes a payload field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Decode parses and validates a raw webhook body into a Message.
// It returns ErrMalformed (wrapped) for unparseable JSON and a
// *ValidationError for a well-formed body with missing or invalid fields.
func Decode(body []byte) (Message, error) {
	var p Payload
	dec := json.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Message{}, &ValidationError{Field: typeErr.Field, Reason: "must be a " + typeErr.Type.String()}
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return Message{}, fmt.Errorf("%w: trailing data after object", ErrMalformed)
	}
	return p.Message()
}

// Message validates the payload and converts it into a Message.
func (p Payload) Message() (Message, error) {
	required := []struct {
		field string
		value *string
	}{
		{"message_id", p.MessageID},
		{"from", p.From},
		{"to", p.To},
		{"ts", p.Timestamp},
	}
	for _, r := range required {
		if r.value == nil {
			return Message{}, &ValidationError{Field: r.field, Reason: "field required"}
		}
		if *r.value == "" {
			return Message{}, &ValidationError{Field: r.field, Reason: "must not be empty"}
		}
	}

	if p.Text != nil && utf8.RuneCountInString(*p.Text) > MaxTextLength {
		return Message{}, &ValidationError{
			Field:  "text",
			Reason: fmt.Sprintf("must be at most %d characters", MaxTextLength),
		}
	}

	return Message{
		ID:        *p.MessageID,
		From:      *p.From,
		To:        *p.To,
		Timestamp: *p.Timestamp,
		Text:      p.Text,
	}, nil
}
