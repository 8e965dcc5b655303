package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrMissingType = errors.New("missing message type")
	ErrEmptyFrame  = errors.New("empty frame")
)

type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol: %s: %v", e.Reason, e.Err)
	}
	return "protocol: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

type wireMessage struct {
	Type     MessageType `json:"type"`
	Audio    *string     `json:"audio,omitempty"`
	MimeType string      `json:"mimeType,omitempty"`
	Text     *string     `json:"text,omitempty"`
	Message  string      `json:"message,omitempty"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Type}

	switch m.Type {
	case MessageTypeAudio:
		audio := EncodeAudio(m.Audio)
		w.Audio = &audio
		w.MimeType = m.MimeType
	case MessageTypeAudioResponse:
		audio := EncodeAudio(m.Audio)
		text := m.Text
		w.Audio = &audio
		w.Text = &text
	case MessageTypeError:
		w.Message = m.Error
	}

	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	msg := Message{
		Type:     w.Type,
		MimeType: w.MimeType,
		Error:    w.Message,
	}
	if w.Text != nil {
		msg.Text = *w.Text
	}
	if w.Audio != nil && *w.Audio != "" {
		audio, err := DecodeAudio(*w.Audio)
		if err != nil {
			return err
		}
		msg.Audio = audio
	}

	*m = msg
	return nil
}

// Decode parses one text frame. Unknown types are returned as-is so the
// caller can decide to ignore them.
func Decode(frame []byte) (Message, error) {
	if len(frame) == 0 {
		return Message{}, &ProtocolError{Reason: "decode", Err: ErrEmptyFrame}
	}

	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, &ProtocolError{Reason: "decode", Err: err}
	}
	if msg.Type == "" {
		return Message{}, &ProtocolError{Reason: "decode", Err: ErrMissingType}
	}
	return msg, nil
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, &ProtocolError{Reason: "encode", Err: ErrMissingType}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, &ProtocolError{Reason: "encode", Err: err}
	}
	return data, nil
}

func EncodeAudio(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(data)
}

func DecodeAudio(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode audio: %w", err)
	}
	return data, nil
}
