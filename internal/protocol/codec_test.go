package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name      string
		frame     string
		wantType  MessageType
		wantAudio []byte
		wantMime  string
		wantErr   bool
	}{
		{
			name:     "start session",
			frame:    `{"type":"start_session"}`,
			wantType: MessageTypeStartSession,
		},
		{
			name:      "audio",
			frame:     `{"type":"audio","audio":"aGVsbG8=","mimeType":"audio/webm"}`,
			wantType:  MessageTypeAudio,
			wantAudio: []byte("hello"),
			wantMime:  "audio/webm",
		},
		{
			name:      "audio without mime type",
			frame:     `{"type":"audio","audio":"aGVsbG8="}`,
			wantType:  MessageTypeAudio,
			wantAudio: []byte("hello"),
		},
		{
			name:     "interrupt",
			frame:    `{"type":"interrupt"}`,
			wantType: MessageTypeInterrupt,
		},
		{
			name:     "unknown type passes through",
			frame:    `{"type":"ping"}`,
			wantType: MessageType("ping"),
		},
		{
			name:    "not json",
			frame:   `hello`,
			wantErr: true,
		},
		{
			name:    "missing type",
			frame:   `{"audio":"aGVsbG8="}`,
			wantErr: true,
		},
		{
			name:    "bad base64",
			frame:   `{"type":"audio","audio":"!!!"}`,
			wantErr: true,
		},
		{
			name:    "empty frame",
			frame:   ``,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				var perr *ProtocolError
				if !errors.As(err, &perr) {
					t.Errorf("expected *ProtocolError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, msg.Type)
			}
			if !bytes.Equal(msg.Audio, tt.wantAudio) {
				t.Errorf("expected audio %q, got %q", tt.wantAudio, msg.Audio)
			}
			if msg.MimeType != tt.wantMime {
				t.Errorf("expected mime %q, got %q", tt.wantMime, msg.MimeType)
			}
		})
	}
}

func TestEncode_WireShape(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want map[string]any
	}{
		{
			name: "session started",
			msg:  SessionStarted(),
			want: map[string]any{"type": "session_started"},
		},
		{
			name: "audio response",
			msg:  AudioResponse("Hello from Rev", []byte("mp3")),
			want: map[string]any{"type": "audio_response", "text": "Hello from Rev", "audio": "bXAz"},
		},
		{
			name: "audio response without audio keeps empty field",
			msg:  AudioResponse("text only", nil),
			want: map[string]any{"type": "audio_response", "text": "text only", "audio": ""},
		},
		{
			name: "error",
			msg:  Error(ErrorProcessing),
			want: map[string]any{"type": "error", "message": ErrorProcessing},
		},
		{
			name: "audio",
			msg:  Audio([]byte("hello"), "audio/ogg"),
			want: map[string]any{"type": "audio", "audio": "aGVsbG8=", "mimeType": "audio/ogg"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.msg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d fields, got %d: %s", len(tt.want), len(got), data)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("field %s: expected %v, got %v", k, v, got[k])
				}
			}
		})
	}
}

func TestEncode_MissingType(t *testing.T) {
	if _, err := Encode(Message{}); !errors.Is(err, ErrMissingType) {
		t.Errorf("expected ErrMissingType, got %v", err)
	}
}

func TestAudioRoundTrip(t *testing.T) {
	for _, size := range []int{1, 2, 3, 1024, 64 * 1024} {
		buf := make([]byte, size)
		if _, err := rand.Read(buf); err != nil {
			t.Fatalf("rand: %v", err)
		}

		data, err := Encode(Audio(buf, "audio/webm"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		msg, err := Decode(data)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if !bytes.Equal(msg.Audio, buf) {
			t.Errorf("size %d: audio bytes differ after round trip", size)
		}
	}
}

func TestMessageType_Known(t *testing.T) {
	known := []MessageType{
		MessageTypeStartSession,
		MessageTypeSessionStarted,
		MessageTypeAudio,
		MessageTypeAudioResponse,
		MessageTypeInterrupt,
		MessageTypeError,
	}
	for _, mt := range known {
		if !mt.Known() {
			t.Errorf("expected %s to be known", mt)
		}
	}
	if MessageType("bogus").Known() {
		t.Error("bogus type should not be known")
	}
}
