package protocol

type MessageType string

const (
	MessageTypeStartSession   MessageType = "start_session"
	MessageTypeSessionStarted MessageType = "session_started"
	MessageTypeAudio          MessageType = "audio"
	MessageTypeAudioResponse  MessageType = "audio_response"
	MessageTypeInterrupt      MessageType = "interrupt"
	MessageTypeError          MessageType = "error"
)

const DefaultMimeType = "audio/webm"

// User-facing error texts. Internal detail never goes on the wire.
const (
	ErrorProcessing = "Error processing your request. Please try again."
	ErrorGeneric    = "An error occurred. Please refresh and try again."
)

// Message is the decoded form of one frame. Audio holds raw bytes; the codec
// takes care of base64 on the wire.
type Message struct {
	Type     MessageType
	Audio    []byte
	MimeType string
	Text     string
	Error    string
}

func (t MessageType) String() string {
	return string(t)
}

func (t MessageType) Known() bool {
	switch t {
	case MessageTypeStartSession, MessageTypeSessionStarted, MessageTypeAudio,
		MessageTypeAudioResponse, MessageTypeInterrupt, MessageTypeError:
		return true
	}
	return false
}

func StartSession() Message {
	return Message{Type: MessageTypeStartSession}
}

func SessionStarted() Message {
	return Message{Type: MessageTypeSessionStarted}
}

func Audio(data []byte, mimeType string) Message {
	return Message{Type: MessageTypeAudio, Audio: data, MimeType: mimeType}
}

func AudioResponse(text string, audio []byte) Message {
	return Message{Type: MessageTypeAudioResponse, Text: text, Audio: audio}
}

func Interrupt() Message {
	return Message{Type: MessageTypeInterrupt}
}

func Error(message string) Message {
	return Message{Type: MessageTypeError, Error: message}
}
