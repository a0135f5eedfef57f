// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package bridge supervises the wa-bridge subprocess and speaks its
// JSON-lines protocol: events arrive on the subprocess's stdout, commands
// are written to its stdin, one JSON object per line in each direction.
package bridge

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Event is a message received from the bridge. The set of variants is
// closed; lines that don't decode into a known variant degrade to a
// LogEvent rather than an error.
type Event interface {
	isEvent()
}

// Command is a message sent to the bridge.
type Command interface {
	isCommand()
}

// ConnectionState describes the bridge's connection to WhatsApp.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
	StateReconnecting ConnectionState = "reconnecting"
	StateLoggedOut    ConnectionState = "logged_out"
)

// PresenceState describes a typing indicator in a chat.
type PresenceState string

const (
	PresenceTyping    PresenceState = "typing"
	PresencePaused    PresenceState = "paused"
	PresenceRecording PresenceState = "recording"
)

// QrEvent carries pairing QR code data.
type QrEvent struct {
	Data string `json:"data"`
}

// ConnectedEvent is emitted once the session is established.
type ConnectedEvent struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Platform string `json:"platform,omitempty"`
}

// ConnectionStateEvent reports a connection state change.
type ConnectionStateEvent struct {
	State ConnectionState `json:"state"`
}

// Contact identifies a WhatsApp user.
type Contact struct {
	JID   string `json:"jid"`
	Phone string `json:"phone"`
	Name  string `json:"name,omitempty"`
}

// Chat identifies the conversation a message belongs to.
// Type is one of "private", "group", "broadcast", "status".
type Chat struct {
	Type             string `json:"type"`
	JID              string `json:"jid"`
	Name             string `json:"name,omitempty"`
	ParticipantCount *int   `json:"participant_count,omitempty"`
}

// MessageContent holds the typed payload of a message. Type selects which
// fields are meaningful ("text", "image", "video", "audio", "document",
// "sticker", "location", "contact", "reaction", "revoked", "poll",
// "unknown").
type MessageContent struct {
	Type            string   `json:"type"`
	Body            string   `json:"body,omitempty"`
	Caption         string   `json:"caption,omitempty"`
	MimeType        string   `json:"mime_type,omitempty"`
	FileName        string   `json:"file_name,omitempty"`
	FileSize        uint64   `json:"file_size,omitempty"`
	FileHash        string   `json:"file_hash,omitempty"`
	MediaData       string   `json:"media_data,omitempty"` // base64
	DurationSeconds *uint32  `json:"duration_seconds,omitempty"`
	IsVoiceNote     bool     `json:"is_voice_note,omitempty"`
	IsAnimated      bool     `json:"is_animated,omitempty"`
	Latitude        *float64 `json:"latitude,omitempty"`
	Longitude       *float64 `json:"longitude,omitempty"`
	LocationName    string   `json:"location_name,omitempty"`
	Address         string   `json:"address,omitempty"`
	DisplayName     string   `json:"display_name,omitempty"`
	VCard           string   `json:"vcard,omitempty"`
	Emoji           string   `json:"emoji,omitempty"`
	TargetMessageID string   `json:"target_message_id,omitempty"`
	Question        string   `json:"question,omitempty"`
	Options         []string `json:"options,omitempty"`
	RawType         string   `json:"raw_type,omitempty"`
}

// Message is a received WhatsApp message with full metadata.
type Message struct {
	ID          string         `json:"id"`
	Timestamp   int64          `json:"timestamp"`
	From        Contact        `json:"from"`
	Chat        Chat           `json:"chat"`
	Content     MessageContent `json:"content"`
	IsFromMe    bool           `json:"is_from_me"`
	IsForwarded bool           `json:"is_forwarded"`
	PushName    string         `json:"push_name,omitempty"`
	IsHistory   bool           `json:"is_history,omitempty"`
	UnreadCount *int           `json:"unread_count,omitempty"`
}

// MessageEvent wraps a received message. The message fields are flattened
// onto the wire object next to the type tag.
type MessageEvent struct {
	Message
}

// SendResultEvent reports the outcome of a send, send_image or
// send_reaction command. RequestID is nil for fire-and-forget sends.
type SendResultEvent struct {
	RequestID *int   `json:"request_id,omitempty"`
	Success   bool   `json:"success"`
	MessageID string `json:"message_id,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ProfilePictureEvent answers a get_profile_picture command.
type ProfilePictureEvent struct {
	RequestID int    `json:"request_id"`
	JID       string `json:"jid"`
	URL       string `json:"url,omitempty"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ChatPresenceEvent reports a typing indicator.
type ChatPresenceEvent struct {
	ChatID string        `json:"chat_id"`
	UserID string        `json:"user_id"`
	State  PresenceState `json:"state"`
}

// ErrorEvent reports a bridge-side error.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// LogEvent carries a diagnostic line. Decode failures and stderr output
// are folded into the event stream as LogEvents.
type LogEvent struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// LoggedOutEvent is emitted when the session was invalidated and a new
// QR pairing is required.
type LoggedOutEvent struct {
	Reason string `json:"reason"`
}

// MarkAsReadEvent is emitted when a chat was read from another device.
type MarkAsReadEvent struct {
	ChatID string `json:"chat_id"`
}

func (QrEvent) isEvent()              {}
func (ConnectedEvent) isEvent()       {}
func (ConnectionStateEvent) isEvent() {}
func (MessageEvent) isEvent()         {}
func (SendResultEvent) isEvent()      {}
func (ProfilePictureEvent) isEvent()  {}
func (ChatPresenceEvent) isEvent()    {}
func (ErrorEvent) isEvent()           {}
func (LogEvent) isEvent()             {}
func (LoggedOutEvent) isEvent()       {}
func (MarkAsReadEvent) isEvent()      {}

// SendCommand sends a text message. RequestID is optional; when set, the
// bridge echoes it back in the matching SendResultEvent.
type SendCommand struct {
	RequestID     *int   `json:"request_id,omitempty"`
	To            string `json:"to"`
	Text          string `json:"text"`
	ReplyTo       string `json:"reply_to,omitempty"`
	ReplyToSender string `json:"reply_to_sender,omitempty"`
}

// SendImageCommand sends an image with optional caption.
type SendImageCommand struct {
	RequestID     *int   `json:"request_id,omitempty"`
	To            string `json:"to"`
	MediaData     string `json:"media_data"` // base64
	MimeType      string `json:"mime_type"`
	Caption       string `json:"caption,omitempty"`
	ReplyTo       string `json:"reply_to,omitempty"`
	ReplyToSender string `json:"reply_to_sender,omitempty"`
}

// SendReactionCommand reacts to a message. An empty Emoji removes a
// previous reaction, so the field is always serialized.
type SendReactionCommand struct {
	RequestID *int   `json:"request_id,omitempty"`
	To        string `json:"to"`
	MessageID string `json:"message_id"`
	SenderJID string `json:"sender_jid,omitempty"`
	Emoji     string `json:"emoji"`
}

// GetProfilePictureCommand requests a contact's avatar URL. The reply
// arrives as a ProfilePictureEvent carrying the same RequestID.
type GetProfilePictureCommand struct {
	RequestID int    `json:"request_id"`
	To        string `json:"to"`
}

// DisconnectCommand asks the bridge to disconnect and exit.
type DisconnectCommand struct{}

// LogoutCommand clears the session and exits; the next start requires a
// fresh QR pairing.
type LogoutCommand struct{}

func (SendCommand) isCommand()              {}
func (SendImageCommand) isCommand()         {}
func (SendReactionCommand) isCommand()      {}
func (GetProfilePictureCommand) isCommand() {}
func (DisconnectCommand) isCommand()        {}
func (LogoutCommand) isCommand()            {}

// eventTag returns the wire type tag for an event.
func eventTag(ev Event) string {
	switch ev.(type) {
	case QrEvent:
		return "qr"
	case ConnectedEvent:
		return "connected"
	case ConnectionStateEvent:
		return "connection_state"
	case MessageEvent:
		return "message"
	case SendResultEvent:
		return "send_result"
	case ProfilePictureEvent:
		return "profile_picture"
	case ChatPresenceEvent:
		return "chat_presence"
	case ErrorEvent:
		return "error"
	case LogEvent:
		return "log"
	case LoggedOutEvent:
		return "logged_out"
	case MarkAsReadEvent:
		return "mark_as_read"
	default:
		return ""
	}
}

// commandTag returns the wire type tag for a command.
func commandTag(cmd Command) string {
	switch cmd.(type) {
	case SendCommand:
		return "send"
	case SendImageCommand:
		return "send_image"
	case SendReactionCommand:
		return "send_reaction"
	case GetProfilePictureCommand:
		return "get_profile_picture"
	case DisconnectCommand:
		return "disconnect"
	case LogoutCommand:
		return "logout"
	default:
		return ""
	}
}

// encodeTagged marshals v and splices the type tag into the object,
// producing a single line with no embedded newlines.
func encodeTagged(tag string, v interface{}) ([]byte, error) {
	if tag == "" {
		return nil, fmt.Errorf("unknown wire type %T", v)
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", tag, err)
	}
	line, err := sjson.SetBytes(payload, "type", tag)
	if err != nil {
		return nil, fmt.Errorf("tag %s: %w", tag, err)
	}
	if i := strings.IndexByte(string(line), '\n'); i >= 0 {
		return nil, fmt.Errorf("encoded %s contains newline at offset %d", tag, i)
	}
	return line, nil
}

// EncodeCommand serializes a command as one JSON line (without the
// trailing newline). Unset optional fields are omitted, never null.
func EncodeCommand(cmd Command) ([]byte, error) {
	return encodeTagged(commandTag(cmd), cmd)
}

// EncodeEvent serializes an event as one JSON line. Used by the bridge
// binary; the supervisor only decodes events.
func EncodeEvent(ev Event) ([]byte, error) {
	return encodeTagged(eventTag(ev), ev)
}

// DecodeEvent parses one line from the bridge's stdout. A line that is
// not valid JSON, has no type tag, or has an unrecognized tag is returned
// as a warn LogEvent carrying the offending line; decoding never fails
// and never panics.
func DecodeEvent(line []byte) Event {
	if !gjson.ValidBytes(line) {
		return decodeFailure(line, "not valid JSON")
	}
	tag := gjson.GetBytes(line, "type")
	if !tag.Exists() {
		return decodeFailure(line, "missing type tag")
	}

	unmarshal := func(v interface{}) (Event, bool) {
		if err := json.Unmarshal(line, v); err != nil {
			return decodeFailure(line, err.Error()), false
		}
		return nil, true
	}

	switch tag.String() {
	case "qr":
		var ev QrEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "connected":
		var ev ConnectedEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "connection_state":
		var ev ConnectionStateEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "message":
		var ev MessageEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "send_result":
		var ev SendResultEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "profile_picture":
		var ev ProfilePictureEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "chat_presence":
		var ev ChatPresenceEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "error":
		var ev ErrorEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "log":
		var ev LogEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "logged_out":
		var ev LoggedOutEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	case "mark_as_read":
		var ev MarkAsReadEvent
		if fail, ok := unmarshal(&ev); !ok {
			return fail
		}
		return ev
	default:
		return decodeFailure(line, "unknown type tag "+tag.String())
	}
}

// DecodeCommand parses one line from the supervisor's stdin. Used by the
// bridge binary. Unlike event decoding, a bad command is an error the
// caller reports back as a warn log.
func DecodeCommand(line []byte) (Command, error) {
	if !gjson.ValidBytes(line) {
		return nil, fmt.Errorf("not valid JSON: %s", truncateLine(line))
	}
	tag := gjson.GetBytes(line, "type")
	if !tag.Exists() {
		return nil, fmt.Errorf("missing type tag: %s", truncateLine(line))
	}

	switch tag.String() {
	case "send":
		var cmd SendCommand
		err := json.Unmarshal(line, &cmd)
		return cmd, err
	case "send_image":
		var cmd SendImageCommand
		err := json.Unmarshal(line, &cmd)
		return cmd, err
	case "send_reaction":
		var cmd SendReactionCommand
		err := json.Unmarshal(line, &cmd)
		return cmd, err
	case "get_profile_picture":
		var cmd GetProfilePictureCommand
		err := json.Unmarshal(line, &cmd)
		return cmd, err
	case "disconnect":
		return DisconnectCommand{}, nil
	case "logout":
		return LogoutCommand{}, nil
	default:
		return nil, fmt.Errorf("unknown command type %q", tag.String())
	}
}

func decodeFailure(line []byte, reason string) LogEvent {
	return LogEvent{
		Level:   "warn",
		Message: fmt.Sprintf("failed to parse bridge event: %s - line: %s", reason, truncateLine(line)),
	}
}

const maxQuotedLine = 512

func truncateLine(line []byte) string {
	s := strings.TrimSpace(string(line))
	if len(s) > maxQuotedLine {
		return s[:maxQuotedLine] + "..."
	}
	return s
}

// IsGroup reports whether the chat is a group conversation.
func (c Chat) IsGroup() bool {
	return c.Type == "group"
}

// DisplayName returns a human-readable name for the chat, falling back
// to the phone part of the JID.
func (c Chat) DisplayName() string {
	switch c.Type {
	case "broadcast":
		return "Broadcast: " + ExtractPhone(c.JID)
	case "status":
		return "Status"
	default:
		if c.Name != "" {
			return c.Name
		}
		return ExtractPhone(c.JID)
	}
}

// DisplayName returns the contact's name, falling back to the phone number.
func (c Contact) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Phone
}

// TypeName returns a short human-readable label for the content type.
func (mc MessageContent) TypeName() string {
	switch mc.Type {
	case "text":
		return "Text"
	case "image":
		return "Image"
	case "video":
		return "Video"
	case "audio":
		if mc.IsVoiceNote {
			return "Voice Note"
		}
		return "Audio"
	case "document":
		return "Document"
	case "sticker":
		return "Sticker"
	case "location":
		return "Location"
	case "contact":
		return "Contact"
	case "reaction":
		return "Reaction"
	case "revoked":
		return "Deleted Message"
	case "poll":
		return "Poll"
	default:
		return "Unknown"
	}
}

// Text returns the translatable text of the content: the body for text
// messages, the caption for captioned media, empty otherwise.
func (mc MessageContent) Text() string {
	switch mc.Type {
	case "text":
		return mc.Body
	case "image", "video", "document":
		return mc.Caption
	default:
		return ""
	}
}

// ExtractPhone returns the phone-number part of a JID
// ("123@s.whatsapp.net" → "123").
func ExtractPhone(jid string) string {
	if i := strings.IndexByte(jid, '@'); i >= 0 {
		return jid[:i]
	}
	return jid
}
