// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/copperline/watrans/internal/bridge"
	"github.com/copperline/watrans/internal/storage"
)

// handleWebEvent routes one bridge event in web mode: session state,
// archiving + translation for messages, and WebSocket broadcasts.
// Correlated replies (profile pictures, send results with a request id)
// are resolved by the supervisor before they reach this handler.
func (app *App) handleWebEvent(ctx context.Context, ev bridge.Event) {
	switch e := ev.(type) {
	case bridge.QrEvent:
		app.state.SetQR(e.Data)

	case bridge.ConnectedEvent:
		log.Printf("app: connected as %s (%s)", e.Name, e.Phone)
		app.state.SetConnected(e.Phone, e.Name)

	case bridge.ConnectionStateEvent:
		if e.State == bridge.StateDisconnected || e.State == bridge.StateLoggedOut {
			app.state.SetDisconnected()
		}

	case bridge.MessageEvent:
		app.archiveMessage(ctx, e.Message)

	case bridge.SendResultEvent:
		if !e.Success {
			log.Printf("app: send failed: %s", e.Error)
		}

	case bridge.ChatPresenceEvent:
		app.hub.Broadcast(map[string]interface{}{
			"type":   "typing",
			"chatId": e.ChatID,
			"userId": e.UserID,
			"state":  string(e.State),
		})

	case bridge.MarkAsReadEvent:
		// Read from another device; sync the unread badge.
		if err := app.store.MarkAsRead(e.ChatID); err != nil {
			log.Printf("app: mark as read %s: %v", e.ChatID, err)
		}
		app.hub.Broadcast(map[string]interface{}{
			"type":   "mark_as_read",
			"chatId": e.ChatID,
		})

	case bridge.LoggedOutEvent:
		log.Printf("app: logged out: %s", e.Reason)
		app.state.SetDisconnected()

	case bridge.ErrorEvent:
		log.Printf("app: bridge error [%s] %s", e.Code, e.Message)

	case bridge.LogEvent:
		logBridgeLine(e)
	}
}

// archiveMessage stores an incoming or echoed message, translating live
// incoming text when the translator is configured, then broadcasts the
// stored form to WebSocket clients.
func (app *App) archiveMessage(ctx context.Context, msg bridge.Message) {
	stored := app.buildStoredMessage(ctx, msg)

	contactName, contactPhone := chatContact(msg.Chat)
	chatType := stored.ChatType
	if err := app.store.UpsertContact(stored.ContactID, contactName, contactPhone, &chatType, stored.Timestamp); err != nil {
		log.Printf("app: update contact %s: %v", stored.ContactID, err)
	}

	switch {
	case msg.UnreadCount != nil:
		// History sync carries the authoritative count.
		if err := app.store.SetUnreadCount(stored.ContactID, *msg.UnreadCount); err != nil {
			log.Printf("app: set unread count %s: %v", stored.ContactID, err)
		}
	case !msg.IsFromMe && !msg.IsHistory:
		if err := app.store.IncrementUnread(stored.ContactID); err != nil {
			log.Printf("app: increment unread %s: %v", stored.ContactID, err)
		}
	}

	if err := app.store.AddMessage(stored); err != nil {
		log.Printf("app: store message %s: %v", stored.ID, err)
	}

	app.hub.Broadcast(map[string]interface{}{
		"type":    "message",
		"message": stored,
	})
}

// buildStoredMessage converts a wire message to its archive row,
// running live incoming text through the translator.
func (app *App) buildStoredMessage(ctx context.Context, msg bridge.Message) *storage.Message {
	contentJSON, err := json.Marshal(msg.Content)
	if err != nil {
		contentJSON = []byte("{}")
	}

	stored := &storage.Message{
		ID:          msg.ID,
		ContactID:   msg.Chat.JID,
		Timestamp:   msg.Timestamp * 1000,
		IsFromMe:    msg.IsFromMe,
		IsForwarded: msg.IsForwarded,
		ChatType:    msg.Chat.Type,
		ContentType: msg.Content.Type,
		ContentJSON: string(contentJSON),
		Content:     json.RawMessage(contentJSON),
	}

	senderName := msg.PushName
	if senderName == "" {
		senderName = msg.From.Name
	}
	if senderName != "" {
		stored.SenderName = &senderName
	}
	if msg.From.Phone != "" {
		phone := msg.From.Phone
		stored.SenderPhone = &phone
	}

	text, hasText := extractText(msg.Content)
	if !hasText {
		return stored
	}
	stored.OriginalText = &text

	// History sync replays old messages in bulk; translating those
	// would burn tokens on text the user already read elsewhere.
	if app.translator == nil || msg.IsFromMe || msg.IsHistory {
		return stored
	}

	result := app.translator.ProcessText(ctx, text)
	if result.NeedsTranslation {
		stored.TranslatedText = &result.TranslatedText
		stored.SourceLanguage = &result.SourceLanguage
		stored.IsTranslated = true
	}
	return stored
}

// handleTerminalEvent renders one bridge event in terminal mode.
func (app *App) handleTerminalEvent(ctx context.Context, ev bridge.Event) {
	if app.opts.JSON {
		if line, err := bridge.EncodeEvent(ev); err == nil {
			fmt.Println(string(line))
		}
		return
	}

	switch e := ev.(type) {
	case bridge.QrEvent:
		app.renderer.ShowQR(e.Data)
		app.qrDisplayed = true

	case bridge.ConnectedEvent:
		if app.qrDisplayed {
			app.renderer.ClearQR()
			app.qrDisplayed = false
		}
		app.renderer.Connected(e.Phone, e.Name)
		app.connected = true

	case bridge.ConnectionStateEvent:
		switch e.State {
		case bridge.StateConnecting:
			app.renderer.Info("Connecting to WhatsApp...")
		case bridge.StateReconnecting:
			app.renderer.Info("Reconnecting...")
		case bridge.StateDisconnected:
			app.renderer.Warning("Disconnected from WhatsApp")
			app.connected = false
		case bridge.StateLoggedOut:
			app.renderer.Warning("Logged out from WhatsApp")
			app.connected = false
		}

	case bridge.MessageEvent:
		app.renderTerminalMessage(ctx, e.Message)

	case bridge.LoggedOutEvent:
		app.renderer.Warning("Logged out: " + e.Reason)
		app.renderer.Info("Restart to scan a new QR code.")
		app.connected = false

	case bridge.ErrorEvent:
		app.renderer.Error(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	case bridge.SendResultEvent:
		if !e.Success {
			app.renderer.Error("Send failed: " + e.Error)
		}

	case bridge.LogEvent:
		logBridgeLine(e)
	}
}

// renderTerminalMessage prints a message, translated when the service
// is configured and the incoming text is foreign.
func (app *App) renderTerminalMessage(ctx context.Context, msg bridge.Message) {
	if app.translator != nil && !msg.IsFromMe && !msg.IsHistory {
		if text, ok := extractText(msg.Content); ok {
			result := app.translator.ProcessText(ctx, text)
			if result.NeedsTranslation {
				app.renderer.Translated(msg, result.TranslatedText, result.SourceLanguage)
				return
			}
		}
	}
	app.renderer.Message(msg)
}

// extractText returns the translatable text of a message: the body of
// text messages or the caption of captioned media.
func extractText(c bridge.MessageContent) (string, bool) {
	switch c.Type {
	case "text":
		return c.Body, c.Body != ""
	case "image", "video", "document":
		return c.Caption, c.Caption != ""
	default:
		return "", false
	}
}

// chatContact derives the contact row's display name and phone from the
// chat descriptor: the peer for private chats, the group name for
// groups.
func chatContact(chat bridge.Chat) (name, phone *string) {
	jidUser := strings.SplitN(chat.JID, "@", 2)[0]

	switch chat.Type {
	case "group":
		if chat.Name != "" {
			n := chat.Name
			name = &n
		}
	case "broadcast":
		n := "Broadcast: " + jidUser
		name = &n
		phone = &jidUser
	case "status":
		n := "Status"
		name = &n
	default:
		if chat.Name != "" {
			n := chat.Name
			name = &n
		}
		phone = &jidUser
	}
	return name, phone
}

// logBridgeLine re-logs a bridge diagnostic at its own level.
func logBridgeLine(e bridge.LogEvent) {
	switch e.Level {
	case "error":
		log.Printf("bridge: ERROR %s", e.Message)
	case "warn":
		log.Printf("bridge: WARN %s", e.Message)
	case "info":
		log.Printf("bridge: %s", e.Message)
	default:
		// debug noise, including relayed stderr
	}
}
