// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/copperline/watrans/internal/bridge"
	"github.com/copperline/watrans/internal/storage"
)

// logoutGrace is how long the bridge gets to deliver the logout to
// WhatsApp before the session file is deleted.
var logoutGrace = 2 * time.Second

// BridgeHandler exposes the bridge-facing endpoints: connection status,
// QR pairing, sending, reactions, avatars and logout.
type BridgeHandler struct {
	state      *State
	store      *storage.Store
	translator Translator
	auth       *AuthHandler
	dataDir    string
}

// NewBridgeHandler creates a bridge handler. translator may be nil.
func NewBridgeHandler(state *State, store *storage.Store, translator Translator, auth *AuthHandler, dataDir string) *BridgeHandler {
	return &BridgeHandler{
		state:      state,
		store:      store,
		translator: translator,
		auth:       auth,
		dataDir:    dataDir,
	}
}

// Status returns the current connection state.
func (h *BridgeHandler) Status(w http.ResponseWriter, r *http.Request) {
	connected, phone, name := h.state.Session()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"connected": connected,
		"phone":     phone,
		"name":      name,
	})
}

// QR returns the current pairing code, empty when none is pending.
func (h *BridgeHandler) QR(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"qr": h.state.QR()})
}

type sendRequest struct {
	ContactID     string `json:"contactId"`
	Text          string `json:"text"`
	ReplyTo       string `json:"replyTo,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

type sendResponse struct {
	MessageID      string `json:"messageId"`
	Timestamp      int64  `json:"timestamp"`
	IsTranslated   bool   `json:"isTranslated"`
	TranslatedText string `json:"translatedText,omitempty"`
	SourceLanguage string `json:"sourceLanguage,omitempty"`
}

// Send sends a text message. When the conversation runs in a foreign
// language, the outgoing text is translated to it first; the user's
// original text is what gets stored for display.
func (h *BridgeHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.ContactID == "" || req.Text == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "contactId and text are required")
		return
	}
	if !h.state.Connected() {
		WriteError(w, http.StatusServiceUnavailable, ErrNotConnected, "not connected to WhatsApp")
		return
	}

	textToSend := req.Text
	var translated bool
	var targetLanguage string
	if h.translator != nil {
		convLang, err := h.store.GetConversationLanguage(req.ContactID)
		if err != nil {
			log.Printf("web: conversation language for %s: %v", req.ContactID, err)
		} else if convLang != "" {
			out, usage := h.translator.TranslateTo(r.Context(), req.Text, convLang)
			if out != req.Text {
				log.Printf("web: translated outgoing message to %s (cost $%.6f)", convLang, usage.CostUSD)
				textToSend = out
				translated = true
				targetLanguage = convLang
			}
		}
	}

	cmd := bridge.SendCommand{
		To:            req.ContactID,
		Text:          textToSend,
		ReplyTo:       req.ReplyTo,
		ReplyToSender: req.ReplyToSender,
	}
	if err := h.state.Sender().Send(r.Context(), cmd); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrBridgeError,
			fmt.Sprintf("send failed: %v", err))
		return
	}

	// The real message id arrives later via send_result; store under a
	// provisional id so the conversation reloads correctly meanwhile.
	timestamp := time.Now().UnixMilli()
	messageID := fmt.Sprintf("pending_%d", timestamp)

	h.storeSent(req.ContactID, messageID, timestamp, "text",
		fmt.Sprintf(`{"type":"text","body":%s}`, mustJSON(req.Text)),
		req.Text, textToSend, translated, targetLanguage)

	resp := sendResponse{
		MessageID:    messageID,
		Timestamp:    timestamp,
		IsTranslated: translated,
	}
	if translated {
		resp.TranslatedText = textToSend
		resp.SourceLanguage = targetLanguage
	}
	WriteJSON(w, http.StatusOK, resp)
}

type sendImageRequest struct {
	ContactID     string `json:"contactId"`
	MediaData     string `json:"mediaData"`
	MimeType      string `json:"mimeType"`
	Caption       string `json:"caption,omitempty"`
	ReplyTo       string `json:"replyTo,omitempty"`
	ReplyToSender string `json:"replyToSender,omitempty"`
}

// SendImage sends a base64-encoded image with an optional caption.
func (h *BridgeHandler) SendImage(w http.ResponseWriter, r *http.Request) {
	var req sendImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.ContactID == "" || req.MediaData == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "contactId and mediaData are required")
		return
	}
	if !h.state.Connected() {
		WriteError(w, http.StatusServiceUnavailable, ErrNotConnected, "not connected to WhatsApp")
		return
	}

	cmd := bridge.SendImageCommand{
		To:            req.ContactID,
		MediaData:     req.MediaData,
		MimeType:      req.MimeType,
		Caption:       req.Caption,
		ReplyTo:       req.ReplyTo,
		ReplyToSender: req.ReplyToSender,
	}
	if err := h.state.Sender().Send(r.Context(), cmd); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrBridgeError,
			fmt.Sprintf("send image failed: %v", err))
		return
	}

	timestamp := time.Now().UnixMilli()
	messageID := fmt.Sprintf("pending_img_%d", timestamp)

	// Media bytes are not archived, only the descriptor.
	content := fmt.Sprintf(`{"type":"image","mime_type":%s,"caption":%s}`,
		mustJSON(req.MimeType), mustJSON(req.Caption))
	h.storeSent(req.ContactID, messageID, timestamp, "image", content, "", "", false, "")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messageId": messageID,
		"timestamp": timestamp,
	})
}

type reactRequest struct {
	ContactID string `json:"contactId"`
	MessageID string `json:"messageId"`
	SenderJID string `json:"senderJid,omitempty"`
	Emoji     string `json:"emoji"`
}

// React sends a reaction. An empty emoji removes a previous reaction.
func (h *BridgeHandler) React(w http.ResponseWriter, r *http.Request) {
	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "invalid request body")
		return
	}
	if req.ContactID == "" || req.MessageID == "" {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "contactId and messageId are required")
		return
	}
	if !h.state.Connected() {
		WriteError(w, http.StatusServiceUnavailable, ErrNotConnected, "not connected to WhatsApp")
		return
	}

	cmd := bridge.SendReactionCommand{
		To:        req.ContactID,
		MessageID: req.MessageID,
		SenderJID: req.SenderJID,
		Emoji:     req.Emoji,
	}
	if err := h.state.Sender().Send(r.Context(), cmd); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrBridgeError,
			fmt.Sprintf("send reaction failed: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Avatar resolves a contact's profile picture URL via the bridge, with
// a one-hour cache. Returns an empty URL when disconnected or the
// contact has no accessible avatar.
func (h *BridgeHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	jid := pathVar(r, "jid")

	if !h.state.Connected() {
		WriteJSON(w, http.StatusOK, map[string]string{"url": ""})
		return
	}

	avatarURL, err := h.state.ProfilePicture(r.Context(), jid)
	if err != nil {
		log.Printf("web: avatar %s: %v", jid, err)
		WriteJSON(w, http.StatusOK, map[string]string{"url": ""})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"url": avatarURL})
}

// Logout ends the WhatsApp session and wipes all local data: archive,
// session database, auth tokens and in-memory state.
func (h *BridgeHandler) Logout(w http.ResponseWriter, r *http.Request) {
	log.Printf("web: logout requested, clearing all data")

	if err := h.store.ClearAll(); err != nil {
		WriteError(w, http.StatusInternalServerError, ErrInternalError,
			fmt.Sprintf("clear archive: %v", err))
		return
	}

	// Best effort: tell WhatsApp before deleting the session file, and
	// give the bridge a moment to deliver it.
	if err := h.state.Sender().Send(r.Context(), bridge.LogoutCommand{}); err != nil {
		log.Printf("web: logout command: %v", err)
	} else {
		time.Sleep(logoutGrace)
	}

	sessionDB := filepath.Join(h.dataDir, "session.db")
	if err := os.Remove(sessionDB); err != nil && !os.IsNotExist(err) {
		log.Printf("web: remove session database: %v", err)
	}

	h.auth.ClearTokens()
	h.state.Reset()
	h.state.Hub().Broadcast(map[string]interface{}{"type": "disconnected"})

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Logged out. Refresh the page to pair again.",
	})
}

// storeSent archives an outgoing message and bumps the contact. For
// translated sends the user's text is the display content and the
// translated text is kept alongside it.
func (h *BridgeHandler) storeSent(contactID, messageID string, timestamp int64,
	contentType, contentJSON, originalText, sentText string, translated bool, targetLanguage string) {

	_, phone, name := h.state.Session()

	var contactName, contactPhone *string
	chatType := "private"
	if contact, err := h.store.GetContact(contactID); err == nil && contact != nil {
		contactName = contact.Name
		contactPhone = contact.Phone
		if contact.Type != nil {
			chatType = *contact.Type
		}
	}

	msg := &storage.Message{
		ID:          messageID,
		ContactID:   contactID,
		Timestamp:   timestamp,
		IsFromMe:    true,
		ChatType:    chatType,
		ContentType: contentType,
		ContentJSON: contentJSON,
	}
	if name != "" {
		msg.SenderName = &name
	}
	if phone != "" {
		msg.SenderPhone = &phone
	}
	if translated {
		msg.OriginalText = &originalText
		msg.TranslatedText = &sentText
		msg.SourceLanguage = &targetLanguage
		msg.IsTranslated = true
	}

	if err := h.store.AddMessage(msg); err != nil {
		log.Printf("web: store sent message: %v", err)
	}
	if err := h.store.UpsertContact(contactID, contactName, contactPhone, &chatType, timestamp); err != nil {
		log.Printf("web: update contact: %v", err)
	}
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
