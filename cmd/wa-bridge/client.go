// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/copperline/watrans/internal/bridge"
)

// maxMediaSize caps inline media downloads at 50MB. Larger files are
// delivered as metadata only.
const maxMediaSize uint64 = 50 * 1024 * 1024

// historyMessageCap bounds how many messages per conversation a history
// sync replays into the event stream.
const historyMessageCap = 100

// Client wraps whatsmeow and translates its events into protocol events.
type Client struct {
	wa        *whatsmeow.Client
	container *sqlstore.Container
	emit      *emitter
	verbose   bool

	// Lifetime context for event-handler callbacks, which whatsmeow
	// invokes without one.
	ctx context.Context
}

// stderrLogger builds a whatsmeow logger on stderr. Stdout is the
// protocol channel and must stay clean.
func stderrLogger(module string, verbose bool) waLog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05.000",
	}).Level(level).With().Str("module", module).Timestamp().Logger()
	return waLog.Zerolog(logger)
}

func newClient(ctx context.Context, dataDir string, verbose bool, emit *emitter) (*Client, error) {
	dbPath := fmt.Sprintf("file:%s/session.db?_foreign_keys=on", dataDir)
	container, err := sqlstore.New(ctx, "sqlite3", dbPath, stderrLogger("Database", verbose))
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get device: %w", err)
	}

	c := &Client{
		wa:        whatsmeow.NewClient(device, stderrLogger("Client", verbose)),
		container: container,
		emit:      emit,
		verbose:   verbose,
		ctx:       ctx,
	}
	c.wa.AddEventHandler(c.handleEvent)
	return c, nil
}

// Connect establishes the WhatsApp session. Without a stored session it
// drives the QR pairing flow, emitting a qr event for each fresh code.
func (c *Client) Connect(ctx context.Context) error {
	if c.wa.Store.ID != nil {
		return c.wa.Connect()
	}

	qrChan, _ := c.wa.GetQRChannel(ctx)
	if err := c.wa.Connect(); err != nil {
		return err
	}
	for evt := range qrChan {
		switch evt.Event {
		case "code":
			c.emit.send(bridge.QrEvent{Data: evt.Code})
		case "success":
			c.sendConnected()
			return nil
		case "timeout":
			return fmt.Errorf("QR pairing timed out")
		}
	}
	return nil
}

func (c *Client) Disconnect() {
	c.wa.Disconnect()
}

func (c *Client) Close() error {
	return c.container.Close()
}

// Logout invalidates the session server-side; the next start needs a
// fresh QR pairing.
func (c *Client) Logout(ctx context.Context) error {
	return c.wa.Logout(ctx)
}

func (c *Client) handleEvent(evt interface{}) {
	if c.verbose {
		c.emit.log("debug", "event: %T", evt)
	}

	switch v := evt.(type) {
	case *events.Connected:
		c.sendConnected()

	case *events.Disconnected:
		c.emit.send(bridge.ConnectionStateEvent{State: bridge.StateDisconnected})

	case *events.LoggedOut:
		reason := "unknown"
		if v.Reason != 0 {
			reason = fmt.Sprintf("code: %d", v.Reason)
		}
		c.emit.send(bridge.LoggedOutEvent{Reason: reason})

	case *events.StreamReplaced:
		c.emit.send(bridge.LoggedOutEvent{Reason: "stream replaced by another connection"})

	case *events.Message:
		c.handleMessage(v, false, nil)

	case *events.Receipt:
		// Read on the primary phone; sync our unread badge.
		if v.Type == types.ReceiptTypeReadSelf {
			c.emit.send(bridge.MarkAsReadEvent{ChatID: v.Chat.String()})
		}

	case *events.MarkChatAsRead:
		if v.Action.GetRead() {
			c.emit.send(bridge.MarkAsReadEvent{ChatID: v.JID.String()})
		}

	case *events.ChatPresence:
		c.emit.send(bridge.ChatPresenceEvent{
			ChatID: v.Chat.String(),
			UserID: v.Sender.String(),
			State:  presenceState(v),
		})

	case *events.HistorySync:
		c.handleHistorySync(v)

	case *events.UndecryptableMessage:
		c.emit.log("error", "undecryptable message from %s: %v", v.Info.Sender, v.DecryptFailMode)

	case *events.OfflineSyncCompleted:
		c.emit.log("info", "offline sync completed")
	}
}

func presenceState(v *events.ChatPresence) bridge.PresenceState {
	if v.State != types.ChatPresenceComposing {
		return bridge.PresencePaused
	}
	if v.Media == types.ChatPresenceMediaAudio {
		return bridge.PresenceRecording
	}
	return bridge.PresenceTyping
}

func (c *Client) sendConnected() {
	ev := bridge.ConnectedEvent{
		Name:     c.wa.Store.PushName,
		Platform: c.wa.Store.Platform,
	}
	if c.wa.Store.ID != nil {
		ev.Phone = c.wa.Store.ID.User
	}
	c.emit.send(ev)
}

// handleMessage converts one whatsmeow message into a protocol message
// event. Protocol-internal payloads (encryption setup, ephemeral
// settings) are dropped here so the parent never sees them.
func (c *Client) handleMessage(evt *events.Message, history bool, unread *int) {
	content := messageContent(evt.Message)
	if content.Type == "protocol" || content.Type == "unknown" {
		return
	}

	msg := bridge.Message{
		ID:          evt.Info.ID,
		Timestamp:   evt.Info.Timestamp.Unix(),
		From:        c.buildContact(evt.Info.Sender),
		Chat:        c.buildChat(evt.Info),
		Content:     content,
		IsFromMe:    evt.Info.IsFromMe,
		IsForwarded: isForwarded(evt.Message),
		PushName:    evt.Info.PushName,
		IsHistory:   history,
		UnreadCount: unread,
	}

	// Bulk history replay skips media; downloads there would stall the
	// sync for minutes.
	if !history {
		c.downloadMedia(evt.Message, &msg.Content)
	}

	c.emit.send(bridge.MessageEvent{Message: msg})
}

// handleHistorySync replays archived conversations. Each conversation's
// first replayed message carries the server-side unread count.
func (c *Client) handleHistorySync(v *events.HistorySync) {
	conversations := v.Data.GetConversations()
	c.emit.log("info", "history sync: %d conversations", len(conversations))

	for _, conv := range conversations {
		chatJID, err := types.ParseJID(conv.GetID())
		if err != nil {
			continue
		}
		if chatJID == types.StatusBroadcastJID {
			continue
		}

		unread := int(conv.GetUnreadCount())
		unreadSent := false

		count := 0
		for _, histMsg := range conv.GetMessages() {
			if count >= historyMessageCap {
				break
			}
			evt, err := c.wa.ParseWebMessage(chatJID, histMsg.GetMessage())
			if err != nil {
				continue
			}
			var unreadPtr *int
			if !unreadSent {
				u := unread
				unreadPtr = &u
				unreadSent = true
			}
			c.handleMessage(evt, true, unreadPtr)
			count++
		}
	}
}

// downloadMedia fetches the media payload inline as base64 when it fits
// under the size cap.
func (c *Client) downloadMedia(waMsg *waE2E.Message, content *bridge.MessageContent) {
	if waMsg == nil {
		return
	}

	var downloadable whatsmeow.DownloadableMessage
	switch content.Type {
	case "image":
		if waMsg.ImageMessage != nil {
			downloadable = waMsg.ImageMessage
		}
	case "video":
		if waMsg.VideoMessage != nil {
			downloadable = waMsg.VideoMessage
		}
	case "audio":
		if waMsg.AudioMessage != nil {
			downloadable = waMsg.AudioMessage
		}
	case "document":
		if waMsg.DocumentMessage != nil {
			downloadable = waMsg.DocumentMessage
		}
	case "sticker":
		if waMsg.StickerMessage != nil {
			downloadable = waMsg.StickerMessage
		}
	}
	if downloadable == nil {
		return
	}
	if content.FileSize > maxMediaSize {
		c.emit.log("warn", "%s too large to download: %d bytes", content.Type, content.FileSize)
		return
	}

	data, err := c.wa.Download(c.ctx, downloadable)
	if err != nil {
		c.emit.log("warn", "download %s: %v", content.Type, err)
		return
	}
	if len(data) > 0 {
		content.MediaData = base64.StdEncoding.EncodeToString(data)
	}
}

func (c *Client) buildContact(jid types.JID) bridge.Contact {
	return bridge.Contact{
		JID:   jid.String(),
		Phone: jid.User,
		Name:  c.contactName(jid),
	}
}

// contactName looks up the address-book name for a JID, preferring the
// full name over push and business names.
func (c *Client) contactName(jid types.JID) string {
	info, err := c.wa.Store.Contacts.GetContact(c.ctx, jid)
	if err != nil || !info.Found {
		return ""
	}
	switch {
	case info.FullName != "":
		return info.FullName
	case info.PushName != "":
		return info.PushName
	default:
		return info.BusinessName
	}
}

func (c *Client) buildChat(info types.MessageInfo) bridge.Chat {
	chat := bridge.Chat{JID: info.Chat.String()}

	switch {
	case info.IsGroup:
		chat.Type = "group"
		if groupInfo, err := c.wa.GetGroupInfo(c.ctx, info.Chat); err == nil {
			chat.Name = groupInfo.Name
			count := len(groupInfo.Participants)
			chat.ParticipantCount = &count
		}
	case info.Chat == types.StatusBroadcastJID:
		chat.Type = "status"
	case info.Chat.Server == types.BroadcastServer:
		chat.Type = "broadcast"
	default:
		chat.Type = "private"
		chat.Name = c.contactName(info.Chat)
	}
	return chat
}

// replyContext builds the quote context for a reply. A bare phone
// number as the quoted sender is completed to a full JID.
func replyContext(replyTo, replyToSender string) *waE2E.ContextInfo {
	ctxInfo := &waE2E.ContextInfo{StanzaID: &replyTo}
	if replyToSender != "" {
		participant := replyToSender
		if !strings.Contains(participant, "@") {
			participant += "@s.whatsapp.net"
		}
		ctxInfo.Participant = &participant
	}
	return ctxInfo
}

// SendText sends a plain or reply text message and returns the server
// message ID and timestamp.
func (c *Client) SendText(ctx context.Context, cmd bridge.SendCommand) (string, int64, error) {
	jid, err := types.ParseJID(cmd.To)
	if err != nil {
		return "", 0, fmt.Errorf("invalid JID: %w", err)
	}

	var msg *waE2E.Message
	if cmd.ReplyTo != "" {
		// Replies need ExtendedTextMessage to carry the quote context.
		msg = &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{
				Text:        &cmd.Text,
				ContextInfo: replyContext(cmd.ReplyTo, cmd.ReplyToSender),
			},
		}
	} else {
		msg = &waE2E.Message{Conversation: &cmd.Text}
	}

	resp, err := c.wa.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", 0, fmt.Errorf("send message: %w", err)
	}
	return resp.ID, resp.Timestamp.Unix(), nil
}

// SendImage uploads the image to WhatsApp's media store and sends it.
func (c *Client) SendImage(ctx context.Context, cmd bridge.SendImageCommand) (string, int64, error) {
	jid, err := types.ParseJID(cmd.To)
	if err != nil {
		return "", 0, fmt.Errorf("invalid JID: %w", err)
	}

	data, err := base64.StdEncoding.DecodeString(cmd.MediaData)
	if err != nil {
		return "", 0, fmt.Errorf("decode image data: %w", err)
	}

	mimeType := cmd.MimeType
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	upload, err := c.wa.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return "", 0, fmt.Errorf("upload image: %w", err)
	}

	imageMsg := &waE2E.ImageMessage{
		Mimetype:      &mimeType,
		URL:           &upload.URL,
		DirectPath:    &upload.DirectPath,
		MediaKey:      upload.MediaKey,
		FileEncSHA256: upload.FileEncSHA256,
		FileSHA256:    upload.FileSHA256,
		FileLength:    &upload.FileLength,
	}
	if cmd.Caption != "" {
		imageMsg.Caption = &cmd.Caption
	}
	if cmd.ReplyTo != "" {
		imageMsg.ContextInfo = replyContext(cmd.ReplyTo, cmd.ReplyToSender)
	}

	resp, err := c.wa.SendMessage(ctx, jid, &waE2E.Message{ImageMessage: imageMsg})
	if err != nil {
		return "", 0, fmt.Errorf("send image: %w", err)
	}
	return resp.ID, resp.Timestamp.Unix(), nil
}

// SendReaction reacts to a message. An empty emoji removes a previous
// reaction.
func (c *Client) SendReaction(ctx context.Context, cmd bridge.SendReactionCommand) (string, int64, error) {
	chatJID, err := types.ParseJID(cmd.To)
	if err != nil {
		return "", 0, fmt.Errorf("invalid chat JID: %w", err)
	}

	// Private chats omit the sender; the peer sent the target message.
	senderJID := chatJID
	if cmd.SenderJID != "" {
		senderJID, err = types.ParseJID(cmd.SenderJID)
		if err != nil {
			return "", 0, fmt.Errorf("invalid sender JID: %w", err)
		}
	}

	reaction := c.wa.BuildReaction(chatJID, senderJID, cmd.MessageID, cmd.Emoji)
	resp, err := c.wa.SendMessage(ctx, chatJID, reaction)
	if err != nil {
		return "", 0, fmt.Errorf("send reaction: %w", err)
	}
	return resp.ID, resp.Timestamp.Unix(), nil
}

// ProfilePicture returns the full-size avatar URL and ID for a JID.
// Both are empty when the contact has no picture.
func (c *Client) ProfilePicture(ctx context.Context, jidStr string) (string, string, error) {
	jid, err := types.ParseJID(jidStr)
	if err != nil {
		return "", "", fmt.Errorf("invalid JID: %w", err)
	}

	pic, err := c.wa.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{Preview: false})
	if err != nil {
		return "", "", fmt.Errorf("get profile picture: %w", err)
	}
	if pic == nil {
		return "", "", nil
	}
	return pic.URL, pic.ID, nil
}
