// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"fmt"

	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/copperline/watrans/internal/bridge"
)

// messageContent maps a WhatsApp E2E payload onto the protocol's typed
// content. Payloads that exist only for protocol bookkeeping come back
// as type "protocol" and are filtered before emission.
func messageContent(msg *waE2E.Message) bridge.MessageContent {
	if msg == nil {
		return bridge.MessageContent{Type: "unknown", RawType: "nil"}
	}

	if msg.Conversation != nil && *msg.Conversation != "" {
		return bridge.MessageContent{Type: "text", Body: *msg.Conversation}
	}

	if msg.ExtendedTextMessage != nil {
		return bridge.MessageContent{
			Type: "text",
			Body: msg.ExtendedTextMessage.GetText(),
		}
	}

	if m := msg.ImageMessage; m != nil {
		content := bridge.MessageContent{
			Type:     "image",
			Caption:  m.GetCaption(),
			MimeType: m.GetMimetype(),
			FileSize: m.GetFileLength(),
		}
		if m.FileSHA256 != nil {
			content.FileHash = hex.EncodeToString(m.FileSHA256)
		}
		return content
	}

	if m := msg.VideoMessage; m != nil {
		content := bridge.MessageContent{
			Type:     "video",
			Caption:  m.GetCaption(),
			MimeType: m.GetMimetype(),
			FileSize: m.GetFileLength(),
		}
		if m.Seconds != nil {
			dur := *m.Seconds
			content.DurationSeconds = &dur
		}
		return content
	}

	if m := msg.AudioMessage; m != nil {
		content := bridge.MessageContent{
			Type:        "audio",
			MimeType:    m.GetMimetype(),
			FileSize:    m.GetFileLength(),
			IsVoiceNote: m.GetPTT(),
		}
		if m.Seconds != nil {
			dur := *m.Seconds
			content.DurationSeconds = &dur
		}
		return content
	}

	if m := msg.DocumentMessage; m != nil {
		return bridge.MessageContent{
			Type:     "document",
			Caption:  m.GetCaption(),
			MimeType: m.GetMimetype(),
			FileName: m.GetFileName(),
			FileSize: m.GetFileLength(),
		}
	}

	if m := msg.StickerMessage; m != nil {
		return bridge.MessageContent{
			Type:       "sticker",
			MimeType:   m.GetMimetype(),
			IsAnimated: m.GetIsAnimated(),
		}
	}

	if m := msg.LocationMessage; m != nil {
		content := bridge.MessageContent{
			Type:         "location",
			LocationName: m.GetName(),
			Address:      m.GetAddress(),
		}
		if m.DegreesLatitude != nil {
			lat := *m.DegreesLatitude
			content.Latitude = &lat
		}
		if m.DegreesLongitude != nil {
			lng := *m.DegreesLongitude
			content.Longitude = &lng
		}
		return content
	}

	if m := msg.ContactMessage; m != nil {
		return bridge.MessageContent{
			Type:        "contact",
			DisplayName: m.GetDisplayName(),
			VCard:       m.GetVcard(),
		}
	}

	if m := msg.ReactionMessage; m != nil {
		return bridge.MessageContent{
			Type:            "reaction",
			Emoji:           m.GetText(),
			TargetMessageID: m.Key.GetID(),
		}
	}

	if m := msg.ProtocolMessage; m != nil && m.Type != nil {
		if *m.Type == waE2E.ProtocolMessage_REVOKE {
			return bridge.MessageContent{Type: "revoked"}
		}
		return bridge.MessageContent{Type: "protocol", RawType: m.Type.String()}
	}

	if m := msg.PollCreationMessage; m != nil {
		content := bridge.MessageContent{
			Type:     "poll",
			Question: m.GetName(),
		}
		for _, opt := range m.Options {
			if opt.OptionName != nil {
				content.Options = append(content.Options, *opt.OptionName)
			}
		}
		return content
	}

	// Group encryption setup with no user-visible content.
	if msg.SenderKeyDistributionMessage != nil {
		return bridge.MessageContent{Type: "protocol", RawType: "sender_key_distribution"}
	}

	if msg.MessageContextInfo != nil {
		return bridge.MessageContent{Type: "protocol", RawType: "context_info_only"}
	}

	return bridge.MessageContent{Type: "unknown", RawType: fmt.Sprintf("%T", msg)}
}

// isForwarded reports whether the payload's quote context marks it as
// forwarded.
func isForwarded(msg *waE2E.Message) bool {
	if msg == nil {
		return false
	}
	var info *waE2E.ContextInfo
	switch {
	case msg.ExtendedTextMessage != nil:
		info = msg.ExtendedTextMessage.ContextInfo
	case msg.ImageMessage != nil:
		info = msg.ImageMessage.ContextInfo
	case msg.VideoMessage != nil:
		info = msg.VideoMessage.ContextInfo
	case msg.AudioMessage != nil:
		info = msg.AudioMessage.ContextInfo
	case msg.DocumentMessage != nil:
		info = msg.DocumentMessage.ContextInfo
	}
	return info.GetIsForwarded()
}
