// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/copperline/watrans/internal/bridge"
)

func textMessage() bridge.Message {
	return bridge.Message{
		ID:        "3EB0A9C7D2",
		Timestamp: 1700000000,
		From:      bridge.Contact{JID: "123@s.whatsapp.net", Phone: "123456789"},
		Chat:      bridge.Chat{Type: "private", JID: "123@s.whatsapp.net"},
		Content:   bridge.MessageContent{Type: "text", Body: "hello there"},
		PushName:  "Alice",
	}
}

func render(fn func(r *Renderer)) string {
	var buf bytes.Buffer
	fn(NewRenderer(&buf))
	return buf.String()
}

func TestRenderer_TextMessage(t *testing.T) {
	out := render(func(r *Renderer) { r.Message(textMessage()) })

	assert.Contains(t, out, "Private Chat")
	assert.Contains(t, out, "From:")
	assert.Contains(t, out, "Alice")
	assert.Contains(t, out, "(+123456789)")
	assert.Contains(t, out, "hello there")
	assert.Contains(t, out, "text")
}

func TestRenderer_GroupMessage(t *testing.T) {
	msg := textMessage()
	msg.Chat = bridge.Chat{Type: "group", JID: "g@g.us", Name: "Family"}

	out := render(func(r *Renderer) { r.Message(msg) })

	assert.Contains(t, out, "Group Chat")
	assert.Contains(t, out, "Family")
}

func TestRenderer_FromMe(t *testing.T) {
	msg := textMessage()
	msg.IsFromMe = true

	out := render(func(r *Renderer) { r.Message(msg) })

	assert.Contains(t, out, "To:")
	assert.NotContains(t, out, "From:")
}

func TestRenderer_Forwarded(t *testing.T) {
	msg := textMessage()
	msg.IsForwarded = true

	out := render(func(r *Renderer) { r.Message(msg) })
	assert.Contains(t, out, "[Forwarded]")
}

func TestRenderer_PhoneOnlySender(t *testing.T) {
	msg := textMessage()
	msg.PushName = ""

	out := render(func(r *Renderer) { r.Message(msg) })

	assert.Contains(t, out, "123456789")
	assert.NotContains(t, out, "(+123456789)")
}

func TestRenderer_ContentVariants(t *testing.T) {
	duration := uint32(125)
	lat, lon := 51.507351, -0.127758

	tests := []struct {
		name     string
		content  bridge.MessageContent
		expected []string
	}{
		{
			"image with caption",
			bridge.MessageContent{Type: "image", MimeType: "image/jpeg", FileSize: 2048, Caption: "sunset"},
			[]string{"[Image: image/jpeg - 2.00 KB]", "Caption:", "sunset"},
		},
		{
			"video with duration",
			bridge.MessageContent{Type: "video", MimeType: "video/mp4", FileSize: 5 << 20, DurationSeconds: &duration},
			[]string{"[Video: video/mp4 - 5.00 MB] (02:05)"},
		},
		{
			"voice note",
			bridge.MessageContent{Type: "audio", MimeType: "audio/ogg", FileSize: 100, IsVoiceNote: true},
			[]string{"[Voice Note: audio/ogg - 100 B]"},
		},
		{
			"document",
			bridge.MessageContent{Type: "document", MimeType: "application/pdf", FileName: "report.pdf", FileSize: 1024},
			[]string{"[Document: report.pdf - application/pdf - 1.00 KB]"},
		},
		{
			"animated sticker",
			bridge.MessageContent{Type: "sticker", IsAnimated: true},
			[]string{"[Animated Sticker]"},
		},
		{
			"location",
			bridge.MessageContent{Type: "location", Latitude: &lat, Longitude: &lon, LocationName: "London", Address: "Trafalgar Square"},
			[]string{"[Location: 51.507351, -0.127758]", "London", "Trafalgar Square"},
		},
		{
			"contact card",
			bridge.MessageContent{Type: "contact", DisplayName: "Bob"},
			[]string{"[Contact: Bob]"},
		},
		{
			"reaction",
			bridge.MessageContent{Type: "reaction", Emoji: "👍", TargetMessageID: "ABCDEF0123456789"},
			[]string{"Reacted with", "👍", "to message ABCDEF01"},
		},
		{
			"revoked",
			bridge.MessageContent{Type: "revoked"},
			[]string{"[This message was deleted]"},
		},
		{
			"poll",
			bridge.MessageContent{Type: "poll", Question: "Lunch?", Options: []string{"Pizza", "Sushi"}},
			[]string{"Poll: Lunch?", "1. Pizza", "2. Sushi"},
		},
		{
			"unknown",
			bridge.MessageContent{Type: "unknown", RawType: "newsletter"},
			[]string{"[Unsupported message type: newsletter]"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := textMessage()
			msg.Content = tt.content

			out := render(func(r *Renderer) { r.Message(msg) })
			for _, want := range tt.expected {
				assert.Contains(t, out, want)
			}
		})
	}
}

func TestRenderer_Translated(t *testing.T) {
	msg := textMessage()
	msg.Content.Body = "hola amigo"

	out := render(func(r *Renderer) { r.Translated(msg, "hello friend", "Spanish") })

	assert.Contains(t, out, "[Translated from Spanish]")
	assert.Contains(t, out, "hello friend")
	assert.Contains(t, out, "Original: hola amigo")
}

func TestRenderer_Connected(t *testing.T) {
	out := render(func(r *Renderer) { r.Connected("123456789", "Alice") })

	assert.Contains(t, out, "Connected to WhatsApp")
	assert.Contains(t, out, "Phone: 123456789")
	assert.Contains(t, out, "Name: Alice")
	assert.Contains(t, out, "Waiting for messages...")
}

func TestRenderer_StatusLines(t *testing.T) {
	assert.Contains(t, render(func(r *Renderer) { r.Info("starting") }), "starting")
	assert.Contains(t, render(func(r *Renderer) { r.Warning("slow") }), "slow")
	assert.Contains(t, render(func(r *Renderer) { r.Error("broken") }), "broken")
}

func TestRenderer_ShowQR(t *testing.T) {
	out := render(func(r *Renderer) { r.ShowQR("2@abcdefghij,klmnopqrst") })

	assert.Contains(t, out, "Scan this QR code")
	assert.Contains(t, out, "Linked Devices")
	// qrterminal emits block characters after the instructions.
	assert.Greater(t, len(out), 500)
}

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		bytes    uint64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.00 KB"},
		{3 << 20, "3.00 MB"},
		{2 << 30, "2.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatFileSize(tt.bytes))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds  uint32
		expected string
	}{
		{5, "00:05"},
		{65, "01:05"},
		{3725, "01:02:05"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, formatDuration(tt.seconds))
	}
}
