// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package display renders bridge events for terminal mode: the pairing
// QR code, connection status lines and incoming messages.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mdp/qrterminal/v3"

	"github.com/copperline/watrans/internal/bridge"
)

const separatorWidth = 70

type styles struct {
	timestamp     lipgloss.Style
	senderPrivate lipgloss.Style
	senderGroup   lipgloss.Style
	groupName     lipgloss.Style
	messageType   lipgloss.Style
	messageBody   lipgloss.Style
	mediaInfo     lipgloss.Style
	separator     lipgloss.Style
	fromMe        lipgloss.Style
	translated    lipgloss.Style
	original      lipgloss.Style
	ok            lipgloss.Style
	warn          lipgloss.Style
	fail          lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		timestamp:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		senderPrivate: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		senderGroup:   lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		groupName:     lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		messageType:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		messageBody:   lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		mediaInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		separator:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		fromMe:        lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		translated:    lipgloss.NewStyle().Foreground(lipgloss.Color("5")),
		original:      lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true),
		ok:            lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn:          lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		fail:          lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

// Renderer writes formatted output for terminal mode. The zero writer
// defaults to stdout.
type Renderer struct {
	out    io.Writer
	styles styles
}

func NewRenderer(out io.Writer) *Renderer {
	if out == nil {
		out = os.Stdout
	}
	return &Renderer{out: out, styles: defaultStyles()}
}

// ShowQR clears the screen and renders the pairing QR code with
// instructions.
func (r *Renderer) ShowQR(code string) {
	fmt.Fprint(r.out, "\x1b[2J\x1b[H")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "  Scan this QR code with WhatsApp on your phone:")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "  1. Open WhatsApp on your phone")
	fmt.Fprintln(r.out, "  2. Tap Menu or Settings")
	fmt.Fprintln(r.out, "  3. Tap 'Linked Devices'")
	fmt.Fprintln(r.out, "  4. Tap 'Link a Device'")
	fmt.Fprintln(r.out, "  5. Point your phone at this screen")
	fmt.Fprintln(r.out)
	qrterminal.GenerateHalfBlock(code, qrterminal.L, r.out)
}

// ClearQR wipes a previously rendered QR code off the screen.
func (r *Renderer) ClearQR() {
	fmt.Fprint(r.out, "\x1b[2J\x1b[H")
}

// Connected announces a successful WhatsApp session.
func (r *Renderer) Connected(phone, name string) {
	fmt.Fprintln(r.out, r.styles.ok.Render("✓ Connected to WhatsApp"))
	fmt.Fprintf(r.out, "  Phone: %s\n", phone)
	fmt.Fprintf(r.out, "  Name: %s\n", name)
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Waiting for messages...")
}

func (r *Renderer) Info(msg string) {
	fmt.Fprintln(r.out, "ℹ "+msg)
}

func (r *Renderer) Warning(msg string) {
	fmt.Fprintln(r.out, r.styles.warn.Render("⚠ "+msg))
}

func (r *Renderer) Error(msg string) {
	fmt.Fprintln(r.out, r.styles.fail.Render("✗ "+msg))
}

// Message renders a received message with separator, header, sender and
// content sections.
func (r *Renderer) Message(msg bridge.Message) {
	r.printSeparator()
	r.printHeader(msg)
	r.printSender(msg)
	fmt.Fprintf(r.out, "Type: %s\n", r.styles.messageType.Render(msg.Content.TypeName()))
	fmt.Fprintln(r.out)
	r.printContent(msg.Content)
	fmt.Fprintln(r.out)
}

// Translated renders a message whose text was translated, showing the
// translation first and the original dimmed below it.
func (r *Renderer) Translated(msg bridge.Message, translatedText, sourceLanguage string) {
	r.printSeparator()
	r.printHeader(msg)
	r.printSender(msg)
	fmt.Fprintf(r.out, "Type: %s%s\n",
		r.styles.messageType.Render(msg.Content.TypeName()),
		r.styles.translated.Render(fmt.Sprintf(" [Translated from %s]", sourceLanguage)))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.styles.messageBody.Render(translatedText))
	if msg.Content.Type == "text" && msg.Content.Body != "" {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.styles.original.Render("Original: "+msg.Content.Body))
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) printSeparator() {
	fmt.Fprintln(r.out, r.styles.separator.Render(strings.Repeat("━", separatorWidth)))
}

func (r *Renderer) printHeader(msg bridge.Message) {
	ts := time.Unix(msg.Timestamp, 0).Format("2006-01-02 15:04:05")
	fmt.Fprint(r.out, r.styles.timestamp.Render(fmt.Sprintf("[%s] ", ts)))

	label := chatTypeLabel(msg.Chat.Type)
	style := r.styles.senderPrivate
	if msg.Chat.Type == "group" {
		style = r.styles.groupName
	}
	fmt.Fprint(r.out, style.Render(label))
	if msg.Chat.Type == "group" && msg.Chat.Name != "" {
		fmt.Fprint(r.out, r.styles.groupName.Render(": "+msg.Chat.Name))
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) printSender(msg bridge.Message) {
	style := r.styles.senderPrivate
	label := "From"
	switch {
	case msg.IsFromMe:
		style = r.styles.fromMe
		label = "To"
	case msg.Chat.Type == "group":
		style = r.styles.senderGroup
	}

	name := msg.PushName
	if name == "" {
		name = msg.From.Name
	}
	if name == "" {
		name = msg.From.Phone
	}
	fmt.Fprintf(r.out, "%s: %s", label, style.Bold(true).Render(name))
	if name != msg.From.Phone && msg.From.Phone != "" {
		fmt.Fprint(r.out, r.styles.mediaInfo.Render(fmt.Sprintf(" (+%s)", msg.From.Phone)))
	}
	if msg.IsForwarded {
		fmt.Fprint(r.out, r.styles.mediaInfo.Render(" [Forwarded]"))
	}
	fmt.Fprintln(r.out)
}

func (r *Renderer) printContent(c bridge.MessageContent) {
	switch c.Type {
	case "text":
		fmt.Fprintln(r.out, r.styles.messageBody.Render(c.Body))

	case "image":
		r.printMediaInfo("Image", c.MimeType, c.FileSize, c.DurationSeconds)
		r.printCaption(c.Caption)

	case "video":
		r.printMediaInfo("Video", c.MimeType, c.FileSize, c.DurationSeconds)
		r.printCaption(c.Caption)

	case "audio":
		label := "Audio"
		if c.IsVoiceNote {
			label = "Voice Note"
		}
		r.printMediaInfo(label, c.MimeType, c.FileSize, c.DurationSeconds)

	case "document":
		name := c.FileName
		if name == "" {
			name = "document"
		}
		fmt.Fprintln(r.out, r.styles.mediaInfo.Render(
			fmt.Sprintf("[Document: %s - %s - %s]", name, c.MimeType, formatFileSize(c.FileSize))))
		r.printCaption(c.Caption)

	case "sticker":
		label := "Sticker"
		if c.IsAnimated {
			label = "Animated Sticker"
		}
		fmt.Fprintln(r.out, r.styles.mediaInfo.Render("["+label+"]"))

	case "location":
		var lat, lon float64
		if c.Latitude != nil {
			lat = *c.Latitude
		}
		if c.Longitude != nil {
			lon = *c.Longitude
		}
		fmt.Fprintln(r.out, r.styles.mediaInfo.Render(fmt.Sprintf("[Location: %.6f, %.6f]", lat, lon)))
		if c.LocationName != "" {
			fmt.Fprintln(r.out, r.styles.messageBody.Render(c.LocationName))
		}
		if c.Address != "" {
			fmt.Fprintln(r.out, r.styles.mediaInfo.Render(c.Address))
		}

	case "contact":
		fmt.Fprintln(r.out, r.styles.mediaInfo.Render("[Contact: "+c.DisplayName+"]"))

	case "reaction":
		target := c.TargetMessageID
		if len(target) > 8 {
			target = target[:8]
		}
		fmt.Fprintf(r.out, "Reacted with %s%s\n",
			r.styles.messageBody.Render(c.Emoji),
			r.styles.mediaInfo.Render(" to message "+target))

	case "revoked":
		fmt.Fprintln(r.out, r.styles.original.Render("[This message was deleted]"))

	case "poll":
		fmt.Fprintln(r.out, r.styles.messageBody.Bold(true).Render("Poll: "+c.Question))
		for i, option := range c.Options {
			fmt.Fprintln(r.out, r.styles.mediaInfo.Render(fmt.Sprintf("  %d. %s", i+1, option)))
		}

	default:
		raw := c.RawType
		if raw == "" {
			raw = c.Type
		}
		fmt.Fprintln(r.out, r.styles.mediaInfo.Render("[Unsupported message type: "+raw+"]"))
	}
}

func (r *Renderer) printMediaInfo(label, mimeType string, fileSize uint64, duration *uint32) {
	line := fmt.Sprintf("[%s: %s - %s]", label, mimeType, formatFileSize(fileSize))
	if duration != nil {
		line += " (" + formatDuration(*duration) + ")"
	}
	fmt.Fprintln(r.out, r.styles.mediaInfo.Render(line))
}

func (r *Renderer) printCaption(caption string) {
	if caption == "" {
		return
	}
	fmt.Fprintf(r.out, "Caption: %s\n", r.styles.messageBody.Render(caption))
}

func chatTypeLabel(chatType string) string {
	switch chatType {
	case "group":
		return "Group Chat"
	case "broadcast":
		return "Broadcast"
	case "status":
		return "Status"
	default:
		return "Private Chat"
	}
}

func formatFileSize(bytes uint64) string {
	const (
		kb = 1 << 10
		mb = 1 << 20
		gb = 1 << 30
	)
	switch {
	case bytes >= gb:
		return fmt.Sprintf("%.2f GB", float64(bytes)/gb)
	case bytes >= mb:
		return fmt.Sprintf("%.2f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.2f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatDuration(seconds uint32) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}
