// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// watrans-ctl is a command-line tool for talking to a running watrans
// instance.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mdp/qrterminal/v3"

	"github.com/copperline/watrans/pkg/client"
)

var (
	version    = "0.9"
	apiURL     = "http://localhost:8787"
	jsonOutput = false

	apiClient *client.Client
)

func main() {
	if env := os.Getenv("WATRANS_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	// Filter out global flags before subcommand dispatch.
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	apiClient = client.New(apiURL)

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := filteredArgs[0]
	args := filteredArgs[1:]

	ctx := context.Background()
	if password := os.Getenv("WATRANS_PASSWORD"); password != "" {
		if err := apiClient.Login(ctx, password); err != nil {
			fmt.Fprintf(os.Stderr, "Error: login failed: %v\n", err)
			os.Exit(1)
		}
	}

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(ctx)
	case "qr":
		err = cmdQR(ctx)
	case "contacts":
		err = cmdContacts(ctx)
	case "messages":
		err = cmdMessages(ctx, args)
	case "send":
		err = cmdSend(ctx, args)
	case "react":
		err = cmdReact(ctx, args)
	case "pin":
		err = cmdPin(ctx, args)
	case "avatar":
		err = cmdAvatar(ctx, args)
	case "translate":
		err = cmdTranslate(ctx, args)
	case "compose":
		err = cmdCompose(ctx, args)
	case "stats":
		err = cmdStats(ctx)
	case "usage":
		err = cmdUsage(ctx, args)
	case "logout":
		err = cmdLogout(ctx)
	case "version", "-v", "--version":
		fmt.Printf("watrans-ctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`watrans-ctl - Control a running watrans instance

Usage:
  watrans-ctl [-json] <command> [arguments]

Global Flags:
  -json              Output in JSON format

Environment:
  WATRANS_API        Base URL of the watrans API (default: http://localhost:8787)
  WATRANS_PASSWORD   Password when the web interface is protected

Commands:
  status                    Show connection status
  qr                        Show the pairing QR code in the terminal
  contacts                  List archived conversations
  messages <jid> [options]  Show messages for a conversation
    -n N                    Number of messages (default: 20)
    -before TS              Page backwards from a unix ms timestamp
  send <jid> <text...>      Send a text message
  react <jid> <id> <emoji>  React to a message
  pin <jid>                 Toggle a conversation's pin
  avatar <jid>              Print a contact's profile picture URL
  translate <text...>       Translate text to the configured language
  compose <prompt...>       Draft a message with AI
  stats                     Show archive statistics
  usage [-since TS]         Show translation API usage
  logout                    End the session and wipe all local data
  version                   Show version`)
}

// printJSON renders any payload for -json mode.
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdStatus(ctx context.Context) error {
	status, err := apiClient.Session.Status(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(status)
	}
	if !status.Connected {
		fmt.Println("Disconnected")
		return nil
	}
	fmt.Printf("Connected as %s (%s)\n", status.Name, status.Phone)
	return nil
}

func cmdQR(ctx context.Context) error {
	qr, err := apiClient.Session.QR(ctx)
	if err != nil {
		return err
	}
	if qr == "" {
		fmt.Println("No pairing pending. Already connected?")
		return nil
	}
	if jsonOutput {
		return printJSON(map[string]string{"qr": qr})
	}
	qrterminal.GenerateHalfBlock(qr, qrterminal.L, os.Stdout)
	fmt.Println("Scan with WhatsApp: Settings > Linked Devices > Link a Device")
	return nil
}

func cmdContacts(ctx context.Context) error {
	contacts, err := apiClient.Archive.Contacts(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(contacts)
	}
	if len(contacts) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	for _, contact := range contacts {
		marker := "  "
		if contact.Pinned {
			marker = "* "
		}
		unread := ""
		if contact.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", contact.UnreadCount)
		}
		fmt.Printf("%s%-30s %s%s\n", marker, contact.DisplayName(), contact.ID, unread)
	}
	return nil
}

func cmdMessages(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("messages", flag.ExitOnError)
	limit := fs.Int("n", 20, "number of messages")
	before := fs.Int64("before", 0, "page backwards from unix ms timestamp")
	if len(args) < 1 {
		return fmt.Errorf("usage: watrans-ctl messages <jid> [-n N] [-before TS]")
	}
	contactID := args[0]
	fs.Parse(args[1:])

	page, err := apiClient.Archive.Messages(ctx, contactID, client.MessagesOptions{
		Limit:  *limit,
		Before: *before,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(page)
	}

	for _, msg := range page.Messages {
		ts := time.UnixMilli(msg.Timestamp).Format("2006-01-02 15:04")
		sender := "me"
		if !msg.IsFromMe && msg.SenderName != nil {
			sender = *msg.SenderName
		}
		text := "[" + msg.ContentType + "]"
		if msg.OriginalText != nil {
			text = *msg.OriginalText
		}
		fmt.Printf("[%s] %s: %s\n", ts, sender, text)
		if msg.IsTranslated && msg.TranslatedText != nil {
			fmt.Printf("%*s> %s\n", len(ts)+3, "", *msg.TranslatedText)
		}
	}
	if page.HasMore {
		oldest := page.Messages[0].Timestamp
		fmt.Printf("(more history: -before %d)\n", oldest)
	}
	return nil
}

func cmdSend(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: watrans-ctl send <jid> <text...>")
	}
	result, err := apiClient.Messaging.SendText(ctx, client.SendTextRequest{
		ContactID: args[0],
		Text:      strings.Join(args[1:], " "),
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	if result.IsTranslated {
		fmt.Printf("Sent (translated to %s): %s\n", result.SourceLanguage, result.TranslatedText)
	} else {
		fmt.Println("Sent.")
	}
	return nil
}

func cmdReact(ctx context.Context, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: watrans-ctl react <jid> <message-id> <emoji>")
	}
	err := apiClient.Messaging.React(ctx, client.ReactRequest{
		ContactID: args[0],
		MessageID: args[1],
		Emoji:     args[2],
	})
	if err != nil {
		return err
	}
	fmt.Println("Reaction sent.")
	return nil
}

func cmdPin(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watrans-ctl pin <jid>")
	}
	pinned, err := apiClient.Archive.TogglePin(ctx, args[0])
	if err != nil {
		return err
	}
	if pinned {
		fmt.Println("Pinned.")
	} else {
		fmt.Println("Unpinned.")
	}
	return nil
}

func cmdAvatar(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watrans-ctl avatar <jid>")
	}
	url, err := apiClient.Session.Avatar(ctx, args[0])
	if err != nil {
		return err
	}
	if url == "" {
		fmt.Println("No accessible profile picture.")
		return nil
	}
	fmt.Println(url)
	return nil
}

func cmdTranslate(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watrans-ctl translate <text...>")
	}
	result, err := apiClient.Translate.Message(ctx, client.TranslateRequest{
		Text: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	if result.TranslatedText == "" {
		fmt.Printf("Already in the target language (%s).\n", result.SourceLanguage)
		return nil
	}
	fmt.Printf("[%s] %s\n", result.SourceLanguage, result.TranslatedText)
	return nil
}

func cmdCompose(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: watrans-ctl compose <prompt...>")
	}
	result, err := apiClient.Translate.Compose(ctx, client.ComposeRequest{
		Prompt: strings.Join(args, " "),
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Println(result.Message)
	fmt.Printf("(cost $%.6f)\n", result.CostUSD)
	return nil
}

func cmdStats(ctx context.Context) error {
	stats, err := apiClient.Archive.Stats(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(stats)
	}
	fmt.Printf("%d messages in %d conversations\n", stats.Messages, stats.Contacts)
	return nil
}

func cmdUsage(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	since := fs.Int64("since", 0, "unix timestamp")
	fs.Parse(args)

	summary, err := apiClient.Archive.Usage(ctx, *since)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(summary)
	}
	fmt.Printf("%d API calls, %d input / %d output tokens, $%.4f\n",
		summary.Calls, summary.InputTokens, summary.OutputTokens, summary.CostUSD)
	return nil
}

func cmdLogout(ctx context.Context) error {
	fmt.Print("This ends the WhatsApp session and wipes the archive. Continue? [y/N] ")
	var answer string
	fmt.Scanln(&answer)
	if !strings.EqualFold(strings.TrimSpace(answer), "y") {
		fmt.Println("Aborted.")
		return nil
	}
	if err := apiClient.Session.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out. All local data cleared.")
	return nil
}
