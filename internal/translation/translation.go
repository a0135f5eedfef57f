// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package translation detects message language and translates foreign
// text via the Claude API: a cheap model for detection, a stronger one
// for translation. Failures degrade to pass-through, never blocking
// message flow.
package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/copperline/watrans/internal/storage"
)

// Pricing per million tokens.
const (
	haikuInputCostPerM   = 0.25
	haikuOutputCostPerM  = 1.25
	sonnetInputCostPerM  = 3.0
	sonnetOutputCostPerM = 15.0
)

const (
	detectMaxTokens    = 100
	translateMaxTokens = 2000
	composeMaxTokens   = 300

	// detectSampleLimit caps how much of a long message is sent for
	// language detection.
	detectSampleLimit = 500

	composePromptLimit = 1000
	composeOutputLimit = 500
)

// Usage is the token and cost accounting for one or more API calls.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

func (u Usage) add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
		CostUSD:      u.CostUSD + other.CostUSD,
	}
}

// Result describes what happened to one piece of incoming text.
type Result struct {
	NeedsTranslation bool
	OriginalText     string
	TranslatedText   string // empty when no translation happened
	SourceLanguage   string
	Usage            Usage
}

// UsageRecorder persists per-call usage; *storage.Store satisfies it.
type UsageRecorder interface {
	RecordUsage(rec storage.UsageRecord) error
}

// completion is the slice of an API response the service cares about.
type completion struct {
	text         string
	inputTokens  int64
	outputTokens int64
}

// apiClient abstracts the messages endpoint so tests can stub it.
type apiClient interface {
	complete(ctx context.Context, model string, maxTokens int64, prompt string) (completion, error)
}

type anthropicClient struct {
	client anthropic.Client
}

func (a *anthropicClient) complete(ctx context.Context, model string, maxTokens int64, prompt string) (completion, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return completion{}, err
	}

	var text string
	for _, block := range msg.Content {
		if block.Text != "" {
			text = block.Text
			break
		}
	}
	return completion{
		text:         text,
		inputTokens:  msg.Usage.InputTokens,
		outputTokens: msg.Usage.OutputTokens,
	}, nil
}

// Service is the translation front end.
type Service struct {
	api            apiClient
	detectModel    string
	translateModel string
	targetLanguage string
	recorder       UsageRecorder // may be nil
}

// New creates a translation service backed by the Claude API. recorder
// is optional; when set, every call is appended to the usage ledger.
func New(apiKey, detectModel, translateModel, targetLanguage string, recorder UsageRecorder) *Service {
	log.Printf("translation: service initialized (target: %s)", targetLanguage)
	return &Service{
		api:            &anthropicClient{client: anthropic.NewClient(option.WithAPIKey(apiKey))},
		detectModel:    detectModel,
		translateModel: translateModel,
		targetLanguage: targetLanguage,
		recorder:       recorder,
	}
}

// TargetLanguage returns the language incoming messages are translated
// into.
func (s *Service) TargetLanguage() string {
	return s.targetLanguage
}

// cost prices a call by model; haiku-family models use the cheap rate.
func cost(model string, in, out int64) float64 {
	inRate, outRate := sonnetInputCostPerM, sonnetOutputCostPerM
	if strings.Contains(model, "haiku") {
		inRate, outRate = haikuInputCostPerM, haikuOutputCostPerM
	}
	return float64(in)/1e6*inRate + float64(out)/1e6*outRate
}

func (s *Service) usageFor(model string, c completion) Usage {
	return Usage{
		InputTokens:  c.inputTokens,
		OutputTokens: c.outputTokens,
		CostUSD:      cost(model, c.inputTokens, c.outputTokens),
	}
}

func (s *Service) record(operation, model string, u Usage) {
	if s.recorder == nil || (u.InputTokens == 0 && u.OutputTokens == 0) {
		return
	}
	err := s.recorder.RecordUsage(storage.UsageRecord{
		Model:        model,
		Operation:    operation,
		InputTokens:  int(u.InputTokens),
		OutputTokens: int(u.OutputTokens),
		CostUSD:      u.CostUSD,
	})
	if err != nil {
		log.Printf("translation: failed to record usage: %v", err)
	}
}

type detection struct {
	Language string `json:"language"`
	IsTarget bool   `json:"isTarget"`
}

// detectLanguage asks the cheap model what language the text is in.
// Returns (inTargetLanguage, languageName, usage); on any failure it
// assumes the target language so no translation is attempted.
func (s *Service) detectLanguage(ctx context.Context, text string) (bool, string, Usage) {
	if len(strings.TrimSpace(text)) < 5 {
		return true, s.targetLanguage, Usage{}
	}

	sample := text
	if runes := []rune(sample); len(runes) > detectSampleLimit {
		sample = string(runes[:detectSampleLimit])
	}

	prompt := fmt.Sprintf(`Detect the language of this text and respond with ONLY a JSON object in this exact format: {"language": "Language Name", "isTarget": true/false} where isTarget means the text is in %s.

Text: %q`, s.targetLanguage, sample)

	c, err := s.api.complete(ctx, s.detectModel, detectMaxTokens, prompt)
	if err != nil {
		log.Printf("translation: language detection failed: %v", err)
		return true, s.targetLanguage, Usage{}
	}

	u := s.usageFor(s.detectModel, c)
	s.record("detect", s.detectModel, u)

	// The model is asked for bare JSON but may wrap it in prose.
	start := strings.Index(c.text, "{")
	end := strings.LastIndex(c.text, "}")
	if start >= 0 && end > start {
		var d detection
		if err := json.Unmarshal([]byte(c.text[start:end+1]), &d); err == nil && d.Language != "" {
			return d.IsTarget, d.Language, u
		}
	}

	return true, s.targetLanguage, u
}

// translate converts text from sourceLanguage into the target language.
// On failure the original text is returned unchanged.
func (s *Service) translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, Usage) {
	prompt := fmt.Sprintf(`Translate the following text (from %s) to %s.
Respond with ONLY the translated text, nothing else. Preserve the original formatting, tone, and meaning as closely as possible.

Text to translate:
%s`, sourceLanguage, targetLanguage, text)

	c, err := s.api.complete(ctx, s.translateModel, translateMaxTokens, prompt)
	if err != nil {
		log.Printf("translation: translate failed: %v", err)
		return text, Usage{}
	}

	u := s.usageFor(s.translateModel, c)
	s.record("translate", s.translateModel, u)

	translated := strings.TrimSpace(c.text)
	if translated == "" {
		return text, u
	}
	return translated, u
}

// ProcessText detects the language of incoming text and translates it
// into the target language when foreign. Never fails: on any API error
// the text passes through untranslated.
func (s *Service) ProcessText(ctx context.Context, text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{OriginalText: text, SourceLanguage: s.targetLanguage}
	}

	isTarget, language, detectUsage := s.detectLanguage(ctx, text)
	if isTarget {
		return Result{
			OriginalText:   text,
			SourceLanguage: language,
			Usage:          detectUsage,
		}
	}

	log.Printf("translation: translating message from %s", language)
	translated, translateUsage := s.translate(ctx, text, language, s.targetLanguage)

	return Result{
		NeedsTranslation: true,
		OriginalText:     text,
		TranslatedText:   translated,
		SourceLanguage:   language,
		Usage:            detectUsage.add(translateUsage),
	}
}

// TranslateTo translates outgoing text into a specific language, used
// to match the conversation language of the recipient. Text already in
// the target language (or targeting the default language) passes
// through. Never fails.
func (s *Service) TranslateTo(ctx context.Context, text, targetLanguage string) (string, Usage) {
	if strings.EqualFold(targetLanguage, s.targetLanguage) {
		return text, Usage{}
	}

	_, detected, detectUsage := s.detectLanguage(ctx, text)
	if strings.EqualFold(detected, targetLanguage) {
		return text, detectUsage
	}

	log.Printf("translation: translating outgoing message from %s to %s", detected, targetLanguage)
	translated, translateUsage := s.translate(ctx, text, detected, targetLanguage)
	return translated, detectUsage.add(translateUsage)
}

// ErrEmptyPrompt and ErrPromptTooLong reject compose requests before an
// API call is made.
var (
	ErrEmptyPrompt   = errors.New("prompt cannot be empty")
	ErrPromptTooLong = fmt.Errorf("prompt is too long (max %d characters)", composePromptLimit)
)

const composeSystemPrompt = `You are a helpful assistant composing WhatsApp messages. Your task is to write a message based on the user's request.

IMPORTANT RULES:
1. Keep your response SHORT and appropriate for a chat message (max 500 characters)
2. Write ONLY the message content - no explanations, no quotes, no "Here's a message:" prefixes
3. Be conversational and natural, matching the tone requested
4. Do not include anything harmful, offensive, or inappropriate
5. If the request is unclear, write a friendly, neutral message
6. Do not pretend to be someone specific or impersonate anyone
7. Do not include private information or make up facts about real people

Respond with ONLY the message text, nothing else.`

// Compose writes a chat message from a user prompt, optionally given
// the message being replied to. Unlike translation, errors surface to
// the caller since there is no text to fall back on.
func (s *Service) Compose(ctx context.Context, prompt, replySender, replyText string) (string, Usage, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", Usage{}, ErrEmptyPrompt
	}
	if len(prompt) > composePromptLimit {
		return "", Usage{}, ErrPromptTooLong
	}

	var userMessage string
	if replyText != "" {
		snippet := replyText
		if runes := []rune(snippet); len(runes) > detectSampleLimit {
			snippet = string(runes[:detectSampleLimit])
		}
		userMessage = fmt.Sprintf("%s\n\nThe user is REPLYING to this message from %s:\n%q\n\nUser's request for their reply: %s",
			composeSystemPrompt, replySender, snippet, prompt)
	} else {
		userMessage = fmt.Sprintf("%s\n\nUser request: %s", composeSystemPrompt, prompt)
	}

	c, err := s.api.complete(ctx, s.translateModel, composeMaxTokens, userMessage)
	if err != nil {
		return "", Usage{}, fmt.Errorf("compose message: %w", err)
	}

	u := s.usageFor(s.translateModel, c)
	s.record("compose", s.translateModel, u)

	composed := strings.TrimSpace(c.text)
	if runes := []rune(composed); len(runes) > composeOutputLimit {
		composed = string(runes[:composeOutputLimit-3]) + "..."
	}
	return composed, u, nil
}
