// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperline/watrans/internal/bridge"
	"github.com/copperline/watrans/internal/linkpreview"
	"github.com/copperline/watrans/internal/storage"
	"github.com/copperline/watrans/internal/translation"
	"github.com/copperline/watrans/internal/web/handlers"
)

type stubSender struct {
	mu   sync.Mutex
	cmds []bridge.Command
	err  error
}

func (s *stubSender) Send(ctx context.Context, cmd bridge.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.cmds = append(s.cmds, cmd)
	return nil
}

func (s *stubSender) Ready() bool { return true }

func (s *stubSender) sent() []bridge.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.Command, len(s.cmds))
	copy(out, s.cmds)
	return out
}

type fakeTranslator struct {
	processResult translation.Result
	translateOut  string
	composed      string
	composeErr    error
}

func (f *fakeTranslator) ProcessText(ctx context.Context, text string) translation.Result {
	return f.processResult
}

func (f *fakeTranslator) TranslateTo(ctx context.Context, text, targetLanguage string) (string, translation.Usage) {
	if f.translateOut == "" {
		return text, translation.Usage{}
	}
	return f.translateOut, translation.Usage{InputTokens: 10, OutputTokens: 5, CostUSD: 0.001}
}

func (f *fakeTranslator) Compose(ctx context.Context, prompt, replySender, replyText string) (string, translation.Usage, error) {
	if f.composeErr != nil {
		return "", translation.Usage{}, f.composeErr
	}
	return f.composed, translation.Usage{InputTokens: 20, OutputTokens: 10, CostUSD: 0.002}, nil
}

type env struct {
	router http.Handler
	store  *storage.Store
	state  *handlers.State
	sender *stubSender
	auth   *handlers.AuthHandler
}

func newEnv(t *testing.T, password string, translator handlers.Translator) *env {
	t.Helper()

	store, err := storage.Open(filepath.Join(t.TempDir(), "watrans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := handlers.NewHub()
	t.Cleanup(hub.Close)

	sender := &stubSender{}
	state := handlers.NewState(sender, bridge.NewCorrelator(), hub)
	auth := handlers.NewAuthHandler(password)

	router := NewRouter(Dependencies{
		State:      state,
		Store:      store,
		Translator: translator,
		Auth:       auth,
		Previews:   linkpreview.NewFetcher(),
		DataDir:    t.TempDir(),
	})

	return &env{router: router, store: store, state: state, sender: sender, auth: auth}
}

func (e *env) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	var resp struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func str(s string) *string { return &s }

func TestRouter_AuthProtectsAPI(t *testing.T) {
	e := newEnv(t, "hunter2", nil)

	rec := e.do("GET", "/api/status", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = e.do("POST", "/api/auth", `{"password":"hunter2"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	decodeData(t, rec, &login)
	require.NotEmpty(t, login.Token)

	rec = e.do("GET", "/api/status", "", login.Token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_StatusAndQR(t *testing.T) {
	e := newEnv(t, "", nil)

	e.state.SetQR("2@pairing")
	rec := e.do("GET", "/api/qr", "", "")
	var qr map[string]string
	decodeData(t, rec, &qr)
	assert.Equal(t, "2@pairing", qr["qr"])

	e.state.SetConnected("123456789", "Alice")
	rec = e.do("GET", "/api/status", "", "")
	var status map[string]interface{}
	decodeData(t, rec, &status)
	assert.Equal(t, true, status["connected"])
	assert.Equal(t, "123456789", status["phone"])
	assert.Equal(t, "Alice", status["name"])
}

func TestRouter_Send_NotConnected(t *testing.T) {
	e := newEnv(t, "", nil)

	rec := e.do("POST", "/api/send", `{"contactId":"1@s.whatsapp.net","text":"hi"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Empty(t, e.sender.sent())
}

func TestRouter_Send_Validation(t *testing.T) {
	e := newEnv(t, "", nil)
	e.state.SetConnected("123", "Me")

	rec := e.do("POST", "/api/send", `{"contactId":"","text":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_Send(t *testing.T) {
	e := newEnv(t, "", nil)
	e.state.SetConnected("123456789", "Me")

	rec := e.do("POST", "/api/send", `{"contactId":"1@s.whatsapp.net","text":"hello"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		MessageID    string `json:"messageId"`
		IsTranslated bool   `json:"isTranslated"`
	}
	decodeData(t, rec, &resp)
	assert.True(t, strings.HasPrefix(resp.MessageID, "pending_"))
	assert.False(t, resp.IsTranslated)

	cmds := e.sender.sent()
	require.Len(t, cmds, 1)
	send, ok := cmds[0].(bridge.SendCommand)
	require.True(t, ok)
	assert.Equal(t, "1@s.whatsapp.net", send.To)
	assert.Equal(t, "hello", send.Text)

	// The outgoing message is archived and the contact bumped.
	msgs, err := e.store.GetMessages("1@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsFromMe)

	contacts, err := e.store.GetContacts()
	require.NoError(t, err)
	require.Len(t, contacts, 1)
}

func TestRouter_Send_TranslatesToConversationLanguage(t *testing.T) {
	e := newEnv(t, "", &fakeTranslator{translateOut: "hola"})
	e.state.SetConnected("123456789", "Me")

	// Incoming history marks this conversation as Spanish.
	require.NoError(t, e.store.AddMessage(&storage.Message{
		ID: "in1", ContactID: "1@s.whatsapp.net", Timestamp: 100,
		ContentType: "text", ContentJSON: `{}`,
		SourceLanguage: str("Spanish"), IsTranslated: true,
	}))

	rec := e.do("POST", "/api/send", `{"contactId":"1@s.whatsapp.net","text":"hello"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		IsTranslated   bool   `json:"isTranslated"`
		TranslatedText string `json:"translatedText"`
		SourceLanguage string `json:"sourceLanguage"`
	}
	decodeData(t, rec, &resp)
	assert.True(t, resp.IsTranslated)
	assert.Equal(t, "hola", resp.TranslatedText)
	assert.Equal(t, "Spanish", resp.SourceLanguage)

	// The translation goes over the wire; the user's text is archived
	// for display.
	cmds := e.sender.sent()
	require.Len(t, cmds, 1)
	assert.Equal(t, "hola", cmds[0].(bridge.SendCommand).Text)

	msgs, err := e.store.GetMessages("1@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	out := msgs[1]
	require.NotNil(t, out.OriginalText)
	assert.Equal(t, "hello", *out.OriginalText)
	require.NotNil(t, out.TranslatedText)
	assert.Equal(t, "hola", *out.TranslatedText)
}

func TestRouter_SendImage(t *testing.T) {
	e := newEnv(t, "", nil)
	e.state.SetConnected("123", "Me")

	rec := e.do("POST", "/api/send-image",
		`{"contactId":"1@s.whatsapp.net","mediaData":"aGVsbG8=","mimeType":"image/png","caption":"pic"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cmds := e.sender.sent()
	require.Len(t, cmds, 1)
	img, ok := cmds[0].(bridge.SendImageCommand)
	require.True(t, ok)
	assert.Equal(t, "aGVsbG8=", img.MediaData)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, "pic", img.Caption)
}

func TestRouter_React(t *testing.T) {
	e := newEnv(t, "", nil)
	e.state.SetConnected("123", "Me")

	rec := e.do("POST", "/api/react",
		`{"contactId":"1@s.whatsapp.net","messageId":"ABC","emoji":"👍"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cmds := e.sender.sent()
	require.Len(t, cmds, 1)
	react, ok := cmds[0].(bridge.SendReactionCommand)
	require.True(t, ok)
	assert.Equal(t, "ABC", react.MessageID)
	assert.Equal(t, "👍", react.Emoji)
}

func TestRouter_MessagesPagination(t *testing.T) {
	e := newEnv(t, "", nil)

	for i := 1; i <= 5; i++ {
		require.NoError(t, e.store.AddMessage(&storage.Message{
			ID: fmt.Sprintf("m%d", i), ContactID: "1@s.whatsapp.net",
			Timestamp: int64(i * 100), ContentType: "text", ContentJSON: `{}`,
		}))
	}

	rec := e.do("GET", "/api/messages/1@s.whatsapp.net?limit=2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var page struct {
		Messages []storage.Message `json:"messages"`
		HasMore  bool              `json:"hasMore"`
	}
	decodeData(t, rec, &page)
	assert.True(t, page.HasMore)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m4", page.Messages[0].ID)
	assert.Equal(t, "m5", page.Messages[1].ID)
}

func TestRouter_TogglePin(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.store.UpsertContact("1@s.whatsapp.net", str("Alice"), nil, nil, 1))

	rec := e.do("POST", "/api/contacts/1@s.whatsapp.net/pin", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Pinned bool `json:"pinned"`
	}
	decodeData(t, rec, &resp)
	assert.True(t, resp.Pinned)
}

func TestRouter_StatsAndUsage(t *testing.T) {
	e := newEnv(t, "", nil)
	require.NoError(t, e.store.UpsertContact("c1", str("Alice"), nil, nil, 1))
	require.NoError(t, e.store.RecordUsage(storage.UsageRecord{
		Model: "claude-3-5-haiku-latest", Operation: "detect",
		InputTokens: 10, OutputTokens: 5, CostUSD: 0.001,
	}))

	rec := e.do("GET", "/api/stats", "", "")
	var stats storage.Stats
	decodeData(t, rec, &stats)
	assert.Equal(t, 1, stats.Contacts)

	rec = e.do("GET", "/api/usage", "", "")
	var usage storage.UsageSummary
	decodeData(t, rec, &usage)
	assert.Equal(t, 1, usage.Calls)
	assert.Equal(t, 10, usage.InputTokens)
}

func TestRouter_Translate(t *testing.T) {
	e := newEnv(t, "", &fakeTranslator{
		processResult: translation.Result{
			NeedsTranslation: true,
			OriginalText:     "hola",
			TranslatedText:   "hello",
			SourceLanguage:   "Spanish",
		},
	})

	require.NoError(t, e.store.AddMessage(&storage.Message{
		ID: "m1", ContactID: "c1", Timestamp: 100,
		ContentType: "text", ContentJSON: `{}`,
	}))

	rec := e.do("POST", "/api/translate",
		`{"text":"hola","messageId":"m1","contactId":"c1"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success        bool   `json:"success"`
		TranslatedText string `json:"translatedText"`
		SourceLanguage string `json:"sourceLanguage"`
	}
	decodeData(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "hello", resp.TranslatedText)
	assert.Equal(t, "Spanish", resp.SourceLanguage)

	// The stored message carries the translation from now on.
	msgs, err := e.store.GetMessages("c1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsTranslated)
	assert.Equal(t, "hello", *msgs[0].TranslatedText)
}

func TestRouter_Translate_NotConfigured(t *testing.T) {
	e := newEnv(t, "", nil)

	rec := e.do("POST", "/api/translate", `{"text":"hola"}`, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRouter_Compose(t *testing.T) {
	e := newEnv(t, "", &fakeTranslator{composed: "Sounds great, see you at 8!"})

	rec := e.do("POST", "/api/ai-compose",
		`{"prompt":"accept the dinner invite","replyToSender":"Bob","replyToText":"Dinner at 8?"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool    `json:"success"`
		Message string  `json:"message"`
		CostUSD float64 `json:"costUsd"`
	}
	decodeData(t, rec, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "Sounds great, see you at 8!", resp.Message)
	assert.InDelta(t, 0.002, resp.CostUSD, 1e-9)
}

func TestRouter_Compose_Error(t *testing.T) {
	e := newEnv(t, "", &fakeTranslator{composeErr: translation.ErrEmptyPrompt})

	rec := e.do("POST", "/api/ai-compose", `{"prompt":""}`, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_LinkPreviewCaching(t *testing.T) {
	var hits atomic.Int32
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><meta property="og:title" content="Example"></head></html>`))
	}))
	defer origin.Close()

	e := newEnv(t, "", nil)

	rec := e.do("GET", "/api/link-preview?url="+origin.URL, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var preview struct {
		Title string `json:"title"`
	}
	decodeData(t, rec, &preview)
	assert.Equal(t, "Example", preview.Title)

	// Second request is served from the cache.
	rec = e.do("GET", "/api/link-preview?url="+origin.URL, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRouter_Avatar_Disconnected(t *testing.T) {
	e := newEnv(t, "", nil)

	rec := e.do("GET", "/api/avatar/1@s.whatsapp.net", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	decodeData(t, rec, &resp)
	assert.Empty(t, resp["url"])
}

func TestRouter_Logout(t *testing.T) {
	e := newEnv(t, "hunter2", nil)
	e.state.SetConnected("123", "Me")
	e.sender.err = bridge.ErrNotRunning // skip the delivery grace period

	require.NoError(t, e.store.UpsertContact("c1", str("Alice"), nil, nil, 1))

	rec := e.do("POST", "/api/auth", `{"password":"hunter2"}`, "")
	var login struct {
		Token string `json:"token"`
	}
	decodeData(t, rec, &login)

	rec = e.do("POST", "/api/logout", "", login.Token)
	require.Equal(t, http.StatusOK, rec.Code)

	// Archive wiped, session token revoked, connection state reset.
	stats, err := e.store.GetStats()
	require.NoError(t, err)
	assert.Zero(t, stats.Contacts)

	rec = e.do("GET", "/api/status", "", login.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, e.state.Connected())
}

func TestRouter_SPAFallback(t *testing.T) {
	webDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<html>app</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(webDir, "app.js"), []byte("console.log(1)"), 0o644))

	store, err := storage.Open(filepath.Join(t.TempDir(), "watrans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	hub := handlers.NewHub()
	t.Cleanup(hub.Close)

	router := NewRouter(Dependencies{
		State:    handlers.NewState(&stubSender{}, bridge.NewCorrelator(), hub),
		Store:    store,
		Auth:     handlers.NewAuthHandler(""),
		Previews: linkpreview.NewFetcher(),
		DataDir:  t.TempDir(),
		WebDir:   webDir,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/app.js", nil))
	assert.Equal(t, "console.log(1)", rec.Body.String())

	// Client-side routes fall back to the SPA shell.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/chats/123", nil))
	assert.Contains(t, rec.Body.String(), "app")
}
