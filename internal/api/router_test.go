package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lavrabot/lavra/internal/storage"
)

const testToken = "test-token-12345"

type fakeDispatcher struct {
	keys  []string
	texts []string
	err   error
}

func (f *fakeDispatcher) OnMessageReceived(_ context.Context, key, text string) error {
	if f.err != nil {
		return f.err
	}
	f.keys = append(f.keys, key)
	f.texts = append(f.texts, text)
	return nil
}

func setupRouter(t *testing.T, disp Dispatcher) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewRouter(Deps{
		Store:      store,
		Dispatcher: disp,
		Token:      testToken,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h, store
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func upsertBody(jid string, fromMe bool, text string) string {
	b, _ := json.Marshal(map[string]any{
		"event":    "messages.upsert",
		"instance": "lavra",
		"data": map[string]any{
			"key": map[string]any{
				"remoteJid": jid,
				"fromMe":    fromMe,
				"id":        "msg-1",
			},
			"message": map[string]any{
				"conversation": text,
			},
		},
	})
	return string(b)
}

func TestHealth(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestChatbotWebhook_Accepted(t *testing.T) {
	disp := &fakeDispatcher{}
	h, _ := setupRouter(t, disp)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", upsertBody("5511999990000@s.whatsapp.net", false, "Olá"), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}
	if len(disp.keys) != 1 || disp.keys[0] != "5511999990000" {
		t.Errorf("dispatcher keys = %v", disp.keys)
	}
	if disp.texts[0] != "Olá" {
		t.Errorf("dispatcher text = %q", disp.texts[0])
	}
}

func TestChatbotWebhook_IgnoresFromMe(t *testing.T) {
	disp := &fakeDispatcher{}
	h, _ := setupRouter(t, disp)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", upsertBody("5511999990000@s.whatsapp.net", true, "eco"), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(disp.keys) != 0 {
		t.Errorf("own message reached the dispatcher: %v", disp.keys)
	}
}

func TestChatbotWebhook_IgnoresGroups(t *testing.T) {
	disp := &fakeDispatcher{}
	h, _ := setupRouter(t, disp)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", upsertBody("12036304@g.us", false, "mensagem de grupo"), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(disp.keys) != 0 {
		t.Errorf("group message reached the dispatcher: %v", disp.keys)
	}
}

func TestChatbotWebhook_IgnoresOtherEvents(t *testing.T) {
	disp := &fakeDispatcher{}
	h, _ := setupRouter(t, disp)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", `{"event":"connection.update","instance":"lavra"}`, "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(disp.keys) != 0 {
		t.Errorf("non-upsert event reached the dispatcher: %v", disp.keys)
	}
}

func TestChatbotWebhook_IgnoresEmptyText(t *testing.T) {
	disp := &fakeDispatcher{}
	h, _ := setupRouter(t, disp)

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", upsertBody("5511999990000@s.whatsapp.net", false, ""), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if len(disp.keys) != 0 {
		t.Errorf("empty message reached the dispatcher: %v", disp.keys)
	}
}

func TestChatbotWebhook_Malformed(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", "{not json", "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestChatbotWebhook_DispatchError(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{err: errors.New("buffer down")})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/chatbot", upsertBody("5511999990000@s.whatsapp.net", false, "Olá"), "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestSensorWebhook(t *testing.T) {
	h, store := setupRouter(t, &fakeDispatcher{})

	body := `{"timestamp":"2026-08-29T10:00:00Z","umidade":42.5,"temperatura":24.1,"ph":6.3}`
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/sensors", body, "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var count int
	if err := store.DB().QueryRow("SELECT COUNT(*) FROM sensor_readings").Scan(&count); err != nil {
		t.Fatalf("counting readings: %v", err)
	}
	if count != 1 {
		t.Errorf("readings = %d, want 1", count)
	}
}

func TestSensorWebhook_BadTimestamp(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/webhook/sensors", `{"timestamp":"ontem","umidade":42.5}`, "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestCreateUser(t *testing.T) {
	h, store := setupRouter(t, &fakeDispatcher{})

	body := `{"name":"Maria","phone":"+55 (11) 99999-0000"}`
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/users", body, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp userResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Phone != "5511999990000" {
		t.Errorf("phone = %q, want digits only", resp.Phone)
	}
	if !resp.Active {
		t.Error("new users should default to active")
	}

	if _, err := store.FindUserByPhone("5511999990000"); err != nil {
		t.Errorf("user not persisted: %v", err)
	}
}

func TestCreateUser_NoAuth(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/users", `{"name":"Maria","phone":"5511999990000"}`, "")
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestCreateUser_MissingPhone(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/users", `{"name":"Maria","phone":"sem numero"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestSetUserActive(t *testing.T) {
	h, store := setupRouter(t, &fakeDispatcher{})

	if err := store.CreateUser(storage.User{ID: "u1", Name: "João", Phone: "5511999990000", Active: true}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPatch, "/users/5511999990000", `{"active":false}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	u, err := store.FindUserByPhone("5511999990000")
	if err != nil {
		t.Fatalf("FindUserByPhone: %v", err)
	}
	if u.Active {
		t.Error("user still active after deactivation")
	}
}

func TestSetUserActive_NotFound(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPatch, "/users/5500000000000", `{"active":true}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestIngestQueuesEmbedding(t *testing.T) {
	h, store := setupRouter(t, &fakeDispatcher{})

	body := `{"title":"Calagem","content":"A calagem corrige a acidez do solo.","tags":["solo"]}`
	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/ingest", body, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusCreated, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["id"] == "" {
		t.Fatalf("response = %v", resp)
	}

	doc, err := store.GetKBDoc(resp["id"])
	if err != nil {
		t.Fatalf("GetKBDoc(%q): %v", resp["id"], err)
	}
	if doc.Tags != `["solo"]` {
		t.Errorf("tags = %q", doc.Tags)
	}

	job, err := store.ClaimNextJob([]string{"kb_embed"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil {
		t.Fatal("no embed job enqueued")
	}
	if !strings.Contains(job.PayloadJSON, resp["id"]) {
		t.Errorf("job payload %q missing doc id", job.PayloadJSON)
	}
}

func TestIngest_MissingContent(t *testing.T) {
	h, _ := setupRouter(t, &fakeDispatcher{})

	rr := httptest.NewRecorder()
	req := authReq(http.MethodPost, "/ingest", `{"title":"vazio"}`, testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestListInteractions(t *testing.T) {
	h, store := setupRouter(t, &fakeDispatcher{})

	err := store.SaveInteraction(storage.Interaction{
		ID:         "i1",
		SessionKey: "5511999990000",
		Question:   "Qual o pH ideal?",
		Answer:     "Entre 6 e 7.",
		Status:     "answered",
		CreatedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("SaveInteraction: %v", err)
	}

	rr := httptest.NewRecorder()
	req := authReq(http.MethodGet, "/interactions", "", testToken)
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	var resp struct {
		Interactions []struct {
			ID       string `json:"id"`
			Question string `json:"question"`
			Status   string `json:"status"`
		} `json:"interactions"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Interactions) != 1 || resp.Interactions[0].Question != "Qual o pH ideal?" {
		t.Errorf("interactions = %+v", resp.Interactions)
	}
}
