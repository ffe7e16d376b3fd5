// Package api exposes the HTTP surface: the Evolution webhook that feeds the
// dispatcher, the sensor ingestion webhook, and a bearer-authenticated
// management API for users, documents and interactions.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/lavrabot/lavra/internal/authz"
	"github.com/lavrabot/lavra/internal/evolution"
	"github.com/lavrabot/lavra/internal/ingest"
	"github.com/lavrabot/lavra/internal/storage"
)

const maxWebhookBodySize = 1 << 20 // 1MB

// Dispatcher receives inbound message fragments.
type Dispatcher interface {
	OnMessageReceived(ctx context.Context, key, text string) error
}

// Deps carries everything the HTTP handlers need.
type Deps struct {
	Store      *storage.Store
	Dispatcher Dispatcher
	Token      string
	Logger     *slog.Logger
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Post("/webhook/chatbot", handleChatbotWebhook(deps))
	r.Post("/webhook/sensors", handleSensorWebhook(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/users", handleCreateUser(deps))
		r.Get("/users", handleListUsers(deps))
		r.Patch("/users/{phone}", handleSetUserActive(deps))
		r.Post("/ingest", handleIngest(deps))
		r.Get("/kb-docs", handleListKBDocs(deps))
		r.Get("/interactions", handleListInteractions(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleChatbotWebhook accepts Evolution API events. Only direct-chat
// messages.upsert events from other parties feed the dispatcher; everything
// else is acknowledged and dropped so the gateway does not retry.
func handleChatbotWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()

		var payload evolution.WebhookPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid webhook body: %v", err)
			return
		}

		if payload.Event != evolution.EventMessagesUpsert {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		jid := payload.Data.Key.RemoteJID
		text := payload.Data.Message.Text()
		if payload.Data.Key.FromMe || evolution.IsGroupJID(jid) || jid == "" || text == "" {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
			return
		}

		key := evolution.NumberFromJID(jid)
		if err := deps.Dispatcher.OnMessageReceived(r.Context(), key, text); err != nil {
			deps.Logger.Error("dispatching inbound message", "key", key, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to buffer message")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	}
}

// sensorReadingRequest mirrors the field-station payload.
type sensorReadingRequest struct {
	Timestamp     string  `json:"timestamp"`
	Umidade       float64 `json:"umidade"`
	Condutividade float64 `json:"condutividade"`
	Temperatura   float64 `json:"temperatura"`
	PH            float64 `json:"ph"`
	Nitrogenio    float64 `json:"nitrogenio"`
	Fosforo       float64 `json:"fosforo"`
	Potassio      float64 `json:"potassio"`
	Salinidade    float64 `json:"salinidade"`
	TDS           float64 `json:"tds"`
}

func handleSensorWebhook(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBodySize)
		defer r.Body.Close()

		var req sensorReadingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid reading body: %v", err)
			return
		}

		reading := storage.SensorReading{
			Umidade:       req.Umidade,
			Condutividade: req.Condutividade,
			Temperatura:   req.Temperatura,
			PH:            req.PH,
			Nitrogenio:    req.Nitrogenio,
			Fosforo:       req.Fosforo,
			Potassio:      req.Potassio,
			Salinidade:    req.Salinidade,
			TDS:           req.TDS,
		}
		if req.Timestamp != "" {
			ts, err := time.Parse(time.RFC3339, req.Timestamp)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid timestamp: %v", err)
				return
			}
			reading.Timestamp = ts
		}

		if err := deps.Store.InsertSensorReading(reading); err != nil {
			deps.Logger.Error("saving sensor reading", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save reading")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
	}
}

type createUserRequest struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	Active *bool  `json:"active"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

func handleCreateUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}
		phone := authz.Normalize(req.Phone)
		if phone == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "phone must contain digits")
			return
		}

		active := true
		if req.Active != nil {
			active = *req.Active
		}

		user := storage.User{
			ID:     uuid.NewString(),
			Name:   req.Name,
			Email:  req.Email,
			Phone:  phone,
			Active: active,
		}
		if err := deps.Store.CreateUser(user); err != nil {
			deps.Logger.Error("creating user", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create user")
			return
		}

		writeJSON(w, http.StatusCreated, toUserResponse(user))
	}
}

func handleListUsers(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := deps.Store.ListUsers()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list users")
			return
		}
		out := make([]userResponse, len(users))
		for i, u := range users {
			out[i] = toUserResponse(u)
		}
		writeJSON(w, http.StatusOK, map[string]any{"users": out})
	}
}

func handleSetUserActive(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		phone := authz.Normalize(chi.URLParam(r, "phone"))

		var req struct {
			Active *bool `json:"active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Active == nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "active is required")
			return
		}

		if err := deps.Store.SetUserActive(phone, *req.Active); err != nil {
			if err == storage.ErrNotFound {
				httpError(w, http.StatusNotFound, "not_found_error", "user %s not found", phone)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update user")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"phone": phone, "active": *req.Active})
	}
}

type ingestRequest struct {
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Source  string   `json:"source"`
	Tags    []string `json:"tags"`
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "content is required")
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}

		tags := "[]"
		if len(req.Tags) > 0 {
			b, err := json.Marshal(req.Tags)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid tags: %v", err)
				return
			}
			tags = string(b)
		}

		doc := storage.KBDoc{
			ID:      uuid.NewString(),
			Title:   req.Title,
			Content: req.Content,
			Source:  req.Source,
			Tags:    tags,
		}
		if err := deps.Store.SaveKBDoc(doc); err != nil {
			deps.Logger.Error("saving document", "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save document")
			return
		}

		payload, _ := json.Marshal(ingest.EmbedPayload{KBDocID: doc.ID})
		job := storage.Job{
			ID:          uuid.NewString(),
			Type:        ingest.JobTypeEmbed,
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			deps.Logger.Error("enqueuing embed job", "doc_id", doc.ID, "error", err)
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue embedding")
			return
		}

		writeJSON(w, http.StatusCreated, map[string]string{
			"id":     doc.ID,
			"job_id": job.ID,
			"status": "queued",
		})
	}
}

func handleListKBDocs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListKBDocs(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list documents")
			return
		}

		type docSummary struct {
			ID        string    `json:"id"`
			Title     string    `json:"title"`
			Source    string    `json:"source"`
			Tags      string    `json:"tags"`
			Embedded  bool      `json:"embedded"`
			CreatedAt time.Time `json:"created_at"`
		}
		out := make([]docSummary, len(docs))
		for i, d := range docs {
			out[i] = docSummary{
				ID:        d.ID,
				Title:     d.Title,
				Source:    d.Source,
				Tags:      d.Tags,
				Embedded:  d.VectorID != "",
				CreatedAt: d.CreatedAt,
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		interactions, err := deps.Store.GetRecentInteractions(100)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions")
			return
		}

		type interactionResponse struct {
			ID         string    `json:"id"`
			SessionKey string    `json:"session_key"`
			Question   string    `json:"question"`
			Answer     string    `json:"answer"`
			Status     string    `json:"status"`
			CreatedAt  time.Time `json:"created_at"`
		}
		out := make([]interactionResponse, len(interactions))
		for i, it := range interactions {
			out[i] = interactionResponse(it)
		}
		writeJSON(w, http.StatusOK, map[string]any{"interactions": out})
	}
}

func toUserResponse(u storage.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
