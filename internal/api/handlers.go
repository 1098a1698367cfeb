package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/kleio-labs/threadchat/internal/auth"
	"github.com/kleio-labs/threadchat/internal/core"
	"github.com/kleio-labs/threadchat/internal/guest"
	"github.com/kleio-labs/threadchat/internal/store"
	"github.com/kleio-labs/threadchat/internal/syncproxy"
)

const sessionCookieName = "session_token"

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	store       store.Store
	chat        *core.ChatService
	completions *core.CompletionService
	proxy       *syncproxy.Proxy
	limiter     guest.Limiter
	signer      *auth.SessionSigner
	log         *zap.SugaredLogger
}

func NewAPIHandler(st store.Store, chat *core.ChatService, completions *core.CompletionService, proxy *syncproxy.Proxy, limiter guest.Limiter, signer *auth.SessionSigner, log *zap.SugaredLogger) *APIHandler {
	return &APIHandler{
		store:       st,
		chat:        chat,
		completions: completions,
		proxy:       proxy,
		limiter:     limiter,
		signer:      signer,
		log:         log,
	}
}

// SessionMiddleware resolves the session from the session cookie or bearer
// header. Gated endpoints fail with 401 before touching any persistent
// state; there is no retry, a missing session is terminal for the request.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractSessionToken(r)
		if tokenString == "" {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, err := h.signer.Validate(tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid session")
			return
		}

		user, err := h.store.GetUserByID(r.Context(), userID)
		if err != nil {
			h.log.Errorw("failed to resolve session user", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to process user identity")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractSessionToken(r *http.Request) string {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func sessionUserID(r *http.Request) int64 {
	return r.Context().Value(userIDKey).(int64)
}

// Auth surface

type SignupRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	existing, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.log.Errorw("failed to look up user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "an account with this email already exists")
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Errorw("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process password")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Email, req.Name, hashed)
	if err != nil {
		h.log.Errorw("failed to create user", "email", req.Email, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	h.issueSession(w, user, http.StatusCreated)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		h.log.Errorw("failed to look up user", "email", req.Email, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	h.issueSession(w, user, http.StatusOK)
}

func (h *APIHandler) issueSession(w http.ResponseWriter, user *store.User, status int) {
	token, err := h.signer.Issue(user.ID)
	if err != nil {
		h.log.Errorw("failed to issue session token", "user_id", user.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, map[string]interface{}{"token": token, "user": user})
}

// Mutations

type MutationRequest struct {
	Action   string  `json:"action"`
	Title    *string `json:"title,omitempty"`
	ThreadID int64   `json:"threadId,omitempty"`
	Content  string  `json:"content,omitempty"`
}

func (h *APIHandler) MutationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := sessionUserID(r)

	var req MutationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch req.Action {
	case "createThread":
		thread, err := h.chat.CreateThread(r.Context(), userID, req.Title)
		if err != nil {
			h.log.Errorw("failed to create thread", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to create thread")
			return
		}
		writeJSON(w, http.StatusCreated, thread)

	case "addMessage":
		if req.ThreadID == 0 || req.Content == "" {
			writeError(w, http.StatusBadRequest, "threadId and content are required")
			return
		}
		msg, err := h.chat.AddMessage(r.Context(), userID, req.ThreadID, req.Content)
		if err != nil {
			if errors.Is(err, core.ErrThreadNotOwned) {
				writeError(w, http.StatusForbidden, "thread not found")
				return
			}
			h.log.Errorw("failed to add message", "user_id", userID, "thread_id", req.ThreadID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to add message")
			return
		}
		writeJSON(w, http.StatusCreated, msg)

	case "deleteAllThreads":
		if err := h.chat.DeleteAllThreads(r.Context(), userID); err != nil {
			h.log.Errorw("failed to delete threads", "user_id", userID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete threads")
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})

	default:
		writeError(w, http.StatusBadRequest, "unknown action")
	}
}

// Completion streaming

type CompletionRequest struct {
	ThreadID int64              `json:"threadId"`
	Messages []core.ChatMessage `json:"messages"`
	Model    string             `json:"model,omitempty"`
}

func (h *APIHandler) AIHandler(w http.ResponseWriter, r *http.Request) {
	userID := sessionUserID(r)

	var req CompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.ThreadID == 0 || len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "threadId and messages are required")
		return
	}

	wrote := false
	onDelta := h.streamWriter(w, &wrote)

	_, err := h.completions.StreamThreadReply(r.Context(), userID, req.ThreadID, req.Messages, req.Model, onDelta)
	if err != nil {
		if !wrote {
			if errors.Is(err, core.ErrThreadNotOwned) {
				writeError(w, http.StatusForbidden, "thread not found")
				return
			}
			h.log.Errorw("completion failed", "user_id", userID, "thread_id", req.ThreadID, "error", err)
			writeError(w, http.StatusBadGateway, "completion failed")
			return
		}
		// The stream already started; terminating it is the only signal
		// left. Nothing was persisted.
		h.log.Warnw("completion stream aborted after partial delivery", "user_id", userID, "thread_id", req.ThreadID, "error", err)
	}
}

type GuestCompletionRequest struct {
	Messages []core.ChatMessage `json:"messages"`
	Model    string             `json:"model,omitempty"`
}

func (h *APIHandler) GuestHandler(w http.ResponseWriter, r *http.Request) {
	var req GuestCompletionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages are required")
		return
	}

	allowed, err := h.limiter.Allow(r.Context(), clientIP(r))
	if err != nil {
		h.log.Errorw("guest limiter check failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to check free-request quota")
		return
	}
	if !allowed {
		writeError(w, http.StatusTooManyRequests, "free request limit reached, please sign in")
		return
	}

	wrote := false
	onDelta := h.streamWriter(w, &wrote)

	if err := h.completions.StreamGuestReply(r.Context(), req.Messages, req.Model, onDelta); err != nil {
		if !wrote {
			h.log.Errorw("guest completion failed", "error", err)
			writeError(w, http.StatusBadGateway, "completion failed")
			return
		}
		h.log.Warnw("guest completion stream aborted after partial delivery", "error", err)
	}
}

// streamWriter returns an onDelta callback that writes plain-text fragments
// and flushes each one, so the client sees text as it is generated. The
// response status is committed on the first fragment, which keeps the error
// path able to send a proper status code until then.
func (h *APIHandler) streamWriter(w http.ResponseWriter, wrote *bool) func(string) error {
	flusher, _ := w.(http.Flusher)
	return func(chunk string) error {
		if !*wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("Cache-Control", "no-cache")
			w.WriteHeader(http.StatusOK)
			*wrote = true
		}
		if _, err := w.Write([]byte(chunk)); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}
}

// Sync proxy endpoints

func (h *APIHandler) SyncThreadsHandler(w http.ResponseWriter, r *http.Request) {
	userID := sessionUserID(r)
	ids, err := h.chat.OwnedThreadIDs(r.Context(), userID)
	if err != nil {
		h.log.Errorw("failed to resolve owned threads", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve thread ownership")
		return
	}
	h.proxy.Serve(w, r, "threads", syncproxy.OwnershipFilter("id", ids))
}

func (h *APIHandler) SyncMessagesHandler(w http.ResponseWriter, r *http.Request) {
	userID := sessionUserID(r)
	ids, err := h.chat.OwnedThreadIDs(r.Context(), userID)
	if err != nil {
		h.log.Errorw("failed to resolve owned threads", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to resolve thread ownership")
		return
	}
	h.proxy.Serve(w, r, "messages", syncproxy.OwnershipFilter("thread_id", ids))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
