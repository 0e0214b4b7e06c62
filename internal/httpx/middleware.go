package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"local.dev/nexboard-backend/internal/board"
	"local.dev/nexboard-backend/internal/config"
	"local.dev/nexboard-backend/internal/feed"
	"local.dev/nexboard-backend/internal/models"
	"local.dev/nexboard-backend/internal/session"
	"local.dev/nexboard-backend/internal/ws"
)

type ctxKey string

const sessKey ctxKey = "session"

// SessionService is the slice of the session provider the handlers use.
type SessionService interface {
	SignUp(ctx context.Context, email, password, displayName string) (models.Session, error)
	SignIn(ctx context.Context, email, password string) (models.Session, session.Tokens, error)
	SignOut(ctx context.Context, uid string) error
	Verify(ctx context.Context, idToken string) (models.Session, error)
}

type AppCtx struct {
	Sessions SessionService
	Feed     *feed.Synchronizer
	Composer *board.Composer
	Hub      *ws.Hub
	Cfg      config.Config
}

func currentSession(r *http.Request) models.Session {
	if v := r.Context().Value(sessKey); v != nil {
		if s, ok := v.(models.Session); ok {
			return s
		}
	}
	return models.Session{}
}

// WithAuth requires a Firebase ID token as a bearer token and resolves it
// to the caller's session.
func WithAuth(app *AppCtx, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		if !strings.HasPrefix(authz, "Bearer ") {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing bearer token"})
			return
		}
		idToken := strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
		sess, err := app.Sessions.Verify(r.Context(), idToken)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		ctx := context.WithValue(r.Context(), sessKey, sess)
		next(w, r.WithContext(ctx))
	}
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr maps domain errors onto statuses; everything user-facing is a
// message, nothing escapes unhandled.
func writeErr(w http.ResponseWriter, err error) {
	var (
		sv *session.ValidationError
		bv *board.ValidationError
		ae *session.AuthError
		ue *board.UploadError
		we *board.WriteError
	)
	switch {
	case errors.As(err, &sv), errors.As(err, &bv):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &ae):
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
	case errors.Is(err, board.ErrSubmitInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, board.ErrConfirmationRequired):
		writeJSON(w, http.StatusPreconditionRequired, map[string]string{"error": err.Error()})
	case errors.Is(err, board.ErrNotAuthor):
		writeJSON(w, http.StatusForbidden, map[string]string{"error": err.Error()})
	case errors.Is(err, board.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &ue), errors.As(err, &we):
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "Failed to save post. Please try again."})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
