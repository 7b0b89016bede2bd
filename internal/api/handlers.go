package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/leebenson/conform"
	"gwi.com/polyglot-chat/internal/auth"
	"gwi.com/polyglot-chat/internal/core"
	"gwi.com/polyglot-chat/internal/logger"
	"gwi.com/polyglot-chat/internal/realtime"
	"gwi.com/polyglot-chat/internal/store"
)

type APIHandler struct {
	chatService *core.ChatService
	tokens      *auth.TokenIssuer
	hub         *realtime.Hub
	validate    *validator.Validate
}

func NewAPIHandler(cs *core.ChatService, tokens *auth.TokenIssuer, hub *realtime.Hub) *APIHandler {
	return &APIHandler{
		chatService: cs,
		tokens:      tokens,
		hub:         hub,
		validate:    validator.New(),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps core errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, action string) {
	var validationErr *core.ValidationError
	var translationErr *core.TranslationFailure
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, validationErr.Message)
	case errors.As(err, &translationErr):
		writeError(w, http.StatusBadGateway, "Could not translate your message: "+translationErr.Diagnostic)
	default:
		logger.Errorf("Failed to %s: %v", action, err)
		writeError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// decode reads a JSON body into req, trims its string fields and validates it.
func (h *APIHandler) decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := conform.Strings(req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			writeError(w, http.StatusBadRequest, fieldMessage(fieldErrs[0]))
			return false
		}
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " is too long"
	default:
		return fe.Field() + " is invalid"
	}
}

type LoginRequest struct {
	Username string `json:"username" conform:"trim" validate:"max=64"`
	Language string `json:"language" conform:"trim" validate:"max=64"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

// LoginHandler validates emptiness in the service so that its wording
// ("Please enter a username.") reaches the user unchanged.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.chatService.Login(r.Context(), req.Username, req.Language)
	if err != nil {
		writeServiceError(w, err, "log in")
		return
	}

	token, err := h.tokens.GenerateJWT(user.ID)
	if err != nil {
		logger.Errorf("Error generating JWT for user %s: %v", user.ID, err)
		writeError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	user, err := h.chatService.GetUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err, "load profile")
		return
	}
	if user == nil {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type SettingsRequest struct {
	Language string `json:"language" conform:"trim" validate:"required,max=64"`
}

func (h *APIHandler) SettingsHandler(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.chatService.UpdateLanguage(r.Context(), userIDFrom(r.Context()), req.Language)
	if err != nil {
		writeServiceError(w, err, "update settings")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *APIHandler) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.chatService.Dashboard(r.Context(), userIDFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, err, "load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

func (h *APIHandler) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	partnerID := core.NormalizeUserID(chi.URLParam(r, "partner"))

	entries, err := h.chatService.ListConversation(r.Context(), userIDFrom(r.Context()), partnerID, true)
	if err != nil {
		writeServiceError(w, err, "load conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]core.ViewEntry{"messages": entries})
}

type SendMessageRequest struct {
	Message string `json:"message" validate:"max=4000"`
}

func (h *APIHandler) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	partnerID := core.NormalizeUserID(chi.URLParam(r, "partner"))

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry, err := h.chatService.AppendAndTranslate(r.Context(), userIDFrom(r.Context()), partnerID, req.Message)
	if err != nil {
		writeServiceError(w, err, "send message")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]*core.ViewEntry{"message": entry})
}

func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	h.hub.Serve(w, r, userIDFrom(r.Context()))
}
