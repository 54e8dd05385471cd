package chat

import (
	"errors"
	"net/http"

	"directchat/internal/respond"
	"directchat/internal/user"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	users    UserFinder
	messages MessageStore
	logger   *zap.SugaredLogger
}

func NewHandler(users UserFinder, messages MessageStore, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		users:    users,
		messages: messages,
		logger:   logger,
	}
}

// GetConversation handles GET /conversations/{username} behind the auth middleware.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	me, ok := user.FromContext(r.Context())
	if !ok {
		respond.Error(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	other, err := h.users.FindByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "User not found")
			return
		}
		h.internalError(w, err)
		return
	}

	messages, err := h.messages.Conversation(r.Context(), me.ID, other.ID)
	if err != nil {
		h.internalError(w, err)
		return
	}

	respond.JSON(w, http.StatusOK, ConversationHistory{Messages: messages})
}

func (h *Handler) internalError(w http.ResponseWriter, err error) {
	h.logger.Errorw("loading conversation", "error", err)
	respond.Error(w, http.StatusInternalServerError, "Internal server error")
}
