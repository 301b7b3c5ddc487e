package api

import (
	"errors"
	"net/http"

	"github.com/mmeink/livechat/backend/internal/chat"
	"github.com/mmeink/livechat/backend/internal/dispatch"
	"github.com/mmeink/livechat/backend/internal/registry"
)

// writeError maps domain errors to HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, registry.ErrAgentNotFound),
		errors.Is(err, dispatch.ErrTransferNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, chat.ErrInvalidTransition),
		errors.Is(err, chat.ErrAlreadyRated),
		errors.Is(err, dispatch.ErrTransferPending),
		errors.Is(err, dispatch.ErrSelfTransfer),
		errors.Is(err, dispatch.ErrCapacityExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, chat.ErrInvalidRating):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, chat.ErrTokenInvalid),
		errors.Is(err, chat.ErrTokenExpired):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, dispatch.ErrNotTransferTarget):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, dispatch.ErrTransferExpired):
		http.Error(w, err.Error(), http.StatusGone)
	default:
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
