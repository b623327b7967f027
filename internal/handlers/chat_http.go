package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/learnova/learnova-backend/internal/models"
	"github.com/learnova/learnova-backend/internal/services"
)

// ChatSnapshotResponse is returned by the snapshot endpoints the client
// reconciliation layer bootstraps from.
type ChatSnapshotResponse struct {
	Success  bool             `json:"success"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

type ConversationsResponse struct {
	Success  bool     `json:"success"`
	Partners []string `json:"partners"`
}

type OnlineStatusResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"user_id"`
	Online  bool   `json:"online"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// requireUser resolves the session token to a verified user id.
func requireUser(r *http.Request) (uuid.UUID, bool) {
	token := extractBearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return uuid.Nil, false
	}
	userID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		return uuid.Nil, false
	}
	return userID, true
}

// parseSnapshotWindow reads the shared before/limit pagination params.
func parseSnapshotWindow(r *http.Request) (*time.Time, int64) {
	limit := int64(50)
	if lStr := r.URL.Query().Get("limit"); lStr != "" {
		if parsed, err := strconv.ParseInt(lStr, 10, 64); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	var before *time.Time
	if bStr := r.URL.Query().Get("before"); bStr != "" {
		if t, err := time.Parse(time.RFC3339, bStr); err == nil {
			before = &t
		}
	}
	return before, limit
}

// LoadDirectHistory loads a paginated direct-conversation snapshot between
// the caller and peer_id.
// Query params:
//
//	peer_id (required)
//	before  (optional RFC3339 timestamp for pagination)
//	limit   (optional, default 50)
func LoadDirectHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	peerID := r.URL.Query().Get("peer_id")
	if peerID == "" {
		writeError(w, http.StatusBadRequest, "peer_id is required")
		return
	}

	before, limit := parseSnapshotWindow(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msgs, hasMore, err := services.LoadDirectMessagesWithCache(ctx, userID.String(), peerID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, ChatSnapshotResponse{
		Success:  true,
		Messages: msgs,
		HasMore:  hasMore,
	})
}

// LoadGroupHistory loads a paginated group-conversation snapshot. Callers
// must be members of the group.
func LoadGroupHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	groupID := r.URL.Query().Get("group_id")
	if groupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}
	if !services.IsGroupMember(userID, groupID) {
		writeError(w, http.StatusForbidden, "you must be a member of this group")
		return
	}

	before, limit := parseSnapshotWindow(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	msgs, hasMore, err := services.LoadGroupMessagesWithCache(ctx, groupID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, ChatSnapshotResponse{
		Success:  true,
		Messages: msgs,
		HasMore:  hasMore,
	})
}

// ListConversations returns the ids of everyone the caller has a direct
// conversation with.
func ListConversations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	partners, err := services.ListConversationPartners(ctx, userID.String())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load conversations")
		return
	}
	if partners == nil {
		partners = []string{}
	}

	writeJSON(w, http.StatusOK, ConversationsResponse{
		Success:  true,
		Partners: partners,
	})
}

// GetOnlineStatus reports whether a user currently has a live connection.
// Presence is connection-scoped state on this instance, rebuilt from scratch
// on restart.
func GetOnlineStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	targetID := r.URL.Query().Get("user_id")
	if targetID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	writeJSON(w, http.StatusOK, OnlineStatusResponse{
		Success: true,
		UserID:  targetID,
		Online:  services.DefaultHub.Presence().IsOnline(targetID),
	})
}
