package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/learnova/learnova-backend/internal/services"
)

// Group membership is owned by the course/enrollment layer; these endpoints
// expose the read surface chat clients need (which rooms to join after
// connecting) plus join/leave for self-service course groups.

type MyGroupsResponse struct {
	Success bool     `json:"success"`
	Groups  []string `json:"groups"`
}

type GroupMembersResponse struct {
	Success bool                   `json:"success"`
	Members []services.GroupMember `json:"members"`
	Total   int                    `json:"total"`
}

type GroupActionRequest struct {
	GroupID string `json:"group_id"`
}

type GroupActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// GetMyGroups lists the ids of the groups the caller belongs to. Clients
// call this after connecting (and after every reconnect) to know which
// rooms to join.
func GetMyGroups(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	groups, err := services.ListGroupsForUser(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load groups")
		return
	}
	if groups == nil {
		groups = []string{}
	}

	writeJSON(w, http.StatusOK, MyGroupsResponse{
		Success: true,
		Groups:  groups,
	})
}

// GetGroupMembers lists the members of a group the caller belongs to.
func GetGroupMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := services.ListMembersForGroup(groupID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load members")
		return
	}

	writeJSON(w, http.StatusOK, GroupMembersResponse{
		Success: true,
		Members: members,
		Total:   len(members),
	})
}

// JoinGroup adds the caller to a group. Joining twice is harmless.
func JoinGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req GroupActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if err := services.JoinGroupMembership(userID, req.GroupID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to join group")
		return
	}

	writeJSON(w, http.StatusOK, GroupActionResponse{
		Success: true,
		Message: "Joined group",
	})
}

// LeaveGroup removes the caller from a group. Leaving a group the caller
// isn't in is a no-op.
func LeaveGroup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req GroupActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	req.GroupID = strings.TrimSpace(req.GroupID)
	if req.GroupID == "" {
		writeError(w, http.StatusBadRequest, "group_id is required")
		return
	}

	if err := services.LeaveGroupMembership(userID, req.GroupID); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to leave group")
		return
	}

	writeJSON(w, http.StatusOK, GroupActionResponse{
		Success: true,
		Message: "Left group",
	})
}
