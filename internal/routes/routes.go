package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/learnova/learnova-backend/internal/handlers"
)

func SetupRoutes(r *chi.Mux) {
	// Chat snapshot API (MongoDB history + Redis recent cache)
	r.Get("/api/chat/direct", handlers.LoadDirectHistory)
	r.Get("/api/chat/group", handlers.LoadGroupHistory)
	r.Get("/api/chat/conversations", handlers.ListConversations)
	r.Get("/api/chat/online", handlers.GetOnlineStatus)

	// Group membership surface (rooms the chat client needs to join)
	r.Get("/api/groups/mine", handlers.GetMyGroups)
	r.Get("/api/groups/members", handlers.GetGroupMembers)
	r.Post("/api/groups/join", handlers.JoinGroup)
	r.Delete("/api/groups/leave", handlers.LeaveGroup)

	// Attachment upload (Cloudinary-backed; returns the media_url)
	r.Post("/api/upload", handlers.UploadFile)

	// WebSocket endpoint for realtime chat
	r.Get("/ws/chat", handlers.ChatWebSocket)
}
