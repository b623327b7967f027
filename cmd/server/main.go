package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/learnova/learnova-backend/internal/config"
	"github.com/learnova/learnova-backend/internal/database"
	"github.com/learnova/learnova-backend/internal/handlers"
	"github.com/learnova/learnova-backend/internal/middleware"
	"github.com/learnova/learnova-backend/internal/routes"
	"github.com/learnova/learnova-backend/internal/services"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	cfg := config.Load()

	// Connect to PostgreSQL (users + group membership)
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis (sessions, recent cache, event bridge)
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Connect to MongoDB (message log)
	log.Printf("Connecting to MongoDB...")
	if err := database.Connect(cfg.MongoURI); err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer database.Disconnect()

	// Ensure MongoDB indexes for chat history
	if err := services.EnsureChatIndexes(context.Background()); err != nil {
		log.Printf("⚠️  WARNING: failed to ensure MongoDB chat indexes: %v", err)
	} else {
		log.Println("✅ MongoDB chat indexes ensured")
	}

	// Initialize Cloudinary service for chat attachments
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		if err := handlers.InitCloudinaryService(cfg); err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("Attachment uploads will not be available")
		} else {
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. Attachment uploads will not be available")
	}

	// Hub: offline broadcasts are delayed by the configured linger so
	// reconnect storms don't flap presence at other clients.
	services.DefaultHub = services.NewChatHub(cfg.PresenceLinger)

	// Fan chat events across instances via Redis Pub/Sub
	services.StartChatBridge(context.Background())

	// Setup router
	r := chi.NewRouter()
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.ChatSnapshotRateLimit)

	// Health check (no rate limit)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	routes.SetupRoutes(r)

	log.Println("📋 Registered routes:")
	log.Println("  GET  /health")
	log.Println("  GET  /api/chat/direct")
	log.Println("  GET  /api/chat/group")
	log.Println("  GET  /api/chat/conversations")
	log.Println("  GET  /api/chat/online")
	log.Println("  GET  /api/groups/mine")
	log.Println("  GET  /api/groups/members")
	log.Println("  POST /api/groups/join")
	log.Println("  DELETE /api/groups/leave")
	log.Println("  POST /api/upload")
	log.Println("  GET  /ws/chat")

	log.Printf("🚀 Learnova chat backend running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
