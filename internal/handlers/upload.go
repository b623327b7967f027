package handlers

import (
	"net/http"

	"github.com/learnova/learnova-backend/internal/config"
	"github.com/learnova/learnova-backend/internal/services"
)

var cloudinaryService *services.CloudinaryService

func InitCloudinaryService(cfg *config.Config) error {
	service, err := services.NewCloudinaryService(
		cfg.CloudinaryName,
		cfg.CloudinaryAPIKey,
		cfg.CloudinaryAPISecret,
	)
	if err != nil {
		return err
	}
	cloudinaryService = service
	return nil
}

type UploadResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// UploadFile stores a chat attachment (image or voice note) and returns the
// URL to embed in a message's media_url. Raw bytes never touch the message
// store.
func UploadFile(w http.ResponseWriter, r *http.Request) {
	if cloudinaryService == nil {
		writeError(w, http.StatusServiceUnavailable, "uploads are not available")
		return
	}

	if _, ok := requireUser(r); !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	// Parse multipart form (max 10MB)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Failed to parse form: "+err.Error())
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided: "+err.Error())
		return
	}
	defer file.Close()

	category := r.URL.Query().Get("category")
	switch category {
	case "image", "voice":
	case "":
		category = "image"
	default:
		writeError(w, http.StatusBadRequest, "category must be image or voice")
		return
	}

	url, err := cloudinaryService.UploadFileFromHeader(r.Context(), fileHeader, category)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to upload file: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: "File uploaded successfully",
		URL:     url,
	})
}
