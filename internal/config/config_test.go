package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENV", "PORT", "MONGODB_URI", "MONGO_URI", "POSTGRES_URI", "REDIS_URI",
		"FRONTEND_URL", "FRONTEND_URL_2", "ALLOWED_ORIGINS", "PRESENCE_LINGER_SECONDS",
		"CLOUDINARY_CLOUD_NAME", "CLOUDINARY_API_KEY", "CLOUDINARY_API_SECRET",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://localhost:27017/learnova" {
		t.Errorf("MongoURI = %q", cfg.MongoURI)
	}
	if cfg.Environment != "development" || cfg.IsProduction() {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.PresenceLinger != 2*time.Second {
		t.Errorf("PresenceLinger = %v, want 2s", cfg.PresenceLinger)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV", " Production ")
	t.Setenv("PORT", "9000")
	t.Setenv("MONGO_URI", "mongodb://db:27017/chat")
	t.Setenv("PRESENCE_LINGER_SECONDS", "5")

	cfg := Load()
	if !cfg.IsProduction() {
		t.Errorf("Environment = %q, want production", cfg.Environment)
	}
	if cfg.Port != "9000" {
		t.Errorf("Port = %q, want 9000", cfg.Port)
	}
	if cfg.MongoURI != "mongodb://db:27017/chat" {
		t.Errorf("MongoURI = %q (MONGO_URI fallback)", cfg.MongoURI)
	}
	if cfg.PresenceLinger != 5*time.Second {
		t.Errorf("PresenceLinger = %v, want 5s", cfg.PresenceLinger)
	}
}

func TestLoadAllowedOrigins(t *testing.T) {
	t.Run("explicit list wins", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
		t.Setenv("FRONTEND_URL", "https://ignored.example")

		cfg := Load()
		if len(cfg.AllowedOrigins) != 2 ||
			cfg.AllowedOrigins[0] != "https://a.example" ||
			cfg.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
		}
	})

	t.Run("frontend urls as fallback", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("FRONTEND_URL", "https://app.example")
		t.Setenv("FRONTEND_URL_2", "https://staging.example")

		cfg := Load()
		if len(cfg.AllowedOrigins) != 2 ||
			cfg.AllowedOrigins[0] != "https://app.example" ||
			cfg.AllowedOrigins[1] != "https://staging.example" {
			t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
		}
	})
}

func TestLoadLingerIgnoresInvalid(t *testing.T) {
	for _, bad := range []string{"abc", "-1"} {
		t.Run(bad, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PRESENCE_LINGER_SECONDS", bad)
			if cfg := Load(); cfg.PresenceLinger != 2*time.Second {
				t.Errorf("PresenceLinger = %v, want default 2s", cfg.PresenceLinger)
			}
		})
	}
}

func TestLoadLingerZeroDisables(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRESENCE_LINGER_SECONDS", "0")
	if cfg := Load(); cfg.PresenceLinger != 0 {
		t.Errorf("PresenceLinger = %v, want 0", cfg.PresenceLinger)
	}
}
