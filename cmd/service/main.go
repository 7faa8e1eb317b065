package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/ezmary/usage-credits/core"
)

type contextKey string

const requestIDKey contextKey = "request_id"

const maxImageBytes = 10 << 20 // 10 MiB upload cap

func main() {
	cfg := loadConfig()
	setupLogging(cfg.LogLevel)

	manager, err := core.NewManagerWithOptions(core.ManagerOptions{
		HubRepo:         cfg.DatasetRepo,
		HubFile:         cfg.DatasetFile,
		HubToken:        cfg.HFToken,
		RedisAddr:       cfg.RedisAddr,
		Limit:           cfg.UsageLimit,
		PersistInterval: cfg.PersistInterval,
		ScratchDir:      cfg.ScratchDir,
	})
	if err != nil {
		slog.Error("init manager", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.LoadInitial(ctx)
	go manager.Run(ctx)

	keys := core.ParseKeyring(cfg.GeminiKeys)
	if keys.Len() == 0 {
		slog.Error("CRITICAL: no Gemini API keys configured, prompt enhancement will fail")
	} else {
		slog.Info("loaded Gemini keys for rotation", "count", keys.Len())
	}
	enhancer := core.NewEnhancer(keys, cfg.GeminiModel)

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(loggingMiddleware)

	r.Post("/api/check-credit", handleCheckCredit(manager))
	r.Post("/api/use-credit", handleUseCredit(manager))
	r.Post("/api/enhance-animation-prompt", handleEnhance(enhancer))
	r.With(jwtAuth(cfg.AdminJWTSecret)).Get("/api/admin/usage", handleAdminUsage(manager))
	if cfg.StaticDir != "" {
		r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: r,
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr, "limit", manager.Limit())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// --- handlers ---

type creditRequest struct {
	Fingerprint string `json:"fingerprint"`
}

func handleCheckCredit(manager *core.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req creditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		id := core.ClientIdentifier(r, req.Fingerprint)

		status, err := manager.CheckCredit(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "User identifier is required.")
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func handleUseCredit(manager *core.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req creditRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request")
			return
		}
		id := core.ClientIdentifier(r, req.Fingerprint)

		result, err := manager.UseCredit(id)
		if err != nil {
			writeError(w, http.StatusBadRequest, "User identifier is required.")
			return
		}
		if result.Status == core.StatusLimitReached {
			writeJSON(w, http.StatusTooManyRequests, result)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func handleEnhance(enhancer *core.Enhancer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxImageBytes); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body.")
			return
		}
		file, header, err := r.FormFile("image")
		if err != nil {
			writeError(w, http.StatusBadRequest, "Image file is required.")
			return
		}
		defer file.Close()

		image, err := io.ReadAll(io.LimitReader(file, maxImageBytes))
		if err != nil || len(image) == 0 {
			writeError(w, http.StatusBadRequest, "Invalid or corrupt image file.")
			return
		}
		mimeType := header.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = http.DetectContentType(image)
		}
		idea := r.FormValue("prompt")
		slog.Info("received enhancement request", "idea", idea)

		result, err := enhancer.Enhance(r.Context(), image, mimeType, idea)
		switch {
		case errors.Is(err, core.ErrNoKeys):
			writeError(w, http.StatusInternalServerError, "No Gemini API keys are configured on the server.")
		case errors.Is(err, core.ErrKeysExhausted):
			writeError(w, http.StatusServiceUnavailable, "The AI enhancement service is temporarily unavailable. Please try again later.")
		case err != nil:
			writeError(w, http.StatusServiceUnavailable, "The AI enhancement service is temporarily unavailable. Please try again later.")
		default:
			writeJSON(w, http.StatusOK, result)
		}
	}
}

func handleAdminUsage(manager *core.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"limit":   manager.Limit(),
			"records": manager.Snapshot(),
		})
	}
}

// --- middleware & helpers ---

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		id, _ := r.Context().Value(requestIDKey).(string)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"request_id", id,
		)
	})
}

func jwtAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				http.Error(w, "admin API disabled", http.StatusForbidden)
				return
			}
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			raw := strings.TrimSpace(auth[7:])
			tok, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(secret), nil
			})
			if err != nil || !tok.Valid {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- config ---

type config struct {
	Port            int
	HFToken         string
	DatasetRepo     string
	DatasetFile     string
	RedisAddr       string
	UsageLimit      int
	PersistInterval time.Duration
	ScratchDir      string
	GeminiKeys      string
	GeminiModel     string
	AdminJWTSecret  string
	StaticDir       string
	LogLevel        string
}

func loadConfig() config {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to load env file", "file", file, "error", err)
		}
	}

	return config{
		Port:            envInt("PORT", 8080),
		HFToken:         os.Getenv("HF_TOKEN"),
		DatasetRepo:     envOr("DATASET_REPO", "Ezmary/Karbaran-rayegan-tedad"),
		DatasetFile:     envOr("DATASET_FILE", "video_usage_data.json"),
		RedisAddr:       os.Getenv("REDIS_ADDR"),
		UsageLimit:      envInt("USAGE_LIMIT", core.DefaultLimit),
		PersistInterval: time.Duration(envInt("PERSIST_INTERVAL_SECONDS", 30)) * time.Second,
		ScratchDir:      os.Getenv("SCRATCH_DIR"),
		GeminiKeys:      os.Getenv("ALL_GEMINI_API_KEYS"),
		GeminiModel:     os.Getenv("GEMINI_MODEL"),
		AdminJWTSecret:  os.Getenv("ADMIN_JWT_SECRET"),
		StaticDir:       envOr("STATIC_DIR", "static"),
		LogLevel:        envOr("LOG_LEVEL", "info"),
	}
}

func envOr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}
