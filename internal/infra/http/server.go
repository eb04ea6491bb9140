package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"lyric-notes/internal/domain"
)

// Server оборачивает chi.Router с базовыми middlewares.
type Server struct {
	Router chi.Router
	log    zerolog.Logger
}

// NewServer создаёт HTTP сервер.
func NewServer(logger zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	return &Server{Router: r, log: logger}
}

// Start запускает http.Server.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("HTTP сервер запущен")
	return srv.ListenAndServe()
}

// WriteJSON отправляет ответ в JSON.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError отправляет JSON с ошибкой и статусом.
func WriteError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": msg})
}

// WriteDomainError отображает таксономию ошибок движка на HTTP статусы.
// Неожиданные ошибки наружу уходят обезличенно; детали остаются в логах.
func WriteDomainError(w http.ResponseWriter, appEnv string, err error) {
	switch {
	case domain.IsValidation(err):
		WriteError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		WriteError(w, http.StatusForbidden, domain.ErrForbidden.Error())
	default:
		if appEnv == "dev" {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteError(w, http.StatusInternalServerError, "внутренняя ошибка")
	}
}
