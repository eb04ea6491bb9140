package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"lyric-notes/internal/adapters/ranker"
	"lyric-notes/internal/adapters/repo"
	"lyric-notes/internal/adapters/tracks"
	"lyric-notes/internal/domain"
	"lyric-notes/internal/infra/cache"
	"lyric-notes/internal/infra/config"
	"lyric-notes/internal/infra/db"
	httpinfra "lyric-notes/internal/infra/http"
	infralog "lyric-notes/internal/infra/log"
	"lyric-notes/internal/infra/metrics"
	"lyric-notes/internal/infra/queue"
	"lyric-notes/internal/usecase/annotations"
	"lyric-notes/internal/usecase/featured"
	"lyric-notes/internal/usecase/moderation"
)

func main() {
	cfg := config.Load()
	logger := infralog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	auditQueue, err := queue.NewRabbitAuditQueue(cfg.AMQPURL, cfg.Queues.Audit)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к брокеру")
	}
	defer auditQueue.Close()

	repoAdapter := repo.NewPostgres(pool)
	displayRanker := ranker.New()

	var featuredCache domain.Cache
	if cfg.RedisAddr != "" {
		featuredCache = cache.NewRedis(redis.NewClient(&redis.Options{Addr: cfg.RedisAddr}))
	}
	featuredSvc := featured.NewService(repoAdapter, repoAdapter, displayRanker, featuredCache, cfg.Featured.CacheTTL, logger.With().Str("component", "featured").Logger())
	annotationSvc := annotations.NewService(repoAdapter, repoAdapter, repoAdapter, displayRanker, featuredSvc, logger.With().Str("component", "annotations").Logger())
	moderationSvc := moderation.NewService(repoAdapter, repoAdapter, auditQueue, repoAdapter, featuredSvc, logger.With().Str("component", "moderation").Logger())
	trackClient := tracks.NewClient(cfg.Tracks.BaseURL, cfg.Tracks.APIKey, cfg.Tracks.Timeout)

	server := httpinfra.NewServer(logger.With().Str("component", "http").Logger())
	r := server.Router

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(protected chi.Router) {
		protected.Use(httpinfra.AuthMiddleware(cfg.Auth.Secret))

		protected.Post("/api/v1/documents/{documentID}/annotations", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			documentID, err := pathID(r, "documentID")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req createAnnotationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			created, err := annotationSvc.Create(r.Context(), caller, annotations.CreateParams{
				DocumentID:      documentID,
				Start:           req.Start,
				End:             req.End,
				Explanation:     req.Explanation,
				CulturalContext: req.CulturalContext,
			})
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			w.WriteHeader(http.StatusCreated)
			httpinfra.WriteJSON(w, annotationView(created))
		})

		protected.Get("/api/v1/documents/{documentID}/annotations", func(w http.ResponseWriter, r *http.Request) {
			documentID, err := pathID(r, "documentID")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			list, err := annotationSvc.ListByDocument(r.Context(), documentID, r.URL.Query().Get("sort"))
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			views := make([]map[string]any, 0, len(list))
			for _, a := range list {
				views = append(views, annotationView(a))
			}
			httpinfra.WriteJSON(w, map[string]any{"annotations": views})
		})

		protected.Get("/api/v1/documents/{documentID}/featured", func(w http.ResponseWriter, r *http.Request) {
			documentID, err := pathID(r, "documentID")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			set, err := featuredSvc.FeaturedSet(r.Context(), documentID)
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"featured": set})
		})

		protected.Patch("/api/v1/annotations/{id}", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req updateAnnotationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			updated, err := annotationSvc.Update(r.Context(), caller, id, annotations.UpdatePatch{
				Explanation:     req.Explanation,
				CulturalContext: req.CulturalContext,
			})
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, annotationView(updated))
		})

		protected.Delete("/api/v1/annotations/{id}", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			if err := annotationSvc.SoftDelete(r.Context(), caller, id); err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Post("/api/v1/annotations/{id}/vote", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req voteRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			voted, err := annotationSvc.Vote(r.Context(), caller, id, domain.VoteDirection(req.Direction))
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, annotationView(voted))
		})

		protected.Delete("/api/v1/annotations/{id}/vote", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			voted, err := annotationSvc.Unvote(r.Context(), caller, id)
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, annotationView(voted))
		})

		protected.Post("/api/v1/annotations/{id}/verify", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req moderationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			updated, err := moderationSvc.SetVerified(r.Context(), caller, id, req.Value, req.Reason)
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, annotationView(updated))
		})

		protected.Post("/api/v1/annotations/{id}/hide", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req moderationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			if err := moderationSvc.SetHidden(r.Context(), caller, id, req.Value, req.Reason); err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
		})

		protected.Delete("/api/v1/moderation/annotations/{id}", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			reason := r.URL.Query().Get("reason")
			if err := moderationSvc.Remove(r.Context(), caller, id, reason); err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		protected.Post("/api/v1/moderation/annotations/{id}/delete", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			id, err := pathID(r, "id")
			if err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, err.Error())
				return
			}
			defer r.Body.Close()
			var req moderationRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				httpinfra.WriteError(w, http.StatusBadRequest, "некорректное тело запроса")
				return
			}
			if err := moderationSvc.Delete(r.Context(), caller, id, req.Reason); err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, map[string]string{"status": "ok"})
		})

		protected.Get("/api/v1/audit", func(w http.ResponseWriter, r *http.Request) {
			caller, _ := httpinfra.CallerFrom(r.Context())
			filter := domain.AuditFilter{
				EntityType: r.URL.Query().Get("entity_type"),
				EntityID:   queryID(r, "entity_id"),
				ActorID:    queryID(r, "actor_id"),
			}
			limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
			offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
			entries, err := moderationSvc.AuditTrail(r.Context(), caller, filter, limit, offset)
			if err != nil {
				httpinfra.WriteDomainError(w, cfg.AppEnv, err)
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"entries": entries})
		})

		protected.Get("/api/v1/tracks/search", func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query().Get("q")
			if query == "" {
				httpinfra.WriteError(w, http.StatusBadRequest, "параметр q обязателен")
				return
			}
			results, err := trackClient.Search(r.Context(), query)
			if err != nil {
				log.Error().Err(err).Msg("api: поиск треков")
				httpinfra.WriteError(w, http.StatusBadGateway, "каталог недоступен")
				return
			}
			httpinfra.WriteJSON(w, map[string]any{"results": results})
		})
	})

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), cfg.MetricsAddr)

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: r, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	go func() {
		logger.Info().Int("port", cfg.Port).Msg("api: старт")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("api: сервер остановлен")
		}
	}()
	<-ctx.Done()
	logger.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("некорректный параметр %s", name)
	}
	return id, nil
}

func queryID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	return id
}

func annotationView(a domain.Annotation) map[string]any {
	return map[string]any{
		"id":               a.ID,
		"document_id":      a.DocumentID,
		"author_id":        a.AuthorID,
		"selected_text":    a.SelectedText,
		"start":            a.Start,
		"end":              a.End,
		"explanation":      a.Explanation,
		"cultural_context": a.CulturalContext,
		"upvotes":          a.Upvotes,
		"downvotes":        a.Downvotes,
		"score":            a.Score(),
		"is_verified":      a.IsVerified,
		"status":           a.Status,
		"created_at":       a.CreatedAt,
		"updated_at":       a.UpdatedAt,
	}
}

type createAnnotationRequest struct {
	Start           int    `json:"start"`
	End             int    `json:"end"`
	Explanation     string `json:"explanation"`
	CulturalContext string `json:"cultural_context,omitempty"`
}

type updateAnnotationRequest struct {
	Explanation     *string `json:"explanation,omitempty"`
	CulturalContext *string `json:"cultural_context,omitempty"`
}

type voteRequest struct {
	Direction string `json:"direction"`
}

type moderationRequest struct {
	Value  bool   `json:"value"`
	Reason string `json:"reason,omitempty"`
}
