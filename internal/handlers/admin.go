package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/migrate"
	"github.com/fofxtools/api-cache/internal/ratelimit"
	"github.com/fofxtools/api-cache/internal/store"
)

// AdminHandler exposes the cache's operational surface: table stats,
// cleanup, rate-limit inspection, and migration runs.
type AdminHandler struct {
	cfg     *config.Config
	store   *store.Store
	limiter *ratelimit.Limiter
	db      *gorm.DB
	logger  *logrus.Logger
	log     *logrus.Entry
}

func NewAdminHandler(logger *logrus.Logger, cfg *config.Config, s *store.Store, limiter *ratelimit.Limiter, db *gorm.DB) *AdminHandler {
	return &AdminHandler{
		cfg:     cfg,
		store:   s,
		limiter: limiter,
		db:      db,
		logger:  logger,
		log:     logger.WithField("component", "admin_handler"),
	}
}

// resolveHandle picks the client's table: the configured policy by default,
// or the variant forced by a ?compressed= query parameter.
func (h *AdminHandler) resolveHandle(r *http.Request) (store.TableHandle, error) {
	client := mux.Vars(r)["client"]

	var override *bool
	if raw := r.URL.Query().Get("compressed"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return store.TableHandle{}, &store.NamingError{Client: client, Reason: "invalid compressed parameter"}
		}
		override = &parsed
	}

	return store.HandleFor(client, h.cfg.Client(client).CompressionEnabled, override)
}

func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	handle, err := h.resolveHandle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	total, err := h.store.CountTotal(ctx, handle)
	if err != nil {
		h.log.WithError(err).Error("Stats query failed")
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	active, err := h.store.CountActive(ctx, handle)
	if err != nil {
		h.log.WithError(err).Error("Stats query failed")
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}
	expired, err := h.store.CountExpired(ctx, handle)
	if err != nil {
		h.log.WithError(err).Error("Stats query failed")
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client":  handle.Client,
		"table":   handle.Name(),
		"total":   total,
		"active":  active,
		"expired": expired,
	})
}

func (h *AdminHandler) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	handle, err := h.resolveHandle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	removed, err := h.store.Cleanup(r.Context(), handle)
	if err != nil {
		h.log.WithError(err).Error("Cleanup failed")
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client":  handle.Client,
		"table":   handle.Name(),
		"deleted": removed,
	})
}

func (h *AdminHandler) HandleClearCache(w http.ResponseWriter, r *http.Request) {
	handle, err := h.resolveHandle(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.ClearTable(r.Context(), handle); err != nil {
		h.log.WithError(err).Error("Clear table failed")
		writeError(w, http.StatusInternalServerError, "clear failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"client": handle.Client,
		"table":  handle.Name(),
	})
}

func (h *AdminHandler) HandleRateLimitStatus(w http.ResponseWriter, r *http.Request) {
	client := mux.Vars(r)["client"]

	writeJSON(w, http.StatusOK, map[string]any{
		"client":       client,
		"allowed":      h.limiter.AllowRequest(client),
		"attempts":     h.limiter.Attempts(client),
		"available_in": h.limiter.AvailableIn(client),
	})
}

func (h *AdminHandler) HandleRateLimitClear(w http.ResponseWriter, r *http.Request) {
	client := mux.Vars(r)["client"]
	h.limiter.Clear(client)
	writeJSON(w, http.StatusOK, map[string]any{"client": client, "cleared": true})
}

type migrateRequest struct {
	Direction string `json:"direction"`
	BatchSize int    `json:"batch_size"`
	Offset    int    `json:"offset"`
	All       bool   `json:"all"`
	Validate  bool   `json:"validate"`
}

func (h *AdminHandler) HandleMigrate(w http.ResponseWriter, r *http.Request) {
	client := mux.Vars(r)["client"]

	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	direction, err := migrate.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := []migrate.Option{
		migrate.WithBatchSize(h.cfg.MigrationBatchSize),
		migrate.WithCopyProcessingState(h.cfg.CopyProcessingState),
		migrate.WithPacer(h.cfg.MigrationRowsPerSec),
	}
	conv, err := migrate.NewConverter(h.logger, h.db, client, direction, opts...)
	if err != nil {
		var namingErr *store.NamingError
		if errors.As(err, &namingErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.WithError(err).Error("Converter setup failed")
		writeError(w, http.StatusInternalServerError, "migration setup failed")
		return
	}

	ctx := r.Context()
	var result any
	switch {
	case req.Validate && req.All:
		result, err = conv.ValidateAll(ctx)
	case req.Validate:
		result, err = conv.ValidateBatch(ctx, req.BatchSize, req.Offset)
	case req.All:
		result, err = conv.ConvertAll(ctx)
	default:
		result, err = conv.ConvertBatch(ctx, req.BatchSize, req.Offset)
	}
	if err != nil {
		h.log.WithError(err).Error("Migration run failed")
		writeError(w, http.StatusInternalServerError, "migration failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
