package httpapi

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fieldtask/internal/service"
)

// GenerationHandler is the trigger surface of the generation engine. The
// external scheduler POSTs the run endpoint on a fixed period; the health
// endpoint reports liveness without side effects.
type GenerationHandler struct {
	runner       *service.SweepRunner
	triggerToken string
	env          string
	logger       *zap.Logger
}

func NewGenerationHandler(runner *service.SweepRunner, triggerToken, env string, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		runner:       runner,
		triggerToken: triggerToken,
		env:          env,
		logger:       logger,
	}
}

// POST /tasks/api/v1/generation/run
// Authentication is rejected before any template processing begins; an auth
// failure is a whole-sweep failure with no partial state.
func (h *GenerationHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, Fail("invalid or missing trigger credential"))
		return
	}

	report, err := h.runner.Run(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrSweepInProgress) {
			writeJSON(w, http.StatusConflict, Fail(err.Error()))
			return
		}
		// Scan/store outage: distinct from per-template failures, which are
		// inside the report.
		h.logger.Error("generation sweep failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail(err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, Ok(report))
}

// GET /tasks/api/v1/generation/health
func (h *GenerationHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}))
}

// authorized compares the bearer token against the configured secret. In
// non-production deployments with no secret configured the check is skipped;
// production always requires a configured, matching secret.
func (h *GenerationHandler) authorized(r *http.Request) bool {
	if h.triggerToken == "" {
		return h.env != "production"
	}

	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return false
	}
	presented := strings.TrimPrefix(auth, prefix)
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.triggerToken)) == 1
}
