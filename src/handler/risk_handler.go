package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"riskengine/src/auth"
	"riskengine/src/breaker"
	"riskengine/src/engine"
	"riskengine/src/model"
	"riskengine/src/security"

	logger "github.com/sirupsen/logrus"
)

const (
	OverrideTokenHeader = "X-Override-Token"
	OperatorHeader      = "X-Operator"

	actionOverrideCooldown = "override_cooldown"
	overrideTimeout        = 5 * time.Second
)

type statusReader interface {
	Snapshot() engine.Status
	Positions() []model.Position
}

type overrideSubmitter interface {
	SubmitOverride(ctx context.Context) error
}

type tokenVerifier interface {
	Verify(token string) error
}

type eventLister interface {
	Recent(ctx context.Context, limit int) ([]model.RiskEventRecord, error)
}

type overrideRequest struct {
	Action string `json:"action"`
}

type overrideResponse struct {
	Status  model.CircuitBreakerStatus `json:"status"`
	Message string                     `json:"message"`
}

// StatusHandler returns the latest engine snapshot.
func StatusHandler(reader statusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, reader.Snapshot())
	}
}

// PositionsHandler lists open positions.
func PositionsHandler(reader statusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := reader.Positions()
		if list == nil {
			list = []model.Position{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

// RecentEventsHandler lists journaled risk events, newest first.
// Supports the limit query parameter.
func RecentEventsHandler(repo eventLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
			parsed, err := strconv.Atoi(limitParam)
			if err != nil || parsed < 0 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = parsed
		}

		records, err := repo.Recent(r.Context(), limit)
		if err != nil {
			logger.WithError(err).Error("failed to load risk events")
			http.Error(w, "failed to load risk events", http.StatusInternalServerError)
			return
		}

		events := make([]model.RiskEvent, 0, len(records))
		for _, rec := range records {
			events = append(events, rec.ToRiskEvent())
		}
		writeJSON(w, http.StatusOK, events)
	}
}

// OverrideHandler lets an operator leave Breached or Cooldown early.
func OverrideHandler(verifier tokenVerifier, submitter overrideSubmitter, reader statusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := verifier.Verify(r.Header.Get(OverrideTokenHeader)); err != nil {
			if errors.Is(err, security.ErrOverrideDisabled) {
				http.Error(w, "override disabled", http.StatusForbidden)
				return
			}
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		var req overrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if req.Action != actionOverrideCooldown {
			http.Error(w, "unsupported action", http.StatusBadRequest)
			return
		}

		ctx := r.Context()
		operator := r.Header.Get(OperatorHeader)
		if operator == "" {
			operator = "unknown"
		}
		ctx = auth.WithOperator(ctx, operator)
		log := logger.WithFields(map[string]interface{}{
			"operator": operator,
			"remote":   r.RemoteAddr,
		})

		ctx, cancel := context.WithTimeout(ctx, overrideTimeout)
		defer cancel()

		if err := submitter.SubmitOverride(ctx); err != nil {
			switch {
			case errors.Is(err, breaker.ErrOverrideNotAllowed):
				log.WithError(err).Warn("override rejected")
				http.Error(w, err.Error(), http.StatusConflict)
			case errors.Is(err, engine.ErrHalted):
				log.WithError(err).Error("override on halted engine")
				http.Error(w, "engine halted", http.StatusServiceUnavailable)
			case errors.Is(err, engine.ErrInboxFull), errors.Is(err, context.DeadlineExceeded):
				log.WithError(err).Warn("override not processed")
				http.Error(w, "engine busy, retry", http.StatusServiceUnavailable)
			default:
				log.WithError(err).Error("override failed")
				http.Error(w, "override failed", http.StatusInternalServerError)
			}
			return
		}

		log.Warn("circuit breaker overridden by operator")
		writeJSON(w, http.StatusOK, overrideResponse{
			Status:  reader.Snapshot().Breaker.Status,
			Message: "override accepted",
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.WithError(err).Error("failed to encode response")
	}
}
