package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	app "github.com/vibestream/fanventures/internal/app"
	"github.com/vibestream/fanventures/internal/app/domain/venture"
	"github.com/vibestream/fanventures/internal/app/faults"
	"github.com/vibestream/fanventures/internal/app/metrics"
	"github.com/vibestream/fanventures/internal/app/services/catalog"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a mux exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}
	mux := http.NewServeMux()
	mux.HandleFunc("/ventures", h.ventures)
	mux.HandleFunc("/ventures/", h.ventureResources)
	mux.HandleFunc("/portfolio/", h.portfolio)
	mux.HandleFunc("/health", h.health)
	mux.Handle("/metrics", metrics.Handler())
	return metrics.InstrumentHandler(mux)
}

type tierPayload struct {
	Name        string            `json:"name"`
	MinAmount   string            `json:"min_amount"`
	MaxAmount   string            `json:"max_amount"`
	Description string            `json:"description"`
	Benefits    []venture.Benefit `json:"benefits"`
}

func (h *handler) ventures(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			OwnerID       string        `json:"owner_id"`
			Title         string        `json:"title"`
			Description   string        `json:"description"`
			Category      string        `json:"category"`
			FundingGoal   string        `json:"funding_goal"`
			MinInvestment string        `json:"min_investment"`
			MaxInvestment string        `json:"max_investment"`
			ExpiresAt     *time.Time    `json:"expires_at"`
			Tiers         []tierPayload `json:"tiers"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		in := catalog.CreateVentureInput{
			OwnerID:     payload.OwnerID,
			Title:       payload.Title,
			Description: payload.Description,
			Category:    venture.Category(payload.Category),
			ExpiresAt:   payload.ExpiresAt,
		}
		var err error
		if in.FundingGoal, err = parseAmount(payload.FundingGoal, "funding_goal"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if in.MinInvestment, err = parseAmount(payload.MinInvestment, "min_investment"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if payload.MaxInvestment != "" {
			if in.MaxInvestment, err = parseAmount(payload.MaxInvestment, "max_investment"); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}
		for _, t := range payload.Tiers {
			tier := catalog.TierInput{
				Name:        t.Name,
				Description: t.Description,
				Benefits:    t.Benefits,
			}
			if tier.MinAmount, err = parseAmount(t.MinAmount, "tiers.min_amount"); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if t.MaxAmount != "" {
				if tier.MaxAmount, err = parseAmount(t.MaxAmount, "tiers.max_amount"); err != nil {
					writeError(w, http.StatusBadRequest, err)
					return
				}
			}
			in.Tiers = append(in.Tiers, tier)
		}

		created, err := h.app.Catalog.Create(r.Context(), in)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, created)

	case http.MethodGet:
		if owner := strings.TrimSpace(r.URL.Query().Get("owner_id")); owner != "" {
			list, err := h.app.Catalog.ListByOwner(r.Context(), owner)
			if err != nil {
				writeError(w, statusFor(err), err)
				return
			}
			writeJSON(w, http.StatusOK, list)
			return
		}
		list, err := h.app.Catalog.ListOpen(r.Context())
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) ventureResources(w http.ResponseWriter, r *http.Request) {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, "/ventures"), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	ventureID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		v, err := h.app.Catalog.Get(r.Context(), ventureID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, v)
		return
	}

	switch parts[1] {
	case "status":
		h.ventureStatus(w, r, ventureID)
	case "investments":
		h.ventureInvestments(w, r, ventureID)
	case "tiers":
		h.ventureTiers(w, r, ventureID)
	case "funding":
		h.ventureFunding(w, r, ventureID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *handler) ventureStatus(w http.ResponseWriter, r *http.Request, ventureID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload struct {
		Status string `json:"status"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Catalog.Transition(r.Context(), ventureID, venture.Status(payload.Status))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) ventureTiers(w http.ResponseWriter, r *http.Request, ventureID string) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var payload tierPayload
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	in := catalog.TierInput{
		Name:        payload.Name,
		Description: payload.Description,
		Benefits:    payload.Benefits,
	}
	var err error
	if in.MinAmount, err = parseAmount(payload.MinAmount, "min_amount"); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.MaxAmount != "" {
		if in.MaxAmount, err = parseAmount(payload.MaxAmount, "max_amount"); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	updated, err := h.app.Catalog.AddTier(r.Context(), ventureID, in)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) ventureFunding(w http.ResponseWriter, r *http.Request, ventureID string) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	v, err := h.app.Catalog.Get(r.Context(), ventureID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	recomputed, err := h.app.Ledger.Recompute(r.Context(), ventureID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"venture_id":      v.ID,
		"status":          v.Status,
		"funding_goal":    v.FundingGoal,
		"current_funding": v.CurrentFunding,
		"recomputed":      recomputed,
		"consistent":      v.CurrentFunding.Equal(recomputed),
		"halted":          v.Halted,
	})
}

func (h *handler) ventureInvestments(w http.ResponseWriter, r *http.Request, ventureID string) {
	switch r.Method {
	case http.MethodPost:
		var payload struct {
			SupporterID string `json:"supporter_id"`
			Amount      string `json:"amount"`
			TierID      string `json:"tier_id"`
			Nonce       string `json:"nonce"`
		}
		if err := decodeJSON(r.Body, &payload); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		amount, err := parseAmount(payload.Amount, "amount")
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		inv, err := h.app.Ledger.CreateInvestment(r.Context(), ventureID, payload.SupporterID, amount, payload.TierID, payload.Nonce)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		if h.app.Bridge != nil && inv.PaymentRef == "" {
			if _, err := h.app.Bridge.Dispatch(r.Context(), inv); err != nil {
				// The investment is recorded; the caller retries with the
				// same nonce and dispatch resubmits under the same
				// idempotency key.
				writeError(w, statusFor(err), fmt.Errorf("investment %s recorded but payment dispatch failed: %w", inv.ID, err))
				return
			}
		}
		writeJSON(w, http.StatusCreated, inv)

	case http.MethodGet:
		list, err := h.app.Ledger.ListByVenture(r.Context(), ventureID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, list)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *handler) portfolio(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	supporterID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/portfolio"), "/")
	if supporterID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	p, err := h.app.Ledger.Portfolio(r.Context(), supporterID)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, faults.ErrNotFound):
		return http.StatusNotFound
	case faults.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, faults.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, faults.ErrVentureNotOpen),
		errors.Is(err, faults.ErrAmountOutOfBounds),
		errors.Is(err, faults.ErrCapacityExceeded),
		errors.Is(err, faults.ErrFundingHalted):
		return http.StatusUnprocessableEntity
	case faults.IsTransient(err):
		return http.StatusServiceUnavailable
	case faults.IsInconsistency(err):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Decimal{}, faults.Validationf(field, "is required")
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, faults.Validationf(field, "invalid decimal %q", raw)
	}
	return amount, nil
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
