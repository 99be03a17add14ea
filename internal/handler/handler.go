// Package handler exposes the calculation engine over JSON HTTP.
package handler

import (
	"log/slog"

	"github.com/atlanteavila/sovos-tax-plugin/internal/router"
	"github.com/atlanteavila/sovos-tax-plugin/internal/tax"
)

// Handler serves the tax API.
type Handler struct {
	calc   tax.Calculator
	logger *slog.Logger
}

// NewHandler creates the API handler.
func NewHandler(calc tax.Calculator, logger *slog.Logger) *Handler {
	return &Handler{calc: calc, logger: logger}
}

// Register mounts the API routes.
func (h *Handler) Register(r *router.Router) {
	r.Post("/api/quote", h.Quote)
	r.Post("/api/calculate", h.Calculate)
	r.Post("/api/refund", h.Refund)
	r.Get("/api/transactions/{id}", h.TransactionDetail)
	r.Get("/health", h.Health)
}
