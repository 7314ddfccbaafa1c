package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"cryptoRateWatch/internal/app"
	"cryptoRateWatch/internal/domain"
	"cryptoRateWatch/internal/ports"
)

type openPositionRequest struct {
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Side       string          `json:"side"`
}

type positionResponse struct {
	ID         string          `json:"id"`
	Instrument string          `json:"instrument"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	Side       domain.Side     `json:"side"`
	Status     string          `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	ClosedAt   *time.Time      `json:"closed_at,omitempty"`
}

type rateResponse struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

type fetchResponse struct {
	Report app.CycleReport `json:"report"`
	Error  string          `json:"error,omitempty"`
}

func toPositionResponse(p *domain.Position) positionResponse {
	return positionResponse{
		ID:         p.ID,
		Instrument: p.Symbol,
		Quantity:   p.Quantity,
		EntryPrice: p.EntryPrice,
		Side:       p.Side,
		Status:     string(p.Status),
		CreatedAt:  p.CreatedAt,
		ClosedAt:   p.ClosedAt,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleOpenPosition(w http.ResponseWriter, r *http.Request) {
	var req openPositionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	side, err := domain.ParseSide(req.Side)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := s.positions.OpenPosition(r.Context(), req.Instrument, req.Quantity, req.EntryPrice, side)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": pos.ID})
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.positions.ListOpen(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, toPositionResponse(p))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleClosePosition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	closed, err := s.positions.ClosePosition(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if !closed {
		s.writeError(w, http.StatusNotFound, "position not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(domain.StatusClosed)})
}

func (s *Server) handlePositionPnL(w http.ResponseWriter, r *http.Request) {
	priceStr := strings.TrimSpace(r.URL.Query().Get("price"))
	if priceStr == "" {
		s.writeError(w, http.StatusBadRequest, "price query parameter is required")
		return
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid price: "+priceStr)
		return
	}

	result, err := s.positions.ProfitLoss(r.Context(), chi.URLParam(r, "id"), price)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleFetchRates(w http.ResponseWriter, r *http.Request) {
	report, err := s.rates.TriggerFetch(r.Context())
	if err != nil {
		s.writeJSON(w, http.StatusBadGateway, fetchResponse{Report: report, Error: err.Error()})
		return
	}
	s.writeJSON(w, http.StatusOK, fetchResponse{Report: report})
}

func (s *Server) handleRecentRates(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))
	samples, err := s.rates.RecentRates(r.Context(), symbol)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	out := make([]rateResponse, 0, len(samples))
	for _, sample := range samples {
		out = append(out, rateResponse{Symbol: sample.Symbol, Price: sample.Price, ObservedAt: sample.ObservedAt})
	}
	s.writeJSON(w, http.StatusOK, out)
}

// Helper methods

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ports.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ports.ErrAlreadyClosed):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error(r.Context(), err, "HTTP request failed", map[string]interface{}{"path": r.URL.Path})
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error(context.Background(), err, "Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
