package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/andreinita/fxcache/internal/bnr"
	"github.com/andreinita/fxcache/internal/metrics"
	"github.com/andreinita/fxcache/internal/rates"
	"github.com/andreinita/fxcache/internal/storage"
)

const displayCurrencyKey = "display_currency"

type currencyHandler struct {
	svc *rates.Service
	st  storage.Storage
}

// RegisterCurrencyRoutes mounts the currency API under /api/currency/.
func RegisterCurrencyRoutes(mux *http.ServeMux, svc *rates.Service, st storage.Storage) {
	h := &currencyHandler{svc: svc, st: st}

	mux.HandleFunc("/api/currency/rates", instrument("/api/currency/rates", h.handleRates))
	mux.HandleFunc("/api/currency/convert", instrument("/api/currency/convert", h.handleConvert))
	mux.HandleFunc("/api/currency/currencies", instrument("/api/currency/currencies", h.handleCurrencies))
	mux.HandleFunc("/api/currency/update-rates", instrument("/api/currency/update-rates", h.handleUpdateRates))
	mux.HandleFunc("/api/currency/preference", instrument("/api/currency/preference", h.handlePreference))
}

// instrument wraps a handler with request count and duration metrics.
func instrument(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.RequestsTotal.WithLabelValues(path).Inc()
		defer func() {
			metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		}()
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: encode response failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, path string, status int, msg string) {
	metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(status)).Inc()
	writeJSON(w, status, map[string]string{"detail": msg})
}

// GET /api/currency/rates
func (h *currencyHandler) handleRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "/api/currency/rates", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest, err := h.svc.GetLatest(r.Context())
	if err != nil {
		if errors.Is(err, rates.ErrNoRatesAvailable) {
			writeError(w, "/api/currency/rates", http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Printf("api: get latest rates failed: %v", err)
		writeError(w, "/api/currency/rates", http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rates":        latest.Rates,
		"date":         latest.Date,
		"source":       latest.Provenance,
		"baseCurrency": bnr.BaseCurrency,
	})
}

type convertRequest struct {
	Amount       float64 `json:"amount"`
	FromCurrency string  `json:"fromCurrency"`
	ToCurrency   string  `json:"toCurrency"`
}

// POST /api/currency/convert
func (h *currencyHandler) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "/api/currency/convert", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "/api/currency/convert", http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Amount == 0 || req.FromCurrency == "" || req.ToCurrency == "" {
		writeError(w, "/api/currency/convert", http.StatusBadRequest,
			"missing required fields: amount, fromCurrency, toCurrency")
		return
	}

	converted, err := h.svc.Convert(r.Context(), req.Amount, req.FromCurrency, req.ToCurrency)
	if err != nil {
		switch {
		case errors.Is(err, rates.ErrRateNotFound):
			writeError(w, "/api/currency/convert", http.StatusBadRequest, err.Error())
		case errors.Is(err, rates.ErrNoRatesAvailable):
			writeError(w, "/api/currency/convert", http.StatusServiceUnavailable, err.Error())
		default:
			log.Printf("api: convert failed: %v", err)
			writeError(w, "/api/currency/convert", http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"originalAmount":  req.Amount,
		"fromCurrency":    req.FromCurrency,
		"toCurrency":      req.ToCurrency,
		"convertedAmount": converted,
		"timestamp":       time.Now().Format(time.RFC3339),
	})
}

// GET /api/currency/currencies
func (h *currencyHandler) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, "/api/currency/currencies", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	latest, err := h.svc.GetLatest(r.Context())
	if err != nil {
		if errors.Is(err, rates.ErrNoRatesAvailable) {
			writeError(w, "/api/currency/currencies", http.StatusServiceUnavailable, err.Error())
			return
		}
		log.Printf("api: get currencies failed: %v", err)
		writeError(w, "/api/currency/currencies", http.StatusInternalServerError, "internal error")
		return
	}

	codes := make([]string, 0, len(latest.Rates))
	for code := range latest.Rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	type currency struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	list := make([]currency, 0, len(codes))
	for _, code := range codes {
		list = append(list, currency{Code: code, Name: rates.CurrencyName(code)})
	}

	writeJSON(w, http.StatusOK, list)
}

// POST /api/currency/update-rates
func (h *currencyHandler) handleUpdateRates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "/api/currency/update-rates", http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := h.svc.Refresh(r.Context()); err != nil {
		log.Printf("api: manual rate refresh failed: %v", err)
		writeError(w, "/api/currency/update-rates", http.StatusInternalServerError,
			"failed to update exchange rates")
		return
	}

	latest, err := h.svc.GetLatest(r.Context())
	if err != nil {
		log.Printf("api: get rates after refresh failed: %v", err)
		writeError(w, "/api/currency/update-rates", http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":       "exchange rates updated",
		"date":          latest.Date,
		"currencyCount": len(latest.Rates),
	})
}

type preferenceRequest struct {
	DisplayCurrency string `json:"displayCurrency"`
}

// GET/PUT /api/currency/preference
func (h *currencyHandler) handlePreference(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		value, err := h.st.GetSetting(r.Context(), displayCurrencyKey)
		if err != nil {
			log.Printf("api: read display currency failed: %v", err)
			writeError(w, "/api/currency/preference", http.StatusInternalServerError, "internal error")
			return
		}
		if value == "" {
			value = bnr.BaseCurrency
		}
		writeJSON(w, http.StatusOK, map[string]string{"displayCurrency": value})

	case http.MethodPut:
		var req preferenceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, "/api/currency/preference", http.StatusBadRequest, "invalid request body")
			return
		}
		if req.DisplayCurrency == "" {
			writeError(w, "/api/currency/preference", http.StatusBadRequest, "displayCurrency is required")
			return
		}
		if err := h.st.SetSetting(r.Context(), displayCurrencyKey, req.DisplayCurrency); err != nil {
			log.Printf("api: save display currency failed: %v", err)
			writeError(w, "/api/currency/preference", http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"displayCurrency": req.DisplayCurrency,
			"message":         "preference updated",
		})

	default:
		writeError(w, "/api/currency/preference", http.StatusMethodNotAllowed, "method not allowed")
	}
}
