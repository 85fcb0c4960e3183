package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/andreinita/fxcache/internal/bnr"
	"github.com/andreinita/fxcache/internal/rates"
	"github.com/andreinita/fxcache/internal/storage"
)

type stubSource struct {
	snap *bnr.Snapshot
	err  error
}

func (s *stubSource) FetchLatest(ctx context.Context) (*bnr.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.snap, nil
}

func newTestMux(t *testing.T, st storage.Storage, src rates.Source, today string) *http.ServeMux {
	t.Helper()
	clock := func() time.Time {
		d, _ := time.Parse("2006-01-02", today)
		return d
	}
	svc := rates.NewService(st, src, rates.WithClock(clock))
	return NewMux(svc, st)
}

func seedToday(t *testing.T, st storage.Storage, date string) {
	t.Helper()
	err := st.ReplaceRates(context.Background(), date, map[string]float64{"RON": 1, "EUR": 5, "USD": 4.5})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

func TestHandleRates(t *testing.T) {
	st := storage.NewMemory()
	seedToday(t, st, "2024-01-15")
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currency/rates", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Rates        map[string]float64 `json:"rates"`
		Date         string             `json:"date"`
		Source       string             `json:"source"`
		BaseCurrency string             `json:"baseCurrency"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Source != "cache" || body.Date != "2024-01-15" || body.BaseCurrency != "RON" {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.Rates["EUR"] != 5 {
		t.Errorf("EUR = %v, want 5", body.Rates["EUR"])
	}
}

func TestHandleRates_ServiceUnavailable(t *testing.T) {
	st := storage.NewMemory()
	mux := newTestMux(t, st, &stubSource{err: errors.New("down")}, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currency/rates", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleConvert(t *testing.T) {
	st := storage.NewMemory()
	seedToday(t, st, "2024-01-15")
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	req := httptest.NewRequest(http.MethodPost, "/api/currency/convert",
		strings.NewReader(`{"amount": 100, "fromCurrency": "RON", "toCurrency": "EUR"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var body struct {
		ConvertedAmount float64 `json:"convertedAmount"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.ConvertedAmount != 20 {
		t.Errorf("convertedAmount = %v, want 20", body.ConvertedAmount)
	}
}

func TestHandleConvert_Validation(t *testing.T) {
	st := storage.NewMemory()
	seedToday(t, st, "2024-01-15")
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"missing fields", `{"amount": 100}`, http.StatusBadRequest},
		{"garbage body", `not json`, http.StatusBadRequest},
		{"unknown currency", `{"amount": 10, "fromCurrency": "XXX", "toCurrency": "EUR"}`, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/currency/convert", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestHandleCurrencies(t *testing.T) {
	st := storage.NewMemory()
	seedToday(t, st, "2024-01-15")
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currency/currencies", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var list []struct {
		Code string `json:"code"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("got %d currencies, want 3", len(list))
	}
	// Sorted by code: EUR, RON, USD.
	if list[0].Code != "EUR" || list[0].Name != "Euro" {
		t.Errorf("unexpected first entry: %+v", list[0])
	}
}

func TestHandleUpdateRates(t *testing.T) {
	st := storage.NewMemory()
	src := &stubSource{snap: &bnr.Snapshot{
		Date:  "2024-01-15",
		Rates: map[string]float64{"RON": 1, "EUR": 5},
	}}
	mux := newTestMux(t, st, src, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/currency/update-rates", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	stored, _ := st.GetRatesByDate(context.Background(), "2024-01-15")
	if len(stored) != 2 {
		t.Errorf("refresh persisted %d rows, want 2", len(stored))
	}
}

func TestHandleUpdateRates_FetchFailure(t *testing.T) {
	st := storage.NewMemory()
	mux := newTestMux(t, st, &stubSource{err: errors.New("down")}, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/currency/update-rates", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestHandlePreference(t *testing.T) {
	st := storage.NewMemory()
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	// Default falls back to the base currency.
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currency/preference", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "RON") {
		t.Fatalf("default preference: status = %d, body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPut, "/api/currency/preference",
		strings.NewReader(`{"displayCurrency": "EUR"}`))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("put preference: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/currency/preference", nil))
	if !strings.Contains(rec.Body.String(), "EUR") {
		t.Errorf("preference did not persist: %s", rec.Body.String())
	}
}

func TestHealthEndpoints(t *testing.T) {
	st := storage.NewMemory()
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	for _, path := range []string{"/healthz", "/readyz", "/livez"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d", path, rec.Code)
		}
	}
}

func TestMethodNotAllowed(t *testing.T) {
	st := storage.NewMemory()
	seedToday(t, st, "2024-01-15")
	mux := newTestMux(t, st, &stubSource{err: errors.New("unused")}, "2024-01-15")

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/currency/rates", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
