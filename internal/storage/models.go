package storage

import "time"

// ExchangeRate is one (currency, date) row of a daily rate snapshot. Rate is
// the per-unit quote: 1 unit of the currency buys Rate units of RON.
type ExchangeRate struct {
	CurrencyCode string  `json:"currency_code" gorm:"primaryKey;column:currency_code"`
	Date         string  `json:"date" gorm:"primaryKey;column:date"`
	Rate         float64 `json:"rate" gorm:"column:rate"`
}

// TableName keeps the table name stable across dialects.
func (ExchangeRate) TableName() string { return "exchange_rates" }

// Setting is a single key/value application setting.
type Setting struct {
	Key       string    `gorm:"primaryKey;column:key"`
	Value     string    `gorm:"column:value"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

// ScheduledJob records the outcome of the last run of a background job.
type ScheduledJob struct {
	Name           string    `gorm:"primaryKey;column:name"`
	LastRunAt      time.Time `gorm:"column:last_run_at"`
	LastDurationMs int64     `gorm:"column:last_duration_ms"`
	LastSuccess    int       `gorm:"column:last_success"`
	LastError      string    `gorm:"column:last_error"`
}

func ratesFromRows(rows []ExchangeRate) map[string]float64 {
	out := make(map[string]float64, len(rows))
	for _, r := range rows {
		out[r.CurrencyCode] = r.Rate
	}
	return out
}

func rowsFromRates(date string, rates map[string]float64) []ExchangeRate {
	rows := make([]ExchangeRate, 0, len(rates))
	for code, rate := range rates {
		rows = append(rows, ExchangeRate{CurrencyCode: code, Date: date, Rate: rate})
	}
	return rows
}
