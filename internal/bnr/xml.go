package bnr

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// document mirrors the BNR daily rates XML (namespace http://www.bnr.ro/xsd):
// a DataSet whose Body holds a dated Cube of Rate entries. The rate value is
// the element text; currency and multiplier are attributes.
type document struct {
	XMLName xml.Name `xml:"DataSet"`
	Body    struct {
		OrigCurrency string `xml:"OrigCurrency"`
		Cube         *cube  `xml:"Cube"`
	} `xml:"Body"`
}

type cube struct {
	Date  string      `xml:"date,attr"`
	Rates []rateEntry `xml:"Rate"`
}

type rateEntry struct {
	Currency   string `xml:"currency,attr"`
	Multiplier string `xml:"multiplier,attr"`
	Value      string `xml:",chardata"`
}

// decodeSnapshot parses a rate document and normalizes every entry to a
// per-unit quote. A multiplier M means the published value covers M units of
// the foreign currency, so the per-unit rate is value/M (M defaults to 1).
func decodeSnapshot(b []byte) (*Snapshot, error) {
	var doc document
	if err := xml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	c := doc.Body.Cube
	if c == nil {
		return nil, fmt.Errorf("%w: missing Cube element", ErrDecode)
	}
	if c.Date == "" {
		return nil, fmt.Errorf("%w: Cube has no date", ErrDecode)
	}

	rates := map[string]float64{BaseCurrency: 1.0}
	for _, entry := range c.Rates {
		if entry.Currency == "" {
			continue
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(entry.Value), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: rate for %s is not numeric: %v", ErrDecode, entry.Currency, err)
		}
		multiplier := 1.0
		if entry.Multiplier != "" {
			m, err := strconv.ParseFloat(entry.Multiplier, 64)
			if err != nil || m <= 0 {
				return nil, fmt.Errorf("%w: bad multiplier %q for %s", ErrDecode, entry.Multiplier, entry.Currency)
			}
			multiplier = m
		}
		rates[entry.Currency] = value / multiplier
	}

	return &Snapshot{Date: c.Date, Rates: rates}, nil
}
