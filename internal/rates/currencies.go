package rates

var currencyNames = map[string]string{
	"RON": "Romanian Leu",
	"USD": "US Dollar",
	"EUR": "Euro",
	"GBP": "British Pound",
	"CHF": "Swiss Franc",
	"JPY": "Japanese Yen",
	"CAD": "Canadian Dollar",
	"AUD": "Australian Dollar",
	"CNY": "Chinese Yuan",
	"SEK": "Swedish Krona",
	"NOK": "Norwegian Krone",
	"DKK": "Danish Krone",
	"PLN": "Polish Zloty",
	"HUF": "Hungarian Forint",
	"CZK": "Czech Koruna",
	"BGN": "Bulgarian Lev",
	"TRY": "Turkish Lira",
	"RUB": "Russian Ruble",
	"INR": "Indian Rupee",
	"BRL": "Brazilian Real",
	"ZAR": "South African Rand",
	"MXN": "Mexican Peso",
}

// CurrencyName returns a human-readable name for an ISO currency code,
// falling back to the code itself for currencies not in the table.
func CurrencyName(code string) string {
	if name, ok := currencyNames[code]; ok {
		return name
	}
	return code
}
