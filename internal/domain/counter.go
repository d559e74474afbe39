package domain

import "time"

// CounterName identifies a billing sequence.
type CounterName string

const (
	CounterInvoice CounterName = "invoice"
	CounterQuote   CounterName = "quote"
)

// Valid reports whether the counter is known.
func (n CounterName) Valid() bool {
	return n == CounterInvoice || n == CounterQuote
}

// Counter is a monotonic billing sequence.
type Counter struct {
	Name      CounterName
	Value     int64
	UpdatedAt time.Time
}
