package model

// MonetaryAmount is a price parsed from page text.
type MonetaryAmount struct {
	Value    float64 `json:"value"`
	Currency string  `json:"currency"`
}

// Actionable reports whether the amount can drive a badge or interception.
func (m *MonetaryAmount) Actionable() bool {
	return m != nil && m.Value > 0
}
