package domain

// FeatureVector is the fixed-shape numeric description of one transaction.
// Every field is always populated: when an aggregate query fails its group
// degrades to zero values, so downstream scorers never see a partial vector.
type FeatureVector struct {
	// Transaction attributes
	Amount       float64 `json:"amount"`
	TypeRisk     float64 `json:"typeRisk"`
	CurrencyRisk float64 `json:"currencyRisk"`
	HasGeo       float64 `json:"hasGeo"` // 1 when the transaction carries a country

	// Calendar attributes, derived from the transaction timestamp in UTC
	HourOfDay float64 `json:"hourOfDay"`
	DayOfWeek float64 `json:"dayOfWeek"` // 0 = Sunday
	IsWeekend float64 `json:"isWeekend"`

	// Behavioral aggregates for the source account
	TxCount24h     float64 `json:"txCount24h"`
	TotalAmount24h float64 `json:"totalAmount24h"`
	TxCount7d      float64 `json:"txCount7d"`
	TotalAmount7d  float64 `json:"totalAmount7d"`
	AvgAmount7d    float64 `json:"avgAmount7d"`
	VarAmount7d    float64 `json:"varAmount7d"`

	// Velocity aggregates over the last 24 hours
	Frequency24h       float64 `json:"frequency24h"`
	VelocityAmount24h  float64 `json:"velocityAmount24h"`
	UniqueMerchants24h float64 `json:"uniqueMerchants24h"`
	UniqueCountries24h float64 `json:"uniqueCountries24h"`

	// Network association risk in [0,1]
	NetworkRisk float64 `json:"networkRisk"`
}

// Map flattens the vector into named features for model inference and
// expression evaluation.
func (fv *FeatureVector) Map() map[string]float64 {
	return map[string]float64{
		"amount":               fv.Amount,
		"type_risk":            fv.TypeRisk,
		"currency_risk":        fv.CurrencyRisk,
		"has_geo":              fv.HasGeo,
		"hour_of_day":          fv.HourOfDay,
		"day_of_week":          fv.DayOfWeek,
		"is_weekend":           fv.IsWeekend,
		"tx_count_24h":         fv.TxCount24h,
		"total_amount_24h":     fv.TotalAmount24h,
		"tx_count_7d":          fv.TxCount7d,
		"total_amount_7d":      fv.TotalAmount7d,
		"avg_amount_7d":        fv.AvgAmount7d,
		"var_amount_7d":        fv.VarAmount7d,
		"frequency_24h":        fv.Frequency24h,
		"velocity_amount_24h":  fv.VelocityAmount24h,
		"unique_merchants_24h": fv.UniqueMerchants24h,
		"unique_countries_24h": fv.UniqueCountries24h,
		"network_risk":         fv.NetworkRisk,
	}
}
