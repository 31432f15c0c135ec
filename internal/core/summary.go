package core

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string `json:"name"`
	Amount Money  `json:"amount"`
	Label  string `json:"label"`
}

// PeriodSummary is a compact summary of a filtered transaction set.
type PeriodSummary struct {
	Income   Money `json:"income"`
	Expenses Money `json:"expenses"`
	Balance  Money `json:"balance"`
	Count    int   `json:"count"`
}
