package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Category struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Icon        string   `json:"icon"`
	Keywords    []string `json:"keywords"`
	HouseholdID *string  `json:"household_id"`
	IsSystem    bool     `json:"is_system"`
}

// HouseholdProduct is a household's memory of a product it buys.
type HouseholdProduct struct {
	ID                 string              `json:"id"`
	HouseholdID        string              `json:"household_id"`
	Name               string              `json:"name"`
	LastPrice          decimal.NullDecimal `json:"last_price"`
	CategoryName       *string             `json:"category_name"`
	LastBoughtAt       *time.Time          `json:"last_bought_at"`
	TimesBought        int                 `json:"times_bought"`
	RecurrenceInterval *int                `json:"recurrence_interval"`
	NextOccurrence     *time.Time          `json:"next_occurrence"`
}

// Recurring reports whether the product is scheduled for automatic re-adding.
func (p HouseholdProduct) Recurring() bool {
	return p.RecurrenceInterval != nil && *p.RecurrenceInterval > 0
}
