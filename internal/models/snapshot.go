package models

import "gorm.io/gorm"

// PortfolioSnapshot is an immutable fact appended once per trading cycle.
type PortfolioSnapshot struct {
	gorm.Model
	TotalValue       float64 `json:"total_value" gorm:"not null"`
	BuyingPower      float64 `json:"buying_power"`
	PositionsCount   int     `json:"positions_count"`
	DayChange        float64 `json:"day_change"`
	DayChangePercent float64 `json:"day_change_percent"`
}
