package domain

import (
	"time"
)

// AdAssetType enumerates the platform entity kinds a rule can target.
type AdAssetType string

const (
	AssetCampaign AdAssetType = "campaign"
	AssetAdSet    AdAssetType = "adset"
	AssetAd       AdAssetType = "ad"
)

// AdAsset is an advertising entity on an external platform, tracked with a
// current daily budget. The engine reads assets and mutates only
// CurrentBudget (through the compare-and-swap repository contract).
type AdAsset struct {
	ID              string      `json:"id" db:"id"`
	UserID          string      `json:"user_id" db:"user_id"`
	PlatformAssetID string      `json:"ad_asset_id" db:"ad_asset_id"`
	AssetType       AdAssetType `json:"ad_asset_type" db:"ad_asset_type"`
	Platform        string      `json:"ad_platform" db:"ad_platform"`
	ProductID       string      `json:"product_id" db:"product_id"`
	CurrentBudget   float64     `json:"current_budget" db:"current_budget"`
	Timezone        string      `json:"timezone" db:"timezone"`

	// Daily reset policy. AutoResetBudget is the budget restored at
	// ResetTime ("HH:MM", asset-local); nil disables the reset.
	AutoResetBudget *float64 `json:"auto_reset_budget" db:"auto_reset_budget"`
	ResetTime       string   `json:"reset_time" db:"reset_time"`

	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Location resolves the asset's timezone, falling back to UTC when the
// stored name is empty or unknown.
func (a *AdAsset) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// LocalNow returns the current wall-clock time in the asset's timezone.
func (a *AdAsset) LocalNow(now time.Time) time.Time {
	return now.In(a.Location())
}

// BudgetStatus is the real-time budget view consumed by the manual-adjust UI.
type BudgetStatus struct {
	CurrentDaily   float64 `json:"current_daily"`
	Spent          float64 `json:"spent"`
	RemainingDaily float64 `json:"remaining_daily"`
}
