package model

import "time"

type Household struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	InviteCode string    `json:"invite_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// Profile is a household member's public profile.
type Profile struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	AvatarURL string    `json:"avatar_url"`
	UpdatedAt time.Time `json:"updated_at"`
}

// List is a sub-list grouping within a household.
type List struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	HouseholdID string    `json:"household_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type View string

const (
	ViewShoppingList View = "shopping-list"
	ViewPantry       View = "pantry"
)

// Settings are per-device preferences persisted with the snapshot.
type Settings struct {
	HapticFeedback   bool   `json:"haptic_feedback"`
	AutoAddRecurring bool   `json:"auto_add_recurring"`
	ThemeColor       string `json:"theme_color"`
	ActiveView       View   `json:"active_view"`
}

// DefaultSettings mirrors a fresh install.
func DefaultSettings() Settings {
	return Settings{
		HapticFeedback: true,
		ThemeColor:     "emerald",
		ActiveView:     ViewShoppingList,
	}
}
