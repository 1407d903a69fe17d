package model

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCategory is assigned to items nobody categorized.
const DefaultCategory = "Uncategorized"

var (
	ErrMissingID        = errors.New("item id is required")
	ErrMissingName      = errors.New("item name is required")
	ErrMissingHousehold = errors.New("item household_id is required")
)

// Item is a single entry on a household list. InPantry false means it is
// still to be bought; true means it is stocked.
type Item struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Category    string              `json:"category"`
	Quantity    string              `json:"quantity"`
	Price       decimal.NullDecimal `json:"price"`
	InPantry    bool                `json:"in_pantry"`
	CreatedBy   string              `json:"created_by"`
	BoughtBy    *string             `json:"bought_by"`
	HouseholdID string              `json:"household_id"`
	ListID      *string             `json:"list_id"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	DeletedAt   *time.Time          `json:"deleted_at"`
}

// Validate checks the fields every row must carry before it is merged into
// local state or sent to the remote store.
func (it Item) Validate() error {
	if strings.TrimSpace(it.ID) == "" {
		return ErrMissingID
	}
	if strings.TrimSpace(it.Name) == "" {
		return ErrMissingName
	}
	if strings.TrimSpace(it.HouseholdID) == "" {
		return ErrMissingHousehold
	}
	return nil
}

// Deleted reports whether the item has been soft-deleted.
func (it Item) Deleted() bool {
	return it.DeletedAt != nil
}

// Active reports whether the item belongs in the to-buy or pantry views.
func (it Item) Active() bool {
	return !it.Deleted()
}

// Units returns the quantity as a whole number when it is one. Quantities such
// as "500g" or "1.5" are descriptive and report ok=false.
func (it Item) Units() (n int, ok bool) {
	n, err := strconv.Atoi(strings.TrimSpace(it.Quantity))
	if err != nil {
		return 0, false
	}
	return n, true
}

// Clone returns a deep copy so callers can't alias pointer fields held by the
// state store.
func (it Item) Clone() Item {
	c := it
	if it.BoughtBy != nil {
		v := *it.BoughtBy
		c.BoughtBy = &v
	}
	if it.ListID != nil {
		v := *it.ListID
		c.ListID = &v
	}
	if it.DeletedAt != nil {
		v := *it.DeletedAt
		c.DeletedAt = &v
	}
	return c
}

// ItemPatch is a partial update. Nil fields are left untouched; the Clear*
// flags null out nullable columns.
type ItemPatch struct {
	Name           *string          `json:"name,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Quantity       *string          `json:"quantity,omitempty"`
	Price          *decimal.Decimal `json:"price,omitempty"`
	ClearPrice     bool             `json:"clear_price,omitempty"`
	InPantry       *bool            `json:"in_pantry,omitempty"`
	BoughtBy       *string          `json:"bought_by,omitempty"`
	ClearBoughtBy  bool             `json:"clear_bought_by,omitempty"`
	ListID         *string          `json:"list_id,omitempty"`
	DeletedAt      *time.Time       `json:"deleted_at,omitempty"`
	ClearDeletedAt bool             `json:"clear_deleted_at,omitempty"`
	UpdatedAt      *time.Time       `json:"updated_at,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ItemPatch) Empty() bool {
	return len(p.Fields()) == 0
}

// Apply merges the patch into a copy of it.
func (p ItemPatch) Apply(it Item) Item {
	out := it.Clone()
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Category != nil {
		out.Category = *p.Category
	}
	if p.Quantity != nil {
		out.Quantity = *p.Quantity
	}
	if p.ClearPrice {
		out.Price = decimal.NullDecimal{}
	} else if p.Price != nil {
		out.Price = decimal.NewNullDecimal(*p.Price)
	}
	if p.InPantry != nil {
		out.InPantry = *p.InPantry
	}
	if p.ClearBoughtBy {
		out.BoughtBy = nil
	} else if p.BoughtBy != nil {
		v := *p.BoughtBy
		out.BoughtBy = &v
	}
	if p.ListID != nil {
		v := *p.ListID
		out.ListID = &v
	}
	if p.ClearDeletedAt {
		out.DeletedAt = nil
	} else if p.DeletedAt != nil {
		v := *p.DeletedAt
		out.DeletedAt = &v
	}
	if p.UpdatedAt != nil {
		out.UpdatedAt = *p.UpdatedAt
	}
	return out
}

// Fields renders the patch as column/value pairs for the remote store. A nil
// value clears the column.
func (p ItemPatch) Fields() map[string]any {
	f := make(map[string]any)
	if p.Name != nil {
		f["name"] = *p.Name
	}
	if p.Category != nil {
		f["category"] = *p.Category
	}
	if p.Quantity != nil {
		f["quantity"] = *p.Quantity
	}
	if p.ClearPrice {
		f["price"] = nil
	} else if p.Price != nil {
		f["price"] = p.Price.String()
	}
	if p.InPantry != nil {
		f["in_pantry"] = *p.InPantry
	}
	if p.ClearBoughtBy {
		f["bought_by"] = nil
	} else if p.BoughtBy != nil {
		f["bought_by"] = *p.BoughtBy
	}
	if p.ListID != nil {
		f["list_id"] = *p.ListID
	}
	if p.ClearDeletedAt {
		f["deleted_at"] = nil
	} else if p.DeletedAt != nil {
		f["deleted_at"] = p.DeletedAt.UTC().Format(time.RFC3339Nano)
	}
	if p.UpdatedAt != nil {
		f["updated_at"] = p.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	return f
}
