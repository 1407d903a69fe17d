package model

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestItemValidate(t *testing.T) {
	tests := []struct {
		name string
		item Item
		want error
	}{
		{"valid", Item{ID: "i1", Name: "Milk", HouseholdID: "h1"}, nil},
		{"missing id", Item{Name: "Milk", HouseholdID: "h1"}, ErrMissingID},
		{"blank name", Item{ID: "i1", Name: "  ", HouseholdID: "h1"}, ErrMissingName},
		{"missing household", Item{ID: "i1", Name: "Milk"}, ErrMissingHousehold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.item.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestItemUnits(t *testing.T) {
	tests := []struct {
		qty    string
		want   int
		wantOK bool
	}{
		{"3", 3, true},
		{" 12 ", 12, true},
		{"", 0, false},
		{"500g", 0, false},
		{"1.5", 0, false},
	}
	for _, tt := range tests {
		n, ok := Item{Quantity: tt.qty}.Units()
		if n != tt.want || ok != tt.wantOK {
			t.Errorf("Units(%q) = %d, %v; want %d, %v", tt.qty, n, ok, tt.want, tt.wantOK)
		}
	}
}

func TestItemCloneDoesNotAlias(t *testing.T) {
	by := "u1"
	it := Item{ID: "i1", BoughtBy: &by}
	c := it.Clone()
	*c.BoughtBy = "u2"
	if *it.BoughtBy != "u1" {
		t.Fatalf("clone aliased BoughtBy: %q", *it.BoughtBy)
	}
}

func TestItemPatchApply(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	by := "u-ana"
	it := Item{
		ID:        "i1",
		Name:      "Milk",
		Quantity:  "2",
		Price:     decimal.NewNullDecimal(decimal.RequireFromString("1.10")),
		BoughtBy:  &by,
		DeletedAt: &now,
	}

	name := "Oat milk"
	inPantry := true
	p := ItemPatch{Name: &name, InPantry: &inPantry, ClearPrice: true, ClearBoughtBy: true, ClearDeletedAt: true, UpdatedAt: &now}
	got := p.Apply(it)

	if got.Name != "Oat milk" || !got.InPantry {
		t.Fatalf("Apply() = %+v", got)
	}
	if got.Price.Valid || got.BoughtBy != nil || got.DeletedAt != nil {
		t.Fatalf("Apply() did not clear nullable fields: %+v", got)
	}
	if got.Quantity != "2" {
		t.Fatalf("untouched quantity changed: %q", got.Quantity)
	}
	if !got.UpdatedAt.Equal(now) {
		t.Fatalf("UpdatedAt = %v, want %v", got.UpdatedAt, now)
	}
	if it.Name != "Milk" || it.BoughtBy == nil {
		t.Fatal("Apply modified its input")
	}
}

func TestItemPatchFields(t *testing.T) {
	price := decimal.RequireFromString("2.50")
	qty := "3"
	f := ItemPatch{Quantity: &qty, Price: &price, ClearBoughtBy: true}.Fields()

	if len(f) != 3 {
		t.Fatalf("Fields() = %v, want 3 columns", f)
	}
	if f["quantity"] != "3" || f["price"] != "2.5" {
		t.Fatalf("Fields() = %v", f)
	}
	if v, ok := f["bought_by"]; !ok || v != nil {
		t.Fatalf("bought_by = %v, %v; want explicit nil", v, ok)
	}
}

func TestItemPatchEmpty(t *testing.T) {
	if !(ItemPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	name := "x"
	if (ItemPatch{Name: &name}).Empty() {
		t.Fatal("patch with a name should not be empty")
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("h1"); got != "sync-h1" {
		t.Fatalf("Topic() = %q", got)
	}
}
