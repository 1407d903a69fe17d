package state

import "github.com/dukerupert/shopmate/internal/model"

// ShoppingList returns the active items still to be bought.
func (s *Store) ShoppingList() []model.Item {
	return s.filter(func(it model.Item) bool { return !it.InPantry })
}

// Pantry returns the active items already stocked.
func (s *Store) Pantry() []model.Item {
	return s.filter(func(it model.Item) bool { return it.InPantry })
}

// View returns the items for v.
func (s *Store) View(v model.View) []model.Item {
	if v == model.ViewPantry {
		return s.Pantry()
	}
	return s.ShoppingList()
}

// filter never returns soft-deleted items, whatever keep says.
func (s *Store) filter(keep func(model.Item) bool) []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Item
	for _, it := range s.items {
		if it.Active() && keep(it) {
			out = append(out, it.Clone())
		}
	}
	return out
}
