package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dukerupert/shopmate/internal/model"
)

// SeedCategories inserts the system categories that are missing. Existing
// rows are left alone so edits survive restarts.
func SeedCategories(ctx context.Context, s *CollectionStore, categories []model.Category) (int, error) {
	added := 0
	for _, c := range categories {
		keywords, err := json.Marshal(c.Keywords)
		if err != nil {
			return added, fmt.Errorf("encode keywords: %w", err)
		}
		res, err := s.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO categories (id, name, icon, keywords, household_id, is_system) VALUES (?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.Icon, string(keywords), c.HouseholdID, c.IsSystem,
		)
		if err != nil {
			return added, fmt.Errorf("seed category %s: %w", c.Name, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, nil
}
