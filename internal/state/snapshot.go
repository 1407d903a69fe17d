package state

import "github.com/dukerupert/shopmate/internal/model"

// Snapshot is the persisted part of the store. Transient state such as the
// connection status is not part of it.
type Snapshot struct {
	Household      *model.Household         `json:"household"`
	Profile        *model.Profile           `json:"profile"`
	Members        []model.Profile          `json:"members"`
	Items          []model.Item             `json:"items"`
	Categories     []model.Category         `json:"categories"`
	Catalog        []model.HouseholdProduct `json:"catalog"`
	Lists          []model.List             `json:"lists"`
	CurrentList    *model.List              `json:"current_list"`
	Settings       model.Settings           `json:"settings"`
	PendingActions []model.PendingAction    `json:"pending_actions"`
	DeadLetters    []model.DeadLetter       `json:"dead_letters"`
}

// Snapshot returns a consistent copy of the persisted state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Household:      clonePtr(s.household),
		Profile:        clonePtr(s.profile),
		Members:        append([]model.Profile(nil), s.members...),
		Items:          cloneItems(s.items),
		Categories:     append([]model.Category(nil), s.categories...),
		Catalog:        append([]model.HouseholdProduct(nil), s.catalog...),
		Lists:          append([]model.List(nil), s.lists...),
		CurrentList:    clonePtr(s.currentList),
		Settings:       s.settings,
		PendingActions: append([]model.PendingAction(nil), s.pending...),
		DeadLetters:    append([]model.DeadLetter(nil), s.dead...),
	}
}

// Restore replaces the whole store with snap. Listeners see a single
// ChangeRestore.
func (s *Store) Restore(snap Snapshot) {
	s.mutate(ChangeRestore, "", func() bool {
		s.household = clonePtr(snap.Household)
		s.profile = clonePtr(snap.Profile)
		s.members = append([]model.Profile(nil), snap.Members...)
		s.items = cloneItems(snap.Items)
		s.categories = append([]model.Category(nil), snap.Categories...)
		s.catalog = append([]model.HouseholdProduct(nil), snap.Catalog...)
		s.lists = append([]model.List(nil), snap.Lists...)
		s.currentList = clonePtr(snap.CurrentList)
		s.settings = snap.Settings
		if s.settings.ActiveView == "" {
			s.settings.ActiveView = model.ViewShoppingList
		}
		s.pending = append([]model.PendingAction(nil), snap.PendingActions...)
		s.dead = append([]model.DeadLetter(nil), snap.DeadLetters...)
		return true
	})
}
