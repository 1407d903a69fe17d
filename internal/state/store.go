// Package state is the in-process store the UI reads from. It is the single
// writable source of truth on a device: the mutation gateway writes local
// intents into it and the realtime listener writes remote changes into it.
//
// All mutations are serialized by one lock, and listeners are notified on the
// mutating goroutine once the change is visible to readers.
package state

import (
	"strings"
	"sync"

	"github.com/dukerupert/shopmate/internal/model"
)

// ChangeKind identifies which slice of state a mutation touched.
type ChangeKind string

const (
	ChangeItems       ChangeKind = "items"
	ChangeCategories  ChangeKind = "categories"
	ChangeCatalog     ChangeKind = "catalog"
	ChangeLists       ChangeKind = "lists"
	ChangeHousehold   ChangeKind = "household"
	ChangeProfile     ChangeKind = "profile"
	ChangeMembers     ChangeKind = "members"
	ChangeSettings    ChangeKind = "settings"
	ChangeActions     ChangeKind = "pending_actions"
	ChangeDeadLetters ChangeKind = "dead_letters"
	ChangeRestore     ChangeKind = "restore"
)

// Change describes one applied mutation. Version increases by one per change.
type Change struct {
	Kind    ChangeKind
	ItemID  string
	Version uint64
}

// Listener receives every change. It may read from the store but must not
// block for long; it runs on the goroutine that made the mutation.
type Listener func(Change)

type Store struct {
	mu          sync.RWMutex
	version     uint64
	household   *model.Household
	profile     *model.Profile
	members     []model.Profile
	items       []model.Item
	categories  []model.Category
	catalog     []model.HouseholdProduct
	lists       []model.List
	currentList *model.List
	settings    model.Settings
	pending     []model.PendingAction
	dead        []model.DeadLetter

	lmu       sync.RWMutex
	nextID    int
	listeners map[int]Listener
}

// New returns an empty store with default settings.
func New() *Store {
	return &Store{
		settings:  model.DefaultSettings(),
		listeners: make(map[int]Listener),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (s *Store) Subscribe(fn Listener) func() {
	s.lmu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		delete(s.listeners, id)
		s.lmu.Unlock()
	}
}

// Version returns the number of changes applied so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// mutate runs fn under the write lock and notifies listeners when fn
// reports a change.
func (s *Store) mutate(kind ChangeKind, itemID string, fn func() bool) bool {
	s.mu.Lock()
	if !fn() {
		s.mu.Unlock()
		return false
	}
	s.version++
	c := Change{Kind: kind, ItemID: itemID, Version: s.version}
	s.mu.Unlock()

	s.lmu.RLock()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.lmu.RUnlock()

	for _, l := range listeners {
		l(c)
	}
	return true
}

func (s *Store) indexOf(id string) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

// --- Items ---

// AddItem inserts item at the front of the list unless an item with the same
// id is already present, in which case it does nothing. This makes the
// realtime echo of an optimistic insert harmless.
func (s *Store) AddItem(item model.Item) bool {
	return s.mutate(ChangeItems, item.ID, func() bool {
		if s.indexOf(item.ID) >= 0 {
			return false
		}
		s.items = append([]model.Item{item.Clone()}, s.items...)
		return true
	})
}

// UpdateItem merges patch into the item with the given id. Unknown ids are
// ignored.
func (s *Store) UpdateItem(id string, patch model.ItemPatch) bool {
	return s.mutate(ChangeItems, id, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.items[i] = patch.Apply(s.items[i])
		return true
	})
}

// MergeItem overwrites the stored item with a full row carrying the same id.
// Unknown ids are ignored.
func (s *Store) MergeItem(row model.Item) bool {
	return s.mutate(ChangeItems, row.ID, func() bool {
		i := s.indexOf(row.ID)
		if i < 0 {
			return false
		}
		s.items[i] = row.Clone()
		return true
	})
}

// RemoveItem drops the item from memory. Soft-deleted items leave the
// in-memory list too; the recycle bin fetches them from the remote store.
func (s *Store) RemoveItem(id string) bool {
	return s.mutate(ChangeItems, id, func() bool {
		i := s.indexOf(id)
		if i < 0 {
			return false
		}
		s.items = append(s.items[:i:i], s.items[i+1:]...)
		return true
	})
}

// SetItems replaces all items, as after a full refresh.
func (s *Store) SetItems(items []model.Item) {
	s.mutate(ChangeItems, "", func() bool {
		s.items = cloneItems(items)
		return true
	})
}

// Item returns a copy of the item with the given id.
func (s *Store) Item(id string) (model.Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return model.Item{}, false
	}
	return s.items[i].Clone(), true
}

// Items returns a copy of every item in memory, newest first.
func (s *Store) Items() []model.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneItems(s.items)
}

// FindByName returns the first active item whose name matches
// case-insensitively.
func (s *Store) FindByName(name string) (model.Item, bool) {
	name = strings.TrimSpace(name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, it := range s.items {
		if it.Active() && strings.EqualFold(it.Name, name) {
			return it.Clone(), true
		}
	}
	return model.Item{}, false
}

func cloneItems(items []model.Item) []model.Item {
	out := make([]model.Item, len(items))
	for i, it := range items {
		out[i] = it.Clone()
	}
	return out
}

// --- Household data ---

func (s *Store) SetHousehold(h *model.Household) {
	s.mutate(ChangeHousehold, "", func() bool {
		s.household = clonePtr(h)
		return true
	})
}

func (s *Store) Household() *model.Household {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePtr(s.household)
}

func (s *Store) SetProfile(p *model.Profile) {
	s.mutate(ChangeProfile, "", func() bool {
		s.profile = clonePtr(p)
		return true
	})
}

func (s *Store) Profile() *model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePtr(s.profile)
}

func (s *Store) SetMembers(members []model.Profile) {
	s.mutate(ChangeMembers, "", func() bool {
		s.members = append([]model.Profile(nil), members...)
		return true
	})
}

func (s *Store) Members() []model.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Profile(nil), s.members...)
}

func (s *Store) SetCategories(categories []model.Category) {
	s.mutate(ChangeCategories, "", func() bool {
		s.categories = append([]model.Category(nil), categories...)
		return true
	})
}

func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category(nil), s.categories...)
}

func (s *Store) SetCatalog(catalog []model.HouseholdProduct) {
	s.mutate(ChangeCatalog, "", func() bool {
		s.catalog = append([]model.HouseholdProduct(nil), catalog...)
		return true
	})
}

// PutProduct inserts or replaces a catalog entry by id.
func (s *Store) PutProduct(p model.HouseholdProduct) {
	s.mutate(ChangeCatalog, "", func() bool {
		for i := range s.catalog {
			if s.catalog[i].ID == p.ID {
				s.catalog[i] = p
				return true
			}
		}
		s.catalog = append(s.catalog, p)
		return true
	})
}

func (s *Store) Catalog() []model.HouseholdProduct {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.HouseholdProduct(nil), s.catalog...)
}

func (s *Store) SetLists(lists []model.List) {
	s.mutate(ChangeLists, "", func() bool {
		s.lists = append([]model.List(nil), lists...)
		return true
	})
}

func (s *Store) Lists() []model.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.List(nil), s.lists...)
}

func (s *Store) SetCurrentList(l *model.List) {
	s.mutate(ChangeLists, "", func() bool {
		s.currentList = clonePtr(l)
		return true
	})
}

func (s *Store) CurrentList() *model.List {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return clonePtr(s.currentList)
}

func (s *Store) SetSettings(settings model.Settings) {
	s.mutate(ChangeSettings, "", func() bool {
		s.settings = settings
		return true
	})
}

func (s *Store) Settings() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
