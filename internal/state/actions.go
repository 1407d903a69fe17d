package state

import "github.com/dukerupert/shopmate/internal/model"

// QueueAction appends a to the pending log.
func (s *Store) QueueAction(a model.PendingAction) {
	s.mutate(ChangeActions, a.EntityID(), func() bool {
		s.pending = append(s.pending, a)
		return true
	})
}

// RemoveAction deletes the pending action with the given id.
func (s *Store) RemoveAction(id string) bool {
	return s.mutate(ChangeActions, "", func() bool {
		for i := range s.pending {
			if s.pending[i].ID == id {
				s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
				return true
			}
		}
		return false
	})
}

// ReplaceAction overwrites a pending action in place, keeping its position in
// the log.
func (s *Store) ReplaceAction(a model.PendingAction) bool {
	return s.mutate(ChangeActions, a.EntityID(), func() bool {
		for i := range s.pending {
			if s.pending[i].ID == a.ID {
				s.pending[i] = a
				return true
			}
		}
		return false
	})
}

// PendingActions returns the pending log in insertion order.
func (s *Store) PendingActions() []model.PendingAction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.PendingAction(nil), s.pending...)
}

// HasPendingFor reports whether any queued action targets the item.
func (s *Store) HasPendingFor(itemID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.pending {
		if a.EntityID() == itemID {
			return true
		}
	}
	return false
}

// AddDeadLetter records an action that will not be retried automatically.
func (s *Store) AddDeadLetter(d model.DeadLetter) {
	s.mutate(ChangeDeadLetters, d.Action.EntityID(), func() bool {
		s.dead = append(s.dead, d)
		return true
	})
}

// RemoveDeadLetter deletes the dead letter holding the action id and returns
// it.
func (s *Store) RemoveDeadLetter(actionID string) (model.DeadLetter, bool) {
	var removed model.DeadLetter
	ok := s.mutate(ChangeDeadLetters, "", func() bool {
		for i := range s.dead {
			if s.dead[i].Action.ID == actionID {
				removed = s.dead[i]
				s.dead = append(s.dead[:i:i], s.dead[i+1:]...)
				return true
			}
		}
		return false
	})
	return removed, ok
}

func (s *Store) DeadLetters() []model.DeadLetter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.DeadLetter(nil), s.dead...)
}
