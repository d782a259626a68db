package services

import (
	"cmp"
	"slices"
	"sync"

	"practicehub/models"
)

// ActionType kind of store transition
type ActionType int

const (
	ActionSetAll ActionType = iota + 1
	ActionAddOne
	ActionAddMany
	ActionUpdateOne
	ActionDeleteOne
	ActionAddParticipant
	ActionRemoveParticipant
	ActionSetParticipantStatus
)

func (t ActionType) String() string {
	switch t {
	case ActionSetAll:
		return "set-all"
	case ActionAddOne:
		return "add-one"
	case ActionAddMany:
		return "add-many"
	case ActionUpdateOne:
		return "update-one"
	case ActionDeleteOne:
		return "delete-one"
	case ActionAddParticipant:
		return "add-participant"
	case ActionRemoveParticipant:
		return "remove-participant"
	case ActionSetParticipantStatus:
		return "set-participant-status"
	}
	return "unknown"
}

// Action one store transition. Which fields are read depends on Type.
type Action struct {
	Type          ActionType
	Activities    []models.GroupActivity // set-all, add-one, add-many
	ID            string                 // update-one, delete-one, participant actions (activity id)
	Patch         models.ActivityPatch   // update-one
	Participant   models.GroupActivityParticipant
	ParticipantID string
	Status        models.ParticipantStatus
}

// SetAll replaces the whole list.
func SetAll(activities []models.GroupActivity) Action {
	return Action{Type: ActionSetAll, Activities: activities}
}

// AddOne appends one activity.
func AddOne(a models.GroupActivity) Action {
	return Action{Type: ActionAddOne, Activities: []models.GroupActivity{a}}
}

// AddMany appends several activities.
func AddMany(activities []models.GroupActivity) Action {
	return Action{Type: ActionAddMany, Activities: activities}
}

// UpdateOne shallow-merges patch into the activity with that id.
func UpdateOne(id string, patch models.ActivityPatch) Action {
	return Action{Type: ActionUpdateOne, ID: id, Patch: patch}
}

// DeleteOne removes the activity with that id.
func DeleteOne(id string) Action {
	return Action{Type: ActionDeleteOne, ID: id}
}

// AddParticipant appends a participant and bumps the counter.
func AddParticipant(activityID string, p models.GroupActivityParticipant) Action {
	return Action{Type: ActionAddParticipant, ID: activityID, Participant: p}
}

// RemoveParticipant drops a participant and lowers the counter.
func RemoveParticipant(activityID, participantID string) Action {
	return Action{Type: ActionRemoveParticipant, ID: activityID, ParticipantID: participantID}
}

// SetParticipantStatus changes only the participant's status.
func SetParticipantStatus(activityID, participantID string, status models.ParticipantStatus) Action {
	return Action{Type: ActionSetParticipantStatus, ID: activityID, ParticipantID: participantID, Status: status}
}

// Reduce applies an action to state and returns the new state.
// The input is never modified. Unknown ids leave the state unchanged.
func Reduce(state []models.GroupActivity, a Action) []models.GroupActivity {
	switch a.Type {
	case ActionSetAll:
		return sortActivities(cloneAll(a.Activities))

	case ActionAddOne, ActionAddMany:
		next := cloneAll(state)
		next = append(next, cloneAll(a.Activities)...)
		return sortActivities(next)

	case ActionUpdateOne:
		// date or start_time may have changed
		return sortActivities(mapActivity(state, a.ID, func(act models.GroupActivity) models.GroupActivity {
			return a.Patch.Apply(act)
		}))

	case ActionDeleteOne:
		next := make([]models.GroupActivity, 0, len(state))
		for _, act := range state {
			if act.ID != a.ID {
				next = append(next, act.Clone())
			}
		}
		return next

	case ActionAddParticipant:
		return mapActivity(state, a.ID, func(act models.GroupActivity) models.GroupActivity {
			act.Participants = append(act.Participants, a.Participant)
			act.CurrentParticipants++
			return act
		})

	case ActionRemoveParticipant:
		return mapActivity(state, a.ID, func(act models.GroupActivity) models.GroupActivity {
			kept := act.Participants[:0]
			removed := false
			for _, p := range act.Participants {
				if p.ID == a.ParticipantID {
					removed = true
					continue
				}
				kept = append(kept, p)
			}
			act.Participants = kept
			if removed {
				act.CurrentParticipants = max(0, act.CurrentParticipants-1)
			}
			return act
		})

	case ActionSetParticipantStatus:
		return mapActivity(state, a.ID, func(act models.GroupActivity) models.GroupActivity {
			for i := range act.Participants {
				if act.Participants[i].ID == a.ParticipantID {
					act.Participants[i].Status = a.Status
				}
			}
			return act
		})
	}
	return cloneAll(state)
}

// mapActivity copies state, passing a clone of the activity with id through fn.
func mapActivity(state []models.GroupActivity, id string, fn func(models.GroupActivity) models.GroupActivity) []models.GroupActivity {
	next := make([]models.GroupActivity, len(state))
	for i, act := range state {
		if act.ID == id {
			next[i] = fn(act.Clone())
			continue
		}
		next[i] = act.Clone()
	}
	return next
}

func cloneAll(activities []models.GroupActivity) []models.GroupActivity {
	out := make([]models.GroupActivity, len(activities))
	for i, act := range activities {
		out[i] = act.Clone()
	}
	return out
}

// sortActivities orders by (date, start_time); ties keep their order.
func sortActivities(activities []models.GroupActivity) []models.GroupActivity {
	slices.SortStableFunc(activities, func(a, b models.GroupActivity) int {
		if c := cmp.Compare(a.Date, b.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.StartTime, b.StartTime)
	})
	return activities
}

// ActivityStore holds the activity list of one organization.
// All transitions go through Dispatch or Transform and run one at a time.
type ActivityStore struct {
	mu    sync.Mutex
	state []models.GroupActivity

	// onChange, when set, is called after each transition while the lock is held.
	onChange func(Action)
}

// NewActivityStore creates an empty store
func NewActivityStore() *ActivityStore {
	return &ActivityStore{state: []models.GroupActivity{}}
}

// OnChange registers a hook called after every transition.
func (s *ActivityStore) OnChange(fn func(Action)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Dispatch applies one action
func (s *ActivityStore) Dispatch(a Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(a)
}

// Transform builds an action from the current state and applies it atomically.
// build returns false to leave the state untouched.
func (s *ActivityStore) Transform(build func(prev []models.GroupActivity) (Action, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := build(cloneAll(s.state))
	if !ok {
		return false
	}
	s.apply(a)
	return true
}

func (s *ActivityStore) apply(a Action) {
	s.state = Reduce(s.state, a)
	if s.onChange != nil {
		s.onChange(a)
	}
}

// Snapshot returns a deep copy of the current list
func (s *ActivityStore) Snapshot() []models.GroupActivity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.state)
}

// Get returns a copy of the activity with id.
func (s *ActivityStore) Get(id string) (models.GroupActivity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, act := range s.state {
		if act.ID == id {
			return act.Clone(), true
		}
	}
	return models.GroupActivity{}, false
}

// Len number of activities held
func (s *ActivityStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state)
}
