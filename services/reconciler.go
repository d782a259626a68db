package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"practicehub/models"
)

// ClientLookup resolves the display fields of a client
type ClientLookup interface {
	GetClient(ctx context.Context, orgID, clientID string) (models.Client, error)
}

// Reconciler merges change events written elsewhere into an ActivityStore.
// Handlers never return errors: a bad event is logged and dropped so the
// subscription keeps running.
type Reconciler struct {
	orgID   string
	store   *ActivityStore
	clients ClientLookup
	refs    func() models.References
	log     *zap.Logger
}

// NewReconciler creates a reconciler for one organization's store
func NewReconciler(orgID string, store *ActivityStore, clients ClientLookup, refs func() models.References, log *zap.Logger) *Reconciler {
	if refs == nil {
		refs = func() models.References { return models.References{} }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{orgID: orgID, store: store, clients: clients, refs: refs, log: log}
}

// counterRow the only activity columns an update event is trusted for
type counterRow struct {
	ID                  string `json:"id"`
	CurrentParticipants *int   `json:"current_participants"`
}

// HandleActivityChange applies one event from the activities stream and
// reports whether it touched the store.
func (r *Reconciler) HandleActivityChange(ctx context.Context, ev models.ChangeEvent) (applied bool) {
	defer r.guard(models.TableGroupActivities, ev)

	switch ev.Type {
	case models.ChangeUpdate:
		var row counterRow
		if err := decodeRow(ev.New, &row); err != nil {
			r.drop(ev, err)
			return false
		}
		if row.CurrentParticipants == nil {
			return false
		}
		if _, ok := r.store.Get(row.ID); !ok {
			return false
		}
		n := *row.CurrentParticipants
		r.store.Dispatch(UpdateOne(row.ID, models.ActivityPatch{CurrentParticipants: &n}))
		return true

	case models.ChangeInsert:
		var row models.GroupActivity
		if err := decodeRow(ev.New, &row); err != nil {
			r.drop(ev, err)
			return false
		}
		if row.OrganizationID != "" && row.OrganizationID != r.orgID {
			return false
		}
		return r.store.Transform(func(prev []models.GroupActivity) (Action, bool) {
			tempID, exists := matchInsertedActivity(prev, row)
			switch {
			case exists && tempID == "":
				return Action{}, false
			case exists:
				return UpdateOne(tempID, models.ActivityPatch{ID: &row.ID}), true
			}
			return AddOne(r.synthesize(row)), true
		})

	case models.ChangeDelete:
		var row counterRow
		if err := decodeRow(ev.Old, &row); err != nil {
			r.drop(ev, err)
			return false
		}
		if _, ok := r.store.Get(row.ID); !ok {
			return false
		}
		r.store.Dispatch(DeleteOne(row.ID))
		return true
	}
	return false
}

// HandleParticipantChange applies one event from the participants stream.
// Events for activities this store does not hold are ignored.
func (r *Reconciler) HandleParticipantChange(ctx context.Context, ev models.ChangeEvent) (applied bool) {
	defer r.guard(models.TableGroupParticipants, ev)

	raw := ev.New
	if ev.Type == models.ChangeDelete {
		raw = ev.Old
	}
	var row models.GroupActivityParticipant
	if err := decodeRow(raw, &row); err != nil {
		r.drop(ev, err)
		return false
	}
	activity, ok := r.store.Get(row.GroupActivityID)
	if !ok {
		return false
	}

	switch ev.Type {
	case models.ChangeInsert:
		if hasParticipant(activity, row) {
			return false
		}
		client, err := r.clients.GetClient(ctx, r.orgID, row.ClientID)
		if err != nil {
			r.log.Warn("resolve participant client",
				zap.String("organization_id", r.orgID),
				zap.String("client_id", row.ClientID),
				zap.Error(err))
			return false
		}
		row.Client = client.Contact()
		// The lookup ran unlocked; check again before adding.
		return r.store.Transform(func(prev []models.GroupActivity) (Action, bool) {
			for _, a := range prev {
				if a.ID == row.GroupActivityID {
					if hasParticipant(a, row) {
						return Action{}, false
					}
					return AddParticipant(row.GroupActivityID, row), true
				}
			}
			return Action{}, false
		})

	case models.ChangeDelete:
		r.store.Dispatch(RemoveParticipant(row.GroupActivityID, row.ID))
		return true

	case models.ChangeUpdate:
		if !row.Status.Valid() {
			r.drop(ev, fmt.Errorf("unknown participant status %q", row.Status))
			return false
		}
		r.store.Dispatch(SetParticipantStatus(row.GroupActivityID, row.ID, row.Status))
		return true
	}
	return false
}

// matchInsertedActivity looks for the local entry an inserted row stands for.
// It returns exists=true with an empty tempID when the permanent id is already
// held, or the id of the optimistic entry the row confirms. A temporary entry
// matches when both carry the same client_ref, or failing that when the
// business keys agree and the client_refs do not contradict each other.
func matchInsertedActivity(state []models.GroupActivity, row models.GroupActivity) (tempID string, exists bool) {
	for _, a := range state {
		if a.ID == row.ID {
			return "", true
		}
	}
	if row.ClientRef != "" {
		for _, a := range state {
			if models.IsTempID(a.ID) && a.ClientRef == row.ClientRef {
				return a.ID, true
			}
		}
	}
	key := row.Key()
	for _, a := range state {
		if !models.IsTempID(a.ID) || a.Key() != key {
			continue
		}
		if a.ClientRef != "" && row.ClientRef != "" && a.ClientRef != row.ClientRef {
			continue
		}
		return a.ID, true
	}
	return "", false
}

func hasParticipant(a models.GroupActivity, row models.GroupActivityParticipant) bool {
	for _, p := range a.Participants {
		if p.ID == row.ID {
			return true
		}
		if models.IsTempID(p.ID) && p.ClientID == row.ClientID {
			return true
		}
	}
	return false
}

// synthesize builds a display entity for a row created elsewhere.
func (r *Reconciler) synthesize(row models.GroupActivity) models.GroupActivity {
	refs := r.refs()
	a := row.Clone()
	a.Professional = refs.Professional(row.ProfessionalID)
	if row.ConsultationID != nil {
		a.Consultation = refs.Consultation(*row.ConsultationID)
	}
	if a.Participants == nil {
		a.Participants = []models.GroupActivityParticipant{}
	}
	return a
}

func (r *Reconciler) guard(stream string, ev models.ChangeEvent) {
	if rec := recover(); rec != nil {
		r.log.Error("realtime handler panicked",
			zap.String("organization_id", r.orgID),
			zap.String("stream", stream),
			zap.String("type", string(ev.Type)),
			zap.Any("panic", rec))
	}
}

func (r *Reconciler) drop(ev models.ChangeEvent, err error) {
	r.log.Warn("dropping change event",
		zap.String("organization_id", r.orgID),
		zap.String("table", ev.Table),
		zap.String("type", string(ev.Type)),
		zap.Error(err))
}

func decodeRow(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return fmt.Errorf("empty row payload")
	}
	return json.Unmarshal(raw, v)
}
