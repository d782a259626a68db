package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"practicehub/models"
)

// Notification texts shown to the user
const (
	msgCreateOK          = "Actividad creada correctamente"
	msgCreateFailed      = "Error al crear la actividad"
	msgSeriesOK          = "%d actividades creadas correctamente"
	msgSeriesFailed      = "Error al crear las actividades recurrentes"
	msgUpdateOK          = "Actividad actualizada correctamente"
	msgUpdateFailed      = "Error al actualizar la actividad"
	msgDeleteOK          = "Actividad eliminada correctamente"
	msgDeleteFailed      = "Error al eliminar la actividad"
	msgAddParticipantOK  = "Participante añadido correctamente"
	msgAddParticipantErr = "Error al añadir el participante"
	msgRemoveOK          = "Participante eliminado correctamente"
	msgRemoveFailed      = "Error al eliminar el participante"
	msgStatusOK          = "Estado del participante actualizado"
	msgStatusFailed      = "Error al actualizar el estado del participante"
)

// DefaultActivityColor color of activities created without one
const DefaultActivityColor = "#3b82f6"

// ActivityRepository persistence of activities and participants
type ActivityRepository interface {
	ListActivities(ctx context.Context, orgID string) ([]models.GroupActivity, error)
	InsertActivity(ctx context.Context, a models.GroupActivity) (models.GroupActivity, error)
	// InsertActivities returns the created rows in submission order.
	InsertActivities(ctx context.Context, rows []models.GroupActivity) ([]models.GroupActivity, error)
	UpdateActivity(ctx context.Context, orgID, id string, patch models.ActivityPatch) error
	DeleteActivity(ctx context.Context, orgID, id string) error
	InsertParticipant(ctx context.Context, orgID string, p models.GroupActivityParticipant) (models.GroupActivityParticipant, error)
	DeleteParticipant(ctx context.Context, orgID, activityID, participantID string) error
	UpdateParticipantStatus(ctx context.Context, orgID, activityID, participantID string, status models.ParticipantStatus) error
}

// MutatorConfig dependencies of a Mutator
type MutatorConfig struct {
	OrganizationID       string
	Store                *ActivityStore
	Repository           ActivityRepository
	Syncer               AutoSyncer
	Notifier             Notifier
	References           func() models.References
	Log                  *zap.Logger
	Now                  func() time.Time
	MaxSeriesOccurrences int
}

// Mutator applies user writes to the store first, then to the repository.
// A failed write triggers a full refetch that discards the optimistic state.
type Mutator struct {
	orgID     string
	store     *ActivityStore
	repo      ActivityRepository
	syncer    AutoSyncer
	notifier  Notifier
	refs      func() models.References
	log       *zap.Logger
	now       func() time.Time
	maxSeries int

	stampMu   sync.Mutex
	lastStamp int64

	// refetch generations: a result is applied only if no later-started
	// refetch has been applied already.
	fetchClock *Clock
	fetchMu    sync.Mutex
	applied    int64
}

// NewMutator creates a mutator for one organization
func NewMutator(cfg MutatorConfig) *Mutator {
	m := &Mutator{
		orgID:      cfg.OrganizationID,
		store:      cfg.Store,
		repo:       cfg.Repository,
		syncer:     cfg.Syncer,
		notifier:   cfg.Notifier,
		refs:       cfg.References,
		log:        cfg.Log,
		now:        cfg.Now,
		maxSeries:  cfg.MaxSeriesOccurrences,
		fetchClock: NewClock(),
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	if m.syncer == nil {
		m.syncer = NopAutoSyncer{}
	}
	if m.notifier == nil {
		m.notifier = LogNotifier{Log: m.log}
	}
	if m.refs == nil {
		m.refs = func() models.References { return models.References{} }
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.maxSeries <= 0 {
		m.maxSeries = DefaultMaxSeriesOccurrences
	}
	return m
}

// Refetch replaces the store contents with the authoritative list.
func (m *Mutator) Refetch(ctx context.Context) error {
	gen := m.fetchClock.Next()
	rows, err := m.repo.ListActivities(ctx, m.orgID)
	if err != nil {
		return fmt.Errorf("list activities: %w", err)
	}
	m.decorate(rows)

	m.fetchMu.Lock()
	defer m.fetchMu.Unlock()
	if gen < m.applied {
		m.log.Debug("dropping stale refetch", zap.Int64("generation", gen), zap.Int64("applied", m.applied))
		return nil
	}
	m.applied = gen
	m.store.Dispatch(SetAll(rows))
	return nil
}

// CreateActivity creates one activity optimistically and returns it with its permanent id.
func (m *Mutator) CreateActivity(ctx context.Context, actor models.Actor, req models.ActivityRequest) (models.GroupActivity, error) {
	req, err := normalizeActivityRequest(req)
	if err != nil {
		m.notifier.Notify(actor.UserID, NotifyError, msgCreateFailed)
		return models.GroupActivity{}, err
	}

	tempID := fmt.Sprintf("%s%d", models.TempIDPrefix, m.nextStamp())
	optimistic := m.buildActivity(req, req.Date, tempID)
	m.store.Dispatch(AddOne(optimistic))

	created, err := m.repo.InsertActivity(ctx, toRow(optimistic))
	if err != nil {
		return models.GroupActivity{}, m.fail(ctx, actor, msgCreateFailed, err, DeleteOne(tempID))
	}

	m.store.Dispatch(UpdateOne(tempID, models.ActivityPatch{ID: &created.ID}))
	m.autoSync(ctx, created.ID, actor)
	m.notifier.Notify(actor.UserID, NotifySuccess, msgCreateOK)

	return mergeDisplay(created, optimistic), nil
}

// CreateRecurringActivities expands req.Recurrence into one activity per date
// and creates them in a single batch.
func (m *Mutator) CreateRecurringActivities(ctx context.Context, actor models.Actor, req models.ActivityRequest) ([]models.GroupActivity, error) {
	req, err := normalizeActivityRequest(req)
	if err != nil {
		m.notifier.Notify(actor.UserID, NotifyError, msgSeriesFailed)
		return nil, err
	}
	if req.Recurrence == nil {
		m.notifier.Notify(actor.UserID, NotifyError, msgSeriesFailed)
		return nil, fmt.Errorf("%w: recurrence is required", ErrInvalidRecurrence)
	}
	dates, err := ExpandConfig(req.Date, *req.Recurrence, m.maxSeries)
	if err != nil {
		m.notifier.Notify(actor.UserID, NotifyError, msgSeriesFailed)
		return nil, err
	}

	stamp := m.nextStamp()
	temps := make([]models.GroupActivity, len(dates))
	rows := make([]models.GroupActivity, len(dates))
	for i, date := range dates {
		temps[i] = m.buildActivity(req, date, fmt.Sprintf("%s%d-%d", models.TempIDPrefix, stamp, i))
		rows[i] = toRow(temps[i])
	}
	m.store.Dispatch(AddMany(temps))

	created, err := m.repo.InsertActivities(ctx, rows)
	if err != nil {
		undo := make([]Action, len(temps))
		for i, t := range temps {
			undo[i] = DeleteOne(t.ID)
		}
		return nil, m.fail(ctx, actor, msgSeriesFailed, err, undo...)
	}

	confirmed := zipCreated(temps, created)
	drop := make(map[string]bool, len(temps)+len(confirmed))
	for _, t := range temps {
		drop[t.ID] = true
	}
	for _, c := range confirmed {
		drop[c.ID] = true
	}
	// Realtime echoes may already have renamed some temps; drop those too.
	m.store.Transform(func(prev []models.GroupActivity) (Action, bool) {
		next := make([]models.GroupActivity, 0, len(prev)+len(confirmed))
		for _, a := range prev {
			if !drop[a.ID] {
				next = append(next, a)
			}
		}
		return SetAll(append(next, confirmed...)), true
	})

	for _, c := range confirmed {
		m.autoSync(ctx, c.ID, actor)
	}
	m.notifier.Notify(actor.UserID, NotifySuccess, fmt.Sprintf(msgSeriesOK, len(confirmed)))
	return confirmed, nil
}

// UpdateActivity merges patch into the activity, locally first.
func (m *Mutator) UpdateActivity(ctx context.Context, actor models.Actor, id string, patch models.ActivityPatch) error {
	patch.ID = nil
	patch.CurrentParticipants = nil
	patch, err := normalizePatch(patch)
	if err != nil {
		m.notifier.Notify(actor.UserID, NotifyError, msgUpdateFailed)
		return err
	}

	refs := m.refs()
	if patch.ProfessionalID != nil {
		patch.Professional = refs.Professional(*patch.ProfessionalID)
	}
	if patch.ConsultationID != nil && *patch.ConsultationID != "" {
		patch.Consultation = refs.Consultation(*patch.ConsultationID)
	}
	m.store.Dispatch(UpdateOne(id, patch))

	if err := m.repo.UpdateActivity(ctx, m.orgID, id, patch); err != nil {
		return m.fail(ctx, actor, msgUpdateFailed, err)
	}
	m.autoSync(ctx, id, actor)
	m.notifier.Notify(actor.UserID, NotifySuccess, msgUpdateOK)
	return nil
}

// DeleteActivity removes the activity, locally first.
func (m *Mutator) DeleteActivity(ctx context.Context, actor models.Actor, id string) error {
	m.store.Dispatch(DeleteOne(id))

	if err := m.repo.DeleteActivity(ctx, m.orgID, id); err != nil {
		return m.fail(ctx, actor, msgDeleteFailed, err)
	}
	m.notifier.Notify(actor.UserID, NotifySuccess, msgDeleteOK)
	return nil
}

// AddParticipant enrolls a client. The placeholder row is replaced by the
// refetch that follows the write.
func (m *Mutator) AddParticipant(ctx context.Context, actor models.Actor, activityID string, req models.ParticipantRequest) (models.GroupActivityParticipant, error) {
	if strings.TrimSpace(req.ClientID) == "" {
		m.notifier.Notify(actor.UserID, NotifyError, msgAddParticipantErr)
		return models.GroupActivityParticipant{}, fmt.Errorf("%w: client_id is required", ErrInvalidActivity)
	}

	placeholder := models.GroupActivityParticipant{
		ID:              fmt.Sprintf("%s%d", models.TempIDPrefix, m.nextStamp()),
		GroupActivityID: activityID,
		ClientID:        req.ClientID,
		Status:          models.ParticipantRegistered,
		RegisteredAt:    m.now().UTC(),
		Notes:           req.Notes,
		Client:          models.ClientContact{Name: models.LoadingClientName},
	}
	m.store.Dispatch(AddParticipant(activityID, placeholder))

	row := placeholder
	row.ID = ""
	row.Client = models.ClientContact{}
	created, err := m.repo.InsertParticipant(ctx, m.orgID, row)
	if err != nil {
		return models.GroupActivityParticipant{}, m.fail(ctx, actor, msgAddParticipantErr, err, RemoveParticipant(activityID, placeholder.ID))
	}

	m.autoSync(ctx, activityID, actor)
	m.refetchAfterWrite(ctx)
	m.notifier.Notify(actor.UserID, NotifySuccess, msgAddParticipantOK)
	return created, nil
}

// RemoveParticipant withdraws a participant, locally first.
func (m *Mutator) RemoveParticipant(ctx context.Context, actor models.Actor, activityID, participantID string) error {
	m.store.Dispatch(RemoveParticipant(activityID, participantID))

	if err := m.repo.DeleteParticipant(ctx, m.orgID, activityID, participantID); err != nil {
		return m.fail(ctx, actor, msgRemoveFailed, err)
	}
	m.autoSync(ctx, activityID, actor)
	m.refetchAfterWrite(ctx)
	m.notifier.Notify(actor.UserID, NotifySuccess, msgRemoveOK)
	return nil
}

// SetParticipantStatus changes a participant's status, locally first.
func (m *Mutator) SetParticipantStatus(ctx context.Context, actor models.Actor, activityID, participantID string, status models.ParticipantStatus) error {
	if !status.Valid() {
		m.notifier.Notify(actor.UserID, NotifyError, msgStatusFailed)
		return fmt.Errorf("%w: unknown participant status %q", ErrInvalidActivity, status)
	}
	m.store.Dispatch(SetParticipantStatus(activityID, participantID, status))

	if err := m.repo.UpdateParticipantStatus(ctx, m.orgID, activityID, participantID, status); err != nil {
		return m.fail(ctx, actor, msgStatusFailed, err)
	}
	m.autoSync(ctx, activityID, actor)
	m.refetchAfterWrite(ctx)
	m.notifier.Notify(actor.UserID, NotifySuccess, msgStatusOK)
	return nil
}

// fail refetches authoritative state, notifies the user and returns err.
// When the refetch fails too, undo is dispatched so no temporary row
// outlives the failed write.
func (m *Mutator) fail(ctx context.Context, actor models.Actor, message string, err error, undo ...Action) error {
	m.log.Error(message,
		zap.String("organization_id", m.orgID),
		zap.String("user_id", actor.UserID),
		zap.Error(err))
	if rerr := m.Refetch(context.WithoutCancel(ctx)); rerr != nil {
		m.log.Error("refetch after failed write", zap.String("organization_id", m.orgID), zap.Error(rerr))
		for _, a := range undo {
			m.store.Dispatch(a)
		}
	}
	m.notifier.Notify(actor.UserID, NotifyError, message)
	return err
}

func (m *Mutator) refetchAfterWrite(ctx context.Context) {
	if err := m.Refetch(context.WithoutCancel(ctx)); err != nil {
		m.log.Warn("refetch after write", zap.String("organization_id", m.orgID), zap.Error(err))
	}
}

// autoSync never fails the caller: errors and panics are logged.
func (m *Mutator) autoSync(ctx context.Context, activityID string, actor models.Actor) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("auto-sync panicked", zap.String("activity_id", activityID), zap.Any("panic", r))
		}
	}()
	if err := m.syncer.AutoSyncGroupActivity(ctx, activityID, actor.UserID, actor.OrganizationID); err != nil {
		m.log.Warn("auto-sync failed", zap.String("activity_id", activityID), zap.Error(err))
	}
}

// nextStamp returns a millisecond timestamp, bumped so it never repeats.
func (m *Mutator) nextStamp() int64 {
	m.stampMu.Lock()
	defer m.stampMu.Unlock()
	s := m.now().UnixMilli()
	if s <= m.lastStamp {
		s = m.lastStamp + 1
	}
	m.lastStamp = s
	return s
}

func (m *Mutator) buildActivity(req models.ActivityRequest, date, id string) models.GroupActivity {
	refs := m.refs()
	now := m.now().UTC()
	color := req.Color
	if color == "" {
		color = DefaultActivityColor
	}
	a := models.GroupActivity{
		ID:                  id,
		OrganizationID:      m.orgID,
		Name:                strings.TrimSpace(req.Name),
		Description:         req.Description,
		Date:                date,
		StartTime:           req.StartTime,
		EndTime:             req.EndTime,
		ServiceID:           req.ServiceID,
		ProfessionalID:      req.ProfessionalID,
		MaxParticipants:     req.MaxParticipants,
		CurrentParticipants: 0,
		Status:              models.ActivityActive,
		Color:               color,
		ClientRef:           uuid.New().String(),
		CreatedAt:           now,
		UpdatedAt:           now,
		Professional:        refs.Professional(req.ProfessionalID),
		Participants:        []models.GroupActivityParticipant{},
	}
	if req.ConsultationID != nil && *req.ConsultationID != "" {
		v := *req.ConsultationID
		a.ConsultationID = &v
		a.Consultation = refs.Consultation(v)
	}
	return a.Clone()
}

// decorate fills display refs the repository could not resolve.
func (m *Mutator) decorate(rows []models.GroupActivity) {
	refs := m.refs()
	for i := range rows {
		if rows[i].Professional == nil {
			rows[i].Professional = refs.Professional(rows[i].ProfessionalID)
		}
		if rows[i].Consultation == nil && rows[i].ConsultationID != nil {
			rows[i].Consultation = refs.Consultation(*rows[i].ConsultationID)
		}
		if rows[i].Participants == nil {
			rows[i].Participants = []models.GroupActivityParticipant{}
		}
	}
}

// toRow strips the local id and display fields before an insert.
func toRow(a models.GroupActivity) models.GroupActivity {
	row := a.Clone()
	row.ID = ""
	row.Professional = nil
	row.Consultation = nil
	row.Participants = nil
	return row
}

// mergeDisplay copies the display fields of the optimistic entity onto a created row.
func mergeDisplay(row, optimistic models.GroupActivity) models.GroupActivity {
	out := row.Clone()
	out.Professional = optimistic.Professional
	out.Consultation = optimistic.Consultation
	out.Participants = optimistic.Participants
	return out.Clone()
}

// zipCreated pairs created rows with the temporary entities they came from.
// Rows are matched by the echoed client_ref; rows without one fall back to
// their position in the batch.
func zipCreated(temps, created []models.GroupActivity) []models.GroupActivity {
	byRef := make(map[string]models.GroupActivity, len(temps))
	for _, t := range temps {
		if t.ClientRef != "" {
			byRef[t.ClientRef] = t
		}
	}
	out := make([]models.GroupActivity, 0, len(created))
	for i, row := range created {
		if t, ok := byRef[row.ClientRef]; ok && row.ClientRef != "" {
			out = append(out, mergeDisplay(row, t))
			continue
		}
		if i < len(temps) {
			out = append(out, mergeDisplay(row, temps[i]))
			continue
		}
		out = append(out, row.Clone())
	}
	return out
}

// normalizeClock parses HH:MM or HH:MM:SS and returns it zero-padded in the
// same layout, so times compare correctly as strings ("9:00" -> "09:00").
func normalizeClock(s string) (string, time.Time, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(layout), t, nil
		}
	}
	return "", time.Time{}, fmt.Errorf("unparsable time %q", s)
}

// normalizeActivityRequest validates req and returns it with canonical times.
func normalizeActivityRequest(req models.ActivityRequest) (models.ActivityRequest, error) {
	if strings.TrimSpace(req.Name) == "" {
		return req, fmt.Errorf("%w: name is required", ErrInvalidActivity)
	}
	if _, err := ParseDate(req.Date); err != nil {
		return req, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidActivity, req.Date)
	}
	startTime, start, err := normalizeClock(req.StartTime)
	if err != nil {
		return req, fmt.Errorf("%w: start_time %q must be HH:MM", ErrInvalidActivity, req.StartTime)
	}
	endTime, end, err := normalizeClock(req.EndTime)
	if err != nil {
		return req, fmt.Errorf("%w: end_time %q must be HH:MM", ErrInvalidActivity, req.EndTime)
	}
	if !end.After(start) {
		return req, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidActivity)
	}
	if strings.TrimSpace(req.ProfessionalID) == "" {
		return req, fmt.Errorf("%w: professional_id is required", ErrInvalidActivity)
	}
	if req.MaxParticipants < 1 {
		return req, fmt.Errorf("%w: max_participants must be at least 1", ErrInvalidActivity)
	}
	req.StartTime = startTime
	req.EndTime = endTime
	return req, nil
}

// normalizePatch validates p and returns it with canonical times.
func normalizePatch(p models.ActivityPatch) (models.ActivityPatch, error) {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return p, fmt.Errorf("%w: name cannot be empty", ErrInvalidActivity)
	}
	if p.Date != nil {
		if _, err := ParseDate(*p.Date); err != nil {
			return p, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidActivity, *p.Date)
		}
	}
	if p.StartTime != nil {
		v, _, err := normalizeClock(*p.StartTime)
		if err != nil {
			return p, fmt.Errorf("%w: start_time %q must be HH:MM", ErrInvalidActivity, *p.StartTime)
		}
		p.StartTime = &v
	}
	if p.EndTime != nil {
		v, _, err := normalizeClock(*p.EndTime)
		if err != nil {
			return p, fmt.Errorf("%w: end_time %q must be HH:MM", ErrInvalidActivity, *p.EndTime)
		}
		p.EndTime = &v
	}
	if p.MaxParticipants != nil && *p.MaxParticipants < 1 {
		return p, fmt.Errorf("%w: max_participants must be at least 1", ErrInvalidActivity)
	}
	if p.Status != nil && !p.Status.Valid() {
		return p, fmt.Errorf("%w: unknown status %q", ErrInvalidActivity, *p.Status)
	}
	if p.ProfessionalID != nil && strings.TrimSpace(*p.ProfessionalID) == "" {
		return p, fmt.Errorf("%w: professional_id cannot be empty", ErrInvalidActivity)
	}
	return p, nil
}
