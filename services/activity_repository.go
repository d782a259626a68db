package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"practicehub/models"
)

// ActivityService gorm-backed store of activities and participants.
// Every committed write is published as change events.
type ActivityService struct {
	DB        *gorm.DB
	publisher ChangePublisher
	log       *zap.Logger
}

// NewActivityService creates the activity service
func NewActivityService(db *gorm.DB, publisher ChangePublisher, log *zap.Logger) *ActivityService {
	return &ActivityService{DB: db, publisher: publisher, log: log}
}

// participantRow participant joined with its client's contact columns
type participantRow struct {
	ID               string
	GroupActivityID  string
	ClientID         string
	Status           models.ParticipantStatus
	RegisteredAt     time.Time
	Notes            *string
	ClientName       *string
	ClientPhone      *string
	ClientEmail      *string
	ClientTaxID      *string
	ClientAddress    *string
	ClientCity       *string
	ClientProvince   *string
	ClientPostalCode *string
}

func (r participantRow) participant() models.GroupActivityParticipant {
	return models.GroupActivityParticipant{
		ID:              r.ID,
		GroupActivityID: r.GroupActivityID,
		ClientID:        r.ClientID,
		Status:          r.Status,
		RegisteredAt:    r.RegisteredAt,
		Notes:           r.Notes,
		Client: models.ClientContact{
			Name:       deref(r.ClientName),
			Phone:      deref(r.ClientPhone),
			Email:      deref(r.ClientEmail),
			TaxID:      deref(r.ClientTaxID),
			Address:    deref(r.ClientAddress),
			City:       deref(r.ClientCity),
			Province:   deref(r.ClientProvince),
			PostalCode: deref(r.ClientPostalCode),
		},
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListActivities returns the organization's activities with participants,
// client contact fields and professional/consultation names attached.
func (s *ActivityService) ListActivities(ctx context.Context, orgID string) ([]models.GroupActivity, error) {
	db := s.DB.WithContext(ctx)

	var activities []models.GroupActivity
	if err := db.Where("organization_id = ?", orgID).
		Order("date ASC, start_time ASC").
		Find(&activities).Error; err != nil {
		return nil, err
	}
	if len(activities) == 0 {
		return []models.GroupActivity{}, nil
	}

	ids := make([]string, len(activities))
	professionalIDs := make([]string, 0, len(activities))
	consultationIDs := make([]string, 0)
	for i, a := range activities {
		ids[i] = a.ID
		professionalIDs = append(professionalIDs, a.ProfessionalID)
		if a.ConsultationID != nil {
			consultationIDs = append(consultationIDs, *a.ConsultationID)
		}
	}

	var rows []participantRow
	if err := db.Table("group_activity_participants AS p").
		Select(`p.id, p.group_activity_id, p.client_id, p.status, p.registered_at, p.notes,
			c.name AS client_name, c.phone AS client_phone, c.email AS client_email,
			c.tax_id AS client_tax_id, c.address AS client_address, c.city AS client_city,
			c.province AS client_province, c.postal_code AS client_postal_code`).
		Joins("LEFT JOIN clients c ON c.id = p.client_id").
		Where("p.group_activity_id IN ?", ids).
		Order("p.registered_at ASC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	byActivity := make(map[string][]models.GroupActivityParticipant, len(activities))
	for _, r := range rows {
		byActivity[r.GroupActivityID] = append(byActivity[r.GroupActivityID], r.participant())
	}

	var professionals []models.User
	if err := db.Where("id IN ?", professionalIDs).Find(&professionals).Error; err != nil {
		return nil, err
	}
	names := make(map[string]string, len(professionals))
	for _, u := range professionals {
		names[u.ID] = u.DisplayName()
	}

	rooms := make(map[string]string)
	if len(consultationIDs) > 0 {
		var consultations []models.Consultation
		if err := db.Where("id IN ?", consultationIDs).Find(&consultations).Error; err != nil {
			return nil, err
		}
		for _, c := range consultations {
			rooms[c.ID] = c.Name
		}
	}

	for i := range activities {
		a := &activities[i]
		a.Participants = byActivity[a.ID]
		if a.Participants == nil {
			a.Participants = []models.GroupActivityParticipant{}
		}
		if name, ok := names[a.ProfessionalID]; ok {
			a.Professional = &models.Ref{ID: a.ProfessionalID, Name: name}
		}
		if a.ConsultationID != nil {
			if name, ok := rooms[*a.ConsultationID]; ok {
				a.Consultation = &models.Ref{ID: *a.ConsultationID, Name: name}
			}
		}
	}
	return activities, nil
}

// InsertActivity stores one activity and returns the created row.
func (s *ActivityService) InsertActivity(ctx context.Context, a models.GroupActivity) (models.GroupActivity, error) {
	rows, err := s.InsertActivities(ctx, []models.GroupActivity{a})
	if err != nil {
		return models.GroupActivity{}, err
	}
	return rows[0], nil
}

// InsertActivities stores the rows in one transaction. The result keeps the
// submission order and echoes each row's client_ref.
func (s *ActivityService) InsertActivities(ctx context.Context, rows []models.GroupActivity) ([]models.GroupActivity, error) {
	if len(rows) == 0 {
		return []models.GroupActivity{}, nil
	}
	created := make([]models.GroupActivity, len(rows))
	for i, r := range rows {
		created[i] = toRow(r)
	}

	if err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&created).Error
	}); err != nil {
		return nil, err
	}

	events := make([]models.ChangeEvent, 0, len(created))
	for _, a := range created {
		events = s.appendEvent(events, models.TableGroupActivities, models.ChangeInsert, a.OrganizationID, a, nil)
	}
	s.publish(ctx, events)
	return created, nil
}

// UpdateActivity writes the columns the patch touches.
func (s *ActivityService) UpdateActivity(ctx context.Context, orgID, id string, patch models.ActivityPatch) error {
	cols := patch.Columns()
	var before, after models.GroupActivity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if before, err = findActivity(tx, orgID, id); err != nil {
			return err
		}
		if len(cols) == 0 {
			after = before
			return nil
		}
		if err := tx.Model(&models.GroupActivity{}).
			Where("id = ? AND organization_id = ?", id, orgID).
			Updates(cols).Error; err != nil {
			return err
		}
		after, err = findActivity(tx, orgID, id)
		return err
	})
	if err != nil {
		return err
	}
	if len(cols) > 0 {
		s.publish(ctx, s.appendEvent(nil, models.TableGroupActivities, models.ChangeUpdate, orgID, after, before))
	}
	return nil
}

// DeleteActivity removes the activity and its participants.
func (s *ActivityService) DeleteActivity(ctx context.Context, orgID, id string) error {
	var before models.GroupActivity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if before, err = findActivity(tx, orgID, id); err != nil {
			return err
		}
		if err := tx.Where("group_activity_id = ?", id).Delete(&models.GroupActivityParticipant{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.GroupActivity{}, "id = ?", id).Error
	})
	if err != nil {
		return err
	}
	s.publish(ctx, s.appendEvent(nil, models.TableGroupActivities, models.ChangeDelete, orgID, nil, before))
	return nil
}

// InsertParticipant enrolls a client, raising the activity's counter in the
// same transaction. Full activities and repeated clients are rejected.
func (s *ActivityService) InsertParticipant(ctx context.Context, orgID string, p models.GroupActivityParticipant) (models.GroupActivityParticipant, error) {
	row := p
	row.ID = ""
	row.Client = models.ClientContact{}
	if row.Status == "" {
		row.Status = models.ParticipantRegistered
	}
	if row.RegisteredAt.IsZero() {
		row.RegisteredAt = time.Now().UTC()
	}

	var after models.GroupActivity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findActivity(tx, orgID, row.GroupActivityID); err != nil {
			return err
		}

		var clients int64
		if err := tx.Model(&models.Client{}).
			Where("id = ? AND organization_id = ?", row.ClientID, orgID).
			Count(&clients).Error; err != nil {
			return err
		}
		if clients == 0 {
			return fmt.Errorf("%w: %s", ErrClientNotFound, row.ClientID)
		}

		var enrolled int64
		if err := tx.Model(&models.GroupActivityParticipant{}).
			Where("group_activity_id = ? AND client_id = ?", row.GroupActivityID, row.ClientID).
			Count(&enrolled).Error; err != nil {
			return err
		}
		if enrolled > 0 {
			return ErrParticipantExists
		}

		res := tx.Model(&models.GroupActivity{}).
			Where("id = ? AND current_participants < max_participants", row.GroupActivityID).
			Update("current_participants", gorm.Expr("current_participants + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrActivityFull
		}

		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		var err error
		after, err = findActivity(tx, orgID, row.GroupActivityID)
		return err
	})
	if err != nil {
		return models.GroupActivityParticipant{}, err
	}

	events := s.appendEvent(nil, models.TableGroupParticipants, models.ChangeInsert, orgID, row, nil)
	events = s.appendEvent(events, models.TableGroupActivities, models.ChangeUpdate, orgID, after, nil)
	s.publish(ctx, events)
	return row, nil
}

// DeleteParticipant withdraws a participant, lowering the counter (never below zero).
func (s *ActivityService) DeleteParticipant(ctx context.Context, orgID, activityID, participantID string) error {
	var before models.GroupActivityParticipant
	var after models.GroupActivity
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findActivity(tx, orgID, activityID); err != nil {
			return err
		}
		var err error
		if before, err = findParticipant(tx, activityID, participantID); err != nil {
			return err
		}
		if err := tx.Delete(&models.GroupActivityParticipant{}, "id = ?", participantID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.GroupActivity{}).
			Where("id = ?", activityID).
			Update("current_participants",
				gorm.Expr("CASE WHEN current_participants > 0 THEN current_participants - 1 ELSE 0 END")).Error; err != nil {
			return err
		}
		after, err = findActivity(tx, orgID, activityID)
		return err
	})
	if err != nil {
		return err
	}

	events := s.appendEvent(nil, models.TableGroupParticipants, models.ChangeDelete, orgID, nil, before)
	events = s.appendEvent(events, models.TableGroupActivities, models.ChangeUpdate, orgID, after, nil)
	s.publish(ctx, events)
	return nil
}

// UpdateParticipantStatus changes a participant's status.
func (s *ActivityService) UpdateParticipantStatus(ctx context.Context, orgID, activityID, participantID string, status models.ParticipantStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown participant status %q", ErrInvalidActivity, status)
	}
	var before, after models.GroupActivityParticipant
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := findActivity(tx, orgID, activityID); err != nil {
			return err
		}
		var err error
		if before, err = findParticipant(tx, activityID, participantID); err != nil {
			return err
		}
		if err := tx.Model(&models.GroupActivityParticipant{}).
			Where("id = ?", participantID).
			Update("status", string(status)).Error; err != nil {
			return err
		}
		after, err = findParticipant(tx, activityID, participantID)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, s.appendEvent(nil, models.TableGroupParticipants, models.ChangeUpdate, orgID, after, before))
	return nil
}

// RecountParticipants sets current_participants to the number of participant
// rows. It reports whether the stored counter had drifted.
func (s *ActivityService) RecountParticipants(ctx context.Context, activityID string) (bool, error) {
	var before, after models.GroupActivity
	changed := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", activityID).First(&before).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrActivityNotFound
			}
			return err
		}
		var n int64
		if err := tx.Model(&models.GroupActivityParticipant{}).
			Where("group_activity_id = ?", activityID).
			Count(&n).Error; err != nil {
			return err
		}
		if int(n) == before.CurrentParticipants {
			return nil
		}
		if err := tx.Model(&models.GroupActivity{}).
			Where("id = ?", activityID).
			Update("current_participants", n).Error; err != nil {
			return err
		}
		changed = true
		return tx.Where("id = ?", activityID).First(&after).Error
	})
	if err != nil || !changed {
		return false, err
	}
	s.publish(ctx, s.appendEvent(nil, models.TableGroupActivities, models.ChangeUpdate, after.OrganizationID, after, before))
	return true, nil
}

func findActivity(tx *gorm.DB, orgID, id string) (models.GroupActivity, error) {
	var a models.GroupActivity
	if err := tx.Where("id = ? AND organization_id = ?", id, orgID).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return a, fmt.Errorf("%w: %s", ErrActivityNotFound, id)
		}
		return a, err
	}
	return a, nil
}

func findParticipant(tx *gorm.DB, activityID, id string) (models.GroupActivityParticipant, error) {
	var p models.GroupActivityParticipant
	if err := tx.Where("id = ? AND group_activity_id = ?", id, activityID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return p, fmt.Errorf("%w: %s", ErrParticipantNotFound, id)
		}
		return p, err
	}
	return p, nil
}

func (s *ActivityService) appendEvent(events []models.ChangeEvent, table string, typ models.ChangeType, orgID string, newRow, oldRow interface{}) []models.ChangeEvent {
	ev, err := models.NewChangeEvent(table, typ, orgID, newRow, oldRow)
	if err != nil {
		s.log.Error("encode change event", zap.String("table", table), zap.Error(err))
		return events
	}
	return append(events, ev)
}

// publish sends committed changes. The write already succeeded, so failures
// are only logged; boards converge on their next refetch.
func (s *ActivityService) publish(ctx context.Context, events []models.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	for _, ev := range events {
		if err := s.publisher.Publish(ctx, ev); err != nil {
			s.log.Warn("publish change event",
				zap.String("table", ev.Table),
				zap.String("type", string(ev.Type)),
				zap.Error(err))
		}
	}
}
