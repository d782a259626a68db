package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TempIDPrefix marks ids generated locally before the row is persisted.
const TempIDPrefix = "temp-"

// IsTempID reports whether id was generated locally and not yet confirmed.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// ActivityStatus lifecycle status of a group activity
type ActivityStatus string

const (
	ActivityActive    ActivityStatus = "active"
	ActivityCompleted ActivityStatus = "completed"
	ActivityCancelled ActivityStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ActivityStatus) Valid() bool {
	switch s {
	case ActivityActive, ActivityCompleted, ActivityCancelled:
		return true
	}
	return false
}

// ParticipantStatus enrollment status of a participant
type ParticipantStatus string

const (
	ParticipantRegistered ParticipantStatus = "registered"
	ParticipantAttended   ParticipantStatus = "attended"
	ParticipantNoShow     ParticipantStatus = "no_show"
	ParticipantCancelled  ParticipantStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s ParticipantStatus) Valid() bool {
	switch s {
	case ParticipantRegistered, ParticipantAttended, ParticipantNoShow, ParticipantCancelled:
		return true
	}
	return false
}

// Ref is an id+name pair attached to rows for display.
type Ref struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// GroupActivity one scheduled group session
type GroupActivity struct {
	ID                  string         `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID      string         `json:"organization_id" gorm:"not null;size:64;index"`
	Name                string         `json:"name" gorm:"not null;size:255"`
	Description         *string        `json:"description,omitempty" gorm:"type:text"`
	Date                string         `json:"date" gorm:"not null;size:10;index"`
	StartTime           string         `json:"start_time" gorm:"not null;size:8"`
	EndTime             string         `json:"end_time" gorm:"not null;size:8"`
	ServiceID           *string        `json:"service_id,omitempty" gorm:"size:64"`
	ProfessionalID      string         `json:"professional_id" gorm:"not null;size:64;index"`
	ConsultationID      *string        `json:"consultation_id,omitempty" gorm:"size:64"`
	MaxParticipants     int            `json:"max_participants" gorm:"not null"`
	CurrentParticipants int            `json:"current_participants" gorm:"not null;default:0"`
	Status              ActivityStatus `json:"status" gorm:"not null;size:16;default:active"`
	Color               string         `json:"color" gorm:"size:16"`
	ClientRef           string         `json:"client_ref,omitempty" gorm:"size:64;index"`
	CreatedAt           time.Time      `json:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at"`

	// Attached for display, never stored in this shape.
	Professional *Ref                       `json:"professional,omitempty" gorm:"-"`
	Consultation *Ref                       `json:"consultation,omitempty" gorm:"-"`
	Participants []GroupActivityParticipant `json:"participants" gorm:"-"`
}

// BeforeCreate assigns a permanent id when the row has none.
func (a *GroupActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" || IsTempID(a.ID) {
		a.ID = uuid.New().String()
	}
	return nil
}

// BusinessKey identifies an activity by its semantic fields.
type BusinessKey struct {
	Name           string
	Date           string
	StartTime      string
	ProfessionalID string
}

// Key returns the business key of the activity.
func (a GroupActivity) Key() BusinessKey {
	return BusinessKey{Name: a.Name, Date: a.Date, StartTime: a.StartTime, ProfessionalID: a.ProfessionalID}
}

// Clone returns a deep copy.
func (a GroupActivity) Clone() GroupActivity {
	c := a
	if a.Description != nil {
		v := *a.Description
		c.Description = &v
	}
	if a.ServiceID != nil {
		v := *a.ServiceID
		c.ServiceID = &v
	}
	if a.ConsultationID != nil {
		v := *a.ConsultationID
		c.ConsultationID = &v
	}
	if a.Professional != nil {
		v := *a.Professional
		c.Professional = &v
	}
	if a.Consultation != nil {
		v := *a.Consultation
		c.Consultation = &v
	}
	if a.Participants != nil {
		c.Participants = make([]GroupActivityParticipant, len(a.Participants))
		copy(c.Participants, a.Participants)
	}
	return c
}

// ClientContact denormalized client fields shown next to a participant
type ClientContact struct {
	Name       string `json:"name"`
	Phone      string `json:"phone,omitempty"`
	Email      string `json:"email,omitempty"`
	TaxID      string `json:"tax_id,omitempty"`
	Address    string `json:"address,omitempty"`
	City       string `json:"city,omitempty"`
	Province   string `json:"province,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// LoadingClientName placeholder shown until the client is resolved.
const LoadingClientName = "Cargando..."

// GroupActivityParticipant one client's enrollment in an activity
type GroupActivityParticipant struct {
	ID              string            `json:"id" gorm:"primaryKey;size:64"`
	GroupActivityID string            `json:"group_activity_id" gorm:"not null;size:64;index"`
	ClientID        string            `json:"client_id" gorm:"not null;size:64;index"`
	Status          ParticipantStatus `json:"status" gorm:"not null;size:16;default:registered"`
	RegisteredAt    time.Time         `json:"registered_at"`
	Notes           *string           `json:"notes,omitempty" gorm:"type:text"`

	Client ClientContact `json:"client" gorm:"-"`
}

// BeforeCreate assigns a permanent id when the row has none.
func (p *GroupActivityParticipant) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" || IsTempID(p.ID) {
		p.ID = uuid.New().String()
	}
	return nil
}

// ActivityPatch partial update of an activity; nil fields are untouched.
// A ConsultationID pointing at "" clears the reference.
type ActivityPatch struct {
	ID                  *string         `json:"id,omitempty"`
	Name                *string         `json:"name,omitempty"`
	Description         *string         `json:"description,omitempty"`
	Date                *string         `json:"date,omitempty"`
	StartTime           *string         `json:"start_time,omitempty"`
	EndTime             *string         `json:"end_time,omitempty"`
	ServiceID           *string         `json:"service_id,omitempty"`
	ProfessionalID      *string         `json:"professional_id,omitempty"`
	ConsultationID      *string         `json:"consultation_id,omitempty"`
	MaxParticipants     *int            `json:"max_participants,omitempty"`
	CurrentParticipants *int            `json:"current_participants,omitempty"`
	Status              *ActivityStatus `json:"status,omitempty"`
	Color               *string         `json:"color,omitempty"`

	Professional *Ref `json:"-"`
	Consultation *Ref `json:"-"`
}

// Apply shallow-merges the patch into a copy of a.
func (p ActivityPatch) Apply(a GroupActivity) GroupActivity {
	out := a.Clone()
	if p.ID != nil {
		out.ID = *p.ID
	}
	if p.Name != nil {
		out.Name = *p.Name
	}
	if p.Description != nil {
		v := *p.Description
		out.Description = &v
	}
	if p.Date != nil {
		out.Date = *p.Date
	}
	if p.StartTime != nil {
		out.StartTime = *p.StartTime
	}
	if p.EndTime != nil {
		out.EndTime = *p.EndTime
	}
	if p.ServiceID != nil {
		v := *p.ServiceID
		out.ServiceID = &v
	}
	if p.ProfessionalID != nil {
		out.ProfessionalID = *p.ProfessionalID
	}
	if p.ConsultationID != nil {
		if *p.ConsultationID == "" {
			out.ConsultationID = nil
			out.Consultation = nil
		} else {
			v := *p.ConsultationID
			out.ConsultationID = &v
		}
	}
	if p.MaxParticipants != nil {
		out.MaxParticipants = *p.MaxParticipants
	}
	if p.CurrentParticipants != nil {
		out.CurrentParticipants = *p.CurrentParticipants
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.Color != nil {
		out.Color = *p.Color
	}
	if p.Professional != nil {
		v := *p.Professional
		out.Professional = &v
	}
	if p.Consultation != nil {
		v := *p.Consultation
		out.Consultation = &v
	}
	return out
}

// IsEmpty reports whether the patch touches no stored column.
func (p ActivityPatch) IsEmpty() bool {
	return p.Name == nil && p.Description == nil && p.Date == nil && p.StartTime == nil &&
		p.EndTime == nil && p.ServiceID == nil && p.ProfessionalID == nil && p.ConsultationID == nil &&
		p.MaxParticipants == nil && p.CurrentParticipants == nil && p.Status == nil && p.Color == nil
}

// Columns returns the stored columns the patch touches, keyed by column name.
func (p ActivityPatch) Columns() map[string]interface{} {
	cols := make(map[string]interface{})
	if p.Name != nil {
		cols["name"] = *p.Name
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Date != nil {
		cols["date"] = *p.Date
	}
	if p.StartTime != nil {
		cols["start_time"] = *p.StartTime
	}
	if p.EndTime != nil {
		cols["end_time"] = *p.EndTime
	}
	if p.ServiceID != nil {
		cols["service_id"] = *p.ServiceID
	}
	if p.ProfessionalID != nil {
		cols["professional_id"] = *p.ProfessionalID
	}
	if p.ConsultationID != nil {
		if *p.ConsultationID == "" {
			cols["consultation_id"] = nil
		} else {
			cols["consultation_id"] = *p.ConsultationID
		}
	}
	if p.MaxParticipants != nil {
		cols["max_participants"] = *p.MaxParticipants
	}
	if p.CurrentParticipants != nil {
		cols["current_participants"] = *p.CurrentParticipants
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.Color != nil {
		cols["color"] = *p.Color
	}
	return cols
}

// ActivityRequest create request for one activity or a recurring series
type ActivityRequest struct {
	Name            string            `json:"name" binding:"required"`
	Description     *string           `json:"description"`
	Date            string            `json:"date" binding:"required"`
	StartTime       string            `json:"start_time" binding:"required"`
	EndTime         string            `json:"end_time" binding:"required"`
	ServiceID       *string           `json:"service_id"`
	ProfessionalID  string            `json:"professional_id" binding:"required"`
	ConsultationID  *string           `json:"consultation_id"`
	MaxParticipants int               `json:"max_participants" binding:"required"`
	Color           string            `json:"color"`
	Recurrence      *RecurrenceConfig `json:"recurrence,omitempty"`
}

// ParticipantRequest enrollment request
type ParticipantRequest struct {
	ClientID string  `json:"client_id" binding:"required"`
	Notes    *string `json:"notes"`
}

// ParticipantStatusRequest status change request
type ParticipantStatusRequest struct {
	Status ParticipantStatus `json:"status" binding:"required"`
}

// References display data joined onto activities
type References struct {
	Professionals []Ref `json:"professionals"`
	Consultations []Ref `json:"consultations"`
}

// Professional finds a professional by id.
func (r References) Professional(id string) *Ref {
	return findRef(r.Professionals, id)
}

// Consultation finds a consultation room by id.
func (r References) Consultation(id string) *Ref {
	return findRef(r.Consultations, id)
}

func findRef(refs []Ref, id string) *Ref {
	for i := range refs {
		if refs[i].ID == id {
			v := refs[i]
			return &v
		}
	}
	return nil
}

// Actor the authenticated user performing a mutation
type Actor struct {
	UserID         string
	OrganizationID string
}
