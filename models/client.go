package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client a customer of the practice
type Client struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string    `json:"organization_id" gorm:"not null;size:64;index"`
	Name           string    `json:"name" gorm:"not null;size:255"`
	Phone          string    `json:"phone" gorm:"size:32"`
	Email          string    `json:"email" gorm:"size:191"`
	TaxID          string    `json:"tax_id" gorm:"size:32"`
	Address        string    `json:"address" gorm:"size:255"`
	City           string    `json:"city" gorm:"size:128"`
	Province       string    `json:"province" gorm:"size:128"`
	PostalCode     string    `json:"postal_code" gorm:"size:16"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// BeforeCreate assigns the id.
func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Contact returns the fields shown next to a participant.
func (c Client) Contact() ClientContact {
	return ClientContact{
		Name:       c.Name,
		Phone:      c.Phone,
		Email:      c.Email,
		TaxID:      c.TaxID,
		Address:    c.Address,
		City:       c.City,
		Province:   c.Province,
		PostalCode: c.PostalCode,
	}
}

// ClientRequest create request for a client
type ClientRequest struct {
	Name       string `json:"name" binding:"required"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	TaxID      string `json:"tax_id"`
	Address    string `json:"address"`
	City       string `json:"city"`
	Province   string `json:"province"`
	PostalCode string `json:"postal_code"`
}

// Consultation a consultation room
type Consultation struct {
	ID             string    `json:"id" gorm:"primaryKey;size:64"`
	OrganizationID string    `json:"organization_id" gorm:"not null;size:64;index"`
	Name           string    `json:"name" gorm:"not null;size:255"`
	CreatedAt      time.Time `json:"created_at"`
}

// BeforeCreate assigns the id.
func (c *Consultation) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// ConsultationRequest create request for a consultation room
type ConsultationRequest struct {
	Name string `json:"name" binding:"required"`
}
