package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"practicehub/models"
)

// ReferenceService clients, consultation rooms and the professional roster
type ReferenceService struct {
	db    *gorm.DB
	users *UserService
	cache jsonCache
}

// NewReferenceService creates the reference service. rdb may be nil.
func NewReferenceService(db *gorm.DB, rdb *redis.Client, users *UserService, cacheTTL time.Duration, log *zap.Logger) *ReferenceService {
	return &ReferenceService{
		db:    db,
		users: users,
		cache: jsonCache{rdb: rdb, ttl: cacheTTL, log: log},
	}
}

func clientKey(orgID, id string) string {
	return fmt.Sprintf("client:%s:%s", orgID, id)
}

// LoadReferences professionals and consultation rooms of an organization
func (s *ReferenceService) LoadReferences(ctx context.Context, orgID string) (models.References, error) {
	professionals, err := s.users.ListProfessionals(ctx, orgID)
	if err != nil {
		return models.References{}, err
	}
	rooms, err := s.ListConsultations(ctx, orgID)
	if err != nil {
		return models.References{}, err
	}
	consultations := make([]models.Ref, len(rooms))
	for i, c := range rooms {
		consultations[i] = models.Ref{ID: c.ID, Name: c.Name}
	}
	return models.References{Professionals: professionals, Consultations: consultations}, nil
}

// ListConsultations consultation rooms ordered by name
func (s *ReferenceService) ListConsultations(ctx context.Context, orgID string) ([]models.Consultation, error) {
	var rooms []models.Consultation
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("name").
		Find(&rooms).Error; err != nil {
		return nil, err
	}
	return rooms, nil
}

// CreateConsultation adds a consultation room
func (s *ReferenceService) CreateConsultation(ctx context.Context, orgID, name string) (*models.Consultation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: consultation name is required", ErrInvalidReference)
	}
	room := models.Consultation{OrganizationID: orgID, Name: name}
	if err := s.db.WithContext(ctx).Create(&room).Error; err != nil {
		return nil, err
	}
	return &room, nil
}

// CreateClient adds a client
func (s *ReferenceService) CreateClient(ctx context.Context, orgID string, req models.ClientRequest) (*models.Client, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: client name is required", ErrInvalidReference)
	}
	client := models.Client{
		OrganizationID: orgID,
		Name:           strings.TrimSpace(req.Name),
		Phone:          req.Phone,
		Email:          req.Email,
		TaxID:          req.TaxID,
		Address:        req.Address,
		City:           req.City,
		Province:       req.Province,
		PostalCode:     req.PostalCode,
	}
	if err := s.db.WithContext(ctx).Create(&client).Error; err != nil {
		return nil, err
	}
	return &client, nil
}

// ListClients clients of an organization; query filters by name, email or phone
func (s *ReferenceService) ListClients(ctx context.Context, orgID, query string) ([]models.Client, error) {
	db := s.db.WithContext(ctx).Where("organization_id = ?", orgID)
	if q := strings.TrimSpace(query); q != "" {
		like := "%" + q + "%"
		db = db.Where("name LIKE ? OR email LIKE ? OR phone LIKE ?", like, like, like)
	}
	var clients []models.Client
	if err := db.Order("name").Limit(200).Find(&clients).Error; err != nil {
		return nil, err
	}
	return clients, nil
}

// GetClient returns one client, cached in Redis
func (s *ReferenceService) GetClient(ctx context.Context, orgID, clientID string) (models.Client, error) {
	var client models.Client
	key := clientKey(orgID, clientID)
	if s.cache.get(ctx, key, &client) {
		return client, nil
	}

	if err := s.db.WithContext(ctx).
		Where("id = ? AND organization_id = ?", clientID, orgID).
		First(&client).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Client{}, fmt.Errorf("%w: %s", ErrClientNotFound, clientID)
		}
		return models.Client{}, err
	}

	s.cache.set(ctx, key, client)
	return client, nil
}
