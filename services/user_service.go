package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"practicehub/models"
)

// UserService staff accounts
type UserService struct {
	db    *gorm.DB
	rdb   *redis.Client
	cache jsonCache
}

// NewUserService creates the user service. rdb may be nil.
func NewUserService(db *gorm.DB, rdb *redis.Client, cacheTTL time.Duration, log *zap.Logger) *UserService {
	return &UserService{
		db:    db,
		rdb:   rdb,
		cache: jsonCache{rdb: rdb, ttl: cacheTTL, log: log},
	}
}

func userKey(id string) string {
	return "user:" + id
}

// Register creates a staff account
func (s *UserService) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	db := s.db.WithContext(ctx)

	var existing int64
	if err := db.Model(&models.User{}).
		Where("username = ? OR email = ?", req.Username, req.Email).
		Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrUserExists
	}

	role := req.Role
	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		orgID = uuid.New().String()
		role = models.RoleAdmin
	}
	if role == "" {
		role = models.RoleStaff
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		OrganizationID: orgID,
		Username:       req.Username,
		Password:       string(hashed),
		Email:          req.Email,
		FullName:       req.FullName,
		Role:           role,
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login checks the credentials
func (s *UserService) Login(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

// GetUserByID returns a user, cached in Redis
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if s.cache.get(ctx, userKey(id), &user) {
		return &user, nil
	}

	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	s.cache.set(ctx, userKey(id), user)
	return &user, nil
}

// ChangePassword replaces the password after checking the old one
func (s *UserService) ChangePassword(ctx context.Context, id, oldPassword, newPassword string) error {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("password", string(hashed)).Error; err != nil {
		return err
	}

	s.cache.del(ctx, userKey(id))
	return nil
}

// ListUsers staff of an organization with their online status
func (s *UserService) ListUsers(ctx context.Context, orgID string) ([]models.UserResponse, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("username").
		Find(&users).Error; err != nil {
		return nil, err
	}

	responses := make([]models.UserResponse, 0, len(users))
	for _, user := range users {
		responses = append(responses, user.Response(s.IsUserOnline(ctx, user.ID)))
	}
	return responses, nil
}

// ListProfessionals the roster activities can be assigned to
func (s *UserService) ListProfessionals(ctx context.Context, orgID string) ([]models.Ref, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).
		Where("organization_id = ? AND role IN ?", orgID, []string{string(models.RoleProfessional), string(models.RoleAdmin)}).
		Order("full_name, username").
		Find(&users).Error; err != nil {
		return nil, err
	}

	refs := make([]models.Ref, len(users))
	for i, u := range users {
		refs[i] = models.Ref{ID: u.ID, Name: u.DisplayName()}
	}
	return refs, nil
}

// IsUserOnline checks the shared online set
func (s *UserService) IsUserOnline(ctx context.Context, userID string) bool {
	if s.rdb == nil {
		return false
	}
	online, err := s.rdb.SIsMember(ctx, keyOnlineUsers, userID).Result()
	if err != nil {
		return false
	}
	return online
}
