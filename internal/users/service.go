package users

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrProfileNotFound indicates no profile exists for the requested user id.
var ErrProfileNotFound = errors.New("users: profile not found")

// ServiceConfig describes the dependencies required for profile lookups.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service resolves user display names.
type Service struct {
	db *gorm.DB
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	return &Service{db: cfg.Database}, nil
}

// DisplayName returns the composed display name for the user. Names are read
// at call time so notification records snapshot the name current at write.
func (s *Service) DisplayName(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("%w: empty user id", ErrProfileNotFound)
	}
	var profile Profile
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: %s", ErrProfileNotFound, userID)
	}
	if err != nil {
		return "", fmt.Errorf("users: fetch profile %s: %w", userID, err)
	}
	name := profile.DisplayName()
	if name == "" {
		return "", fmt.Errorf("%w: %s has no name parts", ErrProfileNotFound, userID)
	}
	return name, nil
}
