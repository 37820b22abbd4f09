package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/coolpis/internal/apperr"
	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
	"github.com/example/coolpis/internal/utils"
)

var ErrProfileIncomplete = apperr.New(apperr.CodeInvalidArgument, "business name and registration number are required")

// ProfileInput is the editable part of a business profile.
type ProfileInput struct {
	BusinessName       string `json:"businessName"`
	Representative     string `json:"representative"`
	RegistrationNumber string `json:"registrationNumber"`
	BusinessType       string `json:"businessType"`
	BusinessCategory   string `json:"businessCategory"`
	Address            string `json:"address"`
	Phone              string `json:"phone"`
}

// ProfileService manages the one business profile per uid.
type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

func NewProfileService(profiles repository.ProfileRepository, logger *zap.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, logger: logger.Named("profiles")}
}

func (s *ProfileService) Get(ctx context.Context, uid string) (*models.BusinessProfile, error) {
	return s.profiles.Get(ctx, uid)
}

// Save replaces uid's profile. The first registration time is kept.
func (s *ProfileService) Save(ctx context.Context, uid string, in ProfileInput) (*models.BusinessProfile, error) {
	in.BusinessName = strings.TrimSpace(in.BusinessName)
	in.RegistrationNumber = utils.FormatRegistrationNumber(in.RegistrationNumber)
	if in.BusinessName == "" || in.RegistrationNumber == "" {
		return nil, ErrProfileIncomplete
	}

	registeredAt := time.Now()
	existing, err := s.profiles.Get(ctx, uid)
	switch {
	case err == nil:
		registeredAt = existing.RegisteredAt
	case !errors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	profile := &models.BusinessProfile{
		UID:                uid,
		BusinessName:       in.BusinessName,
		Representative:     strings.TrimSpace(in.Representative),
		RegistrationNumber: in.RegistrationNumber,
		BusinessType:       strings.TrimSpace(in.BusinessType),
		BusinessCategory:   strings.TrimSpace(in.BusinessCategory),
		Address:            strings.TrimSpace(in.Address),
		Phone:              strings.TrimSpace(in.Phone),
		RegisteredAt:       registeredAt,
	}
	if err := s.profiles.Save(ctx, profile); err != nil {
		return nil, err
	}
	s.logger.Info("profile saved", zap.String("uid", uid), zap.String("registrationNumber", profile.RegistrationNumber))
	return profile, nil
}

// Lookup finds a profile by registration number in any of its written forms and,
// when it belongs to another uid, copies it onto uid so a returning customer keeps
// their details under the new session.
func (s *ProfileService) Lookup(ctx context.Context, uid, registrationNumber string) (*models.BusinessProfile, error) {
	variants := utils.RegistrationNumberVariants(registrationNumber)
	if len(variants) == 0 {
		return nil, apperr.New(apperr.CodeInvalidArgument, "registration number is required")
	}

	found, err := s.profiles.FindByRegistrationNumber(ctx, variants...)
	if err != nil {
		return nil, err
	}
	if found.UID == uid {
		return found, nil
	}

	linked := *found
	linked.UID = uid
	if err := s.profiles.Save(ctx, &linked); err != nil {
		return nil, err
	}
	s.logger.Info("profile linked", zap.String("uid", uid), zap.String("from", found.UID))
	return &linked, nil
}

func (s *ProfileService) List(ctx context.Context) ([]models.BusinessProfile, error) {
	return s.profiles.List(ctx)
}
