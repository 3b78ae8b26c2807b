package admin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
)

var (
	// ErrUnknownField is returned for an update slug that is not a setting.
	ErrUnknownField = errors.New("unknown setting")
	// ErrUpdateInProgress is returned while the same field is still being
	// updated for the same session.
	ErrUpdateInProgress = errors.New("an update of this setting is already in progress")
)

// API is the part of the backend client the admin view calls.
type API interface {
	AdminSettings(ctx context.Context, cred backend.Credentials) (*backend.AdminSettings, error)
	UpdateSetting(ctx context.Context, cred backend.Credentials, field backend.SettingField, value string) error
	TestPatient(ctx context.Context, cred backend.Credentials, req backend.TestPatientRequest) (json.RawMessage, error)
}

type Service struct {
	api       API
	validator *validate.Validator
	logger    zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewService(api API, v *validate.Validator, logger zerolog.Logger) *Service {
	return &Service{api: api, validator: v, logger: logger, inFlight: make(map[string]struct{})}
}

func (s *Service) Settings(ctx context.Context, cred backend.Credentials) (*backend.AdminSettings, error) {
	return s.api.AdminSettings(ctx, cred)
}

// UpdateField posts one setting and re-fetches the full settings. owner scopes
// the in-flight guard, normally the session id.
func (s *Service) UpdateField(ctx context.Context, cred backend.Credentials, owner, slug, value string) (*UpdateResult, error) {
	field, ok := backend.LookupSettingField(slug)
	if !ok {
		return nil, ErrUnknownField
	}
	if err := s.validator.Validate(&UpdateForm{Value: value}); err != nil {
		return nil, err
	}

	release, ok := s.acquire(owner + "|" + field.Key)
	if !ok {
		return nil, ErrUpdateInProgress
	}
	defer release()

	if err := s.api.UpdateSetting(ctx, cred, field, value); err != nil {
		s.logger.Warn().Err(err).Str("field", field.Key).Msg("setting update failed")
		return nil, err
	}
	s.logger.Info().Str("field", field.Key).Msg("setting updated")

	res := &UpdateResult{Field: field}
	res.Settings, res.ReloadErr = s.api.AdminSettings(ctx, cred)
	return res, nil
}

// TestPatient validates the resident number and forwards it unchanged.
func (s *Service) TestPatient(ctx context.Context, cred backend.Credentials, userID, residentNumber string) (json.RawMessage, error) {
	if err := s.validator.Validate(&TestForm{ResidentNumber: residentNumber}); err != nil {
		return nil, err
	}
	return s.api.TestPatient(ctx, cred, backend.TestPatientRequest{ResidentNumber: residentNumber, UserID: userID})
}

func (s *Service) acquire(key string) (func(), bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[key]; busy {
		return nil, false
	}
	s.inFlight[key] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, key)
		s.mu.Unlock()
	}, true
}
