package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/session"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
)

// Defaults applied to an admin identity when the backend leaves them out.
const (
	DefaultAdminUserName = "Administrator"
	DefaultAdminDeptCode = "ADMIN"
)

// ErrMissingAdminToken is returned when the admin login succeeds without a
// token. The session is not written.
var ErrMissingAdminToken = errors.New("admin login response did not include a token")

// API is the part of the backend client the login flow calls.
type API interface {
	Login(ctx context.Context, userID string) (*backend.LoginResponse, error)
	AdminLogin(ctx context.Context, userID, password string) (*backend.AdminLoginResponse, error)
}

// SessionWriter persists a signed-in identity.
type SessionWriter interface {
	Set(ctx context.Context, id session.Identity) error
}

// LoginRequest is the first-step form.
type LoginRequest struct {
	UserID string `form:"userId" label:"User ID" validate:"notblank"`
}

// PasswordRequest is the second-step form.
type PasswordRequest struct {
	Seal     string `form:"challenge"`
	Password string `form:"password" label:"Password" validate:"notblank"`
}

// Flow drives the two-step login.
type Flow struct {
	api       API
	sealer    *ChallengeSealer
	validator *validate.Validator
	logger    zerolog.Logger
}

func NewFlow(api API, sealer *ChallengeSealer, v *validate.Validator, logger zerolog.Logger) *Flow {
	return &Flow{api: api, sealer: sealer, validator: v, logger: logger}
}

// Login submits the user id. A general user is written to the session; an
// administrator gets a challenge and nothing is written.
func (f *Flow) Login(ctx context.Context, sess SessionWriter, userID string) Outcome {
	if err := f.validator.Validate(&LoginRequest{UserID: userID}); err != nil {
		return Failed{Err: err}
	}

	resp, err := f.api.Login(ctx, userID)
	if err != nil {
		return Failed{Err: err}
	}

	if resp.RequirePassword {
		// The password step authenticates the id as typed.
		seal, err := f.sealer.Seal(userID, bool(resp.IsAdmin))
		if err != nil {
			return Failed{Err: err}
		}
		f.logger.Info().Str("user_id", userID).Msg("admin challenge issued")
		return AdminChallenge{UserID: userID, IsAdmin: bool(resp.IsAdmin), Seal: seal}
	}

	if resp.Token == "" || resp.User == nil {
		return Failed{Err: backend.ErrUnexpectedResponse}
	}

	id := session.Identity{
		UserID:   resp.User.UserID,
		UserName: resp.User.UserName,
		Token:    resp.Token,
		DeptCode: resp.User.DeptCode,
		IsAdmin:  false,
	}
	if id.UserID == "" {
		id.UserID = userID
	}
	if err := sess.Set(ctx, id); err != nil {
		return Failed{Err: fmt.Errorf("save session: %w", err)}
	}
	f.logger.Info().Str("user_id", id.UserID).Msg("user signed in")
	return GeneralSuccess{Identity: id}
}

// SubmitPassword completes an admin challenge. It is only reachable with a
// seal issued by Login.
func (f *Flow) SubmitPassword(ctx context.Context, sess SessionWriter, seal, password string) Outcome {
	if err := f.validator.Validate(&PasswordRequest{Seal: seal, Password: password}); err != nil {
		return Failed{Err: err}
	}

	ch, err := f.sealer.Open(seal)
	if err != nil {
		return Failed{Err: err}
	}

	resp, err := f.api.AdminLogin(ctx, ch.UserID, password)
	if err != nil {
		return Failed{Err: err}
	}
	if resp.Token == "" {
		f.logger.Warn().Str("user_id", ch.UserID).Msg("admin login returned no token")
		return Failed{Err: ErrMissingAdminToken}
	}

	id := session.Identity{
		UserID:   resp.UserID,
		UserName: DefaultAdminUserName,
		Token:    resp.Token,
		DeptCode: DefaultAdminDeptCode,
		IsAdmin:  true,
	}
	if id.UserID == "" {
		id.UserID = ch.UserID
	}
	if resp.User != nil {
		if resp.User.UserName != "" {
			id.UserName = resp.User.UserName
		}
		if resp.User.DeptCode != "" {
			id.DeptCode = resp.User.DeptCode
		}
	}
	if err := sess.Set(ctx, id); err != nil {
		return Failed{Err: fmt.Errorf("save session: %w", err)}
	}
	f.logger.Info().Str("user_id", id.UserID).Msg("administrator signed in")
	return GeneralSuccess{Identity: id}
}

// Challenge reopens a seal so a failed password step can be re-rendered.
func (f *Flow) Challenge(seal string) (AdminChallenge, error) {
	return f.sealer.Open(seal)
}
