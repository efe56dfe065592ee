package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/notify"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
	jwtpkg "github.com/pesio-ai/be-brgy-identity/pkg/jwt"
)

const DefaultSessionDuration = 7 * 24 * time.Hour

// IssueLimiter throttles code issuance per key.
type IssueLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// AttemptGuard locks a key out after repeated failed code verifications.
type AttemptGuard interface {
	IsLocked(ctx context.Context, key string) (bool, error)
	RecordAttempt(ctx context.Context, key string, success bool) error
}

var errTooManyAttempts = apperr.New(apperr.ErrCodeRateLimited, "too many failed verification attempts; try again later")

type AuthConfig struct {
	SessionDuration time.Duration
	// ExposeCode returns the plaintext code to the caller for on-screen
	// delivery instead of relying on the notifier alone.
	ExposeCode bool
}

// AuthService orchestrates the two-step login (password then code), password
// recovery and session tokens.
type AuthService struct {
	store      repository.Store
	accounts   *AccountService
	otp        *OTPService
	jwtManager *jwtpkg.Manager
	limiter    IssueLimiter
	guard      AttemptGuard
	notifier   notify.Notifier
	cfg        AuthConfig
	now        func() time.Time
	log        *logger.Logger
}

func NewAuthService(
	store repository.Store,
	accounts *AccountService,
	otp *OTPService,
	jwtManager *jwtpkg.Manager,
	limiter IssueLimiter,
	guard AttemptGuard,
	notifier notify.Notifier,
	cfg AuthConfig,
	log *logger.Logger,
) *AuthService {
	if cfg.SessionDuration <= 0 {
		cfg.SessionDuration = DefaultSessionDuration
	}
	return &AuthService{
		store:      store,
		accounts:   accounts,
		otp:        otp,
		jwtManager: jwtManager,
		limiter:    limiter,
		guard:      guard,
		notifier:   notifier,
		cfg:        cfg,
		now:        time.Now,
		log:        log,
	}
}

// Challenge describes an issued code. Code is empty unless AuthConfig.ExposeCode
// is set.
type Challenge struct {
	AccountID string
	Purpose   repository.Purpose
	ExpiresAt time.Time
	Code      string
}

type LoginRequest struct {
	Username string
	Password string
}

// StartLogin checks the password and issues a login code.
func (s *AuthService) StartLogin(ctx context.Context, req *LoginRequest) (*Challenge, error) {
	s.log.Info().Str("username", req.Username).Msg("Login attempt")

	account, err := s.store.Repos().Accounts.GetByUsername(ctx, req.Username)
	if apperr.Is(err, apperr.ErrAccountNotFound) {
		s.log.Warn().Str("username", req.Username).Msg("Unknown username")
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	valid, err := s.accounts.VerifyPassword(ctx, account, req.Password)
	if err != nil {
		return nil, err
	}
	if !valid {
		s.log.Warn().Str("account_id", account.ID).Msg("Invalid password")
		return nil, apperr.ErrInvalidCredentials
	}

	if err := requireActive(account); err != nil {
		s.log.Warn().Str("account_id", account.ID).Str("status", string(account.Status)).Msg("Login refused for inactive account")
		return nil, err
	}

	return s.issue(ctx, account, repository.PurposeLogin)
}

type VerifyLoginRequest struct {
	Username   string
	Code       string
	DeviceName string
	IPAddress  string
}

type LoginResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	Account      *repository.Account
	Session      *repository.Session
}

// CompleteLogin verifies the login code and opens a session. Consuming the
// code, stamping last login, creating the session and the audit entry commit
// together.
func (s *AuthService) CompleteLogin(ctx context.Context, req *VerifyLoginRequest) (*LoginResponse, error) {
	account, err := s.store.Repos().Accounts.GetByUsername(ctx, req.Username)
	if apperr.Is(err, apperr.ErrAccountNotFound) {
		return nil, apperr.ErrInvalidCode
	}
	if err != nil {
		return nil, err
	}
	if err := requireActive(account); err != nil {
		return nil, err
	}
	if err := s.checkLocked(ctx, account.ID, repository.PurposeLogin); err != nil {
		return nil, err
	}

	now := s.now()
	refreshExpiresAt := now.Add(s.jwtManager.RefreshTokenDuration())
	session := &repository.Session{
		ID:                    uuid.New().String(),
		AccountID:             account.ID,
		DeviceName:            optional(req.DeviceName),
		IPAddress:             optional(req.IPAddress),
		CreatedAt:             now,
		ExpiresAt:             now.Add(s.cfg.SessionDuration),
		IsActive:              true,
		RefreshTokenExpiresAt: &refreshExpiresAt,
	}

	tokens, err := s.jwtManager.GenerateTokenPair(account.ID, account.Username, string(account.Role), session.ID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "token generation failed")
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := s.otp.verifyCodeTx(ctx, r, account.ID, req.Code, repository.PurposeLogin); err != nil {
			return err
		}
		if err := r.Sessions.Create(ctx, session, tokens.RefreshToken); err != nil {
			return err
		}
		return appendAudit(ctx, r, &account.ID, repository.ActionLogin, "login verified by one-time code", now)
	})
	s.recordAttempt(ctx, account.ID, repository.PurposeLogin, err)
	if err != nil {
		s.log.Warn().Err(err).Str("account_id", account.ID).Msg("Login verification failed")
		return nil, err
	}

	account.LastLoginAt = &now
	s.log.Info().
		Str("account_id", account.ID).
		Str("session_id", session.ID).
		Msg("Login successful")

	return &LoginResponse{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresIn:    tokens.ExpiresIn,
		Account:      account,
		Session:      session,
	}, nil
}

// ValidateToken validates an access token and its session.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (*jwtpkg.Claims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnauthorized, "invalid token")
	}
	if claims.TokenType != jwtpkg.TokenTypeAccess {
		return nil, apperr.New(apperr.ErrCodeUnauthorized, "not an access token")
	}

	sessions := s.store.Repos().Sessions
	session, err := sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnauthorized, "session not found")
	}
	if !session.IsActive || !s.now().Before(session.ExpiresAt) {
		return nil, apperr.New(apperr.ErrCodeUnauthorized, "session is no longer active")
	}

	_ = sessions.UpdateLastActivity(ctx, claims.SessionID)
	return claims, nil
}

// RefreshToken exchanges a refresh token for a new pair. The old refresh
// token stops working.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*jwtpkg.TokenPair, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeUnauthorized, "invalid token")
	}
	if claims.TokenType != jwtpkg.TokenTypeRefresh {
		return nil, apperr.New(apperr.ErrCodeUnauthorized, "not a refresh token")
	}

	var tokens *jwtpkg.TokenPair
	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		valid, err := r.Sessions.ValidateRefreshToken(ctx, claims.SessionID, refreshToken)
		if err != nil {
			return err
		}
		if !valid {
			return apperr.New(apperr.ErrCodeUnauthorized, "refresh token revoked or expired")
		}

		account, err := r.Accounts.GetByID(ctx, claims.AccountID)
		if err != nil {
			return err
		}
		if err := requireActive(account); err != nil {
			return err
		}

		tokens, err = s.jwtManager.GenerateTokenPair(account.ID, account.Username, string(account.Role), claims.SessionID)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeStorageFailure, "token generation failed")
		}
		return r.Sessions.UpdateRefreshToken(ctx, claims.SessionID, tokens.RefreshToken,
			s.now().Add(s.jwtManager.RefreshTokenDuration()))
	})
	if err != nil {
		return nil, err
	}

	return tokens, nil
}

// Logout deactivates a session
func (s *AuthService) Logout(ctx context.Context, accountID, sessionID string) error {
	err := s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Sessions.Deactivate(ctx, sessionID); err != nil {
			return err
		}
		return appendAudit(ctx, r, &accountID, repository.ActionLogout, "session "+sessionID+" closed", s.now())
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("session_id", sessionID).Msg("Logout successful")
	return nil
}

// RequestPasswordReset issues a password_reset code. Unknown usernames and
// deactivated accounts get the same challenge shape without a code being
// issued, so the response does not reveal which accounts exist.
func (s *AuthService) RequestPasswordReset(ctx context.Context, username string) (*Challenge, error) {
	account, err := s.store.Repos().Accounts.GetByUsername(ctx, username)
	if apperr.Is(err, apperr.ErrAccountNotFound) {
		s.log.Info().Str("username", username).Msg("Password reset requested for unknown username")
		return s.blankChallenge(repository.PurposePasswordReset), nil
	}
	if err != nil {
		return nil, err
	}
	if account.Status == repository.StatusDeactivated {
		s.log.Info().Str("account_id", account.ID).Msg("Password reset requested for deactivated account")
		return s.blankChallenge(repository.PurposePasswordReset), nil
	}

	return s.issue(ctx, account, repository.PurposePasswordReset)
}

type ResetPasswordRequest struct {
	Username    string
	Code        string
	NewPassword string
}

// ResetPassword consumes a password_reset code and replaces the password.
// Every open session of the account is closed.
func (s *AuthService) ResetPassword(ctx context.Context, req *ResetPasswordRequest) error {
	account, err := s.store.Repos().Accounts.GetByUsername(ctx, req.Username)
	if apperr.Is(err, apperr.ErrAccountNotFound) {
		return apperr.ErrInvalidCode
	}
	if err != nil {
		return err
	}
	if account.Status == repository.StatusDeactivated {
		return apperr.ErrInvalidCode
	}
	if err := s.checkLocked(ctx, account.ID, repository.PurposePasswordReset); err != nil {
		return err
	}

	hash, err := s.accounts.hashPassword(req.NewPassword)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := s.otp.verifyCodeTx(ctx, r, account.ID, req.Code, repository.PurposePasswordReset); err != nil {
			return err
		}
		if err := r.Accounts.UpdatePassword(ctx, account.ID, hash); err != nil {
			return err
		}
		if err := r.Sessions.DeactivateAccountSessions(ctx, account.ID); err != nil {
			return err
		}
		return appendAudit(ctx, r, &account.ID, repository.ActionPasswordReset, "password reset by one-time code", s.now())
	})
	s.recordAttempt(ctx, account.ID, repository.PurposePasswordReset, err)
	if err != nil {
		return err
	}

	s.log.Info().Str("account_id", account.ID).Msg("Password reset")
	return nil
}

// ChangePassword changes the password of a signed-in account and forces
// re-login everywhere.
func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.store.Repos().Accounts.GetByID(ctx, accountID)
	if err != nil {
		return err
	}

	valid, err := s.accounts.VerifyPassword(ctx, account, currentPassword)
	if err != nil {
		return err
	}
	if !valid {
		return apperr.ErrInvalidCredentials
	}

	hash, err := s.accounts.hashPassword(newPassword)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if err := r.Accounts.UpdatePassword(ctx, accountID, hash); err != nil {
			return err
		}
		if err := r.Sessions.DeactivateAccountSessions(ctx, accountID); err != nil {
			return err
		}
		return appendAudit(ctx, r, &accountID, repository.ActionPasswordChanged, "password changed by account holder", s.now())
	})
	if err != nil {
		return err
	}

	s.log.Info().Str("account_id", accountID).Msg("Password changed successfully")
	return nil
}

func (s *AuthService) issue(ctx context.Context, account *repository.Account, purpose repository.Purpose) (*Challenge, error) {
	if s.limiter != nil {
		ok, err := s.limiter.Allow(ctx, account.ID+":"+string(purpose))
		if err != nil {
			s.log.Warn().Err(err).Msg("Issue limiter unavailable, allowing request")
		} else if !ok {
			return nil, apperr.ErrRateLimited
		}
	}

	issued, err := s.otp.IssueCode(ctx, account.ID, purpose)
	if err != nil {
		return nil, err
	}

	if s.notifier != nil {
		err := s.notifier.CodeIssued(ctx, notify.CodeIssued{
			AccountID: account.ID,
			Username:  account.Username,
			Purpose:   string(purpose),
			Code:      issued.Code,
			ExpiresAt: issued.ExpiresAt,
			IssuedAt:  s.now(),
		})
		if err != nil {
			if !s.cfg.ExposeCode {
				return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to deliver verification code")
			}
			s.log.Warn().Err(err).Str("account_id", account.ID).Msg("Code delivery failed, falling back to on-screen code")
		}
	}

	challenge := &Challenge{AccountID: account.ID, Purpose: purpose, ExpiresAt: issued.ExpiresAt}
	if s.cfg.ExposeCode {
		challenge.Code = issued.Code
	}
	return challenge, nil
}

func (s *AuthService) blankChallenge(purpose repository.Purpose) *Challenge {
	return &Challenge{Purpose: purpose, ExpiresAt: s.now().Add(s.otp.ttl)}
}

func (s *AuthService) checkLocked(ctx context.Context, accountID string, purpose repository.Purpose) error {
	if s.guard == nil {
		return nil
	}
	locked, err := s.guard.IsLocked(ctx, accountID+":"+string(purpose))
	if err != nil {
		s.log.Warn().Err(err).Msg("Attempt guard unavailable, allowing verification")
		return nil
	}
	if locked {
		s.log.Warn().Str("account_id", accountID).Str("purpose", string(purpose)).Msg("Verification locked out")
		return errTooManyAttempts
	}
	return nil
}

// recordAttempt counts wrong and expired codes against the account. Other
// failures say nothing about the presented code.
func (s *AuthService) recordAttempt(ctx context.Context, accountID string, purpose repository.Purpose, verifyErr error) {
	if s.guard == nil {
		return
	}
	var err error
	switch {
	case verifyErr == nil:
		err = s.guard.RecordAttempt(ctx, accountID+":"+string(purpose), true)
	case apperr.Is(verifyErr, apperr.ErrInvalidCode), apperr.Is(verifyErr, apperr.ErrCodeExpired):
		err = s.guard.RecordAttempt(ctx, accountID+":"+string(purpose), false)
	default:
		return
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to record verification attempt")
	}
}

func requireActive(account *repository.Account) error {
	switch account.Status {
	case repository.StatusActive:
		return nil
	case repository.StatusPending:
		return apperr.New(apperr.ErrCodeAccountInactive, "account is pending in-person verification")
	default:
		return apperr.ErrAccountInactive
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
