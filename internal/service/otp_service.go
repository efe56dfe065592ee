package service

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/pesio-ai/be-brgy-identity/internal/logger"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
	apperr "github.com/pesio-ai/be-brgy-identity/pkg/errors"
)

const (
	DefaultCodeTTL = 600 * time.Second

	codeLength = 6
	codeMin    = 100000
	codeSpan   = 900000 // codeMin..999999
)

// IssuedCode is the plaintext code handed to the delivery channel.
type IssuedCode struct {
	ID        string
	AccountID string
	Purpose   repository.Purpose
	Code      string
	ExpiresAt time.Time
}

// OTPService issues and verifies single-use numeric codes bound to an
// account and a purpose.
type OTPService struct {
	store  repository.Store
	ttl    time.Duration
	secret []byte
	now    func() time.Time
	log    *logger.Logger
}

// NewOTPService creates an OTP service. A non-positive ttl selects
// DefaultCodeTTL. secret keys the stored digests; when empty a random one is
// generated, so codes do not survive a restart.
func NewOTPService(store repository.Store, ttl time.Duration, secret []byte, log *logger.Logger) *OTPService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(fmt.Sprintf("failed to generate code secret: %v", err))
		}
		log.Warn().Msg("No code secret configured, using an ephemeral one")
	}
	return &OTPService{store: store, ttl: ttl, secret: secret, now: time.Now, log: log}
}

// IssueCode stores a fresh code for (account, purpose) and returns its
// plaintext value. Earlier unused codes stay valid until they expire or a
// newer code for the same purpose is consumed.
func (s *OTPService) IssueCode(ctx context.Context, accountID string, purpose repository.Purpose) (*IssuedCode, error) {
	if !purpose.Valid() {
		return nil, apperr.InvalidInput(fmt.Sprintf("unknown purpose %q", purpose))
	}

	code, err := generateCode()
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeStorageFailure, "failed to generate code")
	}

	now := s.now()
	row := &repository.OneTimeCode{
		AccountID: accountID,
		CodeHash:  s.digest(accountID, purpose, code),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.store.WithTx(ctx, func(r repository.Repos) error {
		if _, err := r.Accounts.GetByID(ctx, accountID); err != nil {
			return err
		}
		return r.Codes.Create(ctx, row)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("account_id", accountID).
		Str("purpose", string(purpose)).
		Str("code", logger.MaskCode(code)).
		Time("expires_at", row.ExpiresAt).
		Msg("Code issued")

	return &IssuedCode{
		ID:        row.ID,
		AccountID: accountID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: row.ExpiresAt,
	}, nil
}

// VerifyCode consumes a matching code. It returns ErrInvalidCode when no
// unused code matches and ErrCodeExpired when the only matches have expired;
// expired codes are not marked used. A successful login code also stamps the
// account's last login.
func (s *OTPService) VerifyCode(ctx context.Context, accountID, submitted string, purpose repository.Purpose) error {
	return s.store.WithTx(ctx, func(r repository.Repos) error {
		return s.verifyCodeTx(ctx, r, accountID, submitted, purpose)
	})
}

func (s *OTPService) verifyCodeTx(ctx context.Context, r repository.Repos, accountID, submitted string, purpose repository.Purpose) error {
	if !purpose.Valid() {
		return apperr.InvalidInput(fmt.Sprintf("unknown purpose %q", purpose))
	}
	if !wellFormedCode(submitted) {
		return apperr.ErrInvalidCode
	}

	candidates, err := r.Codes.FindUnused(ctx, accountID, purpose, s.digest(accountID, purpose, submitted))
	if err != nil {
		return err
	}

	now := s.now()
	expired := false
	for _, c := range candidates {
		if !now.Before(c.ExpiresAt) {
			expired = true
			continue
		}

		flipped, err := r.Codes.MarkUsed(ctx, c.ID, now)
		if err != nil {
			return err
		}
		if !flipped {
			// Consumed by a concurrent verification.
			continue
		}

		if purpose == repository.PurposeLogin {
			if err := r.Accounts.UpdateLastLogin(ctx, accountID, now); err != nil {
				return err
			}
		}

		s.log.Info().Str("account_id", accountID).Str("purpose", string(purpose)).Msg("Code verified")
		return nil
	}

	if expired {
		s.log.Info().Str("account_id", accountID).Str("purpose", string(purpose)).Msg("Expired code presented")
		return apperr.ErrCodeExpired
	}
	return apperr.ErrInvalidCode
}

// generateCode returns a uniformly random value in 100000..999999.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d", n.Int64()+codeMin), nil
}

// digest is an HMAC of the code bound to its account and purpose. Without the
// secret a stored digest cannot be searched for the six-digit code.
func (s *OTPService) digest(accountID string, purpose repository.Purpose, code string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(accountID + ":" + string(purpose) + ":" + code))
	return hex.EncodeToString(mac.Sum(nil))
}

func wellFormedCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
