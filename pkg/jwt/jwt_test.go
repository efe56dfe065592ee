package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateKeyPair(t *testing.T) {
	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair() error = %v", err)
	}

	if privateKeyPEM == "" {
		t.Error("GenerateKeyPair() returned empty private key")
	}
	if publicKeyPEM == "" {
		t.Error("GenerateKeyPair() returned empty public key")
	}

	// Verify keys are in PEM format
	if len(privateKeyPEM) < 100 {
		t.Error("Private key seems too short")
	}
	if len(publicKeyPEM) < 100 {
		t.Error("Public key seems too short")
	}
}

func TestNewManager(t *testing.T) {
	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	manager, err := NewManager(privateKeyPEM, publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Errorf("NewManager() error = %v", err)
		return
	}

	if manager == nil {
		t.Error("NewManager() returned nil manager")
	}
	if manager.privateKey == nil {
		t.Error("NewManager() private key is nil")
	}
	if manager.publicKey == nil {
		t.Error("NewManager() public key is nil")
	}
}

func TestNewManagerInvalidKeys(t *testing.T) {
	tests := []struct {
		name          string
		privateKeyPEM string
		publicKeyPEM  string
		wantErr       bool
	}{
		{
			name:          "empty private key",
			privateKeyPEM: "",
			publicKeyPEM:  "valid-key",
			wantErr:       true,
		},
		{
			name:          "empty public key",
			privateKeyPEM: "valid-key",
			publicKeyPEM:  "",
			wantErr:       true,
		},
		{
			name:          "invalid private key",
			privateKeyPEM: "not-a-valid-key",
			publicKeyPEM:  "not-a-valid-key",
			wantErr:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.privateKeyPEM, tt.publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewManager() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

const (
	testAccountID = "6f1c2a44-0d7e-4b8e-9a51-3c2f1e0b9d10"
	testUsername  = "jdelacruz"
	testRole      = "resident"
	testSessionID = "session-789"
)

func TestGenerateTokenPair(t *testing.T) {
	manager := setupTestManager(t)

	tokenPair, err := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	if err != nil {
		t.Fatalf("GenerateTokenPair() error = %v", err)
	}

	if tokenPair.AccessToken == "" {
		t.Error("GenerateTokenPair() returned empty access token")
	}
	if tokenPair.RefreshToken == "" {
		t.Error("GenerateTokenPair() returned empty refresh token")
	}
	if tokenPair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Errorf("GenerateTokenPair() ExpiresIn = %d", tokenPair.ExpiresIn)
	}
	if tokenPair.AccessToken == tokenPair.RefreshToken {
		t.Error("Access and refresh tokens should be different")
	}
}

func TestValidateToken(t *testing.T) {
	manager := setupTestManager(t)

	tokenPair, err := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	tests := []struct {
		name      string
		token     string
		tokenType string
	}{
		{name: "access token", token: tokenPair.AccessToken, tokenType: TokenTypeAccess},
		{name: "refresh token", token: tokenPair.RefreshToken, tokenType: TokenTypeRefresh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := manager.ValidateToken(tt.token)
			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.AccountID != testAccountID {
				t.Errorf("AccountID = %v, want %v", claims.AccountID, testAccountID)
			}
			if claims.Subject != testAccountID {
				t.Errorf("Subject = %v, want %v", claims.Subject, testAccountID)
			}
			if claims.Username != testUsername {
				t.Errorf("Username = %v, want %v", claims.Username, testUsername)
			}
			if claims.Role != testRole {
				t.Errorf("Role = %v, want %v", claims.Role, testRole)
			}
			if claims.SessionID != testSessionID {
				t.Errorf("SessionID = %v, want %v", claims.SessionID, testSessionID)
			}
			if claims.TokenType != tt.tokenType {
				t.Errorf("TokenType = %v, want %v", claims.TokenType, tt.tokenType)
			}
		})
	}
}

func TestValidateInvalidToken(t *testing.T) {
	manager := setupTestManager(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "malformed token", token: "not.a.valid.token"},
		{name: "random string", token: "random-string-not-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manager.ValidateToken(tt.token)
			if !errors.Is(err, ErrInvalidToken) {
				t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestValidateTokenFromOtherKey(t *testing.T) {
	issuer := setupTestManager(t)
	verifier := setupTestManager(t)

	tokenPair, err := issuer.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	if _, err := verifier.ValidateToken(tokenPair.AccessToken); err == nil {
		t.Error("ValidateToken() accepted a token signed with a different key")
	}
}

func TestValidateExpiredToken(t *testing.T) {
	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}
	// Negative durations produce tokens that are already expired.
	manager, err := NewManager(privateKeyPEM, publicKeyPEM, -time.Minute, -time.Minute)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	tokenPair, err := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	_, err = manager.ValidateToken(tokenPair.AccessToken)
	if err != ErrTokenExpired {
		t.Errorf("ValidateToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestTokensUniqueness(t *testing.T) {
	manager := setupTestManager(t)

	tokenPair1, _ := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	tokenPair2, _ := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)

	// JTI differs per token
	if tokenPair1.AccessToken == tokenPair2.AccessToken {
		t.Error("Generated identical access tokens (should be unique)")
	}
	if tokenPair1.RefreshToken == tokenPair2.RefreshToken {
		t.Error("Generated identical refresh tokens (should be unique)")
	}
}

func TestTokenClaimsComplete(t *testing.T) {
	manager := setupTestManager(t)

	tokenPair, err := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	claims, err := manager.ValidateToken(tokenPair.AccessToken)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}

	if claims.ID == "" {
		t.Error("Claims.ID (JTI) is empty")
	}
	if claims.Issuer != defaultIssuer {
		t.Errorf("Claims.Issuer = %v, want %v", claims.Issuer, defaultIssuer)
	}
	if claims.IssuedAt == nil {
		t.Error("Claims.IssuedAt is nil")
	}
	if claims.ExpiresAt == nil {
		t.Error("Claims.ExpiresAt is nil")
	}
	if claims.NotBefore == nil {
		t.Error("Claims.NotBefore is nil")
	}
}

func BenchmarkGenerateTokenPair(b *testing.B) {
	manager := setupTestManager(&testing.T{})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	manager := setupTestManager(&testing.T{})
	tokenPair, _ := manager.GenerateTokenPair(testAccountID, testUsername, testRole, testSessionID)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = manager.ValidateToken(tokenPair.AccessToken)
	}
}

// Helper function to set up test manager
func setupTestManager(t *testing.T) *Manager {
	privateKeyPEM, publicKeyPEM, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("Failed to generate key pair: %v", err)
	}

	manager, err := NewManager(privateKeyPEM, publicKeyPEM, 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("Failed to create manager: %v", err)
	}

	return manager
}
