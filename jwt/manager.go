package jwt

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the value of the typ claim.
type TokenType string

const (
	// TypeAccess marks a short-lived API token.
	TypeAccess TokenType = "access"
	// TypeRefresh marks a session-lineage rotation token.
	TypeRefresh TokenType = "refresh"
	// TypeTemp marks a single-purpose token outside any session.
	TypeTemp TokenType = "temp"
)

// Purpose is the value of the pur claim on temp tokens.
type Purpose string

const (
	// PurposePasswordChange gates the mandatory first-login password change.
	PurposePasswordChange Purpose = "password_change"
	// PurposePasswordReset gates the post-OTP password reset.
	PurposePasswordReset Purpose = "password_reset"
)

// Config configures the codec. Keys are PEM blocks: PKCS#1 or PKCS#8 for
// the private key, PKIX or PKCS#1 for the public key.
type Config struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	PrivateKey []byte
	PublicKey  []byte

	Issuer   string
	Audience string

	TempIssuer   string
	TempAudience string

	Leeway time.Duration
}

// Manager signs and verifies tokens. Keys are parsed once at construction;
// a Manager is immutable and safe for concurrent use.
type Manager struct {
	cfg        Config
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
}

// Claims is the claim set shared by all three token types. SID is empty on
// temp tokens, Purpose is empty on session tokens.
type Claims struct {
	UserID    string    `json:"uid"`
	SessionID string    `json:"sid,omitempty"`
	TokenType TokenType `json:"typ"`
	Purpose   Purpose   `json:"pur,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates cfg, parses the key pair and returns a ready codec.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Issuer == "" || cfg.TempIssuer == "" {
		return nil, errors.New("issuer configuration is required")
	}
	if cfg.Issuer == cfg.TempIssuer && cfg.Audience == cfg.TempAudience {
		return nil, errors.New("temp tokens must use a distinct issuer or audience")
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("invalid rsa private key: %w", err)
	}
	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(cfg.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("invalid rsa public key: %w", err)
	}
	if !privateKey.PublicKey.Equal(publicKey) {
		return nil, errors.New("rsa key pair mismatch")
	}

	return &Manager{
		cfg:        cfg,
		privateKey: privateKey,
		publicKey:  publicKey,
	}, nil
}

// SignAccess issues an access token bound to the session.
func (m *Manager) SignAccess(userID, sessionID string) (string, error) {
	return m.sign(Claims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TypeAccess,
	}, m.cfg.AccessTTL, m.cfg.Issuer, m.cfg.Audience)
}

// SignRefresh issues a refresh token bound to the session. Each rotation
// produces a new one; the engine tracks the hash of the latest.
func (m *Manager) SignRefresh(userID, sessionID string) (string, error) {
	return m.sign(Claims{
		UserID:    userID,
		SessionID: sessionID,
		TokenType: TypeRefresh,
	}, m.cfg.RefreshTTL, m.cfg.Issuer, m.cfg.Audience)
}

// SignTemp issues a sessionless token for one purpose with an explicit TTL.
func (m *Manager) SignTemp(userID string, purpose Purpose, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("temp token TTL must be positive")
	}
	return m.sign(Claims{
		UserID:    userID,
		TokenType: TypeTemp,
		Purpose:   purpose,
	}, ttl, m.cfg.TempIssuer, m.cfg.TempAudience)
}

func (m *Manager) sign(claims Claims, ttl time.Duration, issuer, audience string) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(m.privateKey)
}

// VerifyAccess parses and validates an access token.
func (m *Manager) VerifyAccess(token string) (*Claims, error) {
	return m.verify(token, TypeAccess, m.cfg.Issuer, m.cfg.Audience)
}

// VerifyRefresh parses and validates a refresh token.
func (m *Manager) VerifyRefresh(token string) (*Claims, error) {
	return m.verify(token, TypeRefresh, m.cfg.Issuer, m.cfg.Audience)
}

// VerifyTemp parses and validates a temp token and checks that it was
// issued for the given purpose.
func (m *Manager) VerifyTemp(token string, purpose Purpose) (*Claims, error) {
	claims, err := m.verify(token, TypeTemp, m.cfg.TempIssuer, m.cfg.TempAudience)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != purpose {
		return nil, errors.New("token purpose mismatch")
	}
	return claims, nil
}

func (m *Manager) verify(tokenStr string, want TokenType, issuer, audience string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuedAt(),
		jwt.WithIssuer(issuer),
	}
	if m.cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.cfg.Leeway))
	}
	if audience != "" {
		options = append(options, jwt.WithAudience(audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.publicKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.TokenType != want {
		return nil, errors.New("token type mismatch")
	}
	if claims.UserID == "" {
		return nil, errors.New("token missing user binding")
	}
	if want != TypeTemp && claims.SessionID == "" {
		return nil, errors.New("token missing session binding")
	}

	return claims, nil
}
