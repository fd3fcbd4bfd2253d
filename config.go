package schoolauth

import (
	"errors"
	"net/http"
	"time"
)

// Config is the full configuration surface of the engine. A Config is
// consumed at Build time; mutating it afterwards has no effect.
type Config struct {
	JWT      JWTConfig
	Password PasswordConfig
	Reset    ResetConfig
	Cookies  CookieConfig
	Audit    AuditConfig
}

// JWTConfig configures the token codec. Keys are base64-encoded PEM blocks
// (RSA PKCS#1 or PKCS#8 private, PKIX public), decoded and parsed once at
// Build and cached for the process lifetime.
type JWTConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	PrivateKey string
	PublicKey  string

	Issuer   string
	Audience string

	// Temp-purpose tokens carry their own issuer/audience so they can never
	// be replayed where an access or refresh token is expected.
	TempIssuer   string
	TempAudience string

	Leeway time.Duration
}

// PasswordConfig holds the argon2id work factors. Memory is in KB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// ResetConfig configures the forced-change and password-reset flows.
type ResetConfig struct {
	OTPDigits      int
	OTPTTL         time.Duration
	OTPMaxAttempts int

	// ChangeTokenTTL bounds the temp token issued at a forced-change login.
	ChangeTokenTTL time.Duration
	// ResetTokenTTL bounds both the post-OTP temp token and the link token.
	ResetTokenTTL time.Duration

	// VerifyCooldown is the de-duplication window applied to OTP
	// verification submissions. Best-effort, never a security boundary.
	VerifyCooldown  time.Duration
	GuardMaxEntries int
}

// CookieConfig describes how the HTTP layer should place tokens in cookies.
// The engine never touches HTTP itself; this block exists so the transport
// contract lives next to the TTLs it must agree with.
type CookieConfig struct {
	Domain      string
	Secure      bool
	SameSite    http.SameSite
	AccessPath  string
	RefreshPath string
}

// AuditConfig configures the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// DefaultConfig returns the configuration the engine ships with. Key
// material is intentionally absent and must be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:    15 * time.Minute,
			RefreshTTL:   7 * 24 * time.Hour,
			Issuer:       "schoolauth",
			Audience:     "schoolauth",
			TempIssuer:   "schoolauth/temp",
			TempAudience: "schoolauth/temp",
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Reset: ResetConfig{
			OTPDigits:       6,
			OTPTTL:          10 * time.Minute,
			OTPMaxAttempts:  5,
			ChangeTokenTTL:  30 * time.Minute,
			ResetTokenTTL:   15 * time.Minute,
			VerifyCooldown:  2 * time.Second,
			GuardMaxEntries: 4096,
		},
		Cookies: CookieConfig{
			Secure:      true,
			SameSite:    http.SameSiteLaxMode,
			AccessPath:  "/api",
			RefreshPath: "/api/auth",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
	}
}

// Validate checks the invariants the engine depends on. It is called by
// Build; callers constructing configs from the environment should call it
// earlier to fail at startup.
func (c *Config) Validate() error {
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt access TTL must be positive")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("jwt refresh TTL must be strictly greater than access TTL")
	}
	if c.JWT.PrivateKey == "" || c.JWT.PublicKey == "" {
		return errors.New("jwt key pair is required")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > 2*time.Minute {
		return errors.New("jwt leeway out of range")
	}
	if c.JWT.Issuer == c.JWT.TempIssuer && c.JWT.Audience == c.JWT.TempAudience {
		return errors.New("temp token issuer/audience must differ from the session token pair")
	}
	if c.Reset.OTPDigits < 4 || c.Reset.OTPDigits > 10 {
		return errors.New("otp digits out of range")
	}
	if c.Reset.OTPTTL <= 0 {
		return errors.New("otp TTL must be positive")
	}
	if c.Reset.OTPMaxAttempts < 1 {
		return errors.New("otp max attempts must be at least 1")
	}
	if c.Reset.ChangeTokenTTL <= 0 || c.Reset.ChangeTokenTTL > 30*time.Minute {
		return errors.New("change token TTL must be positive and at most 30 minutes")
	}
	if c.Reset.ResetTokenTTL <= 0 || c.Reset.ResetTokenTTL > 30*time.Minute {
		return errors.New("reset token TTL must be positive and at most 30 minutes")
	}
	if c.Reset.VerifyCooldown < 0 {
		return errors.New("verify cooldown must not be negative")
	}
	return nil
}
