package schoolauth

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/campuskit/schoolauth/internal/otpguard"
	"github.com/campuskit/schoolauth/jwt"
	"github.com/campuskit/schoolauth/password"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an Engine. Construct with New, chain the With methods,
// call Build once.
type Builder struct {
	config Config

	store     Store
	deliverer OTPDeliverer
	guard     otpguard.Guard
	redis     redis.UniversalClient
	auditSink AuditSink

	built bool
}

// New returns a Builder preloaded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the persistence backend. Required.
func (b *Builder) WithStore(store Store) *Builder {
	b.store = store
	return b
}

// WithOTPDeliverer sets the out-of-band delivery channel for reset codes
// and links. Required when the reset flows are used.
func (b *Builder) WithOTPDeliverer(d OTPDeliverer) *Builder {
	b.deliverer = d
	return b
}

// WithVerifyGuard overrides the OTP submission de-duplication guard.
// Without an override Build picks a Redis guard when a client was given,
// otherwise an in-process one.
func (b *Builder) WithVerifyGuard(g otpguard.Guard) *Builder {
	b.guard = g
	return b
}

// WithRedis supplies a Redis client for the cross-process verify guard.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, parses key material and wires the
// engine. The builder cannot be reused afterwards.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	privatePEM, err := base64.StdEncoding.DecodeString(cfg.JWT.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("jwt private key is not valid base64: %w", err)
	}
	publicPEM, err := base64.StdEncoding.DecodeString(cfg.JWT.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("jwt public key is not valid base64: %w", err)
	}

	jwtManager, err := jwt.NewManager(jwt.Config{
		AccessTTL:    cfg.JWT.AccessTTL,
		RefreshTTL:   cfg.JWT.RefreshTTL,
		PrivateKey:   privatePEM,
		PublicKey:    publicPEM,
		Issuer:       cfg.JWT.Issuer,
		Audience:     cfg.JWT.Audience,
		TempIssuer:   cfg.JWT.TempIssuer,
		TempAudience: cfg.JWT.TempAudience,
		Leeway:       cfg.JWT.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	decoyHash, err := newDecoyHash(hasher)
	if err != nil {
		return nil, err
	}

	guard := b.guard
	if guard == nil {
		if b.redis != nil {
			guard = otpguard.NewRedisGuard(b.redis, cfg.Reset.VerifyCooldown, "")
		} else {
			guard = otpguard.NewMemoryGuard(cfg.Reset.VerifyCooldown, cfg.Reset.GuardMaxEntries)
		}
	}

	e := &Engine{
		config:    cfg,
		store:     b.store,
		deliverer: b.deliverer,
		guard:     guard,
		hasher:    hasher,
		decoyHash: decoyHash,
		jwt:       jwtManager,
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
	}

	b.built = true
	return e, nil
}
