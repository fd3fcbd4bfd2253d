package schoolauth

import (
	"context"

	"go.uber.org/zap"
)

// DevDeliverer is an OTPDeliverer for development and tests: it logs the
// plaintext secret instead of sending it anywhere. Never wire it into a
// real deployment.
type DevDeliverer struct {
	logger *zap.Logger
}

// NewDevDeliverer wraps logger into a delivery channel. A nil logger uses
// zap.NewNop.
func NewDevDeliverer(logger *zap.Logger) *DevDeliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DevDeliverer{logger: logger}
}

func (d *DevDeliverer) DeliverOTP(_ context.Context, user *User, identifier, code string) error {
	d.logger.Info("reset code issued",
		zap.String("user_id", user.ID),
		zap.String("identifier", identifier),
		zap.String("code", code),
	)
	return nil
}

func (d *DevDeliverer) DeliverResetLink(_ context.Context, user *User, identifier, token string) error {
	d.logger.Info("reset link issued",
		zap.String("user_id", user.ID),
		zap.String("identifier", identifier),
		zap.String("token", token),
	)
	return nil
}
