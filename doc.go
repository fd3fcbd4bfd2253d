// Package schoolauth is the authentication and session-lifecycle core for
// a school management platform. It is an embeddable engine, not a service:
// the host application owns users, persistence and transport, and hands
// the engine a Store implementation plus an out-of-band delivery channel
// for reset secrets.
//
// The engine covers five concerns:
//
//   - email/password login with uniform rejection of every failure cause
//   - access/refresh token pairs with compare-and-set refresh rotation
//   - logout and bulk session revocation
//   - the mandatory first-login password change
//   - self-service password reset, both OTP and link based, with role
//     policy keeping students and parents out of the flow
//
// Build an Engine through the Builder:
//
//	engine, err := schoolauth.New().
//		WithConfig(cfg).
//		WithStore(store).
//		WithOTPDeliverer(deliverer).
//		WithAuditSink(schoolauth.NewZapSink(logger)).
//		Build()
//
// Attach the caller's network identity with WithClientIP and WithUserAgent
// before invoking flow methods; it ends up on sessions, reset tokens and
// audit events.
package schoolauth
