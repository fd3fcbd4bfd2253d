// Package jwt implements the RS256 token codec used by the engine.
//
// Three token types share one key pair, separated by the typ claim and by
// issuer/audience: access and refresh tokens carry the session lineage,
// temp tokens gate a single pending operation (forced password change or
// post-OTP reset) and name that operation in the pur claim. A token of one
// type never verifies as another.
package jwt
