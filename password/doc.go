// Package password wraps argon2id hashing behind the PHC string format.
// Stored hashes carry their own parameters, so work factors can be raised
// without invalidating existing credentials.
package password
