// Package auth resolves request credentials to stable external identities.
// Two resolvers are provided: an HS256 session token verifier and an OpenID
// Connect verifier. Resolved identities are synced into the local users table
// with an idempotent upsert.
package auth
