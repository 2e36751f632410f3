// Package auth verifies bearer tokens and carries the resolved identity
// through request contexts.
//
// Token issuance, password flows, and account provisioning belong to the
// external identity provider; this package only verifies HS256 JWTs and
// trusts their claims. Handlers retrieve the identity with FromContext.
package auth
