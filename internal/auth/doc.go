// Package auth authenticates principals and resolves their permissions for
// the tenant gateway.
//
// It covers:
//   - Credential verification across two hash formats: legacy
//     PBKDF2-HMAC-SHA512 records and current Argon2id PHC strings. Legacy
//     records are rewritten as Argon2id on the next successful login.
//   - HS256 session tokens carrying user, organization and role ids.
//     Verification re-loads the user on every call, so disabling an
//     account takes effect immediately.
//   - An optional revocation list used by logout.
//   - A static (collection, action) to capability map. Unmapped pairs are
//     allowed; super-admins bypass every check.
//
// Identity records live in the organizations, users and roles collections
// of the document store.
package auth
