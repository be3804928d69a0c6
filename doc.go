// Package auth verifies credentials, issues stateless session tokens and
// proves ownership of an email address through single use verification
// tokens and signed links.
//
// Account lifecycle:
//   - Accounts are Unregistered, Unverified or Verified. The state is derived
//     from the persisted fields, email_verified_at being the only marker of a
//     verified account.
//   - AccountStateMachine owns the transition graph, timestamps and hooks.
//     Registration moves an account to Unverified and assigns its id.
//     Redeeming a verification token moves it to Verified. Nothing moves it
//     back.
//
// Sessions:
//   - SessionTokenService mints HS256 JWTs carrying the account id and the
//     account token epoch. Logout bumps the epoch, which rejects every token
//     issued before it. Refresh always yields a strictly later expiry.
//
// Verification:
//   - VerificationManager issues tokens from crypto/rand, builds HMAC signed
//     links with an expiry, and redeems tokens through the store's
//     compare-and-clear so a token is accepted at most once.
//
// Transport:
//   - AuthService exposes the operations with explicit token passing. The
//     fiber AuthController maps them to JSON endpoints and go-errors codes to
//     HTTP statuses.
//
// The repository package holds the bun store and goose migrations, config
// loads settings with viper, and cmd/authd wires everything into a daemon.
package auth
