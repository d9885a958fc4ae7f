// Package identity implements account authentication with optional
// step-up MFA, signed session tokens, and transactional dispatch of
// account lifecycle events.
//
// The package exposes an Authenticator that drives the login protocol
// (credential verification, MFA challenge issuance, one-time code
// verification), an MFAManager for channel enrollment, a TokenService
// that signs session and MFA-intermediate JWTs, and a unit-of-work
// backed Outbox that delivers domain events to registered handlers
// after the owning transaction commits.
package identity
