// Package iam provides identity and access management for the salon API.
//
// The IAM service centralizes authentication, principal resolution, the
// role/permission admin operations and the account flows that issue or consume
// credentials. It provides:
//
//   - Authentication via an ordered chain of Authenticators (bootstrap token, bearer JWT)
//   - Per-request principal resolution from the users/roles/permissions join
//   - Role and permission catalog administration with transactional full-replace
//   - Purpose-tagged pending tokens for setup, reset, verification and OTP
//   - Login lockout bookkeeping
//
// Request Flow:
//
//	Request → middleware.Authenticate → Service.AuthenticateRequest
//	       → Authenticator.Authenticate() → *auth.Principal
//	       ↓
//	   middleware.RequirePermission / RequireRole / BlockGuests → Handler
//
// Tokens only identify a principal. Permissions are read from the database on
// every request for registered users and are never cached between requests;
// guest principals are built from the token alone and never touch the database.
package iam
