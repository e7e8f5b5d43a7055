// Package services defines the [Service] interface for applicant tracking systems and implements it for Bullhorn.
//
// # Service Interface
//
// The sync runner depends on the narrow [JobSource] and [CandidateSink] interfaces so tasks can be tested with fakes.
//
// # Bullhorn Implementation
//
// [BullhornService] authenticates in two stages:
//   - OAuth2 authorization code flow via [oauth2.Config], either through the browser callback or headless
//     (username and password posted with action=Login, the code read from the redirect)
//   - REST login exchanging the access token for a BhRestToken and a per-corporation restUrl
//
// Every REST request carries the BhRestToken header and waits on a [rate.Limiter].
// A 401 response triggers one re-login with a refreshed token followed by a single retry.
//
// # Self Client
//
// [SelfClient] makes plain HTTP calls back into this service for REST and loopback continuations.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrNotAuthenticated] : Authenticate() not called or the session could not be renewed
//   - [shared.ErrInvalidCredentials] : headless login rejected
//   - [shared.ErrAPIRequest] : HTTP request failed
//   - [shared.ErrCandidateNotFound] : no candidate with the given email
//   - [shared.ErrJobNotFound] : job order ID not found
package services
