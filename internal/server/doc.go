// Package server exposes the jobsync HTTP surface.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support. [BasicRouter] registers
// routes on an [http.ServeMux] using method patterns, and [Middleware] wraps handlers in reverse
// order (last added executes first). [Logging] and [Recover] are the stock middleware.
//
// # Handlers
//
// Handlers implement [Handler], which adds Routes to [http.Handler] so a handler owns the patterns
// it serves:
//
//   - [SyncHandler] accepts continuation requests. The REST endpoint checks the shared sync token;
//     the loopback endpoint consumes a single-use nonce written by the runner. Both answer a probe
//     with 204 and otherwise start the runner in the background and answer 202.
//   - [JobsHandler] serves the local job feed and collects applications for the next sync.
//   - [OAuthHandler] handles the Bullhorn authorization code callback. It validates the state
//     parameter, exchanges the code once and delivers the result through a channel.
//
// [Serve] runs an [http.Server] until its context ends, then shuts it down gracefully.
package server
