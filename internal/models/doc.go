// Package models defines domain entities and persistence interfaces for the jobsync service.
//
// The package contains two categories of types:
//
// 1. Data Transfer Objects (DTOs): Lightweight structs representing Bullhorn data
//   - [Job] : a Bullhorn JobOrder as returned by the search endpoint
//   - [JobPage] : one page of a job search
//
// 2. Persistent Entities: Database-backed models with full lifecycle management
//   - [LocalJob] : a job listing copied into the local job board
//   - [Application] : an applicant collected locally and pushed to Bullhorn
//   - [SyncRun] : history of one sync run across all of its invocations
//
// All persistent entities implement the Model interface providing ID, timestamps, validation, and soft delete support.
// The Repository[T] interface defines standard CRUD operations for database access.
package models
