// Package tasks runs the resumable, time-boxed job and application sync.
//
// # Runner
//
// [Sync] walks an ordered list of [Runnable] tasks within a [Budget]:
//
//  1. Acquire the TTL lock under [SyncLockKey] or fail with shared.ErrSyncLocked
//  2. Load the checkpoint under [SyncStateKey], or create a new run
//  3. Run tasks from the checkpoint index until done or the budget runs out
//     - A failing task is recorded in the run results and skipped
//  4. When the budget runs out, save the checkpoint, release the lock and
//     hand the run to a [Continuation]
//  5. When all tasks finish, clear the checkpoint and store the result under [LastSyncKey]
//
// # Tasks
//
// A [Task] is an ordered list of [Step] funcs with its own checkpoint under
// [TaskKeyPrefix]+name holding the step index and a [TaskData] scratch map.
// A step that returns done=false is called again while the budget allows.
//
//   - [JobsTask] : fetch_remote, index_local, delete_duplicates, save_jobs, expire_jobs
//   - [ApplicationsTask] : collect_pending, submit
//
// [LocalJobs] provides the index_local and delete_duplicates steps.
//
// # Continuations
//
// [Selector] probes [RESTContinuer] then [LoopbackContinuer] and falls back to
// [CronContinuer]. The chosen method is cached under [ContinuationMethodKey].
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
// Updates use select with default to prevent blocking.
package tasks
