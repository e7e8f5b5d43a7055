// Package ui implements an interactive terminal interface using bubbletea's Elm architecture.
//
// The TUI walks through a manual sync:
//  1. [JobListView] : Browse the local job board
//  2. [ConfirmView] : Confirm a sync invocation
//  3. [SyncView] : Follow task progress with a spinner
//  4. [ResultView] : Per-task stats, or where a paused run stopped
//
// The (view) [Model] implements the standard Init/Update/View pattern, receiving messages via the Msg union type.
// Progress updates flow through a channel from the sync runner, so a long invocation never blocks rendering.
//
// Keyboard navigation uses vim-style bindings (j/k, s, y/n, c, q) with contextual help displayed via charmbracelet/bubbles/help.
package ui
