package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/jobsync/internal/models"
	"github.com/desertthunder/jobsync/internal/tasks"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgJobsFetched MsgKind = iota
	MsgProgressUpdate
	MsgSyncComplete
)

type jobsFetched struct {
	jobs []*models.LocalJob
	err  error
}

type syncComplete struct {
	result *tasks.RunResult
	err    error
}

// jobsFetchedMsg is the constructor for [MsgJobsFetched]
func jobsFetchedMsg(jobs []*models.LocalJob, err error) Msg {
	return Msg{kind: MsgJobsFetched, data: jobsFetched{jobs, err}}
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// syncCompleteMsg is the constructor for [MsgSyncComplete]
func syncCompleteMsg(result *tasks.RunResult, err error) Msg {
	return Msg{kind: MsgSyncComplete, data: syncComplete{result, err}}
}
