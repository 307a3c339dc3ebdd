// Package types is the websocket wire protocol. Every frame, in both
// directions, is {"event": string, "data": ...}.
//
// Client -> Server (data fields; roomId is optional after joinRoom):
//
//	joinRoom:       "roomId" | { roomId }
//	setPhases:      { roomId, phases: [{name, duration}] }
//	addTask:        { roomId, task: {name, duration} }
//	removeTask:     { roomId, index }
//	updateTask:     { roomId, index, task }
//	startTimer:     { roomId, index }
//	pauseTimer, resumeTimer, stopTimer, resetTimer, skipTask: { roomId }
//	updateTimeLeft: { roomId, timeLeft }
//	passMaster:     { roomId, toId }
//	applyTemplate:  { roomId, name }
//
// Server -> Client:
//
//	timerState:  { phases, currentPhaseIndex, timeLeft, isPaused }, plus a
//	             per-room "version" on the envelope
//	roomClients: { members: [{id, name}], masterId }
//	yourName:    string
package types

import (
	"encoding/json"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
)

// Client -> server events.
const (
	EvtJoinRoom       = "joinRoom"
	EvtAddTask        = "addTask"
	EvtRemoveTask     = "removeTask"
	EvtUpdateTask     = "updateTask"
	EvtSetPhases      = "setPhases"
	EvtStartTimer     = "startTimer"
	EvtPauseTimer     = "pauseTimer"
	EvtResumeTimer    = "resumeTimer"
	EvtStopTimer      = "stopTimer"
	EvtResetTimer     = "resetTimer"
	EvtSkipTask       = "skipTask"
	EvtUpdateTimeLeft = "updateTimeLeft"
	EvtPassMaster     = "passMaster"
	EvtApplyTemplate  = "applyTemplate"
)

// Server -> client events.
const (
	EvtTimerState  = "timerState"
	EvtRoomClients = "roomClients"
	EvtYourName    = "yourName"
)

type ClientMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// ClientPayload is the union of every client event's fields. Pointer fields
// distinguish "absent" from zero so a malformed request can be dropped.
type ClientPayload struct {
	RoomID   string         `json:"roomId"`
	Index    *int           `json:"index,omitempty"`
	Task     *agenda.Phase  `json:"task,omitempty"`
	Phases   []agenda.Phase `json:"phases,omitempty"`
	TimeLeft *int           `json:"timeLeft,omitempty"`
	ToID     string         `json:"toId,omitempty"`
	Name     string         `json:"name,omitempty"`
}

type ServerMessage struct {
	Event   string `json:"event"`           // "timerState" | "roomClients" | "yourName"
	Version int    `json:"version,omitempty"` // per-room sequence, timerState only
	Data    any    `json:"data"`
}
