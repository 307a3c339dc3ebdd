package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
)

func TestParseRoomID(t *testing.T) {
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"abc"`, "abc", true},
		{`{"roomId":"abc"}`, "abc", true},
		{`" "`, "", false},
		{`{}`, "", false},
		{`42`, "", false},
		{``, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseRoomID(json.RawMessage(tt.raw))
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToCommand(t *testing.T) {
	idx := 2
	secs := 30
	task := &agenda.Phase{Name: "A", Duration: 5}

	tests := []struct {
		name  string
		event string
		p     types.ClientPayload
		want  agenda.Command
		ok    bool
	}{
		{"setPhases", types.EvtSetPhases, types.ClientPayload{Phases: []agenda.Phase{}}, agenda.Command{Type: agenda.CmdSetPhases, Phases: []agenda.Phase{}}, true},
		{"setPhases missing list", types.EvtSetPhases, types.ClientPayload{}, agenda.Command{}, false},
		{"addTask", types.EvtAddTask, types.ClientPayload{Task: task}, agenda.Command{Type: agenda.CmdAddTask, Phase: *task}, true},
		{"addTask missing task", types.EvtAddTask, types.ClientPayload{}, agenda.Command{}, false},
		{"removeTask", types.EvtRemoveTask, types.ClientPayload{Index: &idx}, agenda.Command{Type: agenda.CmdRemoveTask, Index: 2}, true},
		{"removeTask missing index", types.EvtRemoveTask, types.ClientPayload{}, agenda.Command{}, false},
		{"updateTask", types.EvtUpdateTask, types.ClientPayload{Index: &idx, Task: task}, agenda.Command{Type: agenda.CmdUpdateTask, Index: 2, Phase: *task}, true},
		{"updateTask missing task", types.EvtUpdateTask, types.ClientPayload{Index: &idx}, agenda.Command{}, false},
		{"startTimer", types.EvtStartTimer, types.ClientPayload{Index: &idx}, agenda.Command{Type: agenda.CmdStartTimer, Index: 2}, true},
		{"updateTimeLeft", types.EvtUpdateTimeLeft, types.ClientPayload{TimeLeft: &secs}, agenda.Command{Type: agenda.CmdUpdateTimeLeft, Seconds: 30}, true},
		{"updateTimeLeft missing", types.EvtUpdateTimeLeft, types.ClientPayload{}, agenda.Command{}, false},
		{"pauseTimer", types.EvtPauseTimer, types.ClientPayload{}, agenda.Command{Type: agenda.CmdPauseTimer}, true},
		{"resumeTimer", types.EvtResumeTimer, types.ClientPayload{}, agenda.Command{Type: agenda.CmdResumeTimer}, true},
		{"stopTimer", types.EvtStopTimer, types.ClientPayload{}, agenda.Command{Type: agenda.CmdStopTimer}, true},
		{"resetTimer", types.EvtResetTimer, types.ClientPayload{}, agenda.Command{Type: agenda.CmdResetTimer}, true},
		{"skipTask", types.EvtSkipTask, types.ClientPayload{}, agenda.Command{Type: agenda.CmdSkipTask}, true},
		{"unknown", "launch", types.ClientPayload{}, agenda.Command{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := toCommand(tt.event, tt.p)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
