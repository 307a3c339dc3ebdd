package ws

import (
	"encoding/json"
	"strings"

	"github.com/DoyleJ11/meeting-timer-backend/internal/agenda"
	"github.com/DoyleJ11/meeting-timer-backend/internal/types"
)

// parseRoomID accepts joinRoom data as either a bare string or {"roomId": ...}.
func parseRoomID(data json.RawMessage) (string, bool) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		var p types.ClientPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", false
		}
		id = p.RoomID
	}
	id = strings.TrimSpace(id)
	return id, id != ""
}

// toCommand maps a mutation event onto an agenda command. Missing required
// fields make the event malformed.
func toCommand(event string, p types.ClientPayload) (agenda.Command, bool) {
	switch event {
	case types.EvtSetPhases:
		if p.Phases == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdSetPhases, Phases: p.Phases}, true
	case types.EvtAddTask:
		if p.Task == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdAddTask, Phase: *p.Task}, true
	case types.EvtRemoveTask:
		if p.Index == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdRemoveTask, Index: *p.Index}, true
	case types.EvtUpdateTask:
		if p.Index == nil || p.Task == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdUpdateTask, Index: *p.Index, Phase: *p.Task}, true
	case types.EvtStartTimer:
		if p.Index == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdStartTimer, Index: *p.Index}, true
	case types.EvtUpdateTimeLeft:
		if p.TimeLeft == nil {
			return agenda.Command{}, false
		}
		return agenda.Command{Type: agenda.CmdUpdateTimeLeft, Seconds: *p.TimeLeft}, true
	case types.EvtPauseTimer:
		return agenda.Command{Type: agenda.CmdPauseTimer}, true
	case types.EvtResumeTimer:
		return agenda.Command{Type: agenda.CmdResumeTimer}, true
	case types.EvtStopTimer:
		return agenda.Command{Type: agenda.CmdStopTimer}, true
	case types.EvtResetTimer:
		return agenda.Command{Type: agenda.CmdResetTimer}, true
	case types.EvtSkipTask:
		return agenda.Command{Type: agenda.CmdSkipTask}, true
	default:
		return agenda.Command{}, false
	}
}
