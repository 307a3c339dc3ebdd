package room

import "github.com/DoyleJ11/meeting-timer-backend/internal/presence"

// authorize is the authority gate: only the current master may mutate a
// room. Rejections are silent; the caller drops the request without a
// broadcast or a reply.
func authorize(m *presence.Membership, senderID string) bool {
	return m.IsMaster(senderID)
}
