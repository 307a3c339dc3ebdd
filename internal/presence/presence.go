package presence

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"slices"
)

var ErrAlreadyMember = errors.New("already a member")
var ErrNotMember = errors.New("not a member")
var ErrNotMaster = errors.New("sender is not the room master")

// NamePool is the set of labels handed out to participants before falling
// back to generated names.
var NamePool = []string{
	"Otter", "Falcon", "Badger", "Heron", "Lynx", "Marmot",
	"Puffin", "Walrus", "Gecko", "Bison", "Koala", "Narwhal",
	"Ibis", "Tapir", "Quokka", "Mongoose", "Pelican", "Yak",
}

type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Snapshot is what roomClients carries to every member.
type Snapshot struct {
	Members  []Member `json:"members"`
	MasterID string   `json:"masterId"`
}

// Membership tracks who is connected to a room and who holds mastership.
// It is not safe for concurrent use; the owning room serialises access.
type Membership struct {
	members  []Member // join order
	masterID string
	pool     []string
	pick     func(n int) int
}

func New() *Membership {
	return &Membership{
		pool: NamePool,
		pick: mrand.IntN,
	}
}

// Join adds id with a fresh name unique within the room. The first member of
// a masterless room becomes master.
func (m *Membership) Join(id string) (Member, error) {
	if m.Has(id) {
		return Member{}, ErrAlreadyMember
	}

	mem := Member{ID: id, Name: m.assignName()}
	m.members = append(m.members, mem)
	if m.masterID == "" {
		m.masterID = id
	}
	return mem, nil
}

// Leave removes id. When the master leaves, mastership moves to the earliest
// remaining joiner; it is cleared only when nobody is left. masterChanged
// reports whether that happened.
func (m *Membership) Leave(id string) (masterChanged bool, err error) {
	i := m.index(id)
	if i < 0 {
		return false, ErrNotMember
	}
	m.members = slices.Delete(m.members, i, i+1)

	if m.masterID != id {
		return false, nil
	}
	m.masterID = ""
	if len(m.members) > 0 {
		m.masterID = m.members[0].ID
	}
	return true, nil
}

// PassMaster hands mastership from `from` to `to`. Both must be members and
// `from` must be the current master.
func (m *Membership) PassMaster(from, to string) error {
	if !m.IsMaster(from) {
		return ErrNotMaster
	}
	if !m.Has(to) {
		return ErrNotMember
	}
	m.masterID = to
	return nil
}

func (m *Membership) IsMaster(id string) bool {
	return id != "" && m.masterID == id
}

func (m *Membership) MasterID() string { return m.masterID }

func (m *Membership) Has(id string) bool { return m.index(id) >= 0 }

func (m *Membership) Len() int { return len(m.members) }

func (m *Membership) Name(id string) (string, bool) {
	i := m.index(id)
	if i < 0 {
		return "", false
	}
	return m.members[i].Name, true
}

func (m *Membership) Snapshot() Snapshot {
	members := make([]Member, len(m.members))
	copy(members, m.members)
	return Snapshot{
		Members:  members,
		MasterID: m.masterID,
	}
}

func (m *Membership) index(id string) int {
	return slices.IndexFunc(m.members, func(mem Member) bool { return mem.ID == id })
}

func (m *Membership) nameTaken(name string) bool {
	return slices.ContainsFunc(m.members, func(mem Member) bool { return mem.Name == name })
}

func (m *Membership) assignName() string {
	free := make([]string, 0, len(m.pool))
	for _, n := range m.pool {
		if !m.nameTaken(n) {
			free = append(free, n)
		}
	}
	if len(free) > 0 {
		return free[m.pick(len(free))]
	}

	// Pool exhausted: suffix a random discriminator until unique.
	base := "Guest"
	if len(m.pool) > 0 {
		base = m.pool[m.pick(len(m.pool))]
	}
	for {
		name := fmt.Sprintf("%s-%s", base, discriminator())
		if !m.nameTaken(name) {
			return name
		}
	}
}

func discriminator() string {
	b := make([]byte, 2)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%04x", mrand.IntN(1<<16))
	}
	return hex.EncodeToString(b)
}
