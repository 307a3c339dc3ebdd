package presence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMembership(pool ...string) *Membership {
	m := New()
	if pool != nil {
		m.pool = pool
	}
	m.pick = func(int) int { return 0 }
	return m
}

func TestJoin_FirstMemberBecomesMaster(t *testing.T) {
	m := newTestMembership()

	_, err := m.Join("a")
	require.NoError(t, err)
	_, err = m.Join("b")
	require.NoError(t, err)

	assert.Equal(t, "a", m.MasterID())
	assert.True(t, m.IsMaster("a"))
	assert.False(t, m.IsMaster("b"))
	assert.False(t, m.IsMaster(""))
}

func TestJoin_Duplicate(t *testing.T) {
	m := newTestMembership()
	_, err := m.Join("a")
	require.NoError(t, err)

	_, err = m.Join("a")
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, 1, m.Len())
}

func TestJoin_NamesUniqueWithinRoom(t *testing.T) {
	m := newTestMembership("Otter", "Falcon")

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		mem, err := m.Join(fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		require.False(t, seen[mem.Name], "duplicate name %q", mem.Name)
		seen[mem.Name] = true
	}

	assert.True(t, seen["Otter"])
	assert.True(t, seen["Falcon"])
}

func TestJoin_FreedNameIsReused(t *testing.T) {
	m := newTestMembership("Otter")
	first, _ := m.Join("a")
	_, err := m.Leave("a")
	require.NoError(t, err)

	again, _ := m.Join("b")
	assert.Equal(t, first.Name, again.Name)
}

func TestLeave_MasterReassignedToFirstRemaining(t *testing.T) {
	m := newTestMembership()
	for _, id := range []string{"m", "p1", "p2"} {
		_, err := m.Join(id)
		require.NoError(t, err)
	}

	changed, err := m.Leave("m")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "p1", m.MasterID())

	snap := m.Snapshot()
	assert.Len(t, snap.Members, 2)
	assert.NotEqual(t, "m", snap.MasterID)
	assert.NotEmpty(t, snap.MasterID)
}

func TestLeave_NonMasterKeepsMaster(t *testing.T) {
	m := newTestMembership()
	_, _ = m.Join("m")
	_, _ = m.Join("p")

	changed, err := m.Leave("p")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "m", m.MasterID())
}

func TestLeave_LastMemberClearsMaster(t *testing.T) {
	m := newTestMembership()
	_, _ = m.Join("m")

	changed, err := m.Leave("m")
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Empty(t, m.MasterID())
	assert.Equal(t, 0, m.Len())

	_, err = m.Leave("m")
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestPassMaster(t *testing.T) {
	cases := []struct {
		name       string
		from, to   string
		wantErr    error
		wantMaster string
	}{
		{"master hands to member", "m", "p", nil, "p"},
		{"non-master cannot hand off", "p", "m", ErrNotMaster, "m"},
		{"unknown target", "m", "ghost", ErrNotMember, "m"},
		{"master to self", "m", "m", nil, "m"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := newTestMembership()
			_, _ = m.Join("m")
			_, _ = m.Join("p")

			err := m.PassMaster(tc.from, tc.to)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tc.wantMaster, m.MasterID())
		})
	}
}

func TestSnapshot_IsACopy(t *testing.T) {
	m := newTestMembership()
	_, _ = m.Join("a")

	snap := m.Snapshot()
	snap.Members[0].Name = "changed"

	name, ok := m.Name("a")
	require.True(t, ok)
	assert.NotEqual(t, "changed", name)
}
