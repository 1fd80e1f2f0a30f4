package coaching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{Name: "Lesson"}))
	assert.False(t, r.Create("s1", "coach", Config{}), "duplicate id")

	info, ok := r.Get("s1")
	require.True(t, ok)
	assert.Equal(t, "s1", info.SessionID)
	assert.Equal(t, "coach", info.CreatorUserID)
	assert.Equal(t, StatusActive, info.Status)
	assert.Empty(t, info.Participants)
}

func TestJoinUnknownRoom(t *testing.T) {
	r := NewRegistry(nil)
	assert.False(t, r.Join("nope", "u1", "c1"))
}

func TestJoinAndSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{}))
	require.True(t, r.Join("s1", "coach", "c1"))
	require.True(t, r.Join("s1", "student", "c2"))

	info, ok := r.Get("s1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"coach", "student"}, info.Participants)
	assert.ElementsMatch(t, []string{"c1", "c2"}, r.ConnectionSnapshot("s1"))

	sessionID, ok := r.RoomOf("c2")
	require.True(t, ok)
	assert.Equal(t, "s1", sessionID)
}

func TestJoinRespectsMaxParticipants(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{MaxParticipants: 1}))
	require.True(t, r.Join("s1", "coach", "c1"))

	assert.False(t, r.Join("s1", "student", "c2"), "room is full")
	// an existing participant may still attach another connection
	assert.True(t, r.Join("s1", "coach", "c3"))
}

func TestLeaveKeepsUserWithOtherConnections(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{}))
	require.True(t, r.Join("s1", "coach", "c1"))
	require.True(t, r.Join("s1", "coach", "c2"))
	require.True(t, r.Join("s1", "student", "c3"))

	sessionID, ok := r.Leave("c1")
	require.True(t, ok)
	assert.Equal(t, "s1", sessionID)

	info, ok := r.Get("s1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"coach", "student"}, info.Participants)

	_, ok = r.Leave("c2")
	require.True(t, ok)
	info, ok = r.Get("s1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"student"}, info.Participants)
}

func TestEmptyRoomIsDestroyed(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{}))
	require.True(t, r.Join("s1", "coach", "c1"))

	_, ok := r.Leave("c1")
	require.True(t, ok)

	_, ok = r.Get("s1")
	assert.False(t, ok, "last participant out destroys the room")
	assert.Equal(t, 0, r.ActiveRooms())
}

func TestLeaveNotInRoom(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Leave("c1")
	assert.False(t, ok)
}

func TestJoinSecondRoomVacatesFirst(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("roomA", "u1", Config{}))
	require.True(t, r.Create("roomB", "u1", Config{}))
	require.True(t, r.Join("roomA", "u1", "c1"))

	require.True(t, r.Join("roomB", "u1", "c1"))

	// sole participant moved out, so roomA is destroyed
	_, ok := r.Get("roomA")
	assert.False(t, ok)
	assert.Empty(t, r.ConnectionSnapshot("roomA"))

	sessionID, ok := r.RoomOf("c1")
	require.True(t, ok)
	assert.Equal(t, "roomB", sessionID)
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionSnapshot("roomB"))
}

func TestJoinSecondRoomKeepsFirstRoomClean(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("roomA", "coach", Config{}))
	require.True(t, r.Create("roomB", "coach", Config{}))
	require.True(t, r.Join("roomA", "coach", "c1"))
	require.True(t, r.Join("roomA", "student", "c2"))

	require.True(t, r.Join("roomB", "coach", "c1"))

	info, ok := r.Get("roomA")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"student"}, info.Participants)
	assert.ElementsMatch(t, []string{"c2"}, r.ConnectionSnapshot("roomA"))
}

func TestRejoinSameRoomIsStable(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "u1", Config{}))
	require.True(t, r.Join("s1", "u1", "c1"))
	require.True(t, r.Join("s1", "u1", "c1"))

	info, ok := r.Get("s1")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"u1"}, info.Participants)
	assert.ElementsMatch(t, []string{"c1"}, r.ConnectionSnapshot("s1"))
}

func TestEndClearsEverything(t *testing.T) {
	r := NewRegistry(nil)
	require.True(t, r.Create("s1", "coach", Config{}))
	require.True(t, r.Join("s1", "coach", "c1"))
	require.True(t, r.Join("s1", "student", "c2"))

	require.True(t, r.End("s1"))
	assert.False(t, r.End("s1"))

	_, ok := r.Get("s1")
	assert.False(t, ok)
	_, ok = r.RoomOf("c1")
	assert.False(t, ok)
	_, ok = r.RoomOf("c2")
	assert.False(t, ok)
	assert.Nil(t, r.ConnectionSnapshot("s1"))
}
