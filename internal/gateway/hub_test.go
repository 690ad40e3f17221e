package gateway

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(userID uuid.UUID, buffer int) *Client {
	return &Client{
		gateway: &Gateway{},
		send:    make(chan []byte, buffer),
		userID:  userID,
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	userID := uuid.New()

	c1 := testClient(userID, 1)
	c2 := testClient(userID, 1)

	hub.Register(c1)
	hub.Register(c2)
	assert.True(t, hub.IsUserConnected(userID))

	last := hub.Unregister(c1)
	assert.False(t, last, "another connection is still open")
	assert.True(t, hub.IsUserConnected(userID))

	last = hub.Unregister(c2)
	assert.True(t, last)
	assert.False(t, hub.IsUserConnected(userID))
}

func TestHubAnonymousClients(t *testing.T) {
	hub := NewHub()
	anon := testClient(uuid.Nil, 1)

	hub.Register(anon)
	assert.False(t, hub.IsUserConnected(uuid.Nil))

	// Anonymous connections still join rooms and get swept on unregister
	room := ConversationRoom(uuid.New())
	hub.Join(room, anon)
	assert.True(t, hub.InRoom(room, anon))

	last := hub.Unregister(anon)
	assert.False(t, last)
	assert.False(t, hub.InRoom(room, anon))
}

func TestHubJoinLeave(t *testing.T) {
	hub := NewHub()
	room := ConversationRoom(uuid.New())
	client := testClient(uuid.New(), 1)

	assert.False(t, hub.InRoom(room, client))

	hub.Join(room, client)
	assert.True(t, hub.InRoom(room, client))
	assert.Equal(t, 1, hub.RoomSize(room))

	// Joining twice keeps one membership
	hub.Join(room, client)
	assert.Equal(t, 1, hub.RoomSize(room))

	hub.Leave(room, client)
	assert.False(t, hub.InRoom(room, client))
	assert.Equal(t, 0, hub.RoomSize(room))

	// Leaving a room never joined is harmless
	hub.Leave(room, client)
}

func TestHubUnregisterSweepsRooms(t *testing.T) {
	hub := NewHub()
	client := testClient(uuid.New(), 1)

	roomA := ConversationRoom(uuid.New())
	roomB := UserRoom(client.userID)
	hub.Register(client)
	hub.Join(roomA, client)
	hub.Join(roomB, client)

	hub.Unregister(client)
	assert.Equal(t, 0, hub.RoomSize(roomA))
	assert.Equal(t, 0, hub.RoomSize(roomB))
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub()
	room := ConversationRoom(uuid.New())

	sender := testClient(uuid.New(), 4)
	receiver := testClient(uuid.New(), 4)
	outsider := testClient(uuid.New(), 4)

	hub.Join(room, sender)
	hub.Join(room, receiver)

	payload := []byte(`{"type":"new_message"}`)
	hub.Broadcast(room, payload, sender)

	select {
	case got := <-receiver.send:
		assert.Equal(t, payload, got)
	default:
		t.Fatal("receiver got nothing")
	}

	assert.Empty(t, sender.send, "excluded connection receives nothing")
	assert.Empty(t, outsider.send, "non-members receive nothing")
}

func TestHubBroadcastSkipsSlowConsumer(t *testing.T) {
	hub := NewHub()
	room := ConversationRoom(uuid.New())

	slow := testClient(uuid.New(), 1)
	fast := testClient(uuid.New(), 4)
	hub.Join(room, slow)
	hub.Join(room, fast)

	// Fill the slow consumer's buffer
	slow.send <- []byte("backlog")

	hub.Broadcast(room, []byte("event"), nil)

	require.Len(t, fast.send, 1, "fast consumer still gets the event")
	assert.Len(t, slow.send, 1, "slow consumer's queue is untouched")
}

func TestRoomNames(t *testing.T) {
	userID := uuid.New()
	convID := uuid.New()

	assert.Equal(t, "user-"+userID.String(), UserRoom(userID))
	assert.Equal(t, "conversation-"+convID.String(), ConversationRoom(convID))
}
