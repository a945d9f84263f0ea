package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
	"roomhub/internal/core/services"
	"roomhub/internal/infrastructure/bus"
	"roomhub/internal/infrastructure/directory"
	"roomhub/internal/infrastructure/repositories/memory"
	"roomhub/pkg/config"
	"roomhub/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type serverFixture struct {
	server    *Server
	httpSrv   *httptest.Server
	auth      services.AuthService
	directory *directory.MemoryRoomDirectory
	presence  ports.PresenceRepository
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	auth := services.NewAuthService("test-secret", time.Minute)
	rooms := directory.NewMemoryRoomDirectory()
	presence := memory.NewMemoryPresenceRepository()

	server := NewServer(
		cfg,
		auth,
		presence,
		bus.NewMemoryGroupBus(),
		rooms,
		nil,
		logger.NewNop().Sugar(),
	)

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		roomID := strings.TrimPrefix(r.URL.Path, "/ws/rooms/")
		server.HandleConnection(w, r, roomID)
	}))
	t.Cleanup(httpSrv.Close)

	return &serverFixture{server: server, httpSrv: httpSrv, auth: auth, directory: rooms, presence: presence}
}

func (f *serverFixture) addRoom(t *testing.T) domain.RoomID {
	t.Helper()
	id := domain.RoomID(uuid.NewString())
	f.directory.AddRoom(domain.Room{ID: id, Name: "test room"})
	return id
}

func (f *serverFixture) token(t *testing.T, userID domain.UserID, username string) string {
	t.Helper()
	token, err := f.auth.GenerateToken(userID, username)
	require.NoError(t, err)
	return token
}

func (f *serverFixture) dial(t *testing.T, room domain.RoomID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.httpSrv.URL, "http") + "/ws/rooms/" + string(room) + "?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readFrame reads the next text frame and decodes it into a generic map.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

// expectClose asserts that the next read fails with the given close code.
func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	require.True(t, ok, "expected close error, got %v", err)
	assert.Equal(t, code, closeErr.Code)
}

func TestHandshakeRejections(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	t.Run("missing token", func(t *testing.T) {
		conn := f.dial(t, room, "")
		expectClose(t, conn, CloseInvalidCredential)
	})

	t.Run("garbage token", func(t *testing.T) {
		conn := f.dial(t, room, "not-a-jwt")
		expectClose(t, conn, CloseInvalidCredential)
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := services.NewAuthService("another-secret", time.Minute)
		token, err := other.GenerateToken("u1", "alice")
		require.NoError(t, err)

		conn := f.dial(t, room, token)
		expectClose(t, conn, CloseInvalidCredential)
	})

	t.Run("unknown room", func(t *testing.T) {
		conn := f.dial(t, domain.RoomID(uuid.NewString()), f.token(t, "u1", "alice"))
		expectClose(t, conn, CloseRoomNotFound)
	})

	t.Run("room id is not a uuid", func(t *testing.T) {
		conn := f.dial(t, "not-a-uuid", f.token(t, "u1", "alice"))
		expectClose(t, conn, CloseRoomNotFound)
	})
}

func TestTwoUserSessionLifecycle(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	// First user joins an empty room: announcement plus count, no
	// participants list.
	alice := f.dial(t, room, f.token(t, "u1", "alice"))

	frame := readFrame(t, alice)
	assert.Equal(t, "message", frame["type"])
	assert.Equal(t, "alice has joined.", frame["message"])
	assert.Equal(t, domain.SystemUsername, frame["username"])

	frame = readFrame(t, alice)
	assert.Equal(t, "member_count", frame["type"])
	assert.Equal(t, float64(1), frame["count"])

	// Second user joins: both see the announcement and the new count, only
	// the joiner receives the participants list.
	bob := f.dial(t, room, f.token(t, "u2", "bob"))

	frame = readFrame(t, alice)
	assert.Equal(t, "bob has joined.", frame["message"])
	frame = readFrame(t, alice)
	assert.Equal(t, float64(2), frame["count"])

	frame = readFrame(t, bob)
	assert.Equal(t, "bob has joined.", frame["message"])
	frame = readFrame(t, bob)
	assert.Equal(t, float64(2), frame["count"])
	frame = readFrame(t, bob)
	assert.Equal(t, "current_participants", frame["type"])
	participants, ok := frame["participants"].([]interface{})
	require.True(t, ok)
	require.Len(t, participants, 1)
	first, ok := participants[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "u1", first["id"])
	assert.Equal(t, "alice", first["username"])

	// Chat broadcast reaches everyone, attributed to the sender.
	require.NoError(t, bob.WriteJSON(map[string]string{"type": "chat_message", "message": "hi all"}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		frame = readFrame(t, conn)
		assert.Equal(t, "message", frame["type"])
		assert.Equal(t, "hi all", frame["message"])
		assert.Equal(t, "bob", frame["username"])
	}

	// Signaling goes point-to-point with the sender identity attached.
	require.NoError(t, bob.WriteJSON(map[string]string{
		"type":           "webrtc_offer",
		"target_user_id": "u1",
		"sdp":            "v=0 test-offer",
	}))
	frame = readFrame(t, alice)
	assert.Equal(t, "webrtc_offer", frame["type"])
	assert.Equal(t, "v=0 test-offer", frame["sdp"])
	assert.Equal(t, "u2", frame["sender_user_id"])
	assert.Equal(t, "bob", frame["sender_username"])

	// Video status is a room-wide broadcast.
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "video_status", "status": "started"}))
	frame = readFrame(t, bob)
	assert.Equal(t, "video_status", frame["type"])
	assert.Equal(t, "started", frame["status"])
	assert.Equal(t, "u1", frame["user_id"])
	readFrame(t, alice) // sender receives its own broadcast

	// First user disconnects: departure announcement, stopped status and the
	// decremented count reach the remaining user.
	alice.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	alice.Close()

	frame = readFrame(t, bob)
	assert.Equal(t, "alice has left.", frame["message"])
	assert.Equal(t, domain.SystemUsername, frame["username"])

	frame = readFrame(t, bob)
	assert.Equal(t, "video_status", frame["type"])
	assert.Equal(t, "stopped", frame["status"])
	assert.Equal(t, "u1", frame["user_id"])

	frame = readFrame(t, bob)
	assert.Equal(t, "member_count", frame["type"])
	assert.Equal(t, float64(1), frame["count"])
}

func TestMalformedAndUnknownFramesAreDropped(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	alice := f.dial(t, room, f.token(t, "u1", "alice"))
	readFrame(t, alice) // join announcement
	readFrame(t, alice) // member count

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":`)))
	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(`{"type":"time_travel"}`)))
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "chat_message", "message": "   "}))
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "video_status", "status": "paused"}))

	// The connection survives all of the above and keeps serving.
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "chat_message", "message": "still here"}))
	frame := readFrame(t, alice)
	assert.Equal(t, "still here", frame["message"])
}

func TestSignalingToAbsentTargetIsDropped(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	alice := f.dial(t, room, f.token(t, "u1", "alice"))
	readFrame(t, alice)
	readFrame(t, alice)

	require.NoError(t, alice.WriteJSON(map[string]string{
		"type":           "webrtc_answer",
		"target_user_id": "ghost",
		"sdp":            "v=0",
	}))

	// Still serving afterwards.
	require.NoError(t, alice.WriteJSON(map[string]string{"type": "chat_message", "message": "anyone?"}))
	frame := readFrame(t, alice)
	assert.Equal(t, "anyone?", frame["message"])
}

func TestNotifyRoomDeleted(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	alice := f.dial(t, room, f.token(t, "u1", "alice"))
	readFrame(t, alice)
	readFrame(t, alice)

	require.NoError(t, f.server.NotifyRoomDeleted(context.Background(), room))

	frame := readFrame(t, alice)
	assert.Equal(t, "notification", frame["type"])
	assert.Equal(t, "This room has been deleted.", frame["message"])

	expectClose(t, alice, CloseRoomDeleted)
}

func TestNotifyAdminTransfer(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)

	alice := f.dial(t, room, f.token(t, "u1", "alice"))
	readFrame(t, alice)
	readFrame(t, alice)

	require.NoError(t, f.server.NotifyAdminTransfer(context.Background(), room, domain.UserIdentity{ID: "u2", Username: "bob"}))

	frame := readFrame(t, alice)
	assert.Equal(t, "notification", frame["type"])
	assert.Equal(t, "bob is now the room admin.", frame["message"])
}

func TestStaleCleanupAfterReconnectKeepsUserPresent(t *testing.T) {
	f := newServerFixture(t)
	room := f.addRoom(t)
	tok := f.token(t, "u1", "alice")

	old := f.dial(t, room, tok)
	readFrame(t, old) // own join announcement
	readFrame(t, old) // member_count

	// Same user reconnects while the first connection is still up.
	fresh := f.dial(t, room, tok)
	frame := readFrame(t, fresh)
	assert.Equal(t, "alice has joined.", frame["message"])
	frame = readFrame(t, fresh)
	assert.Equal(t, float64(1), frame["count"], "re-registration must not double-count")

	// The old connection's teardown finishes after the reconnect registered.
	require.NoError(t, old.Close())

	frame = readFrame(t, fresh)
	assert.Equal(t, "alice has left.", frame["message"])
	readFrame(t, fresh) // video_status stopped
	frame = readFrame(t, fresh)
	assert.Equal(t, "member_count", frame["type"])
	assert.Equal(t, float64(1), frame["count"], "stale cleanup must not erase the live registration")

	handle, err := f.presence.HandleFor(context.Background(), room, "u1")
	require.NoError(t, err, "user must survive the old connection's cleanup")
	assert.NotEmpty(t, handle)

	// The surviving session still sends and receives.
	require.NoError(t, fresh.WriteJSON(map[string]string{"type": "chat_message", "message": "still here"}))
	frame = readFrame(t, fresh)
	assert.Equal(t, "still here", frame["message"])
	assert.Equal(t, "alice", frame["username"])
}
