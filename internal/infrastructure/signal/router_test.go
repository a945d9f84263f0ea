package signal

import (
	"context"
	"encoding/json"
	"testing"

	"roomhub/internal/core/domain"
	"roomhub/internal/infrastructure/bus"
	"roomhub/internal/infrastructure/repositories/memory"
	"roomhub/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRelayFixture(t *testing.T) (*Router, *bus.MemoryGroupBus, func(user domain.UserIdentity) domain.ConnectionHandle) {
	t.Helper()

	presence := memory.NewMemoryPresenceRepository()
	groupBus := bus.NewMemoryGroupBus()
	router := NewRouter(presence, groupBus, nil, logger.NewNop().Sugar())

	room := domain.RoomID("room-1")
	join := func(user domain.UserIdentity) domain.ConnectionHandle {
		handle := domain.ConnectionHandle("conn_" + string(user.ID))
		_, err := presence.AddMember(context.Background(), room, user, handle)
		require.NoError(t, err)
		return handle
	}
	return router, groupBus, join
}

func TestRouterRelay(t *testing.T) {
	ctx := context.Background()
	room := domain.RoomID("room-1")
	alice := domain.UserIdentity{ID: "u1", Username: "alice"}
	bob := domain.UserIdentity{ID: "u2", Username: "bob"}

	t.Run("delivers annotated payload to target only", func(t *testing.T) {
		router, groupBus, join := newRelayFixture(t)
		aliceHandle := join(alice)
		bobHandle := join(bob)

		aliceSub, err := groupBus.Join(ctx, string(room), aliceHandle)
		require.NoError(t, err)
		bobSub, err := groupBus.Join(ctx, string(room), bobHandle)
		require.NoError(t, err)

		payload := json.RawMessage(`{"type":"webrtc_offer","target_user_id":"u2","sdp":"v=0"}`)
		require.NoError(t, router.Relay(ctx, room, alice, bob.ID, payload))

		select {
		case event := <-bobSub.Events():
			var frame map[string]interface{}
			require.NoError(t, json.Unmarshal(event.Payload, &frame))
			assert.Equal(t, "webrtc_offer", frame["type"])
			assert.Equal(t, "v=0", frame["sdp"])
			assert.Equal(t, "u1", frame["sender_user_id"])
			assert.Equal(t, "alice", frame["sender_username"])
		default:
			t.Fatal("expected a delivered relay for the target")
		}

		select {
		case <-aliceSub.Events():
			t.Fatal("relay must not reach the sender")
		default:
		}
	})

	t.Run("overwrites spoofed sender fields", func(t *testing.T) {
		router, groupBus, join := newRelayFixture(t)
		bobHandle := join(bob)
		join(alice)

		bobSub, err := groupBus.Join(ctx, string(room), bobHandle)
		require.NoError(t, err)

		payload := json.RawMessage(`{"type":"webrtc_answer","target_user_id":"u2","sender_user_id":"u99","sender_username":"mallory"}`)
		require.NoError(t, router.Relay(ctx, room, alice, bob.ID, payload))

		event := <-bobSub.Events()
		var frame map[string]interface{}
		require.NoError(t, json.Unmarshal(event.Payload, &frame))
		assert.Equal(t, "u1", frame["sender_user_id"])
		assert.Equal(t, "alice", frame["sender_username"])
	})

	t.Run("missing target is dropped", func(t *testing.T) {
		router, _, join := newRelayFixture(t)
		join(alice)

		err := router.Relay(ctx, room, alice, "", json.RawMessage(`{"type":"webrtc_offer"}`))
		assert.NoError(t, err)
	})

	t.Run("self target is rejected without delivery", func(t *testing.T) {
		router, groupBus, join := newRelayFixture(t)
		aliceHandle := join(alice)

		aliceSub, err := groupBus.Join(ctx, string(room), aliceHandle)
		require.NoError(t, err)

		err = router.Relay(ctx, room, alice, alice.ID, json.RawMessage(`{"type":"webrtc_offer","target_user_id":"u1"}`))
		assert.ErrorIs(t, err, domain.ErrSelfRelay)

		select {
		case <-aliceSub.Events():
			t.Fatal("self-targeted relay must be dropped")
		default:
		}
	})

	t.Run("absent target is dropped without error", func(t *testing.T) {
		router, _, join := newRelayFixture(t)
		join(alice)

		err := router.Relay(ctx, room, alice, "ghost", json.RawMessage(`{"type":"webrtc_ice_candidate","target_user_id":"ghost"}`))
		assert.NoError(t, err)
	})
}
