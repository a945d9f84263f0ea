package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisPresenceRepository keeps two parallel hashes per room: one mapping
// user id to the marshalled identity (the membership set), one mapping user
// id to the connection handle. Both are always written in one transactional
// pipeline so a membership add is complete only when both exist, and the
// post-mutation cardinality is read from the same pipeline.
type RedisPresenceRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisPresenceRepository(client *redis.Client) ports.PresenceRepository {
	return &RedisPresenceRepository{
		client: client,
		prefix: "roomhub:room:",
	}
}

func (r *RedisPresenceRepository) membersKey(room domain.RoomID) string {
	return fmt.Sprintf("%s%s:members", r.prefix, room)
}

func (r *RedisPresenceRepository) handlesKey(room domain.RoomID) string {
	return fmt.Sprintf("%s%s:handles", r.prefix, room)
}

func (r *RedisPresenceRepository) AddMember(ctx context.Context, room domain.RoomID, user domain.UserIdentity, handle domain.ConnectionHandle) (int64, error) {
	data, err := json.Marshal(user)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal member identity: %w", err)
	}

	var countCmd *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.membersKey(room), string(user.ID), data)
		pipe.HSet(ctx, r.handlesKey(room), string(user.ID), string(handle))
		countCmd = pipe.HLen(ctx, r.membersKey(room))
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add member to presence: %w", err)
	}

	return countCmd.Val(), nil
}

// removeMemberScript deletes the membership and handle entries only while
// the stored handle is still ARGV[2]. A teardown that lost the race to a
// reconnect's AddMember leaves the newer registration in place. Returns the
// post-script cardinality either way.
var removeMemberScript = redis.NewScript(`
if redis.call("HGET", KEYS[2], ARGV[1]) == ARGV[2] then
	redis.call("HDEL", KEYS[1], ARGV[1])
	redis.call("HDEL", KEYS[2], ARGV[1])
end
return redis.call("HLEN", KEYS[1])
`)

func (r *RedisPresenceRepository) RemoveMember(ctx context.Context, room domain.RoomID, user domain.UserID, handle domain.ConnectionHandle) (int64, error) {
	keys := []string{r.membersKey(room), r.handlesKey(room)}
	count, err := removeMemberScript.Run(ctx, r.client, keys, string(user), string(handle)).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to remove member from presence: %w", err)
	}
	return count, nil
}

func (r *RedisPresenceRepository) MemberCount(ctx context.Context, room domain.RoomID) (int64, error) {
	count, err := r.client.HLen(ctx, r.membersKey(room)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read member count: %w", err)
	}
	return count, nil
}

func (r *RedisPresenceRepository) HandleFor(ctx context.Context, room domain.RoomID, user domain.UserID) (domain.ConnectionHandle, error) {
	handle, err := r.client.HGet(ctx, r.handlesKey(room), string(user)).Result()
	if err == redis.Nil {
		return "", domain.ErrMemberNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up connection handle: %w", err)
	}
	return domain.ConnectionHandle(handle), nil
}

func (r *RedisPresenceRepository) MembersSnapshot(ctx context.Context, room domain.RoomID) ([]domain.UserIdentity, error) {
	entries, err := r.client.HGetAll(ctx, r.membersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read members snapshot: %w", err)
	}

	members := make([]domain.UserIdentity, 0, len(entries))
	for _, raw := range entries {
		var identity domain.UserIdentity
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			// Skip entries written by incompatible versions.
			continue
		}
		members = append(members, identity)
	}
	return members, nil
}
