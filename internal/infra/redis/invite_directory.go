package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InviteDirectory reserves invite codes in Redis so that every process sharing
// the instance hands out distinct codes.
// Reservations are stored as: SET quiz:invite:{code} {gameID} NX PX ttl
// and kept alive by Refresh while the game is running.
type InviteDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

func NewInviteDirectory(client *redis.Client, ttl time.Duration) *InviteDirectory {
	return &InviteDirectory{client: client, ttl: ttl}
}

func (d *InviteDirectory) Reserve(ctx context.Context, code, gameID string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(code), gameID, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve invite code: %w", err)
	}
	return ok, nil
}

func (d *InviteDirectory) Release(ctx context.Context, code string) error {
	if err := d.client.Del(ctx, d.key(code)).Err(); err != nil {
		return fmt.Errorf("release invite code: %w", err)
	}
	return nil
}

// refreshScript extends a reservation still held by ARGV[1], or takes it back if it lapsed.
var refreshScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner == ARGV[1] then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
	return 1
end
if not owner then
	redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
	return 1
end
return 0
`)

// Refresh extends gameID's hold on code. It reports false when another game took the code.
func (d *InviteDirectory) Refresh(ctx context.Context, code, gameID string) (bool, error) {
	if d.ttl <= 0 {
		return true, nil
	}
	held, err := refreshScript.Run(ctx, d.client, []string{d.key(code)}, gameID, d.ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("refresh invite code: %w", err)
	}
	return held == 1, nil
}

func (d *InviteDirectory) key(code string) string {
	return "quiz:invite:" + code
}
