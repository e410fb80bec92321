package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestInviteDirectoryReservesOnce(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	dir := NewInviteDirectory(newClient(mr), time.Hour)

	ok, err := dir.Reserve(ctx, "123456", "game-1")
	if err != nil || !ok {
		t.Fatalf("expected reservation, got %v %v", ok, err)
	}
	if !mr.Exists("quiz:invite:123456") {
		t.Fatalf("expected redis key to be set")
	}
	if ok, _ := dir.Reserve(ctx, "123456", "game-2"); ok {
		t.Fatalf("code must not be handed out twice")
	}
	if owner, _ := mr.Get("quiz:invite:123456"); owner != "game-1" {
		t.Fatalf("expected game-1 to own the code, got %q", owner)
	}

	if err := dir.Release(ctx, "123456"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if mr.Exists("quiz:invite:123456") {
		t.Fatalf("expected redis key to be removed")
	}
	if ok, _ := dir.Reserve(ctx, "123456", "game-2"); !ok {
		t.Fatalf("released code should be reusable")
	}
}

func TestInviteDirectoryReservationExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	dir := NewInviteDirectory(newClient(mr), time.Minute)
	if ok, _ := dir.Reserve(ctx, "654321", "game-1"); !ok {
		t.Fatalf("expected reservation")
	}
	mr.FastForward(2 * time.Minute)
	if ok, _ := dir.Reserve(ctx, "654321", "game-2"); !ok {
		t.Fatalf("expired reservation should be reusable")
	}
}

func TestInviteDirectoryReportsRedisErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	dir := NewInviteDirectory(newClient(mr), time.Minute)
	mr.Close()

	if _, err := dir.Reserve(context.Background(), "111111", "game-1"); err == nil {
		t.Fatalf("expected an error when redis is down")
	}
}

func TestInviteDirectoryRefreshKeepsReservationAlive(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	dir := NewInviteDirectory(newClient(mr), time.Minute)
	if ok, _ := dir.Reserve(ctx, "222222", "game-1"); !ok {
		t.Fatalf("expected reservation")
	}
	for i := 0; i < 3; i++ {
		mr.FastForward(40 * time.Second)
		held, err := dir.Refresh(ctx, "222222", "game-1")
		if err != nil || !held {
			t.Fatalf("refresh %d failed: %v %v", i, held, err)
		}
	}
	if ok, _ := dir.Reserve(ctx, "222222", "game-2"); ok {
		t.Fatalf("refreshed code must stay reserved past its original ttl")
	}

	mr.FastForward(2 * time.Minute)
	if held, err := dir.Refresh(ctx, "222222", "game-1"); err != nil || !held {
		t.Fatalf("lapsed code should be taken back, got %v %v", held, err)
	}
	if owner, _ := mr.Get("quiz:invite:222222"); owner != "game-1" {
		t.Fatalf("expected game-1 to hold the code again, got %q", owner)
	}

	if err := mr.Set("quiz:invite:222222", "game-9"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if held, _ := dir.Refresh(ctx, "222222", "game-1"); held {
		t.Fatalf("refresh must not steal a code owned by another game")
	}
}
