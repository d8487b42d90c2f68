package shard

import (
	"testing"

	"histshard/internal/services/unpack/domain"
)

func TestRouteDeterministic(t *testing.T) {
	r := New()
	snap := domain.NewShardSnapshot(map[string]int{"proj": 8})

	first := r.Route(snap, "proj", "history-abc")
	for i := 0; i < 100; i++ {
		if got := r.Route(snap, "proj", "history-abc"); got != first {
			t.Fatalf("routing not stable: %s vs %s", got, first)
		}
	}
}

func TestRouteStaysWithinSnapshot(t *testing.T) {
	r := New()
	snap := domain.NewShardSnapshot(map[string]int{"proj": 3})
	valid := map[domain.ShardID]bool{"shard-0": true, "shard-1": true, "shard-2": true}

	seen := map[domain.ShardID]bool{}
	for i := 0; i < 500; i++ {
		id := r.Route(snap, "proj", "h-"+string(rune('0'+i%10))+string(rune('a'+i%26)))
		if !valid[id] {
			t.Fatalf("routed to unknown shard %s", id)
		}
		seen[id] = true
	}
	// with 500 distinct identifiers all three shards should be hit
	if len(seen) != 3 {
		t.Fatalf("only %d of 3 shards used", len(seen))
	}
}

func TestRouteFallbackShard(t *testing.T) {
	r := New()
	snap := domain.NewShardSnapshot(nil)
	if got := r.Route(snap, "unconfigured", "h1"); got != domain.FallbackShard {
		t.Fatalf("fallback = %s", got)
	}
}
