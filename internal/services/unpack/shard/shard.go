// Package shard maps history identifiers onto project shards
package shard

import (
	"github.com/spaolacci/murmur3"

	"histshard/internal/services/unpack/domain"
)

// Router assigns shards by hashing the history identifier.
// The assignment is stable for a given snapshot; across runs a grown
// snapshot may remap identifiers, which downstream consolidation absorbs.
type Router struct{}

// New builds a router
func New() Router { return Router{} }

// Route hashes historyID onto one of the project's configured shards.
// Projects with no configured shards route to the fallback shard.
func (Router) Route(snap domain.ShardSnapshot, project, historyID string) domain.ShardID {
	shards := snap.ShardsFor(project)
	if len(shards) == 0 {
		return domain.FallbackShard
	}
	idx := murmur3.Sum32([]byte(historyID)) % uint32(len(shards))
	return shards[idx]
}
