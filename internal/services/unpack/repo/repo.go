// Package repo provides Postgres bindings for the shard registry
package repo

import (
	"context"

	"histshard/internal/modkit/repokit"
	perr "histshard/internal/platform/errors"
	"histshard/internal/services/unpack/domain"
)

type (
	// PG is a Postgres binder for domain.SnapshotRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// Compile-time assertion: queries implements domain.SnapshotRepo
var _ domain.SnapshotRepo = (*queries)(nil)

// NewPG returns a Postgres binder for SnapshotRepo
func NewPG() repokit.Binder[domain.SnapshotRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.SnapshotRepo { return &queries{q: q} }

// ProjectShardCounts reads the registry fresh; callers snapshot the
// result once per run and never refetch mid-run
func (r *queries) ProjectShardCounts(ctx context.Context) (map[string]int, error) {
	rows, err := r.q.Query(ctx, `
		SELECT project, shard_count
		FROM project_shards
		WHERE shard_count > 0
	`)
	if err != nil {
		return nil, perr.FromPostgres(err, "shard registry query")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var project string
		var count int
		if err := rows.Scan(&project, &count); err != nil {
			return nil, perr.FromPostgres(err, "shard registry scan")
		}
		out[project] = count
	}
	if err := rows.Err(); err != nil {
		return nil, perr.FromPostgres(err, "shard registry rows")
	}
	return out, nil
}
