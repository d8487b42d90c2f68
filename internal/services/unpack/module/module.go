// Package module provides the unpack module implementation
package module

import (
	"context"
	"io"

	"histshard/internal/adapters/blobstore"
	"histshard/internal/adapters/dispatch"
	"histshard/internal/modkit"
	"histshard/internal/modkit/repokit"
	"histshard/internal/services/unpack/domain"
	"histshard/internal/services/unpack/ingest"
	"histshard/internal/services/unpack/normalize"
	"histshard/internal/services/unpack/repo"
	"histshard/internal/services/unpack/service"
	"histshard/internal/services/unpack/shard"
	"histshard/internal/services/unpack/window"
	"histshard/internal/services/unpack/writekit"
)

// Ports defines the unpack module ports
type Ports struct {
	Runner domain.RunnerPort
}

// Module implements the unpack module
type Module struct {
	deps  modkit.Deps
	ports Ports
}

// New constructs the unpack module
// It wires the blobstore, registry binder, pipeline components, and
// dispatcher using config from deps.Cfg
func New(deps modkit.Deps) *Module {
	opts := FromConfig(deps.Cfg)

	binder := repo.NewPG()
	blobs := fsStore{fs: blobstore.NewFS(opts.BaseDir)}
	writer := writekit.New(blobs, opts.OutputBucket, opts.Scheme, opts.WriteConcurrency)
	disp := clientDispatcher{c: dispatch.New(opts.DispatchURL)}

	svc := service.New(
		repokit.TxRunner(deps.PG), binder,
		blobs,
		ingest.Factory{},
		normalize.New(opts.LegacyAPIKeys),
		shard.New(),
		window.New(opts.Window),
		writer,
		disp,
		service.Config{
			Window:      opts.Window,
			BlobWorkers: opts.BlobWorkers,
		},
	)

	m := &Module{deps: deps}
	m.ports = Ports{Runner: svc}
	return m
}

// Name returns the module name
func (m *Module) Name() string { return "unpack" }

// Ports returns the module ports
func (m *Module) Ports() any { return m.ports }

// fsStore adapts the filesystem blobstore to the domain port
type fsStore struct{ fs *blobstore.FS }

func (s fsStore) Get(ctx context.Context, ref domain.BlobRef) (io.ReadCloser, error) {
	return s.fs.Get(ctx, ref.Bucket, ref.Key)
}

func (s fsStore) Put(ctx context.Context, ref domain.BlobRef, data []byte) error {
	return s.fs.Put(ctx, ref.Bucket, ref.Key, data)
}

// clientDispatcher adapts the outbound client to the domain port
type clientDispatcher struct{ c *dispatch.Client }

func (d clientDispatcher) Dispatch(ev domain.DispatchEvent) { d.c.Send(ev) }
