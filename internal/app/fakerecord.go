package app

import (
	"context"
	"fmt"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	lru "github.com/hashicorp/golang-lru/v2"
)

const lookupCacheSize = 1024

// FakeRecordFactory builds in-memory stand-ins for records that were
// deleted from storage but still need to be removed from the index.
type FakeRecordFactory struct {
	store      ports.RecordStore
	workspaces *lru.Cache[string, bool]
	nodeTypes  *lru.Cache[string, bool]
}

// NewFakeRecordFactory creates a factory that validates workspaces and node
// types against the store. Positive lookups are cached.
func NewFakeRecordFactory(store ports.RecordStore) *FakeRecordFactory {
	workspaces, _ := lru.New[string, bool](lookupCacheSize)
	nodeTypes, _ := lru.New[string, bool](lookupCacheSize)
	return &FakeRecordFactory{
		store:      store,
		workspaces: workspaces,
		nodeTypes:  nodeTypes,
	}
}

// FromReference synthesises a removed record from a job payload.
func (f *FakeRecordFactory) FromReference(ctx context.Context, ref domain.RecordReference) (*domain.Record, error) {
	const op = "synthesize record"

	switch {
	case ref.Workspace == "":
		return nil, domain.Errorf(domain.KindSynthesis, op, "missing workspace for %s", ref.Identifier)
	case ref.Path == "":
		return nil, domain.Errorf(domain.KindSynthesis, op, "missing path for %s", ref.Identifier)
	case ref.Identifier == "":
		return nil, domain.Errorf(domain.KindSynthesis, op, "missing identifier")
	case ref.NodeType == "":
		return nil, domain.Errorf(domain.KindSynthesis, op, "missing node type for %s", ref.Identifier)
	}

	ok, err := f.exists(ctx, f.workspaces, ref.Workspace, f.store.WorkspaceExists)
	if err != nil {
		return nil, domain.E(domain.KindSynthesis, op, err)
	}
	if !ok {
		return nil, domain.Errorf(domain.KindSynthesis, op, "workspace %q not found", ref.Workspace)
	}

	ok, err = f.exists(ctx, f.nodeTypes, ref.NodeType, f.store.NodeTypeExists)
	if err != nil {
		return nil, domain.E(domain.KindSynthesis, op, err)
	}
	if !ok {
		return nil, domain.Errorf(domain.KindSynthesis, op, "node type %q not found", ref.NodeType)
	}

	return &domain.Record{
		ID:         ref.RecordID,
		Identifier: ref.Identifier,
		Workspace:  ref.Workspace,
		Path:       ref.Path,
		NodeType:   ref.NodeType,
		Dimensions: ref.Dimensions.Clone(),
		Removed:    true,
		Synthetic:  true,
	}, nil
}

func (f *FakeRecordFactory) exists(ctx context.Context, cache *lru.Cache[string, bool], name string, lookup func(context.Context, string) (bool, error)) (bool, error) {
	if _, ok := cache.Get(name); ok {
		return true, nil
	}
	ok, err := lookup(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to look up %q: %w", name, err)
	}
	if ok {
		cache.Add(name, true)
	}
	return ok, nil
}
