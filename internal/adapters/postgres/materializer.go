package postgres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.Materializer = (*Materializer)(nil)

// everybodyRole is granted to every visitor; records restricted to it are
// accessible.
const everybodyRole = "Neos.Flow:Everybody"

// maxWorkspaceDepth bounds the base workspace chain against cycles.
const maxWorkspaceDepth = 32

// Materializer resolves the variant of a record that a workspace and
// dimension combination sees. A workspace sees its own records first and
// falls back to its base workspaces.
type Materializer struct {
	pool *pgxpool.Pool
}

// NewMaterializer creates a Materializer on an open pool.
func NewMaterializer(db *Database) *Materializer {
	return &Materializer{pool: db.Pool}
}

// Materialize returns nil when the record has no variant visible in mc.
func (m *Materializer) Materialize(ctx context.Context, record *domain.Record, mc domain.MaterializeContext) (*domain.Variant, error) {
	if mc.Workspace == "" {
		mc.Workspace = record.Workspace
	}
	workspace := mc.Workspace
	candidates := dimensionCandidates(mc.Dimensions)
	if len(candidates) == 0 {
		candidates = []domain.DimensionValues{record.Dimensions}
	}

	for depth := 0; workspace != "" && depth < maxWorkspaceDepth; depth++ {
		rows, err := m.pool.Query(ctx, variantsInWorkspace, record.Identifier, workspace)
		if err != nil {
			return nil, fmt.Errorf("failed to load variants of %s in %s: %w", record.Identifier, workspace, err)
		}
		variants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Record, error) {
			return scanRecord(row)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read variants of %s: %w", record.Identifier, err)
		}

		if found := pickVariant(variants, candidates, mc.Dimensions); found != nil {
			if !visible(found, mc) {
				return nil, nil
			}
			return toVariant(found, mc), nil
		}

		if workspace, err = m.baseWorkspace(ctx, workspace); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (m *Materializer) baseWorkspace(ctx context.Context, name string) (string, error) {
	var base string
	err := m.pool.QueryRow(ctx, baseWorkspaceSQL, name).Scan(&base)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load base workspace of %s: %w", name, err)
	}
	return base, nil
}

// dimensionCandidates expands fallback chains into single value
// combinations in order of preference. Earlier dimensions vary slowest.
func dimensionCandidates(dims domain.DimensionValues) []domain.DimensionValues {
	if len(dims) == 0 {
		return nil
	}
	names := make([]string, 0, len(dims))
	for name := range dims {
		names = append(names, name)
	}
	slices.Sort(names)

	candidates := []domain.DimensionValues{{}}
	for _, name := range names {
		var next []domain.DimensionValues
		for _, c := range candidates {
			for _, value := range dims[name] {
				extended := c.Clone()
				extended[name] = []string{value}
				next = append(next, extended)
			}
		}
		candidates = next
	}
	return candidates
}

// pickVariant returns the stored variant matching the most preferred
// candidate. A stored variant carrying the full fallback chain matches too.
func pickVariant(stored []*domain.Record, candidates []domain.DimensionValues, chain domain.DimensionValues) *domain.Record {
	for _, want := range candidates {
		for _, r := range stored {
			if r.Dimensions.Equal(want) {
				return r
			}
		}
	}
	if len(chain) == 0 {
		return nil
	}
	for _, r := range stored {
		if r.Dimensions.Equal(chain) {
			return r
		}
	}
	return nil
}

func visible(r *domain.Record, mc domain.MaterializeContext) bool {
	if r.Removed && !mc.RemovedContentShown {
		return false
	}
	if r.Hidden && !mc.InvisibleContentShown {
		return false
	}
	if !mc.InaccessibleContentShown && len(r.AccessRoles) > 0 && !slices.Contains(r.AccessRoles, everybodyRole) {
		return false
	}
	return true
}

func toVariant(r *domain.Record, mc domain.MaterializeContext) *domain.Variant {
	v := domain.VariantOf(r, mc)
	if len(mc.Dimensions) == 0 {
		v.Dimensions = r.Dimensions.Clone()
	}
	return v
}
