package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ ports.RecordStore = (*Store)(nil)

const (
	recordColumns = `persistence_id::text, identifier, workspace, path, node_type, dimension_values,
		properties, hidden, access_roles, removed, COALESCE(moved_to::text, '')`

	findRecordsByWorkspaceSQL = `
		SELECT persistence_id::text, identifier, workspace, path, node_type, dimension_values
		FROM nodes
		WHERE workspace = $1
		  AND persistence_id > $2::uuid
		  AND NOT removed
		  AND moved_to IS NULL
		  AND NOT (node_type = ANY($3::text[]))
		ORDER BY persistence_id
		LIMIT $4`

	findRecordByIDSQL = `SELECT ` + recordColumns + ` FROM nodes WHERE persistence_id = $1::uuid`

	listWorkspacesSQL   = `SELECT name FROM workspaces ORDER BY name`
	workspaceExistsSQL  = `SELECT EXISTS (SELECT 1 FROM workspaces WHERE name = $1)`
	nodeTypeExistsSQL   = `SELECT EXISTS (SELECT 1 FROM node_types WHERE name = $1)`
	baseWorkspaceSQL    = `SELECT COALESCE(base_workspace, '') FROM workspaces WHERE name = $1`
	variantsInWorkspace = `SELECT ` + recordColumns + ` FROM nodes WHERE identifier = $1 AND workspace = $2`
)

// Store reads records from the content repository tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store on an open pool.
func NewStore(db *Database) *Store {
	return &Store{pool: db.Pool}
}

// FindRecordsByWorkspace returns up to limit live records of a workspace
// with a persistence id greater than after, in ascending id order.
func (s *Store) FindRecordsByWorkspace(ctx context.Context, workspace string, after domain.Cursor, limit int, excluded []string) ([]domain.RecordReference, error) {
	cursor, err := cursorArg(after)
	if err != nil {
		return nil, err
	}
	if excluded == nil {
		excluded = []string{}
	}

	rows, err := s.pool.Query(ctx, findRecordsByWorkspaceSQL, workspace, cursor, excluded, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query records of %s: %w", workspace, err)
	}
	defer rows.Close()

	refs := make([]domain.RecordReference, 0, limit)
	for rows.Next() {
		var (
			ref  domain.RecordReference
			dims []byte
		)
		if err := rows.Scan(&ref.RecordID, &ref.Identifier, &ref.Workspace, &ref.Path, &ref.NodeType, &dims); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if ref.Dimensions, err = decodeDimensions(dims); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read records of %s: %w", workspace, err)
	}
	return refs, nil
}

// FindRecordByID returns nil when no record has the given id, including
// ids that are not valid UUIDs.
func (s *Store) FindRecordByID(ctx context.Context, recordID string) (*domain.Record, error) {
	if _, err := uuid.Parse(recordID); err != nil {
		return nil, nil
	}

	record, err := scanRecord(s.pool.QueryRow(ctx, findRecordByIDSQL, recordID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record %s: %w", recordID, err)
	}
	return record, nil
}

// ListWorkspaces returns every workspace name.
func (s *Store) ListWorkspaces(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, listWorkspacesSQL)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to read workspaces: %w", err)
	}
	return names, nil
}

func (s *Store) WorkspaceExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, workspaceExistsSQL, name)
}

func (s *Store) NodeTypeExists(ctx context.Context, name string) (bool, error) {
	return s.exists(ctx, nodeTypeExistsSQL, name)
}

func (s *Store) exists(ctx context.Context, query, name string) (bool, error) {
	var ok bool
	if err := s.pool.QueryRow(ctx, query, name).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to look up %q: %w", name, err)
	}
	return ok, nil
}

// cursorArg maps a cursor onto the persistence id to start after. The zero
// cursor starts before every UUID.
func cursorArg(after domain.Cursor) (string, error) {
	if after == "" {
		return uuid.Nil.String(), nil
	}
	id, err := uuid.Parse(string(after))
	if err != nil {
		return "", fmt.Errorf("invalid cursor %q: %w", after, err)
	}
	return id.String(), nil
}

func decodeDimensions(raw []byte) (domain.DimensionValues, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var dims domain.DimensionValues
	if err := json.Unmarshal(raw, &dims); err != nil {
		return nil, fmt.Errorf("failed to decode dimension values: %w", err)
	}
	if len(dims) == 0 {
		return nil, nil
	}
	return dims, nil
}

func decodeProperties(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	props := map[string]any{}
	if err := json.Unmarshal(raw, &props); err != nil {
		return nil, fmt.Errorf("failed to decode properties: %w", err)
	}
	return props, nil
}

func scanRecord(row pgx.Row) (*domain.Record, error) {
	var (
		r     domain.Record
		dims  []byte
		props []byte
	)
	err := row.Scan(&r.ID, &r.Identifier, &r.Workspace, &r.Path, &r.NodeType, &dims,
		&props, &r.Hidden, &r.AccessRoles, &r.Removed, &r.MovedTo)
	if err != nil {
		return nil, err
	}
	if r.Dimensions, err = decodeDimensions(dims); err != nil {
		return nil, err
	}
	if r.Properties, err = decodeProperties(props); err != nil {
		return nil, err
	}
	return &r, nil
}
