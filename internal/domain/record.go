package domain

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// LiveWorkspace is the name of the published workspace.
const LiveWorkspace = "live"

// DimensionValues maps a dimension name to its ordered value chain,
// e.g. {"language": ["de", "en"]}.
type DimensionValues map[string][]string

// Canonical returns the dimension values as JSON with sorted keys.
// An empty set encodes as "{}".
func (d DimensionValues) Canonical() string {
	if len(d) == 0 {
		return "{}"
	}
	// encoding/json sorts map keys, which is what makes this canonical
	b, err := json.Marshal(map[string][]string(d))
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Hash returns a short stable hash of the dimension values, or an empty
// string when there are none.
func (d DimensionValues) Hash() string {
	if len(d) == 0 {
		return ""
	}
	return strconv.FormatUint(xxhash.Sum64String(d.Canonical()), 16)
}

// Clone returns a deep copy.
func (d DimensionValues) Clone() DimensionValues {
	if d == nil {
		return nil
	}
	out := make(DimensionValues, len(d))
	for k, v := range d {
		out[k] = slices.Clone(v)
	}
	return out
}

// Equal reports whether both sets hold the same values in the same order.
func (d DimensionValues) Equal(other DimensionValues) bool {
	return maps.EqualFunc(d, other, slices.Equal[[]string])
}

// Cursor is the last record id seen while paging a workspace. The zero
// value starts at the beginning.
type Cursor string

// RecordReference is the minimal, serialisable pointer to one stored record.
type RecordReference struct {
	RecordID   string          `json:"persistenceObjectIdentifier" validate:"required"`
	Identifier string          `json:"identifier" validate:"required"`
	Dimensions DimensionValues `json:"dimensions"`
	NodeType   string          `json:"nodeType" validate:"required"`
	Path       string          `json:"path" validate:"required"`
	Workspace  string          `json:"workspace" validate:"required"`
}

// Batch is an ordered slice of references enumerated from one workspace.
type Batch []RecordReference

// Record is a stored content record as loaded by its storage id.
type Record struct {
	ID          string
	Identifier  string
	Workspace   string
	Path        string
	NodeType    string
	Dimensions  DimensionValues
	Properties  map[string]any
	Hidden      bool
	AccessRoles []string
	Removed     bool
	MovedTo     string

	// Synthetic is set for stand-ins built from a job payload. They are
	// never written back to storage.
	Synthetic bool
}

// Reference returns the reference pointing at this record.
func (r *Record) Reference() RecordReference {
	return RecordReference{
		RecordID:   r.ID,
		Identifier: r.Identifier,
		Dimensions: r.Dimensions.Clone(),
		NodeType:   r.NodeType,
		Path:       r.Path,
		Workspace:  r.Workspace,
	}
}

// MaterializeContext describes the view a record is re-materialised in.
type MaterializeContext struct {
	Workspace                string
	Dimensions               DimensionValues
	InvisibleContentShown    bool
	InaccessibleContentShown bool
	RemovedContentShown      bool
}

// Variant is a record as seen from a particular workspace and dimension
// combination.
type Variant struct {
	Identifier string
	Workspace  string
	Path       string
	NodeType   string
	Dimensions DimensionValues
	Properties map[string]any
	Hidden     bool
	Removed    bool
}

// VariantOf builds a variant straight from a record without a storage lookup.
func VariantOf(r *Record, mc MaterializeContext) *Variant {
	dims := mc.Dimensions
	if dims == nil {
		dims = r.Dimensions
	}
	workspace := mc.Workspace
	if workspace == "" {
		workspace = r.Workspace
	}
	return &Variant{
		Identifier: r.Identifier,
		Workspace:  workspace,
		Path:       r.Path,
		NodeType:   r.NodeType,
		Dimensions: dims.Clone(),
		Properties: r.Properties,
		Hidden:     r.Hidden,
		Removed:    r.Removed,
	}
}

// DocumentID returns the search document id for this variant. It is the
// same for every generation of an index so repeated writes overwrite.
func (v *Variant) DocumentID() string {
	return strconv.FormatUint(xxhash.Sum64String(v.Workspace+"/"+v.Identifier), 16)
}

// Document returns the search document body.
func (v *Variant) Document() map[string]any {
	return map[string]any{
		"identifier":     v.Identifier,
		"workspace":      v.Workspace,
		"path":           v.Path,
		"nodeType":       v.NodeType,
		"dimensions":     v.Dimensions,
		"dimensionsHash": v.Dimensions.Hash(),
		"hidden":         v.Hidden,
		"properties":     v.Properties,
	}
}
