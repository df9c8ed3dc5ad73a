package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDimensionValues_Hash(t *testing.T) {
	a := DimensionValues{"language": {"de", "en"}, "audience": {"public"}}
	b := DimensionValues{"audience": {"public"}, "language": {"de", "en"}}
	c := DimensionValues{"language": {"en", "de"}, "audience": {"public"}}

	assert.Equal(t, a.Hash(), b.Hash(), "key order must not matter")
	assert.NotEqual(t, a.Hash(), c.Hash(), "value order is significant")
	assert.Empty(t, DimensionValues{}.Hash())
	assert.Empty(t, DimensionValues(nil).Hash())
	assert.Equal(t, "{}", DimensionValues(nil).Canonical())
}

func TestIndexNames(t *testing.T) {
	names := IndexNames{Base: "neos"}
	dims := DimensionValues{"language": {"en"}}

	assert.Equal(t, "neos", names.Alias(nil))
	assert.Equal(t, "neos-1700000000", names.Generation(nil, "1700000000"))
	assert.Equal(t, "neos", names.Generation(nil, ""))
	assert.Equal(t, "neos-"+dims.Hash(), names.Alias(dims))
	assert.Equal(t, "neos-"+dims.Hash()+"-1700000000", names.Generation(dims, "1700000000"))
}

func TestIsStaleGeneration(t *testing.T) {
	tests := []struct {
		index    string
		expected bool
	}{
		{index: "neos-1600000000", expected: true},
		{index: "neos-1700000000", expected: false},
		{index: "neos-1800000000", expected: false},
		{index: "neos-abc-1600000000", expected: false},
		{index: "neos--5", expected: false},
		{index: "other-1600000000", expected: false},
		{index: "neos", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.index, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsStaleGeneration("neos", tt.index, "1700000000"))
		})
	}
}

func TestVariant_DocumentID(t *testing.T) {
	rec := &Record{ID: "1", Identifier: "abc", Workspace: LiveWorkspace, Dimensions: DimensionValues{"language": {"en"}}}

	live := VariantOf(rec, MaterializeContext{})
	user := VariantOf(rec, MaterializeContext{Workspace: "user-admin"})

	assert.Equal(t, LiveWorkspace, live.Workspace)
	assert.NotEqual(t, live.DocumentID(), user.DocumentID())
	assert.Equal(t, live.DocumentID(), VariantOf(rec, MaterializeContext{}).DocumentID())

	doc := live.Document()
	assert.Equal(t, "abc", doc["identifier"])
	assert.Equal(t, rec.Dimensions.Hash(), doc["dimensionsHash"])
}

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name     string
		err      error
		expected ErrorKind
	}{
		{name: "nil", err: nil, expected: KindUnknown},
		{name: "plain", err: base, expected: KindUnknown},
		{name: "direct", err: E(KindQueue, "reserve", base), expected: KindQueue},
		{name: "wrapped", err: fmt.Errorf("outer: %w", E(KindRecordMissing, "find", base)), expected: KindRecordMissing},
		{name: "outermost wins", err: E(KindJobFailed, "execute", E(KindQueue, "ack", base)), expected: KindJobFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, KindOf(tt.err))
		})
	}
}

func TestRootCause(t *testing.T) {
	base := errors.New("timeout")
	err := E(KindJobFailed, "execute", fmt.Errorf("bulk: %w", base))

	require.Equal(t, base, RootCause(err))
	assert.Equal(t, "execute: bulk: timeout", err.Error())
	assert.Nil(t, RootCause(nil))
}
