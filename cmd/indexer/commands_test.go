package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueByAlias(t *testing.T) {
	cfg := &config.Config{Queue: config.QueueConfig{BatchName: "indexer", LiveName: "indexer.live"}}

	tests := []struct {
		alias   string
		want    string
		wantErr bool
	}{
		{alias: "batch", want: "indexer"},
		{alias: "", want: "indexer"},
		{alias: "live", want: "indexer.live"},
		{alias: "indexer.live", want: "indexer.live"},
		{alias: "other", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.alias, func(t *testing.T) {
			got, err := queueByAlias(cfg, tt.alias)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWriteBuildReport(t *testing.T) {
	var out bytes.Buffer
	writeBuildReport(&out, &domain.BuildReport{
		IndexPostfix:  "1700000000",
		Workspaces:    map[string]int{"user-admin": 12, "live": 520},
		Batches:       4,
		AliasSwitches: 1,
		System: domain.SystemReport{
			MemoryUsage:   64 << 20,
			ExecutionTime: 1500 * time.Millisecond,
			Queues:        []domain.QueueStatus{{Name: "indexer", Ready: 5}},
		},
	})

	text := out.String()
	assert.Contains(t, text, "Index generation: 1700000000\n")
	assert.Contains(t, text, "  workspace live: 520 records\n  workspace user-admin: 12 records\n")
	assert.Contains(t, text, "Queued 4 indexing jobs and 1 alias switch jobs\n")
	assert.Contains(t, text, "Pending Jobs   : 5\n")
}

func TestCommandsAreRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"build", "work", "flush", "status", "serve", "migrate"} {
		assert.True(t, names[want], "missing command %s", want)
	}

	flag := workCmd.Flags().Lookup("exit-after")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
	assert.NotNil(t, buildCmd.Flags().Lookup("workspace"))
	assert.NotNil(t, serveCmd.Flags().Lookup("with-worker"))
}
