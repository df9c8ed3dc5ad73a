package domain

import "time"

// QueueStatus holds the message counters of one queue.
type QueueStatus struct {
	Name     string `json:"name"`
	Ready    int    `json:"ready"`
	Reserved int    `json:"reserved"`
	Failed   int    `json:"failed"`
}

// SystemReport is printed after build, flush and status.
type SystemReport struct {
	MemoryUsage   uint64        `json:"memoryUsage"`
	ExecutionTime time.Duration `json:"executionTime"`
	Queues        []QueueStatus `json:"queues"`
}

// BuildReport summarises one build.
type BuildReport struct {
	IndexPostfix  string         `json:"indexPostfix"`
	Workspaces    map[string]int `json:"workspaces"`
	Batches       int            `json:"batches"`
	AliasSwitches int            `json:"aliasSwitches"`
	System        SystemReport   `json:"system"`
}
