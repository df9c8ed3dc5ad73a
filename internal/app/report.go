package app

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/domain"
	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/ports"
	"github.com/dustin/go-humanize"
)

// Reporter collects the system report for a set of queues.
type Reporter struct {
	queues ports.QueueManager
	names  []string
	start  time.Time
}

// NewReporter creates a reporter. Execution time is measured from now.
func NewReporter(queues ports.QueueManager, queueNames ...string) *Reporter {
	return &Reporter{
		queues: queues,
		names:  queueNames,
		start:  time.Now(),
	}
}

// Collect reads memory statistics and the counters of every queue.
func (r *Reporter) Collect(ctx context.Context) (*domain.SystemReport, error) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	report := &domain.SystemReport{
		MemoryUsage:   mem.Sys,
		ExecutionTime: time.Since(r.start),
	}

	for _, name := range r.names {
		status, err := QueueStatusOf(ctx, r.queues, name)
		if err != nil {
			return nil, err
		}
		report.Queues = append(report.Queues, status)
	}
	return report, nil
}

// QueueStatusOf reads the counters of one queue.
func QueueStatusOf(ctx context.Context, queues ports.QueueManager, name string) (domain.QueueStatus, error) {
	status := domain.QueueStatus{Name: name}

	q, err := queues.Queue(name)
	if err != nil {
		return status, domain.E(domain.KindQueue, "open queue "+name, err)
	}
	if status.Ready, err = q.CountReady(ctx); err != nil {
		return status, domain.E(domain.KindQueue, "count ready", err)
	}
	if status.Reserved, err = q.CountReserved(ctx); err != nil {
		return status, domain.E(domain.KindQueue, "count reserved", err)
	}
	if status.Failed, err = q.CountFailed(ctx); err != nil {
		return status, domain.E(domain.KindQueue, "count failed", err)
	}
	return status, nil
}

// WriteReport prints a report in the console layout.
func WriteReport(w io.Writer, report *domain.SystemReport) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Memory Usage   :", humanize.IBytes(report.MemoryUsage))
	fmt.Fprintln(w, "Execution time :", report.ExecutionTime.Round(time.Millisecond))
	for _, q := range report.Queues {
		fmt.Fprintln(w, "Indexing Queue :", q.Name)
		fmt.Fprintln(w, "Pending Jobs   :", q.Ready)
		fmt.Fprintln(w, "Reserved Jobs  :", q.Reserved)
		fmt.Fprintln(w, "Failed Jobs    :", q.Failed)
	}
	fmt.Fprintln(w)
}
