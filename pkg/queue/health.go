package queue

import (
	"context"
	"time"

	"github.com/catalogops/enrichment-pipeline/pkg/models"
)

// runHealthMonitor ticks every healthInterval, evicting expired cached
// results and recovering workers stuck in ERROR or stuck BUSY on the same
// task past stuckThreshold (spec §4.5), mirroring the teacher's
// pkg/queue/orphan.go periodic-ticker pattern.
func (p *Pool) runHealthMonitor(ctx context.Context) {
	interval := p.healthInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.evictExpiredResults()
			p.recoverWorkers()
		}
	}
}

// evictExpiredResults removes cache entries older than resultTTL,
// measured from each Result's publish timestamp. The reference
// implementation this repository is based on evicted by comparing a
// duration (execution time) against a timestamp, which is wrong; TTL is
// measured from PublishedAt here instead.
func (p *Pool) evictExpiredResults() {
	ttl := p.resultTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	cutoff := time.Now().Add(-ttl)

	p.resultsMu.Lock()
	defer p.resultsMu.Unlock()
	for taskID, result := range p.results {
		if result.PublishedAt.Before(cutoff) {
			delete(p.results, taskID)
		}
	}
}

func (p *Pool) recoverWorkers() {
	threshold := p.stuckThreshold
	if threshold <= 0 {
		threshold = 300 * time.Second
	}

	for _, w := range p.workers {
		w.mu.Lock()
		switch {
		case w.status == models.WorkerError:
			w.logger.Warn("resetting worker from ERROR to IDLE")
			w.status = models.WorkerIdle
			w.errorCount = 0
			w.currentTaskID = ""
		case w.status == models.WorkerBusy && !w.taskStartedAt.IsZero() && time.Since(w.taskStartedAt) > threshold:
			w.logger.Warn("worker stuck past threshold, resetting to IDLE", "task_id", w.currentTaskID, "busy_for", time.Since(w.taskStartedAt))
			w.status = models.WorkerIdle
			w.currentTaskID = ""
		}
		w.mu.Unlock()
	}
}
