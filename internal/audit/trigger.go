package audit

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// AnalysisRequest asks the threat engine to analyze recent activity from an IP.
type AnalysisRequest struct {
	IP         string    `json:"ip"`
	Actor      string    `json:"actor,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Analyzer runs threat analysis for one source IP. Implemented by the threat
// engine.
type Analyzer interface {
	Analyze(ctx context.Context, ip, actor string) error
}

// Publisher hands analysis requests to an external bus (Kafka) so a separate
// worker runs the analysis in multi-instance deployments. When a publisher is
// configured it replaces the in-process analyzer: exactly one of the two
// analyzes a request, never both.
type Publisher interface {
	Publish(ctx context.Context, req AnalysisRequest) error
}

const (
	analyzeTimeout = 10 * time.Second
	maxAttempts    = 3
	retryBackoff   = 500 * time.Millisecond
)

// QueueTrigger is a bounded in-process task queue decoupling request latency
// from analysis latency. Trigger never blocks: when the queue is full the
// request is dropped and counted, which is acceptable because analysis is a
// detection aid, not an access-control boundary.
type QueueTrigger struct {
	ch        chan AnalysisRequest
	analyzer  Analyzer
	publisher Publisher
	dropped   atomic.Uint64
	now       func() time.Time

	stopOnce sync.Once
	done     chan struct{}
}

// NewQueueTrigger returns a trigger with the given queue capacity. publisher
// may be nil; when set, requests are published for the worker instead of
// analyzed in-process. Call Start to begin consuming and Close to drain on
// shutdown.
func NewQueueTrigger(analyzer Analyzer, publisher Publisher, size int) *QueueTrigger {
	if size <= 0 {
		size = 256
	}
	return &QueueTrigger{
		ch:        make(chan AnalysisRequest, size),
		analyzer:  analyzer,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		done:      make(chan struct{}),
	}
}

// Trigger enqueues an analysis request. Non-blocking; drops on a full queue.
func (q *QueueTrigger) Trigger(ip, actor string) {
	req := AnalysisRequest{IP: ip, Actor: actor, EnqueuedAt: q.now()}
	select {
	case q.ch <- req:
	default:
		n := q.dropped.Add(1)
		if n%100 == 1 {
			log.Printf("audit: analysis queue full, %d requests dropped so far", n)
		}
	}
}

// Dropped returns how many requests were dropped due to a full queue.
func (q *QueueTrigger) Dropped() uint64 {
	return q.dropped.Load()
}

// Start consumes the queue until ctx is cancelled. Each request is analyzed
// with a bounded number of retry attempts; a request that still fails is
// logged and dropped, never surfaced to the operation that produced it.
func (q *QueueTrigger) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-q.ch:
				q.process(ctx, req)
			}
		}
	}()
}

// Close waits for the consumer goroutine after its context is cancelled.
func (q *QueueTrigger) Close() {
	q.stopOnce.Do(func() {
		<-q.done
	})
}

func (q *QueueTrigger) process(ctx context.Context, req AnalysisRequest) {
	// The bus and the in-process analyzer are alternatives: publishing hands
	// the request to the worker, which runs the analysis there. Running both
	// would count every incident's evidence twice.
	if q.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, analyzeTimeout)
		if err := q.publisher.Publish(pubCtx, req); err != nil {
			log.Printf("audit: publish analysis request for %s: %v", req.IP, err)
		}
		cancel()
		return
	}
	if q.analyzer == nil {
		return
	}
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		runCtx, cancel := context.WithTimeout(context.Background(), analyzeTimeout)
		err = q.analyzer.Analyze(runCtx, req.IP, req.Actor)
		cancel()
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		time.Sleep(retryBackoff * time.Duration(attempt))
	}
	log.Printf("audit: threat analysis for %s failed after %d attempts: %v", req.IP, maxAttempts, err)
}
