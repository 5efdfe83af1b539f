// Package pipeline turns raw hazard reports into fused hazard events. Each
// pass classifies a report, scores its credibility, assigns it to a spatial
// group, re-fuses the group inside one transaction and broadcasts the state
// changes that resulted.
//
// Workers pull report ids from a bounded queue. Group assignment is
// serialized under a single mutex so new-group allocation never races; fusion
// and persistence run under a per-group mutex so distinct groups proceed in
// parallel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/internal/broadcast"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/internal/metrics"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// Credibility assigned to beacon reports on the fast path. A beacon press
// carries no text worth scoring; the device channel itself is the evidence.
const emergencyCredibility = 0.95

// Store is the persistence surface the pipeline depends on. *db.PostgresStore
// implements it; tests substitute an in-memory store.
type Store interface {
	GetReport(ctx context.Context, id int64) (models.Report, error)
	InsertReport(ctx context.Context, r *models.Report) error
	ListProcessedReports(ctx context.Context, excludeID int64) ([]models.Report, error)
	UnprocessedReportIDs(ctx context.Context, limit int) ([]int64, error)
	CountUnprocessed(ctx context.Context) (int, error)
	MaxGroupID(ctx context.Context) (int64, error)
	GetEventByGroup(ctx context.Context, groupID int64) (models.HazardEvent, error)
	SaveProcessingResult(ctx context.Context, r *models.Report, fuse db.FuseFunc) (models.HazardEvent, error)
}

// Broadcaster pushes typed frames to live subscribers.
type Broadcaster interface {
	Publish(topic string, payload any)
}

// Alerter records alert-worthy snapshots and forwards them to the configured
// webhook.
type Alerter interface {
	EmitFromSnapshot(snapshot models.HazardSnapshot, eventID int64)
}

// Options tune the worker pool. Zero values fall back to defaults.
type Options struct {
	Workers   int
	QueueSize int
}

// Pipeline owns the worker pool and the locking that keeps group assignment
// and fusion consistent across workers.
type Pipeline struct {
	store      Store
	classifier *analysis.Classifier
	hub        Broadcaster
	alerts     Alerter

	jobs    chan int64
	workers int

	// assignMu serializes group assignment. lastGroup tracks the highest
	// group id ever handed out, including allocations not yet committed,
	// which the database cannot see.
	assignMu    sync.Mutex
	groupSeeded bool
	lastGroup   int64

	// muMu guards groupLocks. Group mutexes are never removed: the map
	// grows with the number of distinct incidents, which is small.
	muMu       sync.Mutex
	groupLocks map[int64]*sync.Mutex

	processed atomic.Int64
	failed    atomic.Int64
}

// New builds a pipeline. Run must be called before Enqueue has any effect.
func New(store Store, classifier *analysis.Classifier, hub Broadcaster, alerts Alerter, opts Options) *Pipeline {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queue := opts.QueueSize
	if queue <= 0 {
		queue = 256
	}
	return &Pipeline{
		store:      store,
		classifier: classifier,
		hub:        hub,
		alerts:     alerts,
		jobs:       make(chan int64, queue),
		workers:    workers,
		groupLocks: make(map[int64]*sync.Mutex),
	}
}

// Run starts the worker pool and blocks until ctx is cancelled and every
// worker has drained its current job.
func (p *Pipeline) Run(ctx context.Context) {
	log.Info().
		Str("component", "pipeline").
		Int("workers", p.workers).
		Int("queue_size", cap(p.jobs)).
		Msg("processing pipeline started")

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.jobs:
					metrics.QueueDepth.Set(float64(len(p.jobs)))
					if err := p.Process(ctx, id); err != nil {
						p.failed.Add(1)
						metrics.ProcessingFailures.Inc()
						log.Error().Err(err).
							Int("worker", worker).
							Int64("report_id", id).
							Msg("report processing failed, left for the sweeper")
					}
				}
			}
		}(i)
	}
	wg.Wait()
	log.Info().Str("component", "pipeline").Msg("processing pipeline stopped")
}

// Enqueue hands a report id to the worker pool. It never blocks: when the
// queue is full the report stays unprocessed and the sweeper retries it.
func (p *Pipeline) Enqueue(id int64) {
	select {
	case p.jobs <- id:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
	default:
		log.Warn().Int64("report_id", id).Msg("processing queue full, report deferred to sweeper")
	}
}

// QueueDepth returns the number of reports waiting for a worker.
func (p *Pipeline) QueueDepth() int {
	return len(p.jobs)
}

// Stats is the live worker-pool snapshot for the operations endpoint.
type Stats struct {
	Workers    int   `json:"workers"`
	QueueDepth int   `json:"queue_depth"`
	Processed  int64 `json:"processed"`
	Failed     int64 `json:"failed"`
}

// Snapshot returns current pool counters.
func (p *Pipeline) Snapshot() Stats {
	return Stats{
		Workers:    p.workers,
		QueueDepth: len(p.jobs),
		Processed:  p.processed.Load(),
		Failed:     p.failed.Load(),
	}
}

// processedPayload is the body of a report_processed frame.
type processedPayload struct {
	ReportID    int64              `json:"report_id"`
	GroupID     int64              `json:"group_id"`
	Kind        models.HazardKind  `json:"nlp_kind"`
	Confidence  float64            `json:"nlp_confidence"`
	Credibility float64            `json:"credibility"`
	IsDuplicate bool               `json:"is_duplicate"`
	EventID     int64              `json:"hazard_event_id"`
	EventStatus models.EventStatus `json:"event_status"`
}

// Process runs one full pass over a stored report. Reprocessing an already
// processed report is a no-op. On error the report stays unprocessed and a
// later sweep retries it.
func (p *Pipeline) Process(ctx context.Context, id int64) error {
	start := time.Now()

	r, err := p.store.GetReport(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load report %d: %w", id, err)
	}
	if r.Processed {
		return nil
	}

	// Classification and credibility are pure. Beacon reports skip the
	// classifier entirely: a button press has no text worth parsing.
	cls := p.classifier.Classify(r.Text, r.Source, r.HasMedia, r.MediaVerified)
	if r.Source == models.SourceLora {
		cls = analysis.EmergencyClassification()
	}
	cred := analysis.ScoreCredibility(r.Source, r.Text, r.Latitude, r.Longitude, r.Timestamp, r.MediaPaths, nil)

	r.NLPKind = cls.Kind
	r.NLPConfidence = cls.Confidence
	r.NLPKeywords = cls.Keywords
	r.SeverityBoost = cls.SeverityBoost
	r.Credibility = cred.Score

	decision, groupLock, err := p.assignGroup(ctx, &r)
	if err != nil {
		return err
	}
	defer groupLock.Unlock()

	prev, err := p.store.GetEventByGroup(ctx, r.GroupID)
	hadPrev := err == nil
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("failed to load event for group %d: %w", r.GroupID, err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	var snapshot models.HazardSnapshot
	fused := false
	event, err := p.store.SaveProcessingResult(ctx, &r, func(members []models.Report) models.HazardSnapshot {
		fused = true
		snapshot = analysis.Fuse(r.GroupID, members, analysis.GroupStatistics(members))
		return snapshot
	})
	if err != nil {
		return fmt.Errorf("failed to save pass for report %d (group %d): %w", r.ID, r.GroupID, err)
	}
	if !fused {
		// A concurrent pass processed this report between load and save.
		return nil
	}

	// The stored row is authoritative: admin validation may have pinned
	// status and confidence against this fuse.
	snapshot.Confidence = event.Confidence
	snapshot.Status = event.Status

	p.processed.Add(1)
	metrics.ReportsProcessed.Inc()
	metrics.FuseDuration.Observe(time.Since(start).Seconds())

	log.Info().
		Int64("report_id", r.ID).
		Str("source", string(r.Source)).
		Str("kind", string(r.NLPKind)).
		Float64("confidence", r.NLPConfidence).
		Float64("credibility", r.Credibility).
		Int64("group_id", r.GroupID).
		Bool("is_duplicate", decision.IsDuplicate).
		Str("event_status", string(event.Status)).
		Msg("report processed")

	p.hub.Publish(broadcast.TopicReportProcessed, processedPayload{
		ReportID:    r.ID,
		GroupID:     r.GroupID,
		Kind:        r.NLPKind,
		Confidence:  r.NLPConfidence,
		Credibility: r.Credibility,
		IsDuplicate: decision.IsDuplicate,
		EventID:     event.ID,
		EventStatus: event.Status,
	})

	changed := !hadPrev ||
		prev.Status != event.Status ||
		prev.ConfidenceLevel() != event.ConfidenceLevel()
	if changed {
		p.hub.Publish(broadcast.TopicHazardUpdated, event)
		if event.Status == models.StatusEmergency {
			p.hub.Publish(broadcast.TopicEmergencyAlert, event)
		}
		if p.alerts != nil && analysis.ShouldAlert(snapshot) {
			p.alerts.EmitFromSnapshot(snapshot, event.ID)
		}
	}
	return nil
}

// FastTrack ingests a beacon report and fuses its event synchronously,
// bypassing the queue and the classifier. The caller gets the stored event
// back so it can be returned to the device in the same request.
//
// When the event write fails after the report was inserted, the report stays
// unprocessed and the sweeper replays it through the normal pass, where the
// beacon override yields the same verdict.
func (p *Pipeline) FastTrack(ctx context.Context, r *models.Report) (models.HazardEvent, error) {
	cls := analysis.EmergencyClassification()
	r.Source = models.SourceLora
	r.NLPKind = cls.Kind
	r.NLPConfidence = cls.Confidence
	r.NLPKeywords = cls.Keywords
	r.SeverityBoost = cls.SeverityBoost
	r.Credibility = emergencyCredibility
	if r.Timestamp.IsZero() {
		r.Timestamp = time.Now().UTC()
	}

	if err := p.store.InsertReport(ctx, r); err != nil {
		return models.HazardEvent{}, fmt.Errorf("failed to store beacon report: %w", err)
	}

	groupLock, err := p.allocateGroup(ctx, r)
	if err != nil {
		return models.HazardEvent{}, err
	}
	defer groupLock.Unlock()

	var snapshot models.HazardSnapshot
	event, err := p.store.SaveProcessingResult(ctx, r, func([]models.Report) models.HazardSnapshot {
		snapshot = analysis.EmergencySnapshot(r.GroupID, *r)
		return snapshot
	})
	if err != nil {
		return models.HazardEvent{}, fmt.Errorf("fast path failed for report %d: %w", r.ID, err)
	}

	p.processed.Add(1)
	metrics.EmergencyReports.Inc()
	metrics.ReportsProcessed.Inc()

	log.Warn().
		Int64("report_id", r.ID).
		Int64("event_id", event.ID).
		Float64("lat", r.Latitude).
		Float64("lon", r.Longitude).
		Msg("emergency beacon fast-tracked")

	p.hub.Publish(broadcast.TopicReportProcessed, processedPayload{
		ReportID:    r.ID,
		GroupID:     r.GroupID,
		Kind:        r.NLPKind,
		Confidence:  r.NLPConfidence,
		Credibility: r.Credibility,
		EventID:     event.ID,
		EventStatus: event.Status,
	})
	p.hub.Publish(broadcast.TopicHazardUpdated, event)
	p.hub.Publish(broadcast.TopicEmergencyAlert, event)
	if p.alerts != nil {
		p.alerts.EmitFromSnapshot(snapshot, event.ID)
	}
	return event, nil
}

// assignGroup runs the clusterer over the committed processed reports and
// locks the chosen group. The assignment mutex is held until the group lock
// is acquired so that two workers can never allocate the same new group id.
func (p *Pipeline) assignGroup(ctx context.Context, r *models.Report) (models.GroupDecision, *sync.Mutex, error) {
	p.assignMu.Lock()
	if err := p.seedGroupCounterLocked(ctx); err != nil {
		p.assignMu.Unlock()
		return models.GroupDecision{}, nil, err
	}

	existing, err := p.store.ListProcessedReports(ctx, r.ID)
	if err != nil {
		p.assignMu.Unlock()
		return models.GroupDecision{}, nil, fmt.Errorf("failed to load processed reports: %w", err)
	}

	decision := analysis.FindGroup(*r, existing)
	if decision.IsDuplicate {
		if decision.GroupID > p.lastGroup {
			p.lastGroup = decision.GroupID
		}
	} else {
		// The clusterer allocates from committed rows only; bump past ids
		// handed out by passes still in flight.
		if p.lastGroup >= decision.GroupID {
			decision.GroupID = p.lastGroup + 1
		}
		p.lastGroup = decision.GroupID
	}
	r.GroupID = decision.GroupID

	lock := p.groupLock(r.GroupID)
	lock.Lock()
	p.assignMu.Unlock()
	return decision, lock, nil
}

// allocateGroup hands out a fresh group for a fast-path report.
func (p *Pipeline) allocateGroup(ctx context.Context, r *models.Report) (*sync.Mutex, error) {
	p.assignMu.Lock()
	if err := p.seedGroupCounterLocked(ctx); err != nil {
		p.assignMu.Unlock()
		return nil, err
	}
	p.lastGroup++
	r.GroupID = p.lastGroup

	lock := p.groupLock(r.GroupID)
	lock.Lock()
	p.assignMu.Unlock()
	return lock, nil
}

// seedGroupCounterLocked initializes lastGroup from storage on first use.
// Caller holds assignMu.
func (p *Pipeline) seedGroupCounterLocked(ctx context.Context) error {
	if p.groupSeeded {
		return nil
	}
	maxGroup, err := p.store.MaxGroupID(ctx)
	if err != nil {
		return fmt.Errorf("failed to seed group counter: %w", err)
	}
	if maxGroup > p.lastGroup {
		p.lastGroup = maxGroup
	}
	p.groupSeeded = true
	return nil
}

func (p *Pipeline) groupLock(groupID int64) *sync.Mutex {
	p.muMu.Lock()
	defer p.muMu.Unlock()
	lock, ok := p.groupLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		p.groupLocks[groupID] = lock
	}
	return lock
}
