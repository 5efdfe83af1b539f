package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/oceanguard/hazard-engine/internal/analysis"
	"github.com/oceanguard/hazard-engine/internal/broadcast"
	"github.com/oceanguard/hazard-engine/internal/db"
	"github.com/oceanguard/hazard-engine/pkg/models"
)

// memStore mimics the transactional semantics of the Postgres store: a pass
// either applies the report update, the in-transaction group load, the fuse
// and the event upsert together, or none of them.
type memStore struct {
	mu           sync.Mutex
	reports      map[int64]*models.Report
	events       map[int64]*models.HazardEvent // keyed by group id
	nextReportID int64
	nextEventID  int64
	failSave     bool
}

func newMemStore() *memStore {
	return &memStore{
		reports: make(map[int64]*models.Report),
		events:  make(map[int64]*models.HazardEvent),
	}
}

func (m *memStore) GetReport(_ context.Context, id int64) (models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		return models.Report{}, db.ErrNotFound
	}
	return *r, nil
}

func (m *memStore) InsertReport(_ context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextReportID++
	r.ID = m.nextReportID
	r.CreatedAt = time.Now().UTC()
	stored := *r
	m.reports[r.ID] = &stored
	return nil
}

func (m *memStore) ListProcessedReports(_ context.Context, excludeID int64) ([]models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Report
	for _, r := range m.reports {
		if r.Processed && r.ID != excludeID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UnprocessedReportIDs(_ context.Context, limit int) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []int64
	for _, r := range m.reports {
		if !r.Processed {
			ids = append(ids, r.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memStore) CountUnprocessed(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reports {
		if !r.Processed {
			n++
		}
	}
	return n, nil
}

func (m *memStore) MaxGroupID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var max int64
	for _, r := range m.reports {
		if r.GroupID > max {
			max = r.GroupID
		}
	}
	return max, nil
}

func (m *memStore) GetEventByGroup(_ context.Context, groupID int64) (models.HazardEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[groupID]
	if !ok {
		return models.HazardEvent{}, db.ErrNotFound
	}
	return *e, nil
}

func (m *memStore) SaveProcessingResult(_ context.Context, r *models.Report, fuse db.FuseFunc) (models.HazardEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return models.HazardEvent{}, errors.New("injected save failure")
	}

	stored, ok := m.reports[r.ID]
	if !ok {
		return models.HazardEvent{}, db.ErrNotFound
	}
	if stored.Processed {
		e, ok := m.events[stored.GroupID]
		if !ok {
			return models.HazardEvent{}, db.ErrNotFound
		}
		return *e, nil
	}

	stored.NLPKind = r.NLPKind
	stored.NLPConfidence = r.NLPConfidence
	stored.NLPKeywords = r.NLPKeywords
	stored.SeverityBoost = r.SeverityBoost
	stored.Credibility = r.Credibility
	stored.GroupID = r.GroupID
	stored.Processed = true

	var members []models.Report
	for _, rep := range m.reports {
		if rep.Processed && rep.GroupID == r.GroupID {
			members = append(members, *rep)
		}
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

	snapshot := fuse(members)
	evidence, err := json.Marshal(snapshot.Evidence)
	if err != nil {
		return models.HazardEvent{}, err
	}

	now := time.Now().UTC()
	e, ok := m.events[snapshot.GroupID]
	if !ok {
		m.nextEventID++
		e = &models.HazardEvent{ID: m.nextEventID, GroupID: snapshot.GroupID, CreatedAt: now}
		m.events[snapshot.GroupID] = e
	}
	if !e.Status.Terminal() {
		e.Status = snapshot.Status
		e.Confidence = snapshot.Confidence
	}
	e.Kind = snapshot.Kind
	e.Severity = snapshot.Severity
	e.Latitude = snapshot.Latitude
	e.Longitude = snapshot.Longitude
	e.Evidence = evidence
	e.UpdatedAt = now
	return *e, nil
}

func (m *memStore) report(t *testing.T, id int64) models.Report {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[id]
	if !ok {
		t.Fatalf("report %d not in store", id)
	}
	return *r
}

func (m *memStore) pinEvent(groupID int64, status models.EventStatus, confidence float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[groupID]
	e.Status = status
	e.Confidence = confidence
}

type recordedFrame struct {
	topic   string
	payload any
}

type frameRecorder struct {
	mu     sync.Mutex
	frames []recordedFrame
}

func (f *frameRecorder) Publish(topic string, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, recordedFrame{topic: topic, payload: payload})
}

func (f *frameRecorder) count(topic string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.topic == topic {
			n++
		}
	}
	return n
}

type alertRecorder struct {
	mu    sync.Mutex
	calls []models.HazardSnapshot
}

func (a *alertRecorder) EmitFromSnapshot(snapshot models.HazardSnapshot, _ int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, snapshot)
}

func (a *alertRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func newTestPipeline(t *testing.T, store *memStore) (*Pipeline, *frameRecorder, *alertRecorder) {
	t.Helper()
	classifier, err := analysis.NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	frames := &frameRecorder{}
	alerts := &alertRecorder{}
	return New(store, classifier, frames, alerts, Options{Workers: 2, QueueSize: 16}), frames, alerts
}

func insertReport(t *testing.T, store *memStore, r models.Report) int64 {
	t.Helper()
	if err := store.InsertReport(context.Background(), &r); err != nil {
		t.Fatalf("InsertReport() error = %v", err)
	}
	return r.ID
}

func marinaFloodReport(ts time.Time) models.Report {
	return models.Report{
		Source:    models.SourceCitizen,
		Text:      "Flood water rising near Marina Beach, roads submerged",
		Latitude:  13.0499,
		Longitude: 80.2824,
		Timestamp: ts,
	}
}

func TestProcess_SingleCitizenReport(t *testing.T) {
	store := newMemStore()
	pipe, frames, alerts := newTestPipeline(t, store)
	id := insertReport(t, store, marinaFloodReport(time.Now().UTC().Add(-10*time.Minute)))

	if err := pipe.Process(context.Background(), id); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	r := store.report(t, id)
	if !r.Processed {
		t.Fatal("report not marked processed")
	}
	if r.NLPKind != models.KindFlood {
		t.Errorf("NLPKind = %v, want %v", r.NLPKind, models.KindFlood)
	}
	if r.GroupID != 1 {
		t.Errorf("GroupID = %d, want 1", r.GroupID)
	}
	if r.Credibility <= 0 || r.Credibility >= 1 {
		t.Errorf("Credibility = %v, want inside (0, 1)", r.Credibility)
	}

	event, err := store.GetEventByGroup(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetEventByGroup() error = %v", err)
	}
	if event.Kind != models.KindFlood {
		t.Errorf("event Kind = %v, want %v", event.Kind, models.KindFlood)
	}
	if event.Status != models.StatusReview {
		t.Errorf("event Status = %v, want %v (one uncorroborated citizen report)", event.Status, models.StatusReview)
	}
	if event.Confidence >= 0.3 {
		t.Errorf("event Confidence = %v, want < 0.3 for a single citizen report", event.Confidence)
	}

	if got := frames.count(broadcast.TopicReportProcessed); got != 1 {
		t.Errorf("report_processed frames = %d, want 1", got)
	}
	if got := frames.count(broadcast.TopicHazardUpdated); got != 1 {
		t.Errorf("hazard_updated frames = %d, want 1", got)
	}
	if got := frames.count(broadcast.TopicEmergencyAlert); got != 0 {
		t.Errorf("emergency_alert frames = %d, want 0", got)
	}
	if alerts.count() != 0 {
		t.Errorf("alerts emitted = %d, want 0", alerts.count())
	}
	if got := pipe.Snapshot().Processed; got != 1 {
		t.Errorf("Snapshot().Processed = %d, want 1", got)
	}
}

func TestProcess_Idempotent(t *testing.T) {
	store := newMemStore()
	pipe, frames, _ := newTestPipeline(t, store)
	id := insertReport(t, store, marinaFloodReport(time.Now().UTC()))

	if err := pipe.Process(context.Background(), id); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	if err := pipe.Process(context.Background(), id); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}

	if got := frames.count(broadcast.TopicReportProcessed); got != 1 {
		t.Errorf("report_processed frames = %d, want 1 (reprocessing must be a no-op)", got)
	}
	if got := pipe.Snapshot().Processed; got != 1 {
		t.Errorf("Snapshot().Processed = %d, want 1", got)
	}
}

func TestProcess_GroupsNearbyReports(t *testing.T) {
	store := newMemStore()
	pipe, _, _ := newTestPipeline(t, store)
	now := time.Now().UTC()

	first := insertReport(t, store, marinaFloodReport(now.Add(-10*time.Minute)))
	second := insertReport(t, store, models.Report{
		Source:    models.SourceCitizen,
		Text:      "Flooding near Marina Beach, water everywhere on the roads",
		Latitude:  13.0512,
		Longitude: 80.2801,
		Timestamp: now.Add(-8 * time.Minute),
	})
	third := insertReport(t, store, models.Report{
		Source:    models.SourceCitizen,
		Text:      "Earthquake tremors felt across Shimla this morning",
		Latitude:  31.1048,
		Longitude: 77.1734,
		Timestamp: now.Add(-9 * time.Minute),
	})

	for _, id := range []int64{first, second, third} {
		if err := pipe.Process(context.Background(), id); err != nil {
			t.Fatalf("Process(%d) error = %v", id, err)
		}
	}

	r1, r2, r3 := store.report(t, first), store.report(t, second), store.report(t, third)
	if r1.GroupID != r2.GroupID {
		t.Errorf("nearby flood reports split: group %d vs %d", r1.GroupID, r2.GroupID)
	}
	if r3.GroupID == r1.GroupID {
		t.Errorf("distant earthquake report joined flood group %d", r1.GroupID)
	}
	if r3.NLPKind != models.KindEarthquake {
		t.Errorf("NLPKind = %v, want %v", r3.NLPKind, models.KindEarthquake)
	}

	event, err := store.GetEventByGroup(context.Background(), r1.GroupID)
	if err != nil {
		t.Fatalf("GetEventByGroup() error = %v", err)
	}
	var ev models.Evidence
	if err := json.Unmarshal(event.Evidence, &ev); err != nil {
		t.Fatalf("evidence unmarshal error = %v", err)
	}
	if ev.ReportCount != 2 {
		t.Errorf("evidence ReportCount = %d, want 2", ev.ReportCount)
	}
}

func TestProcess_LoraOverridesClassifier(t *testing.T) {
	store := newMemStore()
	pipe, frames, alerts := newTestPipeline(t, store)
	id := insertReport(t, store, models.Report{
		Source:    models.SourceLora,
		Text:      "EMERGENCY SOS from LoRa device LORA-042. Immediate assistance required!",
		Latitude:  12.9716,
		Longitude: 77.5946,
		Timestamp: time.Now().UTC(),
	})

	if err := pipe.Process(context.Background(), id); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	r := store.report(t, id)
	if r.NLPKind != models.KindEmergency {
		t.Errorf("NLPKind = %v, want %v", r.NLPKind, models.KindEmergency)
	}
	if r.NLPConfidence != 0.99 {
		t.Errorf("NLPConfidence = %v, want 0.99", r.NLPConfidence)
	}

	event, err := store.GetEventByGroup(context.Background(), r.GroupID)
	if err != nil {
		t.Fatalf("GetEventByGroup() error = %v", err)
	}
	if event.Status != models.StatusEmergency {
		t.Errorf("event Status = %v, want %v", event.Status, models.StatusEmergency)
	}
	if got := frames.count(broadcast.TopicEmergencyAlert); got != 1 {
		t.Errorf("emergency_alert frames = %d, want 1", got)
	}
	if alerts.count() != 1 {
		t.Errorf("alerts emitted = %d, want 1", alerts.count())
	}
}

func TestProcess_SaveFailureLeavesReportUnprocessed(t *testing.T) {
	store := newMemStore()
	pipe, frames, _ := newTestPipeline(t, store)
	id := insertReport(t, store, marinaFloodReport(time.Now().UTC()))

	store.failSave = true
	if err := pipe.Process(context.Background(), id); err == nil {
		t.Fatal("Process() error = nil, want injected failure")
	}

	r := store.report(t, id)
	if r.Processed {
		t.Fatal("report marked processed after failed save")
	}
	if len(frames.frames) != 0 {
		t.Errorf("frames published after failed save = %d, want 0", len(frames.frames))
	}

	ids, err := store.UnprocessedReportIDs(context.Background(), 10)
	if err != nil {
		t.Fatalf("UnprocessedReportIDs() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("UnprocessedReportIDs() = %v, want [%d]", ids, id)
	}

	// The sweeper's retry path: same pass, failure cleared.
	store.failSave = false
	if err := pipe.Process(context.Background(), id); err != nil {
		t.Fatalf("retry Process() error = %v", err)
	}
	if !store.report(t, id).Processed {
		t.Fatal("report not processed after retry")
	}
}

func TestProcess_PinnedEventKeepsAdminDecision(t *testing.T) {
	store := newMemStore()
	pipe, frames, _ := newTestPipeline(t, store)
	now := time.Now().UTC()

	first := insertReport(t, store, marinaFloodReport(now.Add(-10*time.Minute)))
	if err := pipe.Process(context.Background(), first); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	groupID := store.report(t, first).GroupID
	store.pinEvent(groupID, models.StatusApproved, 0.66)

	second := insertReport(t, store, marinaFloodReport(now.Add(-9*time.Minute)))
	if err := pipe.Process(context.Background(), second); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	event, err := store.GetEventByGroup(context.Background(), groupID)
	if err != nil {
		t.Fatalf("GetEventByGroup() error = %v", err)
	}
	if event.Status != models.StatusApproved {
		t.Errorf("event Status = %v, want %v (admin pin must survive refuse)", event.Status, models.StatusApproved)
	}
	if event.Confidence != 0.66 {
		t.Errorf("event Confidence = %v, want pinned 0.66", event.Confidence)
	}

	var ev models.Evidence
	if err := json.Unmarshal(event.Evidence, &ev); err != nil {
		t.Fatalf("evidence unmarshal error = %v", err)
	}
	if ev.ReportCount != 2 {
		t.Errorf("evidence ReportCount = %d, want 2 (evidence still refreshes under a pin)", ev.ReportCount)
	}

	// Status and confidence band were pinned, so the second pass must not
	// announce a hazard update.
	if got := frames.count(broadcast.TopicHazardUpdated); got != 1 {
		t.Errorf("hazard_updated frames = %d, want 1", got)
	}
	if got := frames.count(broadcast.TopicReportProcessed); got != 2 {
		t.Errorf("report_processed frames = %d, want 2", got)
	}
}

func TestFastTrack(t *testing.T) {
	store := newMemStore()
	pipe, frames, alerts := newTestPipeline(t, store)

	// An unrelated incident already owns group 1.
	seed := insertReport(t, store, marinaFloodReport(time.Now().UTC()))
	if err := pipe.Process(context.Background(), seed); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	r := models.Report{
		Text:      "EMERGENCY SOS from LoRa device LORA-007. Immediate assistance required!",
		Latitude:  12.9716,
		Longitude: 77.5946,
		UserID:    "LORA-007",
	}
	event, err := pipe.FastTrack(context.Background(), &r)
	if err != nil {
		t.Fatalf("FastTrack() error = %v", err)
	}

	if r.ID == 0 {
		t.Fatal("FastTrack did not persist the report")
	}
	stored := store.report(t, r.ID)
	if !stored.Processed {
		t.Fatal("fast-tracked report not marked processed")
	}
	if stored.Source != models.SourceLora {
		t.Errorf("Source = %v, want %v", stored.Source, models.SourceLora)
	}
	if stored.Credibility != 0.95 {
		t.Errorf("Credibility = %v, want 0.95", stored.Credibility)
	}
	if stored.GroupID == 1 {
		t.Error("fast-tracked report reused an existing group, want a fresh one")
	}

	if event.Status != models.StatusEmergency {
		t.Errorf("event Status = %v, want %v", event.Status, models.StatusEmergency)
	}
	if event.Confidence != 0.99 {
		t.Errorf("event Confidence = %v, want 0.99", event.Confidence)
	}
	if event.Severity != 5 {
		t.Errorf("event Severity = %d, want 5", event.Severity)
	}
	if event.Latitude != r.Latitude || event.Longitude != r.Longitude {
		t.Errorf("event position = (%v, %v), want beacon position (%v, %v)",
			event.Latitude, event.Longitude, r.Latitude, r.Longitude)
	}

	if got := frames.count(broadcast.TopicEmergencyAlert); got != 1 {
		t.Errorf("emergency_alert frames = %d, want 1", got)
	}
	if got := frames.count(broadcast.TopicHazardUpdated); got != 2 {
		t.Errorf("hazard_updated frames = %d, want 2 (seed report + beacon)", got)
	}
	if alerts.count() != 1 {
		t.Errorf("alerts emitted = %d, want 1", alerts.count())
	}
}

func TestEnqueue_FullQueueDoesNotBlock(t *testing.T) {
	store := newMemStore()
	classifier, err := analysis.NewClassifier()
	if err != nil {
		t.Fatalf("NewClassifier() error = %v", err)
	}
	pipe := New(store, classifier, &frameRecorder{}, nil, Options{Workers: 1, QueueSize: 1})

	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe.Enqueue(1)
		pipe.Enqueue(2) // queue full, must drop instead of blocking
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
	if got := pipe.QueueDepth(); got != 1 {
		t.Errorf("QueueDepth() = %d, want 1", got)
	}
}

func TestSweeper_ReplaysBacklog(t *testing.T) {
	store := newMemStore()
	pipe, _, _ := newTestPipeline(t, store)
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		insertReport(t, store, marinaFloodReport(now.Add(time.Duration(-i)*time.Minute)))
	}

	sweeper := NewSweeper(store, pipe, time.Hour)
	sweeper.sweep(context.Background())

	if got := pipe.QueueDepth(); got != 3 {
		t.Errorf("QueueDepth() after sweep = %d, want 3", got)
	}
}

func TestRun_WorkersDrainQueue(t *testing.T) {
	store := newMemStore()
	pipe, frames, _ := newTestPipeline(t, store)
	now := time.Now().UTC()

	chennai := insertReport(t, store, marinaFloodReport(now.Add(-5*time.Minute)))
	shimla := insertReport(t, store, models.Report{
		Source:    models.SourceCitizen,
		Text:      "Landslide blocking the highway near Shimla, debris on the road",
		Latitude:  31.1048,
		Longitude: 77.1734,
		Timestamp: now.Add(-4 * time.Minute),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		pipe.Run(ctx)
	}()

	pipe.Enqueue(chennai)
	pipe.Enqueue(shimla)

	deadline := time.After(5 * time.Second)
	for {
		n, err := store.CountUnprocessed(context.Background())
		if err != nil {
			t.Fatalf("CountUnprocessed() error = %v", err)
		}
		if n == 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("workers did not drain the queue, %d reports still unprocessed", n)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}

	r1, r2 := store.report(t, chennai), store.report(t, shimla)
	if r1.GroupID == r2.GroupID {
		t.Errorf("unrelated incidents share group %d", r1.GroupID)
	}
	if got := frames.count(broadcast.TopicReportProcessed); got != 2 {
		t.Errorf("report_processed frames = %d, want 2", got)
	}
}
