package progress

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// MemoryTracker is the single-process fallback used when no redis URL is
// configured, and in tests. Entries expire lazily on access.
type MemoryTracker struct {
	mu      sync.RWMutex
	ttl     time.Duration
	records map[string]*memoryEntry
	batches map[string]*batchEntry
	now     func() time.Time
}

type memoryEntry struct {
	record    Record
	expiresAt time.Time
}

type batchEntry struct {
	record    BatchRecord
	expiresAt time.Time
}

func NewMemoryTracker(ttl time.Duration) *MemoryTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryTracker{
		ttl:     ttl,
		records: make(map[string]*memoryEntry),
		batches: make(map[string]*batchEntry),
		now:     time.Now,
	}
}

func (t *MemoryTracker) Start(ctx context.Context, actor string, courseID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	now := t.now()
	t.records[syncKey(actor, courseID)] = &memoryEntry{
		record: Record{
			Current:   0,
			Total:     1,
			Status:    StatusPending,
			UpdatedAt: now.UTC(),
		},
		expiresAt: now.Add(t.ttl),
	}
	return nil
}

func (t *MemoryTracker) Update(ctx context.Context, actor string, courseID int64, current, total int, status Status, message string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := syncKey(actor, courseID)
	entry, ok := t.records[key]
	if !ok {
		return fmt.Errorf("no progress record for course %d", courseID)
	}

	now := t.now()
	entry.record.Current = current
	entry.record.Total = total
	entry.record.Status = status
	entry.record.Message = message
	entry.record.UpdatedAt = now.UTC()
	entry.expiresAt = now.Add(t.ttl)
	return nil
}

func (t *MemoryTracker) Get(ctx context.Context, actor string, courseID int64) (*Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.records[syncKey(actor, courseID)]
	if !ok || t.now().After(entry.expiresAt) {
		return nil, nil
	}
	record := entry.record
	return &record, nil
}

func (t *MemoryTracker) Complete(ctx context.Context, actor string, courseID int64, success bool, message, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := syncKey(actor, courseID)
	entry, ok := t.records[key]
	if !ok {
		return fmt.Errorf("no progress record for course %d", courseID)
	}

	now := t.now()
	if success {
		entry.record.Status = StatusCompleted
		entry.record.Current = entry.record.Total
	} else {
		entry.record.Status = StatusError
	}
	entry.record.Message = message
	entry.record.Error = errMsg
	entry.record.UpdatedAt = now.UTC()
	entry.expiresAt = now.Add(t.ttl)
	return nil
}

func (t *MemoryTracker) Clear(ctx context.Context, actor string, courseID int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.records, syncKey(actor, courseID))
	return nil
}

func (t *MemoryTracker) StartBatch(ctx context.Context, actor, batchID string, total int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sweepLocked()
	now := t.now()
	t.batches[batchKey(actor, batchID)] = &batchEntry{
		record: BatchRecord{
			Record: Record{
				Current:   0,
				Total:     total,
				Status:    StatusPending,
				UpdatedAt: now.UTC(),
			},
			Courses: make(map[string]CourseStatus),
		},
		expiresAt: now.Add(t.ttl),
	}
	return nil
}

func (t *MemoryTracker) UpdateBatchCourse(ctx context.Context, actor, batchID string, courseID int64, status CourseStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := batchKey(actor, batchID)
	entry, ok := t.batches[key]
	if !ok {
		return fmt.Errorf("no batch record %s", batchID)
	}

	now := t.now()
	entry.record.Courses[strconv.FormatInt(courseID, 10)] = status
	entry.record.Status = StatusProcessingSubmissions
	if status.Status.Terminal() {
		entry.record.Current++
	}
	entry.record.UpdatedAt = now.UTC()
	entry.expiresAt = now.Add(t.ttl)
	return nil
}

func (t *MemoryTracker) GetBatch(ctx context.Context, actor, batchID string) (*BatchRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.batches[batchKey(actor, batchID)]
	if !ok || t.now().After(entry.expiresAt) {
		return nil, nil
	}

	record := entry.record
	record.Courses = make(map[string]CourseStatus, len(entry.record.Courses))
	for id, status := range entry.record.Courses {
		record.Courses[id] = status
	}
	return &record, nil
}

func (t *MemoryTracker) CompleteBatch(ctx context.Context, actor, batchID string, success bool, message, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := batchKey(actor, batchID)
	entry, ok := t.batches[key]
	if !ok {
		return fmt.Errorf("no batch record %s", batchID)
	}

	now := t.now()
	if success {
		entry.record.Status = StatusCompleted
	} else {
		entry.record.Status = StatusError
	}
	entry.record.Message = message
	entry.record.Error = errMsg
	entry.record.UpdatedAt = now.UTC()
	entry.expiresAt = now.Add(t.ttl)
	return nil
}

func (t *MemoryTracker) ClearBatch(ctx context.Context, actor, batchID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.batches, batchKey(actor, batchID))
	return nil
}

func (t *MemoryTracker) sweepLocked() {
	now := t.now()
	for key, entry := range t.records {
		if now.After(entry.expiresAt) {
			delete(t.records, key)
		}
	}
	for key, entry := range t.batches {
		if now.After(entry.expiresAt) {
			delete(t.batches, key)
		}
	}
}
