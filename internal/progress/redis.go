package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	timeFormat        = "2006-01-02 15:04:05"
	syncKeyTpl        = "sync:%s:%d"       // sync:${actor}:${courseID}
	batchKeyTpl       = "sync:batch:%s:%s" // sync:batch:${actor}:${batchID}
	courseFieldPrefix = "course:"
)

// RedisTracker keeps each record as a redis hash so course statuses inside a
// batch can be written field-by-field without read-modify-write races.
type RedisTracker struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{redis: client, ttl: ttl}
}

func (t *RedisTracker) Close() error {
	if t.redis != nil {
		return t.redis.Close()
	}
	return nil
}

func syncKey(actor string, courseID int64) string {
	return fmt.Sprintf(syncKeyTpl, actor, courseID)
}

func batchKey(actor, batchID string) string {
	return fmt.Sprintf(batchKeyTpl, actor, batchID)
}

func (t *RedisTracker) Start(ctx context.Context, actor string, courseID int64) error {
	key := syncKey(actor, courseID)

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"current":          0,
		"total":            1,
		"status":           string(StatusPending),
		"message":          "",
		"error":            "",
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	})
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to start progress record: %w", err)
	}
	return nil
}

func (t *RedisTracker) Update(ctx context.Context, actor string, courseID int64, current, total int, status Status, message string) error {
	key := syncKey(actor, courseID)

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"current":          current,
		"total":            total,
		"status":           string(status),
		"message":          message,
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	})
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update progress record: %w", err)
	}
	return nil
}

func (t *RedisTracker) Get(ctx context.Context, actor string, courseID int64) (*Record, error) {
	values, err := t.redis.HGetAll(ctx, syncKey(actor, courseID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get progress record: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return recordFromHash(values), nil
}

func (t *RedisTracker) Complete(ctx context.Context, actor string, courseID int64, success bool, message, errMsg string) error {
	key := syncKey(actor, courseID)

	fields := map[string]interface{}{
		"status":           string(StatusError),
		"message":          message,
		"error":            errMsg,
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	}
	if success {
		fields["status"] = string(StatusCompleted)
		total, err := t.redis.HGet(ctx, key, "total").Result()
		if err == nil {
			fields["current"] = total
		}
	}

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete progress record: %w", err)
	}
	return nil
}

func (t *RedisTracker) Clear(ctx context.Context, actor string, courseID int64) error {
	return t.redis.Del(ctx, syncKey(actor, courseID)).Err()
}

func (t *RedisTracker) StartBatch(ctx context.Context, actor, batchID string, total int) error {
	key := batchKey(actor, batchID)

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"current":          0,
		"total":            total,
		"status":           string(StatusPending),
		"message":          "",
		"error":            "",
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	})
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to start batch record: %w", err)
	}
	return nil
}

// UpdateBatchCourse writes one course's slice of the batch. A terminal course
// status bumps the batch counter atomically.
func (t *RedisTracker) UpdateBatchCourse(ctx context.Context, actor, batchID string, courseID int64, status CourseStatus) error {
	key := batchKey(actor, batchID)

	encoded, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode course status: %w", err)
	}

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		courseFieldPrefix + strconv.FormatInt(courseID, 10): string(encoded),
		"status":           string(StatusProcessingSubmissions),
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	})
	if status.Status.Terminal() {
		pipe.HIncrBy(ctx, key, "current", 1)
	}
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update batch course: %w", err)
	}
	return nil
}

func (t *RedisTracker) GetBatch(ctx context.Context, actor, batchID string) (*BatchRecord, error) {
	values, err := t.redis.HGetAll(ctx, batchKey(actor, batchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get batch record: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	record := &BatchRecord{
		Record:  *recordFromHash(values),
		Courses: make(map[string]CourseStatus),
	}
	for field, value := range values {
		if !strings.HasPrefix(field, courseFieldPrefix) {
			continue
		}
		var status CourseStatus
		if err := json.Unmarshal([]byte(value), &status); err != nil {
			continue
		}
		record.Courses[strings.TrimPrefix(field, courseFieldPrefix)] = status
	}
	return record, nil
}

func (t *RedisTracker) CompleteBatch(ctx context.Context, actor, batchID string, success bool, message, errMsg string) error {
	key := batchKey(actor, batchID)

	status := StatusError
	if success {
		status = StatusCompleted
	}

	pipe := t.redis.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":           string(status),
		"message":          message,
		"error":            errMsg,
		"updated_dttm_utc": time.Now().UTC().Format(timeFormat),
	})
	pipe.Expire(ctx, key, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete batch record: %w", err)
	}
	return nil
}

func (t *RedisTracker) ClearBatch(ctx context.Context, actor, batchID string) error {
	return t.redis.Del(ctx, batchKey(actor, batchID)).Err()
}

func recordFromHash(values map[string]string) *Record {
	current, _ := strconv.Atoi(values["current"])
	total, _ := strconv.Atoi(values["total"])
	updated, _ := time.Parse(timeFormat, values["updated_dttm_utc"])

	return &Record{
		Current:   current,
		Total:     total,
		Status:    Status(values["status"]),
		Message:   values["message"],
		Error:     values["error"],
		UpdatedAt: updated,
	}
}
