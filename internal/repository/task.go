package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/langchou/drivewayhub/internal/models"
)

type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// TaskRepository 副作用任务仓库
type TaskRepository struct {
	db *DB
}

// NewTaskRepository 创建任务仓库
func NewTaskRepository(db *DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func insertTask(ctx context.Context, q execQuerier, t *models.Task) error {
	if t.Status == "" {
		t.Status = models.TaskPending
	}
	if t.NextAttemptAt.IsZero() {
		t.NextAttemptAt = time.Now()
	}

	query := `
		INSERT INTO booking_tasks (booking_id, kind, payload, status, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := q.QueryRow(ctx, query, t.BookingID, t.Kind, []byte(t.Payload), t.Status, t.NextAttemptAt).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// ListDue 到期待执行的任务
func (r *TaskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.Task, error) {
	query := `
		SELECT id, booking_id, kind, payload, status, attempts, next_attempt_at, last_error, created_at, updated_at
		FROM booking_tasks
		WHERE status = 'pending' AND next_attempt_at <= $1
		ORDER BY next_attempt_at
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t := &models.Task{}
		var payload []byte
		if err := rows.Scan(
			&t.ID,
			&t.BookingID,
			&t.Kind,
			&payload,
			&t.Status,
			&t.Attempts,
			&t.NextAttemptAt,
			&t.LastError,
			&t.CreatedAt,
			&t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Payload = payload
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// MarkDone 标记完成
func (r *TaskRepository) MarkDone(ctx context.Context, id int64) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE booking_tasks SET status = 'done', attempts = attempts + 1, last_error = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark task done: %w", err)
	}
	return nil
}

// MarkRetry 记录失败并安排下次重试
func (r *TaskRepository) MarkRetry(ctx context.Context, id int64, next time.Time, lastErr string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE booking_tasks SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3, updated_at = NOW() WHERE id = $1`, id, next, lastErr)
	if err != nil {
		return fmt.Errorf("mark task retry: %w", err)
	}
	return nil
}

// MarkFailed 超过重试次数，放弃
func (r *TaskRepository) MarkFailed(ctx context.Context, id int64, lastErr string) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE booking_tasks SET status = 'failed', attempts = attempts + 1, last_error = $2, updated_at = NOW() WHERE id = $1`, id, lastErr)
	if err != nil {
		return fmt.Errorf("mark task failed: %w", err)
	}
	return nil
}
