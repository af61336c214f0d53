package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ProgressService is implemented by services.ProjectServiceImpl.
type ProgressService interface {
	RecalculateProgress(db *gorm.DB, id uuid.UUID, now time.Time) (int, error)
	RefreshAllProgress(db *gorm.DB, now time.Time) (int, error)
}

// RegisterProgressHandlers binds both progress job types to svc.
func RegisterProgressHandlers(w *Worker, db *gorm.DB, svc ProgressService) {
	w.RegisterHandler(JobTypeRecomputeProgress, func(ctx context.Context, job *Job) error {
		raw, _ := job.Payload["project_id"].(string)
		id, err := uuid.FromString(raw)
		if err != nil {
			return fmt.Errorf("invalid project_id %q: %w", raw, err)
		}
		progress, err := svc.RecalculateProgress(db.WithContext(ctx), id, w.now())
		if err != nil {
			return err
		}
		w.log.Debug("progress recomputed", zap.Stringer("project_id", id), zap.Int("progress", progress))
		return nil
	})

	w.RegisterHandler(JobTypeRefreshAllProgress, func(ctx context.Context, job *Job) error {
		n, err := svc.RefreshAllProgress(db.WithContext(ctx), w.now())
		if err != nil {
			return err
		}
		w.log.Info("progress refreshed", zap.Int("projects", n))
		return nil
	})
}

// EnqueueRecompute schedules a progress recompute for one project.
func (q *JobQueue) EnqueueRecompute(projectID uuid.UUID) error {
	return q.Enqueue(QueueDefault, JobTypeRecomputeProgress, map[string]interface{}{
		"project_id": projectID.String(),
	})
}

func (q *JobQueue) EnqueueRefreshAll() error {
	return q.Enqueue(QueueDefault, JobTypeRefreshAllProgress, nil)
}

// RunRefreshTicker enqueues a refresh of every project each interval until
// ctx is done.
func RunRefreshTicker(ctx context.Context, q *JobQueue, interval time.Duration, log *zap.Logger) {
	if interval <= 0 {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := q.EnqueueRefreshAll(); err != nil {
				log.Warn("failed to enqueue progress refresh", zap.Error(err))
			}
		}
	}
}
