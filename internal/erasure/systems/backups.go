package systems

import (
	"context"
	"sync"
	"time"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// BackupJobStatus tracks the per-subject backup anonymization job.
type BackupJobStatus string

const (
	BackupJobQueued    BackupJobStatus = "queued"
	BackupJobCompleted BackupJobStatus = "completed"
)

type backupJob struct {
	status    BackupJobStatus
	records   int
	updatedAt time.Time
}

// BackupSystem anonymizes subject references inside backup snapshots.
// Backup rewriting is eventually consistent: Erase queues (and in dev mode
// immediately settles) an anonymization job, and verification consults the
// last-known job status rather than re-reading snapshot contents. That is
// why backups carry a below-100% compliance threshold.
type BackupSystem struct {
	mu sync.RWMutex
	// snapshots[subject] = records referencing the subject across snapshots
	snapshots map[id.SubjectID]int
	jobs      map[id.SubjectID]*backupJob
	// settleImmediately makes queued jobs complete synchronously, which is
	// the dev/test behavior. A production deployment points this system at
	// the real snapshot-rewrite pipeline instead.
	settleImmediately bool
}

// NewBackupSystem constructs the backup anonymization system.
func NewBackupSystem() *BackupSystem {
	return &BackupSystem{
		snapshots:         make(map[id.SubjectID]int),
		jobs:              make(map[id.SubjectID]*backupJob),
		settleImmediately: true,
	}
}

// Seed records n snapshot references for the subject.
func (b *BackupSystem) Seed(subjectID id.SubjectID, n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots[subjectID] += n
}

func (b *BackupSystem) Type() models.SystemType {
	return models.SystemBackups
}

// Erase queues the subject's backup-rewrite job. Queuing for a subject with
// no snapshot references is a no-op success.
func (b *BackupSystem) Erase(ctx context.Context, subjectID id.SubjectID) (int, error) {
	return b.AnonymizeReferences(ctx, subjectID)
}

// AnonymizeReferences enqueues the anonymization job and returns the number
// of references it covers.
func (b *BackupSystem) AnonymizeReferences(_ context.Context, subjectID id.SubjectID) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	records := b.snapshots[subjectID]
	job := &backupJob{status: BackupJobQueued, records: records, updatedAt: time.Now()}
	b.jobs[subjectID] = job
	if b.settleImmediately {
		delete(b.snapshots, subjectID)
		job.status = BackupJobCompleted
		job.updatedAt = time.Now()
	}
	return records, nil
}

// ExistsForSubject reports residue based on the last-known job status.
func (b *BackupSystem) ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	count, err := b.ResidualCount(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResidualCount is zero once the anonymization job completed, or when the
// subject never appeared in any snapshot.
func (b *BackupSystem) ResidualCount(_ context.Context, subjectID id.SubjectID) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if job, ok := b.jobs[subjectID]; ok && job.status == BackupJobCompleted {
		return 0, nil
	}
	return b.snapshots[subjectID], nil
}

// JobStatus exposes the last-known job state for operational inspection.
func (b *BackupSystem) JobStatus(subjectID id.SubjectID) (BackupJobStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	job, ok := b.jobs[subjectID]
	if !ok {
		return "", false
	}
	return job.status, true
}
