package systems

import (
	"context"
	"strings"
	"sync"

	"lethe/internal/erasure/models"
	id "lethe/pkg/domain"
)

// logSampleLimit bounds how many entries a verification scan inspects.
// Log verification is sampled by design, which is why the logs system
// carries a looser compliance threshold than the primary store.
const logSampleLimit = 1000

const redactedMarker = "[redacted]"

// LogSystem redacts subject identifiers from the platform's log subsystem.
// The retained line keeps its operational value (timing, event shape) while
// the identifying token is replaced in place.
type LogSystem struct {
	mu      sync.RWMutex
	entries []string
}

// NewLogSystem constructs the log redaction system.
func NewLogSystem() *LogSystem {
	return &LogSystem{}
}

// Ingest appends raw log lines, exercised by tests and the dev pipeline.
func (l *LogSystem) Ingest(lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, lines...)
}

func (l *LogSystem) Type() models.SystemType {
	return models.SystemLogs
}

// Erase redacts every line mentioning the subject. Absent subject = no-op.
func (l *LogSystem) Erase(ctx context.Context, subjectID id.SubjectID) (int, error) {
	return l.AnonymizeReferences(ctx, subjectID)
}

// AnonymizeReferences rewrites subject identifiers to the redaction marker.
func (l *LogSystem) AnonymizeReferences(_ context.Context, subjectID id.SubjectID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	needle := string(subjectID)
	redacted := 0
	for i, line := range l.entries {
		if strings.Contains(line, needle) {
			l.entries[i] = strings.ReplaceAll(line, needle, redactedMarker)
			redacted++
		}
	}
	return redacted, nil
}

func (l *LogSystem) ExistsForSubject(ctx context.Context, subjectID id.SubjectID) (bool, error) {
	count, err := l.ResidualCount(ctx, subjectID)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ResidualCount samples the most recent entries for residual identifiers.
func (l *LogSystem) ResidualCount(_ context.Context, subjectID id.SubjectID) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	needle := string(subjectID)
	start := 0
	if len(l.entries) > logSampleLimit {
		start = len(l.entries) - logSampleLimit
	}
	count := 0
	for _, line := range l.entries[start:] {
		if strings.Contains(line, needle) {
			count++
		}
	}
	return count, nil
}
