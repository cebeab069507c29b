package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx = ensureContext(ctx)
	var res sql.Result
	err := retryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var (
			rec             Record
			status          string
			startedAt       string
			stoppedAt       sql.NullString
			artifactPath    sql.NullString
			artifactSeconds sql.NullFloat64
			errorMessage    sql.NullString
			updatedAt       string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Dir, &rec.TotalSeconds, &rec.SegmentCount, &rec.SegmentSeconds, &status,
			&startedAt, &stoppedAt, &artifactPath, &artifactSeconds, &errorMessage, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		rec.Status = Status(status)
		rec.StartedAt = parseTime(startedAt)
		rec.StoppedAt = parseTime(stoppedAt.String)
		rec.ArtifactPath = artifactPath.String
		rec.ArtifactSeconds = artifactSeconds.Float64
		rec.ErrorMessage = errorMessage.String
		rec.UpdatedAt = parseTime(updatedAt)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return records, nil
}

// timeLayout has fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableFloat(value float64) any {
	if value <= 0 {
		return nil
	}
	return value
}

// stripLikeWildcards drops characters LIKE would treat as patterns; session
// ids are UUIDs and never contain them.
func stripLikeWildcards(value string) string {
	value = strings.ReplaceAll(value, "%", "")
	return strings.ReplaceAll(value, "_", "")
}
