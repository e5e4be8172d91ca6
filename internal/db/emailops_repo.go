package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"tippslottet/internal/monitoring"
	"tippslottet/internal/types"
)

// Error-stats thresholds: a pipeline stage with at least this many failures
// in the window is reported as a critical issue.
const criticalStageFailures = 10

// EmailOpsRepository provides data access for email operation records: the
// per-stage rows written by the senders, the aggregates consumed by the
// monitoring dashboard, and the retention archive.
type EmailOpsRepository struct {
	db DBTX
}

// NewEmailOpsRepository creates a new EmailOpsRepository backed by the given
// database connection (pool or transaction).
func NewEmailOpsRepository(db DBTX) *EmailOpsRepository {
	return &EmailOpsRepository{db: db}
}

// Record inserts one operation record. Callers treat failures as best-effort:
// a lost record must never abort the email pipeline itself.
func (r *EmailOpsRepository) Record(ctx context.Context, op types.EmailOperation) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO email_operations
		     (id, operation_id, correlation_id, email_type, stage, success, recipient, error_message, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		op.ID, op.OperationID, op.CorrelationID, op.EmailType, op.Stage,
		op.Success, op.Recipient, op.ErrorMessage, op.DurationMS, op.CreatedAt,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record email operation", err)
	}
	return nil
}

// OperationAggregates summarizes operation records created at or after the
// given instant. Success rate is a percentage over all records; emails sent
// counts successful email_send stages only.
func (r *EmailOpsRepository) OperationAggregates(ctx context.Context, since time.Time) (monitoring.Aggregates, error) {
	var agg monitoring.Aggregates
	err := r.db.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE stage = 'email_send' AND success),
		        count(*) FILTER (WHERE NOT success),
		        COALESCE(100.0 * count(*) FILTER (WHERE success) / NULLIF(count(*), 0), 0),
		        COALESCE(avg(duration_ms) FILTER (WHERE stage = 'email_send'), 0)
		 FROM email_operations
		 WHERE created_at >= $1`,
		since,
	).Scan(&agg.TotalOperations, &agg.EmailsSent, &agg.TotalErrors, &agg.SuccessRate, &agg.AvgDurationMS)
	if err != nil {
		return monitoring.Aggregates{}, types.NewAppError(types.ErrCodeInternalDB, "failed to aggregate email operations", err)
	}
	return agg, nil
}

// ErrorStats summarizes failed operation records created at or after the
// given instant, grouped by pipeline stage.
func (r *EmailOpsRepository) ErrorStats(ctx context.Context, since time.Time) (monitoring.ErrorStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT stage, count(*)
		 FROM email_operations
		 WHERE created_at >= $1 AND NOT success
		 GROUP BY stage
		 ORDER BY count(*) DESC`,
		since,
	)
	if err != nil {
		return monitoring.ErrorStats{}, types.NewAppError(types.ErrCodeInternalDB, "failed to query error stats", err)
	}
	defer rows.Close()

	stats := monitoring.ErrorStats{ByStage: map[string]int{}}
	for rows.Next() {
		var stage string
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return monitoring.ErrorStats{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan error stats", err)
		}
		stats.ByStage[stage] = count
		stats.TotalErrors += count
		if count >= criticalStageFailures {
			stats.CriticalIssues = append(stats.CriticalIssues,
				fmt.Sprintf("stage %s failed %d times in window", stage, count))
		}
	}
	if err := rows.Err(); err != nil {
		return monitoring.ErrorStats{}, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate error stats", err)
	}
	return stats, nil
}

// listOlderThan returns operation records created before the cutoff, oldest
// first, for archiving.
func (r *EmailOpsRepository) listOlderThan(ctx context.Context, db DBTX, cutoff time.Time) ([]types.EmailOperation, error) {
	rows, err := db.Query(ctx,
		`SELECT id, operation_id, correlation_id, email_type, stage, success, recipient, error_message, duration_ms, created_at
		 FROM email_operations
		 WHERE created_at < $1
		 ORDER BY created_at`,
		cutoff,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list archivable operations", err)
	}
	defer rows.Close()

	var ops []types.EmailOperation
	for rows.Next() {
		var op types.EmailOperation
		if err := rows.Scan(
			&op.ID, &op.OperationID, &op.CorrelationID, &op.EmailType, &op.Stage,
			&op.Success, &op.Recipient, &op.ErrorMessage, &op.DurationMS, &op.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan operation", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate operations", err)
	}
	return ops, nil
}

// Archive moves operation records older than the cutoff into the
// email_operation_archives table as one zstd-compressed JSON document, then
// deletes the hot rows. Returns the number of archived records. A cutoff with
// no matching rows is a no-op.
//
// When the underlying DBTX can begin transactions (a *pgxpool.Pool), the
// insert and delete run inside one, so a failed delete never leaves rows
// duplicated across the hot and archive tables.
func (r *EmailOpsRepository) Archive(ctx context.Context, cutoff time.Time) (int, error) {
	beginner, ok := r.db.(TxBeginner)
	if !ok {
		// Already inside a transaction, or a test double.
		return r.archiveOn(ctx, r.db, cutoff)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to begin archive transaction", err)
	}
	defer tx.Rollback(ctx)

	moved, err := r.archiveOn(ctx, tx, cutoff)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to commit archive transaction", err)
	}
	return moved, nil
}

func (r *EmailOpsRepository) archiveOn(ctx context.Context, db DBTX, cutoff time.Time) (int, error) {
	ops, err := r.listOlderThan(ctx, db, cutoff)
	if err != nil {
		return 0, err
	}
	if len(ops) == 0 {
		return 0, nil
	}

	blob, err := compressOperations(ops)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to compress archive", err)
	}

	if _, err := db.Exec(ctx,
		`INSERT INTO email_operation_archives (cutoff, record_count, payload, archived_at)
		 VALUES ($1, $2, $3, $4)`,
		cutoff, len(ops), blob, time.Now().UTC(),
	); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to write archive", err)
	}

	if _, err := db.Exec(ctx,
		`DELETE FROM email_operations WHERE created_at < $1`,
		cutoff,
	); err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived operations", err)
	}

	return len(ops), nil
}

// compressOperations encodes the records as JSON and compresses with zstd.
func compressOperations(ops []types.EmailOperation) ([]byte, error) {
	raw, err := json.Marshal(ops)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// DecompressOperations is the inverse of the archive encoding, used by the
// archive export endpoint and in tests.
func DecompressOperations(blob []byte) ([]types.EmailOperation, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	var ops []types.EmailOperation
	if err := json.Unmarshal(raw, &ops); err != nil {
		return nil, err
	}
	return ops, nil
}

var _ monitoring.Store = (*EmailOpsRepository)(nil)
