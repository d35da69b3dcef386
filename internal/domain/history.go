package domain

import "context"

// TaskHistory persists finished task records.
type TaskHistory interface {
	Record(ctx context.Context, rec TaskRecord) error
	Recent(ctx context.Context, limit int) ([]TaskRecord, error)
	Close() error
}
