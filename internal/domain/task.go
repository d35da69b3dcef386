package domain

import "time"

// TaskStatus represents the lifecycle state of a submitted task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether s is a final status.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed
}

// TaskRecord is the tracked state of a named task.
type TaskRecord struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Command   ComposedCommand `json:"command"`
	Status    TaskStatus      `json:"status"`
	ExitCode  *int            `json:"exit_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	EndedAt   *time.Time      `json:"ended_at,omitempty"`
}

// TaskResult is the terminal outcome delivered once per submission.
type TaskResult struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Status   TaskStatus `json:"status"`
	ExitCode int        `json:"exit_code"`
	Err      error      `json:"-"`
}

// Succeeded reports whether the task finished with exit code 0.
func (r TaskResult) Succeeded() bool { return r.Status == TaskStatusSucceeded }

// TaskOutput is a line-paginated view of a task's captured output.
type TaskOutput struct {
	Name       string `json:"name"`
	Output     string `json:"output"`
	TotalLines int    `json:"total_lines"`
	Offset     int    `json:"offset"`
	HasMore    bool   `json:"has_more"`

	// DroppedBytes counts the oldest output discarded to stay within the
	// per-task buffer limit; line numbers start after it.
	DroppedBytes int64 `json:"dropped_bytes,omitempty"`
}
