package models

// TaskState mirrors the states reported by task_progress.
type TaskState string

const (
	TaskPending TaskState = "PENDING"
	TaskRetry   TaskState = "RETRY"
	TaskSuccess TaskState = "SUCCESS"
	TaskFailure TaskState = "FAILURE"
)

type TaskProgress struct {
	State  TaskState `json:"state"`
	Result *string   `json:"result"`
}
