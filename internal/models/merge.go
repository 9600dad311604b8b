package models

// MergeStatus is the lifecycle of a merge job
type MergeStatus string

const (
	MergePending   MergeStatus = "pending"
	MergeRunning   MergeStatus = "running"
	MergeSucceeded MergeStatus = "succeeded"
	MergeFailed    MergeStatus = "failed"
	MergeCancelled MergeStatus = "cancelled"
)

// IsFinal reports whether the job has produced its result
func (s MergeStatus) IsFinal() bool {
	return s == MergeSucceeded || s == MergeFailed || s == MergeCancelled
}
