package enum

type SyncStatus string

const (
	SyncSuccess SyncStatus = "success"
	SyncSkipped SyncStatus = "skipped"
	SyncFailed  SyncStatus = "failed"
)

func (t SyncStatus) String() string {
	return string(t)
}

type FetchMode string

const (
	FetchFull        FetchMode = "full"
	FetchIncremental FetchMode = "incremental"
)

func (t FetchMode) String() string {
	return string(t)
}

// FailureKind drives the retry policy for a failed sync attempt.
type FailureKind string

const (
	FailureTransient FailureKind = "transient"
	FailureAuth      FailureKind = "auth"
	FailurePermanent FailureKind = "permanent"
)

func (t FailureKind) String() string {
	return string(t)
}
