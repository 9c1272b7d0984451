// Package jobs defines the asynchronous work the webhook surface hands off:
// reconciliation triggers and mirror syncs.
package jobs

import (
	"context"
	"time"
)

// JobType discriminates the job payloads.
type JobType string

const (
	// JobTypeReconcile re-evaluates expense links after a document change.
	JobTypeReconcile JobType = "reconcile"
	// JobTypeSync mirrors aggregator data into the document store.
	JobTypeSync JobType = "sync"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusRetrying  JobStatus = "retrying"
)

// ReconcileKind names the document change that triggered reconciliation.
type ReconcileKind string

const (
	ReconcileCategoryChanged ReconcileKind = "category-changed"
	ReconcileExpenseCreated  ReconcileKind = "expense-created"
	ReconcileExpenseDeleted  ReconcileKind = "expense-deleted"
)

// SyncKind names the mirror operation to run.
type SyncKind string

const (
	SyncTinkAccount      SyncKind = "tink-account"
	SyncTinkTransactions SyncKind = "tink-transactions"
	SyncTinkCredentials  SyncKind = "tink-credentials"
	SyncPlaidItem        SyncKind = "plaid-item"
)

// Meta carries the bookkeeping shared by all job payloads.
type Meta struct {
	JobID string `json:"job_id"`

	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
}

// GetID implements the Job interface.
func (m *Meta) GetID() string { return m.JobID }

// GetStatus implements the Job interface.
func (m *Meta) GetStatus() JobStatus { return m.Status }

// Bookkeeping implements the Job interface.
func (m *Meta) Bookkeeping() *Meta { return m }

// ReconcileJob asks the worker to re-evaluate expense links for one changed
// document. Which fields are set depends on Kind.
type ReconcileJob struct {
	Meta

	Kind   ReconcileKind `json:"kind"`
	UserID string        `json:"user_id"`

	// Transaction identity for category-changed.
	AccountID     string `json:"account_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	OldCategoryID string `json:"old_category_id,omitempty"`
	NewCategoryID string `json:"new_category_id,omitempty"`

	// Expense identity for expense-created and expense-deleted.
	ExpenseID  string `json:"expense_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// GetType implements the Job interface.
func (j *ReconcileJob) GetType() JobType { return JobTypeReconcile }

// SyncJob asks the worker to mirror aggregator data.
type SyncJob struct {
	Meta

	Kind   SyncKind `json:"kind"`
	UserID string   `json:"user_id"`

	// AccountID addresses one Tink account; CredentialsID one Plaid item.
	AccountID     string `json:"account_id,omitempty"`
	CredentialsID string `json:"credentials_id,omitempty"`

	// EarliestBookedDate bounds a Tink transaction fetch (YYYY-MM-DD,
	// empty for full history).
	EarliestBookedDate string `json:"earliest_booked_date,omitempty"`
}

// GetType implements the Job interface.
func (j *SyncJob) GetType() JobType { return JobTypeSync }

// Job is the generic interface the queue moves around.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
	Bookkeeping() *Meta
}

// Publisher defines the interface for publishing jobs to a queue.
// This abstraction allows for different queue implementations (in-memory,
// Cloud Tasks, Pub/Sub).
type Publisher interface {
	PublishReconcile(ctx context.Context, job *ReconcileJob) error
	PublishSync(ctx context.Context, job *SyncJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue. The handler function
	// is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job failed and
// eligible for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobRecord is the stored snapshot of a job's bookkeeping.
type JobRecord struct {
	JobID       string
	Type        JobType
	Status      JobStatus
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       string
	RetryCount  int
}

// JobStore tracks job execution so the API can report on it.
type JobStore interface {
	SaveJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (*JobRecord, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*JobRecord, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Type   JobType
	Status JobStatus
	Limit  int
	Offset int
}
