// Package worker dispatches queued jobs to the reconciliation engine and the
// mirror service.
package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/jobs"
)

// Reconciler is the slice of the reconciliation engine the worker drives.
type Reconciler interface {
	OnCategoryChanged(ctx context.Context, userID, accountID, transactionID, oldCategoryID, newCategoryID string) error
	OnExpenseCreated(ctx context.Context, userID, expenseID, categoryID string) error
	OnExpenseDeleted(ctx context.Context, userID, expenseID string) error
}

// Mirror is the slice of the mirror service the worker drives.
type Mirror interface {
	SyncTinkAccount(ctx context.Context, externalUserID, accountID string) error
	SyncTinkTransactions(ctx context.Context, externalUserID, accountID, earliestBookedDate string) error
	RefreshTinkConnection(ctx context.Context, credentialsID string) error
	SyncPlaidItem(ctx context.Context, credentialsID string) error
}

// Handler routes jobs to their executor. Its Handle method is a
// jobs.JobHandler.
type Handler struct {
	reconciler Reconciler
	mirror     Mirror
	log        zerolog.Logger
}

// NewHandler creates a job dispatch handler.
func NewHandler(reconciler Reconciler, mirror Mirror, log zerolog.Logger) *Handler {
	return &Handler{reconciler: reconciler, mirror: mirror, log: log}
}

// Handle executes one job.
func (h *Handler) Handle(ctx context.Context, job jobs.Job) error {
	switch j := job.(type) {
	case *jobs.ReconcileJob:
		return h.handleReconcile(ctx, j)
	case *jobs.SyncJob:
		return h.handleSync(ctx, j)
	default:
		return fmt.Errorf("unexpected job type: %T", job)
	}
}

func (h *Handler) handleReconcile(ctx context.Context, job *jobs.ReconcileJob) error {
	h.log.Info().
		Str("job_id", job.JobID).
		Str("kind", string(job.Kind)).
		Str("user_id", job.UserID).
		Msg("Processing reconcile job")

	switch job.Kind {
	case jobs.ReconcileCategoryChanged:
		return h.reconciler.OnCategoryChanged(ctx, job.UserID, job.AccountID, job.TransactionID, job.OldCategoryID, job.NewCategoryID)
	case jobs.ReconcileExpenseCreated:
		return h.reconciler.OnExpenseCreated(ctx, job.UserID, job.ExpenseID, job.CategoryID)
	case jobs.ReconcileExpenseDeleted:
		return h.reconciler.OnExpenseDeleted(ctx, job.UserID, job.ExpenseID)
	default:
		return fmt.Errorf("unknown reconcile kind %q", job.Kind)
	}
}

func (h *Handler) handleSync(ctx context.Context, job *jobs.SyncJob) error {
	h.log.Info().
		Str("job_id", job.JobID).
		Str("kind", string(job.Kind)).
		Msg("Processing sync job")

	switch job.Kind {
	case jobs.SyncTinkAccount:
		return h.mirror.SyncTinkAccount(ctx, job.UserID, job.AccountID)
	case jobs.SyncTinkTransactions:
		return h.mirror.SyncTinkTransactions(ctx, job.UserID, job.AccountID, job.EarliestBookedDate)
	case jobs.SyncTinkCredentials:
		return h.mirror.RefreshTinkConnection(ctx, job.CredentialsID)
	case jobs.SyncPlaidItem:
		return h.mirror.SyncPlaidItem(ctx, job.CredentialsID)
	default:
		return fmt.Errorf("unknown sync kind %q", job.Kind)
	}
}
