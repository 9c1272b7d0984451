package worker

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/jobs"
)

type fakeReconciler struct {
	calls []string
}

func (f *fakeReconciler) OnCategoryChanged(ctx context.Context, userID, accountID, transactionID, oldCategoryID, newCategoryID string) error {
	f.calls = append(f.calls, "category-changed:"+transactionID)
	return nil
}

func (f *fakeReconciler) OnExpenseCreated(ctx context.Context, userID, expenseID, categoryID string) error {
	f.calls = append(f.calls, "expense-created:"+expenseID)
	return nil
}

func (f *fakeReconciler) OnExpenseDeleted(ctx context.Context, userID, expenseID string) error {
	f.calls = append(f.calls, "expense-deleted:"+expenseID)
	return nil
}

type fakeMirror struct {
	calls []string
}

func (f *fakeMirror) SyncTinkAccount(ctx context.Context, externalUserID, accountID string) error {
	f.calls = append(f.calls, "tink-account:"+accountID)
	return nil
}

func (f *fakeMirror) SyncTinkTransactions(ctx context.Context, externalUserID, accountID, earliestBookedDate string) error {
	f.calls = append(f.calls, "tink-transactions:"+accountID)
	return nil
}

func (f *fakeMirror) RefreshTinkConnection(ctx context.Context, credentialsID string) error {
	f.calls = append(f.calls, "tink-credentials:"+credentialsID)
	return nil
}

func (f *fakeMirror) SyncPlaidItem(ctx context.Context, credentialsID string) error {
	f.calls = append(f.calls, "plaid-item:"+credentialsID)
	return nil
}

func TestHandle_Dispatch(t *testing.T) {
	reconciler := &fakeReconciler{}
	mirror := &fakeMirror{}
	handler := NewHandler(reconciler, mirror, zerolog.Nop())
	ctx := context.Background()

	jobsToRun := []jobs.Job{
		&jobs.ReconcileJob{Kind: jobs.ReconcileCategoryChanged, UserID: "u1", AccountID: "a1", TransactionID: "t1"},
		&jobs.ReconcileJob{Kind: jobs.ReconcileExpenseCreated, UserID: "u1", ExpenseID: "e1", CategoryID: "expenses:food"},
		&jobs.ReconcileJob{Kind: jobs.ReconcileExpenseDeleted, UserID: "u1", ExpenseID: "e2"},
		&jobs.SyncJob{Kind: jobs.SyncTinkAccount, UserID: "u1", AccountID: "a1"},
		&jobs.SyncJob{Kind: jobs.SyncTinkTransactions, UserID: "u1", AccountID: "a1"},
		&jobs.SyncJob{Kind: jobs.SyncTinkCredentials, CredentialsID: "cred-1"},
		&jobs.SyncJob{Kind: jobs.SyncPlaidItem, CredentialsID: "item-1"},
	}
	for _, job := range jobsToRun {
		if err := handler.Handle(ctx, job); err != nil {
			t.Fatalf("Handle(%T): %v", job, err)
		}
	}

	wantReconciler := []string{"category-changed:t1", "expense-created:e1", "expense-deleted:e2"}
	if len(reconciler.calls) != len(wantReconciler) {
		t.Fatalf("Expected %v, got %v", wantReconciler, reconciler.calls)
	}
	for i, want := range wantReconciler {
		if reconciler.calls[i] != want {
			t.Errorf("Call %d: expected %s, got %s", i, want, reconciler.calls[i])
		}
	}

	wantMirror := []string{"tink-account:a1", "tink-transactions:a1", "tink-credentials:cred-1", "plaid-item:item-1"}
	for i, want := range wantMirror {
		if mirror.calls[i] != want {
			t.Errorf("Call %d: expected %s, got %s", i, want, mirror.calls[i])
		}
	}
}

func TestHandle_UnknownKind(t *testing.T) {
	handler := NewHandler(&fakeReconciler{}, &fakeMirror{}, zerolog.Nop())

	if err := handler.Handle(context.Background(), &jobs.ReconcileJob{Kind: "vacuum"}); err == nil {
		t.Error("Expected error for unknown reconcile kind")
	}
	if err := handler.Handle(context.Background(), &jobs.SyncJob{Kind: "vacuum"}); err == nil {
		t.Error("Expected error for unknown sync kind")
	}
}
