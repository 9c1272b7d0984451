package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/api/middleware"
	"github.com/dmarchal/banklink/internal/jobs"
)

// Document change types accepted by the store-event intake.
const (
	EventCategoryChanged = "transaction-category-changed"
	EventExpenseCreated  = "expense-created"
	EventExpenseDeleted  = "expense-deleted"
)

// StoreEvent is one document change reported by the app backend.
type StoreEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`

	// Transaction identity for transaction-category-changed.
	AccountID     string `json:"account_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	OldCategoryID string `json:"old_category_id,omitempty"`
	NewCategoryID string `json:"new_category_id,omitempty"`

	// Expense identity for expense-created and expense-deleted.
	ExpenseID  string `json:"expense_id,omitempty"`
	CategoryID string `json:"category_id,omitempty"`
}

// EventsHandler turns document-change notifications into reconcile jobs.
type EventsHandler struct {
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(publisher jobs.Publisher, log zerolog.Logger) *EventsHandler {
	return &EventsHandler{publisher: publisher, log: log}
}

// HandleStoreEvent handles POST /events/store.
func (h *EventsHandler) HandleStoreEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var event StoreEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if event.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	job := &jobs.ReconcileJob{UserID: event.UserID}
	switch event.Type {
	case EventCategoryChanged:
		if event.AccountID == "" || event.TransactionID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "account_id and transaction_id are required")
			return
		}
		job.Kind = jobs.ReconcileCategoryChanged
		job.AccountID = event.AccountID
		job.TransactionID = event.TransactionID
		job.OldCategoryID = event.OldCategoryID
		job.NewCategoryID = event.NewCategoryID
	case EventExpenseCreated:
		if event.ExpenseID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "expense_id is required")
			return
		}
		job.Kind = jobs.ReconcileExpenseCreated
		job.ExpenseID = event.ExpenseID
		job.CategoryID = event.CategoryID
	case EventExpenseDeleted:
		if event.ExpenseID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "expense_id is required")
			return
		}
		job.Kind = jobs.ReconcileExpenseDeleted
		job.ExpenseID = event.ExpenseID
		job.CategoryID = event.CategoryID
	default:
		middleware.WriteError(w, http.StatusBadRequest, "Unknown event type")
		return
	}

	if err := h.publisher.PublishReconcile(ctx, job); err != nil {
		h.log.Error().Err(err).Str("type", event.Type).Msg("Failed to enqueue reconcile job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	h.log.Info().Str("type", event.Type).Str("job_id", job.JobID).Msg("Reconcile job enqueued")
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": job.JobID})
}
