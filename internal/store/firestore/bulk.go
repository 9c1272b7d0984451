package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/domain"
	"github.com/dmarchal/banklink/internal/reconcile"
)

// BulkSink batches independent document writes on a Firestore BulkWriter.
// One write failing never fails its siblings: Flush waits for every attempt,
// logs the failures, and only errors when the batch could not be issued at
// all.
type BulkSink struct {
	store *Store
	bw    *firestore.BulkWriter
	log   zerolog.Logger

	pending []pendingWrite
}

type pendingWrite struct {
	doc string
	job *firestore.BulkWriterJob
}

// NewSink implements reconcile.SinkFactory. Each trigger invocation gets its
// own sink; the underlying BulkWriter bounds write concurrency.
func (s *Store) NewSink(ctx context.Context) reconcile.MutationSink {
	return s.newBulkSink(ctx)
}

// NewBulkSink returns the sink with its mirroring methods exposed, for
// callers that create and delete whole documents.
func (s *Store) NewBulkSink(ctx context.Context) *BulkSink {
	return s.newBulkSink(ctx)
}

func (s *Store) newBulkSink(ctx context.Context) *BulkSink {
	return &BulkSink{
		store: s,
		bw:    s.client.BulkWriter(ctx),
		log:   s.log,
	}
}

// SetExpenseID enqueues an expenseId field update; an empty expenseID writes
// null, clearing the link.
func (b *BulkSink) SetExpenseID(accountID, transactionID, expenseID string) {
	var value interface{}
	if expenseID != "" {
		value = expenseID
	}
	ref := b.store.transactionRef(accountID, transactionID)
	b.add(ref, func() (*firestore.BulkWriterJob, error) {
		return b.bw.Update(ref, []firestore.Update{{Path: fieldExpenseID, Value: value}})
	})
}

// CreateTransaction enqueues a full document create for a newly mirrored
// transaction. categoryId and expenseId start as null; the reconciliation
// engine owns expenseId from then on.
func (b *BulkSink) CreateTransaction(t domain.Transaction) {
	ref := b.store.transactionRef(t.AccountID, t.ID)
	row := docFromDomain(t)
	b.add(ref, func() (*firestore.BulkWriterJob, error) {
		return b.bw.Create(ref, row)
	})
}

// UpdateTransaction enqueues an update of the aggregator-owned fields of an
// already mirrored transaction, leaving categoryId and expenseId untouched.
func (b *BulkSink) UpdateTransaction(t domain.Transaction) {
	ref := b.store.transactionRef(t.AccountID, t.ID)
	b.add(ref, func() (*firestore.BulkWriterJob, error) {
		return b.bw.Update(ref, []firestore.Update{
			{Path: "amount", Value: t.Amount.String()},
			{Path: "pending", Value: t.Pending},
			{Path: "descriptionOriginal", Value: t.DescriptionOriginal},
			{Path: "descriptionCleaned", Value: t.DescriptionCleaned},
		})
	})
}

// DeleteTransaction enqueues removal of a mirrored transaction (aggregator
// reported it gone).
func (b *BulkSink) DeleteTransaction(accountID, transactionID string) {
	ref := b.store.transactionRef(accountID, transactionID)
	b.add(ref, func() (*firestore.BulkWriterJob, error) {
		return b.bw.Delete(ref)
	})
}

func (b *BulkSink) add(ref *firestore.DocumentRef, enqueue func() (*firestore.BulkWriterJob, error)) {
	job, err := enqueue()
	if err != nil {
		// Enqueue-time rejection affects this write only.
		b.log.Warn().Err(err).Str("doc", ref.Path).Msg("Dropping bulk write")
		return
	}
	b.pending = append(b.pending, pendingWrite{doc: ref.Path, job: job})
}

// Flush implements reconcile.MutationSink: waits until every enqueued write
// has been attempted and collects per-write failures without propagating
// them.
func (b *BulkSink) Flush(ctx context.Context) error {
	b.bw.Flush()

	failed := 0
	for _, p := range b.pending {
		if _, err := p.job.Results(); err != nil {
			failed++
			b.log.Warn().Err(err).Str("doc", p.doc).Msg("Bulk write failed, document left stale")
		}
	}
	if failed > 0 {
		b.log.Warn().
			Int("failed", failed).
			Int("total", len(b.pending)).
			Msg("Bulk flush completed with failures")
	}
	b.pending = b.pending[:0]
	return nil
}

// End flushes and releases the underlying BulkWriter. The sink cannot be
// reused afterwards.
func (b *BulkSink) End(ctx context.Context) error {
	err := b.Flush(ctx)
	b.bw.End()
	return err
}
