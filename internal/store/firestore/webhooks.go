package firestore

import (
	"context"
	"fmt"

	"google.golang.org/api/iterator"

	"github.com/dmarchal/banklink/internal/category"
)

// WebhookRegistration is a stored Tink webhook endpoint and its signing
// secret, persisted when the endpoint is registered.
type WebhookRegistration struct {
	ID            string   `firestore:"id"`
	URL           string   `firestore:"url"`
	Secret        string   `firestore:"secret"`
	EnabledEvents []string `firestore:"enabledEvents"`
}

// SaveWebhookRegistration stores a registration under its Tink id.
func (s *Store) SaveWebhookRegistration(ctx context.Context, reg WebhookRegistration) error {
	_, err := s.client.Collection(collTinkWebhooks).Doc(reg.ID).Set(ctx, reg)
	if err != nil {
		return fmt.Errorf("SaveWebhookRegistration: %w", err)
	}
	return nil
}

// FindWebhookRegistration returns the registration whose URL starts with
// baseURL and which subscribes to event, or nil when none matches. The
// URL match reuses the same half-open range trick as the category queries.
func (s *Store) FindWebhookRegistration(ctx context.Context, baseURL, event string) (*WebhookRegistration, error) {
	q := s.client.Collection(collTinkWebhooks).
		Where("enabledEvents", "array-contains", event)
	if successor, ok := category.PrefixSuccessor(baseURL); ok {
		q = q.Where("url", ">=", baseURL).Where("url", "<", successor)
	}

	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()

	doc, err := iter.Next()
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindWebhookRegistration: %w", err)
	}

	var reg WebhookRegistration
	if err := doc.DataTo(&reg); err != nil {
		return nil, fmt.Errorf("FindWebhookRegistration: decoding %s: %w", doc.Ref.ID, err)
	}
	return &reg, nil
}
