package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmarchal/banklink/internal/domain"
)

type credentialsDoc struct {
	ID         string   `firestore:"id"`
	UserID     string   `firestore:"userId"`
	Provider   string   `firestore:"provider"`
	AccountIDs []string `firestore:"accountIds"`

	AccessToken string `firestore:"accessToken,omitempty"`
	SyncCursor  string `firestore:"syncCursor,omitempty"`

	LastRefresh  time.Time `firestore:"lastRefresh"`
	ProviderName string    `firestore:"providerName"`
	Status       string    `firestore:"status"`
}

// GetCredentials loads one bank connection. Returns (nil, nil) when the
// connection is unknown.
func (s *Store) GetCredentials(ctx context.Context, credentialsID string) (*domain.Credentials, error) {
	doc, err := s.client.Collection(collCredentials).Doc(credentialsID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCredentials: %w", err)
	}

	var row credentialsDoc
	if err := doc.DataTo(&row); err != nil {
		return nil, fmt.Errorf("GetCredentials: decoding %s: %w", credentialsID, err)
	}
	return &domain.Credentials{
		ID:           row.ID,
		UserID:       row.UserID,
		Provider:     row.Provider,
		AccountIDs:   row.AccountIDs,
		AccessToken:  row.AccessToken,
		SyncCursor:   row.SyncCursor,
		LastRefresh:  row.LastRefresh,
		ProviderName: row.ProviderName,
		Status:       row.Status,
	}, nil
}

// UpsertCredentials mirrors one bank connection document.
func (s *Store) UpsertCredentials(ctx context.Context, c domain.Credentials) error {
	row := credentialsDoc{
		ID:           c.ID,
		UserID:       c.UserID,
		Provider:     c.Provider,
		AccountIDs:   c.AccountIDs,
		AccessToken:  c.AccessToken,
		SyncCursor:   c.SyncCursor,
		LastRefresh:  c.LastRefresh,
		ProviderName: c.ProviderName,
		Status:       c.Status,
	}
	_, err := s.client.Collection(collCredentials).Doc(c.ID).Set(ctx, row, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("UpsertCredentials: %w", err)
	}
	return nil
}

// SaveSyncCursor persists the sync bookkeeping of one connection after a
// completed sync: the Plaid cursor, or the Tink refresh timestamp.
func (s *Store) SaveSyncCursor(ctx context.Context, credentialsID, cursor string, refreshedAt time.Time) error {
	_, err := s.client.Collection(collCredentials).Doc(credentialsID).Update(ctx, []firestore.Update{
		{Path: "syncCursor", Value: cursor},
		{Path: "lastRefresh", Value: refreshedAt},
	})
	if err != nil {
		return fmt.Errorf("SaveSyncCursor: %w", err)
	}
	return nil
}
