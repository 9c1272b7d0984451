package plaid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSyncAll_FollowsCursor(t *testing.T) {
	var cursors []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transactions/sync" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Decoding request: %v", err)
		}
		if body["client_id"] != "cid" || body["secret"] != "sec" {
			t.Error("Expected credentials injected into the body")
		}
		cursor, _ := body["cursor"].(string)
		cursors = append(cursors, cursor)

		switch cursor {
		case "":
			fmt.Fprint(w, `{"added":[{"transaction_id":"p1","account_id":"a1","amount":12.5,"iso_currency_code":"USD","name":"COFFEE","date":"2026-01-05","pending":false}],"modified":[],"removed":[],"next_cursor":"cur-1","has_more":true}`)
		case "cur-1":
			fmt.Fprint(w, `{"added":[],"modified":[{"transaction_id":"p1","account_id":"a1","amount":12.5,"iso_currency_code":"USD","name":"COFFEE SHOP","date":"2026-01-05","pending":false}],"removed":[{"transaction_id":"p0","account_id":"a1"}],"next_cursor":"cur-2","has_more":false}`)
		default:
			t.Errorf("Unexpected cursor %q", cursor)
		}
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cid", "sec", server.URL)

	var added, modified, removed int
	final, err := client.SyncAll(context.Background(), "access-token", "", func(p *SyncPage) error {
		added += len(p.Added)
		modified += len(p.Modified)
		removed += len(p.Removed)
		return nil
	})
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}

	if final != "cur-2" {
		t.Errorf("Expected final cursor cur-2, got %q", final)
	}
	if added != 1 || modified != 1 || removed != 1 {
		t.Errorf("Expected 1/1/1 changes, got %d/%d/%d", added, modified, removed)
	}
	if len(cursors) != 2 || cursors[1] != "cur-1" {
		t.Errorf("Expected second request to resume from cur-1, got %v", cursors)
	}
}

func TestSyncAll_ReturnsLastGoodCursorOnError(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			fmt.Fprint(w, `{"added":[],"modified":[],"removed":[],"next_cursor":"cur-1","has_more":true}`)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error_type":"API_ERROR","error_code":"INTERNAL_SERVER_ERROR","error_message":"boom"}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cid", "sec", server.URL)

	cursor, err := client.SyncAll(context.Background(), "access-token", "", func(p *SyncPage) error { return nil })
	if err == nil {
		t.Fatal("Expected error from second page")
	}
	// The already-consumed page's cursor survives, so the next sync
	// resumes instead of replaying.
	if cursor != "cur-1" {
		t.Errorf("Expected cursor cur-1 preserved, got %q", cursor)
	}
}

func TestExchangePublicToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/item/public_token/exchange" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"access_token":"access-1","item_id":"item-1"}`)
	}))
	defer server.Close()

	client := NewClientWithBaseURL("cid", "sec", server.URL)
	access, item, err := client.ExchangePublicToken(context.Background(), "public-1")
	if err != nil {
		t.Fatalf("ExchangePublicToken: %v", err)
	}
	if access != "access-1" || item != "item-1" {
		t.Errorf("Got (%q, %q)", access, item)
	}
}

func TestDecodeWebhook(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
		check   func(*testing.T, *WebhookEvent)
	}{
		{
			name: "sync updates",
			body: `{"webhook_type":"TRANSACTIONS","webhook_code":"SYNC_UPDATES_AVAILABLE","item_id":"item-1"}`,
			check: func(t *testing.T, e *WebhookEvent) {
				if e.Type != WebhookTypeTransactions || e.Code != WebhookCodeSyncUpdates || e.ItemID != "item-1" {
					t.Errorf("Unexpected event %+v", e)
				}
			},
		},
		{
			name: "item error keeps details",
			body: `{"webhook_type":"ITEM","webhook_code":"ERROR","item_id":"item-1","error":{"error_type":"ITEM_ERROR","error_message":"login required"}}`,
			check: func(t *testing.T, e *WebhookEvent) {
				if e.Error == nil || e.Error.ErrorType != "ITEM_ERROR" {
					t.Errorf("Expected error details, got %+v", e.Error)
				}
			},
		},
		{
			name:    "missing discriminators",
			body:    `{"item_id":"item-1"}`,
			wantErr: true,
		},
		{
			name:    "not json",
			body:    `<xml/>`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := DecodeWebhook([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("DecodeWebhook() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.check != nil {
				tt.check(t, event)
			}
		})
	}
}
