package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/aggregator/plaid"
	"github.com/dmarchal/banklink/internal/aggregator/tink"
	"github.com/dmarchal/banklink/internal/api/middleware"
	"github.com/dmarchal/banklink/internal/jobs"
	fsstore "github.com/dmarchal/banklink/internal/store/firestore"
)

// maxWebhookBody bounds webhook request bodies.
const maxWebhookBody = 1 << 20

// TinkRegistrar is the slice of the Tink client webhook registration needs.
type TinkRegistrar interface {
	AccessTokenFromScopes(ctx context.Context, scopes ...string) (string, error)
	RegisterWebhook(ctx context.Context, accessToken, url string, events []string) (*tink.RegisteredWebhook, error)
}

// RegistrationStore persists and looks up webhook registrations.
type RegistrationStore interface {
	SaveWebhookRegistration(ctx context.Context, reg fsstore.WebhookRegistration) error
	FindWebhookRegistration(ctx context.Context, baseURL, event string) (*fsstore.WebhookRegistration, error)
}

// WebhooksHandler handles aggregator webhook deliveries and registration.
type WebhooksHandler struct {
	tink          TinkRegistrar
	registrations RegistrationStore
	publisher     jobs.Publisher
	publicBaseURL string
	log           zerolog.Logger
}

// NewWebhooksHandler creates a new webhooks handler.
func NewWebhooksHandler(tinkClient TinkRegistrar, registrations RegistrationStore, publisher jobs.Publisher, publicBaseURL string, log zerolog.Logger) *WebhooksHandler {
	return &WebhooksHandler{
		tink:          tinkClient,
		registrations: registrations,
		publisher:     publisher,
		publicBaseURL: publicBaseURL,
		log:           log,
	}
}

func (h *WebhooksHandler) webhookURL() string {
	return h.publicBaseURL + "/webhooks/tink"
}

// HandleTink handles POST /webhooks/tink. Deliveries are authenticated
// against the stored signing secret before anything is decoded.
func (h *WebhooksHandler) HandleTink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	// One registration covers the whole subscription set, so any
	// subscribed event locates it.
	reg, err := h.registrations.FindWebhookRegistration(ctx, h.webhookURL(), tink.EventRefreshFinished)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to look up webhook registration")
		middleware.WriteError(w, http.StatusInternalServerError, "Registration lookup failed")
		return
	}
	if reg == nil {
		middleware.WriteError(w, http.StatusUnauthorized, "No webhook registered")
		return
	}

	if err := tink.VerifySignature(r.Header.Get("X-Tink-Signature"), body, reg.Secret); err != nil {
		h.log.Warn().Err(err).Msg("Rejected webhook with bad signature")
		middleware.WriteError(w, http.StatusUnauthorized, "Invalid signature")
		return
	}

	event, err := tink.DecodeEvent(body)
	if err != nil {
		h.log.Warn().Err(err).Msg("Rejected undecodable webhook")
		middleware.WriteError(w, http.StatusBadRequest, "Invalid event")
		return
	}

	userID := event.Context.ExternalUserID
	log := h.log.With().Str("event", event.Event).Str("user_id", userID).Logger()

	switch {
	case event.Account != nil:
		err = h.publisher.PublishSync(ctx, &jobs.SyncJob{
			Kind:      jobs.SyncTinkAccount,
			UserID:    userID,
			AccountID: event.Account.ID,
		})
	case event.TransactionsChanged != nil:
		err = h.publisher.PublishSync(ctx, &jobs.SyncJob{
			Kind:      jobs.SyncTinkTransactions,
			UserID:    userID,
			AccountID: event.TransactionsChanged.Account.ID,
		})
	case event.Refresh != nil:
		err = h.publisher.PublishSync(ctx, &jobs.SyncJob{
			Kind:          jobs.SyncTinkCredentials,
			UserID:        userID,
			CredentialsID: event.Refresh.CredentialsID,
		})
	default:
		log.Info().Msg("Webhook acknowledged")
		middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to enqueue sync")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
		return
	}

	log.Info().Msg("Webhook enqueued")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RegisterTink handles POST /webhooks/tink/register: registers this
// deployment's endpoint with Tink and stores the signing secret.
func (h *WebhooksHandler) RegisterTink(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token, err := h.tink.AccessTokenFromScopes(ctx, "webhook-endpoints")
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get registration token")
		middleware.WriteError(w, http.StatusBadGateway, "Token exchange failed")
		return
	}

	reg, err := h.tink.RegisterWebhook(ctx, token, h.webhookURL(), tink.EnabledEvents)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to register webhook")
		middleware.WriteError(w, http.StatusBadGateway, "Registration failed")
		return
	}

	err = h.registrations.SaveWebhookRegistration(ctx, fsstore.WebhookRegistration{
		ID:            reg.ID,
		URL:           reg.URL,
		Secret:        reg.Secret,
		EnabledEvents: reg.EnabledEvents,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to persist webhook registration")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to persist registration")
		return
	}

	h.log.Info().Str("webhook_id", reg.ID).Str("url", reg.URL).Msg("Webhook registered")

	// The secret stays server side.
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"id":             reg.ID,
		"url":            reg.URL,
		"enabled_events": reg.EnabledEvents,
	})
}

// HandlePlaid handles POST /webhooks/plaid. Plaid webhooks are advisory:
// the handler only schedules a cursor sync, never trusts payload data.
func (h *WebhooksHandler) HandlePlaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read body")
		return
	}

	event, err := plaid.DecodeWebhook(body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid webhook")
		return
	}

	log := h.log.With().Str("webhook_type", event.Type).Str("webhook_code", event.Code).Str("item_id", event.ItemID).Logger()

	switch {
	case event.Type == plaid.WebhookTypeTransactions && event.Code == plaid.WebhookCodeSyncUpdates:
		err := h.publisher.PublishSync(ctx, &jobs.SyncJob{
			Kind:          jobs.SyncPlaidItem,
			CredentialsID: event.ItemID,
		})
		if err != nil {
			log.Error().Err(err).Msg("Failed to enqueue sync")
			middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
			return
		}
		log.Info().Msg("Plaid sync enqueued")
	case event.Type == plaid.WebhookTypeItem && event.Code == plaid.WebhookCodeItemError:
		if event.Error != nil {
			log.Warn().Str("error_type", event.Error.ErrorType).Str("error_message", event.Error.ErrorMessage).Msg("Plaid item in error state")
		}
	default:
		log.Info().Msg("Ignoring unhandled Plaid webhook")
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
