package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dmarchal/banklink/internal/api/middleware"
	"github.com/dmarchal/banklink/internal/jobs"
)

// PlaidLinker is the slice of the Plaid client the link flow needs.
type PlaidLinker interface {
	CreateLinkToken(ctx context.Context, userID, webhookURL string) (string, error)
	ExchangePublicToken(ctx context.Context, publicToken string) (accessToken, itemID string, err error)
}

// ConnectionSaver registers a freshly linked Plaid item.
type ConnectionSaver interface {
	SavePlaidConnection(ctx context.Context, userID, itemID, accessToken string) error
}

// LinkHandler drives the Plaid Link flow: token creation and the public
// token exchange that turns a Link session into a stored connection.
type LinkHandler struct {
	plaid         PlaidLinker
	connections   ConnectionSaver
	publisher     jobs.Publisher
	publicBaseURL string
	log           zerolog.Logger
}

// NewLinkHandler creates a new link handler.
func NewLinkHandler(plaidClient PlaidLinker, connections ConnectionSaver, publisher jobs.Publisher, publicBaseURL string, log zerolog.Logger) *LinkHandler {
	return &LinkHandler{
		plaid:         plaidClient,
		connections:   connections,
		publisher:     publisher,
		publicBaseURL: publicBaseURL,
		log:           log,
	}
}

// CreateToken handles POST /link/plaid/token.
func (h *LinkHandler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	token, err := h.plaid.CreateLinkToken(r.Context(), req.UserID, h.publicBaseURL+"/webhooks/plaid")
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to create link token")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to create link token")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]string{"link_token": token})
}

// ExchangeToken handles POST /link/plaid/exchange. On success the new item's
// accounts are mirrored and an initial transaction sync is enqueued.
func (h *LinkHandler) ExchangeToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		UserID      string `json:"user_id"`
		PublicToken string `json:"public_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserID == "" || req.PublicToken == "" {
		middleware.WriteError(w, http.StatusBadRequest, "user_id and public_token are required")
		return
	}

	accessToken, itemID, err := h.plaid.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to exchange public token")
		middleware.WriteError(w, http.StatusBadGateway, "Token exchange failed")
		return
	}

	if err := h.connections.SavePlaidConnection(ctx, req.UserID, itemID, accessToken); err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to save connection")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to save connection")
		return
	}

	err = h.publisher.PublishSync(ctx, &jobs.SyncJob{
		Kind:          jobs.SyncPlaidItem,
		UserID:        req.UserID,
		CredentialsID: itemID,
	})
	if err != nil {
		h.log.Error().Err(err).Str("item_id", itemID).Msg("Failed to enqueue initial sync")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue initial sync")
		return
	}

	h.log.Info().Str("user_id", req.UserID).Str("item_id", itemID).Msg("Plaid item linked")
	middleware.WriteJSON(w, http.StatusOK, map[string]string{"item_id": itemID})
}
