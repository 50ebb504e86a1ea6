package marketplace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crosslist/backend/internal/domain/platform"
)

func TestEbayConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *EbayConfig
		wantErr error
	}{
		{
			name:    "valid config",
			config:  NewEbayConfig("client", "secret", "token"),
			wantErr: nil,
		},
		{
			name:    "missing client ID",
			config:  &EbayConfig{OAuthToken: "token"},
			wantErr: ErrEbayConfigMissingClientID,
		},
		{
			name:    "missing OAuth token",
			config:  &EbayConfig{ClientID: "client"},
			wantErr: ErrEbayConfigMissingOAuthToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEbayConfig_ValidateFillsDefaults(t *testing.T) {
	cfg := &EbayConfig{ClientID: "client", OAuthToken: "token"}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, EbayDefaultMarketplaceID, cfg.MarketplaceID)
	assert.Equal(t, EbayProductionAPIURL, cfg.APIBaseURL)
	assert.Equal(t, 30, cfg.TimeoutSeconds)
}

func newEbayTestAdapter(t *testing.T, handler http.HandlerFunc) *EbayAdapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := NewEbayConfig("client", "secret", "test-token")
	cfg.APIBaseURL = server.URL
	adapter, err := NewEbayAdapter(cfg)
	require.NoError(t, err)
	return adapter
}

func newTestMirror(t *testing.T, code platform.Code, itemID string) *platform.Mirror {
	t.Helper()
	m, err := platform.NewMirror(uuid.New(), uuid.New(), code, itemID, 5)
	require.NoError(t, err)
	return m
}

func TestEbayAdapter_PushQuantity(t *testing.T) {
	t.Run("sends the offer quantity with auth headers", func(t *testing.T) {
		var captured ebayQuantityUpdateRequest
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/sell/inventory/v1/bulk_update_price_quantity", r.URL.Path)
			assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
			assert.Equal(t, EbayDefaultMarketplaceID, r.Header.Get("X-EBAY-C-MARKETPLACE-ID"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

			_ = json.NewEncoder(w).Encode(map[string]any{
				"responses": []map[string]any{
					{"offerId": "OFFER-1", "statusCode": 200},
				},
			})
		})

		mirror := newTestMirror(t, platform.CodeEbay, "OFFER-1")
		err := adapter.PushQuantity(context.Background(), mirror, 12)
		require.NoError(t, err)

		require.Len(t, captured.Requests, 1)
		require.Len(t, captured.Requests[0].Offers, 1)
		assert.Equal(t, "OFFER-1", captured.Requests[0].Offers[0].OfferID)
		assert.Equal(t, int64(12), captured.Requests[0].Offers[0].AvailableQuantity)
	})

	t.Run("per-offer 404 maps to listing not found", func(t *testing.T) {
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"responses": []map[string]any{
					{"offerId": "OFFER-9", "statusCode": 404},
				},
			})
		})

		err := adapter.PushQuantity(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-9"), 3)
		assert.ErrorIs(t, err, ErrListingNotFound)
	})

	t.Run("per-offer error surfaces the message", func(t *testing.T) {
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"responses": []map[string]any{
					{
						"offerId":    "OFFER-1",
						"statusCode": 500,
						"errors":     []map[string]any{{"errorId": 25001, "message": "system error"}},
					},
				},
			})
		})

		err := adapter.PushQuantity(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-1"), 3)
		require.ErrorIs(t, err, ErrRequestFailed)
		assert.Contains(t, err.Error(), "system error")
	})

	t.Run("HTTP error status maps to request failed", func(t *testing.T) {
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})

		err := adapter.PushQuantity(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-1"), 3)
		assert.ErrorIs(t, err, ErrRequestFailed)
	})

	t.Run("unreachable host maps to unavailable", func(t *testing.T) {
		cfg := NewEbayConfig("client", "secret", "token")
		cfg.APIBaseURL = "http://127.0.0.1:1"
		cfg.TimeoutSeconds = 1
		adapter, err := NewEbayAdapter(cfg)
		require.NoError(t, err)

		err = adapter.PushQuantity(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-1"), 3)
		assert.ErrorIs(t, err, ErrUnavailable)
	})

	t.Run("garbage body maps to invalid response", func(t *testing.T) {
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("not json"))
		})

		err := adapter.PushQuantity(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-1"), 3)
		assert.ErrorIs(t, err, ErrInvalidResponse)
	})
}

func TestEbayAdapter_EndListing(t *testing.T) {
	t.Run("withdraws the offer", func(t *testing.T) {
		var path string
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
			path = r.URL.Path
			_ = json.NewEncoder(w).Encode(map[string]any{"listingId": "110123456"})
		})

		err := adapter.EndListing(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-7"), "sold out")
		require.NoError(t, err)
		assert.Equal(t, "/sell/inventory/v1/offer/OFFER-7/withdraw", path)
	})

	t.Run("missing offer maps to listing not found", func(t *testing.T) {
		adapter := newEbayTestAdapter(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})

		err := adapter.EndListing(context.Background(), newTestMirror(t, platform.CodeEbay, "OFFER-7"), "sold out")
		assert.ErrorIs(t, err, ErrListingNotFound)
	})
}

func TestEbayAdapter_Code(t *testing.T) {
	adapter, err := NewEbayAdapter(NewEbayConfig("client", "secret", "token"))
	require.NoError(t, err)
	assert.Equal(t, platform.CodeEbay, adapter.Code())
}
