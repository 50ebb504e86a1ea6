package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crosslist/backend/internal/domain/platform"
)

// WhatnotAdapter implements platform.Adapter against the Whatnot seller API.
// Mirrors carry the Whatnot listing ID as their platform item ID.
type WhatnotAdapter struct {
	config     *WhatnotConfig
	httpClient *http.Client
}

// NewWhatnotAdapter creates a new Whatnot adapter with the given configuration
func NewWhatnotAdapter(config *WhatnotConfig) (*WhatnotAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WhatnotAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Code returns the marketplace this adapter talks to
func (a *WhatnotAdapter) Code() platform.Code {
	return platform.CodeWhatnot
}

// whatnotErrorEnvelope is the error payload shape of the Whatnot API
type whatnotErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// PushQuantity sets the live quantity of the mirrored listing.
func (a *WhatnotAdapter) PushQuantity(ctx context.Context, mirror *platform.Mirror, desiredQuantity int64) error {
	path := fmt.Sprintf("/v1/listings/%s", url.PathEscape(mirror.PlatformItemID))
	payload := map[string]any{
		"quantity": desiredQuantity,
	}
	_, err := a.doRequest(ctx, http.MethodPatch, path, payload)
	return err
}

// EndListing ends the mirrored listing on the marketplace.
func (a *WhatnotAdapter) EndListing(ctx context.Context, mirror *platform.Mirror, reason string) error {
	path := fmt.Sprintf("/v1/listings/%s/end", url.PathEscape(mirror.PlatformItemID))
	payload := map[string]any{
		"reason": reason,
	}
	_, err := a.doRequest(ctx, http.MethodPost, path, payload)
	return err
}

// whatnotOrderListResponse mirrors the seller API order list payload
type whatnotOrderListResponse struct {
	Orders []struct {
		ID          string `json:"id"`
		Buyer       string `json:"buyer_username"`
		CreatedAt   string `json:"created_at"`
		CancelledAt string `json:"cancelled_at"`
		Currency    string `json:"currency"`
		Subtotal    string `json:"subtotal"`
		Shipping    string `json:"shipping"`
		Tax         string `json:"tax"`
		Total       string `json:"total"`
		Items       []struct {
			ListingID string `json:"listing_id"`
			Quantity  int64  `json:"quantity"`
			UnitPrice string `json:"unit_price"`
		} `json:"items"`
	} `json:"orders"`
	NextCursor string `json:"next_cursor"`
}

// PullOrders returns one page of orders updated since req.Since.
func (a *WhatnotAdapter) PullOrders(ctx context.Context, req platform.OrderPullRequest) (*platform.OrderPullPage, error) {
	limit := req.PageSize
	if limit <= 0 {
		limit = defaultOrderPageSize
	}
	query := url.Values{}
	query.Set("updated_since", req.Since.UTC().Format(time.RFC3339))
	query.Set("limit", strconv.Itoa(limit))
	if req.PageToken != "" {
		query.Set("cursor", req.PageToken)
	}

	body, err := a.doRequest(ctx, http.MethodGet, "/v1/orders?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp whatnotOrderListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	page := &platform.OrderPullPage{
		NextPageToken: resp.NextCursor,
		HasMore:       resp.NextCursor != "",
	}
	for _, o := range resp.Orders {
		placedAt, err := time.Parse(time.RFC3339, o.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("%w: bad created_at %q", ErrInvalidResponse, o.CreatedAt)
		}
		pulled := platform.PulledOrder{
			PlatformOrderID: o.ID,
			BuyerUsername:   o.Buyer,
			PlacedAt:        placedAt,
			Currency:        o.Currency,
			ItemTotal:       parseAmount(o.Subtotal),
			ShippingTotal:   parseAmount(o.Shipping),
			TaxTotal:        parseAmount(o.Tax),
			OrderTotal:      parseAmount(o.Total),
		}
		if o.CancelledAt != "" {
			if t, err := time.Parse(time.RFC3339, o.CancelledAt); err == nil {
				pulled.CancelledAt = &t
			}
		}
		for _, item := range o.Items {
			pulled.Items = append(pulled.Items, platform.PulledOrderItem{
				PlatformItemID: item.ListingID,
				Quantity:       item.Quantity,
				UnitPrice:      parseAmount(item.UnitPrice),
			})
		}
		page.Orders = append(page.Orders, pulled)
	}
	return page, nil
}

// parseAmount reads a decimal money string, treating absent fields as zero.
func parseAmount(v string) decimal.Decimal {
	if v == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// doRequest performs one authenticated call and returns the raw body.
func (a *WhatnotAdapter) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("whatnot: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("whatnot: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.config.APIToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Whatnot-Seller-Id", a.config.SellerID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("whatnot: failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: HTTP 404", ErrListingNotFound)
		}
		var envelope whatnotErrorEnvelope
		if jsonErr := json.Unmarshal(body, &envelope); jsonErr == nil && envelope.Error.Message != "" {
			return nil, fmt.Errorf("%w: %s - %s", ErrRequestFailed, envelope.Error.Code, envelope.Error.Message)
		}
		return nil, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	return body, nil
}

var _ platform.Adapter = (*WhatnotAdapter)(nil)
var _ platform.OrderSource = (*WhatnotAdapter)(nil)
