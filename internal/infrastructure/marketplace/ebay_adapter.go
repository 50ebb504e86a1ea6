package marketplace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/crosslist/backend/internal/domain/platform"
)

// maxResponseSize limits response bodies to prevent memory exhaustion
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// defaultOrderPageSize is the order pull page size when the caller leaves it unset
const defaultOrderPageSize = 50

// EbayAdapter implements platform.Adapter against the eBay Sell Inventory API.
// Mirrors carry the eBay offer ID as their platform item ID.
type EbayAdapter struct {
	config     *EbayConfig
	httpClient *http.Client
}

// NewEbayAdapter creates a new eBay adapter with the given configuration
func NewEbayAdapter(config *EbayConfig) (*EbayAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &EbayAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
	}, nil
}

// Code returns the marketplace this adapter talks to
func (a *EbayAdapter) Code() platform.Code {
	return platform.CodeEbay
}

// ebayQuantityUpdateRequest is the bulk_update_price_quantity request payload
type ebayQuantityUpdateRequest struct {
	Requests []ebayQuantityUpdate `json:"requests"`
}

type ebayQuantityUpdate struct {
	Offers []ebayOfferQuantity `json:"offers"`
}

type ebayOfferQuantity struct {
	OfferID           string `json:"offerId"`
	AvailableQuantity int64  `json:"availableQuantity"`
}

// ebayQuantityUpdateResponse mirrors the per-offer status list eBay returns
type ebayQuantityUpdateResponse struct {
	Responses []struct {
		OfferID    string `json:"offerId"`
		StatusCode int    `json:"statusCode"`
		Errors     []struct {
			ErrorID int64  `json:"errorId"`
			Message string `json:"message"`
		} `json:"errors"`
	} `json:"responses"`
}

// PushQuantity sets the live quantity of the mirrored offer.
func (a *EbayAdapter) PushQuantity(ctx context.Context, mirror *platform.Mirror, desiredQuantity int64) error {
	payload := ebayQuantityUpdateRequest{
		Requests: []ebayQuantityUpdate{{
			Offers: []ebayOfferQuantity{{
				OfferID:           mirror.PlatformItemID,
				AvailableQuantity: desiredQuantity,
			}},
		}},
	}

	body, err := a.doRequest(ctx, http.MethodPost, "/sell/inventory/v1/bulk_update_price_quantity", payload)
	if err != nil {
		return err
	}

	var resp ebayQuantityUpdateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(resp.Responses) == 0 {
		return fmt.Errorf("%w: empty offer status list", ErrInvalidResponse)
	}

	status := resp.Responses[0]
	switch {
	case status.StatusCode >= 200 && status.StatusCode < 300:
		return nil
	case status.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: offer %s", ErrListingNotFound, mirror.PlatformItemID)
	default:
		msg := "unknown error"
		if len(status.Errors) > 0 {
			msg = status.Errors[0].Message
		}
		return fmt.Errorf("%w: offer %s: %d - %s", ErrRequestFailed, mirror.PlatformItemID, status.StatusCode, msg)
	}
}

// EndListing withdraws the mirrored offer. eBay takes no reason; it is kept
// for the local audit log only.
func (a *EbayAdapter) EndListing(ctx context.Context, mirror *platform.Mirror, _ string) error {
	path := fmt.Sprintf("/sell/inventory/v1/offer/%s/withdraw", url.PathEscape(mirror.PlatformItemID))
	_, err := a.doRequest(ctx, http.MethodPost, path, nil)
	return err
}

// ebayOrderListResponse mirrors the Sell Fulfillment API order search result
type ebayOrderListResponse struct {
	Orders []struct {
		OrderID      string `json:"orderId"`
		CreationDate string `json:"creationDate"`
		Buyer        struct {
			Username string `json:"username"`
		} `json:"buyer"`
		CancelStatus struct {
			CancelState   string `json:"cancelState"`
			CancelledDate string `json:"cancelledDate"`
		} `json:"cancelStatus"`
		PricingSummary struct {
			PriceSubtotal ebayAmount `json:"priceSubtotal"`
			DeliveryCost  ebayAmount `json:"deliveryCost"`
			Tax           ebayAmount `json:"tax"`
			Total         ebayAmount `json:"total"`
		} `json:"pricingSummary"`
		LineItems []struct {
			OfferID      string     `json:"offerId"`
			LegacyItemID string     `json:"legacyItemId"`
			Quantity     int64      `json:"quantity"`
			LineItemCost ebayAmount `json:"lineItemCost"`
		} `json:"lineItems"`
	} `json:"orders"`
	Next  string `json:"next"`
	Total int    `json:"total"`
}

// ebayAmount is a currency-tagged monetary value
type ebayAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

func (a ebayAmount) decimal() decimal.Decimal {
	d, err := decimal.NewFromString(a.Value)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// PullOrders returns one page of orders modified since req.Since. The page
// token is eBay's opaque "next" URL; an order's offer ID keys each line item
// back to the local mirror.
func (a *EbayAdapter) PullOrders(ctx context.Context, req platform.OrderPullRequest) (*platform.OrderPullPage, error) {
	path := req.PageToken
	if path == "" {
		limit := req.PageSize
		if limit <= 0 {
			limit = defaultOrderPageSize
		}
		filter := fmt.Sprintf("lastmodifieddate:[%s..]", req.Since.UTC().Format("2006-01-02T15:04:05.000Z"))
		path = fmt.Sprintf("/sell/fulfillment/v1/order?filter=%s&limit=%d", url.QueryEscape(filter), limit)
	}

	body, err := a.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp ebayOrderListResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	page := &platform.OrderPullPage{
		NextPageToken: trimEbayBase(resp.Next, a.config.APIBaseURL),
		HasMore:       resp.Next != "",
	}
	for _, o := range resp.Orders {
		placedAt, err := time.Parse(time.RFC3339, o.CreationDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad creation date %q", ErrInvalidResponse, o.CreationDate)
		}
		pulled := platform.PulledOrder{
			PlatformOrderID: o.OrderID,
			BuyerUsername:   o.Buyer.Username,
			PlacedAt:        placedAt,
			Currency:        o.PricingSummary.Total.Currency,
			ItemTotal:       o.PricingSummary.PriceSubtotal.decimal(),
			ShippingTotal:   o.PricingSummary.DeliveryCost.decimal(),
			TaxTotal:        o.PricingSummary.Tax.decimal(),
			OrderTotal:      o.PricingSummary.Total.decimal(),
		}
		if o.CancelStatus.CancelState == "CANCELED" {
			cancelledAt := placedAt
			if t, err := time.Parse(time.RFC3339, o.CancelStatus.CancelledDate); err == nil {
				cancelledAt = t
			}
			pulled.CancelledAt = &cancelledAt
		}
		for _, li := range o.LineItems {
			itemID := li.OfferID
			if itemID == "" {
				itemID = li.LegacyItemID
			}
			pulled.Items = append(pulled.Items, platform.PulledOrderItem{
				PlatformItemID: itemID,
				Quantity:       li.Quantity,
				UnitPrice:      li.LineItemCost.decimal(),
			})
		}
		page.Orders = append(page.Orders, pulled)
	}
	return page, nil
}

// trimEbayBase reduces eBay's absolute "next" URL to a path doRequest can take.
func trimEbayBase(next, base string) string {
	if next == "" {
		return ""
	}
	return strings.TrimPrefix(next, base)
}

// doRequest performs one authenticated call and returns the raw body.
func (a *EbayAdapter) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("ebay: failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.APIBaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("ebay: failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+a.config.OAuthToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-EBAY-C-MARKETPLACE-ID", a.config.MarketplaceID)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("ebay: failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: HTTP 404", ErrListingNotFound)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: HTTP %d", ErrRequestFailed, resp.StatusCode)
	}

	return body, nil
}

var _ platform.Adapter = (*EbayAdapter)(nil)
var _ platform.OrderSource = (*EbayAdapter)(nil)
