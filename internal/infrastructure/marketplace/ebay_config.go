package marketplace

import "errors"

// EbayConfig holds configuration for the eBay Sell Inventory API
type EbayConfig struct {
	// ClientID is the application client ID from the eBay developer program
	ClientID string
	// ClientSecret is the application client secret
	ClientSecret string
	// OAuthToken is the user access token for the Sell APIs
	OAuthToken string
	// MarketplaceID selects the eBay site, e.g. EBAY_US
	MarketplaceID string
	// APIBaseURL is the base URL for the eBay API (production or sandbox)
	APIBaseURL string
	// IsSandbox indicates if this is a sandbox environment
	IsSandbox bool
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

const (
	// EbayProductionAPIURL is the production API endpoint
	EbayProductionAPIURL = "https://api.ebay.com"
	// EbaySandboxAPIURL is the sandbox API endpoint
	EbaySandboxAPIURL = "https://api.sandbox.ebay.com"
	// EbayDefaultMarketplaceID is the default marketplace site
	EbayDefaultMarketplaceID = "EBAY_US"
)

// Errors for eBay configuration
var (
	ErrEbayConfigMissingClientID   = errors.New("ebay: client ID is required")
	ErrEbayConfigMissingOAuthToken = errors.New("ebay: OAuth token is required")
)

// NewEbayConfig creates a new eBay configuration with production defaults
func NewEbayConfig(clientID, clientSecret, oauthToken string) *EbayConfig {
	return &EbayConfig{
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		OAuthToken:     oauthToken,
		MarketplaceID:  EbayDefaultMarketplaceID,
		APIBaseURL:     EbayProductionAPIURL,
		IsSandbox:      false,
		TimeoutSeconds: 30,
	}
}

// NewSandboxEbayConfig creates a new eBay configuration for the sandbox environment
func NewSandboxEbayConfig(clientID, clientSecret, oauthToken string) *EbayConfig {
	cfg := NewEbayConfig(clientID, clientSecret, oauthToken)
	cfg.APIBaseURL = EbaySandboxAPIURL
	cfg.IsSandbox = true
	return cfg
}

// Validate validates the eBay configuration
func (c *EbayConfig) Validate() error {
	if c.ClientID == "" {
		return ErrEbayConfigMissingClientID
	}
	if c.OAuthToken == "" {
		return ErrEbayConfigMissingOAuthToken
	}
	if c.MarketplaceID == "" {
		c.MarketplaceID = EbayDefaultMarketplaceID
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = EbayProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
