package marketplace

import "errors"

// WhatnotConfig holds configuration for the Whatnot seller API
type WhatnotConfig struct {
	// APIToken is the seller API token
	APIToken string
	// SellerID is the seller account identifier
	SellerID string
	// APIBaseURL is the base URL for the Whatnot API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
}

// WhatnotProductionAPIURL is the production API endpoint
const WhatnotProductionAPIURL = "https://api.whatnot.com"

// Errors for Whatnot configuration
var (
	ErrWhatnotConfigMissingAPIToken = errors.New("whatnot: API token is required")
	ErrWhatnotConfigMissingSellerID = errors.New("whatnot: seller ID is required")
)

// NewWhatnotConfig creates a new Whatnot configuration with defaults
func NewWhatnotConfig(apiToken, sellerID string) *WhatnotConfig {
	return &WhatnotConfig{
		APIToken:       apiToken,
		SellerID:       sellerID,
		APIBaseURL:     WhatnotProductionAPIURL,
		TimeoutSeconds: 30,
	}
}

// Validate validates the Whatnot configuration
func (c *WhatnotConfig) Validate() error {
	if c.APIToken == "" {
		return ErrWhatnotConfigMissingAPIToken
	}
	if c.SellerID == "" {
		return ErrWhatnotConfigMissingSellerID
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = WhatnotProductionAPIURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	return nil
}
