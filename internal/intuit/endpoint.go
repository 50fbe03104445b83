package intuit

import (
	"golang.org/x/oauth2"
)

// Endpoint defines the OAuth2 endpoints for QuickBooks Online. Intuit's token
// endpoint authenticates the client with HTTP basic auth (client id/secret).
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://appcenter.intuit.com/connect/oauth2",
	TokenURL:  "https://oauth.platform.intuit.com/oauth2/v1/tokens/bearer",
	AuthStyle: oauth2.AuthStyleInHeader,
}

// Scopes are the QuickBooks scopes requested during the authorization-code
// flow.
var Scopes = []string{
	"com.intuit.quickbooks.accounting",
	"openid",
	"profile",
	"email",
	"phone",
	"address",
}

// AuthState is the fixed state token sent with the authorization redirect and
// echoed back on the callback.
const AuthState = "qbo_state_1"

// Resource API base URLs. The production URL is the default; the sandbox URL
// is selectable through configuration.
const (
	ProductionBaseURL = "https://quickbooks.api.intuit.com"
	SandboxBaseURL    = "https://sandbox-quickbooks.api.intuit.com"
)
