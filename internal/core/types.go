package core

import (
	"net/http"
	"net/url"
)

// PrinterRecord is one entry of the static printer inventory.
type PrinterRecord struct {
	Address     string   `json:"address"`
	RoutingKeys []string `json:"routing_keys,omitempty"`
}

// PrintRequest is a parsed inbound print call. Empty strings mean the
// field was absent.
type PrintRequest struct {
	SourceURL     string
	InlineContent string
	RoutingKey    string
}

// Result is the successful outcome of a dispatch.
type Result struct {
	JobID     string
	Printer   PrinterRecord
	BytesSent int
	Content   string
}

// HTTPDoer is satisfied by *http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialMatcher decides whether a source URL belongs to the
// content-generation service that expects the credential header.
type CredentialMatcher func(u *url.URL) bool
