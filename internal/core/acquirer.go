package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	htmlDocumentMarker = "<!doctype"
	// errorBodyDrainLimit bounds how much of a failed response is read
	// before the connection is released.
	errorBodyDrainLimit = 64 << 10
)

// SubstringMatcher reports a URL as credentialed when its string form
// contains s. This is the loose heuristic the content service was first
// integrated with; prefer HostAllowList where the hosts are known.
func SubstringMatcher(s string) CredentialMatcher {
	return func(u *url.URL) bool {
		if s == "" || u == nil {
			return false
		}
		return strings.Contains(u.String(), s)
	}
}

// HostAllowList reports a URL as credentialed when its hostname is one of
// hosts, compared case-insensitively.
func HostAllowList(hosts ...string) CredentialMatcher {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}
	return func(u *url.URL) bool {
		if u == nil {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Hostname())]
		return ok
	}
}

type AcquirerConfig struct {
	Credential       string
	CredentialHeader string
	// CredentialSource names where the operator sets Credential, for the
	// missing-credential message.
	CredentialSource string
	Matcher          CredentialMatcher
	// MaxBytes caps the downloaded body. Zero means no cap.
	MaxBytes int64
	// Timeout bounds a single download. Zero leaves it bounded only by the
	// caller's context.
	Timeout time.Duration
}

// Acquirer resolves the label content of a request, either inline or by
// downloading it from the request URL.
type Acquirer struct {
	client HTTPDoer
	config AcquirerConfig
	logger *slog.Logger
}

func NewAcquirer(client HTTPDoer, cfg AcquirerConfig, logger *slog.Logger) *Acquirer {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.CredentialHeader == "" {
		cfg.CredentialHeader = "carbon-key"
	}
	if cfg.CredentialSource == "" {
		cfg.CredentialSource = "CARBON_API_KEY"
	}
	if cfg.Matcher == nil {
		cfg.Matcher = SubstringMatcher("carbon")
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Acquirer{
		client: client,
		config: cfg,
		logger: logger,
	}
}

func (a *Acquirer) Acquire(ctx context.Context, req PrintRequest) (string, error) {
	if req.InlineContent != "" {
		return req.InlineContent, nil
	}
	if req.SourceURL == "" {
		return "", newError(KindValidation, nil, "Either url or zpl must be provided")
	}

	u, err := url.Parse(req.SourceURL)
	if err != nil {
		return "", newError(KindValidation, err, "Invalid url: %v", err)
	}

	credentialed := a.config.Matcher(u)
	if credentialed && a.config.Credential == "" {
		return "", newError(KindMissingCredential, nil,
			"%s environment variable is required for Carbon API requests", a.config.CredentialSource)
	}

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", newError(KindDownloadFailed, err, "Failed to download ZPL from URL")
	}
	if credentialed {
		httpReq.Header.Set(a.config.CredentialHeader, a.config.Credential)
	}

	a.logger.Debug("downloading label content", "url", u.Redacted(), "credentialed", credentialed)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.logger.Warn("label download failed", "url", u.Redacted(), "error", err)
		return "", newError(KindDownloadFailed, err, "Failed to download ZPL from URL")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyDrainLimit))
		de := newError(KindDownloadFailed, nil, "Failed to download ZPL from URL: %s", statusText(resp))
		de.RemoteStatus = resp.StatusCode
		return "", de
	}

	reader := io.Reader(resp.Body)
	if a.config.MaxBytes > 0 {
		reader = io.LimitReader(resp.Body, a.config.MaxBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", newError(KindDownloadFailed, err, "Failed to download ZPL from URL")
		}
		return "", newError(KindDownloadFailed, err, "Failed to read ZPL from URL: %v", err)
	}

	if a.config.MaxBytes > 0 && int64(len(body)) > a.config.MaxBytes {
		a.logger.Warn("label download too large", "url", u.Redacted(), "limit_bytes", a.config.MaxBytes)
		return "", newError(KindDownloadFailed, nil,
			"Failed to download ZPL from URL: response exceeds %d bytes", a.config.MaxBytes)
	}

	content := string(body)
	if looksLikeHTML(content) {
		return "", newError(KindUnexpectedHTMLResponse, nil,
			"Invalid ZPL content received: HTML response instead of ZPL. Make sure you have a valid %s", a.config.CredentialHeader)
	}

	return content, nil
}

func looksLikeHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	if len(trimmed) < len(htmlDocumentMarker) {
		return false
	}
	return strings.EqualFold(trimmed[:len(htmlDocumentMarker)], htmlDocumentMarker)
}

func statusText(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}
