package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

const (
	defaultDispatchTimeout = 5 * time.Second
	defaultDevicePath      = "/pstprnt"
)

// errSendDeadline marks a send that ran out of the dispatch budget, as
// opposed to a caller whose own deadline expired first.
var errSendDeadline = errors.New("dispatch timeout elapsed")

type DispatcherConfig struct {
	Timeout    time.Duration
	DevicePath string
}

// Dispatcher runs one print request through acquire, validate, select and
// send. Stages run strictly in order and the first failure ends the
// request; nothing is retried.
type Dispatcher struct {
	registry *Registry
	acquirer *Acquirer
	client   HTTPDoer
	config   DispatcherConfig
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, acquirer *Acquirer, client HTTPDoer, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDispatchTimeout
	}
	if cfg.DevicePath == "" {
		cfg.DevicePath = defaultDevicePath
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if acquirer == nil {
		acquirer = NewAcquirer(client, AcquirerConfig{}, logger)
	}
	return &Dispatcher{
		registry: registry,
		acquirer: acquirer,
		client:   client,
		config:   cfg,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req PrintRequest) (res *Result, err error) {
	jobID := uuid.NewString()
	logger := d.logger.With("job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("dispatch panicked", "panic", r)
			res = nil
			err = newError(KindDispatchNetworkError, nil, "Failed to send print job: internal error")
		}
	}()

	if req.SourceURL == "" && req.InlineContent == "" {
		return nil, newError(KindValidation, nil, "Either url or zpl must be provided")
	}

	content, err := d.acquirer.Acquire(ctx, req)
	if err != nil {
		logger.Warn("content acquisition failed", "kind", KindOf(err), "error", err)
		return nil, err
	}
	logger.Debug("content acquired", "bytes", len(content), "inline", req.InlineContent != "")

	if !ValidZPL(content) {
		logger.Warn("rejecting content without start-of-format marker", "bytes", len(content))
		return nil, newError(KindInvalidContent, nil, "Invalid ZPL content received")
	}

	printer, err := d.registry.Select(req.RoutingKey)
	if err != nil {
		logger.Error("no printer available", "error", err)
		return nil, newError(KindServerMisconfiguration, err, "No printer found")
	}
	logger.Debug("printer selected", "printer", printer.Address, "routing_key", req.RoutingKey)

	sent, err := d.send(ctx, printer, content)
	if err != nil {
		logger.Warn("print job failed", "printer", printer.Address, "kind", KindOf(err), "error", err)
		return nil, err
	}

	logger.Info("print job sent", "printer", printer.Address, "bytes", sent)

	return &Result{
		JobID:     jobID,
		Printer:   printer,
		BytesSent: sent,
		Content:   content,
	}, nil
}

func (d *Dispatcher) deviceURL(p PrinterRecord) string {
	u := url.URL{Scheme: "http", Host: p.Address, Path: d.config.DevicePath}
	return u.String()
}

// send posts content to the printer. The timeout is enforced through the
// request context, which closes the underlying connection on expiry.
func (d *Dispatcher) send(ctx context.Context, p PrinterRecord, content string) (int, error) {
	payload := []byte(content)

	sendCtx, cancel := context.WithTimeoutCause(ctx, d.config.Timeout, errSendDeadline)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(sendCtx, http.MethodPost, d.deviceURL(p), bytes.NewReader(payload))
	if err != nil {
		return 0, newError(KindDispatchNetworkError, err, "Failed to send print job: %v", err)
	}
	// The device needs an exact declared length; a known ContentLength
	// keeps the transport from switching to chunked encoding.
	httpReq.ContentLength = int64(len(payload))

	resp, err := d.client.Do(httpReq)
	if err != nil {
		if errors.Is(context.Cause(sendCtx), errSendDeadline) {
			return 0, newError(KindDispatchTimeout, err,
				"Print request timed out after %s", formatTimeout(d.config.Timeout))
		}
		return 0, newError(KindDispatchNetworkError, err, "Failed to send print job: %v", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		de := newError(KindDeviceRejected, nil, "Printer error: %s", statusText(resp))
		de.RemoteStatus = resp.StatusCode
		return 0, de
	}

	return len(payload), nil
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}
