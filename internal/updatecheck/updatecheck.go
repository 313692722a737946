// Package updatecheck compares the running version with the one published
// in a small JSON feed.
package updatecheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// ErrMandatoryUpdate is returned by Check when the feed publishes a
// different version and marks it mandatory.
var ErrMandatoryUpdate = errors.New("updatecheck: mandatory update required")

const (
	userAgent      = "hotdeploy"
	defaultTimeout = 10 * time.Second
	maxFeedBytes   = 64 << 10
)

// Feed is the published version document.
type Feed struct {
	Version     string `json:"version"`
	Enable      *int   `json:"enable,omitempty"`
	Mandatory   *int   `json:"mandatory,omitempty"`
	Message     string `json:"message,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// Result is what Check learned from the feed.
type Result struct {
	Current   string
	Latest    string
	Outdated  bool
	Mandatory bool
	Disabled  bool
	Message   string
	Download  string
}

// Checker fetches the feed over HTTP.
type Checker struct {
	url     string
	current string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a Checker. A nil client uses one with a 10s timeout.
func New(url, current string, client *http.Client, logger *slog.Logger) *Checker {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &Checker{url: url, current: current, client: client, logger: logger}
}

// Check fetches the feed and logs the verdict. Any version string other
// than the running one counts as an update. It returns ErrMandatoryUpdate
// (with the result) when that update is mandatory; network and decoding
// failures are returned as ordinary errors for the caller to log.
func (c *Checker) Check(ctx context.Context) (*Result, error) {
	c.logger.Info("checking for updates", slog.String("url", c.url))

	feed, err := c.fetch(ctx)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Current:  c.current,
		Latest:   feed.Version,
		Message:  feed.Message,
		Download: feed.DownloadURL,
	}

	if feed.Enable != nil && *feed.Enable < 1 {
		res.Disabled = true
		c.logger.Warn("version check discontinued by the server, please check manually")

		return res, nil
	}

	if feed.Version == "" || feed.Version == c.current {
		c.logger.Debug("version is up to date", slog.String("version", c.current))
		return res, nil
	}

	res.Outdated = true
	res.Mandatory = feed.Mandatory != nil && *feed.Mandatory > 0

	attrs := []any{
		slog.String("current", c.current),
		slog.String("available", feed.Version),
	}

	if feed.Message != "" {
		attrs = append(attrs, slog.String("message", feed.Message))
	}

	if feed.DownloadURL != "" {
		attrs = append(attrs, slog.String("download", feed.DownloadURL))
	}

	if res.Mandatory {
		c.logger.Error("new version available, this version is obsolete and won't run", attrs...)
		return res, ErrMandatoryUpdate
	}

	c.logger.Warn("new version available", attrs...)

	return res, nil
}

func (c *Checker) fetch(ctx context.Context) (*Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("updatecheck: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("updatecheck: fetching %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("updatecheck: fetching %s: HTTP %d", c.url, resp.StatusCode)
	}

	var feed Feed
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBytes)).Decode(&feed); err != nil {
		return nil, fmt.Errorf("updatecheck: decoding feed: %w", err)
	}

	return &feed, nil
}
