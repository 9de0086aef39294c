// Package iofetch implements the Fetcher interface against the upstream
// air quality distribution API. This is an impure I/O package doing HTTP.
package iofetch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/ecodata/aqsync/pkg/aqsync"
	"github.com/ecodata/aqsync/pkg/config"
	"github.com/ecodata/aqsync/pkg/errcode"
)

// pollutantVocabulary is the base of the upstream pollutant code list.
// The catalog endpoint expects pollutants as full vocabulary URIs.
const pollutantVocabulary = "http://dd.eionet.europa.eu/vocabulary/aq/pollutant/"

// timeLayout is the timestamp format of the catalog request body.
const timeLayout = "2006-01-02T15:04:05Z"

// Client implements aqsync.Fetcher over the upstream HTTP API.
type Client struct {
	baseURL    string
	userAgent  string
	maxRetries int
	http       *http.Client
	log        *slog.Logger
}

var _ aqsync.Fetcher = (*Client)(nil)

// New creates a fetcher from source configuration.
func New(cfg *config.SourceConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		maxRetries: cfg.MaxRetries,
		http: &http.Client{
			Timeout: time.Duration(cfg.RequestTimeoutSec) * time.Second,
		},
		log: log,
	}
}

// catalogRequest is the JSON body of the file catalog endpoint.
type catalogRequest struct {
	Countries     []string `json:"countries"`
	Cities        []string `json:"cities"`
	Pollutants    []string `json:"pollutants"`
	Dataset       int      `json:"dataset"`
	DateTimeStart string   `json:"dateTimeStart,omitempty"`
	DateTimeEnd   string   `json:"dateTimeEnd,omitempty"`
	Source        string   `json:"source"`
}

// ListFiles resolves a scope to downloadable file URLs. The endpoint
// answers with a CSV of URLs, one per line, possibly led by a BOM and a
// header row. An empty result is a NotFoundError so the caller can treat
// the scope as legitimately empty.
func (c *Client) ListFiles(ctx context.Context, scope aqsync.Scope) ([]string, error) {
	body := catalogRequest{
		Countries:  []string{scope.Country},
		Cities:     []string{},
		Pollutants: []string{fmt.Sprintf("%s%d", pollutantVocabulary, scope.PollutantCode)},
		Dataset:    scope.Dataset,
		Source:     "API",
	}
	if !scope.Range.IsZero() {
		body.DateTimeStart = scope.Range.Start.UTC().Format(timeLayout)
		body.DateTimeEnd = scope.Range.End.UTC().Format(timeLayout)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errcode.Wrap(errcode.FormatError, "cannot encode catalog request", err)
	}

	endpoint := c.baseURL + "/ParquetFile/urls"
	data, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(
			ctx, http.MethodPost, endpoint, bytes.NewReader(payload),
		)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	urls := parseURLList(data)
	if len(urls) == 0 {
		return nil, errcode.Newf(
			errcode.NotFoundError,
			"no files for %s pollutant %s", scope.Country, scope.Pollutant,
		)
	}

	c.log.Debug("catalog resolved",
		"country", scope.Country,
		"pollutant", scope.Pollutant,
		"files", len(urls),
	)
	return urls, nil
}

// Download retrieves one file and tags the payload with the requested
// range so the normalizer can filter rows the server should not have sent.
func (c *Client) Download(
	ctx context.Context, url string, requested aqsync.DateRange,
) (*aqsync.Payload, error) {
	data, err := c.doWithRetry(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	})
	if err != nil {
		return nil, err
	}
	return &aqsync.Payload{Data: data, Requested: requested}, nil
}

// doWithRetry executes a request with exponential backoff. 404 is
// permanent, 5xx and 429 and transport failures are retried up to the
// configured attempt count.
func (c *Client) doWithRetry(
	ctx context.Context,
	newReq func(context.Context) (*http.Request, error),
) ([]byte, error) {
	var data []byte

	operation := func() error {
		req, err := newReq(ctx)
		if err != nil {
			return backoff.Permanent(
				errcode.Wrap(errcode.NetworkError, "cannot build request", err),
			)
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(
					errcode.Wrap(errcode.TimeoutError, "request cancelled", ctx.Err()),
				)
			}
			return errcode.Wrap(errcode.NetworkError, "request failed", err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(
				errcode.Newf(errcode.NotFoundError, "not found: %s", req.URL),
			)
		case resp.StatusCode == http.StatusTooManyRequests,
			resp.StatusCode >= 500:
			return errcode.Newf(
				errcode.NetworkError,
				"server answered %d for %s", resp.StatusCode, req.URL,
			)
		case resp.StatusCode != http.StatusOK:
			return backoff.Permanent(errcode.Newf(
				errcode.NetworkError,
				"unexpected status %d for %s", resp.StatusCode, req.URL,
			))
		}

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return errcode.Wrap(errcode.NetworkError, "cannot read response body", err)
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(),
			uint64(c.maxRetries),
		),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.log.Warn("retrying request", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return nil, err
	}
	return data, nil
}

// parseURLList extracts http(s) URLs from the catalog's CSV answer,
// tolerating a UTF-8 BOM and a header line.
func parseURLList(data []byte) []string {
	text := strings.TrimPrefix(string(data), "\uFEFF")
	var urls []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "\r\","))
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			urls = append(urls, line)
		}
	}
	return urls
}
