package normalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"contact-insights-go/internal/credentials"
	"contact-insights-go/internal/logger"
	"contact-insights-go/internal/telemetry"
	"contact-insights-go/internal/types"
)

const (
	DefaultEndpoint  = "https://cleaner.dadata.ru/api/v1/clean/name"
	DefaultChunkSize = 50
)

type Options struct {
	Endpoint    string
	ChunkSize   int
	Concurrency int
	Timeout     time.Duration
	// MaxElapsed bounds the retries of a single chunk.
	MaxElapsed time.Duration
	// InitialInterval is the first retry delay; zero means the backoff default.
	InitialInterval time.Duration
	HTTPClient      *http.Client
}

// Client sends raw names to the name-cleaning API in fixed-size chunks.
type Client struct {
	opts    Options
	creds   credentials.Provider
	http    *http.Client
	log     *logger.Logger
	metrics *telemetry.Metrics
}

// cleanedName is one element of the API response.
type cleanedName struct {
	Source string `json:"source"`
	Result string `json:"result"`
	QC     int    `json:"qc"`
}

func New(opts Options, creds credentials.Provider, log *logger.Logger, metrics *telemetry.Metrics) *Client {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultEndpoint
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 30 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		opts:    opts,
		creds:   creds,
		http:    httpClient,
		log:     log.WithComponent("normalizer"),
		metrics: metrics,
	}
}

// CleanNames returns the cleaned form of every name, aligned with the input.
func (c *Client) CleanNames(ctx context.Context, names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, nil
	}
	creds, err := c.creds.Credentials(ctx)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}

	chunks := chunk(names, c.opts.ChunkSize)
	results := make([][]cleanedName, len(chunks))
	c.log.WithField("names", len(names)).WithField("chunks", len(chunks)).Info("cleaning names")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, batch := range chunks {
		g.Go(func() error {
			res, err := c.post(gctx, creds, batch)
			if err != nil {
				c.metrics.CountRequest("error")
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			if len(res) != len(batch) {
				c.metrics.CountRequest("error")
				return fmt.Errorf("chunk %d: sent %d names, got %d results", i, len(batch), len(res))
			}
			c.metrics.CountRequest("ok")
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(names))
	for _, res := range results {
		for _, r := range res {
			out = append(out, r.Result)
		}
	}
	return out, nil
}

// Normalize replaces Surname and Name of every person with the cleaned
// "Surname Name" returned for its Name. persons is updated in place and only
// once every result has been parsed.
func (c *Client) Normalize(ctx context.Context, persons []types.Person) error {
	names := make([]string, len(persons))
	for i, p := range persons {
		names[i] = p.Name
	}
	cleaned, err := c.CleanNames(ctx, names)
	if err != nil {
		return err
	}

	type split struct{ surname, name string }
	parsed := make([]split, len(cleaned))
	for i, full := range cleaned {
		surname, name, err := SplitResult(full)
		if err != nil {
			return fmt.Errorf("person %s: %w", persons[i].ID, err)
		}
		parsed[i] = split{surname, name}
	}
	for i := range persons {
		persons[i].Surname, persons[i].Name = parsed[i].surname, parsed[i].name
	}
	return nil
}

// SplitResult splits a cleaned full name into surname and the rest.
func SplitResult(result string) (string, string, error) {
	parts := strings.Fields(result)
	if len(parts) < 2 {
		return "", "", fmt.Errorf("cleaned name %q: want surname and name", result)
	}
	return parts[0], strings.Join(parts[1:], " "), nil
}

func chunk(names []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(names); start += size {
		end := min(start+size, len(names))
		out = append(out, names[start:end])
	}
	return out
}

func (c *Client) post(ctx context.Context, creds credentials.Credentials, names []string) ([]cleanedName, error) {
	body, err := json.Marshal(names)
	if err != nil {
		return nil, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.opts.MaxElapsed
	if c.opts.InitialInterval > 0 {
		bo.InitialInterval = c.opts.InitialInterval
	}

	var out []cleanedName
	var lastErr error
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.Endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Authorization", "Token "+creds.APIKey)
		req.Header.Set("X-Secret", creds.Secret)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)

		switch {
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			c.metrics.CountRequest("retry")
			lastErr = fmt.Errorf("server error: status=%d body=%s", resp.StatusCode, string(data))
			c.log.WithError(lastErr).Warn("retrying chunk")
			return lastErr
		case resp.StatusCode >= 300:
			lastErr = fmt.Errorf("request rejected: status=%d body=%s", resp.StatusCode, string(data))
			return backoff.Permanent(lastErr)
		}
		out = nil
		if err := json.Unmarshal(data, &out); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(data))
			return backoff.Permanent(lastErr)
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if lastErr != nil {
			return nil, lastErr
		}
		return nil, err
	}
	return out, nil
}
