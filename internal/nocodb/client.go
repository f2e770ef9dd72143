// Package nocodb is the client used by import workflows to read and write
// NocoDB tables by name. A Client resolves the base schema once at
// construction; every operation then runs against that snapshot.
//
// A Client is meant for sequential use from one goroutine. Operations block
// on one request at a time and never fan out.
package nocodb

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"noco-bridge/internal/schema"
	"noco-bridge/internal/transport"
)

// MaxPageSize is the largest page the data API returns.
const MaxPageSize = 1000

// DefaultBatchSize is used when a write is given a non-positive batch size.
const DefaultBatchSize = 10

// NullPolicy decides what update, delete and link do with rows whose
// identifier (or, for link, foreign key) is null.
type NullPolicy string

const (
	// NullSkip drops such rows and logs how many were dropped.
	NullSkip NullPolicy = "skip"
	// NullReject fails the call with an input error before any request.
	NullReject NullPolicy = "reject"
)

// ParseNullPolicy parses "skip" or "reject"; empty means NullSkip.
func ParseNullPolicy(s string) (NullPolicy, error) {
	switch NullPolicy(s) {
	case "", NullSkip:
		return NullSkip, nil
	case NullReject:
		return NullReject, nil
	default:
		return "", fmt.Errorf("unknown null policy %q: use 'skip' or 'reject'", s)
	}
}

// Options configures a Client.
type Options struct {
	// BaseURL is the server root. In static mode it overrides the server URL
	// of the API document when set.
	BaseURL string
	// BaseID is the base (project) to discover. Ignored in static mode.
	BaseID string
	Token  string

	// Document, or DocumentPath, switches to static mode: the schema is parsed
	// from a pre-fetched API description instead of the metadata endpoints.
	Document     []byte
	DocumentPath string

	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	NullPolicy        NullPolicy

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client translates name-based operations into ID-addressed API calls.
type Client struct {
	session    *transport.Session
	registry   *schema.Registry
	nullPolicy NullPolicy
	logger     *slog.Logger
}

// New resolves the schema and returns a ready client. Construction fails if
// the schema cannot be resolved completely.
func New(ctx context.Context, opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := ParseNullPolicy(string(opts.NullPolicy))
	if err != nil {
		return nil, err
	}

	sessionCfg := transport.SessionConfig{
		BaseURL:           opts.BaseURL,
		Token:             opts.Token,
		Timeout:           opts.Timeout,
		RequestsPerSecond: opts.RequestsPerSecond,
		Burst:             opts.Burst,
		HTTPClient:        opts.HTTPClient,
		Logger:            logger,
	}

	var registry *schema.Registry
	if len(opts.Document) > 0 || opts.DocumentPath != "" {
		if len(opts.Document) > 0 {
			registry, err = schema.ParseDocument(opts.Document, logger)
		} else {
			registry, err = schema.LoadDocumentFile(opts.DocumentPath, logger)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
		if opts.BaseID != "" && opts.BaseID != registry.BaseID() {
			logger.Warn("configured base ID differs from API document; using the document",
				"configured", opts.BaseID, "document", registry.BaseID())
		}
		if sessionCfg.BaseURL == "" {
			sessionCfg.BaseURL = registry.BaseURL()
		}
	}

	session, err := transport.NewSession(sessionCfg)
	if err != nil {
		return nil, err
	}

	if registry == nil {
		registry, err = schema.Discover(ctx, session, schema.DiscoverOptions{
			BaseID: opts.BaseID,
			Logger: logger,
		})
		if err != nil {
			session.Close()
			return nil, fmt.Errorf("resolve schema: %w", err)
		}
	}

	return &Client{
		session:    session,
		registry:   registry,
		nullPolicy: policy,
		logger:     logger,
	}, nil
}

// Registry returns the schema snapshot resolved at construction.
func (c *Client) Registry() *schema.Registry { return c.registry }

// Close releases the HTTP session.
func (c *Client) Close() {
	c.session.Close()
}

func (c *Client) recordsPath(tableID string) string {
	return fmt.Sprintf("%s/data/%s/%s/records",
		c.registry.APIPath(), url.PathEscape(c.registry.BaseID()), url.PathEscape(tableID))
}

func (c *Client) linksPath(tableID, linkFieldID string, recordID int64) string {
	return fmt.Sprintf("%s/data/%s/%s/links/%s/%d",
		c.registry.APIPath(), url.PathEscape(c.registry.BaseID()), url.PathEscape(tableID),
		url.PathEscape(linkFieldID), recordID)
}

// chunks returns the [start, end) bounds of contiguous batches of at most
// size items.
func chunks(n, size int) [][2]int {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		out = append(out, [2]int{start, min(start+size, n)})
	}
	return out
}
