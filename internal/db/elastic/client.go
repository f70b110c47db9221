package elastic

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/climateseal/carbonmatch/internal/db"
)

// Compile-time check: Store implements db.Store.
var _ db.Store = (*Store)(nil)

// Config holds connection parameters for an Elasticsearch-compatible cluster.
type Config struct {
	Addrs    []string
	Username string
	Password string
	// InsecureSkipVerify disables TLS certificate checks (self-signed managed clusters).
	InsecureSkipVerify bool
	MaxRetries         int
	DisableRetry       bool
	// RequestTimeout bounds the wait for response headers (0 = none).
	RequestTimeout time.Duration
	// Transport overrides the HTTP transport (tests).
	Transport http.RoundTripper
}

// Store implements db.Store over the Elasticsearch REST API.
type Store struct {
	es *elasticsearch.Client
}

// NewStore creates an Elasticsearch store. No request is sent until first use.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	transport := cfg.Transport
	if transport == nil && (cfg.InsecureSkipVerify || cfg.RequestTimeout > 0) {
		t := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for managed clusters
		}
		t.ResponseHeaderTimeout = cfg.RequestTimeout
		transport = t
	}

	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:    cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		Transport:    transport,
		MaxRetries:   cfg.MaxRetries,
		DisableRetry: cfg.DisableRetry,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{es: es}, nil
}

// Ping checks connectivity via the cluster root endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.Info(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

type infoResponse struct {
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Info returns the cluster name and version.
func (s *Store) Info(ctx context.Context) (db.ClusterInfo, error) {
	res, err := s.es.Info(s.es.Info.WithContext(ctx))
	var body infoResponse
	if err := decode(ctx, db.OpInfo, res, err, &body); err != nil {
		return db.ClusterInfo{}, err
	}
	return db.ClusterInfo{ClusterName: body.ClusterName, Version: body.Version.Number}, nil
}

// Close releases idle connections.
func (s *Store) Close() {
	if t, ok := s.es.Transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

// WaitForReady polls Ping until the cluster responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for elasticsearch: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// errorResponse is the backend error envelope.
type errorResponse struct {
	Error struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
	Status int `json:"status"`
}

// apiError converts a transport failure or an error response into *db.Error.
// Returns nil for successful responses.
func apiError(ctx context.Context, op string, res *esapi.Response, err error) error {
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return &db.Error{Op: op, Err: ctxErr}
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return &db.Error{Op: op, Err: err}
		}
		return &db.Error{Op: op, Err: fmt.Errorf("%w: %w", db.ErrUnavailable, err)}
	}
	if !res.IsError() {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	var er errorResponse
	reason := string(raw)
	if json.Unmarshal(raw, &er) == nil && er.Error.Type != "" {
		reason = er.Error.Type + ": " + er.Error.Reason
	}

	switch {
	case er.Error.Type == "index_not_found_exception" || (res.StatusCode == http.StatusNotFound && len(raw) == 0):
		return &db.Error{Op: op, Status: res.StatusCode, Err: db.ErrIndexNotFound}
	case er.Error.Type == "resource_already_exists_exception":
		return &db.Error{Op: op, Status: res.StatusCode, Err: db.ErrIndexExists}
	case res.StatusCode == http.StatusBadGateway ||
		res.StatusCode == http.StatusServiceUnavailable ||
		res.StatusCode == http.StatusGatewayTimeout:
		return &db.Error{Op: op, Status: res.StatusCode, Err: fmt.Errorf("%w: %s", db.ErrUnavailable, reason)}
	default:
		return &db.Error{Op: op, Status: res.StatusCode, Err: errors.New(reason)}
	}
}

// decode checks the response and unmarshals a successful body into out.
func decode(ctx context.Context, op string, res *esapi.Response, err error, out any) error {
	if res != nil && res.Body != nil {
		defer res.Body.Close()
	}
	if err := apiError(ctx, op, res, err); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return &db.Error{Op: op, Status: res.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
