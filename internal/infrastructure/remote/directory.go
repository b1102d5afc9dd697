package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/infrastructure/logger"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// maxResponseSize limits the response body size to prevent memory exhaustion
const maxResponseSize = 32 * 1024 * 1024

// Config holds the directory client settings
type Config struct {
	// BaseURL is the API root, e.g. https://directory.example.com/api/v2
	BaseURL string
	// Token is sent as a bearer credential; empty disables the header
	Token    string
	Timeout  time.Duration
	PageSize int
}

// Errors for directory configuration
var (
	ErrConfigMissingBaseURL = errors.New("remote: base url is required")
	ErrConfigInvalidBaseURL = errors.New("remote: base url must be absolute http(s)")
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrConfigMissingBaseURL
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrConfigInvalidBaseURL
	}
	return nil
}

// Directory implements integration.RemoteDirectory over the directory's HTTP/JSON API.
// Entities live under /principals/{principal}/{collection}/{id}; the ETag header carries the version token.
type Directory struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewDirectory creates a Directory client
func NewDirectory(cfg Config, log *zap.Logger) (*Directory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Directory{
		config:     cfg,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:     log,
	}, nil
}

var _ integration.RemoteDirectory = (*Directory)(nil)

// Create posts a new entity and returns its id and version token
func (d *Directory) Create(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, rep integration.Representation) (string, integration.VersionToken, error) {
	path, err := collectionPath(principal, entityType)
	if err != nil {
		return "", "", err
	}
	resp, err := d.doRequest(ctx, http.MethodPost, path, nil, nil, entityPayload{Fields: rep})
	if err != nil {
		return "", "", err
	}

	var created entityResponse
	if err := json.Unmarshal(resp.body, &created); err != nil {
		return "", "", fmt.Errorf("%w: decode create response: %v", integration.ErrRemoteUnavailable, err)
	}
	if created.ID == "" {
		return "", "", fmt.Errorf("%w: create response without id", integration.ErrRemoteUnavailable)
	}
	return created.ID, tokenOf(resp, &created), nil
}

// Read fetches one entity; ErrRemoteNotFound if it does not exist
func (d *Directory) Read(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, remoteID string) (*integration.RemoteEntity, error) {
	path, err := entityPath(principal, entityType, remoteID)
	if err != nil {
		return nil, err
	}
	resp, err := d.doRequest(ctx, http.MethodGet, path, nil, nil, nil)
	if err != nil {
		return nil, err
	}

	var entity entityResponse
	if err := json.Unmarshal(resp.body, &entity); err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrMalformedRepresentation, err)
	}
	if entity.ID == "" {
		entity.ID = remoteID
	}
	return entity.toDomain(resp.etag), nil
}

// Update patches the given fields and returns the new version token.
// expected is sent as If-Match; the remote answers 412 when the entity moved on,
// which surfaces as ErrRemoteVersionMismatch. An empty expected token writes unconditionally.
func (d *Directory) Update(
	ctx context.Context,
	principal uuid.UUID,
	entityType integration.EntityType,
	remoteID string,
	expected integration.VersionToken,
	rep integration.Representation,
) (integration.VersionToken, error) {
	path, err := entityPath(principal, entityType, remoteID)
	if err != nil {
		return "", err
	}
	header := http.Header{}
	if !expected.IsEmpty() {
		header.Set("If-Match", expected.String())
	}
	resp, err := d.doRequest(ctx, http.MethodPatch, path, nil, header, entityPayload{Fields: rep})
	if err != nil {
		return "", err
	}

	var updated entityResponse
	if len(resp.body) > 0 {
		if err := json.Unmarshal(resp.body, &updated); err != nil {
			return "", fmt.Errorf("%w: decode update response: %v", integration.ErrRemoteUnavailable, err)
		}
	}
	token := tokenOf(resp, &updated)
	if token.IsEmpty() {
		return "", fmt.Errorf("%w: update response without version", integration.ErrRemoteUnavailable)
	}
	return token, nil
}

// Delete removes one entity; ErrRemoteNotFound if it does not exist
func (d *Directory) Delete(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, remoteID string) error {
	path, err := entityPath(principal, entityType, remoteID)
	if err != nil {
		return err
	}
	_, err = d.doRequest(ctx, http.MethodDelete, path, nil, nil, nil)
	return err
}

// Enumerate lists entity ids one page at a time
func (d *Directory) Enumerate(ctx context.Context, principal uuid.UUID, entityType integration.EntityType, filter integration.EnumerateFilter, pageToken string) (*integration.RemotePage, error) {
	path, err := collectionPath(principal, entityType)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("page_size", strconv.Itoa(d.config.PageSize))
	if pageToken != "" {
		query.Set("page_token", pageToken)
	}
	if filter.ModifiedSince != nil {
		query.Set("modified_since", filter.ModifiedSince.UTC().Format(time.RFC3339))
	}
	for _, s := range filter.ExcludeSensitivities {
		query.Add("exclude_sensitivity", s)
	}

	resp, err := d.doRequest(ctx, http.MethodGet, path, query, nil, nil)
	if err != nil {
		return nil, err
	}

	var page listResponse
	if err := json.Unmarshal(resp.body, &page); err != nil {
		return nil, fmt.Errorf("%w: decode list response: %v", integration.ErrRemoteUnavailable, err)
	}
	return &integration.RemotePage{IDs: page.IDs, NextPageToken: page.NextPageToken}, nil
}

type response struct {
	etag string
	body []byte
}

func (d *Directory) doRequest(ctx context.Context, method, path string, query url.Values, header http.Header, payload any) (*response, error) {
	var body io.Reader
	if payload != nil {
		bodyBytes, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("remote: failed to marshal request: %w", err)
		}
		body = bytes.NewReader(bodyBytes)
	}

	target := d.config.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("remote: failed to create request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if d.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+d.config.Token)
	}
	if id := logger.GetCorrelationID(ctx); id != "" {
		req.Header.Set(logger.HeaderCorrelationID, id)
	}

	start := time.Now()
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", integration.ErrRemoteUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", integration.ErrRemoteUnavailable, err)
	}

	logger.Enrich(ctx, d.logger).Debug("remote request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode >= 400 {
		return nil, statusError(resp.StatusCode, respBody)
	}
	return &response{etag: resp.Header.Get("ETag"), body: respBody}, nil
}

// statusError maps an HTTP failure onto the remote error taxonomy
func statusError(status int, body []byte) error {
	detail := http.StatusText(status)
	var e errorResponse
	if json.Unmarshal(body, &e) == nil && e.Message != "" {
		detail = e.Message
		if e.Code != "" {
			detail = e.Code + ": " + e.Message
		}
	}

	var sentinel error
	switch {
	case status == http.StatusNotFound, status == http.StatusGone:
		sentinel = integration.ErrRemoteNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		sentinel = integration.ErrRemoteAuthFailed
	case status == http.StatusTooManyRequests:
		sentinel = integration.ErrRemoteRateLimited
	case status == http.StatusPreconditionFailed, status == http.StatusConflict:
		sentinel = integration.ErrRemoteVersionMismatch
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		sentinel = integration.ErrRemoteRejected
	default:
		sentinel = integration.ErrRemoteUnavailable
	}
	return fmt.Errorf("%w: HTTP %d: %s", sentinel, status, detail)
}

func tokenOf(resp *response, entity *entityResponse) integration.VersionToken {
	if resp.etag != "" {
		return integration.VersionToken(resp.etag)
	}
	return integration.VersionToken(entity.ETag)
}

func collectionName(entityType integration.EntityType) (string, error) {
	switch entityType {
	case integration.EntityTypeContact:
		return "contacts", nil
	case integration.EntityTypeCalendarEvent:
		return "events", nil
	}
	return "", fmt.Errorf("%w: %s", integration.ErrUnsupportedEntityType, entityType)
}

func collectionPath(principal uuid.UUID, entityType integration.EntityType) (string, error) {
	collection, err := collectionName(entityType)
	if err != nil {
		return "", err
	}
	return "/principals/" + principal.String() + "/" + collection, nil
}

func entityPath(principal uuid.UUID, entityType integration.EntityType, remoteID string) (string, error) {
	if remoteID == "" {
		return "", fmt.Errorf("%w: empty remote id", integration.ErrRemoteRejected)
	}
	base, err := collectionPath(principal, entityType)
	if err != nil {
		return "", err
	}
	return base + "/" + url.PathEscape(remoteID), nil
}
