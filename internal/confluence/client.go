// Package confluence is an HTTP client for the remote page API. Page bodies
// travel in storage format; the converter package translates them to and from
// Markdown.
package confluence

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultHTTPTimeout      = 30 * time.Second
	defaultUserAgent        = "confluence-mirror/dev"
	defaultRequestsPerSec   = 5
	maxErrorBodyBytes       = 1 << 20 // 1 MiB
	pageExpandParams        = "body.storage,version,ancestors,space,history,history.lastUpdated,restrictions.read.restrictions.user,restrictions.read.restrictions.group"
	defaultPageListPageSize = 100
)

// ErrNotFound indicates the requested resource does not exist.
var ErrNotFound = errors.New("confluence resource not found")

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Method     string
	URL        string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if msg == "" {
		msg = strings.TrimSpace(e.Body)
	}
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if msg == "" {
		msg = "request failed"
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, msg)
}

// ClientConfig configures the HTTP client.
type ClientConfig struct {
	BaseURL    string
	Email      string
	APIToken   string
	HTTPClient *http.Client
	UserAgent  string
	// RequestsPerSecond caps the request rate; zero uses the default.
	RequestsPerSecond float64
}

// Client is the HTTP-backed implementation of Service.
type Client struct {
	baseURL    string
	email      string
	apiToken   string
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
}

var _ Service = (*Client)(nil)

// NewClient creates a rate-limited API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	email := strings.TrimSpace(cfg.Email)
	token := strings.TrimSpace(cfg.APIToken)

	if baseURL == "" {
		return nil, errors.New("confluence base URL is required")
	}
	if email == "" {
		return nil, errors.New("confluence email is required")
	}
	if token == "" {
		return nil, errors.New("confluence API token is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid confluence base URL: %w", err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSec
	}

	return &Client{
		baseURL:    baseURL,
		email:      email,
		apiToken:   token,
		httpClient: httpClient,
		userAgent:  userAgent,
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// GetSpace finds a space by key.
func (c *Client) GetSpace(ctx context.Context, spaceKey string) (Space, error) {
	key := strings.TrimSpace(spaceKey)
	if key == "" {
		return Space{}, errors.New("space key is required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodGet,
		"/wiki/rest/api/space/"+url.PathEscape(key),
		url.Values{"expand": []string{"homepage"}},
		nil,
	)
	if err != nil {
		return Space{}, err
	}

	var payload spaceDTO
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return Space{}, ErrNotFound
		}
		return Space{}, err
	}
	return payload.toModel(), nil
}

// GetPage fetches a single page with storage body, ancestors and restriction
// state.
func (c *Client) GetPage(ctx context.Context, pageID string) (Page, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return Page{}, errors.New("page ID is required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodGet,
		"/wiki/rest/api/content/"+url.PathEscape(id),
		url.Values{"expand": []string{pageExpandParams}},
		nil,
	)
	if err != nil {
		return Page{}, err
	}

	var payload contentDTO
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return Page{}, ErrNotFound
		}
		return Page{}, err
	}
	return payload.toModel(), nil
}

// ListPages returns one page of space-scoped summaries.
func (c *Client) ListPages(ctx context.Context, opts PageListOptions) (PageListResult, error) {
	query := url.Values{}
	if opts.SpaceKey != "" {
		query.Set("space-key", opts.SpaceKey)
	}
	if opts.Status != "" {
		query.Set("status", opts.Status)
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultPageListPageSize
	}
	query.Set("limit", strconv.Itoa(limit))
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}

	req, err := c.newRequest(ctx, http.MethodGet, "/wiki/api/v2/pages", query, nil)
	if err != nil {
		return PageListResult{}, err
	}

	var payload v2ListResponse[pageSummaryDTO]
	if err := c.do(req, &payload); err != nil {
		return PageListResult{}, err
	}

	out := PageListResult{
		Pages:      make([]Page, 0, len(payload.Results)),
		NextCursor: extractCursor(payload.Cursor, payload.Meta.Cursor, payload.Links.Next),
	}
	for _, item := range payload.Results {
		out.Pages = append(out.Pages, item.toModel(opts.SpaceKey))
	}
	return out, nil
}

// ListAllPages drains the cursor pagination of ListPages.
func (c *Client) ListAllPages(ctx context.Context, opts PageListOptions) ([]Page, error) {
	var all []Page
	cursor := ""
	for {
		opts.Cursor = cursor
		result, err := c.ListPages(ctx, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, result.Pages...)
		if result.NextCursor == "" || len(result.Pages) == 0 {
			return all, nil
		}
		cursor = result.NextCursor
	}
}

// ListDescendants returns summaries for every page under an ancestor,
// using a CQL search with offset pagination.
func (c *Client) ListDescendants(ctx context.Context, ancestorID string) ([]Page, error) {
	id := strings.TrimSpace(ancestorID)
	if id == "" {
		return nil, errors.New("ancestor ID is required")
	}

	var all []Page
	start := 0
	for {
		query := url.Values{}
		query.Set("cql", fmt.Sprintf("type=page AND ancestor=%s", id))
		query.Set("limit", strconv.Itoa(defaultPageListPageSize))
		query.Set("start", strconv.Itoa(start))
		query.Set("expand", "version,space")

		req, err := c.newRequest(ctx, http.MethodGet, "/wiki/rest/api/content/search", query, nil)
		if err != nil {
			return nil, err
		}

		var payload searchResponse
		if err := c.do(req, &payload); err != nil {
			return nil, err
		}
		for _, item := range payload.Results {
			all = append(all, item.toModel())
		}

		next := extractNextStart(payload.Start, payload.Links.Next)
		if next <= start || len(payload.Results) == 0 {
			return all, nil
		}
		start = next
	}
}

// CreatePage creates a page with a storage-format body.
func (c *Client) CreatePage(ctx context.Context, input PageUpsertInput) (Page, error) {
	if strings.TrimSpace(input.SpaceKey) == "" {
		return Page{}, errors.New("space key is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return Page{}, errors.New("page title is required")
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/wiki/rest/api/content", nil, contentWritePayload(input, ""))
	if err != nil {
		return Page{}, err
	}

	var payload contentDTO
	if err := c.do(req, &payload); err != nil {
		return Page{}, err
	}
	return payload.toModel(), nil
}

// UpdatePage replaces a page's title and body at the given version.
func (c *Client) UpdatePage(ctx context.Context, pageID string, input PageUpsertInput) (Page, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return Page{}, errors.New("page ID is required")
	}
	if strings.TrimSpace(input.Title) == "" {
		return Page{}, errors.New("page title is required")
	}
	if input.Version <= 0 {
		return Page{}, errors.New("page version is required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodPut,
		"/wiki/rest/api/content/"+url.PathEscape(id),
		nil,
		contentWritePayload(input, id),
	)
	if err != nil {
		return Page{}, err
	}

	var payload contentDTO
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return Page{}, ErrNotFound
		}
		return Page{}, err
	}
	return payload.toModel(), nil
}

// DeletePage deletes a page.
func (c *Client) DeletePage(ctx context.Context, pageID string) error {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return errors.New("page ID is required")
	}

	req, err := c.newRequest(ctx, http.MethodDelete, "/wiki/rest/api/content/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ArchivePage archives a single page.
func (c *Client) ArchivePage(ctx context.Context, pageID string) error {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return errors.New("page ID is required")
	}

	payload := map[string]any{
		"pages": []map[string]string{{"id": id}},
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/wiki/rest/api/content/archive", nil, payload)
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// GetLabels lists a page's labels.
func (c *Client) GetLabels(ctx context.Context, pageID string) ([]string, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return nil, errors.New("page ID is required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodGet,
		"/wiki/rest/api/content/"+url.PathEscape(id)+"/label",
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []struct {
			Name string `json:"name"`
		} `json:"results"`
	}
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	labels := make([]string, 0, len(payload.Results))
	for _, item := range payload.Results {
		labels = append(labels, item.Name)
	}
	return labels, nil
}

// AddLabel attaches a global label to a page.
func (c *Client) AddLabel(ctx context.Context, pageID, label string) error {
	id := strings.TrimSpace(pageID)
	name := strings.TrimSpace(label)
	if id == "" || name == "" {
		return errors.New("page ID and label are required")
	}

	payload := []map[string]string{{"prefix": "global", "name": name}}
	req, err := c.newRequest(
		ctx,
		http.MethodPost,
		"/wiki/rest/api/content/"+url.PathEscape(id)+"/label",
		nil,
		payload,
	)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// RemoveLabel detaches a label from a page.
func (c *Client) RemoveLabel(ctx context.Context, pageID, label string) error {
	id := strings.TrimSpace(pageID)
	name := strings.TrimSpace(label)
	if id == "" || name == "" {
		return errors.New("page ID and label are required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodDelete,
		"/wiki/rest/api/content/"+url.PathEscape(id)+"/label/"+url.PathEscape(name),
		nil,
		nil,
	)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// ListAttachments lists a page's attachments.
func (c *Client) ListAttachments(ctx context.Context, pageID string) ([]Attachment, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return nil, errors.New("page ID is required")
	}

	req, err := c.newRequest(
		ctx,
		http.MethodGet,
		"/wiki/rest/api/content/"+url.PathEscape(id)+"/child/attachment",
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	var payload attachmentListResponse
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	out := make([]Attachment, 0, len(payload.Results))
	for _, item := range payload.Results {
		out = append(out, item.toModel(id))
	}
	return out, nil
}

// UploadAttachment uploads a new attachment to a page.
func (c *Client) UploadAttachment(ctx context.Context, input AttachmentUploadInput) (Attachment, error) {
	pageID := strings.TrimSpace(input.PageID)
	if pageID == "" {
		return Attachment{}, errors.New("page ID is required")
	}
	return c.postAttachmentData(
		ctx,
		"/wiki/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment",
		pageID,
		input,
	)
}

// UpdateAttachment replaces the data of an existing attachment.
func (c *Client) UpdateAttachment(ctx context.Context, attachmentID string, input AttachmentUploadInput) (Attachment, error) {
	pageID := strings.TrimSpace(input.PageID)
	id := strings.TrimSpace(attachmentID)
	if pageID == "" || id == "" {
		return Attachment{}, errors.New("page ID and attachment ID are required")
	}
	return c.postAttachmentData(
		ctx,
		"/wiki/rest/api/content/"+url.PathEscape(pageID)+"/child/attachment/"+url.PathEscape(id)+"/data",
		pageID,
		input,
	)
}

func (c *Client) postAttachmentData(ctx context.Context, pathSuffix, pageID string, input AttachmentUploadInput) (Attachment, error) {
	filename := strings.TrimSpace(input.Filename)
	if filename == "" {
		return Attachment{}, errors.New("filename is required")
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	filePart, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return Attachment{}, fmt.Errorf("create multipart file part: %w", err)
	}
	if _, err := filePart.Write(input.Data); err != nil {
		return Attachment{}, fmt.Errorf("write multipart payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Attachment{}, fmt.Errorf("close multipart payload: %w", err)
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return Attachment{}, err
	}
	u.Path = path.Join(u.Path, pathSuffix)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), body)
	if err != nil {
		return Attachment{}, err
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("X-Atlassian-Token", "no-check")
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var payload attachmentUploadResponse
	if err := c.do(req, &payload); err != nil {
		if isHTTPStatus(err, http.StatusNotFound) {
			return Attachment{}, ErrNotFound
		}
		return Attachment{}, err
	}

	item, ok := payload.first()
	if !ok || strings.TrimSpace(item.ID) == "" {
		return Attachment{}, errors.New("attachment response missing id")
	}
	return item.toModel(pageID), nil
}

// ListVersions returns the page's version history, newest first.
func (c *Client) ListVersions(ctx context.Context, pageID string) ([]Version, error) {
	id := strings.TrimSpace(pageID)
	if id == "" {
		return nil, errors.New("page ID is required")
	}

	var all []Version
	start := 0
	for {
		query := url.Values{}
		query.Set("limit", strconv.Itoa(defaultPageListPageSize))
		query.Set("start", strconv.Itoa(start))

		req, err := c.newRequest(
			ctx,
			http.MethodGet,
			"/wiki/rest/api/content/"+url.PathEscape(id)+"/version",
			query,
			nil,
		)
		if err != nil {
			return nil, err
		}

		var payload versionListResponse
		if err := c.do(req, &payload); err != nil {
			if isHTTPStatus(err, http.StatusNotFound) {
				return nil, ErrNotFound
			}
			return nil, err
		}
		for _, item := range payload.Results {
			all = append(all, Version{
				Number: item.Number,
				By:     item.By.AccountID,
				When:   parseRemoteTime(item.When),
			})
		}

		next := extractNextStart(payload.Start, payload.Links.Next)
		if next <= start || len(payload.Results) == 0 {
			return all, nil
		}
		start = next
	}
}

// LookupUsers fetches accounts in bulk.
func (c *Client) LookupUsers(ctx context.Context, accountIDs []string) ([]User, error) {
	ids := make([]string, 0, len(accountIDs))
	for _, id := range accountIDs {
		if clean := strings.TrimSpace(id); clean != "" {
			ids = append(ids, clean)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	query := url.Values{}
	query.Set("accountId", strings.Join(ids, ","))

	req, err := c.newRequest(ctx, http.MethodGet, "/wiki/rest/api/user/bulk", query, nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Results []userDTO `json:"results"`
	}
	if err := c.do(req, &payload); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(payload.Results))
	for _, item := range payload.Results {
		users = append(users, item.toModel())
	}
	return users, nil
}

// RegisterWebhook subscribes the callback URL to page events and returns the
// registration id.
func (c *Client) RegisterWebhook(ctx context.Context, input WebhookRegistration) (string, error) {
	if strings.TrimSpace(input.URL) == "" {
		return "", errors.New("webhook URL is required")
	}
	events := input.Events
	if len(events) == 0 {
		events = []string{"page_created", "page_updated", "page_removed", "page_trashed"}
	}

	payload := map[string]any{
		"name":   input.Name,
		"url":    input.URL,
		"events": events,
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/wiki/rest/api/webhooks", nil, payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) newRequest(
	ctx context.Context,
	method string,
	pathSuffix string,
	query url.Values,
	body any,
) (*http.Request, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	u.Path = path.Join(u.Path, pathSuffix)

	if query != nil {
		q := u.Query()
		for key, vals := range query {
			for _, v := range vals {
				q.Add(key, v)
			}
		}
		u.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bodyReader)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.email, c.apiToken)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &APIError{
			StatusCode: resp.StatusCode,
			Method:     req.Method,
			URL:        req.URL.String(),
			Message:    decodeAPIErrorMessage(bodyBytes),
			Body:       string(bodyBytes),
		}
	}

	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("decode response JSON: %w", err)
	}
	return nil
}

func isHTTPStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func decodeAPIErrorMessage(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	for _, key := range []string{"message", "error", "reason"} {
		if v, ok := payload[key].(string); ok {
			return v
		}
	}
	return ""
}

func extractCursor(candidates ...string) string {
	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		if strings.Contains(candidate, "cursor=") {
			nextURL, err := url.Parse(candidate)
			if err == nil {
				if cursor := nextURL.Query().Get("cursor"); cursor != "" {
					return cursor
				}
			}
		}
		return candidate
	}
	return ""
}

func extractNextStart(current int, nextLink string) int {
	if strings.TrimSpace(nextLink) == "" {
		return current
	}
	nextURL, err := url.Parse(nextLink)
	if err != nil {
		return current
	}
	start := nextURL.Query().Get("start")
	if start == "" {
		return current
	}
	n, err := strconv.Atoi(start)
	if err != nil {
		return current
	}
	return n
}

func contentWritePayload(input PageUpsertInput, pageID string) map[string]any {
	payload := map[string]any{
		"type":   "page",
		"title":  strings.TrimSpace(input.Title),
		"status": defaultPageStatus(input.Status),
		"space": map[string]string{
			"key": strings.TrimSpace(input.SpaceKey),
		},
		"body": map[string]any{
			"storage": map[string]string{
				"representation": "storage",
				"value":          input.BodyStorage,
			},
		},
	}
	if pageID != "" {
		payload["id"] = pageID
	}
	if input.ParentID != "" {
		payload["ancestors"] = []map[string]string{{"id": strings.TrimSpace(input.ParentID)}}
	}
	if input.Version > 0 {
		payload["version"] = map[string]any{"number": input.Version}
	}
	return payload
}

func defaultPageStatus(v string) string {
	status := strings.TrimSpace(v)
	if status == "" {
		return "current"
	}
	return status
}

func parseRemoteTime(candidates ...string) time.Time {
	for _, candidate := range candidates {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		for _, layout := range []string{
			time.RFC3339,
			time.RFC3339Nano,
			"2006-01-02T15:04:05.000Z0700",
			"2006-01-02T15:04:05.000Z07:00",
		} {
			t, err := time.Parse(layout, candidate)
			if err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

type v2ListResponse[T any] struct {
	Results []T    `json:"results"`
	Cursor  string `json:"cursor"`
	Meta    struct {
		Cursor string `json:"cursor"`
	} `json:"meta"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type spaceDTO struct {
	ID       json.Number `json:"id"`
	Key      string      `json:"key"`
	Name     string      `json:"name"`
	Homepage struct {
		ID string `json:"id"`
	} `json:"homepage"`
}

func (s spaceDTO) toModel() Space {
	return Space{
		ID:         s.ID.String(),
		Key:        s.Key,
		Name:       s.Name,
		HomepageID: s.Homepage.ID,
	}
}

type userRefDTO struct {
	AccountID string `json:"accountId"`
}

// contentDTO is the v1 content API shape used by GetPage, CreatePage and
// UpdatePage.
type contentDTO struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
	Space  struct {
		Key string `json:"key"`
	} `json:"space"`
	Ancestors []struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"ancestors"`
	Version struct {
		Number int        `json:"number"`
		By     userRefDTO `json:"by"`
		When   string     `json:"when"`
	} `json:"version"`
	History struct {
		CreatedBy   userRefDTO `json:"createdBy"`
		CreatedDate string     `json:"createdDate"`
		LastUpdated struct {
			By   userRefDTO `json:"by"`
			When string     `json:"when"`
		} `json:"lastUpdated"`
	} `json:"history"`
	Body struct {
		Storage struct {
			Value string `json:"value"`
		} `json:"storage"`
	} `json:"body"`
	Restrictions struct {
		Read struct {
			Restrictions struct {
				User struct {
					Results []json.RawMessage `json:"results"`
				} `json:"user"`
				Group struct {
					Results []json.RawMessage `json:"results"`
				} `json:"group"`
			} `json:"restrictions"`
		} `json:"read"`
	} `json:"restrictions"`
}

func (p contentDTO) toModel() Page {
	ancestors := make([]Ancestor, 0, len(p.Ancestors))
	for _, a := range p.Ancestors {
		ancestors = append(ancestors, Ancestor{ID: a.ID, Title: a.Title})
	}
	parentID := ""
	if len(ancestors) > 0 {
		parentID = ancestors[len(ancestors)-1].ID
	}
	restricted := len(p.Restrictions.Read.Restrictions.User.Results) > 0 ||
		len(p.Restrictions.Read.Restrictions.Group.Results) > 0

	return Page{
		ID:           p.ID,
		SpaceKey:     p.Space.Key,
		Title:        p.Title,
		Status:       p.Status,
		ParentID:     parentID,
		Ancestors:    ancestors,
		Restricted:   restricted,
		Version:      p.Version.Number,
		CreatedBy:    p.History.CreatedBy.AccountID,
		CreatedAt:    parseRemoteTime(p.History.CreatedDate),
		ModifiedBy:   firstNonEmpty(p.History.LastUpdated.By.AccountID, p.Version.By.AccountID),
		LastModified: parseRemoteTime(p.History.LastUpdated.When, p.Version.When),
		BodyStorage:  p.Body.Storage.Value,
	}
}

// pageSummaryDTO is the v2 pages API shape used by ListPages.
type pageSummaryDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Status   string `json:"status"`
	ParentID string `json:"parentId"`
	Version  struct {
		Number    int    `json:"number"`
		CreatedAt string `json:"createdAt"`
	} `json:"version"`
}

func (p pageSummaryDTO) toModel(spaceKey string) Page {
	return Page{
		ID:           p.ID,
		SpaceKey:     spaceKey,
		Title:        p.Title,
		Status:       p.Status,
		ParentID:     p.ParentID,
		Version:      p.Version.Number,
		LastModified: parseRemoteTime(p.Version.CreatedAt),
	}
}

type searchResponse struct {
	Results []searchResultDTO `json:"results"`
	Start   int               `json:"start"`
	Limit   int               `json:"limit"`
	Size    int               `json:"size"`
	Links   struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type searchResultDTO struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Space struct {
		Key string `json:"key"`
	} `json:"space"`
	Version struct {
		Number int    `json:"number"`
		When   string `json:"when"`
	} `json:"version"`
}

func (r searchResultDTO) toModel() Page {
	return Page{
		ID:           r.ID,
		SpaceKey:     r.Space.Key,
		Title:        r.Title,
		Status:       "current",
		Version:      r.Version.Number,
		LastModified: parseRemoteTime(r.Version.When),
	}
}

type versionListResponse struct {
	Results []struct {
		Number int        `json:"number"`
		By     userRefDTO `json:"by"`
		When   string     `json:"when"`
	} `json:"results"`
	Start int `json:"start"`
	Links struct {
		Next string `json:"next"`
	} `json:"_links"`
}

type userDTO struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	// The remote omits accountStatus for apps and external users.
	AccountStatus string `json:"accountStatus"`
}

func (u userDTO) toModel() User {
	user := User{
		AccountID:   u.AccountID,
		DisplayName: u.DisplayName,
		Email:       u.Email,
	}
	switch u.AccountStatus {
	case "active":
		active := true
		user.Active = &active
	case "inactive", "deactivated", "closed":
		active := false
		user.Active = &active
	}
	return user
}

type attachmentListResponse struct {
	Results []attachmentDTO `json:"results"`
}

type attachmentDTO struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Metadata struct {
		MediaType string `json:"mediaType"`
	} `json:"metadata"`
	Extensions struct {
		MediaType string `json:"mediaType"`
	} `json:"extensions"`
}

func (a attachmentDTO) toModel(pageID string) Attachment {
	return Attachment{
		ID:        a.ID,
		PageID:    pageID,
		Filename:  a.Title,
		MediaType: firstNonEmpty(a.Metadata.MediaType, a.Extensions.MediaType),
	}
}

type attachmentUploadResponse struct {
	Results []attachmentDTO `json:"results"`
	// Single-object responses from the data endpoint.
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (r attachmentUploadResponse) first() (attachmentDTO, bool) {
	if len(r.Results) > 0 {
		return r.Results[0], true
	}
	if r.ID != "" {
		return attachmentDTO{ID: r.ID, Title: r.Title}, true
	}
	return attachmentDTO{}, false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value != "" {
			return value
		}
	}
	return ""
}
