// Package memos is a client for the Memos v1 REST API.
package memos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"memobridge/internal/domain"
	"memobridge/internal/httpclient"
)

const (
	maxResponseBytes = 4 << 20
	maxErrorBody     = 512
	listOrderBy      = "display_time desc"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("memos: HTTP %d: %s", e.StatusCode, e.Body)
}

// Is lets errors.Is(err, domain.ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

type Config struct {
	BaseURL           string
	Token             string
	DefaultVisibility domain.Visibility
	Timeout           time.Duration
	HTTPClient        *http.Client
	// UploadClient carries attachment uploads. It defaults to HTTPClient when
	// that is set, else to a transfer client.
	UploadClient *http.Client
	Logger       *slog.Logger
}

// Client implements domain.NoteService.
type Client struct {
	baseURL    string
	token      string
	visibility domain.Visibility
	http       *http.Client
	upload     *http.Client
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	if cfg.UploadClient == nil {
		cfg.UploadClient = cfg.HTTPClient
	}
	if cfg.UploadClient == nil {
		cfg.UploadClient = httpclient.NewTransfer(0)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = httpclient.NewAPI(cfg.Timeout)
	}
	if !cfg.DefaultVisibility.Valid() {
		cfg.DefaultVisibility = domain.VisibilityPrivate
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		token:      cfg.Token,
		visibility: cfg.DefaultVisibility,
		http:       cfg.HTTPClient,
		upload:     cfg.UploadClient,
		logger:     cfg.Logger,
	}
}

// CreateNote creates a memo with the configured default visibility.
func (c *Client) CreateNote(ctx context.Context, content string) (*domain.Note, error) {
	var out memo
	body := memo{Content: content, Visibility: string(c.visibility)}
	if err := c.do(ctx, http.MethodPost, "/api/v1/memos", nil, body, &out); err != nil {
		return nil, fmt.Errorf("create memo: %w", err)
	}
	return out.toNote(), nil
}

func (c *Client) GetNote(ctx context.Context, id string) (*domain.Note, error) {
	var out memo
	if err := c.do(ctx, http.MethodGet, "/api/v1/"+memoName(id), nil, nil, &out); err != nil {
		return nil, fmt.Errorf("get memo %s: %w", id, err)
	}
	return out.toNote(), nil
}

// PatchNote sends only the fields set in patch and names them in updateMask.
func (c *Client) PatchNote(ctx context.Context, id string, patch domain.NotePatch) (*domain.Note, error) {
	body := memo{Name: memoName(id)}
	var mask []string
	if patch.Visibility != nil {
		body.Visibility = string(*patch.Visibility)
		mask = append(mask, "visibility")
	}
	if patch.Pinned != nil {
		body.Pinned = patch.Pinned
		mask = append(mask, "pinned")
	}
	if len(mask) == 0 {
		return nil, fmt.Errorf("patch memo %s: no fields to update", id)
	}

	q := url.Values{"updateMask": {strings.Join(mask, ",")}}
	var out memo
	if err := c.do(ctx, http.MethodPatch, "/api/v1/"+memoName(id), q, body, &out); err != nil {
		return nil, fmt.Errorf("patch memo %s: %w", id, err)
	}
	return out.toNote(), nil
}

// CreateAttachment uploads content and links it to the note.
func (c *Client) CreateAttachment(ctx context.Context, noteID string, att domain.NewAttachment) (*domain.Attachment, error) {
	body := attachment{
		Filename: att.Filename,
		Type:     att.MimeType,
		Content:  att.Content,
		Memo:     memoName(noteID),
	}
	var out attachment
	if err := c.send(ctx, c.upload, http.MethodPost, "/api/v1/attachments", nil, body, &out); err != nil {
		return nil, fmt.Errorf("create attachment %s: %w", att.Filename, err)
	}
	a := out.toDomain()
	return &a, nil
}

// ListNotes returns one page ordered by display time, newest first.
func (c *Client) ListNotes(ctx context.Context, pageSize int, pageToken string) (*domain.Page, error) {
	q := url.Values{
		"pageSize": {strconv.Itoa(pageSize)},
		"orderBy":  {listOrderBy},
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}
	var out listResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/memos", q, nil, &out); err != nil {
		return nil, fmt.Errorf("list memos: %w", err)
	}
	page := &domain.Page{NextToken: out.NextPageToken}
	for _, m := range out.Memos {
		page.Notes = append(page.Notes, *m.toNote())
	}
	return page, nil
}

func (c *Client) NoteURL(id string) string {
	return c.baseURL + "/" + memoName(id)
}

func (c *Client) AttachmentURL(att domain.Attachment) string {
	if att.ExternalLink != "" {
		return att.ExternalLink
	}
	return c.baseURL + "/file/" + att.Name + "/" + url.PathEscape(att.Filename)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	return c.send(ctx, c.http, method, path, query, in, out)
}

func (c *Client) send(ctx context.Context, hc *http.Client, method, path string, query url.Values, in, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	c.logger.Debug("memos request", "method", method, "path", path,
		"status", resp.StatusCode, "latency", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(data)
		if len(text) > maxErrorBody {
			text = text[:maxErrorBody]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(text)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
