// Package api is the REST client for the campaign platform's conversation
// endpoints. It covers exactly the contracts the sync engine consumes:
// conversation list, message pages, mark-read, text send and the three-step
// media chain (request upload target, raw upload, send from storage).
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/relaydesk/relay/internal/chat"
)

const DefaultTimeout = 30 * time.Second

// Client talks to the platform REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the given base URL and bearer token.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Error is a non-2xx API response.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// MessagePage is one page of conversation history, oldest-to-newest within
// the page.
type MessagePage struct {
	Messages []chat.Message
	HasMore  bool
	Total    int
}

// UploadTarget is the presigned destination for raw media bytes.
type UploadTarget struct {
	UploadURL  string `json:"upload_url"`
	StorageRef string `json:"storage_ref"`
}

// ListFilters narrows the conversation list fetch.
type ListFilters struct {
	Search string
	Tag    string
	Limit  int
	Offset int
}

// ListConversations fetches the conversation list, most recent activity first.
func (c *Client) ListConversations(ctx context.Context, f ListFilters) ([]chat.Conversation, error) {
	query := map[string]string{}
	if f.Search != "" {
		query["search"] = f.Search
	}
	if f.Tag != "" {
		query["tag"] = f.Tag
	}
	if f.Limit > 0 {
		query["limit"] = strconv.Itoa(f.Limit)
	}
	if f.Offset > 0 {
		query["offset"] = strconv.Itoa(f.Offset)
	}

	data, err := c.doRequest(ctx, http.MethodGet, "/v1/conversations", nil, query)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Conversations []ConversationRecord `json:"conversations"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode conversations: %w", err)
	}
	out := make([]chat.Conversation, 0, len(resp.Conversations))
	for _, r := range resp.Conversations {
		out = append(out, r.Conversation())
	}
	return out, nil
}

// FetchMessages fetches one history page at the given offset. Offset 0 is the
// newest page; within a page messages are ordered oldest-to-newest.
func (c *Client) FetchMessages(ctx context.Context, conversationID string, limit, offset int) (*MessagePage, error) {
	query := map[string]string{
		"limit":  strconv.Itoa(limit),
		"offset": strconv.Itoa(offset),
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	data, err := c.doRequest(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Messages []MessageRecord `json:"messages"`
		HasMore  bool            `json:"has_more"`
		Total    int             `json:"total"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	page := &MessagePage{HasMore: resp.HasMore, Total: resp.Total}
	for _, r := range resp.Messages {
		page.Messages = append(page.Messages, r.Message())
	}
	return page, nil
}

// MarkRead clears the unread marker for a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/read"
	_, err := c.doRequest(ctx, http.MethodPost, path, nil, nil)
	return err
}

// SendText sends a text message and returns its server-confirmed form.
func (c *Client) SendText(ctx context.Context, conversationID, body string) (chat.Message, error) {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	payload := map[string]string{"type": string(chat.KindText), "body": body}
	data, err := c.doRequest(ctx, http.MethodPost, path, payload, nil)
	if err != nil {
		return chat.Message{}, err
	}
	return decodeSendResponse(data)
}

// RequestUploadTarget asks the platform for a presigned upload destination.
func (c *Client) RequestUploadTarget(ctx context.Context, mimeType, kind, filename string) (*UploadTarget, error) {
	payload := map[string]string{
		"mime_type": mimeType,
		"kind":      kind,
		"filename":  filename,
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/v1/uploads", payload, nil)
	if err != nil {
		return nil, err
	}
	var target UploadTarget
	if err := json.Unmarshal(data, &target); err != nil {
		return nil, fmt.Errorf("decode upload target: %w", err)
	}
	return &target, nil
}

// UploadBytes PUTs raw media bytes to a presigned upload URL.
func (c *Client) UploadBytes(ctx context.Context, uploadURL, mimeType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", mimeType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: "upload rejected"}
	}
	return nil
}

// SendFromStorage sends a media message referencing previously uploaded bytes.
func (c *Client) SendFromStorage(ctx context.Context, conversationID, storageRef string, kind chat.Kind) (chat.Message, error) {
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages"
	payload := map[string]string{"type": string(kind), "storage_ref": storageRef}
	data, err := c.doRequest(ctx, http.MethodPost, path, payload, nil)
	if err != nil {
		return chat.Message{}, err
	}
	return decodeSendResponse(data)
}

func decodeSendResponse(data []byte) (chat.Message, error) {
	var resp struct {
		Messages []MessageRecord `json:"messages"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return chat.Message{}, fmt.Errorf("decode send response: %w", err)
	}
	if len(resp.Messages) == 0 {
		return chat.Message{}, fmt.Errorf("send response contained no message")
	}
	return resp.Messages[0].Message(), nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any, query map[string]string) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	return data, nil
}

func errorMessage(data []byte, fallback string) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return fallback
}
