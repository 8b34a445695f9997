package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Client is a credential-scoped API client. Create it with [New] and call
// [Client.Connect] before any other method.
//
// A connected Client is safe for concurrent use.
type Client struct {
	token     string
	options   *Options
	transport *Transport
	mu        sync.RWMutex
	connected bool
}

// New creates a client for the given access token. Options are validated by
// [Client.Connect].
func New(token string, opts ...Option) *Client {
	options := newClientOptions()

	for _, o := range opts {
		o(options)
	}

	return &Client{
		token:   token,
		options: options,
	}
}

// Connect validates the options, prepares the transport and verifies the
// access token with people/me. Calling Connect on a connected client is a
// no-op. A failed Connect may be retried.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return errors.New("client is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	if err := c.options.Validate(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}

	if strings.TrimSpace(c.token) == "" {
		return errors.New("access token must be set")
	}

	transport, err := newTransport(c.token, c.options)
	if err != nil {
		return err
	}

	req, err := NewRequest(http.MethodGet, c.options.baseURL+"people/me")
	if err != nil {
		return err
	}

	res, err := execute[Person](ctx, transport, req)
	if err != nil {
		transport.close()
		return fmt.Errorf("failed to connect: %w", err)
	}

	res.expectStatus(http.StatusOK)

	if _, err := res.Value(); err != nil {
		transport.close()
		return fmt.Errorf("failed to verify access token: %w", err)
	}

	c.transport = transport
	c.connected = true

	c.options.requestLogger.Debugf("connected to %s as %s", c.options.baseURL, res.Data.ID)

	return nil
}

// Close releases idle connections. The client must be connected again
// before further use.
func (c *Client) Close() {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport != nil {
		c.transport.close()
	}

	c.transport = nil
	c.connected = false
}

// EndpointURL resolves an endpoint path such as "messages" against the base
// URL.
func (c *Client) EndpointURL(path string) string {
	return c.options.baseURL + strings.TrimPrefix(path, "/")
}

// newRequest builds a request for an endpoint path below the base URL.
func (c *Client) newRequest(method, path string, opts ...RequestOption) (*Request, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}
	return NewRequest(method, c.EndpointURL(path), opts...)
}

func (c *Client) currentTransport() (*Transport, error) {
	if c == nil {
		return nil, errors.New("client is nil")
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.connected {
		return nil, ErrNotConnected
	}

	return c.transport, nil
}

// Do executes req and decodes the response into T. Success is narrowed to
// expectedStatus.
func Do[T any](ctx context.Context, c *Client, req *Request, expectedStatus int) (*Result[T], error) {
	t, err := c.currentTransport()
	if err != nil {
		return &Result[T]{}, err
	}

	res, err := execute[T](ctx, t, req)
	if err != nil {
		return res, err
	}

	res.expectStatus(expectedStatus)

	return res, nil
}

// DoList executes a list request and decodes one page of items. Success is
// narrowed to 200.
func DoList[T any](ctx context.Context, c *Client, req *Request) (*ListResult[T], error) {
	t, err := c.currentTransport()
	if err != nil {
		return &ListResult[T]{}, err
	}

	res, err := executeList[T](ctx, t, req)
	if err != nil {
		return res, err
	}

	res.expectStatus(http.StatusOK)

	return res, nil
}

func pageQuery(pageSize int, params url.Values) url.Values {
	if params == nil {
		params = url.Values{}
	}
	if pageSize > 0 {
		params.Set("max", strconv.Itoa(pageSize))
	}
	return params
}

// NewMessage is the body of a message creation. Exactly one of SpaceID,
// ToPersonID and ToPersonEmail addresses the message.
type NewMessage struct {
	SpaceID       string   `json:"roomId,omitempty"`
	ToPersonID    string   `json:"toPersonId,omitempty"`
	ToPersonEmail string   `json:"toPersonEmail,omitempty"`
	Text          string   `json:"text,omitempty"`
	Markdown      string   `json:"markdown,omitempty"`
	Files         []string `json:"files,omitempty"`
}

func (m NewMessage) validate() error {
	targets := 0
	for _, v := range []string{m.SpaceID, m.ToPersonID, m.ToPersonEmail} {
		if v != "" {
			targets++
		}
	}
	if targets != 1 {
		return errors.New("message must be addressed to exactly one of space id, person id or person email")
	}
	return nil
}

func (m NewMessage) fields() map[string]string {
	fields := map[string]string{}
	for k, v := range map[string]string{
		"roomId":        m.SpaceID,
		"toPersonId":    m.ToPersonID,
		"toPersonEmail": m.ToPersonEmail,
		"text":          m.Text,
		"markdown":      m.Markdown,
	} {
		if v != "" {
			fields[k] = v
		}
	}
	return fields
}

func (c *Client) CreateMessage(ctx context.Context, msg NewMessage) (*Result[Message], error) {
	if err := msg.validate(); err != nil {
		return &Result[Message]{}, err
	}

	req, err := c.newRequest(http.MethodPost, "messages", WithJSONBody(msg))
	if err != nil {
		return &Result[Message]{}, err
	}

	return Do[Message](ctx, c, req, http.StatusOK)
}

// CreateMessageWithFile posts a message with one uploaded attachment. The
// file is streamed, so the call cannot be retried with the same reader.
func (c *Client) CreateMessageWithFile(ctx context.Context, msg NewMessage, file *FilePart) (*Result[Message], error) {
	if err := msg.validate(); err != nil {
		return &Result[Message]{}, err
	}

	if file == nil {
		return &Result[Message]{}, errors.New("file must not be nil")
	}

	if len(msg.Files) > 0 {
		return &Result[Message]{}, errors.New("file URLs cannot be combined with an uploaded file")
	}

	req, err := c.newRequest(http.MethodPost, "messages", WithMultipart(msg.fields(), file))
	if err != nil {
		return &Result[Message]{}, err
	}

	return Do[Message](ctx, c, req, http.StatusOK)
}

func (c *Client) GetMessage(ctx context.Context, messageID string) (*Result[Message], error) {
	req, err := c.newRequest(http.MethodGet, "messages/"+url.PathEscape(messageID))
	if err != nil {
		return &Result[Message]{}, err
	}

	return Do[Message](ctx, c, req, http.StatusOK)
}

// ListMessages lists the messages of a space, newest first. A pageSize of zero
// leaves the page size to the server.
func (c *Client) ListMessages(ctx context.Context, spaceID string, pageSize int) (*ListResult[Message], error) {
	if spaceID == "" {
		return &ListResult[Message]{}, errors.New("space id must be set")
	}

	req, err := c.newRequest(http.MethodGet, "messages",
		WithQuery(pageQuery(pageSize, url.Values{"roomId": {spaceID}})))
	if err != nil {
		return &ListResult[Message]{}, err
	}

	return DoList[Message](ctx, c, req)
}

func (c *Client) DeleteMessage(ctx context.Context, messageID string) (*Result[NoContent], error) {
	req, err := c.newRequest(http.MethodDelete, "messages/"+url.PathEscape(messageID))
	if err != nil {
		return &Result[NoContent]{}, err
	}

	return Do[NoContent](ctx, c, req, http.StatusNoContent)
}

func (c *Client) CreateSpace(ctx context.Context, title, teamID string) (*Result[Space], error) {
	body := struct {
		Title  string `json:"title"`
		TeamID string `json:"teamId,omitempty"`
	}{Title: title, TeamID: teamID}

	req, err := c.newRequest(http.MethodPost, "rooms", WithJSONBody(body))
	if err != nil {
		return &Result[Space]{}, err
	}

	return Do[Space](ctx, c, req, http.StatusOK)
}

func (c *Client) GetSpace(ctx context.Context, spaceID string) (*Result[Space], error) {
	req, err := c.newRequest(http.MethodGet, "rooms/"+url.PathEscape(spaceID))
	if err != nil {
		return &Result[Space]{}, err
	}

	return Do[Space](ctx, c, req, http.StatusOK)
}

// ListSpaces lists the spaces the caller belongs to. spaceType may be
// "direct", "group" or empty for both.
func (c *Client) ListSpaces(ctx context.Context, spaceType string, pageSize int) (*ListResult[Space], error) {
	req, err := c.newRequest(http.MethodGet, "rooms",
		WithQuery(pageQuery(pageSize, url.Values{"type": {spaceType}})))
	if err != nil {
		return &ListResult[Space]{}, err
	}

	return DoList[Space](ctx, c, req)
}

func (c *Client) DeleteSpace(ctx context.Context, spaceID string) (*Result[NoContent], error) {
	req, err := c.newRequest(http.MethodDelete, "rooms/"+url.PathEscape(spaceID))
	if err != nil {
		return &Result[NoContent]{}, err
	}

	return Do[NoContent](ctx, c, req, http.StatusNoContent)
}

// NewWebhook is the body of a webhook registration.
type NewWebhook struct {
	Name      string        `json:"name"`
	TargetURL string        `json:"targetUrl"`
	Resource  EventResource `json:"resource"`
	Event     EventType     `json:"event"`
	Filter    string        `json:"filter,omitempty"`
	Secret    string        `json:"secret,omitempty"`
}

func (c *Client) CreateWebhook(ctx context.Context, webhook NewWebhook) (*Result[Webhook], error) {
	if webhook.TargetURL == "" {
		return &Result[Webhook]{}, errors.New("webhook target URL must be set")
	}

	req, err := c.newRequest(http.MethodPost, "webhooks", WithJSONBody(webhook))
	if err != nil {
		return &Result[Webhook]{}, err
	}

	return Do[Webhook](ctx, c, req, http.StatusOK)
}

func (c *Client) ListWebhooks(ctx context.Context, pageSize int) (*ListResult[Webhook], error) {
	req, err := c.newRequest(http.MethodGet, "webhooks", WithQuery(pageQuery(pageSize, nil)))
	if err != nil {
		return &ListResult[Webhook]{}, err
	}

	return DoList[Webhook](ctx, c, req)
}

func (c *Client) DeleteWebhook(ctx context.Context, webhookID string) (*Result[NoContent], error) {
	req, err := c.newRequest(http.MethodDelete, "webhooks/"+url.PathEscape(webhookID))
	if err != nil {
		return &Result[NoContent]{}, err
	}

	return Do[NoContent](ctx, c, req, http.StatusNoContent)
}

// GetMe returns the person the access token belongs to.
func (c *Client) GetMe(ctx context.Context) (*Result[Person], error) {
	req, err := c.newRequest(http.MethodGet, "people/me")
	if err != nil {
		return &Result[Person]{}, err
	}

	return Do[Person](ctx, c, req, http.StatusOK)
}

// GetFileInfo fetches the metadata of a file attachment without downloading
// it. fileURL is one of the URLs in [Message.Files].
func (c *Client) GetFileInfo(ctx context.Context, fileURL string) (*Result[FileInfo], error) {
	req, err := NewRequest(http.MethodHead, fileURL, WithAccept(mediaTypeJSON, mediaTypeAny))
	if err != nil {
		return &Result[FileInfo]{}, err
	}

	return Do[FileInfo](ctx, c, req, http.StatusOK)
}

// GetFileData downloads a file attachment into memory.
func (c *Client) GetFileData(ctx context.Context, fileURL string) (*Result[FileData], error) {
	req, err := NewRequest(http.MethodGet, fileURL, WithAccept(mediaTypeJSON, mediaTypeAny))
	if err != nil {
		return &Result[FileData]{}, err
	}

	return Do[FileData](ctx, c, req, http.StatusOK)
}
