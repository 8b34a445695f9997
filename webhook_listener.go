package client

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"
)

const (
	// WebhookPathPrefix is the fixed part of every listener path.
	WebhookPathPrefix = "/webhook/notify/"

	defaultWorkers        = 16
	defaultBodyBufferSize = 2048
	defaultMaxBodySize    = 1 << 20
	readHeaderTimeout     = 10 * time.Second
)

var errBodyTooLarge = errors.New("request body too large")

type listenerOptions struct {
	workers     int
	maxBodySize int64
	tlsConfig   *tls.Config
	logger      RequestLogger
	registerer  prometheus.Registerer
	entropy     io.Reader
}

type ListenerOption func(*listenerOptions)

// WithWorkers bounds the number of connections served concurrently on each
// endpoint.
func WithWorkers(n int) ListenerOption {
	return func(o *listenerOptions) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxBodySize bounds the delivery body. Larger bodies are dropped.
func WithMaxBodySize(n int64) ListenerOption {
	return func(o *listenerOptions) {
		if n > 0 {
			o.maxBodySize = n
		}
	}
}

// WithTLSConfig sets the certificates used by HTTPS endpoints.
func WithTLSConfig(cfg *tls.Config) ListenerOption {
	return func(o *listenerOptions) {
		if cfg != nil {
			o.tlsConfig = cfg
		}
	}
}

func WithListenerLogger(logger RequestLogger) ListenerOption {
	return func(o *listenerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetricsRegisterer registers the delivery counters on reg.
func WithMetricsRegisterer(reg prometheus.Registerer) ListenerOption {
	return func(o *listenerOptions) {
		o.registerer = reg
	}
}

// WithEntropySource replaces crypto/rand as the source of the path token.
func WithEntropySource(r io.Reader) ListenerOption {
	return func(o *listenerOptions) {
		if r != nil {
			o.entropy = r
		}
	}
}

type listenerEndpoint struct {
	bindAddr string
	useHTTPS bool
}

// WebhookListener is a small HTTP server accepting webhook deliveries on an
// unguessable path. It is meant for local development of webhook flows and
// is not a hardened ingress.
//
// Every request under [WebhookListener.Path] is answered with 204 No
// Content, whatever happens to it; requests to other paths get 404.
//
// Start, Stop and Close are serialized and must not be called from a
// synchronous handler. IsListening and Addrs never block.
type WebhookListener struct {
	mu        sync.Mutex
	pathBase  string
	endpoints []listenerEndpoint
	servers   []*http.Server
	group     *errgroup.Group
	closed    bool

	listening atomic.Bool
	addrs     atomic.Pointer[[]net.Addr]

	options       *listenerOptions
	metrics       *webhookMetrics
	notifications *NotificationManager
}

// NewWebhookListener creates a listener with a fresh random path. No socket
// is bound until [WebhookListener.Start].
func NewWebhookListener(opts ...ListenerOption) (*WebhookListener, error) {
	options := &listenerOptions{
		workers:     defaultWorkers,
		maxBodySize: defaultMaxBodySize,
		logger:      &NoopLogger{},
		entropy:     rand.Reader,
	}

	for _, o := range opts {
		o(options)
	}

	token, err := uuid.NewRandomFromReader(options.entropy)
	if err != nil {
		return nil, fmt.Errorf("failed to generate listener path: %w", err)
	}

	metrics := newWebhookMetrics(options.registerer)

	return &WebhookListener{
		pathBase:      WebhookPathPrefix + strings.ReplaceAll(token.String(), "-", "") + "/",
		options:       options,
		metrics:       metrics,
		notifications: newNotificationManager(options.logger, metrics),
	}, nil
}

// Path returns the path to register as the webhook target, relative to any
// endpoint URL.
func (l *WebhookListener) Path() string {
	return l.pathBase + "events"
}

// AddListenerEndpoint adds an address to bind on the next Start and returns
// the public URL to register with the provider. localhost is bound as
// 127.0.0.1. Port 0 binds an ephemeral port; see [WebhookListener.Addrs].
func (l *WebhookListener) AddListenerEndpoint(host string, port uint16, useHTTPS bool) (*url.URL, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, errors.New("host must be set")
	}

	if useHTTPS && l.options.tlsConfig == nil {
		return nil, errors.New("HTTPS endpoint requires a TLS config")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrListenerClosed
	}

	if l.listening.Load() {
		return nil, errors.New("cannot add an endpoint while listening")
	}

	bindHost := host
	if strings.EqualFold(host, "localhost") {
		bindHost = "127.0.0.1"
	}

	portStr := strconv.Itoa(int(port))

	l.endpoints = append(l.endpoints, listenerEndpoint{
		bindAddr: net.JoinHostPort(bindHost, portStr),
		useHTTPS: useHTTPS,
	})

	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}

	return &url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(host, portStr),
		Path:   l.Path(),
	}, nil
}

// AddWebhookNotification registers a handler run inline for each verified
// delivery of webhook.
func (l *WebhookListener) AddWebhookNotification(webhook *Webhook, handler WebhookHandler) error {
	return l.notifications.AddNotification(webhook, handler)
}

// AddWebhookNotificationAsync registers a handler run on its own goroutine
// for each verified delivery of webhook.
func (l *WebhookListener) AddWebhookNotificationAsync(webhook *Webhook, handler AsyncWebhookHandler) error {
	return l.notifications.AddAsyncNotification(webhook, handler)
}

func (l *WebhookListener) RemoveWebhookNotification(webhook *Webhook) {
	l.notifications.RemoveNotification(webhook)
}

// Start binds every endpoint and begins serving. Calling Start while
// listening is a no-op. If any endpoint fails to bind, none stay bound.
func (l *WebhookListener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrListenerClosed
	}

	if l.listening.Load() {
		return nil
	}

	if len(l.endpoints) == 0 {
		return errors.New("no listener endpoints added")
	}

	listeners := make([]net.Listener, 0, len(l.endpoints))

	for _, ep := range l.endpoints {
		ln, err := net.Listen("tcp", ep.bindAddr)
		if err != nil {
			for _, bound := range listeners {
				_ = bound.Close()
			}
			return fmt.Errorf("failed to bind %s: %w", ep.bindAddr, err)
		}

		ln = netutil.LimitListener(ln, l.options.workers)
		if ep.useHTTPS {
			ln = tls.NewListener(ln, l.options.tlsConfig)
		}

		listeners = append(listeners, ln)
	}

	group := new(errgroup.Group)
	servers := make([]*http.Server, 0, len(listeners))
	addrs := make([]net.Addr, 0, len(listeners))

	for _, ln := range listeners {
		srv := &http.Server{
			Handler:           l,
			ReadHeaderTimeout: readHeaderTimeout,
		}
		srv.SetKeepAlivesEnabled(false)

		servers = append(servers, srv)
		addrs = append(addrs, ln.Addr())

		group.Go(func() error {
			return l.serve(srv, ln)
		})

		l.options.logger.Debugf("webhook listener serving %s%s", ln.Addr(), l.Path())
	}

	l.servers = servers
	l.group = group
	l.addrs.Store(&addrs)
	l.listening.Store(true)

	return nil
}

func (l *WebhookListener) serve(srv *http.Server, ln net.Listener) error {
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}

	l.options.logger.Errorf("webhook listener on %s stopped serving: %v", ln.Addr(), err)

	return fmt.Errorf("serve %s: %w", ln.Addr(), err)
}

// Stop stops accepting deliveries and waits, bounded by ctx, for in-flight
// deliveries to finish. Registrations are kept, so the listener can be
// started again. Calling Stop when not listening is a no-op.
func (l *WebhookListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.stopLocked(ctx)
}

func (l *WebhookListener) stopLocked(ctx context.Context) error {
	if !l.listening.Load() {
		return nil
	}

	var errs []error

	for _, srv := range l.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
			_ = srv.Close()
		}
	}

	if err := l.group.Wait(); err != nil {
		errs = append(errs, err)
	}

	l.servers = nil
	l.group = nil
	l.addrs.Store(nil)
	l.listening.Store(false)

	return errors.Join(errs...)
}

// Close stops the listener, then closes the notification manager, waiting
// for asynchronous handlers. A closed listener cannot be restarted.
func (l *WebhookListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	err := l.stopLocked(context.Background())

	l.notifications.Close()
	l.closed = true

	return err
}

// Addrs returns the bound addresses while listening.
func (l *WebhookListener) Addrs() []net.Addr {
	addrs := l.addrs.Load()
	if addrs == nil {
		return nil
	}

	return append([]net.Addr(nil), (*addrs)...)
}

// IsListening reports whether the listener is started. It stays true until
// a Stop has finished waiting for in-flight deliveries.
func (l *WebhookListener) IsListening() bool {
	return l.listening.Load()
}

func (l *WebhookListener) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, l.pathBase) {
		http.NotFound(w, r)
		return
	}

	var (
		body    []byte
		readErr error
	)

	if r.Method == http.MethodPost && r.Body != nil {
		body, readErr = readDeliveryBody(r, l.options.maxBodySize)
	}

	var signature string
	if values := r.Header.Values(SignatureHeader); len(values) > 0 {
		signature = values[0]
	}

	charset := requestCharset(r.Header.Get("Content-Type"))

	w.WriteHeader(http.StatusNoContent)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	switch {
	case errors.Is(readErr, errBodyTooLarge):
		l.metrics.record(outcomeBodyTooLarge)
		l.options.logger.Warnf("webhook delivery from %s exceeds %d bytes", r.RemoteAddr, l.options.maxBodySize)
	case readErr != nil:
		l.metrics.record(outcomeReadError)
		l.options.logger.Warnf("failed to read webhook delivery from %s: %v", r.RemoteAddr, readErr)
	case len(body) == 0:
		l.metrics.record(outcomeEmptyBody)
		l.options.logger.Debugf("dropping %s %s without body", r.Method, r.URL.Path)
	default:
		l.notifications.ValidateAndNotify(body, signature, charset)
	}
}

func readDeliveryBody(r *http.Request, maxSize int64) ([]byte, error) {
	size := int64(defaultBodyBufferSize)
	if r.ContentLength > 0 {
		if r.ContentLength > maxSize {
			return nil, errBodyTooLarge
		}
		size = r.ContentLength
	}

	buf := bytes.NewBuffer(make([]byte, 0, size))

	if _, err := buf.ReadFrom(io.LimitReader(r.Body, maxSize+1)); err != nil {
		return nil, err
	}

	if int64(buf.Len()) > maxSize {
		return nil, errBodyTooLarge
	}

	return buf.Bytes(), nil
}

func requestCharset(contentType string) string {
	if contentType == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}

	return params["charset"]
}
