package client

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // the provider signs deliveries with HMAC-SHA1
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/encoding/htmlindex"
)

// SignatureHeader carries the hex HMAC-SHA1 of a delivery body, keyed with
// the webhook secret.
const SignatureHeader = "X-Spark-Signature"

// WebhookHandler is invoked inline for every verified delivery.
type WebhookHandler func(event *WebhookEvent)

// AsyncWebhookHandler is invoked on its own goroutine for every verified
// delivery. The context is cancelled when the manager is closed.
type AsyncWebhookHandler func(ctx context.Context, event *WebhookEvent) error

type registration struct {
	secret  []byte
	handler WebhookHandler
	async   AsyncWebhookHandler
}

// NotificationManager routes verified webhook deliveries to the handler
// registered for the webhook they are addressed to. Deliveries that cannot
// be decoded, are addressed to an unknown webhook, or carry a wrong
// signature are dropped. Drops are logged and counted, never returned.
type NotificationManager struct {
	mu            sync.RWMutex
	registrations map[string]registration
	closed        bool

	logger  RequestLogger
	metrics *webhookMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNotificationManager creates a manager logging drops to logger and
// registering its delivery counters on reg. Either may be nil.
func NewNotificationManager(logger RequestLogger, reg prometheus.Registerer) *NotificationManager {
	return newNotificationManager(logger, newWebhookMetrics(reg))
}

func newNotificationManager(logger RequestLogger, metrics *webhookMetrics) *NotificationManager {
	if logger == nil {
		logger = &NoopLogger{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &NotificationManager{
		registrations: make(map[string]registration),
		logger:        logger,
		metrics:       metrics,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// AddNotification registers handler for deliveries of webhook, replacing
// any previous registration for the same id. The webhook must carry its id
// and secret.
func (m *NotificationManager) AddNotification(webhook *Webhook, handler WebhookHandler) error {
	if handler == nil {
		return errors.New("handler must not be nil")
	}
	return m.add(webhook, registration{handler: handler})
}

// AddAsyncNotification is [NotificationManager.AddNotification] for handlers
// that run on their own goroutine.
func (m *NotificationManager) AddAsyncNotification(webhook *Webhook, handler AsyncWebhookHandler) error {
	if handler == nil {
		return errors.New("handler must not be nil")
	}
	return m.add(webhook, registration{async: handler})
}

func (m *NotificationManager) add(webhook *Webhook, reg registration) error {
	if webhook == nil {
		return errors.New("webhook must not be nil")
	}

	if webhook.ID == "" {
		return errors.New("webhook id must be set")
	}

	if webhook.Secret == "" {
		return fmt.Errorf("webhook %s has no secret", webhook.ID)
	}

	reg.secret = []byte(webhook.Secret)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrListenerClosed
	}

	m.registrations[webhook.ID] = reg

	return nil
}

// RemoveNotification drops the registration for webhook. Removing an
// unknown webhook is a no-op.
func (m *NotificationManager) RemoveNotification(webhook *Webhook) {
	if webhook == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registrations, webhook.ID)
}

// ValidateAndNotify decodes body using charset (UTF-8 when empty), looks up
// the webhook it is addressed to, verifies signature against the raw bytes
// and dispatches the event. It reports whether a handler was invoked.
func (m *NotificationManager) ValidateAndNotify(body []byte, signature, charset string) bool {
	text, err := decodeCharset(body, charset)
	if err != nil {
		m.drop(outcomeInvalidEncoding, "webhook delivery has unsupported encoding %q: %v", charset, err)
		return false
	}

	var event WebhookEvent
	if err := json.Unmarshal(text, &event); err != nil {
		m.drop(outcomeInvalidPayload, "webhook delivery is not a valid event: %v", err)
		return false
	}

	reg, ok := m.acquire(event.ID, body, signature)
	if !ok {
		return false
	}

	m.metrics.record(outcomeDispatched)

	if reg.async != nil {
		m.metrics.asyncInFlight.Inc()
		go m.runAsync(reg.async, &event)
	} else {
		m.runSync(reg.handler, &event)
	}

	return true
}

// acquire returns the verified registration for id. For an asynchronous
// registration the wait group is incremented before the lock is released,
// so that Close cannot miss the handler.
func (m *NotificationManager) acquire(id string, body []byte, signature string) (registration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.drop(outcomeManagerClosed, "webhook delivery for %s after close", id)
		return registration{}, false
	}

	reg, ok := m.registrations[id]
	if !ok {
		m.drop(outcomeUnknownWebhook, "webhook delivery for unknown webhook %q", id)
		return registration{}, false
	}

	if !validSignature(reg.secret, body, signature) {
		m.drop(outcomeSignatureMismatch, "webhook delivery for %s has an invalid signature", id)
		return registration{}, false
	}

	if reg.async != nil {
		m.wg.Add(1)
	}

	return reg, true
}

func (m *NotificationManager) runSync(handler WebhookHandler, event *WebhookEvent) {
	defer m.recoverHandler(event)
	handler(event)
}

func (m *NotificationManager) runAsync(handler AsyncWebhookHandler, event *WebhookEvent) {
	defer m.wg.Done()
	defer m.metrics.asyncInFlight.Dec()
	defer m.recoverHandler(event)

	if err := handler(m.ctx, event); err != nil {
		m.metrics.record(outcomeHandlerError)
		m.logger.Warnf("webhook handler for %s failed: %v", event.ID, err)
	}
}

func (m *NotificationManager) recoverHandler(event *WebhookEvent) {
	if r := recover(); r != nil {
		m.metrics.record(outcomeHandlerPanic)
		m.logger.Errorf("webhook handler for %s panicked: %v", event.ID, r)
	}
}

func (m *NotificationManager) drop(outcome, format string, v ...any) {
	m.metrics.record(outcome)
	m.logger.Debugf(format, v...)
}

// Close rejects further registrations and deliveries, cancels the context
// of running asynchronous handlers and waits for them to return. Close is
// idempotent.
func (m *NotificationManager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// Sign returns the signature the provider sends for body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func validSignature(secret, body []byte, signature string) bool {
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return false
	}

	mac := hmac.New(sha1.New, secret)
	mac.Write(body)

	return hmac.Equal(mac.Sum(nil), got)
}

func decodeCharset(body []byte, charset string) ([]byte, error) {
	charset = strings.TrimSpace(charset)
	if charset == "" || strings.EqualFold(charset, "utf-8") {
		return body, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, err
	}

	return enc.NewDecoder().Bytes(body)
}
