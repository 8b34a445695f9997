package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStartedListener(t *testing.T, opts ...ListenerOption) (*WebhookListener, string) {
	t.Helper()

	l, err := NewWebhookListener(append([]ListenerOption{WithMetricsRegisterer(prometheus.NewRegistry())}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = l.AddListenerEndpoint("localhost", 0, false)
	require.NoError(t, err)
	require.NoError(t, l.Start())

	addrs := l.Addrs()
	require.Len(t, addrs, 1)

	return l, "http://" + addrs[0].String() + l.Path()
}

type recordingLogger struct {
	mu     sync.Mutex
	errors []string
}

func (l *recordingLogger) Errorf(format string, v ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, fmt.Sprintf(format, v...))
}

func (l *recordingLogger) Warnf(string, ...any)  {}
func (l *recordingLogger) Debugf(string, ...any) {}

func (l *recordingLogger) errorLines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.errors...)
}

type failingListener struct{}

func (failingListener) Accept() (net.Conn, error) { return nil, errors.New("accept failed") }
func (failingListener) Close() error              { return nil }
func (failingListener) Addr() net.Addr            { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9} }

// blockingHandler signals entered once a delivery reaches it and returns
// only after release is closed.
func blockingHandler(entered chan<- struct{}, release <-chan struct{}, after func()) WebhookHandler {
	var once sync.Once
	return func(*WebhookEvent) {
		once.Do(func() { close(entered) })
		<-release
		after()
	}
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()

	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func postDelivery(t *testing.T, target string, body []byte, signatures ...string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, target, bytes.NewReader(body))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	for _, s := range signatures {
		req.Header.Add(SignatureHeader, s)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	return resp
}

func TestNewWebhookListener_Path(t *testing.T) {
	t.Parallel()

	l, err := NewWebhookListener()
	require.NoError(t, err)

	assert.Regexp(t, regexp.MustCompile(`^/webhook/notify/[0-9a-f]{32}/events$`), l.Path())

	other, err := NewWebhookListener()
	require.NoError(t, err)
	assert.NotEqual(t, l.Path(), other.Path())

	fixed, err := NewWebhookListener(WithEntropySource(bytes.NewReader(bytes.Repeat([]byte{0x01}, 16))))
	require.NoError(t, err)
	assert.Equal(t, "/webhook/notify/01010101010141018101010101010101/events", fixed.Path())

	_, err = NewWebhookListener(WithEntropySource(bytes.NewReader(nil)))
	require.Error(t, err)
}

func TestAddListenerEndpoint(t *testing.T) {
	t.Parallel()

	l, err := NewWebhookListener()
	require.NoError(t, err)

	u, err := l.AddListenerEndpoint("localhost", 8080, false)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080"+l.Path(), u.String())
	assert.Equal(t, "127.0.0.1:8080", l.endpoints[0].bindAddr)

	_, err = l.AddListenerEndpoint("example.com", 8443, true)
	require.EqualError(t, err, "HTTPS endpoint requires a TLS config")

	_, err = l.AddListenerEndpoint("", 80, false)
	require.Error(t, err)
}

func TestStart_Idempotent(t *testing.T) {
	t.Parallel()

	l, _ := newStartedListener(t)

	first := l.Addrs()
	require.NoError(t, l.Start())

	assert.True(t, l.IsListening())
	assert.Equal(t, first, l.Addrs(), "second Start must not bind again")
	assert.Len(t, l.servers, 1)
}

func TestStart_NoEndpoints(t *testing.T) {
	t.Parallel()

	l, err := NewWebhookListener()
	require.NoError(t, err)

	require.EqualError(t, l.Start(), "no listener endpoints added")
	assert.False(t, l.IsListening())
}

func TestListener_DispatchesDelivery(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	events := make(chan *WebhookEvent, 1)
	require.NoError(t, l.AddWebhookNotification(testWebhook, func(e *WebhookEvent) { events <- e }))

	body := deliveryBody("wh-1")
	resp := postDelivery(t, target, body, Sign([]byte(testSecret), body), "ignored")

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	select {
	case e := <-events:
		assert.Equal(t, "wh-1", e.ID)
		assert.Equal(t, "m1", e.Data.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was not dispatched")
	}
}

func TestListener_AsyncDelivery(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	events := make(chan string, 1)
	require.NoError(t, l.AddWebhookNotificationAsync(testWebhook, func(_ context.Context, e *WebhookEvent) error {
		events <- e.Data.ID
		return nil
	}))

	body := deliveryBody("wh-1")
	postDelivery(t, target, body, Sign([]byte(testSecret), body))

	select {
	case id := <-events:
		assert.Equal(t, "m1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was not dispatched")
	}
}

func TestListener_AlwaysNoContent(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t, WithMaxBodySize(64))

	require.NoError(t, l.AddWebhookNotification(testWebhook, func(*WebhookEvent) { t.Error("handler must not run") }))

	body := deliveryBody("wh-1")

	tests := []struct {
		name    string
		do      func() *http.Response
		outcome string
	}{
		{"bad signature", func() *http.Response { return postDelivery(t, target, body, "00ff") }, outcomeSignatureMismatch},
		{"empty body", func() *http.Response { return postDelivery(t, target, nil) }, outcomeEmptyBody},
		{"too large", func() *http.Response {
			big := bytes.Repeat([]byte("x"), 65)
			return postDelivery(t, target, big, Sign([]byte(testSecret), big))
		}, outcomeBodyTooLarge},
		{"get", func() *http.Response {
			resp, err := http.Get(target)
			require.NoError(t, err)
			_ = resp.Body.Close()
			return resp
		}, outcomeEmptyBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(l.metrics.deliveries.WithLabelValues(tt.outcome))

			resp := tt.do()

			assert.Equal(t, http.StatusNoContent, resp.StatusCode)

			// The outcome is recorded after the response has been flushed
			assert.Eventually(t, func() bool {
				return testutil.ToFloat64(l.metrics.deliveries.WithLabelValues(tt.outcome)) == before+1
			}, 5*time.Second, 10*time.Millisecond)
		})
	}
}

func TestListener_OtherPathsNotFound(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	other := strings.Replace(target, l.pathBase, "/webhook/notify/guess/", 1)

	resp, err := http.Post(other, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStop_Idempotent(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	require.NoError(t, l.Stop(context.Background()))
	require.NoError(t, l.Stop(context.Background()))
	assert.False(t, l.IsListening())
	assert.Empty(t, l.Addrs())

	_, err := http.Post(target, "application/json", strings.NewReader(`{}`))
	require.Error(t, err, "stopped listener must not accept connections")

	// Registrations survive a restart
	require.NoError(t, l.AddWebhookNotification(testWebhook, func(*WebhookEvent) {}))
	require.NoError(t, l.Start())
	assert.True(t, l.IsListening())
}

func TestClose(t *testing.T) {
	t.Parallel()

	l, _ := newStartedListener(t)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	assert.False(t, l.IsListening())
	require.ErrorIs(t, l.Start(), ErrListenerClosed)

	_, err := l.AddListenerEndpoint("localhost", 0, false)
	require.ErrorIs(t, err, ErrListenerClosed)

	require.ErrorIs(t, l.AddWebhookNotification(testWebhook, func(*WebhookEvent) {}), ErrListenerClosed)
}

func TestRequestCharset(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "utf-8", requestCharset("application/json; charset=utf-8"))
	assert.Equal(t, "ISO-8859-1", requestCharset(`application/json; charset="ISO-8859-1"`))
	assert.Empty(t, requestCharset("application/json"))
	assert.Empty(t, requestCharset(""))
	assert.Empty(t, requestCharset(";;;"))
}

func TestStartStop_Concurrent(t *testing.T) {
	t.Parallel()

	l, err := NewWebhookListener(WithMetricsRegisterer(prometheus.NewRegistry()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	_, err = l.AddListenerEndpoint("localhost", 0, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				assert.NoError(t, l.Start())
			} else {
				assert.NoError(t, l.Stop(context.Background()))
			}
		}()
	}
	wg.Wait()

	l.mu.Lock()
	servers := len(l.servers)
	l.mu.Unlock()

	if l.IsListening() {
		assert.Equal(t, 1, servers)
		assert.Len(t, l.Addrs(), 1)
	} else {
		assert.Zero(t, servers)
		assert.Empty(t, l.Addrs())
	}

	require.NoError(t, l.Start())
	assert.True(t, l.IsListening())
	assert.Len(t, l.Addrs(), 1)
}

func TestStop_WaitsForInFlightDelivery(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var completed atomic.Bool

	require.NoError(t, l.AddWebhookNotification(testWebhook, blockingHandler(entered, release, func() { completed.Store(true) })))

	body := deliveryBody("wh-1")
	postDelivery(t, target, body, Sign([]byte(testSecret), body))
	waitFor(t, entered, "delivery")

	addr := l.Addrs()[0].String()

	stopped := make(chan error, 1)
	go func() { stopped <- l.Stop(context.Background()) }()

	// New connections are refused once the socket is closed
	assert.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err != nil {
			return true
		}
		_ = conn.Close()
		return false
	}, 5*time.Second, 10*time.Millisecond)

	select {
	case <-stopped:
		t.Fatal("Stop returned while a delivery was in flight")
	default:
	}

	assert.True(t, l.IsListening())
	assert.False(t, completed.Load())

	close(release)

	select {
	case err := <-stopped:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after the delivery finished")
	}

	assert.True(t, completed.Load())
	assert.False(t, l.IsListening())
}

func TestClose_HandlerReadsListenerState(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	observed := make(chan bool, 1)

	require.NoError(t, l.AddWebhookNotification(testWebhook, blockingHandler(entered, release, func() {
		_ = l.Addrs()
		observed <- l.IsListening()
	})))

	body := deliveryBody("wh-1")
	postDelivery(t, target, body, Sign([]byte(testSecret), body))
	waitFor(t, entered, "delivery")

	closed := make(chan error, 1)
	go func() { closed <- l.Close() }()

	// Let Close take the lifecycle lock before the handler resumes
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Close blocked on a handler reading listener state")
	}

	assert.True(t, <-observed)
	assert.False(t, l.IsListening())
}

func TestClose_CancelsAsyncHandlers(t *testing.T) {
	t.Parallel()

	l, target := newStartedListener(t)

	started := make(chan struct{})
	require.NoError(t, l.AddWebhookNotificationAsync(testWebhook, func(ctx context.Context, _ *WebhookEvent) error {
		close(started)
		<-ctx.Done()
		return nil
	}))

	body := deliveryBody("wh-1")
	postDelivery(t, target, body, Sign([]byte(testSecret), body))
	waitFor(t, started, "async handler")

	closed := make(chan struct{})
	go func() {
		_ = l.Close()
		close(closed)
	}()

	waitFor(t, closed, "Close")
}

func TestServe_LogsFailure(t *testing.T) {
	t.Parallel()

	logger := &recordingLogger{}

	l, err := NewWebhookListener(WithListenerLogger(logger))
	require.NoError(t, err)

	err = l.serve(&http.Server{Handler: l}, failingListener{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accept failed")

	lines := logger.errorLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "127.0.0.1:9")
	assert.Contains(t, lines[0], "accept failed")
}
