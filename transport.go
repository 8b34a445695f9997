package client

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Transport executes [Request] values on one of two resty clients. The API
// client carries the bearer token and is selected only for URLs under the
// API base URL; every other URL (file attachment hosts, avatars) goes
// through a client that never sees the token. Neither client follows
// redirects, so a 3xx is returned to the caller instead of being re-sent.
//
// A Transport is safe for concurrent use.
type Transport struct {
	api        *resty.Client
	nonAPI     *resty.Client
	apiPattern *regexp.Regexp
	linkNext   *regexp.Regexp
	limiter    *rate.Limiter
	logger     RequestLogger
}

// linkPattern matches one link-value of a Link header: the URI reference
// and the parameters that follow it.
const linkPattern = `<([^>]*)>([^<]*)`

func newTransport(token string, o *Options) (*Transport, error) {
	apiPattern, err := regexp.Compile("^" + regexp.QuoteMeta(o.baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to compile API URL pattern: %w", err)
	}

	t := &Transport{
		api:        newRestyClient(o).SetAuthToken(token),
		nonAPI:     newRestyClient(o),
		apiPattern: apiPattern,
		linkNext:   regexp.MustCompile(linkPattern),
		logger:     o.requestLogger,
	}

	if o.rateLimit > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(o.rateLimit), o.rateBurst)
	}

	return t, nil
}

func newRestyClient(o *Options) *resty.Client {
	return resty.New().
		SetTimeout(o.timeout).
		SetLogger(o.requestLogger).
		SetDisableWarn(true).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeaders(o.requestHeaders).
		SetHeader("User-Agent", o.userAgent)
}

// isAPIURL reports whether rawURL is served by the API host.
func (t *Transport) isAPIURL(rawURL string) bool {
	return t.apiPattern.MatchString(rawURL)
}

func (t *Transport) selectClient(rawURL string) *resty.Client {
	if t.isAPIURL(rawURL) {
		return t.api
	}
	return t.nonAPI
}

func (t *Transport) execute(ctx context.Context, req *Request) (*resty.Response, error) {
	if err := req.consume(); err != nil {
		return nil, err
	}

	isAPI := t.isAPIURL(req.url)
	client := t.selectClient(req.url)

	if isAPI && t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s %s: %w", req.method, req.url, err)
		}
	}

	r := client.R().
		SetContext(ctx).
		SetHeader("Accept", strings.Join(req.accept, ", "))

	if len(req.query) > 0 {
		r.SetQueryParamsFromValues(req.query)
	}

	switch {
	case req.jsonBody != nil:
		r.SetHeader("Content-Type", mediaTypeJSON+"; charset=utf-8").SetBody(req.jsonBody)
	case req.form != nil:
		r.SetFormDataFromValues(req.form)
	case req.multipart:
		r.SetMultipartFormData(req.fields)
		if req.file != nil {
			r.SetMultipartField("files", req.file.FileName, req.file.MediaType.String(), req.file.Reader)
		}
	}

	resp, err := r.Execute(req.method, req.url)
	if err != nil {
		t.logger.Debugf("%s %s failed: %v", req.method, req.url, err)
		return resp, fmt.Errorf("%s %s: %w", req.method, req.url, err)
	}

	t.logger.Debugf("%s %s -> %d (api=%t, tracking id %q)", req.method, req.url, resp.StatusCode(), isAPI, resp.Header().Get(headerTrackingID))

	return resp, nil
}

// nextLink returns the first rel="next" URI found in the Link headers.
func (t *Transport) nextLink(h http.Header) string {
	for _, value := range h.Values("Link") {
		for _, m := range t.linkNext.FindAllStringSubmatch(value, -1) {
			if m[1] != "" && hasNextRelation(m[2]) {
				return m[1]
			}
		}
	}
	return ""
}

func hasNextRelation(params string) bool {
	for _, param := range strings.Split(params, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
			continue
		}
		for _, rel := range strings.Fields(strings.Trim(value, "\" ,\t")) {
			if strings.EqualFold(rel, "next") {
				return true
			}
		}
	}
	return false
}

func (t *Transport) close() {
	t.api.GetClient().CloseIdleConnections()
	t.nonAPI.GetClient().CloseIdleConnections()
}
