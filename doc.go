// Package client provides an HTTP client for the Spark messaging API and a
// local listener for its webhook deliveries.
//
// The client wraps [github.com/go-resty/resty/v2] with credential scoping,
// typed result envelopes, Link-header pagination and an opt-in retry loop
// driven by the server's Retry-After hints.
//
// # Basic Usage
//
//	c := client.New(token,
//	    client.WithTimeout(10*time.Second),
//	    client.WithRequestLogger(client.NewSlogLogger(logger)),
//	)
//
//	if err := c.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	res, err := c.CreateMessage(ctx, client.NewMessage{SpaceID: spaceID, Text: "hello"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	msg, err := res.Value()
//
// # Results
//
// Every call returns a [Result] (or [ListResult]) and an error. The error is
// non-nil only when no response could be obtained or decoded. A response
// with an unexpected status is reported through [Result.Success]; call
// [Result.Value] to turn it into a [*ResultError] carrying the status code,
// tracking id and retry-after hint.
//
// # Credentials
//
// The access token is sent only to URLs under the base URL. File downloads
// from other hosts go through a separate HTTP client that never sees it.
// Redirects are not followed, so a token is never replayed to another
// host.
//
// # Configuration
//
// All configuration is supplied as [Option] functions passed to [New].
// Invalid values are silently ignored and the default is retained;
// all configuration is validated when [Client.Connect] is called.
//
// # Retry Behaviour
//
// Nothing is retried unless the call is wrapped with [Retry] or
// [RetryList]. The wait between attempts is the server's Retry-After delay
// adjusted by the [RetryPolicy]. Context cancellation, deadline exceeded,
// and DNS resolution errors are never retried; see [DefaultRetryPolicy].
//
// # Webhooks
//
// [WebhookListener] accepts deliveries on a random path, answers every one
// of them with 204 No Content, and hands verified events to the handlers
// registered per webhook. It is meant for local development.
//
// # Logging
//
// Implement [RequestLogger] and supply it via [WithRequestLogger] to
// integrate with your logging library. The default [NoopLogger] discards
// all log output.
package client
