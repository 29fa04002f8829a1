package app

import (
	"net"
	"net/http"
	"time"
)

// Ceilings for calls whose context carries no deadline. The completion
// ceiling sits above the configured per-call timeout so the context, not
// the client, ends a slow reply.
const (
	completionCeilingSlack = 30 * time.Second
	fetchCeiling           = 30 * time.Second
)

// endpointTransport keeps a small idle pool for one upstream host.
func endpointTransport(idlePerHost int, dialTimeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   dialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          idlePerHost * 2,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   dialTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// newCompletionHTTPClient serves the completion service. Calls are strictly
// sequential, so one warm connection is enough; replies can be slow, so the
// ceiling follows the configured completion timeout.
func newCompletionHTTPClient(completionTimeout time.Duration) *http.Client {
	if completionTimeout <= 0 {
		completionTimeout = 90 * time.Second
	}
	return &http.Client{
		Transport: endpointTransport(2, 10*time.Second),
		Timeout:   completionTimeout + completionCeilingSlack,
	}
}

// newFetchHTTPClient serves the watched page and the webhook. Both talk to
// hosts that should answer quickly; a hung request must not stall polling.
func newFetchHTTPClient() *http.Client {
	return &http.Client{
		Transport: endpointTransport(4, 5*time.Second),
		Timeout:   fetchCeiling,
	}
}
