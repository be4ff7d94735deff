// Package httpclient builds the HTTP clients for the bot platform and the note
// service. Small JSON calls and media transfers get separate clients so a
// 20 MiB file is not held to the deadline of a getMe or a memo patch.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultAPITimeout = 60 * time.Second
	// DefaultTransferTimeout covers a full-size file at a few hundred KiB/s.
	DefaultTransferTimeout = 3 * time.Minute

	// transferHeaderTimeout bounds the wait for the first response byte of a
	// transfer; only the body may take long.
	transferHeaderTimeout = 30 * time.Second
)

func newTransport(headerTimeout time.Duration, idlePerHost int) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConnsPerHost:   idlePerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: time.Second,
	}
}

// NewAPI returns a client for JSON calls. timeout bounds the whole exchange
// and must exceed the getUpdates long-poll timeout when used for polling.
func NewAPI(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	return &http.Client{Timeout: timeout, Transport: newTransport(timeout, 8)}
}

// NewTransfer returns a client for file downloads and attachment uploads.
// Headers must arrive within 30s; the body may take up to timeout.
func NewTransfer(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTransferTimeout
	}
	header := min(transferHeaderTimeout, timeout)
	t := newTransport(header, 2)
	// Media is already compressed.
	t.DisableCompression = true
	return &http.Client{Timeout: timeout, Transport: t}
}
