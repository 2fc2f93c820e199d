// Package httpclient implements the secure HTTP client (§4.2): range-resume
// streaming downloads with atomic .part->final rename, progress-cadence
// emission, and a generic exponential-backoff retry wrapper.
package httpclient

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// Options configures the secure client. Mirrors the teacher's
// ClientOptions shape (SSRF-hardened transport, http/https-only redirects,
// compression disabled) generalized with a size-parameterized timeout
// for large archive downloads.
type Options struct {
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	MaxRedirects          int
	MaxIdleConns          int
	IdleConnTimeout       time.Duration

	// MinTimeout/BytesPerSecondFloor derive the per-request timeout from
	// expected_size: timeout = max(MinTimeout, size/BytesPerSecondFloor).
	MinTimeout        time.Duration
	BytesPerSecondFloor int64
}

// DefaultOptions returns sane defaults, tuned for large modlist archives
// rather than the teacher's small API-response traffic.
func DefaultOptions() Options {
	return Options{
		DialTimeout:           30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		MaxRedirects:          10,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		MinTimeout:            60 * time.Second,
		BytesPerSecondFloor:   256 * 1024, // assume at least 256 KiB/s
	}
}

// TimeoutFor implements the §4.2 "timeout parameterized by expected size"
// rule: larger downloads get proportionally longer total-request budgets.
func (o Options) TimeoutFor(expectedSize int64) time.Duration {
	if expectedSize <= 0 {
		return o.MinTimeout
	}
	derived := time.Duration(expectedSize/o.BytesPerSecondFloor) * time.Second
	if derived < o.MinTimeout {
		return o.MinTimeout
	}
	return derived
}

// New builds an *http.Client hardened the way the teacher's
// internal/httputil.NewSecureClient is: SSRF-checked redirects,
// redirects limited to the http and https schemes, compression disabled (the payloads here are
// already-compressed archives; decompression-bomb protection still
// applies), and HTTP/2 enabled explicitly via golang.org/x/net/http2.
func New(opts Options) *http.Client {
	if opts.MaxRedirects == 0 {
		opts.MaxRedirects = 10
	}
	transport := &http.Transport{
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   opts.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   opts.TLSHandshakeTimeout,
		ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          opts.MaxIdleConns,
		IdleConnTimeout:       opts.IdleConnTimeout,
	}
	// Best-effort: configure HTTP/2 on top of the hardened transport.
	// Mirrors give mirrors on plain HTTP/1.1 servers too, so a failure
	// here is not fatal -- it just leaves HTTP/1.1 in place.
	_ = http2.ConfigureTransport(transport)

	return &http.Client{
		Transport:     transport,
		CheckRedirect: makeRedirectChecker(opts.MaxRedirects),
	}
}

func makeRedirectChecker(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if req.URL.Scheme != "https" && req.URL.Scheme != "http" {
			return fmt.Errorf("redirect to unsupported scheme: %s", req.URL)
		}
		if len(via) >= maxRedirects {
			return fmt.Errorf("too many redirects")
		}

		host := req.URL.Hostname()
		if ip := net.ParseIP(host); ip != nil {
			if err := ValidateIP(ip, host); err != nil {
				return err
			}
			return nil
		}
		ips, err := net.LookupIP(host)
		if err != nil {
			return fmt.Errorf("failed to resolve redirect host %s: %w", host, err)
		}
		for _, ip := range ips {
			if err := ValidateIP(ip, host); err != nil {
				return fmt.Errorf("refusing redirect: %s resolves to blocked IP %s", host, ip)
			}
		}
		return nil
	}
}

// ValidateIP rejects private, loopback, link-local, multicast and
// unspecified addresses, matching the teacher's SSRF hardening in
// internal/httputil/ssrf.go and internal/validate/predownload.go.
func ValidateIP(ip net.IP, host string) error {
	switch {
	case ip.IsPrivate():
		return fmt.Errorf("refusing redirect to private IP: %s (%s)", host, ip)
	case ip.IsLoopback():
		return fmt.Errorf("refusing redirect to loopback IP: %s (%s)", host, ip)
	case ip.IsLinkLocalUnicast():
		return fmt.Errorf("refusing redirect to link-local IP: %s (%s)", host, ip)
	case ip.IsLinkLocalMulticast():
		return fmt.Errorf("refusing redirect to link-local multicast: %s (%s)", host, ip)
	case ip.IsMulticast():
		return fmt.Errorf("refusing redirect to multicast IP: %s (%s)", host, ip)
	case ip.IsUnspecified():
		return fmt.Errorf("refusing redirect to unspecified IP: %s (%s)", host, ip)
	}
	return nil
}
