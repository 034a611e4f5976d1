package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/debug"
	"time"
)

// ClientOptions configures the HTTP client of one extension.
type ClientOptions struct {
	// Extension is the extension identifier, reported in the User-Agent.
	Extension string
	// Version is the agentcmd version, reported in the User-Agent. Defaults
	// to the module version of the running binary.
	Version string
	// Timeout bounds one request. Zero means no client-side limit; the
	// dispatch deadline still applies through the request context.
	Timeout time.Duration
	// CAFile is a PEM bundle trusted in addition to the system roots, for
	// extensions talking to internal services.
	CAFile string
}

// DefaultTLSConfig returns TLS 1.2+ with AEAD-only cipher suites.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// NewExtensionClient builds the http.Client an extension uses for outbound
// calls.
func NewExtensionClient(opts ClientOptions) (*http.Client, error) {
	tlsCfg := DefaultTLSConfig()
	if opts.CAFile != "" {
		pool, err := loadCAPool(opts.CAFile)
		if err != nil {
			return nil, err
		}
		tlsCfg.RootCAs = pool
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		MaxIdleConnsPerHost:   8, // extensions usually talk to one endpoint
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &userAgentTransport{
			next:      transport,
			userAgent: UserAgent(opts.Extension, opts.Version),
		},
	}, nil
}

// UserAgent returns the User-Agent sent on behalf of an extension, e.g.
// "agentcmd/1.4.0 (extension web_search)".
func UserAgent(extension, version string) string {
	if version == "" {
		version = buildVersion()
	}
	if extension == "" {
		return "agentcmd/" + version
	}
	return fmt.Sprintf("agentcmd/%s (extension %s)", version, extension)
}

// buildVersion reads the main module version, or "dev" for local builds.
func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" || info.Main.Version == "(devel)" {
		return "dev"
	}
	return info.Main.Version
}

func loadCAPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA file: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA file %s contains no PEM certificates", path)
	}
	return pool, nil
}

type userAgentTransport struct {
	next      http.RoundTripper
	userAgent string
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") != "" {
		return t.next.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set("User-Agent", t.userAgent)
	return t.next.RoundTrip(r)
}
