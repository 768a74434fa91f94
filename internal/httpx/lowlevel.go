package httpx

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/xZoluGames/skinarb/internal/errs"
)

// LowLevelClient performs GETs over a hand-built TLS connection, bypassing
// net/http's client machinery. Some venues fingerprint standard clients
// and reject them; writing the request line by hand with a fixed header
// order gets past that.
type LowLevelClient struct {
	Venue string
	TLS   *tls.Config // optional; ServerName is filled in per request
}

func (c *LowLevelClient) Get(ctx context.Context, rawURL string, headers map[string]string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.Wrap(errs.KindValidation, c.Venue, err)
	}
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "443")
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if c.TLS != nil {
		tlsCfg = c.TLS.Clone()
	}
	if tlsCfg.ServerName == "" {
		tlsCfg.ServerName = u.Hostname()
	}
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: 15 * time.Second},
		Config:    tlsCfg,
	}
	conn, err := dialer.DialContext(ctx, "tcp", host)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, c.Venue, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}
	fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(conn, "Host: %s\r\n", u.Hostname())
	fmt.Fprintf(conn, "User-Agent: %s\r\n", defaultUserAgent)
	fmt.Fprintf(conn, "Accept: application/json, text/plain, */*\r\n")
	for _, k := range sortedKeys(headers) {
		fmt.Fprintf(conn, "%s: %s\r\n", k, headers[k])
	}
	fmt.Fprintf(conn, "Connection: close\r\n\r\n")

	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, c.Venue, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, c.Venue, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errs.HTTPStatus(c.Venue, resp.StatusCode, truncate(body, 200))
	}
	return &Response{Status: resp.StatusCode, Body: body, Header: resp.Header}, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
