package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xZoluGames/skinarb/internal/errs"
)

// DefaultRegions is the rotation of vendor regions used when seeding pools.
var DefaultRegions = []string{"us", "de", "nl", "fr", "gb"}

// ipEchoServices are tried in order until one yields the egress IP. Each
// returns JSON with the address under a different key.
var ipEchoServices = []struct {
	url string
	key string
}{
	{"https://api.ipify.org?format=json", "ip"},
	{"https://httpbin.org/ip", "origin"},
	{"https://api.myip.com", "ip"},
	{"http://ip-api.com/json", "query"},
}

const defaultOculusURL = "https://api.oculusproxies.com/v1/configure/proxy/getProxies"

// OculusClient talks to the Oculus proxy vendor: it buys proxy batches and
// keeps the order's IP allow-list current.
type OculusClient struct {
	AuthToken  string
	OrderToken string
	BaseURL    string
	HTTP       *http.Client
}

// NewOculusClient returns nil when either credential is missing, which
// callers treat as "no vendor configured".
func NewOculusClient(authToken, orderToken string) *OculusClient {
	if authToken == "" || orderToken == "" {
		return nil
	}
	return &OculusClient{
		AuthToken:  authToken,
		OrderToken: orderToken,
		BaseURL:    defaultOculusURL,
		HTTP:       &http.Client{Timeout: 30 * time.Second},
	}
}

// DetectIP resolves the machine's egress IP by querying public echo
// services until one answers.
func (c *OculusClient) DetectIP(ctx context.Context) (string, error) {
	var lastErr error
	for _, svc := range ipEchoServices {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, svc.url, nil)
		if err != nil {
			lastErr = err
			continue
		}
		resp, err := c.HTTP.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		if err != nil || resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("%s: status %d", svc.url, resp.StatusCode)
			continue
		}
		var payload map[string]any
		if err := json.Unmarshal(body, &payload); err != nil {
			lastErr = err
			continue
		}
		if ip, ok := payload[svc.key].(string); ok && ip != "" {
			// httpbin may report "ip1, ip2" behind multiple hops.
			return strings.TrimSpace(strings.Split(ip, ",")[0]), nil
		}
		lastErr = fmt.Errorf("%s: no %q field", svc.url, svc.key)
	}
	return "", errs.Wrap(errs.KindNetwork, "", fmt.Errorf("egress IP detection exhausted all services: %w", lastErr))
}

type oculusRequest struct {
	OrderToken      string   `json:"orderToken"`
	Country         string   `json:"country"`
	NumberOfProxies int      `json:"numberOfProxies"`
	WhiteListIP     []string `json:"whiteListIP"`
	EnableSock5     bool     `json:"enableSock5"`
	PlanType        string   `json:"planType"`
}

// FetchProxies buys count endpoints in region, allow-listing ip on the
// order. The vendor returns newline- or array-delimited host:port:user:pass
// lines which are normalized to proxy URLs.
func (c *OculusClient) FetchProxies(ctx context.Context, region string, count int, ip string) ([]Endpoint, error) {
	body, err := c.post(ctx, oculusRequest{
		OrderToken:      c.OrderToken,
		Country:         strings.ToUpper(region),
		NumberOfProxies: count,
		WhiteListIP:     allowList(ip),
		EnableSock5:     false,
		PlanType:        "SHARED_DC",
	})
	if err != nil {
		return nil, err
	}

	lines, err := decodeProxyLines(body)
	if err != nil {
		return nil, errs.Wrap(errs.KindParse, "", fmt.Errorf("oculus proxy payload: %w", err))
	}
	eps := make([]Endpoint, 0, len(lines))
	for _, line := range lines {
		ep, ok := parseProxyLine(line)
		if !ok {
			continue
		}
		eps = append(eps, ep)
	}
	if len(eps) == 0 {
		return nil, errs.New(errs.KindProxyUnavailable, "", "oculus returned no usable proxies")
	}
	return eps, nil
}

// UpdateAllowList re-registers ip on the order. The vendor applies the
// allow-list on any order call, so a minimal fetch carries the update.
func (c *OculusClient) UpdateAllowList(ctx context.Context, ip string) error {
	_, err := c.post(ctx, oculusRequest{
		OrderToken:      c.OrderToken,
		Country:         strings.ToUpper(DefaultRegions[0]),
		NumberOfProxies: 1,
		WhiteListIP:     allowList(ip),
		EnableSock5:     false,
		PlanType:        "SHARED_DC",
	})
	return err
}

func (c *OculusClient) post(ctx context.Context, payload oculusRequest) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authToken", c.AuthToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "", fmt.Errorf("oculus request: %w", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errs.Wrap(errs.KindNetwork, "", fmt.Errorf("oculus response read: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.HTTPStatus("", resp.StatusCode, "oculus API")
	}
	return body, nil
}

// decodeProxyLines accepts either a JSON array of strings or a newline
// separated plain-text body.
func decodeProxyLines(body []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	if trimmed[0] == '[' {
		var arr []string
		if err := json.Unmarshal(trimmed, &arr); err != nil {
			return nil, err
		}
		return arr, nil
	}
	if trimmed[0] == '{' {
		var wrapped struct {
			Proxies []string `json:"proxies"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Proxies, nil
	}
	return strings.Split(string(trimmed), "\n"), nil
}

// parseProxyLine converts the vendor's host:port:user:pass form into a
// proxy URL. Malformed lines are dropped, never fatal.
func parseProxyLine(line string) (Endpoint, bool) {
	parts := strings.Split(strings.TrimSpace(line), ":")
	if len(parts) != 4 {
		return "", false
	}
	host, port, user, pass := parts[0], parts[1], parts[2], parts[3]
	if host == "" || port == "" {
		return "", false
	}
	return Endpoint(fmt.Sprintf("http://%s:%s@%s:%s", user, pass, host, port)), true
}

func allowList(ip string) []string {
	if ip == "" {
		return []string{}
	}
	return []string{ip}
}
