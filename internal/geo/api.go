package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
)

// SourceAPI marks locations resolved from the external lookup service.
const SourceAPI = "api"

// DefaultAPITimeout bounds a single external lookup.
const DefaultAPITimeout = 1500 * time.Millisecond

// maxAPIBody caps the response size read from the lookup service.
const maxAPIBody = 64 << 10

// API queries an ipapi/ipinfo-style JSON service. The URL template carries
// an {ip} placeholder, e.g. https://ipapi.co/{ip}/json/.
type API struct {
	template string
	client   *http.Client
	logger   *slog.Logger
}

// NewAPI creates an API locator.
func NewAPI(template string, timeout time.Duration, logger *slog.Logger) *API {
	if timeout <= 0 {
		timeout = DefaultAPITimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		template: template,
		client:   newHTTPClient(timeout),
		logger:   logger.With("component", "geo_api"),
	}
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   timeout,
			ResponseHeaderTimeout: timeout,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// apiResponse covers the common field names of free lookup services.
type apiResponse struct {
	Country     string          `json:"country"`
	CountryCode string          `json:"country_code"`
	Region      string          `json:"region"`
	RegionCode  string          `json:"region_code"`
	State       string          `json:"state"`
	City        string          `json:"city"`
	Latitude    json.RawMessage `json:"latitude"`
	Lat         json.RawMessage `json:"lat"`
	Longitude   json.RawMessage `json:"longitude"`
	Lon         json.RawMessage `json:"lon"`
}

// Lookup implements Locator.
func (a *API) Lookup(ctx context.Context, ip string) *model.Geo {
	if a.template == "" || !IsPublic(ip) {
		return nil
	}

	target := strings.ReplaceAll(a.template, "{ip}", url.PathEscape(ip))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		a.logger.Warn("geo_api_bad_template", "error", err)
		return nil
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		a.logger.Debug("geo_api_request_failed", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Debug("geo_api_unexpected_status", "status", resp.StatusCode)
		return nil
	}

	var body apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAPIBody)).Decode(&body); err != nil {
		a.logger.Debug("geo_api_decode_failed", "error", err)
		return nil
	}

	g := &model.Geo{
		Country: model.Truncate(firstNonEmpty(body.Country, body.CountryCode), 2),
		Region:  firstNonEmpty(body.Region, body.RegionCode, body.State),
		City:    body.City,
		Lat:     firstNumber(body.Latitude, body.Lat),
		Lon:     firstNumber(body.Longitude, body.Lon),
		Source:  SourceAPI,
	}
	if g.IsZero() {
		return nil
	}
	return g
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// firstNumber accepts numbers and numeric strings.
func firstNumber(values ...json.RawMessage) *float64 {
	for _, raw := range values {
		if len(raw) == 0 || string(raw) == "null" {
			continue
		}
		s := strings.Trim(string(raw), `"`)
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			continue
		}
		return &f
	}
	return nil
}

// String helps log configuration without leaking query secrets.
func (a *API) String() string {
	u, err := url.Parse(strings.ReplaceAll(a.template, "{ip}", "x"))
	if err != nil {
		return "geo-api(invalid)"
	}
	return fmt.Sprintf("geo-api(%s)", u.Host)
}
