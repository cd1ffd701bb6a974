package pricesource

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"autopay-tips/internal/domain"
	"autopay-tips/internal/registry"
)

const (
	// DefaultHTTPTimeout bounds one price request.
	DefaultHTTPTimeout = 10 * time.Second
	// maxBody caps the response size read from a price API.
	maxBody = 1 << 20
)

// HTTPConfig describes a JSON price API.
//
// URL and Path may contain {asset} and {currency}, filled from SpotPrice
// query data.
type HTTPConfig struct {
	URL     string
	Path    string // gjson path to the price
	Timeout time.Duration
	RPS     float64 // 0 disables rate limiting
	Burst   int
	Headers map[string]string
}

// HTTP fetches prices from a JSON API.
type HTTP struct {
	cfg     HTTPConfig
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTP creates a new HTTP source.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultHTTPTimeout
	}
	s := &HTTP{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return s
}

// FetchPrice requests the configured URL and reads the price at Path.
func (s *HTTP) FetchPrice(ctx context.Context, query domain.Query) (decimal.Decimal, error) {
	replacer := strings.NewReplacer()
	if asset, currency, err := registry.DecodeSpotPrice(query.Data); err == nil {
		replacer = strings.NewReplacer("{asset}", asset, "{currency}", currency)
	}
	url := replacer.Replace(s.cfg.URL)
	path := replacer.Replace(s.cfg.Path)

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return decimal.Zero, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("%w: http status %d", ErrNoPrice, resp.StatusCode)
	}

	result := gjson.GetBytes(body, path)
	if !result.Exists() {
		return decimal.Zero, fmt.Errorf("%w: path %q not found", ErrNoPrice, path)
	}

	var price decimal.Decimal
	switch result.Type {
	case gjson.Number, gjson.String:
		price, err = decimal.NewFromString(strings.TrimSpace(result.String()))
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: parse %q: %v", ErrNoPrice, result.String(), err)
		}
	default:
		return decimal.Zero, fmt.Errorf("%w: path %q is %s", ErrNoPrice, path, result.Type)
	}

	if price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("%w: non-positive price %s", ErrNoPrice, price)
	}
	return price, nil
}
