package price

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultPricePath addresses the USD price in a CoinGecko simple/price response
const DefaultPricePath = "tron.usd"

// HTTPOracle fetches the TRX/USD price from a JSON HTTP endpoint.
// Path is a dot separated walk into the response object.
type HTTPOracle struct {
	url    string
	path   []string
	client *http.Client
	logger *zap.Logger
}

// NewHTTPOracle creates an oracle polling url and reading the number at path
func NewHTTPOracle(url, path string, timeout time.Duration, logger *zap.Logger) (*HTTPOracle, error) {
	if url == "" {
		return nil, fmt.Errorf("price url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if path == "" {
		path = DefaultPricePath
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPOracle{
		url:    url,
		path:   strings.Split(path, "."),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}, nil
}

// IsAvailable returns true; availability is only known per request
func (o *HTTPOracle) IsAvailable() bool {
	return true
}

// GetNativePrice fetches the current price
func (o *HTTPOracle) GetNativePrice(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build price request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price endpoint returned %d", resp.StatusCode)
	}

	price, err := lookup(body, o.path)
	if err != nil {
		o.logger.Warn("Unexpected price response",
			zap.String("url", o.url),
			zap.Error(err))
		return 0, err
	}
	return price, nil
}

func lookup(body []byte, path []string) (float64, error) {
	var node any
	if err := json.Unmarshal(body, &node); err != nil {
		return 0, fmt.Errorf("invalid price json: %w", err)
	}
	for _, key := range path {
		obj, ok := node.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("%w: %q is not an object", ErrUnavailable, key)
		}
		if node, ok = obj[key]; !ok {
			return 0, fmt.Errorf("%w: missing %q", ErrUnavailable, key)
		}
	}
	switch v := node.(type) {
	case float64:
		return v, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrUnavailable, v)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: unexpected value %v", ErrUnavailable, node)
}
