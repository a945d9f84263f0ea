package directory

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"roomhub/internal/core/domain"
	"roomhub/internal/core/ports"
	"roomhub/pkg/cache"
	"roomhub/pkg/circuitbreaker"
	"roomhub/pkg/retry"

	"go.uber.org/zap"
)

// HTTPRoomDirectory asks the external Room Directory service whether a room
// exists. Existence is checked once per connection attempt, so lookups are
// cached briefly and guarded by retry and a circuit breaker: a directory
// outage should degrade joins, not hammer the service.
type HTTPRoomDirectory struct {
	baseURL  string
	client   *http.Client
	cache    *cache.Cache
	cacheTTL time.Duration
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
	logger   *zap.SugaredLogger
}

func NewHTTPRoomDirectory(baseURL string, requestTimeout, cacheTTL time.Duration, logger *zap.SugaredLogger) *HTTPRoomDirectory {
	return &HTTPRoomDirectory{
		baseURL:  baseURL,
		client:   &http.Client{Timeout: requestTimeout},
		cache:    cache.NewCache(cacheTTL),
		cacheTTL: cacheTTL,
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig()),
		retryCfg: retry.Config{
			Enabled:      true,
			MaxAttempts:  2,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

var _ ports.RoomDirectory = (*HTTPRoomDirectory)(nil)

func (d *HTTPRoomDirectory) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	cacheKey := "room:" + string(id)
	if d.cacheTTL > 0 {
		if cached, ok := d.cache.Get(cacheKey); ok {
			return cached.(bool), nil
		}
	}

	var exists bool
	err := d.breaker.Execute(ctx, func() error {
		result, err := retry.RetryWithResult(ctx, d.retryCfg, func() (bool, error) {
			return d.lookup(ctx, id)
		})
		if err != nil {
			return err
		}
		exists = result
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("room directory lookup failed: %w", err)
	}

	if d.cacheTTL > 0 {
		d.cache.SetWithTTL(cacheKey, exists, d.cacheTTL)
	}
	return exists, nil
}

func (d *HTTPRoomDirectory) lookup(ctx context.Context, id domain.RoomID) (bool, error) {
	url := fmt.Sprintf("%s/api/rooms/%s", d.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to build directory request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("directory request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("directory returned unexpected status %d", resp.StatusCode)
	}
}

// InvalidateRoom drops the cached existence entry, used when the control
// plane reports a deletion so the next join sees it immediately.
func (d *HTTPRoomDirectory) InvalidateRoom(id domain.RoomID) {
	d.cache.Delete("room:" + string(id))
}

// Close stops the cache janitor.
func (d *HTTPRoomDirectory) Close() {
	d.cache.Stop()
}
