package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"catalogsync/internal/logger"
	"catalogsync/internal/metrics"
)

// Upstream rate-limit headers.
const (
	HeaderQuota        = "X-Rate-Limit-Requests-Quota"
	HeaderRequestsLeft = "X-Rate-Limit-Requests-Left"
	HeaderResetMs      = "X-Rate-Limit-Time-Reset-Ms"
	HeaderWindowMs     = "X-Rate-Limit-Time-Window-Ms"
)

const comfortableRemaining = 200

var ErrQuotaExceeded = errors.New("upstream quota exceeded")

type Options struct {
	HTTPClient *http.Client
	Clock      Clock
	Logger     *logger.Logger

	Quota             int
	Window            time.Duration
	CriticalThreshold int
	LowThreshold      int
	// Added to the reported reset time before a quota retry.
	ResetMargin time.Duration
	MaxAttempts int
}

func (o *Options) setDefaults() {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Clock == nil {
		o.Clock = RealClock{}
	}
	if o.Logger == nil {
		o.Logger = logger.NewNop()
	}
	if o.Quota <= 0 {
		o.Quota = 150
	}
	if o.Window <= 0 {
		o.Window = 30 * time.Second
	}
	if o.CriticalThreshold <= 0 {
		o.CriticalThreshold = 10
	}
	if o.LowThreshold <= 0 {
		o.LowThreshold = 50
	}
	if o.ResetMargin <= 0 {
		o.ResetMargin = time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
}

// State is the quota bookkeeping shared by every caller of a Gateway.
type State struct {
	Quota         int
	RequestsLeft  int
	Window        time.Duration
	Reset         time.Duration
	LastRequestAt time.Time
	MinDelay      time.Duration
}

// Gateway sends every upstream request, spacing them according to the
// remaining quota and resubmitting requests rejected with 429. One Gateway
// must be shared by all callers of the same upstream account.
type Gateway struct {
	opts Options

	mu    sync.Mutex
	state State
}

func New(opts Options) *Gateway {
	opts.setDefaults()
	g := &Gateway{opts: opts}
	g.state = State{
		Quota:        opts.Quota,
		RequestsLeft: opts.Quota,
		Window:       opts.Window,
		Reset:        opts.Window,
	}
	g.state.MinDelay = g.minDelay(g.state)
	return g
}

// Snapshot returns a copy of the current quota state.
func (g *Gateway) Snapshot() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Do sends req once its turn comes, retrying quota rejections up to
// MaxAttempts. The caller owns the returned response body.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointLabel(req.URL.Path)

	for attempt := 1; ; attempt++ {
		if err := g.awaitTurn(ctx); err != nil {
			return nil, err
		}

		curReq, err := cloneForRetry(req)
		if err != nil {
			return nil, err
		}

		started := g.opts.Clock.Now()
		resp, err := g.opts.HTTPClient.Do(curReq)
		if err != nil {
			metrics.RecordUpstream(endpoint, 0, g.opts.Clock.Now().Sub(started))
			return nil, fmt.Errorf("upstream %s: %w", endpoint, err)
		}
		metrics.RecordUpstream(endpoint, resp.StatusCode, g.opts.Clock.Now().Sub(started))

		g.observe(resp.Header)

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 32*1024))
		_ = resp.Body.Close()

		if attempt >= g.opts.MaxAttempts {
			g.opts.Logger.Error("Quota exceeded on %s after %d attempts", endpoint, attempt)
			return nil, fmt.Errorf("%w: %s after %d attempts", ErrQuotaExceeded, endpoint, attempt)
		}

		metrics.RecordQuotaRetry()
		wait := g.quotaBackoff()
		g.opts.Logger.Warn("Quota exceeded on %s, retry %d/%d in %s", endpoint, attempt, g.opts.MaxAttempts-1, wait)
		if err := g.opts.Clock.Sleep(ctx, wait); err != nil {
			return nil, err
		}
		metrics.RecordWait("quota_exceeded", wait)
	}
}

// awaitTurn reserves the next send slot under the lock and sleeps until it.
// Reserving before sleeping keeps concurrent callers spaced apart.
func (g *Gateway) awaitTurn(ctx context.Context) error {
	g.mu.Lock()
	now := g.opts.Clock.Now()
	var sendAt time.Time
	reason := "spacing"

	switch {
	case g.state.RequestsLeft <= g.opts.CriticalThreshold:
		sendAt = latest(now, g.state.LastRequestAt).Add(g.state.Reset)
		g.state.RequestsLeft = g.state.Quota
		g.state.MinDelay = g.minDelay(g.state)
		reason = "quota_reset"
	case g.state.RequestsLeft <= g.opts.LowThreshold:
		sendAt = g.nextSlot(now, 2*g.state.MinDelay)
		reason = "quota_low"
	default:
		sendAt = g.nextSlot(now, g.state.MinDelay)
	}

	g.state.LastRequestAt = sendAt
	g.state.RequestsLeft--
	g.state.MinDelay = g.minDelay(g.state)
	g.mu.Unlock()

	wait := sendAt.Sub(now)
	if wait <= 0 {
		return nil
	}
	if reason == "quota_reset" {
		g.opts.Logger.Warn("Upstream quota nearly exhausted, waiting %s for window reset", wait)
	}
	metrics.RecordWait(reason, wait)
	return g.opts.Clock.Sleep(ctx, wait)
}

func (g *Gateway) nextSlot(now time.Time, delay time.Duration) time.Time {
	if g.state.LastRequestAt.IsZero() {
		return now
	}
	return latest(now, g.state.LastRequestAt.Add(delay))
}

// observe folds the response's rate-limit headers into the state. Absent or
// malformed headers keep the previous value.
func (g *Gateway) observe(h http.Header) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if v, ok := headerInt(h, HeaderQuota); ok && v > 0 {
		g.state.Quota = v
	}
	if v, ok := headerInt(h, HeaderRequestsLeft); ok && v >= 0 {
		g.state.RequestsLeft = v
	}
	if v, ok := headerInt(h, HeaderResetMs); ok && v >= 0 {
		g.state.Reset = time.Duration(v) * time.Millisecond
	}
	if v, ok := headerInt(h, HeaderWindowMs); ok && v > 0 {
		g.state.Window = time.Duration(v) * time.Millisecond
	}
	g.state.MinDelay = g.minDelay(g.state)
}

func (g *Gateway) quotaBackoff() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()

	wait := g.state.Reset + g.opts.ResetMargin
	g.state.RequestsLeft = g.state.Quota
	g.state.MinDelay = g.minDelay(g.state)
	return wait
}

// minDelay is ceil(window/quota), doubled below LowThreshold remaining and
// scaled by 1.5 below comfortableRemaining.
func (g *Gateway) minDelay(s State) time.Duration {
	if s.Quota <= 0 {
		return 0
	}
	baseMs := math.Ceil(float64(s.Window.Milliseconds()) / float64(s.Quota))
	switch {
	case s.RequestsLeft < g.opts.LowThreshold:
		baseMs *= 2
	case s.RequestsLeft < comfortableRemaining:
		baseMs = math.Ceil(baseMs * 1.5)
	}
	return time.Duration(baseMs) * time.Millisecond
}

func headerInt(h http.Header, key string) (int, bool) {
	raw := h.Get(key)
	if raw == "" {
		for k, values := range h {
			if strings.EqualFold(k, key) && len(values) > 0 {
				raw = values[0]
				break
			}
		}
	}
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return v, true
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

var numericSegment = regexp.MustCompile(`/\d+`)

// endpointLabel drops store hashes and numeric IDs to keep metric labels bounded.
func endpointLabel(path string) string {
	if i := strings.Index(path, "/v3/"); i >= 0 {
		path = path[i+len("/v3/"):]
	}
	return strings.Trim(numericSegment.ReplaceAllString(path, "/:id"), "/")
}

func cloneForRetry(req *http.Request) (*http.Request, error) {
	cloned := req.Clone(req.Context())

	if req.Body == nil || req.Body == http.NoBody {
		return cloned, nil
	}
	if req.GetBody == nil {
		return nil, fmt.Errorf("cannot retry request with body: GetBody is nil")
	}
	b, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("cannot retry request with body: GetBody failed: %w", err)
	}
	cloned.Body = b
	return cloned, nil
}
