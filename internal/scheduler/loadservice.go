package scheduler

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/alpinemaps/tilescheduler/internal/tileid"
)

// URLPattern selects how a tile's zoom/x/y are laid out in the request
// path (spec.md §6).
type URLPattern uint8

const (
	ZXY URLPattern = iota
	ZYX
	ZXYYPointingSouth
	ZYXYPointingSouth
)

// DefaultTransferTimeout is the spec.md §4.2 default HTTP timeout.
const DefaultTransferTimeout = 5 * time.Second

// TileLoadService is a stateless HTTP client for one layer's tile service:
// fetch one tile, classify the outcome, never retry (retry is the
// Scheduler's responsibility via normal re-request on the next camera
// update). Multiple instances — one per configured layer — run
// concurrently with no shared state, matching spec.md §4.2.
type TileLoadService struct {
	// BaseURL may contain a "%HOST%" placeholder, substituted with one of
	// Hosts chosen by hashing the request path, for HTTP-cache-friendly
	// load balancing across mirrors of the same tile set.
	BaseURL    string
	Pattern    URLPattern
	FileSuffix string
	Hosts      []string
	Timeout    time.Duration
	Layer      Layer

	Client *http.Client
	Now    func() time.Time
}

// NewTileLoadService builds a TileLoadService with the spec's default
// transfer timeout.
func NewTileLoadService(layer Layer, baseURL string, pattern URLPattern, fileSuffix string, hosts ...string) *TileLoadService {
	return &TileLoadService{
		BaseURL:    baseURL,
		Pattern:    pattern,
		FileSuffix: fileSuffix,
		Hosts:      hosts,
		Timeout:    DefaultTransferTimeout,
		Layer:      layer,
		Client:     &http.Client{},
	}
}

func (s *TileLoadService) clock() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// buildPath computes the z/x/y (or z/y/x) path segment for id under the
// service's URL pattern, flipping the row per §6 for the *_yPointingSouth
// variants: y_out = 2^z - 1 - y.
func (s *TileLoadService) buildPath(id tileid.ID) string {
	switch s.Pattern {
	case ZYX:
		return fmt.Sprintf("%d/%d/%d", id.Zoom, id.Y, id.X)
	case ZXYYPointingSouth:
		return fmt.Sprintf("%d/%d/%d", id.Zoom, id.X, id.FlippedY())
	case ZYXYPointingSouth:
		return fmt.Sprintf("%d/%d/%d", id.Zoom, id.FlippedY(), id.X)
	default: // ZXY
		return fmt.Sprintf("%d/%d/%d", id.Zoom, id.X, id.Y)
	}
}

// buildURL computes the full request URL for id, selecting a load-balancing
// host (if any are configured) by hashing the path, so repeated requests
// for the same tile land on the same mirror and benefit from its HTTP
// cache.
func (s *TileLoadService) buildURL(id tileid.ID) string {
	path := s.buildPath(id)

	base := s.BaseURL
	if len(s.Hosts) > 0 {
		h := fnv.New32a()
		_, _ = io.WriteString(h, path)
		idx := int(h.Sum32() % uint32(len(s.Hosts)))
		base = strings.Replace(base, "%HOST%", s.Hosts[idx], 1)
	}

	return base + "/" + path + s.FileSuffix
}

// Load fetches one tile's bytes for this service's layer, classifying the
// outcome per spec.md §4.2 step 3. It never returns a Go error: every
// failure mode is expressed as a NetworkError TileLayer, consistent with
// spec.md §7 ("the core never throws errors ... through the public
// signals").
func (s *TileLoadService) Load(ctx context.Context, id tileid.ID) TileLayer {
	reqCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	url := s.buildURL(id)
	now := s.clock().UnixMilli()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.NetworkError, TimestampMs: now}}
	}
	req.Header.Set("Cache-Control", "max-stale")

	resp, err := s.client().Do(req)
	if err != nil {
		return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.NetworkError, TimestampMs: now}}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.NotFound, TimestampMs: now}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.NetworkError, TimestampMs: now}}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.NetworkError, TimestampMs: now}}
	}

	return TileLayer{ID: id, Layer: s.Layer, Info: tileid.NetworkInfo{Status: tileid.Good, TimestampMs: now}, Data: body}
}

func (s *TileLoadService) timeout() time.Duration {
	if s.Timeout <= 0 {
		return DefaultTransferTimeout
	}
	return s.Timeout
}

func (s *TileLoadService) client() *http.Client {
	if s.Client == nil {
		return http.DefaultClient
	}
	return s.Client
}
