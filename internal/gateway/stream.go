package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sy264115809/techshow/internal/config"
)

// Stream is a handle to an external live-stream resource
type Stream struct {
	ID       string `json:"id"`
	Disabled bool   `json:"disabled"`
}

// LiveStatus is the provider's view of a stream's ingestion state
type LiveStatus struct {
	Alive     bool   `json:"alive"`
	StartedAt int64  `json:"started_at"`
	Client    string `json:"client"` // publisher address when alive
}

// Segment is one recorded slice of a broadcast
type Segment struct {
	Start int64 `json:"start"` // epoch seconds
	End   int64 `json:"end"`
}

// SegmentList is the provider's authoritative recording metadata for a window
type SegmentList struct {
	Duration int64     `json:"duration"` // total seconds across items
	Items    []Segment `json:"segments"`
}

// LiveURLs are the playback addresses for a live stream
type LiveURLs struct {
	RTMP string `json:"rtmp"`
	HLS  string `json:"hls"`
	FLV  string `json:"flv"`
}

// StreamGateway abstracts the external live-streaming provider
type StreamGateway interface {
	// GetOrCreate returns the stream registered for ownerRef, creating it on first use
	GetOrCreate(ctx context.Context, ownerRef string) (*Stream, error)
	// Disable blocks further publishing on the stream
	Disable(ctx context.Context, streamID string) error
	// Enable lifts a previous Disable
	Enable(ctx context.Context, streamID string) error
	// Status queries whether the stream is currently receiving data
	Status(ctx context.Context, streamID string) (*LiveStatus, error)
	// Segments fetches recorded segment metadata for [startSec, endSec]
	Segments(ctx context.Context, streamID string, startSec, endSec int64) (*SegmentList, error)
	// LiveURLs builds the playback addresses for a live stream
	LiveURLs(streamID string) LiveURLs
	// PlaybackURL builds the HLS playback address for a finished window
	PlaybackURL(streamID string, startSec, endSec int64) string
}

// streamHTTP talks to a Pili-style streaming hub over HTTP
type streamHTTP struct {
	cfg     config.StreamConfig
	client  *http.Client
	breaker *CircuitBreaker
}

// NewStreamGateway creates a StreamGateway backed by the configured provider
func NewStreamGateway(cfg config.StreamConfig) StreamGateway {
	return &streamHTTP{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: NewCircuitBreaker(5, 30*time.Second),
	}
}

// GetOrCreate returns the stream registered for ownerRef, creating it on first use
func (g *streamHTTP) GetOrCreate(ctx context.Context, ownerRef string) (*Stream, error) {
	var stream Stream
	// Try fetch first; the provider keys streams by the owner reference
	err := g.call(ctx, "stream.get", http.MethodGet, g.hubPath("/streams/"+url.PathEscape(ownerRef)), nil, &stream)
	if err == nil {
		return &stream, nil
	}
	var gerr *Error
	if !errors.As(err, &gerr) || gerr.StatusCode != http.StatusNotFound {
		return nil, err
	}

	body := map[string]string{"key": ownerRef}
	if err := g.call(ctx, "stream.create", http.MethodPost, g.hubPath("/streams"), body, &stream); err != nil {
		return nil, err
	}
	return &stream, nil
}

// Disable blocks further publishing on the stream
func (g *streamHTTP) Disable(ctx context.Context, streamID string) error {
	return g.call(ctx, "stream.disable", http.MethodPost, g.streamPath(streamID, "/disabled"), map[string]bool{"disabled": true}, nil)
}

// Enable lifts a previous Disable
func (g *streamHTTP) Enable(ctx context.Context, streamID string) error {
	return g.call(ctx, "stream.enable", http.MethodPost, g.streamPath(streamID, "/disabled"), map[string]bool{"disabled": false}, nil)
}

// Status queries whether the stream is currently receiving data
func (g *streamHTTP) Status(ctx context.Context, streamID string) (*LiveStatus, error) {
	var status LiveStatus
	if err := g.call(ctx, "stream.status", http.MethodGet, g.streamPath(streamID, "/live"), nil, &status); err != nil {
		var gerr *Error
		// The provider answers 404/410 on streams with no live session
		if errors.As(err, &gerr) && (gerr.StatusCode == http.StatusNotFound || gerr.StatusCode == http.StatusGone) {
			return &LiveStatus{Alive: false}, nil
		}
		return nil, err
	}
	return &status, nil
}

// Segments fetches recorded segment metadata for [startSec, endSec]
func (g *streamHTTP) Segments(ctx context.Context, streamID string, startSec, endSec int64) (*SegmentList, error) {
	path := fmt.Sprintf("%s?start=%d&end=%d", g.streamPath(streamID, "/segments"), startSec, endSec)
	var list SegmentList
	if err := g.call(ctx, "stream.segments", http.MethodGet, path, nil, &list); err != nil {
		var gerr *Error
		if errors.As(err, &gerr) && gerr.StatusCode == http.StatusNotFound {
			// No recording at all for the window
			return &SegmentList{}, nil
		}
		return nil, err
	}
	return &list, nil
}

// LiveURLs builds the playback addresses for a live stream
func (g *streamHTTP) LiveURLs(streamID string) LiveURLs {
	base := fmt.Sprintf("%s/%s/%s", g.cfg.PlayDomain, g.cfg.Hub, streamID)
	return LiveURLs{
		RTMP: "rtmp://" + base,
		HLS:  fmt.Sprintf("https://%s.m3u8", base),
		FLV:  fmt.Sprintf("https://%s.flv", base),
	}
}

// PlaybackURL builds the HLS playback address for a finished window
func (g *streamHTTP) PlaybackURL(streamID string, startSec, endSec int64) string {
	return fmt.Sprintf("https://%s/%s/%s.m3u8?start=%d&end=%d",
		g.cfg.PlayDomain, g.cfg.Hub, streamID, startSec, endSec)
}

func (g *streamHTTP) hubPath(suffix string) string {
	return "/v2/hubs/" + g.cfg.Hub + suffix
}

func (g *streamHTTP) streamPath(streamID, suffix string) string {
	return g.hubPath("/streams/" + url.PathEscape(streamID) + suffix)
}

// call performs a signed JSON round-trip behind the circuit breaker
func (g *streamHTTP) call(ctx context.Context, op, method, path string, body, out interface{}) error {
	err := g.breaker.Call(func() error {
		var reader *strings.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return NewPermanent(op, err)
			}
			reader = strings.NewReader(string(data))
		} else {
			reader = strings.NewReader("")
		}

		req, err := http.NewRequestWithContext(ctx, method, g.cfg.Endpoint+path, reader)
		if err != nil {
			return NewPermanent(op, err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", g.sign(method, path))

		resp, err := g.client.Do(req)
		if err != nil {
			return classifyHTTP(op, 0, err)
		}
		defer resp.Body.Close() // nolint:errcheck

		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			return classifyHTTP(op, resp.StatusCode, nil)
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return NewPermanent(op, fmt.Errorf("decode response: %w", err))
			}
		}
		return nil
	})
	if err == ErrCircuitOpen {
		return NewTransient(op, err)
	}
	return err
}

// sign builds the provider's HMAC-SHA1 request signature
func (g *streamHTTP) sign(method, path string) string {
	mac := hmac.New(sha1.New, []byte(g.cfg.SecretKey))
	fmt.Fprintf(mac, "%s %s", method, path)
	digest := base64.URLEncoding.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("Qiniu %s:%s", g.cfg.AccessKey, digest)
}
