// Package facility finds hospitals, clinics and pharmacies near a point using
// the public OpenStreetMap Overpass API.
package facility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"symptosafe/internal/logging"
)

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrAllMirrorsFailed   = errors.New("all overpass mirrors failed")
)

const (
	DefaultRadiusMeters = 5000
	DefaultTimeout      = 30 * time.Second
	DefaultBackoff      = 500 * time.Millisecond

	userAgent     = "SymptoSafe/1.0"
	unnamed       = "Unnamed Facility"
	maxReplyBytes = 16 << 20
)

type Type string

const (
	TypeHospital Type = "hospital"
	TypeClinic   Type = "clinic"
	TypePharmacy Type = "pharmacy"
)

type Query struct {
	Latitude     float64
	Longitude    float64
	RadiusMeters float64
}

func (q Query) Validate() error {
	if math.IsNaN(q.Latitude) || q.Latitude < -90 || q.Latitude > 90 {
		return fmt.Errorf("%w: latitude must be between -90 and 90", ErrInvalidCoordinates)
	}
	if math.IsNaN(q.Longitude) || q.Longitude < -180 || q.Longitude > 180 {
		return fmt.Errorf("%w: longitude must be between -180 and 180", ErrInvalidCoordinates)
	}
	return nil
}

type Facility struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Type Type    `json:"type"`
}

type Client struct {
	mirrors    []string
	httpClient *http.Client
	timeout    time.Duration
	backoff    time.Duration
	logger     *zap.Logger
}

func NewClient(mirrors []string, timeout, backoff time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	return &Client{
		mirrors:    mirrors,
		httpClient: &http.Client{},
		timeout:    timeout,
		backoff:    backoff,
		logger:     logging.OrNop(logger),
	}
}

// Nearby tries each mirror in order, waiting backoff*i before mirror i. Any
// failure moves on to the next mirror; the first successful reply wins.
func (c *Client) Nearby(ctx context.Context, q Query) ([]Facility, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.RadiusMeters <= 0 {
		q.RadiusMeters = DefaultRadiusMeters
	}
	body := url.Values{"data": {overpassQuery(q)}}.Encode()

	lastErr := errors.New("no mirrors configured")
	for i, mirror := range c.mirrors {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(i)):
			}
		}

		facilities, err := c.fetch(ctx, mirror, body)
		if err == nil {
			return facilities, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("overpass mirror failed", zap.String("mirror", mirror), zap.Error(err))
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrAllMirrorsFailed, lastErr)
}

func (c *Client) fetch(ctx context.Context, mirror, body string) ([]Facility, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mirror, strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("overpass api unavailable (%d)", resp.StatusCode)
		}
		return nil, fmt.Errorf("overpass api error: %s", resp.Status)
	}

	var reply overpassReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxReplyBytes)).Decode(&reply); err != nil {
		return nil, fmt.Errorf("decode overpass reply: %w", err)
	}
	return reply.facilities(), nil
}

func overpassQuery(q Query) string {
	var b strings.Builder
	b.WriteString("[out:json][timeout:30];\n(\n")
	for _, t := range []Type{TypeHospital, TypeClinic, TypePharmacy} {
		fmt.Fprintf(&b, "  node[\"amenity\"=%q](around:%g,%g,%g);\n", t, q.RadiusMeters, q.Latitude, q.Longitude)
	}
	b.WriteString(");\nout;")
	return b.String()
}

type overpassReply struct {
	Elements []overpassElement `json:"elements"`
}

type overpassElement struct {
	ID     int64    `json:"id"`
	Lat    *float64 `json:"lat"`
	Lon    *float64 `json:"lon"`
	Center *struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"center"`
	Tags map[string]string `json:"tags"`
}

// facilities keeps supported amenities with a position and drops duplicates
// that share a name and sit within roughly 100m of each other.
func (r overpassReply) facilities() []Facility {
	out := []Facility{}
	seen := make(map[string]struct{})

	for _, el := range r.Elements {
		lat, lng, ok := el.position()
		if !ok {
			continue
		}
		t := Type(el.Tags["amenity"])
		if t != TypeHospital && t != TypeClinic && t != TypePharmacy {
			continue
		}
		f := Facility{ID: el.ID, Name: el.name(), Lat: lat, Lng: lng, Type: t}

		key := fmt.Sprintf("%s-%d-%d", f.Name, int64(math.Round(f.Lat*1000)), int64(math.Round(f.Lng*1000)))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (el overpassElement) position() (float64, float64, bool) {
	if el.Lat != nil && el.Lon != nil {
		return *el.Lat, *el.Lon, true
	}
	if el.Center != nil {
		return el.Center.Lat, el.Center.Lon, true
	}
	return 0, 0, false
}

func (el overpassElement) name() string {
	for _, k := range []string{"name", "name:en", "name:hi", "name:mr"} {
		if v := strings.TrimSpace(el.Tags[k]); v != "" {
			return v
		}
	}
	return unnamed
}
