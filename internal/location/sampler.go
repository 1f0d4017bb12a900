package location

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"math"
	"time"

	"github.com/inertia-live/inertia-go/internal/domain"
)

// Position is one device position with its sampling time.
type Position struct {
	Sample domain.LocationSample
	Time   time.Time
}

// Sampler is the device position source. Watch delivers positions until ctx
// is done; the channel is closed when the source ends.
type Sampler interface {
	Watch(ctx context.Context) (<-chan Position, error)
}

// StreamSampler reads newline-delimited JSON positions from a reader, one
// LocationSample per line. It backs the CLI, where positions come from a
// simulator or a forwarding bridge rather than a GPS chip.
type StreamSampler struct {
	r     io.Reader
	clock func() time.Time
}

func NewStreamSampler(r io.Reader) *StreamSampler {
	return &StreamSampler{r: r, clock: time.Now}
}

func (s *StreamSampler) Watch(ctx context.Context) (<-chan Position, error) {
	out := make(chan Position)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(s.r)
		for scanner.Scan() {
			var sample domain.LocationSample
			if err := json.Unmarshal(scanner.Bytes(), &sample); err != nil {
				continue
			}
			select {
			case out <- Position{Sample: sample, Time: s.clock()}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// TickerSampler emits a fixed position on an interval. Useful for soak
// testing the publish path without a moving device.
type TickerSampler struct {
	Sample   domain.LocationSample
	Interval time.Duration
}

func (s *TickerSampler) Watch(ctx context.Context) (<-chan Position, error) {
	out := make(chan Position)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				select {
				case out <- Position{Sample: s.Sample, Time: now}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

const earthRadiusMeters = 6371000

// haversineMeters is the great-circle distance between two coordinates.
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}
