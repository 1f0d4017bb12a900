// Package tracegen emits synthetic GPS traces for exercising a session
// without a real device: a seeded random walk written as newline-delimited
// JSON, one position per line, in the format the run command's trace source
// reads.
package tracegen

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"

	"github.com/inertia-live/inertia-go/internal/domain"
)

type Config struct {
	// Starting coordinates of the walk.
	Lat float64
	Lng float64
	// StepMeters is the distance covered between consecutive samples.
	StepMeters float64
	Count      int
	Seed       int64
}

type Result struct {
	Samples  int
	FinalLat float64
	FinalLng float64
}

const metersPerDegreeLat = 111320.0

// Run writes cfg.Count positions to w. The walk keeps a heading with small
// random drift, so the output resembles a player moving through a city rather
// than white noise.
func Run(w io.Writer, cfg Config) (Result, error) {
	cfg = normalize(cfg)
	rng := rand.New(rand.NewSource(cfg.Seed))
	enc := json.NewEncoder(w)

	lat, lng := cfg.Lat, cfg.Lng
	heading := rng.Float64() * 2 * math.Pi
	for i := 0; i < cfg.Count; i++ {
		if err := enc.Encode(domain.LocationSample{Lat: lat, Lng: lng}); err != nil {
			return Result{Samples: i}, fmt.Errorf("write sample: %w", err)
		}
		heading += (rng.Float64() - 0.5) * math.Pi / 4
		dLat := cfg.StepMeters * math.Cos(heading) / metersPerDegreeLat
		dLng := cfg.StepMeters * math.Sin(heading) / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))
		lat += dLat
		lng += dLng
	}
	return Result{Samples: cfg.Count, FinalLat: lat, FinalLng: lng}, nil
}

func normalize(cfg Config) Config {
	if cfg.StepMeters <= 0 {
		cfg.StepMeters = 60
	}
	if cfg.Count <= 0 {
		cfg.Count = 100
	}
	return cfg
}
