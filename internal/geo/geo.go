// Package geo holds the spherical-distance and speed math used by the
// safety monitor. Distances use the great-circle (Haversine) formula on a
// sphere of Earth's mean radius.
package geo

import (
	"time"

	"github.com/golang/geo/s2"
)

const (
	// EarthRadiusMeters is Earth's mean radius.
	EarthRadiusMeters = 6371000.0

	speedWindowSize    = 5
	movingThresholdKmh = 0.5
	metersPerSecToKmh  = 3.6
)

// HaversineDistance returns the great-circle distance in meters between two
// latitude/longitude points given in degrees.
func HaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	p1 := s2.LatLngFromDegrees(lat1, lon1)
	p2 := s2.LatLngFromDegrees(lat2, lon2)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// DerivedSpeed computes instantaneous speed in m/s from two positions and
// their timestamps. Returns 0 when the elapsed time is not positive.
func DerivedSpeed(lat1, lon1 float64, t1 time.Time, lat2, lon2 float64, t2 time.Time) float64 {
	elapsed := t2.Sub(t1).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return HaversineDistance(lat1, lon1, lat2, lon2) / elapsed
}

// SpeedWindow keeps a sliding window of the most recent speed readings in
// m/s and reports the mean in km/h. Not safe for concurrent use; the owning
// monitor serializes access.
type SpeedWindow struct {
	samples []float64
}

func NewSpeedWindow() *SpeedWindow {
	return &SpeedWindow{samples: make([]float64, 0, speedWindowSize)}
}

// Add appends a speed reading in m/s, evicting the oldest once the window
// is full. Negative readings (unknown speed per the geolocation API) are
// ignored.
func (w *SpeedWindow) Add(speedMS float64) {
	if speedMS < 0 {
		return
	}
	if len(w.samples) == speedWindowSize {
		copy(w.samples, w.samples[1:])
		w.samples = w.samples[:speedWindowSize-1]
	}
	w.samples = append(w.samples, speedMS)
}

// MeanKmh returns the mean of the window converted to km/h, or 0 for an
// empty window.
func (w *SpeedWindow) MeanKmh() float64 {
	if len(w.samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range w.samples {
		sum += s
	}
	return sum / float64(len(w.samples)) * metersPerSecToKmh
}

// Moving reports whether the mean speed exceeds the walking-noise threshold.
func (w *SpeedWindow) Moving() bool {
	return w.MeanKmh() > movingThresholdKmh
}
