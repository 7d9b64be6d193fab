package engine

import (
	"fmt"
	"time"

	"github.com/ivlev/motion2video/internal/system"
)

// Stats are timings of a finished export.
type Stats struct {
	Render time.Duration // sampling and compositing
	Encode time.Duration // muxer backpressure, appends and flush
	Total  time.Duration
	FPS    float64
	// Usage is sampled only when stats are enabled.
	Usage *system.ResourceUsage
}

func (s *Stats) finish(frames int, total time.Duration, sample bool) {
	s.Total = total
	if total > 0 {
		s.FPS = float64(frames) / total.Seconds()
	}
	if sample {
		if u, err := system.Usage(); err == nil {
			s.Usage = &u
		}
	}
}

// Report formats the stats for the console.
func (s Stats) Report(build string) string {
	report := fmt.Sprintf(
		"--- [PERFORMANCE REPORT] ---\n"+
			"Build: %s\n"+
			"Total Time: %.2fs\n"+
			"Rendering (CPU): %.2fs\n"+
			"Encoding: %.2fs\n"+
			"Effective FPS: %.2f\n",
		build, s.Total.Seconds(), s.Render.Seconds(), s.Encode.Seconds(), s.FPS,
	)
	if s.Usage != nil {
		report += "Resources: " + s.Usage.String() + "\n"
	}
	return report + "----------------------------\n"
}

// LogEntry is one benchmark.log line.
func (s Stats) LogEntry(at time.Time, build, project string, frames int) string {
	return fmt.Sprintf("[%s] Build: %s | Project: %s | Frames: %d | Total: %.2fs | Render: %.2fs | Encode: %.2fs | FPS: %.2f\n",
		at.Format("2006-01-02 15:04:05"),
		build,
		project,
		frames,
		s.Total.Seconds(),
		s.Render.Seconds(),
		s.Encode.Seconds(),
		s.FPS,
	)
}
