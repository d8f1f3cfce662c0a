package heap

import "time"

var processStart = time.Now()

// ElapsedTime returns the number of seconds since the process started. It is
// the monotonic timebase used for region empty times and uncommit deadlines.
func ElapsedTime() float64 {
	return time.Since(processStart).Seconds()
}
