package domain

import "time"

// Stats is a point-in-time view exposed on the admin API.
type Stats struct {
	Connections    int
	Authenticated  int
	Persisted      uint64
	Delivered      uint64
	Queued         uint64
	Evicted        uint64
	WorkerRestarts uint64
	CensoredWords  uint64
	ProcessRSS     uint64
	ProcessCPU     float64
	ProcessStatus  string
	SampledAt      time.Time
}
