package server

import (
	"net/http"
	"runtime"
	"time"

	"github.com/jogardn/coffee-storefront/internal/circuitbreaker"
	"github.com/jogardn/coffee-storefront/internal/httpx"
)

type memoryStats struct {
	Alloc      uint64 `json:"alloc"`
	TotalAlloc uint64 `json:"totalAlloc"`
	Sys        uint64 `json:"sys"`
	HeapInuse  uint64 `json:"heapInuse"`
	NumGC      uint32 `json:"numGC"`
	Goroutines int    `json:"goroutines"`
}

type healthResponse struct {
	Success         bool                   `json:"success"`
	Status          string                 `json:"status"`
	Message         string                 `json:"message"`
	Timestamp       time.Time              `json:"timestamp"`
	Environment     string                 `json:"environment"`
	Uptime          float64                `json:"uptime"`
	Memory          memoryStats            `json:"memory"`
	Version         string                 `json:"version"`
	Storage         string                 `json:"storage"`
	AdminClients    int                    `json:"adminClients"`
	EventPublishing []circuitbreaker.Stats `json:"eventPublishing,omitempty"`
}

type breakerStats interface {
	Stats() []circuitbreaker.Stats
}

// health reports process status. Uptime is in seconds.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	resp := healthResponse{
		Success:     true,
		Status:      "healthy",
		Message:     "Unforgettable Coffee Server is running!",
		Timestamp:   s.now().UTC(),
		Environment: s.cfg.Environment,
		Uptime:      s.now().Sub(s.started).Seconds(),
		Memory: memoryStats{
			Alloc:      mem.Alloc,
			TotalAlloc: mem.TotalAlloc,
			Sys:        mem.Sys,
			HeapInuse:  mem.HeapInuse,
			NumGC:      mem.NumGC,
			Goroutines: runtime.NumGoroutine(),
		},
		Version:      version,
		Storage:      s.cfg.StorageBackend,
		AdminClients: s.hub.ClientCount(),
	}
	if guarded, ok := s.publisher.(breakerStats); ok {
		resp.EventPublishing = guarded.Stats()
	}

	httpx.RespondWithJSON(w, http.StatusOK, resp)
}
