package controllers

import (
	"fmt"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"crawlerd/internal/storage"
	"crawlerd/internal/structures"
)

type HealthController struct {
	storage   string
	rollup    string
	records   storage.Snapshotter
	startTime time.Time
}

type healthResponse struct {
	Status        string  `json:"status"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	Storage       string  `json:"storage"`
	Rollup        string  `json:"rollup"`
	Records       *int    `json:"records,omitempty"`
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	uptime := time.Since(hc.startTime)
	resp := healthResponse{
		Status:        "ok",
		Uptime:        formatDuration(uptime),
		UptimeSeconds: uptime.Seconds(),
		Storage:       hc.storage,
		Rollup:        hc.rollup,
	}
	if hc.records != nil {
		n := hc.records.Len()
		resp.Records = &n
	}

	gson, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh%dm%ds", hours, minutes, seconds)
}

// NewHealthController reports the configured backends. records is nil
// unless rollups live in process memory.
func NewHealthController(conf *structures.Config, records storage.Snapshotter) *HealthController {
	rollup := conf.Storage.Rollup
	if rollup == "" || rollup == "same" {
		rollup = conf.Storage.Driver
	}
	return &HealthController{
		storage:   conf.Storage.Driver,
		rollup:    rollup,
		records:   records,
		startTime: time.Now(),
	}
}
