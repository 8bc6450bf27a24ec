package health

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Probe опрашивает одну зависимость; nil-ошибка означает «живая».
type Probe func() error

type probeResult struct {
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

type report struct {
	Status        string                 `json:"status"`
	Version       string                 `json:"version,omitempty"`
	UptimeSeconds int64                  `json:"uptime_seconds"`
	Probes        map[string]probeResult `json:"probes,omitempty"`
}

const (
	statusOK      = "ok"
	statusFailing = "failing"
)

// Registry держит именованные пробы зависимостей и отдаёт их сводку
// на /healthz (JSON) и /readyz (plain text).
type Registry struct {
	mu        sync.RWMutex
	probes    map[string]Probe
	version   string
	startedAt time.Time
}

func NewRegistry(version string) *Registry {
	return &Registry{
		probes:    make(map[string]Probe),
		version:   version,
		startedAt: time.Now(),
	}
}

// Register добавляет пробу под именем; повторная регистрация заменяет её.
func (r *Registry) Register(name string, probe Probe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.probes[name] = probe
}

func (r *Registry) snapshot() map[string]Probe {
	r.mu.RLock()
	defer r.mu.RUnlock()
	probes := make(map[string]Probe, len(r.probes))
	for name, probe := range r.probes {
		probes[name] = probe
	}
	return probes
}

// ServeHTTP — /healthz: прогоняет все пробы и отдаёт JSON-сводку.
// Любая упавшая проба опускает общий статус и код ответа до 503.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	results := make(map[string]probeResult)
	overall := statusOK

	for name, probe := range r.snapshot() {
		start := time.Now()
		err := probe()
		result := probeResult{
			Status:    statusOK,
			ElapsedMs: time.Since(start).Milliseconds(),
		}
		if err != nil {
			result.Status = statusFailing
			result.Error = err.Error()
			overall = statusFailing
		}
		results[name] = result
	}

	code := http.StatusOK
	if overall == statusFailing {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report{
		Status:        overall,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startedAt).Seconds()),
		Probes:        results,
	})
}

// Ready — /readyz: готовность без тела-сводки, для оркестратора контейнеров.
func (r *Registry) Ready(w http.ResponseWriter, _ *http.Request) {
	for _, probe := range r.snapshot() {
		if err := probe(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Alive — /livez: процесс жив, зависимости не опрашиваются.
func Alive(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
