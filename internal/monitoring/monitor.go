package monitoring

import (
	"strings"
	"sync"
	"time"

	"larder/internal/taxonomy"
)

// Failure is a custom option that could not be persisted
type Failure struct {
	Kind  string    `json:"kind"`
	Value string    `json:"value"`
	Error string    `json:"error"`
	At    time.Time `json:"at"`
}

func failureKey(kind, value string) string {
	return kind + "/" + strings.ToLower(value)
}

// Monitor collects the live status reported by the health endpoint
type Monitor struct {
	gauges       map[string]func() any
	failures     map[string]map[string]Failure
	metricsMutex sync.RWMutex
	startTime    time.Time
}

// NewMonitor creates a new monitoring instance
func NewMonitor() *Monitor {
	return &Monitor{
		gauges:    make(map[string]func() any),
		failures:  make(map[string]map[string]Failure),
		startTime: time.Now(),
	}
}

// Track registers a gauge computed each time the status is read
func (m *Monitor) Track(name string, fn func() any) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()
	m.gauges[name] = fn
}

// ObserveCatalog tracks the custom options of user that the store has not
// accepted. An entry is cleared only once the catalog reports it persisted.
func (m *Monitor) ObserveCatalog(user string, ev taxonomy.Event) {
	m.metricsMutex.Lock()
	defer m.metricsMutex.Unlock()

	key := failureKey(string(ev.Kind), ev.Value)
	switch ev.Type {
	case taxonomy.EventPersistFailed:
		if m.failures[user] == nil {
			m.failures[user] = make(map[string]Failure)
		}
		m.failures[user][key] = Failure{
			Kind:  string(ev.Kind),
			Value: ev.Value,
			Error: ev.Error,
			At:    time.Now(),
		}
	case taxonomy.EventPersisted:
		delete(m.failures[user], key)
		if len(m.failures[user]) == 0 {
			delete(m.failures, user)
		}
	}
}

// LastFailure returns the most recent unsaved option of user, if any
func (m *Monitor) LastFailure(user string) (Failure, bool) {
	m.metricsMutex.RLock()
	defer m.metricsMutex.RUnlock()

	var last Failure
	found := false
	for _, f := range m.failures[user] {
		if !found || f.At.After(last.At) {
			last, found = f, true
		}
	}
	return last, found
}

// Status returns the gauge values plus uptime and the number of users with
// unsaved custom options
func (m *Monitor) Status() map[string]any {
	m.metricsMutex.RLock()
	gauges := make(map[string]func() any, len(m.gauges))
	for k, fn := range m.gauges {
		gauges[k] = fn
	}
	failing := len(m.failures)
	m.metricsMutex.RUnlock()

	status := make(map[string]any, len(gauges)+2)
	for k, fn := range gauges {
		status[k] = fn()
	}
	status["uptime_seconds"] = time.Since(m.startTime).Seconds()
	status["users_with_unsaved_options"] = failing
	return status
}
