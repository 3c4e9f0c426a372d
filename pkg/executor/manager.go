package executor

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// Manager holds one [Executor] per upstream domain, created on first use.
type Manager struct {
	defaults  Options
	overrides map[string]Options

	mu        sync.Mutex
	executors map[string]*Executor
}

// NewManager creates a manager. Domains listed in overrides use their own
// policy; all others use defaults.
func NewManager(defaults Options, overrides map[string]Options) *Manager {
	o := make(map[string]Options, len(overrides))
	for domain, opts := range overrides {
		o[strings.ToLower(domain)] = opts
	}
	return &Manager{
		defaults:  defaults,
		overrides: o,
		executors: make(map[string]*Executor),
	}
}

// Executor returns the executor for domain, creating it if needed.
func (m *Manager) Executor(domain string) *Executor {
	domain = strings.ToLower(domain)

	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.executors[domain]; ok {
		return e
	}
	opts, ok := m.overrides[domain]
	if !ok {
		opts = m.defaults
	}
	e := New(domain, opts)
	m.executors[domain] = e
	return e
}

// Do runs work on the executor for domain.
func (m *Manager) Do(ctx context.Context, domain string, work func(context.Context) error) error {
	return m.Executor(domain).Do(ctx, work)
}

// Domains returns the domains that have an executor.
func (m *Manager) Domains() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.executors))
	for d := range m.executors {
		out = append(out, d)
	}
	return out
}

// DomainKey derives the executor key for a request URL: its lowercased host
// including any port. Unparseable input is returned lowercased.
func DomainKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return strings.ToLower(rawURL)
	}
	return strings.ToLower(u.Host)
}
