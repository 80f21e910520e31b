package browser

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/pagemem/pkg/logging"
	"github.com/entrhq/pagemem/pkg/memory"
)

var browserDebugLog *logging.Logger

func init() {
	var err error
	browserDebugLog, err = logging.NewLogger("browser")
	if err != nil {
		// Logger fell back to stderr due to initialization failure
		browserDebugLog.Warnf("Failed to initialize browser logger, using stderr fallback: %v", err)
	}
}

// Manager owns the Playwright runtime and the observer sessions created
// from it.
type Manager struct {
	mu           sync.RWMutex
	observers    map[string]*Observer
	playwright   *playwright.Playwright
	maxObservers int
	idleTimeout  time.Duration
	initialized  bool
}

// NewManager creates an observer manager.
func NewManager() *Manager {
	return &Manager{
		observers:    make(map[string]*Observer),
		maxObservers: DefaultMaxObservers,
		idleTimeout:  time.Duration(DefaultIdleTimeout) * time.Second,
	}
}

// Initialize installs and starts the Playwright runtime. It must be called
// before starting any observers. Driver output is discarded so it cannot
// interleave with the host application's own output.
func (m *Manager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	browserDebugLog.Debugf("playwright runtime started")
	return nil
}

// StartObserver launches a browser and binds it to the given content
// memory. Every observer gets its own browser, context, and page.
func (m *Manager) StartObserver(name string, mem *memory.ContentMemory, opts ObserverOptions) (*Observer, error) {
	if mem == nil {
		return nil, fmt.Errorf("content memory is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.observers[name]; exists {
		return nil, fmt.Errorf("observer %q already exists", name)
	}
	if len(m.observers) >= m.maxObservers {
		return nil, fmt.Errorf("maximum number of observers (%d) reached", m.maxObservers)
	}
	if !m.initialized {
		return nil, fmt.Errorf("manager not initialized")
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	context, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := context.NewPage()
	if err != nil {
		context.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	page.SetDefaultTimeout(opts.Timeout)

	now := time.Now()
	observer := &Observer{
		name:        name,
		browser:     browser,
		context:     context,
		page:        page,
		memory:      mem,
		primeScript: buildPrimeScript(mem.Settings().TrackedTags),
		createdAt:   now,
		lastUsedAt:  now,
		currentURL:  "about:blank",
	}

	m.observers[name] = observer
	browserDebugLog.Debugf("started observer %q (headless: %v)", name, opts.Headless)
	return observer, nil
}

// GetObserver retrieves an active observer by name.
func (m *Manager) GetObserver(name string) (*Observer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	observer, exists := m.observers[name]
	if !exists {
		return nil, fmt.Errorf("observer %q not found", name)
	}
	return observer, nil
}

// CloseObserver closes and removes an observer session.
func (m *Manager) CloseObserver(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	observer, exists := m.observers[name]
	if !exists {
		return fmt.Errorf("observer %q not found", name)
	}

	observer.close()
	delete(m.observers, name)
	browserDebugLog.Debugf("closed observer %q", name)
	return nil
}

// ListObservers returns information about all active observers.
func (m *Manager) ListObservers() []ObserverInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]ObserverInfo, 0, len(m.observers))
	for _, observer := range m.observers {
		infos = append(infos, observer.info())
	}
	return infos
}

// CleanupIdleObservers closes observers that have not been used for longer
// than the idle timeout and returns the number closed.
func (m *Manager) CleanupIdleObservers() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	closed := 0
	for name, observer := range m.observers {
		if now.Sub(observer.LastUsedAt()) > m.idleTimeout {
			observer.close()
			delete(m.observers, name)
			closed++
		}
	}

	if closed > 0 {
		browserDebugLog.Debugf("cleaned up %d idle observers", closed)
	}
	return closed
}

// HasObservers returns true if any observer sessions are active.
func (m *Manager) HasObservers() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.observers) > 0
}

// CloseAll closes every active observer.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, observer := range m.observers {
		observer.close()
		delete(m.observers, name)
	}
	return nil
}

// Shutdown closes all observers and stops the Playwright runtime.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, observer := range m.observers {
		observer.close()
		delete(m.observers, name)
	}

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
		browserDebugLog.Debugf("playwright runtime stopped")
	}
	return nil
}

// SetMaxObservers sets the maximum number of concurrent observers.
func (m *Manager) SetMaxObservers(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxObservers = max
}

// SetIdleTimeout sets the idle timeout used by CleanupIdleObservers.
func (m *Manager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// ObserverInfo contains metadata about an observer session.
type ObserverInfo struct {
	Name       string
	CurrentURL string
	CreatedAt  time.Time
	LastUsedAt time.Time
}
