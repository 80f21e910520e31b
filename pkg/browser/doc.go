// Package browser connects live Playwright pages to the content memory
// engine.
//
// The browser package is the driver side of content observation: it tags
// page elements with stable identity attributes, reads page state, and
// feeds the resulting snapshots into a memory.ContentMemory around the
// actions it performs.
//
// # Architecture
//
// The package is built around two core concepts:
//
// 1. Observer: Binds one browser page to one content memory
// 2. Manager: Owns the Playwright runtime and the active observers
//
// The manager caps concurrent observers and can reap sessions that have
// been idle past a configurable timeout via CleanupIdleObservers.
//
// # Observation Cycle
//
// Each tracked action follows the same cycle:
//
//  1. Prime: tag trackable elements with data-pagemem-id and refresh the
//     data-pagemem-hidden markers from computed styles
//  2. Act: run the caller's action (click, scroll, navigation)
//  3. Capture: read body markup, scroll position, viewport, and URL in a
//     single script round trip
//  4. Merge: fold the new snapshot into the content memory against the
//     previous observation
//
// The first cycle on a page additionally seeds the memory with a baseline
// snapshot before the action runs, so content visible before the first
// action is never lost.
//
// # Identity
//
// The prime script assigns ids of the form "pm-<seed>-<n>". The counter
// and seed live on the page's window object: re-priming never re-tags an
// element, and a navigation resets the seed so ids from different pages
// never collide.
//
// # Example Usage
//
//	manager := browser.NewManager()
//	if err := manager.Initialize(); err != nil {
//	    return err
//	}
//	defer manager.Shutdown()
//
//	mem, err := memory.New()
//	if err != nil {
//	    return err
//	}
//
//	observer, err := manager.StartObserver("feed", mem, browser.ObserverOptions{
//	    Headless: true,
//	})
//	if err != nil {
//	    return err
//	}
//
//	err = observer.Navigate("https://example.com", browser.NavigateOptions{
//	    WaitUntil: "networkidle",
//	})
//
//	result, err := observer.TrackAction("scroll feed", func() error {
//	    return observer.ScrollBy(0, 2000)
//	})
//	fmt.Println(result.Summary())
//
// TrackScroll, TrackClick, and TrackNavigate wrap the corresponding page
// action in a tracked merge for the common single-action case; TrackAction
// composes several operations into one merge.
package browser
