// Package netstate classifies device connectivity into a three-state model
// consumed by the sync manager and the enqueue path.
package netstate

import (
	"sync"
)

// State is the derived connectivity classification.
type State int

const (
	// Unknown means connectivity could not be determined. Writes are
	// queued rather than risked against an uncertain connection.
	Unknown State = iota

	// Online means the device has a network interface and the internet
	// was confirmed reachable.
	Online

	// Offline means there is no usable connection.
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "ONLINE"
	case Offline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// ShouldAttemptAPICall reports whether read requests should be attempted.
// Optimistic: everything except a confirmed OFFLINE falls through to the
// network, letting reads fail over to cache.
func (s State) ShouldAttemptAPICall() bool {
	return s != Offline
}

// ShouldAllowWrites reports whether mutations may be sent directly.
// Conservative: only a confirmed ONLINE qualifies; UNKNOWN forces writes
// into the offline queue.
func (s State) ShouldAllowWrites() bool {
	return s == Online
}

// Snapshot is one reading from the platform's connectivity observer.
// Connected reports whether the device has a network interface;
// InternetReachable reports whether the internet was actually reachable.
// Nil means the corresponding signal is not known.
type Snapshot struct {
	Connected         *bool  `json:"is_online"`
	InternetReachable *bool  `json:"is_internet_reachable"`
	ConnectionType    string `json:"connection_type"`
}

// Classify derives the state from a snapshot. Pure; re-evaluated on every
// reading rather than stored as an explicit state machine.
func Classify(s Snapshot) State {
	switch {
	case s.Connected == nil:
		return Unknown
	case !*s.Connected:
		return Offline
	case s.InternetReachable != nil && !*s.InternetReachable:
		// Interface up but reachability confirmed false: captive portals
		// and similar false positives count as offline.
		return Offline
	case s.InternetReachable != nil && *s.InternetReachable:
		return Online
	default:
		return Unknown
	}
}

// Listener is notified when the derived state transitions.
type Listener func(old, new State)

// Detector holds the most recent snapshot and notifies listeners on state
// transitions. Feed it snapshots from the platform's connectivity observer
// via Update.
type Detector struct {
	mu        sync.RWMutex
	last      Snapshot
	hasReport bool
	listeners []Listener
}

// NewDetector returns a Detector with no readings yet; its initial state
// is Unknown until the first Update.
func NewDetector() *Detector {
	return &Detector{}
}

// Update records a new snapshot and notifies listeners if the derived
// state changed. Listeners run synchronously on the updating goroutine.
func (d *Detector) Update(s Snapshot) {
	d.mu.Lock()
	old := Unknown
	if d.hasReport {
		old = Classify(d.last)
	}
	d.last = s
	d.hasReport = true
	next := Classify(s)
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.Unlock()

	if old == next {
		return
	}
	for _, fn := range listeners {
		fn(old, next)
	}
}

// State returns the classification of the latest snapshot.
func (d *Detector) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.hasReport {
		return Unknown
	}
	return Classify(d.last)
}

// Snapshot returns the most recent reading.
func (d *Detector) Snapshot() Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last
}

// OnChange registers a listener for state transitions.
func (d *Detector) OnChange(fn Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, fn)
}

// Bool is a convenience for building snapshot literals.
func Bool(v bool) *bool { return &v }
