package hermitio

import "sync"

// WakerRegistration holds at most one Waker. A later registration replaces an
// earlier one.
type WakerRegistration struct {
	mu    sync.Mutex
	waker Waker
}

func (r *WakerRegistration) Register(w Waker) {
	r.mu.Lock()
	r.waker = w
	r.mu.Unlock()
}

// Wake takes the registered waker, if any, and wakes it.
func (r *WakerRegistration) Wake() {
	r.mu.Lock()
	w := r.waker
	r.waker = nil
	r.mu.Unlock()

	if w != nil {
		w.Wake()
	}
}

func (r *WakerRegistration) Registered() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.waker != nil
}
