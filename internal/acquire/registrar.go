package acquire

import "sync"

// Registrar makes a directory's binaries available to later job steps.
type Registrar interface {
	AddPath(dir string) error
}

// OnceRegistrar lets exactly one directory through per run.
type OnceRegistrar struct {
	mu   sync.Mutex
	next Registrar
	dir  string
	done bool
}

// Once wraps r so that a second AddPath fails with ErrAlreadyRegistered.
func Once(r Registrar) *OnceRegistrar {
	return &OnceRegistrar{next: r}
}

// AddPath registers dir. A failed registration may be retried.
func (o *OnceRegistrar) AddPath(dir string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return ErrAlreadyRegistered
	}
	if err := o.next.AddPath(dir); err != nil {
		return err
	}
	o.dir = dir
	o.done = true
	return nil
}

// Registered returns the registered directory, if any.
func (o *OnceRegistrar) Registered() (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dir, o.done
}
