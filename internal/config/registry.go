package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voxlink-ai/voxlink/pkg/backend"
	"github.com/voxlink-ai/voxlink/pkg/vad"
)

// ErrBackendNotRegistered is returned by Create* methods when no factory has
// been registered under the requested backend name.
var ErrBackendNotRegistered = errors.New("config: backend not registered")

// Registry maps backend names to their constructor functions. The binaries
// register the implementations they link (whispercpp is CGO and optional at
// build time), keeping this package free of model dependencies. It is safe
// for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	recognizer map[string]func(RecognizerConfig) (backend.Recognizer, error)
	vad        map[string]func(GateConfig) (vad.Engine, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		recognizer: make(map[string]func(RecognizerConfig) (backend.Recognizer, error)),
		vad:        make(map[string]func(GateConfig) (vad.Engine, error)),
	}
}

// RegisterRecognizer registers a recognizer factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterRecognizer(name string, factory func(RecognizerConfig) (backend.Recognizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognizer[name] = factory
}

// RegisterVAD registers a VAD engine factory under name.
func (r *Registry) RegisterVAD(name string, factory func(GateConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// CreateRecognizer instantiates the recognizer selected by cfg.Backend.
// Returns [ErrBackendNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateRecognizer(cfg RecognizerConfig) (backend.Recognizer, error) {
	r.mu.RLock()
	factory, ok := r.recognizer[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: recognizer/%q", ErrBackendNotRegistered, cfg.Backend)
	}
	return factory(cfg)
}

// CreateVAD instantiates the VAD engine selected by cfg.VADBackend.
func (r *Registry) CreateVAD(cfg GateConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.VADBackend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrBackendNotRegistered, cfg.VADBackend)
	}
	return factory(cfg)
}
