package depth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Loader is the process-wide get-or-create accessor for the model.
// The first Get performs the load; every later Get returns the same
// instance. A failed load is final.
type Loader struct {
	factory Factory
	name    string
	pref    string
	detect  Detector
	logger  *zap.Logger

	// loadMu serializes loading; mu guards the fields below so health
	// checks do not wait on a cold start.
	loadMu   sync.Mutex
	mu       sync.Mutex
	model    Model
	device   Device
	err      error
	loads    int
	loadTime time.Duration
}

func NewLoader(factory Factory, name, device string, detect Detector, logger *zap.Logger) *Loader {
	return &Loader{
		factory: factory,
		name:    name,
		pref:    device,
		detect:  detect,
		logger:  logger,
	}
}

func (l *Loader) Get(ctx context.Context) (Model, error) {
	if model, done, err := l.cached(); done {
		return model, err
	}

	l.loadMu.Lock()
	defer l.loadMu.Unlock()

	// Another caller may have finished while we waited.
	if model, done, err := l.cached(); done {
		return model, err
	}

	model, device, elapsed, err := l.load(context.WithoutCancel(ctx))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads++
	if err != nil {
		l.err = err
		return nil, err
	}
	l.model = model
	l.device = device
	l.loadTime = elapsed
	return model, nil
}

func (l *Loader) cached() (Model, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.model != nil {
		return l.model, true, nil
	}
	if l.err != nil {
		return nil, true, l.err
	}
	return nil, false, nil
}

func (l *Loader) load(ctx context.Context) (Model, Device, time.Duration, error) {
	l.logger.Info("Loading model", zap.String("model", l.name))
	start := time.Now()

	device, err := SelectDevice(l.pref, l.detect)
	if err != nil {
		return nil, "", 0, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}
	l.logger.Info("Selected device", zap.String("device", string(device)))

	model, err := l.factory.FromPretrained(ctx, l.name, device)
	if err != nil {
		l.logger.Error("Model load failed", zap.String("model", l.name), zap.Error(err))
		return nil, "", 0, fmt.Errorf("%w: %s: %v", ErrModelLoad, l.name, err)
	}

	elapsed := time.Since(start)
	l.logger.Info("Model loaded",
		zap.String("model", l.name),
		zap.String("device", string(device)),
		zap.Duration("elapsed", elapsed))

	return model, device, elapsed, nil
}

func (l *Loader) Name() string {
	return l.name
}

// Loads counts load attempts, which is at most one per process.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

func (l *Loader) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.model != nil
}

func (l *Loader) Device() Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.device
}

func (l *Loader) LoadTime() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadTime
}

// Err returns the remembered load failure, if any.
func (l *Loader) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}
