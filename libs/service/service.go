package service

import (
	"context"
	"errors"
	"sync"

	"github.com/tendermint/intentd/libs/log"
)

var (
	// ErrAlreadyStarted is returned when somebody tries to start an already
	// running service.
	ErrAlreadyStarted = errors.New("already started")
	// ErrAlreadyStopped is returned when somebody tries to stop an already
	// stopped service.
	ErrAlreadyStopped = errors.New("already stopped")
	// ErrNotStarted is returned when somebody tries to stop a not running
	// service.
	ErrNotStarted = errors.New("not started")
)

// Service defines a service that can be started and stopped.
type Service interface {
	// Start is called to start the service, which should run until
	// the context terminates or Stop is called.
	Start(context.Context) error

	// Stop terminates the service.
	Stop() error

	// Return true if the service is running
	IsRunning() bool

	// String representation of the service
	String() string

	// Wait blocks until the service is stopped.
	Wait()
}

// Implementation describes the implementation that the BaseService wraps.
type Implementation interface {
	// OnStart is called once by Start. The context passed in is canceled
	// when the service stops, so background routines may select on it.
	OnStart(context.Context) error

	// OnStop is called once after the service's context is canceled.
	OnStop()
}

// BaseService tracks the lifecycle of an Implementation. Services embed it
// and provide OnStart/OnStop:
//
//	type Gossiper struct {
//		*service.BaseService
//		// private fields
//	}
//
//	func NewGossiper(logger log.Logger) *Gossiper {
//		g := &Gossiper{}
//		g.BaseService = service.NewBaseService(logger, "Gossiper", g)
//		return g
//	}
//
// OnStart and OnStop are called at most once. If OnStart fails the service
// is not marked as started and Start may be retried.
type BaseService struct {
	logger log.Logger
	name   string
	impl   Implementation

	mtx     sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	quit    chan struct{}
}

// NewBaseService creates a new BaseService.
func NewBaseService(logger log.Logger, name string, impl Implementation) *BaseService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &BaseService{
		logger: logger,
		name:   name,
		impl:   impl,
		quit:   make(chan struct{}),
	}
}

// Start calls OnStart with a context derived from ctx. The service stops
// when ctx is canceled.
func (bs *BaseService) Start(ctx context.Context) error {
	bs.mtx.Lock()
	if bs.stopped {
		bs.mtx.Unlock()
		bs.logger.Error("not starting service; already stopped", "service", bs.name)
		return ErrAlreadyStopped
	}
	if bs.started {
		bs.mtx.Unlock()
		return ErrAlreadyStarted
	}

	bs.logger.Info("starting service", "service", bs.name)

	sctx, cancel := context.WithCancel(ctx)
	if err := bs.impl.OnStart(sctx); err != nil {
		bs.mtx.Unlock()
		cancel()
		return err
	}
	bs.started = true
	bs.cancel = cancel
	bs.mtx.Unlock()

	go func() {
		select {
		case <-bs.quit:
		case <-sctx.Done():
			if err := bs.Stop(); err != nil && !errors.Is(err, ErrAlreadyStopped) {
				bs.logger.Error("stopping service", "service", bs.name, "err", err)
			}
		}
	}()

	return nil
}

// Stop cancels the service context, calls OnStop and releases waiters.
func (bs *BaseService) Stop() error {
	bs.mtx.Lock()
	if !bs.started {
		bs.mtx.Unlock()
		return ErrNotStarted
	}
	if bs.stopped {
		bs.mtx.Unlock()
		return ErrAlreadyStopped
	}
	bs.stopped = true
	bs.mtx.Unlock()

	bs.logger.Info("stopping service", "service", bs.name)
	bs.cancel()
	bs.impl.OnStop()
	close(bs.quit)

	return nil
}

// IsRunning reports whether the service was started and not yet stopped.
func (bs *BaseService) IsRunning() bool {
	bs.mtx.Lock()
	defer bs.mtx.Unlock()
	return bs.started && !bs.stopped
}

// Wait blocks until the service is stopped.
func (bs *BaseService) Wait() { <-bs.quit }

// Quit returns a channel closed when the service stops.
func (bs *BaseService) Quit() <-chan struct{} { return bs.quit }

// String implements Service by returning a string representation of the service.
func (bs *BaseService) String() string { return bs.name }
