//go:build linux

// Package netpoll wraps the OS readiness facility behind a single Poller per
// runtime. Registrations map descriptor readiness to waker invocations;
// readiness is level-triggered, so a woken task must re-check its condition.
package netpoll

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"fortio.org/safecast"
	"golang.org/x/sys/unix"
)

// Interest selects which readiness directions a registration watches.
type Interest uint8

const (
	// InterestRead watches for readable data (and peer close).
	InterestRead Interest = 1 << iota
	// InterestWrite watches for writability.
	InterestWrite
)

// Readiness describes the observed state of a descriptor.
type Readiness uint8

const (
	// Readable indicates data (or EOF) is available.
	Readable Readiness = 1 << iota
	// Writable indicates the descriptor accepts writes.
	Writable
	// ReadinessError indicates an error condition on the descriptor.
	ReadinessError
	// Hangup indicates the peer closed its end.
	Hangup
)

// IsError reports whether the readiness carries an error or hangup.
func (r Readiness) IsError() bool {
	return r&(ReadinessError|Hangup) != 0
}

// Waker is the resumption token invoked when a descriptor becomes ready.
type Waker interface {
	Wake()
}

// Reactor errors.
var (
	ErrClosed        = errors.New("netpoll: poller closed")
	ErrInvalidFD     = errors.New("netpoll: invalid file descriptor")
	ErrNotRegistered = errors.New("netpoll: fd not registered")
)

type registration struct {
	interest  Interest
	readWaker Waker
	// writeWaker is invoked for writability and error conditions.
	writeWaker Waker
	readiness  Readiness
}

// Poller owns one epoll instance plus an eventfd used to interrupt a blocked
// Poll from another thread. One Poller serves the whole runtime so each
// descriptor is registered with the OS exactly once.
type Poller struct {
	epfd   int
	wakefd int
	mu     sync.Mutex
	fds    map[int]*registration
	closed atomic.Bool
}

// New creates the epoll instance and its wakeup eventfd.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakefd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		unix.Close(epfd)
		return nil, err
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakefd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakefd, ev); err != nil {
		unix.Close(epfd)
		unix.Close(wakefd)
		return nil, err
	}
	return &Poller{
		epfd:   epfd,
		wakefd: wakefd,
		fds:    make(map[int]*registration),
	}, nil
}

// Close tears down the epoll instance. Pending registrations are dropped.
func (p *Poller) Close() error {
	if p == nil || !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(p.epfd)
	if cerr := unix.Close(p.wakefd); err == nil {
		err = cerr
	}
	return err
}

// Register adds or updates a descriptor registration. Passing a nil waker for
// a direction leaves that direction silent even if the interest bit is set.
func (p *Poller) Register(fd int, interest Interest, readWaker, writeWaker Waker) error {
	if p == nil || p.closed.Load() {
		return ErrClosed
	}
	if fd < 0 {
		return ErrInvalidFD
	}

	p.mu.Lock()
	reg, exists := p.fds[fd]
	if !exists {
		reg = &registration{}
		p.fds[fd] = reg
	}
	reg.interest = interest
	reg.readWaker = readWaker
	reg.writeWaker = writeWaker
	reg.readiness = 0
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: interestToEpoll(interest), Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if exists {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, fd, ev); err != nil {
		p.mu.Lock()
		delete(p.fds, fd)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Deregister removes a descriptor registration.
func (p *Poller) Deregister(fd int) error {
	if p == nil || p.closed.Load() {
		return ErrClosed
	}
	p.mu.Lock()
	_, exists := p.fds[fd]
	delete(p.fds, fd)
	p.mu.Unlock()
	if !exists {
		return ErrNotRegistered
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Readiness returns and clears the last observed readiness for a descriptor.
// Error readiness is sticky until consumed so it is never silently dropped.
func (p *Poller) Readiness(fd int) (Readiness, error) {
	if p == nil || p.closed.Load() {
		return 0, ErrClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	reg := p.fds[fd]
	if reg == nil {
		return 0, ErrNotRegistered
	}
	r := reg.readiness
	reg.readiness = 0
	return r, nil
}

// Wake interrupts a blocked Poll from any thread.
func (p *Poller) Wake() {
	if p == nil || p.closed.Load() {
		return
	}
	var one [8]byte
	one[0] = 1
	for {
		_, err := unix.Write(p.wakefd, one[:])
		if err != unix.EINTR {
			return
		}
	}
}

// Poll blocks up to timeout (negative = indefinite) and invokes wakers for
// descriptors that became ready. It returns the number of wakers fired.
func (p *Poller) Poll(timeout time.Duration) (int, error) {
	if p == nil || p.closed.Load() {
		return 0, ErrClosed
	}

	// epoll_wait takes a C int of milliseconds; saturate oversized
	// timeouts instead of wrapping negative.
	ms := -1
	if timeout >= 0 {
		ms32, err := safecast.Conv[int32](timeout / time.Millisecond)
		if err != nil {
			ms32 = math.MaxInt32
		}
		ms = int(ms32)
		if ms == 0 && timeout > 0 {
			ms = 1
		}
	}

	var events [128]unix.EpollEvent
	n, err := unix.EpollWait(p.epfd, events[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}

	fired := 0
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == p.wakefd {
			p.drainWakeFd()
			continue
		}
		fired += p.dispatch(fd, events[i].Events)
	}
	return fired, nil
}

func (p *Poller) drainWakeFd() {
	var buf [8]byte
	for {
		_, err := unix.Read(p.wakefd, buf[:])
		if err != unix.EINTR {
			return
		}
	}
}

// dispatch records readiness and fires wakers. Error and hangup conditions
// wake both directions so neither side can miss a dead descriptor.
func (p *Poller) dispatch(fd int, epollEvents uint32) int {
	readiness := epollToReadiness(epollEvents)

	p.mu.Lock()
	reg := p.fds[fd]
	if reg == nil {
		p.mu.Unlock()
		return 0
	}
	reg.readiness |= readiness
	readWaker := reg.readWaker
	writeWaker := reg.writeWaker
	p.mu.Unlock()

	fired := 0
	wakeRead := readiness&Readable != 0 || readiness.IsError()
	wakeWrite := readiness&Writable != 0 || readiness.IsError()
	if wakeRead && readWaker != nil {
		readWaker.Wake()
		fired++
	}
	if wakeWrite && writeWaker != nil {
		writeWaker.Wake()
		fired++
	}
	return fired
}

func interestToEpoll(interest Interest) uint32 {
	var events uint32
	if interest&InterestRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func epollToReadiness(epollEvents uint32) Readiness {
	var r Readiness
	if epollEvents&unix.EPOLLIN != 0 {
		r |= Readable
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		r |= Writable
	}
	if epollEvents&unix.EPOLLERR != 0 {
		r |= ReadinessError
	}
	if epollEvents&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		r |= Hangup
	}
	return r
}
