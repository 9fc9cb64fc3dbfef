package ircd

import (
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// Listener is the connection multiplexer: component C6. It owns the
// passive listening socket, accepts connections, drives per-connection
// reads, and hands completed lines to the Manager's single
// event-processing goroutine. It also runs the periodic idle-timeout and
// ping-interval scan.
//
// There is no user-level poll/select set here: each connection gets its
// own read goroutine blocked on a deadline-bound Read, and a write
// goroutine draining its outbound queue. That is the idiomatic Go
// rendering of a readiness-driven loop -- the effect (one reader never
// blocks another, and all state mutation happens on a single goroutine)
// is the same as a manually multiplexed readiness set.
type Listener struct {
	addr     string
	manager  *Manager
	tickPeriod time.Duration

	ln net.Listener
	wg sync.WaitGroup

	nextID    uint64
	shutdown  chan struct{}
	closeOnce sync.Once
}

// NewListener creates a Listener bound to addr (e.g. ":6667"). It does not
// start accepting until Run is called.
func NewListener(addr string, manager *Manager, tickPeriod time.Duration) *Listener {
	return &Listener{
		addr:       addr,
		manager:    manager,
		tickPeriod: tickPeriod,
		shutdown:   make(chan struct{}),
	}
}

// Run opens the listening socket and blocks accepting connections until
// Shutdown is called or an unrecoverable accept error occurs. It returns
// nil on a clean shutdown.
func (l *Listener) Run() error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return errors.Wrap(err, "failed to listen")
	}
	l.ln = ln
	log.Printf("listening on %s", l.addr)

	l.wg.Add(1)
	go l.tickLoop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-l.shutdown:
				return nil
			default:
			}
			return errors.Wrap(err, "accept failed")
		}

		id := atomic.AddUint64(&l.nextID, 1)
		c := NewClient(id, conn)
		log.Printf("accepted connection %s", c)

		l.manager.events <- Event{Type: EventNewClient, Client: c}

		l.wg.Add(2)
		go l.readLoop(c)
		go l.writeLoop(c)
	}
}

// readLoop blocks reading fixed-size chunks from one connection, framing
// them into CRLF-terminated lines and forwarding each as an Event. This
// goroutine is the sole owner of the client's inbound buffer.
func (l *Listener) readLoop(c *Client) {
	defer l.wg.Done()

	buf := make([]byte, 512)
	for {
		// A read deadline gives the same effect as the idle-timeout
		// behavior of a readiness wait without requiring a manual poll set;
		// the tick loop separately enforces the server-level idle policy
		// against LastActivity.
		_ = c.conn.SetReadDeadline(time.Now().Add(5 * time.Minute))

		n, err := c.conn.Read(buf)
		if n > 0 {
			lines, overflowed := c.appendBytes(buf[:n])
			if overflowed {
				l.manager.events <- Event{Type: EventBufferOverflow, Client: c}
			}
			for _, line := range lines {
				l.manager.events <- Event{Type: EventMessage, Client: c, Line: line}
			}
		}
		if err != nil {
			l.manager.events <- Event{Type: EventDeadClient, Client: c}
			return
		}
	}
}

// writeLoop drains a client's outbound queue and writes each line to the
// TCP connection, until the queue is closed (by Manager.removeClient) or a
// write fails.
func (l *Listener) writeLoop(c *Client) {
	defer l.wg.Done()

	for line := range c.Out {
		_ = c.conn.SetWriteDeadline(time.Now().Add(30 * time.Second))
		if _, err := c.conn.Write([]byte(line)); err != nil {
			log.Printf("client %s: write error: %s", c, err)
			break
		}
	}
	_ = c.conn.Close()
}

func (l *Listener) tickLoop() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.tickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.manager.events <- Event{Type: EventTick}
		case <-l.shutdown:
			return
		}
	}
}

// Shutdown stops accepting new connections, closes the listening socket,
// and signals the tick loop to stop. Already-accepted connections are left
// to their own read/write loops, which will observe closure once their
// manager-side state is torn down.
func (l *Listener) Shutdown() {
	l.closeOnce.Do(func() {
		close(l.shutdown)
		if l.ln != nil {
			_ = l.ln.Close()
		}
	})
}

// Wait blocks until all of the listener's goroutines (accept loop's
// spawned readers/writers, and the tick loop) have exited.
func (l *Listener) Wait() {
	l.wg.Wait()
}
