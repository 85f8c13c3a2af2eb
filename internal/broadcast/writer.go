package broadcast

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/serverlist/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	idleWarningTime   = 4 * time.Minute // Warn 1 minute before disconnect
	messageBufferSize = 16
)

// Writer owns all writes to one WebSocket connection: queued messages, pings and
// the idle timeout. Callers never write to the connection directly.
type Writer struct {
	connection    *websocket.Conn
	clock         clockwork.Clock
	metrics       *metrics.WebSocketMetrics
	stream        string
	sendChannel   chan []byte
	doneChannel   chan struct{}
	stopOnce      sync.Once
	releaseOnce   sync.Once
	wg            sync.WaitGroup
	lastActivity  time.Time
	activityMutex sync.Mutex
	warningSent   bool
}

// NewWriter starts the write loop. stream labels the connection in metrics; m may be nil.
func NewWriter(connection *websocket.Conn, clock clockwork.Clock, m *metrics.WebSocketMetrics, stream string) *Writer {
	w := &Writer{
		connection:   connection,
		clock:        clock,
		metrics:      m,
		stream:       stream,
		sendChannel:  make(chan []byte, messageBufferSize),
		doneChannel:  make(chan struct{}),
		lastActivity: clock.Now(),
	}
	w.configurePongHandler()
	if m != nil {
		m.ActiveConnections.WithLabelValues(stream).Inc()
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Send queues a message without blocking. It reports false when the client is too
// slow to keep up or the writer has stopped.
func (w *Writer) Send(msg []byte) bool {
	select {
	case <-w.doneChannel:
		return false
	default:
	}

	select {
	case w.sendChannel <- msg:
		return true
	default:
		if w.metrics != nil {
			w.metrics.SlowClientsEvicted.WithLabelValues(w.stream).Inc()
		}
		return false
	}
}

// Done is closed once the writer has stopped.
func (w *Writer) Done() <-chan struct{} {
	return w.doneChannel
}

// RecordActivity marks the connection as active, e.g. after a client read.
func (w *Writer) RecordActivity() {
	w.activityMutex.Lock()
	defer w.activityMutex.Unlock()
	w.lastActivity = w.clock.Now()
	w.warningSent = false
}

func (w *Writer) run() {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()
	defer w.wg.Done()

	for {
		select {
		case msg := <-w.sendChannel:
			w.updateWriteDeadline()
			if err := w.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.closeDone()
				return
			}
			if w.metrics != nil {
				w.metrics.MessagesSent.WithLabelValues(w.stream).Inc()
			}
		case <-ticker.Chan():
			if w.checkIdleTimeout() {
				w.closeDone()
				return
			}

			w.updateWriteDeadline()
			if err := w.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if w.metrics != nil {
					w.metrics.PingFailures.Inc()
				}
				w.closeDone()
				return
			}
		case <-w.doneChannel:
			return
		}
	}
}

// Stop closes the connection without a close frame.
func (w *Writer) Stop() {
	w.closeDone()
	w.wg.Wait()
	_ = w.connection.Close()
	w.release()
}

// StopGraceful flushes queued messages, sends a close frame with reason and closes the connection.
func (w *Writer) StopGraceful(reason string) {
	w.closeDone()

	// Wait for the run goroutine to exit before writing, so writes never interleave.
	w.wg.Wait()

	if err := w.flush(); err != nil {
		_ = w.connection.Close()
		w.release()
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	w.updateWriteDeadline()
	_ = w.connection.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = w.connection.Close()
	w.release()
}

func (w *Writer) flush() error {
	for {
		select {
		case msg := <-w.sendChannel:
			w.updateWriteDeadline()
			if err := w.connection.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

func (w *Writer) closeDone() {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
	})
}

func (w *Writer) release() {
	w.releaseOnce.Do(func() {
		if w.metrics != nil {
			w.metrics.ActiveConnections.WithLabelValues(w.stream).Dec()
		}
	})
}

func (w *Writer) configurePongHandler() {
	w.updateReadDeadline()
	w.connection.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		w.RecordActivity()
		return nil
	})
}

func (w *Writer) updateWriteDeadline() {
	_ = w.connection.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *Writer) updateReadDeadline() {
	_ = w.connection.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}

// checkIdleTimeout sends a warning shortly before the idle limit and reports
// whether the connection should be terminated.
func (w *Writer) checkIdleTimeout() bool {
	w.activityMutex.Lock()
	idleDuration := w.clock.Since(w.lastActivity)
	warningSent := w.warningSent
	w.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		if w.metrics != nil {
			w.metrics.IdleDisconnects.Inc()
		}
		return true
	}

	if !warningSent && idleDuration >= idleWarningTime {
		warning := []byte(`{"type":"warning","message":"Connection idle. Will disconnect if no activity within 1 minute."}`)
		w.updateWriteDeadline()
		if err := w.connection.WriteMessage(websocket.TextMessage, warning); err == nil {
			w.activityMutex.Lock()
			w.warningSent = true
			w.activityMutex.Unlock()
		}
	}

	return false
}
