package progressview

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 1 * time.Second
	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	// The rate at which element updates are pushed to the browser, so a
	// burst of planning rounds doesn't flood a single tab.
	pubResolution  = time.Millisecond * 100
	pingResolution = time.Millisecond * 200
	// Time without a pong (four ping intervals) before the peer is
	// considered gone.
	pongWait = pingResolution * 4
)

var upgrader = websocket.Upgrader{}

// pushClient publishes a one-directional stream of updates to a single
// connected browser tab over websocket. It never reads application
// messages back -- the progress view has nothing for the browser to send --
// only liveness pings/pongs flow the other way.
type pushClient[T any] struct {
	updates <-chan T
	ws      *wsConn
	rootCtx context.Context
}

// NewClient upgrades r to a websocket and returns a publisher that will push
// whatever arrives on updates. Values on updates should be idempotent
// snapshots (the full []EleUpdate for "what changed"), since an update
// arriving within pubResolution of the last published one is dropped and
// not resent.
func NewClient[T any](
	updates <-chan T,
	w http.ResponseWriter,
	r *http.Request,
) (*pushClient[T], error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}

	return &pushClient[T]{
		updates: updates,
		ws:      newWsConn(ws),
		rootCtx: r.Context(),
	}, nil
}

// Sync runs the publish loop alongside the ping/pong liveness check and the
// (discard-everything) read loop websockets require to process control
// frames, until the connection drops or the request context is cancelled.
func (cli *pushClient[T]) Sync() error {
	group, groupCtx := errgroup.WithContext(cli.rootCtx)

	group.Go(func() error {
		return cli.drainMessages(groupCtx)
	})
	group.Go(func() error {
		return cli.pingPong(groupCtx)
	})
	group.Go(func() error {
		return cli.publish(groupCtx)
	})

	return group.Wait()
}

// ErrPongDeadlineExceeded means the browser tab stopped answering pings --
// most likely the tab was closed or the machine went to sleep.
var ErrPongDeadlineExceeded error = errors.New("client disconnect, pong deadline exceeded")

// pingPong is the liveness check; it requires drainMessages to be running
// concurrently so the gorilla/websocket pong handler actually fires.
func (cli *pushClient[T]) pingPong(ctx context.Context) error {
	pong := make(chan struct{})
	defer close(pong)
	cli.ws.Conn().SetPongHandler(func(_ string) error {
		pong <- struct{}{}
		return nil
	})

	pinger := channerics.NewTicker(ctx.Done(), pingResolution)
	lastPong := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-pinger:
			if time.Since(lastPong) > pongWait {
				return ErrPongDeadlineExceeded
			}
			if err := cli.ping(ctx); err != nil {
				return err
			}
		case <-pong:
			lastPong = time.Now()
		}
	}
}

func (cli *pushClient[T]) ping(ctx context.Context) error {
	return cli.ws.Write(
		ctx,
		func(ws *websocket.Conn) (err error) {
			if err = ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				if isUnexpectedClose(err) {
					err = fmt.Errorf("ping failed: %T %v", err, err)
				}
			}
			return
		})
}

// drainMessages reads and discards whatever the browser sends -- there is
// no inbound protocol here, but a websocket's read loop must keep running
// for control frames (pings, close) to be processed at all. Any read error
// is permanent and tears the whole client down.
func (cli *pushClient[T]) drainMessages(ctx context.Context) error {
	for {
		err := cli.ws.Read(
			ctx,
			func(ws *websocket.Conn) (readErr error) {
				_, _, readErr = ws.ReadMessage()
				return
			})
		if err != nil {
			return err
		}
	}
}

func (cli *pushClient[T]) publish(ctx context.Context) error {
	lastSync := time.Now()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-cli.updates:
			if !ok {
				return nil
			}
			if time.Since(lastSync) < pubResolution {
				break
			}

			lastSync = time.Now()
			err := cli.ws.Write(
				ctx,
				func(ws *websocket.Conn) (writeErr error) {
					if writeErr = ws.SetWriteDeadline(time.Now().Add(writeWait)); writeErr != nil {
						writeErr = fmt.Errorf("failed to set deadline: %T %w", writeErr, writeErr)
						return
					}
					if writeErr = ws.WriteJSON(update); writeErr != nil {
						if isUnexpectedClose(writeErr) {
							writeErr = fmt.Errorf("publish failed: %T %v", writeErr, writeErr)
						}
					}
					return
				})
			if err != nil {
				return err
			}
		}
	}
}

func isUnexpectedClose(err error) bool {
	return err != nil && websocket.IsUnexpectedCloseError(
		err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway)
}

// ErrSockCongestion means too many goroutines are already waiting on the
// socket's single read or write slot.
var ErrSockCongestion = errors.New("sock op failed due to congestion")

const (
	readDeadline     = time.Second
	writeDeadline    = time.Second
	closeGracePeriod = 10 * time.Second
)

// wsConn serializes reads and writes against the underlying connection,
// which gorilla/websocket requires: at most one reader and one writer may
// be active at a time.
type wsConn struct {
	readSem  chan struct{}
	writeSem chan struct{}
	ws       *websocket.Conn
}

func newWsConn(ws *websocket.Conn) *wsConn {
	return &wsConn{
		readSem:  make(chan struct{}, 1),
		writeSem: make(chan struct{}, 1),
		ws:       ws,
	}
}

// Conn returns the underlying connection. Only safe for non-concurrent
// setup calls (e.g. registering handlers), not for reads/writes.
func (sock *wsConn) Conn() *websocket.Conn {
	return sock.ws
}

// Close sends a close frame and tears down the connection. Callers must
// ensure no other reader/writer is still active.
func (sock *wsConn) Close() {
	sock.readSem <- struct{}{}
	sock.writeSem <- struct{}{}

	_ = sock.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = sock.ws.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	time.Sleep(closeGracePeriod)
	sock.ws.Close()
}

// Read serializes read operations against the connection.
func (sock *wsConn) Read(
	ctx context.Context,
	readFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.readSem <- struct{}{}:
		defer func() { <-sock.readSem }()
		return readFn(sock.ws)
	case <-time.After(readDeadline):
		return ErrSockCongestion
	}
}

// Write serializes write operations against the connection.
func (sock *wsConn) Write(
	ctx context.Context,
	writeFn func(*websocket.Conn) error,
) error {
	select {
	case <-ctx.Done():
		return nil
	case sock.writeSem <- struct{}{}:
		defer func() { <-sock.writeSem }()
		return writeFn(sock.ws)
	case <-time.After(writeDeadline):
		return ErrSockCongestion
	}
}
