// Package wsclient is a small client for the chess session protocol.
package wsclient

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/cheese-chess-server/pkg/chessdto"
)

var ErrClosed = errors.New("wsclient: connection closed")

type MessageCallback func(msg *chessdto.ServerMessage)

// HeaderProvider injects headers into the handshake.
type HeaderProvider func() map[string]string

type Option func(*Client)

func WithHeaderProvider(h HeaderProvider) Option {
	return func(c *Client) { c.headerProvider = h }
}

// WithBuffer sets how many unread frames are queued before the reader blocks.
func WithBuffer(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.buffer = n
		}
	}
}

type Client struct {
	conn *websocket.Conn

	inbox  chan *chessdto.ServerMessage
	buffer int

	cbs []MessageCallback
	cbM sync.RWMutex

	errM    sync.Mutex
	readErr error

	stopOnce   sync.Once
	rootCtx    context.Context
	rootCancel context.CancelFunc
	wg         sync.WaitGroup

	headerProvider HeaderProvider
}

// Dial opens a session to url, e.g. ws://localhost:8080/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{buffer: 64}
	for _, opt := range opts {
		opt(c)
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      c.buildHeaders(),
	})
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.inbox = make(chan *chessdto.ServerMessage, c.buffer)
	c.rootCtx, c.rootCancel = context.WithCancel(context.Background())

	c.wg.Add(1)
	go c.listen()
	return c, nil
}

func (c *Client) listen() {
	defer c.wg.Done()
	defer close(c.inbox)
	for {
		var msg chessdto.ServerMessage
		if err := wsjson.Read(c.rootCtx, c.conn, &msg); err != nil {
			c.errM.Lock()
			c.readErr = err
			c.errM.Unlock()
			return
		}
		c.cbM.RLock()
		callbacks := make([]MessageCallback, len(c.cbs))
		copy(callbacks, c.cbs)
		c.cbM.RUnlock()
		for _, cb := range callbacks {
			cb(&msg)
		}
		select {
		case c.inbox <- &msg:
		case <-c.rootCtx.Done():
			return
		}
	}
}

// OnMessage registers cb for every frame. Frames are still queued for Next.
func (c *Client) OnMessage(cb MessageCallback) {
	if cb == nil {
		return
	}
	c.cbM.Lock()
	c.cbs = append(c.cbs, cb)
	c.cbM.Unlock()
}

func (c *Client) Send(ctx context.Context, cmd *chessdto.Command) error {
	return wsjson.Write(ctx, c.conn, cmd)
}

// Next returns the next server frame in arrival order.
func (c *Client) Next(ctx context.Context) (*chessdto.ServerMessage, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg, ok := <-c.inbox:
		if !ok {
			c.errM.Lock()
			err := c.readErr
			c.errM.Unlock()
			if err == nil {
				err = ErrClosed
			}
			return nil, err
		}
		return msg, nil
	}
}

// Expect skips frames until one of type t arrives.
func (c *Client) Expect(ctx context.Context, t chessdto.ServerMessageType) (*chessdto.ServerMessage, error) {
	for {
		msg, err := c.Next(ctx)
		if err != nil {
			return nil, err
		}
		if msg.ServerMessageType == t {
			return msg, nil
		}
	}
}

func (c *Client) Close() error {
	var err error
	c.stopOnce.Do(func() {
		err = c.conn.Close(websocket.StatusNormalClosure, "close")
		c.rootCancel()
		c.wg.Wait()
	})
	return err
}

func (c *Client) buildHeaders() http.Header {
	hdr := http.Header{}
	if c.headerProvider == nil {
		return hdr
	}
	for k, v := range c.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
