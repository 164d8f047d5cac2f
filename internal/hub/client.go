package hub

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	ActionSubscribe      = "subscribe"
	ActionUnsubscribe    = "unsubscribe"
	ActionUnsubscribeAll = "unsubscribe_all"

	maxMessageSize = 4 * 1024
)

var (
	errBufferFull = errors.New("send buffer full")
	errConnClosed = errors.New("connection closed")
)

// Request is a client command on the multiplexed channel.
type Request struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
	ID     string   `json:"id,omitempty"`
}

// Client adapts one gorilla websocket connection to the hub's Conn
// interface. Sends go through a bounded queue drained by a single write
// pump; a full queue means the consumer is too slow and Send fails, which
// makes the hub drop the connection instead of blocking the bus.
type Client struct {
	ws  *websocket.Conn
	mgr *Manager
	log *zap.Logger

	id   string
	send chan Message
	done chan struct{}
	once sync.Once

	writeWait  time.Duration
	pongWait   time.Duration
	pingPeriod time.Duration
}

func NewClient(ws *websocket.Conn, mgr *Manager, log *zap.Logger, sendBuffer int) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Client{
		ws:         ws,
		mgr:        mgr,
		log:        log,
		send:       make(chan Message, sendBuffer),
		done:       make(chan struct{}),
		writeWait:  5 * time.Second,
		pongWait:   60 * time.Second,
		pingPeriod: 50 * time.Second,
	}
}

// Start attaches the client to the manager, optionally pre-subscribing it
// to topics (the single-topic compatibility endpoints use this), and runs
// the pumps. It returns immediately.
func (c *Client) Start(initialTopics ...string) {
	c.id = c.mgr.Attach(c)
	go c.writePump()
	go c.readPump()
	for _, topic := range initialTopics {
		if err := c.mgr.Subscribe(c.id, topic); err != nil {
			c.log.Warn("initial subscribe failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

// Send queues a message without blocking.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- msg:
		return nil
	default:
		return errBufferFull
	}
}

// Close stops the pumps. Safe to call more than once; the manager calls it
// on detach and the read pump calls it on transport errors.
func (c *Client) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Client) readPump() {
	defer func() {
		c.mgr.Detach(c.id)
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(c.pongWait))
		return nil
	})

	for {
		var req Request
		if err := c.ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read failed", zap.Error(err))
			}
			return
		}
		c.handle(req)
	}
}

func (c *Client) handle(req Request) {
	switch req.Action {
	case ActionSubscribe:
		var subscribed []string
		for _, topic := range req.Topics {
			if err := c.mgr.Subscribe(c.id, topic); err != nil {
				c.reply(Message{Type: "error", ID: req.ID, Message: err.Error()})
				return
			}
			subscribed = append(subscribed, c.mgr.CanonicalTopic(topic))
		}
		if len(subscribed) == 0 {
			c.reply(Message{Type: "error", ID: req.ID, Message: "no topics provided"})
			return
		}
		c.reply(Message{Type: "ack", ID: req.ID, Status: "success", Message: fmt.Sprintf("subscribed to %v", subscribed)})
	case ActionUnsubscribe:
		for _, topic := range req.Topics {
			c.mgr.Unsubscribe(c.id, topic)
		}
		c.reply(Message{Type: "ack", ID: req.ID, Status: "success", Message: "unsubscribed"})
	case ActionUnsubscribeAll:
		c.mgr.UnsubscribeAll(c.id)
		c.reply(Message{Type: "ack", ID: req.ID, Status: "success", Message: "unsubscribed from all topics"})
	default:
		c.reply(Message{Type: "error", ID: req.ID, Message: "unknown action: " + req.Action})
	}
}

func (c *Client) reply(msg Message) {
	if err := c.Send(msg); err != nil {
		c.log.Debug("reply dropped", zap.Error(err))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
