package cloud

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Push channel constants.
const (
	// wsReconnectMin is the initial reconnect delay.
	wsReconnectMin = 1 * time.Second

	// wsReconnectMax caps the exponential reconnect backoff.
	wsReconnectMax = 60 * time.Second

	// wsPingInterval is how often keepalive pings are sent.
	wsPingInterval = 30 * time.Second

	// wsWriteTimeout bounds ping writes.
	wsWriteTimeout = 10 * time.Second

	// wsReadTimeout is the read deadline, refreshed on every message
	// and pong. Must exceed wsPingInterval.
	wsReadTimeout = 90 * time.Second
)

// tokenProvider supplies the current bearer token for the WebSocket
// handshake. Satisfied by *Client.
type tokenProvider interface {
	BearerToken() (string, bool)
}

// PushMessage is a real-time device update received over the push
// channel. Only the device id is interpreted; the coordinator re-reads
// the full device state over REST.
type PushMessage struct {
	DeviceID string
}

// PushHandler receives push messages. Called from the listener
// goroutine; implementations should hand off quickly.
type PushHandler func(msg PushMessage)

// PushListener maintains a WebSocket connection to the cloud push
// endpoint, delivering real-time device updates between polls.
//
// The connection authenticates with the client's current bearer token
// and reconnects with exponential backoff (1s doubling to 60s) when
// dropped. A failed push channel never affects polling; it is a latency
// optimisation, not a correctness requirement.
type PushListener struct {
	url     string
	tokens  tokenProvider
	handler PushHandler
	logger  Logger

	mu   sync.Mutex
	conn *websocket.Conn

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPushListener creates a push listener. Call Start to connect.
func NewPushListener(url string, tokens tokenProvider, handler PushHandler, logger Logger) *PushListener {
	return &PushListener{
		url:     url,
		tokens:  tokens,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start launches the connection loop in a background goroutine.
func (l *PushListener) Start() {
	l.wg.Add(1)
	go l.run()
}

// Stop closes the connection and waits for the background goroutine.
// Safe to call multiple times.
func (l *PushListener) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		if l.conn != nil {
			l.conn.Close()
		}
		l.mu.Unlock()
		l.wg.Wait()
	})
}

// run is the connect-read-reconnect loop.
func (l *PushListener) run() {
	defer l.wg.Done()

	delay := wsReconnectMin
	for {
		select {
		case <-l.done:
			return
		default:
		}

		conn, err := l.connect()
		if err != nil {
			l.logger.Warn("Push channel connect failed",
				"url", l.url,
				"retry_in", delay.String(),
				"error", err,
			)
			select {
			case <-l.done:
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > wsReconnectMax {
				delay = wsReconnectMax
			}
			continue
		}

		l.logger.Info("Push channel connected", "url", l.url)
		delay = wsReconnectMin

		l.readLoop(conn)

		select {
		case <-l.done:
			return
		default:
			l.logger.Info("Push channel disconnected, reconnecting")
		}
	}
}

// connect performs the WebSocket handshake with the current token.
func (l *PushListener) connect() (*websocket.Conn, error) {
	token, ok := l.tokens.BearerToken()
	if !ok {
		return nil, ErrNoCredentials
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	dialer := websocket.Dialer{HandshakeTimeout: wsWriteTimeout}
	conn, resp, err := dialer.Dial(l.url, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	return conn, nil
}

// readLoop reads messages until the connection drops, sending
// keepalive pings from a side goroutine.
func (l *PushListener) readLoop(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-l.done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		if msgType != websocket.TextMessage {
			continue
		}
		l.dispatch(data)
	}
}

// dispatch parses a push frame and hands it to the handler. The
// backend's frame format varies; any of device_id, deviceId or id
// identifies the device.
func (l *PushListener) dispatch(data []byte) {
	var frame struct {
		DeviceID  json.Number `json:"device_id"`
		DeviceID2 json.Number `json:"deviceId"`
		ID        json.Number `json:"id"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		l.logger.Debug("Push frame is not JSON, ignored", "error", err)
		return
	}

	id := frame.DeviceID.String()
	if id == "" {
		id = frame.DeviceID2.String()
	}
	if id == "" {
		id = frame.ID.String()
	}
	if id == "" {
		l.logger.Debug("Push frame carries no device id, ignored")
		return
	}

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("Push handler panic recovered", "panic", r)
		}
	}()
	l.handler(PushMessage{DeviceID: id})
}
