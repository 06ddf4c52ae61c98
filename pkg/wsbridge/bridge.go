package wsbridge

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/authz"
	"github.com/harborctl/controlplane/pkg/conn"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/session"
	"github.com/harborctl/controlplane/pkg/storage"
	"github.com/harborctl/controlplane/pkg/streams"
	"github.com/harborctl/controlplane/pkg/types"
)

// Config tunes every Bridge connection's heartbeat.
type Config struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

// Bridge is the WebSocket Bridge. It authenticates the token carried on the
// URL, authorizes the requested action, then either subscribes to a C10
// SharedStream or drives a dedicated exec PTY.
type Bridge struct {
	cfg         Config
	upgrader    websocket.Upgrader
	sessions    *session.Manager
	store       storage.Store
	authz       *authz.Authorizer
	pool        *conn.Pool
	registry    *streams.Registry
	selfMonitor SelfMonitorPolicy
}

// New constructs a Bridge wiring C4, C6, C7, C10.
func New(cfg Config, sessions *session.Manager, store storage.Store, az *authz.Authorizer, pool *conn.Pool, registry *streams.Registry) *Bridge {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 10 * time.Second
	}
	return &Bridge{
		cfg:         cfg,
		upgrader:    websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sessions:    sessions,
		store:       store,
		authz:       az,
		pool:        pool,
		registry:    registry,
		selfMonitor: DefaultSelfMonitorPolicy(),
	}
}

// Authenticate resolves the bearer token carried by the socket's URL or
// header into a *types.User, the C6/C11 boundary every handler in this
// package goes through before authorizing.
func (b *Bridge) Authenticate(tokenString string) (*types.User, error) {
	if tokenString == "" {
		return nil, apierr.New(apierr.KindTokenInvalid, "missing access token")
	}
	claims, err := b.sessions.ValidateAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	user, err := b.store.GetUser(claims.UserID)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindTokenInvalid, "user no longer exists", err)
	}
	if user.Disabled {
		return nil, apierr.New(apierr.KindTokenInvalid, "account is disabled")
	}
	return user, nil
}

// socketConn wraps one upgraded socket for the lifetime of Connecting
// through Closed.
type socketConn struct {
	ws    *websocket.Conn
	cfg   Config
	state State
}

func newSocketConn(ws *websocket.Conn, cfg Config) *socketConn {
	return &socketConn{ws: ws, cfg: cfg, state: Connecting}
}

// upgrade completes the HTTP-to-WebSocket handshake.
func (b *Bridge) upgrade(w http.ResponseWriter, r *http.Request) (*websocket.Conn, error) {
	return b.upgrader.Upgrade(w, r, nil)
}

// runStream drives a subscriber's frames out to the socket until ctx is
// canceled, the subscriber is closed by the slow-consumer guard, or the
// socket errors. It owns the heartbeat and the teardown: an error frame
// where the stream ended on the server side, then a disconnected frame and
// the socket close. It sets the connection's state to Streaming only.
func (b *Bridge) runStream(ctx context.Context, ws *websocket.Conn, sub *streams.Subscriber, frameKind string) {
	c := newSocketConn(ws, b.cfg)
	c.state = Streaming
	logger := log.WithComponent("wsbridge")

	readDone := make(chan struct{})
	go c.readLoop(readDone)

	ws.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatInterval + c.cfg.HeartbeatTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatInterval + c.cfg.HeartbeatTimeout))
		return nil
	})

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	sendConnected(ws)
	defer sendDisconnected(ws)

	for {
		select {
		case <-ctx.Done():
			closeWithError(ws, apierr.New(apierr.KindClosedByOrigin, "stream ended"))
			return
		case <-readDone:
			return
		case <-ticker.C:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug().Err(err).Msg("heartbeat ping failed, closing")
				return
			}
		case frame, ok := <-sub.C():
			if !ok {
				closeWithError(ws, apierr.New(apierr.KindSlowConsumer, "subscriber fell too far behind and was dropped"))
				return
			}
			cf, err := newControlFrame(frameKind, frameEnvelope{Seq: frame.Seq, Data: frame.Data})
			if err != nil {
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteJSON(cf); err != nil {
				logger.Debug().Err(err).Msg("write frame failed, closing")
				return
			}
		}
	}
}

type frameEnvelope struct {
	Seq  uint64 `json:"seq"`
	Data []byte `json:"data"`
}

const writeWait = 10 * time.Second

func (c *socketConn) readLoop(done chan struct{}) {
	defer close(done)
	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			return
		}
	}
}

func sendConnected(ws *websocket.Conn) {
	cf, _ := newControlFrame(FrameConnected, nil)
	ws.WriteJSON(cf)
}

func sendDisconnected(ws *websocket.Conn) {
	cf, _ := newControlFrame(FrameDisconnected, nil)
	ws.WriteJSON(cf)
	ws.Close()
}

func closeWithError(ws *websocket.Conn, apiErr *apierr.Error) {
	cf, _ := newControlFrame(FrameError, ErrorPayload{Kind: string(apiErr.Kind), Message: apiErr.Message, Fatal: true})
	ws.WriteJSON(cf)
	code, ok := apiErr.WSCloseCode()
	if !ok {
		code = websocket.CloseInternalServerErr
	}
	ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, apiErr.Message), time.Now().Add(writeWait))
	ws.Close()
}
