package wsbridge

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/gorilla/websocket"

	"github.com/harborctl/controlplane/pkg/apierr"
	"github.com/harborctl/controlplane/pkg/log"
	"github.com/harborctl/controlplane/pkg/transport"
)

// ExecRequest carries the parsed query parameters ServeExec needs to start
// a PTY session. The HTTP layer (C16) is responsible for parsing the raw
// request into this shape.
type ExecRequest struct {
	HostID      string
	ContainerID string
	Cmd         []string
	WorkingDir  string
	User        string
	Env         []string
}

// ServeExec handles GET /ws/containers/{id}/exec: authenticate, authorize,
// attach an interactive PTY to the container, then pump binary STDIN/STDOUT
// frames and JSON resize commands over the socket until either side closes
// it. Unlike ServeLogs/ServeStats/ServeEvents this does not go through a
// C10 SharedStream: an exec session is inherently single-subscriber.
func (b *Bridge) ServeExec(w http.ResponseWriter, r *http.Request, req ExecRequest) {
	user, err := b.Authenticate(tokenFromRequest(r))
	if err != nil {
		b.reject(w, err)
		return
	}
	if err := b.authz.Decide(user, "container.exec", req.HostID); err != nil {
		b.reject(w, err)
		return
	}

	adapter, _, err := b.pool.Acquire(r.Context(), req.HostID)
	if err != nil {
		b.reject(w, err)
		return
	}

	cmd := req.Cmd
	if len(cmd) == 0 {
		cmd = []string{"/bin/sh"}
	}

	execConfig := container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
		Tty:          true,
		Env:          req.Env,
		WorkingDir:   req.WorkingDir,
		User:         req.User,
	}

	created, err := adapter.Client.ContainerExecCreate(r.Context(), req.ContainerID, execConfig)
	if err != nil {
		b.reject(w, apierr.Wrap(apierr.KindDockerOperation, "exec create failed", err))
		return
	}

	hijacked, err := adapter.Client.ContainerExecAttach(r.Context(), created.ID, container.ExecStartOptions{Tty: true})
	if err != nil {
		b.reject(w, apierr.Wrap(apierr.KindDockerOperation, "exec attach failed", err))
		return
	}
	defer hijacked.Close()

	ws, err := b.upgrade(w, r)
	if err != nil {
		log.WithComponent("wsbridge").Debug().Err(err).Msg("upgrade failed")
		return
	}

	b.pumpExec(r.Context(), ws, adapter, created.ID, hijacked)
}

// pumpExec runs the bidirectional copy between ws and the exec PTY. STDIN
// flows out as binary frames become writes to hijacked.Conn; PTY output
// flows in as binary frames to the socket. A text frame carrying a
// ResizeCommand triggers ContainerExecResize instead of being treated as
// input; a resize received before the first STDIN byte is applied exactly
// like any other and takes effect on the next terminal repaint.
func (b *Bridge) pumpExec(ctx context.Context, ws *websocket.Conn, adapter *transport.Adapter, execID string, hijacked dockertypes.HijackedResponse) {
	logger := log.WithComponent("wsbridge")
	sendConnected(ws)
	defer sendDisconnected(ws)

	stdinDone := make(chan struct{})
	go func() {
		defer close(stdinDone)
		defer hijacked.CloseWrite()
		for {
			msgType, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				if _, err := hijacked.Conn.Write(data); err != nil {
					return
				}
			case websocket.TextMessage:
				var resize ResizeCommand
				if err := json.Unmarshal(data, &resize); err == nil && resize.Type == "resize" {
					resizeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
					if err := adapter.Client.ContainerExecResize(resizeCtx, execID, container.ResizeOptions{
						Height: resize.Rows,
						Width:  resize.Cols,
					}); err != nil {
						logger.Debug().Err(err).Msg("exec resize failed")
					}
					cancel()
				} else if _, err := hijacked.Conn.Write(data); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 32*1024)
	for {
		n, err := hijacked.Reader.Read(buf)
		if n > 0 {
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if werr := ws.WriteMessage(websocket.BinaryMessage, buf[:n]); werr != nil {
				break
			}
		}
		if err != nil {
			break
		}
	}

	closeWithError(ws, apierr.New(apierr.KindClosedByOrigin, "exec session ended"))
	<-stdinDone
}
