// Package wsbridge implements the WebSocket Bridge: per-socket lifecycle
// from authentication through teardown, subscribing to a C10 SharedStream
// for logs/stats/events or driving a dedicated exec PTY through a C4
// adapter directly.
//
// Grounded on the read/write-pump-plus-heartbeat shape used by
// streamspace-dev's docker-agent (single-writer channel, ping on a ticker,
// pong resets the read deadline) and on the exec/PTY attach sequence used
// by wskish-discobot's sandbox docker provider (ContainerExecCreate with
// Tty:true, ContainerExecAttach, ContainerExecResize). Uses
// github.com/gorilla/websocket for framing.
package wsbridge
