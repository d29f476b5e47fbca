package gateway

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// HandlerFunc answers one method_call frame. Handlers are responsible for
// sending exactly one response frame (via client.SendResponse) except for
// methods that stream results as events (e.g. chat.send with stream=true),
// which may also emit event frames before or instead of a final response.
type HandlerFunc func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter dispatches method_call frames to registered handlers by
// exact method name. Unregistered methods answer UnknownMethod.
type MethodRouter struct {
	server   *Server
	handlers map[string]HandlerFunc
}

// NewMethodRouter creates a router bound to a server (handlers may need to
// reach server-level state such as the agent router or session store).
func NewMethodRouter(s *Server) *MethodRouter {
	return &MethodRouter{server: s, handlers: make(map[string]HandlerFunc)}
}

// Register binds a method name to a handler. Registering the same method
// twice replaces the previous handler.
func (r *MethodRouter) Register(method string, handler HandlerFunc) {
	r.handlers[method] = handler
}

// Dispatch routes a request frame to its handler, recovering from handler
// panics so one bad method call can never take down a connection.
func (r *MethodRouter) Dispatch(ctx context.Context, client *Client, req protocol.RequestFrame) {
	handler, ok := r.handlers[req.Method]
	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrUnknownMethod, "unknown method: "+req.Method))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("gateway: method handler panicked", "method", req.Method, "panic", rec)
			client.SendResponse(protocol.NewErrorResponse(req.ID, protocol.ErrInternal, "internal error"))
		}
	}()

	handler(ctx, client, &req)
}
