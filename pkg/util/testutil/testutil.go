package testutil

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/open-telemetry/opamp-go/server"
	servertypes "github.com/open-telemetry/opamp-go/server/types"
	"github.com/stretchr/testify/require"
)

// ConnectionHandler is the set of opamp-go server callbacks a fake control
// plane implements.
type ConnectionHandler interface {
	OnConnected(ctx context.Context, conn servertypes.Connection)
	OnMessage(ctx context.Context, conn servertypes.Connection, message *protobufs.AgentToServer) *protobufs.ServerToAgent
	OnConnectionClose(conn servertypes.Connection)
	OnReadMessageError(conn servertypes.Connection, mt int, msgByte []byte, err error)
}

// SetupOpampServer attaches s to an httptest server. wrap, when non-nil,
// decorates the opamp handler, e.g. to inject failures.
func SetupOpampServer(
	t *testing.T,
	s server.OpAMPServer,
	settings server.Settings,
	wrap func(http.Handler) http.Handler,
) *httptest.Server {
	t.Helper()
	handlerFunc, connCtx, err := s.Attach(
		settings,
	)
	require.NoError(t, err)
	var handler http.Handler = http.HandlerFunc(handlerFunc)
	if wrap != nil {
		handler = wrap(handler)
	}
	// the plain HTTP handler looks up the net.Conn stored by connCtx
	srv := httptest.NewUnstartedServer(handler)
	srv.Config.ConnContext = connCtx
	srv.Start()
	t.Cleanup(func() {
		srv.Close()
	})

	return srv
}

func SetupOpampServerImpl(t *testing.T, s ConnectionHandler) server.Settings {
	t.Helper()
	return server.Settings{
		Callbacks: servertypes.Callbacks{
			OnConnecting: func(request *http.Request) servertypes.ConnectionResponse {
				return servertypes.ConnectionResponse{
					Accept: true,
					ConnectionCallbacks: servertypes.ConnectionCallbacks{
						OnConnected:        s.OnConnected,
						OnMessage:          s.OnMessage,
						OnConnectionClose:  s.OnConnectionClose,
						OnReadMessageError: s.OnReadMessageError,
					},
				}
			},
		},
	}
}

// Eventually polls cond until it holds or timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msgAndArgs ...any) {
	t.Helper()
	require.Eventually(t, cond, timeout, 5*time.Millisecond, msgAndArgs...)
}
