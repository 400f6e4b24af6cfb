package testutil

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/open-telemetry/opamp-go/server"
	servertypes "github.com/open-telemetry/opamp-go/server/types"
	"github.com/otelfleet/otelagent/pkg/logutil"
	"github.com/otelfleet/otelagent/pkg/util"
	"google.golang.org/protobuf/proto"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// ControlPlane is an in-process OpAMP server speaking plain HTTP. It records
// every message it accepts, serves a single remote config and can be told to
// fail requests before they reach the OpAMP handler.
type ControlPlane struct {
	URL    string
	logger *slog.Logger

	mu              sync.Mutex
	messages        []*protobufs.AgentToServer
	rejected        int
	failNext        int
	latency         time.Duration
	withholdConfig  bool
	requestFull     bool
	remoteConfig    *protobufs.AgentRemoteConfig
	lastSeq         map[string]uint64
	seenConnections int
}

var _ ConnectionHandler = (*ControlPlane)(nil)

func NewControlPlane(t *testing.T) *ControlPlane {
	t.Helper()
	cp := &ControlPlane{
		logger:  slog.Default().With("service", "control-plane"),
		lastSeq: map[string]uint64{},
	}
	opampServer := server.New(logutil.NewOpAMPLogger(cp.logger))
	srv := SetupOpampServer(t, opampServer, SetupOpampServerImpl(t, cp), cp.failureInjector)
	cp.URL = srv.URL + "/v1/opamp"
	return cp
}

func (c *ControlPlane) failureInjector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		fail := c.failNext > 0
		if fail {
			c.failNext--
			c.rejected++
		}
		latency := c.latency
		c.mu.Unlock()
		if latency > 0 {
			time.Sleep(latency)
		}
		if fail {
			http.Error(w, "injected failure", http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetRemoteConfig replaces the config served to agents. Agents whose last
// reported hash differs receive it on their next message.
func (c *ControlPlane) SetRemoteConfig(sections map[string][]byte) *protobufs.AgentRemoteConfig {
	cm := util.ConfigSections(sections)
	rc := &protobufs.AgentRemoteConfig{
		Config:     cm,
		ConfigHash: util.HashAgentConfigMap(cm),
	}
	c.mu.Lock()
	c.remoteConfig = rc
	c.mu.Unlock()
	return rc
}

// FailNext makes the next n requests fail with 503.
func (c *ControlPlane) FailNext(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext = n
}

// SetLatency delays every following request by d before it is handled.
func (c *ControlPlane) SetLatency(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.latency = d
}

// WithholdConfig makes responses omit remote_config.
func (c *ControlPlane) WithholdConfig(withhold bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.withholdConfig = withhold
}

// RequestFullState sets ReportFullState on the next response.
func (c *ControlPlane) RequestFullState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestFull = true
}

// Messages returns the accepted messages in arrival order.
func (c *ControlPlane) Messages() []*protobufs.AgentToServer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protobufs.AgentToServer, len(c.messages))
	copy(out, c.messages)
	return out
}

// Connections returns the number of requests that reached the OpAMP handler.
func (c *ControlPlane) Connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seenConnections
}

// Rejected returns the number of requests failed by FailNext.
func (c *ControlPlane) Rejected() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rejected
}

func (c *ControlPlane) OnConnected(ctx context.Context, conn servertypes.Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seenConnections++
}

func (c *ControlPlane) OnReadMessageError(conn servertypes.Connection, mt int, msgByte []byte, err error) {
	c.logger.With("err", err).Error("failed to read / deserialize agent message")
}

func (c *ControlPlane) OnConnectionClose(conn servertypes.Connection) {}

func (c *ControlPlane) OnMessage(ctx context.Context, conn servertypes.Connection, message *protobufs.AgentToServer) *protobufs.ServerToAgent {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messages = append(c.messages, proto.Clone(message).(*protobufs.AgentToServer))
	resp := &protobufs.ServerToAgent{
		InstanceUid: message.InstanceUid,
	}

	if c.requestFull || c.sequenceGap(message) {
		c.requestFull = false
		resp.Flags = uint64(protobufs.ServerToAgentFlags_ServerToAgentFlags_ReportFullState)
	}

	if c.remoteConfig != nil && !c.withholdConfig && message.AgentDisconnect == nil {
		reported := message.GetRemoteConfigStatus().GetLastRemoteConfigHash()
		if message.AgentDescription != nil || !bytes.Equal(reported, c.remoteConfig.ConfigHash) {
			resp.RemoteConfig = c.remoteConfig
		}
	}
	return resp
}

// sequenceGap reports whether a non full state message skipped a sequence
// number. Full state messages reset tracking.
func (c *ControlPlane) sequenceGap(message *protobufs.AgentToServer) bool {
	id := string(message.InstanceUid)
	last, seen := c.lastSeq[id]
	c.lastSeq[id] = message.SequenceNum
	if message.AgentDescription != nil || !seen {
		return false
	}
	return message.SequenceNum != last+1
}
