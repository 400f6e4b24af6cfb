// Package opamp implements the agent side of the OpAMP control channel over
// plain HTTP: handshake with bounded retry, periodic heartbeats, health
// reporting, remote config application and disconnect on shutdown.
package opamp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/otelfleet/otelagent/pkg/ident"
	"github.com/otelfleet/otelagent/pkg/logutil"
	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/proto"
)

const (
	DefaultHeartbeatInterval      = 10 * time.Second
	DefaultHandshakeAttempts      = 5
	DefaultHandshakeRetryInterval = 2 * time.Second
	DefaultRequestTimeout         = 5 * time.Second
)

const (
	kindFullState  = "full_state"
	kindHeartbeat  = "heartbeat"
	kindHealth     = "health"
	kindDisconnect = "disconnect"
)

// RemoteConfigCallback receives every successfully extracted remote config.
// It runs while the client holds its send lock and must not call back into
// the Client.
type RemoteConfigCallback func(ctx context.Context, cfg *remoteconfig.RemoteConfig) error

type Config struct {
	// Logger for client operations. Defaults to slog.Default().
	Logger *slog.Logger

	// Endpoint is the control plane address, either host:port or a full URL
	// (e.g. "http://127.0.0.1:4320/v1/opamp").
	Endpoint string

	// OnRemoteConfig is invoked with each new config, and with
	// remoteconfig.Default() when the handshake is exhausted.
	OnRemoteConfig RemoteConfigCallback

	// ServiceName is reported as service.name when set.
	ServiceName string
	Workload    Workload

	// Extra attributes merged into the agent description.
	IdentifyingAttributes    []attribute.KeyValue
	NonIdentifyingAttributes []attribute.KeyValue

	// Packages is the initial package inventory, name to version.
	Packages map[string]string

	HeartbeatInterval      time.Duration
	HandshakeAttempts      int
	HandshakeRetryInterval time.Duration
	RequestTimeout         time.Duration

	// HTTPClient overrides the client used for requests. Its Timeout is left
	// untouched.
	HTTPClient *http.Client

	// Registerer receives the client metrics. Optional.
	Registerer prometheus.Registerer

	// Identity overrides the generated instance identity, mainly for tests.
	Identity *ident.Instance
}

func (c *Config) setDefaults() {
	c.Logger = logutil.OrDefault(c.Logger)
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.HandshakeAttempts <= 0 {
		c.HandshakeAttempts = DefaultHandshakeAttempts
	}
	if c.HandshakeRetryInterval <= 0 {
		c.HandshakeRetryInterval = DefaultHandshakeRetryInterval
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
}

type State int

const (
	StateStarting State = iota
	StateConnected
	StateUnhealthy
	StateShuttingDown
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateConnected:
		return "Connected"
	case StateUnhealthy:
		return "Unhealthy"
	case StateShuttingDown:
		return "ShuttingDown"
	case StateTerminated:
		return "Terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Client struct {
	logger    *slog.Logger
	cfg       Config
	identity  ident.Instance
	transport *httpTransport
	metrics   *clientMetrics
	health    *HealthReporter

	description *protobufs.AgentDescription
	packages    *protobufs.PackageStatuses

	// sendMu serializes request/response cycles so sequence numbers follow
	// send order.
	sendMu       sync.Mutex
	seq          uint64
	disconnected bool

	mu           sync.Mutex
	configStatus *protobufs.RemoteConfigStatus
	state        State
	running      bool
	handshaking  bool
	closed       bool
	cancel       context.CancelFunc
	done         chan struct{}
}

func NewClient(cfg Config) (*Client, error) {
	cfg.setDefaults()
	endpoint, err := endpointURL(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	if cfg.OnRemoteConfig == nil {
		return nil, errors.New("remote config callback must be set")
	}

	identity := ident.NewInstance()
	if cfg.Identity != nil {
		identity = *cfg.Identity
	}

	return &Client{
		logger:   cfg.Logger.With("instance_uid", identity.String()),
		cfg:      cfg,
		identity: identity,
		transport: &httpTransport{
			endpoint:   endpoint,
			httpClient: cfg.HTTPClient,
		},
		metrics: newClientMetrics(cfg.Registerer),
		health:  NewHealthReporter(time.Now),
		description: buildAgentDescription(
			identity,
			cfg.ServiceName,
			cfg.Workload,
			cfg.IdentifyingAttributes,
			cfg.NonIdentifyingAttributes,
		),
		packages: buildPackageStatuses(cfg.Packages),
		state:    StateStarting,
	}, nil
}

func (c *Client) InstanceID() ident.Instance {
	return c.identity
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Health returns the last recorded health.
func (c *Client) Health() HealthInfo {
	return c.health.Current()
}

// Start performs the handshake and, on success or fallback, starts the
// heartbeat loop. A non-nil unhealthy reports that the agent cannot run: the
// full state is sent together with a disconnect and no heartbeat is started.
//
// Start returns an error when ctx is cancelled during the handshake or the
// client was already shut down.
func (c *Client) Start(ctx context.Context, unhealthy *HealthInfo) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.handshaking = true
	c.mu.Unlock()

	if unhealthy != nil {
		return c.startUnhealthy(ctx, *unhealthy)
	}

	msg := c.fullState()
	err := c.retry(ctx, kindFullState, msg, func(resp *protobufs.ServerToAgent) error {
		if resp.GetRemoteConfig() == nil {
			return ErrNoRemoteConfig
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("handshake aborted: %w", ctxErr)
		}
		c.logger.With("err", err, "attempts", c.cfg.HandshakeAttempts).
			Warn("control plane unreachable, applying default config")
		c.invokeCallback(ctx, remoteconfig.Default())
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handshaking = false
	if c.closed {
		c.state = StateTerminated
		return nil
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	c.state = StateConnected
	go c.heartbeat(loopCtx, c.done)
	c.logger.With("interval", c.cfg.HeartbeatInterval).Info("connected to control plane")
	return nil
}

func (c *Client) startUnhealthy(ctx context.Context, info HealthInfo) error {
	c.health.Set(info)
	c.mu.Lock()
	c.state = StateUnhealthy
	c.mu.Unlock()

	msg := c.fullState()
	msg.AgentDisconnect = &protobufs.AgentDisconnect{}
	err := c.retry(ctx, kindDisconnect, msg, nil)

	c.mu.Lock()
	c.handshaking = false
	c.closed = true
	c.state = StateTerminated
	c.mu.Unlock()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("unhealthy report aborted: %w", ctxErr)
		}
		c.logger.With("err", err, "status", info.Status).Warn("failed to report unhealthy agent")
	}
	return nil
}

// retry sends msg up to HandshakeAttempts times, HandshakeRetryInterval
// apart. Each attempt carries a fresh sequence number. check, when set, can
// reject an otherwise successful response.
func (c *Client) retry(
	ctx context.Context,
	kind string,
	msg *protobufs.AgentToServer,
	check func(*protobufs.ServerToAgent) error,
) error {
	attempt := 0
	op := func() error {
		attempt++
		resp, err := c.send(ctx, kind, proto.Clone(msg).(*protobufs.AgentToServer), kind != kindDisconnect)
		if err != nil {
			return err
		}
		if check != nil {
			return check(resp)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.logger.With("err", err, "attempt", attempt, "next", next).Warn("control plane request failed, retrying")
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewConstantBackOff(c.cfg.HandshakeRetryInterval),
			uint64(c.cfg.HandshakeAttempts-1),
		),
		ctx,
	)
	return backoff.RetryNotify(op, b, notify)
}

func (c *Client) heartbeat(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	// in-flight requests outlive shutdown; only scheduling stops
	reqCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			resp, err := c.send(reqCtx, kindHeartbeat, &protobufs.AgentToServer{}, true)
			if err != nil {
				c.logger.With("err", err).Warn("heartbeat failed")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.reportFullStateIfRequested(reqCtx, resp)
		}
	}
}

func (c *Client) reportFullStateIfRequested(ctx context.Context, resp *protobufs.ServerToAgent) {
	if resp.GetFlags()&uint64(protobufs.ServerToAgentFlags_ServerToAgentFlags_ReportFullState) == 0 {
		return
	}
	c.logger.Debug("control plane requested full state")
	if _, err := c.send(ctx, kindFullState, c.fullState(), true); err != nil {
		c.logger.With("err", err).Warn("failed to report full state")
	}
}

// SetHealthy marks the agent healthy. It sends nothing when the agent is
// already healthy.
func (c *Client) SetHealthy(ctx context.Context) {
	c.SetHealth(ctx, HealthInfo{Status: HealthHealthy})
}

// SetHealth records info and reports it immediately when it changed and the
// client is connected.
func (c *Client) SetHealth(ctx context.Context, info HealthInfo) {
	if !c.health.Set(info) {
		return
	}
	logutil.WithHealth(c.logger, string(info.Status)).Info("health changed")
	if c.State() != StateConnected {
		return
	}
	resp, err := c.send(ctx, kindHealth, &protobufs.AgentToServer{Health: c.health.ComponentHealth()}, true)
	if err != nil {
		c.logger.With("err", err).Warn("failed to report health")
		return
	}
	c.reportFullStateIfRequested(ctx, resp)
}

// Shutdown reports ProcessTerminated with reason, stops the heartbeat and
// sends a disconnect. It does nothing when the heartbeat never started or
// Shutdown already ran; a client shut down before Start can still be
// started. A Shutdown racing an in-progress handshake prevents the heartbeat
// from starting. An expired ctx stops the wait for an in-flight heartbeat
// but not the disconnect.
func (c *Client) Shutdown(ctx context.Context, reason string) error {
	c.mu.Lock()
	if !c.running || c.closed {
		if c.handshaking {
			c.closed = true
		}
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.state = StateShuttingDown
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	c.health.Set(HealthInfo{Status: HealthProcessTerminated, ErrorMessage: reason})

	// let an in-flight heartbeat finish so the disconnect is the last message
	cancel()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	msg := &protobufs.AgentToServer{
		AgentDisconnect: &protobufs.AgentDisconnect{},
		Health:          c.health.ComponentHealth(),
	}
	// still bounded by RequestTimeout when ctx ran out waiting on the heartbeat
	if _, sendErr := c.send(context.WithoutCancel(ctx), kindDisconnect, msg, false); sendErr != nil {
		c.logger.With("err", sendErr).Warn("failed to send disconnect")
	}

	c.mu.Lock()
	c.running = false
	c.state = StateTerminated
	c.mu.Unlock()
	c.logger.With("reason", reason).Info("disconnected from control plane")
	return err
}

func (c *Client) fullState() *protobufs.AgentToServer {
	return &protobufs.AgentToServer{
		AgentDescription: c.description,
		Capabilities:     capabilities,
		Health:           c.health.ComponentHealth(),
		PackageStatuses:  c.packages,
	}
}

// send stamps msg with identity, sequence number and config status, then
// posts it. Remote config found in the response is applied before send
// returns when apply is set.
func (c *Client) send(ctx context.Context, kind string, msg *protobufs.AgentToServer, apply bool) (*protobufs.ServerToAgent, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.disconnected {
		return nil, ErrClosed
	}

	msg.InstanceUid = c.identity.Bytes()
	msg.SequenceNum = c.seq
	c.seq++
	c.metrics.sequenceNumber.Set(float64(c.seq))

	c.mu.Lock()
	msg.RemoteConfigStatus = c.configStatus
	c.mu.Unlock()

	resp, err := c.transport.Send(ctx, msg)
	if err != nil {
		c.metrics.sendFailures.WithLabelValues(kind).Inc()
		return nil, err
	}
	c.metrics.messagesSent.WithLabelValues(kind).Inc()
	if msg.AgentDisconnect != nil {
		// nothing may follow an acknowledged disconnect
		c.disconnected = true
	}

	if errResp := resp.GetErrorResponse(); errResp != nil {
		c.logger.With("type", errResp.GetType().String(), "message", errResp.GetErrorMessage()).
			Warn("control plane returned an error response")
	}
	if apply && resp.GetRemoteConfig() != nil {
		c.applyRemoteConfig(ctx, resp.GetRemoteConfig())
	}
	return resp, nil
}

// applyRemoteConfig extracts and delivers a remote config, recording the
// outcome to be reported on the next message.
func (c *Client) applyRemoteConfig(ctx context.Context, remote *protobufs.AgentRemoteConfig) {
	l := c.logger.With("type", "remote-config")
	cfg, err := remoteconfig.Extract(remote)
	if err != nil {
		l.With("err", err).Error("rejecting remote config")
		c.setConfigStatus(&protobufs.RemoteConfigStatus{
			LastRemoteConfigHash: remote.GetConfigHash(),
			Status:               protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED,
			ErrorMessage:         err.Error(),
		})
		return
	}
	c.invokeCallback(ctx, cfg)
	c.setConfigStatus(&protobufs.RemoteConfigStatus{
		LastRemoteConfigHash: remote.GetConfigHash(),
		Status:               protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED,
	})
	l.Info("applied remote config")
}

func (c *Client) setConfigStatus(status *protobufs.RemoteConfigStatus) {
	c.mu.Lock()
	c.configStatus = status
	c.mu.Unlock()
	c.metrics.remoteConfigs.WithLabelValues(status.GetStatus().String()).Inc()
}

// invokeCallback shields the client from callback errors and panics.
func (c *Client) invokeCallback(ctx context.Context, cfg *remoteconfig.RemoteConfig) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.With("panic", r).Error("remote config callback panicked")
		}
	}()
	if err := c.cfg.OnRemoteConfig(ctx, cfg); err != nil {
		c.logger.With("err", err).Error("remote config callback failed")
	}
}

// ConfigStatus returns the status attached to outgoing messages.
func (c *Client) ConfigStatus() *protobufs.RemoteConfigStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.configStatus
}
