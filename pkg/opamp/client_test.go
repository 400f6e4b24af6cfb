package opamp_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/otelfleet/otelagent/pkg/opamp"
	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	"github.com/otelfleet/otelagent/pkg/util/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"google.golang.org/protobuf/testing/protocmp"
)

const waitFor = 5 * time.Second

var validSections = map[string][]byte{
	remoteconfig.SectionInstrumentationLibraries: []byte(`[{"name": "net/http", "traces": {"enabled": true}}]`),
	remoteconfig.SectionContainerConfig:          []byte(`{"traces": {"idGenerator": {"timedWall": {"sourceId": 3}}}}`),
}

type testEnv struct {
	cp       *testutil.ControlPlane
	recorder *testutil.ConfigRecorder
	client   *opamp.Client
}

func newTestEnv(t *testing.T, mutate func(*opamp.Config)) *testEnv {
	t.Helper()
	cp := testutil.NewControlPlane(t)
	rec := testutil.NewConfigRecorder()
	cfg := opamp.Config{
		Endpoint:               cp.URL,
		OnRemoteConfig:         rec.OnRemoteConfig,
		HeartbeatInterval:      time.Hour,
		HandshakeRetryInterval: time.Millisecond,
		Packages:               map[string]string{"net/http": "v0.62.0"},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := opamp.NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Shutdown(context.Background(), "test cleanup")
	})
	return &testEnv{cp: cp, recorder: rec, client: client}
}

func fastHeartbeat(cfg *opamp.Config) {
	cfg.HeartbeatInterval = 10 * time.Millisecond
}

func healthMessages(msgs []*protobufs.AgentToServer) []*protobufs.AgentToServer {
	return lo.Filter(msgs, func(m *protobufs.AgentToServer, _ int) bool {
		return m.Health != nil && m.AgentDescription == nil && m.AgentDisconnect == nil
	})
}

func disconnects(msgs []*protobufs.AgentToServer) []*protobufs.AgentToServer {
	return lo.Filter(msgs, func(m *protobufs.AgentToServer, _ int) bool {
		return m.AgentDisconnect != nil
	})
}

func TestNewClient_Validation(t *testing.T) {
	_, err := opamp.NewClient(opamp.Config{OnRemoteConfig: testutil.NewConfigRecorder().OnRemoteConfig})
	assert.Error(t, err)

	_, err = opamp.NewClient(opamp.Config{Endpoint: "127.0.0.1:4320"})
	assert.Error(t, err)

	c, err := opamp.NewClient(opamp.Config{
		Endpoint:       "127.0.0.1:4320",
		OnRemoteConfig: testutil.NewConfigRecorder().OnRemoteConfig,
	})
	require.NoError(t, err)
	assert.Equal(t, opamp.StateStarting, c.State())
	assert.Equal(t, opamp.HealthStarting, c.Health().Status)
}

func TestClient_SequenceNumbers(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)

	require.NoError(t, env.client.Start(t.Context(), nil))
	env.client.SetHealthy(t.Context())
	testutil.Eventually(t, waitFor, func() bool { return len(env.cp.Messages()) >= 6 })
	require.NoError(t, env.client.Shutdown(t.Context(), "done"))

	msgs := env.cp.Messages()
	for i, m := range msgs {
		assert.Equal(t, uint64(i), m.GetSequenceNum(), "message %d", i)
		assert.Equal(t, env.client.InstanceID().Bytes(), m.GetInstanceUid())
	}
	assert.Equal(t, opamp.StateTerminated, env.client.State())
}

func TestClient_Handshake(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)

	require.NoError(t, env.client.Start(t.Context(), nil))
	assert.Equal(t, opamp.StateConnected, env.client.State())

	msgs := env.cp.Messages()
	require.Len(t, msgs, 1)
	hs := msgs[0]
	assert.NotNil(t, hs.GetAgentDescription())
	assert.Equal(t, opamp.HealthStarting, opamp.HealthStatus(hs.GetHealth().GetStatus()))
	assert.False(t, hs.GetHealth().GetHealthy())
	assert.NotZero(t, hs.GetCapabilities()&uint64(protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig))
	assert.NotZero(t, hs.GetCapabilities()&uint64(protobufs.AgentCapabilities_AgentCapabilities_ReportsHealth))
	require.Contains(t, hs.GetPackageStatuses().GetPackages(), "net/http")
	assert.Equal(t, "v0.62.0", hs.GetPackageStatuses().GetPackages()["net/http"].GetAgentHasVersion())

	require.Equal(t, 1, env.recorder.Count())
	cfg := env.recorder.Last()
	assert.True(t, cfg.LibraryTracesEnabled("net/http"))
	assert.Equal(t, 3, *cfg.ContainerConfig.Traces.IDGenerator.TimedWall.SourceID)

	status := env.client.ConfigStatus()
	require.NotNil(t, status)
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED, status.GetStatus())
}

func TestClient_HandshakeExhaustedFallsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	// a sixth attempt would succeed
	env.cp.FailNext(5)

	require.NoError(t, env.client.Start(t.Context(), nil))

	assert.Equal(t, 5, env.cp.Rejected())
	assert.Empty(t, env.cp.Messages())
	require.Equal(t, 1, env.recorder.Count())
	assert.Equal(t, remoteconfig.Default(), env.recorder.Last())
	assert.Nil(t, env.client.ConfigStatus())
	assert.Equal(t, opamp.StateConnected, env.client.State())
}

func TestClient_HandshakeSucceedsOnThirdAttempt(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	env.cp.FailNext(2)

	require.NoError(t, env.client.Start(t.Context(), nil))

	assert.Equal(t, 2, env.cp.Rejected())
	msgs := env.cp.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, uint64(2), msgs[0].GetSequenceNum(), "failed attempts consume sequence numbers")
	require.Equal(t, 1, env.recorder.Count())
	assert.NotEqual(t, remoteconfig.Default(), env.recorder.Last())
}

func TestClient_HandshakeWithoutRemoteConfig(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	env.cp.WithholdConfig(true)

	require.NoError(t, env.client.Start(t.Context(), nil))

	msgs := env.cp.Messages()
	require.Len(t, msgs, 5)
	for _, m := range msgs {
		assert.NotNil(t, m.GetAgentDescription(), "every attempt resends the full state")
	}
	require.Equal(t, 1, env.recorder.Count())
	assert.Equal(t, remoteconfig.Default(), env.recorder.Last())
}

func TestClient_HandshakeCancelled(t *testing.T) {
	env := newTestEnv(t, func(cfg *opamp.Config) {
		cfg.HandshakeRetryInterval = time.Hour
	})
	env.cp.FailNext(100)

	ctx, cancel := context.WithCancel(t.Context())
	go func() {
		for env.cp.Rejected() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := env.client.Start(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, env.recorder.Count())
	assert.NotEqual(t, opamp.StateConnected, env.client.State())
}

func TestClient_MissingSectionMarksFailed(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	rc := env.cp.SetRemoteConfig(map[string][]byte{
		remoteconfig.SectionInstrumentationLibraries: []byte(`[]`),
	})

	require.NoError(t, env.client.Start(t.Context(), nil))
	assert.Zero(t, env.recorder.Count(), "callback is not invoked for an invalid config")

	status := env.client.ConfigStatus()
	require.NotNil(t, status)
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED, status.GetStatus())
	assert.Equal(t, rc.GetConfigHash(), status.GetLastRemoteConfigHash())
	assert.Contains(t, status.GetErrorMessage(), remoteconfig.SectionContainerConfig)

	testutil.Eventually(t, waitFor, func() bool {
		return len(env.cp.Messages()) >= 2
	})
	hb := env.cp.Messages()[1]
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED, hb.GetRemoteConfigStatus().GetStatus())
}

func TestClient_FailedConfigKeepsPrevious(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	good := env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))
	require.Equal(t, 1, env.recorder.Count())

	env.cp.SetRemoteConfig(map[string][]byte{
		remoteconfig.SectionInstrumentationLibraries: []byte(`not json`),
		remoteconfig.SectionContainerConfig:          []byte(`{}`),
	})
	testutil.Eventually(t, waitFor, func() bool {
		return env.client.ConfigStatus().GetStatus() == protobufs.RemoteConfigStatuses_RemoteConfigStatuses_FAILED
	})
	assert.Equal(t, 1, env.recorder.Count())
	assert.NotEqual(t, good.GetConfigHash(), env.client.ConfigStatus().GetLastRemoteConfigHash())
}

func TestClient_ConfigPushedOnHeartbeat(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))
	require.Equal(t, 1, env.recorder.Count())

	pushed := env.cp.SetRemoteConfig(map[string][]byte{
		remoteconfig.SectionInstrumentationLibraries: []byte(`[]`),
		remoteconfig.SectionContainerConfig:          []byte(`{}`),
	})
	testutil.Eventually(t, waitFor, func() bool { return env.recorder.Count() == 2 })
	assert.False(t, env.recorder.Last().TracesEnabled())

	testutil.Eventually(t, waitFor, func() bool {
		return string(env.client.ConfigStatus().GetLastRemoteConfigHash()) == string(pushed.GetConfigHash())
	})
	// acknowledged configs are not delivered again
	n := len(env.cp.Messages())
	testutil.Eventually(t, waitFor, func() bool { return len(env.cp.Messages()) >= n+3 })
	assert.Equal(t, 2, env.recorder.Count())
}

func TestClient_ReportFullState(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))
	env.client.SetHealthy(t.Context())

	env.cp.RequestFullState()
	testutil.Eventually(t, waitFor, func() bool {
		full := lo.Filter(env.cp.Messages(), func(m *protobufs.AgentToServer, _ int) bool {
			return m.AgentDescription != nil
		})
		return len(full) >= 2
	})

	full := lo.Filter(env.cp.Messages(), func(m *protobufs.AgentToServer, _ int) bool {
		return m.AgentDescription != nil
	})
	assert.True(t, full[1].GetHealth().GetHealthy(), "full state carries current health")
	assert.Equal(t, string(opamp.HealthHealthy), full[1].GetHealth().GetStatus())
}

func TestClient_SetHealthyOnce(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	env.client.SetHealthy(t.Context())
	env.client.SetHealthy(t.Context())

	health := healthMessages(env.cp.Messages())
	require.Len(t, health, 1)
	assert.True(t, health[0].GetHealth().GetHealthy())
	assert.Equal(t, opamp.HealthHealthy, env.client.Health().Status)
}

func TestClient_SetHealthBeforeStart(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)

	env.client.SetHealthy(t.Context())
	assert.Empty(t, env.cp.Messages(), "health before the handshake is only recorded")

	require.NoError(t, env.client.Start(t.Context(), nil))
	msgs := env.cp.Messages()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].GetHealth().GetHealthy())
}

func TestClient_SetHealthTransition(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	degraded := opamp.HealthInfo{Status: opamp.HealthStarting, ErrorMessage: "exporter unavailable"}
	env.client.SetHealthy(t.Context())
	env.client.SetHealth(t.Context(), degraded)
	env.client.SetHealth(t.Context(), degraded)

	health := healthMessages(env.cp.Messages())
	require.Len(t, health, 2)
	assert.Equal(t, "exporter unavailable", health[1].GetHealth().GetLastError())
	assert.False(t, health[1].GetHealth().GetHealthy())
}

func TestClient_ShutdownBeforeStart(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)

	require.NoError(t, env.client.Shutdown(t.Context(), "early"))
	assert.Empty(t, env.cp.Messages())
	assert.Zero(t, env.cp.Connections())

	require.NoError(t, env.client.Start(t.Context(), nil))
	assert.Equal(t, opamp.StateConnected, env.client.State())
	assert.Equal(t, 1, env.recorder.Count())
}

func TestClient_StartAfterShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))
	require.NoError(t, env.client.Shutdown(t.Context(), "done"))
	n := len(env.cp.Messages())

	require.ErrorIs(t, env.client.Start(t.Context(), nil), opamp.ErrClosed)
	assert.Len(t, env.cp.Messages(), n)
	assert.Equal(t, opamp.StateTerminated, env.client.State())
}

func TestClient_ShutdownTimeoutKeepsDisconnectLast(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	// the next heartbeat is slow and its response asks for full state
	env.cp.SetLatency(150 * time.Millisecond)
	env.cp.RequestFullState()
	time.Sleep(30 * time.Millisecond)

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, env.client.Shutdown(ctx, "done"), context.DeadlineExceeded)

	msgs := env.cp.Messages()
	require.NotEmpty(t, msgs)
	require.NotNil(t, msgs[len(msgs)-1].GetAgentDisconnect())

	time.Sleep(200 * time.Millisecond)
	assert.Len(t, env.cp.Messages(), len(msgs), "nothing is sent after the disconnect")
	assert.Equal(t, opamp.StateTerminated, env.client.State())
}

func TestClient_ShutdownTwice(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	require.NoError(t, env.client.Shutdown(t.Context(), "SIGTERM"))
	require.NoError(t, env.client.Shutdown(t.Context(), "SIGTERM"))

	msgs := env.cp.Messages()
	d := disconnects(msgs)
	require.Len(t, d, 1)
	assert.Equal(t, string(opamp.HealthProcessTerminated), d[0].GetHealth().GetStatus())
	assert.Equal(t, "SIGTERM", d[0].GetHealth().GetLastError())
	assert.Equal(t, opamp.StateTerminated, env.client.State())

	// no heartbeats after shutdown
	env.client.SetHealthy(t.Context())
	assert.Len(t, env.cp.Messages(), len(msgs))
}

func TestClient_ShutdownStopsHeartbeat(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))
	testutil.Eventually(t, waitFor, func() bool { return len(env.cp.Messages()) >= 3 })

	require.NoError(t, env.client.Shutdown(t.Context(), "done"))
	n := len(env.cp.Messages())
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, env.cp.Messages(), n)
	assert.NotNil(t, env.cp.Messages()[n-1].GetAgentDisconnect())
}

func TestClient_ShutdownDisconnectFailureIsSwallowed(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	env.cp.FailNext(1)
	assert.NoError(t, env.client.Shutdown(t.Context(), "done"))
	assert.Empty(t, disconnects(env.cp.Messages()))
	assert.Equal(t, opamp.StateTerminated, env.client.State())
}

func TestClient_HeartbeatFailuresAreSwallowed(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	env.cp.FailNext(3)
	testutil.Eventually(t, waitFor, func() bool { return env.cp.Rejected() == 3 })
	assert.Equal(t, opamp.StateConnected, env.client.State())

	// the gap left by the failures makes the server ask for full state
	testutil.Eventually(t, waitFor, func() bool {
		full := lo.Filter(env.cp.Messages(), func(m *protobufs.AgentToServer, _ int) bool {
			return m.AgentDescription != nil
		})
		return len(full) >= 2
	})
}

func TestClient_CallbackPanicRecovered(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	env.recorder.SetPanicNext(true)

	require.NoError(t, env.client.Start(t.Context(), nil))
	assert.Equal(t, 1, env.recorder.Count())
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED, env.client.ConfigStatus().GetStatus())
	assert.Equal(t, opamp.StateConnected, env.client.State())
}

func TestClient_CallbackErrorIgnored(t *testing.T) {
	env := newTestEnv(t, nil)
	env.cp.SetRemoteConfig(validSections)
	env.recorder.SetFailNext(true)

	require.NoError(t, env.client.Start(t.Context(), nil))
	assert.Equal(t, protobufs.RemoteConfigStatuses_RemoteConfigStatuses_APPLIED, env.client.ConfigStatus().GetStatus())
	assert.Empty(t, env.client.ConfigStatus().GetErrorMessage())
}

func TestClient_UnhealthyStart(t *testing.T) {
	env := newTestEnv(t, fastHeartbeat)
	env.cp.SetRemoteConfig(validSections)

	err := env.client.Start(t.Context(), &opamp.HealthInfo{
		Status:       opamp.HealthUnsupportedRuntimeVersion,
		ErrorMessage: "go1.20 is not supported",
	})
	require.NoError(t, err)
	assert.Equal(t, opamp.StateTerminated, env.client.State())

	msgs := env.cp.Messages()
	require.Len(t, msgs, 1)
	assert.NotNil(t, msgs[0].GetAgentDisconnect())
	assert.NotNil(t, msgs[0].GetAgentDescription())
	assert.False(t, msgs[0].GetHealth().GetHealthy())
	assert.Equal(t, string(opamp.HealthUnsupportedRuntimeVersion), msgs[0].GetHealth().GetStatus())
	assert.Zero(t, env.recorder.Count())

	time.Sleep(50 * time.Millisecond)
	assert.Len(t, env.cp.Messages(), 1, "no heartbeat after an unhealthy start")
	require.NoError(t, env.client.Shutdown(t.Context(), "done"))
	assert.Len(t, env.cp.Messages(), 1)
}

func TestClient_AgentDescription(t *testing.T) {
	env := newTestEnv(t, func(cfg *opamp.Config) {
		cfg.ServiceName = "checkout"
		cfg.Workload = opamp.Workload{Namespace: "shop", PodName: "checkout-7d9", Kind: "Deployment", Name: "checkout"}
		cfg.IdentifyingAttributes = []attribute.KeyValue{
			attribute.String("service.instance.id", "spoofed"),
			attribute.String("instrumentation.device.id", "dev-1"),
		}
	})
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	desc := env.cp.Messages()[0].GetAgentDescription()
	attrs := lo.SliceToMap(desc.GetIdentifyingAttributes(), func(kv *protobufs.KeyValue) (string, *protobufs.AnyValue) {
		return kv.GetKey(), kv.GetValue()
	})
	assert.Equal(t, env.client.InstanceID().String(), attrs["service.instance.id"].GetStringValue())
	assert.Equal(t, "go", attrs["telemetry.sdk.language"].GetStringValue())
	assert.Equal(t, opamp.DistroName, attrs["telemetry.distro.name"].GetStringValue())
	assert.Equal(t, "checkout", attrs["service.name"].GetStringValue())
	assert.Equal(t, "shop", attrs["k8s.namespace.name"].GetStringValue())
	assert.Equal(t, "checkout-7d9", attrs["k8s.pod.name"].GetStringValue())
	assert.Equal(t, "Deployment", attrs["k8s.workload.kind"].GetStringValue())
	assert.Equal(t, "dev-1", attrs["instrumentation.device.id"].GetStringValue())
	assert.NotZero(t, attrs["process.pid"].GetIntValue())
	assert.NotContains(t, attrs, "k8s.container.name")

	count := lo.CountBy(desc.GetIdentifyingAttributes(), func(kv *protobufs.KeyValue) bool {
		return kv.GetKey() == "service.instance.id"
	})
	assert.Equal(t, 1, count)
}

func TestClient_PackageStatuses(t *testing.T) {
	env := newTestEnv(t, func(cfg *opamp.Config) {
		cfg.Packages = map[string]string{
			"net/http":        "v0.62.0",
			"net/http/client": "v0.62.0",
		}
	})
	env.cp.SetRemoteConfig(validSections)
	require.NoError(t, env.client.Start(t.Context(), nil))

	expected := &protobufs.PackageStatuses{
		Packages: map[string]*protobufs.PackageStatus{
			"net/http": {
				Name:            "net/http",
				AgentHasVersion: "v0.62.0",
				Status:          protobufs.PackageStatusEnum_PackageStatusEnum_Installed,
			},
			"net/http/client": {
				Name:            "net/http/client",
				AgentHasVersion: "v0.62.0",
				Status:          protobufs.PackageStatusEnum_PackageStatusEnum_Installed,
			},
		},
	}
	sent := env.cp.Messages()[0].GetPackageStatuses()
	assert.Empty(t, cmp.Diff(expected, sent, protocmp.Transform()))
}

func TestClient_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	env := newTestEnv(t, func(cfg *opamp.Config) {
		cfg.Registerer = reg
	})
	env.cp.SetRemoteConfig(validSections)
	env.cp.FailNext(1)
	require.NoError(t, env.client.Start(t.Context(), nil))
	require.NoError(t, env.client.Shutdown(t.Context(), "done"))

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, l := range m.GetLabel() {
				key += "/" + l.GetValue()
			}
			if m.GetCounter() != nil {
				values[key] = m.GetCounter().GetValue()
			}
			if m.GetGauge() != nil {
				values[key] = m.GetGauge().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["otelagent_opamp_send_failures_total/full_state"])
	assert.Equal(t, 1.0, values["otelagent_opamp_messages_sent_total/full_state"])
	assert.Equal(t, 1.0, values["otelagent_opamp_messages_sent_total/disconnect"])
	assert.Equal(t, 1.0, values["otelagent_opamp_remote_configs_total/RemoteConfigStatuses_APPLIED"])
	assert.Equal(t, 3.0, values["otelagent_opamp_sequence_number"])
}
