package opamp

import (
	"os"
	"runtime"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/otelfleet/otelagent/pkg/ident"
	"github.com/otelfleet/otelagent/pkg/util"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	DistroName    = "otelagent"
	DistroVersion = "0.1.0"
)

// capabilities advertised on every handshake class message.
const capabilities = uint64(
	protobufs.AgentCapabilities_AgentCapabilities_ReportsStatus |
		protobufs.AgentCapabilities_AgentCapabilities_AcceptsRemoteConfig |
		protobufs.AgentCapabilities_AgentCapabilities_ReportsRemoteConfig |
		protobufs.AgentCapabilities_AgentCapabilities_ReportsHealth |
		protobufs.AgentCapabilities_AgentCapabilities_ReportsPackageStatuses,
)

// Workload locates the process in a kubernetes cluster. Empty fields are
// omitted from the agent description.
type Workload struct {
	Namespace     string
	PodName       string
	ContainerName string
	Kind          string
	Name          string
}

func (w Workload) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if w.Namespace != "" {
		attrs = append(attrs, semconv.K8SNamespaceName(w.Namespace))
	}
	if w.PodName != "" {
		attrs = append(attrs, semconv.K8SPodName(w.PodName))
	}
	if w.ContainerName != "" {
		attrs = append(attrs, semconv.K8SContainerName(w.ContainerName))
	}
	if w.Kind != "" {
		attrs = append(attrs, attribute.String("k8s.workload.kind", w.Kind))
	}
	if w.Name != "" {
		attrs = append(attrs, attribute.String("k8s.workload.name", w.Name))
	}
	return attrs
}

// buildAgentDescription assembles the identifying attributes of this process.
// service.instance.id always reflects id and replaces any caller value.
func buildAgentDescription(
	id ident.Instance,
	serviceName string,
	workload Workload,
	identifying []attribute.KeyValue,
	nonIdentifying []attribute.KeyValue,
) *protobufs.AgentDescription {
	attrs := []attribute.KeyValue{
		semconv.TelemetrySDKLanguageGo,
		semconv.TelemetryDistroName(DistroName),
		semconv.TelemetryDistroVersion(DistroVersion),
		semconv.ProcessRuntimeVersion(runtime.Version()),
		semconv.ProcessPID(os.Getpid()),
	}
	if serviceName != "" {
		attrs = append(attrs, semconv.ServiceName(serviceName))
	}
	attrs = append(attrs, workload.attributes()...)
	attrs = append(attrs, identifying...)
	attrs = lo.Reject(attrs, func(kv attribute.KeyValue, _ int) bool {
		return kv.Key == semconv.ServiceInstanceIDKey
	})
	attrs = append(attrs, semconv.ServiceInstanceID(id.String()))

	return &protobufs.AgentDescription{
		IdentifyingAttributes: util.AttributesToKeyValues(attrs),
		NonIdentifyingAttributes: util.AttributesToKeyValues(append([]attribute.KeyValue{
			semconv.OSTypeKey.String(runtime.GOOS),
			semconv.HostArchKey.String(runtime.GOARCH),
			semconv.ProcessRuntimeName("go"),
		}, nonIdentifying...)),
	}
}

// buildPackageStatuses renders the initial package inventory, name to
// version.
func buildPackageStatuses(packages map[string]string) *protobufs.PackageStatuses {
	if len(packages) == 0 {
		return nil
	}
	return &protobufs.PackageStatuses{
		Packages: lo.MapEntries(packages, func(name, version string) (string, *protobufs.PackageStatus) {
			return name, &protobufs.PackageStatus{
				Name:            name,
				AgentHasVersion: version,
				Status:          protobufs.PackageStatusEnum_PackageStatusEnum_Installed,
			}
		}),
	}
}
