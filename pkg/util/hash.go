package util

import (
	"crypto/sha256"
	"slices"

	"github.com/open-telemetry/opamp-go/protobufs"
	"github.com/samber/lo"
)

// ConfigSections builds an AgentConfigMap from named JSON bodies, the shape
// the control plane uses to deliver agent configuration.
func ConfigSections(sections map[string][]byte) *protobufs.AgentConfigMap {
	return &protobufs.AgentConfigMap{
		ConfigMap: lo.MapValues(sections, func(body []byte, _ string) *protobufs.AgentConfigFile {
			return &protobufs.AgentConfigFile{
				ContentType: "application/json",
				Body:        body,
			}
		}),
	}
}

// HashAgentConfigMap computes a stable SHA256 hash over the section names and
// bodies of a config map. Content types do not contribute, and the result
// does not depend on map iteration order.
func HashAgentConfigMap(configMap *protobufs.AgentConfigMap) []byte {
	if configMap == nil || len(configMap.ConfigMap) == 0 {
		return []byte{}
	}

	names := lo.Keys(configMap.ConfigMap)
	slices.Sort(names)

	h := sha256.New()
	for _, name := range names {
		section := configMap.ConfigMap[name]
		if section == nil {
			continue
		}
		h.Write([]byte(name))
		h.Write(section.Body)
	}
	return h.Sum(nil)
}
