// Package remoteconfig decodes the agent configuration delivered by the
// control plane.
//
// The control plane sends a map of named sections. Two of them matter to the
// agent: "InstrumentationLibraries", a JSON array with per library overrides,
// and "container_config", a JSON object describing how traces are produced.
package remoteconfig

const (
	SectionInstrumentationLibraries = "InstrumentationLibraries"
	SectionContainerConfig          = "container_config"
)

// RemoteConfig is one complete configuration. A new RemoteConfig replaces the
// previous one wholesale.
type RemoteConfig struct {
	InstrumentationLibraries []InstrumentationLibrary
	ContainerConfig          ContainerConfig
}

type InstrumentationLibrary struct {
	Name   string                       `json:"name"`
	Traces InstrumentationLibraryTraces `json:"traces"`
}

type InstrumentationLibraryTraces struct {
	// Enabled overrides the agent wide default when set.
	Enabled *bool `json:"enabled,omitempty"`
}

type ContainerConfig struct {
	// Traces is nil when traces are disabled for the whole process.
	Traces *TracesConfig `json:"traces,omitempty"`
}

type TracesConfig struct {
	IDGenerator       *IDGeneratorConfig       `json:"idGenerator,omitempty"`
	HeadersCollection *HeadersCollectionConfig `json:"headersCollection,omitempty"`
	HeadSampling      *HeadSamplingConfig      `json:"headSampling,omitempty"`
}

// IDGeneratorConfig selects at most one id generation strategy. Random is
// used when nothing is set.
type IDGeneratorConfig struct {
	Random    *RandomConfig    `json:"random,omitempty"`
	TimedWall *TimedWallConfig `json:"timedWall,omitempty"`
}

type RandomConfig struct{}

type TimedWallConfig struct {
	// SourceID is written into byte 8 of every trace id. Required, 0-255.
	SourceID *int `json:"sourceId,omitempty"`
}

type HeadersCollectionConfig struct {
	HTTPHeaderKeys []string `json:"httpHeaderKeys"`
}

type Operator string

const (
	OperatorEquals    Operator = "equals"
	OperatorNotEquals Operator = "notEquals"
	OperatorEndWith   Operator = "endWith"
	OperatorStartWith Operator = "startWith"
)

type AttributeCondition struct {
	Key string `json:"key"`
	Val string `json:"val"`
	// Operator defaults to equals when empty.
	Operator Operator `json:"operator,omitempty"`
}

// EffectiveOperator resolves the default operator.
func (c AttributeCondition) EffectiveOperator() Operator {
	if c.Operator == "" {
		return OperatorEquals
	}
	return c.Operator
}

// AttributesAndSamplerRule matches when every condition holds. A rule with no
// conditions always matches.
type AttributesAndSamplerRule struct {
	AttributeConditions []AttributeCondition `json:"attributeConditions"`
	Fraction            *float64             `json:"fraction,omitempty"`
}

func (r AttributesAndSamplerRule) EffectiveFraction() float64 {
	return fractionOrDefault(r.Fraction)
}

type HeadSamplingConfig struct {
	AttributesAndSamplerRules []AttributesAndSamplerRule `json:"attributesAndSamplerRules"`
	FallbackFraction          *float64                   `json:"fallbackFraction,omitempty"`
}

func (h HeadSamplingConfig) EffectiveFallbackFraction() float64 {
	return fractionOrDefault(h.FallbackFraction)
}

func fractionOrDefault(f *float64) float64 {
	if f == nil {
		return 1
	}
	return *f
}

// TracesEnabled reports whether traces are enabled for the process.
func (c *RemoteConfig) TracesEnabled() bool {
	return c != nil && c.ContainerConfig.Traces != nil
}

// LibraryTracesEnabled resolves whether the named library should emit spans:
// never when traces are disabled globally, otherwise the library override if
// one exists, otherwise enabled.
func (c *RemoteConfig) LibraryTracesEnabled(name string) bool {
	if !c.TracesEnabled() {
		return false
	}
	for _, lib := range c.InstrumentationLibraries {
		if lib.Name == name && lib.Traces.Enabled != nil {
			return *lib.Traces.Enabled
		}
	}
	return true
}

// HeaderKeys returns the http header keys to record on spans, if any.
func (c *RemoteConfig) HeaderKeys() []string {
	if !c.TracesEnabled() || c.ContainerConfig.Traces.HeadersCollection == nil {
		return nil
	}
	return c.ContainerConfig.Traces.HeadersCollection.HTTPHeaderKeys
}

// Default is applied when the control plane cannot be reached: traces
// enabled, no per library overrides.
func Default() *RemoteConfig {
	return &RemoteConfig{
		ContainerConfig: ContainerConfig{
			Traces: &TracesConfig{},
		},
	}
}
