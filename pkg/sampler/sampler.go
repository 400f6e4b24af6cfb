// Package sampler implements head sampling driven by attribute rules.
package sampler

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Decision is the outcome of evaluating one span.
type Decision struct {
	Sample bool
	// Fraction is the ratio applied, from the first matching rule or the
	// fallback.
	Fraction float64
}

type rule struct {
	conditions []remoteconfig.AttributeCondition
	fraction   float64
}

// HeadSampler evaluates rules in order; the first rule whose conditions all
// hold decides the fraction, even when that fraction is 0.
type HeadSampler struct {
	rules    []rule
	fallback float64
}

var _ sdktrace.Sampler = (*HeadSampler)(nil)

// New builds a sampler from cfg. A nil cfg samples everything.
func New(cfg *remoteconfig.HeadSamplingConfig) *HeadSampler {
	if cfg == nil {
		return &HeadSampler{fallback: 1}
	}
	s := &HeadSampler{
		rules:    make([]rule, 0, len(cfg.AttributesAndSamplerRules)),
		fallback: cfg.EffectiveFallbackFraction(),
	}
	for _, r := range cfg.AttributesAndSamplerRules {
		s.rules = append(s.rules, rule{
			conditions: r.AttributeConditions,
			fraction:   r.EffectiveFraction(),
		})
	}
	return s
}

// Decide evaluates the rules against attrs. spanName and kind are accepted
// for parity with the SDK sampler parameters and do not currently take part
// in matching.
func (s *HeadSampler) Decide(traceID trace.TraceID, spanName string, kind trace.SpanKind, attrs []attribute.KeyValue) Decision {
	fraction := s.fallback
	for _, r := range s.rules {
		if matches(r.conditions, attrs) {
			fraction = r.fraction
			break
		}
	}
	return Decision{
		Sample:   TraceIDRatio(traceID, fraction),
		Fraction: fraction,
	}
}

func (s *HeadSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	d := s.Decide(p.TraceID, p.Name, p.Kind, p.Attributes)
	decision := sdktrace.Drop
	if d.Sample {
		decision = sdktrace.RecordAndSample
	}
	return sdktrace.SamplingResult{
		Decision:   decision,
		Tracestate: trace.SpanContextFromContext(p.ParentContext).TraceState(),
	}
}

func (s *HeadSampler) Description() string {
	return fmt.Sprintf("HeadSampler{rules=%d,fallback=%g}", len(s.rules), s.fallback)
}

func matches(conditions []remoteconfig.AttributeCondition, attrs []attribute.KeyValue) bool {
	for _, c := range conditions {
		if !evaluate(c, attrs) {
			return false
		}
	}
	return true
}

func evaluate(c remoteconfig.AttributeCondition, attrs []attribute.KeyValue) bool {
	value, ok := lookupString(attrs, c.Key)
	if !ok {
		return false
	}
	switch c.EffectiveOperator() {
	case remoteconfig.OperatorEquals:
		return value == c.Val
	case remoteconfig.OperatorNotEquals:
		return value != c.Val
	case remoteconfig.OperatorEndWith:
		return strings.HasSuffix(value, c.Val)
	case remoteconfig.OperatorStartWith:
		return strings.HasPrefix(value, c.Val)
	default:
		return false
	}
}

// lookupString returns the last value recorded for key, which is the one the
// SDK keeps when attributes repeat. An empty string counts as missing.
func lookupString(attrs []attribute.KeyValue, key string) (string, bool) {
	var (
		found attribute.Value
		ok    bool
	)
	for _, kv := range attrs {
		if string(kv.Key) == key {
			found, ok = kv.Value, true
		}
	}
	if !ok || found.Type() != attribute.STRING || found.AsString() == "" {
		return "", false
	}
	return found.AsString(), true
}

// TraceIDRatio reports whether traceID falls inside fraction. The four big
// endian 32 bit words of the id are folded with xor so every byte
// contributes; a time prefixed id is as uniform as a random one.
func TraceIDRatio(traceID trace.TraceID, fraction float64) bool {
	if fraction >= 1 {
		return true
	}
	if fraction <= 0 {
		return false
	}
	var acc uint32
	for i := 0; i < len(traceID); i += 4 {
		acc ^= binary.BigEndian.Uint32(traceID[i : i+4])
	}
	return acc < uint32(fraction*0xffffffff)
}
