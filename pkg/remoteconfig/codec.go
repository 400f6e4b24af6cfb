package remoteconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"

	"github.com/open-telemetry/opamp-go/protobufs"
)

// Extract decodes both agent sections from a remote config message. It
// returns a complete RemoteConfig or an error wrapping a *ValidationError,
// never a partial result.
func Extract(remote *protobufs.AgentRemoteConfig) (*RemoteConfig, error) {
	sections := remote.GetConfig().GetConfigMap()

	libsBody, err := sectionBody(sections, SectionInstrumentationLibraries)
	if err != nil {
		return nil, err
	}
	var libs []InstrumentationLibrary
	if err := decodeStrict(libsBody, &libs); err != nil {
		return nil, validationErr(SectionInstrumentationLibraries, ErrMalformedPayload, "%s", err)
	}

	containerBody, err := sectionBody(sections, SectionContainerConfig)
	if err != nil {
		return nil, err
	}
	var container ContainerConfig
	if err := decodeStrict(containerBody, &container); err != nil {
		return nil, validationErr(SectionContainerConfig, ErrMalformedPayload, "%s", err)
	}
	if err := container.validate(); err != nil {
		return nil, err
	}

	return &RemoteConfig{
		InstrumentationLibraries: libs,
		ContainerConfig:          container,
	}, nil
}

func sectionBody(sections map[string]*protobufs.AgentConfigFile, name string) ([]byte, error) {
	section, ok := sections[name]
	if !ok || section == nil {
		return nil, validationErr(name, ErrMissingSection, "section not present")
	}
	if len(section.GetBody()) == 0 {
		return nil, validationErr(name, ErrMissingSection, "section has no body")
	}
	return section.GetBody(), nil
}

var (
	errNullPayload  = errors.New("payload is null")
	errTrailingData = errors.New("trailing data after JSON value")
)

// decodeStrict decodes exactly one JSON value. A literal null is rejected so
// that an explicit "no value" is not mistaken for an empty config.
func decodeStrict(body []byte, into any) error {
	trimmed := bytes.TrimSpace(body)
	if bytes.Equal(trimmed, []byte("null")) {
		return errNullPayload
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if err := dec.Decode(into); err != nil {
		return err
	}
	if err := dec.Decode(&json.RawMessage{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

func (c ContainerConfig) validate() error {
	if c.Traces == nil {
		return nil
	}
	if gen := c.Traces.IDGenerator; gen != nil && gen.TimedWall != nil {
		src := gen.TimedWall.SourceID
		if src == nil {
			return validationErr(SectionContainerConfig, ErrInvalidValue, "timedWall requires sourceId")
		}
		if *src < 0 || *src > 255 {
			return validationErr(SectionContainerConfig, ErrInvalidValue, "timedWall sourceId %d outside [0,255]", *src)
		}
	}
	if hs := c.Traces.HeadSampling; hs != nil {
		if !validFraction(hs.FallbackFraction) {
			return validationErr(SectionContainerConfig, ErrInvalidValue, "fallbackFraction %v outside [0,1]", *hs.FallbackFraction)
		}
		for i, rule := range hs.AttributesAndSamplerRules {
			if !validFraction(rule.Fraction) {
				return validationErr(SectionContainerConfig, ErrInvalidValue, "rule %d fraction %v outside [0,1]", i, *rule.Fraction)
			}
		}
	}
	return nil
}

func validFraction(f *float64) bool {
	return f == nil || (*f >= 0 && *f <= 1)
}
