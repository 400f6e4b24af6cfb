// Package idgen provides the trace and span id generators selectable from
// remote configuration.
package idgen

import (
	"context"
	"encoding/binary"
	"math/rand/v2"
	"time"

	"github.com/otelfleet/otelagent/pkg/remoteconfig"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// FromConfig returns the generator selected by cfg. Random is the default.
func FromConfig(cfg *remoteconfig.IDGeneratorConfig) sdktrace.IDGenerator {
	if cfg == nil || cfg.TimedWall == nil || cfg.TimedWall.SourceID == nil {
		return Random()
	}
	return NewTimedWall(uint8(*cfg.TimedWall.SourceID))
}

type random struct{}

// Random returns a generator producing 16 random trace id bytes and 8 random
// span id bytes.
func Random() sdktrace.IDGenerator {
	return random{}
}

func (random) NewIDs(context.Context) (trace.TraceID, trace.SpanID) {
	return randomTraceID(), randomSpanID()
}

func (random) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	return randomSpanID()
}

func randomTraceID() trace.TraceID {
	var tid trace.TraceID
	for !tid.IsValid() {
		binary.BigEndian.PutUint64(tid[0:8], rand.Uint64())
		binary.BigEndian.PutUint64(tid[8:16], rand.Uint64())
	}
	return tid
}

func randomSpanID() trace.SpanID {
	var sid trace.SpanID
	for !sid.IsValid() {
		binary.BigEndian.PutUint64(sid[:], rand.Uint64())
	}
	return sid
}

type Option func(*TimedWall)

// WithClock overrides the wall clock used for the timestamp prefix.
func WithClock(now func() time.Time) Option {
	return func(t *TimedWall) {
		t.now = now
	}
}

// TimedWall lays out trace ids as
//
//	[0:8)  nanoseconds since the unix epoch, big endian
//	[8]    source id
//	[9:16) random
//
// so that stores indexing on the id prefix can range scan by time.
type TimedWall struct {
	sourceID uint8
	now      func() time.Time
}

var _ sdktrace.IDGenerator = (*TimedWall)(nil)

func NewTimedWall(sourceID uint8, opts ...Option) *TimedWall {
	t := &TimedWall{
		sourceID: sourceID,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *TimedWall) SourceID() uint8 {
	return t.sourceID
}

func (t *TimedWall) NewIDs(context.Context) (trace.TraceID, trace.SpanID) {
	return t.newTraceID(), randomSpanID()
}

func (t *TimedWall) NewSpanID(context.Context, trace.TraceID) trace.SpanID {
	return randomSpanID()
}

func (t *TimedWall) newTraceID() trace.TraceID {
	var tid trace.TraceID
	binary.BigEndian.PutUint64(tid[0:8], uint64(t.now().UnixNano()))
	tid[8] = t.sourceID
	var tail [8]byte
	binary.BigEndian.PutUint64(tail[:], rand.Uint64())
	copy(tid[9:16], tail[:7])
	if !tid.IsValid() {
		// only reachable with a zero clock and a zero source id
		tid[15] = 1
	}
	return tid
}

// DecodeTimedWall recovers the timestamp and source id from a trace id
// produced by a TimedWall generator.
func DecodeTimedWall(tid trace.TraceID) (time.Time, uint8) {
	nanos := int64(binary.BigEndian.Uint64(tid[0:8]))
	return time.Unix(0, nanos), tid[8]
}
