package util

import (
	"fmt"

	"github.com/open-telemetry/opamp-go/protobufs"
	"go.opentelemetry.io/otel/attribute"
)

// AttributesToKeyValues converts otel attributes into the OpAMP KeyValue
// representation used by AgentDescription. Slice values are sent as OpAMP
// arrays. Invalid attributes are dropped.
func AttributesToKeyValues(attrs []attribute.KeyValue) []*protobufs.KeyValue {
	ret := make([]*protobufs.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if !attr.Valid() {
			continue
		}
		ret = append(ret, &protobufs.KeyValue{
			Key:   string(attr.Key),
			Value: anyValue(attr.Value),
		})
	}
	return ret
}

func anyValue(v attribute.Value) *protobufs.AnyValue {
	switch v.Type() {
	case attribute.BOOL:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_BoolValue{BoolValue: v.AsBool()}}
	case attribute.INT64:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_IntValue{IntValue: v.AsInt64()}}
	case attribute.FLOAT64:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_DoubleValue{DoubleValue: v.AsFloat64()}}
	case attribute.STRING:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: v.AsString()}}
	case attribute.BOOLSLICE:
		return arrayValue(v.AsBoolSlice(), func(b bool) attribute.Value { return attribute.BoolValue(b) })
	case attribute.INT64SLICE:
		return arrayValue(v.AsInt64Slice(), func(i int64) attribute.Value { return attribute.Int64Value(i) })
	case attribute.FLOAT64SLICE:
		return arrayValue(v.AsFloat64Slice(), func(f float64) attribute.Value { return attribute.Float64Value(f) })
	case attribute.STRINGSLICE:
		return arrayValue(v.AsStringSlice(), func(s string) attribute.Value { return attribute.StringValue(s) })
	default:
		return &protobufs.AnyValue{Value: &protobufs.AnyValue_StringValue{StringValue: fmt.Sprint(v.AsInterface())}}
	}
}

func arrayValue[T any](items []T, conv func(T) attribute.Value) *protobufs.AnyValue {
	values := make([]*protobufs.AnyValue, 0, len(items))
	for _, item := range items {
		values = append(values, anyValue(conv(item)))
	}
	return &protobufs.AnyValue{
		Value: &protobufs.AnyValue_ArrayValue{
			ArrayValue: &protobufs.ArrayValue{Values: values},
		},
	}
}
