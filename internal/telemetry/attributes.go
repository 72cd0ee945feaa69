// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span attribute keys.
const (
	ManifestURLKey    = "manifest.url"
	ManifestFormatKey = "manifest.format"
	SegmentCountKey   = "manifest.segments"

	StreamIDKey     = "stream.id"
	StreamStatusKey = "stream.status"
	StreamBytesKey  = "stream.bytes"

	VariantBandwidthKey  = "variant.bandwidth"
	VariantResolutionKey = "variant.resolution"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// ManifestAttributes describes a resolution result.
func ManifestAttributes(format, url string, segments int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ManifestFormatKey, format),
		attribute.String(ManifestURLKey, url),
		attribute.Int(SegmentCountKey, segments),
	}
}

// StreamAttributes describes a stream; empty values are omitted.
func StreamAttributes(id, status string, bytes int64) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 3)
	if id != "" {
		attrs = append(attrs, attribute.String(StreamIDKey, id))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(StreamStatusKey, status))
	}
	if bytes > 0 {
		attrs = append(attrs, attribute.Int64(StreamBytesKey, bytes))
	}
	return attrs
}

// VariantAttributes describes the selected variant.
func VariantAttributes(bandwidth int64, resolution string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.Int64(VariantBandwidthKey, bandwidth)}
	if resolution != "" {
		attrs = append(attrs, attribute.String(VariantResolutionKey, resolution))
	}
	return attrs
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
