package telemetry

import "go.opentelemetry.io/otel/attribute"

func attrReason(v string) attribute.KeyValue  { return attribute.String("reason", v) }
func attrOutcome(v string) attribute.KeyValue { return attribute.String("outcome", v) }
func attrLabel(v string) attribute.KeyValue   { return attribute.String("label", v) }
