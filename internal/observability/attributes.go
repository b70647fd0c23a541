// Package observability provides metrics utilities for the tracker service.
package observability

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys
const (
	attrMethod  = "method"
	attrPath    = "path"
	attrStatus  = "status"
	attrType    = "type"
	attrTarget  = "target"
	attrOutcome = "outcome"
)

func methodAttr(method string) attribute.KeyValue {
	return attribute.String(attrMethod, method)
}

func pathAttr(path string) attribute.KeyValue {
	return attribute.String(attrPath, path)
}

func statusAttr(code int) attribute.KeyValue {
	// Group status codes to reduce cardinality
	// 200-299 -> 2xx, 400-499 -> 4xx, 500-599 -> 5xx
	group := fmt.Sprintf("%dxx", code/100)
	return attribute.String(attrStatus, group)
}

func typeAttr(jobType string) attribute.KeyValue {
	return attribute.String(attrType, jobType)
}

func targetAttr(target string) attribute.KeyValue {
	return attribute.String(attrTarget, target)
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String(attrOutcome, outcome)
}
