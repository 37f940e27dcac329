// Package naming derives deterministic AWS resource names for a replicator
// deployment.
package naming

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// AWS name limits for the resources a deployment creates.
const (
	MaxFunctionNameLen = 64
	MaxQueueNameLen    = 80
	MaxTopicNameLen    = 256
	MaxStackNameLen    = 128
)

var (
	nonAlnum  = regexp.MustCompile(`[^a-z0-9-]+`)
	multiDash = regexp.MustCompile(`-+`)
)

func sanitizePart(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	value = strings.ReplaceAll(value, "_", "-")
	value = strings.ReplaceAll(value, " ", "-")
	value = nonAlnum.ReplaceAllString(value, "-")
	value = multiDash.ReplaceAllString(value, "-")
	return strings.Trim(value, "-")
}

// NormalizeStage maps stage aliases to canonical values.
func NormalizeStage(stage string) string {
	stage = strings.ToLower(strings.TrimSpace(stage))
	switch stage {
	case "prod", "production", "live":
		return "live"
	case "dev", "development":
		return "dev"
	case "stg", "stage", "staging":
		return "stage"
	case "test", "testing":
		return "test"
	case "local":
		return "local"
	default:
		return sanitizePart(stage)
	}
}

// ResourceName returns <app>-<source>-<resource>-<stage>, skipping empty parts.
// source is usually the replicated table so several replicators can share a
// stage.
func ResourceName(appName, source, resource, stage string) string {
	parts := make([]string, 0, 4)
	for _, part := range []string{sanitizePart(appName), sanitizePart(source), sanitizePart(resource), NormalizeStage(stage)} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "-")
}

// FunctionName is ResourceName capped at the Lambda limit.
func FunctionName(appName, source, stage string) string {
	return Truncate(ResourceName(appName, source, "replicator", stage), MaxFunctionNameLen)
}

// QueueName is ResourceName capped at the SQS limit, with the .fifo suffix
// counted against it.
func QueueName(appName, source, stage string, fifo bool) string {
	if !fifo {
		return Truncate(ResourceName(appName, source, "dlq", stage), MaxQueueNameLen)
	}
	return Truncate(ResourceName(appName, source, "dlq", stage), MaxQueueNameLen-len(".fifo")) + ".fifo"
}

// TopicName is ResourceName capped at the SNS limit.
func TopicName(appName, source, stage string) string {
	return Truncate(ResourceName(appName, source, "errors", stage), MaxTopicNameLen)
}

// Truncate shortens name to max bytes. A shortened name ends in an 8 character
// hash of the full name so distinct long names stay distinct.
func Truncate(name string, max int) string {
	if max <= 0 || len(name) <= max {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("%08x", h.Sum32())
	if max <= len(suffix)+1 {
		return suffix[:max]
	}
	return strings.TrimRight(name[:max-len(suffix)-1], "-") + "-" + suffix
}
