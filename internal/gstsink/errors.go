package gstsink

import (
	"strings"

	"github.com/tinyzimmer/go-gst/gst"
)

// ErrorCategory classifies pipeline bus errors for telemetry
type ErrorCategory int

const (
	// ErrCategoryDevice indicates the output element or its device failed (open, write, busy)
	ErrCategoryDevice ErrorCategory = iota
	// ErrCategoryNegotiation indicates caps/format negotiation failures
	ErrCategoryNegotiation
	// ErrCategoryResource indicates missing elements, plugins or memory
	ErrCategoryResource
	// ErrCategoryUnknown indicates unclassified errors
	ErrCategoryUnknown
)

// String returns a human-readable string representation of the error category
func (e ErrorCategory) String() string {
	switch e {
	case ErrCategoryDevice:
		return "device"
	case ErrCategoryNegotiation:
		return "negotiation"
	case ErrCategoryResource:
		return "resource"
	default:
		return "unknown"
	}
}

var (
	negotiationKeywords = []string{
		"not negotiated",
		"negotiation",
		"caps",
		"format",
		"framerate",
		"unsupported",
	}
	resourceKeywords = []string{
		"no element",
		"missing plugin",
		"no such element",
		"out of memory",
		"allocate",
		"resource",
	}
	deviceKeywords = []string{
		"device",
		"/dev/",
		"busy",
		"permission denied",
		"could not open",
		"could not write",
		"failed to write",
		"v4l2",
	}
)

// ClassifyError categorizes a bus error from its message and debug string.
// Negotiation is checked first: v4l2 negotiation failures also mention the device.
func ClassifyError(message, debug string) ErrorCategory {
	combined := strings.ToLower(message + " " + debug)

	switch {
	case containsAny(combined, negotiationKeywords):
		return ErrCategoryNegotiation
	case containsAny(combined, resourceKeywords):
		return ErrCategoryResource
	case containsAny(combined, deviceKeywords):
		return ErrCategoryDevice
	default:
		return ErrCategoryUnknown
	}
}

// classifyGError classifies a GStreamer error (go-gst's GError does not expose the domain)
func classifyGError(gerr *gst.GError) ErrorCategory {
	if gerr == nil {
		return ErrCategoryUnknown
	}
	return ClassifyError(gerr.Error(), gerr.DebugString())
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}
