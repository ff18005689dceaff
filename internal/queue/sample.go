// Package queue implements the bounded frame queue between the periodic
// driver (single producer) and the downstream consumer.
package queue

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// Sample is one timed frame handed to the consumer.
// Immutable once enqueued; Data is a private copy of the slot frame.
type Sample struct {
	ID            uuid.UUID
	Sequence      uint64
	PTS           timing.Time
	Duration      timing.Time
	HostTime      timing.Time
	Discontinuity bool
	Format        frame.VideoFormat
	Data          []byte
}

// String returns a short description for logs
func (s *Sample) String() string {
	return fmt.Sprintf("sample #%d pts=%s %s (%d bytes, discont=%v)",
		s.Sequence, s.PTS, s.Format, len(s.Data), s.Discontinuity)
}
