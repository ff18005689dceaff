package gstsink

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/timing"
)

// pipelineElements holds references needed for caps refresh and cleanup
type pipelineElements struct {
	pipeline *gst.Pipeline
	src      *app.Source
	sink     *gst.Element
}

// createPipeline builds
//
//	appsrc(is-live, format=time) → videoconvert → <element>
//
// The pipeline is configured but NOT started (state remains NULL).
func createPipeline(element string, properties map[string]string, caps string) (*pipelineElements, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := app.NewAppSrc()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetLive(true)
	src.SetFormat(gst.FormatTime)
	src.SetDoTimestamp(false)
	src.SetCaps(gst.NewCapsFromString(caps))

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}

	sink, err := gst.NewElement(element)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", element, err)
	}

	// Deterministic order so logs are stable
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := sink.SetProperty(k, properties[k]); err != nil {
			slog.Warn("gstsink: failed to set element property",
				"element", element,
				"property", k,
				"error", err,
			)
		}
	}

	if err := pipeline.AddMany(src.Element, converter, sink); err != nil {
		return nil, fmt.Errorf("failed to add pipeline elements: %w", err)
	}
	if err := gst.ElementLinkMany(src.Element, converter, sink); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	slog.Debug("gstsink: pipeline created", "element", element, "caps", caps)
	return &pipelineElements{pipeline: pipeline, src: src, sink: sink}, nil
}

// destroyPipeline sets the pipeline to NULL. Safe on nil.
func destroyPipeline(elements *pipelineElements) error {
	if elements == nil || elements.pipeline == nil {
		return nil
	}
	if err := elements.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("failed to set pipeline to NULL: %w", err)
	}
	return nil
}

// buildCaps returns the raw video caps for a format and frame duration.
// The framerate fraction is the inverse of the duration (1/30 s → 30/1,
// 1001/30000 s → 30000/1001).
func buildCaps(vf frame.VideoFormat, duration timing.Time) string {
	num, den := 0, 1
	if duration.Valid() && duration.Value > 0 {
		num, den = int(duration.Scale), int(duration.Value)
	}
	return fmt.Sprintf(
		"video/x-raw,format=%s,width=%d,height=%d,framerate=%d/%d",
		vf.PixelFormat.GstName(), vf.Width, vf.Height, num, den,
	)
}
