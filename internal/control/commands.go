// Package control exposes the stream configuration surface over MQTT and HTTP.
package control

import (
	"fmt"

	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/frame"
	"github.com/e7canasta/orion-care-sensor/modules/vcam/internal/stream"
)

// Controller is the configuration surface of one stream
type Controller interface {
	Start() bool
	Stop() bool
	Running() bool
	Broadcasting() bool
	SetBroadcasting(on bool)
	SetMirror(horizontal, vertical bool)
	SetScaling(s frame.Scaling)
	SetAspectRatio(a frame.AspectRatio)
	SetFrameRate(fps float64) bool
	SetFormat(vf frame.VideoFormat) bool
	Format() frame.VideoFormat
	Mirror() (horizontal, vertical bool)
	Scaling() frame.Scaling
	AspectRatio() frame.AspectRatio
	Stats() stream.Stats
}

// Commands understood by Apply
const (
	CmdStart           = "start"
	CmdStop            = "stop"
	CmdGetStatus       = "get_status"
	CmdSetBroadcasting = "set_broadcasting"
	CmdSetMirror       = "set_mirror"
	CmdSetScaling      = "set_scaling"
	CmdSetAspectRatio  = "set_aspect_ratio"
	CmdSetFrameRate    = "set_frame_rate"
	CmdSetFormat       = "set_format"
)

// Apply executes one command against the controller and returns the
// resulting state. Params are JSON-decoded values (numbers are float64).
func Apply(ctrl Controller, command string, params map[string]interface{}) (map[string]interface{}, error) {
	switch command {
	case CmdStart:
		if !ctrl.Start() {
			return nil, fmt.Errorf("stream not started (already running or no format)")
		}
		return map[string]interface{}{"running": true}, nil

	case CmdStop:
		if !ctrl.Stop() {
			return nil, fmt.Errorf("stream not running")
		}
		return map[string]interface{}{"running": false}, nil

	case CmdGetStatus:
		return Status(ctrl), nil

	case CmdSetBroadcasting:
		on, ok := params["enabled"].(bool)
		if !ok {
			return nil, fmt.Errorf("missing or invalid 'enabled' parameter (expected bool)")
		}
		ctrl.SetBroadcasting(on)
		return map[string]interface{}{"broadcasting": ctrl.Broadcasting()}, nil

	case CmdSetMirror:
		h, v := ctrl.Mirror()
		if val, ok := params["horizontal"]; ok {
			if h, ok = val.(bool); !ok {
				return nil, fmt.Errorf("invalid 'horizontal' parameter (expected bool)")
			}
		}
		if val, ok := params["vertical"]; ok {
			if v, ok = val.(bool); !ok {
				return nil, fmt.Errorf("invalid 'vertical' parameter (expected bool)")
			}
		}
		ctrl.SetMirror(h, v)
		return map[string]interface{}{"horizontal_mirror": h, "vertical_mirror": v}, nil

	case CmdSetScaling:
		mode, _ := params["mode"].(string)
		s, err := frame.ParseScaling(mode)
		if err != nil {
			return nil, err
		}
		ctrl.SetScaling(s)
		return map[string]interface{}{"scaling": s.String()}, nil

	case CmdSetAspectRatio:
		mode, _ := params["mode"].(string)
		a, err := frame.ParseAspectRatio(mode)
		if err != nil {
			return nil, err
		}
		ctrl.SetAspectRatio(a)
		return map[string]interface{}{"aspect_ratio": a.String()}, nil

	case CmdSetFrameRate:
		fps, ok := params["fps"].(float64)
		if !ok {
			return nil, fmt.Errorf("missing or invalid 'fps' parameter (expected number)")
		}
		if !ctrl.SetFrameRate(fps) {
			return nil, fmt.Errorf("invalid frame rate %v", fps)
		}
		return map[string]interface{}{"frame_rate": fps}, nil

	case CmdSetFormat:
		vf, err := formatFromParams(params)
		if err != nil {
			return nil, err
		}
		if !ctrl.SetFormat(vf) {
			return nil, fmt.Errorf("format %s rejected", vf)
		}
		return map[string]interface{}{"format": ctrl.Format().String()}, nil

	default:
		return nil, fmt.Errorf("unknown command: %s", command)
	}
}

// Status summarizes the stream configuration and counters
func Status(ctrl Controller) map[string]interface{} {
	h, v := ctrl.Mirror()
	st := ctrl.Stats()
	return map[string]interface{}{
		"running":           st.Running,
		"broadcasting":      st.Broadcasting,
		"format":            st.Format,
		"frame_rate":        st.FrameRate,
		"horizontal_mirror": h,
		"vertical_mirror":   v,
		"scaling":           ctrl.Scaling().String(),
		"aspect_ratio":      ctrl.AspectRatio().String(),
		"emitted":           st.Emitted,
		"queue_drops":       st.QueueDrops,
		"discontinuities":   st.Discontinuities,
		"queue_fullness":    st.QueueFullness,
		"cadence_stable":    st.Cadence.IsStable,
	}
}

func formatFromParams(params map[string]interface{}) (frame.VideoFormat, error) {
	name, _ := params["pixel_format"].(string)
	pf, err := frame.ParsePixelFormat(name)
	if err != nil {
		return frame.VideoFormat{}, err
	}
	w, _ := params["width"].(float64)
	h, _ := params["height"].(float64)

	var rates []float64
	if raw, ok := params["frame_rates"].([]interface{}); ok {
		for _, r := range raw {
			fps, ok := r.(float64)
			if !ok {
				return frame.VideoFormat{}, fmt.Errorf("invalid 'frame_rates' entry %v", r)
			}
			rates = append(rates, fps)
		}
	}

	vf := frame.VideoFormat{PixelFormat: pf, Width: int(w), Height: int(h), FrameRates: rates}
	if !vf.Valid() {
		return frame.VideoFormat{}, fmt.Errorf("invalid format %s", vf)
	}
	return vf, nil
}
