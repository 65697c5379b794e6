// Package overlay provides a two-input processing unit that alpha-blends an
// overlay frame onto a base frame.
package overlay

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/component"
	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/stage"
)

// TypeName is the registered type name.
const TypeName = "overlay"

// Endpoint names.
const (
	InputBase    = "base"
	InputOverlay = "overlay"
	OutputFrame  = "composited"
)

// Property names.
const (
	PropAlpha  = "alpha"
	PropFrames = "frames"
)

// DefaultAlpha weighs both inputs equally.
const DefaultAlpha = 0.5

// Format is the accepted frame format on every endpoint.
var Format = caps.MustParse("video/x-raw, format=(string)RGBA, width=(int)[ 1, 4096 ], height=(int)[ 1, 4096 ]")

// Unit blends overlay onto base with a configurable weight. Both frames
// must be the same size. Alpha is read under the stage's processing lock.
type Unit struct {
	alpha  float64
	frames atomic.Int64
}

// New returns a unit with the default alpha.
func New() *Unit {
	return &Unit{alpha: DefaultAlpha}
}

// Endpoints declares base and overlay inputs and the composited output.
func (u *Unit) Endpoints() (inputs, outputs []endpoint.Template) {
	return []endpoint.Template{
			{Name: InputBase, Format: Format, Description: "Background frame"},
			{Name: InputOverlay, Format: Format, Description: "Frame blended on top"},
		}, []endpoint.Template{
			{Name: OutputFrame, Format: Format, Description: "Blended frame"},
		}
}

// Properties declares alpha and the read-only frame counter.
func (u *Unit) Properties() []stage.PropertySpec {
	return []stage.PropertySpec{
		{
			Name:        PropAlpha,
			Nick:        "Alpha",
			Description: "Weight of the overlay frame",
			Kind:        stage.PropertyFloat,
			Flags:       stage.PropertyReadWrite,
			Default:     DefaultAlpha,
			Min:         0,
			Max:         1,
		},
		{
			Name:        PropFrames,
			Nick:        "Frames",
			Description: "Frames blended since the last start",
			Kind:        stage.PropertyInt,
			Flags:       stage.PropertyReadable,
			Default:     0,
		},
	}
}

// SetProperty applies an already validated value.
func (u *Unit) SetProperty(name string, v any) error {
	switch name {
	case PropAlpha:
		u.alpha = v.(float64)
		return nil
	}
	return fmt.Errorf("property %q is not settable", name)
}

// Property returns a property value.
func (u *Unit) Property(name string) (any, error) {
	switch name {
	case PropAlpha:
		return u.alpha, nil
	case PropFrames:
		return int(u.frames.Load()), nil
	}
	return nil, fmt.Errorf("unknown property %q", name)
}

// Start resets the frame counter.
func (u *Unit) Start(context.Context) error {
	u.frames.Store(0)
	return nil
}

// Process blends inputs[1] onto inputs[0] into outputs[0].
func (u *Unit) Process(inputs, outputs []*media.Buffer) error {
	base, over := inputs[0], inputs[1]
	if base.Size() != over.Size() {
		return fmt.Errorf("frame size mismatch: base %d bytes, overlay %d bytes", base.Size(), over.Size())
	}
	if base.Size()%4 != 0 {
		return fmt.Errorf("frame of %d bytes is not RGBA", base.Size())
	}

	out := outputs[0]
	out.CopyMetadata(base)
	out.Data = Blend(base.Data, over.Data, u.alpha)
	u.frames.Add(1)
	return nil
}

// Metadata describes the unit.
func (u *Unit) Metadata() stage.Metadata {
	md := stage.DefaultMetadata()
	md.LongName = "Overlay"
	md.Description = "Blends an overlay frame onto a base frame of the same size"
	return md
}

// Blend mixes two equally sized byte slices channel by channel:
// out = base*(1-alpha) + over*alpha, rounded to nearest.
func Blend(base, over []byte, alpha float64) []byte {
	out := make([]byte, len(base))
	for i := range base {
		v := float64(base[i])*(1-alpha) + float64(over[i])*alpha
		out[i] = byte(math.Round(math.Min(255, math.Max(0, v))))
	}
	return out
}

// Register registers the overlay type with the registry.
func Register(registry *component.Registry) error {
	md := New().Metadata()
	_, err := registry.RegisterOnce(component.Registration{
		Name:           TypeName,
		Category:       "tchoverlay",
		LongName:       md.LongName,
		Classification: md.Classification,
		Description:    md.Description,
		Version:        "0.1.0",
		Factory:        func() (stage.Unit, error) { return New(), nil },
	})
	return err
}
