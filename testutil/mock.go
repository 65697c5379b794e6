package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/zipstage/caps"
	"github.com/c360/zipstage/endpoint"
	"github.com/c360/zipstage/media"
	"github.com/c360/zipstage/protocol"
	"github.com/c360/zipstage/stage"
)

// Pushed is one buffer delivered to an output.
type Pushed struct {
	Output string
	Buffer *media.Buffer
}

// Announced is one event sent downstream of an output.
type Announced struct {
	Output string
	Event  protocol.Event
}

// MockHost records what a stage sends to its host.
type MockHost struct {
	mu sync.Mutex

	// PushErr, when set, decides the error returned for a push to an output.
	PushErr     func(out endpoint.Endpoint) error
	AnnounceErr error

	pushes    []Pushed
	announced []Announced
	errs      []error
}

// NewMockHost creates an empty host.
func NewMockHost() *MockHost {
	return &MockHost{}
}

// Push records buf.
func (h *MockHost) Push(_ context.Context, out endpoint.Endpoint, buf *media.Buffer) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.PushErr != nil {
		if err := h.PushErr(out); err != nil {
			return err
		}
	}
	h.pushes = append(h.pushes, Pushed{Output: out.Name, Buffer: buf})
	return nil
}

// Announce records ev.
func (h *MockHost) Announce(_ context.Context, out endpoint.Endpoint, ev protocol.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.AnnounceErr != nil {
		return h.AnnounceErr
	}
	h.announced = append(h.announced, Announced{Output: out.Name, Event: ev})
	return nil
}

// PostError records err.
func (h *MockHost) PostError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs = append(h.errs, err)
}

// Pushes returns a copy of every recorded push, in order.
func (h *MockHost) Pushes() []Pushed {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Pushed, len(h.pushes))
	copy(out, h.pushes)
	return out
}

// PushesTo returns the buffers pushed to one output.
func (h *MockHost) PushesTo(output string) []*media.Buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*media.Buffer
	for _, p := range h.pushes {
		if p.Output == output {
			out = append(out, p.Buffer)
		}
	}
	return out
}

// Announced returns a copy of every announced event.
func (h *MockHost) Announced() []Announced {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Announced, len(h.announced))
	copy(out, h.announced)
	return out
}

// Errors returns a copy of every posted error.
func (h *MockHost) Errors() []error {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]error, len(h.errs))
	copy(out, h.errs)
	return out
}

// Reset forgets everything recorded.
func (h *MockHost) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes, h.announced, h.errs = nil, nil, nil
}

// MockUnit is a scriptable processing unit.
type MockUnit struct {
	mu sync.Mutex

	Inputs  []endpoint.Template
	Outputs []endpoint.Template

	ProcessFunc   func(inputs, outputs []*media.Buffer) error
	PrepareFunc   func(ctx context.Context) error
	UnprepareFunc func(ctx context.Context) error
	StartFunc     func(ctx context.Context) error
	StopFunc      func(ctx context.Context) error

	// Props declares properties; values live in Values.
	Props  []stage.PropertySpec
	Values map[string]any

	PrepareCalls   int
	UnprepareCalls int
	StartCalls     int
	StopCalls      int
	ProcessCalls   int
	Processed      [][]*media.Buffer
}

// NewMockUnit creates a unit with the given input and output names, all
// accepting any format. Process copies input i to output i when both exist.
func NewMockUnit(inputs, outputs []string) *MockUnit {
	u := &MockUnit{Values: map[string]any{}}
	for _, n := range inputs {
		u.Inputs = append(u.Inputs, endpoint.Template{Name: n, Format: caps.Any()})
	}
	for _, n := range outputs {
		u.Outputs = append(u.Outputs, endpoint.Template{Name: n, Format: caps.Any()})
	}
	return u
}

// Endpoints returns the configured templates.
func (u *MockUnit) Endpoints() (inputs, outputs []endpoint.Template) {
	return u.Inputs, u.Outputs
}

// Process records the tuple and runs ProcessFunc.
func (u *MockUnit) Process(inputs, outputs []*media.Buffer) error {
	u.mu.Lock()
	u.ProcessCalls++
	u.Processed = append(u.Processed, append([]*media.Buffer(nil), inputs...))
	fn := u.ProcessFunc
	u.mu.Unlock()

	if fn != nil {
		return fn(inputs, outputs)
	}
	for i := range outputs {
		if i < len(inputs) {
			outputs[i] = inputs[i].Clone()
		}
	}
	return nil
}

// Prepare counts the call and runs PrepareFunc.
func (u *MockUnit) Prepare(ctx context.Context) error {
	u.mu.Lock()
	u.PrepareCalls++
	u.mu.Unlock()
	if u.PrepareFunc != nil {
		return u.PrepareFunc(ctx)
	}
	return nil
}

// Unprepare counts the call and runs UnprepareFunc.
func (u *MockUnit) Unprepare(ctx context.Context) error {
	u.mu.Lock()
	u.UnprepareCalls++
	u.mu.Unlock()
	if u.UnprepareFunc != nil {
		return u.UnprepareFunc(ctx)
	}
	return nil
}

// Start counts the call and runs StartFunc.
func (u *MockUnit) Start(ctx context.Context) error {
	u.mu.Lock()
	u.StartCalls++
	u.mu.Unlock()
	if u.StartFunc != nil {
		return u.StartFunc(ctx)
	}
	return nil
}

// Stop counts the call and runs StopFunc.
func (u *MockUnit) Stop(ctx context.Context) error {
	u.mu.Lock()
	u.StopCalls++
	u.mu.Unlock()
	if u.StopFunc != nil {
		return u.StopFunc(ctx)
	}
	return nil
}

// Properties returns Props.
func (u *MockUnit) Properties() []stage.PropertySpec {
	return u.Props
}

// SetProperty stores v.
func (u *MockUnit) SetProperty(name string, v any) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, p := range u.Props {
		if p.Name == name {
			u.Values[name] = v
			return nil
		}
	}
	return fmt.Errorf("no property %q", name)
}

// Property returns the stored value or the declared default.
func (u *MockUnit) Property(name string) (any, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if v, ok := u.Values[name]; ok {
		return v, nil
	}
	for _, p := range u.Props {
		if p.Name == name {
			return p.Default, nil
		}
	}
	return nil, fmt.Errorf("no property %q", name)
}

// Calls returns hook counters under the lock.
func (u *MockUnit) Calls() (prepare, unprepare, start, stop, process int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.PrepareCalls, u.UnprepareCalls, u.StartCalls, u.StopCalls, u.ProcessCalls
}

// Buffer builds a buffer carrying payload with the given PTS in nanoseconds.
func Buffer(payload string, pts int64) *media.Buffer {
	b := media.FromBytes([]byte(payload))
	b.PTS = media.ClockTime(pts)
	return b
}

// Payloads returns the payload strings of bufs.
func Payloads(bufs []*media.Buffer) []string {
	out := make([]string, len(bufs))
	for i, b := range bufs {
		if b != nil {
			out[i] = string(b.Data)
		}
	}
	return out
}
