package rasterfn

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// Transform is a raster function as seen by the engine before it is bound
// to an output raster.
type Transform interface {
	Name() string
	Description() string

	// Parameters describes the inputs; it has no side effects.
	Parameters() []Parameter

	// Configuration returns the inherit/invalidate flags for the engine.
	Configuration(scalars Scalars) Configuration

	// Negotiate is called once per opened output raster. It fixes all derived
	// state in the returned Producer.
	Negotiate(ctx context.Context, in RasterInfoInput) (RasterInfo, Producer, error)

	// KeyMetadata annotates the raster (bandIndex -1) or a band.
	KeyMetadata(names []string, bandIndex int, md KeyMetadata) KeyMetadata
}

// Producer computes output tiles from the configuration fixed at
// negotiation. UpdatePixels must be safe for concurrent use and must not
// modify the input blocks.
type Producer interface {
	UpdatePixels(ctx context.Context, tile TileRequest, inputs Blocks) (*Block, error)
}

// State is the lifecycle state of a Function.
type State int

// lifecycle states
const (
	Unconfigured State = iota
	Configured
	Active
	Closed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Active:
		return "active"
	case Closed:
		return "closed"
	}
	return "unknown"
}

/*
Function drives one Transform through the engine lifecycle:
describe -> configure -> negotiate raster info -> (produce pixels |
annotate key metadata)*. Pixel production only reads the negotiated
producer and may run concurrently for disjoint tiles.
*/
type Function struct {
	transform Transform

	mu       sync.RWMutex
	state    State
	scalars  Scalars
	config   Configuration
	info     RasterInfo
	producer Producer
}

// New wraps t in an unconfigured Function.
func New(t Transform) *Function {
	return &Function{transform: t}
}

// Name returns the transform name.
func (f *Function) Name() string {
	return f.transform.Name()
}

// State returns the current lifecycle state.
func (f *Function) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

// Parameters describes the inputs of the transform.
func (f *Function) Parameters() []Parameter {
	return f.transform.Parameters()
}

// Configure stores the scalar parameters and returns the engine configuration.
func (f *Function) Configure(scalars Scalars) (Configuration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Unconfigured && f.state != Configured {
		return Configuration{}, &StateError{Op: "configure", State: f.state}
	}
	f.scalars = scalars
	f.config = f.transform.Configuration(scalars)
	f.state = Configured
	return f.config, nil
}

/*
UpdateRasterInfo negotiates the output raster for the primary input. A
repeated call (raster re-open) replaces the negotiated producer.
*/
func (f *Function) UpdateRasterInfo(ctx context.Context, input RasterDescriptor) (RasterInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != Configured && f.state != Active {
		return RasterInfo{}, &StateError{Op: "update raster info", State: f.state}
	}

	info, producer, err := f.transform.Negotiate(ctx, RasterInfoInput{Input: input, Scalars: f.scalars})
	if err != nil {
		return RasterInfo{}, err
	}
	if info.Histogram == nil {
		info.Histogram = []Histogram{}
	}

	if err := closeProducer(f.producer); err != nil {
		slog.Warn("error closing replaced producer", "function", f.transform.Name(), "error", err)
	}
	f.info = info
	f.producer = producer
	f.state = Active
	slog.Debug("raster info negotiated", "function", f.transform.Name(), "spatial reference", input.SpatialReference.String(),
		"band count", info.BandCount, "pixel type", info.PixelType)
	return info, nil
}

// RasterInfo returns the negotiated output raster description.
func (f *Function) RasterInfo() (RasterInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.state != Active {
		return RasterInfo{}, &StateError{Op: "raster info", State: f.state}
	}
	return f.info, nil
}

// UpdatePixels produces one output tile.
func (f *Function) UpdatePixels(ctx context.Context, tile TileRequest, inputs Blocks) (*Block, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.state != Active {
		return nil, &StateError{Op: "update pixels", State: f.state}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.producer.UpdatePixels(ctx, tile, inputs)
}

// UpdateKeyMetadata annotates the raster (bandIndex -1) or a band.
func (f *Function) UpdateKeyMetadata(names []string, bandIndex int, md KeyMetadata) (KeyMetadata, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if f.state != Active {
		return nil, &StateError{Op: "update key metadata", State: f.state}
	}
	return f.transform.KeyMetadata(names, bandIndex, md), nil
}

// Close releases the negotiated producer. It waits for running tiles.
func (f *Function) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == Closed {
		return nil
	}
	err := closeProducer(f.producer)
	f.producer = nil
	f.state = Closed
	return err
}

func closeProducer(p Producer) error {
	if closer, ok := p.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
