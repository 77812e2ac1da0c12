package runner

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-dualgen/asyncify"
	"github.com/wippyai/wasm-dualgen/errors"
)

// Default placement of the asyncify data area in linear memory.
const (
	DefaultDataAddr  uint32 = 16
	DefaultStackSize uint32 = 1024
)

// Driver calls the asyncify helper exports of one module instance and
// tracks the state they set.
//
// Memory layout at dataAddr:
//   - [0:4] frame stack pointer (grows upward from dataAddr+8)
//   - [4:8] frame stack end
//   - [8:8+stackSize] saved frames
type Driver struct {
	exports struct {
		getState    api.Function
		startUnwind api.Function
		stopUnwind  api.Function
		startRewind api.Function
		stopRewind  api.Function
	}
	memory    api.Memory
	mu        sync.Mutex
	state     int32
	dataAddr  uint32
	stackSize uint32
}

// NewDriver creates a driver for the data area at dataAddr. Zero values
// select the defaults.
func NewDriver(dataAddr, stackSize uint32) *Driver {
	if dataAddr == 0 {
		dataAddr = DefaultDataAddr
	}
	if stackSize == 0 {
		stackSize = DefaultStackSize
	}
	return &Driver{dataAddr: dataAddr, stackSize: stackSize}
}

// Init binds the driver to mod and writes the data area header.
func (d *Driver) Init(mod api.Module) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.memory = mod.Memory()
	if d.memory == nil {
		return errors.New(errors.PhaseVerify, errors.KindNotFound).
			Detail("module has no memory export").
			Build()
	}

	d.exports.getState = mod.ExportedFunction(asyncify.ExportGetState)
	d.exports.startUnwind = mod.ExportedFunction(asyncify.ExportStartUnwind)
	d.exports.stopUnwind = mod.ExportedFunction(asyncify.ExportStopUnwind)
	d.exports.startRewind = mod.ExportedFunction(asyncify.ExportStartRewind)
	d.exports.stopRewind = mod.ExportedFunction(asyncify.ExportStopRewind)

	for name, fn := range map[string]api.Function{
		asyncify.ExportGetState:    d.exports.getState,
		asyncify.ExportStartUnwind: d.exports.startUnwind,
		asyncify.ExportStopUnwind:  d.exports.stopUnwind,
		asyncify.ExportStartRewind: d.exports.startRewind,
		asyncify.ExportStopRewind:  d.exports.stopRewind,
	} {
		if fn == nil {
			return errors.NotFound(errors.PhaseVerify, "export", name)
		}
	}

	stackPtr := d.dataAddr + 8
	stackEnd := stackPtr + d.stackSize
	if !d.memory.WriteUint32Le(d.dataAddr, stackPtr) || !d.memory.WriteUint32Le(d.dataAddr+4, stackEnd) {
		return errors.New(errors.PhaseVerify, errors.KindInvalidState).
			Value(d.dataAddr).
			Detail("data area at %d does not fit in memory", d.dataAddr).
			Build()
	}
	return nil
}

// State returns the last state set through the driver.
func (d *Driver) State() int32 { return atomic.LoadInt32(&d.state) }

func (d *Driver) IsNormal() bool    { return d.State() == asyncify.StateNormal }
func (d *Driver) IsUnwinding() bool { return d.State() == asyncify.StateUnwinding }
func (d *Driver) IsRewinding() bool { return d.State() == asyncify.StateRewinding }

// SyncState reads the state global through asyncify_get_state.
func (d *Driver) SyncState(ctx context.Context) (int32, error) {
	results, err := d.exports.getState.Call(ctx)
	if err != nil {
		return 0, err
	}
	state := int32(results[0])
	atomic.StoreInt32(&d.state, state)
	return state, nil
}

func (d *Driver) StartUnwind(ctx context.Context) error {
	return d.transition(ctx, d.exports.startUnwind, asyncify.StateUnwinding, uint64(d.dataAddr))
}

func (d *Driver) StopUnwind(ctx context.Context) error {
	return d.transition(ctx, d.exports.stopUnwind, asyncify.StateNormal)
}

func (d *Driver) StartRewind(ctx context.Context) error {
	return d.transition(ctx, d.exports.startRewind, asyncify.StateRewinding, uint64(d.dataAddr))
}

func (d *Driver) StopRewind(ctx context.Context) error {
	return d.transition(ctx, d.exports.stopRewind, asyncify.StateNormal)
}

func (d *Driver) transition(ctx context.Context, fn api.Function, state int32, args ...uint64) error {
	if _, err := fn.Call(ctx, args...); err != nil {
		return err
	}
	atomic.StoreInt32(&d.state, state)
	return nil
}

// ResetStack empties the frame stack. Call before each top-level call.
func (d *Driver) ResetStack() {
	if d.memory == nil {
		return
	}
	stackPtr := d.dataAddr + 8
	if !d.memory.WriteUint32Le(d.dataAddr, stackPtr) {
		Logger().Warn("reset stack: failed to write stack pointer",
			zap.Uint32("data_addr", d.dataAddr),
			zap.Uint32("stack_ptr", stackPtr))
	}
}

// StackPointer reads the current frame stack pointer.
func (d *Driver) StackPointer() (uint32, bool) {
	if d.memory == nil {
		return 0, false
	}
	return d.memory.ReadUint32Le(d.dataAddr)
}
