package native

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	gamekit "github.com/aws/aws-gamekit-unity-sub001"
	"github.com/aws/aws-gamekit-unity-sub001/errors"
)

// Memory adapts a wazero linear memory to gamekit.Memory.
//
// Growing a wazero memory may move its buffer, so every access holds guard
// for reading and anything that can grow the memory (the runtime heap, a
// call into guest code) holds it for writing.
type Memory struct {
	mem   api.Memory
	guard *sync.RWMutex
}

// NewMemory wraps mem.
func NewMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem, guard: &sync.RWMutex{}}
}

// exclusive runs fn with every other access to the memory blocked.
func (m *Memory) exclusive(fn func()) {
	m.guard.Lock()
	defer m.guard.Unlock()
	fn()
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	m.guard.RLock()
	defer m.guard.RUnlock()
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseBoundary, nil, offset, length)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	m.guard.RLock()
	defer m.guard.RUnlock()
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseBoundary, nil, offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU8(offset uint32) (uint8, error) {
	m.guard.RLock()
	defer m.guard.RUnlock()
	v, ok := m.mem.ReadByte(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 1)
	}
	return v, nil
}

func (m *Memory) ReadU16(offset uint32) (uint16, error) {
	m.guard.RLock()
	defer m.guard.RUnlock()
	v, ok := m.mem.ReadUint16Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 2)
	}
	return v, nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	m.guard.RLock()
	defer m.guard.RUnlock()
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 4)
	}
	return v, nil
}

func (m *Memory) ReadU64(offset uint32) (uint64, error) {
	m.guard.RLock()
	defer m.guard.RUnlock()
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 8)
	}
	return v, nil
}

func (m *Memory) WriteU8(offset uint32, value uint8) error {
	m.guard.RLock()
	defer m.guard.RUnlock()
	if !m.mem.WriteByte(offset, value) {
		return errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 1)
	}
	return nil
}

func (m *Memory) WriteU16(offset uint32, value uint16) error {
	m.guard.RLock()
	defer m.guard.RUnlock()
	if !m.mem.WriteUint16Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 2)
	}
	return nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	m.guard.RLock()
	defer m.guard.RUnlock()
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 4)
	}
	return nil
}

func (m *Memory) WriteU64(offset uint32, value uint64) error {
	m.guard.RLock()
	defer m.guard.RUnlock()
	if !m.mem.WriteUint64Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseBoundary, nil, offset, 8)
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	m.guard.RLock()
	defer m.guard.RUnlock()
	return m.mem.Size()
}

var (
	_ gamekit.Memory      = (*Memory)(nil)
	_ gamekit.MemorySizer = (*Memory)(nil)
)
