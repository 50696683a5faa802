// Package memory implements the per-worker logical memory pool: a
// process-local byte-buffer allocator with ownership and capacity
// invariants. All protection is enforced here, not by the OS or MMU.
//
// Not thread-safe. A Pool belongs exclusively to one
// scheduler.Scheduler, which serializes all access by construction
// (one scheduler per worker, never shared across workers).
package memory

import (
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/merrors"
)

// Region describes one allocated logical memory region. Its identity is
// its ID; the owning pool exclusively holds the backing buffer.
type Region struct {
	ID          string
	OwnerTaskID string
	Size        int
	ReadOnly    bool
}

// Pool is a bounded logical memory allocator for a single worker.
type Pool struct {
	maxBytes  int
	usedBytes int
	regions   map[string]*Region
	storage   map[string][]byte
}

// New creates a pool with the given total byte capacity.
func New(maxBytes int) *Pool {
	return &Pool{
		maxBytes: maxBytes,
		regions:  make(map[string]*Region),
		storage:  make(map[string][]byte),
	}
}

// Alloc creates a new region. Fails if size <= 0, if it would overflow
// max_bytes, or if regionID already exists.
func (p *Pool) Alloc(regionID, ownerTaskID string, size int) (*Region, error) {
	if size <= 0 {
		return nil, merrors.Wrap(merrors.ErrMemoryLogical, "size must be > 0")
	}
	if p.usedBytes+size > p.maxBytes {
		return nil, merrors.Wrapf(merrors.ErrMemoryLogical,
			"out of logical memory: need %dB, have %dB free", size, p.maxBytes-p.usedBytes)
	}
	if _, exists := p.regions[regionID]; exists {
		return nil, merrors.Wrapf(merrors.ErrMemoryLogical, "region %q already exists", regionID)
	}

	region := &Region{ID: regionID, OwnerTaskID: ownerTaskID, Size: size}
	p.regions[regionID] = region
	p.storage[regionID] = make([]byte, size)
	p.usedBytes += size
	return region, nil
}

// Free releases a region. The requester must be the region's owner;
// ownership is not required for Read.
func (p *Pool) Free(regionID, requesterTaskID string) error {
	region, err := p.requireRegion(regionID)
	if err != nil {
		return err
	}
	if err := ensureOwner(region, requesterTaskID); err != nil {
		return err
	}
	p.usedBytes -= region.Size
	delete(p.regions, regionID)
	delete(p.storage, regionID)
	return nil
}

// Read returns length bytes starting at offset. No ownership check:
// any task may observe any region.
func (p *Pool) Read(regionID string, offset, length int) ([]byte, error) {
	region, err := p.requireRegion(regionID)
	if err != nil {
		return nil, err
	}
	if err := ensureBounds(region, offset, length); err != nil {
		return nil, err
	}
	buf := p.storage[regionID]
	out := make([]byte, length)
	copy(out, buf[offset:offset+length])
	return out, nil
}

// Write overwrites data starting at offset. Fails on a read-only region,
// an owner mismatch, or an out-of-bounds access.
func (p *Pool) Write(regionID, requesterTaskID string, offset int, data []byte) error {
	region, err := p.requireRegion(regionID)
	if err != nil {
		return err
	}
	if region.ReadOnly {
		return merrors.Wrapf(merrors.ErrMemoryLogical, "region %q is read-only", regionID)
	}
	if err := ensureOwner(region, requesterTaskID); err != nil {
		return err
	}
	if err := ensureBounds(region, offset, len(data)); err != nil {
		return err
	}
	buf := p.storage[regionID]
	copy(buf[offset:offset+len(data)], data)
	return nil
}

// UsedBytes returns the sum of all live region sizes.
func (p *Pool) UsedBytes() int { return p.usedBytes }

// FreeBytes returns remaining capacity.
func (p *Pool) FreeBytes() int { return p.maxBytes - p.usedBytes }

// RegionCount returns the number of live regions.
func (p *Pool) RegionCount() int { return len(p.regions) }

func (p *Pool) requireRegion(regionID string) (*Region, error) {
	region, ok := p.regions[regionID]
	if !ok {
		return nil, merrors.Wrapf(merrors.ErrMemoryLogical, "unknown region %q", regionID)
	}
	return region, nil
}

func ensureBounds(region *Region, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > region.Size {
		return merrors.Wrapf(merrors.ErrMemoryLogical,
			"out-of-bounds access: offset=%d length=%d region_size=%d", offset, length, region.Size)
	}
	return nil
}

func ensureOwner(region *Region, requesterTaskID string) error {
	if region.OwnerTaskID != requesterTaskID {
		return merrors.Wrapf(merrors.ErrMemoryLogical,
			"owner mismatch: region owned by %q, requested by %q", region.OwnerTaskID, requesterTaskID)
	}
	return nil
}

// FreeTask releases every region owned by taskID. Called by the scheduler
// when a task reaches a terminal state, so abandoned memory never leaks
// past the task's lifetime.
func (p *Pool) FreeTask(taskID string) {
	for id, region := range p.regions {
		if region.OwnerTaskID == taskID {
			p.usedBytes -= region.Size
			delete(p.regions, id)
			delete(p.storage, id)
		}
	}
}
