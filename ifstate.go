package usbdevice

import "sync"

// ifStatus is the per-interface tagged variant of spec.md §3, encoded as a
// small enum the way go-ublk's runner.go encodes per-tag I/O states. claim
// switches over all three states, with AVAILABLE as its default branch.
type ifStatus uint8

const (
	ifAvailable ifStatus = iota
	ifClaimed
	ifChildDevice
)

// ifEntry pairs a status with the child that owns it, if any. Only
// ifChildDevice entries carry a non-nil child.
type ifEntry struct {
	status ifStatus
	child  ChildHandle
}

// assocEntry records an Interface Association child's interface range so
// set_interface can find the owning child for an iid covered by an
// association. Per spec.md §4.3, associations do not change ifEntry status
// for their member interfaces, so this is tracked separately.
type assocEntry struct {
	first, count uint8
	child        ChildHandle
}

// interfaceStatusTable is C2: a per-interface-number state machine guarded
// by a single mutex, sized to the active configuration's bNumInterfaces.
// All mutations — status and children-set alike — happen under this one
// lock, per spec.md §3 invariant 5 and §5's "interface mutex".
type interfaceStatusTable struct {
	mu           sync.Mutex
	entries      []ifEntry
	associations []assocEntry
	spawner      ChildSpawner
}

func newInterfaceStatusTable(numInterfaces int, spawner ChildSpawner) *interfaceStatusTable {
	return &interfaceStatusTable{
		entries: make([]ifEntry, numInterfaces),
		spawner: spawner,
	}
}

func (t *interfaceStatusTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

func (t *interfaceStatusTable) statusOf(iid uint8) (ifStatus, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(iid) >= len(t.entries) {
		return 0, false
	}
	return t.entries[iid].status, true
}

// claim implements spec.md §4.2's claim(iid): CLAIMED is a hard failure,
// CHILD_DEVICE requires tearing down the existing child first, AVAILABLE
// transitions straight to CLAIMED.
func (t *interfaceStatusTable) claim(iid uint8) error {
	t.mu.Lock()
	if int(iid) >= len(t.entries) {
		t.mu.Unlock()
		return newError("claim_interface", KindInvalidArgs, nil)
	}
	switch t.entries[iid].status {
	case ifClaimed:
		t.mu.Unlock()
		return newError("claim_interface", KindAlreadyBound, nil)
	case ifChildDevice:
		child := t.entries[iid].child
		t.mu.Unlock()
		if child == nil {
			return newError("claim_interface", KindBadState, nil)
		}
		if err := t.spawner.RemoveChild(child); err != nil {
			return newError("claim_interface", KindBadState, err)
		}
		t.mu.Lock()
		t.entries[iid] = ifEntry{status: ifClaimed}
		t.mu.Unlock()
		return nil
	default: // ifAvailable
		t.entries[iid] = ifEntry{status: ifClaimed}
		t.mu.Unlock()
		return nil
	}
}

// finishChildPublish implements the second half of the walker's
// per-interface branch (spec.md §4.3): having already published child
// outside the lock, re-acquire it and check whether a concurrent claim won
// the race. If so, the caller must tear child back down and the status
// stays CLAIMED; otherwise the entry transitions to CHILD_DEVICE.
func (t *interfaceStatusTable) finishChildPublish(iid uint8, child ChildHandle) (needsRemoval bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(iid) >= len(t.entries) {
		return true
	}
	if t.entries[iid].status == ifClaimed {
		return true
	}
	t.entries[iid] = ifEntry{status: ifChildDevice, child: child}
	return false
}

// addAssociation records a published association child's interface range.
func (t *interfaceStatusTable) addAssociation(first, count uint8, child ChildHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.associations = append(t.associations, assocEntry{first: first, count: count, child: child})
}

// findOwner locates the child that owns iid, whether it was published as a
// standalone interface child or as part of an interface association,
// reporting false if no such child currently exists.
func (t *interfaceStatusTable) findOwner(iid uint8) (ChildHandle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if int(iid) < len(t.entries) && t.entries[iid].status == ifChildDevice && t.entries[iid].child != nil {
		return t.entries[iid].child, true
	}
	for _, a := range t.associations {
		if iid >= a.first && iid < a.first+a.count {
			return a.child, true
		}
	}
	return nil, false
}

// reset reallocates the table to a new size, all entries AVAILABLE, used by
// set_configuration teardown (spec.md §4.7). Initial enumeration builds its
// table with newInterfaceStatusTable instead.
func (t *interfaceStatusTable) reset(numInterfaces int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make([]ifEntry, numInterfaces)
	t.associations = nil
}

// children returns every currently-published child handle, used by
// set_configuration/unbind teardown (spec.md §4.7) to remove them outside
// the lock.
func (t *interfaceStatusTable) children() []ChildHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []ChildHandle
	for _, e := range t.entries {
		if e.status == ifChildDevice && e.child != nil {
			out = append(out, e.child)
		}
	}
	for _, a := range t.associations {
		out = append(out, a.child)
	}
	return out
}

// snapshot returns a copy of the current per-interface statuses, used by
// tests asserting the invariants of spec.md §8.
func (t *interfaceStatusTable) snapshot() []ifStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]ifStatus, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.status
	}
	return out
}
