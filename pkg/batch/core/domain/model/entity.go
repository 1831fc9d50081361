package model

import (
	"fmt"
	"sync"
)

// Entity carries the persistent identity shared by job instances, job executions and step executions.
// Both fields are optional: the id is assigned once by the owning DAO at first persistence and the
// version is bumped on every successful persisted update.
//
// Entity must not be copied after first use.
type Entity struct {
	identityMu sync.RWMutex
	id         *int64
	version    *int
}

// ID returns the id, or 0 when none is assigned. Use HasID to tell the two apart.
func (e *Entity) ID() int64 {
	e.identityMu.RLock()
	defer e.identityMu.RUnlock()
	if e.id == nil {
		return 0
	}
	return *e.id
}

// HasID reports whether an id has been assigned.
func (e *Entity) HasID() bool {
	e.identityMu.RLock()
	defer e.identityMu.RUnlock()
	return e.id != nil
}

// SetID assigns the id.
func (e *Entity) SetID(id int64) {
	e.identityMu.Lock()
	defer e.identityMu.Unlock()
	e.id = &id
}

// Version returns the version, or 0 when none is set. Use HasVersion to tell the two apart.
func (e *Entity) Version() int {
	e.identityMu.RLock()
	defer e.identityMu.RUnlock()
	if e.version == nil {
		return 0
	}
	return *e.version
}

// HasVersion reports whether a version has been set.
func (e *Entity) HasVersion() bool {
	e.identityMu.RLock()
	defer e.identityMu.RUnlock()
	return e.version != nil
}

// SetVersion overwrites the version.
func (e *Entity) SetVersion(version int) {
	e.identityMu.Lock()
	defer e.identityMu.Unlock()
	e.version = &version
}

// IncrementVersion sets the version to 0 when absent, else adds one.
func (e *Entity) IncrementVersion() {
	e.identityMu.Lock()
	defer e.identityMu.Unlock()
	if e.version == nil {
		v := 0
		e.version = &v
		return
	}
	v := *e.version + 1
	e.version = &v
}

// copyIdentityFrom copies id and version from src.
func (e *Entity) copyIdentityFrom(src *Entity) {
	src.identityMu.RLock()
	id, version := src.id, src.version
	src.identityMu.RUnlock()

	e.identityMu.Lock()
	defer e.identityMu.Unlock()
	e.id, e.version = nil, nil
	if id != nil {
		v := *id
		e.id = &v
	}
	if version != nil {
		v := *version
		e.version = &v
	}
}

// sameIdentity reports whether both entities carry the same id.
// Without an id on either side, only the very same instance is equal.
func (e *Entity) sameIdentity(other *Entity) bool {
	if e == other {
		return true
	}
	if e == nil || other == nil {
		return false
	}
	if !e.HasID() || !other.HasID() {
		return false
	}
	return e.ID() == other.ID()
}

func (e *Entity) describe(kind string) string {
	id, version := "nil", "nil"
	if e.HasID() {
		id = fmt.Sprintf("%d", e.ID())
	}
	if e.HasVersion() {
		version = fmt.Sprintf("%d", e.Version())
	}
	return fmt.Sprintf("%s: id=%s, version=%s", kind, id, version)
}
