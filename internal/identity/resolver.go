//-------------------------------------------------------------------------
//
// HotDog 2030 Warehouse Sync
//
// Copyright (c) 2026, HotDog 2030 contributors
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package identity maps source ids to warehouse ids. The Resolver is the
// only authority for cross-table references during a run; it lives in
// memory, starts empty and is never persisted.
package identity

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/hotdog2030/hotdog-etl/internal/etlerr"
	"github.com/hotdog2030/hotdog-etl/internal/source"
)

// Kind names an id space.
type Kind string

const (
	Store     Kind = "store"
	Candidate Kind = "candidate"
	Category  Kind = "category"
	Product   Kind = "product"
	Customer  Kind = "customer"
	Order     Kind = "order"
	OrderItem Kind = "order_item"
)

// ErrConflict is returned when a registration contradicts an existing
// mapping.
var ErrConflict = errors.New("identity conflict")

// CandidatePrefix prefixes the store code of a projected prospective site.
const CandidatePrefix = "RG_"

// StoreCode is the store_code of a migrated store.
func StoreCode(sourceID int64) string {
	return strconv.FormatInt(sourceID, 10)
}

// CandidateCode is the store_code of a projected prospective site.
func CandidateCode(seekShopID int64) string {
	return CandidatePrefix + strconv.FormatInt(seekShopID, 10)
}

// CandidateStoreID is the warehouse store id of a projected prospective
// site. Candidates take negative ids; migrated stores keep their positive
// source ids, so the two never meet.
func CandidateStoreID(seekShopID int64) int64 {
	return -seekShopID
}

// ParseStoreCode splits a store_code into its id space and source id.
func ParseStoreCode(code string) (Kind, int64, bool) {
	kind := Store
	if rest, ok := strings.CutPrefix(code, CandidatePrefix); ok {
		kind, code = Candidate, rest
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, false
	}
	return kind, id, true
}

type biMap struct {
	fwd map[int64]int64
	rev map[int64]int64
}

func newBiMap() *biMap {
	return &biMap{fwd: make(map[int64]int64), rev: make(map[int64]int64)}
}

// Resolver holds bidirectional source/warehouse maps for every id space,
// the external customer ids, and which source owns each preserved order
// and item id. It is safe for concurrent use.
type Resolver struct {
	mu        sync.RWMutex
	maps      map[Kind]*biMap
	customers map[string]int64
	owners    map[Kind]map[int64]source.System
}

// New returns an empty Resolver.
func New() *Resolver {
	r := &Resolver{}
	r.Reset()
	return r
}

// Reset discards every mapping.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.maps = make(map[Kind]*biMap)
	r.customers = make(map[string]int64)
	r.owners = make(map[Kind]map[int64]source.System)
}

// ResetKind discards the mappings and claims of one id space.
func (r *Resolver) ResetKind(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case Customer:
		r.customers = make(map[string]int64)
	case Order, OrderItem:
		delete(r.owners, kind)
	default:
		delete(r.maps, kind)
	}
}

func (r *Resolver) bimap(kind Kind) *biMap {
	m, ok := r.maps[kind]
	if !ok {
		m = newBiMap()
		r.maps[kind] = m
	}
	return m
}

// Register records sourceID <-> warehouseID in the kind's id space.
// Registering the same pair twice is a no-op; mapping either side to a
// different partner fails with ErrConflict.
func (r *Resolver) Register(kind Kind, sourceID, warehouseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := r.bimap(kind)
	if w, ok := m.fwd[sourceID]; ok {
		if w == warehouseID {
			return nil
		}
		return etlerr.New(etlerr.DataIntegrity, "identity",
			fmt.Errorf("%w: %s %d already maps to %d, not %d", ErrConflict, kind, sourceID, w, warehouseID))
	}
	if s, ok := m.rev[warehouseID]; ok {
		return etlerr.New(etlerr.DataIntegrity, "identity",
			fmt.Errorf("%w: warehouse %s %d already belongs to source %d", ErrConflict, kind, warehouseID, s))
	}
	m.fwd[sourceID] = warehouseID
	m.rev[warehouseID] = sourceID
	return nil
}

// Resolve returns the warehouse id of a source id.
func (r *Resolver) Resolve(kind Kind, sourceID int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.maps[kind]
	if !ok {
		return 0, false
	}
	w, ok := m.fwd[sourceID]
	return w, ok
}

// SourceOf returns the source id behind a warehouse id.
func (r *Resolver) SourceOf(kind Kind, warehouseID int64) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.maps[kind]
	if !ok {
		return 0, false
	}
	s, ok := m.rev[warehouseID]
	return s, ok
}

// Len returns the number of mappings in kind.
func (r *Resolver) Len(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch kind {
	case Order, OrderItem:
		return len(r.owners[kind])
	case Customer:
		return len(r.customers)
	}
	if m, ok := r.maps[kind]; ok {
		return len(m.fwd)
	}
	return 0
}

// RegisterCustomer records the warehouse id of an external customer id.
func (r *Resolver) RegisterCustomer(externalID string, warehouseID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers[externalID] = warehouseID
}

// ResolveCustomer returns the warehouse id of an external customer id.
func (r *Resolver) ResolveCustomer(externalID string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.customers[externalID]
	return id, ok
}

// Claim reserves a preserved id for a source system. The first system to
// claim an id keeps it; a later claim by another system returns false.
// Claims must be made in source priority order (POS first).
func (r *Resolver) Claim(kind Kind, system source.System, id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	owners, ok := r.owners[kind]
	if !ok {
		owners = make(map[int64]source.System)
		r.owners[kind] = owners
	}
	if owner, taken := owners[id]; taken {
		return owner == system
	}
	owners[id] = system
	return true
}

// Release drops a claim, used when the claimed row was not written.
func (r *Resolver) Release(kind Kind, id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners[kind], id)
}

// Owner returns the system that claimed id.
func (r *Resolver) Owner(kind Kind, id int64) (source.System, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.owners[kind][id]
	return s, ok
}

// Owned reports whether system owns id.
func (r *Resolver) Owned(kind Kind, system source.System, id int64) bool {
	s, ok := r.Owner(kind, id)
	return ok && s == system
}
