// Package org models the organizational unit hierarchy. Workflow transitions
// route movements and notifications between a unit and its direct superior,
// so the only traversal the package offers is the parent-pointer walk.
package org

import (
	"context"
	"errors"
	"fmt"
)

// MaxHierarchyDepth bounds the superior-chain walk. The org chart is expected
// to be acyclic; the limit turns a corrupted chart into an error instead of a
// hang.
const MaxHierarchyDepth = 32

var (
	// ErrUnknownUnit is returned when a referenced unit does not exist.
	ErrUnknownUnit = errors.New("unknown unit")
	// ErrNoSuperior is returned when an action requires a unit's superior and
	// the unit has none.
	ErrNoSuperior = errors.New("unit has no superior")
)

// Unit is one organizational unit. Sigil is the short code used to address
// the unit in notifications.
type Unit struct {
	ID         string `json:"id"`
	Sigil      string `json:"sigil"`
	Name       string `json:"name"`
	SuperiorID string `json:"superior_id,omitempty"`
}

// Directory resolves units and their place in the hierarchy.
type Directory interface {
	// Get returns the unit with the given ID, or ErrUnknownUnit.
	Get(ctx context.Context, unitID string) (*Unit, error)
	// SuperiorOf returns the direct superior of the unit, or ErrNoSuperior
	// when the unit sits at the top of the hierarchy.
	SuperiorOf(ctx context.Context, unitID string) (*Unit, error)
}

// Superiors walks the superior chain from the given unit upward, nearest
// first, excluding the unit itself. The walk stops at the top of the
// hierarchy and fails if it exceeds MaxHierarchyDepth.
func Superiors(ctx context.Context, dir Directory, unitID string) ([]*Unit, error) {
	var chain []*Unit
	current := unitID
	for depth := 0; ; depth++ {
		if depth >= MaxHierarchyDepth {
			return nil, fmt.Errorf("superior chain of unit %s exceeds depth %d", unitID, MaxHierarchyDepth)
		}
		superior, err := dir.SuperiorOf(ctx, current)
		if errors.Is(err, ErrNoSuperior) {
			return chain, nil
		}
		if err != nil {
			return nil, err
		}
		chain = append(chain, superior)
		current = superior.ID
	}
}
