package kir

import (
	"context"
)

// Source supplies the raw ligand data of one release. Names are full
// allele designations as published; a nil value means the allele has no
// ligand assignment.
//
// Implementations return an ErrNoData error for an empty result and an
// ErrVersionUnsupported error when the release is unknown upstream.
type Source interface {
	ID() string
	Fetch(ctx context.Context, version string) (LigandMap, error)
}
