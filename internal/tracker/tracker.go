// Package tracker derives stable, versioned identities for function
// signatures. It is the only component allowed to assign signature
// versions; version creation is a compare-and-swap scoped per function
// name, never a global lock.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/scrypster/blackbox/internal/storage"
	"github.com/scrypster/blackbox/pkg/types"
)

// Observed carries what the instrumentation layer saw for one function:
// the parameter and return shapes plus optional metadata.
type Observed struct {
	// Input is the object descriptor of the function's parameters.
	Input types.TypeDescriptor

	// Return is the descriptor of the function's output.
	Return types.TypeDescriptor

	// Description is optional free text (docstring).
	Description string

	// ListPolicy selects the list comparison policy; empty means unordered.
	ListPolicy types.ListPolicy
}

// EventSink receives notifications about newly created signature
// versions. Satisfied by *notify.EventWriter.
type EventSink interface {
	Notify(eventType, functionName, subject string) error
}

// Tracker resolves observed descriptors into versioned signatures.
type Tracker struct {
	store  storage.SignatureStore
	events EventSink

	// mu guards the locks map; each function name gets its own mutex so
	// resolutions of unrelated functions never serialize on each other.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Tracker over the given signature store.
func New(store storage.SignatureStore) *Tracker {
	return &Tracker{
		store: store,
		locks: make(map[string]*sync.Mutex),
	}
}

// SetEventSink attaches an optional sink notified on each new version.
// Must be called before the tracker is shared across goroutines.
func (t *Tracker) SetEventSink(sink EventSink) {
	t.events = sink
}

// nameLock returns the mutex for one function name, creating it on first use.
func (t *Tracker) nameLock(functionName string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[functionName]
	if !ok {
		l = &sync.Mutex{}
		t.locks[functionName] = l
	}
	return l
}

// Resolve returns the signature version matching the observed descriptor,
// creating a new version when the canonical shape differs from every
// stored version of the function. Shapes differing only by an open list
// element resolve to the existing version rather than a new one.
//
// Resolving an unchanged descriptor is a no-op returning the existing
// version. Concurrent resolutions of the same change collapse into a
// single version: the in-process per-name mutex serializes local callers,
// and the store's unique (function_name, hash) constraint catches
// cross-process races, whose losers re-read the winner's version.
func (t *Tracker) Resolve(ctx context.Context, functionName string, observed Observed) (*types.FunctionSignature, error) {
	if functionName == "" {
		return nil, fmt.Errorf("%w: function name is required", storage.ErrInvalidInput)
	}

	input := observed.Input.Canonicalize()
	ret := observed.Return.Canonicalize()
	hash := types.SignatureHash(functionName, input, ret)

	// Fast path: this exact shape has been seen before.
	sig, err := t.store.GetSignatureByHash(ctx, functionName, hash)
	if err == nil {
		return sig, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	lock := t.nameLock(functionName)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the lock: a concurrent caller may have created the
	// version while we waited.
	sig, err = t.store.GetSignatureByHash(ctx, functionName, hash)
	if err == nil {
		return sig, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	// An observed shape with an open list element, inferred from an
	// empty list, hashes differently from a concrete-element version of
	// the same shape. Match it against existing versions, newest first,
	// instead of minting a spurious one.
	existing, err := t.store.ListSignatures(ctx, functionName)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	for i := len(existing) - 1; i >= 0; i-- {
		if input.Matches(existing[i].Input) && ret.Matches(existing[i].Return) {
			return existing[i], nil
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		version := 1
		latest, err := t.store.LatestSignature(ctx, functionName)
		if err == nil {
			version = latest.Version + 1
		} else if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}

		newSig := &types.FunctionSignature{
			FunctionName:   functionName,
			Version:        version,
			DescriptorHash: hash,
			Input:          input,
			Return:         ret,
			Description:    observed.Description,
			ListPolicy:     observed.ListPolicy,
			CreatedAt:      time.Now().UTC(),
		}

		err = t.store.CreateSignature(ctx, newSig)
		if err == nil {
			if t.events != nil {
				if nerr := t.events.Notify("version_created", functionName, strconv.Itoa(version)); nerr != nil {
					log.Printf("tracker: version event for %s v%d not delivered: %v", functionName, version, nerr)
				}
			}
			return newSig, nil
		}
		if !errors.Is(err, storage.ErrSignatureConflict) {
			return nil, err
		}

		// Lost a cross-process race: another writer claimed this version
		// number between our read and insert. If it was the same
		// descriptor, its hash is now readable; otherwise retry the
		// insert against the advanced latest version.
		log.Printf("tracker: version race resolved for %s (hash %.12s)", functionName, hash)

		sig, err := t.store.GetSignatureByHash(ctx, functionName, hash)
		if err == nil {
			return sig, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
	}
}

// History returns all versions of a function, oldest first.
func (t *Tracker) History(ctx context.Context, functionName string) ([]*types.FunctionSignature, error) {
	return t.store.ListSignatures(ctx, functionName)
}
