// Package profile contains the dossier generation workflow: context
// assembly, conditional retrieval, synthesis, schema validation with one
// bounded retry, and session-scoped caching.
package profile

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/model"
	"github.com/duffmetro/metroscope/internal/schema"
)

// State names one step of the workflow state machine.
type State string

const (
	StateCheckCache      State = "CHECK_CACHE"
	StateAssembleContext State = "ASSEMBLE_CONTEXT"
	StateRetrieve        State = "RETRIEVE"
	StateSkipRetrieve    State = "SKIP_RETRIEVE"
	StateSynthesize      State = "SYNTHESIZE"
	StateValidate        State = "VALIDATE"
	StateRetrySynthesize State = "RETRY_SYNTHESIZE"
	StateFinalize        State = "FINALIZE"
	StateDone            State = "DONE"
	StateFailed          State = "FAILED"
)

// maxSynthesisAttempts bounds the validation-retry loop: one initial
// synthesis plus at most one retry.
const maxSynthesisAttempts = 2

// RetrievalGateway is the workflow's view of web retrieval. Available must
// be consulted before Retrieve is ever called.
type RetrievalGateway interface {
	Available() bool
	Retrieve(ctx context.Context, sc *model.SelectionContext) model.RetrievalResult
}

// Synthesizer is the workflow's view of the language model.
type Synthesizer interface {
	Synthesize(ctx context.Context, sc *model.SelectionContext, retrieval model.RetrievalResult, priorIssues []model.FieldIssue) (json.RawMessage, error)
}

// Request is one selection event.
type Request struct {
	SystemID       string
	DatasetVersion string
	Row            dataset.Row

	// ForceRefresh bypasses the cache check and unconditionally overwrites
	// whatever was cached for this key.
	ForceRefresh bool
}

// Result is a successful run's outcome.
type Result struct {
	Dossier *model.Dossier
	RunID   string

	// FromCache is true when the dossier was served without invoking the
	// gateway, synthesizer or validator.
	FromCache bool

	// Retrieval tags whether web retrieval ran for this dossier; empty on
	// a cache hit.
	Retrieval model.RetrievalMode

	// Warnings carries retrieval degradation notices.
	Warnings []string
}

// Workflow drives profile generation for one session. Overlapping requests
// for the same (system id, dataset version) key share a single run, so the
// expensive synthesis step happens at most once per key even if the host
// environment re-enters.
type Workflow struct {
	cache   *Cache
	gateway RetrievalGateway
	synth   Synthesizer
	group   singleflight.Group
}

// NewWorkflow wires a workflow onto a session cache.
func NewWorkflow(cache *Cache, gateway RetrievalGateway, synth Synthesizer) *Workflow {
	return &Workflow{cache: cache, gateway: gateway, synth: synth}
}

// Run executes the state machine for one selection event. It returns a
// Result in DONE, or a *model.RunError in FAILED; it never hangs beyond
// the call-level timeouts of its collaborators, and a failure leaves the
// cache untouched for the key.
func (w *Workflow) Run(ctx context.Context, req Request) (*Result, error) {
	key := Key{SystemID: req.SystemID, DatasetVersion: req.DatasetVersion}

	// A forced refresh must run the full pipeline itself; it may not be
	// answered by coalescing onto an in-flight plain run for the same key.
	if req.ForceRefresh {
		w.group.Forget(key.String())
	}

	v, err, _ := w.group.Do(key.String(), func() (interface{}, error) {
		return w.run(ctx, key, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

func (w *Workflow) run(ctx context.Context, key Key, req Request) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}

	var (
		sc        *model.SelectionContext
		retrieval model.RetrievalResult
		raw       json.RawMessage
		dossier   *model.Dossier
		attempts  int
		recorded  []*model.ValidationError
		prior     []model.FieldIssue
	)

	state := StateCheckCache
	for {
		switch state {
		case StateCheckCache:
			if !req.ForceRefresh {
				if cached, ok := w.cache.Get(key); ok {
					result.Dossier = cached
					result.FromCache = true
					return result, nil
				}
			}
			state = StateAssembleContext

		case StateAssembleContext:
			var err error
			sc, err = AssembleContext(req.SystemID, req.Row)
			if err != nil {
				return nil, &model.RunError{
					State:  string(StateAssembleContext),
					Reason: "selection context could not be assembled",
					Err:    err,
				}
			}
			if w.gateway != nil && w.gateway.Available() {
				state = StateRetrieve
			} else {
				state = StateSkipRetrieve
			}

		case StateRetrieve:
			retrieval = w.gateway.Retrieve(ctx, sc)
			result.Warnings = append(result.Warnings, retrieval.Warnings...)
			state = StateSynthesize

		case StateSkipRetrieve:
			retrieval = model.SkippedRetrieval()
			state = StateSynthesize

		case StateSynthesize, StateRetrySynthesize:
			var err error
			raw, err = w.synth.Synthesize(ctx, sc, retrieval, prior)
			if err != nil {
				return nil, &model.RunError{
					State:  string(state),
					Reason: "language model call failed",
					Err:    err,
				}
			}
			attempts++
			state = StateValidate

		case StateValidate:
			var verr *model.ValidationError
			dossier, verr = schema.Validate(raw, schema.Options{
				SystemID:    sc.SystemID,
				SystemName:  sc.SystemName,
				AllowedURLs: retrieval.URLs(),
				WebMode:     retrieval.Mode == model.RetrievalModeRetrieved,
			})
			if verr != nil {
				recorded = append(recorded, verr)
				if attempts >= maxSynthesisAttempts {
					return nil, &model.RunError{
						State:      string(StateValidate),
						Reason:     "dossier failed validation twice",
						Validation: recorded,
					}
				}
				prior = verr.Issues
				state = StateRetrySynthesize
				continue
			}
			state = StateFinalize

		case StateFinalize:
			w.cache.Put(key, dossier)
			result.Dossier = dossier
			result.Retrieval = retrieval.Mode
			return result, nil
		}
	}
}
