package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/duffmetro/metroscope/internal/dataset"
	"github.com/duffmetro/metroscope/internal/model"
)

type mockGateway struct {
	available bool
	result    model.RetrievalResult
	calls     int
}

func (m *mockGateway) Available() bool { return m.available }

func (m *mockGateway) Retrieve(ctx context.Context, sc *model.SelectionContext) model.RetrievalResult {
	m.calls++
	return m.result
}

type mockSynth struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
	priors    [][]model.FieldIssue
}

func (m *mockSynth) Synthesize(ctx context.Context, sc *model.SelectionContext, retrieval model.RetrievalResult, priorIssues []model.FieldIssue) (json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.priors = append(m.priors, priorIssues)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, errors.New("mock synth: out of responses")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return json.RawMessage(resp), nil
}

func (m *mockSynth) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testRow() dataset.Row {
	return dataset.Row{
		dataset.ColSystemID:   "metro-7",
		dataset.ColSystemName: "Greenline",
		dataset.ColCity:       "Springfield",
		dataset.ColCountry:    "USA",
		dataset.ColOpenedYear: 1974.0,
	}
}

func dossierJSON(confidence, sourcesJSON string) string {
	return fmt.Sprintf(`{
		"system_id": "metro-7",
		"system_name": "Greenline",
		"city": "Springfield",
		"country": "USA",
		"opened_year": 1974,
		"history_summary": "Opened in 1974 to relieve downtown congestion.",
		"timeline": [{"year": 1974, "event": "First line opens"}],
		"ownership_and_operations": "Municipally owned.",
		"scale_and_usage": "Single line, modest ridership.",
		"perception": {"summary": "Quiet and reliable.", "confidence": %q},
		"culture": [],
		"sources": %s
	}`, confidence, sourcesJSON)
}

func TestRunCachesPerKey(t *testing.T) {
	synth := &mockSynth{responses: []string{dossierJSON("medium", "[]")}}
	gateway := &mockGateway{available: false}
	wf := NewWorkflow(NewCache(), gateway, synth)

	req := Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()}

	first, err := wf.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if first.FromCache {
		t.Error("first run should not be a cache hit")
	}
	if first.Retrieval != model.RetrievalModeSkipped {
		t.Errorf("retrieval mode = %q, want %q", first.Retrieval, model.RetrievalModeSkipped)
	}

	second, err := wf.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !second.FromCache {
		t.Error("second run should be a cache hit")
	}
	if synth.calls != 1 {
		t.Errorf("synthesizer called %d times, want 1", synth.calls)
	}
	if gateway.calls != 0 {
		t.Errorf("gateway called %d times, want 0", gateway.calls)
	}
	if second.Dossier.SystemID != "metro-7" {
		t.Errorf("cached dossier system_id = %q", second.Dossier.SystemID)
	}
}

func TestRunNoWebDossierShape(t *testing.T) {
	synth := &mockSynth{responses: []string{`{
		"system_id": "metro-7",
		"opened_year": 1974,
		"history_summary": "Opened in 1974.",
		"perception": {"summary": "Quiet.", "confidence": "medium"},
		"sources": []
	}`}}
	wf := NewWorkflow(NewCache(), &mockGateway{available: false}, synth)

	res, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	d := res.Dossier
	if d.SystemName != "Greenline" {
		t.Errorf("system_name = %q, want the context name", d.SystemName)
	}
	if d.OpenedYear == nil || *d.OpenedYear != 1974 {
		t.Errorf("opened_year = %v, want 1974", d.OpenedYear)
	}
	if len(d.Sources) != 0 {
		t.Errorf("sources = %+v, want empty in no-web mode", d.Sources)
	}
	if d.Perception.Confidence != model.ConfidenceLow && d.Perception.Confidence != model.ConfidenceMedium {
		t.Errorf("confidence = %q, want low or medium", d.Perception.Confidence)
	}
	if res.RunID == "" {
		t.Error("result should carry a run id")
	}
}

func TestRunDatasetVersionChangeMisses(t *testing.T) {
	synth := &mockSynth{responses: []string{
		dossierJSON("medium", "[]"),
		dossierJSON("low", "[]"),
	}}
	wf := NewWorkflow(NewCache(), &mockGateway{}, synth)
	row := testRow()

	if _, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: row}); err != nil {
		t.Fatalf("run against v1 failed: %v", err)
	}

	res, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v2", Row: row})
	if err != nil {
		t.Fatalf("run against v2 failed: %v", err)
	}
	if res.FromCache {
		t.Error("a new dataset version must not hit the old cache entry")
	}
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}
}

func TestRunForceRefreshOverwrites(t *testing.T) {
	synth := &mockSynth{responses: []string{
		dossierJSON("low", "[]"),
		dossierJSON("medium", "[]"),
	}}
	cache := NewCache()
	wf := NewWorkflow(cache, &mockGateway{}, synth)

	req := Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()}
	if _, err := wf.Run(context.Background(), req); err != nil {
		t.Fatalf("initial run failed: %v", err)
	}

	req.ForceRefresh = true
	res, err := wf.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	if res.FromCache {
		t.Error("forced refresh must not serve from cache")
	}
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}

	cached, ok := cache.Get(Key{SystemID: "metro-7", DatasetVersion: "v1"})
	if !ok {
		t.Fatal("forced refresh should leave a cached dossier")
	}
	if cached.Perception.Confidence != model.ConfidenceMedium {
		t.Errorf("cache holds confidence %q, want the refreshed dossier", cached.Perception.Confidence)
	}
}

func TestRunNoWebRejectsHighConfidenceThenRetries(t *testing.T) {
	synth := &mockSynth{responses: []string{
		dossierJSON("high", "[]"),
		dossierJSON("medium", "[]"),
	}}
	wf := NewWorkflow(NewCache(), &mockGateway{available: false}, synth)

	res, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if synth.calls != 2 {
		t.Fatalf("synthesizer called %d times, want 2 (one retry)", synth.calls)
	}
	if len(synth.priors[0]) != 0 {
		t.Error("first attempt should carry no prior issues")
	}
	if len(synth.priors[1]) == 0 {
		t.Error("retry should carry the first attempt's issues")
	}
	if res.Dossier.Perception.Confidence == model.ConfidenceHigh {
		t.Error("no-web dossier must not claim high confidence")
	}
	if len(res.Dossier.Sources) != 0 {
		t.Errorf("no-web dossier has %d sources, want 0", len(res.Dossier.Sources))
	}
}

func TestRunSourceAllowlistEnforced(t *testing.T) {
	gateway := &mockGateway{
		available: true,
		result: model.RetrievalResult{
			Mode: model.RetrievalModeRetrieved,
			Snippets: []model.Snippet{
				{Text: "snippet", URL: "https://example.com/greenline", Topic: model.TopicHistory},
			},
		},
	}
	synth := &mockSynth{responses: []string{
		dossierJSON("high", `[{"title": "Leak", "url": "https://evil.example/made-up"}]`),
		dossierJSON("high", `[{"title": "Greenline history", "url": "https://example.com/greenline"}]`),
	}}
	wf := NewWorkflow(NewCache(), gateway, synth)

	res, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if gateway.calls != 1 {
		t.Errorf("gateway called %d times, want 1 (retry reuses the retrieval result)", gateway.calls)
	}
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}
	if len(res.Dossier.Sources) != 1 || res.Dossier.Sources[0].URL != "https://example.com/greenline" {
		t.Errorf("sources = %+v, want exactly the retrieved URL", res.Dossier.Sources)
	}
	if res.Retrieval != model.RetrievalModeRetrieved {
		t.Errorf("retrieval mode = %q, want %q", res.Retrieval, model.RetrievalModeRetrieved)
	}
}

func TestRunFailsAfterSecondInvalidResponse(t *testing.T) {
	synth := &mockSynth{responses: []string{
		`{"perception": {"summary": "no confidence field"}}`,
		`not json at all`,
	}}
	cache := NewCache()
	wf := NewWorkflow(cache, &mockGateway{}, synth)

	_, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err == nil {
		t.Fatal("expected the run to fail")
	}

	var runErr *model.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error type = %T, want *model.RunError", err)
	}
	if runErr.State != string(StateValidate) {
		t.Errorf("failed in state %q, want %q", runErr.State, StateValidate)
	}
	if len(runErr.Validation) != 2 {
		t.Errorf("recorded %d validation errors, want 2", len(runErr.Validation))
	}
	if synth.calls != 2 {
		t.Errorf("synthesizer called %d times, want 2", synth.calls)
	}
	if cache.Len() != 0 {
		t.Error("a failed run must not write to the cache")
	}
}

func TestRunSynthesisErrorIsFatal(t *testing.T) {
	synth := &mockSynth{err: &model.SynthesisError{Provider: "openai", Err: errors.New("boom")}}
	wf := NewWorkflow(NewCache(), &mockGateway{}, synth)

	_, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	var runErr *model.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error type = %T, want *model.RunError", err)
	}
	if runErr.State != string(StateSynthesize) {
		t.Errorf("failed in state %q, want %q", runErr.State, StateSynthesize)
	}
	if synth.calls != 1 {
		t.Errorf("synthesizer called %d times, want 1 (provider errors are not retried)", synth.calls)
	}
}

func TestRunAssembleFailureSkipsSynthesis(t *testing.T) {
	synth := &mockSynth{}
	wf := NewWorkflow(NewCache(), &mockGateway{}, synth)

	_, err := wf.Run(context.Background(), Request{DatasetVersion: "v1", Row: dataset.Row{}})
	if err == nil {
		t.Fatal("expected the run to fail")
	}
	var runErr *model.RunError
	if !errors.As(err, &runErr) {
		t.Fatalf("error type = %T, want *model.RunError", err)
	}
	if runErr.State != string(StateAssembleContext) {
		t.Errorf("failed in state %q, want %q", runErr.State, StateAssembleContext)
	}
	var missing *model.MissingRequiredFieldError
	if !errors.As(err, &missing) {
		t.Error("expected a MissingRequiredFieldError cause")
	}
	if synth.calls != 0 {
		t.Errorf("synthesizer called %d times, want 0", synth.calls)
	}
}

func TestRunConcurrentSameKeyShareOneSynthesis(t *testing.T) {
	// One response: any second synthesis would fail with "out of responses",
	// so a lost coalescing guarantee shows up as failed runs, not just as an
	// inflated call count.
	synth := &mockSynth{responses: []string{dossierJSON("medium", "[]")}}
	wf := NewWorkflow(NewCache(), &mockGateway{}, synth)
	req := Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()}

	const n = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := wf.Run(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if res.Dossier.SystemID != "metro-7" {
				errs <- fmt.Errorf("dossier system_id = %q", res.Dossier.SystemID)
			}
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("concurrent run: %v", err)
	}
	if got := synth.callCount(); got != 1 {
		t.Errorf("synthesizer called %d times for %d concurrent same-key runs, want 1", got, n)
	}
}

// gatedSynth blocks inside Synthesize until released, signalling each entry,
// so tests can hold a run in flight deliberately.
type gatedSynth struct {
	mu        sync.Mutex
	calls     int
	started   chan struct{}
	release   chan struct{}
	responses []string
}

func (g *gatedSynth) Synthesize(ctx context.Context, sc *model.SelectionContext, retrieval model.RetrievalResult, priorIssues []model.FieldIssue) (json.RawMessage, error) {
	g.mu.Lock()
	n := g.calls
	g.calls++
	g.mu.Unlock()

	g.started <- struct{}{}
	<-g.release

	if n >= len(g.responses) {
		return nil, errors.New("gated synth: out of responses")
	}
	return json.RawMessage(g.responses[n]), nil
}

func TestRunForceRefreshNotCoalescedWithInFlightRun(t *testing.T) {
	synth := &gatedSynth{
		started:   make(chan struct{}, 2),
		release:   make(chan struct{}),
		responses: []string{dossierJSON("low", "[]"), dossierJSON("medium", "[]")},
	}
	wf := NewWorkflow(NewCache(), &mockGateway{}, synth)
	req := Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()}

	plainDone := make(chan error, 1)
	go func() {
		_, err := wf.Run(context.Background(), req)
		plainDone <- err
	}()
	<-synth.started // plain run is now mid-synthesis

	forced := req
	forced.ForceRefresh = true
	forcedRes := make(chan *Result, 1)
	forcedErr := make(chan error, 1)
	go func() {
		res, err := wf.Run(context.Background(), forced)
		forcedRes <- res
		forcedErr <- err
	}()
	// The forced run must start its own synthesis instead of waiting to be
	// answered by the in-flight plain run.
	<-synth.started

	close(synth.release)

	if err := <-plainDone; err != nil {
		t.Fatalf("plain run failed: %v", err)
	}
	if err := <-forcedErr; err != nil {
		t.Fatalf("forced run failed: %v", err)
	}
	res := <-forcedRes
	if res.FromCache {
		t.Error("forced run must not be served from cache")
	}

	synth.mu.Lock()
	calls := synth.calls
	synth.mu.Unlock()
	if calls != 2 {
		t.Errorf("synthesizer called %d times, want 2 (one per run)", calls)
	}
}

func TestRunRetrievalWarningsSurface(t *testing.T) {
	gateway := &mockGateway{
		available: true,
		result: model.RetrievalResult{
			Mode:     model.RetrievalModeRetrieved,
			Warnings: []string{`retrieval query "Greenline subway system history": timeout`},
		},
	}
	synth := &mockSynth{responses: []string{dossierJSON("medium", "[]")}}
	wf := NewWorkflow(NewCache(), gateway, synth)

	res, err := wf.Run(context.Background(), Request{SystemID: "metro-7", DatasetVersion: "v1", Row: testRow()})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(res.Warnings))
	}
}
