package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/moments/internal/compiler"
	"github.com/roach88/moments/internal/generate"
	"github.com/roach88/moments/internal/ir"
	"github.com/roach88/moments/internal/testutil"
)

func compileCatalog(t *testing.T, src string) *ir.Catalog {
	t.Helper()
	doc, raw, err := compiler.ParseYAML([]byte(src))
	require.NoError(t, err)
	cat, err := compiler.Compile(doc, raw)
	require.NoError(t, err)
	return cat
}

type testEngine struct {
	*Engine
	clock      *testutil.FakeClock
	dispatcher *recordingDispatcher
	persister  *memPersister
}

// newTestEngine builds an engine with a fake clock, sequential card ids and
// recording hooks. It is closed when the test ends.
func newTestEngine(t *testing.T, catalog *ir.Catalog, gen generate.Generator, opts ...Option) *testEngine {
	t.Helper()
	te := &testEngine{
		clock:      testutil.NewFakeClock(),
		dispatcher: &recordingDispatcher{},
		persister:  newMemPersister(),
	}
	base := []Option{
		WithLogger(quietLogger()),
		WithTimeSource(te.clock),
		WithIDGenerator(NewSequenceGenerator("card")),
		WithDispatcher(te.dispatcher),
		WithPersister(te.persister),
	}
	te.Engine = New(catalog, gen, append(base, opts...)...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, te.Close(ctx))
	})
	return te
}

func (te *testEngine) turn(t *testing.T, subjectID string, input map[string]any) *ir.TurnResult {
	t.Helper()
	res, err := te.ProcessTurn(context.Background(), subjectID, input)
	require.NoError(t, err)
	return res
}

func (te *testEngine) settle(t *testing.T, subjectID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, te.Wait(ctx, subjectID))
}

func (te *testEngine) artifact(t *testing.T, subjectID, artifactID string) (ir.Artifact, bool) {
	t.Helper()
	snap, err := te.Snapshot(context.Background(), subjectID)
	require.NoError(t, err)
	for _, a := range snap.Artifacts {
		if a.ArtifactID == artifactID {
			return a, true
		}
	}
	return ir.Artifact{}, false
}

func (te *testEngine) card(t *testing.T, subjectID, instanceID string) ir.ActiveCard {
	t.Helper()
	snap, err := te.Snapshot(context.Background(), subjectID)
	require.NoError(t, err)
	for _, c := range snap.Cards {
		if c.InstanceID == instanceID {
			return c
		}
	}
	t.Fatalf("card %s not found", instanceID)
	return ir.ActiveCard{}
}

func firedIDs(res *ir.TurnResult) []string {
	ids := []string{}
	for _, m := range res.MomentsFired {
		ids = append(ids, m.ID)
	}
	return ids
}

func cardIDs(cards []ir.ActiveCard) []string {
	ids := []string{}
	for _, c := range cards {
		ids = append(ids, c.CardID)
	}
	return ids
}

type artifactNote struct {
	SubjectID  string
	ArtifactID string
	Status     ir.ArtifactStatus
}

type recordingDispatcher struct {
	mu        sync.Mutex
	artifacts []artifactNote
	cards     [][]ir.ActiveCard
}

func (d *recordingDispatcher) NotifyArtifactUpdated(subjectID, artifactID string, status ir.ArtifactStatus, _ map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.artifacts = append(d.artifacts, artifactNote{subjectID, artifactID, status})
}

func (d *recordingDispatcher) NotifyCardsUpdated(_ string, cards []ir.ActiveCard) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cards = append(d.cards, cards)
}

func (d *recordingDispatcher) artifactStatuses(artifactID string) []ir.ArtifactStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []ir.ArtifactStatus
	for _, n := range d.artifacts {
		if n.ArtifactID == artifactID {
			out = append(out, n.Status)
		}
	}
	return out
}

func (d *recordingDispatcher) cardUpdates() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.cards)
}

type memPersister struct {
	mu          sync.Mutex
	artifacts   map[string]map[string]ir.Artifact
	attempts    map[string]map[string]int
	cards       map[string][]ir.ActiveCard
	transitions map[string]map[string]bool
	turns       map[string]int64
	deleted     []string
}

func newMemPersister() *memPersister {
	return &memPersister{
		artifacts:   make(map[string]map[string]ir.Artifact),
		attempts:    make(map[string]map[string]int),
		cards:       make(map[string][]ir.ActiveCard),
		transitions: make(map[string]map[string]bool),
		turns:       make(map[string]int64),
	}
}

func (p *memPersister) SaveArtifact(_ context.Context, a ir.Artifact) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.artifacts[a.SubjectID] == nil {
		p.artifacts[a.SubjectID] = make(map[string]ir.Artifact)
	}
	p.artifacts[a.SubjectID][a.ArtifactID] = a
	return nil
}

func (p *memPersister) DeleteArtifact(_ context.Context, subjectID, artifactID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.artifacts[subjectID], artifactID)
	return nil
}

func (p *memPersister) SaveAttempts(_ context.Context, subjectID string, attempts map[string]int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[subjectID] = attempts
	return nil
}

func (p *memPersister) SaveCards(_ context.Context, subjectID string, cards []ir.ActiveCard) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cards[subjectID] = cards
	return nil
}

func (p *memPersister) SaveTransitions(_ context.Context, subjectID string, turn int64, state map[string]bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions[subjectID] = state
	p.turns[subjectID] = turn
	return nil
}

func (p *memPersister) DeleteSubject(_ context.Context, subjectID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.artifacts, subjectID)
	delete(p.attempts, subjectID)
	delete(p.cards, subjectID)
	delete(p.transitions, subjectID)
	delete(p.turns, subjectID)
	p.deleted = append(p.deleted, subjectID)
	return nil
}

func (p *memPersister) savedArtifact(subjectID, artifactID string) (ir.Artifact, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, ok := p.artifacts[subjectID][artifactID]
	return a, ok
}
