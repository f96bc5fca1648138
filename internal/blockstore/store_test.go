package blockstore

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/ledger"
	"github.com/starford/othala/internal/models"
	"github.com/starford/othala/internal/oracle"
)

// fakeOracle merges deterministically: sum joins texts with " + ",
// subtract joins with " - ". A non-nil gate makes Merge block until the
// gate is closed, signalling entry on started.
type fakeOracle struct {
	mu       sync.Mutex
	calls    []fakeCall
	conflict string
	err      error

	started chan struct{}
	gate    chan struct{}
}

type fakeCall struct {
	op      models.OpKind
	sources []oracle.Source
}

func (f *fakeOracle) Merge(ctx context.Context, op models.OpKind, sources []oracle.Source) (*oracle.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fakeCall{op: op, sources: sources})
	err := f.err
	conflict := f.conflict
	f.mu.Unlock()

	if f.gate != nil {
		f.started <- struct{}{}
		<-f.gate
	}
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(sources))
	for i, src := range sources {
		texts[i] = src.Text
	}
	sep := " + "
	if op == models.OpSubtract {
		sep = " - "
	}
	text := strings.Join(texts, sep)
	return &oracle.Result{Text: text, Raw: "<OUTPUT>" + text + "</OUTPUT>", Conflict: conflict}, nil
}

func (f *fakeOracle) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeOracle) lastCall(t *testing.T) fakeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		t.Fatal("oracle was never called")
	}
	return f.calls[len(f.calls)-1]
}

func testStore(t *testing.T) (*Store, *ledger.Memory, *fakeOracle) {
	t.Helper()
	led := ledger.NewMemory()
	orc := &fakeOracle{}
	st := NewStore(led, orc, slog.New(slog.DiscardHandler), nil)
	return st, led, orc
}

// putComputed seeds a computed leaf directly in the ledger with controlled
// timestamps.
func putComputed(t *testing.T, led *ledger.Memory, content string, created, computed time.Time) *models.Block {
	t.Helper()
	b := &models.Block{
		ID:         models.NewBlockID(),
		FamilyID:   models.NewFamilyID(),
		Content:    content,
		Op:         models.OpCreate,
		ParentIDs:  []string{},
		State:      models.StateComputed,
		CreatedAt:  created,
		ComputedAt: computed,
	}
	if err := led.PutBlock(b); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	return b
}

func TestCreateAndEdit(t *testing.T) {
	st, _, orc := testStore(t)

	a, err := st.Create("first draft")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(a.ID, "kbb_") || !strings.HasPrefix(a.FamilyID, "kbn_") {
		t.Fatalf("unexpected id prefixes: %s %s", a.ID, a.FamilyID)
	}
	if a.Op != models.OpCreate || a.Computed() || len(a.ParentIDs) != 0 {
		t.Fatalf("unexpected create block: %+v", a)
	}

	b, err := st.Edit(a.ID, "second draft")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if b.FamilyID != a.FamilyID {
		t.Fatalf("edit changed family: %s != %s", b.FamilyID, a.FamilyID)
	}
	if b.ID == a.ID {
		t.Fatal("edit reused block id")
	}
	if len(b.ParentIDs) != 1 || b.ParentIDs[0] != a.ID {
		t.Fatalf("unexpected edit parents: %v", b.ParentIDs)
	}
	if b.Content != "second draft" || b.Computed() {
		t.Fatalf("unexpected edit block: %+v", b)
	}
	if orc.callCount() != 0 {
		t.Fatalf("oracle called %d times during construction", orc.callCount())
	}
}

func TestEditUnknownBlock(t *testing.T) {
	st, _, _ := testStore(t)
	if _, err := st.Edit("kbb_missing", "x"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSumAndSubtractArity(t *testing.T) {
	st, _, _ := testStore(t)
	a, _ := st.Create("a")

	if _, err := st.Sum(nil); !errors.Is(err, apperr.ErrInvalidArity) {
		t.Fatalf("sum of none: err = %v, want ErrInvalidArity", err)
	}
	if _, err := st.Sum([]string{a.ID}); !errors.Is(err, apperr.ErrInvalidArity) {
		t.Fatalf("sum of one: err = %v, want ErrInvalidArity", err)
	}
	if _, err := st.Sum([]string{a.ID, "kbb_missing"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("sum of missing: err = %v, want ErrNotFound", err)
	}
	if _, err := st.Subtract(a.ID, "kbb_missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("subtract missing: err = %v, want ErrNotFound", err)
	}
}

func TestSumAndSubtractStartFreshFamilies(t *testing.T) {
	st, _, _ := testStore(t)
	a, _ := st.Create("a")
	b, _ := st.Create("b")

	s, err := st.Sum([]string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	if s.FamilyID == a.FamilyID || s.FamilyID == b.FamilyID {
		t.Fatalf("sum inherited a parent family: %s", s.FamilyID)
	}

	d, err := st.Subtract(a.ID, b.ID)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	if d.FamilyID == a.FamilyID || d.FamilyID == b.FamilyID {
		t.Fatalf("subtract inherited a parent family: %s", d.FamilyID)
	}
}

func TestComputeLeafStampsWithoutOracle(t *testing.T) {
	st, _, orc := testStore(t)
	a, _ := st.Create("literal text")

	got, err := st.Compute(context.Background(), a.ID, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if !got.Computed() || got.ComputedAt.IsZero() {
		t.Fatalf("block not computed: %+v", got)
	}
	if got.Content != "literal text" {
		t.Fatalf("leaf content changed: %q", got.Content)
	}
	if !strings.HasPrefix(got.Message, "Computed on ") {
		t.Fatalf("unexpected default message: %q", got.Message)
	}
	if orc.callCount() != 0 {
		t.Fatalf("oracle called %d times for a leaf", orc.callCount())
	}
}

func TestComputeSumMergesAndComputesParents(t *testing.T) {
	st, _, orc := testStore(t)
	a, _ := st.Create("alpha")
	b, _ := st.Create("beta")
	s, _ := st.Sum([]string{a.ID, b.ID})

	got, err := st.Compute(context.Background(), s.ID, "merge them")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.Content != "alpha + beta" {
		t.Fatalf("content = %q, want %q", got.Content, "alpha + beta")
	}
	if got.Message != "merge them" {
		t.Fatalf("message = %q", got.Message)
	}
	if got.ContentRaw == "" {
		t.Fatal("raw transcript not recorded")
	}
	if orc.callCount() != 1 {
		t.Fatalf("oracle called %d times, want 1", orc.callCount())
	}

	for _, id := range []string{a.ID, b.ID} {
		p, err := st.Get(id)
		if err != nil {
			t.Fatalf("Get(%s): %v", id, err)
		}
		if !p.Computed() {
			t.Fatalf("parent %s left uncomputed", id)
		}
		if !strings.Contains(p.Message, "because parent of "+s.ID) {
			t.Fatalf("parent message = %q", p.Message)
		}
	}
}

func TestComputeTwiceFails(t *testing.T) {
	st, _, _ := testStore(t)
	a, _ := st.Create("a")
	if _, err := st.Compute(context.Background(), a.ID, ""); err != nil {
		t.Fatalf("first Compute: %v", err)
	}
	if _, err := st.Compute(context.Background(), a.ID, ""); !errors.Is(err, apperr.ErrAlreadyComputed) {
		t.Fatalf("err = %v, want ErrAlreadyComputed", err)
	}
}

func TestComputeConcurrentSingleShot(t *testing.T) {
	st, _, orc := testStore(t)
	a, _ := st.Create("a")
	b, _ := st.Create("b")
	if _, err := st.Compute(context.Background(), a.ID, ""); err != nil {
		t.Fatalf("Compute a: %v", err)
	}
	if _, err := st.Compute(context.Background(), b.ID, ""); err != nil {
		t.Fatalf("Compute b: %v", err)
	}
	s, _ := st.Sum([]string{a.ID, b.ID})

	orc.started = make(chan struct{}, 1)
	orc.gate = make(chan struct{})

	var wg sync.WaitGroup
	var winnerErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, winnerErr = st.Compute(context.Background(), s.ID, "")
	}()
	<-orc.started

	if _, err := st.Compute(context.Background(), s.ID, ""); !errors.Is(err, apperr.ErrAlreadyComputed) {
		t.Fatalf("loser err = %v, want ErrAlreadyComputed", err)
	}
	close(orc.gate)
	wg.Wait()

	if winnerErr != nil {
		t.Fatalf("winner Compute: %v", winnerErr)
	}
	if orc.callCount() != 1 {
		t.Fatalf("oracle called %d times, want 1", orc.callCount())
	}
}

func TestComputeOracleFailureIsRetryable(t *testing.T) {
	st, _, orc := testStore(t)
	a, _ := st.Create("a")
	b, _ := st.Create("b")
	s, _ := st.Sum([]string{a.ID, b.ID})

	orc.err = errors.New("model unavailable")
	_, err := st.Compute(context.Background(), s.ID, "")
	if !errors.Is(err, apperr.ErrOracle) {
		t.Fatalf("err = %v, want ErrOracle", err)
	}
	cur, _ := st.Get(s.ID)
	if cur.Computed() {
		t.Fatal("block marked computed despite oracle failure")
	}

	orc.mu.Lock()
	orc.err = nil
	orc.mu.Unlock()
	got, err := st.Compute(context.Background(), s.ID, "")
	if err != nil {
		t.Fatalf("retry Compute: %v", err)
	}
	if got.Content != "a + b" {
		t.Fatalf("content = %q", got.Content)
	}
}

func TestSumSourcesOrderedByRecency(t *testing.T) {
	st, led, orc := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	newest := putComputed(t, led, "newest", base, base.Add(3*time.Hour))
	oldest := putComputed(t, led, "oldest", base.Add(time.Minute), base.Add(time.Hour))
	middle := putComputed(t, led, "middle", base.Add(2*time.Minute), base.Add(2*time.Hour))

	s, err := st.Sum([]string{newest.ID, oldest.ID, middle.ID})
	if err != nil {
		t.Fatalf("Sum: %v", err)
	}
	got, err := st.Compute(context.Background(), s.ID, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.Content != "oldest + middle + newest" {
		t.Fatalf("content = %q", got.Content)
	}

	call := orc.lastCall(t)
	if call.op != models.OpSum {
		t.Fatalf("op = %s", call.op)
	}
	if len(call.sources) != 3 || call.sources[0].Text != "oldest" || call.sources[2].Text != "newest" {
		t.Fatalf("unexpected source order: %+v", call.sources)
	}
}

func TestSubtractKeepsOperandOrder(t *testing.T) {
	st, led, orc := testStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	minuend := putComputed(t, led, "whole", base, base.Add(2*time.Hour))
	subtrahend := putComputed(t, led, "part", base.Add(time.Minute), base.Add(time.Hour))

	s, err := st.Subtract(minuend.ID, subtrahend.ID)
	if err != nil {
		t.Fatalf("Subtract: %v", err)
	}
	got, err := st.Compute(context.Background(), s.ID, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.Content != "whole - part" {
		t.Fatalf("content = %q", got.Content)
	}
	call := orc.lastCall(t)
	if call.sources[0].Text != "whole" || call.sources[1].Text != "part" {
		t.Fatalf("operand order changed: %+v", call.sources)
	}
}

// subtractingOracle joins sum sources with a space and models subtract as
// literal removal of the subtrahend's text from the minuend.
type subtractingOracle struct{}

func (subtractingOracle) Merge(_ context.Context, op models.OpKind, sources []oracle.Source) (*oracle.Result, error) {
	if op == models.OpSubtract {
		text := strings.TrimSpace(strings.ReplaceAll(sources[0].Text, sources[1].Text, ""))
		return &oracle.Result{Text: text, Raw: text}, nil
	}
	texts := make([]string, len(sources))
	for i, src := range sources {
		texts[i] = src.Text
	}
	text := strings.Join(texts, " ")
	return &oracle.Result{Text: text, Raw: text}, nil
}

func TestSubtractDropsSubtrahendFacts(t *testing.T) {
	led := ledger.NewMemory()
	st := NewStore(led, subtractingOracle{}, slog.New(slog.DiscardHandler), nil)
	ctx := context.Background()

	a, _ := st.Create("Berkeley is a public university.")
	b, _ := st.Edit(a.ID, "Berkeley was founded in 2222.")
	if _, err := st.Compute(ctx, a.ID, ""); err != nil {
		t.Fatalf("Compute a: %v", err)
	}
	if _, err := st.Compute(ctx, b.ID, ""); err != nil {
		t.Fatalf("Compute b: %v", err)
	}

	s, _ := st.Sum([]string{a.ID, b.ID})
	if _, err := st.Compute(ctx, s.ID, ""); err != nil {
		t.Fatalf("Compute sum: %v", err)
	}

	d, _ := st.Subtract(s.ID, b.ID)
	got, err := st.Compute(ctx, d.ID, "")
	if err != nil {
		t.Fatalf("Compute subtract: %v", err)
	}
	if strings.Contains(got.Content, "2222") {
		t.Fatalf("subtrahend fact survived: %q", got.Content)
	}
	if !strings.Contains(got.Content, "public university") {
		t.Fatalf("minuend fact lost: %q", got.Content)
	}
}

func TestRecomputePicksUpLeafEdits(t *testing.T) {
	st, _, _ := testStore(t)
	ctx := context.Background()

	a, _ := st.Create("draft")
	b, _ := st.Create("keep")
	s, _ := st.Sum([]string{a.ID, b.ID})
	if _, err := st.Compute(ctx, s.ID, ""); err != nil {
		t.Fatalf("Compute sum: %v", err)
	}

	a2, _ := st.Edit(a.ID, "final")
	if _, err := st.Compute(ctx, a2.ID, ""); err != nil {
		t.Fatalf("Compute edit: %v", err)
	}

	got, err := st.Recompute(ctx, s.ID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if got.ID == s.ID {
		t.Fatal("recompute reused the original block id")
	}
	if got.FamilyID != s.FamilyID {
		t.Fatalf("recompute changed family: %s != %s", got.FamilyID, s.FamilyID)
	}
	if got.Content != "keep + final" {
		t.Fatalf("content = %q, want %q", got.Content, "keep + final")
	}
	if !strings.Contains(got.Message, "Recomputed from "+s.ID) {
		t.Fatalf("message = %q", got.Message)
	}

	family, err := st.FamilyHistory(s.FamilyID)
	if err != nil {
		t.Fatalf("FamilyHistory: %v", err)
	}
	if len(family) != 2 {
		t.Fatalf("family has %d blocks, want 2", len(family))
	}
}

func TestRecomputeReplaysDeepLineage(t *testing.T) {
	st, _, _ := testStore(t)
	ctx := context.Background()

	a, _ := st.Create("A")
	b, _ := st.Create("B")
	s1, _ := st.Sum([]string{a.ID, b.ID})
	if _, err := st.Compute(ctx, s1.ID, ""); err != nil {
		t.Fatalf("Compute s1: %v", err)
	}
	c, _ := st.Create("C")
	s2, _ := st.Sum([]string{s1.ID, c.ID})
	if _, err := st.Compute(ctx, s2.ID, ""); err != nil {
		t.Fatalf("Compute s2: %v", err)
	}

	a2, _ := st.Edit(a.ID, "A2")
	if _, err := st.Compute(ctx, a2.ID, ""); err != nil {
		t.Fatalf("Compute a2: %v", err)
	}

	got, err := st.Recompute(ctx, s2.ID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if got.Content != "C + B + A2" {
		t.Fatalf("content = %q, want %q", got.Content, "C + B + A2")
	}

	// The intermediate sum was replayed into its own family too.
	mids, err := st.FamilyHistory(s1.FamilyID)
	if err != nil {
		t.Fatalf("FamilyHistory s1: %v", err)
	}
	if len(mids) != 2 {
		t.Fatalf("s1 family has %d blocks, want 2", len(mids))
	}
	replayed := mids[len(mids)-1]
	if replayed.Content != "B + A2" {
		t.Fatalf("replayed intermediate = %q, want %q", replayed.Content, "B + A2")
	}
}

func TestRecomputeRequiresComputedBlock(t *testing.T) {
	st, _, _ := testStore(t)
	a, _ := st.Create("a")
	if _, err := st.Recompute(context.Background(), a.ID); !errors.Is(err, apperr.ErrNotComputed) {
		t.Fatalf("err = %v, want ErrNotComputed", err)
	}
}

func TestRecomputeLeafReturnsLatestFamilyVersion(t *testing.T) {
	st, _, _ := testStore(t)
	ctx := context.Background()

	a, _ := st.Create("v1")
	if _, err := st.Compute(ctx, a.ID, ""); err != nil {
		t.Fatalf("Compute a: %v", err)
	}
	a2, _ := st.Edit(a.ID, "v2")
	if _, err := st.Compute(ctx, a2.ID, ""); err != nil {
		t.Fatalf("Compute a2: %v", err)
	}

	got, err := st.Recompute(ctx, a.ID)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if got.ID != a2.ID {
		t.Fatalf("got %s, want latest family version %s", got.ID, a2.ID)
	}
}

func TestFamilyHistoryUnknown(t *testing.T) {
	st, _, _ := testStore(t)
	if _, err := st.FamilyHistory("kbn_missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestProvenanceExpandsLineage(t *testing.T) {
	st, _, _ := testStore(t)
	ctx := context.Background()

	a, _ := st.Create("a")
	e, _ := st.Edit(a.ID, "a edited")
	s, _ := st.Sum([]string{e.ID, a.ID})
	if _, err := st.Compute(ctx, s.ID, ""); err != nil {
		t.Fatalf("Compute: %v", err)
	}

	tree, err := st.Provenance(s.ID)
	if err != nil {
		t.Fatalf("Provenance: %v", err)
	}
	if tree.Block.ID != s.ID || len(tree.Parents) != 2 {
		t.Fatalf("unexpected root: %+v", tree)
	}
	if tree.Parents[0].Block.ID != e.ID || tree.Parents[1].Block.ID != a.ID {
		t.Fatalf("unexpected parent order: %s %s", tree.Parents[0].Block.ID, tree.Parents[1].Block.ID)
	}
	if len(tree.Parents[0].Parents) != 1 || tree.Parents[0].Parents[0].Block.ID != a.ID {
		t.Fatal("edit lineage not expanded")
	}
	if len(tree.Parents[1].Parents) != 0 {
		t.Fatal("leaf grew parents")
	}
}

func TestNotifyEvents(t *testing.T) {
	led := ledger.NewMemory()
	orc := &fakeOracle{conflict: "dates disagree"}
	var mu sync.Mutex
	var kinds []string
	st := NewStore(led, orc, slog.New(slog.DiscardHandler), func(kind string, b *models.Block) {
		mu.Lock()
		kinds = append(kinds, kind)
		mu.Unlock()
	})

	a, _ := st.Create("a")
	b, _ := st.Create("b")
	s, _ := st.Sum([]string{a.ID, b.ID})
	got, err := st.Compute(context.Background(), s.ID, "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if got.Conflict != "dates disagree" {
		t.Fatalf("conflict = %q", got.Conflict)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"created", "created", "created", "computed", "computed", "conflict", "computed"}
	if len(kinds) != len(want) {
		t.Fatalf("events = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("events = %v, want %v", kinds, want)
		}
	}
}
