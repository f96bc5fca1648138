package ledger

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/starford/othala/internal/apperr"
	"github.com/starford/othala/internal/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "othala-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// eachLedger runs the test body against both implementations.
func eachLedger(t *testing.T, fn func(t *testing.T, l Ledger)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, testDB(t)) })
}

func testBlock(id, family string, created time.Time) *models.Block {
	return &models.Block{
		ID:        id,
		FamilyID:  family,
		Content:   "content of " + id,
		Op:        models.OpCreate,
		ParentIDs: []string{},
		State:     models.StateUncomputed,
		CreatedAt: created,
	}
}

func TestBlockRoundTrip(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		b := &models.Block{
			ID:         "kbb_1",
			FamilyID:   "kbn_1",
			Content:    "merged text",
			ContentRaw: "<OUTPUT>merged text</OUTPUT>",
			Op:         models.OpSum,
			ParentIDs:  []string{"kbb_a", "kbb_b"},
			State:      models.StateComputed,
			Message:    "computed for test",
			Conflict:   "sources disagree on year",
			CreatedAt:  created,
			ComputedAt: created.Add(time.Minute),
		}
		if err := l.PutBlock(b); err != nil {
			t.Fatalf("PutBlock: %v", err)
		}

		got, err := l.GetBlock("kbb_1")
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if got.Content != b.Content || got.ContentRaw != b.ContentRaw {
			t.Errorf("content mismatch: %q / %q", got.Content, got.ContentRaw)
		}
		if got.Op != models.OpSum || got.State != models.StateComputed {
			t.Errorf("op/state = %s/%s", got.Op, got.State)
		}
		if len(got.ParentIDs) != 2 || got.ParentIDs[0] != "kbb_a" || got.ParentIDs[1] != "kbb_b" {
			t.Errorf("parent ids = %v", got.ParentIDs)
		}
		if got.Conflict != b.Conflict {
			t.Errorf("conflict = %q", got.Conflict)
		}
		if !got.ComputedAt.Equal(b.ComputedAt) {
			t.Errorf("computed_at = %v, want %v", got.ComputedAt, b.ComputedAt)
		}
	})
}

func TestPutBlockUpdatesExisting(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		b := testBlock("kbb_u", "kbn_u", time.Now().UTC())
		if err := l.PutBlock(b); err != nil {
			t.Fatalf("PutBlock: %v", err)
		}

		b.State = models.StateComputed
		b.ComputedAt = time.Now().UTC()
		b.Message = "done"
		if err := l.PutBlock(b); err != nil {
			t.Fatalf("PutBlock update: %v", err)
		}

		got, err := l.GetBlock("kbb_u")
		if err != nil {
			t.Fatalf("GetBlock: %v", err)
		}
		if !got.Computed() || got.Message != "done" {
			t.Errorf("update not persisted: state=%s message=%q", got.State, got.Message)
		}

		// The family index must not grow on update.
		fam, err := l.FamilyBlocks("kbn_u")
		if err != nil {
			t.Fatalf("FamilyBlocks: %v", err)
		}
		if len(fam) != 1 {
			t.Errorf("family has %d blocks, want 1", len(fam))
		}
	})
}

func TestGetBlockNotFound(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		_, err := l.GetBlock("kbb_missing")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFamilyBlocksOrdered(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		// Insert out of chronological order.
		for _, b := range []*models.Block{
			testBlock("kbb_3", "kbn_f", base.Add(2*time.Hour)),
			testBlock("kbb_1", "kbn_f", base),
			testBlock("kbb_2", "kbn_f", base.Add(time.Hour)),
			testBlock("kbb_other", "kbn_other", base),
		} {
			if err := l.PutBlock(b); err != nil {
				t.Fatalf("PutBlock: %v", err)
			}
		}

		fam, err := l.FamilyBlocks("kbn_f")
		if err != nil {
			t.Fatalf("FamilyBlocks: %v", err)
		}
		if len(fam) != 3 {
			t.Fatalf("expected 3 blocks, got %d", len(fam))
		}
		for i, want := range []string{"kbb_1", "kbb_2", "kbb_3"} {
			if fam[i].ID != want {
				t.Errorf("fam[%d] = %s, want %s", i, fam[i].ID, want)
			}
		}

		empty, err := l.FamilyBlocks("kbn_unknown")
		if err != nil {
			t.Fatalf("FamilyBlocks unknown: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("unknown family returned %d blocks", len(empty))
		}
	})
}

func TestDocumentRoundTrip(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		d := &models.Document{
			ID:        "kbd_1",
			BlockIDs:  []string{"kbb_1", "kbb_2"},
			CreatedAt: now,
			Log: []models.LogEntry{
				{Operation: models.DocOpCreate, Snapshot: []string{"kbb_1", "kbb_2"}, TMS: now},
			},
		}
		if err := l.CreateDocument(d); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		got, err := l.GetDocument("kbd_1")
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if len(got.BlockIDs) != 2 || got.BlockIDs[0] != "kbb_1" {
			t.Errorf("block ids = %v", got.BlockIDs)
		}
		if len(got.Log) != 1 || got.Log[0].Operation != models.DocOpCreate {
			t.Fatalf("log = %+v", got.Log)
		}

		_, err = l.GetDocument("kbd_missing")
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestUpdateDocumentAppendsLog(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		d := &models.Document{
			ID:        "kbd_log",
			BlockIDs:  []string{"kbb_1"},
			CreatedAt: now,
			Log: []models.LogEntry{
				{Operation: models.DocOpCreate, Snapshot: []string{"kbb_1"}, TMS: now},
			},
		}
		if err := l.CreateDocument(d); err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}

		d.BlockIDs = []string{"kbb_1", "kbb_2"}
		entry := models.LogEntry{
			Operation: models.DocOpAdd,
			Snapshot:  []string{"kbb_1", "kbb_2"},
			TMS:       now.Add(time.Minute),
			BlockIDs:  []string{"kbb_2"},
		}
		if err := l.UpdateDocument(d, entry); err != nil {
			t.Fatalf("UpdateDocument: %v", err)
		}

		d.BlockIDs = []string{"kbb_1", "kbb_2", "kbb_3"}
		entry2 := models.LogEntry{
			Operation: models.DocOpAdd,
			Snapshot:  []string{"kbb_1", "kbb_2", "kbb_3"},
			TMS:       now.Add(2 * time.Minute),
			BlockIDs:  []string{"kbb_3"},
		}
		if err := l.UpdateDocument(d, entry2); err != nil {
			t.Fatalf("UpdateDocument: %v", err)
		}

		got, err := l.GetDocument("kbd_log")
		if err != nil {
			t.Fatalf("GetDocument: %v", err)
		}
		if len(got.Log) != 3 {
			t.Fatalf("log length = %d, want 3", len(got.Log))
		}
		ops := []string{models.DocOpCreate, models.DocOpAdd, models.DocOpAdd}
		for i, want := range ops {
			if got.Log[i].Operation != want {
				t.Errorf("log[%d].operation = %s, want %s", i, got.Log[i].Operation, want)
			}
		}
		if got.Log[2].Snapshot[2] != "kbb_3" {
			t.Errorf("last snapshot = %v", got.Log[2].Snapshot)
		}
		if len(got.BlockIDs) != 3 {
			t.Errorf("block ids = %v", got.BlockIDs)
		}

		err = l.UpdateDocument(&models.Document{ID: "kbd_missing"}, entry)
		if !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestIngestRecords(t *testing.T) {
	eachLedger(t, func(t *testing.T, l Ledger) {
		state, err := l.IngestState()
		if err != nil {
			t.Fatalf("IngestState: %v", err)
		}
		if len(state) != 0 {
			t.Fatalf("expected empty state, got %d entries", len(state))
		}

		if err := l.SetIngestRecord("notes/a.txt", IngestRecord{BlockID: "kbb_1", Checksum: "sum1"}); err != nil {
			t.Fatalf("SetIngestRecord: %v", err)
		}
		if err := l.SetIngestRecord("notes/a.txt", IngestRecord{BlockID: "kbb_2", Checksum: "sum2"}); err != nil {
			t.Fatalf("SetIngestRecord update: %v", err)
		}

		state, err = l.IngestState()
		if err != nil {
			t.Fatalf("IngestState: %v", err)
		}
		rec, ok := state["notes/a.txt"]
		if !ok {
			t.Fatal("record missing")
		}
		if rec.BlockID != "kbb_2" || rec.Checksum != "sum2" {
			t.Errorf("record = %+v", rec)
		}
	})
}
