package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type note struct {
	ID     string    `json:"id"`
	UserID string    `json:"userId"`
	Title  string    `json:"title"`
	Rank   int       `json:"rank"`
	Done   bool      `json:"done"`
	At     time.Time `json:"at"`
}

// forEachStore runs fn against a fresh bolt and a fresh sqlite store.
func forEachStore(t *testing.T, fn func(t *testing.T, s DocumentStore)) {
	t.Helper()
	openers := map[string]func(string) (DocumentStore, error){
		"bolt":   func(dir string) (DocumentStore, error) { return NewBoltStore(dir) },
		"sqlite": func(dir string) (DocumentStore, error) { return NewSQLiteStore(dir) },
	}
	for name, open := range openers {
		t.Run(name, func(t *testing.T) {
			s, err := open(t.TempDir())
			if err != nil {
				t.Fatalf("open %s: %v", name, err)
			}
			t.Cleanup(func() { s.Close() })
			fn(t, s)
		})
	}
}

func titles(t *testing.T, docs []Document) []string {
	t.Helper()
	var out []string
	for _, d := range docs {
		var n note
		if err := d.Decode(&n); err != nil {
			t.Fatalf("Decode(%s): %v", d.ID, err)
		}
		out = append(out, n.Title)
	}
	return out
}

func TestSetGetUpdateDelete(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
		want := note{ID: "n1", UserID: "u1", Title: "first", Rank: 1, At: at}

		if err := s.Set(ctx, "notes", "n1", want); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		doc, err := s.Get(ctx, "notes", "n1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		var got note
		if err := doc.Decode(&got); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Get() mismatch (-want +got):\n%s", diff)
		}

		if err := s.Update(ctx, "notes", "n1", map[string]interface{}{"done": true, "title": "renamed"}); err != nil {
			t.Fatalf("Update() error = %v", err)
		}
		doc, _ = s.Get(ctx, "notes", "n1")
		got = note{}
		doc.Decode(&got)
		if !got.Done || got.Title != "renamed" || got.Rank != 1 || !got.At.Equal(at) {
			t.Errorf("after Update() = %+v", got)
		}

		if err := s.Update(ctx, "notes", "missing", map[string]interface{}{"done": true}); !errors.Is(err, ErrNotFound) {
			t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
		}

		if err := s.Delete(ctx, "notes", "n1"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "notes", "n1"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
		}
	})
}

func TestQueryFiltersAndOrder(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
		notes := []note{
			{ID: "a", UserID: "u1", Title: "old", Rank: 3, At: base},
			{ID: "b", UserID: "u1", Title: "new", Rank: 1, At: base.Add(90 * time.Minute), Done: true},
			{ID: "c", UserID: "u2", Title: "other", Rank: 2, At: base.Add(time.Hour)},
			{ID: "d", UserID: "u1", Title: "mid", Rank: 2, At: base.Add(500 * time.Millisecond)},
		}
		var ops []Op
		for _, n := range notes {
			ops = append(ops, SetOp("notes", n.ID, n))
		}
		if err := s.Batch(ctx, ops); err != nil {
			t.Fatalf("Batch() error = %v", err)
		}

		tests := []struct {
			name    string
			filters []Filter
			order   *Order
			want    []string
		}{
			{"by user, time desc", []Filter{Where("userId", "u1")}, &Order{Field: "at", Desc: true}, []string{"new", "mid", "old"}},
			{"by user, rank asc", []Filter{Where("userId", "u1")}, &Order{Field: "rank"}, []string{"new", "mid", "old"}},
			{"bool filter", []Filter{Where("userId", "u1"), Where("done", true)}, nil, []string{"new"}},
			{"number filter", []Filter{Where("rank", 2)}, &Order{Field: "title"}, []string{"mid", "other"}},
			{"no match", []Filter{Where("userId", "nobody")}, nil, nil},
		}
		for _, tt := range tests {
			docs, err := s.Query(ctx, "notes", tt.filters, tt.order)
			if err != nil {
				t.Fatalf("%s: Query() error = %v", tt.name, err)
			}
			if diff := cmp.Diff(tt.want, titles(t, docs)); diff != "" {
				t.Errorf("%s: Query() mismatch (-want +got):\n%s", tt.name, diff)
			}
		}
	})
}

func TestBatchIsAtomic(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DocumentStore) {
		ctx := context.Background()
		err := s.Batch(ctx, []Op{
			SetOp("notes", "x", note{ID: "x", Title: "x"}),
			UpdateOp("notes", "does-not-exist", map[string]interface{}{"title": "y"}),
		})
		if err == nil {
			t.Fatal("Batch() with failing op = nil error")
		}
		if _, err := s.Get(ctx, "notes", "x"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get(x) after failed batch error = %v, want ErrNotFound", err)
		}
	})
}

func TestQueryUnknownCollection(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DocumentStore) {
		docs, err := s.Query(context.Background(), "nothing-here", nil, nil)
		if err != nil || len(docs) != 0 {
			t.Errorf("Query(empty collection) = %v, %v", docs, err)
		}
	})
}
