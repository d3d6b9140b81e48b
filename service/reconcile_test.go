package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mailbridge/mailerr"
	"mailbridge/models"
)

func TestReconcileIsIdempotent(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.emails)
	ctx := context.Background()

	fetched := []*models.NormalizedMessage{
		message("a@example.com", "a"),
		message("b@example.com", "b"),
		message("c@example.com", "c"),
	}

	first, err := r.Reconcile(ctx, "u1", "acct", fetched)
	if err != nil {
		t.Fatalf("first Reconcile() error = %v", err)
	}
	if first.InsertedCount != 3 || first.TotalFetched != 3 {
		t.Errorf("first Reconcile() = %+v, want 3 of 3 inserted", first)
	}

	second, err := r.Reconcile(ctx, "u1", "acct", fetched)
	if err != nil {
		t.Fatalf("second Reconcile() error = %v", err)
	}
	if second.InsertedCount != 0 || second.TotalFetched != 3 {
		t.Errorf("second Reconcile() = %+v, want 0 of 3 inserted", second)
	}

	stored, err := f.emails.ListByFolder(ctx, "u1", models.FolderInbox)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Errorf("stored %d emails, want 3", len(stored))
	}
}

func TestReconcileScopesDedupToUser(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.emails)
	ctx := context.Background()

	msgs := []*models.NormalizedMessage{message("shared@example.com", "s")}
	if _, err := r.Reconcile(ctx, "u1", "a1", msgs); err != nil {
		t.Fatal(err)
	}
	res, err := r.Reconcile(ctx, "u2", "a2", msgs)
	if err != nil {
		t.Fatal(err)
	}
	if res.InsertedCount != 1 {
		t.Errorf("InsertedCount for second user = %d, want 1", res.InsertedCount)
	}
}

func TestReconcileMessagesWithoutID(t *testing.T) {
	f := newFixture(t)
	r := NewReconciler(f.emails)
	ctx := context.Background()

	noID1 := message("", "first")
	noID2 := message("", "second")
	dup := message("", "first")

	res, err := r.Reconcile(ctx, "u1", "acct", []*models.NormalizedMessage{noID1, noID2, dup})
	if err != nil {
		t.Fatal(err)
	}
	if res.InsertedCount != 2 {
		t.Errorf("InsertedCount = %d, want 2 distinct id-less messages", res.InsertedCount)
	}

	res, err = r.Reconcile(ctx, "u1", "acct", []*models.NormalizedMessage{message("", "first")})
	if err != nil {
		t.Fatal(err)
	}
	if res.InsertedCount != 0 {
		t.Errorf("InsertedCount on resync = %d, want 0", res.InsertedCount)
	}
}

func TestDedupKey(t *testing.T) {
	withID := message("  <kept>  ", "x")
	if got := DedupKey(withID); got != "<kept>" {
		t.Errorf("DedupKey() = %q, want trimmed Message-ID", got)
	}

	a := message("", "same")
	b := message("", "same")
	if DedupKey(a) != DedupKey(b) {
		t.Error("DedupKey() differs for identical id-less messages")
	}
	if !strings.HasPrefix(DedupKey(a), syntheticPrefix) {
		t.Errorf("DedupKey() = %q, want %q prefix", DedupKey(a), syntheticPrefix)
	}

	// A defaulted date must not change the key between syncs.
	c := message("", "undated")
	c.DateMissing = true
	d := message("", "undated")
	d.DateMissing = true
	d.ReceivedAt = c.ReceivedAt.Add(time.Hour)
	if DedupKey(c) != DedupKey(d) {
		t.Error("DedupKey() depends on the defaulted parse time")
	}

	e := message("", "dated")
	g := message("", "dated")
	g.ReceivedAt = e.ReceivedAt.Add(time.Hour)
	if DedupKey(e) == DedupKey(g) {
		t.Error("DedupKey() ignores a real Date header")
	}
}

func TestReconcileBatchFailureReportsNothing(t *testing.T) {
	f := newFixture(t)
	emails := &failingEmails{EmailRepository: f.emails, failInsert: &mailerr.StoreError{Op: "insert emails", Err: errDisk}}
	r := NewReconciler(emails)

	res, err := r.Reconcile(context.Background(), "u1", "acct", []*models.NormalizedMessage{message("a@x", "a")})
	if res != nil {
		t.Errorf("Reconcile() result = %+v, want nil on failure", res)
	}
	var se *mailerr.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Reconcile() error = %v, want *mailerr.StoreError", err)
	}
}
