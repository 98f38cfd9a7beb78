package pgstore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/cityfix/internal/geo"
	"github.com/linnemanlabs/cityfix/internal/postgres"
	"github.com/linnemanlabs/cityfix/internal/triage"
	"github.com/linnemanlabs/cityfix/internal/triage/pgstore"
)

func openStore(t *testing.T) *pgstore.Store {
	t.Helper()
	dsn := os.Getenv("CITYFIX_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CITYFIX_TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, dsn)
	if err != nil {
		t.Fatalf("postgres.NewPool: %v", err)
	}
	t.Cleanup(pool.Close)
	s, err := pgstore.New(ctx, pool)
	if err != nil {
		t.Fatalf("pgstore.New: %v", err)
	}
	return s
}

func newComplaint(loc *geo.Point) *triage.Complaint {
	return &triage.Complaint{
		ID:         ulid.Make().String(),
		CreatedAt:  time.Now().Truncate(time.Microsecond).UTC(),
		Location:   loc,
		Text:       "overflowing container near the school gate",
		Language:   "en",
		UICategory: "waste",
		ObjectType: "school",
		PhotoRef:   "photos/before.jpg",
		Image:      triage.ImageSignal{Label: "overflowing trash container", Confidence: 0.91, Relevant: true},
		Topic: triage.TextSignal{
			Category:           "garbage and illegal dumping",
			CategoryConfidence: 0.8,
			Urgency:            "high urgency",
			UrgencyConfidence:  0.7,
		},
		Department:         "Sanitation Services",
		Theme:              triage.ThemeWaste,
		RoutingExplanation: "Routing decision:\n- theme: waste",
		Confirmations:      1,
		PriorityScore:      0.71,
		PriorityLevel:      triage.PriorityMedium,
		Status:             triage.StatusNew,
	}
}

func insert(t *testing.T, s *pgstore.Store, c *triage.Complaint) {
	t.Helper()
	err := s.Intake(context.Background(), c.Location, 250, func(ctx context.Context, tx triage.IntakeTx) error {
		return tx.Insert(ctx, c)
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}
}

func TestInsertAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := newComplaint(&geo.Point{Lat: 43.2389, Lng: 76.8897})
	insert(t, s, c)

	got, ok, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("Get returned ok=false, want true")
	}

	assertEqual(t, "ID", c.ID, got.ID)
	assertEqual(t, "CreatedAt", c.CreatedAt, got.CreatedAt)
	assertEqual(t, "Lat", c.Location.Lat, got.Location.Lat)
	assertEqual(t, "Lng", c.Location.Lng, got.Location.Lng)
	assertEqual(t, "Text", c.Text, got.Text)
	assertEqual(t, "ObjectType", c.ObjectType, got.ObjectType)
	assertEqual(t, "Image", c.Image, got.Image)
	assertEqual(t, "Topic", c.Topic, got.Topic)
	assertEqual(t, "Department", c.Department, got.Department)
	assertEqual(t, "Theme", c.Theme, got.Theme)
	assertEqual(t, "PriorityScore", c.PriorityScore, got.PriorityScore)
	assertEqual(t, "PriorityLevel", c.PriorityLevel, got.PriorityLevel)
	assertEqual(t, "Status", c.Status, got.Status)
	assertEqual(t, "ExportStatus", triage.ExportNone, got.ExportStatus)
	if !got.ExportedAt.IsZero() {
		t.Errorf("ExportedAt = %v, want zero", got.ExportedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)

	_, ok, err := s.Get(context.Background(), "nonexistent-id")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing ID")
	}
}

func TestNoLocationRoundTrip(t *testing.T) {
	s := openStore(t)

	c := newComplaint(nil)
	insert(t, s, c)

	got, ok, err := s.Get(context.Background(), c.ID)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if got.Location != nil {
		t.Errorf("Location = %+v, want nil", got.Location)
	}
}

func TestUpdate(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := newComplaint(&geo.Point{Lat: 10, Lng: 10})
	insert(t, s, c)

	sent := time.Now().Truncate(time.Microsecond).UTC()
	got, err := s.Update(ctx, c.ID, func(c *triage.Complaint) error {
		c.Status = triage.StatusInProgress
		c.ExportStatus = triage.ExportStubSent
		c.ExportedAt = sent
		c.AfterPhotoRef = "photos/after.jpg"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	assertEqual(t, "Status", triage.StatusInProgress, got.Status)

	reread, _, err := s.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	assertEqual(t, "Status", triage.StatusInProgress, reread.Status)
	assertEqual(t, "ExportStatus", triage.ExportStubSent, reread.ExportStatus)
	assertEqual(t, "ExportedAt", sent, reread.ExportedAt)
	assertEqual(t, "AfterPhotoRef", "photos/after.jpg", reread.AfterPhotoRef)
}

func TestUpdateMissing(t *testing.T) {
	s := openStore(t)

	_, err := s.Update(context.Background(), "nonexistent-id", func(*triage.Complaint) error { return nil })
	if !errors.Is(err, triage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateErrorRollsBack(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := newComplaint(nil)
	insert(t, s, c)

	_, err := s.Update(ctx, c.ID, func(c *triage.Complaint) error {
		c.Status = triage.StatusDone
		return triage.ErrInvalidTransition
	})
	if !errors.Is(err, triage.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}

	got, _, _ := s.Get(ctx, c.ID)
	assertEqual(t, "Status", triage.StatusNew, got.Status)
}

func TestIntakeRecentAndRepresentative(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	// unique area per run so earlier runs do not leak into the window
	base := geo.Point{Lat: -60 + float64(time.Now().UnixNano()%1000)/100, Lng: 120}
	rep := newComplaint(&base)
	insert(t, s, rep)

	dup := newComplaint(&geo.Point{Lat: base.Lat + 0.0005, Lng: base.Lng})
	dup.DuplicateGroupID = rep.ID
	dup.Confirmations = 0

	err := s.Intake(ctx, dup.Location, 250, func(ctx context.Context, tx triage.IntakeTx) error {
		recent, err := tx.Recent(ctx, 5)
		if err != nil {
			return err
		}
		if len(recent) == 0 {
			return fmt.Errorf("expected at least one recent complaint")
		}
		r, ok, err := tx.Get(ctx, rep.ID)
		if err != nil || !ok {
			return fmt.Errorf("get representative: ok=%v err=%w", ok, err)
		}
		r.DuplicatesCount++
		if err := tx.Save(ctx, r); err != nil {
			return err
		}
		return tx.Insert(ctx, dup)
	})
	if err != nil {
		t.Fatalf("Intake: %v", err)
	}

	gotRep, _, _ := s.Get(ctx, rep.ID)
	assertEqual(t, "DuplicatesCount", 1, gotRep.DuplicatesCount)
	gotDup, _, _ := s.Get(ctx, dup.ID)
	assertEqual(t, "DuplicateGroupID", rep.ID, gotDup.DuplicateGroupID)
	assertEqual(t, "Confirmations", 0, gotDup.Confirmations)
}

func TestIntakeRollback(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	c := newComplaint(nil)
	boom := errors.New("boom")
	err := s.Intake(ctx, nil, 0, func(ctx context.Context, tx triage.IntakeTx) error {
		if err := tx.Insert(ctx, c); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if _, ok, _ := s.Get(ctx, c.ID); ok {
		t.Error("insert should be rolled back")
	}
}

func TestConcurrentIntakeSerializesNearbyDuplicates(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	loc := geo.Point{Lat: 55 + float64(time.Now().UnixNano()%1000)/100, Lng: -30}
	rep := newComplaint(&loc)
	insert(t, s, rep)

	const n = 10
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			c := newComplaint(&geo.Point{Lat: loc.Lat + 0.0001, Lng: loc.Lng})
			c.DuplicateGroupID = rep.ID
			err := s.Intake(ctx, c.Location, 250, func(ctx context.Context, tx triage.IntakeTx) error {
				r, _, err := tx.Get(ctx, rep.ID)
				if err != nil {
					return err
				}
				r.DuplicatesCount++
				if err := tx.Save(ctx, r); err != nil {
					return err
				}
				return tx.Insert(ctx, c)
			})
			if err != nil {
				t.Errorf("Intake: %v", err)
			}
		}()
	}
	wg.Wait()

	got, _, _ := s.Get(ctx, rep.ID)
	assertEqual(t, "DuplicatesCount", n, got.DuplicatesCount)
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	older := newComplaint(nil)
	older.CreatedAt = older.CreatedAt.Add(-time.Hour)
	newer := newComplaint(nil)
	insert(t, s, older)
	insert(t, s, newer)

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	pos := map[string]int{}
	for i, c := range all {
		pos[c.ID] = i
	}
	if pos[newer.ID] > pos[older.ID] {
		t.Errorf("newer complaint listed after older one")
	}
}

func assertEqual[T comparable](t *testing.T, field string, want, got T) {
	t.Helper()
	if want != got {
		t.Errorf("%s: got %v, want %v", field, got, want)
	}
}
