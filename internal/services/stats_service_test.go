package services

import (
	"context"
	"testing"
	"time"

	"dailyledger/internal/core"
)

func waitFor(t *testing.T, ch chan string, want string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-ch:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot write %q", want)
		}
	}
}

func expectNoWrite(t *testing.T, ch chan string) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("unexpected snapshot write %q", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func newTestStatsService(store *fakeStore) *StatsService {
	return NewStatsService(store, 10*time.Second, time.Second)
}

func TestStatsService_GetMonthly_MissingServesPlaceholderAndRecomputes(t *testing.T) {
	store := newFakeStore()
	store.members = []core.Member{testMember("m1", "u1", "1000", "2024-01-01")}
	store.txns = []core.Transaction{testTxn("u1", "m1", "2024-01-10", "400")}
	svc := newTestStatsService(store)

	month := core.Month{Year: 2024, Month: time.January}
	got, err := svc.GetMonthly(context.Background(), "u1", month)
	if err != nil {
		t.Fatalf("GetMonthly() error = %v", err)
	}
	if got.Month != "2024-01" {
		t.Errorf("placeholder Month = %q", got.Month)
	}
	if !got.TotalCollected.IsZero() {
		t.Errorf("placeholder TotalCollected = %s, want 0", got.TotalCollected)
	}

	waitFor(t, store.wroteMonthly, "2024-01")

	stored, _ := store.ReadMonthlySnapshot(context.Background(), "u1", "2024-01")
	if stored == nil {
		t.Fatal("recompute did not persist a snapshot")
	}
	if !stored.TotalCollected.Equal(dec("400")) {
		t.Errorf("TotalCollected = %s, want 400", stored.TotalCollected)
	}
	if !stored.TotalOutstanding.Equal(dec("600")) {
		t.Errorf("TotalOutstanding = %s, want 600", stored.TotalOutstanding)
	}
}

func TestStatsService_GetMonthly_FreshSnapshotServedWithoutRecompute(t *testing.T) {
	store := newFakeStore()
	svc := newTestStatsService(store)

	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	snap := core.EmptyMonthlySnapshot("2024-03")
	snap.TotalCollected = dec("250")
	snap.UpdatedAt = fixed.Add(-5 * time.Second)
	store.monthly[snapshotKey("u1", "2024-03")] = snap

	got, err := svc.GetMonthly(context.Background(), "u1", core.Month{Year: 2024, Month: time.March})
	if err != nil {
		t.Fatalf("GetMonthly() error = %v", err)
	}
	if !got.TotalCollected.Equal(dec("250")) {
		t.Errorf("TotalCollected = %s, want stored 250", got.TotalCollected)
	}

	expectNoWrite(t, store.wroteMonthly)
}

func TestStatsService_GetMonthly_StaleSnapshotServedThenRefreshed(t *testing.T) {
	store := newFakeStore()
	store.members = []core.Member{testMember("m1", "u1", "1000", "2024-01-01")}
	store.txns = []core.Transaction{testTxn("u1", "m1", "2024-01-10", "400")}
	svc := newTestStatsService(store)

	fixed := time.Date(2024, 1, 20, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	stale := core.EmptyMonthlySnapshot("2024-01")
	stale.TotalCollected = dec("999") // out of date on purpose
	stale.UpdatedAt = fixed.Add(-time.Minute)
	store.monthly[snapshotKey("u1", "2024-01")] = stale

	got, err := svc.GetMonthly(context.Background(), "u1", core.Month{Year: 2024, Month: time.January})
	if err != nil {
		t.Fatalf("GetMonthly() error = %v", err)
	}
	if !got.TotalCollected.Equal(dec("999")) {
		t.Errorf("stale read TotalCollected = %s, want 999 served as-is", got.TotalCollected)
	}

	waitFor(t, store.wroteMonthly, "2024-01")

	stored, _ := store.ReadMonthlySnapshot(context.Background(), "u1", "2024-01")
	if !stored.TotalCollected.Equal(dec("400")) {
		t.Errorf("refreshed TotalCollected = %s, want 400", stored.TotalCollected)
	}
}

func TestStatsService_GetDaily_MissingServesPlaceholderAndRecomputes(t *testing.T) {
	store := newFakeStore()
	store.members = []core.Member{testMember("m1", "u1", "1000", "2024-01-01")}
	store.txns = []core.Transaction{testTxn("u1", "m1", "2024-01-10", "400")}
	svc := newTestStatsService(store)

	day := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	got, err := svc.GetDaily(context.Background(), "u1", day)
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if got.Date != "2024-01-10" {
		t.Errorf("placeholder Date = %q", got.Date)
	}
	if len(got.Paid) != 0 || len(got.Pending) != 0 {
		t.Error("placeholder should have no member lists")
	}

	waitFor(t, store.wroteDaily, "2024-01-10")

	stored, _ := store.ReadDailySnapshot(context.Background(), "u1", "2024-01-10")
	if stored == nil {
		t.Fatal("recompute did not persist a snapshot")
	}
	if !stored.TotalCollected.Equal(dec("400")) {
		t.Errorf("TotalCollected = %s, want 400", stored.TotalCollected)
	}
	if len(stored.Paid) != 1 || stored.Paid[0].MemberID != "m1" {
		t.Errorf("Paid = %+v, want m1", stored.Paid)
	}
}

func TestStatsService_GetDaily_ExistingSnapshotServedAsStored(t *testing.T) {
	store := newFakeStore()
	svc := newTestStatsService(store)

	snap := core.EmptyDailySnapshot("2024-01-10")
	snap.TotalCollected = dec("77")
	snap.UpdatedAt = time.Now().Add(-time.Hour)
	store.daily[snapshotKey("u1", "2024-01-10")] = snap

	got, err := svc.GetDaily(context.Background(), "u1", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("GetDaily() error = %v", err)
	}
	if !got.TotalCollected.Equal(dec("77")) {
		t.Errorf("TotalCollected = %s, want stored 77", got.TotalCollected)
	}

	expectNoWrite(t, store.wroteDaily)
}

func TestStatsService_RecomputeMonthly_WriteFailureKeepsOldSnapshot(t *testing.T) {
	store := newFakeStore()
	store.members = []core.Member{testMember("m1", "u1", "1000", "2024-01-01")}

	old := core.EmptyMonthlySnapshot("2024-01")
	old.TotalCollected = dec("321")
	store.monthly[snapshotKey("u1", "2024-01")] = old
	store.failWrites = true

	svc := newTestStatsService(store)
	_, err := svc.RecomputeMonthly(context.Background(), "u1", core.Month{Year: 2024, Month: time.January})
	if err == nil {
		t.Fatal("RecomputeMonthly() should surface the write failure")
	}

	stored, _ := store.ReadMonthlySnapshot(context.Background(), "u1", "2024-01")
	if !stored.TotalCollected.Equal(dec("321")) {
		t.Errorf("stored snapshot changed after failed write: %s", stored.TotalCollected)
	}
}

func TestStatsService_InvalidateDay_RefreshesDayMonthAndCurrentMonth(t *testing.T) {
	store := newFakeStore()
	store.members = []core.Member{testMember("m1", "u1", "1000", "2024-01-01")}
	svc := newTestStatsService(store)

	fixed := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	svc.InvalidateDay("u1", time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))

	waitFor(t, store.wroteDaily, "2024-01-10")

	months := map[string]bool{}
	deadline := time.After(2 * time.Second)
	for len(months) < 2 {
		select {
		case m := <-store.wroteMonthly:
			months[m] = true
		case <-deadline:
			t.Fatalf("timed out; refreshed months = %v", months)
		}
	}
	if !months["2024-01"] || !months["2024-03"] {
		t.Errorf("refreshed months = %v, want 2024-01 and 2024-03", months)
	}
}
