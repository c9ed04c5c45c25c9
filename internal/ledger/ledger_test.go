package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/af-corp/quieter-gateway/internal/sqlitedb"
)

func newTestLedger(t *testing.T) (*Ledger, *sqlitedb.DB) {
	t.Helper()
	db, err := sqlitedb.Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(NewSQLStore(db.DB)), db
}

func countUsage(t *testing.T, db *sqlitedb.DB, requestID string) int {
	t.Helper()
	var n int
	if err := db.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM usage_logs WHERE request_id = ?`, requestID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func success(requestID string, billed int64) Success {
	return Success{
		RequestID:    requestID,
		TenantID:     "tenant-1",
		ModelID:      "gpt-4o-mini",
		LatencyMs:    420,
		InputTokens:  1000,
		OutputTokens: 500,
		Redactions:   3,
		ProviderCost: billed,
		BilledCost:   billed,
	}
}

func TestSettle_RecordsAndDecrements(t *testing.T) {
	ctx := context.Background()
	l, db := newTestLedger(t)

	if err := l.Credit(ctx, "tenant-1", "dev", 1000); err != nil {
		t.Fatal(err)
	}

	id, err := l.Settle(ctx, success("req-1", 20))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if id == "" {
		t.Error("expected usage id")
	}

	b, err := l.Balance(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if b.CreditsCents != 980 {
		t.Errorf("expected 980 credits, got %d", b.CreditsCents)
	}
	if b.Plan != "dev" {
		t.Errorf("expected plan dev, got %s", b.Plan)
	}

	if n := countUsage(t, db, "req-1"); n != 1 {
		t.Errorf("expected 1 usage row, got %d", n)
	}

	usage, err := l.Usage(ctx, "tenant-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(usage))
	}
	rec := usage[0]
	if rec.Status != StatusSuccess || rec.TotalTokens != 1500 || rec.Redactions != 3 {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.ModelID == nil || *rec.ModelID != "gpt-4o-mini" {
		t.Errorf("unexpected model id: %v", rec.ModelID)
	}
	if rec.BilledCents == nil || *rec.BilledCents != 20 {
		t.Errorf("unexpected billed cents: %v", rec.BilledCents)
	}
	if rec.LatencyMs == nil || *rec.LatencyMs != 420 {
		t.Errorf("unexpected latency: %v", rec.LatencyMs)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("expected created_at to round-trip")
	}
}

func TestSettle_DuplicateRequestIsNoop(t *testing.T) {
	ctx := context.Background()
	l, db := newTestLedger(t)
	if err := l.Credit(ctx, "tenant-1", "dev", 1000); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Settle(ctx, success("req-dup", 20)); err != nil {
		t.Fatal(err)
	}
	_, err := l.Settle(ctx, success("req-dup", 20))
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Fatalf("expected ErrDuplicateRequest, got %v", err)
	}

	b, _ := l.Balance(ctx, "tenant-1")
	if b.CreditsCents != 980 {
		t.Errorf("duplicate settle charged again: %d", b.CreditsCents)
	}
	if n := countUsage(t, db, "req-dup"); n != 1 {
		t.Errorf("expected 1 usage row, got %d", n)
	}
}

func TestSettle_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	l, db := newTestLedger(t)
	if err := l.Credit(ctx, "tenant-1", "dev", 1000); err != nil {
		t.Fatal(err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		settled int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Settle(ctx, success("req-race", 7))
			if err == nil {
				mu.Lock()
				settled++
				mu.Unlock()
			} else if !errors.Is(err, ErrDuplicateRequest) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if settled != 1 {
		t.Errorf("expected exactly one settlement, got %d", settled)
	}
	b, _ := l.Balance(ctx, "tenant-1")
	if b.CreditsCents != 993 {
		t.Errorf("expected 993 credits, got %d", b.CreditsCents)
	}
	if n := countUsage(t, db, "req-race"); n != 1 {
		t.Errorf("expected 1 usage row, got %d", n)
	}
}

func TestSettle_MissingBalanceGoesNegative(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if _, err := l.Settle(ctx, success("req-neg", 15)); err != nil {
		t.Fatal(err)
	}
	b, err := l.Balance(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if b.CreditsCents != -15 {
		t.Errorf("expected -15 credits, got %d", b.CreditsCents)
	}
	if b.Plan != "dev" {
		t.Errorf("expected default plan, got %q", b.Plan)
	}
}

func TestSettle_RollsBackOnDecrementFailure(t *testing.T) {
	ctx := context.Background()
	l, db := newTestLedger(t)

	if _, err := db.ExecContext(ctx, `DROP TABLE balances`); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Settle(ctx, success("req-rollback", 10)); err == nil {
		t.Fatal("expected settle to fail without balances table")
	}
	if n := countUsage(t, db, "req-rollback"); n != 0 {
		t.Errorf("usage row must not survive a failed decrement, got %d", n)
	}
}

func TestRecordFailure(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)
	if err := l.Credit(ctx, "tenant-1", "pro", 500); err != nil {
		t.Fatal(err)
	}

	if _, err := l.RecordFailure(ctx, Failure{RequestID: "req-fail", TenantID: "tenant-1", Redactions: 2}); err != nil {
		t.Fatalf("RecordFailure failed: %v", err)
	}

	b, _ := l.Balance(ctx, "tenant-1")
	if b.CreditsCents != 500 {
		t.Errorf("failure must not charge, credits = %d", b.CreditsCents)
	}

	usage, err := l.Usage(ctx, "tenant-1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 1 {
		t.Fatalf("expected 1 record, got %d", len(usage))
	}
	rec := usage[0]
	if rec.Status != StatusError {
		t.Errorf("expected error status, got %s", rec.Status)
	}
	if rec.ModelID != nil || rec.LatencyMs != nil || rec.ProviderCostCents != nil || rec.BilledCents != nil {
		t.Errorf("expected null model/latency/cost, got %+v", rec)
	}
	if rec.Redactions != 2 || rec.TotalTokens != 0 {
		t.Errorf("unexpected counts: %+v", rec)
	}

	// A second failure for the same request is rejected.
	_, err = l.RecordFailure(ctx, Failure{RequestID: "req-fail", TenantID: "tenant-1"})
	if !errors.Is(err, ErrDuplicateRequest) {
		t.Errorf("expected ErrDuplicateRequest, got %v", err)
	}
}

func TestDecrementBalance(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	if err := l.DecrementBalance(ctx, "tenant-2", 30); err != nil {
		t.Fatal(err)
	}
	if err := l.DecrementBalance(ctx, "tenant-2", 12); err != nil {
		t.Fatal(err)
	}
	b, _ := l.Balance(ctx, "tenant-2")
	if b.CreditsCents != -42 {
		t.Errorf("expected -42, got %d", b.CreditsCents)
	}

	if err := l.DecrementBalance(ctx, "", 1); !errors.Is(err, ErrInvalidRecord) {
		t.Errorf("expected ErrInvalidRecord, got %v", err)
	}
}

func TestBalance_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Balance(context.Background(), "ghost"); !errors.Is(err, ErrBalanceNotFound) {
		t.Errorf("expected ErrBalanceNotFound, got %v", err)
	}
}

func TestRecord_Validation(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	tests := []struct {
		name string
		rec  UsageRecord
	}{
		{"missing request id", UsageRecord{TenantID: "t", Status: StatusSuccess}},
		{"missing tenant", UsageRecord{RequestID: "r", Status: StatusSuccess}},
		{"bad status", UsageRecord{RequestID: "r", TenantID: "t", Status: "pending"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := l.Record(ctx, tt.rec); !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("expected ErrInvalidRecord, got %v", err)
			}
		})
	}
}

func TestUsage_NewestFirst(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLedger(t)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		_, err := l.Record(ctx, UsageRecord{
			RequestID: id,
			TenantID:  "tenant-1",
			Status:    StatusError,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	usage, err := l.Usage(ctx, "tenant-1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(usage) != 2 || usage[0].RequestID != "r3" || usage[1].RequestID != "r2" {
		t.Errorf("unexpected order: %+v", usage)
	}
}

func TestUsage_EmptyIsNotNil(t *testing.T) {
	l, _ := newTestLedger(t)
	usage, err := l.Usage(context.Background(), "tenant-1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if usage == nil || len(usage) != 0 {
		t.Errorf("expected an empty, non-nil slice, got %#v", usage)
	}
}

func TestSQLStore_CorruptTimestamps(t *testing.T) {
	ctx := context.Background()
	l, db := newTestLedger(t)

	if err := l.Credit(ctx, "tenant-1", "dev", 100); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Record(ctx, UsageRecord{RequestID: "r1", TenantID: "tenant-1", Status: StatusError}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE balances SET updated_at = 'yesterday'`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE usage_logs SET created_at = 'not a time'`); err != nil {
		t.Fatal(err)
	}

	if _, err := l.Balance(ctx, "tenant-1"); err == nil || !strings.Contains(err.Error(), "parse updated_at") {
		t.Errorf("Balance error = %v, want parse updated_at", err)
	}
	if _, err := l.Usage(ctx, "tenant-1", 10); err == nil || !strings.Contains(err.Error(), "parse created_at") {
		t.Errorf("Usage error = %v, want parse created_at", err)
	}
}

type failingStore struct {
	Store
	err error
}

func (f failingStore) SettleUsage(context.Context, UsageRecord) (bool, error) { return false, f.err }
func (f failingStore) InsertUsage(context.Context, UsageRecord) (bool, error) { return false, f.err }

func TestLedger_StoreErrorsPropagate(t *testing.T) {
	boom := errors.New("disk full")
	l := New(failingStore{err: boom})

	if _, err := l.Settle(context.Background(), success("r", 1)); !errors.Is(err, boom) {
		t.Errorf("Settle: expected wrapped store error, got %v", err)
	}
	if _, err := l.RecordFailure(context.Background(), Failure{RequestID: "r", TenantID: "t"}); !errors.Is(err, boom) {
		t.Errorf("RecordFailure: expected wrapped store error, got %v", err)
	}
}
