package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"honeytrap/internal/schema"

	"github.com/ClickHouse/clickhouse-go/v2/lib/column"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ---------------------------------------------------------------------------
// Mock implementations of driver.Conn and driver.Batch for unit testing
// without a real ClickHouse connection.
// ---------------------------------------------------------------------------

type mockConn struct {
	prepareBatchFunc func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
}

func (m *mockConn) Contributors() []string                                           { return nil }
func (m *mockConn) ServerVersion() (*driver.ServerVersion, error)                    { return nil, nil }
func (m *mockConn) Select(_ context.Context, _ any, _ string, _ ...any) error        { return nil }
func (m *mockConn) Query(_ context.Context, _ string, _ ...any) (driver.Rows, error) { return nil, nil }
func (m *mockConn) QueryRow(_ context.Context, _ string, _ ...any) driver.Row        { return nil }
func (m *mockConn) Exec(_ context.Context, _ string, _ ...any) error                 { return nil }
func (m *mockConn) AsyncInsert(_ context.Context, _ string, _ bool, _ ...any) error  { return nil }
func (m *mockConn) Ping(_ context.Context) error                                     { return nil }
func (m *mockConn) Stats() driver.Stats                                              { return driver.Stats{} }
func (m *mockConn) Close() error                                                     { return nil }

func (m *mockConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	if m.prepareBatchFunc != nil {
		return m.prepareBatchFunc(ctx, query, opts...)
	}
	return &mockBatch{}, nil
}

type mockBatch struct {
	mu          sync.Mutex
	appendCount int
	sendFunc    func() error
}

func (m *mockBatch) Abort() error { return nil }
func (m *mockBatch) Append(_ ...any) error {
	m.mu.Lock()
	m.appendCount++
	m.mu.Unlock()
	return nil
}
func (m *mockBatch) AppendStruct(_ any) error        { return nil }
func (m *mockBatch) Column(_ int) driver.BatchColumn { return nil }
func (m *mockBatch) Flush() error                    { return nil }
func (m *mockBatch) Send() error {
	if m.sendFunc != nil {
		return m.sendFunc()
	}
	return nil
}
func (m *mockBatch) IsSent() bool                { return false }
func (m *mockBatch) Rows() int                   { return m.appendCount }
func (m *mockBatch) Columns() []column.Interface { return nil }
func (m *mockBatch) Close() error                { return nil }

func (m *mockBatch) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCount
}

// tableBatches routes PrepareBatch calls to a per-table mock batch so tests
// can inspect how many rows landed in each table.
type tableBatches struct {
	mu      sync.Mutex
	batches map[string]*mockBatch
}

func newTableBatches() *tableBatches {
	return &tableBatches{batches: make(map[string]*mockBatch)}
}

func (tb *tableBatches) prepare(_ context.Context, query string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	for _, table := range []string{"sessions", "messages", "intelligence"} {
		if strings.Contains(query, "INSERT INTO "+table) {
			if tb.batches[table] == nil {
				tb.batches[table] = &mockBatch{}
			}
			return tb.batches[table], nil
		}
	}
	return nil, fmt.Errorf("unexpected query: %s", query)
}

func (tb *tableBatches) rows(table string) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	if tb.batches[table] == nil {
		return 0
	}
	return tb.batches[table].rows()
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func newArchivedSession(id string, withIntel bool) *schema.Session {
	now := time.Now()
	sess := &schema.Session{
		ID:             id,
		CreatedAt:      now.Add(-5 * time.Minute),
		UpdatedAt:      now,
		MessageCount:   2,
		ScamDetected:   true,
		ScamConfidence: 0.92,
		ScamType:       "digital_arrest",
		Indicators:     []string{"urgency", "authority_claim"},
		AgentActivated: true,
		Reported:       true,
		ReportedAt:     &now,
		Metadata:       map[string]string{"channel": "sms"},
		Messages: []schema.Message{
			{Sender: schema.SenderScammer, Text: "This is CBI. Your account is frozen.", Timestamp: now.Add(-time.Minute).UnixMilli()},
			{Sender: schema.SenderHoneypot, Text: "Hello? Who is this beta?", Timestamp: now.UnixMilli()},
		},
	}
	if withIntel {
		intel := schema.EmptyIntelligence()
		intel.Financial.UPIIDs = []string{"fraudster@ybl"}
		intel.Risk.ThreatLevel = "high"
		intel.Risk.RiskScore = 85
		intel.ExtractedAt = now
		sess.Intelligence = intel
	}
	return sess
}

func newMockClient(conn driver.Conn) *ClickHouseClient {
	return &ClickHouseClient{
		conn:   conn,
		config: DefaultClickHouseConfig(),
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestDefaultArchiverConfig(t *testing.T) {
	cfg := DefaultArchiverConfig()

	if cfg.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", cfg.BatchSize)
	}
	if cfg.FlushInterval != 5*time.Second {
		t.Errorf("FlushInterval = %v, want 5s", cfg.FlushInterval)
	}
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.RetryDelay != time.Second {
		t.Errorf("RetryDelay = %v, want 1s", cfg.RetryDelay)
	}
}

func TestNewArchiver(t *testing.T) {
	cfg := DefaultArchiverConfig()
	client := newMockClient(&mockConn{})
	a := NewArchiver(client, cfg)
	defer a.Close()

	if a.client != client {
		t.Error("client not set correctly")
	}
	if len(a.buffer) != 0 {
		t.Errorf("initial buffer length = %d, want 0", len(a.buffer))
	}
	if cap(a.buffer) != cfg.BatchSize {
		t.Errorf("initial buffer capacity = %d, want %d", cap(a.buffer), cfg.BatchSize)
	}
	if a.flushTimer == nil {
		t.Error("flush timer should be initialized")
	}

	metrics := a.Metrics()
	if metrics.Written != 0 || metrics.Failed != 0 || metrics.Batches != 0 || metrics.Pending != 0 {
		t.Errorf("initial metrics should all be zero, got %+v", metrics)
	}
}

func TestArchiverBuffersSessions(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     100, // large enough so writes do not trigger a flush
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	client := newMockClient(&mockConn{})
	a := NewArchiver(client, cfg)
	defer a.Close()

	for i := 0; i < 5; i++ {
		if err := a.Archive(newArchivedSession(fmt.Sprintf("sess-%d", i), false)); err != nil {
			t.Fatalf("Archive() error on session %d: %v", i, err)
		}
	}

	metrics := a.Metrics()
	if metrics.Pending != 5 {
		t.Errorf("Pending = %d, want 5", metrics.Pending)
	}
	if metrics.Written != 0 {
		t.Errorf("Written = %d, want 0 (no flush triggered yet)", metrics.Written)
	}
	if metrics.Batches != 0 {
		t.Errorf("Batches = %d, want 0", metrics.Batches)
	}
}

func TestArchiverArchiveWhenClosed(t *testing.T) {
	cfg := DefaultArchiverConfig()
	client := newMockClient(&mockConn{})
	a := NewArchiver(client, cfg)

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	err := a.Archive(newArchivedSession("late", false))
	if !errors.Is(err, ErrClosed) {
		t.Errorf("Archive() after Close() error = %v, want ErrClosed", err)
	}
}

func TestArchiverFlushOnBatchSize(t *testing.T) {
	batchSize := 4
	cfg := ArchiverConfig{
		BatchSize:     batchSize,
		FlushInterval: time.Hour, // long interval to prevent timer flush
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}

	tb := newTableBatches()
	client := newMockClient(&mockConn{prepareBatchFunc: tb.prepare})
	a := NewArchiver(client, cfg)
	defer a.Close()

	// Archive exactly batchSize sessions; the last one triggers the flush.
	// Half the sessions carry extracted intelligence.
	for i := 0; i < batchSize; i++ {
		sess := newArchivedSession(fmt.Sprintf("sess-%d", i), i%2 == 0)
		if err := a.Archive(sess); err != nil {
			t.Fatalf("Archive() error on session %d: %v", i, err)
		}
	}

	metrics := a.Metrics()
	if metrics.Pending != 0 {
		t.Errorf("Pending = %d, want 0 after flush", metrics.Pending)
	}
	if metrics.Written != uint64(batchSize) {
		t.Errorf("Written = %d, want %d", metrics.Written, batchSize)
	}
	if metrics.Batches != 1 {
		t.Errorf("Batches = %d, want 1", metrics.Batches)
	}

	if got := tb.rows("sessions"); got != batchSize {
		t.Errorf("sessions rows = %d, want %d", got, batchSize)
	}
	// Each test session carries a 2-message transcript.
	if got := tb.rows("messages"); got != batchSize*2 {
		t.Errorf("messages rows = %d, want %d", got, batchSize*2)
	}
	if got := tb.rows("intelligence"); got != batchSize/2 {
		t.Errorf("intelligence rows = %d, want %d", got, batchSize/2)
	}
}

func TestArchiverSkipsIntelligenceBatchWhenAbsent(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}

	var intelPrepared atomic.Bool
	tb := newTableBatches()
	conn := &mockConn{
		prepareBatchFunc: func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
			if strings.Contains(query, "INSERT INTO intelligence") {
				intelPrepared.Store(true)
			}
			return tb.prepare(ctx, query, opts...)
		},
	}
	client := newMockClient(conn)
	a := NewArchiver(client, cfg)
	defer a.Close()

	a.Archive(newArchivedSession("a", false))
	if err := a.Archive(newArchivedSession("b", false)); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}

	if intelPrepared.Load() {
		t.Error("intelligence batch should not be prepared when no session has intelligence")
	}
	if got := a.Metrics().Written; got != 2 {
		t.Errorf("Written = %d, want 2", got)
	}
}

func TestArchiverCloseFlushesBuffer(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}

	var sendCalled atomic.Bool
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{
				sendFunc: func() error {
					sendCalled.Store(true)
					return nil
				},
			}, nil
		},
	}
	client := newMockClient(conn)
	a := NewArchiver(client, cfg)

	for i := 0; i < 3; i++ {
		if err := a.Archive(newArchivedSession(fmt.Sprintf("sess-%d", i), false)); err != nil {
			t.Fatalf("Archive() error = %v", err)
		}
	}
	if a.Metrics().Pending != 3 {
		t.Fatalf("Pending before close = %d, want 3", a.Metrics().Pending)
	}

	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if !sendCalled.Load() {
		t.Error("Close() should have flushed buffered sessions (batch Send was not called)")
	}

	metrics := a.Metrics()
	if metrics.Written != 3 {
		t.Errorf("Written = %d, want 3 after close flush", metrics.Written)
	}
	if metrics.Pending != 0 {
		t.Errorf("Pending = %d, want 0 after close", metrics.Pending)
	}
}

func TestArchiverFlushForcesWrite(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	tb := newTableBatches()
	client := newMockClient(&mockConn{prepareBatchFunc: tb.prepare})
	a := NewArchiver(client, cfg)
	defer a.Close()

	a.Archive(newArchivedSession("sess-1", true))

	if err := a.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	metrics := a.Metrics()
	if metrics.Written != 1 {
		t.Errorf("Written = %d, want 1", metrics.Written)
	}
	if metrics.Pending != 0 {
		t.Errorf("Pending = %d, want 0", metrics.Pending)
	}
	if got := tb.rows("intelligence"); got != 1 {
		t.Errorf("intelligence rows = %d, want 1", got)
	}

	// Flushing an empty buffer is a no-op.
	if err := a.Flush(); err != nil {
		t.Fatalf("Flush() on empty buffer error = %v", err)
	}
	if got := a.Metrics().Batches; got != 1 {
		t.Errorf("Batches = %d, want 1 (empty flush should not count)", got)
	}
}

func TestArchiverFlushFailureUpdatesMetrics(t *testing.T) {
	batchSize := 3
	cfg := ArchiverConfig{
		BatchSize:     batchSize,
		FlushInterval: time.Hour,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond, // keep retries fast
	}

	var attempts atomic.Int32
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			attempts.Add(1)
			return nil, fmt.Errorf("connection refused")
		},
	}
	client := newMockClient(conn)
	a := NewArchiver(client, cfg)
	defer a.Close()

	var flushErr error
	for i := 0; i < batchSize; i++ {
		// The last Archive triggers the flush, which fails every attempt.
		flushErr = a.Archive(newArchivedSession(fmt.Sprintf("sess-%d", i), false))
	}

	if !errors.Is(flushErr, ErrBatchInsertFailed) {
		t.Errorf("Archive() flush error = %v, want ErrBatchInsertFailed", flushErr)
	}
	// Initial attempt plus MaxRetries retries.
	if got := attempts.Load(); got != 3 {
		t.Errorf("PrepareBatch attempts = %d, want 3", got)
	}

	metrics := a.Metrics()
	if metrics.Failed != uint64(batchSize) {
		t.Errorf("Failed = %d, want %d", metrics.Failed, batchSize)
	}
	if metrics.Written != 0 {
		t.Errorf("Written = %d, want 0 (all inserts failed)", metrics.Written)
	}
	if metrics.Batches != 0 {
		t.Errorf("Batches = %d, want 0 (no successful batches)", metrics.Batches)
	}
}

func TestArchiverFlushRecoversOnRetry(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     2,
		FlushInterval: time.Hour,
		MaxRetries:    3,
		RetryDelay:    time.Millisecond,
	}

	var attempts atomic.Int32
	tb := newTableBatches()
	conn := &mockConn{
		prepareBatchFunc: func(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
			if strings.Contains(query, "INSERT INTO sessions") && attempts.Add(1) == 1 {
				return nil, fmt.Errorf("temporary failure")
			}
			return tb.prepare(ctx, query, opts...)
		},
	}
	client := newMockClient(conn)
	a := NewArchiver(client, cfg)
	defer a.Close()

	a.Archive(newArchivedSession("a", false))
	if err := a.Archive(newArchivedSession("b", false)); err != nil {
		t.Fatalf("Archive() error = %v, want recovery on retry", err)
	}

	metrics := a.Metrics()
	if metrics.Written != 2 {
		t.Errorf("Written = %d, want 2", metrics.Written)
	}
	if metrics.Failed != 0 {
		t.Errorf("Failed = %d, want 0", metrics.Failed)
	}
	if metrics.Batches != 1 {
		t.Errorf("Batches = %d, want 1", metrics.Batches)
	}
}

func TestArchiverConcurrentArchive(t *testing.T) {
	cfg := ArchiverConfig{
		BatchSize:     10,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	}
	conn := &mockConn{
		prepareBatchFunc: func(_ context.Context, _ string, _ ...driver.PrepareBatchOption) (driver.Batch, error) {
			return &mockBatch{}, nil
		},
	}
	client := newMockClient(conn)
	a := NewArchiver(client, cfg)
	defer a.Close()

	numGoroutines := 8
	perGoroutine := 25
	total := numGoroutines * perGoroutine

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for g := 0; g < numGoroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				a.Archive(newArchivedSession(fmt.Sprintf("sess-%d-%d", g, i), false))
			}
		}(g)
	}
	wg.Wait()

	// Every session must be accounted for: written, still pending, or failed.
	metrics := a.Metrics()
	accounted := int(metrics.Written) + metrics.Pending + int(metrics.Failed)
	if accounted != total {
		t.Errorf("Written(%d) + Pending(%d) + Failed(%d) = %d, want %d",
			metrics.Written, metrics.Pending, metrics.Failed, accounted, total)
	}
}

func TestClampRiskScore(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := clampRiskScore(tt.in); got != tt.want {
			t.Errorf("clampRiskScore(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
