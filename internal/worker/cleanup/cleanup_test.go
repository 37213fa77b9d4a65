package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeResult struct {
	rowsAffected int64
	err          error
}

func (r *fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (r *fakeResult) RowsAffected() (int64, error) { return r.rowsAffected, r.err }

// mockExecutor はSQLクエリの内容と呼び出し回数を記録するExecutor。
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	query  string
	result sql.Result
	err    error
}

func (m *mockExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.query = query
	return m.result, m.err
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockRecorder struct {
	counts []int64
}

func (m *mockRecorder) RecordTokensCleaned(count int64) {
	m.counts = append(m.counts, count)
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログ行の中からkeyを持つ最初の値を返す。
func findLogField(buf *bytes.Buffer, key string) (interface{}, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func TestTokenCleanupJob_Run_DeletesExpiredTokens(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 5}}
	rec := &mockRecorder{}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), rec)

	n, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if n != 5 {
		t.Errorf("deleted = %d, want 5", n)
	}

	if !strings.Contains(mock.query, "DELETE FROM auth_tokens") {
		t.Errorf("クエリに 'DELETE FROM auth_tokens' が含まれていない: %s", mock.query)
	}
	if !strings.Contains(mock.query, "expires_at") {
		t.Errorf("クエリに 'expires_at' 条件が含まれていない: %s", mock.query)
	}

	if len(rec.counts) != 1 || rec.counts[0] != 5 {
		t.Errorf("recorded = %v, want [5]", rec.counts)
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(5) {
		t.Errorf("ログに deleted_count=5 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

// TestTokenCleanupJob_Run_Idempotent は削除対象がなくてもエラーにならないことを検証する。
func TestTokenCleanupJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 0}}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)

	for i := 0; i < 2; i++ {
		if _, err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestTokenCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{err: sql.ErrConnDone}
	rec := &mockRecorder{}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), rec)

	_, err := job.Run(context.Background())
	if !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped sql.ErrConnDone, got %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
	if len(rec.counts) != 0 {
		t.Errorf("失敗時に件数を記録すべきではない: %v", rec.counts)
	}
}

func TestTokenCleanupJob_Run_RowsAffectedFailure(t *testing.T) {
	var buf bytes.Buffer
	rowsErr := errors.New("driver does not support RowsAffected")
	mock := &mockExecutor{result: &fakeResult{err: rowsErr}}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)

	if _, err := job.Run(context.Background()); !errors.Is(err, rowsErr) {
		t.Fatalf("expected wrapped RowsAffected error, got %v", err)
	}
}

// TestTokenCleanupJob_Start はStartが即時実行し、キャンセルで停止することを検証する。
func TestTokenCleanupJob_Start(t *testing.T) {
	var buf bytes.Buffer
	mock := &mockExecutor{result: &fakeResult{rowsAffected: 1}}
	job := NewTokenCleanupJob(mock, newTestLogger(&buf), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for mock.callCount() < 2 {
		select {
		case <-deadline:
			t.Fatalf("cleanup ran %d times, want at least 2", mock.callCount())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
