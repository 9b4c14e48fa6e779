package postgresdb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"

	"github.com/jrazmi/sqlrunner/core/migration"
)

func TestHandlePgError(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{duplicateTable, migration.ErrObjectExists},
		{duplicateColumn, migration.ErrObjectExists},
		{duplicateObject, migration.ErrObjectExists},
		{duplicateSchema, migration.ErrObjectExists},
		{duplicateFunction, migration.ErrObjectExists},
		{uniqueViolation, ErrDBDuplicatedEntry},
		{undefinedTable, ErrUndefinedTable},
	}

	for _, tt := range tests {
		pgErr := &pgconn.PgError{Code: tt.code, Message: "server says no"}
		got := HandlePgError(fmt.Errorf("exec: %w", pgErr))

		if !errors.Is(got, tt.want) {
			t.Errorf("code %s: expected %v, got %v", tt.code, tt.want, got)
		}

		var back *pgconn.PgError
		if !errors.As(got, &back) || back.Code != tt.code {
			t.Errorf("code %s: expected original PgError to stay in chain", tt.code)
		}
	}

	syntax := &pgconn.PgError{Code: "42601", Message: "syntax error"}
	if got := HandlePgError(syntax); errors.Is(got, migration.ErrObjectExists) {
		t.Errorf("Expected syntax error to pass through unchanged, got %v", got)
	}

	if HandlePgError(nil) != nil {
		t.Error("Expected nil for nil error")
	}
}

func TestPrettyPrintSQL(t *testing.T) {
	in := "CREATE TABLE a (\n\tid INT,\n\tname TEXT\n)"
	want := "CREATE TABLE a (id INT, name TEXT)"
	if got := prettyPrintSQL(in); got != want {
		t.Errorf("Expected %q, got %q", want, got)
	}
}

// fakeServer speaks enough of the Postgres wire protocol for simple-query
// sessions. The query named by hang gets no answer until a cancel request
// arrives on a second connection, the way a server handles pg_cancel.
type fakeServer struct {
	ln      net.Listener
	hang    string
	cancels chan struct{}

	mu      sync.Mutex
	queries []string
}

func newFakeServer(t *testing.T, hang string) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	f := &fakeServer{ln: ln, hang: hang, cancels: make(chan struct{}, 1)}
	t.Cleanup(func() { _ = ln.Close() })

	go f.serve()
	return f
}

func (f *fakeServer) URL() string {
	return fmt.Sprintf("postgres://runner@%s/app?sslmode=disable", f.ln.Addr())
}

func (f *fakeServer) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

func (f *fakeServer) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	backend := pgproto3.NewBackend(conn, conn)

	startup, err := backend.ReceiveStartupMessage()
	if err != nil {
		return
	}
	switch startup.(type) {
	case *pgproto3.CancelRequest:
		select {
		case f.cancels <- struct{}{}:
		default:
		}
		return
	case *pgproto3.StartupMessage:
	default:
		return
	}

	backend.Send(&pgproto3.AuthenticationOk{})
	backend.Send(&pgproto3.ParameterStatus{Name: "server_version", Value: "17.0"})
	backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
	if err := backend.Flush(); err != nil {
		return
	}

	for {
		msg, err := backend.Receive()
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case *pgproto3.Query:
			f.mu.Lock()
			f.queries = append(f.queries, m.String)
			f.mu.Unlock()

			if m.String == f.hang {
				select {
				case <-f.cancels:
				case <-time.After(10 * time.Second):
				}
				backend.Send(&pgproto3.ErrorResponse{
					Severity: "ERROR",
					Code:     "57014",
					Message:  "canceling statement due to user request",
				})
			} else {
				backend.Send(&pgproto3.CommandComplete{CommandTag: []byte("SELECT 1")})
			}
			backend.Send(&pgproto3.ReadyForQuery{TxStatus: 'I'})
			if err := backend.Flush(); err != nil {
				return
			}
		case *pgproto3.Terminate:
			return
		}
	}
}

func TestSessionSurvivesStatementTimeout(t *testing.T) {
	srv := newFakeServer(t, "SLOW")
	ctx := context.Background()

	s, err := Connect(ctx, srv.URL(), WithConnectTimeout(5*time.Second))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer s.Close(ctx)

	script, err := migration.ParseScript("inline", "SELECT 1; SLOW; SELECT 2; SELECT 3", nil)
	if err != nil {
		t.Fatalf("ParseScript failed: %v", err)
	}

	runner := migration.New(s, nil, migration.WithStatementTimeout(200*time.Millisecond))
	report, err := runner.Run(ctx, script)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if report.Attempted() != 4 {
		t.Fatalf("Expected 4 attempts, got %d", report.Attempted())
	}
	if report.Failed() != 1 {
		t.Errorf("Expected 1 failure, got %d", report.Failed())
	}

	slow := report.Outcomes[1]
	if !errors.Is(slow.Err, context.DeadlineExceeded) {
		t.Errorf("Expected timed out statement to carry the deadline error, got %v", slow.Err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(slow.Err, &pgErr) || pgErr.Code != "57014" {
		t.Errorf("Expected query_canceled from the server, got %v", slow.Err)
	}

	for _, i := range []int{0, 2, 3} {
		if err := report.Outcomes[i].Err; err != nil {
			t.Errorf("statement %d: expected success after timeout, got %v", i+1, err)
		}
	}

	got := srv.Queries()
	if len(got) < 4 || got[len(got)-1] != "SELECT 3" {
		t.Errorf("Expected every statement to reach the server, got %q", got)
	}
}

func TestLogQueries(t *testing.T) {
	srv := newFakeServer(t, "")
	ctx := context.Background()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	s, err := Connect(ctx, srv.URL(), WithLogQueries(true), WithLogger(log))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer s.Close(ctx)

	if err := s.Exec(ctx, "CREATE TABLE a (\n\tid INT\n)"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, `sql="CREATE TABLE a (id INT)"`) {
		t.Errorf("Expected flattened statement in query log, got %s", out)
	}
	if !strings.Contains(out, "command_tag") {
		t.Errorf("Expected command tag in query log, got %s", out)
	}
}

func TestConnectFailures(t *testing.T) {
	ctx := context.Background()

	if _, err := Connect(ctx, "postgres://%zz"); err == nil {
		t.Error("Expected error for malformed connection string")
	}

	_, err := Connect(ctx, "postgres://nobody@127.0.0.1:1/none?sslmode=disable",
		WithConnectTimeout(2*time.Second))
	if err == nil {
		t.Error("Expected error for unreachable database")
	}
}

// testSession connects to POSTGRES_TEST_URL or skips.
func testSession(t *testing.T) *Session {
	t.Helper()

	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set")
	}

	s, err := Connect(context.Background(), url, WithLogQueries(true))
	if err != nil {
		if os.Getenv("REQUIRE_TEST_DB") == "true" {
			t.Fatalf("PostgreSQL required but unreachable: %v", err)
		}
		t.Skipf("PostgreSQL not reachable: %v", err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

func TestSessionIdempotentRerun(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	if err := s.StatusCheck(ctx); err != nil {
		t.Fatalf("StatusCheck failed: %v", err)
	}

	_ = s.Exec(ctx, "DROP TABLE IF EXISTS sqlrunner_idem")
	t.Cleanup(func() { _ = s.Exec(context.Background(), "DROP TABLE IF EXISTS sqlrunner_idem") })

	script, err := migration.ParseScript("inline",
		"CREATE TABLE IF NOT EXISTS sqlrunner_idem (id INT); ALTER TABLE sqlrunner_idem ADD COLUMN IF NOT EXISTS c INT;",
		migration.SimpleSplitter{})
	if err != nil {
		t.Fatalf("ParseScript failed: %v", err)
	}

	for run := 1; run <= 2; run++ {
		report, err := migration.New(s, nil).Run(ctx, script)
		if err != nil {
			t.Fatalf("run %d failed: %v", run, err)
		}
		if report.Err() != nil {
			t.Fatalf("run %d: expected clean report, got %v", run, report.Err())
		}
	}

	var n int
	err = s.conn.QueryRow(ctx,
		"SELECT count(*) FROM information_schema.columns WHERE table_name = 'sqlrunner_idem' AND column_name = 'c'").Scan(&n)
	if err != nil {
		t.Fatalf("query columns: %v", err)
	}
	if n != 1 {
		t.Errorf("Expected column c to exist once, got %d", n)
	}
}

func TestSessionDuplicateTable(t *testing.T) {
	s := testSession(t)
	ctx := context.Background()

	_ = s.Exec(ctx, "DROP TABLE IF EXISTS sqlrunner_dup")
	t.Cleanup(func() { _ = s.Exec(context.Background(), "DROP TABLE IF EXISTS sqlrunner_dup") })

	script, _ := migration.ParseScript("inline",
		"CREATE TABLE sqlrunner_dup (id INT); CREATE TABLE sqlrunner_dup (id INT);", nil)

	report, err := migration.New(s, nil).Run(ctx, script)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Attempted() != 2 {
		t.Fatalf("Expected 2 attempts, got %d", report.Attempted())
	}
	if !report.Outcomes[1].AlreadyExists {
		t.Errorf("Expected duplicate table to be classified, got %v", report.Outcomes[1].Err)
	}
}
