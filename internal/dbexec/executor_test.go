package dbexec

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/sqlexec_go/internal/dbclient"
	"github.com/sqlexec_go/internal/dbtest"
	"github.com/sqlexec_go/internal/txscope"
)

type person struct {
	ID    int64
	Name  string
	Email *string
}

type post struct {
	ID    int64
	Title string
}

type authored struct {
	Author person
	Post   post
}

func join(p person, b post) authored { return authored{Author: p, Post: b} }

func newExecutor(t *testing.T, cfg ExecutorConfig) (*Executor, *dbtest.Recorder, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock := dbtest.NewConn(t)
	rec := dbtest.NewRecorder(conn)
	return NewExecutor(rec, cfg), rec, mock
}

func peopleRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"ID", "Name", "Email"}).
		AddRow(int64(1), "  Ann  ", nil).
		AddRow(int64(2), "Bob", " bob@example.com ")
}

func TestResolveTimeout(t *testing.T) {
	t.Parallel()

	tt := []struct {
		name     string
		def      time.Duration
		callSite time.Duration
		want     time.Duration
	}{
		{name: "unset default", want: 30 * time.Second},
		{name: "executor default", def: 5 * time.Second, want: 5 * time.Second},
		{name: "call site wins", def: 5 * time.Second, callSite: 2 * time.Second, want: 2 * time.Second},
		{name: "call site over unset default", callSite: time.Minute, want: time.Minute},
		{name: "no deadline", def: 5 * time.Second, callSite: -1, want: -1},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			e, rec, mock := newExecutor(t, ExecutorConfig{DefaultTimeout: tc.def})
			mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))

			if _, err := e.Execute(context.Background(), "DELETE FROM t", Options{Timeout: tc.callSite}); err != nil {
				t.Fatalf("Execute returned error: %v", err)
			}
			if got := rec.Last().Timeout; got != tc.want {
				t.Fatalf("timeout = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestExecute(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectExec("UPDATE people SET name = ? WHERE id = ?").WithArgs("ann", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE nope").WillReturnError(errors.New("no such table"))

	ctx := context.Background()
	n, err := e.Execute(ctx, "UPDATE people SET name = ? WHERE id = ?", Options{Args: []any{"ann", 1}})
	if err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("rows affected = %d, want 1", n)
	}
	if rec.Last().Kind != dbclient.Text {
		t.Errorf("kind = %v, want text", rec.Last().Kind)
	}

	_, err = e.Execute(ctx, "UPDATE nope", Options{})
	var stmtErr *dbclient.StatementError
	if !errors.As(err, &stmtErr) {
		t.Fatalf("Execute() error = %v, want *dbclient.StatementError", err)
	}
}

func TestExecuteProc(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectExec("CALL touch_person(?)").WithArgs(7).WillReturnResult(sqlmock.NewResult(0, 1))

	if _, err := e.ExecuteProc(context.Background(), "touch_person", Options{Args: []any{7}}); err != nil {
		t.Fatalf("ExecuteProc returned error: %v", err)
	}
	if rec.Last().Kind != dbclient.StoredProcedure {
		t.Errorf("kind = %v, want stored procedure", rec.Last().Kind)
	}
}

func TestQuery_Buffered(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT * FROM people").WillReturnRows(peopleRows())

	s, err := Query[person](context.Background(), e, "SELECT * FROM people", Options{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if !s.Buffered() {
		t.Fatalf("Buffered() = false, want true")
	}
	for pass := 0; pass < 2; pass++ {
		var names []string
		for p, err := range s.All() {
			if err != nil {
				t.Fatalf("iteration error: %v", err)
			}
			names = append(names, p.Name)
		}
		if len(names) != 2 || names[0] != "  Ann  " || names[1] != "Bob" {
			t.Fatalf("pass %d names = %q", pass, names)
		}
	}

	// The connection is free again.
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := e.Execute(context.Background(), "SELECT 1", Options{}); err != nil {
		t.Fatalf("Execute after buffered query returned error: %v", err)
	}
}

func TestQuery_NoRows(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT * FROM people WHERE 1 = 0").
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Name", "Email"}))

	s, err := Query[*person](context.Background(), e, "SELECT * FROM people WHERE 1 = 0", Options{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	items, err := s.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if items == nil || len(items) != 0 {
		t.Fatalf("Collect() = %#v, want empty", items)
	}
}

func TestQuery_Unbuffered(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT * FROM people").WillReturnRows(peopleRows())

	ctx := context.Background()
	s, err := Query[person](ctx, e, "SELECT * FROM people", Options{Unbuffered: true})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if s.Buffered() {
		t.Fatalf("Buffered() = true, want false")
	}

	var ids []int64
	for p, err := range s.All() {
		if err != nil {
			t.Fatalf("iteration error: %v", err)
		}
		if _, err := e.Execute(ctx, "SELECT 1", Options{}); !errors.Is(err, ErrBusy) {
			t.Fatalf("Execute during iteration error = %v, want ErrBusy", err)
		}
		ids = append(ids, p.ID)
	}
	if len(ids) != 2 {
		t.Fatalf("ids = %v, want 2 rows", ids)
	}

	for _, err := range s.All() {
		if !errors.Is(err, ErrConsumed) {
			t.Fatalf("second iteration error = %v, want ErrConsumed", err)
		}
	}

	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := e.Execute(ctx, "SELECT 1", Options{}); err != nil {
		t.Fatalf("Execute after drained sequence returned error: %v", err)
	}
}

func TestQuery_UnbufferedClose(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT * FROM people").WillReturnRows(peopleRows())

	ctx := context.Background()
	s, err := Query[person](ctx, e, "SELECT * FROM people", Options{Unbuffered: true})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := e.Execute(ctx, "SELECT 1", Options{}); err != nil {
		t.Fatalf("Execute after Close returned error: %v", err)
	}
}

func TestQueryMap(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	q := "SELECT p.*, b.* FROM people p JOIN posts b ON b.author = p.id"
	mock.ExpectQuery(q).WillReturnRows(
		sqlmock.NewRows([]string{"Id", "Name", "Email", "Id", "Title"}).
			AddRow(int64(1), "ann", nil, int64(10), "hello").
			AddRow(int64(1), "ann", nil, int64(11), "again"))

	s, err := QueryMap(context.Background(), e, q, join, Options{})
	if err != nil {
		t.Fatalf("QueryMap returned error: %v", err)
	}
	got, err := s.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Author.Name != "ann" || got[0].Post.ID != 10 || got[1].Post.Title != "again" {
		t.Fatalf("QueryMap() = %+v", got)
	}
}

func TestQueryMap_LeftJoinNull(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	q := "SELECT p.*, b.* FROM people p LEFT JOIN posts b ON b.author = p.id"
	mock.ExpectQuery(q).WillReturnRows(
		sqlmock.NewRows([]string{"Id", "Name", "Email", "Id", "Title"}).
			AddRow(int64(1), "ann", nil, nil, nil).
			AddRow(int64(2), "bob", nil, int64(11), "again"))

	type latest struct {
		Name string
		Post *post
	}
	s, err := QueryMap(context.Background(), e, q, func(p person, b *post) latest {
		return latest{Name: p.Name, Post: b}
	}, Options{})
	if err != nil {
		t.Fatalf("QueryMap returned error: %v", err)
	}
	got, err := s.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "ann" || got[0].Post != nil {
		t.Errorf("unmatched row = %+v, want ann with nil post", got[0])
	}
	if got[1].Post == nil || *got[1].Post != (post{ID: 11, Title: "again"}) {
		t.Errorf("matched row = %+v, want post {11 again}", got[1])
	}
}

func TestQueryMap_MissingSplitColumn(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT joined").WillReturnRows(
		sqlmock.NewRows([]string{"Id", "Name", "Title"}).AddRow(int64(1), "ann", "hello"))

	_, err := QueryMap(context.Background(), e, "SELECT joined", join, Options{SplitOn: "PostId"})
	if !errors.Is(err, ErrSplitColumn) {
		t.Fatalf("QueryMap() error = %v, want ErrSplitColumn", err)
	}

	// The failed query released its rows.
	mock.ExpectExec("SELECT 1").WillReturnResult(sqlmock.NewResult(0, 0))
	if _, err := e.Execute(context.Background(), "SELECT 1", Options{}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
}

func TestQueryAndNormalize(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT * FROM people").WillReturnRows(peopleRows())

	got, err := QueryAndNormalize[person](context.Background(), e, "SELECT * FROM people", Options{Unbuffered: true})
	if err != nil {
		t.Fatalf("QueryAndNormalize returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Name != "Ann" || got[0].Email != nil {
		t.Errorf("first = %+v, want Name Ann and nil Email", got[0])
	}
	if got[1].Email == nil || *got[1].Email != "bob@example.com" {
		t.Errorf("second Email = %v, want bob@example.com", got[1].Email)
	}
}

func TestQueryMapAndNormalize(t *testing.T) {
	t.Parallel()

	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT joined").WillReturnRows(
		sqlmock.NewRows([]string{"Id", "Name", "Email", "Id", "Title"}).
			AddRow(int64(1), " ann ", nil, int64(10), " hello "))

	got, err := QueryMapAndNormalize(context.Background(), e, "SELECT joined", join, Options{})
	if err != nil {
		t.Fatalf("QueryMapAndNormalize returned error: %v", err)
	}
	if got[0].Author.Name != "ann" || got[0].Post.Title != "hello" {
		t.Fatalf("QueryMapAndNormalize() = %+v", got)
	}
}

func TestQueryRecords(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("CALL list_people()").WillReturnRows(peopleRows())

	s, err := e.QueryRecordsProc(context.Background(), "list_people", Options{})
	if err != nil {
		t.Fatalf("QueryRecordsProc returned error: %v", err)
	}
	records, err := s.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if v, _ := records[1].Get("name"); v != "Bob" {
		t.Errorf("name = %#v, want Bob", v)
	}
	if rec.Last().Kind != dbclient.StoredProcedure {
		t.Errorf("kind = %v, want stored procedure", rec.Last().Kind)
	}
}

func TestClose(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery("SELECT 1; SELECT 2").WillReturnRows(
		sqlmock.NewRows([]string{"a"}).AddRow(int64(1)),
		sqlmock.NewRows([]string{"b"}).AddRow(int64(2)))

	c, err := e.QueryMultiple(context.Background(), "SELECT 1; SELECT 2", Options{})
	if err != nil {
		t.Fatalf("QueryMultiple returned error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	if rec.Closed != 1 {
		t.Errorf("client closed %d times, want 1", rec.Closed)
	}
	if _, err := c.ReadRecords(ReadOptions{}); !errors.Is(err, ErrClosed) {
		t.Errorf("read on cursor of closed executor error = %v, want ErrClosed", err)
	}
}

func TestUseAfterClose(t *testing.T) {
	t.Parallel()

	e, rec, _ := newExecutor(t, ExecutorConfig{})
	if err := e.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	ctx := context.Background()
	o := Options{}
	ops := map[string]func() error{
		"Begin":       func() error { _, err := e.Begin(ctx, nil); return err },
		"Execute":     func() error { _, err := e.Execute(ctx, "x", o); return err },
		"ExecuteProc": func() error { _, err := e.ExecuteProc(ctx, "x", o); return err },
		"Query":       func() error { _, err := Query[person](ctx, e, "x", o); return err },
		"QueryRecords": func() error {
			_, err := e.QueryRecords(ctx, "x", o)
			return err
		},
		"QueryMap":      func() error { _, err := QueryMap(ctx, e, "x", join, o); return err },
		"QueryMultiple": func() error { _, err := e.QueryMultiple(ctx, "x", o); return err },
		"QueryAndNormalize": func() error {
			_, err := QueryAndNormalize[person](ctx, e, "x", o)
			return err
		},
		"QueryMapAndNormalize": func() error {
			_, err := QueryMapAndNormalize(ctx, e, "x", join, o)
			return err
		},
		"QueryProc": func() error { _, err := QueryProc[person](ctx, e, "x", o); return err },
		"QueryRecordsProc": func() error {
			_, err := e.QueryRecordsProc(ctx, "x", o)
			return err
		},
		"QueryMapProc": func() error { _, err := QueryMapProc(ctx, e, "x", join, o); return err },
		"QueryMultipleProc": func() error {
			_, err := e.QueryMultipleProc(ctx, "x", o)
			return err
		},
		"Get":          func() error { _, err := Get[person](ctx, e, 1, o); return err },
		"GetList":      func() error { _, err := GetList[person](ctx, e, nil, o); return err },
		"GetListWhere": func() error { _, err := GetListWhere[person](ctx, e, "", o); return err },
		"GetAll":       func() error { _, err := GetAll[person](ctx, e, o); return err },
		"GetListPaged": func() error {
			_, err := GetListPaged[person](ctx, e, 1, 10, "", "", o)
			return err
		},
		"Insert":     func() error { _, err := e.Insert(ctx, &person{}, o); return err },
		"InsertKey":  func() error { _, err := InsertKey[int64](ctx, e, &person{}, o); return err },
		"Update":     func() error { _, err := e.Update(ctx, &person{}, o); return err },
		"Delete":     func() error { _, err := e.Delete(ctx, &person{}, o); return err },
		"DeleteByID": func() error { _, err := DeleteByID[person](ctx, e, 1, o); return err },
		"DeleteList": func() error {
			_, err := DeleteList[person](ctx, e, map[string]any{"ID": 1}, o)
			return err
		},
		"DeleteListWhere": func() error {
			_, err := DeleteListWhere[person](ctx, e, "WHERE 1 = 1", o)
			return err
		},
		"RecordCount": func() error { _, err := RecordCount[person](ctx, e, nil, o); return err },
		"RecordCountWhere": func() error {
			_, err := RecordCountWhere[person](ctx, e, "", o)
			return err
		},
	}
	for name, op := range ops {
		if err := op(); !errors.Is(err, ErrClosed) {
			t.Errorf("%s after Close error = %v, want ErrClosed", name, err)
		}
	}
	if len(rec.Commands) != 0 {
		t.Errorf("closed executor sent %d commands", len(rec.Commands))
	}
}

func TestCRUDPassthrough(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{DefaultTimeout: 4 * time.Second})
	mock.ExpectQuery("SELECT `ID`, `Name`, `Email` FROM `person` WHERE `ID` = ?").WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"ID", "Name", "Email"}).AddRow(int64(1), "ann", nil))
	mock.ExpectQuery("SELECT COUNT(1) FROM `person` WHERE Name = ?").WithArgs("ann").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))

	ctx := context.Background()
	p, err := Get[person](ctx, e, 1, Options{})
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if p.Name != "ann" {
		t.Errorf("Get() = %+v", p)
	}
	if got := rec.Last().Timeout; got != 4*time.Second {
		t.Errorf("Get timeout = %v, want 4s", got)
	}

	n, err := RecordCountWhere[person](ctx, e, "WHERE Name = ?", Options{Args: []any{"ann"}, Timeout: time.Second})
	if err != nil {
		t.Fatalf("RecordCountWhere returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("RecordCountWhere() = %d, want 1", n)
	}
	if got := rec.Last().Timeout; got != time.Second {
		t.Errorf("RecordCountWhere timeout = %v, want 1s", got)
	}
	if id, err := e.SequentialID(); err != nil || id.Version() != 7 {
		t.Errorf("SequentialID() = %v, %v", id, err)
	}
}

func TestQuery_Transaction(t *testing.T) {
	t.Parallel()

	e, rec, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM people").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	scope, err := txscope.Begin(ctx, e, nil)
	if err != nil {
		t.Fatalf("Begin returned error: %v", err)
	}
	defer scope.Close()
	if _, err := e.Execute(ctx, "DELETE FROM people", Options{Tx: scope.Tx()}); err != nil {
		t.Fatalf("Execute returned error: %v", err)
	}
	if rec.Last().Tx != scope.Tx() {
		t.Errorf("transaction was not forwarded")
	}
	scope.Complete()
	if err := scope.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestBegin_WhileCursorOpen(t *testing.T) {
	t.Parallel()

	e, c := openCursor(t, sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	if _, err := e.Begin(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Fatalf("Begin() error = %v, want ErrBusy", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
}
