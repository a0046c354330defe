package dbexec

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

type tag struct {
	ID   int64
	Name string
}

const batch = "SELECT * FROM people; SELECT * FROM posts"

func openCursor(t *testing.T, sets ...*sqlmock.Rows) (*Executor, *Cursor) {
	t.Helper()
	e, _, mock := newExecutor(t, ExecutorConfig{})
	mock.ExpectQuery(batch).WillReturnRows(sets...)
	c, err := e.QueryMultiple(context.Background(), batch, Options{})
	if err != nil {
		t.Fatalf("QueryMultiple returned error: %v", err)
	}
	return e, c
}

func TestCursor_ReadsInOrder(t *testing.T) {
	t.Parallel()

	e, c := openCursor(t,
		sqlmock.NewRows([]string{"ID", "Name", "Email"}).AddRow(int64(1), "ann", nil),
		sqlmock.NewRows([]string{"ID", "Title"}).AddRow(int64(10), "hello").AddRow(int64(11), "again"),
	)

	people, err := Read[person](c, ReadOptions{})
	if err != nil {
		t.Fatalf("Read[person] returned error: %v", err)
	}
	posts, err := Read[post](c, ReadOptions{})
	if err != nil {
		t.Fatalf("Read[post] returned error: %v", err)
	}

	ps, _ := people.Collect()
	bs, _ := posts.Collect()
	if len(ps) != 1 || ps[0].Name != "ann" {
		t.Errorf("people = %+v", ps)
	}
	if len(bs) != 2 || bs[1].Title != "again" {
		t.Errorf("posts = %+v", bs)
	}

	if _, err := c.ReadRecords(ReadOptions{}); !errors.Is(err, ErrNoMoreResults) {
		t.Fatalf("third read error = %v, want ErrNoMoreResults", err)
	}
	if _, err := c.ReadRecords(ReadOptions{}); !errors.Is(err, ErrNoMoreResults) {
		t.Fatalf("fourth read error = %v, want ErrNoMoreResults", err)
	}

	if _, err := e.Execute(context.Background(), "SELECT 1", Options{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("Execute with open cursor error = %v, want ErrBusy", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close returned error: %v", err)
	}
	if _, err := Read[post](c, ReadOptions{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("read after Close error = %v, want ErrClosed", err)
	}
}

func TestCursor_LazyInvalidatedByNextRead(t *testing.T) {
	t.Parallel()

	_, c := openCursor(t,
		sqlmock.NewRows([]string{"ID", "Name", "Email"}).AddRow(int64(1), "ann", nil),
		sqlmock.NewRows([]string{"ID", "Title"}).AddRow(int64(10), "hello"),
	)
	defer c.Close()

	people, err := Read[person](c, ReadOptions{Unbuffered: true})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	posts, err := Read[post](c, ReadOptions{Unbuffered: true})
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	for _, err := range people.All() {
		if !errors.Is(err, ErrCursorAdvanced) {
			t.Fatalf("stale sequence error = %v, want ErrCursorAdvanced", err)
		}
	}
	got, err := posts.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(got) != 1 || got[0].Title != "hello" {
		t.Fatalf("posts = %+v", got)
	}
}

func TestCursor_MappedReads(t *testing.T) {
	t.Parallel()

	_, c := openCursor(t,
		sqlmock.NewRows([]string{"id", "name", "email", "id", "title"}).
			AddRow(int64(1), "ann", nil, int64(10), "hello"),
		sqlmock.NewRows([]string{"id", "name", "email", "id", "title", "id", "name"}).
			AddRow(int64(1), "ann", nil, int64(10), "hello", int64(5), "go"),
	)
	defer c.Close()

	pairs, err := Read2(c, join, ReadOptions{})
	if err != nil {
		t.Fatalf("Read2 returned error: %v", err)
	}
	got, _ := pairs.Collect()
	if len(got) != 1 || got[0].Author.ID != 1 || got[0].Post.ID != 10 {
		t.Fatalf("Read2() = %+v", got)
	}

	type tagged struct {
		Author string
		Post   string
		Tag    string
	}
	triples, err := Read3(c, func(p person, b post, tg tag) tagged {
		return tagged{Author: p.Name, Post: b.Title, Tag: tg.Name}
	}, ReadOptions{})
	if err != nil {
		t.Fatalf("Read3 returned error: %v", err)
	}
	tg, _ := triples.Collect()
	if len(tg) != 1 || tg[0] != (tagged{Author: "ann", Post: "hello", Tag: "go"}) {
		t.Fatalf("Read3() = %+v", tg)
	}
}

func TestCursor_Read2LeftJoinNull(t *testing.T) {
	t.Parallel()

	_, c := openCursor(t,
		sqlmock.NewRows([]string{"id", "name", "email", "id", "title"}).
			AddRow(int64(1), "ann", nil, nil, nil))
	defer c.Close()

	pairs, err := Read2(c, join, ReadOptions{})
	if err != nil {
		t.Fatalf("Read2 returned error: %v", err)
	}
	got, err := pairs.Collect()
	if err != nil {
		t.Fatalf("Collect returned error: %v", err)
	}
	if len(got) != 1 || got[0].Author.Name != "ann" || got[0].Post != (post{}) {
		t.Fatalf("Read2() = %+v, want ann with a zero post", got)
	}
}

func TestCursor_MappedReadMissingSplit(t *testing.T) {
	t.Parallel()

	_, c := openCursor(t, sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "ann"))
	defer c.Close()

	if _, err := Read2(c, join, ReadOptions{SplitOn: "post_id"}); !errors.Is(err, ErrSplitColumn) {
		t.Fatalf("Read2() error = %v, want ErrSplitColumn", err)
	}
}

func TestCursor_FiveShapes(t *testing.T) {
	t.Parallel()

	_, c := openCursor(t, sqlmock.NewRows([]string{"a", "b", "c", "d", "e"}).
		AddRow(int64(1), int64(2), int64(3), int64(4), int64(5)))
	defer c.Close()

	s, err := Read5(c, func(a, b, c, d, e int64) int64 { return a + b + c + d + e },
		ReadOptions{SplitOn: "b,c,d,e"})
	if err != nil {
		t.Fatalf("Read5 returned error: %v", err)
	}
	got, _ := s.Collect()
	if len(got) != 1 || got[0] != 15 {
		t.Fatalf("Read5() = %v, want [15]", got)
	}
}
