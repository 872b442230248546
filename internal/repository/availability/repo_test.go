package availability

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

// passValues lets slice and pointer query args through to the mock driver
// unchanged; the default converter only accepts scalar values.
type passValues struct{}

func (passValues) ConvertValue(v any) (driver.Value, error) { return v, nil }

func newRepoWithMock(t *testing.T) (*Repo, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.ValueConverterOption(passValues{}))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return New(db), mock, func() { _ = db.Close() }
}

func TestAvailableInstructors_HalfOpenWindow(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	from := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	after := 17

	// A [from, to) window: the end date itself must be excluded, so a
	// "tomorrow" query cannot admit a slot on the day after tomorrow.
	mock.ExpectQuery(`slot_date >= \$2 AND slot_date < \$3`).
		WithArgs(sqlmock.AnyArg(), from, to, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"instructor_id"}).AddRow(int64(5)))

	got, err := repo.AvailableInstructors(context.Background(), []int64{5, 6}, from, to, &after, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got[5] {
		t.Error("instructor 5 should be available")
	}
	if got[6] {
		t.Error("instructor 6 should not be available")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestAvailableInstructors_Empty(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	from := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 2)

	mock.ExpectQuery(`slot_date >= \$2 AND slot_date < \$3`).
		WillReturnRows(sqlmock.NewRows([]string{"instructor_id"}))

	got, err := repo.AvailableInstructors(context.Background(), []int64{1}, from, to, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("available: got %v, want none", got)
	}
}

func TestAvailableInstructors_QueryError(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery(`SELECT DISTINCT instructor_id`).
		WillReturnError(errors.New("relation does not exist"))

	from := time.Date(2026, 1, 8, 0, 0, 0, 0, time.UTC)
	if _, err := repo.AvailableInstructors(context.Background(), []int64{1}, from, from.AddDate(0, 0, 1), nil, nil); err == nil {
		t.Fatal("expected error")
	}
}
