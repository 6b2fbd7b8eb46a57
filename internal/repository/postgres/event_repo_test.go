package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campushub/internal/domain"
)

var (
	testStart = time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	testEnd   = testStart.Add(2 * time.Hour)
	testNow   = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

var eventColumnNames = []string{
	"id", "title", "description", "location", "start_date", "end_date", "category", "capacity", "status",
	"organizer_id", "organizer_name", "attendees", "version", "created_at", "updated_at",
}

func intPtr(n int) *int { return &n }

func attendeesJSON(t *testing.T, attendees ...*domain.Attendee) []byte {
	t.Helper()
	if attendees == nil {
		attendees = []*domain.Attendee{}
	}
	b, err := json.Marshal(attendees)
	require.NoError(t, err)
	return b
}

func eventRow(t *testing.T, id string, status domain.EventStatus, capacity *int, attendees ...*domain.Attendee) *sqlmock.Rows {
	var c any
	if capacity != nil {
		c = int64(*capacity)
	}
	return sqlmock.NewRows(eventColumnNames).AddRow(
		id, "Go Meetup", "Talks", "Hall B", testStart, testEnd, "academic", c, string(status),
		"org-1", "Olga", attendeesJSON(t, attendees...), 3, testNow, testNow,
	)
}

func attendee(userID string) *domain.Attendee {
	return &domain.Attendee{
		UserID:       userID,
		UserName:     "User " + userID,
		RegisteredAt: testNow,
		Attendance:   domain.Registered(),
		CheckInID:    "chk-" + userID,
		QRPayload:    `{"type":"event_attendance"}`,
	}
}

func TestEventRepository_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(mock sqlmock.Sqlmock)
		wantID  string
		wantErr bool
	}{
		{
			name: "success",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO events \(title, description, location, start_date, end_date, category, capacity, status,`).
					WithArgs("Go Meetup", "Talks", "Hall B", testStart, testEnd, domain.CategoryAcademic, int64(40), domain.StatusUpcoming,
						"org-1", "Olga", []byte("[]"), testNow, testNow).
					WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("ev-uuid-1"))
			},
			wantID: "ev-uuid-1",
		},
		{
			name: "db error",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`INSERT INTO events`).WillReturnError(sql.ErrConnDone)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(mock)
			repo := NewEventRepository(db)
			e := domain.NewEvent("Go Meetup", "Talks", "Hall B", testStart, testEnd, domain.CategoryAcademic, intPtr(40),
				domain.Requester{ID: "org-1", Name: "Olga"}, testNow)
			err = repo.Create(ctx, e)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, e.ID)
			assert.Equal(t, 1, e.Version)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_GetByID(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		mock    func(t *testing.T, mock sqlmock.Sqlmock)
		wantErr error
		check   func(t *testing.T, e *domain.Event)
	}{
		{
			name: "found with attendees",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				present := attendee("u-2")
				present.Attendance = domain.PresentAt(testStart)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnRows(eventRow(t, "ev-1", domain.StatusOngoing, intPtr(10), attendee("u-1"), present))
			},
			check: func(t *testing.T, e *domain.Event) {
				assert.Equal(t, "ev-1", e.ID)
				assert.Equal(t, domain.StatusOngoing, e.Status)
				assert.Equal(t, domain.CategoryAcademic, e.Category)
				require.NotNil(t, e.Capacity)
				assert.Equal(t, 10, *e.Capacity)
				require.Len(t, e.Attendees, 2)
				assert.False(t, e.Attendees[0].Attendance.Attended())
				assert.True(t, e.Attendees[1].Attendance.Attended())
				assert.Equal(t, 3, e.Version)
			},
		},
		{
			name: "unlimited capacity",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, nil))
			},
			check: func(t *testing.T, e *domain.Event) {
				assert.Nil(t, e.Capacity)
				assert.Empty(t, e.Attendees)
			},
		},
		{
			name: "not found",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name: "malformed id",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnError(&pq.Error{Code: invalidTextRepresentation})
			},
			wantErr: domain.ErrEventNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(t, mock)
			e, err := NewEventRepository(db).GetByID(ctx, "ev-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.ErrorIs(t, err, domain.ErrNotFound)
				return
			}
			require.NoError(t, err)
			tt.check(t, e)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE status = \$1 AND category = \$2 AND title ILIKE \$3 ESCAPE '\\'`).
		WithArgs(domain.StatusUpcoming, domain.CategoryAcademic, "%meetup%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT .+ FROM events WHERE status = \$1 AND category = \$2 AND title ILIKE \$3 ESCAPE '\\' ORDER BY start_date ASC, id ASC LIMIT \$4 OFFSET \$5`).
		WithArgs(domain.StatusUpcoming, domain.CategoryAcademic, "%meetup%", 5, 5).
		WillReturnRows(eventRow(t, "ev-6", domain.StatusUpcoming, nil))

	events, total, err := NewEventRepository(db).List(context.Background(),
		domain.EventFilter{Status: domain.StatusUpcoming, Category: domain.CategoryAcademic, Search: " meetup "},
		domain.PaginationParams{Page: 2, PageSize: 5})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, events, 1)
	assert.Equal(t, "ev-6", events[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_ListEscapesSearchWildcards(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM events WHERE title ILIKE \$1 ESCAPE '\\'`).
		WithArgs(`%100\%\_off\\%`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT .+ FROM events WHERE title ILIKE \$1 ESCAPE '\\' ORDER BY`).
		WithArgs(`%100\%\_off\\%`, 20, 0).
		WillReturnRows(sqlmock.NewRows(eventColumnNames))

	events, total, err := NewEventRepository(db).List(context.Background(),
		domain.EventFilter{Search: `100%_off\`}, domain.PaginationParams{Page: 1, PageSize: 20})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_ListByAttendee(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`WHERE attendees @> jsonb_build_array\(jsonb_build_object\('user_id', \$1::text\)\)`).
		WithArgs("u-1").
		WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, nil, attendee("u-1")))

	events, err := NewEventRepository(db).ListByAttendee(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotNil(t, events[0].FindAttendee("u-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_Update(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		mock        func(t *testing.T, mock sqlmock.Sqlmock)
		wantErr     error
		wantVersion int
	}{
		{
			name: "success",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events SET title = \$2`).
					WithArgs("ev-1", "Go Meetup", "Talks", "Hall B", testStart, testEnd, domain.CategoryAcademic, nil,
						domain.StatusCancelled, sqlmock.AnyArg(), testNow, 3).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantVersion: 4,
		},
		{
			name: "stale version",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events SET title = \$2`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WithArgs("ev-1").
					WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, nil))
			},
			wantErr:     domain.ErrVersionConflict,
			wantVersion: 3,
		},
		{
			name: "deleted meanwhile",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectExec(`UPDATE events SET title = \$2`).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).WillReturnError(sql.ErrNoRows)
			},
			wantErr:     domain.ErrEventNotFound,
			wantVersion: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(t, mock)
			e := &domain.Event{
				ID: "ev-1", Title: "Go Meetup", Description: "Talks", Location: "Hall B",
				StartDate: testStart, EndDate: testEnd, Category: domain.CategoryAcademic,
				Status: domain.StatusCancelled, Version: 3, UpdatedAt: testNow,
			}
			err = NewEventRepository(db).Update(ctx, e)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantVersion, e.Version)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM events WHERE id = \$1`).WithArgs("ev-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM events WHERE id = \$1`).WithArgs("ev-2").WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewEventRepository(db)
	require.NoError(t, repo.Delete(context.Background(), "ev-1"))
	assert.ErrorIs(t, repo.Delete(context.Background(), "ev-2"), domain.ErrEventNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_DeleteRowsAffectedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM events WHERE id = \$1`).WithArgs("ev-1").
		WillReturnResult(sqlmock.NewErrorResult(errors.New("driver lost count")))

	err = NewEventRepository(db).Delete(context.Background(), "ev-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrEventNotFound)
	assert.ErrorContains(t, err, "driver lost count")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_AddAttendee(t *testing.T) {
	ctx := context.Background()
	const appendQuery = `UPDATE events\s+SET attendees = attendees \|\| jsonb_build_array\(\$2::jsonb\)`

	tests := []struct {
		name    string
		mock    func(t *testing.T, mock sqlmock.Sqlmock)
		wantErr error
	}{
		{
			name: "appended",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(appendQuery).
					WithArgs("ev-1", sqlmock.AnyArg(), testNow, "u-9").
					WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, intPtr(2), attendee("u-1"), attendee("u-9")))
			},
		},
		{
			name: "event missing",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(appendQuery).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).WillReturnError(sql.ErrNoRows)
			},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name: "event closed",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(appendQuery).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WillReturnRows(eventRow(t, "ev-1", domain.StatusCompleted, nil))
			},
			wantErr: domain.ErrEventNotOpen,
		},
		{
			name: "already registered",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(appendQuery).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, intPtr(1), attendee("u-9")))
			},
			wantErr: domain.ErrAlreadyRegistered,
		},
		{
			name: "full",
			mock: func(t *testing.T, mock sqlmock.Sqlmock) {
				mock.ExpectQuery(appendQuery).WillReturnError(sql.ErrNoRows)
				mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
					WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, intPtr(1), attendee("u-1")))
			},
			wantErr: domain.ErrCapacityExceeded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			tt.mock(t, mock)
			e, err := NewEventRepository(db).AddAttendee(ctx, "ev-1", attendee("u-9"), testNow)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, e)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, e.FindAttendee("u-9"))
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestEventRepository_RemoveAttendee(t *testing.T) {
	ctx := context.Background()
	const removeQuery = `WHERE id = \$1 AND attendees @> jsonb_build_array`

	t.Run("removed", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(removeQuery).
			WithArgs("ev-1", "u-1", testNow).
			WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, nil, attendee("u-2")))

		e, err := NewEventRepository(db).RemoveAttendee(ctx, "ev-1", "u-1", testNow)
		require.NoError(t, err)
		assert.Nil(t, e.FindAttendee("u-1"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not registered", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery(removeQuery).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(`SELECT .+ FROM events WHERE id = \$1`).
			WillReturnRows(eventRow(t, "ev-1", domain.StatusUpcoming, nil, attendee("u-2")))

		_, err = NewEventRepository(db).RemoveAttendee(ctx, "ev-1", "u-1", testNow)
		require.ErrorIs(t, err, domain.ErrNotRegistered)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestEventRepository_Promote(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE events SET status = 'ongoing'.+WHERE status = 'upcoming' AND start_date <= \$1`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`UPDATE events SET status = 'completed'.+WHERE status = 'ongoing' AND end_date <= \$1`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewEventRepository(db)
	started, err := repo.MarkStarted(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(2), started)
	completed, err := repo.MarkCompleted(context.Background(), testNow)
	require.NoError(t, err)
	assert.Equal(t, int64(0), completed)
	require.NoError(t, mock.ExpectationsWereMet())
}
