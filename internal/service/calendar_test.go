package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hireloop/hireloop/internal/model"
)

var calendarNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

func newCalendarFixture(t *testing.T) (*CalendarService, *memStore) {
	t.Helper()
	store := newMemStore()
	store.apps["app_1"] = &model.Application{ID: "app_1", CompanyID: "co_1", Status: model.AppStatusInterview}
	store.apps["app_foreign"] = &model.Application{ID: "app_foreign", CompanyID: "co_2", Status: model.AppStatusApplied}
	svc := NewCalendarService(store, discardLogger())
	svc.now = func() time.Time { return calendarNow }
	return svc, store
}

func timePtr(t time.Time) *time.Time { return &t }

func TestCalendarService_CreateEvent(t *testing.T) {
	svc, _ := newCalendarFixture(t)
	ctx := context.Background()
	start := calendarNow.Add(24 * time.Hour)

	ev, err := svc.CreateEvent(ctx, "co_1", "usr_1", EventInput{
		Title:         strPtr("Onsite with Ada"),
		ApplicationID: strPtr("app_1"),
		StartsAt:      timePtr(start),
		EndsAt:        timePtr(start.Add(time.Hour)),
		Attendees:     []string{"Lead@Example.com", "lead@example.com", " "},
	})
	require.NoError(t, err)
	assert.Equal(t, model.EventKindInterview, ev.Kind)
	require.NotNil(t, ev.ApplicationID)
	assert.Equal(t, "app_1", *ev.ApplicationID)
	assert.Equal(t, []string{"lead@example.com"}, ev.Attendees)
}

func TestCalendarService_CreateEvent_Validation(t *testing.T) {
	svc, _ := newCalendarFixture(t)
	start := calendarNow.Add(time.Hour)

	testCases := []struct {
		name string
		in   EventInput
		err  error
	}{
		{"missing times", EventInput{Title: strPtr("x")}, ErrInvalidInput},
		{"ends before start", EventInput{Title: strPtr("x"), StartsAt: timePtr(start), EndsAt: timePtr(start.Add(-time.Minute))}, ErrInvalidInput},
		{"zero length", EventInput{Title: strPtr("x"), StartsAt: timePtr(start), EndsAt: timePtr(start)}, ErrInvalidInput},
		{"bad kind", EventInput{Title: strPtr("x"), Kind: strPtr("party"), StartsAt: timePtr(start), EndsAt: timePtr(start.Add(time.Hour))}, ErrInvalidInput},
		{"missing title", EventInput{StartsAt: timePtr(start), EndsAt: timePtr(start.Add(time.Hour))}, ErrInvalidInput},
		{"unknown application", EventInput{Title: strPtr("x"), ApplicationID: strPtr("app_nope"), StartsAt: timePtr(start), EndsAt: timePtr(start.Add(time.Hour))}, ErrInvalidReference},
		{"foreign application", EventInput{Title: strPtr("x"), ApplicationID: strPtr("app_foreign"), StartsAt: timePtr(start), EndsAt: timePtr(start.Add(time.Hour))}, ErrInvalidReference},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateEvent(context.Background(), "co_1", "usr_1", tc.in)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

func TestCalendarService_UpdateAndList(t *testing.T) {
	svc, _ := newCalendarFixture(t)
	ctx := context.Background()
	start := calendarNow.Add(2 * time.Hour)

	ev, err := svc.CreateEvent(ctx, "co_1", "usr_1", EventInput{
		Title: strPtr("Sync"), Kind: strPtr(model.EventKindMeeting),
		StartsAt: timePtr(start), EndsAt: timePtr(start.Add(30 * time.Minute)),
		ApplicationID: strPtr("app_1"),
	})
	require.NoError(t, err)

	// Moving the start past the end is rejected.
	_, err = svc.UpdateEvent(ctx, "co_1", ev.ID, EventInput{StartsAt: timePtr(start.Add(time.Hour))})
	require.ErrorIs(t, err, ErrInvalidInput)

	updated, err := svc.UpdateEvent(ctx, "co_1", ev.ID, EventInput{ApplicationID: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.ApplicationID, "an empty id unlinks the application")

	week, err := svc.ListEvents(ctx, "co_1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, week, 1)

	past, err := svc.ListEvents(ctx, "co_1", calendarNow.Add(-48*time.Hour), calendarNow)
	require.NoError(t, err)
	assert.Empty(t, past)

	_, err = svc.ListEvents(ctx, "co_1", calendarNow, calendarNow.Add(-time.Hour))
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.ListEvents(ctx, "co_1", calendarNow, calendarNow.Add(maxEventWindow+time.Hour))
	require.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.DeleteEvent(ctx, "co_1", ev.ID))
	require.ErrorIs(t, svc.DeleteEvent(ctx, "co_1", ev.ID), ErrEventNotFound)
}

func TestCalendarService_Tasks(t *testing.T) {
	svc, _ := newCalendarFixture(t)
	ctx := context.Background()

	task, err := svc.CreateTask(ctx, "co_1", "usr_1", TaskInput{
		Title:      strPtr("Send offer letter"),
		AssigneeID: strPtr("usr_2"),
		DueAt:      timePtr(calendarNow.Add(24 * time.Hour)),
	})
	require.NoError(t, err)
	assert.False(t, task.Completed)

	_, err = svc.CreateTask(ctx, "co_1", "usr_1", TaskInput{Title: strPtr("Other"), ApplicationID: strPtr("app_foreign")})
	require.ErrorIs(t, err, ErrInvalidReference)

	mine, err := svc.ListTasks(ctx, "co_1", model.TaskFilter{AssigneeID: "usr_2"})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	done, err := svc.SetTaskCompleted(ctx, "co_1", task.ID, true)
	require.NoError(t, err)
	assert.True(t, done.Completed)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, calendarNow, *done.CompletedAt)

	open, err := svc.ListTasks(ctx, "co_1", model.TaskFilter{})
	require.NoError(t, err)
	assert.Empty(t, open)
	all, err := svc.ListTasks(ctx, "co_1", model.TaskFilter{IncludeDone: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)

	reopened, err := svc.SetTaskCompleted(ctx, "co_1", task.ID, false)
	require.NoError(t, err)
	assert.Nil(t, reopened.CompletedAt)

	unassigned, err := svc.UpdateTask(ctx, "co_1", task.ID, TaskInput{AssigneeID: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssigneeID)

	_, err = svc.GetTask(ctx, "co_2", task.ID)
	require.ErrorIs(t, err, ErrTaskNotFound)
	require.NoError(t, svc.DeleteTask(ctx, "co_1", task.ID))
}
