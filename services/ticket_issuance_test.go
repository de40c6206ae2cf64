package services

import (
	"context"
	"testing"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"booking-system/internal/status"
	"booking-system/models"
)

func TestTicketIssuanceQueue_IssueNow_OneTicketPerSeat(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1", "A2", "A3"}, models.BookingConfirmed)

	ids, err := p.issuance.IssueNow(ctx, "bk-1", "admin-1")

	require.NoError(t, err)
	assert.Len(t, ids, 3)

	var tickets []models.Ticket
	require.NoError(t, p.db.Select().From("tickets").OrderBy("seat_id").All(&tickets))
	require.Len(t, tickets, 3)
	serials := map[string]bool{}
	for i, ticket := range tickets {
		assert.Equal(t, "bk-1", ticket.BookingID)
		assert.Equal(t, models.TicketActive, ticket.Status)
		assert.NotEmpty(t, ticket.ArtifactRef)
		serials[ticket.Serial] = true
		assert.Equal(t, []string{"A1", "A2", "A3"}[i], ticket.SeatID)
	}
	assert.Len(t, serials, 3)
}

func TestTicketIssuanceQueue_IssueNow_Idempotent(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1", "A2"}, models.BookingConfirmed)

	first, err := p.issuance.IssueNow(ctx, "bk-1", "admin-1")
	require.NoError(t, err)

	second, err := p.issuance.IssueNow(ctx, "bk-1", "admin-1")
	require.NoError(t, err)

	assert.ElementsMatch(t, first, second)

	var tickets []models.Ticket
	require.NoError(t, p.db.Select().From("tickets").All(&tickets))
	assert.Len(t, tickets, 2)
}

func TestTicketIssuanceQueue_IssueNow_RequiresConfirmedBooking(t *testing.T) {
	p := newTestPipeline(t)
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingPending)

	_, err := p.issuance.IssueNow(context.Background(), "bk-1", "admin-1")

	require.Error(t, err)
	assert.Equal(t, status.CodeInvalidTransition, status.ConflictCode(err))
}

func TestTicketIssuanceQueue_IssueNow_RenderFailureLeavesNothingBehind(t *testing.T) {
	p := newTestPipeline(t)
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1", "A2"}, models.BookingConfirmed)
	p.renderer.fail = true

	_, err := p.issuance.IssueNow(context.Background(), "bk-1", "admin-1")

	require.Error(t, err)
	assert.True(t, status.IsTransient(err))

	var tickets []models.Ticket
	require.NoError(t, p.db.Select().From("tickets").All(&tickets))
	assert.Empty(t, tickets)
}

func TestTicketIssuanceQueue_Enqueue_CollapsesPerBooking(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingConfirmed)

	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-1"))

	// Age the task, then enqueue again: one row, counters reset.
	_, err := p.db.Update("ticket_tasks",
		dbx.Params{"attempts": 2, "last_error": "old failure"},
		dbx.HashExp{"booking_id": "bk-1"}).Execute()
	require.NoError(t, err)

	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-2"))

	var tasks []models.TicketTask
	require.NoError(t, p.db.Select().From("ticket_tasks").All(&tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, 0, tasks[0].Attempts)
	assert.Equal(t, "admin-2", tasks[0].InitiatedBy)
	assert.False(t, tasks[0].LastError.Valid)
	assert.Equal(t, models.TaskPending, tasks[0].Status)
}

func TestTicketIssuanceQueue_ProcessDue_IssuesAndClearsTask(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingConfirmed)
	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-1"))

	report, err := p.issuance.ProcessDue(ctx, time.Now().Add(time.Second))

	require.NoError(t, err)
	assert.Equal(t, []string{"bk-1"}, report.Issued)
	assert.Empty(t, report.Retried)
	assert.Empty(t, report.Failed)

	var tasks []models.TicketTask
	require.NoError(t, p.db.Select().From("ticket_tasks").All(&tasks))
	assert.Empty(t, tasks)

	var tickets []models.Ticket
	require.NoError(t, p.db.Select().From("tickets").All(&tickets))
	assert.Len(t, tickets, 1)
}

func TestTicketIssuanceQueue_ProcessDue_SkipsNotYetDue(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingConfirmed)
	p.issuance.RetryDelay = time.Hour
	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-1"))

	report, err := p.issuance.ProcessDue(ctx, time.Now())

	require.NoError(t, err)
	assert.Empty(t, report.Issued)
	assert.Empty(t, report.Retried)
	assert.Empty(t, report.Failed)
	assert.Zero(t, p.renderer.calls)
}

func TestTicketIssuanceQueue_ProcessDue_RetriesUntilBudgetExhausted(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingConfirmed)
	p.issuance.MaxAttempts = 2
	p.renderer.fail = true
	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-1"))

	// First due pass: failure, pushed forward.
	report, err := p.issuance.ProcessDue(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"bk-1"}, report.Retried)
	assert.Empty(t, report.Failed)

	var task models.TicketTask
	require.NoError(t, p.db.Select().From("ticket_tasks").One(&task))
	assert.Equal(t, 1, task.Attempts)
	assert.Equal(t, models.TaskPending, task.Status)
	assert.Contains(t, task.LastError.String, "artifact backend down")

	// Second due pass exhausts the budget: terminal failure, one alert.
	report, err = p.issuance.ProcessDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"bk-1"}, report.Failed)
	assert.Empty(t, report.Retried)

	require.NoError(t, p.db.Select().From("ticket_tasks").One(&task))
	assert.Equal(t, models.TaskFailed, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.Equal(t, []string{"bk-1"}, p.notifier.failed)

	// Failed is terminal: later passes ignore the task and never alert
	// again.
	report, err = p.issuance.ProcessDue(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, []string{"bk-1"}, p.notifier.failed)

	// The booking stays confirmed throughout.
	booking, err := p.ledger.Get(ctx, "bk-1")
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, booking.Status)
}

func TestTicketIssuanceQueue_ProcessDue_RecoversAfterTransientFailure(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()
	p.seedBooking(t, "bk-1", "user-1", "event-1", []string{"A1"}, models.BookingConfirmed)
	p.renderer.fail = true
	require.NoError(t, p.issuance.Enqueue(ctx, "bk-1", "admin-1"))

	report, err := p.issuance.ProcessDue(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"bk-1"}, report.Retried)

	// Backend comes back; the next due pass succeeds and clears the
	// task.
	p.renderer.fail = false
	report, err = p.issuance.ProcessDue(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"bk-1"}, report.Issued)

	var tasks []models.TicketTask
	require.NoError(t, p.db.Select().From("ticket_tasks").All(&tasks))
	assert.Empty(t, tasks)
	assert.Empty(t, p.notifier.failed)
}

func TestQRTicketRenderer_ProducesDataURI(t *testing.T) {
	renderer := NewQRTicketRenderer()
	ticket := &models.Ticket{
		ID:        "tk-1",
		BookingID: "bk-1",
		SeatID:    "A1",
		Serial:    "ABCD1234",
	}

	artifact, err := renderer.Render(ticket)

	require.NoError(t, err)
	assert.Contains(t, artifact, "data:image/png;base64,")
}
