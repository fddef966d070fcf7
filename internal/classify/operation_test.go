package classify

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sdis/opsdash/internal/model"
)

const inptSender = "inpt@interieur.example"

func operationMail(seq uint32, number string, date time.Time) model.MailEvent {
	return mailEvent(seq, fmt.Sprintf("<op-%s-%d@inpt>", number, seq), inptSender, "Opération programmée",
		fmt.Sprintf("Opération n° %s\nSite : Mont Aigoual\nDate : 01/01/2025 de 08:00 à 10:00\n", number), date)
}

func incidentStartMail(seq uint32, number string, date time.Time) model.MailEvent {
	return mailEvent(seq, fmt.Sprintf("<start-%s-%d@inpt>", number, seq), inptSender, "Début d'incident",
		fmt.Sprintf("Référence opération : %s\nSite concerné : Mont Aigoual\nDébut : 01/01/2025 à 08:05\n", number), date)
}

func incidentEndMail(seq uint32, number string, date time.Time) model.MailEvent {
	return mailEvent(seq, fmt.Sprintf("<end-%s-%d@inpt>", number, seq), inptSender, "Fin d'incident",
		fmt.Sprintf("Référence opération : %s\nFin : 01/01/2025 à 09:40\n", number), date)
}

func newOperationClassifier(t *testing.T, capacity int) (*OperationClassifier, *recordingNotifier) {
	t.Helper()
	n := newRecordingNotifier()
	return NewOperationClassifier(model.OperationConfig{Capacity: capacity}, n, zap.NewNop()), n
}

func operationStatus(t *testing.T, c *OperationClassifier, number string) model.OperationStatus {
	t.Helper()
	for _, e := range c.ListEvents() {
		if e.Kind == model.KindOperation && e.Number() == number {
			return e.Status
		}
	}
	t.Fatalf("no operation %s in history", number)
	return ""
}

func TestOperationLifecycle(t *testing.T) {
	c, n := newOperationClassifier(t, 50)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, operationMail(1, "42", day(1))))
	assert.Equal(t, model.StatusPending, operationStatus(t, c, "42"))

	require.NoError(t, c.Handle(ctx, incidentStartMail(2, "42", day(2))))
	assert.Equal(t, model.StatusInProgress, operationStatus(t, c, "42"))

	require.NoError(t, c.Handle(ctx, incidentEndMail(3, "42", day(3))))
	assert.Equal(t, model.StatusResolved, operationStatus(t, c, "42"))

	events := c.ListEvents()
	require.Len(t, events, 3)
	assert.Equal(t, model.KindIncidentEnd, events[0].Kind)
	assert.Equal(t, model.KindOperation, events[2].Kind)

	sent := n.notifications()
	require.Len(t, sent, 3)
	assert.Equal(t, "Opération INPT programmée n°42", sent[0].Title)
	assert.Equal(t, "Mont Aigoual - 01/01/2025 de 08:00 à 10:00", sent[0].Body)
	assert.Equal(t, model.EmailTypeOperation, sent[0].Data.EmailType)
	assert.Equal(t, "Début d'incident INPT n°42", sent[1].Title)
	assert.Equal(t, "Fin d'incident INPT n°42", sent[2].Title)
}

func TestOperationStatusIndependentOfOrder(t *testing.T) {
	type step func(seq uint32) model.MailEvent
	op := func(seq uint32) model.MailEvent { return operationMail(seq, "42", day(1)) }
	start := func(seq uint32) model.MailEvent { return incidentStartMail(seq, "42", day(2)) }
	end := func(seq uint32) model.MailEvent { return incidentEndMail(seq, "42", day(3)) }

	tests := []struct {
		name  string
		steps []step
		want  model.OperationStatus
	}{
		{name: "operation only", steps: []step{op}, want: model.StatusPending},
		{name: "operation start", steps: []step{op, start}, want: model.StatusInProgress},
		{name: "start operation", steps: []step{start, op}, want: model.StatusInProgress},
		{name: "operation start end", steps: []step{op, start, end}, want: model.StatusResolved},
		{name: "operation end start", steps: []step{op, end, start}, want: model.StatusResolved},
		{name: "start operation end", steps: []step{start, op, end}, want: model.StatusResolved},
		{name: "start end operation", steps: []step{start, end, op}, want: model.StatusResolved},
		{name: "end operation start", steps: []step{end, op, start}, want: model.StatusResolved},
		{name: "end start operation", steps: []step{end, start, op}, want: model.StatusResolved},
		{name: "end operation", steps: []step{end, op}, want: model.StatusResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newOperationClassifier(t, 50)
			for i, s := range tt.steps {
				require.NoError(t, c.Handle(context.Background(), s(uint32(i+1))))
			}
			assert.Equal(t, tt.want, operationStatus(t, c, "42"))
		})
	}
}

func TestOperationIncidentsOnlyAffectTheirNumber(t *testing.T) {
	c, _ := newOperationClassifier(t, 50)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, operationMail(1, "42", day(1))))
	require.NoError(t, c.Handle(ctx, operationMail(2, "43", day(1))))
	require.NoError(t, c.Handle(ctx, incidentEndMail(3, "43", day(2))))

	assert.Equal(t, model.StatusPending, operationStatus(t, c, "42"))
	assert.Equal(t, model.StatusResolved, operationStatus(t, c, "43"))
}

func TestOperationRedeliveryKeepsResolution(t *testing.T) {
	c, _ := newOperationClassifier(t, 50)
	ctx := context.Background()

	ev := operationMail(1, "7", day(1))
	require.NoError(t, c.Handle(ctx, ev))

	resolved := c.ResolveWhere(func(model.OperationEvent) bool { return true })
	assert.Equal(t, []string{"<op-7-1@inpt>"}, resolved)

	require.NoError(t, c.Handle(ctx, ev))
	assert.Len(t, c.ListEvents(), 1)
	assert.Equal(t, model.StatusResolved, operationStatus(t, c, "7"))
}

func TestOperationIgnoresUnrelatedMail(t *testing.T) {
	c, n := newOperationClassifier(t, 50)

	require.NoError(t, c.Handle(context.Background(),
		mailEvent(1, "<x@y>", "someone@example.com", "Réunion", "Ordre du jour", day(1))))

	assert.Empty(t, c.ListEvents())
	assert.Empty(t, n.notifications())
}

func TestOperationMissingFieldsAreNil(t *testing.T) {
	c, _ := newOperationClassifier(t, 50)

	require.NoError(t, c.Handle(context.Background(),
		mailEvent(1, "<bare@inpt>", inptSender, "Opération programmée", "Détails à venir", day(1))))

	events := c.ListEvents()
	require.Len(t, events, 1)
	assert.Nil(t, events[0].OperationNumber)
	assert.Nil(t, events[0].Site)
	assert.Nil(t, events[0].DateTime)
	assert.Equal(t, model.StatusPending, events[0].Status)
}

func TestOperationSynthesizedIDNeverSuppresses(t *testing.T) {
	c, n := newOperationClassifier(t, 50)
	ctx := context.Background()

	synth := mailEvent(3, "", inptSender, "Début d'incident", "Référence opération : 9", day(1))
	require.NoError(t, c.Handle(ctx, synth))
	assert.False(t, c.Notified("seqno-3"))
	assert.Empty(t, n.notifications())

	require.NoError(t, c.Handle(ctx, incidentStartMail(3, "9", day(2))))
	assert.Len(t, n.notifications(), 1)
}

func TestOperationCapacity(t *testing.T) {
	c, _ := newOperationClassifier(t, 4)
	ctx := context.Background()

	for d := 1; d <= 10; d++ {
		require.NoError(t, c.Handle(ctx, operationMail(uint32(d), fmt.Sprint(d), day(d))))
		assert.LessOrEqual(t, len(c.ListEvents()), 4)
	}

	events := c.ListEvents()
	require.Len(t, events, 4)
	assert.Equal(t, "10", events[0].Number())
	assert.Equal(t, "7", events[3].Number())
}

func TestResolveWhereSkipsIncidentsAndResolved(t *testing.T) {
	c, _ := newOperationClassifier(t, 50)
	ctx := context.Background()

	require.NoError(t, c.Handle(ctx, operationMail(1, "1", day(1))))
	require.NoError(t, c.Handle(ctx, operationMail(2, "2", day(1))))
	require.NoError(t, c.Handle(ctx, incidentEndMail(3, "2", day(2))))
	require.NoError(t, c.Handle(ctx, incidentStartMail(4, "5", day(2))))

	var seen []string
	resolved := c.ResolveWhere(func(e model.OperationEvent) bool {
		seen = append(seen, e.ID)
		return true
	})

	assert.Equal(t, []string{"<op-1-1@inpt>"}, resolved)
	assert.Equal(t, []string{"<op-1-1@inpt>"}, seen)
}
