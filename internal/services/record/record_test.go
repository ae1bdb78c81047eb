package record

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/course-subscriptions/internal/apiclient"
	"github.com/magabrotheeeer/course-subscriptions/internal/models"
)

type SourceMock struct{ mock.Mock }

func (m *SourceMock) CurrentSubscription(ctx context.Context) (json.RawMessage, error) {
	args := m.Called(ctx)
	body, _ := args.Get(0).(string)
	return json.RawMessage(body), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAccessor_GetCurrent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setupMocks func(m *SourceMock)
		want       models.SubscriptionRecord
		wantErr    bool
	}{
		{
			name: "wrapped record",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(`{"subscription":{
					"planType":"basic","status":"active",
					"currentPeriodStart":"2026-01-01T00:00:00Z","currentPeriodEnd":"2026-02-01T00:00:00Z",
					"cancelAtPeriodEnd":true}}`, nil)
			},
			want: models.SubscriptionRecord{PlanType: "basic", Status: models.StatusActive,
				CurrentPeriodStart: start, CurrentPeriodEnd: end, CancelAtPeriodEnd: true},
		},
		{
			name: "bare record",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(`{"planType":"pro","status":"canceled"}`, nil)
			},
			want: models.SubscriptionRecord{PlanType: "pro", Status: models.StatusCanceled},
		},
		{
			name: "null subscription",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(`{"subscription":null}`, nil)
			},
			want: models.NoSubscription(),
		},
		{
			name: "empty body",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(``, nil)
			},
			want: models.NoSubscription(),
		},
		{
			name: "not found",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return("", &apiclient.FetchError{Op: "x", StatusCode: http.StatusNotFound, Err: errors.New("Not Found")})
			},
			want: models.NoSubscription(),
		},
		{
			name: "unknown status",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(`{"subscription":{"status":"paused"}}`, nil)
			},
			wantErr: true,
		},
		{
			name: "inverted period",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return(`{"status":"active",
					"currentPeriodStart":"2026-02-01T00:00:00Z","currentPeriodEnd":"2026-01-01T00:00:00Z"}`, nil)
			},
			wantErr: true,
		},
		{
			name: "transport failure",
			setupMocks: func(m *SourceMock) {
				m.On("CurrentSubscription", mock.Anything).Return("", &apiclient.FetchError{Op: "x", Err: errors.New("refused")})
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &SourceMock{}
			tt.setupMocks(src)
			a := NewAccessor(src, newNoopLogger())

			got, err := a.GetCurrent(context.Background())
			if tt.wantErr {
				var fe *apiclient.FetchError
				assert.True(t, errors.As(err, &fe))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAccessor_UnauthenticatedPassesThrough(t *testing.T) {
	src := &SourceMock{}
	src.On("CurrentSubscription", mock.Anything).Return("", apiclient.ErrUnauthenticated)
	a := NewAccessor(src, newNoopLogger())

	_, err := a.GetCurrent(context.Background())
	assert.ErrorIs(t, err, apiclient.ErrUnauthenticated)
}

func TestStore_ReplaceIsFull(t *testing.T) {
	s := NewStore()
	assert.True(t, s.Current().IsNone())

	s.Replace(models.SubscriptionRecord{PlanType: "basic", Status: models.StatusActive, CancelAtPeriodEnd: true})
	s.Replace(models.SubscriptionRecord{PlanType: "pro", Status: models.StatusTrialing})

	assert.Equal(t, models.SubscriptionRecord{PlanType: "pro", Status: models.StatusTrialing}, s.Current())
	assert.Equal(t, uint64(2), s.Version())
}

func TestStore_HintRestore(t *testing.T) {
	s := NewStore()
	s.Replace(models.SubscriptionRecord{PlanType: "basic", Status: models.StatusActive})

	restore := s.Hint(func(rec *models.SubscriptionRecord) { rec.CancelAtPeriodEnd = true })
	assert.True(t, s.Current().CancelAtPeriodEnd)

	restore()
	assert.False(t, s.Current().CancelAtPeriodEnd)
}

func TestStore_RestoreSkippedAfterReplace(t *testing.T) {
	s := NewStore()
	s.Replace(models.SubscriptionRecord{PlanType: "basic", Status: models.StatusActive})

	restore := s.Hint(func(rec *models.SubscriptionRecord) { rec.CancelAtPeriodEnd = true })
	s.Replace(models.SubscriptionRecord{PlanType: "basic", Status: models.StatusCanceled})
	restore()

	assert.Equal(t, models.StatusCanceled, s.Current().Status)
}

func TestStore_Listeners(t *testing.T) {
	s := NewStore()
	var seen []models.SubscriptionStatus
	s.OnChange(func(prev, next models.SubscriptionRecord) {
		seen = append(seen, next.Status)
	})

	s.Replace(models.SubscriptionRecord{Status: models.StatusActive})
	restore := s.Hint(func(rec *models.SubscriptionRecord) { rec.CancelAtPeriodEnd = true })
	restore()

	assert.Equal(t, []models.SubscriptionStatus{models.StatusActive, models.StatusActive, models.StatusActive}, seen)
}

func TestStore_CurrentIsACopy(t *testing.T) {
	s := NewStore()
	trial := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	s.Replace(models.SubscriptionRecord{Status: models.StatusTrialing, TrialEnd: &trial})

	got := s.Current()
	*got.TrialEnd = trial.Add(time.Hour)
	assert.Equal(t, trial, *s.Current().TrialEnd)
}
