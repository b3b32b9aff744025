package meetup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmakarov/baraholka-api/internal/models"
	"github.com/rmakarov/baraholka-api/internal/settlement"
)

func int64ptr(v int64) *int64 { return &v }

func strptr(s string) *string { return &s }

func TestValidateMeetingTime(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, validateMeetingTime(now.Add(24*time.Hour), now))

	// Нулевое и прошедшее время
	assert.Error(t, validateMeetingTime(time.Time{}, now))
	assert.Error(t, validateMeetingTime(now.Add(-time.Minute), now))
	assert.Error(t, validateMeetingTime(now, now))

	// Граница горизонта планирования
	require.NoError(t, validateMeetingTime(now.Add(models.MeetupMaxAhead), now))
	assert.Error(t, validateMeetingTime(now.Add(models.MeetupMaxAhead+time.Second), now))
}

func TestValidateTerms(t *testing.T) {
	tests := []struct {
		name            string
		negotiatedPrice *int64
		isTrade         bool
		tradeDesc       *string
		priceNegotiable bool
		tradeAllowed    bool
		wantErr         bool
	}{
		{name: "без условий", wantErr: false},
		{
			name:            "договорная цена разрешена",
			negotiatedPrice: int64ptr(50000),
			priceNegotiable: true,
		},
		{
			name:            "договорная цена запрещена объявлением",
			negotiatedPrice: int64ptr(50000),
			wantErr:         true,
		},
		{
			name:            "отрицательная договорная цена",
			negotiatedPrice: int64ptr(-1),
			priceNegotiable: true,
			wantErr:         true,
		},
		{
			name:         "обмен с описанием",
			isTrade:      true,
			tradeDesc:    strptr("самокат"),
			tradeAllowed: true,
		},
		{
			name:         "обмен без описания",
			isTrade:      true,
			tradeAllowed: true,
			wantErr:      true,
		},
		{
			name:      "обмен запрещён объявлением",
			isTrade:   true,
			tradeDesc: strptr("самокат"),
			wantErr:   true,
		},
		{
			name:            "цена и обмен одновременно",
			negotiatedPrice: int64ptr(50000),
			isTrade:         true,
			tradeDesc:       strptr("самокат"),
			priceNegotiable: true,
			tradeAllowed:    true,
			wantErr:         true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTerms(tt.negotiatedPrice, tt.isTrade, tt.tradeDesc, tt.priceNegotiable, tt.tradeAllowed)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, 400, settlement.StatusOf(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
