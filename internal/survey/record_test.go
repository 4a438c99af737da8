package survey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	now := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	f := Form{SurveyUniqueID: "101-201-5-A-1", SchoolID: "s", SurveyDate: "2025-04-01", StudentName: "  Ana  "}

	rec, err := NewRecord(f, "partner-p", "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, "Ana", rec.StudentName)
	assert.Equal(t, now, rec.SubmittedAt)
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), rec.SurveyDay)
	assert.Equal(t, ComputeEditDeadlines(now), rec.Deadlines)
	assert.Equal(t, "partner-p", rec.PartnerID)
}

func TestNewRecordKeepsClientSubmittedAt(t *testing.T) {
	now := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)
	client := now.Add(-72 * time.Hour)
	rec, err := NewRecord(Form{SubmittedAt: &client}, "", "user-1", now)
	require.NoError(t, err)
	assert.Equal(t, client, rec.SubmittedAt)
	assert.Equal(t, ComputeEditDeadlines(now), rec.Deadlines, "deadlines follow the server receive time")
}

func TestNewRecordRejectsBadDate(t *testing.T) {
	_, err := NewRecord(Form{SurveyDate: "yesterday"}, "", "", time.Now())
	assert.ErrorIs(t, err, ErrInvalidDate)
}
