package analytics

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func liveEventJSON(org uuid.UUID, eventType, recordID, status string) string {
	return fmt.Sprintf(
		`{"event_type":%q,"record_id":%q,"organization_id":%q,"status":%q,"file_name":"q3.csv","file_type":"CSV"}`,
		eventType, recordID, org.String(), status)
}

func TestParseLiveEventsFiltersByOrganization(t *testing.T) {
	org := uuid.New()
	other := uuid.New()

	entries := []string{
		liveEventJSON(org, "record_created", "r1", "pending"),
		liveEventJSON(other, "record_created", "r2", "pending"),
		liveEventJSON(org, "record_updated", "r1", "completed"),
	}

	events := parseLiveEvents(entries, org, 20)
	require.Len(t, events, 2)
	assert.Equal(t, "r1", events[0].RecordID)
	assert.Equal(t, "record_created", events[0].EventType)
	assert.Equal(t, "completed", events[1].Status)
}

func TestParseLiveEventsHonorsLimit(t *testing.T) {
	org := uuid.New()

	var entries []string
	for i := 0; i < 10; i++ {
		entries = append(entries, liveEventJSON(org, "record_created", fmt.Sprintf("r%d", i), "pending"))
	}

	events := parseLiveEvents(entries, org, 3)
	require.Len(t, events, 3)
	assert.Equal(t, "r0", events[0].RecordID)
	assert.Equal(t, "r2", events[2].RecordID)
}

func TestParseLiveEventsSkipsMalformedEntries(t *testing.T) {
	org := uuid.New()

	entries := []string{
		"not-json",
		liveEventJSON(org, "record_deleted", "r1", ""),
		"{}",
	}

	events := parseLiveEvents(entries, org, 20)
	require.Len(t, events, 1)
	assert.Equal(t, "record_deleted", events[0].EventType)
}

func TestParseLiveEventsEmptyInput(t *testing.T) {
	events := parseLiveEvents(nil, uuid.New(), 20)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}
