package notifier

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelRoundTrip(t *testing.T) {
	id := uuid.New()

	channel := Channel(id)
	assert.Equal(t, "incident:"+id.String(), channel)

	parsed, err := IncidentIDFromChannel(channel)
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}

func TestIncidentIDFromChannel_Invalid(t *testing.T) {
	_, err := IncidentIDFromChannel("unit:123")
	assert.Error(t, err)

	_, err = IncidentIDFromChannel("incident:not-a-uuid")
	assert.Error(t, err)
}

func TestIncidentUpdate_WireFormat(t *testing.T) {
	incidentID := uuid.New()

	payload, err := json.Marshal(IncidentUpdate{IncidentID: incidentID, Status: models.StatusReported})
	require.NoError(t, err)

	assert.JSONEq(t, `{"incidentId":"`+incidentID.String()+`","status":"reported","assignedUnitId":null}`, string(payload))
}
