package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueJSON(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		want string
	}{
		{"None", NoValue, "null"},
		{"Float", FloatValue(1234.5), "1234.5"},
		{"String", StringValue("static"), `"static"`},
		{"Bool", BoolValue(false), "false"},
		{"Time", TimeValue(time.Unix(1700000000, 0)), `"2023-11-14T22:13:20Z"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(b))
		})
	}
}

func TestValuePresent(t *testing.T) {
	assert.False(t, NoValue.Present())
	assert.Nil(t, NoValue.Interface())
	assert.True(t, FloatValue(0).Present(), "zero is still a value")
	assert.Equal(t, "float", FloatValue(0).Kind.String())
}

func TestIdentity(t *testing.T) {
	id := UnknownIdentity()
	assert.Equal(t, DefaultManufacturer, id.Manufacturer)
	assert.Equal(t, DefaultName, id.Name)
	assert.Equal(t, DefaultModel, id.Model)
	assert.False(t, id.Known())

	id.MAC = "AA:BB"
	assert.True(t, id.Known())
}

func TestSnapshot(t *testing.T) {
	var s Snapshot
	assert.True(t, s.Empty())
	_, ok := s.Endpoint("realtime")
	assert.False(t, ok)

	s = Snapshot{Payloads: map[string]Payload{"realtime": {"ic": 1.0}}}
	assert.False(t, s.Empty())
	p, ok := s.Endpoint("realtime")
	require.True(t, ok)
	assert.Equal(t, 1.0, p["ic"])
}
