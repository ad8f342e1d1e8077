package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawTrainsKeepsOrder(t *testing.T) {
	var trains RawTrains
	require.NoError(t, json.Unmarshal([]byte(`{
		"b": {"2": {"lat": "1"}, "1": {"lat": "2"}},
		"a": {"3": {"lat": 31.5, "sp": null}},
		"skip": null,
		"c": {"": {"lat": "1"}, "4": null, "5": "text", "6": {"lat": [1]}}
	}`), &trains))

	require.Len(t, trains, 3)
	assert.Equal(t, "b", trains[0].OuterKey)
	assert.Equal(t, "2", trains[0].Instances[0].InnerKey)
	assert.Equal(t, "1", trains[0].Instances[1].InnerKey)

	a := trains[1].Instances[0].Fields
	assert.Equal(t, FlexString{Value: "31.5", Present: true}, a.Lat)
	assert.False(t, a.Speed.Present)

	require.Len(t, trains[2].Instances, 1)
	assert.Equal(t, "6", trains[2].Instances[0].InnerKey)
	assert.False(t, trains[2].Instances[0].Fields.Lat.Present)
	assert.Equal(t, 4, trains.Len())
}

func TestRawTrainsRejectsNonObject(t *testing.T) {
	var trains RawTrains
	assert.Error(t, json.Unmarshal([]byte(`[1,2]`), &trains))
	require.NoError(t, json.Unmarshal([]byte(`null`), &trains))
	assert.Empty(t, trains)
}

func TestRawTrainsMarshalOrder(t *testing.T) {
	trains := RawTrains{
		{OuterKey: "z", Instances: []RawInstance{{InnerKey: "1", Fields: RawTrain{Lat: FlexString{Value: "1", Present: true}}}}},
		{OuterKey: "a", Instances: []RawInstance{}},
	}
	data, err := json.Marshal(trains)
	require.NoError(t, err)
	assert.Contains(t, string(data), `{"z":{"1":{"lat":"1"`)
	assert.Contains(t, string(data), `"a":{}}`)
}
