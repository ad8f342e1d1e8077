package trackyourtrains

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2025-06-06", r.URL.Query().Get("v"))
		switch r.URL.Path {
		case "/data/Trains.json":
			io.WriteString(w, `{"Response":[{"TrainId":12,"TrainNumber":"12UP","TrainName":"Allama Iqbal Express","TrainNameUR":"علامہ اقبال"}]}`)
		case "/data/StationsData.json":
			io.WriteString(w, `[{"StationId":"LHR","StationName":"Lahore","StationNameUrdu":"لاہور","Latitude":"31.57","Longitude":74.31}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL+"/data/", "2025-06-06")

	trains, err := c.FetchTrains(context.Background())
	require.NoError(t, err)
	require.Len(t, trains, 1)
	assert.Equal(t, "12", trains[0].TrainID)
	assert.Equal(t, "علامہ اقبال", trains[0].TrainNameLocalized)

	stations, err := c.FetchStations(context.Background())
	require.NoError(t, err)
	require.Len(t, stations, 1)
	assert.Equal(t, 31.57, stations[0].Latitude)
	assert.Equal(t, 74.31, stations[0].Longitude)
}

func TestFetchTolerantShapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"Response":null}`)
	}))
	defer srv.Close()

	trains, err := New(srv.URL, "").FetchTrains(context.Background())
	require.NoError(t, err)
	assert.Empty(t, trains)
}

func TestFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL, "v").FetchStations(context.Background())
	assert.ErrorContains(t, err, "unexpected status code: 500")
}
