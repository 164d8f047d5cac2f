package yahoo_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"marketfeed/internal/provider"
	yahoo "marketfeed/internal/provider/yahoo"
)

func TestChart_ParsesParallelArraysWithGaps(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Contains(t, req.URL.Path, "/v8/finance/chart/PETR4.SA")
			require.Equal(t, "1m", req.URL.Query().Get("interval"))
			require.Equal(t, "1d", req.URL.Query().Get("range"))
			return jsonBody(t, `{"chart":{"result":[{"timestamp":[1000,1001,1002],"indicators":{"quote":[{"close":[10,null,12]}]}}],"error":null}}`), nil
		}).
		Times(1)

	client := yahoo.New(yahoo.WithHTTPClient(httpClient))

	payload, err := client.Chart(t.Context(), "PETR4.SA", "1m", "1d")
	require.NoError(t, err)
	require.Len(t, payload.Results, 1)

	r := payload.Results[0]
	require.Equal(t, []int64{1000, 1001, 1002}, r.Timestamps)
	require.Len(t, r.Closes, 3)
	require.NotNil(t, r.Closes[0])
	require.Nil(t, r.Closes[1], "source gap must survive as nil")
	require.NotNil(t, r.Closes[2])
}

func TestChart_NotFoundIsNoResult(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{StatusCode: http.StatusNotFound, Body: http.NoBody}, nil).
		Times(1)

	client := yahoo.New(yahoo.WithHTTPClient(httpClient))

	_, err := client.Chart(t.Context(), "NOPE", "1m", "1d")
	require.ErrorIs(t, err, provider.ErrNoResult)
}

func TestChart_APIErrorSurfaced(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(jsonBody(t, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`), nil).
		Times(1)

	client := yahoo.New(yahoo.WithHTTPClient(httpClient))

	_, err := client.Chart(t.Context(), "NOPE", "1m", "1d")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No data found")
}
