package web

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stringline-viewer/internal/servicedate"
	"stringline-viewer/internal/transit"
	"stringline-viewer/internal/view"
)

func TestChartSpec(t *testing.T) {
	d := servicedate.NewDate(2024, time.March, 9)
	spec := ChartSpec(view.Chart{
		Identity: transit.Identity{ConfigurationID: 300, ServiceDate: d},
		Title:    "Red Line on 2024-03-09",
		Range:    servicedate.Range{Start: d.At(3 * time.Hour), End: d.At(27*time.Hour - time.Second)},
		Routes: []transit.Route{
			{ShortName: "Red-N", Color: "ED1C24"},
			{ShortName: "Red-S", Color: "ED1C24"},
		},
	})

	b, err := json.Marshal(spec)
	require.NoError(t, err)
	var got struct {
		Title string `json:"title"`
		Data  struct {
			Name string `json:"name"`
		} `json:"data"`
		Layer []struct {
			Data *struct {
				Name string `json:"name"`
			} `json:"data"`
			Encoding struct {
				X struct {
					Field string `json:"field"`
					Scale *struct {
						Domain []string `json:"domain"`
					} `json:"scale"`
				} `json:"x"`
				Color *struct {
					Scale struct {
						Domain []string `json:"domain"`
						Range  []string `json:"range"`
					} `json:"scale"`
				} `json:"color"`
			} `json:"encoding"`
		} `json:"layer"`
	}
	require.NoError(t, json.Unmarshal(b, &got))

	assert.Equal(t, "Red Line on 2024-03-09", got.Title)
	assert.Equal(t, view.DatasetStringlines, got.Data.Name)
	require.Len(t, got.Layer, 2)

	lines := got.Layer[0].Encoding
	require.NotNil(t, lines.X.Scale)
	assert.Equal(t, []string{"2024-03-09T03:00:00", "2024-03-10T02:59:59"}, lines.X.Scale.Domain)
	require.NotNil(t, lines.Color)
	assert.Equal(t, []string{"Red-N", "Red-S"}, lines.Color.Scale.Domain)
	assert.Equal(t, []string{"#ED1C24", "#ED1C24"}, lines.Color.Scale.Range)

	rule := got.Layer[1]
	require.NotNil(t, rule.Data)
	assert.Equal(t, view.DatasetNowMark, rule.Data.Name)
	assert.Equal(t, "dt", rule.Encoding.X.Field)
}
