package web

import (
	"stringline-viewer/internal/view"
)

// ChartSpec builds the vega-lite spec for c. The datasets named in
// view.Dataset* are bound at runtime by the page script.
func ChartSpec(c view.Chart) map[string]any {
	domain := make([]string, len(c.Routes))
	colors := make([]string, len(c.Routes))
	for i, r := range c.Routes {
		domain[i] = r.ShortName
		colors[i] = "#" + r.Color
	}

	return map[string]any{
		"$schema": "https://vega.github.io/schema/vega-lite/v5.json",
		"title":   c.Title,
		"width":   "container",
		"height":  "container",
		"data":    map[string]any{"name": view.DatasetStringlines},
		"config":  map[string]any{"font": "Red Hat Text"},
		"layer": []any{
			map[string]any{
				"transform": []any{
					lookup(view.DatasetStationNames, "stop_name"),
					lookup(view.DatasetStationSort, "sort_order"),
				},
				"mark": map[string]any{"type": "line", "point": true},
				"params": []any{
					map[string]any{"name": "grid", "select": "interval", "bind": "scales"},
					map[string]any{
						"name":   "route",
						"select": map[string]any{"type": "point", "fields": []string{"route_short_name"}},
						"bind":   "legend",
					},
				},
				"encoding": map[string]any{
					"x": map[string]any{
						"field": "event_time",
						"type":  "temporal",
						"axis":  map[string]any{"format": "%H:%M"},
						"scale": map[string]any{"domain": []string{c.Range.Start.String(), c.Range.End.String()}},
						"title": "Time",
					},
					"y": map[string]any{
						"field": "stop_name",
						"type":  "nominal",
						"sort":  map[string]any{"field": "sort_order"},
						"title": "Station",
						"axis":  map[string]any{"grid": true},
					},
					"detail": map[string]any{"field": "trip_id", "type": "nominal"},
					"color": map[string]any{
						"field": "route_short_name",
						"type":  "nominal",
						"title": "Line",
						"scale": map[string]any{"domain": domain, "range": colors},
					},
					"shape": map[string]any{
						"field":  "is_future",
						"type":   "nominal",
						"title":  "Observation Type",
						"legend": map[string]any{"labelExpr": "datum.value ? 'Predicted': 'Actual'"},
					},
					"opacity": map[string]any{
						"condition": map[string]any{"param": "route", "value": 1},
						"value":     0.1,
					},
					"tooltip": []any{
						tooltip("route_short_name", "nominal", "Line"),
						tooltip("trip_id", "nominal", "Trip ID"),
						tooltip("stop_id", "nominal", "Station Code"),
						tooltip("stop_name", "nominal", "Station Name"),
						map[string]any{"field": "event_time", "type": "temporal", "title": "Time", "format": "%H:%M:%S"},
						tooltip("trip_headsign", "nominal", "Destination"),
					},
				},
			},
			map[string]any{
				"mark":     map[string]any{"type": "rule", "color": "black", "size": 2},
				"encoding": map[string]any{"x": map[string]any{"field": "dt", "type": "temporal"}},
				"data":     map[string]any{"name": view.DatasetNowMark},
			},
		},
	}
}

func lookup(dataset, field string) map[string]any {
	return map[string]any{
		"lookup": "stop_id",
		"from": map[string]any{
			"data":   map[string]any{"name": dataset},
			"key":    "stop_id",
			"fields": []string{field},
		},
	}
}

func tooltip(field, typ, title string) map[string]any {
	return map[string]any{"field": field, "type": typ, "title": title}
}
