package web

import (
	"html/template"
)

const tmplBase = `{{define "base"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}} · Data Lake Merritt</title>
<style>
  html, body { margin: 0; height: 100%; font-family: "Red Hat Text", sans-serif; }
  body { display: flex; flex-direction: column; }
  header { display: flex; align-items: center; gap: 2rem; padding: .75rem 2rem; background: #151515; color: #fff; }
  header .brand { font-size: 1.25rem; }
  header nav a { color: #ccc; margin-right: 1rem; text-decoration: none; }
  header nav a.current { color: #fff; border-bottom: 2px solid #73bcf7; }
  main { flex: 1; display: flex; flex-direction: column; padding: 1rem 2rem; min-height: 0; }
  form.selectors { display: flex; gap: 1rem; align-items: flex-end; margin-bottom: .5rem; }
  form.selectors label { display: flex; flex-direction: column; font-size: .875rem; }
  .field-error { color: #c9190b; font-size: .875rem; }
  .panel { padding: 2rem; text-align: center; }
  #chart { flex: 1; min-height: 0; background: #e0e0e0; }
  #status { margin-left: auto; font-size: .875rem; color: #6a6e73; }
</style>
</head>
<body>
<header>
  <span class="brand">Data Lake Merritt</span>
  <nav>
    <a href="/stringline"{{if eq .Nav "stringline"}} class="current"{{end}}>Stringlines</a>
    <a href="/faq"{{if eq .Nav "faq"}} class="current"{{end}}>FAQ</a>
  </nav>
</header>
<main>
{{template "content" .}}
</main>
</body>
</html>{{end}}

{{define "selectors"}}
<form class="selectors" method="get" action="/stringline/select">
  <label>Configuration
    <select name="configuration" onchange="this.form.submit()">
      {{range .Configurations}}<option value="{{.ID}}"{{if eq .ID $.Selected}} selected{{end}}>{{.Name}}</option>{{end}}
    </select>
  </label>
  <label>Service date
    <input type="date" name="serviceDate" id="service-date" placeholder="YYYY-MM-DD" required
      value="{{.ServiceDate}}"{{if .MinDate}} min="{{.MinDate}}"{{end}}{{if .MaxDate}} max="{{.MaxDate}}"{{end}}
      onchange="this.form.submit()">
  </label>
  <noscript><button type="submit">Show</button></noscript>
  {{if .FieldMessage}}<span class="field-error" role="alert">{{.FieldMessage}}</span>{{end}}
  <span id="status"></span>
</form>
{{end}}`

const tmplStringline = `{{define "content"}}
{{template "selectors" .}}
<div id="chart"></div>
<script src="https://cdn.jsdelivr.net/npm/vega@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-lite@5"></script>
<script src="https://cdn.jsdelivr.net/npm/vega-embed@6"></script>
<script>
(function () {
  const identity = {{.Identity}};
  const initial = {{.Datasets}};
  let spec = {{.Spec}};
  let view = null;
  const pending = {};
  const status = document.getElementById("status");

  function apply(name, rows) {
    if (!view) { pending[name] = rows; return; }
    view.data(name, rows).resize().runAsync();
  }

  function embed() {
    return vegaEmbed("#chart", spec, { mode: "vega-lite", scaleFactor: 2 }).then(function (res) {
      view = res.view;
      for (const name in pending) { view.data(name, pending[name]); }
      for (const name in pending) { delete pending[name]; }
      return view.resize().runAsync();
    });
  }

  for (const name in initial) { pending[name] = initial[name]; }
  embed();

  const proto = location.protocol === "https:" ? "wss:" : "ws:";
  const ws = new WebSocket(proto + "//" + location.host + "/api/stringline/live");
  ws.onopen = function () {
    ws.send(JSON.stringify({ type: "show", configuration: identity.configuration, serviceDate: identity.serviceDate }));
    ws.send(JSON.stringify({ type: "visibility", visible: document.visibilityState === "visible" }));
  };
  ws.onmessage = function (ev) {
    const msg = JSON.parse(ev.data);
    if (msg.type === "dataset") {
      apply(msg.name, msg.rows);
      status.textContent = "Updated " + new Date().toLocaleTimeString();
    } else if (msg.type === "chart") {
      if (JSON.stringify(msg.identity) === JSON.stringify(identity)) { return; }
      spec = msg.spec;
      view = null;
      embed();
    } else if (msg.type === "error") {
      status.textContent = msg.notFound ? "Configuration not found." : "Error loading stringline data: " + msg.message;
    }
  };
  ws.onclose = function () { status.textContent = "Live updates disconnected."; };
  document.addEventListener("visibilitychange", function () {
    if (ws.readyState === WebSocket.OPEN) {
      ws.send(JSON.stringify({ type: "visibility", visible: document.visibilityState === "visible" }));
    }
  });
})();
</script>
{{end}}`

const tmplSelect = `{{define "content"}}
{{template "selectors" .}}
{{if .Message}}<div class="panel">{{.Message}}</div>{{end}}
{{end}}`

const tmplNotFound = `{{define "content"}}
<div class="panel">
  <h1>Not found</h1>
  <p>{{.Message}}</p>
  <p><a href="/stringline">Back to stringlines</a></p>
</div>
{{end}}`

const tmplError = `{{define "content"}}
<div class="panel">
  <h1>Something went wrong</h1>
  <p>{{.Message}}</p>
  <p><a href="">Try again</a></p>
</div>
{{end}}`

const tmplFAQ = `{{define "content"}}
<article style="max-width: 48rem; margin: 0 auto;">
  <h1>FAQ</h1>
  <h2>What is a stringline diagram?</h2>
  <p>Each line follows one train through the day. Time runs along the horizontal axis and stations,
  in line order, down the vertical axis, so steep segments are fast running and flat ones are dwells or delays.</p>
  <h2>Why does a day start at 3 AM?</h2>
  <p>Late-night trains belong to the service day on which they departed. Events between midnight and
  {{.DayStart}} Pacific time are shown on the previous service date.</p>
  <h2>How fresh is the data?</h2>
  <p>Today's chart refreshes every {{.LiveInterval}} while the page is in the foreground, and the black
  rule marking the current time moves every {{.NowMarkInterval}}. Past service dates do not change and are not refreshed.</p>
  <h2>Why do some points have a different shape?</h2>
  <p>Predicted arrivals that have not happened yet are drawn with a different marker than observed ones.</p>
</article>
{{end}}`

// Page names.
const (
	pageStringline = "stringline"
	pageSelect     = "select"
	pageNotFound   = "notfound"
	pageError      = "error"
	pageFAQ        = "faq"
)

func parseTemplates() map[string]*template.Template {
	base := template.Must(template.New("base").Parse(tmplBase))
	pages := map[string]string{
		pageStringline: tmplStringline,
		pageSelect:     tmplSelect,
		pageNotFound:   tmplNotFound,
		pageError:      tmplError,
		pageFAQ:        tmplFAQ,
	}
	out := make(map[string]*template.Template, len(pages))
	for name, src := range pages {
		out[name] = template.Must(template.Must(base.Clone()).Parse(src))
	}
	return out
}
