package viewer

import "net/http"

// serveHome is the single inspection page: the live canvas on the left, the
// diagnostic tail and slash input on the right. Everything it needs comes
// from the JSON/SSE/websocket endpoints.
func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(homePage))
}

const homePage = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>addonbox</title>
<style>
  body { margin: 0; display: flex; height: 100vh; font: 13px/1.4 system-ui, sans-serif; background: #15171c; color: #cfd3dc; }
  #canvas-wrap { flex: 1; overflow: auto; position: relative; }
  #canvas { position: relative; background: #0c0d10; margin: 12px; outline: 1px solid #2a2e38; }
  .frame { position: absolute; box-sizing: border-box; outline: 1px dashed #3b4252; overflow: hidden; }
  .frame .label { font-size: 11px; padding: 2px 4px; white-space: pre; }
  #side { width: 420px; display: flex; flex-direction: column; border-left: 1px solid #2a2e38; }
  #log { flex: 1; overflow-y: auto; padding: 8px; font-family: ui-monospace, monospace; font-size: 12px; white-space: pre-wrap; }
  #slash { display: flex; border-top: 1px solid #2a2e38; }
  #slash input { flex: 1; background: #1d2027; color: inherit; border: 0; padding: 8px; font: inherit; outline: none; }
</style>
</head>
<body>
<div id="canvas-wrap"><div id="canvas"></div></div>
<div id="side">
  <div id="log"></div>
  <form id="slash"><input placeholder="/command ..." autocomplete="off"></form>
</div>
<script>
const canvas = document.getElementById('canvas');
const logEl = document.getElementById('log');
const els = {};

function paint(f) {
  let el = els[f.id];
  if (!el) {
    el = document.createElement('div');
    el.className = 'frame';
    el.appendChild(Object.assign(document.createElement('div'), {className: 'label'}));
    el.addEventListener('click', () => fetch('/api/frames/click', {
      method: 'POST', body: JSON.stringify({id: f.id}),
    }));
    canvas.appendChild(el);
    els[f.id] = el;
  }
  el.style.left = f.x + 'px';
  el.style.top = f.y + 'px';
  el.style.width = f.width + 'px';
  el.style.height = f.height + 'px';
  el.style.display = f.shown ? '' : 'none';
  el.style.opacity = f.alpha;
  el.style.zIndex = f.level || 0;
  const b = f.backdrop || {};
  el.style.background = b.color ? argb(b.color) : '';
  if (b.image) el.style.backgroundImage = 'url(' + b.image + ')';
  const label = el.firstChild;
  label.textContent = f.text || '';
  if (f.font_size) label.style.fontSize = f.font_size + 'px';
}

function argb(c) { // #AARRGGBB -> rgba()
  const n = parseInt(c.slice(1), 16);
  return 'rgba(' + ((n>>16)&255) + ',' + ((n>>8)&255) + ',' + (n&255) + ',' + (((n>>>24)&255)/255) + ')';
}

function connect() {
  const ws = new WebSocket('ws://' + location.host + '/ws/canvas');
  ws.onmessage = (e) => {
    const msg = JSON.parse(e.data);
    if (msg.type === 'sync') {
      canvas.style.width = msg.width + 'px';
      canvas.style.height = msg.height + 'px';
      (msg.frames || []).forEach(paint);
    } else if (msg.frame) {
      paint(msg.frame);
    }
  };
  ws.onclose = () => setTimeout(connect, 1000);
}
connect();

function logLine(e) {
  const div = document.createElement('div');
  div.textContent = e.msg;
  logEl.appendChild(div);
  while (logEl.childNodes.length > 500) logEl.removeChild(logEl.firstChild);
  logEl.scrollTop = logEl.scrollHeight;
}
fetch('/api/logs').then(r => r.json()).then(es => (es || []).forEach(logLine));
new EventSource('/api/logs/stream').onmessage = (e) => logLine(JSON.parse(e.data));

document.getElementById('slash').addEventListener('submit', (e) => {
  e.preventDefault();
  const input = e.target.querySelector('input');
  fetch('/api/slash', {method: 'POST', body: JSON.stringify({input: input.value})});
  input.value = '';
});
</script>
</body>
</html>
`
