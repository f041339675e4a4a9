package httpapi

import (
	"fmt"
	"net/http"
)

const dashboardHTML = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Sessiondock</title>
  <style>
    :root {
      --ink: #16211f;
      --paper: #f3f6f4;
      --card: #ffffff;
      --line: #d4ddd8;
      --accent: #2a7f62;
      --accent-2: #b8722c;
      --danger: #b23b32;
      --muted: #68766f;
      --shadow: 0 14px 30px rgba(22, 33, 31, 0.12);
    }

    * { box-sizing: border-box; }

    body {
      margin: 0;
      font-family: "Avenir Next", "Segoe UI", sans-serif;
      color: var(--ink);
      background:
        radial-gradient(900px 420px at -5% -10%, rgba(42, 127, 98, 0.14), transparent 60%),
        radial-gradient(700px 420px at 110% -10%, rgba(184, 114, 44, 0.12), transparent 65%),
        var(--paper);
      min-height: 100vh;
      padding: 20px;
    }

    .shell {
      max-width: 1080px;
      margin: 0 auto;
      display: grid;
      gap: 14px;
    }

    .bar {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 16px;
      box-shadow: var(--shadow);
    }

    h1 { margin: 0; font-size: 1.5rem; letter-spacing: 0.02em; }

    .sub { margin-top: 6px; color: var(--muted); font-size: 0.9rem; }

    .cards {
      display: grid;
      gap: 12px;
      grid-template-columns: repeat(3, 1fr);
    }

    .card {
      background: var(--card);
      border: 1px solid var(--line);
      border-radius: 14px;
      padding: 14px 16px;
      box-shadow: var(--shadow);
    }

    .card .value { font-size: 1.8rem; font-weight: 700; }
    .card .label { color: var(--muted); font-size: 0.82rem; text-transform: uppercase; letter-spacing: 0.06em; }

    .upload {
      display: flex;
      gap: 10px;
      align-items: center;
      margin-top: 12px;
    }

    button {
      border: 0;
      border-radius: 9px;
      padding: 9px 14px;
      font-family: inherit;
      font-weight: 600;
      cursor: pointer;
    }

    .btn-primary { background: var(--accent); color: #fff; }
    .btn-muted { background: #e8eeea; color: var(--ink); border: 1px solid var(--line); }
    .btn-danger { background: var(--danger); color: #fff; }

    table { width: 100%; border-collapse: collapse; }

    th, td {
      text-align: left;
      padding: 10px 12px;
      border-bottom: 1px solid var(--line);
      font-size: 0.92rem;
    }

    th { color: var(--muted); font-size: 0.78rem; text-transform: uppercase; letter-spacing: 0.06em; }

    .pill {
      display: inline-block;
      border-radius: 999px;
      padding: 3px 10px;
      font-size: 0.78rem;
      font-weight: 700;
    }

    .pill.ok { background: rgba(42, 127, 98, 0.14); color: var(--accent); }
    .pill.bad { background: rgba(178, 59, 50, 0.14); color: var(--danger); }

    .empty { padding: 28px; text-align: center; color: var(--muted); }

    #status { color: var(--muted); font-size: 0.82rem; }
  </style>
</head>
<body>
  <div class="shell">
    <div class="bar">
      <h1>Sessiondock</h1>
      <div class="sub">Stored session records, live from the record store.</div>
      <div class="upload">
        <input type="file" id="file" />
        <button class="btn-primary" onclick="upload()">Upload</button>
        <button class="btn-muted" onclick="refresh()">Refresh</button>
        <span id="status"></span>
      </div>
    </div>

    <div class="cards">
      <div class="card"><div class="value" id="total">0</div><div class="label">Total</div></div>
      <div class="card"><div class="value" id="recent">0</div><div class="label">Last 24h</div></div>
      <div class="card"><div class="value" id="valid">0</div><div class="label">Valid</div></div>
    </div>

    <div class="bar">
      <table>
        <thead>
          <tr><th>Name</th><th>Number</th><th>Id</th><th>Status</th><th>Modified</th><th></th></tr>
        </thead>
        <tbody id="rows"></tbody>
      </table>
      <div class="empty" id="empty" style="display:none">No session records yet.</div>
    </div>
  </div>

  <script>
    async function refresh() {
      const res = await fetch('/api/files');
      if (!res.ok) {
        setStatus('listing failed (' + res.status + ')');
        return;
      }
      const data = await res.json();
      document.getElementById('total').textContent = data.total;
      document.getElementById('recent').textContent = data.recent;
      document.getElementById('valid').textContent = data.valid;
      render(data.files || []);
    }

    function render(files) {
      const rows = document.getElementById('rows');
      rows.innerHTML = '';
      document.getElementById('empty').style.display = files.length ? 'none' : 'block';
      for (const f of files) {
        const tr = document.createElement('tr');
        const status = f.valid
          ? '<span class="pill ok">valid</span>'
          : '<span class="pill bad">' + (f.name === 'Corrupted' ? 'corrupted' : 'invalid') + '</span>';
        const modified = f.timestamp ? new Date(f.timestamp).toLocaleString() : '—';
        tr.innerHTML =
          '<td>' + escapeHtml(f.name) + '</td>' +
          '<td>' + escapeHtml(f.number) + '</td>' +
          '<td>' + escapeHtml(f.id) + '</td>' +
          '<td>' + status + '</td>' +
          '<td>' + modified + '</td>' +
          '<td>' +
            '<button class="btn-muted" onclick="rename(\'' + encodeURIComponent(f.filename) + '\')">Rename</button> ' +
            '<button class="btn-danger" onclick="remove(\'' + encodeURIComponent(f.filename) + '\')">Delete</button>' +
          '</td>';
        rows.appendChild(tr);
      }
    }

    async function upload() {
      const input = document.getElementById('file');
      if (!input.files.length) {
        setStatus('choose a file first');
        return;
      }
      const body = new FormData();
      body.append('file', input.files[0]);
      const res = await fetch('/api/upload', { method: 'POST', body });
      setStatus(res.ok ? 'uploaded' : 'upload failed (' + res.status + ')');
      input.value = '';
      refresh();
    }

    async function rename(filename) {
      const newName = prompt('New name (without .json):');
      if (!newName) return;
      const res = await fetch('/api/files/' + filename, {
        method: 'PUT',
        headers: { 'Content-Type': 'application/json' },
        body: JSON.stringify({ newName })
      });
      if (res.status === 409) setStatus('name already taken');
      else setStatus(res.ok ? 'renamed' : 'rename failed (' + res.status + ')');
      refresh();
    }

    async function remove(filename) {
      if (!confirm('Delete this session record?')) return;
      const res = await fetch('/api/files/' + filename, { method: 'DELETE' });
      setStatus(res.ok ? 'deleted' : 'delete failed (' + res.status + ')');
      refresh();
    }

    function setStatus(msg) {
      document.getElementById('status').textContent = msg;
    }

    function escapeHtml(value) {
      const div = document.createElement('div');
      div.textContent = value == null ? '' : String(value);
      return div.innerHTML;
    }

    function listen() {
      try {
        const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
        const ws = new WebSocket(proto + '//' + location.host + '/api/changes');
        ws.onmessage = () => refresh();
        ws.onclose = () => setTimeout(listen, 5000);
      } catch (e) {
        // Fall back to manual refresh.
      }
    }

    refresh();
    listen();
  </script>
</body>
</html>
`

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, dashboardHTML)
}
