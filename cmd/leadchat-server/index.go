package main

import "net/http"

func indexHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(indexHTML))
}

const indexHTML = `<!doctype html>
<html lang="id">
<head>
  <meta charset="utf-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Lead Chat</title>
  <style>
    :root {
      --bg: #f4f7fb;
      --panel: #ffffff;
      --ink: #111827;
      --muted: #6b7280;
      --line: #e5e7eb;
      --brand: #0f766e;
      --warn: #b45309;
    }
    * { box-sizing: border-box; }
    body { margin: 0; font-family: system-ui, sans-serif; background: var(--bg); color: var(--ink); }
    main { max-width: 640px; margin: 24px auto; background: var(--panel); border: 1px solid var(--line); border-radius: 12px; padding: 16px; }
    header { display: flex; gap: 8px; align-items: center; justify-content: space-between; }
    #log { height: 420px; overflow-y: auto; border: 1px solid var(--line); border-radius: 8px; padding: 12px; margin: 12px 0; }
    .turn { margin: 6px 0; padding: 8px 10px; border-radius: 8px; max-width: 85%; white-space: pre-wrap; }
    .agent { background: #ecfdf5; }
    .user { background: #eff6ff; margin-left: auto; }
    #status { color: var(--muted); font-size: 13px; }
    #status.warn { color: var(--warn); }
    form { display: flex; gap: 8px; }
    input[type=text] { flex: 1; padding: 8px; border: 1px solid var(--line); border-radius: 8px; }
    button { background: var(--brand); color: #fff; border: 0; border-radius: 8px; padding: 8px 14px; cursor: pointer; }
  </style>
</head>
<body>
<main>
  <header>
    <strong>Lead Chat</strong>
    <span>
      <select id="theme">
        <option value="logic">Logic</option>
        <option value="satisfaction">Satisfaction</option>
      </select>
      <button id="start" type="button">Mulai</button>
    </span>
  </header>
  <div id="log"></div>
  <div id="status">belum terhubung</div>
  <form id="form">
    <input id="text" type="text" autocomplete="off" placeholder="Ketik pesan..." disabled />
    <button type="submit">Kirim</button>
  </form>
</main>
<script>
  const log = document.getElementById('log');
  const status = document.getElementById('status');
  const input = document.getElementById('text');
  let ws = null;

  function addTurn(turn) {
    const div = document.createElement('div');
    div.className = 'turn ' + turn.speaker;
    div.textContent = turn.text;
    log.appendChild(div);
    log.scrollTop = log.scrollHeight;
  }

  function setStatus(text, warn) {
    status.textContent = text;
    status.className = warn ? 'warn' : '';
  }

  document.getElementById('start').onclick = async () => {
    if (ws) ws.close();
    log.innerHTML = '';
    const res = await fetch('/v1/sessions', {
      method: 'POST',
      headers: { 'Content-Type': 'application/json' },
      body: JSON.stringify({ theme: document.getElementById('theme').value }),
    });
    const snap = await res.json();
    const proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
    ws = new WebSocket(proto + location.host + '/v1/sessions/' + snap.session_id + '/ws');
    ws.onmessage = (e) => {
      const ev = JSON.parse(e.data);
      switch (ev.type) {
        case 'snapshot':
          ev.snapshot.transcript.forEach(addTurn);
          input.disabled = ev.snapshot.phase === 'complete';
          setStatus('terhubung');
          break;
        case 'turn':
          addTurn(ev.turn);
          setStatus('terhubung');
          break;
        case 'countdown':
          setStatus('sesi berakhir dalam ' + ev.remaining + ' detik', true);
          break;
        case 'complete':
          input.disabled = true;
          setStatus('selesai (' + ev.snapshot.close_reason + ')');
          break;
        case 'error':
          setStatus(ev.message, true);
          break;
      }
    };
    ws.onclose = () => setStatus('koneksi ditutup');
    input.disabled = false;
    input.focus();
  };

  input.addEventListener('input', () => {
    if (ws && ws.readyState === WebSocket.OPEN) ws.send(JSON.stringify({ type: 'typing' }));
  });

  document.getElementById('form').onsubmit = (e) => {
    e.preventDefault();
    const text = input.value.trim();
    if (!text || !ws || ws.readyState !== WebSocket.OPEN) return;
    ws.send(JSON.stringify({ type: 'message', text }));
    input.value = '';
  };
</script>
</body>
</html>
`
