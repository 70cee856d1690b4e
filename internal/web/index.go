package web

import (
	"fmt"
	"net/http"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, indexHTML)
}

// Live view of the active portfolio and the ledger journal.
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Coinledger</title>
  <link href="https://fonts.googleapis.com/css2?family=Space+Mono:wght@400;700&display=swap" rel="stylesheet">
  <style>
    :root {
      --bg:#ffffff;
      --ink:#111111;
      --ink-soft:#9c9c9c;
      --panel:#f6f6f6;
      --up:#1f9d55;
      --down:#cc1f1a;
    }
    * { box-sizing:border-box; }
    body {
      margin:0;
      padding:2rem;
      background:var(--bg);
      color:var(--ink);
      font-family:'Space Mono','JetBrains Mono',monospace;
    }
    .panel { background:var(--panel); border:2px solid var(--ink); padding:1rem 1.5rem; margin-bottom:1.5rem; max-width:720px; }
    h1 { font-size:1.1rem; letter-spacing:.2em; text-transform:uppercase; }
    .balance { font-size:2rem; font-weight:700; }
    .meta { color:var(--ink-soft); font-size:.8rem; }
    .stale { color:var(--down); }
    table { width:100%; border-collapse:collapse; font-size:.85rem; }
    td, th { text-align:left; padding:.25rem .5rem; border-bottom:1px solid rgba(0,0,0,.1); }
    .buy { color:var(--up); }
    .sell { color:var(--down); }
  </style>
</head>
<body>
  <div class="panel">
    <h1>Portfolio</h1>
    <div class="balance" id="balance">--</div>
    <div class="meta"><span id="key"></span> &middot; <span id="counts"></span> <span id="stale" class="stale"></span></div>
  </div>
  <div class="panel">
    <h1>Ledger</h1>
    <table>
      <thead><tr><th>#</th><th>time</th><th>kind</th><th>detail</th><th>balance</th></tr></thead>
      <tbody id="journal"></tbody>
    </table>
  </div>
<script>
(function() {
  const balance = document.getElementById('balance');
  const key = document.getElementById('key');
  const counts = document.getElementById('counts');
  const stale = document.getElementById('stale');
  const journal = document.getElementById('journal');

  const portfolio = new EventSource('/portfolio/stream');
  portfolio.addEventListener('portfolio', (e) => {
    const p = JSON.parse(e.data);
    balance.textContent = p.balance_text;
    key.textContent = p.key;
    counts.textContent = p.holdings + ' holdings, ' + p.trades + ' trades';
    stale.textContent = p.stale ? 'not saved' : '';
  });

  const ledger = new EventSource('/journal/stream');
  ledger.addEventListener('ledger', (e) => {
    const ev = JSON.parse(e.data);
    const row = document.createElement('tr');
    let detail = ev.amount || '';
    if (ev.trade) {
      detail = ev.trade.type + ' ' + ev.trade.amount + ' ' + ev.trade.coinSymbol + ' @ ' + ev.trade.currentPrice;
      row.className = ev.trade.type;
    }
    [e.lastEventId, new Date(ev.ts).toLocaleTimeString(), ev.kind, detail, ev.balance].forEach((v) => {
      const td = document.createElement('td');
      td.textContent = v;
      row.appendChild(td);
    });
    journal.insertBefore(row, journal.firstChild);
  });
})();
</script>
</body>
</html>
`
