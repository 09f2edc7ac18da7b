package api

const dashboardTemplate = `<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Bot de WhatsApp</title>
<style>
*,*::before,*::after{box-sizing:border-box}
:root{--green:#2e9e44;--red:#d93b30;--border:#ccc;--text:#1f2328;--muted:#656d76;--bg:#fff}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;color:var(--text);background:var(--bg);margin:0}
.page{text-align:center;margin-top:2rem}
.qr img{width:300px;height:300px}
.status{margin-top:2rem;padding:1rem;border:1px solid var(--border);border-radius:10px;display:inline-block;font-size:1.2rem}
.dot{display:inline-block;width:12px;height:12px;border-radius:50%;margin-right:8px;vertical-align:middle}
.dot-green{background:var(--green)}.dot-red{background:var(--red)}
.actions{margin-top:1.5rem}
.toggle{color:#fff;padding:.6rem 1.2rem;font-size:1rem;border:none;border-radius:8px;cursor:pointer}
.toggle-green{background:var(--green)}.toggle-red{background:var(--red)}
.toggle:disabled{cursor:not-allowed;opacity:.7}

/* Notifications */
.toasts{position:fixed;top:16px;left:50%;transform:translateX(-50%);display:flex;flex-direction:column;gap:8px;z-index:100}
.toast{min-width:280px;max-width:420px;background:#fff;border:1px solid var(--border);border-left:6px solid var(--muted);border-radius:8px;padding:12px 16px;box-shadow:0 4px 16px rgba(0,0,0,.12);text-align:left}
.toast-success{border-left-color:var(--green)}.toast-error{border-left-color:var(--red)}.toast-info{border-left-color:#0969da}
.toast h3{margin:0 0 4px;font-size:1rem}
.toast p{margin:0;color:var(--muted)}
.toast button{margin-top:8px;border:1px solid var(--border);background:#fff;border-radius:4px;padding:2px 10px;cursor:pointer}
</style>
</head>
<body>
<div class="page">
  <h1>{{.View.Heading}}</h1>

  <div class="qr" id="qr"{{if not .View.ShowQR}} hidden{{end}}>
    <img id="qr-img" src="{{.QRSrc}}" alt="{{.View.QRAlt}}">
  </div>

  <div class="status">
    <span class="dot dot-{{.View.DotColor}}" id="dot"></span>
    <span id="message">{{.View.Message}}</span>
  </div>

  <div class="actions">
    <button id="toggle" class="toggle toggle-{{.View.ButtonColor}}"{{if .View.ButtonDisabled}} disabled{{end}}>{{.View.ButtonLabel}}</button>
  </div>
</div>
<div class="toasts" id="toasts"></div>

<script>
(function(){
  var interval = {{.IntervalMS}};
  var apiKey = {{.APIKey}};
  var lastSeq = {{.LastSeq}};

  function api(path, opts){
    opts = opts || {};
    opts.headers = opts.headers || {};
    if (apiKey) opts.headers['Authorization'] = 'Bearer ' + apiKey;
    return fetch(path, opts).then(function(r){
      return r.json().then(function(body){ return {ok: r.ok, status: r.status, body: body}; });
    });
  }

  function apply(v){
    var qr = document.getElementById('qr');
    var img = document.getElementById('qr-img');
    if (v.show_qr) {
      if (img.getAttribute('src') !== v.qr_src) img.setAttribute('src', v.qr_src);
      qr.hidden = false;
    } else {
      qr.hidden = true;
    }
    document.getElementById('dot').className = 'dot dot-' + v.dot_color;
    document.getElementById('message').textContent = v.message;
    var btn = document.getElementById('toggle');
    btn.className = 'toggle toggle-' + v.button_color;
    btn.textContent = v.button_label;
    btn.disabled = v.button_disabled;
  }

  function toast(n){
    var box = document.createElement('div');
    box.className = 'toast toast-' + n.level;
    var h = document.createElement('h3'); h.textContent = n.title; box.appendChild(h);
    var p = document.createElement('p'); p.textContent = n.text; box.appendChild(p);
    if (n.timer_ms) {
      setTimeout(function(){ box.remove(); }, n.timer_ms);
    } else {
      var ok = document.createElement('button'); ok.textContent = 'OK';
      ok.onclick = function(){ box.remove(); };
      box.appendChild(ok);
    }
    document.getElementById('toasts').appendChild(box);
  }

  function refresh(){
    api('/api/view').then(function(r){ if (r.ok) apply(r.body); }).catch(function(e){ console.error('view refresh failed', e); });
  }

  function pollNotifications(){
    api('/api/notifications?after=' + lastSeq).then(function(r){
      if (!r.ok) return;
      (r.body.notifications || []).forEach(toast);
      lastSeq = r.body.last_seq;
    }).catch(function(e){ console.error('notification poll failed', e); });
  }

  document.getElementById('toggle').addEventListener('click', function(){
    var btn = this;
    btn.disabled = true;
    api('/api/session/toggle', {method: 'POST'}).then(function(r){
      if (r.body && r.body.view) apply(r.body.view);
      pollNotifications();
    }).catch(function(e){
      console.error('session toggle failed', e);
    }).then(function(){ refresh(); });
  });

  setInterval(refresh, interval);
  setInterval(pollNotifications, 1000);
})();
</script>
</body>
</html>
`
