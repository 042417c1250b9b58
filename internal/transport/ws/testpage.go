package ws

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var testPage = template.Must(template.New("test").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>relaychat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        .connected { color: #155724; }
        .disconnected { color: #721c24; }
    </style>
</head>
<body>
    <h1>relaychat</h1>
    <div id="status" class="disconnected">Disconnected</div>
    <div>
        <input type="text" id="input" placeholder="Message, or nick NAME" disabled>
        <button id="send" disabled>Send</button>
        <button id="toggle">Connect</button>
    </div>
    <div id="messages"></div>
    <script>
        const path = {{.Path}};
        let ws = null;
        const messages = document.getElementById('messages');
        const input = document.getElementById('input');
        const send = document.getElementById('send');
        const toggle = document.getElementById('toggle');
        const status = document.getElementById('status');

        function line(text, color) {
            const el = document.createElement('div');
            el.style.color = color;
            el.textContent = text;
            messages.appendChild(el);
            messages.scrollTop = messages.scrollHeight;
        }

        function setConnected(on) {
            status.textContent = on ? 'Connected' : 'Disconnected';
            status.className = on ? 'connected' : 'disconnected';
            input.disabled = !on;
            send.disabled = !on;
            toggle.textContent = on ? 'Disconnect' : 'Connect';
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + path);
            ws.onopen = () => { line('Connected', 'gray'); setConnected(true); };
            ws.onmessage = (e) => line(e.data, 'green');
            ws.onclose = (e) => { line('Closed ' + e.code + ' ' + e.reason, 'gray'); setConnected(false); ws = null; };
            ws.onerror = () => line('Connection error', 'red');
        }

        function submit() {
            const text = input.value;
            if (text && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(text);
                line(text, 'blue');
                input.value = '';
            }
        }

        toggle.onclick = () => { if (ws) { ws.close(1000, 'User quits connection'); } else { connect(); } };
        send.onclick = submit;
        input.addEventListener('keypress', (e) => { if (e.key === 'Enter') { submit(); } });
    </script>
</body>
</html>`))

// testPageHandler serves a browser client for manual testing.
func (s *Server) testPageHandler(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(http.StatusOK)
	if err := testPage.Execute(c.Writer, struct{ Path string }{s.opts.Path}); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("render test page")
	}
}
