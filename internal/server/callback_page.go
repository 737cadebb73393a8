package server

import (
	"bytes"
	"encoding/json"
	"html/template"

	"github.com/interledger/publisher-tools/internal/interaction"
)

// The interaction callback page runs in the popup the widget opened. Its
// sole job is handing the result to the opener window and closing; the
// websocket endpoint covers widgets that never get the message.
var callbackTmpl = template.Must(template.New("callback").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Payment authorization</title>
<style>
  body { font-family: system-ui, sans-serif; display: flex; align-items: center;
         justify-content: center; height: 100vh; margin: 0; color: #333; }
  p { text-align: center; }
</style>
</head>
<body>
<p>{{.Message}}<br>You can close this window.</p>
<script>
  (function () {
    var result = {{.ResultJSON}};
    if (window.opener) {
      window.opener.postMessage({ type: "wm_interaction_result", result: result }, "*");
    }
    setTimeout(function () { window.close(); }, 250);
  })();
</script>
</body>
</html>
`))

func callbackPage(res interaction.Result) []byte {
	msg := "Payment authorization complete."
	if res.Outcome == interaction.OutcomeRejected {
		msg = "Payment authorization declined."
	}

	raw, err := json.Marshal(res)
	if err != nil {
		raw = []byte(`{}`)
	}

	var buf bytes.Buffer
	err = callbackTmpl.Execute(&buf, struct {
		Message    string
		ResultJSON template.JS
	}{
		Message:    msg,
		ResultJSON: template.JS(raw),
	})
	if err != nil {
		return []byte("<!DOCTYPE html><html><body><p>You can close this window.</p></body></html>")
	}
	return buf.Bytes()
}
