package portal

import "html/template"

var page = template.Must(template.New("portal").Parse(`<!DOCTYPE html>
<html>
<head>
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Surf Lamp Setup</title>
<style>
body { font-family: sans-serif; max-width: 28em; margin: 2em auto; padding: 0 1em; }
.notice { background: #fff3cd; border: 1px solid #ffe08a; padding: .75em; margin-bottom: 1em; white-space: pre-line; }
label, input, button { display: block; width: 100%; margin-bottom: .75em; }
img { display: block; margin: 1em auto; }
</style>
</head>
<body>
<h1>Surf Lamp Setup</h1>
{{if .Notice}}<div class="notice">{{.Notice}}</div>{{end}}
<form method="post" action="/save">
<input type="hidden" name="session" value="{{.Session}}">
<label>WiFi name<input name="ssid" maxlength="32" required autofocus></label>
<label>Password<input name="password" type="password" maxlength="63"></label>
<button type="submit">Connect</button>
</form>
<p>Join <b>{{.APSSID}}</b> from another phone:</p>
<img src="/qr.png" width="200" height="200" alt="setup network QR code">
</body>
</html>
`))

var submitted = template.Must(template.New("submitted").Parse(`<!DOCTYPE html>
<html>
<head><meta http-equiv="refresh" content="15; url=/"><title>Surf Lamp Setup</title></head>
<body><h1>Connecting to {{.}}&hellip;</h1><p>If the lamp cannot connect this page will show why.</p></body>
</html>
`))

type pageData struct {
	Notice  string
	Session string
	APSSID  string
}
