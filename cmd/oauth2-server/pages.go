package main

import "html/template"

const pageLayout = `{{define "head"}}<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.}}</title>
<style>
body { font-family: sans-serif; max-width: 28rem; margin: 4rem auto; padding: 0 1rem; }
label, input, button { display: block; width: 100%; margin-bottom: .75rem; }
.error { color: #b00020; }
.actions { display: flex; gap: .5rem; }
</style>
</head>
<body>
{{end}}`

var (
	homePage = template.Must(template.New("home").Parse(pageLayout + `{{template "head" "OAuth 2.0 Authorization Server"}}
<h1>OAuth 2.0 Authorization Server</h1>
<ul>
<li><a href="/.well-known/oauth-authorization-server">Authorization server metadata</a></li>
<li><a href="/jwks.json">JSON Web Key Set</a></li>
</ul>
</body>
</html>`))

	signInPage = template.Must(template.New("signin").Parse(pageLayout + `{{template "head" "Sign in"}}
<h1>Sign in</h1>
{{with .Error}}<p class="error">{{.}}</p>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<label for="username">Username</label>
<input id="username" name="username" autocomplete="username" required autofocus>
<label for="password">Password</label>
<input id="password" name="password" type="password" autocomplete="current-password" required>
<button type="submit">Sign in</button>
</form>
</body>
</html>`))

	consentPage = template.Must(template.New("authorize").Parse(pageLayout + `{{template "head" "Authorize access"}}
<h1>Authorize {{if .ClientName}}{{.ClientName}}{{else}}{{.ClientID}}{{end}}</h1>
{{if .Scopes}}
<p>The application requests access to:</p>
<ul>{{range .Scopes}}<li>{{.}}</li>{{end}}</ul>
{{else}}
<p>The application requests access to your account.</p>
{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
<div class="actions">
<button type="submit" name="authorize" value="1">Allow</button>
<button type="submit" name="authorize" value="0">Deny</button>
</div>
</form>
</body>
</html>`))
)
