package mailer

import (
	"bytes"
	"html/template"
	"time"
)

var (
	credentialsTmpl = template.Must(template.New("credentials").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<h2>Welcome aboard, {{.Name}}</h2>
<p>Your rider account has been created. Use the credentials below to sign in to the rider app.</p>
<table cellpadding="6" style="border-collapse:collapse">
<tr><td><strong>Rider code</strong></td><td>{{.RiderCode}}</td></tr>
<tr><td><strong>Temporary password</strong></td><td><code>{{.Password}}</code></td></tr>
</table>
<p>Please change your password after your first login.</p>
</body></html>`))

	otpTmpl = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>Your verification code is</p>
<p style="font-size:28px;letter-spacing:6px"><strong>{{.Code}}</strong></p>
<p>The code expires in {{.Minutes}} minutes. If you did not request it, ignore this email.</p>
</body></html>`))

	testTmpl = template.Must(template.New("test").Parse(`<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;color:#222">
<p>This is a test email sent with the <strong>{{.Config}}</strong> configuration at {{.At}}.</p>
</body></html>`))
)

// CredentialsEmail is sent to newly created riders.
func CredentialsEmail(name, riderCode, password string) (subject, html string, err error) {
	var buf bytes.Buffer
	err = credentialsTmpl.Execute(&buf, struct{ Name, RiderCode, Password string }{name, riderCode, password})
	return "Your rider account credentials", buf.String(), err
}

// OTPEmail carries a registration code.
func OTPEmail(code string, ttl time.Duration) (subject, html string, err error) {
	var buf bytes.Buffer
	err = otpTmpl.Execute(&buf, struct {
		Code    string
		Minutes int
	}{code, int(ttl.Minutes())})
	return "Your verification code", buf.String(), err
}

// TestEmail confirms an email configuration works.
func TestEmail(configName string, at time.Time) (subject, html string, err error) {
	var buf bytes.Buffer
	err = testTmpl.Execute(&buf, struct{ Config, At string }{configName, at.Format(time.RFC1123)})
	return "Email configuration test", buf.String(), err
}
