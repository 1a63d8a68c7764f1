package email

import (
	"html/template"
	"strings"
)

var noticeTemplate = template.Must(template.New("notice").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, Helvetica, Arial, sans-serif; color: #1f2328;">
<h2 style="margin: 0 0 12px 0;">{{.Title}}</h2>
{{range .Paragraphs}}<p style="margin: 0 0 12px 0; line-height: 1.5;">{{.}}</p>
{{end}}{{if .Footer}}<p style="margin-top: 24px; font-size: 12px; color: #656d76;">{{.Footer}}</p>
{{end}}</body>
</html>`))

// Notice is a simple transactional message: a heading and plain-text body.
type Notice struct {
	Title   string
	Message string
	Footer  string
}

// RenderNotice renders n to HTML. Blank lines in Message separate paragraphs.
// All text is escaped.
func RenderNotice(n Notice) (string, error) {
	var paragraphs []string
	for _, p := range strings.Split(n.Message, "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paragraphs = append(paragraphs, p)
		}
	}

	var sb strings.Builder
	err := noticeTemplate.Execute(&sb, struct {
		Notice
		Paragraphs []string
	}{n, paragraphs})
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}
