package core

import (
	"bytes"
	htmltmpl "html/template"
	"net/mail"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

var (
	templates   = make(map[string]emailTemplate)
	templatesMu sync.RWMutex
)

type (
	emailTemplate struct {
		text *texttmpl.Template
		html *htmltmpl.Template
	}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

// RegisterEmailTemplate parses and caches the text & html bodies of a named email template.
// An empty html body registers a text-only template.
func RegisterEmailTemplate(name, text, html string) error {
	tmpl := emailTemplate{}
	var err error
	if tmpl.text, err = texttmpl.New(name).Option("missingkey=error").Parse(text); err != nil {
		return errors.Wrapf(err, "parsing %s text template", name)
	}
	if html != "" {
		if tmpl.html, err = htmltmpl.New(name).Option("missingkey=error").Parse(html); err != nil {
			return errors.Wrapf(err, "parsing %s html template", name)
		}
	}
	templatesMu.Lock()
	templates[name] = tmpl
	templatesMu.Unlock()
	return nil
}

// MustRegisterEmailTemplate is like RegisterEmailTemplate but panics on error.
func MustRegisterEmailTemplate(name, text, html string) {
	if err := RegisterEmailTemplate(name, text, html); err != nil {
		panic(err)
	}
}

func (m *EmailMessage) Render() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" {
		return nil
	}

	templatesMu.RLock()
	tmpl, ok := templates[m.TemplateName]
	templatesMu.RUnlock()
	if !ok {
		return errors.Errorf("email template %q not registered", m.TemplateName)
	}

	var buff bytes.Buffer
	if err := tmpl.text.Execute(&buff, m.TemplateData); err != nil {
		return errors.Wrap(err, "rendering text content")
	}
	m.TextContent = buff.String()

	if tmpl.html != nil {
		buff.Reset()
		if err := tmpl.html.Execute(&buff, m.TemplateData); err != nil {
			return errors.Wrap(err, "rendering html content")
		}
		m.HTMLContent = buff.String()
	}
	return nil
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }
