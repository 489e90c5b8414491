package core

import (
	"bytes"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/shule/fs"
)

var (
	textTemplates *texttmpl.Template
	htmlTemplates *htmltmpl.Template
	tmplInit      sync.Once
	tmplInitErr   error
)

type (
	Attachment struct {
		Content     *bytes.Buffer
		ContentType string
		Filename    string
	}

	EmailMessage struct {
		To          []mail.Address
		Cc          []mail.Address
		Bcc         []mail.Address
		Subject     string
		BodyStr     string // simple text/plain, non-templated content
		Attachments []Attachment

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	// ContextData is the root object available to every email template.
	ContextData struct {
		AppName         string
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails.
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func loadTemplates() {
	tmplInit.Do(func() {
		var txtPaths, htmPaths []string
		err := fs.WalkDir(appfs.FS, "templates", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			switch path.Ext(p) {
			case ".txt":
				txtPaths = append(txtPaths, p)
			case ".html":
				htmPaths = append(htmPaths, p)
			}
			return nil
		})
		if err != nil {
			tmplInitErr = errors.Wrap(err, "walking email templates")
			return
		}
		if len(txtPaths) > 0 {
			if textTemplates, err = texttmpl.ParseFS(appfs.FS, txtPaths...); err != nil {
				tmplInitErr = errors.Wrap(err, "parsing text email templates")
				return
			}
		}
		if len(htmPaths) > 0 {
			if htmlTemplates, err = htmltmpl.ParseFS(appfs.FS, htmPaths...); err != nil {
				tmplInitErr = errors.Wrap(err, "parsing html email templates")
			}
		}
	})
}

func (m *EmailMessage) getContextData() ContextData {
	return ContextData{
		AppName:         Conf.AppName,
		FrontendBaseURL: Conf.FrontendBaseURL,
		Data:            m.TemplateData,
	}
}

func (m *EmailMessage) renderText() error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	}
	if m.TemplateName == "" || textTemplates == nil {
		return nil
	}
	tmpl := textTemplates.Lookup(m.TemplateName + ".txt")
	if tmpl == nil {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData()); err != nil {
		return errors.Wrapf(err, "executing template %s.txt", m.TemplateName)
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML() error {
	if m.TemplateName == "" || htmlTemplates == nil {
		return nil
	}
	tmpl := htmlTemplates.Lookup(m.TemplateName + ".html")
	if tmpl == nil {
		return nil
	}
	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, m.getContextData()); err != nil {
		return errors.Wrapf(err, "executing template %s.html", m.TemplateName)
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render renders the message's text and HTML contents from its template (or BodyStr).
func (m *EmailMessage) Render() error {
	loadTemplates()
	if tmplInitErr != nil {
		return tmplInitErr
	}
	if err := m.renderText(); err != nil {
		return err
	}
	return m.renderHTML()
}

func (m *EmailMessage) HasRecipients() bool {
	return len(m.To) > 0 || len(m.Cc) > 0 || len(m.Bcc) > 0
}

func (m *EmailMessage) HasContent() bool {
	return m.TextContent != "" || m.HTMLContent != ""
}

func (m *EmailMessage) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Recipients returns all recipient addresses, formatted.
func (m *EmailMessage) Recipients() string {
	all := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	for _, lst := range [][]mail.Address{m.To, m.Cc, m.Bcc} {
		for _, addr := range lst {
			all = append(all, addr.String())
		}
	}
	return strings.Join(all, ", ")
}
