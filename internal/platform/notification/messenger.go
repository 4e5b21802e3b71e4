package notification

// Messenger renders a template and wraps it in a WhatsApp deep link.
type Messenger struct {
	templates *TemplateEngine
	links     LinkBuilder
}

func NewMessenger(templates *TemplateEngine, links LinkBuilder) *Messenger {
	return &Messenger{templates: templates, links: links}
}

// Link renders templateID with data and returns the deep link for phone.
func (m *Messenger) Link(templateID, phone string, data map[string]string) (string, error) {
	body, err := m.templates.Render(templateID, data)
	if err != nil {
		return "", err
	}
	return m.links.WhatsApp(phone, body)
}
