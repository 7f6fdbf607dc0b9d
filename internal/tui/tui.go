package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/opentdf/drmpolicy/internal/config"
)

const (
	StoreEndpoint = iota
	StoreIssuer
	ClientID
	ClientSecret
	KeyDeliveryBase
	StreamingOrigin
)

var fields = []struct {
	label string
	width int
}{
	StoreEndpoint:   {"Store Endpoint", 100},
	StoreIssuer:     {"OIDC Issuer", 100},
	ClientID:        {"Client ID", 20},
	ClientSecret:    {"Client Secret", 40},
	KeyDeliveryBase: {"Key Delivery URL", 100},
	StreamingOrigin: {"Streaming Origin", 100},
}

type (
	errMsg error
)

const (
	hotPink  = lipgloss.Color("#FF06B7")
	darkGray = lipgloss.Color("#767676")
)

var (
	inputStyle    = lipgloss.NewStyle().Foreground(hotPink)
	continueStyle = lipgloss.NewStyle().Foreground(darkGray)
)

type Model struct {
	Inputs  []textinput.Model
	focused int
	err     error
	Quit    bool
}

// InitialModel prefills the form from c.
func InitialModel(c config.Config) Model {
	values := []string{
		StoreEndpoint:   c.Store.Endpoint,
		StoreIssuer:     c.Store.Issuer,
		ClientID:        c.Store.ClientID,
		ClientSecret:    c.Store.ClientSecret,
		KeyDeliveryBase: c.KeyDelivery.BaseURL,
		StreamingOrigin: c.Streaming.Origin,
	}
	inputs := make([]textinput.Model, len(fields))
	for i, f := range fields {
		inputs[i] = textinput.New()
		inputs[i].Placeholder = f.label
		inputs[i].CharLimit = 256
		inputs[i].Width = f.width
		inputs[i].SetValue(values[i])
	}
	inputs[ClientSecret].EchoMode = textinput.EchoPassword
	inputs[StoreEndpoint].Focus()

	return Model{
		Inputs: inputs,
	}
}

// Apply copies the form into c. The store driver switches to http once an
// endpoint is given.
func (m Model) Apply(c *config.Config) {
	value := func(i int) string { return strings.TrimSpace(m.Inputs[i].Value()) }
	c.Store.Endpoint = value(StoreEndpoint)
	c.Store.Issuer = value(StoreIssuer)
	c.Store.ClientID = value(ClientID)
	if s := value(ClientSecret); s != "" {
		c.Store.ClientSecret = s
	}
	c.KeyDelivery.BaseURL = value(KeyDeliveryBase)
	c.Streaming.Origin = value(StreamingOrigin)
	if c.Store.Endpoint != "" {
		c.Store.Driver = "http"
	}
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	cmds := make([]tea.Cmd, len(m.Inputs))
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			if m.focused == len(m.Inputs)-1 {
				return m, tea.Quit
			}
			m.nextInput()
		case tea.KeyCtrlC, tea.KeyEsc:
			m.Quit = true
			return m, tea.Quit
		case tea.KeyShiftTab, tea.KeyCtrlP:
			m.prevInput()
		case tea.KeyTab, tea.KeyCtrlN:
			m.nextInput()
		}
		for i := range m.Inputs {
			m.Inputs[i].Blur()
		}
		m.Inputs[m.focused].Focus()

	case errMsg:
		m.err = msg
		return m, nil
	}

	for i := range m.Inputs {
		m.Inputs[i], cmds[i] = m.Inputs[i].Update(msg)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n")
	for i, f := range fields {
		fmt.Fprintf(&b, " %s  %s\n", inputStyle.Width(24).Render(f.label), m.Inputs[i].View())
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n %v\n", m.err)
	}
	fmt.Fprintf(&b, "\n %s\n", continueStyle.Render("Submit ->"))
	return b.String() + "\n"
}

// nextInput focuses the next input field
func (m *Model) nextInput() {
	m.focused = (m.focused + 1) % len(m.Inputs)
}

// prevInput focuses the previous input field
func (m *Model) prevInput() {
	m.focused--
	// Wrap around
	if m.focused < 0 {
		m.focused = len(m.Inputs) - 1
	}
}
