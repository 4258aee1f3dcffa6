package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lohmuller/even-g1-go-sdk/internal/config"
	"github.com/lohmuller/even-g1-go-sdk/internal/transport/usbbridge"
	"github.com/lohmuller/even-g1-go-sdk/pkg/protocol"
)

var usbFlag = flag.Bool("usb", false, "attach the bench USB bridge instead of running in demo mode")

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

type eventMsg struct {
	event string
	value any
	side  protocol.Side
	at    time.Time
}

// model is the glasses event monitor: a scrolling log of dispatched
// events and pending-command counts, in the same Model/Init/Update/View
// shape as the teacher's chat TUI.
type model struct {
	engine    *protocol.Engine
	events    chan eventMsg
	log       viewport.Model
	lines     []string
	lastEvent string
	width     int
	height    int
	copyMsg   string
}

func newModel(engine *protocol.Engine) *model {
	m := &model{
		engine: engine,
		events: make(chan eventMsg, 64),
		log:    viewport.New(80, 20),
	}
	protocol.RegisterStandardListeners(engine.Listeners(), func(event string, value any, side protocol.Side) {
		select {
		case m.events <- eventMsg{event, value, side, time.Now()}:
		default:
		}
	})
	return m
}

func waitForEvent(events chan eventMsg) tea.Cmd {
	return func() tea.Msg { return <-events }
}

func (m *model) Init() tea.Cmd {
	return waitForEvent(m.events)
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.lastEvent != "" {
				if err := clipboard.WriteAll(m.lastEvent); err != nil {
					m.copyMsg = errStyle.Render("copy failed: " + err.Error())
				} else {
					m.copyMsg = okStyle.Render("copied: " + m.lastEvent)
				}
			}
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.log.Width = msg.Width
		m.log.Height = msg.Height - 6
	case eventMsg:
		line := fmt.Sprintf("[%s] %-14s side=%-5s value=%v", msg.at.Format("15:04:05"), msg.event, msg.side, msg.value)
		m.lines = append(m.lines, line)
		m.lastEvent = line
		m.log.SetContent(strings.Join(m.lines, "\n"))
		m.log.GotoBottom()
		return m, waitForEvent(m.events)
	}
	return m, nil
}

func (m *model) View() string {
	header := headerStyle.Render("glasses event monitor") + "  " +
		dimStyle.Render(fmt.Sprintf("left=%s right=%s pending(L=%d R=%d)",
			m.engine.SideState(protocol.Left), m.engine.SideState(protocol.Right),
			m.engine.PendingCount(protocol.Left), m.engine.PendingCount(protocol.Right)))
	footer := dimStyle.Render("q quit · c copy last event")
	if m.copyMsg != "" {
		footer = m.copyMsg + "  " + footer
	}
	return header + "\n\n" + m.log.View() + "\n\n" + footer
}

func main() {
	flag.Parse()

	cfg, err := config.LoadEngineConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	engine := protocol.NewEngine(cfg.EngineOptions())

	if *usbFlag {
		left := usbbridge.New(cfg.USBVendorID, cfg.USBProductID)
		right := usbbridge.New(cfg.USBVendorID, cfg.USBProductID)
		engine.AttachTransport(protocol.Left, left)
		engine.AttachTransport(protocol.Right, right)
		connected := true
		for _, side := range []protocol.Side{protocol.Left, protocol.Right} {
			if err := engine.Connect(side); err != nil {
				fmt.Fprintf(os.Stderr, "connect %s: %v\n", side, err)
				connected = false
			}
		}
		if connected {
			if err := engine.Initialize(protocol.Both, 5*time.Second); err != nil {
				fmt.Fprintf(os.Stderr, "initialize: %v\n", err)
			}
		}
	}

	p := tea.NewProgram(newModel(engine), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "glassesctl:", err)
		os.Exit(1)
	}
}
