// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"rtfft/internal/config"
	pasource "rtfft/internal/source/portaudio"
)

// ScreenType defines which screen is currently active.
type ScreenType int

const (
	ListScreen ScreenType = iota
	ConfigScreen
)

var hostDevices = pasource.HostDevices

type devicesMsg struct {
	devices []pasource.Device
}

type errMsg struct {
	err error
}

func fetchDevices() tea.Msg {
	devices, err := hostDevices()
	if err != nil {
		return errMsg{err}
	}
	inputs := devices[:0]
	for _, d := range devices {
		if d.MaxInputChannels > 0 {
			inputs = append(inputs, d)
		}
	}
	return devicesMsg{inputs}
}

// DeviceListModel lists the capture devices and shows the source
// configuration selecting the highlighted one.
type DeviceListModel struct {
	devices       []pasource.Device
	selectedIndex int
	viewport      viewport.Model
	ready         bool
	err           error
	activeScreen  ScreenType
	keys          deviceKeys
	help          help.Model
}

// NewDeviceListModel creates a new device list model.
func NewDeviceListModel() DeviceListModel {
	return DeviceListModel{
		activeScreen: ListScreen,
		keys:         deviceKeyMap,
		help:         help.New(),
	}
}

func (m DeviceListModel) Init() tea.Cmd {
	return fetchDevices
}

func (m DeviceListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.viewport.Style = lipgloss.NewStyle()
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.help.Width = msg.Width
		m.refresh()

	case devicesMsg:
		m.devices = msg.devices
		m.refresh()

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		switch m.activeScreen {
		case ListScreen:
			switch {
			case key.Matches(msg, m.keys.Up):
				if m.selectedIndex > 0 {
					m.selectedIndex--
				}
			case key.Matches(msg, m.keys.Down):
				if m.selectedIndex < len(m.devices)-1 {
					m.selectedIndex++
				}
			case key.Matches(msg, m.keys.Select):
				if len(m.devices) > 0 {
					m.activeScreen = ConfigScreen
				}
			}
		case ConfigScreen:
			if key.Matches(msg, m.keys.Back) {
				m.activeScreen = ListScreen
			}
		}
		m.refresh()
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *DeviceListModel) refresh() {
	if !m.ready {
		return
	}
	if m.activeScreen == ConfigScreen {
		m.viewport.SetContent(m.renderDeviceConfig())
		return
	}
	m.viewport.SetContent(m.renderDevices())
}

func (m DeviceListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}

	title := titleStyle.Render("Input Devices")
	if m.activeScreen == ConfigScreen {
		title = titleStyle.Render("Source Configuration")
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, m.viewport.View(), m.help.View(m.keys))
}

func (m DeviceListModel) renderDevices() string {
	if len(m.devices) == 0 {
		return "No input devices found."
	}

	var sb strings.Builder
	for i, d := range m.devices {
		info := fmt.Sprintf("[%d] %s\n", d.ID, d.Name)
		info += fmt.Sprintf("    Input channels: %d, Default sample rate: %.0f Hz\n", d.MaxInputChannels, d.DefaultSampleRate)
		info += fmt.Sprintf("    Latency: Low=%.2fms, High=%.2fms\n",
			d.LowInputLatency.Seconds()*1000, d.HighInputLatency.Seconds()*1000)
		if i == m.selectedIndex {
			info = highlightStyle.Render(info)
		}
		sb.WriteString(info)
		sb.WriteString("\n")
	}
	return sb.String()
}

// renderDeviceConfig shows the YAML source section capturing channel 0 of
// the selected device.
func (m DeviceListModel) renderDeviceConfig() string {
	d := m.devices[m.selectedIndex]
	section := struct {
		Source struct {
			Kind      string                 `yaml:"kind"`
			PortAudio config.PortAudioConfig `yaml:"portaudio"`
		} `yaml:"source"`
	}{}
	section.Source.Kind = config.SourcePortAudio
	section.Source.PortAudio = config.PortAudioConfig{
		Device:          d.ID,
		Channels:        1,
		SampleRate:      d.DefaultSampleRate,
		FramesPerBuffer: 512,
	}

	out, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Capture from %s with:\n\n%s", d.Name, out)
}

// RunDeviceList launches the device browser.
func RunDeviceList() error {
	_, err := tea.NewProgram(NewDeviceListModel(), tea.WithAltScreen()).Run()
	return err
}
