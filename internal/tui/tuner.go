// SPDX-License-Identifier: MIT
// Package tui is the terminal tuner view. The bubbletea program drives the
// detector: every tick message runs one Update on the program goroutine.
package tui

import (
	"time"

	"tuner/internal/audio"
	"tuner/internal/detector"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Tuner is the part of detector.Detector the view drives.
type Tuner interface {
	Update() (detector.Detection, bool)
	State() detector.State
	Devices() ([]audio.Device, error)
	SetInputDevice(deviceID int) error
}

var _ Tuner = (*detector.Detector)(nil)

// VolumeMeter reports the RMS of the latest analysed window.
type VolumeMeter interface {
	Volume() float64
}

// PublishFunc receives every tick's result, for transports.
type PublishFunc func(det detector.Detection, detected bool, state detector.State)

// ScreenType defines which screen is currently active
type ScreenType int

const (
	TunerScreen ScreenType = iota
	DeviceScreen
)

// Options configures a TunerModel.
type Options struct {
	Interval    time.Duration // tick rate, ~16ms when zero
	DeviceID    int           // device in use at start
	MatchRadius float64       // cents shown at either end of the needle
	Publish     PublishFunc
}

type tickMsg time.Time

type devicesMsg struct {
	devices []audio.Device
	err     error
}

// TunerModel is the bubbletea model of the tuner view.
type TunerModel struct {
	tuner   Tuner
	meter   VolumeMeter
	opts    Options
	help    help.Model
	picker  devicePicker
	screen  ScreenType
	width   int
	height  int
	current detector.Detection
	hasNote bool
	state   detector.State
	volume  float64
	err     error
}

// NewTunerModel creates the tuner view over t. meter may be nil.
func NewTunerModel(t Tuner, meter VolumeMeter, opts Options) TunerModel {
	if opts.Interval <= 0 {
		opts.Interval = time.Second / 60
	}
	if opts.MatchRadius <= 0 {
		opts.MatchRadius = 50
	}
	return TunerModel{
		tuner:  t,
		meter:  meter,
		opts:   opts,
		help:   help.New(),
		picker: newDevicePicker(60, 10),
		screen: TunerScreen,
		width:  60,
		state:  t.State(),
	}
}

// Init starts the tick loop.
func (m TunerModel) Init() tea.Cmd {
	return tick(m.opts.Interval)
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchDevices(t Tuner) tea.Cmd {
	return func() tea.Msg {
		devices, err := t.Devices()
		return devicesMsg{devices: devices, err: err}
	}
}

// Update handles input and ticks.
func (m TunerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		m.picker.resize(msg.Width, msg.Height-6)
		return m, nil

	case tickMsg:
		m.step()
		return m, tick(m.opts.Interval)

	case devicesMsg:
		m.picker.err = msg.err
		if msg.err == nil {
			m.picker.setDevices(msg.devices, m.opts.DeviceID)
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		if m.screen == TunerScreen {
			if key.Matches(msg, keys.Devices) {
				m.screen = DeviceScreen
				return m, fetchDevices(m.tuner)
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.Back):
			m.screen = TunerScreen
			return m, nil
		case key.Matches(msg, keys.Select):
			m.selectDevice()
			return m, nil
		}
	}

	if m.screen == DeviceScreen {
		var cmd tea.Cmd
		m.picker, cmd = m.picker.update(msg)
		return m, cmd
	}
	return m, nil
}

// step runs one detection tick.
func (m *TunerModel) step() {
	det, ok := m.tuner.Update()
	m.current, m.hasNote = det, ok
	m.state = m.tuner.State()
	if m.meter != nil {
		m.volume = m.meter.Volume()
	} else {
		m.volume = det.Volume
	}
	if m.opts.Publish != nil {
		m.opts.Publish(det, ok, m.state)
	}
}

// selectDevice switches input to the highlighted device. A failure is
// shown and the previous device stays in use.
func (m *TunerModel) selectDevice() {
	d, ok := m.picker.selected()
	if !ok {
		return
	}
	if err := m.tuner.SetInputDevice(d.ID); err != nil {
		m.err = err
		m.screen = TunerScreen
		return
	}
	m.err = nil
	m.opts.DeviceID = d.ID
	m.current, m.hasNote = detector.Detection{}, false
	m.screen = TunerScreen
}

// Current returns the detection shown, if any.
func (m TunerModel) Current() (detector.Detection, bool) {
	return m.current, m.hasNote
}

// Run launches the tuner view in the alternate screen and blocks until quit.
func Run(t Tuner, meter VolumeMeter, opts Options) error {
	p := tea.NewProgram(
		NewTunerModel(t, meter, opts),
		tea.WithAltScreen(),
	)
	_, err := p.Run()
	return err
}
