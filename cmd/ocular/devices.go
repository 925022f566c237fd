package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ocular/pkg/audio"
	"ocular/pkg/button"
	"ocular/pkg/camera"
	"ocular/pkg/config"
	"ocular/pkg/haptic"
	"ocular/pkg/sensor"
	"ocular/pkg/sensor/mocksensor"
	"ocular/pkg/sensor/nmea"
	"ocular/pkg/sensor/qmc5883l"
	"ocular/pkg/speech"
)

// gpsStaleAfter is how long a fix stays valid without a new sentence.
const gpsStaleAfter = 5 * time.Second

// devices holds the sensors and actuators of one device variant.
type devices struct {
	compass   sensor.Compass
	position  sensor.PositionSource
	control   button.Input
	emergency button.Input
	motor     haptic.Motor
	player    audio.Player
	speaker   *audio.Speaker // nil without a sound device
	capturer  camera.Capturer
	recorder  speech.Recorder // nil on the simulated device
	listener  *speech.Scripted

	// Simulated device only.
	walker           *mocksensor.Walker
	virtualControl   *button.Virtual
	virtualEmergency *button.Virtual

	closers []io.Closer
}

func (d *devices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i].Close(); err != nil {
			slog.Warn("Failed to close device", "error", err)
		}
	}
}

func openDevices(ctx context.Context, prov config.Provider) (*devices, error) {
	switch p := prov.DeviceProvider(ctx); p {
	case "mock":
		slog.Info("Device: Mock")
		return openMock(prov.AppConfig()), nil
	case "hardware":
		slog.Info("Device: Hardware")
		return openHardware(prov.AppConfig())
	default:
		return nil, fmt.Errorf("unknown device provider %q", p)
	}
}

func openHardware(cfg *config.Config) (*devices, error) {
	d := &devices{}
	fail := func(err error) (*devices, error) {
		d.Close()
		return nil, err
	}

	mag, err := qmc5883l.Open(cfg.Device.I2CBus, cfg.Device.CompassAddress)
	if err != nil {
		return fail(fmt.Errorf("compass: %w", err))
	}
	hw := sensor.NewHeadingWorker(mag)
	d.closers = append(d.closers, mag, hw)
	d.compass = hw

	gps, err := nmea.Open(cfg.Device.GPSPort, cfg.Device.GPSBaud, gpsStaleAfter)
	if err != nil {
		return fail(fmt.Errorf("gps: %w", err))
	}
	d.closers = append(d.closers, gps)
	d.position = gps

	if d.control, err = button.OpenGPIO(cfg.Device.ControlPin); err != nil {
		return fail(fmt.Errorf("control button: %w", err))
	}
	if d.emergency, err = button.OpenGPIO(cfg.Device.EmergencyPin); err != nil {
		return fail(fmt.Errorf("emergency button: %w", err))
	}

	motor, err := haptic.OpenMotor(cfg.Device.MotorPin, cfg.Device.MotorFrequency)
	if err != nil {
		return fail(fmt.Errorf("motor: %w", err))
	}
	d.motor = motor

	d.speaker = audio.NewSpeaker()
	d.player = d.speaker
	d.capturer = &camera.CommandCapturer{
		Command: cfg.Camera.Command,
		Output:  cfg.Camera.Output,
		Timeout: cfg.Camera.Timeout.Std(),
	}
	d.recorder = &speech.CommandRecorder{
		Command:    cfg.Speech.RecordCommand,
		SampleRate: cfg.Speech.SampleRate,
	}
	return d, nil
}

func openMock(cfg *config.Config) *devices {
	m := cfg.Device.Mock
	w := mocksensor.New(mocksensor.Config{
		StartLat:     m.StartLat,
		StartLon:     m.StartLon,
		StartHeading: m.StartHeading,
		TurnRate:     m.TurnRate,
		WalkSpeed:    m.WalkSpeed,
		FixDelay:     m.FixDelay.Std(),
	})
	hw := sensor.NewHeadingWorker(w)

	d := &devices{
		compass:          hw,
		position:         w,
		motor:            &haptic.LogMotor{},
		player:           audio.LogPlayer{},
		capturer:         &camera.FileCapturer{Path: cfg.Camera.Output},
		listener:         speech.NewScripted(cfg.Speech.RecordDuration.Std()),
		walker:           w,
		virtualControl:   button.NewVirtual(),
		virtualEmergency: button.NewVirtual(),
		closers:          []io.Closer{w, hw},
	}
	d.control = d.virtualControl
	d.emergency = d.virtualEmergency
	return d
}
