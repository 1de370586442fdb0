package weather

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eivy/smartthings-weather/classify"
	"github.com/eivy/smartthings-weather/forecast"
	"github.com/eivy/smartthings-weather/mqtt"
	"github.com/eivy/smartthings-weather/oauth"
	"github.com/eivy/smartthings-weather/smartthings"
)

// ErrDeviceNotFound is returned when no weather device is visible.
var ErrDeviceNotFound = errors.New("no weather device found")

const commandTimeout = time.Minute

// DeviceAPI is the part of the SmartThings client the dashboard uses.
type DeviceAPI interface {
	ListDevices(ctx context.Context) ([]smartthings.Device, error)
	DeviceStatus(ctx context.Context, deviceID string) (smartthings.Status, error)
}

// ForecastSource fetches forecasts index aligned with the locations.
type ForecastSource interface {
	FetchAll(ctx context.Context, locs []forecast.Location) []*forecast.Forecast
}

// Publisher receives every new status.
type Publisher interface {
	PublishStatusAsync(status mqtt.Status)
}

// Recorder is told about readings and polls.
type Recorder interface {
	UpdateReading(id, name string, r smartthings.Reading)
	ForgetSensors()
	SetAuthorized(ok bool)
	PollSkipped()
}

// Logouter forgets the stored credential.
type Logouter interface {
	Logout(ctx context.Context) error
}

// Snapshot is the classified view of one reading.
type Snapshot struct {
	Device      smartthings.Device   `json:"device"`
	Reading     smartthings.Reading  `json:"reading"`
	Clothing    *classify.Band       `json:"clothing,omitempty"`
	AQI         classify.AQICategory `json:"aqi"`
	PM1         *classify.Grade      `json:"pm1,omitempty"`
	PM25        *classify.Grade      `json:"pm25,omitempty"`
	PM10        *classify.Grade      `json:"pm10,omitempty"`
	Humidity    *classify.Grade      `json:"humidity,omitempty"`
	Pressure    *classify.Grade      `json:"pressure,omitempty"`
	Season      classify.Season      `json:"season"`
	Forecasts   []*forecast.Forecast `json:"forecasts,omitempty"`
	RefreshedAt time.Time            `json:"refreshedAt"`
}

// Classify builds a snapshot from a reading. Measurements that are absent
// from the reading get no grade.
func Classify(device smartthings.Device, r smartthings.Reading, now time.Time) *Snapshot {
	s := &Snapshot{
		Device:      device,
		Reading:     r,
		AQI:         classify.AQICategoryFor(r.AQI),
		Season:      classify.SeasonFor(now.Month()),
		RefreshedAt: now,
	}
	if r.Temperature != nil {
		band := classify.ClothingFor(*r.Temperature)
		s.Clothing = &band
	}
	s.PM1 = grade(r.PM1, classify.ParticulateGrade)
	s.PM25 = grade(r.PM25, classify.ParticulateGrade)
	s.PM10 = grade(r.PM10, classify.ParticulateGrade)
	s.Humidity = grade(r.Humidity, classify.HumidityGrade)
	s.Pressure = grade(r.Pressure, classify.PressureGrade)
	return s
}

func grade(v *float64, f func(float64) classify.Grade) *classify.Grade {
	if v == nil {
		return nil
	}
	g := f(*v)
	return &g
}

// Status converts the snapshot to its MQTT form.
func (s *Snapshot) Status() mqtt.Status {
	st := mqtt.Status{
		DeviceID:    s.Device.ID,
		DeviceName:  s.Device.DisplayName,
		Temperature: s.Reading.Temperature,
		Humidity:    s.Reading.Humidity,
		PM1:         s.Reading.PM1,
		PM25:        s.Reading.PM25,
		PM10:        s.Reading.PM10,
		Pressure:    s.Reading.Pressure,
		AQI:         s.AQI.Label,
		Timestamp:   s.RefreshedAt,
	}
	if s.Clothing != nil {
		st.Clothing = s.Clothing.Name.String()
	}
	return st
}

// Dashboard polls one weather device and keeps the latest snapshot.
type Dashboard struct {
	api       DeviceAPI
	forecasts ForecastSource
	locations []forecast.Location
	publisher Publisher
	recorder  Recorder
	logouter  Logouter
	log       logrus.FieldLogger
	now       func() time.Time

	mu        sync.RWMutex
	preferred string
	device    *smartthings.Device
	snapshot  *Snapshot

	inFlight atomic.Bool
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithDeviceID prefers the device with this ID during discovery.
func WithDeviceID(id string) Option {
	return func(d *Dashboard) { d.preferred = id }
}

// WithForecast attaches forecasts for locs to every snapshot.
func WithForecast(src ForecastSource, locs []forecast.Location) Option {
	return func(d *Dashboard) {
		d.forecasts = src
		d.locations = locs
	}
}

// WithPublisher publishes every snapshot.
func WithPublisher(p Publisher) Option {
	return func(d *Dashboard) { d.publisher = p }
}

// WithRecorder records readings and polls.
func WithRecorder(r Recorder) Option {
	return func(d *Dashboard) { d.recorder = r }
}

// WithLogouter is used by the logout command.
func WithLogouter(l Logouter) Option {
	return func(d *Dashboard) { d.logouter = l }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dashboard) { d.log = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(d *Dashboard) { d.now = now }
}

// NewDashboard returns a dashboard reading from api.
func NewDashboard(api DeviceAPI, opts ...Option) *Dashboard {
	d := &Dashboard{
		api: api,
		log: logrus.StandardLogger(),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.log = d.log.WithField("component", "dashboard")
	return d
}

// Discover lists the account's devices and selects the preferred weather
// device, or the first one when the preferred device is not present.
func (d *Dashboard) Discover(ctx context.Context) (smartthings.Device, error) {
	devices, err := d.api.ListDevices(ctx)
	if err != nil {
		d.noteAuth(err)
		return smartthings.Device{}, fmt.Errorf("discover devices: %w", err)
	}
	weather := smartthings.WeatherDevices(devices)
	d.log.WithFields(logrus.Fields{"devices": len(devices), "weather": len(weather)}).Info("devices discovered")
	if len(weather) == 0 {
		return smartthings.Device{}, ErrDeviceNotFound
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	selected := weather[0]
	if d.preferred != "" {
		found := false
		for _, dev := range weather {
			if dev.ID == d.preferred {
				selected, found = dev, true
				break
			}
		}
		if !found {
			d.log.WithField("device_id", d.preferred).Warn("configured device not found, using first weather device")
		}
	}
	d.device = &selected
	d.log.WithFields(logrus.Fields{"device_id": selected.ID, "name": selected.DisplayName}).Info("device selected")
	return selected, nil
}

// Device returns the selected device.
func (d *Dashboard) Device() (smartthings.Device, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.device == nil {
		return smartthings.Device{}, false
	}
	return *d.device, true
}

// Refresh fetches the selected device's status, discovering a device first
// when none is selected, and stores the classified snapshot.
func (d *Dashboard) Refresh(ctx context.Context) (*Snapshot, error) {
	device, ok := d.Device()
	if !ok {
		var err error
		if device, err = d.Discover(ctx); err != nil {
			return nil, err
		}
	}

	status, err := d.api.DeviceStatus(ctx, device.ID)
	if err != nil {
		d.noteAuth(err)
		return nil, fmt.Errorf("device %s status: %w", device.ID, err)
	}
	snap := Classify(device, status.Reading(), d.now())
	if d.forecasts != nil && len(d.locations) > 0 {
		snap.Forecasts = d.forecasts.FetchAll(ctx, d.locations)
	}

	d.mu.Lock()
	d.snapshot = snap
	d.mu.Unlock()

	if d.recorder != nil {
		d.recorder.SetAuthorized(true)
		d.recorder.UpdateReading(device.ID, device.DisplayName, snap.Reading)
	}
	if d.publisher != nil {
		d.publisher.PublishStatusAsync(snap.Status())
	}
	fields := logrus.Fields{"device_id": device.ID, "aqi": snap.AQI.Label}
	if snap.Clothing != nil {
		fields["clothing"] = snap.Clothing.Name.String()
	}
	d.log.WithFields(fields).Debug("dashboard refreshed")
	return snap, nil
}

func (d *Dashboard) noteAuth(err error) {
	if d.recorder != nil && errors.Is(err, oauth.ErrNotAuthorized) {
		d.recorder.SetAuthorized(false)
	}
}

// Snapshot returns the last snapshot, nil before the first refresh.
func (d *Dashboard) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Run refreshes immediately and then every interval until ctx is done. A
// tick that arrives while a refresh is still running is skipped.
func (d *Dashboard) Run(ctx context.Context, interval time.Duration) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.tick(ctx, &wg)
	for {
		select {
		case <-ticker.C:
			d.tick(ctx, &wg)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dashboard) tick(ctx context.Context, wg *sync.WaitGroup) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.log.Debug("previous refresh still running, skipping tick")
		if d.recorder != nil {
			d.recorder.PollSkipped()
		}
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer d.inFlight.Store(false)
		d.poll(ctx)
	}()
}

func (d *Dashboard) poll(ctx context.Context) {
	_, err := d.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, oauth.ErrNotAuthorized):
		d.log.WithError(err).Warn("not authorized, open /authorize to sign in")
	case errors.Is(err, ErrDeviceNotFound):
		d.log.Warn("no weather device found, check the SmartThings setup")
	case ctx.Err() != nil:
	default:
		d.log.WithError(err).Error("refresh failed")
	}
}

// Logout forgets the credential, the selected device and the snapshot.
func (d *Dashboard) Logout(ctx context.Context) error {
	if d.logouter == nil {
		return errors.New("logout is not available without OAuth")
	}
	if err := d.logouter.Logout(ctx); err != nil {
		return err
	}
	d.mu.Lock()
	d.device = nil
	d.snapshot = nil
	d.mu.Unlock()
	if d.recorder != nil {
		d.recorder.SetAuthorized(false)
		d.recorder.ForgetSensors()
	}
	return nil
}

// HandleCommand implements mqtt.CommandHandler. A discover command
// addressed to a specific device ID makes that device the preferred one.
func (d *Dashboard) HandleCommand(cmd mqtt.Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Action {
	case mqtt.ActionRefresh:
		_, err := d.Refresh(ctx)
		return err
	case mqtt.ActionDiscover:
		d.mu.Lock()
		if cmd.DeviceID != "" && cmd.DeviceID != "all" {
			d.preferred = cmd.DeviceID
		}
		d.device = nil
		d.mu.Unlock()
		_, err := d.Refresh(ctx)
		return err
	case mqtt.ActionLogout:
		return d.Logout(ctx)
	}
	return fmt.Errorf("unknown action %q", cmd.Action)
}
