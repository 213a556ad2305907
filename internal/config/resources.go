package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"planboard/internal/daterange"
	"planboard/internal/model"
	"planboard/internal/timerange"
)

// ResourceConfig represents a single bookable resource.
type ResourceConfig struct {
	ID       int64           `yaml:"id"`
	Name     string          `yaml:"name"`
	TimeZone string          `yaml:"time_zone"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
}

// ScheduleConfig is a weekly working pattern.
type ScheduleConfig struct {
	StartTime  string `yaml:"start_time"`            // "09:00"
	EndTime    string `yaml:"end_time"`              // "18:00"
	LunchStart string `yaml:"lunch_start,omitempty"` // "13:00"
	LunchEnd   string `yaml:"lunch_end,omitempty"`   // "14:00"
	ValidFrom  string `yaml:"valid_from"`            // "2024-01-01"
}

// HolidayConfig is a day off for every resource.
type HolidayConfig struct {
	Date string `yaml:"date"` // "2026-01-01"
	Name string `yaml:"name"`
}

// DefaultsConfig represents global default settings.
type DefaultsConfig struct {
	Schedule *ScheduleConfig `yaml:"schedule"`
	DaysOff  []int           `yaml:"days_off"` // 1=Mon, 7=Sun
}

// ResourcesConfig is the root configuration for resources.yaml.
type ResourcesConfig struct {
	Resources []ResourceConfig `yaml:"resources"`
	Defaults  DefaultsConfig   `yaml:"defaults"`
	Holidays  []HolidayConfig  `yaml:"holidays"`
}

// LoadResourcesConfig loads and validates resources configuration from YAML file.
func LoadResourcesConfig(path string) (*ResourcesConfig, error) {
	if path == "" {
		path = "configs/resources.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resources config: %w", err)
	}
	return ParseResourcesConfig(data)
}

// ParseResourcesConfig decodes and validates the contents of resources.yaml.
func ParseResourcesConfig(data []byte) (*ResourcesConfig, error) {
	var cfg ResourcesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse resources config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate resources config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ResourcesConfig) Validate() error {
	if len(c.Resources) == 0 {
		return fmt.Errorf("no resources defined")
	}

	ids := make(map[int64]bool)
	for i, r := range c.Resources {
		if r.ID <= 0 {
			return fmt.Errorf("resource[%d]: id must be positive, got %d", i, r.ID)
		}
		if ids[r.ID] {
			return fmt.Errorf("resource[%d]: duplicate id %d", i, r.ID)
		}
		ids[r.ID] = true

		if r.Name == "" {
			return fmt.Errorf("resource[%d]: name is required", i)
		}
		if r.TimeZone != "" {
			if _, err := time.LoadLocation(r.TimeZone); err != nil {
				return fmt.Errorf("resource[%d]: unknown time zone '%s'", i, r.TimeZone)
			}
		}
		if r.Schedule != nil {
			if err := validateSchedule(r.Schedule, fmt.Sprintf("resource[%d].schedule", i)); err != nil {
				return err
			}
		}
	}

	if c.Defaults.Schedule != nil {
		if err := validateSchedule(c.Defaults.Schedule, "defaults.schedule"); err != nil {
			return err
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := daterange.ParseDate(h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
	}

	for i, d := range c.Defaults.DaysOff {
		if d < 1 || d > 7 {
			return fmt.Errorf("defaults.days_off[%d]: invalid day %d, must be 1-7 (1=Mon, 7=Sun)", i, d)
		}
	}
	return nil
}

func validateSchedule(s *ScheduleConfig, prefix string) error {
	if s.StartTime == "" {
		return fmt.Errorf("%s.start_time is required", prefix)
	}
	if s.EndTime == "" {
		return fmt.Errorf("%s.end_time is required", prefix)
	}

	work, err := timerange.Parse(s.StartTime + "-" + s.EndTime)
	if err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	if work.IsEmpty() {
		return fmt.Errorf("%s: end_time must be after start_time", prefix)
	}

	if s.ValidFrom != "" {
		if _, err := daterange.ParseDate(s.ValidFrom); err != nil {
			return fmt.Errorf("%s.valid_from: invalid format '%s', expected YYYY-MM-DD", prefix, s.ValidFrom)
		}
	}

	if s.LunchStart != "" && s.LunchEnd != "" {
		lunch, err := timerange.Parse(s.LunchStart + "-" + s.LunchEnd)
		if err != nil {
			return fmt.Errorf("%s: lunch: %w", prefix, err)
		}
		if lunch.IsEmpty() {
			return fmt.Errorf("%s: lunch_end must be after lunch_start", prefix)
		}
		if !work.Contains(lunch) {
			return fmt.Errorf("%s: lunch break must be within working hours", prefix)
		}
	}
	return nil
}

// applyDefaults gives resources without a schedule the default one.
func (c *ResourcesConfig) applyDefaults() {
	for i := range c.Resources {
		if c.Resources[i].Schedule == nil && c.Defaults.Schedule != nil {
			c.Resources[i].Schedule = c.Defaults.Schedule
		}
	}
}

// ResourceByID returns resource config by ID.
func (c *ResourcesConfig) ResourceByID(id int64) *ResourceConfig {
	for i := range c.Resources {
		if c.Resources[i].ID == id {
			return &c.Resources[i]
		}
	}
	return nil
}

// IsDayOff checks if a weekday is a day off.
func (c *ResourcesConfig) IsDayOff(weekday time.Weekday) bool {
	// Convert Go's weekday (0=Sun) to our format (1=Mon, 7=Sun)
	day := int(weekday)
	if day == 0 {
		day = 7
	}
	for _, d := range c.Defaults.DaysOff {
		if d == day {
			return true
		}
	}
	return false
}

// Periods expands the resource's schedule into weekly periods, one per
// working weekday, split around lunch.
func (c *ResourcesConfig) Periods(id int64) ([]model.AvailablePeriod, error) {
	r := c.ResourceByID(id)
	if r == nil {
		return nil, fmt.Errorf("resource %d not configured", id)
	}
	if r.Schedule == nil {
		return nil, nil
	}

	work, err := timerange.Parse(r.Schedule.StartTime + "-" + r.Schedule.EndTime)
	if err != nil {
		return nil, err
	}
	ranges := []timerange.TimeRange{work}
	if r.Schedule.LunchStart != "" && r.Schedule.LunchEnd != "" {
		lunch, err := timerange.Parse(r.Schedule.LunchStart + "-" + r.Schedule.LunchEnd)
		if err != nil {
			return nil, err
		}
		ranges = work.SubtractOne(lunch)
	}

	validFrom := daterange.Date(1970, 1, 1)
	if r.Schedule.ValidFrom != "" {
		if validFrom, err = daterange.ParseDate(r.Schedule.ValidFrom); err != nil {
			return nil, err
		}
	}

	var periods []model.AvailablePeriod
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		if c.IsDayOff(wd) {
			continue
		}
		for _, tr := range ranges {
			periods = append(periods, model.AvailablePeriod{
				ResourceID: id,
				WeekDay:    wd,
				StartTime:  tr.Start,
				EndTime:    tr.End,
				ValidFrom:  validFrom,
			})
		}
	}
	return periods, nil
}

// HolidayDates lists the configured holidays.
func (c *ResourcesConfig) HolidayDates() []time.Time {
	var dates []time.Time
	for _, h := range c.Holidays {
		if d, err := daterange.ParseDate(h.Date); err == nil {
			dates = append(dates, d)
		}
	}
	return dates
}

// String returns a summary of the configuration.
func (c *ResourcesConfig) String() string {
	return fmt.Sprintf("ResourcesConfig: %d resources, %d holidays", len(c.Resources), len(c.Holidays))
}
