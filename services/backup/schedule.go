package backup

import (
	"encoding/json"
	"os"
	"path/filepath"
)

type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Schedule is the per-tenant backup plan, persisted as schedule.json inside
// the tenant's backup directory. The scheduler loop is the only writer.
type Schedule struct {
	Enabled       bool      `json:"enabled"`
	Frequency     Frequency `json:"frequency"`
	Time          string    `json:"time"` // "HH:MM", scheduler timezone
	DayOfWeek     int       `json:"day_of_week"`
	DayOfMonth    int       `json:"day_of_month"`
	RetentionDays int       `json:"retention_days"`
	LastRun       string    `json:"last_run,omitempty"` // "2006-01-02"
}

func DefaultSchedule() Schedule {
	return Schedule{
		Enabled:       true,
		Frequency:     FrequencyDaily,
		Time:          "03:00",
		DayOfWeek:     0,
		DayOfMonth:    1,
		RetentionDays: 7,
	}
}

// Store keeps one schedule.json per tenant under root/tenant_<code>/.
type Store struct {
	root string
}

func NewStore(root string) *Store {
	return &Store{root: root}
}

func (s *Store) TenantDir(code string) string {
	return filepath.Join(s.root, "tenant_"+code)
}

func (s *Store) schedulePath(code string) string {
	return filepath.Join(s.TenantDir(code), "schedule.json")
}

// LoadSchedule returns the tenant's schedule, writing the default one on
// first access.
func (s *Store) LoadSchedule(code string) (Schedule, error) {
	raw, err := os.ReadFile(s.schedulePath(code))
	if os.IsNotExist(err) {
		sched := DefaultSchedule()
		if err := s.SaveSchedule(code, sched); err != nil {
			return sched, err
		}
		return sched, nil
	}
	if err != nil {
		return Schedule{}, err
	}

	sched := DefaultSchedule()
	if err := json.Unmarshal(raw, &sched); err != nil {
		return Schedule{}, err
	}
	return sched, nil
}

func (s *Store) SaveSchedule(code string, sched Schedule) error {
	if err := os.MkdirAll(s.TenantDir(code), 0o755); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(sched, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.schedulePath(code), raw, 0o644)
}
