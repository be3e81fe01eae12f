package backup

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"license-controlplane/pkg/config"
	"license-controlplane/services/tenant"
)

// fireTolerance is how far past the scheduled minute a tick may land and
// still fire. The loop ticks every minute, so a busy tick never skips a day.
const fireToleranceMinutes = 2

type Scheduler struct {
	cfg     *config.Config
	tenants *tenant.Service
	store   *Store
	minio   *minio.Client
	loc     *time.Location
	now     func() time.Time
	done    chan struct{}
}

type SchedulerParams struct {
	fx.In

	Config  *config.Config
	Tenants *tenant.Service
	Minio   *minio.Client `optional:"true"`
}

func NewScheduler(p SchedulerParams) *Scheduler {
	loc := time.Local
	if p.Config.Backup.Timezone != "" {
		if l, err := time.LoadLocation(p.Config.Backup.Timezone); err == nil {
			loc = l
		} else {
			zap.L().Warn("invalid backup timezone, using local", zap.String("timezone", p.Config.Backup.Timezone), zap.Error(err))
		}
	}
	return &Scheduler{
		cfg:     p.Config,
		tenants: p.Tenants,
		store:   NewStore(p.Config.Backup.Dir),
		minio:   p.Minio,
		loc:     loc,
		now:     time.Now,
		done:    make(chan struct{}),
	}
}

func (s *Scheduler) Start() {
	go s.run()
}

func (s *Scheduler) Stop() {
	close(s.done)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.cfg.Backup.Interval)
	defer ticker.Stop()

	zap.L().Info("backup scheduler started",
		zap.String("dir", s.cfg.Backup.Dir),
		zap.Duration("interval", s.cfg.Backup.Interval))

	for {
		select {
		case <-s.done:
			zap.L().Info("backup scheduler stopped")
			return
		case <-ticker.C:
			s.tick(context.Background())
		}
	}
}

// tick walks every tenant eligible for backup. A failure for one tenant
// never blocks the rest.
func (s *Scheduler) tick(ctx context.Context) {
	tenants, err := s.tenants.ActiveTenants(ctx)
	if err != nil {
		zap.L().Error("backup scheduler failed to list tenants", zap.Error(err))
		return
	}

	now := s.now().In(s.loc)
	for _, t := range tenants {
		sched, err := s.store.LoadSchedule(t.TenantCode)
		if err != nil {
			zap.L().Error("failed to load backup schedule", zap.String("tenant_code", t.TenantCode), zap.Error(err))
			continue
		}
		if !shouldRun(sched, now) {
			continue
		}

		// mark before dumping so a slow dump is not re-fired by the
		// next tick
		sched.LastRun = now.Format("2006-01-02")
		if err := s.store.SaveSchedule(t.TenantCode, sched); err != nil {
			zap.L().Error("failed to record backup run", zap.String("tenant_code", t.TenantCode), zap.Error(err))
			continue
		}

		if err := s.backupTenant(ctx, t); err != nil {
			zap.L().Error("tenant backup failed", zap.String("tenant_code", t.TenantCode), zap.Error(err))
		}

		s.cleanupOld(t.TenantCode, sched.RetentionDays, now)
	}
}

// shouldRun decides whether a schedule fires at now. Pure, so the windowing
// rules are testable without a clock.
func shouldRun(s Schedule, now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastRun == now.Format("2006-01-02") {
		return false
	}

	parts := strings.SplitN(s.Time, ":", 2)
	if len(parts) != 2 {
		return false
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}

	if now.Hour() != hour {
		return false
	}
	delta := now.Minute() - minute
	if delta < 0 {
		delta = -delta
	}
	if delta > fireToleranceMinutes {
		return false
	}

	switch s.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return int(now.Weekday()) == s.DayOfWeek
	case FrequencyMonthly:
		return now.Day() == s.DayOfMonth
	default:
		return false
	}
}

func (s *Scheduler) backupTenant(ctx context.Context, t *tenant.Tenant) error {
	dir := s.store.TenantDir(t.TenantCode)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	ts := s.now().In(s.loc).Format("20060102_150405")
	outfile := filepath.Join(dir, fmt.Sprintf("%s_%s.sql", t.DatabaseName, ts))

	dctx, cancel := context.WithTimeout(ctx, s.cfg.Backup.DumpTimeout)
	defer cancel()

	tdb := s.cfg.TenantDatabase
	cmd := exec.CommandContext(dctx, "pg_dump",
		"-h", tdb.Host,
		"-p", strconv.Itoa(tdb.Port),
		"-U", t.DatabaseUser,
		"-d", t.DatabaseName,
		"-f", outfile,
		"--no-owner",
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+t.DatabasePassword)

	if out, err := cmd.CombinedOutput(); err != nil {
		// leave no partial artifact behind
		_ = os.Remove(outfile)
		return fmt.Errorf("pg_dump %s: %w: %s", t.DatabaseName, err, strings.TrimSpace(string(out)))
	}

	zap.L().Info("tenant backup completed",
		zap.String("tenant_code", t.TenantCode),
		zap.String("file", outfile))

	if s.minio != nil && s.cfg.Minio.BucketName != "" {
		object := filepath.Join("backups", "tenant_"+t.TenantCode, filepath.Base(outfile))
		if _, err := s.minio.FPutObject(ctx, s.cfg.Minio.BucketName, object, outfile, minio.PutObjectOptions{
			ContentType: "application/sql",
		}); err != nil {
			zap.L().Error("failed to upload backup artifact", zap.String("object", object), zap.Error(err))
		}
	}

	return nil
}

// cleanupOld removes dump files past the retention window. Only *.sql files
// are touched; schedule.json and anything else in the directory stays.
func (s *Scheduler) cleanupOld(code string, retentionDays int, now time.Time) {
	if retentionDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	entries, err := os.ReadDir(s.store.TenantDir(code))
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.store.TenantDir(code), e.Name())
			if err := os.Remove(path); err != nil {
				zap.L().Warn("failed to remove stale backup", zap.String("file", path), zap.Error(err))
			} else {
				zap.L().Info("removed stale backup", zap.String("file", path))
			}
		}
	}
}
