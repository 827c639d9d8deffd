// Package service contains the service layer for the Marketcore API
package service

import (
	"fmt"
	"net/http"
	"time"

	"github.com/marketbots/marketcore/internal/config"
	"github.com/marketbots/marketcore/internal/models"
	"github.com/marketbots/marketcore/pkg/utils/zaplogger"
	"github.com/robfig/cron/v3"
)

// CronService owns the scheduled and startup jobs: the daily contract
// master refresh and the archive truncate.
type CronService struct {
	cfg         *config.Config
	c           *cron.Cron
	instruments *InstrumentService
	archive     *ArchiveService
}

// NewCronService creates a new CronService
func NewCronService(cfg *config.Config, instruments *InstrumentService, archive *ArchiveService) *CronService {
	return &CronService{
		cfg:         cfg,
		c:           cron.New(),
		instruments: instruments,
		archive:     archive,
	}
}

// Start queues the jobs and starts the scheduler.
func (cs *CronService) Start() {
	zaplogger.Info("Initializing CronService")

	// ------------------------------------------------------------
	// SCHEDULED jobs
	// ------------------------------------------------------------
	cs.addScheduledJob("Contract Master REFRESH Job", cs.masterRefreshJob, "0 8 * * 1-5") // Once at 08:00am, Mon-Fri

	// ------------------------------------------------------------
	// STARTUP jobs
	// ------------------------------------------------------------
	cs.addStartupJob("Contract Master REFRESH Job", cs.masterRefreshJob, 1*time.Second)
	cs.addStartupJob("TickSnapshots TRUNCATE Job", cs.archiveTruncateJob, 10*time.Second)

	cs.c.Start()
}

// addStartupJob adds a startup job to the cron service
func (cs *CronService) addStartupJob(name string, job func(), delay time.Duration) {
	go func() {
		time.Sleep(delay)
		zaplogger.Info("STARTED STARTUP job", zaplogger.Fields{"job": name})
		job()
		zaplogger.Info("COMPLETED STARTUP job", zaplogger.Fields{"job": name})
	}()
	zaplogger.Info("QUEUED STARTUP job", zaplogger.Fields{"job": name})
}

func (cs *CronService) addScheduledJob(name string, job func(), schedule string) {
	_, err := cs.c.AddFunc(schedule, func() {
		zaplogger.Info("STARTED SCHEDULED JOB", zaplogger.Fields{"job": name})
		job()
		zaplogger.Info("COMPLETED SCHEDULED JOB", zaplogger.Fields{"job": name})
	})
	if err != nil {
		zaplogger.Error("FAILED TO QUEUE SCHEDULED JOB", zaplogger.Fields{
			"job":   name,
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info("QUEUED SCHEDULED job", zaplogger.Fields{"job": name})
}

// masterRefreshJob downloads the contract master dump and loads a new
// generation. A load failure leaves the previous generation live.
func (cs *CronService) masterRefreshJob() {
	jobName := "Contract Master REFRESH Job "

	if !cs.instruments.IsLoadRequired() {
		zaplogger.Info(jobName, zaplogger.Fields{"skipped": "master already current"})
		return
	}

	records, err := cs.fetchMaster()
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"step":  "FetchMaster",
			"error": err.Error(),
		})
		return
	}

	stats, err := cs.instruments.Load(records)
	if err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{
			"step":  "Load",
			"error": err.Error(),
		})
		return
	}
	zaplogger.Info(jobName, zaplogger.Fields{
		"total":   stats.Total,
		"options": stats.Options,
		"futures": stats.Futures,
	})
}

// fetchMaster downloads the CSV master from the configured URL.
func (cs *CronService) fetchMaster() ([]models.InstrumentRecord, error) {
	resp, err := http.Get(cs.cfg.MasterURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch contract master: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("contract master fetch returned %s", resp.Status)
	}
	return ParseMasterCSV(resp.Body)
}

// archiveTruncateJob clears yesterday's tick snapshots.
func (cs *CronService) archiveTruncateJob() {
	jobName := "TickSnapshots TRUNCATE Job "
	if cs.archive == nil {
		return
	}
	if err := cs.archive.TruncateTickSnapshots(); err != nil {
		zaplogger.Error(jobName, zaplogger.Fields{"error": err.Error()})
	}
}
