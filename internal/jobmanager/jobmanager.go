// Package jobmanager implements the Job Manager: per-job task counters and
// completion tallies exposed over net/rpc to the Job Client and Daemons.
// The Job Manager does not drive maps itself; the Job Client does, polling
// completedMaps as its barrier.
package jobmanager

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"distcompute/internal/errs"
	"distcompute/internal/logging"
	"distcompute/internal/nameservice"
)

// job is per-job state. Counters are atomic so submitMap/mapCompleted/
// completedMaps never need the job's own mutex; started and the immutable
// job description fields are guarded by mu since they're set once and read
// rarely.
type job struct {
	mu      sync.Mutex
	userFn  string
	format  string
	input   string // empty for generator jobs
	started bool

	expectedMaps  atomic.Int64
	completedMaps atomic.Int64
}

// Config configures a Service.
type Config struct {
	NS     *nameservice.Client
	Logger *slog.Logger
}

// Service is the Job Manager.
type Service struct {
	ns     *nameservice.Client
	logger *slog.Logger

	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*job
}

// New constructs a Service from cfg.
func New(cfg Config) *Service {
	return &Service{
		ns:     cfg.NS,
		logger: logging.Default(cfg.Logger).With("component", "jobmanager"),
		jobs:   make(map[int64]*job),
	}
}

// AddJob registers a new job and returns its monotonically increasing id.
// inputFileName is empty for a generator job.
func (s *Service) AddJob(userFn, inputFormat, inputFileName string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.jobs[id] = &job{userFn: userFn, format: inputFormat, input: inputFileName}
	s.logger.Info("job added", "jobId", id, "userFn", userFn, "input", inputFileName)
	return id, nil
}

func (s *Service) get(jobID int64) (*job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: job %d", errs.ErrUnknownJob, jobID)
	}
	return j, nil
}

// StartJob marks jobID as started.
func (s *Service) StartJob(jobID int64) error {
	j, err := s.get(jobID)
	if err != nil {
		return err
	}
	j.mu.Lock()
	j.started = true
	j.mu.Unlock()
	return nil
}

// SubmitMap registers that mapIndex has been dispatched for jobID.
func (s *Service) SubmitMap(jobID int64, mapIndex int) error {
	j, err := s.get(jobID)
	if err != nil {
		return err
	}
	j.expectedMaps.Add(1)
	return nil
}

// MapCompleted is called by a Daemon when mapIndex finishes for jobID.
func (s *Service) MapCompleted(jobID int64, mapIndex int) error {
	j, err := s.get(jobID)
	if err != nil {
		return err
	}
	j.completedMaps.Add(1)
	return nil
}

// CompletedMaps returns jobID's current completed-map count, the Job
// Client's barrier observation.
func (s *Service) CompletedMaps(jobID int64) (int, error) {
	j, err := s.get(jobID)
	if err != nil {
		return 0, err
	}
	return int(j.completedMaps.Load()), nil
}

// AvailableDaemons proxies to the Name Service.
func (s *Service) AvailableDaemons() ([]string, error) {
	return s.ns.GetAvailableDaemons()
}
