// Package worker drives the job state machine: the sequential segment
// loop, pause/resume at segment boundaries, out-of-band segment
// retries and final assembly.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/iris/internal/models"
	"github.com/bobarin/iris/internal/store"
)

var (
	ErrJobRunning      = errors.New("job is already running")
	ErrJobNotRunning   = errors.New("job is not running")
	ErrSegmentNotFound = errors.New("segment not found")
)

// jobHandle serializes access to one job's live state. Mutations run
// under the lock and never overlap I/O; readers take deep copies.
type jobHandle struct {
	mu  sync.Mutex
	job *models.Job
}

func (h *jobHandle) view(fn func(*models.Job)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.job)
}

func (h *jobHandle) mutate(fn func(*models.Job)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h.job)
	h.job.UpdatedAt = time.Now().UTC()
}

func (h *jobHandle) snapshot() *models.Job {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.Clone()
}

func (h *jobHandle) id() uuid.UUID {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.job.ID
}

// Machine owns every job's lifecycle. Live state flows through per-job
// handles so API reads stay consistent while pipelines publish
// progress; each mutation is written through to the store.
type Machine struct {
	store store.JobStore
	proc  *Processor

	mu      sync.Mutex
	handles map[uuid.UUID]*jobHandle

	// baseCtx bounds all background processing; canceling it stops
	// running loops at their next segment boundary.
	baseCtx context.Context
}

func NewMachine(baseCtx context.Context, st store.JobStore, proc *Processor) *Machine {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &Machine{
		store:   st,
		proc:    proc,
		handles: make(map[uuid.UUID]*jobHandle),
		baseCtx: baseCtx,
	}
}

// CreateJob validates the segment inputs and stores a new idle job with
// dense segment orders.
func (m *Machine) CreateJob(ctx context.Context, jobContext string, inputs []models.SegmentInput) (*models.Job, error) {
	segments := make([]*models.Segment, 0, len(inputs))
	for i, in := range inputs {
		seg, err := in.ToSegment(i)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}

	now := time.Now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Segments:  segments,
		Status:    models.JobStatusIdle,
		Context:   jobContext,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("store job: %w", err)
	}

	m.mu.Lock()
	m.handles[job.ID] = &jobHandle{job: job.Clone()}
	m.mu.Unlock()

	log.Printf("[Machine] Created job %s with %d segments", job.ID, len(segments))
	return job, nil
}

// GetJob returns a point-in-time copy of one job.
func (m *Machine) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	h, err := m.handle(ctx, id)
	if err != nil {
		return nil, err
	}
	return h.snapshot(), nil
}

// ListJobs returns snapshots of every stored job, preferring live
// in-memory state where a handle exists.
func (m *Machine) ListJobs(ctx context.Context) ([]*models.Job, error) {
	jobs, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, job := range jobs {
		if h, ok := m.handles[job.ID]; ok {
			jobs[i] = h.snapshot()
		} else if job.Status == models.JobStatusRunning {
			// Stored as running by a process that died mid-run.
			job.Status = models.JobStatusPaused
		}
	}
	return jobs, nil
}

// Start moves an idle or paused job to running and launches the segment
// loop from its current index.
func (m *Machine) Start(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	h, err := m.handle(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		startErr error
		total    int
	)
	h.mutate(func(job *models.Job) {
		switch job.Status {
		case models.JobStatusRunning:
			startErr = ErrJobRunning
			return
		case models.JobStatusCompleted:
			startErr = fmt.Errorf("job already completed")
			return
		}
		if len(job.Segments) == 0 {
			startErr = fmt.Errorf("job has no segments")
			return
		}
		job.Status = models.JobStatusRunning
		total = len(job.Segments)
	})
	if startErr != nil {
		return nil, startErr
	}
	m.persist(h)

	log.Printf("[Machine] Starting job %s with %d segments", id, total)
	go m.runLoop(h)

	return h.snapshot(), nil
}

// Pause asks the running loop to stop at the next segment boundary. The
// in-flight segment always runs to completion first.
func (m *Machine) Pause(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	h, err := m.handle(ctx, id)
	if err != nil {
		return nil, err
	}

	var pauseErr error
	h.mutate(func(job *models.Job) {
		if job.Status != models.JobStatusRunning {
			pauseErr = ErrJobNotRunning
			return
		}
		job.Status = models.JobStatusPaused
	})
	if pauseErr != nil {
		return nil, pauseErr
	}
	m.persist(h)

	log.Printf("[Machine] Pause requested for job %s", id)
	return h.snapshot(), nil
}

// ResumeFrom restarts a stopped job's loop at the given segment index.
// Already-completed segments from that point are skipped by the loop.
func (m *Machine) ResumeFrom(ctx context.Context, id uuid.UUID, index int) (*models.Job, error) {
	h, err := m.handle(ctx, id)
	if err != nil {
		return nil, err
	}

	var resumeErr error
	h.mutate(func(job *models.Job) {
		switch {
		case job.Status == models.JobStatusRunning:
			resumeErr = ErrJobRunning
		case index < 0 || index >= len(job.Segments):
			resumeErr = fmt.Errorf("segment index %d out of range", index)
		case job.AllCompleted():
			resumeErr = fmt.Errorf("all segments already completed")
		default:
			job.CurrentSegmentIndex = index
			job.Status = models.JobStatusRunning
		}
	})
	if resumeErr != nil {
		return nil, resumeErr
	}
	m.persist(h)

	log.Printf("[Machine] Resuming job %s from segment %d", id, index)
	go m.runLoop(h)

	return h.snapshot(), nil
}

// RetrySegment reruns one segment out of band: the main loop and every
// other segment are untouched, and the call returns as soon as the
// segment is back in processing. If the retry completes the last
// missing segment while the job is stopped, the job finishes and the
// final video is reassembled in place.
func (m *Machine) RetrySegment(ctx context.Context, jobID, segmentID uuid.UUID) (*models.Segment, error) {
	h, err := m.handle(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var (
		retryErr error
		task     *segmentTask
		snap     *models.Segment
	)
	h.mutate(func(job *models.Job) {
		seg, idx := job.SegmentByID(segmentID)
		if seg == nil {
			retryErr = ErrSegmentNotFound
			return
		}
		if seg.Status == models.SegmentStatusProcessing {
			retryErr = fmt.Errorf("segment is already processing")
			return
		}
		seg.ResetForRetry()
		task = &segmentTask{
			seg:  seg.Clone(),
			prev: lastCompletedBefore(job, idx),
		}
		snap = seg.Clone()
	})
	if retryErr != nil {
		return nil, retryErr
	}
	m.persist(h)
	task.publish = m.publisher(h, segmentID)

	log.Printf("[Machine] Job %s: retrying segment %s", jobID, segmentID)
	go m.runRetry(h, task, segmentID)

	return snap, nil
}

func (m *Machine) runRetry(h *jobHandle, task *segmentTask, segmentID uuid.UUID) {
	if err := m.proc.Process(m.baseCtx, task); err != nil {
		log.Printf("[Machine] Retry of segment %s failed: %v", segmentID, err)
		return
	}
	log.Printf("[Machine] Retry of segment %s completed", segmentID)

	// If this retry filled the last gap and no loop owns the job, the
	// job is done; reassemble so the final video reflects the fix.
	var finish bool
	h.mutate(func(job *models.Job) {
		if job.Status != models.JobStatusRunning && job.AllCompleted() {
			job.Status = models.JobStatusCompleted
			finish = true
		}
	})
	if finish {
		m.persist(h)
		m.assemble(h)
	}
}

// ReplaceSegments swaps the job's entire segment list for freshly
// validated inputs and resets the job to idle.
func (m *Machine) ReplaceSegments(ctx context.Context, id uuid.UUID, inputs []models.SegmentInput) (*models.Job, error) {
	h, err := m.handle(ctx, id)
	if err != nil {
		return nil, err
	}

	segments := make([]*models.Segment, 0, len(inputs))
	for i, in := range inputs {
		seg, err := in.ToSegment(i)
		if err != nil {
			return nil, fmt.Errorf("segment %d: %w", i, err)
		}
		segments = append(segments, seg)
	}

	var replaceErr error
	h.mutate(func(job *models.Job) {
		if job.Status == models.JobStatusRunning {
			replaceErr = ErrJobRunning
			return
		}
		job.Segments = segments
		job.CurrentSegmentIndex = 0
		job.Status = models.JobStatusIdle
		job.FinalVideoPath = nil
	})
	if replaceErr != nil {
		return nil, replaceErr
	}
	m.persist(h)

	log.Printf("[Machine] Job %s: segments replaced (%d)", id, len(segments))
	return h.snapshot(), nil
}

// UpdateSegment applies a partial edit. Only a segment actually being
// processed is off limits; anything else can change between runs.
func (m *Machine) UpdateSegment(ctx context.Context, jobID, segmentID uuid.UUID, update *models.SegmentUpdate) (*models.Segment, error) {
	h, err := m.handle(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var (
		updateErr error
		snap      *models.Segment
	)
	h.mutate(func(job *models.Job) {
		seg, _ := job.SegmentByID(segmentID)
		if seg == nil {
			updateErr = ErrSegmentNotFound
			return
		}
		if seg.Status == models.SegmentStatusProcessing {
			updateErr = fmt.Errorf("segment is processing")
			return
		}
		if err := update.Apply(seg); err != nil {
			updateErr = err
			return
		}
		snap = seg.Clone()
	})
	if updateErr != nil {
		return nil, updateErr
	}
	m.persist(h)
	return snap, nil
}

// DeleteSegment removes one segment and renumbers the survivors to a
// dense 0..n-1. The final video is invalidated; if every survivor is
// already completed the job finishes again and reassembles.
func (m *Machine) DeleteSegment(ctx context.Context, jobID, segmentID uuid.UUID) (*models.Job, error) {
	h, err := m.handle(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var (
		deleteErr  error
		reassemble bool
	)
	h.mutate(func(job *models.Job) {
		if job.Status == models.JobStatusRunning {
			deleteErr = ErrJobRunning
			return
		}
		seg, idx := job.SegmentByID(segmentID)
		if seg == nil {
			deleteErr = ErrSegmentNotFound
			return
		}
		job.Segments = append(job.Segments[:idx], job.Segments[idx+1:]...)
		job.Renumber()
		if idx < job.CurrentSegmentIndex {
			job.CurrentSegmentIndex--
		}
		if job.CurrentSegmentIndex > len(job.Segments) {
			job.CurrentSegmentIndex = len(job.Segments)
		}
		job.FinalVideoPath = nil
		if job.AllCompleted() {
			job.Status = models.JobStatusCompleted
			reassemble = true
		}
	})
	if deleteErr != nil {
		return nil, deleteErr
	}
	m.persist(h)

	log.Printf("[Machine] Job %s: segment %s deleted", jobID, segmentID)
	if reassemble {
		go m.assemble(h)
	}
	return h.snapshot(), nil
}

// SegmentLogs returns a copy of one segment's log timeline and error.
func (m *Machine) SegmentLogs(ctx context.Context, jobID, segmentID uuid.UUID) ([]string, *string, error) {
	h, err := m.handle(ctx, jobID)
	if err != nil {
		return nil, nil, err
	}

	var (
		logs    []string
		segErr  *string
		missing bool
	)
	h.view(func(job *models.Job) {
		seg, _ := job.SegmentByID(segmentID)
		if seg == nil {
			missing = true
			return
		}
		logs = append([]string(nil), seg.Logs...)
		if seg.Error != nil {
			e := *seg.Error
			segErr = &e
		}
	})
	if missing {
		return nil, nil, ErrSegmentNotFound
	}
	return logs, segErr, nil
}

// runLoop processes segments sequentially from the job's current index.
// It owns the running status: every exit path settles the job into
// paused or completed and persists it.
func (m *Machine) runLoop(h *jobHandle) {
	ctx := m.baseCtx
	jobID := h.id()

	for {
		var (
			task  *segmentTask
			segID uuid.UUID
			idx   int
			total int
			stop  bool
		)
		h.mutate(func(job *models.Job) {
			if job.Status != models.JobStatusRunning {
				stop = true
				return
			}
			if ctx.Err() != nil {
				// Shutting down; stop at the boundary.
				job.Status = models.JobStatusPaused
				stop = true
				return
			}
			for job.CurrentSegmentIndex < len(job.Segments) &&
				job.Segments[job.CurrentSegmentIndex].Status == models.SegmentStatusCompleted {
				job.CurrentSegmentIndex++
			}
			if job.CurrentSegmentIndex >= len(job.Segments) {
				stop = true
				return
			}
			idx = job.CurrentSegmentIndex
			total = len(job.Segments)
			seg := job.Segments[idx]
			segID = seg.ID
			task = &segmentTask{
				seg:  seg.Clone(),
				prev: lastCompletedBefore(job, idx),
			}
		})
		if stop {
			break
		}
		m.persist(h)
		task.publish = m.publisher(h, segID)

		log.Printf("[Machine] Job %s: processing segment %d/%d (%s: %s)",
			jobID, idx+1, total, task.seg.Type, task.seg.Title)

		err := m.proc.Process(ctx, task)

		h.mutate(func(job *models.Job) {
			if err != nil {
				job.Status = models.JobStatusPaused
				return
			}
			if job.CurrentSegmentIndex == idx {
				job.CurrentSegmentIndex++
			}
		})
		m.persist(h)

		if err != nil {
			log.Printf("[Machine] Job %s: segment %d failed, pausing: %v", jobID, idx, err)
			return
		}
	}

	m.finishLoop(h, jobID)
}

// finishLoop settles a loop that ran out of segments: completed when
// everything is done, paused otherwise. A loop stopped by an outside
// pause has nothing to settle.
func (m *Machine) finishLoop(h *jobHandle, jobID uuid.UUID) {
	var completed bool
	h.mutate(func(job *models.Job) {
		if job.Status != models.JobStatusRunning {
			return
		}
		if job.AllCompleted() {
			job.Status = models.JobStatusCompleted
			completed = true
		} else {
			job.Status = models.JobStatusPaused
		}
	})
	m.persist(h)

	if completed {
		log.Printf("[Machine] Job %s: all segments completed", jobID)
		m.assemble(h)
	} else {
		log.Printf("[Machine] Job %s: loop stopped", jobID)
	}
}

// assemble concatenates every segment's output into the final video.
// Failure here is logged and never unwinds the completed status: the
// clips all exist, and any later retry reassembles.
func (m *Machine) assemble(h *jobHandle) {
	var (
		jobID uuid.UUID
		clips []string
	)
	h.view(func(job *models.Job) {
		jobID = job.ID
		for _, s := range job.Segments {
			if p := s.OutputPath(); p != "" {
				clips = append(clips, p)
			}
		}
	})
	if len(clips) == 0 {
		log.Printf("[Machine] Job %s: no clips to assemble", jobID)
		return
	}

	log.Printf("[Machine] Job %s: assembling final video from %d clips", jobID, len(clips))
	finalPath, err := m.proc.media.AssembleFinal(m.baseCtx, jobID.String(), clips)
	if err != nil {
		log.Printf("[Machine] Warning: final assembly for job %s failed: %v", jobID, err)
		return
	}

	h.mutate(func(job *models.Job) {
		job.FinalVideoPath = &finalPath
	})
	m.persist(h)
	log.Printf("[Machine] Job %s: final video at %s", jobID, finalPath)
}

// handle returns the live handle for id, adopting the stored record on
// first touch. A job stored as running by a process that died mid-run
// comes back paused: no loop carries it anymore.
func (m *Machine) handle(ctx context.Context, id uuid.UUID) (*jobHandle, error) {
	m.mu.Lock()
	if h, ok := m.handles[id]; ok {
		m.mu.Unlock()
		return h, nil
	}
	m.mu.Unlock()

	job, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if h, ok := m.handles[id]; ok {
		m.mu.Unlock()
		return h, nil
	}
	normalized := job.Status == models.JobStatusRunning
	if normalized {
		job.Status = models.JobStatusPaused
		job.UpdatedAt = time.Now().UTC()
	}
	h := &jobHandle{job: job}
	m.handles[id] = h
	m.mu.Unlock()

	if normalized {
		log.Printf("[Machine] Job %s adopted as paused (was running at shutdown)", id)
		m.persist(h)
	}
	return h, nil
}

// publisher returns the hook a pipeline uses to mutate its canonical
// segment under the job lock and write the change through.
func (m *Machine) publisher(h *jobHandle, segmentID uuid.UUID) func(func(*models.Segment)) {
	return func(fn func(*models.Segment)) {
		h.mutate(func(job *models.Job) {
			if seg, _ := job.SegmentByID(segmentID); seg != nil {
				fn(seg)
			}
		})
		m.persist(h)
	}
}

// persist writes the handle's current state through to the store. Saves
// run on a background context so a canceled pipeline still records its
// final state.
func (m *Machine) persist(h *jobHandle) {
	job := h.snapshot()
	if err := m.store.Save(context.Background(), job); err != nil {
		log.Printf("[Machine] Warning: failed to persist job %s: %v", job.ID, err)
	}
}

// lastCompletedBefore returns a snapshot of the nearest completed
// segment before idx, the frame source for transitions.
func lastCompletedBefore(job *models.Job, idx int) *models.Segment {
	for i := idx - 1; i >= 0; i-- {
		if job.Segments[i].Status == models.SegmentStatusCompleted {
			return job.Segments[i].Clone()
		}
	}
	return nil
}
