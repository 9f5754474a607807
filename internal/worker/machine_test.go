package worker

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/iris/internal/models"
	"github.com/bobarin/iris/internal/store"
)

type machineFixture struct {
	*pipelineFixture
	st      *store.MemoryStore
	machine *Machine
}

func newMachineFixture() *machineFixture {
	pf := newPipelineFixture()
	pf.speech.duration = 5.0 // matches the probed default so nothing gets stretched
	st := store.NewMemoryStore()
	return &machineFixture{
		pipelineFixture: pf,
		st:              st,
		machine:         NewMachine(context.Background(), st, pf.proc),
	}
}

func (f *machineFixture) create(t *testing.T, inputs ...models.SegmentInput) *models.Job {
	t.Helper()
	job, err := f.machine.CreateJob(context.Background(), "bridge documentary", inputs)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func (f *machineFixture) job(t *testing.T, id uuid.UUID) *models.Job {
	t.Helper()
	job, err := f.machine.GetJob(context.Background(), id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	return job
}

func (f *machineFixture) start(t *testing.T, id uuid.UUID) {
	t.Helper()
	if _, err := f.machine.Start(context.Background(), id); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

func segmentInput(segType models.SegmentType, title, narration string) models.SegmentInput {
	in := models.SegmentInput{
		Type:        segType,
		Title:       title,
		Description: "Visuals for " + title,
	}
	if narration != "" {
		in.Voiceover = &models.VoiceoverConfig{Text: narration}
	}
	return in
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func TestJobRunsToCompletion(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Opening shot", "Every bridge tells a story."),
		segmentInput(models.SegmentTypeDiagram, "Load paths", "Forces flow from deck to tower."),
		segmentInput(models.SegmentTypeTransition, "Bridge to next act", "But what happens under strain?"),
	)
	f.start(t, job.ID)

	waitFor(t, "final video", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})

	got := f.job(t, job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.CurrentSegmentIndex != len(got.Segments) {
		t.Errorf("index = %d, want %d", got.CurrentSegmentIndex, len(got.Segments))
	}
	if want := "final_" + job.ID.String() + ".mp4"; *got.FinalVideoPath != want {
		t.Errorf("final video = %q, want %q", *got.FinalVideoPath, want)
	}

	calls := f.engine.assembleCalls()
	if len(calls) != 1 {
		t.Fatalf("assemble calls = %d, want 1", len(calls))
	}
	if len(calls[0]) != len(got.Segments) {
		t.Fatalf("assembled %d clips, want one per segment (%d)", len(calls[0]), len(got.Segments))
	}
	for i, seg := range got.Segments {
		if seg.Status != models.SegmentStatusCompleted {
			t.Errorf("segment %d status = %s, want completed", i, seg.Status)
		}
		if calls[0][i] != seg.OutputPath() {
			t.Errorf("assembled clip %d = %q, want %q (ascending segment order)", i, calls[0][i], seg.OutputPath())
		}
	}
}

func TestStartUnknownJob(t *testing.T) {
	f := newMachineFixture()
	if _, err := f.machine.Start(context.Background(), uuid.New()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Start error = %v, want store.ErrNotFound", err)
	}
}

func TestStartEmptyJob(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t)
	if _, err := f.machine.Start(context.Background(), job.ID); err == nil || !strings.Contains(err.Error(), "no segments") {
		t.Fatalf("Start error = %v, want no-segments rejection", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Only segment", "One."))
	f.start(t, job.ID)

	if _, err := f.machine.Start(context.Background(), job.ID); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("second Start error = %v, want ErrJobRunning", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})

	if _, err := f.machine.Start(context.Background(), job.ID); err == nil || !strings.Contains(err.Error(), "already completed") {
		t.Fatalf("Start after completion error = %v, want completed rejection", err)
	}
}

func TestPauseStopsAtSegmentBoundary(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "First", "One."),
		segmentInput(models.SegmentTypeAnimation, "Second", "Two."),
	)
	f.start(t, job.ID)

	waitFor(t, "first segment processing", func() bool {
		return f.job(t, job.ID).Segments[0].Status == models.SegmentStatusProcessing
	})
	if _, err := f.machine.Pause(context.Background(), job.ID); err != nil {
		t.Fatalf("Pause: %v", err)
	}

	// The in-flight segment runs to completion; the loop stops before
	// touching the second one.
	close(block)
	waitFor(t, "loop to stop at the boundary", func() bool {
		job := f.job(t, job.ID)
		return job.Status == models.JobStatusPaused &&
			job.Segments[0].Status == models.SegmentStatusCompleted &&
			job.CurrentSegmentIndex == 1
	})

	got := f.job(t, job.ID)
	if got.Segments[1].Status != models.SegmentStatusPending {
		t.Errorf("second segment status = %s, want pending", got.Segments[1].Status)
	}
	if renders := len(f.animation.requests()); renders != 1 {
		t.Errorf("render calls = %d, want 1", renders)
	}

	if _, err := f.machine.Pause(context.Background(), job.ID); !errors.Is(err, ErrJobNotRunning) {
		t.Fatalf("Pause on paused job error = %v, want ErrJobNotRunning", err)
	}
}

func TestSegmentFailurePausesJobAtIndex(t *testing.T) {
	f := newMachineFixture()
	f.diagram.setGenerateErr(errors.New("renderer exploded"))

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Works", "One."),
		segmentInput(models.SegmentTypeDiagram, "Breaks", "Two."),
		segmentInput(models.SegmentTypeAnimation, "Never reached", "Three."),
	)
	f.start(t, job.ID)

	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	got := f.job(t, job.ID)
	if got.CurrentSegmentIndex != 1 {
		t.Errorf("index = %d, want 1 (the failed segment)", got.CurrentSegmentIndex)
	}
	if got.Segments[0].Status != models.SegmentStatusCompleted {
		t.Errorf("segment 0 status = %s, want completed", got.Segments[0].Status)
	}
	if got.Segments[1].Status != models.SegmentStatusFailed {
		t.Errorf("segment 1 status = %s, want failed", got.Segments[1].Status)
	}
	if got.Segments[1].Error == nil || !strings.Contains(*got.Segments[1].Error, "renderer exploded") {
		t.Errorf("segment 1 error = %v, want the renderer failure", got.Segments[1].Error)
	}
	if got.Segments[2].Status != models.SegmentStatusPending {
		t.Errorf("segment 2 status = %s, want pending", got.Segments[2].Status)
	}
}

func TestResumeFromReprocessesFailedSegment(t *testing.T) {
	f := newMachineFixture()
	f.diagram.setGenerateErr(errors.New("transient"))

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Works", "One."),
		segmentInput(models.SegmentTypeDiagram, "Breaks once", "Two."),
	)
	f.start(t, job.ID)
	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	f.diagram.setGenerateErr(nil)
	if _, err := f.machine.ResumeFrom(context.Background(), job.ID, 1); err != nil {
		t.Fatalf("ResumeFrom: %v", err)
	}

	waitFor(t, "completion after resume", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})

	got := f.job(t, job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if renders := len(f.animation.requests()); renders != 1 {
		t.Errorf("animation renders = %d, want 1 (completed segment not reprocessed)", renders)
	}
}

func TestResumeFromSkipsCompletedSegments(t *testing.T) {
	f := newMachineFixture()
	f.diagram.setGenerateErr(errors.New("transient"))

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Works", "One."),
		segmentInput(models.SegmentTypeDiagram, "Breaks once", "Two."),
	)
	f.start(t, job.ID)
	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	// Resuming from 0 must not redo the completed first segment.
	f.diagram.setGenerateErr(nil)
	if _, err := f.machine.ResumeFrom(context.Background(), job.ID, 0); err != nil {
		t.Fatalf("ResumeFrom: %v", err)
	}
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})

	if renders := len(f.animation.requests()); renders != 1 {
		t.Errorf("animation renders = %d, want 1", renders)
	}
}

func TestResumeFromValidation(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block
	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Only", "One."))
	ctx := context.Background()

	if _, err := f.machine.ResumeFrom(ctx, job.ID, 5); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("ResumeFrom(5) error = %v, want range rejection", err)
	}

	f.start(t, job.ID)
	if _, err := f.machine.ResumeFrom(ctx, job.ID, 0); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("ResumeFrom on running job error = %v, want ErrJobRunning", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})
	if _, err := f.machine.ResumeFrom(ctx, job.ID, 0); err == nil || !strings.Contains(err.Error(), "already completed") {
		t.Fatalf("ResumeFrom on completed job error = %v, want completed rejection", err)
	}
}

func TestRetrySegmentIsolation(t *testing.T) {
	f := newMachineFixture()
	f.diagram.setGenerateErr(errors.New("flaky backend"))

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Solid", "One."),
		segmentInput(models.SegmentTypeDiagram, "Flaky", "Two."),
	)
	f.start(t, job.ID)
	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	before := f.job(t, job.ID).Segments[0]

	f.diagram.setGenerateErr(nil)
	snap, err := f.machine.RetrySegment(context.Background(), job.ID, f.job(t, job.ID).Segments[1].ID)
	if err != nil {
		t.Fatalf("RetrySegment: %v", err)
	}
	if snap.Status != models.SegmentStatusProcessing {
		t.Fatalf("retry snapshot status = %s, want processing", snap.Status)
	}
	if !strings.Contains(joinedLogs(snap), "Retry initiated") {
		t.Error("retry snapshot missing the Retry initiated log")
	}

	// Fire-and-forget: the retry fills the last gap, so the stopped job
	// finishes and assembles.
	waitFor(t, "final video after retry", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})

	got := f.job(t, job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	after := got.Segments[0]
	if after.Status != before.Status || !reflect.DeepEqual(after.Logs, before.Logs) || after.CombinedPath != before.CombinedPath {
		t.Error("retry touched an unrelated segment")
	}
	if len(f.engine.assembleCalls()) != 1 {
		t.Errorf("assemble calls = %d, want 1", len(f.engine.assembleCalls()))
	}
}

func TestRetryReassemblesCompletedJob(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Only", "One."))
	f.start(t, job.ID)
	waitFor(t, "first assembly", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})

	if _, err := f.machine.RetrySegment(context.Background(), job.ID, f.job(t, job.ID).Segments[0].ID); err != nil {
		t.Fatalf("RetrySegment: %v", err)
	}
	waitFor(t, "reassembly", func() bool {
		return len(f.engine.assembleCalls()) == 2
	})

	got := f.job(t, job.ID)
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.FinalVideoPath == nil {
		t.Fatal("final video cleared by reassembly")
	}
}

func TestRetryValidation(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Busy", "One."))
	ctx := context.Background()

	if _, err := f.machine.RetrySegment(ctx, job.ID, uuid.New()); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("RetrySegment error = %v, want ErrSegmentNotFound", err)
	}

	f.start(t, job.ID)
	waitFor(t, "segment processing", func() bool {
		return f.job(t, job.ID).Segments[0].Status == models.SegmentStatusProcessing
	})
	if _, err := f.machine.RetrySegment(ctx, job.ID, job.Segments[0].ID); err == nil || !strings.Contains(err.Error(), "already processing") {
		t.Fatalf("RetrySegment on processing segment error = %v, want busy rejection", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})
}

func TestAssemblyFailureLeavesJobCompleted(t *testing.T) {
	f := newMachineFixture()
	f.engine.failAssemble = true

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Only", "One."))
	f.start(t, job.ID)

	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})

	got := f.job(t, job.ID)
	if got.FinalVideoPath != nil {
		t.Errorf("final video = %q, want none after failed assembly", *got.FinalVideoPath)
	}
	if got.Segments[0].Status != models.SegmentStatusCompleted {
		t.Errorf("segment status = %s, want completed", got.Segments[0].Status)
	}
}

func TestReplaceSegmentsResetsJob(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Old", "One."))
	f.start(t, job.ID)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})

	replaced, err := f.machine.ReplaceSegments(context.Background(), job.ID, []models.SegmentInput{
		segmentInput(models.SegmentTypeDiagram, "New first", "A."),
		segmentInput(models.SegmentTypeAnimation, "New second", "B."),
	})
	if err != nil {
		t.Fatalf("ReplaceSegments: %v", err)
	}

	if replaced.Status != models.JobStatusIdle {
		t.Errorf("status = %s, want idle", replaced.Status)
	}
	if replaced.CurrentSegmentIndex != 0 {
		t.Errorf("index = %d, want 0", replaced.CurrentSegmentIndex)
	}
	if replaced.FinalVideoPath != nil {
		t.Error("final video survived a segment replacement")
	}
	if len(replaced.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(replaced.Segments))
	}
	for i, seg := range replaced.Segments {
		if seg.Order != i {
			t.Errorf("segment %d order = %d", i, seg.Order)
		}
		if seg.Status != models.SegmentStatusPending {
			t.Errorf("segment %d status = %s, want pending", i, seg.Status)
		}
	}
}

func TestReplaceSegmentsRejectedWhileRunning(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Only", "One."))
	f.start(t, job.ID)

	_, err := f.machine.ReplaceSegments(context.Background(), job.ID, []models.SegmentInput{
		segmentInput(models.SegmentTypeAnimation, "New", "A."),
	})
	if !errors.Is(err, ErrJobRunning) {
		t.Fatalf("ReplaceSegments error = %v, want ErrJobRunning", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})
}

func TestUpdateSegment(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Old title", "One."))

	title := "New title"
	seg, err := f.machine.UpdateSegment(context.Background(), job.ID, job.Segments[0].ID, &models.SegmentUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateSegment: %v", err)
	}
	if seg.Title != "New title" {
		t.Errorf("title = %q, want New title", seg.Title)
	}

	if _, err := f.machine.UpdateSegment(context.Background(), job.ID, uuid.New(), &models.SegmentUpdate{Title: &title}); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("UpdateSegment error = %v, want ErrSegmentNotFound", err)
	}
}

func TestUpdateSegmentRejectedWhileProcessing(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Busy", "One."))
	f.start(t, job.ID)
	waitFor(t, "segment processing", func() bool {
		return f.job(t, job.ID).Segments[0].Status == models.SegmentStatusProcessing
	})

	title := "Too late"
	if _, err := f.machine.UpdateSegment(context.Background(), job.ID, job.Segments[0].ID, &models.SegmentUpdate{Title: &title}); err == nil || !strings.Contains(err.Error(), "processing") {
		t.Fatalf("UpdateSegment error = %v, want processing rejection", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})
}

func TestDeleteSegmentRenumbersSurvivors(t *testing.T) {
	f := newMachineFixture()
	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "A", "1."),
		segmentInput(models.SegmentTypeAnimation, "B", "2."),
		segmentInput(models.SegmentTypeAnimation, "C", "3."),
		segmentInput(models.SegmentTypeAnimation, "D", "4."),
		segmentInput(models.SegmentTypeAnimation, "E", "5."),
	)

	got, err := f.machine.DeleteSegment(context.Background(), job.ID, job.Segments[2].ID)
	if err != nil {
		t.Fatalf("DeleteSegment: %v", err)
	}

	if len(got.Segments) != 4 {
		t.Fatalf("segments = %d, want 4", len(got.Segments))
	}
	wantTitles := []string{"A", "B", "D", "E"}
	for i, seg := range got.Segments {
		if seg.Title != wantTitles[i] {
			t.Errorf("segment %d title = %q, want %q", i, seg.Title, wantTitles[i])
		}
		if seg.Order != i {
			t.Errorf("segment %d order = %d, want dense renumbering", i, seg.Order)
		}
	}

	if _, err := f.machine.DeleteSegment(context.Background(), job.ID, uuid.New()); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("DeleteSegment error = %v, want ErrSegmentNotFound", err)
	}
}

func TestDeleteSegmentReassemblesCompletedRemainder(t *testing.T) {
	f := newMachineFixture()
	f.diagram.setGenerateErr(errors.New("permanently broken"))

	job := f.create(t,
		segmentInput(models.SegmentTypeAnimation, "Good", "One."),
		segmentInput(models.SegmentTypeDiagram, "Dead weight", "Two."),
	)
	f.start(t, job.ID)
	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	// Removing the failed segment leaves only completed work, so the
	// job finishes and assembles what remains.
	got, err := f.machine.DeleteSegment(context.Background(), job.ID, f.job(t, job.ID).Segments[1].ID)
	if err != nil {
		t.Fatalf("DeleteSegment: %v", err)
	}
	if got.Status != models.JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}

	waitFor(t, "reassembly", func() bool {
		return f.job(t, job.ID).FinalVideoPath != nil
	})
	calls := f.engine.assembleCalls()
	if len(calls) != 1 || len(calls[0]) != 1 {
		t.Fatalf("assemble calls = %v, want one call with the surviving clip", calls)
	}
}

func TestDeleteSegmentRejectedWhileRunning(t *testing.T) {
	f := newMachineFixture()
	block := make(chan struct{})
	f.animation.block = block

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Busy", "One."))
	f.start(t, job.ID)

	if _, err := f.machine.DeleteSegment(context.Background(), job.ID, job.Segments[0].ID); !errors.Is(err, ErrJobRunning) {
		t.Fatalf("DeleteSegment error = %v, want ErrJobRunning", err)
	}

	close(block)
	waitFor(t, "completion", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusCompleted
	})
}

func TestSegmentLogs(t *testing.T) {
	f := newMachineFixture()
	f.animation.setGenerateErr(errors.New("no capacity"))

	job := f.create(t, segmentInput(models.SegmentTypeAnimation, "Doomed", "One."))
	f.start(t, job.ID)
	waitFor(t, "pause on failure", func() bool {
		return f.job(t, job.ID).Status == models.JobStatusPaused
	})

	logs, segErr, err := f.machine.SegmentLogs(context.Background(), job.ID, job.Segments[0].ID)
	if err != nil {
		t.Fatalf("SegmentLogs: %v", err)
	}
	if segErr == nil || !strings.Contains(*segErr, "no capacity") {
		t.Errorf("segment error = %v, want the renderer failure", segErr)
	}
	joined := strings.Join(logs, "\n")
	if !strings.Contains(joined, "Processing started") || !strings.Contains(joined, "Failed") {
		t.Errorf("logs missing lifecycle entries:\n%s", joined)
	}

	if _, _, err := f.machine.SegmentLogs(context.Background(), job.ID, uuid.New()); !errors.Is(err, ErrSegmentNotFound) {
		t.Fatalf("SegmentLogs error = %v, want ErrSegmentNotFound", err)
	}
}

func TestCreateJobValidatesInputs(t *testing.T) {
	f := newMachineFixture()
	_, err := f.machine.CreateJob(context.Background(), "", []models.SegmentInput{
		{Type: models.SegmentType("hologram"), Title: "Nope", Description: "Nope"},
	})
	if err == nil || !strings.Contains(err.Error(), "segment 0") {
		t.Fatalf("CreateJob error = %v, want validation failure naming the segment", err)
	}

	jobs, listErr := f.machine.ListJobs(context.Background())
	if listErr != nil {
		t.Fatalf("ListJobs: %v", listErr)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs stored = %d, want 0 after a rejected create", len(jobs))
	}
}

func TestAdoptionNormalizesInterruptedJob(t *testing.T) {
	f := newMachineFixture()
	ctx := context.Background()

	// A job left running by a process that died mid-run.
	seg := testSegment(models.SegmentTypeAnimation, "Orphaned")
	job := &models.Job{
		ID:        uuid.New(),
		Segments:  []*models.Segment{seg},
		Status:    models.JobStatusRunning,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := f.st.Create(ctx, job); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	got := f.job(t, job.ID)
	if got.Status != models.JobStatusPaused {
		t.Fatalf("adopted status = %s, want paused", got.Status)
	}

	stored, err := f.st.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("store get: %v", err)
	}
	if stored.Status != models.JobStatusPaused {
		t.Errorf("persisted status = %s, want the normalization written through", stored.Status)
	}
}

func TestListJobsReturnsSnapshots(t *testing.T) {
	f := newMachineFixture()
	f.create(t, segmentInput(models.SegmentTypeAnimation, "A", "1."))
	f.create(t, segmentInput(models.SegmentTypeDiagram, "B", "2."))

	jobs, err := f.machine.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("jobs = %d, want 2", len(jobs))
	}
	for _, job := range jobs {
		if job.Status != models.JobStatusIdle {
			t.Errorf("job %s status = %s, want idle", job.ID, job.Status)
		}
	}
}
