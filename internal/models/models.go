package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Enums

type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusPaused    JobStatus = "paused"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

type SegmentStatus string

const (
	SegmentStatusPending    SegmentStatus = "pending"
	SegmentStatusProcessing SegmentStatus = "processing"
	SegmentStatusCompleted  SegmentStatus = "completed"
	SegmentStatusFailed     SegmentStatus = "failed"
)

type SegmentType string

const (
	SegmentTypeAnimation  SegmentType = "animation"
	SegmentTypeDiagram    SegmentType = "diagram"
	SegmentTypeSimulation SegmentType = "simulation"
	SegmentTypeTransition SegmentType = "transition"
)

// ValidSegmentType reports whether t is one of the known segment types.
func ValidSegmentType(t SegmentType) bool {
	switch t {
	case SegmentTypeAnimation, SegmentTypeDiagram, SegmentTypeSimulation, SegmentTypeTransition:
		return true
	}
	return false
}

// Voiceover defaults applied when a segment input omits them.
const (
	DefaultVoice       = "Schedar"
	DefaultSpeechSpeed = 1.35
)

// Models

type VoiceoverConfig struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// HasText reports whether the voiceover carries narration worth synthesizing.
// A voiceover with blank text is treated as absent.
func (v *VoiceoverConfig) HasText() bool {
	return v != nil && strings.TrimSpace(v.Text) != ""
}

// AnimationParams tunes the animation renderer (fixed-length AI clips).
type AnimationParams struct {
	Style          string `json:"style,omitempty"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
}

// DiagramParams tunes the diagram renderer (programmatic scenes).
type DiagramParams struct {
	Theme   string `json:"theme,omitempty"`
	Quality string `json:"quality,omitempty"`
}

// SimulationParams tunes the simulation renderer.
type SimulationParams struct {
	Engine string `json:"engine,omitempty"`
	Seed   int    `json:"seed,omitempty"`
}

// SegmentParams carries per-category renderer settings. Exactly one
// variant may be set, and it must match the segment's type; transitions
// carry none.
type SegmentParams struct {
	Animation  *AnimationParams  `json:"animation,omitempty"`
	Diagram    *DiagramParams    `json:"diagram,omitempty"`
	Simulation *SimulationParams `json:"simulation,omitempty"`
}

// Validate checks that the set variant matches the segment type.
func (p *SegmentParams) Validate(t SegmentType) error {
	if p == nil {
		return nil
	}
	set := 0
	if p.Animation != nil {
		set++
		if t != SegmentTypeAnimation {
			return fmt.Errorf("animation params not valid for segment type %q", t)
		}
	}
	if p.Diagram != nil {
		set++
		if t != SegmentTypeDiagram {
			return fmt.Errorf("diagram params not valid for segment type %q", t)
		}
	}
	if p.Simulation != nil {
		set++
		if t != SegmentTypeSimulation {
			return fmt.Errorf("simulation params not valid for segment type %q", t)
		}
	}
	if set > 1 {
		return fmt.Errorf("segment params must set at most one variant, got %d", set)
	}
	if set == 1 && t == SegmentTypeTransition {
		return fmt.Errorf("transition segments carry no params")
	}
	return nil
}

// Variant returns the active variant pointer, or nil when unset. The
// result is what renderer requests serialize as their metadata object.
func (p *SegmentParams) Variant() any {
	if p == nil {
		return nil
	}
	switch {
	case p.Animation != nil:
		return p.Animation
	case p.Diagram != nil:
		return p.Diagram
	case p.Simulation != nil:
		return p.Simulation
	}
	return nil
}

func (p *SegmentParams) clone() *SegmentParams {
	if p == nil {
		return nil
	}
	out := &SegmentParams{}
	if p.Animation != nil {
		a := *p.Animation
		out.Animation = &a
	}
	if p.Diagram != nil {
		d := *p.Diagram
		out.Diagram = &d
	}
	if p.Simulation != nil {
		s := *p.Simulation
		out.Simulation = &s
	}
	return out
}

type Segment struct {
	ID              uuid.UUID        `json:"id"`
	Order           int              `json:"order"`
	Type            SegmentType      `json:"type"`
	Title           string           `json:"title"`
	Description     string           `json:"description"`
	Voiceover       *VoiceoverConfig `json:"voiceover,omitempty"`
	Params          *SegmentParams   `json:"params,omitempty"`
	Status          SegmentStatus    `json:"status"`
	VideoPath       string           `json:"video_path,omitempty"`
	AudioPath       string           `json:"audio_path,omitempty"`
	CombinedPath    string           `json:"combined_path,omitempty"`
	DurationSeconds float64          `json:"duration_seconds,omitempty"`
	GeneratedScript *string          `json:"generated_script,omitempty"`
	Error           *string          `json:"error,omitempty"`
	Logs            []string         `json:"logs"`
}

// AddLog appends a timestamped message to the segment's log timeline.
func (s *Segment) AddLog(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	entry := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), msg)
	s.Logs = append(s.Logs, entry)
}

// SetError records err on the segment and marks it failed.
func (s *Segment) SetError(err error) {
	msg := err.Error()
	s.Error = &msg
	s.Status = SegmentStatusFailed
}

// ResetForRetry clears every artifact of a previous run and puts the
// segment back into processing with a fresh log timeline.
func (s *Segment) ResetForRetry() {
	s.Status = SegmentStatusProcessing
	s.VideoPath = ""
	s.AudioPath = ""
	s.CombinedPath = ""
	s.DurationSeconds = 0
	s.GeneratedScript = nil
	s.Error = nil
	s.Logs = nil
	s.AddLog("Retry initiated")
}

// OutputPath returns the segment's best available clip: the combined
// output when present, the raw visual otherwise.
func (s *Segment) OutputPath() string {
	if s.CombinedPath != "" {
		return s.CombinedPath
	}
	return s.VideoPath
}

// Clone returns a deep copy safe to hand outside the owning machine.
func (s *Segment) Clone() *Segment {
	if s == nil {
		return nil
	}
	out := *s
	if s.Voiceover != nil {
		v := *s.Voiceover
		out.Voiceover = &v
	}
	out.Params = s.Params.clone()
	if s.GeneratedScript != nil {
		sc := *s.GeneratedScript
		out.GeneratedScript = &sc
	}
	if s.Error != nil {
		e := *s.Error
		out.Error = &e
	}
	if s.Logs != nil {
		out.Logs = append([]string(nil), s.Logs...)
	}
	return &out
}

type Job struct {
	ID                  uuid.UUID  `json:"id"`
	Segments            []*Segment `json:"segments"`
	CurrentSegmentIndex int        `json:"current_segment_index"`
	Status              JobStatus  `json:"status"`
	FinalVideoPath      *string    `json:"final_video_path,omitempty"`
	Context             string     `json:"context,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the job and all its segments.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	if j.FinalVideoPath != nil {
		p := *j.FinalVideoPath
		out.FinalVideoPath = &p
	}
	out.Segments = make([]*Segment, len(j.Segments))
	for i, s := range j.Segments {
		out.Segments[i] = s.Clone()
	}
	return &out
}

// Renumber rewrites segment orders to a dense 0..n-1 sequence
// preserving current positions.
func (j *Job) Renumber() {
	for i, s := range j.Segments {
		s.Order = i
	}
}

// SegmentByID returns the segment and its index, or (nil, -1).
func (j *Job) SegmentByID(id uuid.UUID) (*Segment, int) {
	for i, s := range j.Segments {
		if s.ID == id {
			return s, i
		}
	}
	return nil, -1
}

// AllCompleted reports whether every segment reached completed.
func (j *Job) AllCompleted() bool {
	if len(j.Segments) == 0 {
		return false
	}
	for _, s := range j.Segments {
		if s.Status != SegmentStatusCompleted {
			return false
		}
	}
	return true
}

// FirstIncompleteIndex returns the index of the first segment that has
// not completed, or -1 when all have.
func (j *Job) FirstIncompleteIndex() int {
	for i, s := range j.Segments {
		if s.Status != SegmentStatusCompleted {
			return i
		}
	}
	return -1
}

// DTOs for API requests and responses

// SegmentInput is the caller-supplied shape of one segment, used by job
// creation, segment replacement, and the planner's output.
type SegmentInput struct {
	Type        SegmentType      `json:"type"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Voiceover   *VoiceoverConfig `json:"voiceover,omitempty"`
	Params      *SegmentParams   `json:"params,omitempty"`
}

// ToSegment validates the input and materializes a pending segment at
// the given order, applying voiceover defaults.
func (in *SegmentInput) ToSegment(order int) (*Segment, error) {
	if !ValidSegmentType(in.Type) {
		return nil, fmt.Errorf("unknown segment type %q", in.Type)
	}
	if err := in.Params.Validate(in.Type); err != nil {
		return nil, err
	}
	var vo *VoiceoverConfig
	if in.Voiceover != nil {
		v := *in.Voiceover
		if v.Voice == "" {
			v.Voice = DefaultVoice
		}
		if v.Speed <= 0 {
			v.Speed = DefaultSpeechSpeed
		}
		vo = &v
	}
	return &Segment{
		ID:          uuid.New(),
		Order:       order,
		Type:        in.Type,
		Title:       in.Title,
		Description: in.Description,
		Voiceover:   vo,
		Params:      in.Params.clone(),
		Status:      SegmentStatusPending,
	}, nil
}

// SegmentUpdate is a partial segment edit; nil fields are left alone.
type SegmentUpdate struct {
	Type        *SegmentType     `json:"type,omitempty"`
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Voiceover   *VoiceoverConfig `json:"voiceover,omitempty"`
	Params      *SegmentParams   `json:"params,omitempty"`
}

// Apply patches the segment in place after validating the resulting
// type/params combination.
func (u *SegmentUpdate) Apply(s *Segment) error {
	t := s.Type
	if u.Type != nil {
		if !ValidSegmentType(*u.Type) {
			return fmt.Errorf("unknown segment type %q", *u.Type)
		}
		t = *u.Type
	}
	params := s.Params
	if u.Params != nil {
		params = u.Params
	}
	if err := params.Validate(t); err != nil {
		return err
	}
	s.Type = t
	s.Params = params.clone()
	if u.Title != nil {
		s.Title = *u.Title
	}
	if u.Description != nil {
		s.Description = *u.Description
	}
	if u.Voiceover != nil {
		v := *u.Voiceover
		if v.Voice == "" {
			v.Voice = DefaultVoice
		}
		if v.Speed <= 0 {
			v.Speed = DefaultSpeechSpeed
		}
		s.Voiceover = &v
	}
	return nil
}

type CreateJobRequest struct {
	Context  string         `json:"context,omitempty"`
	Segments []SegmentInput `json:"segments"`
}

type ReplaceSegmentsRequest struct {
	Segments []SegmentInput `json:"segments"`
}

type ListJobsResponse struct {
	Jobs []*Job `json:"jobs"`
}

type SegmentLogsResponse struct {
	Logs  []string `json:"logs"`
	Error *string  `json:"error,omitempty"`
}

type PlanRequest struct {
	Topic        string `json:"topic"`
	SegmentCount int    `json:"segment_count,omitempty"`
	Context      string `json:"context,omitempty"`
}

type PlanResponse struct {
	Segments []SegmentInput `json:"segments"`
}
