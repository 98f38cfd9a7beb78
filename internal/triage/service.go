package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/cityfix/internal/geo"
)

var tracer = otel.Tracer("github.com/linnemanlabs/cityfix/internal/triage")

// ErrInvalidInput is returned for requests that cannot be applied, such as an empty photo reference.
var ErrInvalidInput = errors.New("invalid input")

const stubSendMessage = "stub delivery recorded, no external system contacted"

// Event names a notification the Service emits.
type Event string

const (
	EventHighPriority Event = "high_priority"
	EventExportSent   Event = "export_stub_sent"
)

// Notifier delivers complaint events to people. Failures are logged and never block the caller.
type Notifier interface {
	Notify(ctx context.Context, event Event, c *Complaint) error
}

// Exporter writes an export payload somewhere durable and returns a reference to it.
type Exporter interface {
	Export(ctx context.Context, p *ExportPayload) (ref string, err error)
}

// Submission is a new citizen report before triage.
type Submission struct {
	Text       string
	Language   string
	UICategory string
	ObjectType string
	PhotoRef   string
	Location   *geo.Point

	// Pre-computed classifier results. When nil the configured classifiers are used.
	Image *ImageSignal
	Topic *TextSignal
}

// SubmitResult is the outcome of a submission.
type SubmitResult struct {
	Complaint *Complaint
	Duplicate DuplicateResult
}

// ListFilter narrows List. Zero fields match everything.
type ListFilter struct {
	Status     Status
	Department string
	Limit      int
}

// Option configures a Service.
type Option func(*Service)

// WithImageClassifier sets the photo classifier.
func WithImageClassifier(c ImageClassifier) Option { return func(s *Service) { s.images = c } }

// WithTextClassifier sets the text classifier.
func WithTextClassifier(c TextClassifier) Option { return func(s *Service) { s.texts = c } }

// WithNotifier sets the notifier for high-priority intakes and export sends.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithExporter sets where sent export payloads are written.
func WithExporter(e Exporter) Option { return func(s *Service) { s.exporter = e } }

// WithHooks sets the callbacks fired on intake, gate evaluation, sends and status changes.
func WithHooks(h ServiceHooks) Option { return func(s *Service) { s.hooks = h } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the business boundary for complaint triage.
type Service struct {
	store    Store
	engine   *Engine
	logger   log.Logger
	images   ImageClassifier
	texts    TextClassifier
	notifier Notifier
	exporter Exporter
	hooks    ServiceHooks
	now      func() time.Time
}

// NewService creates a new triage service.
func NewService(store Store, engine *Engine, logger log.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		engine: engine,
		logger: logger,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Submit classifies, routes, deduplicates and scores a new complaint and stores it.
// Dedup and the representative update run as one intake in the store.
func (s *Service) Submit(ctx context.Context, sub *Submission) (*SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "triage.Submit")
	defer span.End()

	start := s.now()
	c := &Complaint{
		ID:         ulid.Make().String(),
		CreatedAt:  start.UTC(),
		Text:       sub.Text,
		Language:   strings.TrimSpace(sub.Language),
		UICategory: strings.TrimSpace(sub.UICategory),
		ObjectType: normalizeObjectType(sub.ObjectType),
		PhotoRef:   strings.TrimSpace(sub.PhotoRef),
	}
	if sub.Location != nil && sub.Location.Valid() {
		loc := *sub.Location
		c.Location = &loc
	}

	L := s.logger.With("complaint_id", c.ID)

	c.Image = s.classifyImage(ctx, L, sub, c.PhotoRef)
	c.Topic = s.classifyText(ctx, L, sub, c.Text, c.Language)
	s.engine.Route(c)

	var dup DuplicateResult
	err := s.store.Intake(ctx, c.Location, s.engine.Detector().RadiusMeters, func(ctx context.Context, tx IntakeTx) error {
		var recent []*Complaint
		if c.Location != nil {
			var err error
			recent, err = tx.Recent(ctx, s.engine.Detector().ScanLimit)
			if err != nil {
				return fmt.Errorf("load dedup window: %w", err)
			}
		}

		dup = s.engine.Assess(c, recent)
		if dup.GroupID != "" {
			rep, ok, err := tx.Get(ctx, dup.GroupID)
			if err != nil {
				return fmt.Errorf("load representative %s: %w", dup.GroupID, err)
			}
			if ok {
				s.engine.Reinforce(rep)
				if err := tx.Save(ctx, rep); err != nil {
					return fmt.Errorf("save representative %s: %w", dup.GroupID, err)
				}
			}
		}

		return tx.Insert(ctx, c)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.fireSubmit(&SubmitEvent{Result: "error", Duration: s.now().Sub(start).Seconds()})
		return nil, err
	}

	span.SetAttributes(
		attribute.String("complaint.id", c.ID),
		attribute.String("complaint.department", c.Department),
		attribute.String("complaint.priority", string(c.PriorityLevel)),
		attribute.Int("complaint.duplicates", dup.Count),
	)

	result := "created"
	switch {
	case c.Status == StatusRejected:
		result = "rejected"
	case dup.GroupID != "":
		result = "duplicate"
	}
	s.fireSubmit(&SubmitEvent{
		Result:     result,
		Level:      c.PriorityLevel,
		Department: c.Department,
		Duration:   s.now().Sub(start).Seconds(),
	})

	L.Info(ctx, "complaint accepted",
		"result", result,
		"department", c.Department,
		"priority", c.PriorityLevel,
		"score", c.PriorityScore,
		"duplicate_of", dup.GroupID,
		"matches", dup.Count,
	)

	if c.PriorityLevel == PriorityHigh {
		s.notify(ctx, L, EventHighPriority, c)
	}

	return &SubmitResult{Complaint: c.Clone(), Duplicate: dup}, nil
}

func (s *Service) classifyImage(ctx context.Context, L log.Logger, sub *Submission, photoRef string) ImageSignal {
	if sub.Image != nil {
		sig := *sub.Image
		sig.Confidence = clamp01(sig.Confidence)
		return sig
	}
	// Without a photo there is nothing for the relevance gate to judge; the
	// export gate still refuses the complaint for lack of photo evidence.
	if photoRef == "" {
		return ImageSignal{Relevant: true}
	}
	if s.images == nil {
		L.Warn(ctx, "no image classifier configured, using failure sentinel")
		return FailedImageSignal()
	}

	sig, err := s.images.ClassifyImage(ctx, photoRef)
	if err != nil {
		L.Error(ctx, err, "image classification failed", "photo_ref", photoRef)
		return FailedImageSignal()
	}
	sig.Confidence = clamp01(sig.Confidence)
	sig.Relevant = s.engine.Relevant(sig.Label, sig.Confidence)
	return sig
}

func (s *Service) classifyText(ctx context.Context, L log.Logger, sub *Submission, text, lang string) TextSignal {
	if sub.Topic != nil {
		return *sub.Topic
	}
	if strings.TrimSpace(text) == "" || s.texts == nil {
		return EmptyTextSignal()
	}

	sig, err := s.texts.ClassifyText(ctx, text, lang)
	if err != nil {
		L.Error(ctx, err, "text classification failed")
		return EmptyTextSignal()
	}
	if sig.Category == "" {
		sig.Category = DefaultTextCategory
	}
	return sig
}

func normalizeObjectType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ObjectTypeUnknown
	}
	return s
}

// Get retrieves a complaint by ID.
func (s *Service) Get(ctx context.Context, id string) (*Complaint, error) {
	c, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// List returns complaints matching f, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Complaint, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*Complaint, 0, len(all))
	for _, c := range all {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Department != "" && !strings.EqualFold(c.Department, f.Department) {
			continue
		}
		out = append(out, c)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// DetectDuplicate reports which cluster a complaint at loc would join, without storing anything.
func (s *Service) DetectDuplicate(ctx context.Context, loc *geo.Point) (DuplicateResult, error) {
	if loc == nil || !loc.Valid() {
		return DuplicateResult{}, nil
	}
	all, err := s.store.List(ctx)
	if err != nil {
		return DuplicateResult{}, err
	}
	return s.engine.Detector().Detect(loc, all), nil
}

// ScorePriority scores arbitrary inputs with the configured scorer.
func (s *Service) ScorePriority(in PriorityInput) Priority {
	return s.engine.Scorer().Score(in)
}

// ResolveRoute routes arbitrary signals with the configured resolver.
func (s *Service) ResolveRoute(imageLabel, textCategory, urgency string, relevant bool) Route {
	return s.engine.Router().Resolve(imageLabel, textCategory, urgency, relevant)
}

// UpdateStatus moves a complaint to a new lifecycle status.
// Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id string, to Status) (*Complaint, error) {
	var from Status
	c, err := s.store.Update(ctx, id, func(c *Complaint) error {
		from = c.Status
		if from == to {
			return nil
		}
		if !from.CanTransition(to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
		}
		c.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	if from != to {
		if s.hooks.OnStatusChange != nil {
			s.hooks.OnStatusChange(from, to)
		}
		s.logger.Info(ctx, "complaint status changed", "complaint_id", id, "from", from, "to", to)
	}
	return c, nil
}

// AttachAfterPhoto records the photo taken after the issue was fixed.
func (s *Service) AttachAfterPhoto(ctx context.Context, id, ref string) (*Complaint, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty photo reference", ErrInvalidInput)
	}
	return s.store.Update(ctx, id, func(c *Complaint) error {
		c.AfterPhotoRef = ref
		return nil
	})
}

// EvaluateExport runs the export gate without changing the complaint.
func (s *Service) EvaluateExport(ctx context.Context, id string) (GateResult, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return GateResult{}, err
	}
	return EvaluateExportGate(c), nil
}

// PrepareExport runs the export gate and marks the complaint PREPARED when it passes.
// A rejection is returned as a GateResult with OK false, not as an error.
func (s *Service) PrepareExport(ctx context.Context, id string) (GateResult, error) {
	ctx, span := tracer.Start(ctx, "triage.PrepareExport", trace.WithAttributes(
		attribute.String("complaint.id", id),
	))
	defer span.End()

	var gate GateResult
	_, err := s.store.Update(ctx, id, func(c *Complaint) error {
		gate = EvaluateExportGate(c)
		if !gate.OK {
			return nil
		}
		if !c.ExportStatus.CanTransition(ExportPrepared) {
			return fmt.Errorf("%w: export %s -> %s", ErrInvalidTransition, exportStatusName(c.ExportStatus), ExportPrepared)
		}
		c.ExportStatus = ExportPrepared
		gate.Payload.ExportStatus = ExportPrepared
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GateResult{}, err
	}

	if s.hooks.OnGate != nil {
		s.hooks.OnGate(gate.OK, gate.Reasons)
	}
	span.SetAttributes(attribute.Bool("export.gate_ok", gate.OK))
	return gate, nil
}

// ExportPayload returns the payload of a prepared complaint.
func (s *Service) ExportPayload(ctx context.Context, id string) (*ExportPayload, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.ExportStatus == ExportNone {
		return nil, ErrExportNotPrepared
	}
	return BuildExportPayload(c), nil
}

// SendExport writes the prepared payload through the Exporter and records a stub delivery.
// A write failure moves the export to FAILED; it can be prepared again afterwards.
func (s *Service) SendExport(ctx context.Context, id string) (*SendReceipt, error) {
	ctx, span := tracer.Start(ctx, "triage.SendExport", trace.WithAttributes(
		attribute.String("complaint.id", id),
	))
	defer span.End()

	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkSendable(c); err != nil {
		return nil, err
	}

	payload := BuildExportPayload(c)
	var ref string
	var writeErr error
	if s.exporter != nil {
		ref, writeErr = s.exporter.Export(ctx, payload)
	}

	now := s.now().UTC()
	updated, err := s.store.Update(ctx, id, func(c *Complaint) error {
		if err := checkSendable(c); err != nil {
			return err
		}
		if writeErr != nil {
			c.ExportStatus = ExportFailed
			return nil
		}
		c.ExportStatus = ExportStubSent
		c.ExportedAt = now
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if s.hooks.OnExportSend != nil {
		s.hooks.OnExportSend(updated.ExportStatus)
	}

	if writeErr != nil {
		span.RecordError(writeErr)
		span.SetStatus(codes.Error, writeErr.Error())
		s.logger.Error(ctx, writeErr, "export write failed", "complaint_id", id)
		return nil, fmt.Errorf("export write: %w", writeErr)
	}

	s.logger.Info(ctx, "export stub sent", "complaint_id", id, "export_ref", ref)
	s.notify(ctx, s.logger.With("complaint_id", id), EventExportSent, updated)

	return &SendReceipt{
		ComplaintID: id,
		Mode:        "stub",
		Delivered:   false,
		Status:      updated.ExportStatus,
		SentAt:      now,
		ExportRef:   ref,
		Message:     stubSendMessage,
	}, nil
}

func checkSendable(c *Complaint) error {
	if c.ExportStatus == ExportNone {
		return ErrExportNotPrepared
	}
	if !c.ExportStatus.CanTransition(ExportStubSent) {
		return fmt.Errorf("%w: export %s -> %s", ErrInvalidTransition, c.ExportStatus, ExportStubSent)
	}
	return nil
}

func exportStatusName(s ExportStatus) string {
	if s == ExportNone {
		return "none"
	}
	return string(s)
}

// Summary counts all complaints by status, category and priority.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(all), nil
}

// Trends returns daily submission counts for the last days UTC dates.
func (s *Service) Trends(ctx context.Context, days int) (Trends, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Trends{}, err
	}
	return TrendSeries(all, days, s.now()), nil
}

// Heatmap groups geolocated complaints into cells of cellSize degrees.
func (s *Service) Heatmap(ctx context.Context, cellSize float64) (Heatmap, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return Heatmap{}, err
	}
	return BuildHeatmap(all, cellSize), nil
}

func (s *Service) notify(ctx context.Context, L log.Logger, event Event, c *Complaint) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, c); err != nil {
		L.Error(ctx, err, "notification failed", "event", event)
	}
}

func (s *Service) fireSubmit(e *SubmitEvent) {
	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(e)
	}
}
