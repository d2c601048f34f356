package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/absence-engine/generic"
	"github.com/warp/absence-engine/metrics"
	"github.com/warp/absence-engine/org"
)

// =============================================================================
// SERVICE - Request lifecycle over a Store
// =============================================================================

// Service creates absence requests and applies manager decisions.
type Service struct {
	store   Store
	builder *Builder
	logger  *zap.Logger
	metrics *metrics.Recorder
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option        { return func(s *Service) { s.logger = l } }
func WithMetrics(m *metrics.Recorder) Option { return func(s *Service) { s.metrics = m } }
func WithBuilder(b *Builder) Option          { return func(s *Service) { s.builder = b } }

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService returns a service with a no-op logger and no metrics unless
// options say otherwise.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		builder: NewBuilder(),
		logger:  zap.NewNop(),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRequest is the input of CreateRequest.
type NewRequest struct {
	User    generic.UserID
	Right   generic.RightID
	DTStart time.Time
	DTEnd   time.Time
}

// CreateRequest checks that the right applies to the user and dates,
// builds the approval steps from the user's department and saves the
// request. A request without steps is granted on creation.
func (s *Service) CreateRequest(ctx context.Context, in NewRequest) (*Request, error) {
	if !in.DTStart.IsZero() && !in.DTEnd.IsZero() {
		if err := (generic.Period{Start: in.DTStart, End: in.DTEnd}).Validate(); err != nil {
			s.metrics.RequestCreated("refused")
			return nil, err
		}
	}

	user, err := s.store.GetUser(ctx, in.User)
	if err != nil {
		return nil, err
	}
	right, err := s.store.GetRight(ctx, in.Right)
	if err != nil {
		return nil, err
	}

	if user.Account != nil && user.Account.Collection != "" {
		collection, err := s.store.GetCollection(ctx, user.Account.Collection)
		if err != nil {
			return nil, err
		}
		if !collection.Includes(right.ID) {
			s.metrics.RequestCreated("refused")
			return nil, fmt.Errorf("right %s is not in collection %s: %w", right.ID, collection.ID, generic.ErrRightNotApplicable)
		}
	}

	created := s.now()
	ev, err := right.Evaluate(user, in.DTStart, in.DTEnd, created)
	if err != nil {
		s.metrics.EligibilityChecked("error")
		s.logger.Error("eligibility check failed",
			zap.String("user_id", string(user.ID)),
			zap.String("right_id", string(right.ID)),
			zap.Error(err))
		return nil, err
	}
	if !ev.Applicable {
		s.metrics.EligibilityChecked("not_applicable")
		s.metrics.RequestCreated("refused")
		reason := ev.Reason
		for _, rule := range ev.Failed {
			s.metrics.RuleFailed(rule.Kind.String())
			if reason == "" {
				reason = fmt.Sprintf("rule %q does not validate", rule.Title)
			}
		}
		return nil, fmt.Errorf("right %s for user %s: %s: %w", right.ID, user.ID, reason, generic.ErrRightNotApplicable)
	}
	s.metrics.EligibilityChecked("applicable")

	departments, err := s.store.ListDepartments(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := org.NewTree(departments)
	if err != nil {
		return nil, err
	}
	steps, err := s.builder.Build(tree, user.Department)
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:          generic.RequestID(uuid.NewString()),
		User:        user.ID,
		Right:       right.ID,
		Department:  user.Department,
		DTStart:     in.DTStart,
		DTEnd:       in.DTEnd,
		TimeCreated: created,
		Steps:       steps,
	}
	if err := s.store.SaveRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("save request: %w", err)
	}

	status := req.Status()
	s.metrics.RequestCreated(string(status))
	s.logger.Info("absence request created",
		zap.String("request_id", string(req.ID)),
		zap.String("user_id", string(user.ID)),
		zap.String("right_id", string(right.ID)),
		zap.Int("steps", len(steps)),
		zap.Bool("auto_granted", status == StatusGranted))
	return req, nil
}

// Accept approves the current step of the request on behalf of actor.
func (s *Service) Accept(ctx context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID) (*Request, error) {
	return s.decide(ctx, requestID, stepID, actor, StepAccepted, "accept")
}

// Reject refuses the current step, which rejects the whole request.
func (s *Service) Reject(ctx context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID) (*Request, error) {
	return s.decide(ctx, requestID, stepID, actor, StepRejected, "reject")
}

func (s *Service) decide(ctx context.Context, requestID generic.RequestID, stepID generic.StepID, actor generic.UserID, to StepStatus, action string) (*Request, error) {
	req, err := s.store.TransitionStep(ctx, requestID, stepID, actor, to, s.now())
	if err != nil {
		var terr *generic.TransitionError
		if errors.As(err, &terr) {
			s.metrics.StepTransition(action, false)
			s.logger.Warn("approval action refused",
				zap.String("request_id", string(requestID)),
				zap.String("step_id", string(stepID)),
				zap.String("actor", string(actor)),
				zap.String("reason", terr.Reason))
		}
		return nil, err
	}

	s.metrics.StepTransition(action, true)
	s.logger.Info("approval step decided",
		zap.String("request_id", string(requestID)),
		zap.String("step_id", string(stepID)),
		zap.String("actor", string(actor)),
		zap.String("step_status", string(to)),
		zap.String("request_status", string(req.Status())))
	return req, nil
}

// WaitingRequestsFor lists the requests whose current step includes the
// manager, oldest first.
func (s *Service) WaitingRequestsFor(ctx context.Context, manager generic.UserID) ([]*Request, error) {
	pending, err := s.store.ListPendingRequests(ctx)
	if err != nil {
		return nil, err
	}

	var waiting []*Request
	for _, req := range pending {
		if req.WaitingFor(manager) {
			waiting = append(waiting, req)
		}
	}
	sort.Slice(waiting, func(i, j int) bool {
		if !waiting[i].TimeCreated.Equal(waiting[j].TimeCreated) {
			return waiting[i].TimeCreated.Before(waiting[j].TimeCreated)
		}
		return waiting[i].ID < waiting[j].ID
	})
	return waiting, nil
}
