package admission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrSkyle/fsgroup-psp/pkg/metrics"
	"github.com/DrSkyle/fsgroup-psp/pkg/policy"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

// ErrBadRequest wraps envelope decoding failures.
var ErrBadRequest = errors.New("bad request")

// Validator runs the policy for one host request at a time. It holds no per-request
// state and is safe for concurrent use.
type Validator struct {
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *metrics.Recorder
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) {
		if l != nil {
			v.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(v *Validator) {
		v.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(v *Validator) {
		if t != nil {
			v.tracer = t
		}
	}
}

func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		logger: slog.Default(),
		tracer: otel.Tracer("fsgroup-psp/admission"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate handles a validate call: it decodes the envelope and evaluates the object
// with the settings carried in it.
func (v *Validator) Validate(ctx context.Context, payload []byte) (*ValidationResponse, error) {
	var req ValidationRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, fmt.Errorf("%w: invalid validation request: %v", ErrBadRequest, err)
	}
	return v.Evaluate(ctx, req.Request, req.Settings)
}

// Evaluate decides one request. Objects that do not decode as a Pod are accepted without
// running the policy. Engine failures are returned as errors, never as rejections.
func (v *Validator) Evaluate(ctx context.Context, req Request, s settings.Settings) (*ValidationResponse, error) {
	ctx, span := v.tracer.Start(ctx, "Validator.Evaluate", trace.WithAttributes(
		attribute.String("request.uid", req.UID),
		attribute.String("request.namespace", req.Namespace),
		attribute.String("policy.rule", s.Active().String()),
	))
	defer span.End()

	start := time.Now()
	workload, err := policy.DecodeWorkload(req.Object)
	if err != nil {
		v.logger.Debug("Object is not a pod, accepting", "uid", req.UID, "error", err)
		v.metrics.ObservePassthrough()
		span.SetAttributes(attribute.Bool("policy.passthrough", true))
		return AcceptRequest(), nil
	}

	outcome, err := policy.Decide(workload, s)
	if err != nil {
		v.metrics.ObserveDecision(ctx, "error", time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "policy evaluation failed")
		v.logger.Error("Policy evaluation failed", "uid", req.UID, "namespace", workload.Namespace(), "name", workload.Name(), "error", err)
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	v.metrics.ObserveDecision(ctx, outcome.Kind(), time.Since(start))
	span.SetAttributes(attribute.String("policy.outcome", outcome.Kind()))
	v.logger.Info("Policy decision",
		"uid", req.UID,
		"namespace", workload.Namespace(),
		"name", workload.Name(),
		"rule", s.Active().String(),
		"outcome", outcome.Kind(),
	)

	switch o := outcome.(type) {
	case policy.Accept:
		return AcceptRequest(), nil
	case policy.Reject:
		return RejectRequest(o.Message, 0), nil
	case policy.Mutate:
		return MutateRequest(o.Workload.Object()), nil
	default:
		return nil, fmt.Errorf("unexpected policy outcome %T", outcome)
	}
}

// ValidateSettings handles a validate_settings call.
func (v *Validator) ValidateSettings(payload []byte) *SettingsValidationResponse {
	s, err := settings.Parse(payload)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		msg := err.Error()
		v.metrics.ObserveSettingsValidation(false)
		v.logger.Warn("Settings rejected", "error", msg)
		return &SettingsValidationResponse{Valid: false, Message: &msg}
	}
	v.metrics.ObserveSettingsValidation(true)
	return &SettingsValidationResponse{Valid: true}
}

// ProtocolVersion handles a protocol_version call.
func (v *Validator) ProtocolVersion() string {
	return ProtocolVersion
}
