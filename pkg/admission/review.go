package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/DrSkyle/fsgroup-psp/pkg/policy"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

// patchOperation is a single RFC 6902 operation.
type patchOperation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value,omitempty"`
}

// Review answers an admission.k8s.io/v1 AdmissionReview. Only core/v1 Pods are
// evaluated; everything else is allowed untouched.
func (v *Validator) Review(ctx context.Context, review *admissionv1.AdmissionReview, s settings.Settings) (*admissionv1.AdmissionReview, error) {
	if review == nil || review.Request == nil {
		return nil, fmt.Errorf("%w: admission review without request", ErrBadRequest)
	}
	req := review.Request

	out := &admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{APIVersion: admissionv1.SchemeGroupVersion.String(), Kind: "AdmissionReview"},
		Response: &admissionv1.AdmissionResponse{UID: req.UID, Allowed: true},
	}

	if req.Kind.Group != "" || req.Kind.Kind != "Pod" {
		return out, nil
	}

	ctx, span := v.tracer.Start(ctx, "Validator.Review")
	defer span.End()

	start := time.Now()
	workload, err := policy.DecodeWorkload(req.Object.Raw)
	if err != nil {
		v.logger.Debug("Object is not a pod, accepting", "uid", req.UID, "error", err)
		v.metrics.ObservePassthrough()
		return out, nil
	}

	outcome, err := policy.Decide(workload, s)
	if err != nil {
		v.metrics.ObserveDecision(ctx, "error", time.Since(start))
		span.RecordError(err)
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}
	v.metrics.ObserveDecision(ctx, outcome.Kind(), time.Since(start))
	v.logger.Info("Policy decision",
		"uid", string(req.UID),
		"namespace", req.Namespace,
		"name", workload.Name(),
		"operation", string(req.Operation),
		"outcome", outcome.Kind(),
	)

	switch o := outcome.(type) {
	case policy.Accept:
	case policy.Reject:
		out.Response.Allowed = false
		out.Response.Result = &metav1.Status{
			Status:  metav1.StatusFailure,
			Message: o.Message,
			Reason:  metav1.StatusReasonForbidden,
			Code:    http.StatusForbidden,
		}
	case policy.Mutate:
		patch, err := fsGroupPatch(workload, o.Workload)
		if err != nil {
			return nil, err
		}
		pt := admissionv1.PatchTypeJSONPatch
		out.Response.Patch = patch
		out.Response.PatchType = &pt
	default:
		return nil, fmt.Errorf("unexpected policy outcome %T", outcome)
	}
	return out, nil
}

// fsGroupPatch builds the single add operation that turns original into mutated.
func fsGroupPatch(original, mutated *policy.Workload) ([]byte, error) {
	fsGroup, ok := mutated.FSGroup()
	if !ok {
		return nil, fmt.Errorf("mutated workload has no fsGroup")
	}

	op := patchOperation{Op: "add", Path: "/spec/securityContext/fsGroup", Value: fsGroup}
	if !original.HasSecurityContext() {
		op = patchOperation{Op: "add", Path: "/spec/securityContext", Value: map[string]int64{"fsGroup": fsGroup}}
	}

	return json.Marshal([]patchOperation{op})
}
