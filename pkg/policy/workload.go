package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	utiljson "k8s.io/apimachinery/pkg/util/json"
)

// ErrUndecodable means the object is not a Pod shape. Callers pass such objects through.
var ErrUndecodable = errors.New("object cannot be decoded as a pod")

var fsGroupPath = []string{"spec", "securityContext", "fsGroup"}

// Workload is a Pod kept in unstructured form so that a mutated copy serializes in the
// same shape it arrived in.
type Workload struct {
	obj *unstructured.Unstructured
}

// DecodeWorkload decodes raw JSON and checks that it converts to a corev1.Pod.
func DecodeWorkload(raw []byte) (*Workload, error) {
	var obj map[string]interface{}
	if err := utiljson.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: empty object", ErrUndecodable)
	}

	var pod corev1.Pod
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj, &pod); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}

	w := &Workload{obj: &unstructured.Unstructured{Object: obj}}
	if w.hasFSGroupField() {
		if _, ok := w.FSGroup(); !ok {
			return nil, fmt.Errorf("%w: fsGroup is not a 64-bit integer", ErrUndecodable)
		}
	}
	return w, nil
}

// NewWorkload wraps a typed Pod, e.g. one read from an informer cache.
func NewWorkload(pod *corev1.Pod) (*Workload, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(pod)
	if err != nil {
		return nil, fmt.Errorf("failed to convert pod %s/%s: %w", pod.Namespace, pod.Name, err)
	}
	return &Workload{obj: &unstructured.Unstructured{Object: obj}}, nil
}

func (w *Workload) Name() string      { return w.obj.GetName() }
func (w *Workload) Namespace() string { return w.obj.GetNamespace() }

// Object exposes the underlying map. Callers must not modify it.
func (w *Workload) Object() map[string]interface{} {
	return w.obj.Object
}

// HasSpec reports whether the object carries a non-null spec section.
func (w *Workload) HasSpec() bool {
	spec, found, err := unstructured.NestedFieldNoCopy(w.obj.Object, "spec")
	if err != nil || !found {
		return false
	}
	_, ok := spec.(map[string]interface{})
	return ok
}

// HasSecurityContext reports whether spec.securityContext is present and non-null.
func (w *Workload) HasSecurityContext() bool {
	sc, found, err := unstructured.NestedFieldNoCopy(w.obj.Object, "spec", "securityContext")
	return err == nil && found && sc != nil
}

// hasFSGroupField reports whether fsGroup is present and non-null, whatever its type.
func (w *Workload) hasFSGroupField() bool {
	val, found, err := unstructured.NestedFieldNoCopy(w.obj.Object, fsGroupPath...)
	return err == nil && found && val != nil
}

// FSGroup returns spec.securityContext.fsGroup. A missing or null securityContext and a
// missing or null fsGroup both count as absent.
func (w *Workload) FSGroup() (int64, bool) {
	val, found, err := unstructured.NestedFieldNoCopy(w.obj.Object, fsGroupPath...)
	if err != nil || !found || val == nil {
		return 0, false
	}
	switch v := val.(type) {
	case int64:
		return v, true
	case float64:
		// 2^63 itself is not representable, hence the strict upper bound.
		if v == math.Trunc(v) && v >= math.MinInt64 && v < math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

// WithFSGroup returns a deep copy with spec.securityContext.fsGroup set to v. The
// securityContext is created when absent; its other fields are kept.
func (w *Workload) WithFSGroup(v int64) (*Workload, error) {
	out := w.obj.DeepCopy()

	if !w.HasSecurityContext() {
		if err := unstructured.SetNestedMap(out.Object, map[string]interface{}{"fsGroup": v}, "spec", "securityContext"); err != nil {
			return nil, fmt.Errorf("failed to create securityContext: %w", err)
		}
		return &Workload{obj: out}, nil
	}

	if err := unstructured.SetNestedField(out.Object, v, fsGroupPath...); err != nil {
		return nil, fmt.Errorf("failed to set fsGroup: %w", err)
	}
	return &Workload{obj: out}, nil
}

// Pod converts the workload to its typed form.
func (w *Workload) Pod() (*corev1.Pod, error) {
	var pod corev1.Pod
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(w.obj.Object, &pod); err != nil {
		return nil, err
	}
	return &pod, nil
}

func (w *Workload) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.obj.Object)
}
