package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"

	"github.com/DrSkyle/fsgroup-psp/pkg/policy"
	"github.com/DrSkyle/fsgroup-psp/pkg/report"
	"github.com/DrSkyle/fsgroup-psp/pkg/settings"
)

const resyncPeriod = 10 * time.Minute

type Auditor struct {
	Client *Client
	Logger *slog.Logger
}

func NewAuditor(client *Client, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		Client: client,
		Logger: logger,
	}
}

// Audit evaluates every live Pod in namespace (all namespaces when empty) against s.
// Nothing is written to the cluster.
func (a *Auditor) Audit(ctx context.Context, s settings.Settings, namespace string) (*report.AuditReport, error) {
	if a.Client == nil || a.Client.Clientset == nil {
		return nil, fmt.Errorf("no kubernetes client configured")
	}

	factory := informers.NewSharedInformerFactoryWithOptions(a.Client.Clientset, resyncPeriod,
		informers.WithNamespace(namespace),
	)
	podLister := factory.Core().V1().Pods().Lister()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		factory.Shutdown()
	}()

	factory.Start(ctx.Done())

	synced := factory.WaitForCacheSync(ctx.Done())
	for kind, ok := range synced {
		if !ok {
			return nil, fmt.Errorf("failed to sync informer for %v", kind)
		}
	}

	pods, err := podLister.List(labels.Everything())
	if err != nil {
		return nil, fmt.Errorf("failed to list pods from cache: %w", err)
	}

	r := report.New(s.Active().String(), namespace)
	for _, pod := range pods {
		// Finished Pods can no longer be admitted.
		if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
			continue
		}
		r.Add(a.evaluate(pod, s))
	}
	r.Sort()

	a.Logger.Info("Audit complete",
		"namespace", namespace,
		"rule", s.Active().String(),
		"total", r.Summary.Total,
		"rejected", r.Summary.Rejected,
		"mutated", r.Summary.Mutated,
	)
	return r, nil
}

func (a *Auditor) evaluate(pod *corev1.Pod, s settings.Settings) report.Finding {
	f := report.Finding{Namespace: pod.Namespace, Name: pod.Name}

	w, err := policy.NewWorkload(pod)
	if err != nil {
		f.Outcome, f.Message = report.OutcomeError, err.Error()
		return f
	}
	if v, ok := w.FSGroup(); ok {
		f.FSGroup = &v
	}

	outcome, err := policy.Decide(w, s)
	if err != nil {
		a.Logger.Warn("Policy evaluation failed", "namespace", pod.Namespace, "name", pod.Name, "error", err)
		f.Outcome, f.Message = report.OutcomeError, err.Error()
		return f
	}

	f.Outcome = outcome.Kind()
	switch o := outcome.(type) {
	case policy.Reject:
		f.Message = o.Message
	case policy.Mutate:
		if v, ok := o.Workload.FSGroup(); ok {
			f.FSGroup = &v
		}
	}
	return f
}
