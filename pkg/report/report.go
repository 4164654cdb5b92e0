// Package report holds the result of a cluster audit and its export formats.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/DrSkyle/fsgroup-psp/pkg/storage"
)

// Outcome of evaluating one Pod. Mirrors policy outcome kinds plus OutcomeError.
const (
	OutcomeAccept = "accept"
	OutcomeReject = "reject"
	OutcomeMutate = "mutate"
	OutcomeError  = "error"
)

// Finding is the verdict for one Pod.
type Finding struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Outcome   string `json:"outcome" yaml:"outcome"`
	// FSGroup is the Pod's current value, or the value it would be given on mutate.
	FSGroup *int64 `json:"fs_group,omitempty" yaml:"fs_group,omitempty"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

type Summary struct {
	Total    int `json:"total" yaml:"total"`
	Accepted int `json:"accepted" yaml:"accepted"`
	Rejected int `json:"rejected" yaml:"rejected"`
	Mutated  int `json:"mutated" yaml:"mutated"`
	Errors   int `json:"errors" yaml:"errors"`
}

// AuditReport is the result of one audit run.
type AuditReport struct {
	ID          uuid.UUID `json:"id" yaml:"id"`
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Rule        string    `json:"rule" yaml:"rule"`
	Namespace   string    `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Findings    []Finding `json:"findings" yaml:"findings"`
	Summary     Summary   `json:"summary" yaml:"summary"`
}

// New starts an empty report for rule.
func New(rule, namespace string) *AuditReport {
	return &AuditReport{
		ID:          uuid.New(),
		GeneratedAt: time.Now().UTC(),
		Rule:        rule,
		Namespace:   namespace,
		Findings:    []Finding{},
	}
}

// Add records a finding and updates the summary.
func (r *AuditReport) Add(f Finding) {
	r.Findings = append(r.Findings, f)
	r.Summary.Total++
	switch f.Outcome {
	case OutcomeAccept:
		r.Summary.Accepted++
	case OutcomeReject:
		r.Summary.Rejected++
	case OutcomeMutate:
		r.Summary.Mutated++
	default:
		r.Summary.Errors++
	}
}

// Sort orders findings by namespace, then name.
func (r *AuditReport) Sort() {
	sort.SliceStable(r.Findings, func(i, j int) bool {
		if r.Findings[i].Namespace != r.Findings[j].Namespace {
			return r.Findings[i].Namespace < r.Findings[j].Namespace
		}
		return r.Findings[i].Name < r.Findings[j].Name
	})
}

func (r *AuditReport) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func (r *AuditReport) YAML() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CSV writes one row per finding.
func (r *AuditReport) CSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"Namespace", "Name", "Outcome", "FSGroup", "Message"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, f := range r.Findings {
		fsGroup := ""
		if f.FSGroup != nil {
			fsGroup = strconv.FormatInt(*f.FSGroup, 10)
		}
		if err := w.Write([]string{f.Namespace, f.Name, f.Outcome, fsGroup, f.Message}); err != nil {
			return nil, err
		}
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// Encode renders the report in format: json, yaml or csv.
func (r *AuditReport) Encode(format string) ([]byte, error) {
	switch format {
	case "json":
		return r.JSON()
	case "yaml":
		return r.YAML()
	case "csv":
		return r.CSV()
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

// Key is the storage key of the report in format.
func (r *AuditReport) Key(format string) string {
	return fmt.Sprintf("audits/%s.%s", r.ID, format)
}

// Export writes the report to store and returns its key.
func (r *AuditReport) Export(ctx context.Context, store storage.BlobStore, format string) (string, error) {
	data, err := r.Encode(format)
	if err != nil {
		return "", err
	}
	key := r.Key(format)
	if err := store.Put(ctx, key, data); err != nil {
		return "", fmt.Errorf("failed to export report: %w", err)
	}
	return key, nil
}
