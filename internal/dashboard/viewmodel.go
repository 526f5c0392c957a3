package dashboard

import (
	"fmt"
	"math"
	"time"

	"github.com/derickschaefer/sonarboard/internal/model"
	"github.com/derickschaefer/sonarboard/internal/util"
)

const (
	placeholder = "-"
	noRating    = "N/A"
)

// SnapshotMetrics are the measures a snapshot is built from.
var SnapshotMetrics = []string{
	"bugs", "vulnerabilities", "code_smells", "security_hotspots",
	"coverage", "duplicated_lines_density",
	"reliability_rating", "security_rating", "sqale_rating",
}

// ViewModel is everything a renderer needs to draw the dashboard.
type ViewModel struct {
	Component         string `json:"component"`
	LastUpdate        string `json:"last_update"`
	Bugs              string `json:"bugs"`
	Vulnerabilities   string `json:"vulnerabilities"`
	CodeSmells        string `json:"code_smells"`
	SecurityHotspots  string `json:"security_hotspots"`
	Coverage          string `json:"coverage"`
	DuplicatedLines   string `json:"duplicated_lines"`
	ReliabilityRating string `json:"reliability_rating"`
	SecurityRating    string `json:"security_rating"`
	MaintainRating    string `json:"maintainability_rating"`
	Loading           bool   `json:"loading"`
	HistoryLoading    bool   `json:"history_loading"`
	HasSnapshot       bool   `json:"has_snapshot"`
	Message           string `json:"message,omitempty"`
}

// NewViewModel projects a snapshot into display strings. A nil snapshot
// yields placeholders.
func NewViewModel(s *model.MetricSnapshot) ViewModel {
	vm := ViewModel{
		Component:         placeholder,
		LastUpdate:        placeholder,
		Bugs:              placeholder,
		Vulnerabilities:   placeholder,
		CodeSmells:        placeholder,
		SecurityHotspots:  placeholder,
		Coverage:          placeholder,
		DuplicatedLines:   placeholder,
		ReliabilityRating: noRating,
		SecurityRating:    noRating,
		MaintainRating:    noRating,
	}
	if s == nil {
		return vm
	}
	vm.HasSnapshot = true
	vm.Component = s.ProjectKey
	if !s.QueriedAt.IsZero() {
		vm.LastUpdate = s.QueriedAt.Format("2006-01-02 15:04:05")
	}
	vm.Bugs = model.Count(s.Bugs, "0")
	vm.Vulnerabilities = model.Count(s.Vulnerabilities, "0")
	vm.CodeSmells = model.Count(s.CodeSmells, "0")
	vm.SecurityHotspots = model.Count(s.SecurityHotspots, "0")
	vm.Coverage = orDefault(s.Coverage, "0%")
	vm.DuplicatedLines = orDefault(s.DuplicatedLines, "0%")
	vm.ReliabilityRating = RatingLetter(s.ReliabilityRating)
	vm.SecurityRating = RatingLetter(s.SecurityRating)
	vm.MaintainRating = RatingLetter(s.SqaleRating)
	return vm
}

// ViewModel returns the current view of st.
func (st *State) ViewModel() ViewModel {
	vm := NewViewModel(st.Latest())
	vm.Loading = st.Current.Busy()
	vm.HistoryLoading = st.History.Busy()
	vm.Message = st.Message()
	return vm
}

// RatingLetter maps SonarQube's 1.0–5.0 rating scale to A–E.
// Empty or unrecognised values render as N/A.
func RatingLetter(raw string) string {
	v := util.ParseMetricValue(raw)
	if math.IsNaN(v) {
		return noRating
	}
	n := int(math.Round(v))
	if n < 1 || n > 5 {
		return noRating
	}
	return string(rune('A' + n - 1))
}

// ─── Snapshot ─────────────────────────────────────────────────────────────────

// BuildSnapshot turns a measures payload into a snapshot taken at at.
// Counts are truncated to integers and percentages formatted with one
// decimal; measures the payload lacks stay absent.
func BuildSnapshot(resp *model.MeasuresResponse, component string, at time.Time) *model.MetricSnapshot {
	s := &model.MetricSnapshot{ProjectKey: component, QueriedAt: at}
	if resp == nil {
		return s
	}
	if resp.Component.Key != "" {
		s.ProjectKey = resp.Component.Key
	}
	vals := resp.Values()

	count := func(metric string) *int {
		v := util.ParseMetricValue(vals[metric])
		if math.IsNaN(v) {
			return nil
		}
		n := int(v)
		return &n
	}
	pct := func(metric string) string {
		v := util.ParseMetricValue(vals[metric])
		if math.IsNaN(v) {
			return ""
		}
		return fmt.Sprintf("%.1f%%", v)
	}

	s.Bugs = count("bugs")
	s.Vulnerabilities = count("vulnerabilities")
	s.CodeSmells = count("code_smells")
	s.SecurityHotspots = count("security_hotspots")
	s.Coverage = pct("coverage")
	s.DuplicatedLines = pct("duplicated_lines_density")
	s.ReliabilityRating = vals["reliability_rating"]
	s.SecurityRating = vals["security_rating"]
	s.SqaleRating = vals["sqale_rating"]
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
