package util_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/derickschaefer/sonarboard/internal/util"
)

func TestParseTimestampSonarOffset(t *testing.T) {
	got, err := util.ParseTimestamp("2024-01-01T22:30:00-0300")
	if err != nil {
		t.Fatalf("ParseTimestamp: %v", err)
	}
	want := time.Date(2024, 1, 2, 1, 30, 0, 0, time.UTC)
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestParseTimestampVariants(t *testing.T) {
	for _, s := range []string{
		"2024-03-05",
		"2024-03-05T08:00:00Z",
		"2024-03-05T08:00:00.123+0000",
		"2024-03-05T08:00:00",
	} {
		got, err := util.ParseTimestamp(s)
		if err != nil {
			t.Errorf("%q: unexpected error %v", s, err)
			continue
		}
		if util.FormatDate(got) != "2024-03-05" {
			t.Errorf("%q: expected date 2024-03-05, got %s", s, util.FormatDate(got))
		}
	}
}

func TestParseTimestampInvalid(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2024-13-01", "Invalid Date"} {
		if _, err := util.ParseTimestamp(s); err == nil {
			t.Errorf("%q: expected error", s)
		}
	}
}

func TestParseDate(t *testing.T) {
	if _, err := util.ParseDate("2024-02-30"); err == nil {
		t.Error("expected error for impossible date")
	}
	d, err := util.ParseDate(" 2024-02-29 ")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.Day() != 29 {
		t.Errorf("expected day 29, got %d", d.Day())
	}
}

func TestParseMetricValue(t *testing.T) {
	cases := map[string]float64{
		"12":    12,
		" 87.5": 87.5,
		"3.4%":  3.4,
		"0":     0,
	}
	for in, want := range cases {
		if got := util.ParseMetricValue(in); got != want {
			t.Errorf("%q: expected %v, got %v", in, want, got)
		}
	}
	for _, in := range []string{"", "A", "n/a"} {
		if got := util.ParseMetricValue(in); !math.IsNaN(got) {
			t.Errorf("%q: expected NaN, got %v", in, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	if got := util.FormatValue(math.NaN()); got != "." {
		t.Errorf("NaN: expected \".\", got %q", got)
	}
	if got := util.FormatValue(4); got != "4" {
		t.Errorf("expected 4, got %q", got)
	}
	if got := util.FormatValue(2.5); got != "2.5" {
		t.Errorf("expected 2.5, got %q", got)
	}
}

func TestSplitList(t *testing.T) {
	got := util.SplitList("bugs, coverage,,bugs", "code_smells")
	want := []string{"bugs", "coverage", "code_smells"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d]: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestMultiError(t *testing.T) {
	var m util.MultiError
	if m.Err() != nil {
		t.Fatal("empty MultiError should be nil")
	}
	sentinel := errors.New("boom")
	m.Add(nil)
	m.Add(sentinel)
	m.Add(errors.New("bang"))
	err := m.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "boom; bang" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the collected sentinel")
	}
}
