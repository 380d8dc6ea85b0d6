package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the summary encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat maps a flag value to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q", s)
	}
}

// WriteSummary encodes s for the named scenario.
func WriteSummary(w io.Writer, scenario string, s Summary, f Format) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Scenario string `json:"scenario"`
			Summary
		}{scenario, s})
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(struct {
			Scenario string `yaml:"scenario"`
			Summary  `yaml:",inline"`
		}{scenario, s})
	case FormatText, "":
		return writeText(w, scenario, s)
	default:
		return fmt.Errorf("unknown report format %q", f)
	}
}

func writeText(w io.Writer, scenario string, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Message stats for scenario %s\nsim_time: %.4f\n", scenario, s.SimTime)
	rows := []struct {
		key string
		val any
	}{
		{"created", s.Created},
		{"started", s.Started},
		{"relayed", s.Relayed},
		{"aborted", s.Aborted},
		{"dropped", s.Dropped},
		{"removed", s.Removed},
		{"delivered", s.Delivered},
		{"delivery_prob", s.DeliveryProb},
		{"response_prob", s.ResponseProb},
		{"overhead_ratio", s.OverheadRatio},
		{"latency_avg", s.LatencyAvg},
		{"latency_med", s.LatencyMedian},
		{"hopcount_avg", s.HopCountAvg},
		{"hopcount_med", s.HopCountMedian},
		{"buffertime_avg", s.BufferTimeAvg},
		{"buffertime_med", s.BufferTimeMedian},
		{"rtt_avg", s.RTTAvg},
		{"rtt_med", s.RTTMedian},
	}
	for _, r := range rows {
		switch v := r.val.(type) {
		case float64:
			fmt.Fprintf(&b, "%s: %.4f\n", r.key, v)
		default:
			fmt.Fprintf(&b, "%s: %v\n", r.key, v)
		}
	}
	if len(s.Timeline) > 0 {
		b.WriteString("timeline:\n")
		for _, p := range s.Timeline {
			fmt.Fprintf(&b, "%.0f\t%d\t%d\t%.4f\t%.4f\n",
				p.Time, p.Created, p.Delivered, p.CumulativeProb, p.InstantaneousProb)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}
