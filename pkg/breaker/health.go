package breaker

import "fmt"

// Health summarises the tracker state.
type Health struct {
	Healthy        bool     `json:"healthy"`
	Warnings       []string `json:"warnings"`
	CriticalIssues []string `json:"criticalIssues"`
}

// Health reports every open context as critical and every context at or
// above the warning level as a warning. Records whose window has elapsed are
// ignored.
func (t *Tracker) Health() Health {
	now := t.clock.Now()
	h := Health{Warnings: []string{}, CriticalIssues: []string{}}
	for _, rec := range t.Records() {
		if now.Sub(rec.LastOccurrence) > t.cfg.Window {
			continue
		}
		threshold := t.ThresholdFor(rec.Context)
		switch {
		case rec.Count >= threshold:
			h.CriticalIssues = append(h.CriticalIssues,
				fmt.Sprintf("%s: circuit open after %d errors (threshold %d): %s", rec.Context, rec.Count, threshold, rec.LastError))
		case rec.Count >= t.cfg.WarnAt:
			h.Warnings = append(h.Warnings,
				fmt.Sprintf("%s: %d recent errors: %s", rec.Context, rec.Count, rec.LastError))
		}
	}
	h.Healthy = len(h.CriticalIssues) == 0
	return h
}
