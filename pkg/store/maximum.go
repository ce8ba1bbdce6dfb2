package store

import "time"

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) day {
	y, m, d := t.Date()
	return day{year: y, month: m, day: d}
}

type dailyMaximum struct {
	max float64
	day day
}

// RecordIfGreater folds v into the daily maximum for metric and returns the
// maximum. On the first read of a new local day (however many days passed
// since the last read) the maximum restarts at v.
func (s *Store) RecordIfGreater(metric string, v float64) float64 {
	today := dayOf(s.now().In(s.loc))

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.maxima[metric]
	if !ok {
		m = &dailyMaximum{max: v, day: today}
		s.maxima[metric] = m
		return m.max
	}
	if m.day != today {
		m.max = v
		m.day = today
	}
	if v > m.max {
		m.max = v
	}
	return m.max
}

// Maximum returns the daily maximum for metric without a new sample. An
// entry from a previous day is discarded and reported as missing.
func (s *Store) Maximum(metric string) (float64, bool) {
	today := dayOf(s.now().In(s.loc))

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.maxima[metric]
	if !ok {
		return 0, false
	}
	if m.day != today {
		delete(s.maxima, metric)
		return 0, false
	}
	return m.max, true
}

// MaximumCount returns how many metrics currently track a maximum.
func (s *Store) MaximumCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.maxima)
}
