package domain

// Progress is an immutable snapshot reported after every unit of work.
type Progress struct {
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Status    string `json:"status"`
}

// Fraction returns Completed/Total in [0, 1]. An empty batch counts as done.
func (p Progress) Fraction() float64 {
	if p.Total <= 0 {
		return 1
	}
	f := float64(p.Completed) / float64(p.Total)
	if f > 1 {
		return 1
	}
	return f
}

// Done reports whether every unit of work has been accounted for.
func (p Progress) Done() bool {
	return p.Completed >= p.Total
}

// ProgressFunc receives progress snapshots. A nil ProgressFunc discards them.
type ProgressFunc func(Progress)

// Report delivers a snapshot if f is non-nil.
func (f ProgressFunc) Report(p Progress) {
	if f != nil {
		f(p)
	}
}
