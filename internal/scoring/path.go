package scoring

import "github.com/ccogit/JACK3-Competencies-sub004/internal/domain"

// Path is the sequence of stage results that count for a submission. A
// result recorded after a repeat replaces the result of the repeated stage.
// Path is not safe for concurrent use.
type Path struct {
	results []StageResult
	replace bool
}

// Add records a result. If the previous stage was repeated, its result is
// replaced.
func (p *Path) Add(r StageResult) {
	if p.replace && len(p.results) > 0 {
		p.results = p.results[:len(p.results)-1]
	}
	p.replace = false
	p.results = append(p.results, r)
}

// Repeat marks the last result as superseded by the next one
func (p *Path) Repeat() {
	p.replace = true
}

// Erase drops the latest result of stage and everything recorded after it.
// It reports whether the stage was on the path.
func (p *Path) Erase(stage domain.StageID) bool {
	for i := len(p.results) - 1; i >= 0; i-- {
		if p.results[i].Stage == stage {
			p.results = p.results[:i]
			p.replace = false
			return true
		}
	}
	return false
}

// Last returns the most recent result
func (p *Path) Last() (StageResult, bool) {
	if len(p.results) == 0 {
		return StageResult{}, false
	}
	return p.results[len(p.results)-1], true
}

// Len returns the number of counted results
func (p *Path) Len() int { return len(p.results) }

// Results returns a copy of the counted results in order
func (p *Path) Results() []StageResult {
	return append([]StageResult(nil), p.results...)
}
