package domain

import "fmt"

// ScoringMode selects which submission of an exercise counts for the course
type ScoringMode string

const (
	ScoringBest ScoringMode = "BEST"
	ScoringLast ScoringMode = "LAST"
)

// FrozenRef points at a frozen exercise together with the revision of the
// live exercise it was frozen from
type FrozenRef struct {
	ID       ExerciseID `json:"id"`
	Revision int        `json:"revision"`
}

// CourseEntry is one exercise of a fixed course list
type CourseEntry struct {
	Exercise ExerciseID `json:"exercise"`
	Frozen   *FrozenRef `json:"frozen,omitempty"`
	Points   int        `json:"points"`
}

// ContentProvider supplies the exercises of a course. The set of providers
// is closed: FixedListProvider and FolderProvider.
type ContentProvider interface {
	isContentProvider()
}

// FixedListProvider enumerates course entries explicitly. Only courses with
// a fixed list can be frozen.
type FixedListProvider struct {
	Entries []CourseEntry
}

// FolderProvider draws exercises dynamically from folders
type FolderProvider struct {
	Folders []string
}

func (*FixedListProvider) isContentProvider() {}
func (*FolderProvider) isContentProvider()    {}

// PointSum returns the total points of all entries
func (p *FixedListProvider) PointSum() int {
	sum := 0
	for _, e := range p.Entries {
		sum += e.Points
	}
	return sum
}

// CourseMeta holds the scalar attributes of a course
type CourseMeta struct {
	Name        string
	Description string
	Language    string
}

// Course groups exercises and defines how their results are combined
type Course struct {
	id          CourseID
	Meta        CourseMeta
	scoringMode ScoringMode
	resources   []Resource
	provider    ContentProvider
}

// NewCourse creates an empty course backed by a fixed list
func NewCourse(name string) *Course {
	return &Course{
		id:          GenerateCourseID(),
		Meta:        CourseMeta{Name: name},
		scoringMode: ScoringLast,
		provider:    &FixedListProvider{},
	}
}

// NewCourseWithID creates an empty course with a known identity
func NewCourseWithID(id CourseID, name string) *Course {
	c := NewCourse(name)
	if !id.IsZero() {
		c.id = id
	}
	return c
}

func (c *Course) ID() CourseID                     { return c.id }
func (c *Course) ScoringMode() ScoringMode         { return c.scoringMode }
func (c *Course) ContentProvider() ContentProvider { return c.provider }

// SetScoringMode changes which submission counts
func (c *Course) SetScoringMode(m ScoringMode) error {
	if m != ScoringBest && m != ScoringLast {
		return fmt.Errorf("unknown scoring mode %q", m)
	}
	c.scoringMode = m
	return nil
}

// SetContentProvider replaces the content provider
func (c *Course) SetContentProvider(p ContentProvider) {
	c.provider = p
}

// AddEntry appends an exercise to the fixed list
func (c *Course) AddEntry(entry CourseEntry) error {
	fixed, ok := c.provider.(*FixedListProvider)
	if !ok {
		return fmt.Errorf("add course entry: course does not use a fixed list")
	}
	if entry.Points < 0 {
		return fmt.Errorf("add course entry: negative points %d", entry.Points)
	}
	fixed.Entries = append(fixed.Entries, entry)
	return nil
}

// Entries returns the fixed list entries. The second result is false for
// dynamic content providers.
func (c *Course) Entries() ([]CourseEntry, bool) {
	fixed, ok := c.provider.(*FixedListProvider)
	if !ok {
		return nil, false
	}
	return copyEntries(fixed.Entries), true
}

// AddResource attaches a file to the course
func (c *Course) AddResource(filename, mediaType string, content []byte) Resource {
	r := Resource{
		ID:        GenerateResourceID(),
		Filename:  filename,
		MediaType: mediaType,
		Content:   append([]byte(nil), content...),
	}
	c.resources = append(c.resources, r)
	return r
}

// Resources returns the course resources
func (c *Course) Resources() []Resource {
	return append([]Resource(nil), c.resources...)
}

func copyEntries(entries []CourseEntry) []CourseEntry {
	out := make([]CourseEntry, len(entries))
	for i, e := range entries {
		out[i] = e
		if e.Frozen != nil {
			ref := *e.Frozen
			out[i].Frozen = &ref
		}
	}
	return out
}
