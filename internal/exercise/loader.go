package exercise

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// ErrUnknownStageName is returned when a transition or the start stage names
// a stage that the file does not declare
var ErrUnknownStageName = errors.New("unknown stage name")

// ExerciseFile represents the YAML structure for an exercise
type ExerciseFile struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Language    string         `yaml:"language"`
	Difficulty  int            `yaml:"difficulty"`
	Tags        []string       `yaml:"tags"`
	HintMalus   string         `yaml:"hint_malus"`
	Start       string         `yaml:"start"`
	Variables   []VariableFile `yaml:"variables"`
	Stages      []StageFile    `yaml:"stages"`
}

// VariableFile declares a variable and its initializer
type VariableFile struct {
	Name   string `yaml:"name"`
	Init   string `yaml:"init"`
	Domain string `yaml:"domain"`
}

// StageFile describes one stage. Transitions refer to other stages by
// internal name.
type StageFile struct {
	Name            string                  `yaml:"name"`
	Kind            string                  `yaml:"kind"`
	Title           string                  `yaml:"title"`
	Task            string                  `yaml:"task"`
	SkipMessage     string                  `yaml:"skip_message"`
	AllowSkip       bool                    `yaml:"allow_skip"`
	Weight          int                     `yaml:"weight"`
	Hints           []HintFile              `yaml:"hints"`
	Updates         map[string][]UpdateFile `yaml:"updates"`
	Transitions     []TransitionFile        `yaml:"transitions"`
	SkipTransitions []TransitionFile        `yaml:"skip_transitions"`
	Default         *TransitionFile         `yaml:"default"`
}

// HintFile is a hint with its malus in percent
type HintFile struct {
	Text  string `yaml:"text"`
	Malus int    `yaml:"malus"`
}

// UpdateFile assigns an expression to a declared variable
type UpdateFile struct {
	Variable   string `yaml:"variable"`
	Expression string `yaml:"expression"`
	Domain     string `yaml:"domain"`
}

// TransitionFile is an outgoing edge. Without To and Repeat it ends the
// exercise.
type TransitionFile struct {
	To        string `yaml:"to"`
	Repeat    bool   `yaml:"repeat"`
	When      string `yaml:"when"`
	WhenStage string `yaml:"when_stage"`
	Domain    string `yaml:"domain"`
}

// CourseFile represents the YAML structure for a course
type CourseFile struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Language    string      `yaml:"language"`
	Scoring     string      `yaml:"scoring"`
	Exercises   []EntryFile `yaml:"exercises"`
	Folders     []string    `yaml:"folders"`
}

// EntryFile references an exercise by its slug
type EntryFile struct {
	Exercise string `yaml:"exercise"`
	Points   int    `yaml:"points"`
}

// Loader handles loading exercises and courses from YAML files laid out as
// basePath/exercises/<slug>.yaml and basePath/courses/<slug>.yaml
type Loader struct {
	basePath string
}

// NewLoader creates a new exercise loader
func NewLoader(basePath string) *Loader {
	return &Loader{basePath: basePath}
}

// BasePath returns the directory the loader reads from
func (l *Loader) BasePath() string {
	return l.basePath
}

// LoadExercise loads basePath/exercises/<slug>.yaml
func (l *Loader) LoadExercise(slug string) (*domain.Exercise, error) {
	return LoadExerciseFile(filepath.Join(l.basePath, "exercises", slug+".yaml"))
}

// LoadExerciseFile reads and parses a single exercise file
func LoadExerciseFile(path string) (*domain.Exercise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read exercise file: %w", err)
	}
	ex, err := ParseExercise(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return ex, nil
}

// ParseExercise builds an exercise from its YAML form. The result is
// validated.
func ParseExercise(data []byte) (*domain.Exercise, error) {
	var file ExerciseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse exercise file: %w", err)
	}
	return file.Build()
}

// Build converts the file into a live exercise
func (f *ExerciseFile) Build() (*domain.Exercise, error) {
	var id domain.ExerciseID
	if f.ID != "" {
		parsed, err := domain.NewExerciseIDFromString(f.ID)
		if err != nil {
			return nil, err
		}
		id = parsed
	}
	ex := domain.NewExerciseWithID(id, f.Name)
	ex.Meta.Description = f.Description
	ex.Meta.Language = f.Language
	ex.Meta.Tags = f.Tags
	diff, err := domain.NewDifficulty(f.Difficulty)
	if err != nil {
		return nil, err
	}
	ex.Meta.Difficulty = diff

	if f.HintMalus != "" {
		if err := ex.SetHintMalusType(domain.HintMalusType(strings.ToUpper(f.HintMalus))); err != nil {
			return nil, err
		}
	}

	vars := make(map[string]domain.VariableID, len(f.Variables))
	for _, v := range f.Variables {
		decl, err := ex.AddVariable(v.Name, expression(v.Init, v.Domain))
		if err != nil {
			return nil, err
		}
		vars[decl.Name] = decl.ID
	}

	// Stages are created first so that transitions can refer forward
	names := make(map[string]domain.StageID, len(f.Stages))
	ids := make([]domain.StageID, len(f.Stages))
	for i, sf := range f.Stages {
		s, err := ex.AddStage(domain.StageKind(strings.ToLower(sf.Kind)))
		if err != nil {
			return nil, fmt.Errorf("stage %d: %w", i+1, err)
		}
		if sf.Name != "" {
			if err := ex.EditStage(s.ID(), func(ed *domain.StageEditor) error {
				return ed.SetInternalName(sf.Name)
			}); err != nil {
				return nil, fmt.Errorf("stage %d: %w", i+1, err)
			}
		}
		names[s.InternalName()] = s.ID()
		ids[i] = s.ID()
	}

	for i, sf := range f.Stages {
		if err := ex.EditStage(ids[i], func(ed *domain.StageEditor) error {
			return sf.apply(ed, names, vars)
		}); err != nil {
			return nil, fmt.Errorf("stage %q: %w", stageName(ex, ids[i]), err)
		}
	}

	if f.Start != "" {
		id, ok := names[f.Start]
		if !ok {
			return nil, fmt.Errorf("start %q: %w", f.Start, ErrUnknownStageName)
		}
		if err := ex.SetStartStage(id); err != nil {
			return nil, err
		}
	}

	if err := ex.Validate(); err != nil {
		return nil, err
	}
	ex.GenerateSuffixWeights()
	return ex, nil
}

func (sf *StageFile) apply(ed *domain.StageEditor, names map[string]domain.StageID, vars map[string]domain.VariableID) error {
	ed.SetExternalName(sf.Title)
	ed.SetTaskDescription(sf.Task)
	ed.SetSkipMessage(sf.SkipMessage)
	ed.SetAllowSkip(sf.AllowSkip)
	if sf.Weight != 0 {
		if err := ed.SetWeight(sf.Weight); err != nil {
			return err
		}
	}
	for _, h := range sf.Hints {
		if err := ed.AddHint(domain.Hint{Text: h.Text, Malus: h.Malus}); err != nil {
			return err
		}
	}

	// Moments are applied in their lifecycle order, not map order
	for _, m := range domain.Moments() {
		for _, u := range sf.Updates[string(m)] {
			id, ok := vars[u.Variable]
			if !ok {
				return fmt.Errorf("%s update of %q: %w", m, u.Variable, domain.ErrUnknownVariable)
			}
			if err := ed.AddUpdate(m, domain.VariableUpdate{Variable: id, Expression: expression(u.Expression, u.Domain)}); err != nil {
				return err
			}
		}
	}
	for m := range sf.Updates {
		if !domain.Moment(m).IsValid() {
			return fmt.Errorf("unknown moment %q", m)
		}
	}

	for _, tf := range sf.Transitions {
		t, err := tf.transition(names)
		if err != nil {
			return err
		}
		if err := ed.AddStageTransition(t); err != nil {
			return err
		}
	}
	for _, tf := range sf.SkipTransitions {
		t, err := tf.transition(names)
		if err != nil {
			return err
		}
		if err := ed.AddSkipTransition(t); err != nil {
			return err
		}
	}
	if sf.Default != nil {
		t, err := sf.Default.transition(names)
		if err != nil {
			return err
		}
		return ed.SetDefaultTransition(t)
	}
	return nil
}

func (tf TransitionFile) transition(names map[string]domain.StageID) (domain.Transition, error) {
	var t domain.Transition
	switch {
	case tf.Repeat:
		t = domain.RepeatTransition()
	case tf.To != "":
		id, ok := names[tf.To]
		if !ok {
			return domain.Transition{}, fmt.Errorf("transition to %q: %w", tf.To, ErrUnknownStageName)
		}
		t = domain.TransitionTo(id)
	default:
		t = domain.EndTransition()
	}
	if tf.When != "" {
		t = t.When(expression(tf.When, tf.Domain))
	}
	if tf.WhenStage != "" {
		t = t.WhenStage(expression(tf.WhenStage, tf.Domain))
	}
	return t, nil
}

func expression(code, dialect string) domain.Expression {
	if strings.EqualFold(dialect, string(domain.DomainChem)) {
		return domain.ChemExpression(code)
	}
	return domain.MathExpression(code)
}

func stageName(ex *domain.Exercise, id domain.StageID) string {
	if s, ok := ex.Stage(id); ok {
		return s.InternalName()
	}
	return id.String()
}

// LoadCourse loads basePath/courses/<slug>.yaml. Entries name exercises by
// slug; resolve maps a slug to the id of a loaded exercise.
func (l *Loader) LoadCourse(slug string, resolve func(slug string) (domain.ExerciseID, bool)) (*domain.Course, error) {
	path := filepath.Join(l.basePath, "courses", slug+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course file: %w", err)
	}

	var file CourseFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse course file: %w", err)
	}

	var id domain.CourseID
	if file.ID != "" {
		parsed, err := domain.NewCourseIDFromString(file.ID)
		if err != nil {
			return nil, fmt.Errorf("course %s: %w", slug, err)
		}
		id = parsed
	}
	course := domain.NewCourseWithID(id, file.Name)
	course.Meta.Description = file.Description
	course.Meta.Language = file.Language
	if file.Scoring != "" {
		if err := course.SetScoringMode(domain.ScoringMode(strings.ToUpper(file.Scoring))); err != nil {
			return nil, fmt.Errorf("course %s: %w", slug, err)
		}
	}

	if len(file.Folders) > 0 {
		if len(file.Exercises) > 0 {
			return nil, fmt.Errorf("course %s: exercises and folders are exclusive", slug)
		}
		course.SetContentProvider(&domain.FolderProvider{Folders: file.Folders})
		return course, nil
	}

	for _, e := range file.Exercises {
		id, ok := resolve(e.Exercise)
		if !ok {
			return nil, fmt.Errorf("course %s: exercise %q: %w", slug, e.Exercise, domain.ErrExerciseNotFound)
		}
		if err := course.AddEntry(domain.CourseEntry{Exercise: id, Points: e.Points}); err != nil {
			return nil, fmt.Errorf("course %s: %w", slug, err)
		}
	}
	return course, nil
}

// ListSlugs returns the slugs of all YAML files in basePath/<kind>, sorted.
// A missing directory yields no slugs.
func (l *Loader) ListSlugs(kind string) ([]string, error) {
	dir := filepath.Join(l.basePath, kind)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s directory: %w", kind, err)
	}

	var slugs []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".yaml") {
			slugs = append(slugs, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Strings(slugs)
	return slugs, nil
}
