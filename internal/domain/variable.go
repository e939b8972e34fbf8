package domain

// VariableDeclaration declares an exercise variable with its initializer
type VariableDeclaration struct {
	ID          VariableID `json:"id"`
	Name        string     `json:"name"`
	Initializer Expression `json:"initializer"`
}

// VariableUpdate assigns the result of Expression to the referenced declaration
type VariableUpdate struct {
	Variable   VariableID `json:"variable"`
	Expression Expression `json:"expression"`
}

// Moment identifies the stage lifecycle event a list of updates is attached to
type Moment string

const (
	MomentEnter       Moment = "on_enter"
	MomentBeforeCheck Moment = "before_check"
	MomentAfterCheck  Moment = "after_check"
	MomentNormalExit  Moment = "on_normal_exit"
	MomentRepeat      Moment = "on_repeat"
	MomentSkip        Moment = "on_skip"
)

// Moments returns every lifecycle moment in execution order
func Moments() []Moment {
	return []Moment{
		MomentEnter,
		MomentBeforeCheck,
		MomentAfterCheck,
		MomentNormalExit,
		MomentRepeat,
		MomentSkip,
	}
}

// IsValid returns true if m is a known moment
func (m Moment) IsValid() bool {
	for _, known := range Moments() {
		if m == known {
			return true
		}
	}
	return false
}
