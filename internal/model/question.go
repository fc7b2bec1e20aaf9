package model

// QuestionType is the section a question belongs to.
type QuestionType string

const (
	QuestionTypeObjective     QuestionType = "objective"
	QuestionTypeTheory        QuestionType = "theory"
	QuestionTypeComprehension QuestionType = "comprehension"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionTypeObjective, QuestionTypeTheory, QuestionTypeComprehension:
		return true
	}
	return false
}

// Question is one assessable item of an exam.
// For objective questions Correct holds the literal text of the right option.
type Question struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Image    string       `json:"image,omitempty"`
	Options  []string     `json:"options,omitempty"`
	Correct  string       `json:"correct,omitempty"`
	MaxScore int          `json:"max_score"`
}

// QuestionForStudent is a question without the answer key.
type QuestionForStudent struct {
	ID       string       `json:"id"`
	Type     QuestionType `json:"type"`
	Text     string       `json:"text"`
	Image    string       `json:"image,omitempty"`
	Options  []string     `json:"options,omitempty"`
	MaxScore int          `json:"max_score"`
}

// ForStudent drops the correct option.
func (q Question) ForStudent() QuestionForStudent {
	return QuestionForStudent{
		ID:       q.ID,
		Type:     q.Type,
		Text:     q.Text,
		Image:    q.Image,
		Options:  q.Options,
		MaxScore: q.MaxScore,
	}
}

// QuestionInput is one question in an ExamInput.
type QuestionInput struct {
	ID       string       `json:"id" binding:"omitempty,max=64"`
	Type     QuestionType `json:"type" binding:"required,question_type"`
	Text     string       `json:"text" binding:"required,max=20000"`
	Image    string       `json:"image" binding:"omitempty,url,max=2048"`
	Options  []string     `json:"options" binding:"omitempty,max=10,dive,max=2000"`
	Correct  string       `json:"correct" binding:"omitempty,max=2000"`
	MaxScore int          `json:"max_score" binding:"omitempty,min=0,max=1000"`
}
