package validator

// VariantInput is one answer option as submitted by an administrator
type VariantInput struct {
	Letter string `json:"letter" form:"letter" validate:"required,variant_letter"`
	Text   string `json:"text" form:"text" validate:"required,max=2000"`
}

// QuestionCreateRequest represents the request structure for adding a question
type QuestionCreateRequest struct {
	Text          string         `json:"text" form:"text" validate:"required,max=5000"`
	Variants      []VariantInput `json:"variants" form:"-" validate:"required,min=1,max=10,unique_letters,dive"`
	CorrectAnswer string         `json:"correct_answer" form:"correct_answer" validate:"required,variant_letter"`
}

// QuestionUpdateRequest is a partial update; nil fields keep their stored value
type QuestionUpdateRequest struct {
	Text          *string        `json:"text" form:"text" validate:"omitempty,max=5000"`
	Variants      []VariantInput `json:"variants" form:"-" validate:"omitempty,max=10,unique_letters,dive"`
	CorrectAnswer *string        `json:"correct_answer" form:"correct_answer" validate:"omitempty,variant_letter"`
	RemoveImage   bool           `json:"remove_image" form:"-"`
}

type LoginRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=150"`
	Password string `json:"password" form:"password" validate:"required,max=128"`
}

// ProfileUpdateRequest changes the caller's own credentials; empty fields are left alone
type ProfileUpdateRequest struct {
	NewUsername string `json:"new_username" form:"new_username" validate:"omitempty,max=150,username"`
	NewPassword string `json:"new_password" form:"new_password" validate:"omitempty,max=128"`
}

type UserCreateRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=150,username"`
	Password string `json:"password" form:"password" validate:"required,max=128"`
}

// UserUpdateRequest keeps the current password when Password is empty
type UserUpdateRequest struct {
	Username string `json:"username" form:"username" validate:"required,max=150,username"`
	Password string `json:"password" form:"password" validate:"omitempty,max=128"`
}

// StartTestRequest leaves NumQuestions nil to ask for the default length
type StartTestRequest struct {
	NumQuestions *int `json:"num_questions" form:"-"`
}

type SaveAnswerRequest struct {
	QuestionID uint   `json:"question_id" form:"question_id" validate:"required"`
	Answer     string `json:"answer" form:"answer" validate:"max=1"`
	Current    *int   `json:"current" form:"current" validate:"omitempty,min=0"`
}

// SubmitTestRequest carries the final answers keyed by question id
type SubmitTestRequest struct {
	Answers   map[uint]string `json:"answers" form:"-"`
	TimeSpent int             `json:"time_spent" form:"time_spent"`
}
