package models

type ProfileView struct {
	ViewerID  string `json:"viewer_id"`
	ProfileID string `json:"profile_id"`
	ViewedTS  int64  `json:"viewed_ts"`
}

type IcebreakerAnswer struct {
	UserID     string `json:"user_id"`
	QuestionID string `json:"question_id"`
	Answer     string `json:"answer"`
	AnsweredTS int64  `json:"answered_ts"`
}
