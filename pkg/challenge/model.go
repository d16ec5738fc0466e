// Package challenge stores pronunciation-challenge content: the prompt a
// student responds to, optional reference audio, and hit/miss counters.
package challenge

// Challenge is one exercise row. Audio and media columns hold raw bytes;
// API callers submit them base64 encoded and DecodeBlob unwraps them.
type Challenge struct {
	ID uint `gorm:"primaryKey;autoIncrement" json:"id"`

	CourseID   int  `gorm:"not null" json:"course_id"`
	ExternalID *int `json:"external_id,omitempty"`

	Type             string `gorm:"size:30;not null" json:"type"`
	Title            string `gorm:"size:40;not null" json:"title"`
	ShortDescription string `gorm:"size:80;not null" json:"short_description"`

	ProblemText  string `gorm:"size:256;not null" json:"problem_text"`
	ProblemAudio []byte `gorm:"type:longblob" json:"problem_audio,omitempty"`

	Media      []byte `gorm:"type:longblob" json:"media,omitempty"`
	Attachment []byte `gorm:"type:longblob" json:"attachment,omitempty"`

	AnswerText  string `gorm:"size:512" json:"answer_text,omitempty"`
	AnswerAudio []byte `gorm:"type:longblob" json:"answer_audio,omitempty"`

	HintText  string `gorm:"size:256" json:"hint_text,omitempty"`
	HintAudio []byte `gorm:"type:longblob" json:"hint_audio,omitempty"`

	LearnMore string `gorm:"size:80" json:"learn_more,omitempty"`

	Difficulty int `gorm:"not null;default:1" json:"difficulty"`
	Hits       int `gorm:"not null;default:0" json:"hits"`
	Misses     int `gorm:"not null;default:0" json:"misses"`

	Status string `gorm:"size:40;not null;default:draft" json:"status"`
}

// TableName keeps the historical table name.
func (Challenge) TableName() string {
	return "challenges"
}
