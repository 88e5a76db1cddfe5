package model

import "time"

// AdminPlaceholderName is shown for announcements whose author is not in the roster.
const AdminPlaceholderName = "Admin"

// User is a login credential keyed by registration number.
type User struct {
	ID                 string    `json:"regNumber" bson:"regNumber"`
	PasswordHash       string    `json:"passwordHash" bson:"passwordHash"`
	HasChangedPassword bool      `json:"hasChangedPassword" bson:"hasChangedPassword"`
	CreatedAt          time.Time `json:"createdAt" bson:"createdAt"`
}

func (u User) RecordID() string { return u.ID }

// Profile is the roster data the client displays for a user.
type Profile struct {
	RegNumber  string `json:"regNumber"`
	Name       string `json:"name"`
	FatherName string `json:"fatherName,omitempty"`
	Branch     string `json:"branch,omitempty"`
	Gender     string `json:"gender,omitempty"`
	State      string `json:"state,omitempty"`
	Section    string `json:"section,omitempty"`
	CGPA       any    `json:"cgpa,omitempty"`
}

// AccountView is returned on login.
type AccountView struct {
	Profile
	IsAdmin            bool `json:"isAdmin"`
	HasChangedPassword bool `json:"hasChangedPassword"`
}

// UserView is a profile with presence.
type UserView struct {
	Profile
	Online bool `json:"online"`
}
