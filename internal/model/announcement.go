package model

import "time"

type Announcement struct {
	ID              string    `json:"id" bson:"id"`
	Text            string    `json:"text" bson:"text"`
	AuthorName      string    `json:"authorName" bson:"authorName"`
	AuthorRegNumber string    `json:"authorRegNumber" bson:"authorRegNumber"`
	CreatedAt       time.Time `json:"createdAt" bson:"createdAt"`
}

func (a Announcement) RecordID() string { return a.ID }
