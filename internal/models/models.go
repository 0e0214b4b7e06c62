package models

import "time"

// Session is the authenticated identity of the current user, as issued by
// Firebase Auth. It is owned by the session provider; everything else holds
// a read-only copy.
type Session struct {
	UID         string `json:"uid"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// Post is one bulletin-board entry. ID is the Firestore document ID and is
// empty until the document is persisted. CreatedAt is assigned by the server
// on write. Posts are immutable after creation except for deletion by their
// author.
type Post struct {
	ID         string    `firestore:"-" json:"id,omitempty"`
	Title      string    `firestore:"title" json:"title"`
	Content    string    `firestore:"content" json:"content"`
	ImageURL   string    `firestore:"imageUrl" json:"imageUrl"`
	AuthorID   string    `firestore:"authorId" json:"authorId"`
	AuthorName string    `firestore:"authorName" json:"authorName"`
	CreatedAt  time.Time `firestore:"createdAt,serverTimestamp" json:"createdAt"`
}

// Feed is the client-side mirror of the posts collection, newest first.
// It is rebuilt wholesale on every snapshot; readers get copies.
type Feed struct {
	Posts   []Post `json:"posts"`
	Loading bool   `json:"loading"`
}
