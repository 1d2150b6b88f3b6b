// Package models defines the post and attachment types exchanged with the
// perch API.
package models

import "strconv"

// PostID is a server-assigned post identifier, stable across edits.
type PostID uint64

func (id PostID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Post describes a post's contents.
//
// When a Post is sent with Session.CreatePost or Session.EditPost it must
// be passed by pointer: the Attachments are updated in place with the IDs
// and URLs the server assigns, so a later edit of the same value does not
// re-upload anything.
type Post struct {
	// ID is populated on posts fetched from the server. It is ignored when
	// creating; use the returned PostID instead.
	ID PostID

	// AdultContent marks the post as adult content.
	AdultContent bool

	// Headline is displayed above attachments and markdown.
	Headline string

	// Attachments are displayed between the headline and markdown, in
	// order. Order is meaningful for display and is preserved.
	Attachments []*Attachment

	// Markdown content, displayed after the headline and attachments.
	// Blank-line-separated paragraphs become separate blocks on the wire.
	Markdown string

	// Tags on the post.
	Tags []string

	// ContentWarnings on the post.
	ContentWarnings []string

	// Draft prevents the post from being seen without the draft link.
	Draft bool
}

// IsEmpty reports whether the post has no content at all.
func (p *Post) IsEmpty() bool {
	return len(p.Attachments) == 0 && p.Headline == "" && p.Markdown == ""
}
