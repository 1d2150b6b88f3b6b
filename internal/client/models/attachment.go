package models

import (
	"bytes"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/perchworks/perch/internal/filex"
)

// ProcessingStatus reports how far the server has taken an uploaded
// attachment through post-processing.
type ProcessingStatus string

const (
	// ProcessingConfirmed means the server reported the attachment fully
	// processed.
	ProcessingConfirmed ProcessingStatus = "confirmed"

	// ProcessingPending means confirmation timed out. The attachment ID is
	// still valid and processing may finish asynchronously server-side.
	ProcessingPending ProcessingStatus = "still-processing"
)

type attachmentState int

const (
	statePending attachmentState = iota
	stateUploaded
	stateFailed
)

// PendingUpload is the local payload of a not-yet-uploaded attachment.
// Open returns a fresh reader for the content; the uploader calls it once
// per upload attempt, so retries never depend on a half-consumed stream.
// Width and Height are the pixel dimensions for image content; zero means
// unknown and is omitted from the reservation.
type PendingUpload struct {
	Filename      string
	ContentType   string
	ContentLength int64
	Width         int
	Height        int
	Open          func() (io.ReadCloser, error)
}

// Attachment is a media object referenced by a post. It is created in the
// pending state, becomes uploaded once the server confirms it (or once it
// is declared with an existing ID), and becomes failed if the upload
// protocol gives up on it. Failed attachments cannot be recovered.
type Attachment struct {
	// AltText is the accessibility description sent with the attachment.
	AltText string

	state   attachmentState
	pending *PendingUpload
	id      uuid.UUID
	url     string
	status  ProcessingStatus
}

// NewAttachment creates a pending attachment from an in-memory buffer.
// Image content has its pixel dimensions probed so the reservation can
// declare them.
func NewAttachment(content []byte, filename, contentType string) *Attachment {
	pending := &PendingUpload{
		Filename:      filename,
		ContentType:   contentType,
		ContentLength: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(content)), nil
		},
	}
	if strings.HasPrefix(contentType, "image/") {
		if w, h, ok := filex.ImageDimensions(bytes.NewReader(content)); ok {
			pending.Width, pending.Height = w, h
		}
	}
	return &Attachment{state: statePending, pending: pending}
}

// NewAttachmentFromFile creates a pending attachment backed by a file on
// disk. The file is opened lazily at upload time and streamed, so large
// media is never fully buffered in memory.
func NewAttachmentFromFile(path string) (*Attachment, error) {
	info, err := filex.Describe(path)
	if err != nil {
		return nil, err
	}
	return &Attachment{
		state: statePending,
		pending: &PendingUpload{
			Filename:      info.Filename,
			ContentType:   info.ContentType,
			ContentLength: info.ContentLength,
			Width:         info.Width,
			Height:        info.Height,
			Open: func() (io.ReadCloser, error) {
				return os.Open(path)
			},
		},
	}, nil
}

// NewExistingAttachment wraps an ID previously confirmed by the server.
// Resolution treats it as a no-op.
func NewExistingAttachment(id uuid.UUID) *Attachment {
	return &Attachment{state: stateUploaded, id: id, status: ProcessingConfirmed}
}

// NewDeclaredAttachment creates an attachment slot that is declared in the
// post body but intentionally never uploaded. The server recognizes the
// all-zero UUID for this; the uploader bypasses it entirely.
func NewDeclaredAttachment() *Attachment {
	return NewExistingAttachment(uuid.Nil)
}

// WithAltText sets the alt text in a builder-style call.
func (a *Attachment) WithAltText(alt string) *Attachment {
	a.AltText = alt
	return a
}

// IsPending reports whether the attachment has not yet been uploaded.
func (a *Attachment) IsPending() bool { return a.state == statePending }

// IsUploaded reports whether the attachment has a server-assigned identity.
func (a *Attachment) IsUploaded() bool { return a.state == stateUploaded }

// IsFailed reports whether the upload protocol gave up on this attachment.
func (a *Attachment) IsFailed() bool { return a.state == stateFailed }

// ID returns the server-assigned attachment ID. It is the zero UUID for
// pending attachments and for declared-but-empty slots.
func (a *Attachment) ID() uuid.UUID { return a.id }

// URL returns the CDN URL for an uploaded attachment, if known.
func (a *Attachment) URL() string { return a.url }

// Status reports the post-processing status of an uploaded attachment.
func (a *Attachment) Status() ProcessingStatus { return a.status }

// Pending returns the local upload payload when the attachment is pending.
func (a *Attachment) Pending() (*PendingUpload, bool) {
	if a.state != statePending {
		return nil, false
	}
	return a.pending, true
}

// MarkUploaded records the identity the server assigned. The local payload
// is dropped so the bytes can be collected.
func (a *Attachment) MarkUploaded(id uuid.UUID, url string, status ProcessingStatus) {
	a.state = stateUploaded
	a.id = id
	a.url = url
	a.status = status
	a.pending = nil
}

// MarkFailed moves the attachment to the failed state.
func (a *Attachment) MarkFailed() {
	a.state = stateFailed
	a.pending = nil
}
