package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/perchworks/perch/internal/client/models"
	"github.com/perchworks/perch/internal/common"
	"github.com/perchworks/perch/internal/pollx"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const uploadRetryDelay = 500 * time.Millisecond

// The reserve request is snake_case while every response is camelCase.
// The API is uneven here and the shapes must match it exactly.
type attachStartRequest struct {
	Filename      string `json:"filename"`
	ContentType   string `json:"content_type"`
	ContentLength int64  `json:"content_length"`
	Width         int    `json:"width,omitempty"`
	Height        int    `json:"height,omitempty"`
}

type attachStartResponse struct {
	AttachmentID   uuid.UUID         `json:"attachmentId"`
	URL            string            `json:"url"`
	RequiredFields map[string]string `json:"requiredFields"`
}

type attachFinishResponse struct {
	AttachmentID uuid.UUID `json:"attachmentId"`
	URL          string    `json:"url"`
}

type attachmentStatusResponse struct {
	State string `json:"state"` // "pending", "processed", or "failed"
}

var errProcessingFailed = errors.New("server reported attachment processing failed")

// resolveAttachments brings every attachment on the post into the uploaded
// state. Different attachments resolve concurrently; each individual
// attachment's reserve → upload → confirm phases run strictly in order.
// Already-uploaded attachments and declared zero-UUID slots are skipped
// without any network traffic.
func (s *Session) resolveAttachments(ctx context.Context, project string, post *models.Post) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, att := range post.Attachments {
		if !att.IsPending() {
			continue
		}
		g.Go(func() error {
			return s.resolveOne(ctx, project, i, att)
		})
	}
	return g.Wait()
}

func (s *Session) resolveOne(ctx context.Context, project string, index int, att *models.Attachment) error {
	pending, ok := att.Pending()
	if !ok {
		return nil
	}

	log := s.client.logger.With("attachment", pending.Filename, "index", index)

	// Phase 1: reserve a slot. Failure here (quota, rejected content
	// type) is terminal for this attachment.
	startReq := &attachStartRequest{
		Filename:      pending.Filename,
		ContentType:   pending.ContentType,
		ContentLength: pending.ContentLength,
		Width:         pending.Width,
		Height:        pending.Height,
	}
	var start attachStartResponse
	startPath := fmt.Sprintf("project/%s/attachments/start", project)
	if err := s.client.doRequest(ctx, http.MethodPost, startPath, nil, startReq, &start); err != nil {
		att.MarkFailed()
		return &AttachmentError{Index: index, Filename: pending.Filename, Phase: "reserve", Err: err}
	}
	log.Debug(ctx, "attachment reserved", "attachment_id", start.AttachmentID)

	// Phase 2: stream the bytes to the reserved target. Transient
	// failures retry against the same reservation — re-reserving would
	// orphan the pending ID server-side.
	if err := s.uploadBytes(ctx, &start, pending); err != nil {
		att.MarkFailed()
		return &AttachmentError{Index: index, Filename: pending.Filename, Phase: "upload", Err: err}
	}

	// Phase 3: confirm, then poll kinds the server post-processes
	// asynchronously.
	var finish attachFinishResponse
	finishPath := fmt.Sprintf("project/%s/attachments/finish/%s", project, start.AttachmentID)
	if err := s.client.doRequest(ctx, http.MethodPost, finishPath, nil, nil, &finish); err != nil {
		att.MarkFailed()
		return &AttachmentError{Index: index, Filename: pending.Filename, Phase: "confirm", Err: err}
	}

	status := models.ProcessingConfirmed
	if needsProcessing(pending.ContentType) {
		var err error
		status, err = s.awaitProcessed(ctx, finish.AttachmentID)
		if err != nil {
			att.MarkFailed()
			return &AttachmentError{Index: index, Filename: pending.Filename, Phase: "confirm", Err: err}
		}
	}

	att.MarkUploaded(finish.AttachmentID, finish.URL, status)
	log.Info(ctx, "attachment uploaded", "attachment_id", finish.AttachmentID, "status", status)
	return nil
}

// needsProcessing reports whether the server processes this attachment
// kind asynchronously after upload. Currently that is audio.
func needsProcessing(contentType string) bool {
	return strings.HasPrefix(contentType, "audio/")
}

// uploadBytes runs the byte-upload phase with bounded retries. Network
// failures and 5xx responses from the upload target are retried; anything
// else is terminal.
func (s *Session) uploadBytes(ctx context.Context, start *attachStartResponse, pending *models.PendingUpload) error {
	backoff := retry.WithMaxRetries(uint64(s.client.uploadAttempts-1), retry.NewConstant(uploadRetryDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := s.client.uploadMultipart(ctx, start.URL, start.RequiredFields, pending)
		if err == nil {
			return nil
		}
		var statusErr *StatusError
		if errors.Is(err, common.ErrNetwork) || (errors.As(err, &statusErr) && statusErr.StatusCode >= 500) {
			return retry.RetryableError(err)
		}
		return err
	})
}

// awaitProcessed polls the attachment status endpoint until the server
// reports the attachment processed or failed. If the deadline elapses
// first the attachment ID is still valid — processing may complete later —
// so the result is ProcessingPending rather than an error.
func (s *Session) awaitProcessed(ctx context.Context, id uuid.UUID) (models.ProcessingStatus, error) {
	err := pollx.WaitFor(ctx, s.client.pollInterval, s.client.pollTimeout, func(ctx context.Context) (bool, error) {
		var status attachmentStatusResponse
		if err := s.client.doRequest(ctx, http.MethodGet, "attachments/"+id.String(), nil, nil, &status); err != nil {
			return false, err
		}
		switch status.State {
		case "processed":
			return true, nil
		case "failed":
			return false, errProcessingFailed
		default:
			return false, nil
		}
	})
	if err == nil {
		return models.ProcessingConfirmed, nil
	}
	if errors.Is(err, pollx.ErrDeadline) {
		return models.ProcessingPending, nil
	}
	return "", err
}

// uploadMultipart streams a multipart form to the upload target handed out
// by the reserve step: the target's required form fields first, then the
// file part. The body goes through a pipe so file-backed content is never
// fully buffered in memory.
func (c *Client) uploadMultipart(ctx context.Context, target string, fields map[string]string, pending *models.PendingUpload) error {
	src, err := pending.Open()
	if err != nil {
		return fmt.Errorf("opening attachment content: %w", err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		if err := writeUploadForm(mw, fields, pending, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, target, pr)
	if err != nil {
		return fmt.Errorf("api: building upload request: %w", err)
	}
	request.Header.Set("Content-Type", mw.FormDataContentType())
	request.Header.Set("User-Agent", userAgent)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: uploading to %s: %w: %w", target, common.ErrNetwork, err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("api: reading upload response: %w: %w", common.ErrNetwork, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return newStatusError(http.MethodPost, target, response.StatusCode, body)
	}
	return nil
}

func writeUploadForm(mw *multipart.Writer, fields map[string]string, pending *models.PendingUpload, src io.Reader) error {
	// Field order is deterministic; some upload targets require their
	// fields to precede the file part.
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		if err := mw.WriteField(name, fields[name]); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, pending.Filename))
	header.Set("Content-Type", pending.ContentType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, src)
	return err
}
