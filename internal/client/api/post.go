package api

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/perchworks/perch/internal/client/models"
	"github.com/perchworks/perch/internal/common"
)

const (
	postStateDraft = 0
	postStateLive  = 1
)

type apiPost struct {
	AdultContent  bool           `json:"adultContent"`
	Blocks        []apiBlock     `json:"blocks"`
	Cws           []string       `json:"cws"`
	Headline      string         `json:"headline"`
	PostState     int            `json:"postState"`
	ShareOfPostID *models.PostID `json:"shareOfPostId,omitempty"`
	Tags          []string       `json:"tags"`
}

type apiBlock struct {
	Type       string         `json:"type"`
	Attachment *apiAttachment `json:"attachment,omitempty"`
	Markdown   *apiMarkdown   `json:"markdown,omitempty"`
}

type apiAttachment struct {
	AltText      string `json:"altText"`
	AttachmentID string `json:"attachmentId"`
	FileURL      string `json:"fileURL,omitempty"`
}

type apiMarkdown struct {
	Content string `json:"content"`
}

type apiPostsPage struct {
	Items  []apiPostView `json:"items"`
	NItems int           `json:"nItems"`
	NPages int           `json:"nPages"`
}

type apiPostView struct {
	PostID       models.PostID `json:"postId"`
	Headline     string        `json:"headline"`
	AdultContent bool          `json:"adultContent"`
	PostState    int           `json:"postState"`
	Cws          []string      `json:"cws"`
	Tags         []string      `json:"tags"`
	Blocks       []apiBlock    `json:"blocks"`
}

// buildAPIPost converts a fully resolved Post into its wire form:
// attachment blocks first in caller order, then one markdown block per
// blank-line-separated paragraph. Every attachment must already be
// uploaded; the zero UUID is serialized verbatim for declared-but-empty
// slots.
func buildAPIPost(post *models.Post, shareOf *models.PostID) (*apiPost, error) {
	blocks := make([]apiBlock, 0, len(post.Attachments)+1)
	for _, att := range post.Attachments {
		if !att.IsUploaded() {
			return nil, common.ErrPendingAttachment
		}
		blocks = append(blocks, apiBlock{
			Type: "attachment",
			Attachment: &apiAttachment{
				AltText:      att.AltText,
				AttachmentID: att.ID().String(),
			},
		})
	}
	if post.Markdown != "" {
		for _, paragraph := range strings.Split(post.Markdown, "\n\n") {
			blocks = append(blocks, apiBlock{
				Type:     "markdown",
				Markdown: &apiMarkdown{Content: paragraph},
			})
		}
	}

	state := postStateLive
	if post.Draft {
		state = postStateDraft
	}

	return &apiPost{
		AdultContent:  post.AdultContent,
		Blocks:        blocks,
		Cws:           emptyIfNil(post.ContentWarnings),
		Headline:      post.Headline,
		PostState:     state,
		ShareOfPostID: shareOf,
		Tags:          emptyIfNil(post.Tags),
	}, nil
}

// postFromView rebuilds a Post from its fetched wire form. Attachment
// blocks become existing attachments, markdown blocks are rejoined with
// blank lines, and unknown block kinds are skipped so additive API changes
// don't break reads.
func postFromView(view *apiPostView) (models.Post, error) {
	post := models.Post{
		ID:              view.PostID,
		Headline:        view.Headline,
		AdultContent:    view.AdultContent,
		Draft:           view.PostState == postStateDraft,
		Tags:            view.Tags,
		ContentWarnings: view.Cws,
	}

	var paragraphs []string
	for _, block := range view.Blocks {
		switch block.Type {
		case "attachment":
			if block.Attachment == nil {
				return models.Post{}, fmt.Errorf("attachment block without attachment body: %w", common.ErrProtocol)
			}
			att, err := attachmentFromView(block.Attachment)
			if err != nil {
				return models.Post{}, err
			}
			post.Attachments = append(post.Attachments, att)
		case "markdown":
			if block.Markdown == nil {
				return models.Post{}, fmt.Errorf("markdown block without markdown body: %w", common.ErrProtocol)
			}
			paragraphs = append(paragraphs, block.Markdown.Content)
		}
	}
	post.Markdown = strings.Join(paragraphs, "\n\n")
	return post, nil
}

func attachmentFromView(view *apiAttachment) (*models.Attachment, error) {
	// Older posts carry an empty attachmentId for slots that were
	// declared but never uploaded; treat them like the zero UUID.
	if view.AttachmentID == "" {
		return models.NewDeclaredAttachment().WithAltText(view.AltText), nil
	}
	id, err := uuid.Parse(view.AttachmentID)
	if err != nil {
		return nil, fmt.Errorf("parsing attachment id %q: %w", view.AttachmentID, common.ErrProtocol)
	}
	att := models.NewExistingAttachment(id).WithAltText(view.AltText)
	att.MarkUploaded(id, view.FileURL, models.ProcessingConfirmed)
	return att, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
