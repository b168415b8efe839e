package handler

import (
	"mime"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"obligation-service/internal/apperr"
	"obligation-service/internal/model"
	"obligation-service/internal/obligation"
	"obligation-service/pkg/logger"
)

const dateLayout = "2006-01-02"

// ObligationRequest is the body of obligation create and update requests.
// Omitted fields are left unchanged on update. DueDate accepts RFC 3339 or a
// plain date.
type ObligationRequest struct {
	PartyID     *string         `json:"party_id"`
	Title       *string         `json:"title"`
	Category    *model.Category `json:"category"`
	DueDate     *string         `json:"due_date"`
	Description *string         `json:"description"`
}

// CommentRequest is the body of POST /api/obligations/:id/comments.
type CommentRequest struct {
	Message string `json:"message"`
}

// ObligationHandler serves /api/obligations and attachment downloads.
type ObligationHandler struct {
	obligations *obligation.Service
}

// NewObligationHandler creates an ObligationHandler.
func NewObligationHandler(obligations *obligation.Service) *ObligationHandler {
	return &ObligationHandler{obligations: obligations}
}

func parseDueDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Validation("due_date must be RFC 3339 or YYYY-MM-DD")
	}
	return t, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ListObligations handles GET /api/obligations?status=&party_id=&search=
func (h *ObligationHandler) ListObligations(c echo.Context) error {
	f := obligation.ListFilter{
		Status:  model.Status(c.QueryParam("status")),
		PartyID: c.QueryParam("party_id"),
		Text:    c.QueryParam("search"),
	}
	out, err := h.obligations.List(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

// GetObligation handles GET /api/obligations/:id
func (h *ObligationHandler) GetObligation(c echo.Context) error {
	o, err := h.obligations.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// CreateObligation handles POST /api/obligations
func (h *ObligationHandler) CreateObligation(c echo.Context) error {
	var req ObligationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	in := obligation.CreateInput{
		PartyID:     deref(req.PartyID),
		Title:       deref(req.Title),
		Description: deref(req.Description),
	}
	if req.Category != nil {
		in.Category = *req.Category
	}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return err
		}
		in.DueDate = due
	}

	o, err := h.obligations.Create(c.Request().Context(), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, o)
}

// UpdateObligation handles PATCH /api/obligations/:id
func (h *ObligationHandler) UpdateObligation(c echo.Context) error {
	var req ObligationRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	in := obligation.UpdateInput{
		PartyID:     req.PartyID,
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
	}
	if req.DueDate != nil {
		due, err := parseDueDate(*req.DueDate)
		if err != nil {
			return err
		}
		in.DueDate = &due
	}

	o, err := h.obligations.Update(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, o)
}

// Transition returns the handler for POST /api/obligations/:id/<t>.
func (h *ObligationHandler) Transition(t obligation.Transition) echo.HandlerFunc {
	return func(c echo.Context) error {
		o, err := h.obligations.Apply(c.Request().Context(), t, c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, o)
	}
}

// ListComments handles GET /api/obligations/:id/comments
func (h *ObligationHandler) ListComments(c echo.Context) error {
	comments, err := h.obligations.ListComments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, comments)
}

// AddComment handles POST /api/obligations/:id/comments
func (h *ObligationHandler) AddComment(c echo.Context) error {
	var req CommentRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	comment, err := h.obligations.AddComment(c.Request().Context(), c.Param("id"), req.Message)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, comment)
}

// ListAttachments handles GET /api/obligations/:id/attachments
func (h *ObligationHandler) ListAttachments(c echo.Context) error {
	attachments, err := h.obligations.ListAttachments(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, withDownloadURLs(attachments))
}

// AddAttachment handles multipart POST /api/obligations/:id/attachments with
// the file in the "file" field.
func (h *ObligationHandler) AddAttachment(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "multipart field \"file\" is required", err)
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "unreadable upload", err)
	}
	defer f.Close()

	a, err := h.obligations.AddAttachment(c.Request().Context(), c.Param("id"), fh.Filename, f)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, attachmentView{Attachment: *a, DownloadURL: a.DownloadURL()})
}

// DownloadAttachment handles GET /api/attachments/:id/download
func (h *ObligationHandler) DownloadAttachment(c echo.Context) error {
	a, rc, err := h.obligations.OpenAttachment(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	defer func() {
		if err := rc.Close(); err != nil {
			logger.FromEcho(c).Warn("Failed to close attachment", zap.Error(err))
		}
	}()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": a.FileName}))
	return c.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

type attachmentView struct {
	model.Attachment
	DownloadURL string `json:"download_url"`
}

func withDownloadURLs(in []model.Attachment) []attachmentView {
	out := make([]attachmentView, len(in))
	for i, a := range in {
		out[i] = attachmentView{Attachment: a, DownloadURL: a.DownloadURL()}
	}
	return out
}
