package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"kycverify/internal/decision"
	"kycverify/internal/verification/models"
	"kycverify/internal/verification/service"
	dErrors "kycverify/pkg/domain-errors"
)

// Multipart form field names of POST /v1/verifications.
const (
	fieldExternalID    = "externalId"
	fieldFirstName     = "firstName"
	fieldLastName      = "lastName"
	fieldEmail         = "email"
	fieldDocumentFront = "documentFront"
	fieldDocumentBack  = "documentBack"
	fieldSelfie        = "selfie"
)

// multipartMemory is how much of the form is buffered before spilling to disk.
const multipartMemory = 8 << 20

// parseSubmit reads the multipart form into a command. File presence is
// validated by the service.
func parseSubmit(w http.ResponseWriter, r *http.Request, maxBytes int64) (service.SubmitCommand, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return service.SubmitCommand{}, err
		}
		return service.SubmitCommand{}, dErrors.New(dErrors.CodeBadRequest, "multipart/form-data body required")
	}
	defer r.MultipartForm.RemoveAll()

	cmd := service.SubmitCommand{
		ExternalID: r.FormValue(fieldExternalID),
		FirstName:  r.FormValue(fieldFirstName),
		LastName:   r.FormValue(fieldLastName),
		Email:      r.FormValue(fieldEmail),
	}
	var err error
	if cmd.Uploads.Front, err = readUpload(r.MultipartForm, fieldDocumentFront); err != nil {
		return service.SubmitCommand{}, err
	}
	if cmd.Uploads.Back, err = readUpload(r.MultipartForm, fieldDocumentBack); err != nil {
		return service.SubmitCommand{}, err
	}
	if cmd.Uploads.Selfie, err = readUpload(r.MultipartForm, fieldSelfie); err != nil {
		return service.SubmitCommand{}, err
	}
	return cmd, nil
}

func readUpload(form *multipart.Form, field string) (*service.Upload, error) {
	headers := form.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	fh := headers[0]
	f, err := fh.Open()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file "+field)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "unreadable file "+field)
	}
	return &service.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// parseListFilter reads ?status=&page=&limit=. Bad numbers fall back to defaults.
func parseListFilter(r *http.Request) models.ListFilter {
	q := r.URL.Query()
	filter := models.ListFilter{
		Status: decision.Status(strings.ToUpper(strings.TrimSpace(q.Get("status")))),
	}
	if page, err := strconv.Atoi(q.Get("page")); err == nil {
		filter.Page = page
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	return filter
}
