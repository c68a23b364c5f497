package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"video-optimizer/internal/middleware"
	"video-optimizer/internal/pipeline"
	"video-optimizer/internal/streaming"
	"video-optimizer/internal/transcoder"
)

const (
	// retryAfterSeconds is advertised when every worker is busy.
	retryAfterSeconds = 10
	// maxFieldBytes bounds the crf and scale form values.
	maxFieldBytes = 64
)

// fileFields are the multipart field names accepted for the video.
var fileFields = map[string]bool{"video": true, "file": true}

// errNoVideoPart is returned when a multipart body has no video field.
var errNoVideoPart = errors.New("multipart body has no video or file field")

// Compress accepts a video, runs one transform and streams the result.
// POST /compress/ and POST /optimize-video
//
// The body is either multipart/form-data with the video in the "video" (or
// "file") field, or the raw video itself with ?filename= naming it. crf and
// scale may be given as query parameters or as form fields placed before
// the file part; a field after the file part fails the job with 400.
func (h *Handlers) Compress(w http.ResponseWriter, r *http.Request) {
	jobID := pipeline.NewJobID()
	w.Header().Set(middleware.JobIDHeader, jobID)

	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadSize)

	upload, fields, err := h.readUpload(r)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.reject(w, r, jobID, upload.Filename, &pipeline.Error{
				Kind:    pipeline.KindIngestion,
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("upload exceeds the %d byte limit", maxErr.Limit),
				Err:     err,
			})
			return
		}
		h.reject(w, r, jobID, upload.Filename, &pipeline.Error{
			Kind:    pipeline.KindValidation,
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Err:     err,
		})
		return
	}

	params, err := transcoder.ParseParams(
		firstNonEmpty(r.URL.Query().Get("crf"), fields["crf"]),
		firstNonEmpty(r.URL.Query().Get("scale"), fields["scale"]),
		h.opts.DefaultCRF,
	)
	if err != nil {
		h.reject(w, r, jobID, upload.Filename, &pipeline.Error{
			Kind:    pipeline.KindValidation,
			Status:  http.StatusBadRequest,
			Message: err.Error(),
			Err:     err,
		})
		return
	}

	err = h.pipeline.Run(r.Context(), jobID, upload, params, func(out *pipeline.Output) error {
		return h.deliver(w, r, out)
	})
	if err == nil {
		return
	}

	pe := pipeline.AsError(err)
	if pe.JobID == "" {
		pe.JobID = jobID
	}
	switch pe.Kind {
	case pipeline.KindDelivery:
		// The status line is already on the wire.
		return
	case pipeline.KindAdmission:
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}
	writeJobError(w, pe)
}

// reject records a request refused before the pipeline ran and answers it.
func (h *Handlers) reject(w http.ResponseWriter, r *http.Request, jobID, filename string, pe *pipeline.Error) {
	writeJobError(w, pipeline.AsError(h.pipeline.Reject(r.Context(), jobID, filename, pe)))
}

// deliver writes the response headers and streams the output body.
func (h *Handlers) deliver(w http.ResponseWriter, r *http.Request, out *pipeline.Output) error {
	hdr := w.Header()
	hdr.Set("Content-Type", "video/mp4")
	hdr.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	hdr.Set("Content-Length", strconv.FormatInt(out.Size, 10))
	hdr.Set("Cache-Control", "no-store")
	if out.Info != nil {
		hdr.Set("X-Video-Width", strconv.Itoa(out.Info.Width))
		hdr.Set("X-Video-Height", strconv.Itoa(out.Info.Height))
		hdr.Set("X-Video-Duration", strconv.FormatFloat(out.Info.Duration, 'f', 3, 64))
	}
	w.WriteHeader(http.StatusOK)

	n, err := streaming.Stream(r.Context(), w, out.Body, h.opts.Stream)
	if err != nil {
		if streaming.IsClientError(err) {
			return fmt.Errorf("client stopped reading after %d of %d bytes: %w", n, out.Size, err)
		}
		return fmt.Errorf("failed after %d of %d bytes: %w", n, out.Size, err)
	}
	return nil
}

// readUpload locates the video in the request without buffering it. Form
// fields seen before the file part are returned alongside.
func (h *Handlers) readUpload(r *http.Request) (pipeline.Upload, map[string]string, error) {
	fields := map[string]string{}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return pipeline.Upload{
			Body:      r.Body,
			MediaType: r.Header.Get("Content-Type"),
			Filename:  r.URL.Query().Get("filename"),
		}, fields, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return pipeline.Upload{}, nil, fmt.Errorf("invalid multipart body: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return pipeline.Upload{}, nil, errNoVideoPart
		}
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return pipeline.Upload{}, nil, err
			}
			return pipeline.Upload{}, nil, fmt.Errorf("invalid multipart body: %w", err)
		}

		name := part.FormName()
		if fileFields[name] {
			return partUpload(mr, part), fields, nil
		}

		value, err := readField(part)
		if err != nil {
			return pipeline.Upload{}, nil, err
		}
		fields[name] = value
	}
}

func partUpload(mr *multipart.Reader, part *multipart.Part) pipeline.Upload {
	return pipeline.Upload{
		Body:      &filePart{part: part, mr: mr},
		MediaType: part.Header.Get("Content-Type"),
		Filename:  part.FileName(),
	}
}

// filePart reads the video part and, once it is drained, requires that the
// multipart body ends there.
type filePart struct {
	part *multipart.Part
	mr   *multipart.Reader
	err  error
}

func (f *filePart) Read(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	n, err := f.part.Read(p)
	if err == io.EOF {
		err = f.checkEnd()
	}
	if err != nil {
		f.err = err
	}
	return n, err
}

func (f *filePart) checkEnd() error {
	next, err := f.mr.NextPart()
	if err == io.EOF {
		return io.EOF
	}
	if err != nil {
		return err
	}
	defer next.Close()

	return &pipeline.Error{
		Kind:    pipeline.KindValidation,
		Status:  http.StatusBadRequest,
		Message: fmt.Sprintf("form field %q must come before the file part", next.FormName()),
	}
}

// readField reads a small form value.
func readField(part *multipart.Part) (string, error) {
	defer part.Close()
	data, err := io.ReadAll(io.LimitReader(part, maxFieldBytes+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxFieldBytes {
		return "", fmt.Errorf("form field %q is too long", part.FormName())
	}
	return strings.TrimSpace(string(data)), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
