package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/batch"
	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/studio"
)

const (
	fieldImage  = "image"
	fieldImages = "images"

	outputPrefix = "output."

	headerWidth   = "X-Image-Width"
	headerHeight  = "X-Image-Height"
	headerJobID   = "X-Job-Id"
	headerFailed  = "X-Job-Failed"
	headerQuality = "X-Image-Quality"
)

// form is the parsed multipart body of a request.
type form struct {
	values map[string][]string
	files  map[string][]*multipart.FileHeader
}

func readForm(c echo.Context) (*form, error) {
	mf, err := c.MultipartForm()
	if err != nil {
		return nil, imgerr.Invalid("multipart form expected: %v", err)
	}
	return &form{values: mf.Value, files: mf.File}, nil
}

func (f *form) get(key string) string {
	if vs := f.values[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// params collects the plain form values, minus the output options and
// the keys in skip.
func (f *form) params(skip ...string) imaging.Params {
	p := imaging.Params{}
outer:
	for k, vs := range f.values {
		if len(vs) == 0 || strings.HasPrefix(k, outputPrefix) {
			continue
		}
		for _, s := range skip {
			if k == s {
				continue outer
			}
		}
		p[k] = vs[0]
	}
	return p
}

// output reads the output.* values; none at all yields a zero Options.
func (f *form) output(def codec.Options) (codec.Options, error) {
	p := imaging.Params{}
	for k, vs := range f.values {
		if len(vs) > 0 && strings.HasPrefix(k, outputPrefix) {
			p[strings.TrimPrefix(k, outputPrefix)] = vs[0]
		}
	}
	if len(p) == 0 {
		return codec.Options{}, nil
	}
	return imaging.OutputOptions(p, def)
}

// jsonField decodes a JSON-valued form field into v; an absent field
// leaves v untouched.
func (f *form) jsonField(key string, v interface{}) error {
	raw := f.get(key)
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return imgerr.Invalid("field %q is not valid JSON: %v", key, err)
	}
	return nil
}

func (f *form) source(field string) (studio.Source, error) {
	fhs := f.files[field]
	if len(fhs) == 0 {
		return studio.Source{}, imgerr.Invalid("multipart file field %q is required", field)
	}
	return readFile(fhs[0])
}

func (f *form) sources(field string) ([]studio.Source, error) {
	fhs := f.files[field]
	out := make([]studio.Source, len(fhs))
	for i, fh := range fhs {
		src, err := readFile(fh)
		if err != nil {
			return nil, err
		}
		out[i] = src
	}
	return out, nil
}

func readFile(fh *multipart.FileHeader) (studio.Source, error) {
	file, err := fh.Open()
	if err != nil {
		return studio.Source{}, errors.Wrapf(err, "open upload %s", fh.Filename)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return studio.Source{}, errors.Wrapf(err, "read upload %s", fh.Filename)
	}
	return studio.Source{Data: data, Name: fh.Filename}, nil
}

func intValue(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, imgerr.Invalid("%q is not an integer", raw)
	}
	return n, nil
}

func sendImage(c echo.Context, res *studio.EditResult) error {
	h := c.Response().Header()
	h.Set(headerWidth, strconv.Itoa(res.Width))
	h.Set(headerHeight, strconv.Itoa(res.Height))
	return c.Blob(http.StatusOK, res.Format.MimeType(), res.Data)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"pools":  s.studio.Stats(),
	})
}

func (s *Server) operations(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"operations":       s.studio.Operations(),
		"batch_operations": s.studio.BatchOperations(),
		"ocr":              s.studio.OCRInfo(),
	})
}

func (s *Server) jobs(c echo.Context) error {
	limit, err := intValue(c.QueryParam("limit"), 10)
	if err != nil {
		return err
	}
	entries, err := s.studio.RecentJobs(c.Request().Context(), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"jobs": entries})
}

func (s *Server) info(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}
	info, err := s.studio.Info(src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, info)
}

// applyOne runs the operation named in the path. Form values are its
// parameters; files under "images" are its extra inputs.
func (s *Server) applyOne(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}

	d := imaging.Op(c.Param("name"), f.params())
	extras, err := f.sources(fieldImages)
	if err != nil {
		return err
	}
	for i, extra := range extras {
		img, err := s.studio.Image(extra)
		if err != nil {
			return errors.WithMessagef(err, "image %d", i)
		}
		d.Images = append(d.Images, img)
	}

	req := studio.EditRequest{Steps: []imaging.Descriptor{d}}
	if req.Output, err = f.output(codec.DefaultOptions()); err != nil {
		return err
	}
	res, err := s.studio.Edit(c.Request().Context(), src, req)
	if err != nil {
		return err
	}
	return sendImage(c, res)
}

type stepField struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
}

func descriptors(steps []stepField) []imaging.Descriptor {
	out := make([]imaging.Descriptor, len(steps))
	for i, st := range steps {
		out[i] = imaging.Op(st.Name, imaging.Params(st.Params))
	}
	return out
}

// edit runs the JSON "steps" chain and the optional "branches" fan-out.
func (s *Server) edit(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}

	var steps, branches []stepField
	if err := f.jsonField("steps", &steps); err != nil {
		return err
	}
	if err := f.jsonField("branches", &branches); err != nil {
		return err
	}
	req := studio.EditRequest{Steps: descriptors(steps), Branches: descriptors(branches)}
	if raw := f.get("merge_opacity"); raw != "" {
		opacity, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return imgerr.Invalid("merge_opacity %q is not a number", raw)
		}
		req.MergeOpacity = &opacity
	}
	if req.Output, err = f.output(codec.DefaultOptions()); err != nil {
		return err
	}

	res, err := s.studio.Edit(c.Request().Context(), src, req)
	if err != nil {
		return err
	}
	return sendImage(c, res)
}

// batch applies one operation to every "images" file. The response is a
// zip archive unless the client asks for JSON.
func (s *Server) batch(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	srcs, err := f.sources(fieldImages)
	if err != nil {
		return err
	}

	req := batch.Request{Op: f.get("operation"), Params: f.params("operation", "params")}
	var extra map[string]interface{}
	if err := f.jsonField("params", &extra); err != nil {
		return err
	}
	for k, v := range extra {
		req.Params[k] = v
	}
	if req.Output, err = f.output(batch.DefaultOutput()); err != nil {
		return err
	}

	job, err := s.studio.Batch(c.Request().Context(), req, srcs)
	if err != nil {
		return err
	}

	h := c.Response().Header()
	h.Set(headerJobID, job.ID)
	h.Set(headerFailed, strconv.Itoa(job.Failed()))

	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"job_id":      job.ID,
			"operation":   job.Operation,
			"state":       job.State(),
			"duration_ms": job.Duration().Milliseconds(),
			"succeeded":   job.Succeeded(),
			"failed":      job.Failed(),
			"outcomes":    job.Outcomes,
		})
	}

	var buf bytes.Buffer
	if err := job.Archive(&buf); err != nil {
		return err
	}
	h.Set(echo.HeaderContentDisposition, `attachment; filename="`+job.ID+`.zip"`)
	return c.Blob(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) palette(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}
	k, err := intValue(f.get("num_colors"), 5)
	if err != nil {
		return err
	}
	colors, err := s.studio.Palette(c.Request().Context(), src, k)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"colors": colors})
}

func (s *Server) ocr(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}
	res, err := s.studio.ExtractText(c.Request().Context(), src)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) compress(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}
	opts, err := imaging.CompressOptions(f.params())
	if err != nil {
		return err
	}
	res, err := s.studio.Compress(c.Request().Context(), src, opts)
	if err != nil {
		return err
	}

	h := c.Response().Header()
	h.Set(headerQuality, strconv.Itoa(res.Quality))
	h.Set("X-Target-Met", strconv.FormatBool(res.MetTarget))
	return c.Blob(http.StatusOK, res.Format.MimeType(), res.Data)
}

func (s *Server) estimate(c echo.Context) error {
	f, err := readForm(c)
	if err != nil {
		return err
	}
	src, err := f.source(fieldImage)
	if err != nil {
		return err
	}
	opts, err := f.output(codec.DefaultOptions())
	if err != nil {
		return err
	}
	if opts.Format == "" {
		opts = codec.DefaultOptions()
	}
	kb, err := s.studio.EstimateSize(c.Request().Context(), src, opts)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"format": opts.Format, "size_kb": kb})
}
