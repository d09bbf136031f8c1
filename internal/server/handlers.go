package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/batch"
	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/studio"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_info", "image_edit").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// toolError is the data attached to a failed tool call.
type toolError struct {
	Kind    imgerr.Kind `json:"kind"`
	Message string      `json:"message"`
}

// inliner is implemented by results that carry an encoded image.
type inliner interface {
	inline() (data []byte, mimeType string, ok bool)
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Results that produce an image not written to disk get a second content
// entry of type "image". Failures caused by the request (invalid parameter,
// unsupported operation, undecodable input) return code -32602; every other
// failure returns -32000. Both carry {kind, message} as data.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", toolError{
			Kind:    imgerr.KindInvalidParameter,
			Message: err.Error(),
		})
	}

	result, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		err = imgerr.Classify(params.Name, err)
		kind := imgerr.KindOf(err)
		s.log.WithFields(logrus.Fields{"tool": params.Name, "kind": kind}).WithError(err).Warn("tool failed")

		code, message := codeToolFailure, "Tool execution failed"
		if imgerr.IsClientError(err) {
			code, message = codeInvalidParams, "Invalid params"
		}
		return s.errorResponse(req.ID, code, message, toolError{Kind: kind, Message: err.Error()})
	}

	content := []map[string]interface{}{
		{
			"type": "text",
			"text": mustMarshalJSON(result),
		},
	}
	if img, ok := result.(inliner); ok {
		if data, mime, ok := img.inline(); ok {
			content = append(content, map[string]interface{}{
				"type":     "image",
				"data":     base64.StdEncoding.EncodeToString(data),
				"mimeType": mime,
			})
		}
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": content,
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Resolves the image source (path or inline data)
//  4. Calls the studio
//  5. Returns the result or error
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_info":
		return s.handleImageInfo(args)
	case "image_list_operations":
		return s.handleListOperations()
	case "image_edit":
		return s.handleImageEdit(ctx, args)
	case "image_batch":
		return s.handleImageBatch(ctx, args)
	case "image_palette":
		return s.handleImagePalette(ctx, args)
	case "image_ocr":
		return s.handleImageOCR(ctx, args)
	case "image_compress":
		return s.handleImageCompress(ctx, args)
	case "image_estimate_size":
		return s.handleEstimateSize(ctx, args)
	case "image_recent_jobs":
		return s.handleRecentJobs(ctx, args)
	default:
		return nil, imgerr.Invalid("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message string, data interface{}) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure it returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

// decodeArgs unmarshals tool arguments; a missing object is treated as {}.
func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return imgerr.Invalid("invalid arguments: %v", err)
	}
	return nil
}

// === Image sources and results ===

type imageSource struct {
	Path        string `json:"path"`
	ImageBase64 string `json:"image_base64"`
}

// source resolves the arguments into a studio source. Data URLs
// ("data:image/png;base64,...") are accepted.
func (a imageSource) source() (studio.Source, error) {
	if a.ImageBase64 == "" {
		return studio.File(a.Path), nil
	}
	payload := a.ImageBase64
	if strings.HasPrefix(payload, "data:") {
		if i := strings.IndexByte(payload, ','); i >= 0 {
			payload = payload[i+1:]
		}
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return studio.Source{}, imgerr.Invalid("image_base64 is not valid base64")
	}
	return studio.Bytes(data), nil
}

type stepArgs struct {
	Name   string                 `json:"name"`
	Params map[string]interface{} `json:"params"`
	Images []imageSource          `json:"images"`
}

func (s *Server) descriptors(steps []stepArgs) ([]imaging.Descriptor, error) {
	out := make([]imaging.Descriptor, len(steps))
	for i, st := range steps {
		d := imaging.Op(st.Name, imaging.Params(st.Params))
		for j, is := range st.Images {
			src, err := is.source()
			if err != nil {
				return nil, err
			}
			img, err := s.studio.Image(src)
			if err != nil {
				return nil, errors.WithMessagef(err, "step %d (%s) image %d", i, st.Name, j)
			}
			d.Images = append(d.Images, img)
		}
		out[i] = d
	}
	return out, nil
}

// outputOptions reads an "output" object; nil means "keep the source
// format" for edits. A missing format inside the object means def's.
func outputOptions(m map[string]interface{}, def codec.Options) (codec.Options, error) {
	if len(m) == 0 {
		return codec.Options{}, nil
	}
	return imaging.OutputOptions(imaging.Params(m), def)
}

// imageOutput describes an encoded image. Without a path the bytes are
// returned inline as an image content entry.
type imageOutput struct {
	Format    codec.Format `json:"format"`
	Width     int          `json:"width,omitempty"`
	Height    int          `json:"height,omitempty"`
	SizeBytes int          `json:"size_bytes"`
	Path      string       `json:"path,omitempty"`

	data []byte
}

func (o *imageOutput) inline() ([]byte, string, bool) {
	return o.data, o.Format.MimeType(), o.Path == ""
}

func writeOutput(data []byte, format codec.Format, path string) (*imageOutput, error) {
	out := &imageOutput{Format: format, SizeBytes: len(data), data: data}
	if path == "" {
		return out, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errors.Wrap(err, "failed to write output")
	}
	out.Path = path
	return out, nil
}

// === Handlers ===

func (s *Server) handleImageInfo(args json.RawMessage) (interface{}, error) {
	var a imageSource
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	return s.studio.Info(src)
}

func (s *Server) handleListOperations() (interface{}, error) {
	return map[string]interface{}{
		"operations":       s.studio.Operations(),
		"batch_operations": s.studio.BatchOperations(),
		"ocr":              s.studio.OCRInfo(),
		"pools":            s.studio.Stats(),
	}, nil
}

type imageEditArgs struct {
	imageSource
	Steps        []stepArgs             `json:"steps"`
	Branches     []stepArgs             `json:"branches"`
	MergeOpacity *float64               `json:"merge_opacity"`
	Output       map[string]interface{} `json:"output"`
	OutputPath   string                 `json:"output_path"`
}

func (s *Server) handleImageEdit(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageEditArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	req := studio.EditRequest{MergeOpacity: a.MergeOpacity}
	if req.Steps, err = s.descriptors(a.Steps); err != nil {
		return nil, err
	}
	if req.Branches, err = s.descriptors(a.Branches); err != nil {
		return nil, err
	}
	if req.Output, err = outputOptions(a.Output, codec.DefaultOptions()); err != nil {
		return nil, err
	}

	res, err := s.studio.Edit(ctx, src, req)
	if err != nil {
		return nil, err
	}
	out, err := writeOutput(res.Data, res.Format, a.OutputPath)
	if err != nil {
		return nil, err
	}
	out.Width, out.Height = res.Width, res.Height
	return out, nil
}

type imageBatchArgs struct {
	Paths       []string               `json:"paths"`
	Operation   string                 `json:"operation"`
	Params      map[string]interface{} `json:"params"`
	Output      map[string]interface{} `json:"output"`
	OutputDir   string                 `json:"output_dir"`
	ArchivePath string                 `json:"archive_path"`
}

type batchOutcome struct {
	batch.Outcome
	Path string `json:"path,omitempty"`
}

type batchSummary struct {
	JobID       string         `json:"job_id"`
	Operation   string         `json:"operation"`
	State       batch.State    `json:"state"`
	DurationMS  int64          `json:"duration_ms"`
	Succeeded   int            `json:"succeeded"`
	Failed      int            `json:"failed"`
	Outcomes    []batchOutcome `json:"outcomes"`
	ArchivePath string         `json:"archive_path,omitempty"`
}

func (s *Server) handleImageBatch(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageBatchArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	req := batch.Request{Op: a.Operation, Params: imaging.Params(a.Params)}
	var err error
	if req.Output, err = outputOptions(a.Output, batch.DefaultOutput()); err != nil {
		return nil, err
	}
	srcs := make([]studio.Source, len(a.Paths))
	for i, p := range a.Paths {
		srcs[i] = studio.Source{Path: p, Name: filepath.Base(p)}
	}

	job, err := s.studio.Batch(ctx, req, srcs)
	if err != nil {
		return nil, err
	}

	summary := &batchSummary{
		JobID:      job.ID,
		Operation:  job.Operation,
		State:      job.State(),
		DurationMS: job.Duration().Milliseconds(),
		Succeeded:  job.Succeeded(),
		Failed:     job.Failed(),
		Outcomes:   make([]batchOutcome, len(job.Outcomes)),
	}
	if a.OutputDir != "" {
		if err := os.MkdirAll(a.OutputDir, 0o755); err != nil {
			return nil, errors.Wrap(err, "failed to create output directory")
		}
	}
	for i, o := range job.Outcomes {
		summary.Outcomes[i] = batchOutcome{Outcome: o}
		if a.OutputDir == "" || !o.OK() {
			continue
		}
		path := filepath.Join(a.OutputDir, o.FileName(job.Output.Format))
		if err := os.WriteFile(path, o.Output, 0o644); err != nil {
			return nil, errors.Wrap(err, "failed to write output")
		}
		summary.Outcomes[i].Path = path
	}

	if a.ArchivePath != "" {
		if err := writeArchive(job, a.ArchivePath); err != nil {
			return nil, err
		}
		summary.ArchivePath = a.ArchivePath
	}
	return summary, nil
}

func writeArchive(job *batch.Job, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "failed to create archive")
	}
	if err := job.Archive(f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "failed to close archive")
}

type imagePaletteArgs struct {
	imageSource
	NumColors int `json:"num_colors"`
}

func (s *Server) handleImagePalette(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imagePaletteArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.NumColors == 0 {
		a.NumColors = 5
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	colors, err := s.studio.Palette(ctx, src, a.NumColors)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"colors": colors}, nil
}

func (s *Server) handleImageOCR(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a imageSource
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	return s.studio.ExtractText(ctx, src)
}

type compressResult struct {
	*imageOutput
	Quality   int     `json:"quality"`
	Attempts  int     `json:"attempts"`
	SizeKB    float64 `json:"size_kb"`
	MetTarget bool    `json:"met_target"`
}

func (s *Server) handleImageCompress(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		imageSource
		OutputPath string `json:"output_path"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	params := imaging.Params{}
	if err := decodeArgs(args, &params); err != nil {
		return nil, err
	}
	opts, err := imaging.CompressOptions(params)
	if err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}

	res, err := s.studio.Compress(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	out, err := writeOutput(res.Data, res.Format, a.OutputPath)
	if err != nil {
		return nil, err
	}
	return &compressResult{
		imageOutput: out,
		Quality:     res.Quality,
		Attempts:    res.Attempts,
		SizeKB:      res.SizeKB,
		MetTarget:   res.MetTarget,
	}, nil
}

func (s *Server) handleEstimateSize(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		imageSource
		Output map[string]interface{} `json:"output"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	opts, err := imaging.OutputOptions(imaging.Params(a.Output), codec.DefaultOptions())
	if err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	kb, err := s.studio.EstimateSize(ctx, src, opts)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"format": opts.Format, "size_kb": kb}, nil
}

func (s *Server) handleRecentJobs(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var a struct {
		Limit int `json:"limit"`
	}
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Limit == 0 {
		a.Limit = 10
	}
	jobs, err := s.studio.RecentJobs(ctx, a.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"jobs": jobs}, nil
}
