package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

// createTestImage returns a w×h PNG whose left half is left and right half
// is right.
func createTestImage(t *testing.T, w, h int, left, right color.Color) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x < w/2 {
				img.Set(x, y, left)
			} else {
				img.Set(x, y, right)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode image: %v", err)
	}
	return buf.Bytes()
}

// createTestImageFile writes a solid PNG into the test's temp dir.
func createTestImageFile(t *testing.T, name string, width, height int, c color.Color) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, createTestImage(t, width, height, c, c), 0o644); err != nil {
		t.Fatalf("failed to write image: %v", err)
	}
	return path
}

func callTool(t *testing.T, s *Server, name string, args map[string]interface{}) *MCPResponse {
	t.Helper()
	params, err := json.Marshal(map[string]interface{}{"name": name, "arguments": args})
	if err != nil {
		t.Fatal(err)
	}
	resp := s.handleRequest(context.Background(), &MCPRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	})
	if resp == nil {
		t.Fatal("handleRequest returned nil")
	}
	return resp
}

func toolContent(t *testing.T, resp *MCPResponse) []map[string]interface{} {
	t.Helper()
	if resp.Error != nil {
		t.Fatalf("Unexpected error: %+v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("Result should be a map, got %T", resp.Result)
	}
	content, ok := result["content"].([]map[string]interface{})
	if !ok || len(content) == 0 {
		t.Fatalf("content missing: %v", result)
	}
	return content
}

// decodeResult unmarshals the text entry of a successful tool call.
func decodeResult(t *testing.T, resp *MCPResponse, v interface{}) []map[string]interface{} {
	t.Helper()
	content := toolContent(t, resp)
	if content[0]["type"] != "text" {
		t.Fatalf("first content entry: got type %v", content[0]["type"])
	}
	if err := json.Unmarshal([]byte(content[0]["text"].(string)), v); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	return content
}

func inlineImage(t *testing.T, content []map[string]interface{}) image.Image {
	t.Helper()
	if len(content) != 2 || content[1]["type"] != "image" {
		t.Fatalf("expected an image content entry, got %d entries", len(content))
	}
	data, err := base64.StdEncoding.DecodeString(content[1]["data"].(string))
	if err != nil {
		t.Fatal(err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("inline image does not decode: %v", err)
	}
	return img
}

func b64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

func TestImageInfo(t *testing.T) {
	s := newTestServer(t)
	path := createTestImageFile(t, "info.png", 100, 80, color.RGBA{255, 0, 0, 255})

	var info struct {
		Width    int    `json:"width"`
		Height   int    `json:"height"`
		Format   string `json:"format"`
		HasAlpha bool   `json:"has_alpha"`
	}
	decodeResult(t, callTool(t, s, "image_info", map[string]interface{}{"path": path}), &info)
	if info.Width != 100 || info.Height != 80 || info.Format != "png" || info.HasAlpha {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestImageInfo_DataURL(t *testing.T) {
	s := newTestServer(t)
	data := createTestImage(t, 12, 9, color.White, color.Black)

	var info struct {
		Width int `json:"width"`
	}
	decodeResult(t, callTool(t, s, "image_info", map[string]interface{}{
		"image_base64": "data:image/png;base64," + b64(data),
	}), &info)
	if info.Width != 12 {
		t.Errorf("width: got %d, want 12", info.Width)
	}
}

func TestImageEdit_Inline(t *testing.T) {
	s := newTestServer(t)
	data := createTestImage(t, 40, 30, color.RGBA{200, 50, 50, 255}, color.RGBA{50, 50, 200, 255})

	var out imageOutput
	content := decodeResult(t, callTool(t, s, "image_edit", map[string]interface{}{
		"image_base64": b64(data),
		"steps": []map[string]interface{}{
			{"name": "rotate", "params": map[string]interface{}{"angle": 90}},
			{"name": "brightness", "params": map[string]interface{}{"factor": 1.2}},
		},
	}), &out)

	if out.Width != 30 || out.Height != 40 || out.Format != "png" {
		t.Errorf("unexpected output: %+v", out)
	}
	if content[1]["mimeType"] != "image/png" {
		t.Errorf("mimeType: got %v", content[1]["mimeType"])
	}
	img := inlineImage(t, content)
	if img.Bounds().Dx() != 30 || img.Bounds().Dy() != 40 {
		t.Errorf("inline image: got %v", img.Bounds())
	}
}

func TestImageEdit_OutputPath(t *testing.T) {
	s := newTestServer(t)
	src := createTestImageFile(t, "src.png", 64, 48, color.RGBA{0, 128, 0, 255})
	dst := filepath.Join(t.TempDir(), "out.jpg")

	var out imageOutput
	content := decodeResult(t, callTool(t, s, "image_edit", map[string]interface{}{
		"path":        src,
		"steps":       []map[string]interface{}{{"name": "grayscale"}},
		"output":      map[string]interface{}{"format": "jpg", "quality": 70},
		"output_path": dst,
	}), &out)

	if len(content) != 1 {
		t.Errorf("no inline image expected when writing to a file, got %d entries", len(content))
	}
	if out.Path != dst || out.Format != "jpeg" {
		t.Errorf("unexpected output: %+v", out)
	}
	written, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != out.SizeBytes {
		t.Errorf("file size %d, reported %d", len(written), out.SizeBytes)
	}
}

func TestImageEdit_LayersAndBranches(t *testing.T) {
	s := newTestServer(t)
	base := createTestImage(t, 50, 50, color.White, color.White)
	overlay := createTestImageFile(t, "overlay.png", 20, 20, color.Black)

	var out imageOutput
	decodeResult(t, callTool(t, s, "image_edit", map[string]interface{}{
		"image_base64": b64(base),
		"steps": []map[string]interface{}{
			{"name": "add_layer", "images": []map[string]interface{}{{"path": overlay}}},
			{"name": "merge_layers", "params": map[string]interface{}{"opacity": 0.5}},
		},
		"branches": []map[string]interface{}{
			{"name": "sepia"},
			{"name": "blur", "params": map[string]interface{}{"radius": 2}},
		},
		"merge_opacity": 0.5,
	}), &out)

	if out.Width != 50 || out.Height != 50 {
		t.Errorf("unexpected size: %+v", out)
	}
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)
	png := b64(createTestImage(t, 20, 20, color.White, color.Black))

	tests := []struct {
		name     string
		tool     string
		args     map[string]interface{}
		wantCode int
		wantKind string
	}{
		{"unknown tool", "image_explode", nil, -32602, "invalid_parameter"},
		{"no source", "image_info", map[string]interface{}{}, -32602, "invalid_parameter"},
		{"bad base64", "image_info", map[string]interface{}{"image_base64": "%%%"}, -32602, "invalid_parameter"},
		{"garbage image", "image_info", map[string]interface{}{"image_base64": b64([]byte("hello"))}, -32602, "decode_failure"},
		{"missing file", "image_info", map[string]interface{}{"path": "/nonexistent/x.png"}, -32602, "invalid_parameter"},
		{
			"unknown operation", "image_edit",
			map[string]interface{}{"image_base64": png, "steps": []map[string]interface{}{{"name": "levitate"}}},
			-32602, "unsupported_operation",
		},
		{
			"out of range", "image_edit",
			map[string]interface{}{"image_base64": png, "steps": []map[string]interface{}{{"name": "brightness", "params": map[string]interface{}{"factor": 3}}}},
			-32602, "invalid_parameter",
		},
		{
			"bad output", "image_edit",
			map[string]interface{}{"image_base64": png, "output": map[string]interface{}{"format": "png", "color_mode": "CMYK"}},
			-32000, "encode_failure",
		},
		{"missing target", "image_compress", map[string]interface{}{"image_base64": png}, -32602, "invalid_parameter"},
		{"zero colors", "image_palette", map[string]interface{}{"image_base64": png, "num_colors": -1}, -32602, "invalid_parameter"},
		{"batch op", "image_batch", map[string]interface{}{"paths": []string{"/x.png"}, "operation": "stitch"}, -32602, "unsupported_operation"},
		{"wrong type", "image_palette", map[string]interface{}{"num_colors": "five"}, -32602, "invalid_parameter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := callTool(t, s, tt.tool, tt.args)
			if resp.Error == nil {
				t.Fatalf("expected an error, got %+v", resp.Result)
			}
			if resp.Error.Code != tt.wantCode {
				t.Errorf("code: got %d, want %d (%v)", resp.Error.Code, tt.wantCode, resp.Error.Data)
			}
			data, ok := resp.Error.Data.(toolError)
			if !ok {
				t.Fatalf("error data: got %T", resp.Error.Data)
			}
			if string(data.Kind) != tt.wantKind {
				t.Errorf("kind: got %s, want %s (%s)", data.Kind, tt.wantKind, data.Message)
			}
		})
	}
}

func TestImageBatch(t *testing.T) {
	s := newTestServer(t)
	a := createTestImageFile(t, "a.png", 30, 20, color.RGBA{255, 0, 0, 255})
	b := createTestImageFile(t, "b.png", 30, 20, color.RGBA{0, 0, 255, 255})
	outDir := filepath.Join(t.TempDir(), "out")
	archive := filepath.Join(t.TempDir(), "job.zip")

	var summary struct {
		JobID     string `json:"job_id"`
		State     string `json:"state"`
		Succeeded int    `json:"succeeded"`
		Failed    int    `json:"failed"`
		Outcomes  []struct {
			Index   int    `json:"index"`
			Name    string `json:"name"`
			Path    string `json:"path"`
			Failure *struct {
				Kind string `json:"kind"`
			} `json:"failure"`
		} `json:"outcomes"`
		ArchivePath string `json:"archive_path"`
	}
	decodeResult(t, callTool(t, s, "image_batch", map[string]interface{}{
		"paths":        []string{a, "/nonexistent/missing.png", b},
		"operation":    "auto-enhance",
		"output":       map[string]interface{}{"format": "png"},
		"output_dir":   outDir,
		"archive_path": archive,
	}), &summary)

	if summary.State != "completed" || summary.Succeeded != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Outcomes[1].Failure == nil || summary.Outcomes[1].Failure.Kind != "decode_failure" {
		t.Errorf("outcome 1: got %+v", summary.Outcomes[1])
	}
	if summary.Outcomes[0].Name != "a.png" {
		t.Errorf("outcome 0 name: got %s", summary.Outcomes[0].Name)
	}
	for _, i := range []int{0, 2} {
		if _, err := os.Stat(summary.Outcomes[i].Path); err != nil {
			t.Errorf("outcome %d not written: %v", i, err)
		}
	}

	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 3 {
		t.Errorf("archive entries: got %d, want 3", len(zr.File))
	}
}

func TestImagePalette(t *testing.T) {
	s := newTestServer(t)
	data := createTestImage(t, 150, 150, color.RGBA{255, 0, 0, 255}, color.RGBA{0, 0, 255, 255})

	var result struct {
		Colors []struct {
			Hex        string  `json:"hex"`
			Percentage float64 `json:"percentage"`
		} `json:"colors"`
	}
	decodeResult(t, callTool(t, s, "image_palette", map[string]interface{}{
		"image_base64": b64(data),
		"num_colors":   2,
	}), &result)

	if len(result.Colors) != 2 {
		t.Fatalf("got %d colors, want 2", len(result.Colors))
	}
	seen := map[string]bool{}
	for _, c := range result.Colors {
		seen[c.Hex] = true
	}
	if !seen["#ff0000"] || !seen["#0000ff"] {
		t.Errorf("palette: got %+v", result.Colors)
	}
}

func TestImageCompress(t *testing.T) {
	s := newTestServer(t)
	data := createTestImage(t, 80, 60, color.RGBA{10, 120, 200, 255}, color.RGBA{240, 240, 20, 255})

	var result struct {
		Format    string  `json:"format"`
		Quality   int     `json:"quality"`
		SizeKB    float64 `json:"size_kb"`
		MetTarget bool    `json:"met_target"`
	}
	content := decodeResult(t, callTool(t, s, "image_compress", map[string]interface{}{
		"image_base64":   b64(data),
		"target_size_kb": 500,
		"quality":        85,
	}), &result)

	if !result.MetTarget || result.Format != "jpeg" || result.Quality != 85 {
		t.Errorf("unexpected result: %+v", result)
	}
	if content[1]["mimeType"] != "image/jpeg" {
		t.Errorf("mimeType: got %v", content[1]["mimeType"])
	}
}

func TestImageEstimateSize(t *testing.T) {
	s := newTestServer(t)
	data := createTestImage(t, 80, 60, color.White, color.Black)

	var result struct {
		Format string  `json:"format"`
		SizeKB float64 `json:"size_kb"`
	}
	decodeResult(t, callTool(t, s, "image_estimate_size", map[string]interface{}{
		"image_base64": b64(data),
		"output":       map[string]interface{}{"format": "bmp"},
	}), &result)

	// 80×60 at 24 bits plus headers.
	if result.Format != "bmp" || result.SizeKB < 14 {
		t.Errorf("unexpected estimate: %+v", result)
	}
}

func TestListOperationsAndJobs(t *testing.T) {
	s := newTestServer(t)

	var ops struct {
		Operations []struct {
			Name string `json:"name"`
		} `json:"operations"`
		BatchOperations []string `json:"batch_operations"`
	}
	decodeResult(t, callTool(t, s, "image_list_operations", nil), &ops)
	if len(ops.Operations) < 30 {
		t.Errorf("got %d operations", len(ops.Operations))
	}
	if len(ops.BatchOperations) != 15 {
		t.Errorf("got %d batch operations", len(ops.BatchOperations))
	}

	var jobs map[string]interface{}
	decodeResult(t, callTool(t, s, "image_recent_jobs", map[string]interface{}{"limit": 3}), &jobs)
	if _, ok := jobs["jobs"]; !ok {
		t.Errorf("jobs key missing: %v", jobs)
	}
}
