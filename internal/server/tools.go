package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// schema builds an object schema whose properties start with the image
// source fields (path or image_base64).
func schema(withSource bool, props map[string]interface{}, required ...string) map[string]interface{} {
	all := map[string]interface{}{}
	if withSource {
		all["path"] = map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file",
		}
		all["image_base64"] = map[string]interface{}{
			"type":        "string",
			"description": "Encoded image bytes in base64, used instead of path",
		}
	}
	for k, v := range props {
		all[k] = v
	}
	s := map[string]interface{}{
		"type":       "object",
		"properties": all,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var stepSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"name": map[string]interface{}{
			"type":        "string",
			"description": "Operation name, see image_list_operations",
		},
		"params": map[string]interface{}{
			"type":        "object",
			"description": "Operation parameters",
		},
		"images": map[string]interface{}{
			"type":        "array",
			"description": "Extra images for add_layer, collage and stitch",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":         map[string]interface{}{"type": "string"},
					"image_base64": map[string]interface{}{"type": "string"},
				},
			},
		},
	},
	"required": []string{"name"},
}

var outputSchema = map[string]interface{}{
	"type":        "object",
	"description": "Encoding of the result. Without it the source format is kept.",
	"properties": map[string]interface{}{
		"format": map[string]interface{}{
			"type": "string",
			"enum": []string{"jpeg", "png", "webp", "bmp", "gif", "tiff"},
		},
		"quality":         map[string]interface{}{"type": "integer", "description": "1-100 (jpeg, webp). Default 90"},
		"compression":     map[string]interface{}{"type": "integer", "description": "0-9 (png, tiff). Default 6"},
		"width":           map[string]interface{}{"type": "integer"},
		"height":          map[string]interface{}{"type": "integer"},
		"maintain_aspect": map[string]interface{}{"type": "boolean", "default": true},
		"color_mode":      map[string]interface{}{"type": "string", "enum": []string{"RGB", "L", "CMYK"}},
		"dpi":             map[string]interface{}{"type": "integer", "enum": []int{72, 150, 300}},
		"background":      map[string]interface{}{"type": "string", "description": "Hex color used when flattening transparency"},
		"lossless":        map[string]interface{}{"type": "boolean"},
	},
}

var outputPathProp = map[string]interface{}{
	"type":        "string",
	"description": "Write the result to this file instead of returning it inline",
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_info",
			Description: "Return the width, height, format, transparency and byte size of an image.",
			InputSchema: schema(true, nil),
		},
		{
			Name:        "image_list_operations",
			Description: "List every editing operation with its parameters, the operations accepted by image_batch, and OCR availability.",
			InputSchema: schema(false, nil),
		},
		{
			Name: "image_edit",
			Description: "Apply a chain of operations to an image in order. Optional branches are then applied in parallel to the chained " +
				"result and blended back together with merge_opacity. Returns the encoded image.",
			InputSchema: schema(true, map[string]interface{}{
				"steps": map[string]interface{}{
					"type":        "array",
					"description": "Operations applied one after another",
					"items":       stepSchema,
				},
				"branches": map[string]interface{}{
					"type":        "array",
					"description": "Operations applied in parallel to the same image, then merged",
					"items":       stepSchema,
				},
				"merge_opacity": map[string]interface{}{
					"type":        "number",
					"description": "0 to 1 blend of the branch results. Default 1.0",
					"default":     1.0,
				},
				"output":      outputSchema,
				"output_path": outputPathProp,
			}),
		},
		{
			Name: "image_batch",
			Description: "Apply one operation to many image files in parallel. A failing image does not stop the others; " +
				"its slot reports the failure kind and message.",
			InputSchema: schema(false, map[string]interface{}{
				"paths": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Absolute paths of the input images",
				},
				"operation": map[string]interface{}{
					"type":        "string",
					"description": "One of the batch operations listed by image_list_operations",
				},
				"params": map[string]interface{}{
					"type":        "object",
					"description": "Operation parameters; missing ones take the batch defaults",
				},
				"output": outputSchema,
				"output_dir": map[string]interface{}{
					"type":        "string",
					"description": "Directory receiving one file per successful image",
				},
				"archive_path": map[string]interface{}{
					"type":        "string",
					"description": "Zip file receiving every output plus failures.json",
				},
			}, "paths", "operation"),
		},
		{
			Name:        "image_palette",
			Description: "Extract the dominant colors of an image with k-means clustering.",
			InputSchema: schema(true, map[string]interface{}{
				"num_colors": map[string]interface{}{
					"type":        "integer",
					"description": "Number of colors to return (default 5)",
					"default":     5,
				},
			}),
		},
		{
			Name:        "image_ocr",
			Description: "Extract text from an image with Tesseract. Returns the full text and word regions with confidence.",
			InputSchema: schema(true, nil),
		},
		{
			Name: "image_compress",
			Description: "Re-encode an image at decreasing quality until it fits target_size_kb or quality reaches 10. " +
				"PNG and lossless WEBP stop after one attempt.",
			InputSchema: schema(true, map[string]interface{}{
				"target_size_kb": map[string]interface{}{"type": "number", "description": "Size to fit, in KB"},
				"format": map[string]interface{}{
					"type":    "string",
					"enum":    []string{"jpeg", "png", "webp"},
					"default": "jpeg",
				},
				"quality": map[string]interface{}{"type": "integer", "description": "Starting quality (default 80)"},
				"quantization": map[string]interface{}{
					"type": "string",
					"enum": []string{"standard", "high", "low"},
				},
				"lossless":    map[string]interface{}{"type": "boolean"},
				"output_path": outputPathProp,
			}, "target_size_kb"),
		},
		{
			Name:        "image_estimate_size",
			Description: "Report the size in KB an image would have when encoded with the given output options.",
			InputSchema: schema(true, map[string]interface{}{
				"output": outputSchema,
			}),
		},
		{
			Name:        "image_recent_jobs",
			Description: "List the most recent batch jobs from the job log.",
			InputSchema: schema(false, map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of jobs (default 10)",
					"default":     10,
				},
			}),
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
