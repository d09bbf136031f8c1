// Package server implements the MCP (Model Context Protocol) server for image-studio.
//
// This package provides a JSON-RPC 2.0 server that exposes the editing studio
// through the MCP protocol, so that AI clients can edit, convert, compress
// and batch-process images.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Inspection:
//   - image_info: Dimensions, format, transparency and size
//   - image_list_operations: Operation catalogue with parameters
//
// Editing:
//   - image_edit: Sequential chain, then optional parallel branches merged back
//   - image_compress: Quality search toward a target size
//   - image_estimate_size: Encoded size for given output options
//
// Analysis:
//   - image_palette: Dominant colors (k-means)
//   - image_ocr: Text and word regions (Tesseract)
//
// Batch:
//   - image_batch: One operation over many files with per-image failures
//   - image_recent_jobs: Batch jobs from the job log
//
// # Image Sources
//
// Tools taking an image accept either "path" (decoded once and cached for the
// life of the process) or "image_base64" (raw base64 or a data URL). Images
// produced by a tool are written to "output_path" when given, otherwise
// returned as a second content entry of type "image".
//
// # Error Handling
//
// Tool errors are JSON-RPC error responses whose data is {kind, message}:
//   - code -32602 for invalid_parameter, unsupported_operation and decode_failure
//   - code -32000 for transform_failure, encode_failure and I/O errors
//
// # Usage
//
// The server is typically started by an MCP client through the CLI:
//
//	image-studio mcp --config /etc/image-studio.yaml
package server
