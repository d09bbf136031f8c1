// Package ocr extracts text from images with Tesseract (via gosseract/v2).
//
// # Prerequisites
//
// Tesseract and its language data must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr tesseract-ocr-eng
//   - macOS: brew install tesseract
//
// A non-default data directory can be configured with the tessdata prefix
// (config key ocr.tessdata_prefix).
//
// # Languages
//
// The default language is English ("eng"). Other languages use their
// Tesseract codes, for example "deu", "fra" or "chi_sim"; several can be
// combined with "+", as in "eng+deu".
//
// # Concurrency
//
// An [Engine] is safe for concurrent use. Every call opens its own Tesseract
// client, so recognition runs in parallel up to the caller's pool size.
//
// # Error Handling
//
// Recognition failures are reported as TransformFailure with the message
// "tesseract OCR failed". If word bounding boxes cannot be read the text is
// still returned with an empty Regions slice.
package ocr
