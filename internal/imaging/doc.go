// Package imaging is the operation library of image-studio.
//
// Every editing operation is a pure function from one committed picture to a
// new image, registered by name in a [Registry]. Callers describe an
// operation with a [Descriptor] (name, parameters and optional extra images);
// [Registry.Prepare] validates the parameters and returns a [Func] that does
// the pixel work, so invalid requests fail before any pixels are touched.
//
// # Coordinate System
//
// All pixel coordinates in this package are 0-based with the origin at the
// top-left corner:
//   - X: horizontal position (0 = leftmost pixel)
//   - Y: vertical position (0 = topmost pixel)
//   - For boxes, (left, top) is inclusive and (right, bottom) is exclusive
//
// Rotation angles are counter-clockwise and the canvas grows to fit.
//
// # Pictures
//
// A [Picture] holds the canonical NRGBA pixels plus a lazily derived BGR
// frame for the vision routines. Pictures are immutable once built: an
// operation always returns a new image and never writes to its input, so a
// picture can be read by several goroutines at once.
//
// # Color Representation
//
// Colors are accepted as "#RRGGBB" hex strings. Palette entries are reported
// as hex, 8-bit RGB and HSL (hue 0-360, saturation and lightness 0-100).
//
// # Error Handling
//
// Errors carry an imgerr kind: InvalidParameter for bad arguments,
// UnsupportedOperation for unknown names and TransformFailure for anything
// that goes wrong while computing pixels, including recovered panics.
package imaging
