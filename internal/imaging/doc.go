// Package imaging provides the pixel-level primitives the detection
// pipeline is built on: decoding scanned sheet images and reducing them to
// a grayscale luminance buffer that region sampling reads from.
//
// The package deliberately knows nothing about templates, fields, or
// thresholds. It answers exactly two questions: "what does this sheet file
// contain" (LoadImage, ReadImageInfo) and "how dark is this rectangle"
// (Buffer.MeanIntensity).
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner,
// X increasing rightward and Y increasing downward. Region rectangles are
// inclusive at (x,y) and extend width x height pixels.
//
// # Intensity Convention
//
// Luminance values range 0-255 with 0 = black. A filled bubble therefore
// produces a LOWER mean intensity than an empty one; every threshold in
// the detection package classifies values below the threshold as marked.
//
// # Thread Safety
//
// Buffer is immutable after construction and safe for concurrent reads.
// Loading functions are stateless.
package imaging
