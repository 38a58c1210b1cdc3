// Package secret hides and recovers messages carried as extra chunks inside
// PNG streams. A message travels as an ordinary chunk frame: embedding
// appends one to the stream, extraction returns the first frame with the
// requested type, and removal rewrites the stream without it.
package secret
