// Package objectstore stores generated document artifacts in an S3
// compatible object store via the MinIO client.
package objectstore
