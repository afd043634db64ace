// Package blobstore abstracts the byte storage behind snapshot
// archives.
//
// A Store is a flat namespace of named blobs with five operations:
// Open for random-access reads, Create for streaming writes, Put for
// small whole blobs, Delete and List. Implementations:
//
//   - LocalStore: files on disk, memory-mapped reads, atomic
//     temp-file-and-rename writes
//   - MemoryStore: in-process, for tests
//   - minio.Store: any S3-compatible endpoint via the MinIO client
//   - s3.Store: AWS S3 via the official SDK, optionally paired with
//     s3.DDBCommitStore for conditional commits through DynamoDB
//
// All read and write paths take a context. Writers created by Create
// are not durable until Close returns nil.
package blobstore
