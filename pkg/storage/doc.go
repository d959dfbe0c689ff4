// Package storage is the request-handling core of blobnode: it turns
// inbound byte streams into durably, atomically committed files and serves
// them back, under bounded concurrency and per-object mutual exclusion.
//
// The pipeline, leaves first:
//
//   - PathMapper derives every path from an object id: hash-sharded
//     canonical location, per-attempt temp path, per-object lock key.
//   - Admission bounds simultaneous uploads and downloads with two
//     independent gates.
//   - UploadCoordinator validates metadata, streams payload to an
//     exclusively created temp file while hashing it, then commits with
//     one atomic rename, versioning past occupied names.
//   - DownloadStreamer and DeletionHandler resolve an id or an explicit
//     relative path and read or remove the file.
//   - HealthProbe reports volume capacity and never faults.
//
// Faults carry a Code readable via CodeOf; upload validation failures are
// not faults but negative UploadResults. All components are constructed
// explicitly and injected through Service — there is no package-level
// state.
package storage
