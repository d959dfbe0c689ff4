package storage

import (
	"context"

	"github.com/marmos91/blobnode/internal/gate"
)

// Admission bounds how many uploads and downloads run at once. The two
// pools are fully independent: saturating one never delays the other.
type Admission struct {
	uploads   *gate.Gate
	downloads *gate.Gate
}

// NewAdmission builds the two gates from configured capacities.
func NewAdmission(uploadSlots, downloadSlots int64) *Admission {
	return &Admission{
		uploads:   gate.New(uploadSlots),
		downloads: gate.New(downloadSlots),
	}
}

// AcquireUpload takes an upload slot, suspending under saturation. On error
// the caller holds nothing.
func (a *Admission) AcquireUpload(ctx context.Context) error {
	return a.uploads.Acquire(ctx)
}

// ReleaseUpload frees a slot taken by AcquireUpload. Exactly once per
// successful acquire, on every exit path.
func (a *Admission) ReleaseUpload() {
	a.uploads.Release()
}

// AcquireDownload takes a download slot, suspending under saturation.
func (a *Admission) AcquireDownload(ctx context.Context) error {
	return a.downloads.Acquire(ctx)
}

// ReleaseDownload frees a slot taken by AcquireDownload.
func (a *Admission) ReleaseDownload() {
	a.downloads.Release()
}
