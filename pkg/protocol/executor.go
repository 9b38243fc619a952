package protocol

import "context"

// JobExecutor hands a persisted job to a best-effort, at-least-once
// asynchronous delivery mechanism. The dispatcher assumes the job will run
// "soon", never synchronously.
type JobExecutor interface {
	Submit(ctx context.Context, jobID string) error
}
