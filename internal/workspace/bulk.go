package workspace

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agentyard/agentyard/pkg/types"
)

// BulkOp names the single-item operation a batch lifts.
type BulkOp string

const (
	BulkCreate BulkOp = "create"
	BulkUpdate BulkOp = "update"
	BulkDelete BulkOp = "delete"
)

// ValidateBulk checks the structural rules of a batch. Any violation
// rejects the whole batch before any item runs.
func (o *Ops) ValidateBulk(items []types.FileRequest) error {
	if len(items) == 0 {
		return opErr(KindInvalidBulk, "files must be a non-empty array")
	}
	if len(items) > o.maxBulk {
		return opErr(KindInvalidBulk, "too many files: %d (limit %d)", len(items), o.maxBulk)
	}
	for i, it := range items {
		if it.FilePath == "" {
			return opErr(KindInvalidBulk, "files[%d] is missing filePath", i)
		}
	}
	return nil
}

// Bulk fans the items out in parallel and gathers one record per input
// index. Partial failure is not a batch failure: callers get exact
// per-item accounting. Items share no in-memory state; the filesystem is
// the source of truth.
func (o *Ops) Bulk(ctx context.Context, op BulkOp, items []types.FileRequest) (*types.BulkResult, error) {
	if err := o.ValidateBulk(items); err != nil {
		return nil, err
	}

	start := time.Now()
	records := make([]types.BulkItemResult, len(items))

	var wg sync.WaitGroup
	for i, item := range items {
		wg.Add(1)
		go func(idx int, req types.FileRequest) {
			defer wg.Done()
			var res *types.FileResult
			var err error
			switch op {
			case BulkCreate:
				res, err = o.Create(ctx, req)
			case BulkUpdate:
				res, err = o.Update(ctx, req)
			case BulkDelete:
				res, err = o.Delete(ctx, req)
			default:
				err = opErr(KindInvalidBulk, "unknown bulk operation %q", op)
			}
			if err != nil {
				records[idx] = types.BulkItemResult{
					Index:   idx,
					File:    req.FilePath,
					Success: false,
					Error:   err.Error(),
					Type:    KindOf(err),
				}
				return
			}
			records[idx] = types.BulkItemResult{
				Index:   idx,
				File:    req.FilePath,
				Success: true,
				Result:  res,
			}
		}(i, item)
	}
	wg.Wait()

	out := &types.BulkResult{
		TotalFiles:      len(items),
		ExecutionTimeMs: time.Since(start).Milliseconds(),
		Results:         records,
	}
	for _, r := range records {
		if r.Success {
			out.SuccessCount++
		} else {
			out.ErrorCount++
			out.Errors = append(out.Errors, r)
		}
	}
	sort.Slice(out.Errors, func(i, j int) bool { return out.Errors[i].Index < out.Errors[j].Index })
	return out, nil
}
