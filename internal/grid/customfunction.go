package grid

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/recrovit/rgfclient/internal/events"
	"github.com/recrovit/rgfclient/internal/models"
)

// CustomFunctionContext describes a server-side function call.
type CustomFunctionContext struct {
	FunctionName string

	// RequireQueryParams sends the current paging, sort and filter.
	RequireQueryParams bool
	CustomParams       map[string]any

	// EntityKey is the row the function runs on. Without it the selected
	// rows are sent.
	EntityKey *models.EntityKey

	// Toast, when set, is shown during the call and replaced by the outcome.
	Toast *events.Toast

	EnableProgressTracking bool

	// ProgressChanged receives progress reports. Without it, reports update
	// Toast.
	ProgressChanged func(models.ProgressArgs)
}

// CallCustomFunction runs a server-side function of the entity. It returns
// nil when the call failed in transport.
func (h *ListHandler) CallCustomFunction(ctx context.Context, c *CustomFunctionContext) (*models.Result[*models.CustomFunctionResult], error) {
	m := h.m
	var mu sync.Mutex
	toast := c.Toast
	if toast != nil {
		m.toast(ctx, toast, h)
	}

	var connectionID string
	if c.EnableProgressTracking && m.progress != nil && (c.ProgressChanged != nil || toast != nil) {
		report := c.ProgressChanged
		if report == nil {
			report = func(p models.ProgressArgs) {
				mu.Lock()
				toast = progressToast(toast, p)
				t := toast
				mu.Unlock()
				m.toast(context.WithoutCancel(ctx), t, h)
			}
		}
		tracker := m.progress(report)
		id, err := tracker.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to start progress tracking: %w", err)
		}
		defer func() {
			if err := tracker.Close(); err != nil {
				h.logger.WarnContext(ctx, "CallCustomFunction", "function", c.FunctionName, "err", err)
			}
		}()
		connectionID = id
	}

	req := m.CreateGridRequest(ctx, func(r *models.GridRequest) {
		r.EntityName = h.entity.EntityName
		r.EntityKey = c.EntityKey
		r.FunctionName = c.FunctionName
		r.ClientConnectionID = connectionID
		if selected := m.SelectedItems.Value(); c.EntityKey == nil && len(selected) > 0 {
			r.SelectParam = &models.SelectParam{SelectedKeys: selectedKeys(selected)}
		}
		if c.RequireQueryParams {
			r.ListParam = h.listParam
		}
		if c.CustomParams != nil {
			r.CustomParams = c.CustomParams
		}
	})
	res := m.CallCustomFunction(ctx, req)

	mu.Lock()
	defer mu.Unlock()
	switch {
	case res == nil:
		if toast != nil {
			m.toast(ctx, toast.Recreate(toast.Status, events.ToastError).WithDelay(errorToastDelay), h)
		}
	case toast != nil && toast.Type == events.ToastDefault:
		m.BroadcastMessages(ctx, res.Messages, h)
		if res.Success {
			m.toast(ctx, toast.RecreateAsSuccess(m.dict.UIString("Processed")), h)
		} else {
			m.toast(ctx, toast.Recreate(toast.Status, events.ToastWarning), h)
		}
	default:
		m.BroadcastMessages(ctx, res.Messages, h)
	}
	return res, nil
}

const errorToastDelay = 10 * time.Second

// progressToast replaces t with the state of a progress report. The toast
// stays on screen until the function ends.
func progressToast(t *events.Toast, p models.ProgressArgs) *events.Toast {
	status := p.Message
	if p.Percentage > 0 {
		status = strconv.FormatFloat(p.Percentage, 'f', 0, 64) + "% " + status
	}
	switch p.ProgressType {
	case models.ProgressSuccess:
		return t.Recreate(status, events.ToastSuccess)
	case models.ProgressError:
		return t.Recreate(status, events.ToastError)
	case models.ProgressCanceled:
		return t.Recreate(status, events.ToastWarning)
	default:
		return t.Recreate(status, events.ToastDefault).WithDelay(0)
	}
}

func selectedKeys(selected map[int]*models.EntityKey) []*models.EntityKey {
	keys := make([]*models.EntityKey, 0, len(selected))
	for _, i := range sortedRows(selected) {
		keys = append(keys, selected[i])
	}
	return keys
}
