// Package notifytest provides a recording Dispatcher for tests.
package notifytest

import (
	"context"
	"sync"

	"github.com/sakif/guildgate/internal/notify"
)

// Call is one recorded Dispatcher call.
type Call struct {
	Method     string
	Recipient  notify.Recipient
	Reason     string
	Receipt    notify.Receipt
	GroupID    string
	RoleID     string
	ExternalID string
	Review     notify.ReviewRequest
}

// Recorder is a Dispatcher that records every call. Set an Err field to make
// the matching method fail.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	ApprovalErr error
	RejectErr   error
	ReceiptErr  error
	RoleErr     error
	ReviewErr   error
	// ReviewMessageID is returned from SendStaffReviewRequest.
	ReviewMessageID string
}

var _ notify.Dispatcher = (*Recorder)(nil)

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

// Calls returns the recorded calls, optionally only those of method.
func (r *Recorder) Calls(method string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) SendApproval(ctx context.Context, to notify.Recipient) error {
	r.record(Call{Method: "SendApproval", Recipient: to})
	return r.ApprovalErr
}

func (r *Recorder) SendRejection(ctx context.Context, to notify.Recipient, reason string) error {
	r.record(Call{Method: "SendRejection", Recipient: to, Reason: reason})
	return r.RejectErr
}

func (r *Recorder) SendReceipt(ctx context.Context, to notify.Recipient, receipt notify.Receipt) error {
	r.record(Call{Method: "SendReceipt", Recipient: to, Receipt: receipt})
	return r.ReceiptErr
}

func (r *Recorder) GrantRole(ctx context.Context, groupID, externalID, roleID string) error {
	r.record(Call{Method: "GrantRole", GroupID: groupID, ExternalID: externalID, RoleID: roleID})
	return r.RoleErr
}

func (r *Recorder) SendStaffReviewRequest(ctx context.Context, req notify.ReviewRequest) (string, error) {
	r.record(Call{Method: "SendStaffReviewRequest", Recipient: req.Subject, Review: req})
	if r.ReviewErr != nil {
		return "", r.ReviewErr
	}
	return r.ReviewMessageID, nil
}
