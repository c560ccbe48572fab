package marketplace

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
)

// MaxBulkItems caps the number of ids in one bulk moderation call.
const MaxBulkItems = 500

type event string

const (
	eventSubmitted event = "submitted"
	eventApproved  event = "approved"
	eventRejected  event = "rejected"
)

// Approve moves a pending or rejected record to approved. Approving an
// approved record is an invalid transition.
func (s *service) Approve(ctx context.Context, schema *Schema, id uuid.UUID, req ApproveRequest) (*Record, error) {
	if err := s.checkModerator(schema, req.Actor); err != nil {
		return nil, err
	}
	rec, err := s.Get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusApproved {
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "approve",
			Err: fmt.Errorf("%w: already approved", ErrInvalidTransition)}
	}

	now := s.now()
	next := rec.Clone()
	next.Status = StatusApproved
	next.UpdatedAt = now
	next.Attributes[ColumnApprovedAt] = now
	next.Attributes[ColumnApprovedBy] = req.Actor.AdminID
	next.Attributes[ColumnAdminComments] = nullable(req.AdminComments)
	next.Attributes[ColumnRejectedAt] = nil
	next.Attributes[ColumnRejectedBy] = nil
	next.Attributes[ColumnRejectionReason] = nil

	if err := s.repository.Update(ctx, schema, next); err != nil {
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "approve", Err: err}
	}
	s.logger.Info("record approved", "entity", schema.Name, "id", id, "from", rec.Status, "admin", req.Actor.AdminID)
	s.notify(ctx, schema, next, eventApproved)
	return next, nil
}

// Reject moves a pending or approved record to rejected. A rejection
// reason is required.
func (s *service) Reject(ctx context.Context, schema *Schema, id uuid.UUID, req RejectRequest) (*Record, error) {
	if err := s.checkModerator(schema, req.Actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.RejectionReason)
	if reason == "" {
		return nil, NewValidationError(ColumnRejectionReason, "is required")
	}
	rec, err := s.Get(ctx, schema, id)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusRejected {
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "reject",
			Err: fmt.Errorf("%w: already rejected", ErrInvalidTransition)}
	}

	now := s.now()
	next := rec.Clone()
	next.Status = StatusRejected
	next.UpdatedAt = now
	next.Attributes[ColumnRejectedAt] = now
	next.Attributes[ColumnRejectedBy] = req.Actor.AdminID
	next.Attributes[ColumnRejectionReason] = reason
	next.Attributes[ColumnApprovedAt] = nil
	next.Attributes[ColumnApprovedBy] = nil
	next.Attributes[ColumnAdminComments] = nil

	if err := s.repository.Update(ctx, schema, next); err != nil {
		return nil, &RecordError{Entity: schema.Name, ID: id, Op: "reject", Err: err}
	}
	s.logger.Info("record rejected", "entity", schema.Name, "id", id, "from", rec.Status, "admin", req.Actor.AdminID)
	s.notify(ctx, schema, next, eventRejected)
	return next, nil
}

// BulkApprove approves each id independently and reports per-id failures.
func (s *service) BulkApprove(ctx context.Context, schema *Schema, ids []string, req ApproveRequest) (*BulkResult, error) {
	if err := s.checkBulk(schema, req.Actor, ids); err != nil {
		return nil, err
	}
	return s.bulk(schema, ids, func(id uuid.UUID) error {
		_, err := s.Approve(ctx, schema, id, req)
		return err
	}), nil
}

// BulkReject rejects each id independently with the same reason.
func (s *service) BulkReject(ctx context.Context, schema *Schema, ids []string, req RejectRequest) (*BulkResult, error) {
	if err := s.checkBulk(schema, req.Actor, ids); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.RejectionReason) == "" {
		return nil, NewValidationError(ColumnRejectionReason, "is required")
	}
	return s.bulk(schema, ids, func(id uuid.UUID) error {
		_, err := s.Reject(ctx, schema, id, req)
		return err
	}), nil
}

func (s *service) bulk(schema *Schema, ids []string, apply func(uuid.UUID) error) *BulkResult {
	res := &BulkResult{Errors: []BulkError{}}
	for i, raw := range ids {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, BulkError{Index: i, ID: raw, Error: fmt.Sprintf("invalid id: %v", err)})
			continue
		}
		if err := apply(id); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, BulkError{Index: i, ID: raw, Error: s.failureMessage(err, "entity", schema.Name, "id", id)})
			continue
		}
		res.Succeeded++
	}
	return res
}

func (s *service) checkModerator(schema *Schema, actor Actor) error {
	if !schema.Moderated {
		return ErrNotModerated
	}
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	return nil
}

func (s *service) checkBulk(schema *Schema, actor Actor, ids []string) error {
	if err := s.checkModerator(schema, actor); err != nil {
		return err
	}
	if len(ids) == 0 {
		return NewValidationError("ids", "is required")
	}
	if len(ids) > MaxBulkItems {
		return NewValidationError("ids", fmt.Sprintf("at most %d ids per call", MaxBulkItems))
	}
	return nil
}

func nullable(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// notify emails the submitter about a moderation event. Delivery failures
// are logged and swallowed.
func (s *service) notify(ctx context.Context, schema *Schema, rec *Record, ev event) {
	if schema.ContactField == "" {
		return
	}
	to := strings.TrimSpace(rec.String(schema.ContactField))
	if to == "" {
		return
	}

	subject, body := message(schema, rec, ev)
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()
	if err := s.notifier.SendEmail(nctx, to, subject, body); err != nil {
		s.logger.Warn("notification failed", "entity", schema.Name, "id", rec.ID, "event", string(ev), "err", err)
		return
	}
	s.logger.Debug("notification sent", "entity", schema.Name, "id", rec.ID, "event", string(ev))
}

func message(schema *Schema, rec *Record, ev event) (string, string) {
	name := html.EscapeString(displayName(schema, rec))
	switch ev {
	case eventApproved:
		body := fmt.Sprintf("<p>Your %s submission <strong>%s</strong> has been approved.</p>", schema.Name, name)
		if c := rec.String(ColumnAdminComments); c != "" {
			body += fmt.Sprintf("<p>Comments: %s</p>", html.EscapeString(c))
		}
		return fmt.Sprintf("Your %s submission was approved", schema.Name), body
	case eventRejected:
		return fmt.Sprintf("Your %s submission was rejected", schema.Name),
			fmt.Sprintf("<p>Your %s submission <strong>%s</strong> was not approved.</p><p>Reason: %s</p>",
				schema.Name, name, html.EscapeString(rec.String(ColumnRejectionReason)))
	default:
		return fmt.Sprintf("We received your %s submission", schema.Name),
			fmt.Sprintf("<p>Thank you. Your %s submission <strong>%s</strong> is awaiting review.</p>", schema.Name, name)
	}
}
