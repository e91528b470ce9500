package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmynk/groupledger/internal/id"
	"github.com/mmynk/groupledger/internal/models"
	"github.com/mmynk/groupledger/internal/storage"
)

// CreateGroupInput is the payload of CreateGroup.
type CreateGroupInput struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	MembersEmail []string `json:"membersEmail"`
}

// UpdateGroupInput carries the group fields an admin may change.
// Version, when non-zero, must match the stored version.
type UpdateGroupInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Version     int64   `json:"version,omitempty"`
}

// ListGroupsInput selects a page of the caller's groups.
type ListGroupsInput struct {
	Page   models.PageRequest
	IsPaid *bool
}

// CreateGroup spends one of the caller's credits and creates a group with
// the caller as admin. Members are deduplicated and the admin is always
// included. The credit is refunded if the group cannot be stored.
func (e *Engine) CreateGroup(ctx context.Context, caller models.Identity, in CreateGroupInput) (*models.Group, error) {
	slog.Info("CreateGroup request received", "name", in.Name, "admin", caller.Email, "members", len(in.MembersEmail))

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, models.NewValidationError("name", "is required")
	}
	admin := models.NormalizeEmail(caller.Email)
	if admin == "" {
		return nil, models.NewValidationError("email", "caller has no email")
	}
	members, err := normalizeEmails(in.MembersEmail)
	if err != nil {
		return nil, err
	}

	if _, err := e.credits.Consume(ctx, caller.ID); err != nil {
		e.metrics.Operation("createGroup", err)
		return nil, err
	}
	e.metrics.CreditConsumed()

	group := &models.Group{
		ID:            id.NewGroup(),
		Name:          name,
		Description:   strings.TrimSpace(in.Description),
		AdminEmail:    admin,
		MembersEmail:  dedupe(append([]string{admin}, members...)),
		PaymentStatus: models.PaymentStatus{Amount: 0, Currency: e.currency},
		CreatedAt:     e.now().Unix(),
	}

	if err := e.store.CreateGroup(ctx, group); err != nil {
		slog.Error("Failed to create group", "error", err, "admin", admin)
		if rerr := e.credits.Refund(ctx, caller.ID); rerr != nil {
			slog.Error("Failed to refund credit", "error", rerr, "user_id", caller.ID)
		}
		e.metrics.Operation("createGroup", err)
		return nil, fmt.Errorf("failed to create group: %w", err)
	}

	e.record(ctx, group.ID, fmt.Sprintf("Group created by %s", admin))
	e.metrics.Operation("createGroup", nil)
	slog.Info("Group created", "group_id", group.ID, "members", len(group.MembersEmail))
	return group, nil
}

// UpdateGroup changes name or description. Admin only.
func (e *Engine) UpdateGroup(ctx context.Context, caller models.Identity, groupID string, in UpdateGroupInput) (*models.Group, error) {
	slog.Info("UpdateGroup request received", "group_id", groupID, "user", caller.Email)

	if in.Name == nil && in.Description == nil {
		return nil, models.NewValidationError("name", "nothing to update")
	}
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(caller.Email) {
		return nil, fmt.Errorf("%w: only the group admin can update the group", models.ErrForbidden)
	}
	if in.Version != 0 && in.Version != group.Version {
		return nil, fmt.Errorf("group %s version %d: %w", groupID, in.Version, models.ErrConflict)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, models.NewValidationError("name", "must not be empty")
		}
		group.Name = name
	}
	if in.Description != nil {
		group.Description = strings.TrimSpace(*in.Description)
	}

	err = e.store.UpdateGroup(ctx, group)
	e.metrics.Operation("updateGroup", err)
	if err != nil {
		return nil, fmt.Errorf("failed to update group: %w", err)
	}
	e.record(ctx, group.ID, fmt.Sprintf("Group updated by %s", models.NormalizeEmail(caller.Email)))
	return group, nil
}

// AddMembers adds emails to a group. Only the group admin may add members.
func (e *Engine) AddMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error) {
	slog.Info("AddMembers request received", "group_id", groupID, "user", caller.Email, "count", len(emails))

	members, err := memberList(groupID, emails)
	if err != nil {
		return nil, err
	}
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(caller.Email) {
		return nil, fmt.Errorf("%w: only the group admin can add members", models.ErrForbidden)
	}

	updated, err := e.store.AddGroupMembers(ctx, groupID, members)
	e.metrics.Operation("addMembers", err)
	if err != nil {
		return nil, fmt.Errorf("failed to add members: %w", err)
	}
	e.record(ctx, groupID, fmt.Sprintf("Members added by %s: %s", models.NormalizeEmail(caller.Email), strings.Join(members, ", ")))
	return updated, nil
}

// RemoveMembers removes emails from a group. Only the group admin may remove
// members, and the admin can never be removed.
func (e *Engine) RemoveMembers(ctx context.Context, caller models.Identity, groupID string, emails []string) (*models.Group, error) {
	slog.Info("RemoveMembers request received", "group_id", groupID, "user", caller.Email, "count", len(emails))

	members, err := memberList(groupID, emails)
	if err != nil {
		return nil, err
	}
	group, err := e.getGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(caller.Email) {
		return nil, fmt.Errorf("%w: only the group admin can remove members", models.ErrForbidden)
	}
	for _, m := range members {
		if m == group.AdminEmail {
			return nil, models.NewValidationError("membersEmail", "the group admin cannot be removed")
		}
	}

	updated, err := e.store.RemoveGroupMembers(ctx, groupID, members)
	e.metrics.Operation("removeMembers", err)
	if err != nil {
		return nil, fmt.Errorf("failed to remove members: %w", err)
	}
	e.record(ctx, groupID, fmt.Sprintf("Members removed by %s: %s", models.NormalizeEmail(caller.Email), strings.Join(members, ", ")))
	return updated, nil
}

// ListMyGroups returns one page of the groups the caller belongs to.
func (e *Engine) ListMyGroups(ctx context.Context, caller models.Identity, in ListGroupsInput) ([]*models.Group, models.Pagination, error) {
	in.Page = in.Page.WithDefaults()
	groups, total, err := e.store.ListGroups(ctx, storage.GroupFilter{
		MemberEmail: models.NormalizeEmail(caller.Email),
		IsPaid:      in.IsPaid,
		Page:        in.Page,
	})
	if err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to list groups: %w", err)
	}
	if groups == nil {
		groups = []*models.Group{}
	}
	return groups, models.NewPagination(in.Page, total), nil
}

// AuditLog returns the group's audit trail. The caller must be a member.
// A group that does not exist has an empty trail.
func (e *Engine) AuditLog(ctx context.Context, caller models.Identity, groupID string) ([]models.AuditEntry, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, models.NewValidationError("groupId", "is required")
	}
	group, err := e.store.GetGroup(ctx, groupID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return []models.AuditEntry{}, nil
	case err != nil:
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	if !group.IsMember(caller.Email) {
		return nil, fmt.Errorf("%w: not a member of this group", models.ErrForbidden)
	}
	entries, err := e.trail.Read(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}
	return entries, nil
}

func (e *Engine) getGroup(ctx context.Context, groupID string) (*models.Group, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, models.NewValidationError("groupId", "is required")
	}
	group, err := e.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return group, nil
}

func memberList(groupID string, emails []string) ([]string, error) {
	if strings.TrimSpace(groupID) == "" {
		return nil, models.NewValidationError("groupId", "is required")
	}
	if len(emails) == 0 {
		return nil, models.NewValidationError("membersEmail", "must be a non-empty list")
	}
	members, err := normalizeEmails(emails)
	if err != nil {
		return nil, err
	}
	return dedupe(members), nil
}

func normalizeEmails(emails []string) ([]string, error) {
	out := make([]string, 0, len(emails))
	for i, raw := range emails {
		email := models.NormalizeEmail(raw)
		if !strings.Contains(email, "@") || strings.ContainsAny(email, " \t") {
			return nil, models.NewValidationError(fmt.Sprintf("membersEmail[%d]", i), "is not a valid email")
		}
		out = append(out, email)
	}
	return out, nil
}

func dedupe(emails []string) []string {
	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out
}
