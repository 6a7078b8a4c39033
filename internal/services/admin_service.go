package services

import (
	"context"
	"errors"

	"starterkit/internal/domain"
	"starterkit/internal/repos"
)

type Stats struct {
	Users              int `json:"users"`
	PendingInvitations int `json:"pending_invitations"`
	NewContacts        int `json:"new_contacts"`
	Uploads            int `json:"uploads"`
	Flags              int `json:"flags"`
}

type AdminService struct {
	Users       *repos.UserRepo
	Contacts    *repos.ContactRepo
	UploadRows  *repos.UploadRepo
	Flags       *repos.FlagRepo
	Invitations *InvitationService
	Uploads     *UploadService
}

func (s *AdminService) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var err error
	if st.Users, err = s.Users.Count(ctx); err != nil {
		return st, err
	}
	if st.PendingInvitations, err = s.Invitations.CountPending(ctx); err != nil {
		return st, err
	}
	if st.NewContacts, err = s.Contacts.CountByStatus(ctx, domain.ContactNew); err != nil {
		return st, err
	}
	if st.Uploads, err = s.UploadRows.Count(ctx); err != nil {
		return st, err
	}
	if st.Flags, err = s.Flags.Count(ctx); err != nil {
		return st, err
	}
	return st, nil
}

func (s *AdminService) ListUsers(ctx context.Context) ([]domain.User, error) {
	return s.Users.List(ctx)
}

// SetRole changes a user's role. Admins cannot demote themselves.
func (s *AdminService) SetRole(ctx context.Context, actor *domain.User, id, role string) error {
	if !domain.ValidRole(role) {
		return ErrInvalidRole
	}
	if actor.ID == id && role != domain.RoleAdmin {
		return ErrSelf
	}
	return notFound(s.Users.UpdateRole(ctx, id, role))
}

// DeleteUser removes a user with their sessions and uploads. Stored objects
// are deleted best effort before the rows go.
func (s *AdminService) DeleteUser(ctx context.Context, actor *domain.User, id string) error {
	if actor.ID == id {
		return ErrSelf
	}
	if _, err := s.Users.ByID(ctx, id); err != nil {
		return notFound(err)
	}
	if s.Uploads != nil {
		s.Uploads.DeleteObjects(ctx, id)
	}
	if err := s.Users.DeleteUserCascade(ctx, id); err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
